package decode

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/25x8/playvested/internal/identity"
	"github.com/25x8/playvested/internal/models"
)

var ErrDecode = errors.New("decode failure")

type Shape string

const (
	ShapeIdentifier Shape = "identifier"
	ShapeTotals     Shape = "totals"
	ShapeEarning    Shape = "earning"
)

// Identifier takes the whole body as the identifier.
func Identifier(body string) (identity.ID, error) {
	id := identity.Parse(body)
	if !id.Valid() {
		return identity.ID{}, fmt.Errorf("%w: %s: body %q is not an identifier", ErrDecode, ShapeIdentifier, body)
	}
	return id, nil
}

func Totals(body string) (models.TotalsResult, error) {
	var raw struct {
		Lifetime *float64 `json:"lifetime"`
		Filtered *float64 `json:"filtered"`
	}
	if err := structured(ShapeTotals, body, &raw); err != nil {
		return models.TotalsResult{}, err
	}
	if raw.Lifetime == nil || raw.Filtered == nil {
		return models.TotalsResult{}, fmt.Errorf("%w: %s: missing lifetime or filtered", ErrDecode, ShapeTotals)
	}
	return models.TotalsResult{Lifetime: *raw.Lifetime, Filtered: *raw.Filtered}, nil
}

func Earning(body string) (models.EarningResult, error) {
	var raw struct {
		AmountEarned *float64 `json:"amountEarned"`
		Status       string   `json:"status"`
	}
	if err := structured(ShapeEarning, body, &raw); err != nil {
		return models.EarningResult{}, err
	}
	if raw.AmountEarned == nil {
		return models.EarningResult{}, fmt.Errorf("%w: %s: missing amountEarned", ErrDecode, ShapeEarning)
	}
	return models.EarningResult{AmountRecorded: *raw.AmountEarned, Status: raw.Status}, nil
}

// Linked never fails: anything but the literal "true" means not linked.
func Linked(body string) bool {
	return body == "true"
}

func structured(shape Shape, body string, v any) error {
	if strings.TrimSpace(body) == "" {
		return fmt.Errorf("%w: %s: empty body", ErrDecode, shape)
	}
	if err := json.Unmarshal([]byte(body), v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrDecode, shape, err)
	}
	return nil
}
