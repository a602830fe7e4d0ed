package models

import (
	"net/url"
	"strconv"
	"strings"
	"time"
)

type TotalsResult struct {
	Lifetime float64 `json:"lifetime"`
	Filtered float64 `json:"filtered"`
}

type EarningResult struct {
	AmountRecorded float64 `json:"amountEarned"`
	Status         string  `json:"status"`
}

// TotalsQuery filters a totals request. Only one of the window fields is sent,
// with days taking priority over weeks and weeks over months.
type TotalsQuery struct {
	PublisherID    string
	ApplicationID  string
	PlayerID       string
	PreviousDays   int
	PreviousWeeks  int
	PreviousMonths int
}

// Encode builds the query string. Fields left at their zero value are omitted.
func (q TotalsQuery) Encode() string {
	parts := make([]string, 0, 4)
	add := func(key, value string) {
		parts = append(parts, key+"="+url.QueryEscape(value))
	}

	if q.PublisherID != "" {
		add(FieldDevID, q.PublisherID)
	}
	if q.ApplicationID != "" {
		add(FieldGameID, q.ApplicationID)
	}
	if q.PlayerID != "" {
		add(FieldPlayerID, q.PlayerID)
	}

	switch {
	case q.PreviousDays != 0:
		add(FieldPreviousDays, strconv.Itoa(q.PreviousDays))
	case q.PreviousWeeks != 0:
		add(FieldPreviousWeeks, strconv.Itoa(q.PreviousWeeks))
	case q.PreviousMonths != 0:
		add(FieldPreviousMonths, strconv.Itoa(q.PreviousMonths))
	}

	return strings.Join(parts, "&")
}

// Since returns the start of the query window relative to now, or the zero
// time when no window is set.
func (q TotalsQuery) Since(now time.Time) time.Time {
	switch {
	case q.PreviousDays != 0:
		return now.AddDate(0, 0, -q.PreviousDays)
	case q.PreviousWeeks != 0:
		return now.AddDate(0, 0, -7*q.PreviousWeeks)
	case q.PreviousMonths != 0:
		return now.AddDate(0, -q.PreviousMonths, 0)
	}
	return time.Time{}
}

// ParseTotalsQuery is the inverse of Encode.
func ParseTotalsQuery(values url.Values) (TotalsQuery, error) {
	q := TotalsQuery{
		PublisherID:   values.Get(FieldDevID),
		ApplicationID: values.Get(FieldGameID),
		PlayerID:      values.Get(FieldPlayerID),
	}
	windows := []struct {
		key string
		dst *int
	}{
		{FieldPreviousDays, &q.PreviousDays},
		{FieldPreviousWeeks, &q.PreviousWeeks},
		{FieldPreviousMonths, &q.PreviousMonths},
	}
	for _, w := range windows {
		raw := values.Get(w.key)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return TotalsQuery{}, err
		}
		*w.dst = n
	}
	return q, nil
}

// Wire field names shared by the client and the local ledger.
const (
	FieldDevID          = "devID"
	FieldGameID         = "gameID"
	FieldPlayerID       = "playerID"
	FieldCharityName    = "charityName"
	FieldAmountEarned   = "amountEarned"
	FieldUsername       = "username"
	FieldPassword       = "password"
	FieldPreviousDays   = "previousDays"
	FieldPreviousWeeks  = "previousWeeks"
	FieldPreviousMonths = "previousMonths"
)

type Player struct {
	ID          string    `json:"id"`
	GameID      string    `json:"game_id"`
	CharityName string    `json:"charity_name"`
	CreatedAt   time.Time `json:"created_at"`
}

type Account struct {
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	PlayerID     string    `json:"player_id"`
	CreatedAt    time.Time `json:"created_at"`
}

type Record struct {
	ID         int64     `json:"id"`
	DevID      string    `json:"dev_id"`
	GameID     string    `json:"game_id"`
	PlayerID   string    `json:"player_id"`
	Amount     float64   `json:"amount"`
	RecordedAt time.Time `json:"recorded_at"`
}

const (
	StatusRecorded = "RECORDED"
	StatusLinked   = "LINKED"
)
