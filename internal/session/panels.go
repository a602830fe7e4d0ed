package session

import (
	"sync"

	"github.com/25x8/playvested/internal/utils"
)

type Panel int

const (
	PanelCreate Panel = iota
	PanelLink
	PanelSummary
)

var allPanels = [...]Panel{PanelCreate, PanelLink, PanelSummary}

func (p Panel) String() string {
	switch p {
	case PanelCreate:
		return "create"
	case PanelLink:
		return "link"
	case PanelSummary:
		return "summary"
	default:
		return "unknown"
	}
}

type TotalField int

const (
	TotalLifetime TotalField = iota
	TotalFiltered
)

func (f TotalField) String() string {
	if f == TotalLifetime {
		return "lifetime"
	}
	return "filtered"
}

type Tone int

const (
	ToneInfo Tone = iota
	ToneSuccess
	ToneError
)

func (t Tone) String() string {
	switch t {
	case ToneSuccess:
		return "success"
	case ToneError:
		return "error"
	default:
		return "info"
	}
}

// Display receives the UI signals of a session. Signals are delivered while
// the controller holds internal locks, so implementations must not call back
// into the controller.
type Display interface {
	SetPanelVisible(panel Panel, visible bool)
	SetTotal(field TotalField, text string, visible bool)
	SetLinkStatus(text string, tone Tone)
	ResetCredentials()
}

type NopDisplay struct{}

func (NopDisplay) SetPanelVisible(Panel, bool) {}
func (NopDisplay) SetTotal(TotalField, string, bool) {}
func (NopDisplay) SetLinkStatus(string, Tone) {}
func (NopDisplay) ResetCredentials() {}

// Panels tracks which panels are shown. Each panel is independent.
type Panels struct {
	mu      sync.Mutex
	shown   [len(allPanels)]bool
	display Display
}

func newPanels(display Display) *Panels {
	return &Panels{display: display}
}

func (p *Panels) set(panel Panel, visible bool) {
	if panel < PanelCreate || panel > PanelSummary {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shown[panel] = visible
	p.display.SetPanelVisible(panel, visible)
}

func (p *Panels) Show(panel Panel) {
	p.set(panel, true)
}

func (p *Panels) Hide(panel Panel) {
	p.set(panel, false)
}

func (p *Panels) Shown(panel Panel) bool {
	if panel < PanelCreate || panel > PanelSummary {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.shown[panel]
}

func (p *Panels) HideAll() {
	for _, panel := range allPanels {
		p.Hide(panel)
	}
}

// showTotals sends both totals; negative values hide their field.
func showTotals(display Display, lifetime, filtered float64) {
	for _, t := range []struct {
		field  TotalField
		amount float64
	}{
		{TotalLifetime, lifetime},
		{TotalFiltered, filtered},
	} {
		text, ok := utils.FormatCurrency(t.amount)
		display.SetTotal(t.field, text, ok)
	}
}
