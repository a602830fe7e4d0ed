package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/25x8/playvested/internal/session"
)

// consoleDisplay renders session signals as lines of text. Panel changes are
// only printed in verbose mode.
type consoleDisplay struct {
	mu      sync.Mutex
	out     io.Writer
	verbose bool
}

func newConsoleDisplay(out io.Writer, verbose bool) *consoleDisplay {
	return &consoleDisplay{out: out, verbose: verbose}
}

func (d *consoleDisplay) SetPanelVisible(panel session.Panel, visible bool) {
	if !d.verbose {
		return
	}
	state := "hidden"
	if visible {
		state = "shown"
	}
	d.printf("panel %s %s\n", panel, state)
}

func (d *consoleDisplay) SetTotal(field session.TotalField, text string, visible bool) {
	if !visible {
		return
	}
	d.printf("%s: %s\n", field, text)
}

func (d *consoleDisplay) SetLinkStatus(text string, tone session.Tone) {
	d.printf("[%s] %s\n", tone, text)
}

func (d *consoleDisplay) ResetCredentials() {}

func (d *consoleDisplay) printf(format string, args ...any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fmt.Fprintf(d.out, format, args...)
}
