package service

import (
	"context"
	"io"
	"time"
)

// bodyDownload reads a response body in the background. The call completing
// and the body being fully received are separate events.
type bodyDownload struct {
	done chan struct{}
	text string
	err  error
}

func startDownload(rc io.ReadCloser) *bodyDownload {
	d := &bodyDownload{
		done: make(chan struct{}),
	}
	go func() {
		defer close(d.done)
		defer rc.Close()
		b, err := io.ReadAll(rc)
		d.text = string(b)
		d.err = err
	}()
	return d
}

func (d *bodyDownload) ready() bool {
	select {
	case <-d.done:
		return true
	default:
		return false
	}
}

func (s *LedgerService) awaitBody(ctx context.Context, d *bodyDownload) (string, error) {
	if d.ready() {
		return d.text, d.err
	}

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	waited := 0
	for {
		select {
		case <-d.done:
			return d.text, d.err
		case <-ticker.C:
			waited++
			if d.ready() {
				return d.text, d.err
			}
			s.logger.Debug("response body not ready", "polls", waited)
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}
