package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const DefaultPollInterval = 100 * time.Millisecond

var ErrTransport = errors.New("transport failure")

// StatusError is returned for any non-2xx response.
type StatusError struct {
	StatusCode int
	RetryAfter int
}

func (e *StatusError) Error() string {
	if e.StatusCode == http.StatusTooManyRequests {
		if e.RetryAfter > 0 {
			return fmt.Sprintf("rate limited, retry after %d seconds", e.RetryAfter)
		}
		return "rate limited"
	}
	return fmt.Sprintf("ledger returned status %d", e.StatusCode)
}

func (e *StatusError) Unwrap() error {
	return ErrTransport
}

type Action string

const (
	ActionCheckLinked   Action = "checkLinked"
	ActionCreatePlayer  Action = "createPlayer"
	ActionLinkAccount   Action = "linkAccount"
	ActionReportEarning Action = "reportEarning"
	ActionQueryTotals   Action = "queryTotals"
)

type Request struct {
	Action Action
	Method string
	Path   string
	Query  string
	Form   url.Values
}

// Outcome is either Success with the full body or Failure with an error
// wrapping ErrTransport.
type Outcome struct {
	Body string
	Err  error
}

func Success(body string) Outcome {
	return Outcome{Body: body}
}

func Failure(err error) Outcome {
	return Outcome{Err: err}
}

func (o Outcome) OK() bool {
	return o.Err == nil
}

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// LedgerService performs single exchanges with the ledger. It never retries and
// sets no timeout of its own; bound the context to limit an exchange.
type LedgerService struct {
	baseURL      string
	httpClient   HTTPDoer
	pollInterval time.Duration
	logger       *slog.Logger
	metrics      *Metrics
}

type Option func(*LedgerService)

func WithHTTPClient(c HTTPDoer) Option {
	return func(s *LedgerService) {
		s.httpClient = c
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(s *LedgerService) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *LedgerService) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(s *LedgerService) {
		s.metrics = m
	}
}

func NewLedgerService(baseURL string, opts ...Option) *LedgerService {
	s := &LedgerService{
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpClient:   &http.Client{},
		pollInterval: DefaultPollInterval,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "coordinator")
	return s
}

func (s *LedgerService) BaseURL() string {
	return s.baseURL
}

func (s *LedgerService) Execute(ctx context.Context, req Request) Outcome {
	start := time.Now()
	s.metrics.begin(req.Action)
	out := s.execute(ctx, req)
	s.metrics.end(req.Action, out, time.Since(start))

	if !out.OK() {
		s.logger.Warn("ledger request failed",
			"action", req.Action,
			"path", req.Path,
			"error", out.Err,
		)
	} else {
		s.logger.Debug("ledger request complete",
			"action", req.Action,
			"path", req.Path,
			"bytes", len(out.Body),
		)
	}
	return out
}

func (s *LedgerService) execute(ctx context.Context, req Request) Outcome {
	target := s.baseURL + req.Path
	if req.Query != "" {
		target += "?" + req.Query
	}

	var body io.Reader
	if req.Form != nil {
		body = strings.NewReader(req.Form.Encode())
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return Failure(fmt.Errorf("%w: %v", ErrTransport, err))
	}
	if req.Form != nil {
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return Failure(fmt.Errorf("%w: %v", ErrTransport, err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		statusErr := &StatusError{StatusCode: resp.StatusCode}
		if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
			if seconds, err := strconv.Atoi(retryAfter); err == nil {
				statusErr.RetryAfter = seconds
			}
		}
		return Failure(statusErr)
	}

	text, err := s.awaitBody(ctx, startDownload(resp.Body))
	if err != nil {
		return Failure(fmt.Errorf("%w: reading body: %v", ErrTransport, err))
	}
	return Success(text)
}
