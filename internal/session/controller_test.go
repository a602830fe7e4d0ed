package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/25x8/playvested/internal/decode"
	"github.com/25x8/playvested/internal/models"
	"github.com/25x8/playvested/internal/service"
)

type fakeLedger struct {
	mu      sync.Mutex
	calls   []service.Request
	gate    chan struct{}
	respond func(req service.Request) service.Outcome
}

func (f *fakeLedger) Execute(ctx context.Context, req service.Request) service.Outcome {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return service.Failure(fmt.Errorf("%w: %w", service.ErrTransport, ctx.Err()))
		}
	}
	if f.respond == nil {
		return service.Failure(fmt.Errorf("%w: no responder", service.ErrTransport))
	}
	return f.respond(req)
}

func (f *fakeLedger) Calls() []service.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]service.Request(nil), f.calls...)
}

func replyBody(body string) func(service.Request) service.Outcome {
	return func(service.Request) service.Outcome {
		return service.Success(body)
	}
}

func replyStatus(code int) func(service.Request) service.Outcome {
	return func(service.Request) service.Outcome {
		return service.Failure(&service.StatusError{StatusCode: code})
	}
}

type total struct {
	text    string
	visible bool
}

type recordingDisplay struct {
	mu         sync.Mutex
	panels     map[Panel]bool
	totals     map[TotalField]total
	linkText   string
	linkTone   Tone
	resets     int
	panelOrder []string
}

func newRecordingDisplay() *recordingDisplay {
	return &recordingDisplay{
		panels: make(map[Panel]bool),
		totals: make(map[TotalField]total),
	}
}

func (d *recordingDisplay) SetPanelVisible(panel Panel, visible bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.panels[panel] = visible
	d.panelOrder = append(d.panelOrder, fmt.Sprintf("%s=%v", panel, visible))
}

func (d *recordingDisplay) SetTotal(field TotalField, text string, visible bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.totals[field] = total{text, visible}
}

func (d *recordingDisplay) SetLinkStatus(text string, tone Tone) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.linkText = text
	d.linkTone = tone
}

func (d *recordingDisplay) ResetCredentials() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resets++
}

func (d *recordingDisplay) total(field TotalField) total {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.totals[field]
}

func (d *recordingDisplay) shown(panel Panel) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.panels[panel]
}

func newTestController(t *testing.T, ledger *fakeLedger, opts ...Option) (*Controller, *recordingDisplay) {
	t.Helper()
	display := newRecordingDisplay()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts = append([]Option{WithDisplay(display), WithLogger(logger), WithLinkCloseDelay(0)}, opts...)
	c := New(ledger, opts...)
	t.Cleanup(c.Close)
	return c, display
}

type playerCall struct {
	playerID, charity, message string
}

func TestNewHidesPanels(t *testing.T) {
	c, display := newTestController(t, &fakeLedger{})
	for _, p := range allPanels {
		require.False(t, c.PanelShown(p))
		require.False(t, display.shown(p))
	}
	require.Equal(t, 1, display.resets)
	require.Equal(t, PlayerUnset, c.PlayerState())
	require.Equal(t, LinkUnknown, c.LinkStatus())
}

func TestInitIgnoresInvalidIdentifiers(t *testing.T) {
	ledger := &fakeLedger{}
	c, _ := newTestController(t, ledger)

	status, err := c.Init("dev-1", "game-1", "").Result()
	require.NoError(t, err)
	require.Equal(t, LinkUnknown, status)

	_, err = c.Init("", "000000000000000000000000", "000000000000000000000000").Result()
	require.NoError(t, err)

	id := c.Identity()
	require.Equal(t, "dev-1", id.PublisherID.String())
	require.Equal(t, "game-1", id.ApplicationID.String())
	require.False(t, id.PlayerID.Valid())
	require.Empty(t, ledger.Calls())
}

func TestInitChecksLinkStatus(t *testing.T) {
	tests := []struct {
		name    string
		respond func(service.Request) service.Outcome
		want    LinkStatus
		wantErr bool
	}{
		{"linked", replyBody("true"), LinkLinked, false},
		{"not linked", replyBody("false"), LinkNotLinked, false},
		{"garbage", replyBody("maybe"), LinkNotLinked, false},
		{"transport failure", replyStatus(http.StatusBadGateway), LinkUnknown, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := &fakeLedger{respond: tt.respond}
			c, _ := newTestController(t, ledger)

			status, err := c.Init("dev-1", "game-1", "pid-9").Result()
			if tt.wantErr {
				require.ErrorIs(t, err, service.ErrTransport)
			} else {
				require.NoError(t, err)
			}
			require.Equal(t, tt.want, status)
			require.Equal(t, tt.want, c.LinkStatus())

			calls := ledger.Calls()
			require.Len(t, calls, 1)
			require.Equal(t, http.MethodGet, calls[0].Method)
			require.Equal(t, "/players/pid-9/is-linked", calls[0].Path)
		})
	}
}

func TestCreatePlayerRequiresApplication(t *testing.T) {
	ledger := &fakeLedger{}
	c, display := newTestController(t, ledger)

	called := false
	err := c.CreatePlayer(func(string, string, string) { called = true }, nil)
	require.ErrorIs(t, err, ErrPrecondition)
	require.Equal(t, KindPrecondition, KindOf(err))
	require.False(t, display.shown(PanelCreate))
	require.Equal(t, PlayerUnset, c.PlayerState())
	require.False(t, called)
	require.Empty(t, ledger.Calls())
}

func TestCreateAndPickCharity(t *testing.T) {
	ledger := &fakeLedger{respond: replyBody("pid-123")}
	c, display := newTestController(t, ledger)
	c.Init("dev-1", "game-1", "")

	var calls []playerCall
	var order []string
	panelShownAtCallback := true
	err := c.CreatePlayer(
		func(playerID, charity, message string) {
			order = append(order, "recorded")
			panelShownAtCallback = display.shown(PanelCreate)
			calls = append(calls, playerCall{playerID, charity, message})
		},
		func() { order = append(order, "cleanup") },
	)
	require.NoError(t, err)
	require.True(t, c.PanelShown(PanelCreate))
	require.Equal(t, PlayerPending, c.PlayerState())

	res, err := c.PickCharity("RedCross").Result()
	require.NoError(t, err)
	require.Equal(t, "pid-123", res.PlayerID.String())

	require.Equal(t, PlayerBound, c.PlayerState())
	require.Equal(t, "pid-123", c.Identity().PlayerID.String())
	require.Equal(t, "RedCross", c.Identity().CharityName)
	require.False(t, c.PanelShown(PanelCreate))
	require.Equal(t, []playerCall{{"pid-123", "RedCross", "Thank you for supporting RedCross"}}, calls)
	require.Equal(t, []string{"recorded", "cleanup"}, order)
	require.False(t, panelShownAtCallback)

	sent := ledger.Calls()
	require.Len(t, sent, 1)
	require.Equal(t, "/players", sent[0].Path)
	require.Equal(t, "RedCross", sent[0].Form.Get("charityName"))
	require.Equal(t, "game-1", sent[0].Form.Get("gameID"))
}

func TestPickCharityWhenBoundIsNoop(t *testing.T) {
	ledger := &fakeLedger{respond: replyBody("true")}
	c, _ := newTestController(t, ledger)
	_, err := c.Init("dev-1", "game-1", "pid-1").Result()
	require.NoError(t, err)

	called := 0
	require.NoError(t, c.CreatePlayer(func(string, string, string) { called++ }, func() { called++ }))

	for _, name := range []string{"RedCross", "", "Oxfam"} {
		_, err := c.PickCharity(name).Result()
		require.ErrorIs(t, err, ErrPrecondition)
	}
	c.Wait()

	require.Len(t, ledger.Calls(), 1)
	require.Zero(t, called)
	require.Equal(t, "pid-1", c.Identity().PlayerID.String())
}

func TestPickCharityTransportFailure(t *testing.T) {
	ledger := &fakeLedger{respond: replyStatus(http.StatusInternalServerError)}
	c, _ := newTestController(t, ledger)
	c.Init("dev-1", "game-1", "")

	var calls []playerCall
	cleanups := 0
	require.NoError(t, c.CreatePlayer(
		func(playerID, charity, message string) { calls = append(calls, playerCall{playerID, charity, message}) },
		func() { cleanups++ },
	))

	res, err := c.PickCharity("RedCross").Result()
	require.ErrorIs(t, err, service.ErrTransport)
	require.Equal(t, KindTransport, KindOf(err))
	require.False(t, res.PlayerID.Valid())

	require.Equal(t, PlayerUnset, c.PlayerState())
	require.Empty(t, c.Identity().CharityName)
	require.False(t, c.PanelShown(PanelCreate))
	require.Equal(t, []playerCall{{"", "", ""}}, calls)
	require.Equal(t, 1, cleanups)

	// callbacks are consumed by the first completion
	ledger.respond = replyBody("pid-7")
	_, err = c.PickCharity("RedCross").Result()
	require.NoError(t, err)
	require.Len(t, calls, 1)
	require.Equal(t, 1, cleanups)
}

func TestPickCharityDecodeFailure(t *testing.T) {
	ledger := &fakeLedger{respond: replyBody("")}
	c, _ := newTestController(t, ledger)
	c.Init("", "game-1", "")

	_, err := c.PickCharity("RedCross").Result()
	require.ErrorIs(t, err, decode.ErrDecode)
	require.Equal(t, KindDecode, KindOf(err))
	require.Equal(t, PlayerUnset, c.PlayerState())
	require.Empty(t, c.Identity().CharityName)
}

func TestReportEarningWithoutPlayer(t *testing.T) {
	ledger := &fakeLedger{respond: replyBody(`{"amountEarned":1,"status":"RECORDED"}`)}
	c, _ := newTestController(t, ledger)
	c.Init("dev-1", "game-1", "")

	for _, amount := range []float64{0, 1, -3.5, 1e9} {
		cleanups, recorded := 0, 0
		_, err := c.ReportEarning(amount, func(float64) { recorded++ }, func() { cleanups++ }).Result()
		require.ErrorIs(t, err, ErrPrecondition)
		require.Equal(t, 1, cleanups)
		require.Zero(t, recorded)
	}
	require.Empty(t, ledger.Calls())

	_, err := c.ReportEarning(5, nil, nil).Result()
	require.ErrorIs(t, err, ErrPrecondition)
}

func TestReportEarning(t *testing.T) {
	ledger := &fakeLedger{}
	c, _ := newTestController(t, ledger)
	ledger.respond = replyBody("true")
	c.Init("dev-1", "game-1", "pid-1").Result()

	ledger.respond = replyBody(`{"amountEarned":2.5,"status":"RECORDED"}`)
	var order []string
	var amount float64
	res, err := c.ReportEarning(2.5,
		func(a float64) { amount = a; order = append(order, "recorded") },
		func() { order = append(order, "cleanup") },
	).Result()
	require.NoError(t, err)
	require.Equal(t, models.EarningResult{AmountRecorded: 2.5, Status: "RECORDED"}, res)
	require.Equal(t, 2.5, amount)
	require.Equal(t, []string{"recorded", "cleanup"}, order)

	sent := ledger.Calls()[1]
	require.Equal(t, "/records", sent.Path)
	require.Equal(t, "dev-1", sent.Form.Get("devID"))
	require.Equal(t, "game-1", sent.Form.Get("gameID"))
	require.Equal(t, "pid-1", sent.Form.Get("playerID"))
	require.Equal(t, "2.5", sent.Form.Get("amountEarned"))
}

func TestReportEarningFailures(t *testing.T) {
	tests := []struct {
		name    string
		respond func(service.Request) service.Outcome
		kind    ErrorKind
	}{
		{"transport", replyStatus(http.StatusServiceUnavailable), KindTransport},
		{"decode", replyBody("recorded!"), KindDecode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := &fakeLedger{respond: replyBody("false")}
			c, _ := newTestController(t, ledger)
			c.Init("dev-1", "game-1", "pid-1").Result()

			ledger.respond = tt.respond
			recorded, cleanups := 0, 0
			_, err := c.ReportEarning(1, func(float64) { recorded++ }, func() { cleanups++ }).Result()
			require.Equal(t, tt.kind, KindOf(err))
			require.Zero(t, recorded)
			require.Equal(t, 1, cleanups)
		})
	}
}

func TestShowSummary(t *testing.T) {
	gate := make(chan struct{})
	ledger := &fakeLedger{gate: gate, respond: replyBody(`{"lifetime":120.5,"filtered":30.0}`)}
	c, display := newTestController(t, ledger)
	c.Init("", "g1", "")

	var got []models.TotalsResult
	cleanups := 0
	f := c.ShowSummary(models.TotalsQuery{ApplicationID: "g1", PreviousWeeks: 3},
		func(r models.TotalsResult) { got = append(got, r) },
		func() { cleanups++ },
	)

	require.True(t, c.PanelShown(PanelSummary))
	require.Equal(t, total{"", false}, display.total(TotalLifetime))
	require.Equal(t, total{"", false}, display.total(TotalFiltered))

	close(gate)
	res, err := f.Result()
	require.NoError(t, err)
	require.Equal(t, models.TotalsResult{Lifetime: 120.5, Filtered: 30}, res)
	require.Equal(t, []models.TotalsResult{res}, got)
	require.Equal(t, total{"$120.50", true}, display.total(TotalLifetime))
	require.Equal(t, total{"$30.00", true}, display.total(TotalFiltered))
	require.True(t, c.PanelShown(PanelSummary))
	require.Zero(t, cleanups)

	sent := ledger.Calls()
	require.Equal(t, "/records/total", sent[0].Path)
	require.Equal(t, "gameID=g1&previousWeeks=3", sent[0].Query)

	c.CloseSummary()
	c.CloseSummary()
	require.False(t, c.PanelShown(PanelSummary))
	require.Equal(t, 1, cleanups)
}

func TestShowSummaryHidesNegativeTotals(t *testing.T) {
	ledger := &fakeLedger{respond: replyBody(`{"lifetime":-4,"filtered":12.25}`)}
	c, display := newTestController(t, ledger)

	_, err := c.ShowSummary(models.TotalsQuery{}, nil, nil).Result()
	require.NoError(t, err)
	require.Equal(t, total{"", false}, display.total(TotalLifetime))
	require.Equal(t, total{"$12.25", true}, display.total(TotalFiltered))
}

func TestShowSummaryFailureLeavesCleanupPending(t *testing.T) {
	for _, respond := range []func(service.Request) service.Outcome{
		replyStatus(http.StatusInternalServerError),
		replyBody(`{"lifetime":"n/a"}`),
	} {
		ledger := &fakeLedger{respond: respond}
		c, _ := newTestController(t, ledger)

		results, cleanups := 0, 0
		_, err := c.ShowSummary(models.TotalsQuery{PlayerID: "p1"},
			func(models.TotalsResult) { results++ },
			func() { cleanups++ },
		).Result()
		require.Error(t, err)
		require.False(t, c.PanelShown(PanelSummary))
		require.Zero(t, results)
		require.Zero(t, cleanups)

		c.CloseSummary()
		require.Equal(t, 1, cleanups)
	}
}

func TestShowSummaryReplacesPendingCleanup(t *testing.T) {
	ledger := &fakeLedger{respond: replyStatus(http.StatusInternalServerError)}
	c, _ := newTestController(t, ledger)

	first, second := 0, 0
	c.ShowSummary(models.TotalsQuery{}, nil, func() { first++ }).Result()
	require.Zero(t, first)

	ledger.respond = replyBody(`{"lifetime":1,"filtered":1}`)
	c.ShowSummary(models.TotalsQuery{}, nil, func() { second++ }).Result()
	require.Equal(t, 1, first)

	c.CloseSummary()
	require.Equal(t, 1, first)
	require.Equal(t, 1, second)
}

func TestLinkAccountCreatesPlayer(t *testing.T) {
	ledger := &fakeLedger{respond: replyBody("pid-77")}
	c, display := newTestController(t, ledger)
	c.Init("dev-1", "game-1", "")

	var calls []playerCall
	cleanups := 0
	require.NoError(t, c.CreatePlayer(
		func(playerID, charity, message string) { calls = append(calls, playerCall{playerID, charity, message}) },
		func() { cleanups++ },
	))
	c.OpenLinkPanel()
	require.True(t, c.PanelShown(PanelLink))

	res, err := c.LinkAccount("ima", "secret").Result()
	require.NoError(t, err)
	require.True(t, res.Created)
	require.Equal(t, "pid-77", res.PlayerID.String())
	require.Equal(t, PlayerBound, c.PlayerState())
	require.Equal(t, LinkLinked, c.LinkStatus())
	require.Equal(t, []playerCall{{"pid-77", "", linkedMessage}}, calls)
	require.Equal(t, 1, cleanups)
	require.False(t, c.PanelShown(PanelCreate))

	display.mu.Lock()
	require.Equal(t, linkedMessage, display.linkText)
	require.Equal(t, ToneSuccess, display.linkTone)
	display.mu.Unlock()

	c.Wait()
	require.False(t, c.PanelShown(PanelLink))

	sent := ledger.Calls()
	link := sent[len(sent)-1]
	require.Equal(t, "/players/link/game/game-1", link.Path)
	require.Equal(t, "ima", link.Form.Get("username"))
	require.Equal(t, "secret", link.Form.Get("password"))
}

func TestLinkAccountAfterPickCharityKeepsPlayer(t *testing.T) {
	linkGate := make(chan struct{})
	release := sync.OnceFunc(func() { close(linkGate) })
	ledger := &fakeLedger{respond: func(req service.Request) service.Outcome {
		if req.Action == service.ActionLinkAccount {
			<-linkGate
			return service.Success("pid-LINK")
		}
		return service.Success("pid-CREATE")
	}}
	c, display := newTestController(t, ledger)
	t.Cleanup(release)
	c.Init("dev-1", "game-1", "")

	var calls []playerCall
	require.NoError(t, c.CreatePlayer(
		func(playerID, charity, message string) { calls = append(calls, playerCall{playerID, charity, message}) },
		nil,
	))

	link := c.LinkAccount("ima", "secret")
	picked, err := c.PickCharity("RedCross").Result()
	require.NoError(t, err)
	require.Equal(t, "pid-CREATE", picked.PlayerID.String())

	require.Eventually(t, func() bool {
		display.mu.Lock()
		defer display.mu.Unlock()
		return display.linkText == linkingMessage && display.linkTone == ToneInfo
	}, time.Second, time.Millisecond)

	release()
	res, err := link.Result()
	require.NoError(t, err)
	require.False(t, res.Created)
	require.Equal(t, "pid-CREATE", res.PlayerID.String())
	require.Equal(t, "pid-CREATE", c.Identity().PlayerID.String())
	require.Equal(t, LinkLinked, c.LinkStatus())
	require.Equal(t, []playerCall{{"pid-CREATE", "RedCross", "Thank you for supporting RedCross"}}, calls)
}

func TestPickCharityAfterLinkKeepsPlayer(t *testing.T) {
	createGate := make(chan struct{})
	release := sync.OnceFunc(func() { close(createGate) })
	ledger := &fakeLedger{respond: func(req service.Request) service.Outcome {
		if req.Action == service.ActionCreatePlayer {
			<-createGate
			return service.Success("pid-CREATE")
		}
		return service.Success("pid-LINK")
	}}
	c, _ := newTestController(t, ledger)
	t.Cleanup(release)
	c.Init("dev-1", "game-1", "")

	var calls []playerCall
	require.NoError(t, c.CreatePlayer(
		func(playerID, charity, message string) { calls = append(calls, playerCall{playerID, charity, message}) },
		nil,
	))

	picked := c.PickCharity("RedCross")
	linked, err := c.LinkAccount("ima", "secret").Result()
	require.NoError(t, err)
	require.True(t, linked.Created)
	require.Equal(t, "pid-LINK", linked.PlayerID.String())

	release()
	res, err := picked.Result()
	require.NoError(t, err)
	require.Equal(t, "pid-LINK", res.PlayerID.String())
	require.Equal(t, "pid-LINK", c.Identity().PlayerID.String())
	require.Equal(t, []playerCall{{"pid-LINK", "RedCross", linkedMessage}}, calls)
}

func TestLinkAccountForBoundPlayer(t *testing.T) {
	ledger := &fakeLedger{respond: replyBody("false")}
	c, _ := newTestController(t, ledger)
	c.Init("dev-1", "game-1", "pid-1").Result()
	require.Equal(t, LinkNotLinked, c.LinkStatus())

	called := 0
	require.NoError(t, c.CreatePlayer(func(string, string, string) { called++ }, nil))

	ledger.respond = replyBody(models.StatusLinked)
	c.OpenLinkPanel()
	res, err := c.LinkAccount("ima", "secret").Result()
	require.NoError(t, err)
	require.False(t, res.Created)
	require.Equal(t, "pid-1", res.PlayerID.String())
	require.Equal(t, LinkLinked, c.LinkStatus())
	require.Zero(t, called)

	c.Wait()
	require.False(t, c.PanelShown(PanelLink))
	require.Equal(t, "/players/link/pid-1", ledger.Calls()[1].Path)
}

func TestLinkAccountFailure(t *testing.T) {
	ledger := &fakeLedger{respond: replyStatus(http.StatusUnauthorized)}
	c, display := newTestController(t, ledger)
	c.Init("", "game-1", "")
	c.OpenLinkPanel()

	_, err := c.LinkAccount("ima", "wrong").Result()
	require.ErrorIs(t, err, service.ErrTransport)
	c.Wait()

	require.True(t, c.PanelShown(PanelLink))
	require.Equal(t, LinkUnknown, c.LinkStatus())
	require.Equal(t, PlayerUnset, c.PlayerState())

	display.mu.Lock()
	require.Equal(t, "ledger returned status 401", display.linkText)
	require.Equal(t, ToneError, display.linkTone)
	display.mu.Unlock()
}

func TestLinkAccountWithoutIdentity(t *testing.T) {
	ledger := &fakeLedger{respond: replyBody("pid-1")}
	c, _ := newTestController(t, ledger)

	_, err := c.LinkAccount("ima", "secret").Result()
	require.ErrorIs(t, err, ErrPrecondition)
	require.Empty(t, ledger.Calls())
}

func TestOpenLinkPanelHidesSummary(t *testing.T) {
	gate := make(chan struct{})
	ledger := &fakeLedger{gate: gate, respond: replyBody(`{"lifetime":1,"filtered":0}`)}
	c, display := newTestController(t, ledger)

	f := c.ShowSummary(models.TotalsQuery{}, nil, nil)
	require.True(t, c.PanelShown(PanelSummary))

	c.OpenLinkPanel()
	require.False(t, c.PanelShown(PanelSummary))
	require.True(t, c.PanelShown(PanelLink))

	display.mu.Lock()
	order := append([]string(nil), display.panelOrder...)
	display.mu.Unlock()
	require.Equal(t, []string{"summary=false", "link=true"}, order[len(order)-2:])

	close(gate)
	_, err := f.Result()
	require.NoError(t, err)
	require.False(t, c.PanelShown(PanelSummary))
}

func TestCloseLinkPanelResetsCredentials(t *testing.T) {
	c, display := newTestController(t, &fakeLedger{})
	c.OpenLinkPanel()
	c.CloseLinkPanel()
	require.False(t, c.PanelShown(PanelLink))
	require.Equal(t, 2, display.resets)
}

func TestLinkAutoCloseDelay(t *testing.T) {
	ledger := &fakeLedger{respond: replyBody(models.StatusLinked)}
	c, _ := newTestController(t, ledger, WithLinkCloseDelay(time.Hour))
	c.Init("", "", "pid-1").Result()
	c.OpenLinkPanel()

	_, err := c.LinkAccount("ima", "secret").Result()
	require.NoError(t, err)
	require.True(t, c.PanelShown(PanelLink))

	// Close stops the pending auto-close timer.
	c.Close()
	require.True(t, c.PanelShown(PanelLink))
}

func TestReentrantOperationRejected(t *testing.T) {
	gate := make(chan struct{})
	ledger := &fakeLedger{respond: replyBody("true")}
	c, _ := newTestController(t, ledger)
	c.Init("dev-1", "game-1", "pid-1").Result()

	ledger.mu.Lock()
	ledger.gate = gate
	ledger.respond = replyBody(`{"amountEarned":1,"status":"RECORDED"}`)
	ledger.mu.Unlock()

	firstRecorded := 0
	first := c.ReportEarning(1, func(float64) { firstRecorded++ }, nil)

	secondCleanups := 0
	_, err := c.ReportEarning(2, func(float64) { t.Error("duplicate must not record") }, func() { secondCleanups++ }).Result()
	require.ErrorIs(t, err, ErrInFlight)
	require.Equal(t, KindInFlight, KindOf(err))
	require.Equal(t, 1, secondCleanups)

	summaryCleanups := 0
	summary := c.ShowSummary(models.TotalsQuery{}, nil, nil)
	_, err = c.ShowSummary(models.TotalsQuery{}, nil, func() { summaryCleanups++ }).Result()
	require.ErrorIs(t, err, ErrInFlight)
	require.Equal(t, 1, summaryCleanups)

	close(gate)
	_, err = first.Result()
	require.NoError(t, err)
	require.Equal(t, 1, firstRecorded)
	summary.Result()

	// the kind is free again once the first call settles
	_, err = c.ReportEarning(3, nil, nil).Result()
	require.NoError(t, err)
}

func TestCloseCancelsOutstanding(t *testing.T) {
	defer goleak.VerifyNone(t)

	ledger := &fakeLedger{gate: make(chan struct{}), respond: replyBody("pid-1")}
	c, _ := newTestController(t, ledger)
	c.Init("", "game-1", "")

	var calls []playerCall
	require.NoError(t, c.CreatePlayer(func(playerID, charity, message string) {
		calls = append(calls, playerCall{playerID, charity, message})
	}, nil))
	f := c.PickCharity("RedCross")

	c.Close()
	_, err := f.Result()
	require.ErrorIs(t, err, service.ErrTransport)
	require.True(t, errors.Is(err, context.Canceled))
	require.Len(t, calls, 1)
	require.Equal(t, PlayerUnset, c.PlayerState())

	_, err = c.ShowSummary(models.TotalsQuery{}, nil, nil).Result()
	require.ErrorIs(t, err, ErrPrecondition)
	require.False(t, c.PanelShown(PanelSummary))
}

func TestRequestTimeout(t *testing.T) {
	defer goleak.VerifyNone(t)

	ledger := &fakeLedger{gate: make(chan struct{}), respond: replyBody("true")}
	c, _ := newTestController(t, ledger, WithRequestTimeout(20*time.Millisecond))

	status, err := c.Init("", "", "pid-1").Wait(context.Background())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, LinkUnknown, status)
	c.Close()
}

func TestFutureWait(t *testing.T) {
	f := newFuture[int]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.Wait(ctx)
	require.ErrorIs(t, err, context.Canceled)

	require.True(t, f.resolve(4, nil))
	require.False(t, f.resolve(5, errors.New("late")))
	v, err := f.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, 4, v)
}

func TestKindOf(t *testing.T) {
	require.Equal(t, KindNone, KindOf(nil))
	require.Equal(t, KindPrecondition, KindOf(errClosed))
	require.Equal(t, KindInFlight, KindOf(inFlightError(service.ActionQueryTotals)))
	require.Equal(t, KindDecode, KindOf(fmt.Errorf("wrapped: %w", decode.ErrDecode)))
	require.Equal(t, KindTransport, KindOf(&service.StatusError{StatusCode: 500}))
	require.Equal(t, "in-flight", KindInFlight.String())
}
