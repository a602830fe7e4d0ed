package session

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/25x8/playvested/internal/decode"
	"github.com/25x8/playvested/internal/identity"
	"github.com/25x8/playvested/internal/models"
	"github.com/25x8/playvested/internal/service"
)

const DefaultLinkCloseDelay = 2 * time.Second

const (
	linkedMessage  = "Your PlayVested account is linked"
	linkingMessage = "Linking your PlayVested account"
)

type Requester interface {
	Execute(ctx context.Context, req service.Request) service.Outcome
}

type (
	PlayerRecordedFunc  func(playerID, charityName, message string)
	EarningRecordedFunc func(amountRecorded float64)
	TotalsFunc          func(result models.TotalsResult)
	CleanupFunc         func()
)

type PlayerState int

const (
	PlayerUnset PlayerState = iota
	PlayerPending
	PlayerBound
)

func (s PlayerState) String() string {
	switch s {
	case PlayerPending:
		return "pending"
	case PlayerBound:
		return "bound"
	default:
		return "unset"
	}
}

type LinkStatus int

const (
	LinkUnknown LinkStatus = iota
	LinkNotLinked
	LinkLinked
)

func (s LinkStatus) String() string {
	switch s {
	case LinkNotLinked:
		return "not-linked"
	case LinkLinked:
		return "linked"
	default:
		return "unknown"
	}
}

type PlayerResult struct {
	PlayerID    identity.ID
	CharityName string
	Message     string
}

type LinkResult struct {
	PlayerID identity.ID
	Created  bool
	Message  string
}

type createCallbacks struct {
	onRecorded PlayerRecordedFunc
	onCleanup  CleanupFunc
}

// Controller owns one session against the ledger. Network operations return
// immediately and complete in the background; each resolves its Future once
// and invokes its host callbacks at most once.
type Controller struct {
	ledger         Requester
	store          *identity.Store
	panels         *Panels
	display        Display
	logger         *slog.Logger
	linkCloseDelay time.Duration
	requestTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu             sync.Mutex
	closed         bool
	playerPending  bool
	link           LinkStatus
	inFlight       map[service.Action]bool
	create         *createCallbacks
	summaryCleanup CleanupFunc
}

type Option func(*Controller)

func WithDisplay(d Display) Option {
	return func(c *Controller) {
		if d != nil {
			c.display = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithLinkCloseDelay(d time.Duration) Option {
	return func(c *Controller) {
		if d >= 0 {
			c.linkCloseDelay = d
		}
	}
}

// WithRequestTimeout bounds each exchange. Zero means no bound.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d >= 0 {
			c.requestTimeout = d
		}
	}
}

func New(ledger Requester, opts ...Option) *Controller {
	c := &Controller{
		ledger:         ledger,
		store:          identity.NewStore(),
		display:        NopDisplay{},
		logger:         slog.Default(),
		linkCloseDelay: DefaultLinkCloseDelay,
		inFlight:       make(map[service.Action]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "controller")
	c.panels = newPanels(c.display)
	c.ctx, c.cancel = context.WithCancel(context.Background())

	c.panels.HideAll()
	c.display.ResetCredentials()
	return c
}

// Init records the identity chain. Invalid identifiers are ignored. When a
// valid player ID is known its link status is checked in the background.
func (c *Controller) Init(publisherID, applicationID, playerID string) *Future[LinkStatus] {
	c.store.SetIfValid(identity.Publisher, publisherID)
	c.store.SetIfValid(identity.Application, applicationID)
	c.store.SetIfValid(identity.Player, playerID)

	snap := c.store.Snapshot()
	c.logger.Info("session initialized",
		"publisher_id", snap.PublisherID.String(),
		"application_id", snap.ApplicationID.String(),
		"player_id", snap.PlayerID.String(),
	)

	if !snap.PlayerID.Valid() {
		return resolvedFuture(c.LinkStatus(), nil)
	}

	f := newFuture[LinkStatus]()
	req := service.Request{
		Action: service.ActionCheckLinked,
		Method: http.MethodGet,
		Path:   "/players/" + url.PathEscape(snap.PlayerID.String()) + "/is-linked",
	}
	err := c.start(req.Action, func(ctx context.Context) {
		out := c.exchange(ctx, req)
		c.release(req.Action)
		if !out.OK() {
			c.logger.Warn("link check failed", "error", out.Err)
			f.resolve(c.LinkStatus(), out.Err)
			return
		}
		status := LinkNotLinked
		if decode.Linked(out.Body) {
			status = LinkLinked
		}
		c.setLink(status)
		f.resolve(status, nil)
	})
	if err != nil {
		f.resolve(c.LinkStatus(), err)
	}
	return f
}

// CreatePlayer opens the create panel. onRecorded and onCleanup are called by
// whichever of PickCharity or LinkAccount completes the creation.
func (c *Controller) CreatePlayer(onRecorded PlayerRecordedFunc, onCleanup CleanupFunc) error {
	if !c.store.Get(identity.Application).Valid() {
		err := fmt.Errorf("%w: application ID not set, call Init first", ErrPrecondition)
		c.logger.Error("cannot create player", "error", err)
		return err
	}

	c.mu.Lock()
	c.create = &createCallbacks{onRecorded: onRecorded, onCleanup: onCleanup}
	if !c.store.Get(identity.Player).Valid() {
		c.playerPending = true
	}
	c.mu.Unlock()

	c.panels.Show(PanelCreate)
	return nil
}

// PickCharity creates the player for charityName. It is dropped without
// callbacks when the player already exists or the application is unknown.
func (c *Controller) PickCharity(charityName string) *Future[PlayerResult] {
	snap := c.store.Snapshot()
	if snap.PlayerID.Valid() || !snap.ApplicationID.Valid() {
		c.logger.Info("ignoring charity selection",
			"player_bound", snap.PlayerID.Valid(),
			"application_set", snap.ApplicationID.Valid(),
		)
		return resolvedFuture(PlayerResult{}, fmt.Errorf("%w: player exists or application not set", ErrPrecondition))
	}

	req := service.Request{
		Action: service.ActionCreatePlayer,
		Method: http.MethodPost,
		Path:   "/players",
		Form: url.Values{
			models.FieldCharityName: {charityName},
			models.FieldGameID:      {snap.ApplicationID.String()},
		},
	}

	if !c.acquire(req.Action) {
		err := inFlightError(req.Action)
		c.logger.Info("ignoring charity selection", "error", err)
		return resolvedFuture(PlayerResult{}, err)
	}
	c.store.SetCharity(charityName)
	c.setPending(true)

	f := newFuture[PlayerResult]()
	err := c.goOp(func(ctx context.Context) {
		out := c.exchange(ctx, req)
		c.release(req.Action)

		var res PlayerResult
		err := out.Err
		if out.OK() {
			var id identity.ID
			id, err = decode.Identifier(out.Body)
			if err == nil {
				if !c.store.SetIfUnset(identity.Player, id.String()) {
					// linking bound a player first
					c.logger.Warn("keeping bound player over created one", "created_id", id.String())
					id = c.store.Get(identity.Player)
				}
				res = PlayerResult{
					PlayerID:    id,
					CharityName: charityName,
					Message:     "Thank you for supporting " + charityName,
				}
			}
		}
		if err != nil {
			c.logger.Warn("player creation failed", "charity", charityName, "error", err)
			c.store.ClearCharity()
		} else {
			c.logger.Info("player created", "player_id", res.PlayerID.String(), "charity", charityName)
		}
		c.setPending(false)

		c.panels.Hide(PanelCreate)
		c.finishCreate(res.PlayerID.String(), res.CharityName, res.Message)
		f.resolve(res, err)
	})
	if err != nil {
		c.release(req.Action)
		c.store.ClearCharity()
		c.setPending(false)
		f.resolve(PlayerResult{}, err)
	}
	return f
}

// ReportEarning records amount for the bound player. Without a player only
// onCleanup runs.
func (c *Controller) ReportEarning(amount float64, onRecorded EarningRecordedFunc, onCleanup CleanupFunc) *Future[models.EarningResult] {
	cleanup := onceCleanup(onCleanup)
	snap := c.store.Snapshot()
	if !snap.PlayerID.Valid() {
		err := fmt.Errorf("%w: no player bound", ErrPrecondition)
		c.logger.Error("cannot report earning", "amount", amount, "error", err)
		cleanup()
		return resolvedFuture(models.EarningResult{}, err)
	}

	req := service.Request{
		Action: service.ActionReportEarning,
		Method: http.MethodPost,
		Path:   "/records",
		Form: url.Values{
			models.FieldDevID:        {snap.PublisherID.String()},
			models.FieldGameID:       {snap.ApplicationID.String()},
			models.FieldPlayerID:     {snap.PlayerID.String()},
			models.FieldAmountEarned: {strconv.FormatFloat(amount, 'f', -1, 64)},
		},
	}

	f := newFuture[models.EarningResult]()
	err := c.start(req.Action, func(ctx context.Context) {
		out := c.exchange(ctx, req)
		c.release(req.Action)

		if !out.OK() {
			c.logger.Error("earning not recorded", "amount", amount, "error", out.Err)
			cleanup()
			f.resolve(models.EarningResult{}, out.Err)
			return
		}
		res, err := decode.Earning(out.Body)
		if err != nil {
			c.logger.Error("earning response unreadable", "amount", amount, "error", err)
			cleanup()
			f.resolve(models.EarningResult{}, err)
			return
		}

		c.logger.Info("earning recorded", "amount", res.AmountRecorded, "status", res.Status)
		if onRecorded != nil {
			onRecorded(res.AmountRecorded)
		}
		cleanup()
		f.resolve(res, nil)
	})
	if err != nil {
		c.logger.Error("cannot report earning", "amount", amount, "error", err)
		cleanup()
		f.resolve(models.EarningResult{}, err)
	}
	return f
}

// ShowSummary shows the summary panel straight away and fills in the totals
// when they arrive. If the query fails the panel is hidden and onCleanup is
// left for CloseSummary.
func (c *Controller) ShowSummary(query models.TotalsQuery, onResults TotalsFunc, onCleanup CleanupFunc) *Future[models.TotalsResult] {
	req := service.Request{
		Action: service.ActionQueryTotals,
		Method: http.MethodGet,
		Path:   "/records/total",
		Query:  query.Encode(),
	}
	if !c.acquire(req.Action) {
		err := inFlightError(req.Action)
		c.logger.Warn("summary already loading", "error", err)
		onceCleanup(onCleanup)()
		return resolvedFuture(models.TotalsResult{}, err)
	}

	c.mu.Lock()
	previous := c.summaryCleanup
	c.summaryCleanup = onCleanup
	c.mu.Unlock()
	if previous != nil {
		previous()
	}

	c.panels.Show(PanelSummary)
	showTotals(c.display, -1, -1)

	f := newFuture[models.TotalsResult]()
	err := c.goOp(func(ctx context.Context) {
		out := c.exchange(ctx, req)
		c.release(req.Action)

		err := out.Err
		var res models.TotalsResult
		if out.OK() {
			res, err = decode.Totals(out.Body)
		}
		if err != nil {
			c.logger.Warn("summary unavailable", "query", req.Query, "error", err)
			c.panels.Hide(PanelSummary)
			f.resolve(models.TotalsResult{}, err)
			return
		}

		if onResults != nil {
			onResults(res)
		}
		showTotals(c.display, res.Lifetime, res.Filtered)
		f.resolve(res, nil)
	})
	if err != nil {
		c.release(req.Action)
		c.panels.Hide(PanelSummary)
		f.resolve(models.TotalsResult{}, err)
	}
	return f
}

func (c *Controller) CloseSummary() {
	c.panels.Hide(PanelSummary)

	c.mu.Lock()
	cleanup := c.summaryCleanup
	c.summaryCleanup = nil
	c.mu.Unlock()
	if cleanup != nil {
		cleanup()
	}
}

// LinkAccount links the player, or the application when no player exists, to
// a ledger account. A player created by linking is reported through the
// callbacks given to CreatePlayer.
func (c *Controller) LinkAccount(username, password string) *Future[LinkResult] {
	snap := c.store.Snapshot()
	var path string
	switch {
	case snap.PlayerID.Valid():
		path = "/players/link/" + url.PathEscape(snap.PlayerID.String())
	case snap.ApplicationID.Valid():
		path = "/players/link/game/" + url.PathEscape(snap.ApplicationID.String())
	default:
		c.logger.Info("ignoring link request, no identity")
		return resolvedFuture(LinkResult{}, fmt.Errorf("%w: no player or application", ErrPrecondition))
	}

	req := service.Request{
		Action: service.ActionLinkAccount,
		Method: http.MethodPost,
		Path:   path,
		Form: url.Values{
			models.FieldUsername: {username},
			models.FieldPassword: {password},
		},
	}
	wasUnset := !snap.PlayerID.Valid()

	f := newFuture[LinkResult]()
	err := c.start(req.Action, func(ctx context.Context) {
		c.display.SetLinkStatus(linkingMessage, ToneInfo)
		out := c.exchange(ctx, req)
		c.release(req.Action)

		if !out.OK() {
			c.logger.Warn("account link failed", "error", out.Err)
			c.display.SetLinkStatus(out.Err.Error(), ToneError)
			f.resolve(LinkResult{}, out.Err)
			return
		}

		res := LinkResult{PlayerID: snap.PlayerID, Message: linkedMessage}
		if wasUnset {
			id, err := decode.Identifier(out.Body)
			switch {
			case err != nil:
				c.logger.Warn("link response carried no player ID", "body", out.Body)
			case c.store.SetIfUnset(identity.Player, id.String()):
				res.PlayerID = id
				res.Created = true
				c.setPending(false)
				c.panels.Hide(PanelCreate)
				c.finishCreate(id.String(), c.store.Charity(), res.Message)
			default:
				// a player was bound while the link was in flight
				res.PlayerID = c.store.Get(identity.Player)
				c.logger.Warn("keeping bound player over linked one",
					"player_id", res.PlayerID.String(),
					"linked_id", id.String(),
				)
			}
		}

		c.setLink(LinkLinked)
		c.display.SetLinkStatus(res.Message, ToneSuccess)
		c.logger.Info("account linked", "player_id", res.PlayerID.String(), "created", res.Created)
		c.scheduleLinkClose()
		f.resolve(res, nil)
	})
	if err != nil {
		c.logger.Info("ignoring link request", "error", err)
		f.resolve(LinkResult{}, err)
	}
	return f
}

// OpenLinkPanel hides the summary before showing the link panel.
func (c *Controller) OpenLinkPanel() {
	c.panels.Hide(PanelSummary)
	c.panels.Show(PanelLink)
}

func (c *Controller) CloseLinkPanel() {
	c.display.ResetCredentials()
	c.panels.Hide(PanelLink)
}

// Wait blocks until every outstanding operation has settled.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Close cancels outstanding exchanges and waits for them. Cancelled
// operations complete through their failure path.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
}

func (c *Controller) Identity() identity.Identity {
	return c.store.Snapshot()
}

func (c *Controller) PlayerState() PlayerState {
	if c.store.Get(identity.Player).Valid() {
		return PlayerBound
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.playerPending {
		return PlayerPending
	}
	return PlayerUnset
}

func (c *Controller) LinkStatus() LinkStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.link
}

func (c *Controller) PanelShown(panel Panel) bool {
	return c.panels.Shown(panel)
}

func (c *Controller) setLink(status LinkStatus) {
	c.mu.Lock()
	c.link = status
	c.mu.Unlock()
}

func (c *Controller) setPending(pending bool) {
	c.mu.Lock()
	c.playerPending = pending
	c.mu.Unlock()
}

// finishCreate consumes the CreatePlayer callbacks.
func (c *Controller) finishCreate(playerID, charityName, message string) {
	c.mu.Lock()
	cb := c.create
	c.create = nil
	c.mu.Unlock()
	if cb == nil {
		return
	}
	if cb.onRecorded != nil {
		cb.onRecorded(playerID, charityName, message)
	}
	if cb.onCleanup != nil {
		cb.onCleanup()
	}
}

func (c *Controller) acquire(action service.Action) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight[action] {
		return false
	}
	c.inFlight[action] = true
	return true
}

func (c *Controller) release(action service.Action) {
	c.mu.Lock()
	delete(c.inFlight, action)
	c.mu.Unlock()
}

// start claims action and runs fn in the background. fn must release action.
func (c *Controller) start(action service.Action, fn func(ctx context.Context)) error {
	if !c.acquire(action) {
		return inFlightError(action)
	}
	if err := c.goOp(fn); err != nil {
		c.release(action)
		return err
	}
	return nil
}

func (c *Controller) goOp(fn func(ctx context.Context)) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errClosed
	}
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		fn(c.ctx)
	}()
	return nil
}

func (c *Controller) exchange(ctx context.Context, req service.Request) service.Outcome {
	if c.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()
	}
	return c.ledger.Execute(ctx, req)
}

func (c *Controller) scheduleLinkClose() {
	err := c.goOp(func(ctx context.Context) {
		timer := time.NewTimer(c.linkCloseDelay)
		defer timer.Stop()
		select {
		case <-timer.C:
			c.CloseLinkPanel()
		case <-ctx.Done():
		}
	})
	if err != nil {
		c.logger.Debug("link panel auto-close skipped", "error", err)
	}
}
