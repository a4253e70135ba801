package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/bluemap-render/internal/render"
)

// ErrReloaded is returned by Run once the page has been reloaded.
var ErrReloaded = errors.New("page reloaded")

// Phase is the lifecycle state of a Trigger.
type Phase int32

// Trigger phases.
const (
	PhaseIdle Phase = iota
	PhaseRunning
	PhaseSucceeded
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRunning:
		return "running"
	case PhaseSucceeded:
		return "succeeded"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether p is Succeeded or Failed.
func (p Phase) Terminal() bool {
	return p == PhaseSucceeded || p == PhaseFailed
}

const (
	failedMessage  = "Map render failed"
	successMessage = "Map render completed"

	defaultInterval  = time.Second
	defaultCountdown = 6
)

// Params are captured once when the page loads.
type Params struct {
	Source string
	Target string
	// Interval between timer and countdown ticks. Zero means one second.
	Interval time.Duration
}

// ParamsFromURL reads the source and target query parameters of a page URL.
func ParamsFromURL(raw string) (Params, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Params{}, fmt.Errorf("parse page url: %w", err)
	}
	q := u.Query()
	return Params{Source: q.Get("source"), Target: q.Get("target")}, nil
}

type event int

const (
	eventActivate event = iota
	eventViewError
	eventReload
)

type submitResult struct {
	outcome Outcome
	err     error
}

// Trigger binds the render control to one render request per page load.
type Trigger struct {
	view      View
	submitter Submitter
	tokens    TokenProvider
	tickers   TickerFactory
	reloader  Reloader
	presenter ErrorPresenter
	params    Params
	logger    *zap.Logger

	events  chan event
	results chan submitResult
	done    chan struct{}
	phase   atomic.Int32

	// Owned by the Run goroutine.
	elapsed       int
	countdown     int
	errDetail     string
	elapsedTicker Ticker
	reloadTicker  Ticker
}

// New constructs a Trigger in the Idle phase.
func New(
	view View,
	submitter Submitter,
	tokens TokenProvider,
	tickers TickerFactory,
	reloader Reloader,
	presenter ErrorPresenter,
	params Params,
	logger *zap.Logger,
) *Trigger {
	if logger == nil {
		logger = zap.NewNop()
	}
	if params.Interval <= 0 {
		params.Interval = defaultInterval
	}
	return &Trigger{
		view:      view,
		submitter: submitter,
		tokens:    tokens,
		tickers:   tickers,
		reloader:  reloader,
		presenter: presenter,
		params:    params,
		logger:    logger,
		events:    make(chan event, 16),
		results:   make(chan submitResult, 1),
		done:      make(chan struct{}),
	}
}

// Phase returns the current lifecycle phase.
func (t *Trigger) Phase() Phase {
	return Phase(t.phase.Load())
}

// Activate is the start control's click handler.
func (t *Trigger) Activate() { t.post(eventActivate) }

// ViewError is the "view error" affordance's click handler.
func (t *Trigger) ViewError() { t.post(eventViewError) }

// Reload is the reload affordance's click handler.
func (t *Trigger) Reload() { t.post(eventReload) }

func (t *Trigger) post(ev event) {
	select {
	case t.events <- ev:
	case <-t.done:
	}
}

// Run processes page events until the page reloads or ctx ends.
func (t *Trigger) Run(ctx context.Context) error {
	defer close(t.done)
	defer t.stopTickers()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("trigger stopped: %w", ctx.Err())
		case ev := <-t.events:
			if t.handle(ev) {
				return ErrReloaded
			}
		case <-tickC(t.elapsedTicker):
			t.elapsed++
			t.view.SetText(ElementTimer, runningText(t.elapsed))
		case res := <-t.results:
			t.complete(res)
		case <-tickC(t.reloadTicker):
			if t.countdownTick() {
				return ErrReloaded
			}
		}
	}
}

// handle reports whether the page reloaded.
func (t *Trigger) handle(ev event) bool {
	switch ev {
	case eventActivate:
		t.start()
	case eventViewError:
		if t.Phase() == PhaseFailed {
			t.presenter.PresentError(t.errDetail)
		}
	case eventReload:
		if t.Phase().Terminal() {
			t.doReload()
			return true
		}
	}
	return false
}

func (t *Trigger) start() {
	if t.view.Disabled(ElementRender) || t.Phase() != PhaseIdle {
		return
	}
	t.view.Disable(ElementRender)
	t.phase.Store(int32(PhaseRunning))

	t.elapsed = 0
	t.view.Show(ElementTimer)
	t.view.SetText(ElementTimer, runningText(0))
	t.elapsedTicker = t.tickers.NewTicker(t.params.Interval)

	req := t.buildRequest()
	t.logger.Info("render started",
		zap.String("from", req.From),
		zap.String("to", req.To),
		zap.String("preset", req.Preset),
	)
	go t.submit(req)
}

func (t *Trigger) buildRequest() render.Request {
	req := render.Request{
		From:   t.params.Source,
		To:     t.params.Target,
		Preset: t.view.Value(ElementPreset),
	}
	if token, ok := t.tokens.Token(); ok {
		req.Token = &token
	}
	return req
}

// submit runs outside the loop; the request itself is never cancelled.
func (t *Trigger) submit(req render.Request) {
	outcome, err := t.submitter.Submit(context.Background(), req)
	select {
	case t.results <- submitResult{outcome: outcome, err: err}:
	case <-t.done:
	}
}

func (t *Trigger) complete(res submitResult) {
	stopTicker(&t.elapsedTicker)
	t.view.SetText(ElementTimer, endedText(t.elapsed))

	switch {
	case res.err != nil:
		t.fail(errorDetail(res.err))
	case res.outcome.Failed:
		t.fail(string(res.outcome.Detail))
	default:
		t.succeed()
	}
}

func (t *Trigger) fail(detail string) {
	t.errDetail = detail
	t.phase.Store(int32(PhaseFailed))
	t.view.SetText(ElementFailed, failedMessage)
	t.view.Show(ElementFailed)
	t.view.Show(ElementViewError)
	t.view.Show(ElementReload)
	t.logger.Warn("render failed",
		zap.String("elapsed", FormatElapsed(t.elapsed)),
		zap.String("detail", detail),
	)
}

func (t *Trigger) succeed() {
	t.phase.Store(int32(PhaseSucceeded))
	t.view.SetText(ElementSuccess, successMessage)
	t.view.Show(ElementSuccess)
	t.view.Show(ElementReload)
	t.logger.Info("render completed", zap.String("elapsed", FormatElapsed(t.elapsed)))

	t.countdown = defaultCountdown
	t.reloadTicker = t.tickers.NewTicker(t.params.Interval)
}

// countdownTick shows the next label, 5 down to 0, and reloads on the tick that shows 0.
func (t *Trigger) countdownTick() bool {
	t.countdown--
	t.view.SetText(ElementReload, reloadText(t.countdown))
	if t.countdown > 0 {
		return false
	}
	t.doReload()
	return true
}

func (t *Trigger) doReload() {
	t.stopTickers()
	t.reloader.Reload()
}

func (t *Trigger) stopTickers() {
	stopTicker(&t.elapsedTicker)
	stopTicker(&t.reloadTicker)
}

func stopTicker(tk *Ticker) {
	if *tk != nil {
		(*tk).Stop()
		*tk = nil
	}
}

// tickC returns nil for a stopped ticker so its select case never fires.
func tickC(tk Ticker) <-chan time.Time {
	if tk == nil {
		return nil
	}
	return tk.C()
}

// errorDetail stringifies a transport failure as JSON.
func errorDetail(err error) string {
	var m json.Marshaler
	if errors.As(err, &m) {
		if b, mErr := m.MarshalJSON(); mErr == nil {
			return string(b)
		}
	}
	b, mErr := json.Marshal(map[string]string{"message": err.Error()})
	if mErr != nil {
		return "{}"
	}
	return string(b)
}
