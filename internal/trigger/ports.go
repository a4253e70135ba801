package trigger

import (
	"context"
	"encoding/json"
	"time"

	"github.com/JakeFAU/bluemap-render/internal/render"
)

// Outcome is the decoded result of a render request.
type Outcome struct {
	Failed bool
	// Detail is the raw JSON of the error kind when Failed.
	Detail json.RawMessage
}

// Success returns a successful Outcome.
func Success() Outcome {
	return Outcome{}
}

// Failure returns a failed Outcome carrying detail.
func Failure(detail json.RawMessage) Outcome {
	return Outcome{Failed: true, Detail: detail}
}

// Submitter issues the render request. A non-nil error means the request never produced
// a decodable response.
type Submitter interface {
	Submit(ctx context.Context, req render.Request) (Outcome, error)
}

// TokenProvider reads the session credential.
type TokenProvider interface {
	Token() (string, bool)
}

// Ticker delivers periodic ticks until stopped.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory starts tickers.
type TickerFactory interface {
	NewTicker(d time.Duration) Ticker
}

// Reloader performs a full page reload.
type Reloader interface {
	Reload()
}

// ErrorPresenter shows a stored error detail to the user.
type ErrorPresenter interface {
	PresentError(detail string)
}
