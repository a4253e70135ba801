// Package system provides the real clock and tickers.
package system

import (
	"time"

	"github.com/JakeFAU/bluemap-render/internal/trigger"
)

// Clock implements render.Clock using time.Now and trigger.TickerFactory using time.Ticker.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// NewTicker starts a wall-clock ticker.
func (Clock) NewTicker(d time.Duration) trigger.Ticker {
	return &ticker{t: time.NewTicker(d)}
}

type ticker struct {
	t *time.Ticker
}

func (t *ticker) C() <-chan time.Time { return t.t.C }

func (t *ticker) Stop() { t.t.Stop() }
