// Package trigger drives the render page: it binds the start control to a single
// asynchronous render request, keeps an elapsed-seconds timer running while the request
// is outstanding, and settles the page into either the success state (with an automatic
// reload countdown) or the failure state (with an on-demand error detail).
//
// A Trigger owns all of its state inside one event-loop goroutine started by Run.
// Page affordances (Activate, ViewError, Reload) post events to that loop, tickers post
// ticks, and the outbound request posts its Outcome once; nothing else touches the
// counters or the View. A Trigger lives for exactly one page load: after a reload Run
// returns ErrReloaded and a fresh Trigger must be built.
//
// Logout implements the logout control. It has no state of its own.
package trigger
