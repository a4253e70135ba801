package trigger

import (
	"fmt"
	"net/http"
	"time"
)

const (
	logoutPrompt   = "You are about to logout."
	tokenCookie    = "token"
	userIDLocalKey = "userid"
)

// Confirmer asks the user a yes/no question.
type Confirmer interface {
	Confirm(prompt string) bool
}

// CookieJar stores cookies for the page origin.
type CookieJar interface {
	SetCookie(c *http.Cookie) error
}

// LocalStore is the page's persisted key/value storage.
type LocalStore interface {
	RemoveItem(key string) error
}

// Logout clears the session on confirmation and reloads the page.
type Logout struct {
	confirmer Confirmer
	cookies   CookieJar
	local     LocalStore
	reloader  Reloader
}

// NewLogout constructs a Logout.
func NewLogout(confirmer Confirmer, cookies CookieJar, local LocalStore, reloader Reloader) *Logout {
	return &Logout{confirmer: confirmer, cookies: cookies, local: local, reloader: reloader}
}

// Run reports whether the user confirmed and the session was cleared.
func (l *Logout) Run() (bool, error) {
	if !l.confirmer.Confirm(logoutPrompt) {
		return false, nil
	}
	if err := l.cookies.SetCookie(ExpiredTokenCookie()); err != nil {
		return false, fmt.Errorf("expire token cookie: %w", err)
	}
	if err := l.local.RemoveItem(userIDLocalKey); err != nil {
		return false, fmt.Errorf("remove %s: %w", userIDLocalKey, err)
	}
	l.reloader.Reload()
	return true, nil
}

// ExpiredTokenCookie is the empty, already-expired token cookie scoped to "/".
func ExpiredTokenCookie() *http.Cookie {
	return &http.Cookie{
		Name:    tokenCookie,
		Value:   "",
		Path:    "/",
		Expires: time.Unix(0, 0).UTC(),
	}
}
