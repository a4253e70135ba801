package session

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/bluemap-render/internal/trigger"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "nested", "session.yaml"))
}

func TestTokenAbsentWithoutFile(t *testing.T) {
	t.Parallel()

	_, ok := newStore(t).Token()
	assert.False(t, ok)
}

func TestSetCookieAndToken(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	require.NoError(t, s.SetCookie(&http.Cookie{Name: TokenCookie, Value: "abc123", Path: "/"}))

	token, ok := s.Token()
	require.True(t, ok)
	assert.Equal(t, "abc123", token)

	reopened := New(s.Path())
	token, ok = reopened.Token()
	require.True(t, ok)
	assert.Equal(t, "abc123", token)

	info, err := os.Stat(s.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestExpiredCookieRemovesToken(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	require.NoError(t, s.SetCookie(&http.Cookie{Name: TokenCookie, Value: "abc123"}))
	require.NoError(t, s.SetCookie(trigger.ExpiredTokenCookie()))

	_, ok := s.Token()
	assert.False(t, ok)
}

func TestMaxAgeNegativeExpires(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	require.NoError(t, s.SetCookie(&http.Cookie{Name: "theme", Value: "dark"}))
	require.NoError(t, s.SetCookie(&http.Cookie{Name: "theme", MaxAge: -1}))
	doc, err := s.load()
	require.NoError(t, err)
	assert.NotContains(t, doc.Cookies, "theme")
}

func TestFutureExpiryKeepsCookie(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	require.NoError(t, s.SetCookie(&http.Cookie{Name: TokenCookie, Value: "t", Expires: time.Now().Add(time.Hour)}))
	_, ok := s.Token()
	assert.True(t, ok)
}

func TestLocalItems(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	require.NoError(t, s.RemoveItem(UserIDKey))
	require.NoError(t, s.SetItem(UserIDKey, "42"))
	v, ok := s.Item(UserIDKey)
	require.True(t, ok)
	assert.Equal(t, "42", v)

	require.NoError(t, s.RemoveItem(UserIDKey))
	_, ok = s.Item(UserIDKey)
	assert.False(t, ok)
}

func TestLogoutAgainstStore(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	require.NoError(t, s.SetCookie(&http.Cookie{Name: TokenCookie, Value: "abc"}))
	require.NoError(t, s.SetItem(UserIDKey, "7"))

	reloaded := false
	ok, err := trigger.NewLogout(yes{}, s, s, reloaderFunc(func() { reloaded = true })).Run()
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, reloaded)

	_, hasToken := s.Token()
	_, hasUser := s.Item(UserIDKey)
	assert.False(t, hasToken)
	assert.False(t, hasUser)
}

func TestCorruptFile(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(s.Path()), 0o700))
	require.NoError(t, os.WriteFile(s.Path(), []byte("cookies: [unterminated"), 0o600))

	_, ok := s.Token()
	assert.False(t, ok)
	assert.Error(t, s.SetItem("k", "v"))
	assert.Error(t, s.SetCookie(&http.Cookie{}))
}

type yes struct{}

func (yes) Confirm(string) bool { return true }

type reloaderFunc func()

func (f reloaderFunc) Reload() { f() }
