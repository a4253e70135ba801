// Package session persists the terminal client's cookies and local flags in a YAML file.
package session

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Well-known keys.
const (
	TokenCookie = "token"
	UserIDKey   = "userid"
)

type document struct {
	Cookies map[string]string `yaml:"cookies,omitempty"`
	Local   map[string]string `yaml:"local,omitempty"`
}

// Store is a file-backed cookie jar and local store. The file is re-read on every call.
type Store struct {
	path string
	now  func() time.Time
	mu   sync.Mutex
}

// New returns a Store persisted at path. The file is created on first write.
func New(path string) *Store {
	return &Store{path: path, now: time.Now}
}

// Path returns the backing file.
func (s *Store) Path() string {
	return s.path
}

// Token returns the session token cookie.
func (s *Store) Token() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return "", false
	}
	token, ok := doc.Cookies[TokenCookie]
	if !ok || token == "" {
		return "", false
	}
	return token, true
}

// SetCookie stores c, or deletes it when c is already expired.
func (s *Store) SetCookie(c *http.Cookie) error {
	if c == nil || c.Name == "" {
		return fmt.Errorf("cookie name is required")
	}
	return s.update(func(doc *document) {
		if s.expired(c) {
			delete(doc.Cookies, c.Name)
			return
		}
		if doc.Cookies == nil {
			doc.Cookies = map[string]string{}
		}
		doc.Cookies[c.Name] = c.Value
	})
}

// SetItem stores a local flag.
func (s *Store) SetItem(key, value string) error {
	return s.update(func(doc *document) {
		if doc.Local == nil {
			doc.Local = map[string]string{}
		}
		doc.Local[key] = value
	})
}

// Item returns a local flag.
func (s *Store) Item(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return "", false
	}
	v, ok := doc.Local[key]
	return v, ok
}

// RemoveItem deletes a local flag. Removing a missing key is not an error.
func (s *Store) RemoveItem(key string) error {
	return s.update(func(doc *document) {
		delete(doc.Local, key)
	})
}

func (s *Store) expired(c *http.Cookie) bool {
	if c.MaxAge < 0 {
		return true
	}
	return !c.Expires.IsZero() && !c.Expires.After(s.now())
}

func (s *Store) update(fn func(*document)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return err
	}
	fn(&doc)
	return s.save(doc)
}

func (s *Store) load() (document, error) {
	var doc document
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return doc, fmt.Errorf("read session file: %w", err)
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("parse session file: %w", err)
	}
	return doc, nil
}

func (s *Store) save(doc document) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode session file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create session directory: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	return nil
}
