// Package memory provides an in-memory account store seeded from configuration.
package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/JakeFAU/bluemap-render/internal/account"
)

// Store keeps accounts in maps keyed by ID.
type Store struct {
	mu       sync.RWMutex
	accounts map[int64]account.Account
}

// NewStore seeds a Store with accounts.
func NewStore(accounts ...account.Account) *Store {
	s := &Store{accounts: make(map[int64]account.Account, len(accounts))}
	for _, a := range accounts {
		s.accounts[a.ID] = clone(a)
	}
	return s
}

// ByToken implements account.Store.
func (s *Store) ByToken(_ context.Context, token string) (account.Account, error) {
	if token == "" {
		return account.Account{}, account.ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.accounts {
		if a.Token == token {
			return clone(a), nil
		}
	}
	return account.Account{}, account.ErrNotFound
}

// ByUsername implements account.Store. Usernames match case-insensitively.
func (s *Store) ByUsername(_ context.Context, username string) (account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.accounts {
		if strings.EqualFold(a.Username, username) {
			return clone(a), nil
		}
	}
	return account.Account{}, account.ErrNotFound
}

// EnableService implements account.Store.
func (s *Store) EnableService(_ context.Context, accountID int64, service string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return fmt.Errorf("enable %s for %d: %w", service, accountID, account.ErrNotFound)
	}
	if !a.HasService(service) {
		a.Services = append(slices.Clone(a.Services), service)
		s.accounts[accountID] = a
	}
	return nil
}

func clone(a account.Account) account.Account {
	a.Services = slices.Clone(a.Services)
	if a.Access != nil {
		access := make(map[string][]int64, len(a.Access))
		for k, v := range a.Access {
			access[k] = slices.Clone(v)
		}
		a.Access = access
	}
	return a
}
