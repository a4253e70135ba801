// Package account models the users that own file trees and submit renders.
package account

import (
	"context"
	"errors"
	"slices"
)

// ErrNotFound is returned when no account matches the lookup.
var ErrNotFound = errors.New("account not found")

// ServiceBlue is the service name that owns the blue/ subtree.
const ServiceBlue = "blue"

// AccessFile grants another account read access to shared files.
const AccessFile = "file"

// Account is one user of the render service.
type Account struct {
	ID       int64
	Username string
	Token    string
	Verified bool
	Services []string
	// Limit names a jobs.limits profile; empty uses the global limits.
	Limit string
	// Access maps an access type to the account IDs it is granted to.
	Access map[string][]int64
}

// HasService reports whether service is enabled on the account.
func (a Account) HasService(service string) bool {
	return slices.Contains(a.Services, service)
}

// Grants reports whether the account grants accessType to accountID.
func (a Account) Grants(accessType string, accountID int64) bool {
	return slices.Contains(a.Access[accessType], accountID)
}

// Store looks accounts up and persists service enablement.
type Store interface {
	ByToken(ctx context.Context, token string) (Account, error)
	ByUsername(ctx context.Context, username string) (Account, error)
	EnableService(ctx context.Context, accountID int64, service string) error
}
