// Package account defines the store account entity bound to devices.
package account

import (
	"context"

	backend "github.com/DiOS-Analysis/Backend"
)

// Account is a store identity. It may be bound to any number of devices;
// devices reference it by UniqueIdentifier and never own it.
type Account struct {
	backend.Entity

	UniqueIdentifier string `json:"uniqueIdentifier"`
	AppleID          string `json:"appleId,omitempty"`
	StoreCountry     string `json:"storeCountry,omitempty"`
}

// Store defines the persistence contract for accounts.
type Store interface {
	// SaveAccount inserts or replaces the account with the same unique
	// identifier.
	SaveAccount(ctx context.Context, a *Account) error

	// GetAccount retrieves an account by unique identifier.
	GetAccount(ctx context.Context, uniqueIdentifier string) (*Account, error)

	// GetAccounts retrieves the accounts for the given identifiers in the
	// order given. Identifiers with no stored account are skipped.
	GetAccounts(ctx context.Context, uniqueIdentifiers []string) ([]*Account, error)

	// ListAccounts returns all accounts ordered by unique identifier.
	ListAccounts(ctx context.Context) ([]*Account, error)
}
