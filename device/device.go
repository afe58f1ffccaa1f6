// Package device defines the target device entity, the read-only snapshot
// handed to the compatibility check, and the device store.
package device

import (
	"context"
	"slices"

	backend "github.com/DiOS-Analysis/Backend"
	"github.com/DiOS-Analysis/Backend/account"
)

// Device is a target execution environment identified by its udid.
// AccountIDs are weak references to accounts by unique identifier.
type Device struct {
	backend.Entity

	UDID       string         `json:"udid"`
	Info       map[string]any `json:"deviceInfo,omitempty"`
	AccountIDs []string       `json:"accounts"`
}

// Snapshot is an immutable view of a device and its resolved accounts at
// the time of a claim. It shares no memory with the stored device.
type Snapshot struct {
	UDID     string
	accounts []account.Account
}

// NewSnapshot copies the given accounts into a snapshot. Nil entries are
// skipped.
func NewSnapshot(udid string, accounts []*account.Account) Snapshot {
	s := Snapshot{UDID: udid, accounts: make([]account.Account, 0, len(accounts))}
	for _, a := range accounts {
		if a != nil {
			s.accounts = append(s.accounts, *a)
		}
	}
	return s
}

// Accounts returns a copy of the bound accounts.
func (s Snapshot) Accounts() []account.Account {
	return slices.Clone(s.accounts)
}

// HasAccount reports whether any bound account matches pred.
func (s Snapshot) HasAccount(pred func(account.Account) bool) bool {
	return slices.ContainsFunc(s.accounts, pred)
}

// ListOpts controls filtering for device list queries.
type ListOpts struct {
	// AccountID filters devices bound to this account. Empty means all.
	AccountID string
}

// Store defines the persistence contract for devices.
type Store interface {
	// SaveDevice inserts or replaces the device with the same udid.
	SaveDevice(ctx context.Context, d *Device) error

	// GetDevice retrieves a device by udid.
	GetDevice(ctx context.Context, udid string) (*Device, error)

	// ListDevices returns devices matching opts ordered by udid.
	ListDevices(ctx context.Context, opts ListOpts) ([]*Device, error)
}
