package natskv

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	backend "github.com/DiOS-Analysis/Backend"
	"github.com/DiOS-Analysis/Backend/account"
)

// SaveAccount inserts or replaces the account with the same unique
// identifier.
func (s *Store) SaveAccount(ctx context.Context, a *account.Account) error {
	key := naturalKey(a.UniqueIdentifier)

	for i := 0; i < maxCASRetries; i++ {
		rec := accountRecord{
			UniqueIdentifier: a.UniqueIdentifier,
			AppleID:          a.AppleID,
			StoreCountry:     a.StoreCountry,
			CreatedAt:        a.CreatedAt,
			UpdatedAt:        time.Now().UTC(),
		}
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = rec.UpdatedAt
		}

		var rev uint64
		entry, err := s.accounts.Get(ctx, key)
		switch {
		case err == nil:
			prev, decErr := decode[accountRecord](entry.Value())
			if decErr != nil {
				return fmt.Errorf("backend/natskv: decode account: %w", decErr)
			}
			rec.CreatedAt = prev.CreatedAt
			rev = entry.Revision()
		case !isNotFound(err):
			return fmt.Errorf("backend/natskv: get account: %w", err)
		}

		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("backend/natskv: encode account: %w", err)
		}
		if rev == 0 {
			_, err = s.accounts.Create(ctx, key, data)
		} else {
			_, err = s.accounts.Update(ctx, key, data, rev)
		}
		if err == nil {
			return nil
		}
		if !isConflict(err) {
			return fmt.Errorf("backend/natskv: save account: %w", err)
		}
	}
	return fmt.Errorf("backend/natskv: save account: %d revision conflicts on %s", maxCASRetries, a.UniqueIdentifier)
}

// GetAccount retrieves an account by unique identifier.
func (s *Store) GetAccount(ctx context.Context, uniqueIdentifier string) (*account.Account, error) {
	a, err := s.getAccount(ctx, uniqueIdentifier)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, backend.ErrAccountNotFound
	}
	return a, nil
}

// GetAccounts retrieves the accounts for the given identifiers in the order
// given, skipping unknown identifiers.
func (s *Store) GetAccounts(ctx context.Context, uniqueIdentifiers []string) ([]*account.Account, error) {
	out := make([]*account.Account, 0, len(uniqueIdentifiers))
	for _, uid := range uniqueIdentifiers {
		a, err := s.getAccount(ctx, uid)
		if err != nil {
			return nil, err
		}
		if a != nil {
			out = append(out, a)
		}
	}
	return out, nil
}

// ListAccounts returns all accounts ordered by unique identifier.
func (s *Store) ListAccounts(ctx context.Context) ([]*account.Account, error) {
	ks, err := keys(ctx, s.accounts)
	if err != nil {
		return nil, fmt.Errorf("backend/natskv: list account keys: %w", err)
	}

	accounts := make([]*account.Account, 0, len(ks))
	for _, k := range ks {
		entry, getErr := s.accounts.Get(ctx, k)
		if getErr != nil {
			if isNotFound(getErr) {
				continue
			}
			return nil, fmt.Errorf("backend/natskv: get account %s: %w", k, getErr)
		}
		rec, decErr := decode[accountRecord](entry.Value())
		if decErr != nil {
			return nil, fmt.Errorf("backend/natskv: decode account %s: %w", k, decErr)
		}
		accounts = append(accounts, rec.toAccount())
	}

	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].UniqueIdentifier < accounts[j].UniqueIdentifier
	})
	return accounts, nil
}

// getAccount returns nil without error when the account does not exist.
func (s *Store) getAccount(ctx context.Context, uid string) (*account.Account, error) {
	if uid == "" {
		return nil, nil
	}
	entry, err := s.accounts.Get(ctx, naturalKey(uid))
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("backend/natskv: get account: %w", err)
	}
	rec, err := decode[accountRecord](entry.Value())
	if err != nil {
		return nil, fmt.Errorf("backend/natskv: decode account: %w", err)
	}
	return rec.toAccount(), nil
}
