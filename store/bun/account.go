package bunstore

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	backend "github.com/DiOS-Analysis/Backend"
	"github.com/DiOS-Analysis/Backend/account"
)

// SaveAccount inserts or replaces the account with the same unique
// identifier.
func (s *Store) SaveAccount(ctx context.Context, a *account.Account) error {
	_, err := s.db.NewInsert().Model(toAccountModel(a)).
		On("CONFLICT (unique_identifier) DO UPDATE").
		Set("apple_id = EXCLUDED.apple_id").
		Set("store_country = EXCLUDED.store_country").
		Set("updated_at = NOW()").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("backend/bun: save account: %w", err)
	}
	return nil
}

// GetAccount retrieves an account by unique identifier.
func (s *Store) GetAccount(ctx context.Context, uniqueIdentifier string) (*account.Account, error) {
	m := new(accountModel)
	err := s.db.NewSelect().Model(m).
		Where("unique_identifier = ?", uniqueIdentifier).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, backend.ErrAccountNotFound
		}
		return nil, fmt.Errorf("backend/bun: get account: %w", err)
	}
	return fromAccountModel(m), nil
}

// GetAccounts retrieves the accounts for the given identifiers in the order
// given, skipping unknown identifiers.
func (s *Store) GetAccounts(ctx context.Context, uniqueIdentifiers []string) ([]*account.Account, error) {
	if len(uniqueIdentifiers) == 0 {
		return []*account.Account{}, nil
	}

	var models []accountModel
	err := s.db.NewSelect().Model(&models).
		Where("unique_identifier IN (?)", bun.In(uniqueIdentifiers)).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("backend/bun: get accounts: %w", err)
	}

	byID := make(map[string]*accountModel, len(models))
	for i := range models {
		byID[models[i].UniqueIdentifier] = &models[i]
	}
	out := make([]*account.Account, 0, len(models))
	for _, uid := range uniqueIdentifiers {
		if m, ok := byID[uid]; ok {
			out = append(out, fromAccountModel(m))
		}
	}
	return out, nil
}

// ListAccounts returns all accounts ordered by unique identifier.
func (s *Store) ListAccounts(ctx context.Context) ([]*account.Account, error) {
	var models []accountModel
	if err := s.db.NewSelect().Model(&models).Order("unique_identifier ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("backend/bun: list accounts: %w", err)
	}

	accounts := make([]*account.Account, 0, len(models))
	for i := range models {
		accounts = append(accounts, fromAccountModel(&models[i]))
	}
	return accounts, nil
}
