package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	backend "github.com/DiOS-Analysis/Backend"
	"github.com/DiOS-Analysis/Backend/account"
)

const accountColumns = `unique_identifier, apple_id, store_country, created_at, updated_at`

// SaveAccount inserts or replaces the account with the same unique
// identifier.
func (s *Store) SaveAccount(ctx context.Context, a *account.Account) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO dios_accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (unique_identifier) DO UPDATE SET
			apple_id = EXCLUDED.apple_id,
			store_country = EXCLUDED.store_country,
			updated_at = NOW()`,
		a.UniqueIdentifier, a.AppleID, a.StoreCountry, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("backend/postgres: save account: %w", err)
	}
	return nil
}

// GetAccount retrieves an account by unique identifier.
func (s *Store) GetAccount(ctx context.Context, uniqueIdentifier string) (*account.Account, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM dios_accounts WHERE unique_identifier = $1`,
		uniqueIdentifier,
	)
	a, err := scanAccount(row)
	if err != nil {
		if isNoRows(err) {
			return nil, backend.ErrAccountNotFound
		}
		return nil, fmt.Errorf("backend/postgres: get account: %w", err)
	}
	return a, nil
}

// GetAccounts retrieves the accounts for the given identifiers in the order
// given, skipping unknown identifiers.
func (s *Store) GetAccounts(ctx context.Context, uniqueIdentifiers []string) ([]*account.Account, error) {
	if len(uniqueIdentifiers) == 0 {
		return []*account.Account{}, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+accountColumns+` FROM dios_accounts WHERE unique_identifier = ANY($1)`,
		uniqueIdentifiers,
	)
	if err != nil {
		return nil, fmt.Errorf("backend/postgres: get accounts: %w", err)
	}
	defer rows.Close()

	found, err := collectAccounts(rows)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*account.Account, len(found))
	for _, a := range found {
		byID[a.UniqueIdentifier] = a
	}

	out := make([]*account.Account, 0, len(found))
	for _, uid := range uniqueIdentifiers {
		if a, ok := byID[uid]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

// ListAccounts returns all accounts ordered by unique identifier.
func (s *Store) ListAccounts(ctx context.Context) ([]*account.Account, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+accountColumns+` FROM dios_accounts ORDER BY unique_identifier ASC`)
	if err != nil {
		return nil, fmt.Errorf("backend/postgres: list accounts: %w", err)
	}
	defer rows.Close()

	return collectAccounts(rows)
}

func scanAccount(row pgx.Row) (*account.Account, error) {
	var a account.Account
	if err := row.Scan(&a.UniqueIdentifier, &a.AppleID, &a.StoreCountry, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

func collectAccounts(rows pgx.Rows) ([]*account.Account, error) {
	accounts := []*account.Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("backend/postgres: scan account row: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("backend/postgres: iterate account rows: %w", err)
	}
	return accounts, nil
}
