package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	backend "github.com/DiOS-Analysis/Backend"
	"github.com/DiOS-Analysis/Backend/account"
)

// SaveAccount inserts or replaces the account with the same unique
// identifier.
func (s *Store) SaveAccount(ctx context.Context, a *account.Account) error {
	key := accountKey(a.UniqueIdentifier)
	created := a.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	pipe := s.client.TxPipeline()
	pipe.HSetNX(ctx, key, "created_at", formatTime(created))
	pipe.HSet(ctx, key,
		"unique_identifier", a.UniqueIdentifier,
		"apple_id", a.AppleID,
		"store_country", a.StoreCountry,
		"updated_at", formatTime(time.Now()),
	)
	pipe.ZAdd(ctx, accountIDsKey, goredis.Z{Score: 0, Member: a.UniqueIdentifier})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("backend/redis: save account: %w", err)
	}
	return nil
}

// GetAccount retrieves an account by unique identifier.
func (s *Store) GetAccount(ctx context.Context, uniqueIdentifier string) (*account.Account, error) {
	vals, err := s.client.HGetAll(ctx, accountKey(uniqueIdentifier)).Result()
	if err != nil {
		return nil, fmt.Errorf("backend/redis: get account: %w", err)
	}
	if len(vals) == 0 {
		return nil, backend.ErrAccountNotFound
	}
	return mapToAccount(vals), nil
}

// GetAccounts retrieves the accounts for the given identifiers in the order
// given, skipping unknown identifiers.
func (s *Store) GetAccounts(ctx context.Context, uniqueIdentifiers []string) ([]*account.Account, error) {
	keys := make([]string, len(uniqueIdentifiers))
	for i, uid := range uniqueIdentifiers {
		keys[i] = accountKey(uid)
	}
	hashes, err := s.hgetAll(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("backend/redis: get accounts: %w", err)
	}
	return collectAccounts(hashes), nil
}

// ListAccounts returns all accounts ordered by unique identifier.
func (s *Store) ListAccounts(ctx context.Context) ([]*account.Account, error) {
	uids, err := s.client.ZRange(ctx, accountIDsKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("backend/redis: list accounts: %w", err)
	}
	accounts, err := s.GetAccounts(ctx, uids)
	if err != nil {
		return nil, fmt.Errorf("backend/redis: list accounts: %w", err)
	}
	return accounts, nil
}

func collectAccounts(hashes []map[string]string) []*account.Account {
	out := make([]*account.Account, 0, len(hashes))
	for _, h := range hashes {
		if len(h) > 0 {
			out = append(out, mapToAccount(h))
		}
	}
	return out
}

func mapToAccount(m map[string]string) *account.Account {
	return &account.Account{
		Entity: backend.Entity{
			CreatedAt: parseTime(m["created_at"]),
			UpdatedAt: parseTime(m["updated_at"]),
		},
		UniqueIdentifier: m["unique_identifier"],
		AppleID:          m["apple_id"],
		StoreCountry:     m["store_country"],
	}
}
