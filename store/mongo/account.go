package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	backend "github.com/DiOS-Analysis/Backend"
	"github.com/DiOS-Analysis/Backend/account"
)

// SaveAccount inserts or replaces the account with the same unique
// identifier.
func (s *Store) SaveAccount(ctx context.Context, a *account.Account) error {
	created := a.CreatedAt
	if created.IsZero() {
		created = now()
	}

	update := bson.M{
		"$set": bson.M{
			"apple_id":      a.AppleID,
			"store_country": a.StoreCountry,
			"updated_at":    now(),
		},
		"$setOnInsert": bson.M{"created_at": created},
	}
	_, err := s.db.Collection(colAccounts).UpdateOne(ctx,
		bson.M{"_id": a.UniqueIdentifier}, update, options.UpdateOne().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("backend/mongo: save account: %w", err)
	}
	return nil
}

// GetAccount retrieves an account by unique identifier.
func (s *Store) GetAccount(ctx context.Context, uniqueIdentifier string) (*account.Account, error) {
	var m accountModel
	err := s.db.Collection(colAccounts).FindOne(ctx, bson.M{"_id": uniqueIdentifier}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, backend.ErrAccountNotFound
		}
		return nil, fmt.Errorf("backend/mongo: get account: %w", err)
	}
	return fromAccountModel(&m), nil
}

// GetAccounts retrieves the accounts for the given identifiers in the order
// given, skipping unknown identifiers.
func (s *Store) GetAccounts(ctx context.Context, uniqueIdentifiers []string) ([]*account.Account, error) {
	if len(uniqueIdentifiers) == 0 {
		return []*account.Account{}, nil
	}

	models, err := s.findAccounts(ctx, bson.M{"_id": bson.M{"$in": uniqueIdentifiers}})
	if err != nil {
		return nil, fmt.Errorf("backend/mongo: get accounts: %w", err)
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
	models, err := s.findAccounts(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("backend/mongo: list accounts: %w", err)
	}
	accounts := make([]*account.Account, 0, len(models))
	for i := range models {
		accounts = append(accounts, fromAccountModel(&models[i]))
	}
	return accounts, nil
}

func (s *Store) findAccounts(ctx context.Context, filter bson.M) ([]accountModel, error) {
	cursor, err := s.db.Collection(colAccounts).Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var models []accountModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, err
	}
	return models, nil
}
