package natskv

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/DiOS-Analysis/Backend/store"
)

// Bucket names, before the optional prefix.
const (
	bucketJobs     = "dios_jobs"
	bucketWorkers  = "dios_workers"
	bucketDevices  = "dios_devices"
	bucketAccounts = "dios_accounts"
)

// maxCASRetries bounds read-modify-write loops on single keys.
const maxCASRetries = 16

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store is a NATS JetStream KV implementation of store.Store.
type Store struct {
	js      jetstream.JetStream
	prefix  string
	storage jetstream.StorageType
	logger  *slog.Logger

	jobs     jetstream.KeyValue
	workers  jetstream.KeyValue
	devices  jetstream.KeyValue
	accounts jetstream.KeyValue
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithBucketPrefix prefixes every bucket name, so several stores can share
// one JetStream account.
func WithBucketPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// WithMemoryStorage keeps buckets in memory instead of on disk.
func WithMemoryStorage() Option {
	return func(s *Store) { s.storage = jetstream.MemoryStorage }
}

// New creates the store and its buckets.
func New(ctx context.Context, js jetstream.JetStream, opts ...Option) (*Store, error) {
	s := &Store{
		js:      js,
		storage: jetstream.FileStorage,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.Migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Migrate creates or updates the KV buckets.
func (s *Store) Migrate(ctx context.Context) error {
	buckets := []struct {
		name string
		kv   *jetstream.KeyValue
	}{
		{bucketJobs, &s.jobs},
		{bucketWorkers, &s.workers},
		{bucketDevices, &s.devices},
		{bucketAccounts, &s.accounts},
	}
	for _, b := range buckets {
		cfg := jetstream.KeyValueConfig{
			Bucket:  s.prefix + b.name,
			Storage: s.storage,
		}
		kv, err := s.js.CreateOrUpdateKeyValue(ctx, cfg)
		if err != nil {
			return fmt.Errorf("backend/natskv: create bucket %s: %w", cfg.Bucket, err)
		}
		*b.kv = kv
		s.logger.Debug("ensured kv bucket", slog.String("bucket", cfg.Bucket))
	}
	return nil
}

// Ping checks JetStream availability.
func (s *Store) Ping(ctx context.Context) error {
	if _, err := s.js.AccountInfo(ctx); err != nil {
		return fmt.Errorf("backend/natskv: ping: %w", err)
	}
	return nil
}

// Close is a no-op because the caller owns the NATS connection.
func (s *Store) Close() error {
	return nil
}

// ── helpers ──

// naturalKey encodes a free-form identifier into the KV key alphabet.
func naturalKey(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}

// keys lists a bucket, treating an empty bucket as no keys.
func keys(ctx context.Context, kv jetstream.KeyValue) ([]string, error) {
	ks, err := kv.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, err
	}
	return ks, nil
}

// isConflict reports a failed revision check or a Create on an existing key.
func isConflict(err error) bool {
	if errors.Is(err, jetstream.ErrKeyExists) {
		return true
	}
	var apiErr *jetstream.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence
}

func isNotFound(err error) bool {
	return errors.Is(err, jetstream.ErrKeyNotFound)
}
