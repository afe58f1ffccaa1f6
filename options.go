package backend

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Option configures a Dispatcher.
type Option func(*Dispatcher) error

// Storer is the minimal store interface held by the Dispatcher. It covers
// lifecycle operations only; the engine type-asserts the entity stores it
// needs. Implementations typically satisfy store.Store.
type Storer interface {
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Dispatcher carries configuration, logger and store shared by the engine
// and the HTTP layer. Create one with New and hand it to engine.Build.
type Dispatcher struct {
	config Config
	logger *slog.Logger
	store  Storer
}

// New creates a new Dispatcher with the given options.
func New(opts ...Option) (*Dispatcher, error) {
	d := &Dispatcher{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Logger returns the dispatcher's logger.
func (d *Dispatcher) Logger() *slog.Logger { return d.logger }

// Store returns the dispatcher's store.
func (d *Dispatcher) Store() Storer { return d.store }

// Config returns a copy of the dispatcher's configuration.
func (d *Dispatcher) Config() Config { return d.config }

// Close closes the underlying store.
func (d *Dispatcher) Close() error {
	if d.store == nil {
		return nil
	}
	return d.store.Close()
}

// WithLogger sets the structured logger for the dispatcher.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) error {
		d.logger = l
		return nil
	}
}

// WithStore sets the persistence backend for the dispatcher.
func WithStore(s Storer) Option {
	return func(d *Dispatcher) error {
		d.store = s
		return nil
	}
}

// WithMaxClaimAttempts caps the rollback-and-retry loop of one claim.
// Zero disables the cap.
func WithMaxClaimAttempts(n int) Option {
	return func(d *Dispatcher) error {
		if n < 0 {
			return fmt.Errorf("backend: max claim attempts must not be negative, got %d", n)
		}
		d.config.MaxClaimAttempts = n
		return nil
	}
}

// WithClaimTimeout bounds the duration of a single claim.
func WithClaimTimeout(d time.Duration) Option {
	return func(dp *Dispatcher) error {
		if d < 0 {
			return fmt.Errorf("backend: claim timeout must not be negative, got %s", d)
		}
		dp.config.ClaimTimeout = d
		return nil
	}
}

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(d *Dispatcher) error {
		if cfg.MaxClaimAttempts < 0 {
			return fmt.Errorf("backend: max claim attempts must not be negative, got %d", cfg.MaxClaimAttempts)
		}
		if cfg.ClaimTimeout < 0 {
			return fmt.Errorf("backend: claim timeout must not be negative, got %s", cfg.ClaimTimeout)
		}
		d.config = cfg
		return nil
	}
}
