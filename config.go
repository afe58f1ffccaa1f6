package backend

import "time"

// DefaultMaxClaimAttempts bounds the rollback-and-retry loop of a single
// claim when no explicit limit is configured.
const DefaultMaxClaimAttempts = 256

// Config holds configuration for the Dispatcher.
type Config struct {
	// MaxClaimAttempts is the number of incompatible claims one ClaimJob
	// call may roll back before it reports that no job is available.
	// Zero means unbounded.
	MaxClaimAttempts int

	// ClaimTimeout bounds one ClaimJob call. Zero means the caller's
	// context alone decides.
	ClaimTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxClaimAttempts: DefaultMaxClaimAttempts,
	}
}
