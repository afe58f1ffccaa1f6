// Package id defines TypeID-based identity types for jobs and workers.
//
// IDs are K-sortable (UUIDv7-based) strings of the form "prefix_suffix".
// Devices and accounts keep their natural keys (udid, unique identifier)
// and do not use this package.
package id

import (
	"database/sql/driver"
	"errors"
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix identifies the entity type encoded in a TypeID.
type Prefix string

const (
	PrefixJob    Prefix = "job"
	PrefixWorker Prefix = "wkr"
)

// ErrPrefixMismatch is returned when an ID of the wrong entity type is
// parsed, e.g. a job ID passed where a worker ID is expected.
var ErrPrefixMismatch = errors.New("id: prefix mismatch")

// ID wraps a TypeID. The zero value is Nil and marks an unset reference,
// such as the worker of an unclaimed job.
//
//nolint:recvcheck // UnmarshalText and Scan need pointer receivers.
type ID struct {
	tid typeid.TypeID
	set bool
}

// Nil is the unset ID.
var Nil ID

// JobID identifies a job (prefix "job").
type JobID = ID

// WorkerID identifies a worker (prefix "wkr").
type WorkerID = ID

// New generates an ID with the given prefix. It panics on a prefix that
// TypeID rejects, which only a programming error can produce.
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: generate %q: %v", prefix, err))
	}
	return ID{tid: tid, set: true}
}

// NewJobID generates a job ID.
func NewJobID() ID { return New(PrefixJob) }

// NewWorkerID generates a worker ID.
func NewWorkerID() ID { return New(PrefixWorker) }

// Parse decodes an ID of any prefix. The empty string is an error.
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, errors.New("id: parse: empty string")
	}
	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}
	return ID{tid: tid, set: true}, nil
}

// ParseWithPrefix decodes s and checks its prefix.
func ParseWithPrefix(s string, want Prefix) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}
	if got := parsed.Prefix(); got != want {
		return Nil, fmt.Errorf("%w: want %q, got %q", ErrPrefixMismatch, want, got)
	}
	return parsed, nil
}

// ParseOptional is ParseWithPrefix with the empty string decoding to Nil.
// Stores use it for optional references.
func ParseOptional(s string, want Prefix) (ID, error) {
	if s == "" {
		return Nil, nil
	}
	return ParseWithPrefix(s, want)
}

// MustParse is Parse that panics. Tests and fixtures only.
func MustParse(s string) ID {
	parsed, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return parsed
}

// ParseJobID decodes a job ID.
func ParseJobID(s string) (ID, error) { return ParseWithPrefix(s, PrefixJob) }

// ParseWorkerID decodes a worker ID.
func ParseWorkerID(s string) (ID, error) { return ParseWithPrefix(s, PrefixWorker) }

// String returns the "prefix_suffix" form, or "" for Nil.
func (i ID) String() string {
	if !i.set {
		return ""
	}
	return i.tid.String()
}

// Prefix returns the entity prefix, or "" for Nil.
func (i ID) Prefix() Prefix {
	if !i.set {
		return ""
	}
	return Prefix(i.tid.Prefix())
}

// IsNil reports whether the ID is unset.
func (i ID) IsNil() bool { return !i.set }

// Equal reports whether both IDs denote the same entity. Two Nil IDs are
// equal.
func (i ID) Equal(other ID) bool { return i.String() == other.String() }

// MarshalText implements encoding.TextMarshaler. Nil encodes as "".
func (i ID) MarshalText() ([]byte, error) { return []byte(i.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler. "" decodes to Nil.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil
		return nil
	}
	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}

// Value implements driver.Valuer. Nil is stored as the empty string so
// claim predicates can compare references with plain equality.
func (i ID) Value() (driver.Value, error) { return i.String(), nil }

// Scan implements sql.Scanner.
func (i *ID) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*i = Nil
		return nil
	case string:
		return i.UnmarshalText([]byte(v))
	case []byte:
		return i.UnmarshalText(v)
	}
	return fmt.Errorf("id: cannot scan %T into ID", src)
}
