package job

import (
	"errors"
	"fmt"

	backend "github.com/DiOS-Analysis/Backend"
	"github.com/DiOS-Analysis/Backend/id"
)

var (
	// ErrUnknownType is returned when decoding a job type outside the
	// closed enumeration.
	ErrUnknownType = errors.New("job: unknown type")
	// ErrUnknownState is returned when decoding a job state outside the
	// closed enumeration.
	ErrUnknownState = errors.New("job: unknown state")
)

// Type is the kind of work a job describes.
type Type string

const (
	// TypeRunApp executes an installed application on the device. It is
	// the only type whose Info constraints are enforced when claiming.
	TypeRunApp Type = "run_app"
	// TypeInstallApp installs an application on the device.
	TypeInstallApp Type = "install_app"
)

// Types returns every job type in declaration order.
func Types() []Type { return []Type{TypeRunApp, TypeInstallApp} }

// ParseType decodes the canonical text form of a job type.
func ParseType(s string) (Type, error) {
	switch t := Type(s); t {
	case TypeRunApp, TypeInstallApp:
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownType, s)
}

// String implements fmt.Stringer.
func (t Type) String() string { return string(t) }

// MarshalText implements encoding.TextMarshaler.
func (t Type) MarshalText() ([]byte, error) {
	if _, err := ParseType(string(t)); err != nil {
		return nil, err
	}
	return []byte(t), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. It rejects any value
// outside the enumeration.
func (t *Type) UnmarshalText(data []byte) error {
	parsed, err := ParseType(string(data))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// State represents the lifecycle state of a job.
type State string

const (
	// StateUndefined is the state of a job created without an explicit state.
	StateUndefined State = "undefined"
	// StatePending means the job is waiting to be claimed.
	StatePending State = "pending"
	// StateRunning means the executing agent reported the job as started.
	StateRunning State = "running"
	// StateFinished means the job completed. Terminal.
	StateFinished State = "finished"
	// StateFailed means the job failed. Terminal.
	StateFailed State = "failed"
)

// States returns every job state in declaration order.
func States() []State {
	return []State{StateUndefined, StatePending, StateRunning, StateFinished, StateFailed}
}

// TerminalStates returns the states that make a job ineligible for claiming.
func TerminalStates() []State { return []State{StateFinished, StateFailed} }

// ParseState decodes the canonical text form of a job state.
func ParseState(s string) (State, error) {
	switch st := State(s); st {
	case StateUndefined, StatePending, StateRunning, StateFinished, StateFailed:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownState, s)
}

// Terminal reports whether the state is finished or failed.
func (s State) Terminal() bool {
	return s == StateFinished || s == StateFailed
}

// String implements fmt.Stringer.
func (s State) String() string { return string(s) }

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	if _, err := ParseState(string(s)); err != nil {
		return nil, err
	}
	return []byte(s), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. It rejects any value
// outside the enumeration.
func (s *State) UnmarshalText(data []byte) error {
	parsed, err := ParseState(string(data))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Job is a unit of work executed by a worker on a device.
//
// WorkerID and DeviceUDID are weak references: they hold the identity of
// the claimant only and are resolved through the worker and device stores.
// They are set together by a claim and cleared together by a rollback.
// Claiming never changes State.
type Job struct {
	backend.Entity

	ID         id.JobID    `json:"id"`
	Type       Type        `json:"type"`
	State      State       `json:"state"`
	Info       Info        `json:"jobInfo"`
	WorkerID   id.WorkerID `json:"worker,omitempty"`
	DeviceUDID string      `json:"device,omitempty"`
}

// New returns a pending job of the given type with a fresh ID.
func New(t Type, info Info) *Job {
	if info == nil {
		info = Info{}
	}
	return &Job{
		Entity: backend.NewEntity(),
		ID:     id.NewJobID(),
		Type:   t,
		State:  StatePending,
		Info:   info,
	}
}

// Assigned reports whether the job currently carries a claimant.
func (j *Job) Assigned() bool {
	return !j.WorkerID.IsNil() || j.DeviceUDID != ""
}

// AssignedTo reports whether the job is assigned to exactly this pair.
func (j *Job) AssignedTo(workerID id.WorkerID, udid string) bool {
	return j.WorkerID.Equal(workerID) && j.DeviceUDID == udid
}

// Validate checks the closed enumerations of a job before it is stored.
func (j *Job) Validate() error {
	if _, err := ParseType(string(j.Type)); err != nil {
		return err
	}
	if _, err := ParseState(string(j.State)); err != nil {
		return err
	}
	return nil
}
