package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	backend "github.com/DiOS-Analysis/Backend"
	"github.com/DiOS-Analysis/Backend/account"
	"github.com/DiOS-Analysis/Backend/compat"
	"github.com/DiOS-Analysis/Backend/device"
	"github.com/DiOS-Analysis/Backend/ext"
	"github.com/DiOS-Analysis/Backend/id"
	"github.com/DiOS-Analysis/Backend/job"
	mw "github.com/DiOS-Analysis/Backend/middleware"
	"github.com/DiOS-Analysis/Backend/observability"
	"github.com/DiOS-Analysis/Backend/worker"
)

const instrumentationName = "github.com/DiOS-Analysis/Backend"

// releaseTimeout bounds a rollback. Rollbacks run detached from the
// caller's context so a landed claim is always undone.
const releaseTimeout = 5 * time.Second

// Outcome is the successful result kind of a claim.
type Outcome string

const (
	// OutcomeResumed means the pair already owned an unfinished job.
	OutcomeResumed Outcome = "resumed"
	// OutcomeClaimed means a job was newly assigned to the pair.
	OutcomeClaimed Outcome = "claimed"
	// OutcomeNoJobAvailable means no compatible candidate was found.
	OutcomeNoJobAvailable Outcome = "no_job_available"
)

// String returns the outcome's text form.
func (o Outcome) String() string { return string(o) }

// Claim is the result of ClaimJob. Job is nil when Outcome is
// OutcomeNoJobAvailable. Attempts counts the atomic claims issued,
// including the ones rolled back.
type Claim struct {
	Outcome  Outcome  `json:"outcome"`
	Job      *job.Job `json:"job,omitempty"`
	Attempts int      `json:"attempts"`
}

// Engine wraps a Dispatcher with typed store access.
// Use Build() to create one from a Dispatcher.
type Engine struct {
	d          *backend.Dispatcher
	extensions *ext.Registry
	logger     *slog.Logger
	config     backend.Config

	jobs     job.Store
	workers  worker.Store
	devices  device.Store
	accounts account.Store

	mws   []mw.Middleware
	chain mw.Middleware

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures an Engine.
type Option func(*Engine)

// WithExtension registers an extension with the engine.
func WithExtension(e ext.Extension) Option {
	return func(eng *Engine) {
		eng.extensions.Register(e)
	}
}

// WithMiddleware adds middleware around every claim, inside the default
// stack.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) {
		eng.mws = append(eng.mws, m)
	}
}

// WithTracerProvider sets a custom OTel TracerProvider for the engine.
// If not set, the global otel.GetTracerProvider() is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) {
		eng.tracerProvider = tp
	}
}

// WithMeterProvider sets a custom OTel MeterProvider for both the claim
// metrics middleware and the observability extension.
// If not set, the global otel.GetMeterProvider() is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) {
		eng.meterProvider = mp
	}
}

// Build creates an Engine from an existing Dispatcher. The Dispatcher's
// store must implement job.Store, worker.Store, device.Store and
// account.Store.
func Build(d *backend.Dispatcher, opts ...Option) (*Engine, error) {
	logger := d.Logger()
	store := d.Store()

	if store == nil {
		return nil, backend.ErrNoStore
	}

	js, ok := store.(job.Store)
	if !ok {
		return nil, fmt.Errorf("engine: store does not implement job.Store")
	}
	ws, ok := store.(worker.Store)
	if !ok {
		return nil, fmt.Errorf("engine: store does not implement worker.Store")
	}
	ds, ok := store.(device.Store)
	if !ok {
		return nil, fmt.Errorf("engine: store does not implement device.Store")
	}
	as, ok := store.(account.Store)
	if !ok {
		return nil, fmt.Errorf("engine: store does not implement account.Store")
	}

	eng := &Engine{
		d:          d,
		extensions: ext.NewRegistry(logger),
		logger:     logger,
		config:     d.Config(),
		jobs:       js,
		workers:    ws,
		devices:    ds,
		accounts:   as,
	}

	for _, opt := range opts {
		opt(eng)
	}

	var tracingMw, metricsMw mw.Middleware
	if eng.tracerProvider != nil {
		tracingMw = mw.TracingWithTracer(eng.tracerProvider.Tracer(instrumentationName))
	} else {
		tracingMw = mw.Tracing()
	}
	if eng.meterProvider != nil {
		metricsMw = mw.MetricsWithMeter(eng.meterProvider.Meter(instrumentationName))
		eng.extensions.Register(observability.NewMetricsExtensionWithMeter(
			eng.meterProvider.Meter(instrumentationName + "/observability"),
		))
	} else {
		metricsMw = mw.Metrics()
		eng.extensions.Register(observability.NewMetricsExtension())
	}

	// Default stack: recover → tracing → metrics → logging → timeout.
	all := []mw.Middleware{
		mw.Recover(logger),
		tracingMw,
		metricsMw,
		mw.Logging(logger),
		mw.Timeout(logger, eng.config.ClaimTimeout),
	}
	all = append(all, eng.mws...)
	eng.chain = mw.Chain(all...)

	return eng, nil
}

// ──────────────────────────────────────────────────
// Claim protocol
// ──────────────────────────────────────────────────

// ClaimJob hands the (workerID, udid) pair a job. It returns an error
// wrapping backend.ErrWorkerNotFound or backend.ErrDeviceNotFound when
// either side does not resolve, a wrapped store error on store failure and
// the context error when ctx is done between attempts. An empty candidate
// set is reported as OutcomeNoJobAvailable, not as an error.
func (eng *Engine) ClaimJob(ctx context.Context, workerID id.WorkerID, udid string) (*Claim, error) {
	call := &mw.Call{WorkerID: workerID, DeviceUDID: udid}

	var claim *Claim
	err := eng.chain(ctx, call, func(ctx context.Context) error {
		var err error
		claim, err = eng.claim(ctx, workerID, udid)
		if err != nil {
			return err
		}
		call.Outcome = claim.Outcome.String()
		call.Attempts = claim.Attempts
		if claim.Job != nil {
			call.JobID = claim.Job.ID
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claim, nil
}

func (eng *Engine) claim(ctx context.Context, workerID id.WorkerID, udid string) (*Claim, error) {
	// Resolve both sides before touching the job collection.
	if _, err := eng.workers.GetWorker(ctx, workerID); err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			eng.logger.Debug("claim for unknown worker", slog.String("worker_id", workerID.String()))
		}
		return nil, fmt.Errorf("engine: resolve worker %q: %w", workerID, err)
	}
	snap, err := eng.snapshot(ctx, udid)
	if err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			eng.logger.Debug("claim for unknown device", slog.String("device_udid", udid))
		}
		return nil, fmt.Errorf("engine: resolve device %q: %w", udid, err)
	}

	active, err := eng.jobs.FindActiveJob(ctx, workerID, udid)
	switch {
	case err == nil:
		eng.extensions.EmitJobResumed(ctx, active)
		return &Claim{Outcome: OutcomeResumed, Job: active}, nil
	case !errors.Is(err, backend.ErrJobNotFound):
		return nil, fmt.Errorf("engine: find active job: %w", err)
	}

	var (
		exclude  []id.JobID
		attempts int
		limit    = eng.config.MaxClaimAttempts
	)
	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("engine: claim interrupted after %d attempts: %w", attempts, err)
		}

		attempts++
		j, err := eng.jobs.ClaimJob(ctx, job.ClaimFilter{
			WorkerID:   workerID,
			DeviceUDID: udid,
			Exclude:    exclude,
		})
		if errors.Is(err, backend.ErrJobNotFound) {
			eng.extensions.EmitNoJobAvailable(ctx, workerID, udid, attempts)
			return &Claim{Outcome: OutcomeNoJobAvailable, Attempts: attempts}, nil
		}
		if err != nil {
			return nil, fmt.Errorf("engine: claim job: %w", err)
		}

		if compat.IsCompatible(j, snap) {
			eng.extensions.EmitJobClaimed(ctx, j, attempts)
			return &Claim{Outcome: OutcomeClaimed, Job: j, Attempts: attempts}, nil
		}

		if err := eng.release(ctx, j.ID); err != nil {
			return nil, fmt.Errorf("engine: release job %s: %w", j.ID, err)
		}
		exclude = append(exclude, j.ID)
		eng.logger.Debug("incompatible job released",
			slog.String("job_id", j.ID.String()),
			slog.String("device_udid", udid),
			slog.Int("attempt", attempts),
		)
		eng.extensions.EmitClaimRejected(ctx, j, udid)

		if limit > 0 && len(exclude) >= limit {
			eng.logger.Warn("claim attempt cap reached",
				slog.String("worker_id", workerID.String()),
				slog.String("device_udid", udid),
				slog.Int("attempts", attempts),
			)
			eng.extensions.EmitClaimExhausted(ctx, workerID, udid, attempts)
			return &Claim{Outcome: OutcomeNoJobAvailable, Attempts: attempts}, nil
		}
	}
}

// release clears the assignment of an incompatible job. It ignores
// cancellation of ctx: the claim already landed and must not stay visible.
func (eng *Engine) release(ctx context.Context, jobID id.JobID) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	return eng.jobs.ReleaseJob(ctx, jobID)
}

// snapshot resolves a device and its bound accounts. Accounts that no
// longer exist are skipped.
func (eng *Engine) snapshot(ctx context.Context, udid string) (device.Snapshot, error) {
	d, err := eng.devices.GetDevice(ctx, udid)
	if err != nil {
		return device.Snapshot{}, err
	}
	accounts, err := eng.accounts.GetAccounts(ctx, d.AccountIDs)
	if err != nil {
		return device.Snapshot{}, fmt.Errorf("resolve accounts: %w", err)
	}
	return device.NewSnapshot(d.UDID, accounts), nil
}

// ──────────────────────────────────────────────────
// Registration
// ──────────────────────────────────────────────────

// CreateJob validates and persists j.
func (eng *Engine) CreateJob(ctx context.Context, j *job.Job) error {
	if err := j.Validate(); err != nil {
		return err
	}
	if err := eng.jobs.CreateJob(ctx, j); err != nil {
		return err
	}
	eng.extensions.EmitJobCreated(ctx, j)
	return nil
}

// UpdateJobState sets the lifecycle state reported by an agent.
func (eng *Engine) UpdateJobState(ctx context.Context, jobID id.JobID, state job.State) error {
	if _, err := job.ParseState(string(state)); err != nil {
		return err
	}
	if err := eng.jobs.UpdateJobState(ctx, jobID, state); err != nil {
		return err
	}
	eng.extensions.EmitJobStateChanged(ctx, jobID, state)
	return nil
}

// RegisterWorker creates a worker with a fresh ID.
func (eng *Engine) RegisterWorker(ctx context.Context, name string) (*worker.Worker, error) {
	w := worker.New(name)
	if err := eng.workers.CreateWorker(ctx, w); err != nil {
		return nil, err
	}
	eng.logger.Info("worker registered",
		slog.String("worker_id", w.ID.String()),
		slog.String("name", name),
	)
	return w, nil
}

// Stop notifies extensions of shutdown. The store is closed by the
// Dispatcher owner.
func (eng *Engine) Stop(ctx context.Context) error {
	eng.extensions.EmitShutdown(ctx)
	return nil
}

// ──────────────────────────────────────────────────
// Accessors
// ──────────────────────────────────────────────────

// Extensions returns the extension registry.
func (eng *Engine) Extensions() *ext.Registry { return eng.extensions }

// Dispatcher returns the underlying Dispatcher.
func (eng *Engine) Dispatcher() *backend.Dispatcher { return eng.d }

// Jobs returns the job store.
func (eng *Engine) Jobs() job.Store { return eng.jobs }

// Workers returns the worker store.
func (eng *Engine) Workers() worker.Store { return eng.workers }

// Devices returns the device store.
func (eng *Engine) Devices() device.Store { return eng.devices }

// Accounts returns the account store.
func (eng *Engine) Accounts() account.Store { return eng.accounts }
