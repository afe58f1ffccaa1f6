package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	backend "github.com/DiOS-Analysis/Backend"
	"github.com/DiOS-Analysis/Backend/id"
	"github.com/DiOS-Analysis/Backend/job"
)

// claimScript walks the open-jobs set newest first, assigns the first
// candidate to the caller and indexes it under the caller's pair.
//
// KEYS[1] open-jobs set, KEYS[2] pair index of the caller
// ARGV[1] worker id, ARGV[2] device udid, ARGV[3] timestamp,
// ARGV[4] job key prefix, ARGV[5..] excluded job ids
var claimScript = goredis.NewScript(`
local excluded = {}
for i = 5, #ARGV do
	excluded[ARGV[i]] = true
end
local ids = redis.call('ZREVRANGE', KEYS[1], 0, -1)
for _, id in ipairs(ids) do
	if not excluded[id] then
		local key = ARGV[4] .. id
		local f = redis.call('HMGET', key, 'worker_id', 'device_id', 'state')
		local w = f[1] or ''
		local d = f[2] or ''
		local st = f[3]
		if st and st ~= 'finished' and st ~= 'failed'
			and (w == '' or w == ARGV[1])
			and (d == '' or d == ARGV[2]) then
			redis.call('HSET', key, 'worker_id', ARGV[1], 'device_id', ARGV[2], 'updated_at', ARGV[3])
			redis.call('ZADD', KEYS[2], redis.call('ZSCORE', KEYS[1], id), id)
			return id
		end
	end
end
return false
`)

// releaseScript clears a job's assignment and drops it from the pair
// index it was filed under.
//
// KEYS[1] job hash
// ARGV[1] pair key prefix, ARGV[2] job id, ARGV[3] timestamp
var releaseScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return false
end
local f = redis.call('HMGET', KEYS[1], 'worker_id', 'device_id')
local w = f[1] or ''
local d = f[2] or ''
if w ~= '' and d ~= '' then
	redis.call('ZREM', ARGV[1] .. w .. ':' .. d, ARGV[2])
end
redis.call('HSET', KEYS[1], 'worker_id', '', 'device_id', '', 'updated_at', ARGV[3])
return 1
`)

// CreateJob stores the job as a Hash and indexes it.
func (s *Store) CreateJob(ctx context.Context, j *job.Job) error {
	jID := j.ID.String()
	key := jobKey(jID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("backend/redis: create job check exists: %w", err)
	}
	if exists > 0 {
		return backend.ErrJobAlreadyExists
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, jobToMap(j))
	pipe.ZAdd(ctx, jobIDsKey, goredis.Z{Score: score(j.CreatedAt), Member: jID})
	if !j.State.Terminal() {
		pipe.ZAdd(ctx, openJobsKey, goredis.Z{Score: score(j.CreatedAt), Member: jID})
	}
	if !j.WorkerID.IsNil() && j.DeviceUDID != "" {
		pipe.ZAdd(ctx, pairKey(j.WorkerID.String(), j.DeviceUDID), goredis.Z{Score: score(j.CreatedAt), Member: jID})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("backend/redis: create job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	vals, err := s.client.HGetAll(ctx, jobKey(jobID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("backend/redis: get job: %w", err)
	}
	if len(vals) == 0 {
		return nil, backend.ErrJobNotFound
	}
	return mapToJob(vals)
}

// ListJobs returns jobs matching opts, newest first.
func (s *Store) ListJobs(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	jobs, err := s.jobsNewestFirst(ctx, jobIDsKey)
	if err != nil {
		return nil, fmt.Errorf("backend/redis: list jobs: %w", err)
	}

	out := make([]*job.Job, 0, len(jobs))
	for _, j := range jobs {
		if len(opts.States) > 0 && !containsState(opts.States, j.State) {
			continue
		}
		if opts.Type != "" && j.Type != opts.Type {
			continue
		}
		out = append(out, j)
	}

	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return []*job.Job{}, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	return out, nil
}

// FindActiveJob returns the newest non-terminal job assigned to exactly
// this worker and device. It reads the pair index only and prunes entries
// whose job has since been released, finished or deleted.
func (s *Store) FindActiveJob(ctx context.Context, workerID id.WorkerID, udid string) (*job.Job, error) {
	if workerID.IsNil() || udid == "" {
		return nil, backend.ErrJobNotFound
	}

	pk := pairKey(workerID.String(), udid)
	ids, err := s.client.ZRevRange(ctx, pk, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("backend/redis: find active job: %w", err)
	}
	keys := make([]string, len(ids))
	for i, jID := range ids {
		keys[i] = jobKey(jID)
	}
	hashes, err := s.hgetAll(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("backend/redis: find active job: %w", err)
	}

	var (
		found *job.Job
		stale []any
	)
	for i, h := range hashes {
		if len(h) == 0 {
			stale = append(stale, ids[i])
			continue
		}
		j, convErr := mapToJob(h)
		if convErr != nil {
			return nil, convErr
		}
		if j.State.Terminal() || !j.AssignedTo(workerID, udid) {
			stale = append(stale, ids[i])
			continue
		}
		if found == nil {
			found = j
		}
	}
	if len(stale) > 0 {
		if err := s.client.ZRem(ctx, pk, stale...).Err(); err != nil {
			s.logger.Warn("prune pair index",
				slog.String("key", pk),
				slog.String("error", err.Error()),
			)
		}
	}
	if found == nil {
		return nil, backend.ErrJobNotFound
	}
	return found, nil
}

// ClaimJob runs the claim script and returns the assigned job.
func (s *Store) ClaimJob(ctx context.Context, f job.ClaimFilter) (*job.Job, error) {
	args := make([]any, 0, 4+len(f.Exclude))
	args = append(args, f.WorkerID.String(), f.DeviceUDID, formatTime(time.Now()), jobKeyPrefix)
	for _, ex := range f.ExcludeStrings() {
		args = append(args, ex)
	}

	keys := []string{openJobsKey, pairKey(f.WorkerID.String(), f.DeviceUDID)}
	jID, err := claimScript.Run(ctx, s.client, keys, args...).Text()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, backend.ErrJobNotFound
		}
		return nil, fmt.Errorf("backend/redis: claim job: %w", err)
	}

	vals, err := s.client.HGetAll(ctx, jobKey(jID)).Result()
	if err != nil {
		return nil, fmt.Errorf("backend/redis: claim job read back: %w", err)
	}
	return mapToJob(vals)
}

// ReleaseJob clears the assignment of a job.
func (s *Store) ReleaseJob(ctx context.Context, jobID id.JobID) error {
	jID := jobID.String()
	err := releaseScript.Run(ctx, s.client, []string{jobKey(jID)},
		pairKeyPrefix, jID, formatTime(time.Now()),
	).Err()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return backend.ErrJobNotFound
		}
		return fmt.Errorf("backend/redis: release job: %w", err)
	}
	return nil
}

// UpdateJobState sets the lifecycle state of a job and keeps the open-jobs
// index in step.
func (s *Store) UpdateJobState(ctx context.Context, jobID id.JobID, state job.State) error {
	jID := jobID.String()
	key := jobKey(jID)

	fields, err := s.client.HMGet(ctx, key, "created_at", "worker_id", "device_id").Result()
	if err != nil {
		return fmt.Errorf("backend/redis: update job state: %w", err)
	}
	created, ok := fields[0].(string)
	if !ok {
		return backend.ErrJobNotFound
	}
	workerID, _ := fields[1].(string)
	udid, _ := fields[2].(string)

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, "state", string(state), "updated_at", formatTime(time.Now()))
	if state.Terminal() {
		pipe.ZRem(ctx, openJobsKey, jID)
		if workerID != "" && udid != "" {
			pipe.ZRem(ctx, pairKey(workerID, udid), jID)
		}
	} else {
		z := goredis.Z{Score: score(parseTime(created)), Member: jID}
		pipe.ZAdd(ctx, openJobsKey, z)
		if workerID != "" && udid != "" {
			pipe.ZAdd(ctx, pairKey(workerID, udid), z)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("backend/redis: update job state: %w", err)
	}
	return nil
}

// ── helpers ──

// jobsNewestFirst loads every job indexed in set, newest first.
func (s *Store) jobsNewestFirst(ctx context.Context, set string) ([]*job.Job, error) {
	ids, err := s.client.ZRevRange(ctx, set, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(ids))
	for i, jID := range ids {
		keys[i] = jobKey(jID)
	}
	hashes, err := s.hgetAll(ctx, keys)
	if err != nil {
		return nil, err
	}

	jobs := make([]*job.Job, 0, len(hashes))
	for _, h := range hashes {
		if len(h) == 0 {
			continue
		}
		j, convErr := mapToJob(h)
		if convErr != nil {
			return nil, convErr
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

func containsState(states []job.State, st job.State) bool {
	for _, s := range states {
		if s == st {
			return true
		}
	}
	return false
}

func jobToMap(j *job.Job) map[string]any {
	info := map[string]any(j.Info)
	if info == nil {
		info = map[string]any{}
	}
	return map[string]any{
		"id":         j.ID.String(),
		"type":       string(j.Type),
		"state":      string(j.State),
		"job_info":   marshalJSON(info),
		"worker_id":  j.WorkerID.String(),
		"device_id":  j.DeviceUDID,
		"created_at": formatTime(j.CreatedAt),
		"updated_at": formatTime(j.UpdatedAt),
	}
}

func mapToJob(m map[string]string) (*job.Job, error) {
	jID, err := id.ParseJobID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("backend/redis: parse job id: %w", err)
	}
	workerID, err := id.ParseOptional(m["worker_id"], id.PrefixWorker)
	if err != nil {
		return nil, fmt.Errorf("backend/redis: parse worker id: %w", err)
	}

	info := job.Info(unmarshalObject(m["job_info"]))
	if info == nil {
		info = job.Info{}
	}

	return &job.Job{
		Entity: backend.Entity{
			CreatedAt: parseTime(m["created_at"]),
			UpdatedAt: parseTime(m["updated_at"]),
		},
		ID:         jID,
		Type:       job.Type(m["type"]),
		State:      job.State(m["state"]),
		Info:       info,
		WorkerID:   workerID,
		DeviceUDID: m["device_id"],
	}, nil
}
