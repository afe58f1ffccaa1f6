package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	backend "github.com/DiOS-Analysis/Backend"
	"github.com/DiOS-Analysis/Backend/id"
	"github.com/DiOS-Analysis/Backend/job"
)

// newestFirst is the candidate ordering shared by claims and lists.
var newestFirst = bson.D{
	{Key: "created_at", Value: -1},
	{Key: "_id", Value: -1},
}

func terminalStates() []string {
	states := job.TerminalStates()
	out := make([]string, len(states))
	for i, st := range states {
		out[i] = string(st)
	}
	return out
}

// CreateJob persists a new job.
func (s *Store) CreateJob(ctx context.Context, j *job.Job) error {
	_, err := s.db.Collection(colJobs).InsertOne(ctx, toJobModel(j))
	if err != nil {
		if isDuplicateKey(err) {
			return backend.ErrJobAlreadyExists
		}
		return fmt.Errorf("backend/mongo: create job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	var m jobModel
	err := s.db.Collection(colJobs).FindOne(ctx, bson.M{"_id": jobID.String()}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, backend.ErrJobNotFound
		}
		return nil, fmt.Errorf("backend/mongo: get job: %w", err)
	}
	return fromJobModel(&m)
}

// ListJobs returns jobs matching opts, newest first.
func (s *Store) ListJobs(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	filter := bson.M{}
	if len(opts.States) > 0 {
		states := make([]string, len(opts.States))
		for i, st := range opts.States {
			states[i] = string(st)
		}
		filter["state"] = bson.M{"$in": states}
	}
	if opts.Type != "" {
		filter["type"] = string(opts.Type)
	}

	findOpts := options.Find().SetSort(newestFirst)
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		findOpts.SetSkip(int64(opts.Offset))
	}

	cursor, err := s.db.Collection(colJobs).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("backend/mongo: list jobs: %w", err)
	}
	defer cursor.Close(ctx)

	var models []jobModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("backend/mongo: decode jobs: %w", err)
	}

	jobs := make([]*job.Job, 0, len(models))
	for i := range models {
		j, convErr := fromJobModel(&models[i])
		if convErr != nil {
			return nil, convErr
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// FindActiveJob returns the newest non-terminal job assigned to exactly
// this worker and device.
func (s *Store) FindActiveJob(ctx context.Context, workerID id.WorkerID, udid string) (*job.Job, error) {
	if workerID.IsNil() || udid == "" {
		return nil, backend.ErrJobNotFound
	}

	filter := bson.M{
		"worker_id": workerID.String(),
		"device_id": udid,
		"state":     bson.M{"$nin": terminalStates()},
	}

	var m jobModel
	err := s.db.Collection(colJobs).
		FindOne(ctx, filter, options.FindOne().SetSort(newestFirst)).
		Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, backend.ErrJobNotFound
		}
		return nil, fmt.Errorf("backend/mongo: find active job: %w", err)
	}
	return fromJobModel(&m)
}

// ClaimJob assigns the newest candidate with FindOneAndUpdate. Both
// assignment clauses must hold; a job bound to another worker or another
// device is never a candidate.
func (s *Store) ClaimJob(ctx context.Context, f job.ClaimFilter) (*job.Job, error) {
	filter := bson.M{
		"worker_id": bson.M{"$in": bson.A{nil, "", f.WorkerID.String()}},
		"device_id": bson.M{"$in": bson.A{nil, "", f.DeviceUDID}},
		"state":     bson.M{"$nin": terminalStates()},
	}
	if len(f.Exclude) > 0 {
		filter["_id"] = bson.M{"$nin": f.ExcludeStrings()}
	}

	update := bson.M{
		"$set": bson.M{
			"worker_id":  f.WorkerID.String(),
			"device_id":  f.DeviceUDID,
			"updated_at": now(),
		},
	}

	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetSort(newestFirst)

	var m jobModel
	err := s.db.Collection(colJobs).FindOneAndUpdate(ctx, filter, update, opts).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, backend.ErrJobNotFound
		}
		return nil, fmt.Errorf("backend/mongo: claim job: %w", err)
	}
	return fromJobModel(&m)
}

// ReleaseJob clears the assignment of a job.
func (s *Store) ReleaseJob(ctx context.Context, jobID id.JobID) error {
	return s.updateJob(ctx, jobID, "release job", bson.M{
		"worker_id":  "",
		"device_id":  "",
		"updated_at": now(),
	})
}

// UpdateJobState sets the lifecycle state of a job.
func (s *Store) UpdateJobState(ctx context.Context, jobID id.JobID, state job.State) error {
	return s.updateJob(ctx, jobID, "update job state", bson.M{
		"state":      string(state),
		"updated_at": now(),
	})
}

func (s *Store) updateJob(ctx context.Context, jobID id.JobID, op string, set bson.M) error {
	res, err := s.db.Collection(colJobs).UpdateOne(ctx,
		bson.M{"_id": jobID.String()},
		bson.M{"$set": set},
	)
	if err != nil {
		return fmt.Errorf("backend/mongo: %s: %w", op, err)
	}
	if res.MatchedCount == 0 {
		return backend.ErrJobNotFound
	}
	return nil
}
