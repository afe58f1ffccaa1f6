//go:build integration

package redis_test

import (
	"context"
	"errors"
	"testing"

	goredis "github.com/redis/go-redis/v9"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	backend "github.com/DiOS-Analysis/Backend"
	"github.com/DiOS-Analysis/Backend/id"
	"github.com/DiOS-Analysis/Backend/job"
	"github.com/DiOS-Analysis/Backend/store"
	"github.com/DiOS-Analysis/Backend/store/redis"
	"github.com/DiOS-Analysis/Backend/store/storetest"
)

// setupTestClient starts a Redis container and returns a connected client.
func setupTestClient(t *testing.T) *goredis.Client {
	t.Helper()

	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("start redis container: %v", err)
	}
	t.Cleanup(func() {
		if termErr := container.Terminate(ctx); termErr != nil {
			t.Logf("terminate container: %v", termErr)
		}
	})

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("get connection string: %v", err)
	}
	opts, err := goredis.ParseURL(uri)
	if err != nil {
		t.Fatalf("parse redis url: %v", err)
	}

	client := goredis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestConformance(t *testing.T) {
	client := setupTestClient(t)

	storetest.Run(t, func(t *testing.T) store.Store {
		t.Helper()
		ctx := context.Background()
		if err := client.FlushDB(ctx).Err(); err != nil {
			t.Fatalf("flushdb: %v", err)
		}
		s := redis.New(client)
		if err := s.Migrate(ctx); err != nil {
			t.Fatalf("migrate: %v", err)
		}
		return s
	})
}

func TestPairIndex(t *testing.T) {
	client := setupTestClient(t)
	ctx := context.Background()
	s := redis.New(client)
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	w := id.NewWorkerID()
	pk := "dios:pair:" + w.String() + ":dev-1"
	card := func() int64 {
		t.Helper()
		n, err := client.ZCard(ctx, pk).Result()
		if err != nil {
			t.Fatalf("zcard: %v", err)
		}
		return n
	}

	j := storetest.NewJob(job.TypeInstallApp, nil, 0)
	if err := s.CreateJob(ctx, j); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if _, err := s.ClaimJob(ctx, job.ClaimFilter{WorkerID: w, DeviceUDID: "dev-1"}); err != nil {
		t.Fatalf("ClaimJob: %v", err)
	}
	if n := card(); n != 1 {
		t.Fatalf("pair index after claim = %d, want 1", n)
	}
	if got, err := s.FindActiveJob(ctx, w, "dev-1"); err != nil || !got.ID.Equal(j.ID) {
		t.Fatalf("FindActiveJob = %v, %v", got, err)
	}

	if err := s.ReleaseJob(ctx, j.ID); err != nil {
		t.Fatalf("ReleaseJob: %v", err)
	}
	if n := card(); n != 0 {
		t.Errorf("pair index after release = %d, want 0", n)
	}
	if _, err := s.FindActiveJob(ctx, w, "dev-1"); !errors.Is(err, backend.ErrJobNotFound) {
		t.Errorf("FindActiveJob after release: %v", err)
	}

	// A stale entry left by an out-of-band write is pruned on read.
	if _, err := s.ClaimJob(ctx, job.ClaimFilter{WorkerID: w, DeviceUDID: "dev-1"}); err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if err := client.HSet(ctx, "dios:job:"+j.ID.String(), "worker_id", "", "device_id", "").Err(); err != nil {
		t.Fatalf("hset: %v", err)
	}
	if _, err := s.FindActiveJob(ctx, w, "dev-1"); !errors.Is(err, backend.ErrJobNotFound) {
		t.Errorf("FindActiveJob on stale entry: %v", err)
	}
	if n := card(); n != 0 {
		t.Errorf("pair index after prune = %d, want 0", n)
	}
}
