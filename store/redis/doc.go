// Package redis implements store.Store on Redis. Entities are Hashes,
// enumerated through Sorted Sets scored by creation time. Non-terminal jobs
// are additionally indexed in an open-jobs Sorted Set, which the claim
// script walks newest first. Each worker/device pair has its own Sorted
// Set of assigned jobs, so FindActiveJob reads only that pair's jobs; the
// claim and release scripts maintain it with the assignment.
//
// Claims run as a single Lua script, so Redis executes the candidate scan
// and the assignment without interleaving other commands. The script reads
// job hashes it does not declare, which requires a non-clustered server.
//
// Usage:
//
//	client := goredis.NewClient(&goredis.Options{Addr: "localhost:6379"})
//	s := redis.New(client)
//	if err := s.Ping(ctx); err != nil { ... }
package redis
