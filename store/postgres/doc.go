// Package postgres provides a PostgreSQL implementation of store.Store
// using pgx/v5. Claims are a single UPDATE over a FOR UPDATE SKIP LOCKED
// subquery, so concurrent claimants never block on or share a row.
package postgres
