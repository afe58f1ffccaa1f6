// Package bunstore implements store.Store using the Bun ORM with the
// PostgreSQL dialect. It shares its schema with the pgx store, so either
// can be pointed at the same database.
//
// The caller owns the *bun.DB lifecycle and bunstore never closes it:
//
//	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
//	db := bun.NewDB(sqldb, pgdialect.New())
//	s := bunstore.New(db)
//	err := s.Migrate(ctx)
package bunstore
