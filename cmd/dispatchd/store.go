package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	goredis "github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/DiOS-Analysis/Backend/config"
	"github.com/DiOS-Analysis/Backend/store"
	bunstore "github.com/DiOS-Analysis/Backend/store/bun"
	"github.com/DiOS-Analysis/Backend/store/memory"
	mongostore "github.com/DiOS-Analysis/Backend/store/mongo"
	"github.com/DiOS-Analysis/Backend/store/natskv"
	"github.com/DiOS-Analysis/Backend/store/postgres"
	redisstore "github.com/DiOS-Analysis/Backend/store/redis"
)

// openStore connects the configured backend. cleanup releases the
// connection the store was built on; it runs after the store is closed.
func openStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (store.Store, func(), error) {
	noop := func() {}

	switch cfg.Kind {
	case config.StoreMemory:
		return memory.New(), noop, nil

	case config.StorePostgres:
		s, err := postgres.New(ctx, cfg.PostgresDSN, postgres.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		return s, noop, nil

	case config.StoreBun:
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.PostgresDSN)))
		db := bun.NewDB(sqldb, pgdialect.New())
		return bunstore.New(db, bunstore.WithLogger(logger)), func() { _ = db.Close() }, nil

	case config.StoreMongo:
		client, err := mongod.Connect(options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, nil, fmt.Errorf("connect mongo: %w", err)
		}
		cleanup := func() { _ = client.Disconnect(context.Background()) }
		s := mongostore.New(client.Database(cfg.MongoDatabase), mongostore.WithLogger(logger))
		return s, cleanup, nil

	case config.StoreRedis:
		client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		return redisstore.New(client, redisstore.WithLogger(logger)), func() { _ = client.Close() }, nil

	case config.StoreNATSKV:
		nc, err := nats.Connect(cfg.NATSURL, nats.Name("dispatchd"))
		if err != nil {
			return nil, nil, fmt.Errorf("connect nats: %w", err)
		}
		js, err := jetstream.New(nc)
		if err != nil {
			nc.Close()
			return nil, nil, fmt.Errorf("jetstream: %w", err)
		}
		s, err := natskv.New(ctx, js, natskv.WithLogger(logger), natskv.WithBucketPrefix(cfg.NATSBucket))
		if err != nil {
			nc.Close()
			return nil, nil, err
		}
		return s, func() { _ = nc.Drain() }, nil
	}
	return nil, nil, fmt.Errorf("unknown store kind %q", cfg.Kind)
}
