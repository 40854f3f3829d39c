package db

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// Options selects and addresses a storage backend.
type Options struct {
	Type        string // memory, mongo or postgres
	MongoURI    string
	MongoDB     string
	PostgresURL string
}

// SeedStore is a store that can also be seeded.
type SeedStore interface {
	Store
	Seeder
}

// Open connects the selected backend, preparing indexes or running migrations
// as needed. The returned closer releases its connections.
func Open(ctx context.Context, opts Options) (SeedStore, func() error, error) {
	switch opts.Type {
	case "mongo":
		client, err := ConnectMongo(opts.MongoURI)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to MongoDB: %w", err)
		}
		closer := func() error { return client.Disconnect(context.Background()) }

		store, err := NewMongoStore(ctx, client, opts.MongoDB)
		if err != nil {
			closer()
			return nil, nil, fmt.Errorf("open MongoDB store: %w", err)
		}
		var base *MongoStore
		switch s := store.(type) {
		case *MongoTxStore:
			base = s.MongoStore
		case *MongoStore:
			base = s
		}
		if err := base.EnsureIndexes(ctx); err != nil {
			closer()
			return nil, nil, err
		}
		_, tx := store.(AtomicRenewer)
		log.WithFields(log.Fields{"database": opts.MongoDB, "transactions": tx}).Info("Connected to MongoDB")
		return store.(SeedStore), closer, nil

	case "postgres":
		conn, err := ConnectPostgres(opts.PostgresURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to PostgreSQL: %w", err)
		}
		if err := RunMigrations(conn); err != nil {
			conn.Close()
			return nil, nil, err
		}
		log.Info("Connected to PostgreSQL")
		store := NewPostgresStore(conn)
		return store, store.Close, nil

	case "memory", "":
		return NewMemoryStore(), func() error { return nil }, nil

	default:
		return nil, nil, fmt.Errorf("unknown store type %q", opts.Type)
	}
}
