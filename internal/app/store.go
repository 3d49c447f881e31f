package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"maritimeacademy/site-admin/internal/config"
	"maritimeacademy/site-admin/internal/docstore"
	"maritimeacademy/site-admin/internal/migrations"
)

// Storage is an open document store and the connections behind it.
type Storage struct {
	Store *docstore.Store
	// Migrations is set only for the postgres backend.
	Migrations *migrations.Service

	db    *sql.DB
	mongo *mongo.Client
}

// OpenStore connects the backend cfg selects. For postgres, pending
// migrations are applied before the store is used.
func OpenStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger, opts ...docstore.StoreOption) (*Storage, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Storage{}
	var backend docstore.Backend

	switch cfg.Backend {
	case config.StoreFile:
		fb, err := docstore.NewFileBackend(cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("open file store: %w", err)
		}
		backend = fb
	case config.StoreMemory:
		backend = docstore.NewMemoryBackend()
	case config.StorePostgres:
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		s.db = db
		if err := db.PingContext(ctx); err != nil {
			_ = s.Close(ctx)
			return nil, fmt.Errorf("ping database: %w", err)
		}
		svc, err := migrations.NewService(db)
		if err != nil {
			_ = s.Close(ctx)
			return nil, fmt.Errorf("create migration service: %w", err)
		}
		applied, err := svc.Apply(ctx)
		if err != nil {
			_ = s.Close(ctx)
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
		if len(applied) > 0 {
			logger.Info("migrations applied", "names", applied)
		}
		s.Migrations = svc
		pb, err := docstore.NewPostgresBackend(db)
		if err != nil {
			_ = s.Close(ctx)
			return nil, fmt.Errorf("create postgres store: %w", err)
		}
		backend = pb
	case config.StoreMongo:
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		s.mongo = client
		if err := client.Ping(ctx, nil); err != nil {
			_ = s.Close(ctx)
			return nil, fmt.Errorf("ping mongo: %w", err)
		}
		mb, err := docstore.NewMongoBackend(client.Database(cfg.MongoDBName))
		if err != nil {
			_ = s.Close(ctx)
			return nil, fmt.Errorf("create mongo store: %w", err)
		}
		backend = mb
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}

	store, err := docstore.NewStore(backend, opts...)
	if err != nil {
		_ = s.Close(ctx)
		return nil, err
	}
	s.Store = store
	logger.Info("document store ready", "backend", cfg.Backend)
	return s, nil
}

// DB is the SQL handle for the postgres backend, nil otherwise.
func (s *Storage) DB() *sql.DB {
	return s.db
}

func (s *Storage) Close(ctx context.Context) error {
	var errs []error
	if s.db != nil {
		errs = append(errs, s.db.Close())
		s.db = nil
	}
	if s.mongo != nil {
		errs = append(errs, s.mongo.Disconnect(ctx))
		s.mongo = nil
	}
	return errors.Join(errs...)
}
