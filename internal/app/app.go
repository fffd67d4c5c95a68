// Package app wires configuration into the rule-set store, provider and
// validator shared by the server and the command-line tools.
package app

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"invoicecheck/internal/config"
	"invoicecheck/internal/engine"
	"invoicecheck/internal/metrics"
	"invoicecheck/internal/port"
	"invoicecheck/internal/repository/postgres"
	"invoicecheck/internal/ruleset"
	s3storage "invoicecheck/internal/storage/s3"
)

// Store is an opened rule-set store and the resources behind it.
type Store struct {
	port.RuleSetStore
	// DB is set for the postgres source.
	DB *sqlx.DB
	// Repo is set when the store can publish definitions.
	Repo port.RuleSetRepository
	// Objects is set for the s3 source.
	Objects *ruleset.ObjectStore
}

// Close releases the database connection, if any.
func (s *Store) Close() error {
	if s.DB != nil {
		return s.DB.Close()
	}
	return nil
}

// OpenStore opens the rule-set store selected by cfg.RuleSet.Source.
func OpenStore(cfg *config.Config) (*Store, error) {
	switch cfg.RuleSet.Source {
	case config.SourceEmbedded, "":
		return &Store{RuleSetStore: ruleset.NewEmbeddedStore()}, nil

	case config.SourceDir:
		st, err := ruleset.NewDirStore(cfg.RuleSet.Dir, cfg.RuleSet.Active)
		if err != nil {
			return nil, fmt.Errorf("app.OpenStore: %w", err)
		}
		return &Store{RuleSetStore: st}, nil

	case config.SourcePostgres:
		db, err := postgres.NewDB(&cfg.DB)
		if err != nil {
			return nil, fmt.Errorf("app.OpenStore: %w", err)
		}
		repo := postgres.NewRuleSetRepo(db)
		return &Store{RuleSetStore: repo, DB: db, Repo: repo}, nil

	case config.SourceS3:
		client, err := s3storage.NewS3Client(&cfg.S3)
		if err != nil {
			return nil, fmt.Errorf("app.OpenStore: %w", err)
		}
		objects := ruleset.NewObjectStore(client, cfg.S3.Bucket, cfg.S3.Prefix, cfg.RuleSet.Active)
		return &Store{RuleSetStore: objects, Objects: objects}, nil

	default:
		return nil, fmt.Errorf("app.OpenStore: unknown rule-set source %q", cfg.RuleSet.Source)
	}
}

// NewProvider creates a caching provider over store.
func NewProvider(cfg *config.RuleSetConfig, store port.RuleSetStore) *ruleset.Provider {
	return ruleset.NewProvider(store, ruleset.WithCache(cfg.CacheSize, cfg.CacheTTL))
}

// EngineOptions translates engine configuration into validator options.
// m may be nil.
func EngineOptions(cfg *config.EngineConfig, log zerolog.Logger, m *metrics.Metrics) []engine.Option {
	opts := []engine.Option{
		engine.WithTimeout(cfg.Timeout),
		engine.WithMaxDocumentBytes(cfg.MaxDocumentBytes),
		engine.WithMaxDepth(cfg.MaxDepth),
		engine.WithRuleParallelism(cfg.RuleParallelism),
		engine.WithParallelChecks(cfg.ParallelChecks),
		engine.WithLogger(log),
	}
	if m != nil {
		opts = append(opts, engine.WithMetrics(m))
	}
	return opts
}
