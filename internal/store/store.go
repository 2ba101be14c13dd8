// Package store persists packages, package configurations, embeddings and
// ingestion jobs in Postgres, and answers cosine-similarity top-k searches
// over the embeddings through pgvector.
package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
	"go.uber.org/zap"

	"mcpdocs/internal/docerr"
	"mcpdocs/internal/logging"
)

// Pool sizing mirrors the operational limits the service runs under.
const (
	poolMaxConns        = 10
	poolMaxConnIdleTime = 300 * time.Second
	poolMaxConnLifetime = 1800 * time.Second
	poolAcquireTimeout  = 30 * time.Second
)

// Store wraps a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

// New connects to the database and returns a Store. The pool registers the
// pgvector codec on every new connection.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, docerr.Wrap(docerr.KindConfig, err, "parsing database URL")
	}
	cfg.MaxConns = poolMaxConns
	cfg.MaxConnIdleTime = poolMaxConnIdleTime
	cfg.MaxConnLifetime = poolMaxConnLifetime
	cfg.ConnConfig.ConnectTimeout = poolAcquireTimeout
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, docerr.Wrap(docerr.KindStore, err, "creating connection pool")
	}

	pingCtx, cancel := context.WithTimeout(ctx, poolAcquireTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, docerr.Wrap(docerr.KindStore, err, "connecting to database")
	}

	return &Store{pool: pool, log: logging.Get(logging.CategoryStore)}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return docerr.Wrap(docerr.KindStore, err, "ping failed")
	}
	return nil
}
