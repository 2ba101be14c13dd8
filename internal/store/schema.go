package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"mcpdocs/internal/docerr"
)

// EnsureSchema creates the tables and indexes the service needs if they do
// not already exist. dims is the embedding vector width for this deployment.
// Never destructive: existing tables are left alone.
func (s *Store) EnsureSchema(ctx context.Context, dims int) error {
	if dims <= 0 {
		return docerr.New(docerr.KindConfig, "invalid embedding dimensions %d", dims)
	}

	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,

		`CREATE TABLE IF NOT EXISTS packages (
			id SERIAL PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			version TEXT,
			last_updated TIMESTAMP NOT NULL DEFAULT NOW(),
			total_docs INT NOT NULL DEFAULT 0,
			total_tokens INT NOT NULL DEFAULT 0
		)`,

		`CREATE TABLE IF NOT EXISTS package_configs (
			id SERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			version_spec TEXT NOT NULL DEFAULT 'latest',
			current_version TEXT,
			features TEXT[] NOT NULL DEFAULT '{}',
			expected_docs INT NOT NULL DEFAULT 0,
			enabled BOOLEAN NOT NULL DEFAULT TRUE,
			last_checked TIMESTAMPTZ,
			last_populated TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE(name, version_spec)
		)`,

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS embeddings (
			id SERIAL PRIMARY KEY,
			package_id INT NOT NULL REFERENCES packages(id) ON DELETE CASCADE,
			package_name TEXT NOT NULL,
			doc_path TEXT NOT NULL,
			content TEXT NOT NULL,
			embedding vector(%d) NOT NULL,
			token_count INT NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			UNIQUE(package_name, doc_path)
		)`, dims),

		`CREATE TABLE IF NOT EXISTS ingestion_jobs (
			id SERIAL PRIMARY KEY,
			package_config_id INT NOT NULL REFERENCES package_configs(id) ON DELETE CASCADE,
			status TEXT NOT NULL DEFAULT 'pending',
			error_message TEXT,
			docs_populated INT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			started_at TIMESTAMPTZ,
			completed_at TIMESTAMPTZ
		)`,

		`CREATE INDEX IF NOT EXISTS idx_embeddings_package_name
			ON embeddings (package_name)`,

		`CREATE INDEX IF NOT EXISTS idx_embeddings_vector
			ON embeddings USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)`,

		`CREATE INDEX IF NOT EXISTS idx_ingestion_jobs_config
			ON ingestion_jobs (package_config_id, created_at DESC)`,
	}

	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return docerr.Wrap(docerr.KindStore, err, "applying schema")
		}
	}

	s.log.Info("schema ensured", zap.Int("vector_dims", dims))
	return nil
}
