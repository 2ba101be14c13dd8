package store

import (
	"context"
	"time"

	"mcpdocs/internal/docerr"
)

// PackageStats is one row of the aggregate package listing.
type PackageStats struct {
	Name        string
	Version     *string
	LastUpdated time.Time
	TotalDocs   int
	TotalTokens int
}

// UpsertPackage inserts or updates a package row and returns its id.
// A nil version leaves the stored version untouched; last_updated is always
// bumped.
func (s *Store) UpsertPackage(ctx context.Context, name string, version *string) (int, error) {
	var id int
	err := s.pool.QueryRow(ctx, `
		INSERT INTO packages (name, version, last_updated)
		VALUES ($1, $2, NOW())
		ON CONFLICT (name) DO UPDATE SET
			version = COALESCE(EXCLUDED.version, packages.version),
			last_updated = NOW()
		RETURNING id`,
		name, version).Scan(&id)
	if err != nil {
		return 0, docerr.Wrap(docerr.KindStore, err, "upserting package %q", name)
	}
	return id, nil
}

// HasEmbeddings reports whether any embedding exists for the package.
func (s *Store) HasEmbeddings(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM embeddings WHERE package_name = $1)`,
		name).Scan(&exists)
	if err != nil {
		return false, docerr.Wrap(docerr.KindStore, err, "checking embeddings for %q", name)
	}
	return exists, nil
}

// ListPackagesWithEmbeddings returns the distinct package names that have at
// least one embedding, ordered by name.
func (s *Store) ListPackagesWithEmbeddings(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT package_name FROM embeddings ORDER BY package_name`)
	if err != nil {
		return nil, docerr.Wrap(docerr.KindStore, err, "listing packages with embeddings")
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, docerr.Wrap(docerr.KindStore, err, "scanning package name")
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, docerr.Wrap(docerr.KindStore, err, "listing packages with embeddings")
	}
	return names, nil
}

// CountDocuments returns the number of embedding rows for the package.
func (s *Store) CountDocuments(ctx context.Context, name string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM embeddings WHERE package_name = $1`,
		name).Scan(&count)
	if err != nil {
		return 0, docerr.Wrap(docerr.KindStore, err, "counting documents for %q", name)
	}
	return count, nil
}

// DeleteEmbeddings removes all embedding rows for the package and returns
// how many were deleted.
func (s *Store) DeleteEmbeddings(ctx context.Context, name string) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM embeddings WHERE package_name = $1`, name)
	if err != nil {
		return 0, docerr.Wrap(docerr.KindStore, err, "deleting embeddings for %q", name)
	}
	return tag.RowsAffected(), nil
}

// AggregateStats returns per-package documentation statistics, ordered by
// name.
func (s *Store) AggregateStats(ctx context.Context) ([]PackageStats, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT name, version, last_updated, total_docs, total_tokens
		FROM packages ORDER BY name`)
	if err != nil {
		return nil, docerr.Wrap(docerr.KindStore, err, "querying package stats")
	}
	defer rows.Close()

	var out []PackageStats
	for rows.Next() {
		var p PackageStats
		if err := rows.Scan(&p.Name, &p.Version, &p.LastUpdated, &p.TotalDocs, &p.TotalTokens); err != nil {
			return nil, docerr.Wrap(docerr.KindStore, err, "scanning package stats")
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, docerr.Wrap(docerr.KindStore, err, "querying package stats")
	}
	return out, nil
}
