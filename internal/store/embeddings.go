package store

import (
	"context"

	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"mcpdocs/internal/docerr"
)

// EmbeddingRow is one chunk of documentation ready for insertion.
type EmbeddingRow struct {
	DocPath    string
	Content    string
	Embedding  []float32
	TokenCount int
}

// SearchResult is one hit from a similarity search.
type SearchResult struct {
	DocPath    string
	Content    string
	Similarity float64
}

// InsertEmbeddingsBatch upserts all rows for a package in a single
// transaction, then refreshes the package's aggregate counters from the
// stored rows. Readers never observe a partial batch.
func (s *Store) InsertEmbeddingsBatch(ctx context.Context, packageID int, packageName string, rows []EmbeddingRow) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return docerr.Wrap(docerr.KindStore, err, "beginning embeddings transaction")
	}
	defer tx.Rollback(ctx)

	for _, row := range rows {
		_, err := tx.Exec(ctx, `
			INSERT INTO embeddings
				(package_id, package_name, doc_path, content, embedding, token_count, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, NOW())
			ON CONFLICT (package_name, doc_path) DO UPDATE SET
				package_id = EXCLUDED.package_id,
				content = EXCLUDED.content,
				embedding = EXCLUDED.embedding,
				token_count = EXCLUDED.token_count,
				created_at = NOW()`,
			packageID, packageName, row.DocPath, row.Content,
			pgvector.NewVector(row.Embedding), row.TokenCount)
		if err != nil {
			return docerr.Wrap(docerr.KindStore, err, "inserting embedding for %s%s", packageName, row.DocPath)
		}
	}

	// Aggregates stay consistent with the rows inside the same transaction.
	_, err = tx.Exec(ctx, `
		UPDATE packages SET
			total_docs = (SELECT COUNT(*) FROM embeddings WHERE package_id = $1),
			total_tokens = (SELECT COALESCE(SUM(token_count), 0) FROM embeddings WHERE package_id = $1),
			last_updated = NOW()
		WHERE id = $1`, packageID)
	if err != nil {
		return docerr.Wrap(docerr.KindStore, err, "refreshing stats for package %d", packageID)
	}

	if err := tx.Commit(ctx); err != nil {
		return docerr.Wrap(docerr.KindStore, err, "committing embeddings batch")
	}

	s.log.Info("embeddings batch committed",
		zap.String("package", packageName), zap.Int("rows", len(rows)))
	return nil
}

// SearchSimilar returns up to k documents for the package ordered by
// ascending cosine distance to the query vector. Similarity is 1 - distance.
func (s *Store) SearchSimilar(ctx context.Context, packageName string, query []float32, k int) ([]SearchResult, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT doc_path, content, 1 - (embedding <=> $2) AS similarity
		FROM embeddings
		WHERE package_name = $1
		ORDER BY embedding <=> $2
		LIMIT $3`,
		packageName, pgvector.NewVector(query), k)
	if err != nil {
		return nil, docerr.Wrap(docerr.KindStore, err, "searching embeddings for %q", packageName)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.DocPath, &r.Content, &r.Similarity); err != nil {
			return nil, docerr.Wrap(docerr.KindStore, err, "scanning search result")
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, docerr.Wrap(docerr.KindStore, err, "searching embeddings for %q", packageName)
	}
	return out, nil
}
