// Package ingest orchestrates one package's ingestion: crawl the
// documentation, embed the documents, and persist the vectors, recording the
// attempt in a durable job row.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"mcpdocs/internal/crawler"
	"mcpdocs/internal/embedding"
	"mcpdocs/internal/logging"
	"mcpdocs/internal/store"
)

// ErrNoDocuments is returned when a crawl yields nothing to embed. The job
// row still records a completed run with zero documents.
var ErrNoDocuments = errors.New("no documents found")

// DocLoader is the crawling capability the pipeline consumes.
type DocLoader interface {
	Crawl(ctx context.Context, packageName, versionSpec string, features []string, maxPages int) (*crawler.Result, error)
}

// Store is the subset of store operations the pipeline uses.
type Store interface {
	UpsertPackage(ctx context.Context, name string, version *string) (int, error)
	InsertEmbeddingsBatch(ctx context.Context, packageID int, packageName string, rows []store.EmbeddingRow) error
	CreateJob(ctx context.Context, configID int) (int, error)
	UpdateJob(ctx context.Context, jobID int, status string, errMsg *string, docs *int) error
	MarkPopulated(ctx context.Context, configID int, currentVersion *string) error
}

// Tokenizer counts tokens for the rows stored alongside each embedding.
type Tokenizer func(text string) (int, error)

// Timings breaks the ingestion down by phase.
type Timings struct {
	Crawl time.Duration
	Embed time.Duration
	Store time.Duration
}

// Result summarises a completed ingestion.
type Result struct {
	DocumentsLoaded     int
	EmbeddingsGenerated int
	// TotalTokens is what the embedding provider charged, not the stored
	// per-row counts.
	TotalTokens   uint64
	Version       string
	ContentSizeKB int
	Timings       Timings
}

// Pipeline runs ingestions.
type Pipeline struct {
	loader    DocLoader
	provider  embedding.Provider
	store     Store
	tokenizer Tokenizer
	log       *zap.Logger
}

// New creates a Pipeline. tokenizer may be nil, in which case stored token
// counts are zero.
func New(loader DocLoader, provider embedding.Provider, st Store, tokenizer Tokenizer) *Pipeline {
	return &Pipeline{
		loader:    loader,
		provider:  provider,
		store:     st,
		tokenizer: tokenizer,
		log:       logging.Get(logging.CategoryIngest),
	}
}

// Ingest runs the full pipeline for one package config, bounded by maxPages.
// A job row tracks the attempt: pending on creation, running while active,
// completed or failed terminally.
func (p *Pipeline) Ingest(ctx context.Context, cfg store.PackageConfig, maxPages int) (*Result, error) {
	jobID, err := p.store.CreateJob(ctx, cfg.ID)
	if err != nil {
		return nil, err
	}
	return p.IngestJob(ctx, jobID, cfg, maxPages)
}

// IngestJob runs the pipeline against an already-created pending job. Used
// when the caller creates the job row before spawning the ingestion task.
func (p *Pipeline) IngestJob(ctx context.Context, jobID int, cfg store.PackageConfig, maxPages int) (*Result, error) {
	if err := p.store.UpdateJob(ctx, jobID, store.JobStatusRunning, nil, nil); err != nil {
		return nil, err
	}

	result, err := p.run(ctx, cfg, maxPages)
	if err != nil {
		if errors.Is(err, ErrNoDocuments) {
			// A clean crawl that found nothing is a completed run.
			zero := 0
			if uerr := p.store.UpdateJob(ctx, jobID, store.JobStatusCompleted, nil, &zero); uerr != nil {
				p.log.Error("failed to complete empty job", zap.Int("job_id", jobID), zap.Error(uerr))
			}
			return nil, err
		}
		msg := err.Error()
		if uerr := p.store.UpdateJob(ctx, jobID, store.JobStatusFailed, &msg, nil); uerr != nil {
			p.log.Error("failed to mark job failed", zap.Int("job_id", jobID), zap.Error(uerr))
		}
		return nil, err
	}

	docs := result.EmbeddingsGenerated
	if err := p.store.UpdateJob(ctx, jobID, store.JobStatusCompleted, nil, &docs); err != nil {
		p.log.Error("failed to complete job", zap.Int("job_id", jobID), zap.Error(err))
	}
	return result, nil
}

func (p *Pipeline) run(ctx context.Context, cfg store.PackageConfig, maxPages int) (*Result, error) {
	timer := logging.StartTimer(logging.CategoryIngest, "ingest "+cfg.Name)
	defer timer.Stop()

	result := &Result{}

	crawlStart := time.Now()
	crawled, err := p.loader.Crawl(ctx, cfg.Name, cfg.VersionSpec, cfg.Features, maxPages)
	if err != nil {
		return nil, fmt.Errorf("crawling %s: %w", cfg.Name, err)
	}
	result.Timings.Crawl = time.Since(crawlStart)
	result.DocumentsLoaded = len(crawled.Documents)
	result.Version = crawled.Version

	if len(crawled.Documents) == 0 {
		return nil, fmt.Errorf("%w for %s", ErrNoDocuments, cfg.Name)
	}

	contentBytes := 0
	for _, d := range crawled.Documents {
		contentBytes += len(d.Content)
	}
	result.ContentSizeKB = contentBytes / 1024

	embedStart := time.Now()
	embedded, tokensUsed, err := embedding.EmbedDocuments(ctx, p.provider, crawled.Documents)
	if err != nil {
		return nil, fmt.Errorf("embedding %s: %w", cfg.Name, err)
	}
	result.Timings.Embed = time.Since(embedStart)
	result.EmbeddingsGenerated = len(embedded)
	result.TotalTokens = tokensUsed

	rows := make([]store.EmbeddingRow, len(embedded))
	for i, e := range embedded {
		count := 0
		if p.tokenizer != nil {
			count, err = p.tokenizer(e.Document.Content)
			if err != nil {
				return nil, fmt.Errorf("counting tokens for %s: %w", cfg.Name, err)
			}
		}
		rows[i] = store.EmbeddingRow{
			DocPath:    e.Document.Path,
			Content:    e.Document.Content,
			Embedding:  e.Embedding,
			TokenCount: count,
		}
	}

	storeStart := time.Now()
	var version *string
	if crawled.Version != "" {
		version = &crawled.Version
	}
	packageID, err := p.store.UpsertPackage(ctx, cfg.Name, version)
	if err != nil {
		return nil, fmt.Errorf("upserting package %s: %w", cfg.Name, err)
	}
	if err := p.store.InsertEmbeddingsBatch(ctx, packageID, cfg.Name, rows); err != nil {
		return nil, fmt.Errorf("storing embeddings for %s: %w", cfg.Name, err)
	}
	result.Timings.Store = time.Since(storeStart)

	// Config bookkeeping is best effort; the embeddings are already durable.
	if err := p.store.MarkPopulated(ctx, cfg.ID, version); err != nil {
		p.log.Warn("failed to update config after ingestion",
			zap.String("package", cfg.Name), zap.Error(err))
	}

	p.log.Info("ingestion complete",
		zap.String("package", cfg.Name),
		zap.Int("documents", result.DocumentsLoaded),
		zap.Int("embeddings", result.EmbeddingsGenerated),
		zap.Uint64("provider_tokens", result.TotalTokens),
		zap.String("version", result.Version),
		zap.Int("content_kb", result.ContentSizeKB))
	return result, nil
}
