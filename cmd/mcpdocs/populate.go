package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"mcpdocs/internal/config"
	"mcpdocs/internal/crawler"
	"mcpdocs/internal/embedding"
	"mcpdocs/internal/ingest"
	"mcpdocs/internal/store"
	"mcpdocs/internal/tokenizer"
)

var (
	populateParallelism int
	populateMaxPages    int
)

// populateDelay spaces out crawl starts across packages.
const populateDelay = 2 * time.Second

// populateCmd bulk-ingests every enabled package config whose documentation
// is missing or stale.
var populateCmd = &cobra.Command{
	Use:   "populate",
	Short: "Ingest documentation for all packages needing an update",
	RunE:  runPopulate,
}

func init() {
	populateCmd.Flags().IntVar(&populateParallelism, "parallelism", 2, "Concurrent package ingestions")
	populateCmd.Flags().IntVar(&populateMaxPages, "max-pages", config.DefaultBulkMaxPages, "Page budget per package")
}

func runPopulate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	st, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer st.Close()

	provider, err := embedding.NewProvider(cfg.EmbeddingProvider, cfg.EmbeddingModel,
		providerKey(cfg), cfg.OpenAIAPIBase)
	if err != nil {
		return err
	}
	if err := st.EnsureSchema(ctx, provider.Dimensions()); err != nil {
		return err
	}

	configs, err := st.ConfigsNeedingUpdate(ctx)
	if err != nil {
		return err
	}
	if len(configs) == 0 {
		fmt.Println("All packages are up to date.")
		return nil
	}
	fmt.Printf("Populating %d package(s)...\n", len(configs))

	pipeline := ingest.New(
		crawler.New(crawler.Config{BaseURL: cfg.DocsBaseURL}),
		provider, st, tokenizer.CountTokens)

	var (
		mu          sync.Mutex
		totalDocs   int
		totalTokens uint64
		failed      int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(populateParallelism)
	for i, pc := range configs {
		if i > 0 {
			select {
			case <-gctx.Done():
			case <-time.After(populateDelay):
			}
			if gctx.Err() != nil {
				break
			}
		}
		g.Go(func() error {
			result, err := pipeline.Ingest(gctx, pc, populateMaxPages)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				fmt.Printf("  %s: FAILED (%v)\n", pc.Name, err)
				// Keep going; per-package failures are recorded on the job.
				return nil
			}
			totalDocs += result.EmbeddingsGenerated
			totalTokens += result.TotalTokens
			fmt.Printf("  %s: %d docs, %d provider tokens, version %s\n",
				pc.Name, result.EmbeddingsGenerated, result.TotalTokens, orDash(result.Version))
			return nil
		})
	}
	if err := g.Wait(); err != nil && !isContextErr(err) {
		return err
	}

	fmt.Printf("Done: %d/%d succeeded, %d documents, %d provider tokens.\n",
		len(configs)-failed, len(configs), totalDocs, totalTokens)
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func providerKey(cfg *config.Config) string {
	if cfg.EmbeddingProvider == "voyage" {
		return cfg.VoyageAPIKey
	}
	return cfg.OpenAIAPIKey
}
