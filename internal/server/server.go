// Package server exposes the service's two surfaces: the MCP protocol
// endpoint (SSE downstream, POST upstream) and the HTTP health probes. It
// owns the startup sequence, the in-memory availability set and background
// auto-population of missing packages.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"mcpdocs/internal/config"
	"mcpdocs/internal/crawler"
	"mcpdocs/internal/embedding"
	"mcpdocs/internal/ingest"
	"mcpdocs/internal/logging"
	"mcpdocs/internal/store"
	"mcpdocs/internal/tokenizer"
)

// autoPopulateDelay is the pause between packages during startup
// auto-population.
const autoPopulateDelay = 500 * time.Millisecond

// Run starts the service and blocks until ctx is cancelled or a fatal
// startup error occurs.
func Run(ctx context.Context, cfg *config.Config) error {
	log := logging.Get(logging.CategoryBoot)

	// Health first: liveness must answer before anything else is up.
	readiness := NewReadiness()
	healthSrv := &http.Server{
		Addr:    ":" + strconv.Itoa(cfg.HealthPort),
		Handler: NewHealthHandler(readiness),
	}
	go func() {
		if err := healthSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("health server failed", zap.Error(err))
		}
	}()
	log.Info("health server listening", zap.Int("port", cfg.HealthPort))

	st, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to store: %w", err)
	}
	defer st.Close()
	readiness.SetDatabaseConnected(true)
	log.Info("database connected")

	provider, err := embedding.NewProvider(cfg.EmbeddingProvider, cfg.EmbeddingModel,
		providerKey(cfg), cfg.OpenAIAPIBase)
	if err != nil {
		return fmt.Errorf("creating embedding provider: %w", err)
	}
	if err := embedding.Install(provider); err != nil {
		return fmt.Errorf("installing embedding provider: %w", err)
	}
	readiness.SetEmbeddingInitialized(true)
	log.Info("embedding provider initialized",
		zap.String("provider", provider.Name()), zap.Int("dimensions", provider.Dimensions()))

	if err := st.EnsureSchema(ctx, provider.Dimensions()); err != nil {
		return fmt.Errorf("ensuring schema: %w", err)
	}

	// Which configured packages should this instance serve?
	configs, err := st.ListConfigs(ctx, true)
	if err != nil {
		return fmt.Errorf("loading package configs: %w", err)
	}
	configs = filterConfigs(configs, cfg.PackageNames, cfg.All)

	var missing []store.PackageConfig
	for _, c := range configs {
		has, err := st.HasEmbeddings(ctx, c.Name)
		if err != nil {
			return fmt.Errorf("checking embeddings for %s: %w", c.Name, err)
		}
		if !has {
			missing = append(missing, c)
		}
	}

	names, err := st.ListPackagesWithEmbeddings(ctx)
	if err != nil {
		return fmt.Errorf("loading available packages: %w", err)
	}
	avail := NewAvailability(names)

	pipeline := ingest.New(
		crawler.New(crawler.Config{BaseURL: cfg.DocsBaseURL}),
		provider, st, tokenizer.CountTokens)
	handler := NewHandler(st, provider, pipeline, avail, cfg.AdminMaxPages)
	if err := handler.RefreshAvailability(ctx); err != nil {
		return fmt.Errorf("refreshing availability: %w", err)
	}

	message := startupMessage(avail.List(), configNames(missing))
	log.Info("startup message composed", zap.String("message", message))

	var ps *ProtocolServer
	mcpServer := BuildMCPServer(handler, message, func(ss *mcp.ServerSession) {
		ps.SessionInitialized(ss)
	})
	ps = NewProtocolServer(mcpServer, cfg.InitTimeout)

	mainSrv := &http.Server{
		Addr:    net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Handler: ps.Handler(),
	}
	serveErr := make(chan error, 1)
	go func() {
		if err := mainSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()
	log.Info("protocol server listening", zap.String("addr", mainSrv.Addr))

	// Readiness does not wait on population finishing, only on the spawn.
	go autoPopulate(ctx, pipeline, missing, avail, cfg.BulkMaxPages)
	readiness.SetAutoPopulationComplete(true)

	select {
	case err := <-serveErr:
		return fmt.Errorf("protocol server failed: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = mainSrv.Shutdown(shutdownCtx)
	_ = healthSrv.Shutdown(shutdownCtx)
	return nil
}

// autoPopulate ingests the packages that were configured but had no
// embeddings at startup, one at a time with a politeness pause between.
func autoPopulate(ctx context.Context, pipeline *ingest.Pipeline, missing []store.PackageConfig, avail *Availability, maxPages int) {
	if len(missing) == 0 {
		return
	}
	log := logging.Get(logging.CategoryIngest)
	log.Info("starting auto-population", zap.Int("packages", len(missing)))

	for i, cfg := range missing {
		result, err := pipeline.Ingest(ctx, cfg, maxPages)
		if err != nil {
			log.Error("auto-population failed",
				zap.String("package", cfg.Name), zap.Error(err))
		} else {
			avail.Add(cfg.Name)
			log.Info("auto-populated package",
				zap.String("package", cfg.Name),
				zap.Int("documents", result.EmbeddingsGenerated))
		}
		if i < len(missing)-1 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(autoPopulateDelay):
			}
		}
	}
	log.Info("auto-population finished")
}

// filterConfigs narrows configs to the names requested on the command line.
// An empty filter (or --all) keeps everything.
func filterConfigs(configs []store.PackageConfig, names []string, all bool) []store.PackageConfig {
	if all || len(names) == 0 {
		return configs
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	var out []store.PackageConfig
	for _, c := range configs {
		if want[c.Name] {
			out = append(out, c)
		}
	}
	return out
}

func configNames(configs []store.PackageConfig) []string {
	out := make([]string, len(configs))
	for i, c := range configs {
		out[i] = c.Name
	}
	return out
}

// startupMessage composes the human-readable instructions block advertised
// to each session.
func startupMessage(available, pending []string) string {
	var b strings.Builder
	switch len(available) {
	case 0:
		b.WriteString("No package documentation is currently available. Use the add_package tool to start tracking packages.")
	case 1:
		fmt.Fprintf(&b, "Documentation is available for the %s package. Use the query_docs tool to search it.", available[0])
	default:
		fmt.Fprintf(&b, "Documentation is available for %d packages: %s. Use the query_docs tool to search them.",
			len(available), strings.Join(available, ", "))
	}
	if len(pending) > 0 {
		fmt.Fprintf(&b, " Population is pending for: %s.", strings.Join(pending, ", "))
	}
	return b.String()
}

func providerKey(cfg *config.Config) string {
	if cfg.EmbeddingProvider == "voyage" {
		return cfg.VoyageAPIKey
	}
	return cfg.OpenAIAPIKey
}
