package server

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"mcpdocs/internal/embedding"
	"mcpdocs/internal/ingest"
	"mcpdocs/internal/logging"
	"mcpdocs/internal/store"
)

// searchK is how many neighbours the store is asked for; only the top
// renderLimit are rendered into the response.
const (
	searchK     = 10
	renderLimit = 5
)

// Store is the subset of store operations the tool handler uses.
type Store interface {
	ListConfigs(ctx context.Context, enabledOnly bool) ([]store.PackageConfig, error)
	GetConfigByName(ctx context.Context, name string) (*store.PackageConfig, error)
	UpsertConfig(ctx context.Context, cfg store.PackageConfig) (*store.PackageConfig, error)
	DeleteConfig(ctx context.Context, name, versionSpec string) (bool, error)
	HasEmbeddings(ctx context.Context, name string) (bool, error)
	CountDocuments(ctx context.Context, name string) (int, error)
	SearchSimilar(ctx context.Context, packageName string, query []float32, k int) ([]store.SearchResult, error)
	ListPackagesWithEmbeddings(ctx context.Context) ([]string, error)
	CreateJob(ctx context.Context, configID int) (int, error)
	LatestJobForConfig(ctx context.Context, configID int) (*store.IngestionJob, error)
}

// Ingester runs one background ingestion against a pre-created job.
type Ingester interface {
	IngestJob(ctx context.Context, jobID int, cfg store.PackageConfig, maxPages int) (*ingest.Result, error)
}

// Handler implements the six MCP tools.
type Handler struct {
	store         Store
	provider      embedding.Provider
	ingester      Ingester
	avail         *Availability
	adminMaxPages int
	log           *zap.Logger

	// onIngestDone, when set, is called after each background ingestion
	// settles. Tests use it to synchronise with add_package.
	onIngestDone func(name string, err error)
}

// NewHandler builds a Handler around the given collaborators.
func NewHandler(st Store, provider embedding.Provider, ingester Ingester, avail *Availability, adminMaxPages int) *Handler {
	return &Handler{
		store:         st,
		provider:      provider,
		ingester:      ingester,
		avail:         avail,
		adminMaxPages: adminMaxPages,
		log:           logging.Get(logging.CategoryServer),
	}
}

// RefreshAvailability reloads the availability set from the store.
func (h *Handler) RefreshAvailability(ctx context.Context) error {
	names, err := h.store.ListPackagesWithEmbeddings(ctx)
	if err != nil {
		return err
	}
	h.avail.Replace(names)
	return nil
}

// ---- query_docs ----

type QueryDocsInput struct {
	PackageName string `json:"package_name" jsonschema:"Name of the package to search documentation for"`
	Question    string `json:"question" jsonschema:"Natural-language question about the package"`
}

func (h *Handler) QueryDocs(ctx context.Context, _ *mcp.CallToolRequest, in QueryDocsInput) (*mcp.CallToolResult, any, error) {
	if !h.avail.Has(in.PackageName) {
		return nil, nil, fmt.Errorf("package '%s' is not available for queries. Available packages: %s",
			in.PackageName, strings.Join(h.avail.List(), ", "))
	}

	vectors, _, err := h.provider.EmbedTexts(ctx, []string{in.Question})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to embed question: %w", err)
	}

	results, err := h.store.SearchSimilar(ctx, in.PackageName, vectors[0], searchK)
	if err != nil {
		return nil, nil, fmt.Errorf("search failed: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From %s docs (via vector database search): ", in.PackageName)
	if len(results) == 0 {
		b.WriteString("no matching documentation found.")
	} else {
		b.WriteString("\n")
		limit := renderLimit
		if len(results) < limit {
			limit = len(results)
		}
		for i := 0; i < limit; i++ {
			r := results[i]
			fmt.Fprintf(&b, "\n--- %s (similarity: %.3f) ---\n%s\n", r.DocPath, r.Similarity, r.Content)
		}
	}

	return textResult(b.String()), nil, nil
}

// ---- add_package ----

type AddPackageInput struct {
	Name         string   `json:"name" jsonschema:"Package name to track"`
	VersionSpec  string   `json:"version_spec,omitempty" jsonschema:"Version to track: 'latest' or an explicit version"`
	Features     []string `json:"features,omitempty" jsonschema:"Feature flags passed through to the documentation build"`
	Enabled      *bool    `json:"enabled,omitempty" jsonschema:"Whether the package is enabled (default true)"`
	ExpectedDocs int      `json:"expected_docs,omitempty" jsonschema:"Advisory expected document count"`
}

func (h *Handler) AddPackage(ctx context.Context, _ *mcp.CallToolRequest, in AddPackageInput) (*mcp.CallToolResult, any, error) {
	msg, err := h.addOne(ctx, in)
	if err != nil {
		return nil, nil, err
	}
	return textResult(msg), nil, nil
}

// addOne validates, upserts the config, creates a pending job and spawns the
// ingestion task. The returned message is the synchronous tool reply.
func (h *Handler) addOne(ctx context.Context, in AddPackageInput) (string, error) {
	if strings.TrimSpace(in.Name) == "" {
		return "", fmt.Errorf("package name must not be empty")
	}
	spec := in.VersionSpec
	if spec == "" {
		spec = store.VersionSpecLatest
	}
	if !validVersionSpec(spec) {
		return "", fmt.Errorf("invalid version_spec '%s': must be 'latest' or an explicit version", spec)
	}
	enabled := true
	if in.Enabled != nil {
		enabled = *in.Enabled
	}

	cfg, err := h.store.UpsertConfig(ctx, store.PackageConfig{
		Name:         in.Name,
		VersionSpec:  spec,
		Features:     in.Features,
		ExpectedDocs: in.ExpectedDocs,
		Enabled:      enabled,
	})
	if err != nil {
		return "", fmt.Errorf("failed to save package config: %w", err)
	}

	jobID, err := h.store.CreateJob(ctx, cfg.ID)
	if err != nil {
		return "", fmt.Errorf("failed to create ingestion job: %w", err)
	}

	go h.runIngestion(*cfg, jobID)

	return fmt.Sprintf("Ingestion has started for package '%s' (job %d). Use check_status to follow progress.",
		in.Name, jobID), nil
}

// runIngestion drives one background ingestion to completion. It uses its
// own context: the tool call that spawned it has already returned.
func (h *Handler) runIngestion(cfg store.PackageConfig, jobID int) {
	ctx := context.Background()
	start := time.Now()
	result, err := h.ingester.IngestJob(ctx, jobID, cfg, h.adminMaxPages)
	if err != nil {
		h.log.Error("background ingestion failed",
			zap.String("package", cfg.Name), zap.Int("job_id", jobID), zap.Error(err))
	} else {
		h.avail.Add(cfg.Name)
		h.log.Info("background ingestion succeeded",
			zap.String("package", cfg.Name),
			zap.Int("job_id", jobID),
			zap.Int("documents", result.EmbeddingsGenerated),
			zap.Duration("elapsed", time.Since(start)))
	}
	if h.onIngestDone != nil {
		h.onIngestDone(cfg.Name, err)
	}
}

// ---- add_packages ----

type AddPackagesInput struct {
	Packages []AddPackageInput `json:"packages" jsonschema:"Packages to add"`
	FailFast bool              `json:"fail_fast,omitempty" jsonschema:"Stop on the first failure"`
}

type addPackageOutcome struct {
	Name    string `json:"name"`
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (h *Handler) AddPackages(ctx context.Context, _ *mcp.CallToolRequest, in AddPackagesInput) (*mcp.CallToolResult, any, error) {
	if len(in.Packages) == 0 {
		return nil, nil, fmt.Errorf("packages must not be empty")
	}

	outcomes := make([]addPackageOutcome, 0, len(in.Packages))
	succeeded := 0
	for _, p := range in.Packages {
		msg, err := h.addOne(ctx, p)
		if err != nil {
			outcomes = append(outcomes, addPackageOutcome{Name: p.Name, Error: err.Error()})
			if in.FailFast {
				break
			}
			continue
		}
		succeeded++
		outcomes = append(outcomes, addPackageOutcome{Name: p.Name, Success: true, Message: msg})
	}

	summary := map[string]any{
		"total":     len(in.Packages),
		"succeeded": succeeded,
		"failed":    len(outcomes) - succeeded,
		"results":   outcomes,
	}
	return jsonResult(summary)
}

// ---- list_packages ----

type ListPackagesInput struct {
	EnabledOnly bool `json:"enabled_only,omitempty" jsonschema:"Only list enabled packages"`
}

type packageListing struct {
	Name           string     `json:"name"`
	VersionSpec    string     `json:"version_spec"`
	CurrentVersion *string    `json:"current_version,omitempty"`
	Features       []string   `json:"features,omitempty"`
	ExpectedDocs   int        `json:"expected_docs,omitempty"`
	Enabled        bool       `json:"enabled"`
	LastPopulated  *time.Time `json:"last_populated,omitempty"`
}

func (h *Handler) ListPackages(ctx context.Context, _ *mcp.CallToolRequest, in ListPackagesInput) (*mcp.CallToolResult, any, error) {
	configs, err := h.store.ListConfigs(ctx, in.EnabledOnly)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list packages: %w", err)
	}

	listings := make([]packageListing, len(configs))
	for i, c := range configs {
		listings[i] = packageListing{
			Name:           c.Name,
			VersionSpec:    c.VersionSpec,
			CurrentVersion: c.CurrentVersion,
			Features:       c.Features,
			ExpectedDocs:   c.ExpectedDocs,
			Enabled:        c.Enabled,
			LastPopulated:  c.LastPopulated,
		}
	}
	return jsonResult(listings)
}

// ---- check_status ----

type CheckStatusInput struct {
	Name string `json:"name" jsonschema:"Package name to check"`
}

type packageStatus struct {
	Name           string     `json:"name"`
	VersionSpec    string     `json:"version_spec"`
	CurrentVersion *string    `json:"current_version,omitempty"`
	Enabled        bool       `json:"enabled"`
	ExpectedDocs   int        `json:"expected_docs,omitempty"`
	HasEmbeddings  bool       `json:"has_embeddings"`
	TotalDocs      int        `json:"total_docs"`
	Status         string     `json:"status"`
	JobError       *string    `json:"job_error,omitempty"`
	LastPopulated  *time.Time `json:"last_populated,omitempty"`
	LastChecked    *time.Time `json:"last_checked,omitempty"`
}

func (h *Handler) CheckStatus(ctx context.Context, _ *mcp.CallToolRequest, in CheckStatusInput) (*mcp.CallToolResult, any, error) {
	cfg, err := h.store.GetConfigByName(ctx, in.Name)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load package config: %w", err)
	}
	if cfg == nil {
		return nil, nil, fmt.Errorf("no configuration found for package '%s'", in.Name)
	}

	hasEmb, err := h.store.HasEmbeddings(ctx, in.Name)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to check embeddings: %w", err)
	}
	count, err := h.store.CountDocuments(ctx, in.Name)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to count documents: %w", err)
	}

	status := packageStatus{
		Name:           cfg.Name,
		VersionSpec:    cfg.VersionSpec,
		CurrentVersion: cfg.CurrentVersion,
		Enabled:        cfg.Enabled,
		ExpectedDocs:   cfg.ExpectedDocs,
		HasEmbeddings:  hasEmb,
		TotalDocs:      count,
		LastPopulated:  cfg.LastPopulated,
		LastChecked:    cfg.LastChecked,
	}

	switch {
	case hasEmb:
		status.Status = "populated"
	default:
		status.Status = "not_populated"
		job, err := h.store.LatestJobForConfig(ctx, cfg.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load job status: %w", err)
		}
		if job != nil {
			status.Status = job.Status
			status.JobError = job.ErrorMessage
		}
	}

	return jsonResult(status)
}

// ---- remove_package ----

type RemovePackageInput struct {
	Name        string `json:"name" jsonschema:"Package name to remove"`
	VersionSpec string `json:"version_spec,omitempty" jsonschema:"Version spec to remove; all specs when omitted"`
}

func (h *Handler) RemovePackage(ctx context.Context, _ *mcp.CallToolRequest, in RemovePackageInput) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, nil, fmt.Errorf("package name must not be empty")
	}

	deleted, err := h.store.DeleteConfig(ctx, in.Name, in.VersionSpec)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to remove package: %w", err)
	}
	if !deleted {
		return textResult(fmt.Sprintf("No configuration found for package '%s'.", in.Name)), nil, nil
	}

	h.avail.Remove(in.Name)
	h.log.Info("package removed", zap.String("package", in.Name))
	return textResult(fmt.Sprintf("Removed package '%s'. Its stored documentation remains until re-ingestion or cleanup.", in.Name)), nil, nil
}

// ---- helpers ----

// validVersionSpec accepts the literal "latest" or any spec containing a
// digit (an explicit version literal).
func validVersionSpec(spec string) bool {
	if spec == store.VersionSpecLatest {
		return true
	}
	return strings.ContainsAny(spec, "0123456789")
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func jsonResult(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return textResult(string(data)), nil, nil
}
