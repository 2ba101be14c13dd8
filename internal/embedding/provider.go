// Package embedding abstracts embedding generation behind a Provider
// interface with pluggable backends (OpenAI-compatible APIs and Voyage AI).
// A single provider is installed process-wide at startup; everything
// downstream resolves it through Installed.
package embedding

import (
	"context"
	"strings"
	"sync"

	"mcpdocs/internal/crawler"
	"mcpdocs/internal/docerr"
)

// maxBatchItems bounds how many texts go into one upstream request.
const maxBatchItems = 128

// maxBatchTokens is an approximate per-request token budget. Texts are
// measured at len/4+1 tokens for batching purposes; exact counts are the
// tokenizer package's job.
const maxBatchTokens = 100_000

// Provider generates embeddings for texts.
type Provider interface {
	// EmbedTexts embeds texts in order. Returns one vector per input text
	// and the total tokens the upstream charged for the call(s).
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, uint64, error)
	// Dimensions is the vector width this provider produces.
	Dimensions() int
	// Name identifies the provider and model, e.g. "openai:text-embedding-3-large".
	Name() string
}

// DocumentEmbedding pairs a crawled document with its vector.
type DocumentEmbedding struct {
	Document  crawler.Document
	Embedding []float32
}

// EmbedDocuments embeds the content of each document, preserving order.
func EmbedDocuments(ctx context.Context, p Provider, docs []crawler.Document) ([]DocumentEmbedding, uint64, error) {
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Content
	}
	vectors, tokens, err := p.EmbedTexts(ctx, texts)
	if err != nil {
		return nil, 0, err
	}
	out := make([]DocumentEmbedding, len(docs))
	for i := range docs {
		out[i] = DocumentEmbedding{Document: docs[i], Embedding: vectors[i]}
	}
	return out, tokens, nil
}

var (
	installMu sync.Mutex
	installed Provider
)

// Install sets the process-wide provider. Calling it a second time is an
// error; the provider is chosen once at startup.
func Install(p Provider) error {
	installMu.Lock()
	defer installMu.Unlock()
	if installed != nil {
		return docerr.New(docerr.KindConfig, "embedding provider already installed (%s)", installed.Name())
	}
	installed = p
	return nil
}

// Installed returns the process-wide provider, or an error if none is set.
func Installed() (Provider, error) {
	installMu.Lock()
	defer installMu.Unlock()
	if installed == nil {
		return nil, docerr.New(docerr.KindConfig, "no embedding provider installed")
	}
	return installed, nil
}

// resetForTesting clears the installed provider between tests.
func resetForTesting() {
	installMu.Lock()
	installed = nil
	installMu.Unlock()
}

// NewProvider constructs a provider by name.
func NewProvider(provider, model, apiKey, apiBase string) (Provider, error) {
	switch provider {
	case "openai":
		return newOpenAIProvider(model, apiKey, apiBase)
	case "voyage":
		return newVoyageProvider(model, apiKey)
	default:
		return nil, docerr.New(docerr.KindConfig, "unknown embedding provider %q", provider)
	}
}

// batchTexts splits texts into request-sized batches, greedy in input order.
// Every batch holds at least one text, so oversized single texts still get
// sent (the upstream rejects them with its own error).
func batchTexts(texts []string) [][]string {
	var batches [][]string
	var cur []string
	curTokens := 0
	for _, t := range texts {
		approx := len(t)/4 + 1
		if len(cur) > 0 && (len(cur) >= maxBatchItems || curTokens+approx > maxBatchTokens) {
			batches = append(batches, cur)
			cur = nil
			curTokens = 0
		}
		cur = append(cur, t)
		curTokens += approx
	}
	if len(cur) > 0 {
		batches = append(batches, cur)
	}
	return batches
}

// modelDimensions maps known embedding models to their vector width.
var modelDimensions = map[string]int{
	"text-embedding-3-large": 3072,
	"text-embedding-3-small": 1536,
	"text-embedding-ada-002": 1536,
	"voyage-3.5":             1024,
	"voyage-3.5-lite":        1024,
	"voyage-code-3":          1024,
}

// dimensionsFor returns the vector width for a model, with a family-prefix
// fallback for versioned model names.
func dimensionsFor(model string, fallback int) int {
	if d, ok := modelDimensions[model]; ok {
		return d
	}
	for known, d := range modelDimensions {
		if strings.HasPrefix(model, known) {
			return d
		}
	}
	return fallback
}
