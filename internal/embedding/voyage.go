package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"mcpdocs/internal/docerr"
)

const defaultVoyageEndpoint = "https://api.voyageai.com/v1"

// voyageProvider generates embeddings through the Voyage AI REST API.
type voyageProvider struct {
	endpoint string
	model    string
	apiKey   string
	client   *http.Client
	dims     int
}

func newVoyageProvider(model, apiKey string) (*voyageProvider, error) {
	if apiKey == "" {
		return nil, docerr.New(docerr.KindConfig, "VOYAGE_API_KEY is not set")
	}
	if model == "" {
		model = "voyage-3.5"
	}
	return &voyageProvider{
		endpoint: defaultVoyageEndpoint,
		model:    model,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 60 * time.Second},
		dims:     dimensionsFor(model, 1024),
	}, nil
}

func (p *voyageProvider) EmbedTexts(ctx context.Context, texts []string) ([][]float32, uint64, error) {
	out := make([][]float32, len(texts))
	var totalTokens uint64

	base := 0
	for _, batch := range batchTexts(texts) {
		vectors, tokens, err := p.embedBatch(ctx, batch)
		if err != nil {
			return nil, 0, err
		}
		for i, vec := range vectors {
			out[base+i] = vec
		}
		totalTokens += tokens
		base += len(batch)
	}

	return out, totalTokens, nil
}

func (p *voyageProvider) embedBatch(ctx context.Context, texts []string) ([][]float32, uint64, error) {
	reqBody := voyageEmbedRequest{
		Model: p.model,
		Input: texts,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, 0, docerr.Wrap(docerr.KindInternal, err, "marshaling voyage request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, 0, docerr.Wrap(docerr.KindNetwork, err, "creating voyage request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, 0, docerr.Wrap(docerr.KindNetwork, err, "voyage request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, 0, docerr.New(docerr.KindRateLimited, "voyage rate limited")
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, 0, docerr.New(docerr.KindNetwork, "voyage returned status %d: %s", resp.StatusCode, string(b))
	}

	var result voyageEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, 0, docerr.Wrap(docerr.KindNetwork, err, "decoding voyage response")
	}
	if len(result.Data) != len(texts) {
		return nil, 0, docerr.New(docerr.KindInternal,
			"voyage returned %d embeddings for %d inputs", len(result.Data), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for _, d := range result.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, 0, docerr.New(docerr.KindInternal, "voyage returned out-of-range index %d", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, uint64(result.Usage.TotalTokens), nil
}

func (p *voyageProvider) Dimensions() int { return p.dims }

func (p *voyageProvider) Name() string { return fmt.Sprintf("voyage:%s", p.model) }

type voyageEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type voyageEmbedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}
