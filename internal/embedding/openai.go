package embedding

import (
	"context"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"mcpdocs/internal/docerr"
)

// openaiProvider generates embeddings through the OpenAI embeddings API or
// any OpenAI-compatible endpoint selected via base URL override.
type openaiProvider struct {
	client openai.Client
	model  string
	dims   int
}

func newOpenAIProvider(model, apiKey, apiBase string) (*openaiProvider, error) {
	if model == "" {
		model = "text-embedding-3-large"
	}
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if apiBase != "" {
		opts = append(opts, option.WithBaseURL(apiBase))
	}
	return &openaiProvider{
		client: openai.NewClient(opts...),
		model:  model,
		dims:   dimensionsFor(model, 1536),
	}, nil
}

func (p *openaiProvider) EmbedTexts(ctx context.Context, texts []string) ([][]float32, uint64, error) {
	out := make([][]float32, len(texts))
	var totalTokens uint64

	base := 0
	for _, batch := range batchTexts(texts) {
		resp, err := p.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Model: openai.EmbeddingModel(p.model),
			Input: openai.EmbeddingNewParamsInputUnion{
				OfArrayOfStrings: batch,
			},
		})
		if err != nil {
			return nil, 0, docerr.Wrap(docerr.KindNetwork, err, "openai embeddings request failed")
		}
		if len(resp.Data) != len(batch) {
			return nil, 0, docerr.New(docerr.KindInternal,
				"openai returned %d embeddings for %d inputs", len(resp.Data), len(batch))
		}
		for _, d := range resp.Data {
			vec := make([]float32, len(d.Embedding))
			for i, v := range d.Embedding {
				vec[i] = float32(v)
			}
			// Index is relative to the batch; reassemble in input order.
			out[base+int(d.Index)] = vec
		}
		totalTokens += uint64(resp.Usage.TotalTokens)
		base += len(batch)
	}

	return out, totalTokens, nil
}

func (p *openaiProvider) Dimensions() int { return p.dims }

func (p *openaiProvider) Name() string { return "openai:" + p.model }
