package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// OpenAIConfig configures an OpenAI-compatible embeddings endpoint. Local
// inference servers exposing the same wire format (Ollama, vLLM, LocalAI)
// work unchanged.
type OpenAIConfig struct {
	// BaseURL is the API root (e.g. "https://api.openai.com").
	BaseURL string

	// APIKey is sent as a Bearer token when non-empty.
	APIKey string

	// Model is the embedding model identifier.
	Model string

	// Dimension is the vector dimensionality the model produces.
	Dimension int

	// Timeout bounds each HTTP call. Default: 30s.
	Timeout time.Duration

	// MaxBatchSize caps texts per request. Default: 100.
	MaxBatchSize int
}

// OpenAIProvider calls POST {base}/v1/embeddings with {model, input}.
type OpenAIProvider struct {
	cfg    OpenAIConfig
	client *http.Client
}

// NewOpenAIProvider creates a provider for an OpenAI-compatible endpoint.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("embeddings base URL is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("embeddings model is required")
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("embeddings dimension must be positive, got %d", cfg.Dimension)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxBatchSize == 0 {
		cfg.MaxBatchSize = 100
	}

	return &OpenAIProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Name returns the provider identifier.
func (p *OpenAIProvider) Name() string { return "openai:" + p.cfg.Model }

// Dimension returns the declared vector dimensionality.
func (p *OpenAIProvider) Dimension() int { return p.cfg.Dimension }

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed returns one vector per input text, batching requests as needed.
func (p *OpenAIProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))
	for start := 0; start < len(texts); start += p.cfg.MaxBatchSize {
		end := min(start+p.cfg.MaxBatchSize, len(texts))
		vectors, err := p.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		copy(out[start:end], vectors)
	}
	return out, nil
}

func (p *OpenAIProvider) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embeddingsRequest{Model: p.cfg.Model, Input: texts})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embeddings request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("embeddings endpoint returned %d: %s", resp.StatusCode, payload)
	}

	var parsed embeddingsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode embeddings response: %w", err)
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("embeddings endpoint returned %d vectors for %d inputs", len(parsed.Data), len(texts))
	}

	// The API is allowed to return entries out of order; index is authoritative.
	vectors := make([][]float32, len(texts))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("embeddings response index %d out of range", d.Index)
		}
		if len(d.Embedding) != p.cfg.Dimension {
			return nil, fmt.Errorf("embedding dimension %d does not match declared %d", len(d.Embedding), p.cfg.Dimension)
		}
		vectors[d.Index] = d.Embedding
	}
	for i, v := range vectors {
		if v == nil {
			return nil, fmt.Errorf("embeddings response missing vector for input %d", i)
		}
	}
	return vectors, nil
}
