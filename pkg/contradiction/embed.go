package contradiction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"net/http"
	"strings"
	"time"
)

// Embedding is a dense sentence vector.
type Embedding []float32

// Embedder supplies sentence embeddings in batch. The embedding model itself
// is external; the detector only needs this capability.
type Embedder interface {
	ComputeEmbeddings(ctx context.Context, texts []string) ([]Embedding, error)
}

// HTTPEmbedder calls an OpenAI-compatible embeddings endpoint.
type HTTPEmbedder struct {
	endpoint string
	apiKey   string
	model    string
	client   *http.Client
}

func NewHTTPEmbedder(endpoint, apiKey, model string) *HTTPEmbedder {
	if endpoint == "" {
		endpoint = "https://api.openai.com/v1/embeddings"
	}
	if model == "" {
		model = "text-embedding-3-small"
	}
	return &HTTPEmbedder{
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (e *HTTPEmbedder) ComputeEmbeddings(ctx context.Context, texts []string) ([]Embedding, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	reqBody := map[string]interface{}{
		"input": texts,
		"model": e.model,
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, err
	}
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embeddings api error: %d", resp.StatusCode)
	}
	var result struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	if len(result.Data) != len(texts) {
		return nil, errors.New("embedding count does not match input")
	}
	out := make([]Embedding, len(result.Data))
	for i, d := range result.Data {
		out[i] = d.Embedding
	}
	return out, nil
}

// BagEmbedder is a deterministic, dependency-free embedder: a hashed
// bag-of-words projection. Good enough for tests and offline runs where
// lexically similar sentences must score as similar.
type BagEmbedder struct {
	Dimensions int
}

func (b *BagEmbedder) ComputeEmbeddings(ctx context.Context, texts []string) ([]Embedding, error) {
	dims := b.Dimensions
	if dims <= 0 {
		dims = 128
	}
	out := make([]Embedding, len(texts))
	for i, text := range texts {
		vec := make(Embedding, dims)
		for _, word := range strings.Fields(strings.ToLower(text)) {
			word = strings.Trim(word, ".,;:!?()\"'")
			if word == "" {
				continue
			}
			h := fnv.New32a()
			h.Write([]byte(word))
			vec[h.Sum32()%uint32(dims)]++
		}
		out[i] = vec
	}
	return out, nil
}

// cosine computes cosine similarity; zero vectors score zero.
func cosine(a, b Embedding) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
