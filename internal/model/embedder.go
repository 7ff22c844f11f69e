package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
)

const defaultEmbedderURL = "http://localhost:8002"

// embeddingResponse represents the response from the embedding server.
type embeddingResponse struct {
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	Model     string    `json:"model"`
}

// EmbeddingResult contains a unit-normalized face embedding and its metadata.
type EmbeddingResult struct {
	Embedding []float32
	Model     string
	Dim       int
}

// EmbedderClient talks to the face embedding model server (a FaceNet-style
// pretrained network consumed as an opaque black box). Every returned
// embedding is L2-normalized so that cosine distance reduces to 1 - dot.
type EmbedderClient struct {
	baseURL string
	client  *http.Client
}

// NewEmbedderClient creates a client for the embedding model server.
func NewEmbedderClient(baseURL string) *EmbedderClient {
	if baseURL == "" {
		baseURL = defaultEmbedderURL
	}
	return &EmbedderClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{},
	}
}

// ComputeEmbedding computes the embedding for a face crop.
func (c *EmbedderClient) ComputeEmbedding(ctx context.Context, imageData []byte) (*EmbeddingResult, error) {
	body, err := postMultipartImage(ctx, c.client, c.baseURL+"/embed", imageData, nil)
	if err != nil {
		return nil, err
	}

	var embResp embeddingResponse
	if err := json.Unmarshal(body, &embResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if len(embResp.Embedding) == 0 {
		return nil, errors.New("empty embedding returned")
	}

	return &EmbeddingResult{
		Embedding: l2Normalize(embResp.Embedding),
		Model:     embResp.Model,
		Dim:       embResp.Dim,
	}, nil
}

// l2Normalize scales a vector to unit length. The small epsilon guards
// against division by zero for degenerate embeddings.
func l2Normalize(v []float32) []float32 {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	norm = math.Sqrt(norm) + 1e-12

	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}
