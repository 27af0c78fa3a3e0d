package ollama

import (
	"context"
	"encoding/json"
	"fmt"
)

// EmbeddingRequest is the request body for the Embed function
type EmbeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// EmbeddingResponse is the response body of the Embed function
// https://github.com/ollama/ollama/blob/main/docs/api.md#generate-embeddings
type EmbeddingResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed returns one vector per input, in input order
func (c *Client) Embed(ctx context.Context, input []string) ([][]float32, error) {
	if len(input) == 0 {
		return [][]float32{}, nil
	}

	body, err := c.post(ctx, c.Config.EmbedPath, c.Config.EmbeddingModel, &EmbeddingRequest{
		Model: c.Config.EmbeddingModel,
		Input: input,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch embeddings: %w", err)
	}

	var embeddingResponse EmbeddingResponse
	if err := json.Unmarshal(body, &embeddingResponse); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if len(embeddingResponse.Embeddings) != len(input) {
		return nil, fmt.Errorf("mismatch between input and embeddings length: %d vs %d", len(input), len(embeddingResponse.Embeddings))
	}

	return embeddingResponse.Embeddings, nil
}

// EmbedQuery embeds a single string
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}
