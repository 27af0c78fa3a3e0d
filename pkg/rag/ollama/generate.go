package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// GenerateRequest is the body for /generate requests. Model and Prompt fields are required.
type GenerateRequest struct {
	KeepAlive *time.Duration `json:"keep_alive,omitempty"`
	Options   map[string]any `json:"options,omitempty"`
	Model     string         `json:"model"`
	Prompt    string         `json:"prompt"`
	System    string         `json:"system,omitempty"`
	Format    string         `json:"format,omitempty"`
	Stream    bool           `json:"stream"`
}

// GenerateResponse is the non-streaming response of /generate
type GenerateResponse struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	DoneReason      string `json:"done_reason,omitempty"`
	Done            bool   `json:"done"`
	PromptEvalCount int    `json:"prompt_eval_count,omitempty"`
	EvalCount       int    `json:"eval_count,omitempty"`
}

// Generate sends a non-streaming generation request and returns the generated text
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := c.post(ctx, c.Config.GeneratePath, c.Config.CompletionModel, &GenerateRequest{
		Model:   c.Config.CompletionModel,
		Prompt:  prompt,
		Options: c.Config.Options,
		Stream:  false,
	})
	if err != nil {
		return "", fmt.Errorf("API request failed: %w", err)
	}

	var response GenerateResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}
	c.logger.Debug("Generated",
		zap.String("model", response.Model),
		zap.Int("prompt_tokens", response.PromptEvalCount),
		zap.Int("completion_tokens", response.EvalCount),
		zap.String("done_reason", response.DoneReason))

	return response.Response, nil
}
