// Package ollama talks to an Ollama-compatible model server for embeddings and completions.
package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/edgeflare/pgrag/pkg/httputil"
	"github.com/edgeflare/pgrag/pkg/rag"
	"go.uber.org/zap"
)

var (
	_ rag.Embedder  = (*Client)(nil)
	_ rag.Generator = (*Client)(nil)
)

// Config holds the configuration for the Ollama Client
type Config struct {
	Host            string
	EmbeddingModel  string
	CompletionModel string
	APIKey          string
	EmbedPath       string
	GeneratePath    string
	// Options are passed verbatim as the "options" object of generate requests, e.g. temperature
	Options map[string]any
	// Timeout of zero leaves requests without a client-side timeout
	Timeout    time.Duration
	MaxRetries int
}

// DefaultConfig returns a Config with default values
func DefaultConfig() Config {
	return Config{
		Host:            "http://host.containers.internal:11434",
		EmbeddingModel:  "nomic-embed-text",
		CompletionModel: "llama3",
		EmbedPath:       "/api/embed",
		GeneratePath:    "/api/generate",
	}
}

// Client implements rag.Embedder and rag.Generator
type Client struct {
	logger *zap.Logger
	Config Config
}

// NewClient creates a new Ollama client
func NewClient(config Config, loggers ...*zap.Logger) (*Client, error) {
	if config.Host == "" {
		return nil, fmt.Errorf("%w: ollama host is required", rag.ErrConfiguration)
	}
	defaults := DefaultConfig()
	if config.EmbedPath == "" {
		config.EmbedPath = defaults.EmbedPath
	}
	if config.GeneratePath == "" {
		config.GeneratePath = defaults.GeneratePath
	}
	config.Host = strings.TrimRight(config.Host, "/")

	var logger *zap.Logger
	if len(loggers) > 0 && loggers[0] != nil {
		logger = loggers[0]
	} else {
		var err error
		logger, err = zap.NewProduction()
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
	}

	return &Client{
		Config: config,
		logger: logger.With(zap.String("host", config.Host)),
	}, nil
}

// errorResponse is the body Ollama sends along with non-2xx status codes
type errorResponse struct {
	Error string `json:"error"`
}

func (c *Client) post(ctx context.Context, path, model string, payload any) ([]byte, error) {
	dataBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request data: %w", err)
	}

	config := httputil.DefaultRequestConfig(http.MethodPost, c.Config.Host+path)
	if c.Config.APIKey != "" {
		config.Headers = map[string][]string{
			"Authorization": {"Bearer " + c.Config.APIKey},
		}
	}
	config.Timeout = c.Config.Timeout
	config.MaxRetries = c.Config.MaxRetries
	config.RetryEnabled = c.Config.MaxRetries > 0
	config.Logger = c.logger

	response, err := httputil.Request(ctx, config, dataBytes)
	if err != nil {
		return nil, classify(model, err)
	}
	return response.Body, nil
}

// classify maps transport and status errors onto the rag error taxonomy
func classify(model string, err error) error {
	var transportErr *httputil.TransportError
	if errors.As(err, &transportErr) {
		return fmt.Errorf("%w: %w", rag.ErrUnavailable, err)
	}

	var statusErr *httputil.StatusError
	if errors.As(err, &statusErr) {
		msg := string(statusErr.Body)
		var body errorResponse
		if json.Unmarshal(statusErr.Body, &body) == nil && body.Error != "" {
			msg = body.Error
		}
		switch {
		case statusErr.StatusCode == http.StatusNotFound, strings.Contains(msg, "not found"):
			return fmt.Errorf("%w: %s: %s", rag.ErrModel, model, msg)
		case statusErr.StatusCode >= http.StatusInternalServerError:
			return fmt.Errorf("%w: status %d: %s", rag.ErrUnavailable, statusErr.StatusCode, msg)
		default:
			return fmt.Errorf("ollama request failed with status %d: %s", statusErr.StatusCode, msg)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", rag.ErrUnavailable, err)
	}
	return err
}
