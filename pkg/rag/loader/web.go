package loader

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/edgeflare/pgrag/pkg/httputil"
	"github.com/edgeflare/pgrag/pkg/rag"
	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
)

// Web loads a single page over HTTP.
type Web struct {
	Logger  *zap.Logger
	URL     string
	Timeout time.Duration
}

// Load fetches the page. HTML is reduced to its visible text, text/* is kept as-is,
// anything else is rejected.
func (w *Web) Load(ctx context.Context) ([]rag.Document, error) {
	config := httputil.DefaultRequestConfig(http.MethodGet, w.URL)
	config.Timeout = w.Timeout
	config.Logger = w.Logger
	config.Headers = map[string][]string{
		"Accept": {"text/html,text/plain;q=0.9,*/*;q=0.5"},
	}

	response, err := httputil.Request(ctx, config, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", w.URL, err)
	}

	contentType := response.Headers.Get("Content-Type")
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		contentType = mediaType
	}
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = mimetype.Detect(response.Body).String()
	}

	doc := rag.Document{Metadata: rag.Metadata{Source: w.URL}}
	switch {
	case strings.HasPrefix(contentType, "text/html"), strings.HasPrefix(contentType, "application/xhtml"):
		title, text, err := ExtractHTML(bytes.NewReader(response.Body))
		if err != nil {
			return nil, fmt.Errorf("failed to parse html of %s: %w", w.URL, err)
		}
		doc.Text = text
		doc.Metadata.Title = title
		doc.Metadata.ContentType = "text/html"
	case strings.HasPrefix(contentType, "text/"):
		doc.Text = strings.TrimSpace(normalizeNewlines(string(response.Body)))
		doc.Metadata.ContentType = contentType
	default:
		return nil, fmt.Errorf("unsupported content type %q at %s", contentType, w.URL)
	}

	if doc.Text == "" {
		return nil, nil
	}
	return []rag.Document{doc}, nil
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}
