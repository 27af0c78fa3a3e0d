// Package loader provides rag.Loader implementations for web pages and local directories.
package loader

import (
	"fmt"
	"time"

	"github.com/edgeflare/pgrag/pkg/rag"
	"go.uber.org/zap"
)

// Source selects where documents come from. Exactly one of URL and Dir must be set.
type Source struct {
	URL string
	Dir string
}

// FromSource returns the loader for src, or an error wrapping rag.ErrConfiguration
// unless exactly one source is set.
func FromSource(src Source, timeout time.Duration, logger *zap.Logger) (rag.Loader, error) {
	switch {
	case src.URL != "" && src.Dir != "":
		return nil, fmt.Errorf("%w: url and dir sources are mutually exclusive", rag.ErrConfiguration)
	case src.URL != "":
		return &Web{URL: src.URL, Timeout: timeout, Logger: logger}, nil
	case src.Dir != "":
		return &Directory{Root: src.Dir, Logger: logger}, nil
	default:
		return nil, fmt.Errorf("%w: a url or dir source is required", rag.ErrConfiguration)
	}
}
