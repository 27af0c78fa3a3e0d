package loader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/edgeflare/pgrag/pkg/rag"
	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"
)

// Directory loads every readable file below Root, in lexical order.
type Directory struct {
	Logger *zap.Logger
	Root   string
}

// Load walks Root. Markdown and plain text are read as-is, HTML is reduced to its visible
// text, PDFs are converted to plain text. Other files are sniffed and kept only if they are text.
// Empty files are skipped.
func (d *Directory) Load(ctx context.Context) ([]rag.Document, error) {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	info, err := os.Stat(d.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", d.Root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", d.Root)
	}

	var docs []rag.Document
	err = filepath.WalkDir(d.Root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}

		doc, ok, err := readFile(path)
		if err != nil {
			return err
		}
		if !ok {
			logger.Debug("Skipping file", zap.String("path", path))
			return nil
		}
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", d.Root, err)
	}

	return docs, nil
}

func readFile(path string) (rag.Document, bool, error) {
	doc := rag.Document{Metadata: rag.Metadata{Source: path}}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		text, err := readPDF(path)
		if err != nil {
			return doc, false, fmt.Errorf("failed to read pdf %s: %w", path, err)
		}
		doc.Text = text
		doc.Metadata.ContentType = "application/pdf"
	case ".html", ".htm":
		f, err := os.Open(path)
		if err != nil {
			return doc, false, err
		}
		defer f.Close()
		title, text, err := ExtractHTML(f)
		if err != nil {
			return doc, false, fmt.Errorf("failed to parse html %s: %w", path, err)
		}
		doc.Text = text
		doc.Metadata.Title = title
		doc.Metadata.ContentType = "text/html"
	case ".md", ".markdown":
		data, err := os.ReadFile(path)
		if err != nil {
			return doc, false, err
		}
		doc.Text = normalizeNewlines(string(data))
		doc.Metadata.ContentType = "text/markdown"
	default:
		mt, err := mimetype.DetectFile(path)
		if err != nil {
			return doc, false, fmt.Errorf("failed to detect type of %s: %w", path, err)
		}
		if !strings.HasPrefix(mt.String(), "text/") {
			return doc, false, nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return doc, false, err
		}
		doc.Text = normalizeNewlines(string(data))
		doc.Metadata.ContentType = "text/plain"
	}

	doc.Text = strings.TrimSpace(doc.Text)
	if doc.Metadata.Title == "" {
		doc.Metadata.Title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return doc, doc.Text != "", nil
}

func readPDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	plain, err := r.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", err
	}
	return buf.String(), nil
}
