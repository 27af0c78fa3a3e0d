package pgrag

import (
	"context"
	"fmt"

	"github.com/edgeflare/pgrag/pkg/rag"
	"github.com/edgeflare/pgrag/pkg/rag/loader"
	"github.com/edgeflare/pgrag/pkg/rag/memory"
	"github.com/edgeflare/pgrag/pkg/rag/ollama"
	"github.com/edgeflare/pgrag/pkg/rag/pgvector"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	ingestURL     string
	ingestDir     string
	ingestReplace bool
	ingestStore   string
)

var ingestCmd = &cobra.Command{
	Use:     "ingest",
	Aliases: []string{"i"},
	Short:   "Load, chunk, embed and store documents",
	Long:    `Loads documents from a web page (--url) or a local directory (--dir), splits them into overlapping chunks, embeds them and stores them in the collection.`,
	Example: `  pgrag ingest --url https://arxiv.org/html/2503.16954v2
  pgrag ingest --dir ./docs --replace`,
	RunE: runIngest,
}

func init() {
	f := ingestCmd.Flags()
	f.StringVarP(&ingestURL, "url", "u", "", "web page to ingest")
	f.StringVarP(&ingestDir, "dir", "d", "", "directory to ingest")
	f.BoolVar(&ingestReplace, "replace", false, "delete records previously ingested from the same source first")
	f.StringVar(&ingestStore, "store", "pgvector", "vector store: pgvector or memory (dry run)")
	ingestCmd.MarkFlagsMutuallyExclusive("url", "dir")
	ingestCmd.MarkFlagsOneRequired("url", "dir")
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx, stop := runContext()
	defer stop()

	l, err := loader.FromSource(loader.Source{URL: ingestURL, Dir: ingestDir}, cfg.OllamaTimeout, logger)
	if err != nil {
		return err
	}

	client, err := ollama.NewClient(cfg.Ollama(), logger)
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(ctx, ingestStore)
	if err != nil {
		return err
	}
	defer closeStore()

	opts := cfg.IngestOptions()
	opts.Replace = ingestReplace
	ingestor, err := rag.NewIngestor(client, store, opts, logger)
	if err != nil {
		return err
	}

	result, err := ingestor.Run(ctx, l)
	if err != nil {
		return err
	}

	logger.Info("Documents have been embedded and saved",
		zap.String("collection", cfg.CollectionName),
		zap.Int("documents", result.Documents),
		zap.Int("chunks", result.Chunks),
		zap.Int("records", len(result.IDs)),
		zap.Int64("deleted", result.Deleted))
	fmt.Fprintf(cmd.OutOrStdout(), "stored %d chunks from %d documents in %s\n", len(result.IDs), result.Documents, cfg.CollectionName)
	return nil
}

// openStore returns the selected vector store and a func releasing its resources
func openStore(ctx context.Context, kind string) (rag.VectorStore, func(), error) {
	switch kind {
	case "memory":
		return memory.NewStore(), func() {}, nil
	case "pgvector", "":
		store, pool, err := pgvector.Open(ctx, cfg.ConnectionString, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown store %q", rag.ErrConfiguration, kind)
	}
}
