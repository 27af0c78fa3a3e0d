package pgrag

import (
	"fmt"
	"strings"

	"github.com/edgeflare/pgrag/pkg/rag"
	"github.com/edgeflare/pgrag/pkg/rag/ollama"
	"github.com/edgeflare/pgrag/pkg/rag/pgvector"
	"github.com/spf13/cobra"
)

var (
	askTopK        int
	askShowContext bool
)

var askCmd = &cobra.Command{
	Use:     "ask QUESTION [QUESTION...]",
	Aliases: []string{"a"},
	Short:   "Answer questions from the ingested documents",
	Long:    `Answers each question in turn: the question is embedded, the nearest chunks are retrieved from the collection and passed to the model as context.`,
	Example: `  pgrag ask "Has CP violation been measured?" "What is the concept of CP violation?"`,
	Args:    cobra.MinimumNArgs(1),
	RunE:    runAsk,
}

func init() {
	f := askCmd.Flags()
	f.IntVarP(&askTopK, "top-k", "k", 0, "number of chunks to retrieve; overrides TOP_K")
	f.BoolVar(&askShowContext, "show-context", false, "print the retrieved chunks with their scores")
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, stop := runContext()
	defer stop()

	client, err := ollama.NewClient(cfg.Ollama(), logger)
	if err != nil {
		return err
	}

	store, pool, err := pgvector.Open(ctx, cfg.ConnectionString, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	opts := cfg.QueryOptions()
	if askTopK > 0 {
		opts.TopK = askTopK
	}
	querier, err := rag.NewQuerier(client, store, client, opts, logger)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, question := range args {
		answer, err := querier.Ask(ctx, question)
		if err != nil {
			return err
		}

		fmt.Fprintf(out, "\nQuestion: %s\n", question)
		if askShowContext {
			for i, r := range answer.Context {
				fmt.Fprintf(out, "\n[%d] %.4f %s\n%s\n", i+1, r.Score, r.Metadata.Source, indent(r.Text))
			}
		}
		fmt.Fprintf(out, "\nAnswer: %s\n", strings.TrimSpace(answer.Text))
	}
	return nil
}

func indent(s string) string {
	return "    " + strings.ReplaceAll(s, "\n", "\n    ")
}
