package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/crimestat-cli/internal/ingest"
)

var ingestConcurrency int

var ingestCmd = &cobra.Command{
	Use:   "ingest <feed.json> [feed.json...]",
	Short: "Ingest source feed files",
	Long: "Resolves each feed's source category codes against the mapping table, aggregates counts\n" +
		"per observation key, computes per-100k rates where populations are known, and upserts the\n" +
		"results. Unmapped and invalid records are counted and skipped.",
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		concurrency := ingestConcurrency
		if concurrency == 0 {
			concurrency = cfg.Ingest.Concurrency
		}

		engine := ingest.NewEngine(st)
		results, err := engine.IngestFiles(cmd.Context(), args, concurrency)
		for _, r := range results {
			zap.L().Info("feed ingested",
				zap.String("path", r.Path),
				zap.String("source", r.Source),
				zap.Int64("rows", r.Result.RowsUpserted),
				zap.Int("mapped", r.Result.Mapped),
				zap.Int("unmapped", r.Result.Unmapped),
				zap.Int("invalid", r.Result.Invalid),
			)
		}
		if err != nil {
			return eris.Wrap(err, "ingest")
		}
		return nil
	},
}

func init() {
	ingestCmd.Flags().IntVar(&ingestConcurrency, "concurrency", 0, "parallel feeds (default from config)")
	rootCmd.AddCommand(ingestCmd)
}
