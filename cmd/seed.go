package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/crimestat-cli/internal/seed"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load the embedded taxonomy and reference data into the store",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		sum, err := seed.Apply(cmd.Context(), st)
		if err != nil {
			return err
		}
		zap.L().Info("seed complete",
			zap.Int("categories", sum.Categories),
			zap.Int64("sources", sum.Sources),
			zap.Int64("areas", sum.Areas),
			zap.Int64("populations", sum.Populations),
			zap.Int64("mappings", sum.Mappings),
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}
