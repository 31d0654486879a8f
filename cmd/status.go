package main

import (
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent ingest runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		runs, err := st.ListIngestRuns(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(runs)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
