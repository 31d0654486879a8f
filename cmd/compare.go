package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/sells-group/crimestat-cli/internal/compare"
	"github.com/sells-group/crimestat-cli/internal/store"
	"github.com/sells-group/crimestat-cli/internal/taxonomy"
)

var (
	cmpArea     string
	cmpAreaA    string
	cmpAreaB    string
	cmpYear     int
	cmpYearA    int
	cmpYearB    int
	cmpSource   string
	cmpSourceA  string
	cmpSourceB  string
	cmpCategory string
)

func newCompareEngine(ctx context.Context) (*compare.Engine, store.Store, error) {
	st, err := openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	reg, err := taxonomy.Load()
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	return compare.NewEngine(st, st, reg), st, nil
}

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Compare observation slices across areas, years, or data sources",
	Long: "Each comparison aligns two slices on the canonical taxonomy and reports counts, per-100k\n" +
		"rates, differences, and percentage changes per category. Percentage changes are relative\n" +
		"to side A; swapping the sides changes their magnitude, not just their sign.",
}

var compareAreasCmd = &cobra.Command{
	Use:   "areas",
	Short: "Compare two areas for one year and source",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, st, err := newCompareEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		items, err := engine.CompareAreas(cmd.Context(), cmpAreaA, cmpAreaB, cmpYear, cmpSource, cmpCategory)
		if err != nil {
			return err
		}
		return printJSON(items)
	},
}

var compareYearsCmd = &cobra.Command{
	Use:   "years",
	Short: "Compare two years for one area and source",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, st, err := newCompareEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		items, err := engine.CompareYears(cmd.Context(), cmpArea, cmpYearA, cmpYearB, cmpSource, cmpCategory)
		if err != nil {
			return err
		}
		return printJSON(items)
	},
}

var compareSourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Compare two data sources for one area and year",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, st, err := newCompareEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		items, err := engine.CompareSources(cmd.Context(), cmpArea, cmpYear, cmpSourceA, cmpSourceB, cmpCategory)
		if err != nil {
			return err
		}
		return printJSON(items)
	},
}

func init() {
	compareAreasCmd.Flags().StringVar(&cmpAreaA, "area-a", "", "first area code")
	compareAreasCmd.Flags().StringVar(&cmpAreaB, "area-b", "", "second area code")
	compareAreasCmd.Flags().IntVar(&cmpYear, "year", 0, "year")
	compareAreasCmd.Flags().StringVar(&cmpSource, "source", "", "data source code")
	_ = compareAreasCmd.MarkFlagRequired("area-a")
	_ = compareAreasCmd.MarkFlagRequired("area-b")
	_ = compareAreasCmd.MarkFlagRequired("year")
	_ = compareAreasCmd.MarkFlagRequired("source")

	compareYearsCmd.Flags().StringVar(&cmpArea, "area", "", "area code")
	compareYearsCmd.Flags().IntVar(&cmpYearA, "year-a", 0, "baseline year")
	compareYearsCmd.Flags().IntVar(&cmpYearB, "year-b", 0, "comparison year")
	compareYearsCmd.Flags().StringVar(&cmpSource, "source", "", "data source code")
	_ = compareYearsCmd.MarkFlagRequired("area")
	_ = compareYearsCmd.MarkFlagRequired("year-a")
	_ = compareYearsCmd.MarkFlagRequired("year-b")
	_ = compareYearsCmd.MarkFlagRequired("source")

	compareSourcesCmd.Flags().StringVar(&cmpArea, "area", "", "area code")
	compareSourcesCmd.Flags().IntVar(&cmpYear, "year", 0, "year")
	compareSourcesCmd.Flags().StringVar(&cmpSourceA, "source-a", "", "baseline data source code")
	compareSourcesCmd.Flags().StringVar(&cmpSourceB, "source-b", "", "comparison data source code")
	_ = compareSourcesCmd.MarkFlagRequired("area")
	_ = compareSourcesCmd.MarkFlagRequired("year")
	_ = compareSourcesCmd.MarkFlagRequired("source-a")
	_ = compareSourcesCmd.MarkFlagRequired("source-b")

	compareCmd.PersistentFlags().StringVar(&cmpCategory, "category", "", "restrict to one canonical category")
	compareCmd.AddCommand(compareAreasCmd, compareYearsCmd, compareSourcesCmd)
	rootCmd.AddCommand(compareCmd)
}
