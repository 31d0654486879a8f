package main

import (
	"sort"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/crimestat-cli/internal/aggregate"
	"github.com/sells-group/crimestat-cli/internal/model"
	"github.com/sells-group/crimestat-cli/internal/store"
)

var (
	choroYear     int
	choroYearFrom int
	choroYearTo   int
	choroMode     string
	choroLevel    string
	choroCategory string
)

// choroValue is one area's aggregated map value.
type choroValue struct {
	AreaCode string  `json:"area_code"`
	Value    float64 `json:"value"`
}

var choroplethCmd = &cobra.Command{
	Use:   "choropleth",
	Short: "Aggregate observations into one value per area for map display",
	Long: "Deduplicates overlapping sources per (area, category, year) by source precedence, then\n" +
		"sums counts or averages non-nil per-100k rates per area.",
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := aggregate.ParseMode(choroMode)
		if err != nil {
			return err
		}

		filter := store.ObservationFilter{
			CategoryCode: choroCategory,
			Granularity:  model.GranularityYearly,
		}
		switch {
		case choroYear != 0:
			filter.Year = choroYear
		case choroYearFrom != 0 && choroYearTo != 0:
			if choroYearTo < choroYearFrom {
				return eris.New("--year-to must not precede --year-from")
			}
			filter.YearFrom, filter.YearTo = choroYearFrom, choroYearTo
		default:
			return eris.New("--year or --year-from/--year-to is required")
		}
		if choroLevel != "" {
			level, err := model.ParseAreaLevel(choroLevel)
			if err != nil {
				return err
			}
			filter.Level = level
		}

		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		observations, err := st.ListObservations(cmd.Context(), filter)
		if err != nil {
			return err
		}
		sources, err := st.ListSources(cmd.Context())
		if err != nil {
			return err
		}
		precedence := make(map[string]int, len(sources))
		for _, src := range sources {
			precedence[src.Code] = src.Precedence
		}

		values, err := aggregate.Aggregate(observations, mode, precedence)
		if err != nil {
			return err
		}

		out := make([]choroValue, 0, len(values))
		for areaCode, v := range values {
			out = append(out, choroValue{AreaCode: areaCode, Value: v})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].AreaCode < out[j].AreaCode })
		return printJSON(out)
	},
}

func init() {
	choroplethCmd.Flags().IntVar(&choroYear, "year", 0, "single year")
	choroplethCmd.Flags().IntVar(&choroYearFrom, "year-from", 0, "range start (inclusive)")
	choroplethCmd.Flags().IntVar(&choroYearTo, "year-to", 0, "range end (inclusive)")
	choroplethCmd.Flags().StringVar(&choroMode, "mode", "count", "aggregation mode: count or rate")
	choroplethCmd.Flags().StringVar(&choroLevel, "level", "", "restrict to one area level")
	choroplethCmd.Flags().StringVar(&choroCategory, "category", "", "restrict to one canonical category")
	rootCmd.AddCommand(choroplethCmd)
}
