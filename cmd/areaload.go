package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/crimestat-cli/internal/geo"
	"github.com/sells-group/crimestat-cli/internal/model"
)

var (
	arealoadLevel       string
	arealoadCodeField   string
	arealoadNameField   string
	arealoadParentField string
)

var arealoadCmd = &cobra.Command{
	Use:   "areaload <boundaries.shp>",
	Short: "Load administrative areas from a boundary shapefile",
	Long: "Reads one administrative level from a shapefile, attaches bounding-box centroids, checks\n" +
		"that every area's parent is resolvable, and upserts the result.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		level, err := model.ParseAreaLevel(arealoadLevel)
		if err != nil {
			return err
		}

		fm := geo.FieldMapping{
			CodeField:   arealoadCodeField,
			NameField:   arealoadNameField,
			ParentField: arealoadParentField,
		}
		if fm.CodeField == "" {
			fm.CodeField = cfg.Geo.CodeField
		}
		if fm.NameField == "" {
			fm.NameField = cfg.Geo.NameField
		}
		if fm.ParentField == "" && level.Parent() != "" {
			fm.ParentField = cfg.Geo.ParentField
		}

		areas, err := geo.LoadBoundaries(args[0], level, cfg.Geo.CountryCode, fm)
		if err != nil {
			return err
		}

		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		known := map[string]bool{}
		if parentLevel := level.Parent(); parentLevel != "" {
			parents, err := st.ListAreas(cmd.Context(), parentLevel)
			if err != nil {
				return err
			}
			for _, p := range parents {
				known[p.Code] = true
			}
		}
		if err := geo.ValidateTree(areas, known); err != nil {
			return err
		}

		n, err := st.UpsertAreas(cmd.Context(), areas)
		if err != nil {
			return err
		}
		zap.L().Info("areas loaded",
			zap.String("level", string(level)),
			zap.Int("parsed", len(areas)),
			zap.Int64("upserted", n),
		)
		return nil
	},
}

func init() {
	arealoadCmd.Flags().StringVar(&arealoadLevel, "level", "department", "area level in the file")
	arealoadCmd.Flags().StringVar(&arealoadCodeField, "code-field", "", "attribute field with the area code (default from config)")
	arealoadCmd.Flags().StringVar(&arealoadNameField, "name-field", "", "attribute field with the area name (default from config)")
	arealoadCmd.Flags().StringVar(&arealoadParentField, "parent-field", "", "attribute field with the parent code (default from config)")
	rootCmd.AddCommand(arealoadCmd)
}
