package geo

import (
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/crimestat-cli/internal/model"
)

// FieldMapping names the shapefile attribute fields carrying area metadata.
// Field matching is case-insensitive; ParentField may be empty for top-level
// boundary files.
type FieldMapping struct {
	CodeField   string
	NameField   string
	ParentField string
}

// LoadBoundaries reads a boundary shapefile and returns one area per
// record, with the centroid of each shape's bounding box attached.
// Records with a blank code are skipped, not failed.
func LoadBoundaries(shpPath string, level model.AreaLevel, countryCode string, fm FieldMapping) ([]model.Area, error) {
	if fm.CodeField == "" || fm.NameField == "" {
		return nil, eris.New("geo: field mapping needs code and name fields")
	}
	if _, err := model.ParseAreaLevel(string(level)); err != nil {
		return nil, err
	}

	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "geo: open shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	fieldIdx := make(map[string]int, len(fields))
	for i, f := range fields {
		name := strings.TrimRight(f.String(), "\x00")
		fieldIdx[strings.ToLower(name)] = i
	}

	attr := func(field string) string {
		idx, ok := fieldIdx[strings.ToLower(field)]
		if !ok {
			return ""
		}
		return strings.TrimSpace(strings.TrimRight(reader.Attribute(idx), "\x00"))
	}

	var areas []model.Area
	var skipped int
	for reader.Next() {
		_, shape := reader.Shape()

		area := model.Area{
			Code:        attr(fm.CodeField),
			Name:        attr(fm.NameField),
			Level:       level,
			CountryCode: countryCode,
		}
		if area.Code == "" {
			skipped++
			continue
		}
		if fm.ParentField != "" {
			if parent := attr(fm.ParentField); parent != "" {
				area.ParentCode = &parent
			}
		}
		area.CentroidLon, area.CentroidLat = centroid(shape)
		areas = append(areas, area)
	}

	if skipped > 0 {
		zap.L().Debug("geo: skipped boundary records without codes",
			zap.String("path", shpPath),
			zap.Int("skipped", skipped))
	}
	return areas, nil
}

// centroid returns the center of a shape's bounding box. Good enough for
// map label placement; this is not a polygon centroid.
func centroid(shape shp.Shape) (lon, lat *float64) {
	var coords []float64
	switch s := shape.(type) {
	case *shp.Point:
		coords = []float64{s.X, s.Y}
	case *shp.Polygon:
		for _, p := range s.Points {
			coords = append(coords, p.X, p.Y)
		}
	case *shp.PolyLine:
		for _, p := range s.Points {
			coords = append(coords, p.X, p.Y)
		}
	default:
		return nil, nil
	}
	if len(coords) == 0 {
		return nil, nil
	}

	b := geom.NewMultiPointFlat(geom.XY, coords).Bounds()
	cx := (b.Min(0) + b.Max(0)) / 2
	cy := (b.Min(1) + b.Max(1)) / 2
	return &cx, &cy
}

// ValidateTree checks that every non-top area references a parent present
// in the set being loaded or already known.
func ValidateTree(areas []model.Area, known map[string]bool) error {
	codes := make(map[string]bool, len(areas))
	for _, a := range areas {
		codes[a.Code] = true
	}
	for _, a := range areas {
		if a.Level.Parent() == "" {
			continue
		}
		if a.ParentCode == nil || *a.ParentCode == "" {
			return eris.Errorf("geo: area %s (%s) has no parent code", a.Code, a.Level)
		}
		if !codes[*a.ParentCode] && !known[*a.ParentCode] {
			return eris.Errorf("geo: area %s references unknown parent %s", a.Code, *a.ParentCode)
		}
	}
	return nil
}
