package model

// Area is a node in the strict administrative tree
// country > region > department. (Code, Level) is unique; every non-top
// area references a resolvable parent.
type Area struct {
	Code        string    `json:"code" yaml:"code"`
	Name        string    `json:"name" yaml:"name"`
	Level       AreaLevel `json:"level" yaml:"level"`
	ParentCode  *string   `json:"parent_code,omitempty" yaml:"parent_code,omitempty"`
	CountryCode string    `json:"country_code" yaml:"country_code"`

	// Centroid and bounding box are populated by the boundary loader and
	// consumed by the map layer; nil until a boundary file is loaded.
	CentroidLon *float64 `json:"centroid_lon,omitempty" yaml:"centroid_lon,omitempty"`
	CentroidLat *float64 `json:"centroid_lat,omitempty" yaml:"centroid_lat,omitempty"`
}

// Population is the denominator record for rate normalization.
type Population struct {
	AreaCode string `json:"area_code" yaml:"area_code"`
	Year     int    `json:"year" yaml:"year"`
	Count    int64  `json:"count" yaml:"count"`
	Source   string `json:"source,omitempty" yaml:"source,omitempty"`
}
