// Package model defines the core domain types shared across the engine:
// canonical categories, areas, data sources, mappings, observations, and
// the closed enumerations they reference.
package model

import "github.com/rotisserie/eris"

// Severity ranks how serious a canonical crime category is.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// ParseSeverity converts a string into a Severity.
func ParseSeverity(s string) (Severity, error) {
	switch Severity(s) {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return Severity(s), nil
	default:
		return "", eris.Errorf("model: unknown severity %q (valid: critical, high, medium, low)", s)
	}
}

// Group buckets canonical categories for display and filtering.
type Group string

const (
	GroupViolent  Group = "violent"
	GroupProperty Group = "property"
	GroupDrug     Group = "drug"
	GroupOther    Group = "other"
)

// ParseGroup converts a string into a Group.
func ParseGroup(s string) (Group, error) {
	switch Group(s) {
	case GroupViolent, GroupProperty, GroupDrug, GroupOther:
		return Group(s), nil
	default:
		return "", eris.Errorf("model: unknown group %q (valid: violent, property, drug, other)", s)
	}
}

// Granularity is the temporal resolution of an observation.
type Granularity string

const (
	GranularityMonthly   Granularity = "monthly"
	GranularityQuarterly Granularity = "quarterly"
	GranularityYearly    Granularity = "yearly"
)

// ParseGranularity converts a string into a Granularity.
func ParseGranularity(s string) (Granularity, error) {
	switch Granularity(s) {
	case GranularityMonthly, GranularityQuarterly, GranularityYearly:
		return Granularity(s), nil
	default:
		return "", eris.Errorf("model: unknown granularity %q (valid: monthly, quarterly, yearly)", s)
	}
}

// AreaLevel is a level in the administrative area tree.
type AreaLevel string

const (
	LevelCountry    AreaLevel = "country"
	LevelRegion     AreaLevel = "region"
	LevelDepartment AreaLevel = "department"
)

// ParseAreaLevel converts a string into an AreaLevel.
func ParseAreaLevel(s string) (AreaLevel, error) {
	switch AreaLevel(s) {
	case LevelCountry, LevelRegion, LevelDepartment:
		return AreaLevel(s), nil
	default:
		return "", eris.Errorf("model: unknown area level %q (valid: country, region, department)", s)
	}
}

// Parent returns the next level up the area tree, or "" for the top level.
func (l AreaLevel) Parent() AreaLevel {
	switch l {
	case LevelDepartment:
		return LevelRegion
	case LevelRegion:
		return LevelCountry
	default:
		return ""
	}
}
