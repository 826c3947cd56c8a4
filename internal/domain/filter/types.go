// Package filter defines the structured list-filter language handlers pass
// down to repositories. Field names are validated against each repository's
// column whitelist before they reach SQL.
package filter

// ComparisonType names a comparison operator.
type ComparisonType string

const (
	Equal          ComparisonType = "eq"
	NotEqual       ComparisonType = "neq"
	Less           ComparisonType = "lt"
	LessOrEqual    ComparisonType = "lte"
	Greater        ComparisonType = "gt"
	GreaterOrEqual ComparisonType = "gte"
	InList         ComparisonType = "in"
	NotInList      ComparisonType = "nin"
	Contains       ComparisonType = "contains"  // ILIKE %val%
	NotContains    ComparisonType = "ncontains" // NOT ILIKE %val%
	IsNull         ComparisonType = "null"
	IsNotNull      ComparisonType = "not_null"
)

// Item is one filter condition.
type Item struct {
	Field    string         `json:"field"` // column name, snake_case
	Operator ComparisonType `json:"operator"`
	Value    any            `json:"value"`
}
