package alerting

import (
	"slices"

	"github.com/velociti/velociti/internal/datastore/entities"
)

// Schema describes the enumerations and policies the dashboard needs to
// build alert filters, status menus and agent threshold editors.
type Schema struct {
	Priorities    []string            `json:"priorities"`
	Categories    []string            `json:"categories"`
	Statuses      []string            `json:"statuses"`
	Transitions   map[string][]string `json:"transitions"`
	AgentStatuses []string            `json:"agent_statuses"`
	MetadataKinds []string            `json:"metadata_kinds"`
	Properties    []PropertySchema    `json:"properties"`
	Operators     []OperatorSchema    `json:"operators"`
	Limits        LimitSchema         `json:"limits"`
}

// PropertySchema describes a route property available for threshold conditions.
type PropertySchema struct {
	Name      string   `json:"name"`
	Label     string   `json:"label"`
	Type      string   `json:"type"` // "string" or "number"
	Unit      string   `json:"unit,omitempty"`
	Operators []string `json:"operators"`
}

// OperatorSchema describes an operator for the UI.
type OperatorSchema struct {
	Name  string `json:"name"`
	Label string `json:"label"`
	Type  string `json:"type"` // "string" or "number"
}

// LimitSchema exposes the list limit contract.
type LimitSchema struct {
	Default int `json:"default"`
	Max     int `json:"max"`
}

// stringOperators are operators valid for string properties.
var stringOperators = []string{entities.OperatorIs, entities.OperatorIsNot}

// numericOperators are operators valid for numeric properties.
var numericOperators = []string{
	entities.OperatorGreaterThan, entities.OperatorLessThan,
	entities.OperatorGreaterOrEqual, entities.OperatorLessOrEqual,
}

// GetSchema returns the alerting schema.
func GetSchema() Schema {
	return Schema{
		Priorities:    slices.Clone(entities.Priorities),
		Categories:    slices.Clone(entities.Categories),
		Statuses:      slices.Clone(entities.Statuses),
		Transitions:   Transitions(),
		AgentStatuses: slices.Clone(entities.AgentStatuses),
		MetadataKinds: []string{
			entities.MetadataCompetitive,
			entities.MetadataPerformance,
			entities.MetadataNetwork,
			entities.MetadataOpaque,
		},
		Properties: routeProperties(),
		Operators: []OperatorSchema{
			{Name: entities.OperatorIs, Label: "is", Type: "string"},
			{Name: entities.OperatorIsNot, Label: "is not", Type: "string"},
			{Name: entities.OperatorGreaterThan, Label: ">", Type: "number"},
			{Name: entities.OperatorLessThan, Label: "<", Type: "number"},
			{Name: entities.OperatorGreaterOrEqual, Label: ">=", Type: "number"},
			{Name: entities.OperatorLessOrEqual, Label: "<=", Type: "number"},
		},
		Limits: LimitSchema{Default: DefaultListLimit, Max: MaxListLimit},
	}
}

func routeProperties() []PropertySchema {
	return []PropertySchema{
		{Name: PropertyRoute, Label: "Route", Type: "string", Operators: stringOperators},
		{Name: PropertyLoadFactor, Label: "Load factor", Type: "number", Unit: "ratio", Operators: numericOperators},
		{Name: PropertyYield, Label: "Yield", Type: "number", Operators: numericOperators},
		{Name: PropertyPriceGapPct, Label: "Price gap", Type: "number", Unit: "%", Operators: numericOperators},
		{Name: PropertyDemandIndex, Label: "Demand index", Type: "number", Operators: numericOperators},
		{Name: PropertyOurPrice, Label: "Our price", Type: "number", Operators: numericOperators},
		{Name: PropertyCompetitorPrice, Label: "Competitor price", Type: "number", Operators: numericOperators},
	}
}

// IsKnownProperty reports whether name is a route property.
func IsKnownProperty(name string) bool {
	for _, p := range routeProperties() {
		if p.Name == name {
			return true
		}
	}
	return false
}
