package seed

import (
	"strings"

	"github.com/velociti/velociti/internal/datastore/entities"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/datatypes"
)

// Agent ids shipped with Velociti.
const (
	AgentCompetitive = "competitive"
	AgentPerformance = "performance"
	AgentNetwork     = "network"
)

// DefaultRoutes is the route network used for generated snapshots.
var DefaultRoutes = []string{
	"LHR-JFK", "LHR-BOS", "LHR-LAX", "LHR-DXB",
	"LHR-SIN", "LHR-HKG", "LGW-BCN", "MAN-JFK",
}

var titleCaser = cases.Title(language.English)

// DisplayName turns an agent id such as "route_pricing" into "Route Pricing Agent".
func DisplayName(id string) string {
	words := strings.NewReplacer("_", " ", "-", " ").Replace(id)
	return titleCaser.String(words) + " Agent"
}

// DefaultAgent pairs an agent with its action-agent config.
type DefaultAgent struct {
	Agent  entities.Agent
	Config entities.ActionAgentConfig
}

// DefaultAgents returns the built-in agents and their thresholds.
func DefaultAgents() []DefaultAgent {
	return []DefaultAgent{
		{
			Agent: entities.Agent{
				ID:            AgentCompetitive,
				Name:          DisplayName(AgentCompetitive),
				Status:        entities.AgentStatusActive,
				Accuracy:      80,
				Configuration: datatypes.JSON(`{"description":"Tracks competitor fares against ours per route"}`),
			},
			Config: entities.ActionAgentConfig{
				AgentID:          AgentCompetitive,
				Enabled:          true,
				ScheduleInterval: 3600,
				Thresholds: datatypes.NewJSONType(entities.Thresholds{
					Priority:      entities.PriorityHigh,
					CooldownHours: 24,
					Conditions: []entities.ThresholdCondition{
						{Property: "price_gap_pct", Operator: entities.OperatorGreaterOrEqual, Value: "10"},
					},
				}),
			},
		},
		{
			Agent: entities.Agent{
				ID:            AgentPerformance,
				Name:          DisplayName(AgentPerformance),
				Status:        entities.AgentStatusActive,
				Accuracy:      80,
				Configuration: datatypes.JSON(`{"description":"Watches load factor and yield for sustained drops"}`),
			},
			Config: entities.ActionAgentConfig{
				AgentID:          AgentPerformance,
				Enabled:          true,
				ScheduleInterval: 3600,
				Thresholds: datatypes.NewJSONType(entities.Thresholds{
					Priority:      entities.PriorityHigh,
					CooldownHours: 24,
					Conditions: []entities.ThresholdCondition{
						{Property: "load_factor", Operator: entities.OperatorLessThan, Value: "0.65", SustainedDays: 3},
					},
				}),
			},
		},
		{
			Agent: entities.Agent{
				ID:            AgentNetwork,
				Name:          DisplayName(AgentNetwork),
				Status:        entities.AgentStatusLearning,
				Accuracy:      70,
				Configuration: datatypes.JSON(`{"description":"Spots demand surges across the network"}`),
			},
			Config: entities.ActionAgentConfig{
				AgentID:          AgentNetwork,
				Enabled:          true,
				ScheduleInterval: 7200,
				Thresholds: datatypes.NewJSONType(entities.Thresholds{
					Priority:      entities.PriorityMedium,
					CooldownHours: 48,
					Conditions: []entities.ThresholdCondition{
						{Property: "demand_index", Operator: entities.OperatorGreaterOrEqual, Value: "1.3"},
					},
				}),
			},
		},
	}
}
