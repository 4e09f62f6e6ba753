package alerting

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/velociti/velociti/internal/datastore/entities"
)

func TestGetSchema_Enumerations(t *testing.T) {
	t.Parallel()

	schema := GetSchema()
	assert.Equal(t, []string{"critical", "high", "medium", "low"}, schema.Priorities)
	assert.ElementsMatch(t, []string{"competitive", "performance", "network"}, schema.Categories)
	assert.ElementsMatch(t, []string{"active", "dismissed", "escalated"}, schema.Statuses)
	assert.ElementsMatch(t, entities.AgentStatuses, schema.AgentStatuses)
	assert.Equal(t, LimitSchema{Default: 50, Max: 200}, schema.Limits)
}

func TestGetSchema_TransitionsMatchPolicy(t *testing.T) {
	t.Parallel()

	schema := GetSchema()
	for from, targets := range schema.Transitions {
		for _, to := range targets {
			assert.True(t, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
	assert.Empty(t, schema.Transitions[entities.StatusDismissed])
}

func TestGetSchema_IsACopy(t *testing.T) {
	t.Parallel()

	schema := GetSchema()
	schema.Priorities[0] = "mutated"
	schema.Transitions[entities.StatusActive][0] = "mutated"

	fresh := GetSchema()
	assert.Equal(t, entities.PriorityCritical, fresh.Priorities[0])
	assert.True(t, CanTransition(entities.StatusActive, entities.StatusDismissed))
}

func TestGetSchema_PropertyOperatorsAreKnown(t *testing.T) {
	t.Parallel()

	schema := GetSchema()
	known := make(map[string]string, len(schema.Operators))
	for _, op := range schema.Operators {
		known[op.Name] = op.Type
	}
	for _, p := range schema.Properties {
		require.NotEmpty(t, p.Operators, p.Name)
		for _, op := range p.Operators {
			assert.Equal(t, p.Type, known[op], "%s on %s", op, p.Name)
		}
		assert.True(t, IsKnownProperty(p.Name))
	}
	assert.False(t, IsKnownProperty("species_name"))
}

func TestGetSchema_JSONShape(t *testing.T) {
	t.Parallel()

	b, err := json.Marshal(GetSchema())
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(b, &raw))
	for _, key := range []string{"priorities", "categories", "statuses", "transitions", "agent_statuses", "metadata_kinds", "properties", "operators", "limits"} {
		assert.Contains(t, raw, key)
	}
}
