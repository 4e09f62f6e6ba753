package alerting

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/velociti/velociti/internal/datastore/entities"
)

func TestCanTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from, to string
		want     bool
	}{
		{entities.StatusActive, entities.StatusDismissed, true},
		{entities.StatusActive, entities.StatusEscalated, true},
		{entities.StatusEscalated, entities.StatusDismissed, true},
		{entities.StatusEscalated, entities.StatusActive, false},
		{entities.StatusDismissed, entities.StatusActive, false},
		{entities.StatusDismissed, entities.StatusEscalated, false},
		{entities.StatusActive, entities.StatusActive, true},
		{entities.StatusDismissed, entities.StatusDismissed, true},
		{entities.StatusActive, "archived", false},
		{"unknown", entities.StatusDismissed, false},
	}

	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}
