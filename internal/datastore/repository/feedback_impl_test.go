package repository

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/velociti/velociti/internal/datastore/entities"
	"github.com/velociti/velociti/internal/testutil/testdb"
)

func TestFeedbackRepository_CreateListStats(t *testing.T) {
	t.Parallel()
	db := testdb.New(t)
	testdb.SeedAgent(t, db, "competitive")
	testdb.SeedAgent(t, db, "network")
	alerts := NewAlertRepository(db)
	repo := NewFeedbackRepository(db)
	ctx := t.Context()

	a1 := createTestAlert(t, alerts, "competitive", entities.PriorityHigh, time.Now().UTC())
	a2 := createTestAlert(t, alerts, "network", entities.PriorityLow, time.Now().UTC())

	comment := "fare matched within the hour"
	impact := 42000.0
	require.NoError(t, repo.Create(ctx, &entities.Feedback{
		AlertID: a1.ID, AgentID: "competitive", UserID: "analyst-1", Rating: 5,
		Comment: &comment, ActionTaken: true, ActualImpact: &impact,
	}))
	require.NoError(t, repo.Create(ctx, &entities.Feedback{AlertID: a1.ID, AgentID: "competitive", UserID: "analyst-2", Rating: 2}))
	require.NoError(t, repo.Create(ctx, &entities.Feedback{AlertID: a2.ID, AgentID: "network", UserID: "analyst-1", Rating: 4}))

	items, err := repo.ListByAlert(ctx, a1.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "analyst-1", items[0].UserID)
	require.NotNil(t, items[0].Comment)
	assert.Equal(t, comment, *items[0].Comment)
	assert.True(t, items[0].ActionTaken)

	stats, err := repo.StatsByAgent(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats["competitive"].Count)
	assert.InDelta(t, 3.5, stats["competitive"].AverageRating, 1e-9)
	assert.Equal(t, int64(1), stats["network"].Count)
	assert.InDelta(t, 4.0, stats["network"].AverageRating, 1e-9)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	none, err := repo.ListByAlert(ctx, uuid.NewString())
	require.NoError(t, err)
	assert.Empty(t, none)
}
