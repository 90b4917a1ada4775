package repository

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guardpost/pkg/errors"
	"guardpost/pkg/models"
)

func newAssignment(agentID, eventID string) *models.Assignment {
	return &models.Assignment{
		ID:         uuid.New().String(),
		AgentID:    agentID,
		EventID:    eventID,
		Status:     models.AssignmentConfirmed,
		AssignedBy: "admin-1",
	}
}

func TestAssignmentRepository_GuardKeyRejectsSecondLiveRow(t *testing.T) {
	repo := NewAssignmentRepository(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newAssignment("agent-1", "event-1")))

	err := repo.Create(ctx, newAssignment("agent-1", "event-1"))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.Validation))

	// Different pairs are unaffected
	require.NoError(t, repo.Create(ctx, newAssignment("agent-1", "event-2")))
	require.NoError(t, repo.Create(ctx, newAssignment("agent-2", "event-1")))
}

func TestAssignmentRepository_FindActive(t *testing.T) {
	repo := NewAssignmentRepository(setupTestDB(t))
	ctx := context.Background()

	missing, err := repo.FindActive(ctx, "agent-1", "event-1")
	require.NoError(t, err)
	assert.Nil(t, missing)

	a := newAssignment("agent-1", "event-1")
	require.NoError(t, repo.Create(ctx, a))

	found, err := repo.FindActive(ctx, "agent-1", "event-1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, a.ID, found.ID)
}

func TestAssignmentRepository_CancelFreesSlot(t *testing.T) {
	repo := NewAssignmentRepository(setupTestDB(t))
	ctx := context.Background()

	a := newAssignment("agent-1", "event-1")
	require.NoError(t, repo.Create(ctx, a))
	require.NoError(t, repo.Cancel(ctx, a))

	assert.Equal(t, models.AssignmentCancelled, a.Status)

	// Cancelled rows are invisible to FindActive and the pair can be re-assigned
	active, err := repo.FindActive(ctx, "agent-1", "event-1")
	require.NoError(t, err)
	assert.Nil(t, active)

	require.NoError(t, repo.Create(ctx, newAssignment("agent-1", "event-1")))
}

func TestAssignmentRepository_SoftDeleteFreesSlot(t *testing.T) {
	repo := NewAssignmentRepository(setupTestDB(t))
	ctx := context.Background()

	a := newAssignment("agent-1", "event-1")
	require.NoError(t, repo.Create(ctx, a))
	require.NoError(t, repo.SoftDelete(ctx, a.ID))

	_, err := repo.Get(ctx, a.ID)
	assert.True(t, errors.IsType(err, errors.NotFound))

	require.NoError(t, repo.Create(ctx, newAssignment("agent-1", "event-1")))
}

func TestAssignmentRepository_ListForEvent(t *testing.T) {
	repo := NewAssignmentRepository(setupTestDB(t))
	ctx := context.Background()

	a1 := newAssignment("agent-1", "event-1")
	a2 := newAssignment("agent-2", "event-1")
	cancelled := newAssignment("agent-3", "event-1")
	require.NoError(t, repo.Create(ctx, a1))
	require.NoError(t, repo.Create(ctx, a2))
	require.NoError(t, repo.Create(ctx, cancelled))
	require.NoError(t, repo.Cancel(ctx, cancelled))

	list, err := repo.ListForEvent(ctx, "event-1")
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
