package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guardpost/pkg/errors"
	"guardpost/pkg/models"
)

func TestAccountCreate_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  CreateAccountRequest
		code string
	}{
		{"missing name", CreateAccountRequest{Email: "a@example.com", Role: models.RoleAgent}, "MISSING_NAME"},
		{"bad email", CreateAccountRequest{Name: "A", Email: "nope", Role: models.RoleAgent}, "BAD_EMAIL"},
		{"unknown role", CreateAccountRequest{Name: "A", Email: "a@example.com", Role: "root"}, "BAD_ROLE"},
		{"short embedding", CreateAccountRequest{Name: "A", Email: "a@example.com", Role: models.RoleAgent, BiometricRef: models.Vector{1, 2}}, "BAD_BIOMETRIC_REF"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.accountsS.Create(ctx, &tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.code, errors.AsAppError(err).Code)
		})
	}
}

func TestAccountCreate_NormalizesEmail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	account, err := env.accountsS.Create(ctx, &CreateAccountRequest{
		Name:  "Avery Quinn",
		Email: "  Avery.Quinn@Example.COM ",
		Role:  models.RoleSupervisor,
	})
	require.NoError(t, err)
	assert.Equal(t, "avery.quinn@example.com", account.Email)
	assert.Equal(t, models.AccountActive, account.Status)

	// Same address again collides on the unique index
	_, err = env.accountsS.Create(ctx, &CreateAccountRequest{
		Name:  "Imposter",
		Email: "avery.quinn@example.com",
		Role:  models.RoleAgent,
	})
	require.Error(t, err)
	assert.Equal(t, "EMAIL_TAKEN", errors.AsAppError(err).Code)
}

func TestSelfRegister_OnlyDuringBuffer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	event := env.seedEvent(t)
	event.AgentCreationBuffer = 30
	require.NoError(t, env.eventsRepo.Update(ctx, event))

	req := &CreateAccountRequest{Name: "Walk-up Agent", Email: "walkup@example.com"}

	// Too early: the 30 minute buffer has not opened
	env.accountsS.now = at(event.StartsAt.Add(-2 * time.Hour))
	_, _, err := env.accountsS.SelfRegister(ctx, event.ID, req)
	assert.True(t, errors.IsType(err, errors.OutOfWindow), "got %v", err)

	// Inside the buffer: account and confirmed assignment in one step
	env.accountsS.now = at(event.StartsAt.Add(-10 * time.Minute))
	account, assignment, err := env.accountsS.SelfRegister(ctx, event.ID, req)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAgent, account.Role)
	assert.Equal(t, models.AssignmentConfirmed, assignment.Status)
	assert.Equal(t, event.ID, assignment.EventID)
}

func TestSelfRegister_ClosedWithoutBuffer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// AgentCreationBuffer stays zero: walk-up registration is disabled
	event := env.seedEvent(t)

	env.accountsS.now = at(event.StartsAt.Add(5 * time.Minute))
	_, _, err := env.accountsS.SelfRegister(ctx, event.ID, &CreateAccountRequest{
		Name: "Walk-up", Email: "w@example.com",
	})
	assert.True(t, errors.IsType(err, errors.OutOfWindow), "got %v", err)
}

func TestEnrollBiometric(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	agent := env.seedAccount(t, models.RoleAgent, nil)

	err := env.accountsS.EnrollBiometric(ctx, agent.ID, models.Vector{1, 2, 3})
	require.Error(t, err)
	assert.Equal(t, "BAD_BIOMETRIC_REF", errors.AsAppError(err).Code)

	require.NoError(t, env.accountsS.EnrollBiometric(ctx, agent.ID, referenceVector()))

	reloaded, err := env.accounts.Get(ctx, agent.ID)
	require.NoError(t, err)
	assert.Len(t, reloaded.BiometricRef, 128)
}

func TestAccountLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	agent := env.seedAccount(t, models.RoleAgent, nil)

	require.NoError(t, env.accountsS.Suspend(ctx, agent.ID))
	require.NoError(t, env.accountsS.Suspend(ctx, agent.ID), "repeat suspend is a no-op")

	reloaded, err := env.accountsS.Get(ctx, agent.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AccountSuspended, reloaded.Status)

	require.NoError(t, env.accountsS.SoftDelete(ctx, agent.ID))
	_, err = env.accountsS.Get(ctx, agent.ID)
	assert.True(t, errors.IsType(err, errors.NotFound))

	require.NoError(t, env.accountsS.HardDelete(ctx, agent.ID))
}
