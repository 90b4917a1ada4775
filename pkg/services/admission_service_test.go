package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guardpost/pkg/bus"
	"guardpost/pkg/errors"
	"guardpost/pkg/events"
	"guardpost/pkg/models"
)

// Positions relative to the seeded event center (48.8566, 2.3522), radius
// 150m: one degree of latitude is about 111.2km.
const (
	latInside   = 48.8573 // ~78m out
	latBoundary = 48.8584 // ~200m out, inside the 1.5x tolerance band
	latOutside  = 48.8666 // ~1.1km out
	testLon     = 2.3522
)

func checkInAt(agent *models.Account, event *models.Event, lat float64) *CheckInRequest {
	return &CheckInRequest{
		AgentID:         agent.ID,
		EventID:         event.ID,
		Lat:             lat,
		Lon:             testLon,
		BiometricSample: matchingSample(),
		ActingAccountID: agent.ID,
	}
}

func TestCheckIn_SelfServiceAdmitted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	agent := env.seedAccount(t, models.RoleAgent, referenceVector())
	event := env.seedEvent(t)
	env.seedConfirmedAssignment(t, agent.ID, event.ID, nil)

	env.admission.now = at(event.StartsAt.Add(5 * time.Minute))

	record, err := env.admission.CheckIn(ctx, checkInAt(agent, event, latInside))
	require.NoError(t, err)

	assert.Equal(t, models.AttendancePresent, record.Status)
	assert.Equal(t, models.SourceSelf, record.CheckInSource)
	assert.True(t, record.FacialVerified)
	assert.InDelta(t, 100, record.MatchScore, 0.01)
	assert.InDelta(t, 78, record.DistanceM, 5)
	assert.Empty(t, record.Flags)

	published := env.dispatcher.byType(events.EventAttendanceCreated)
	require.Len(t, published, 1)
	assert.Contains(t, published[0].Rooms, bus.EventRoom(event.ID))
	assert.Contains(t, published[0].Rooms, bus.AccountRoom(agent.ID))
}

func TestCheckIn_SecondAttemptIsDuplicate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	agent := env.seedAccount(t, models.RoleAgent, referenceVector())
	event := env.seedEvent(t)
	env.seedConfirmedAssignment(t, agent.ID, event.ID, nil)

	env.admission.now = at(event.StartsAt.Add(5 * time.Minute))
	first, err := env.admission.CheckIn(ctx, checkInAt(agent, event, latInside))
	require.NoError(t, err)

	env.admission.now = at(event.StartsAt.Add(6 * time.Minute))
	_, err = env.admission.CheckIn(ctx, checkInAt(agent, event, latInside))
	require.Error(t, err)

	appErr := errors.AsAppError(err)
	assert.Equal(t, errors.DuplicateAttendance, appErr.Type)
	assert.Equal(t, first.ID, appErr.Details["existing_record_id"])
	assert.Equal(t, models.SourceSelf, appErr.Details["existing_source"])

	// The original record is untouched
	reloaded, err := env.attendance.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.CheckInAt.Unix(), reloaded.CheckInAt.Unix())
}

func TestCheckIn_ConcurrentAttemptsSingleWinner(t *testing.T) {
	env := newTestEnv(t)

	agent := env.seedAccount(t, models.RoleAgent, referenceVector())
	event := env.seedEvent(t)
	env.seedConfirmedAssignment(t, agent.ID, event.ID, nil)
	env.admission.now = at(event.StartsAt.Add(5 * time.Minute))

	const attempts = 8
	results := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = env.admission.CheckIn(context.Background(), checkInAt(agent, event, latInside))
		}(i)
	}
	wg.Wait()

	var admitted, duplicates int
	for _, err := range results {
		switch {
		case err == nil:
			admitted++
		case errors.IsType(err, errors.DuplicateAttendance):
			duplicates++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, admitted, "exactly one attempt must win")
	assert.Equal(t, attempts-1, duplicates)
}

func TestCheckIn_TemporalGate(t *testing.T) {
	tests := []struct {
		name    string
		instant time.Time
		wantErr bool
	}{
		{"before the window opens", time.Date(2026, 6, 1, 8, 30, 0, 0, time.UTC), true},
		{"at window open", time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC), false},
		{"at window close", time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC), false},
		{"after the window closes", time.Date(2026, 6, 1, 12, 1, 0, 0, time.UTC), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			agent := env.seedAccount(t, models.RoleAgent, referenceVector())
			event := env.seedEvent(t)
			env.seedConfirmedAssignment(t, agent.ID, event.ID, nil)
			env.admission.now = at(tt.instant)

			_, err := env.admission.CheckIn(context.Background(), checkInAt(agent, event, latInside))
			if tt.wantErr {
				assert.True(t, errors.IsType(err, errors.OutOfWindow), "got %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCheckIn_LateAfterGracePeriod(t *testing.T) {
	env := newTestEnv(t)

	agent := env.seedAccount(t, models.RoleAgent, referenceVector())
	event := env.seedEvent(t)
	env.seedConfirmedAssignment(t, agent.ID, event.ID, nil)

	// 20 minutes after start, past the 15 minute grace period
	env.admission.now = at(event.StartsAt.Add(20 * time.Minute))

	record, err := env.admission.CheckIn(context.Background(), checkInAt(agent, event, latInside))
	require.NoError(t, err)
	assert.Equal(t, models.AttendanceLate, record.Status)
}

func TestCheckIn_GeofenceBoundaryBand(t *testing.T) {
	env := newTestEnv(t)

	agent := env.seedAccount(t, models.RoleAgent, referenceVector())
	event := env.seedEvent(t)
	env.seedConfirmedAssignment(t, agent.ID, event.ID, nil)
	env.admission.now = at(event.StartsAt.Add(5 * time.Minute))

	record, err := env.admission.CheckIn(context.Background(), checkInAt(agent, event, latBoundary))
	require.NoError(t, err)
	assert.Contains(t, []string(record.Flags), models.FlagBoundary)
}

func TestCheckIn_OutsideGeofenceRejectsSelf(t *testing.T) {
	env := newTestEnv(t)

	agent := env.seedAccount(t, models.RoleAgent, referenceVector())
	event := env.seedEvent(t)
	env.seedConfirmedAssignment(t, agent.ID, event.ID, nil)
	env.admission.now = at(event.StartsAt.Add(5 * time.Minute))

	_, err := env.admission.CheckIn(context.Background(), checkInAt(agent, event, latOutside))
	require.Error(t, err)

	appErr := errors.AsAppError(err)
	assert.Equal(t, errors.OutOfGeofence, appErr.Type)
	assert.Greater(t, appErr.Details["distance_m"].(float64), 150.0)
}

func TestCheckIn_OutsideGeofenceAdminOverride(t *testing.T) {
	env := newTestEnv(t)

	agent := env.seedAccount(t, models.RoleAgent, referenceVector())
	admin := env.seedAccount(t, models.RoleAdmin, nil)
	event := env.seedEvent(t)
	env.seedConfirmedAssignment(t, agent.ID, event.ID, nil)
	env.admission.now = at(event.StartsAt.Add(5 * time.Minute))

	record, err := env.admission.CheckIn(context.Background(), &CheckInRequest{
		AgentID:         agent.ID,
		EventID:         event.ID,
		Lat:             latOutside,
		Lon:             testLon,
		ActingAccountID: admin.ID,
	})
	require.NoError(t, err)

	assert.Equal(t, models.SourceAdmin, record.CheckInSource)
	assert.Contains(t, []string(record.Flags), models.FlagGeofenceOverride)
	// No biometric sample was presented, so the admission is flagged
	assert.Contains(t, []string(record.Flags), models.FlagUnverifiedBiometric)
	assert.False(t, record.FacialVerified)
	assert.Contains(t, record.Note, "vouched")
}

func TestCheckIn_BiometricGate(t *testing.T) {
	env := newTestEnv(t)

	event := env.seedEvent(t)
	env.admission.now = at(event.StartsAt.Add(5 * time.Minute))

	t.Run("self below threshold rejected", func(t *testing.T) {
		agent := env.seedAccount(t, models.RoleAgent, referenceVector())
		env.seedConfirmedAssignment(t, agent.ID, event.ID, nil)

		req := checkInAt(agent, event, latInside)
		req.BiometricSample = failingSample()

		_, err := env.admission.CheckIn(context.Background(), req)
		require.Error(t, err)
		appErr := errors.AsAppError(err)
		assert.Equal(t, errors.NotAuthorized, appErr.Type)
		assert.Equal(t, "BIOMETRIC_REJECTED", appErr.Code)
	})

	t.Run("self without enrolled reference rejected", func(t *testing.T) {
		agent := env.seedAccount(t, models.RoleAgent, nil)
		env.seedConfirmedAssignment(t, agent.ID, event.ID, nil)

		_, err := env.admission.CheckIn(context.Background(), checkInAt(agent, event, latInside))
		require.Error(t, err)
		assert.Equal(t, "NO_BIOMETRIC_REF", errors.AsAppError(err).Code)
	})

	t.Run("assisted below threshold admits with flag", func(t *testing.T) {
		agent := env.seedAccount(t, models.RoleAgent, referenceVector())
		admin := env.seedAccount(t, models.RoleAdmin, nil)
		env.seedConfirmedAssignment(t, agent.ID, event.ID, nil)

		record, err := env.admission.CheckIn(context.Background(), &CheckInRequest{
			AgentID:         agent.ID,
			EventID:         event.ID,
			Lat:             latInside,
			Lon:             testLon,
			BiometricSample: failingSample(),
			ActingAccountID: admin.ID,
		})
		require.NoError(t, err)
		assert.False(t, record.FacialVerified)
		assert.Contains(t, []string(record.Flags), models.FlagUnverifiedBiometric)
	})
}

func TestCheckIn_AuthorizationGate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	event := env.seedEvent(t)
	env.admission.now = at(event.StartsAt.Add(5 * time.Minute))

	t.Run("no assignment", func(t *testing.T) {
		agent := env.seedAccount(t, models.RoleAgent, referenceVector())
		_, err := env.admission.CheckIn(ctx, checkInAt(agent, event, latInside))
		assert.True(t, errors.IsType(err, errors.NotAuthorized), "got %v", err)
	})

	t.Run("pending assignment", func(t *testing.T) {
		agent := env.seedAccount(t, models.RoleAgent, referenceVector())
		assignment := env.seedConfirmedAssignment(t, agent.ID, event.ID, nil)
		assignment.Status = models.AssignmentPending
		require.NoError(t, env.assignments.Update(ctx, assignment))

		_, err := env.admission.CheckIn(ctx, checkInAt(agent, event, latInside))
		assert.True(t, errors.IsType(err, errors.NotAuthorized), "got %v", err)
	})

	t.Run("suspended agent", func(t *testing.T) {
		agent := env.seedAccount(t, models.RoleAgent, referenceVector())
		env.seedConfirmedAssignment(t, agent.ID, event.ID, nil)
		require.NoError(t, env.accountsS.Suspend(ctx, agent.ID))

		_, err := env.admission.CheckIn(ctx, checkInAt(agent, event, latInside))
		assert.True(t, errors.IsType(err, errors.NotAuthorized), "got %v", err)
	})

	t.Run("unrelated supervisor rejected", func(t *testing.T) {
		agent := env.seedAccount(t, models.RoleAgent, referenceVector())
		supervisor := env.seedAccount(t, models.RoleSupervisor, nil)
		env.seedZone(t, event, "somebody-else")
		env.seedConfirmedAssignment(t, agent.ID, event.ID, nil)

		req := checkInAt(agent, event, latInside)
		req.ActingAccountID = supervisor.ID
		_, err := env.admission.CheckIn(ctx, req)
		assert.True(t, errors.IsType(err, errors.NotAuthorized), "got %v", err)
	})

	t.Run("zone supervisor admitted", func(t *testing.T) {
		agent := env.seedAccount(t, models.RoleAgent, referenceVector())
		supervisor := env.seedAccount(t, models.RoleSupervisor, nil)
		zone := env.seedZone(t, event, supervisor.ID)
		env.seedConfirmedAssignment(t, agent.ID, event.ID, &zone.ID)

		record, err := env.admission.CheckIn(ctx, &CheckInRequest{
			AgentID:         agent.ID,
			EventID:         event.ID,
			ZoneID:          &zone.ID,
			Lat:             latInside,
			Lon:             testLon,
			ActingAccountID: supervisor.ID,
		})
		require.NoError(t, err)
		assert.Equal(t, models.SourceSupervisor, record.CheckInSource)
	})
}

func TestCheckOut(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	agent := env.seedAccount(t, models.RoleAgent, referenceVector())
	event := env.seedEvent(t)
	env.seedConfirmedAssignment(t, agent.ID, event.ID, nil)

	outReq := &CheckOutRequest{AgentID: agent.ID, EventID: event.ID, ActingAccountID: agent.ID}

	t.Run("without a check-in", func(t *testing.T) {
		env.admission.now = at(event.StartsAt.Add(30 * time.Minute))
		_, err := env.admission.CheckOut(ctx, outReq)
		assert.True(t, errors.IsType(err, errors.NotCheckedIn), "got %v", err)
	})

	env.admission.now = at(event.StartsAt.Add(5 * time.Minute))
	_, err := env.admission.CheckIn(ctx, checkInAt(agent, event, latInside))
	require.NoError(t, err)

	t.Run("rejected after the window closes", func(t *testing.T) {
		env.admission.now = at(event.EndsAt.Add(time.Hour))
		_, err := env.admission.CheckOut(ctx, outReq)
		assert.True(t, errors.IsType(err, errors.OutOfWindow), "got %v", err)

		// The record stays open
		record, err := env.attendance.FindForDay(ctx, agent.ID, event.ID, models.AttendanceDay(event.StartsAt))
		require.NoError(t, err)
		require.NotNil(t, record)
		assert.Nil(t, record.CheckOutAt)
	})

	t.Run("closes the open record", func(t *testing.T) {
		env.admission.now = at(event.StartsAt.Add(90 * time.Minute))
		record, err := env.admission.CheckOut(ctx, outReq)
		require.NoError(t, err)
		require.NotNil(t, record.CheckOutAt)
		assert.Equal(t, event.StartsAt.Add(90*time.Minute).Unix(), record.CheckOutAt.Unix())

		updated := env.dispatcher.byType(events.EventAttendanceUpdated)
		require.NotEmpty(t, updated)
	})

	t.Run("double check-out rejected", func(t *testing.T) {
		_, err := env.admission.CheckOut(ctx, outReq)
		require.Error(t, err)
		assert.Equal(t, "ALREADY_CHECKED_OUT", errors.AsAppError(err).Code)
	})
}

func TestCheckIn_MetricsOutcomeLabels(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "admitted"},
		{errors.DuplicateAttendanceError("r1", "self", "a1", time.Now()), "duplicate"},
		{errors.OutOfWindowErrorf("OUT_OF_WINDOW", "closed"), "out_of_window"},
		{errors.OutOfGeofenceErrorf("OUT_OF_GEOFENCE", "too far"), "out_of_geofence"},
		{errors.NotAuthorizedErrorf("NO_CONFIRMED_ASSIGNMENT", "no"), "not_authorized"},
		{fmt.Errorf("boom"), "error"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, outcomeLabel(tt.err))
	}
}
