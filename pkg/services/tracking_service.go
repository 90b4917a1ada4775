package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"guardpost/pkg/bus"
	"guardpost/pkg/config"
	"guardpost/pkg/errors"
	"guardpost/pkg/events"
	"guardpost/pkg/geo"
	"guardpost/pkg/logging"
	"guardpost/pkg/metrics"
	"guardpost/pkg/models"
	"guardpost/pkg/repository"
)

// TrackingService ingests position samples and raises anomaly alerts.
// At most one open alert exists per (agent, alert type); a fresh sample that
// shows the condition cleared auto-resolves it.
type TrackingService interface {
	Ingest(ctx context.Context, sample *models.PositionSample) error
	ResolveAlert(ctx context.Context, alertID, resolvedBy, resolution string) error
	// Start launches the background sweep that raises connection_lost alerts
	// for agents that have gone silent. Stop shuts it down.
	Start()
	Stop()
}

// agentState is the in-memory last-known view of one agent. Samples apply
// last-write-wins by recorded_at; the append-only audit trail keeps them all.
type agentState struct {
	last *models.PositionSample
	// anchor and anchoredAt track the last position that differed from its
	// predecessor by more than measurement noise
	anchor     geo.Point
	anchoredAt time.Time
}

// TrackingServiceImpl implements TrackingService
type TrackingServiceImpl struct {
	accounts    repository.AccountRepository
	eventsRepo  repository.EventRepository
	assignments repository.AssignmentRepository
	attendance  repository.AttendanceRepository
	alerts      repository.AlertRepository
	positions   repository.PositionRepository
	dispatcher  events.Dispatcher
	cfg         config.TrackingConfig

	mu    sync.Mutex
	state map[string]*agentState

	done chan struct{}
	wg   sync.WaitGroup

	now func() time.Time
}

// NewTrackingService creates a new tracking service
func NewTrackingService(
	accounts repository.AccountRepository,
	eventsRepo repository.EventRepository,
	assignments repository.AssignmentRepository,
	attendance repository.AttendanceRepository,
	alerts repository.AlertRepository,
	positions repository.PositionRepository,
	dispatcher events.Dispatcher,
	cfg config.TrackingConfig,
) *TrackingServiceImpl {
	return &TrackingServiceImpl{
		accounts:    accounts,
		eventsRepo:  eventsRepo,
		assignments: assignments,
		attendance:  attendance,
		alerts:      alerts,
		positions:   positions,
		dispatcher:  dispatcher,
		cfg:         cfg,
		state:       make(map[string]*agentState),
		done:        make(chan struct{}),
		now:         time.Now,
	}
}

// Ingest persists the sample, updates the agent's last-known position and
// evaluates the anomaly rules. Rule evaluation failures are logged and never
// fail the ingest: one bad rule must not poison the sample or its siblings.
func (s *TrackingServiceImpl) Ingest(ctx context.Context, sample *models.PositionSample) error {
	if sample.AgentID == "" {
		return errors.ValidationErrorf("MISSING_AGENT", "position sample has no agent id")
	}
	if sample.ID == "" {
		sample.ID = uuid.New().String()
	}
	if sample.RecordedAt.IsZero() {
		sample.RecordedAt = s.now()
	}

	if err := s.positions.Append(ctx, sample); err != nil {
		return err
	}
	metrics.TrackingSamplesIngested.Inc()

	prev := s.applySample(sample)

	// A fresh sample proves the device is talking to us again
	s.autoResolve(ctx, sample.AgentID, models.AlertConnectionLost, sample.EventID)

	s.runRule(ctx, "geofence", func() error { return s.ruleExitZone(ctx, sample) })
	s.runRule(ctx, "arrival", func() error { return s.ruleLateArrival(ctx, sample) })
	s.runRule(ctx, "battery", func() error { return s.ruleLowBattery(ctx, sample) })
	s.runRule(ctx, "speed", func() error { return s.ruleHighSpeed(ctx, sample, prev) })
	s.runRule(ctx, "movement", func() error { return s.ruleNoMovement(ctx, sample) })
	s.runRule(ctx, "device", func() error { return s.ruleDeviceChanged(ctx, sample) })

	if sample.EventID != nil {
		s.dispatcher.Dispatch(events.Event{
			Type:  events.EventLocationUpdated,
			Rooms: []string{bus.EventRoom(*sample.EventID)},
			Payload: map[string]interface{}{
				"agent_id":    sample.AgentID,
				"event_id":    sample.EventID,
				"lat":         sample.Lat,
				"lon":         sample.Lon,
				"battery":     sample.Battery,
				"recorded_at": sample.RecordedAt,
			},
		})
	}

	return nil
}

// applySample merges the sample into the in-memory state and returns the
// previous last sample. Stale samples (older than the current last) update
// nothing but are still in the audit trail.
func (s *TrackingServiceImpl) applySample(sample *models.PositionSample) *models.PositionSample {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.state[sample.AgentID]
	if !ok {
		st = &agentState{
			anchor:     geo.Point{Lat: sample.Lat, Lon: sample.Lon},
			anchoredAt: sample.RecordedAt,
		}
		s.state[sample.AgentID] = st
	}

	prev := st.last
	if prev != nil && sample.RecordedAt.Before(prev.RecordedAt) {
		return prev
	}

	moved := geo.DistanceM(st.anchor, geo.Point{Lat: sample.Lat, Lon: sample.Lon})
	if prev == nil || moved > s.cfg.NoMovementNoiseM {
		st.anchor = geo.Point{Lat: sample.Lat, Lon: sample.Lon}
		st.anchoredAt = sample.RecordedAt
	}
	st.last = sample
	return prev
}

// runRule isolates one anomaly rule: a failure is logged, never propagated
func (s *TrackingServiceImpl) runRule(ctx context.Context, name string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			logging.Errorf("tracking: %s rule panicked: %v", name, r)
		}
	}()
	if err := fn(); err != nil {
		logging.Errorf("tracking: %s rule failed: %v", name, err)
	}
}

// ruleExitZone raises when the sample falls outside the agent's fence for the
// event: the assigned zone when one exists, otherwise the event itself.
func (s *TrackingServiceImpl) ruleExitZone(ctx context.Context, sample *models.PositionSample) error {
	if sample.EventID == nil {
		return nil
	}

	event, err := s.eventsRepo.Get(ctx, *sample.EventID)
	if err != nil {
		return err
	}

	anchor := geo.Point{Lat: event.Lat, Lon: event.Lon}
	radius := event.RadiusM
	var zoneID *string

	assignment, err := s.assignments.FindActive(ctx, sample.AgentID, event.ID)
	if err != nil {
		return err
	}
	if assignment != nil && assignment.ZoneID != nil {
		zone, err := s.eventsRepo.GetZone(ctx, *assignment.ZoneID)
		if err == nil {
			anchor = geo.Point{Lat: zone.Lat, Lon: zone.Lon}
			radius = zone.RadiusM
			zoneID = assignment.ZoneID
		}
	}

	distance := geo.DistanceM(geo.Point{Lat: sample.Lat, Lon: sample.Lon}, anchor)
	if distance > radius {
		return s.raise(ctx, sample.AgentID, models.AlertExitZone, models.SeverityWarning,
			fmt.Sprintf("agent is %.0fm outside the assigned area", distance-radius),
			sample.EventID, zoneID)
	}

	s.autoResolve(ctx, sample.AgentID, models.AlertExitZone, sample.EventID)
	return nil
}

// ruleLateArrival flags an agent who is on site reporting positions while the
// event has been running past the grace period without a check-in from them.
func (s *TrackingServiceImpl) ruleLateArrival(ctx context.Context, sample *models.PositionSample) error {
	if sample.EventID == nil {
		return nil
	}

	event, err := s.eventsRepo.Get(ctx, *sample.EventID)
	if err != nil {
		return err
	}
	if sample.RecordedAt.Before(event.StartsAt.Add(s.cfg.LateArrivalGrace)) || sample.RecordedAt.After(event.EndsAt) {
		return nil
	}

	day := models.AttendanceDay(sample.RecordedAt)
	record, err := s.attendance.FindForDay(ctx, sample.AgentID, event.ID, day)
	if err != nil {
		return err
	}
	if record == nil {
		return s.raise(ctx, sample.AgentID, models.AlertLateArrival, models.SeverityWarning,
			"agent is on site but has not checked in",
			sample.EventID, nil)
	}

	s.autoResolve(ctx, sample.AgentID, models.AlertLateArrival, sample.EventID)
	return nil
}

func (s *TrackingServiceImpl) ruleLowBattery(ctx context.Context, sample *models.PositionSample) error {
	if sample.Battery <= 0 {
		// Battery level not reported
		return nil
	}
	if sample.Battery < s.cfg.LowBatteryThreshold {
		return s.raise(ctx, sample.AgentID, models.AlertLowBattery, models.SeverityInfo,
			fmt.Sprintf("device battery at %.0f%%", sample.Battery),
			sample.EventID, nil)
	}
	s.autoResolve(ctx, sample.AgentID, models.AlertLowBattery, sample.EventID)
	return nil
}

func (s *TrackingServiceImpl) ruleHighSpeed(ctx context.Context, sample *models.PositionSample, prev *models.PositionSample) error {
	if prev == nil {
		return nil
	}
	speed := geo.SpeedKmh(
		geo.Point{Lat: prev.Lat, Lon: prev.Lon},
		geo.Point{Lat: sample.Lat, Lon: sample.Lon},
		prev.RecordedAt, sample.RecordedAt,
	)
	if speed > s.cfg.HighSpeedThresholdKmh {
		return s.raise(ctx, sample.AgentID, models.AlertHighSpeed, models.SeverityWarning,
			fmt.Sprintf("implied speed %.0f km/h exceeds %.0f km/h", speed, s.cfg.HighSpeedThresholdKmh),
			sample.EventID, nil)
	}
	s.autoResolve(ctx, sample.AgentID, models.AlertHighSpeed, sample.EventID)
	return nil
}

func (s *TrackingServiceImpl) ruleNoMovement(ctx context.Context, sample *models.PositionSample) error {
	s.mu.Lock()
	st := s.state[sample.AgentID]
	var still time.Duration
	if st != nil {
		still = sample.RecordedAt.Sub(st.anchoredAt)
	}
	s.mu.Unlock()

	if still > s.cfg.NoMovementWindow {
		return s.raise(ctx, sample.AgentID, models.AlertNoMovement, models.SeverityWarning,
			fmt.Sprintf("no movement beyond %.0fm for %s", s.cfg.NoMovementNoiseM, still.Round(time.Minute)),
			sample.EventID, nil)
	}
	s.autoResolve(ctx, sample.AgentID, models.AlertNoMovement, sample.EventID)
	return nil
}

func (s *TrackingServiceImpl) ruleDeviceChanged(ctx context.Context, sample *models.PositionSample) error {
	if sample.DeviceFingerprint == "" {
		return nil
	}
	agent, err := s.accounts.Get(ctx, sample.AgentID)
	if err != nil {
		return err
	}
	if agent.DeviceFingerprint == "" {
		return nil
	}
	if sample.DeviceFingerprint != agent.DeviceFingerprint {
		return s.raise(ctx, sample.AgentID, models.AlertDeviceChanged, models.SeverityCritical,
			"position reports arriving from an unrecognized device",
			sample.EventID, nil)
	}
	s.autoResolve(ctx, sample.AgentID, models.AlertDeviceChanged, sample.EventID)
	return nil
}

// raise creates an alert unless one of the same type is already open for the
// agent. The dedupe means a persisting condition produces one alert, not one
// per sample.
func (s *TrackingServiceImpl) raise(ctx context.Context, agentID, alertType, severity, message string, eventID, zoneID *string) error {
	existing, err := s.alerts.FindOpen(ctx, agentID, alertType)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	alert := &models.TrackingAlert{
		ID:        uuid.New().String(),
		AgentID:   agentID,
		EventID:   eventID,
		ZoneID:    zoneID,
		AlertType: alertType,
		Severity:  severity,
		Message:   message,
	}
	if err := s.alerts.Create(ctx, alert); err != nil {
		return err
	}

	metrics.TrackingAlertsRaised.WithLabelValues(alertType).Inc()
	logging.Warnf("tracking alert %s for agent %s: %s", alertType, agentID, message)

	s.publishAlert(events.EventAlertNew, alert)
	return nil
}

// autoResolve closes the open alert of the given type, if any, because the
// condition that raised it has cleared.
func (s *TrackingServiceImpl) autoResolve(ctx context.Context, agentID, alertType string, eventID *string) {
	alert, err := s.alerts.FindOpen(ctx, agentID, alertType)
	if err != nil || alert == nil {
		return
	}

	now := s.now()
	if err := s.alerts.Resolve(ctx, alert.ID, "system", "auto", now); err != nil {
		logging.Errorf("tracking: failed to auto-resolve alert %s: %v", alert.ID, err)
		return
	}

	alert.IsResolved = true
	alert.ResolvedBy = "system"
	alert.ResolvedAt = &now
	s.publishAlert(events.EventAlertResolved, alert)
}

// ResolveAlert closes an alert on behalf of a human operator
func (s *TrackingServiceImpl) ResolveAlert(ctx context.Context, alertID, resolvedBy, resolution string) error {
	alert, err := s.alerts.Get(ctx, alertID)
	if err != nil {
		return err
	}
	if alert.IsResolved {
		return nil
	}

	now := s.now()
	if err := s.alerts.Resolve(ctx, alertID, resolvedBy, resolution, now); err != nil {
		return err
	}

	alert.IsResolved = true
	alert.ResolvedBy = resolvedBy
	alert.ResolvedAt = &now
	alert.Resolution = resolution
	s.publishAlert(events.EventAlertResolved, alert)
	return nil
}

// Start launches the connection-lost sweep
func (s *TrackingServiceImpl) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.sweep(context.Background())
			case <-s.done:
				return
			}
		}
	}()
}

// Stop shuts down the sweep goroutine
func (s *TrackingServiceImpl) Stop() {
	close(s.done)
	s.wg.Wait()
}

// sweep raises connection_lost for every tracked agent whose last sample is
// older than the configured silence threshold.
func (s *TrackingServiceImpl) sweep(ctx context.Context) {
	now := s.now()

	s.mu.Lock()
	var silent []*models.PositionSample
	for _, st := range s.state {
		if st.last != nil && now.Sub(st.last.RecordedAt) > s.cfg.ConnectionLostAfter {
			silent = append(silent, st.last)
		}
	}
	s.mu.Unlock()

	for _, last := range silent {
		err := s.raise(ctx, last.AgentID, models.AlertConnectionLost, models.SeverityCritical,
			fmt.Sprintf("no position reports since %s", last.RecordedAt.Format(time.RFC3339)),
			last.EventID, nil)
		if err != nil {
			logging.Errorf("tracking: connection sweep failed for agent %s: %v", last.AgentID, err)
		}
	}
}

func (s *TrackingServiceImpl) publishAlert(eventType string, alert *models.TrackingAlert) {
	rooms := []string{
		bus.RoleRoom(models.RoleSupervisor),
		bus.RoleRoom(models.RoleAdmin),
	}
	if alert.EventID != nil {
		rooms = append(rooms, bus.EventRoom(*alert.EventID))
	}

	s.dispatcher.Dispatch(events.Event{
		Type:  eventType,
		Rooms: rooms,
		Payload: map[string]interface{}{
			"alert_id":    alert.ID,
			"agent_id":    alert.AgentID,
			"event_id":    alert.EventID,
			"zone_id":     alert.ZoneID,
			"alert_type":  alert.AlertType,
			"severity":    alert.Severity,
			"message":     alert.Message,
			"is_resolved": alert.IsResolved,
			"resolved_by": alert.ResolvedBy,
			"resolution":  alert.Resolution,
		},
	})
}
