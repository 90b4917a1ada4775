package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"guardpost/pkg/biometric"
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

// CheckInRequest carries everything the admission pipeline evaluates
type CheckInRequest struct {
	AgentID           string        `json:"agent_id"`
	EventID           string        `json:"event_id"`
	ZoneID            *string       `json:"zone_id,omitempty"`
	Lat               float64       `json:"lat"`
	Lon               float64       `json:"lon"`
	BiometricSample   models.Vector `json:"biometric_sample,omitempty"`
	DeviceFingerprint string        `json:"device_fingerprint,omitempty"`
	Note              string        `json:"note,omitempty"`
	// ActingAccountID is the account submitting the check-in. Equal to
	// AgentID for self-service, otherwise an admin or zone supervisor.
	ActingAccountID string `json:"acting_account_id"`
}

// CheckOutRequest closes an open attendance record
type CheckOutRequest struct {
	AgentID         string  `json:"agent_id"`
	EventID         string  `json:"event_id"`
	Lat             float64 `json:"lat"`
	Lon             float64 `json:"lon"`
	ActingAccountID string  `json:"acting_account_id"`
}

// AdmissionService runs the check-in admission pipeline. The gates run in a
// fixed order (authorization, temporal, duplicate, geofence, biometric) so a
// request failing several gates always reports the same error.
type AdmissionService interface {
	CheckIn(ctx context.Context, req *CheckInRequest) (*models.AttendanceRecord, error)
	CheckOut(ctx context.Context, req *CheckOutRequest) (*models.AttendanceRecord, error)
}

// AdmissionServiceImpl implements AdmissionService
type AdmissionServiceImpl struct {
	accounts    repository.AccountRepository
	eventsRepo  repository.EventRepository
	assignments repository.AssignmentRepository
	attendance  repository.AttendanceRepository
	dispatcher  events.Dispatcher
	cfg         config.AdmissionConfig

	// now is swappable for tests
	now func() time.Time
}

// NewAdmissionService creates a new admission service
func NewAdmissionService(
	accounts repository.AccountRepository,
	eventsRepo repository.EventRepository,
	assignments repository.AssignmentRepository,
	attendance repository.AttendanceRepository,
	dispatcher events.Dispatcher,
	cfg config.AdmissionConfig,
) *AdmissionServiceImpl {
	return &AdmissionServiceImpl{
		accounts:    accounts,
		eventsRepo:  eventsRepo,
		assignments: assignments,
		attendance:  attendance,
		dispatcher:  dispatcher,
		cfg:         cfg,
		now:         time.Now,
	}
}

// CheckIn runs the full admission pipeline and commits exactly one record per
// (agent, event, day). Concurrent submissions resolve to a single winner at
// the storage layer; every loser receives a DuplicateAttendance error naming
// the winning record.
func (s *AdmissionServiceImpl) CheckIn(ctx context.Context, req *CheckInRequest) (*models.AttendanceRecord, error) {
	start := time.Now()
	record, err := s.checkIn(ctx, req)
	metrics.AdmissionDuration.Observe(time.Since(start).Seconds())
	metrics.AdmissionDecisions.WithLabelValues(outcomeLabel(err)).Inc()
	return record, err
}

func (s *AdmissionServiceImpl) checkIn(ctx context.Context, req *CheckInRequest) (*models.AttendanceRecord, error) {
	now := s.now()

	event, err := s.eventsRepo.Get(ctx, req.EventID)
	if err != nil {
		return nil, err
	}
	if event.Cancelled {
		return nil, errors.ValidationErrorf("EVENT_CANCELLED", "event %s is cancelled", event.ID)
	}

	agent, err := s.accounts.Get(ctx, req.AgentID)
	if err != nil {
		return nil, err
	}
	if agent.Role != models.RoleAgent {
		return nil, errors.ValidationErrorf("NOT_AN_AGENT", "account %s is not an agent", agent.ID)
	}
	if agent.Status == models.AccountSuspended {
		return nil, errors.NotAuthorizedErrorf("AGENT_SUSPENDED", "agent %s is suspended", agent.ID)
	}

	var zone *models.Zone
	if req.ZoneID != nil {
		zone, err = s.eventsRepo.GetZone(ctx, *req.ZoneID)
		if err != nil {
			return nil, err
		}
		if zone.EventID != event.ID {
			return nil, errors.ValidationErrorf("ZONE_MISMATCH", "zone %s does not belong to event %s", zone.ID, event.ID)
		}
	}

	// Gate 1: authorization
	source, err := s.authorize(ctx, req, event, zone)
	if err != nil {
		return nil, err
	}

	// Gate 2: temporal window
	if !event.InCheckInWindow(now, s.cfg.DefaultCheckInBuffer) {
		open, close := event.CheckInWindow(s.cfg.DefaultCheckInBuffer)
		return nil, errors.OutOfWindowErrorf("OUT_OF_WINDOW",
			"check-in window for event %s is %s to %s", event.ID,
			open.Format(time.RFC3339), close.Format(time.RFC3339)).
			WithDetail("opens_at", open).
			WithDetail("closes_at", close)
	}

	// Gate 3: duplicate short-circuit. The authoritative check is the unique
	// guard key at insert time; this read just spares losers the later gates.
	day := models.AttendanceDay(now)
	if existing, err := s.attendance.FindForDay(ctx, req.AgentID, req.EventID, day); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, errors.DuplicateAttendanceError(existing.ID, existing.CheckInSource, existing.ActingAccountID, existing.CheckInAt)
	}

	// Gate 4: geofence
	flags, distance, err := s.checkGeofence(req, event, zone, source)
	if err != nil {
		return nil, err
	}

	// Gate 5: biometric
	score, verified, bioFlags, note, err := s.checkBiometric(req, agent, source)
	if err != nil {
		return nil, err
	}
	flags = append(flags, bioFlags...)
	if req.Note != "" {
		note = req.Note
	}

	status := models.AttendancePresent
	if now.After(event.StartsAt.Add(s.cfg.GracePeriod)) {
		status = models.AttendanceLate
	}

	record := &models.AttendanceRecord{
		ID:                uuid.New().String(),
		AgentID:           req.AgentID,
		EventID:           req.EventID,
		ZoneID:            req.ZoneID,
		CheckInAt:         now,
		Lat:               req.Lat,
		Lon:               req.Lon,
		DistanceM:         distance,
		MatchScore:        score,
		FacialVerified:    verified,
		DeviceFingerprint: req.DeviceFingerprint,
		CheckInSource:     source,
		ActingAccountID:   req.ActingAccountID,
		Status:            status,
		Flags:             flags,
		Note:              note,
	}

	// Gate 6: atomic commit. A concurrent winner surfaces here as a
	// DuplicateAttendance error carrying the winning record's identity.
	if err := s.attendance.Create(ctx, record); err != nil {
		return nil, err
	}

	logging.Infof("admitted agent %s to event %s (%s, source=%s, distance=%.0fm)",
		record.AgentID, record.EventID, record.Status, record.CheckInSource, record.DistanceM)

	s.publish(events.EventAttendanceCreated, record, zone)
	return record, nil
}

// CheckOut closes the agent's open record for today
func (s *AdmissionServiceImpl) CheckOut(ctx context.Context, req *CheckOutRequest) (*models.AttendanceRecord, error) {
	now := s.now()

	event, err := s.eventsRepo.Get(ctx, req.EventID)
	if err != nil {
		return nil, err
	}

	checkInReq := &CheckInRequest{
		AgentID:         req.AgentID,
		EventID:         req.EventID,
		ActingAccountID: req.ActingAccountID,
	}
	if _, err := s.authorize(ctx, checkInReq, event, nil); err != nil {
		return nil, err
	}

	// Check-out runs the same temporal gate as check-in
	if !event.InCheckInWindow(now, s.cfg.DefaultCheckInBuffer) {
		open, close := event.CheckInWindow(s.cfg.DefaultCheckInBuffer)
		return nil, errors.OutOfWindowErrorf("OUT_OF_WINDOW",
			"check-out window for event %s is %s to %s", event.ID,
			open.Format(time.RFC3339), close.Format(time.RFC3339)).
			WithDetail("opens_at", open).
			WithDetail("closes_at", close)
	}

	day := models.AttendanceDay(now)
	record, err := s.attendance.FindForDay(ctx, req.AgentID, req.EventID, day)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, errors.NotCheckedInErrorf("NOT_CHECKED_IN",
			"agent %s has no attendance record for event %s today", req.AgentID, req.EventID)
	}
	if record.CheckOutAt != nil {
		return nil, errors.ValidationErrorf("ALREADY_CHECKED_OUT",
			"agent %s already checked out at %s", req.AgentID, record.CheckOutAt.Format(time.RFC3339))
	}

	record.CheckOutAt = &now
	if err := s.attendance.Update(ctx, record); err != nil {
		return nil, err
	}

	logging.Infof("checked out agent %s from event %s", record.AgentID, record.EventID)

	s.publish(events.EventAttendanceUpdated, record, nil)
	return record, nil
}

// authorize resolves the check-in source and verifies the actor may submit
// for this agent. The agent must hold a confirmed assignment either way.
func (s *AdmissionServiceImpl) authorize(ctx context.Context, req *CheckInRequest, event *models.Event, zone *models.Zone) (string, error) {
	assignment, err := s.assignments.FindActive(ctx, req.AgentID, event.ID)
	if err != nil {
		return "", err
	}
	if assignment == nil || assignment.Status != models.AssignmentConfirmed {
		return "", errors.NotAuthorizedErrorf("NO_CONFIRMED_ASSIGNMENT",
			"agent %s has no confirmed assignment for event %s", req.AgentID, event.ID)
	}

	if req.ActingAccountID == "" || req.ActingAccountID == req.AgentID {
		return models.SourceSelf, nil
	}

	actor, err := s.accounts.Get(ctx, req.ActingAccountID)
	if err != nil {
		return "", err
	}

	switch actor.Role {
	case models.RoleAdmin:
		return models.SourceAdmin, nil
	case models.RoleSupervisor:
		authorized, err := s.supervises(ctx, actor.ID, event.ID, zone, assignment.ZoneID)
		if err != nil {
			return "", err
		}
		if !authorized {
			return "", errors.NotAuthorizedErrorf("NOT_ZONE_SUPERVISOR",
				"account %s does not supervise a zone of event %s", actor.ID, event.ID)
		}
		return models.SourceSupervisor, nil
	default:
		return "", errors.NotAuthorizedErrorf("INSUFFICIENT_ROLE",
			"account %s may not check in on behalf of agent %s", actor.ID, req.AgentID)
	}
}

// supervises checks whether the supervisor is listed on the relevant zone.
// With an explicit zone the check is exact; otherwise any zone of the event
// (preferring the assignment's zone) qualifies.
func (s *AdmissionServiceImpl) supervises(ctx context.Context, supervisorID, eventID string, zone *models.Zone, assignmentZoneID *string) (bool, error) {
	if zone != nil {
		return zone.SupervisorIDs.Contains(supervisorID), nil
	}

	if assignmentZoneID != nil {
		z, err := s.eventsRepo.GetZone(ctx, *assignmentZoneID)
		if err == nil && z.SupervisorIDs.Contains(supervisorID) {
			return true, nil
		}
	}

	zones, err := s.eventsRepo.ZonesForEvent(ctx, eventID)
	if err != nil {
		return false, err
	}
	for _, z := range zones {
		if z.SupervisorIDs.Contains(supervisorID) {
			return true, nil
		}
	}
	return false, nil
}

// checkGeofence classifies the submitted position against the zone's fence
// when a zone is given, otherwise the event's.
func (s *AdmissionServiceImpl) checkGeofence(req *CheckInRequest, event *models.Event, zone *models.Zone, source string) (models.StringList, float64, error) {
	anchor := geo.Point{Lat: event.Lat, Lon: event.Lon}
	radius := event.RadiusM
	if zone != nil {
		anchor = geo.Point{Lat: zone.Lat, Lon: zone.Lon}
		radius = zone.RadiusM
	}

	distance := geo.DistanceM(geo.Point{Lat: req.Lat, Lon: req.Lon}, anchor)

	var flags models.StringList
	switch geo.Contains(distance, radius, s.cfg.GeofenceTolerance) {
	case geo.Inside:
	case geo.Boundary:
		flags = append(flags, models.FlagBoundary)
	case geo.Outside:
		if source != models.SourceSelf && s.cfg.AllowAssistedGeofenceOverride {
			flags = append(flags, models.FlagGeofenceOverride)
			break
		}
		return nil, distance, errors.OutOfGeofenceErrorf("OUT_OF_GEOFENCE",
			"position is %.0fm from the geofence center (radius %.0fm)", distance, radius).
			WithDetail("distance_m", distance).
			WithDetail("radius_m", radius)
	}

	return flags, distance, nil
}

// checkBiometric scores the presented sample. Self-service must clear the
// configured minimum; assisted check-ins admit regardless but record an
// unverified flag and a vouching note when verification falls short.
func (s *AdmissionServiceImpl) checkBiometric(req *CheckInRequest, agent *models.Account, source string) (float64, bool, models.StringList, string, error) {
	var score float64
	if len(req.BiometricSample) > 0 && len(agent.BiometricRef) > 0 {
		var err error
		score, err = biometric.Compare(req.BiometricSample, agent.BiometricRef)
		if err != nil {
			return 0, false, nil, "", errors.ValidationErrorf("BAD_BIOMETRIC_SAMPLE", "%v", err)
		}
	}

	verified := score >= s.cfg.MinMatchScore &&
		len(req.BiometricSample) > 0 && len(agent.BiometricRef) > 0

	if source == models.SourceSelf {
		if len(agent.BiometricRef) == 0 {
			return 0, false, nil, "", errors.NotAuthorizedErrorf("NO_BIOMETRIC_REF",
				"agent %s has no enrolled biometric reference", agent.ID)
		}
		if len(req.BiometricSample) == 0 {
			return 0, false, nil, "", errors.NotAuthorizedErrorf("BIOMETRIC_REQUIRED",
				"self-service check-in requires a biometric sample")
		}
		if !verified {
			return score, false, nil, "", errors.NotAuthorizedErrorf("BIOMETRIC_REJECTED",
				"biometric match score %.1f is below the required %.1f", score, s.cfg.MinMatchScore).
				WithDetail("match_score", score)
		}
		return score, true, nil, "", nil
	}

	if !verified {
		note := fmt.Sprintf("identity vouched by %s %s", source, req.ActingAccountID)
		return score, false, models.StringList{models.FlagUnverifiedBiometric}, note, nil
	}
	return score, true, nil, "", nil
}

// publish fans the record out to the event room, the agent's own room and the
// supervisors of the record's zone.
func (s *AdmissionServiceImpl) publish(eventType string, record *models.AttendanceRecord, zone *models.Zone) {
	rooms := []string{
		bus.EventRoom(record.EventID),
		bus.AccountRoom(record.AgentID),
	}
	if zone != nil {
		for _, supervisorID := range zone.SupervisorIDs {
			rooms = append(rooms, bus.AccountRoom(supervisorID))
		}
	}

	s.dispatcher.Dispatch(events.Event{
		Type:  eventType,
		Rooms: rooms,
		Payload: map[string]interface{}{
			"record_id":       record.ID,
			"agent_id":        record.AgentID,
			"event_id":        record.EventID,
			"zone_id":         record.ZoneID,
			"status":          record.Status,
			"check_in_at":     record.CheckInAt,
			"check_out_at":    record.CheckOutAt,
			"check_in_source": record.CheckInSource,
			"flags":           record.Flags,
		},
	})
}

func outcomeLabel(err error) string {
	if err == nil {
		return "admitted"
	}
	switch errors.AsAppError(err).Type {
	case errors.DuplicateAttendance:
		return "duplicate"
	case errors.OutOfWindow:
		return "out_of_window"
	case errors.OutOfGeofence:
		return "out_of_geofence"
	case errors.NotAuthorized:
		return "not_authorized"
	case errors.NotFound:
		return "not_found"
	case errors.Validation:
		return "rejected"
	default:
		return "error"
	}
}
