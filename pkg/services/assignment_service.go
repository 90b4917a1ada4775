package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"guardpost/pkg/bus"
	"guardpost/pkg/errors"
	"guardpost/pkg/events"
	"guardpost/pkg/logging"
	"guardpost/pkg/models"
	"guardpost/pkg/repository"
)

// AssignmentService is the assignment state machine:
// pending → confirmed, pending → declined, any non-terminal state → cancelled.
type AssignmentService interface {
	// CreateOrConfirm is idempotent: an existing non-cancelled assignment for
	// the pair is transitioned to confirmed instead of inserting a duplicate.
	// The second return value reports whether a row was created.
	CreateOrConfirm(ctx context.Context, agentID, eventID string, zoneID *string, actorID string) (*models.Assignment, bool, error)
	// Cancel is an idempotent no-op when the assignment is already cancelled.
	Cancel(ctx context.Context, assignmentID, actorID string) error
	// Decline moves a pending assignment to declined.
	Decline(ctx context.Context, assignmentID, actorID string) error
	// BulkSync applies CreateOrConfirm pairwise. Each pair is independent:
	// failures are collected, never aborted on.
	BulkSync(ctx context.Context, agentIDs, eventIDs []string, actorID string) *BulkSyncResult
}

// BulkSyncResult summarizes a mass onboarding run
type BulkSyncResult struct {
	Created  int               `json:"created"`
	Updated  int               `json:"updated"`
	Failures []BulkSyncFailure `json:"failures,omitempty"`
}

// BulkSyncFailure records one pair that could not be synced
type BulkSyncFailure struct {
	AgentID string `json:"agent_id"`
	EventID string `json:"event_id"`
	Reason  string `json:"reason"`
}

// AssignmentServiceImpl implements AssignmentService
type AssignmentServiceImpl struct {
	assignments repository.AssignmentRepository
	accounts    repository.AccountRepository
	eventsRepo  repository.EventRepository
	dispatcher  events.Dispatcher
}

// NewAssignmentService creates a new assignment service
func NewAssignmentService(
	assignments repository.AssignmentRepository,
	accounts repository.AccountRepository,
	eventsRepo repository.EventRepository,
	dispatcher events.Dispatcher,
) AssignmentService {
	return &AssignmentServiceImpl{
		assignments: assignments,
		accounts:    accounts,
		eventsRepo:  eventsRepo,
		dispatcher:  dispatcher,
	}
}

// CreateOrConfirm creates or confirms the assignment for (agent, event)
func (s *AssignmentServiceImpl) CreateOrConfirm(ctx context.Context, agentID, eventID string, zoneID *string, actorID string) (*models.Assignment, bool, error) {
	agent, err := s.accounts.Get(ctx, agentID)
	if err != nil {
		return nil, false, err
	}
	if agent.Role != models.RoleAgent {
		return nil, false, errors.ValidationErrorf("NOT_AN_AGENT", "account %s is not an agent", agentID)
	}

	if _, err := s.eventsRepo.Get(ctx, eventID); err != nil {
		return nil, false, err
	}

	if zoneID != nil {
		zone, err := s.eventsRepo.GetZone(ctx, *zoneID)
		if err != nil {
			return nil, false, err
		}
		if zone.EventID != eventID {
			return nil, false, errors.ValidationErrorf("ZONE_MISMATCH", "zone %s does not belong to event %s", *zoneID, eventID)
		}
	}

	existing, err := s.assignments.FindActive(ctx, agentID, eventID)
	if err != nil {
		return nil, false, err
	}

	if existing != nil {
		// Declined is terminal: re-assignment retires the old row and
		// inserts a fresh confirmed one.
		if existing.Status == models.AssignmentDeclined {
			if err := s.assignments.Cancel(ctx, existing); err != nil {
				return nil, false, err
			}
		} else {
			existing.Status = models.AssignmentConfirmed
			existing.ZoneID = zoneID
			existing.AssignedBy = actorID
			if err := s.assignments.Update(ctx, existing); err != nil {
				return nil, false, err
			}
			s.publish(events.EventAssignmentUpdated, existing)
			return existing, false, nil
		}
	}

	assignment := &models.Assignment{
		ID:         uuid.New().String(),
		AgentID:    agentID,
		EventID:    eventID,
		ZoneID:     zoneID,
		Status:     models.AssignmentConfirmed,
		AssignedBy: actorID,
	}
	if err := s.assignments.Create(ctx, assignment); err != nil {
		// A racing CreateOrConfirm inserted first; confirm that row instead.
		if errors.IsType(err, errors.Validation) {
			winner, findErr := s.assignments.FindActive(ctx, agentID, eventID)
			if findErr == nil && winner != nil {
				winner.Status = models.AssignmentConfirmed
				winner.ZoneID = zoneID
				winner.AssignedBy = actorID
				if updErr := s.assignments.Update(ctx, winner); updErr != nil {
					return nil, false, updErr
				}
				s.publish(events.EventAssignmentUpdated, winner)
				return winner, false, nil
			}
		}
		return nil, false, err
	}

	s.publish(events.EventAssignmentCreated, assignment)
	return assignment, true, nil
}

// Cancel moves an assignment to cancelled
func (s *AssignmentServiceImpl) Cancel(ctx context.Context, assignmentID, actorID string) error {
	assignment, err := s.assignments.Get(ctx, assignmentID)
	if err != nil {
		return err
	}
	if assignment.Status == models.AssignmentCancelled {
		return nil
	}

	if err := s.assignments.Cancel(ctx, assignment); err != nil {
		return err
	}

	logging.Infof("assignment %s cancelled by %s", assignmentID, actorID)
	s.publish(events.EventAssignmentUpdated, assignment)
	return nil
}

// Decline moves a pending assignment to declined
func (s *AssignmentServiceImpl) Decline(ctx context.Context, assignmentID, actorID string) error {
	assignment, err := s.assignments.Get(ctx, assignmentID)
	if err != nil {
		return err
	}
	if assignment.Status == models.AssignmentDeclined {
		return nil
	}
	if assignment.Status != models.AssignmentPending {
		return errors.ValidationErrorf("NOT_PENDING", "only pending assignments can be declined")
	}

	assignment.Status = models.AssignmentDeclined
	if err := s.assignments.Update(ctx, assignment); err != nil {
		return err
	}

	logging.Infof("assignment %s declined by %s", assignmentID, actorID)
	s.publish(events.EventAssignmentUpdated, assignment)
	return nil
}

// BulkSync applies CreateOrConfirm to every (agent, event) pair
func (s *AssignmentServiceImpl) BulkSync(ctx context.Context, agentIDs, eventIDs []string, actorID string) *BulkSyncResult {
	result := &BulkSyncResult{}

	for _, eventID := range eventIDs {
		for _, agentID := range agentIDs {
			_, created, err := s.CreateOrConfirm(ctx, agentID, eventID, nil, actorID)
			if err != nil {
				result.Failures = append(result.Failures, BulkSyncFailure{
					AgentID: agentID,
					EventID: eventID,
					Reason:  err.Error(),
				})
				continue
			}
			if created {
				result.Created++
			} else {
				result.Updated++
			}
		}
	}

	return result
}

func (s *AssignmentServiceImpl) publish(eventType string, assignment *models.Assignment) {
	s.dispatcher.Dispatch(events.Event{
		Type: eventType,
		Rooms: []string{
			bus.EventRoom(assignment.EventID),
			bus.AccountRoom(assignment.AgentID),
		},
		Payload: map[string]interface{}{
			"assignment_id": assignment.ID,
			"agent_id":      assignment.AgentID,
			"event_id":      assignment.EventID,
			"zone_id":       assignment.ZoneID,
			"status":        assignment.Status,
			"assigned_by":   assignment.AssignedBy,
			"updated_at":    time.Now().UTC(),
		},
	})
}
