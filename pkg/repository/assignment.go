package repository

import (
	"context"
	stderrors "errors"
	"fmt"

	"gorm.io/gorm"

	"guardpost/pkg/errors"
	"guardpost/pkg/models"
)

// AssignmentRepositoryImpl implements AssignmentRepository using GORM
type AssignmentRepositoryImpl struct {
	db *gorm.DB
}

// NewAssignmentRepository creates a new AssignmentRepositoryImpl instance
func NewAssignmentRepository(db *gorm.DB) AssignmentRepository {
	return &AssignmentRepositoryImpl{db: db}
}

// Create inserts a new assignment. The guard key is derived from the pair so
// the unique index rejects a second live row for the same (agent, event).
func (r *AssignmentRepositoryImpl) Create(ctx context.Context, assignment *models.Assignment) error {
	assignment.GuardKey = models.AssignmentGuardKey(assignment.AgentID, assignment.EventID)

	if err := r.db.WithContext(ctx).Create(assignment).Error; err != nil {
		if stderrors.Is(err, gorm.ErrDuplicatedKey) {
			return errors.ValidationErrorf("ASSIGNMENT_EXISTS",
				"agent %s already has a live assignment to event %s", assignment.AgentID, assignment.EventID)
		}
		return fmt.Errorf("failed to create assignment: %w", err)
	}
	return nil
}

// Get retrieves an assignment by ID
func (r *AssignmentRepositoryImpl) Get(ctx context.Context, id string) (*models.Assignment, error) {
	var assignment models.Assignment
	if err := r.db.WithContext(ctx).First(&assignment, "id = ?", id).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFoundErrorf("ASSIGNMENT_NOT_FOUND", "assignment %s not found", id)
		}
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}
	return &assignment, nil
}

// FindActive returns the non-cancelled assignment for (agent, event), or nil
func (r *AssignmentRepositoryImpl) FindActive(ctx context.Context, agentID, eventID string) (*models.Assignment, error) {
	var assignment models.Assignment
	err := r.db.WithContext(ctx).
		Where("agent_id = ? AND event_id = ? AND status <> ?", agentID, eventID, models.AssignmentCancelled).
		First(&assignment).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find assignment: %w", err)
	}
	return &assignment, nil
}

// Update saves assignment field changes
func (r *AssignmentRepositoryImpl) Update(ctx context.Context, assignment *models.Assignment) error {
	if err := r.db.WithContext(ctx).Save(assignment).Error; err != nil {
		return fmt.Errorf("failed to update assignment: %w", err)
	}
	return nil
}

// Cancel transitions the row to cancelled and frees its guard key so a future
// re-assignment of the pair can insert a fresh row.
func (r *AssignmentRepositoryImpl) Cancel(ctx context.Context, assignment *models.Assignment) error {
	updates := map[string]interface{}{
		"status":    models.AssignmentCancelled,
		"guard_key": models.ReleasedGuardKey(assignment.GuardKey, assignment.ID),
	}
	if err := r.db.WithContext(ctx).Model(assignment).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to cancel assignment: %w", err)
	}
	assignment.Status = models.AssignmentCancelled
	assignment.GuardKey = updates["guard_key"].(string)
	return nil
}

// ListForEvent retrieves all live assignments of an event
func (r *AssignmentRepositoryImpl) ListForEvent(ctx context.Context, eventID string) ([]*models.Assignment, error) {
	var assignments []*models.Assignment
	err := r.db.WithContext(ctx).
		Where("event_id = ? AND status <> ?", eventID, models.AssignmentCancelled).
		Order("created_at").
		Find(&assignments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	return assignments, nil
}

// SoftDelete marks an assignment deleted and frees its guard key
func (r *AssignmentRepositoryImpl) SoftDelete(ctx context.Context, id string) error {
	assignment, err := r.Get(ctx, id)
	if err != nil {
		return err
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		released := models.ReleasedGuardKey(assignment.GuardKey, assignment.ID)
		if err := tx.Model(assignment).Update("guard_key", released).Error; err != nil {
			return fmt.Errorf("failed to release guard key: %w", err)
		}
		if err := tx.Delete(assignment).Error; err != nil {
			return fmt.Errorf("failed to delete assignment: %w", err)
		}
		return nil
	})
}
