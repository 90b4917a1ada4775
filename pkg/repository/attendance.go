package repository

import (
	"context"
	stderrors "errors"
	"fmt"

	"gorm.io/gorm"

	"guardpost/pkg/errors"
	"guardpost/pkg/models"
)

// AttendanceRepositoryImpl implements AttendanceRepository using GORM
type AttendanceRepositoryImpl struct {
	db *gorm.DB
}

// NewAttendanceRepository creates a new AttendanceRepositoryImpl instance
func NewAttendanceRepository(db *gorm.DB) AttendanceRepository {
	return &AttendanceRepositoryImpl{db: db}
}

// Create inserts an attendance record. The guard key unique index is the
// atomic duplicate check: when two admissions race on the same
// (agent, event, day) triple, exactly one insert wins and the loser receives
// DuplicateAttendanceError carrying the surviving record.
func (r *AttendanceRepositoryImpl) Create(ctx context.Context, record *models.AttendanceRecord) error {
	if record.Day == "" {
		record.Day = models.AttendanceDay(record.CheckInAt)
	}
	record.GuardKey = models.AttendanceGuardKey(record.AgentID, record.EventID, record.Day)

	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		if stderrors.Is(err, gorm.ErrDuplicatedKey) {
			return r.duplicateError(ctx, record.AgentID, record.EventID, record.Day)
		}
		return fmt.Errorf("failed to create attendance record: %w", err)
	}
	return nil
}

// duplicateError loads the winning record and wraps it in the typed error.
// The raw constraint violation is never surfaced to callers.
func (r *AttendanceRepositoryImpl) duplicateError(ctx context.Context, agentID, eventID, day string) error {
	existing, err := r.FindForDay(ctx, agentID, eventID, day)
	if err != nil {
		return fmt.Errorf("failed to load conflicting attendance record: %w", err)
	}
	if existing == nil {
		// Constraint fired but the row is gone; treat as a generic conflict.
		return errors.DuplicateAttendanceError("", "", "", nil)
	}
	return errors.DuplicateAttendanceError(existing.ID, existing.CheckInSource, existing.ActingAccountID, existing.CheckInAt)
}

// Get retrieves an attendance record by ID
func (r *AttendanceRepositoryImpl) Get(ctx context.Context, id string) (*models.AttendanceRecord, error) {
	var record models.AttendanceRecord
	if err := r.db.WithContext(ctx).First(&record, "id = ?", id).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFoundErrorf("ATTENDANCE_NOT_FOUND", "attendance record %s not found", id)
		}
		return nil, fmt.Errorf("failed to get attendance record: %w", err)
	}
	return &record, nil
}

// FindForDay returns the live record for (agent, event, day), or nil
func (r *AttendanceRepositoryImpl) FindForDay(ctx context.Context, agentID, eventID, day string) (*models.AttendanceRecord, error) {
	var record models.AttendanceRecord
	err := r.db.WithContext(ctx).
		Where("agent_id = ? AND event_id = ? AND day = ?", agentID, eventID, day).
		First(&record).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find attendance record: %w", err)
	}
	return &record, nil
}

// Update saves attendance record changes
func (r *AttendanceRepositoryImpl) Update(ctx context.Context, record *models.AttendanceRecord) error {
	if err := r.db.WithContext(ctx).Save(record).Error; err != nil {
		return fmt.Errorf("failed to update attendance record: %w", err)
	}
	return nil
}

// ListForEvent retrieves an event's attendance records, optionally for one day
func (r *AttendanceRepositoryImpl) ListForEvent(ctx context.Context, eventID, day string) ([]*models.AttendanceRecord, error) {
	var records []*models.AttendanceRecord

	query := r.db.WithContext(ctx).Where("event_id = ?", eventID)
	if day != "" {
		query = query.Where("day = ?", day)
	}

	if err := query.Order("check_in_at").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list attendance records: %w", err)
	}
	return records, nil
}

// SoftDelete marks a record deleted and frees its guard key so the day's
// slot opens up again (the uniqueness contract covers non-deleted rows only).
func (r *AttendanceRepositoryImpl) SoftDelete(ctx context.Context, id string) error {
	record, err := r.Get(ctx, id)
	if err != nil {
		return err
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		released := models.ReleasedGuardKey(record.GuardKey, record.ID)
		if err := tx.Model(record).Update("guard_key", released).Error; err != nil {
			return fmt.Errorf("failed to release guard key: %w", err)
		}
		if err := tx.Delete(record).Error; err != nil {
			return fmt.Errorf("failed to delete attendance record: %w", err)
		}
		return nil
	})
}
