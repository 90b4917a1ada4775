package repository

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"guardpost/pkg/errors"
	"guardpost/pkg/models"
)

// AlertRepositoryImpl implements AlertRepository using GORM
type AlertRepositoryImpl struct {
	db *gorm.DB
}

// NewAlertRepository creates a new AlertRepositoryImpl instance
func NewAlertRepository(db *gorm.DB) AlertRepository {
	return &AlertRepositoryImpl{db: db}
}

// Create inserts a new tracking alert
func (r *AlertRepositoryImpl) Create(ctx context.Context, alert *models.TrackingAlert) error {
	if err := r.db.WithContext(ctx).Create(alert).Error; err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}
	return nil
}

// Get retrieves an alert by ID
func (r *AlertRepositoryImpl) Get(ctx context.Context, id string) (*models.TrackingAlert, error) {
	var alert models.TrackingAlert
	if err := r.db.WithContext(ctx).First(&alert, "id = ?", id).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFoundErrorf("ALERT_NOT_FOUND", "alert %s not found", id)
		}
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	return &alert, nil
}

// FindOpen returns the unresolved alert for (agent, alertType), or nil
func (r *AlertRepositoryImpl) FindOpen(ctx context.Context, agentID, alertType string) (*models.TrackingAlert, error) {
	var alert models.TrackingAlert
	err := r.db.WithContext(ctx).
		Where("agent_id = ? AND alert_type = ? AND is_resolved = ?", agentID, alertType, false).
		First(&alert).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find open alert: %w", err)
	}
	return &alert, nil
}

// Resolve closes an alert with the given resolution
func (r *AlertRepositoryImpl) Resolve(ctx context.Context, id, resolvedBy, resolution string, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&models.TrackingAlert{}).
		Where("id = ? AND is_resolved = ?", id, false).
		Updates(map[string]interface{}{
			"is_resolved": true,
			"resolved_by": resolvedBy,
			"resolved_at": at,
			"resolution":  resolution,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to resolve alert: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return errors.NotFoundErrorf("ALERT_NOT_FOUND", "no unresolved alert %s", id)
	}
	return nil
}

// ListOpen retrieves unresolved alerts, optionally for one agent
func (r *AlertRepositoryImpl) ListOpen(ctx context.Context, agentID string, limit, offset int) ([]*models.TrackingAlert, int64, error) {
	var alerts []*models.TrackingAlert
	var total int64

	query := r.db.WithContext(ctx).Model(&models.TrackingAlert{}).Where("is_resolved = ?", false)
	if agentID != "" {
		query = query.Where("agent_id = ?", agentID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count alerts: %w", err)
	}

	if err := query.Limit(limit).Offset(offset).Order("created_at DESC").Find(&alerts).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list alerts: %w", err)
	}

	return alerts, total, nil
}

// PositionRepositoryImpl implements PositionRepository using GORM
type PositionRepositoryImpl struct {
	db *gorm.DB
}

// NewPositionRepository creates a new PositionRepositoryImpl instance
func NewPositionRepository(db *gorm.DB) PositionRepository {
	return &PositionRepositoryImpl{db: db}
}

// Append writes one sample to the audit trail
func (r *PositionRepositoryImpl) Append(ctx context.Context, sample *models.PositionSample) error {
	if err := r.db.WithContext(ctx).Create(sample).Error; err != nil {
		return fmt.Errorf("failed to append position sample: %w", err)
	}
	return nil
}

// ListRecent retrieves an agent's most recent samples, newest first
func (r *PositionRepositoryImpl) ListRecent(ctx context.Context, agentID string, limit int) ([]*models.PositionSample, error) {
	var samples []*models.PositionSample
	err := r.db.WithContext(ctx).
		Where("agent_id = ?", agentID).
		Order("recorded_at DESC").
		Limit(limit).
		Find(&samples).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list position samples: %w", err)
	}
	return samples, nil
}
