package repository

import (
	"context"
	stderrors "errors"
	"fmt"

	"gorm.io/gorm"

	"guardpost/pkg/errors"
	"guardpost/pkg/models"
)

// EventRepositoryImpl implements EventRepository using GORM
type EventRepositoryImpl struct {
	db *gorm.DB
}

// NewEventRepository creates a new EventRepositoryImpl instance
func NewEventRepository(db *gorm.DB) EventRepository {
	return &EventRepositoryImpl{db: db}
}

// Create inserts a new event
func (r *EventRepositoryImpl) Create(ctx context.Context, event *models.Event) error {
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("failed to create event: %w", err)
	}
	return nil
}

// Get retrieves an event by ID
func (r *EventRepositoryImpl) Get(ctx context.Context, id string) (*models.Event, error) {
	var event models.Event
	if err := r.db.WithContext(ctx).First(&event, "id = ?", id).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFoundErrorf("EVENT_NOT_FOUND", "event %s not found", id)
		}
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return &event, nil
}

// Update updates an existing event
func (r *EventRepositoryImpl) Update(ctx context.Context, event *models.Event) error {
	if err := r.db.WithContext(ctx).Save(event).Error; err != nil {
		return fmt.Errorf("failed to update event: %w", err)
	}
	return nil
}

// List retrieves events ordered by start time
func (r *EventRepositoryImpl) List(ctx context.Context, limit, offset int) ([]*models.Event, int64, error) {
	var events []*models.Event
	var total int64

	query := r.db.WithContext(ctx).Model(&models.Event{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count events: %w", err)
	}

	if err := query.Limit(limit).Offset(offset).Order("starts_at DESC").Find(&events).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list events: %w", err)
	}

	return events, total, nil
}

// SoftDelete marks an event deleted
func (r *EventRepositoryImpl) SoftDelete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&models.Event{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete event: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return errors.NotFoundErrorf("EVENT_NOT_FOUND", "event %s not found", id)
	}
	return nil
}

// CreateZone inserts a new zone
func (r *EventRepositoryImpl) CreateZone(ctx context.Context, zone *models.Zone) error {
	if err := r.db.WithContext(ctx).Create(zone).Error; err != nil {
		return fmt.Errorf("failed to create zone: %w", err)
	}
	return nil
}

// GetZone retrieves a zone by ID
func (r *EventRepositoryImpl) GetZone(ctx context.Context, id string) (*models.Zone, error) {
	var zone models.Zone
	if err := r.db.WithContext(ctx).First(&zone, "id = ?", id).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFoundErrorf("ZONE_NOT_FOUND", "zone %s not found", id)
		}
		return nil, fmt.Errorf("failed to get zone: %w", err)
	}
	return &zone, nil
}

// ZonesForEvent retrieves all zones of an event
func (r *EventRepositoryImpl) ZonesForEvent(ctx context.Context, eventID string) ([]*models.Zone, error) {
	var zones []*models.Zone
	if err := r.db.WithContext(ctx).Where("event_id = ?", eventID).Order("name").Find(&zones).Error; err != nil {
		return nil, fmt.Errorf("failed to list zones: %w", err)
	}
	return zones, nil
}
