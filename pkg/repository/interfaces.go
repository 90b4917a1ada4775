package repository

import (
	"context"
	"time"

	"guardpost/pkg/models"
)

// AccountRepository manages staff identities
type AccountRepository interface {
	Create(ctx context.Context, account *models.Account) error
	Get(ctx context.Context, id string) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	Update(ctx context.Context, account *models.Account) error
	List(ctx context.Context, role string, limit, offset int) ([]*models.Account, int64, error)
	SoftDelete(ctx context.Context, id string) error
	HardDelete(ctx context.Context, id string) error
}

// EventRepository manages events and their zones
type EventRepository interface {
	Create(ctx context.Context, event *models.Event) error
	Get(ctx context.Context, id string) (*models.Event, error)
	Update(ctx context.Context, event *models.Event) error
	List(ctx context.Context, limit, offset int) ([]*models.Event, int64, error)
	SoftDelete(ctx context.Context, id string) error

	CreateZone(ctx context.Context, zone *models.Zone) error
	GetZone(ctx context.Context, id string) (*models.Zone, error)
	ZonesForEvent(ctx context.Context, eventID string) ([]*models.Zone, error)
}

// AssignmentRepository manages agent-event assignments
type AssignmentRepository interface {
	Create(ctx context.Context, assignment *models.Assignment) error
	Get(ctx context.Context, id string) (*models.Assignment, error)
	// FindActive returns the single non-cancelled assignment for the pair,
	// or nil when none exists.
	FindActive(ctx context.Context, agentID, eventID string) (*models.Assignment, error)
	Update(ctx context.Context, assignment *models.Assignment) error
	// Cancel transitions the row to cancelled and frees its guard key in one
	// atomic update.
	Cancel(ctx context.Context, assignment *models.Assignment) error
	ListForEvent(ctx context.Context, eventID string) ([]*models.Assignment, error)
	SoftDelete(ctx context.Context, id string) error
}

// AttendanceRepository manages attendance records. Create enforces the
// one-record-per-(agent,event,day) invariant at the storage layer.
type AttendanceRepository interface {
	Create(ctx context.Context, record *models.AttendanceRecord) error
	Get(ctx context.Context, id string) (*models.AttendanceRecord, error)
	FindForDay(ctx context.Context, agentID, eventID, day string) (*models.AttendanceRecord, error)
	Update(ctx context.Context, record *models.AttendanceRecord) error
	ListForEvent(ctx context.Context, eventID, day string) ([]*models.AttendanceRecord, error)
	SoftDelete(ctx context.Context, id string) error
}

// AlertRepository manages tracking alerts
type AlertRepository interface {
	Create(ctx context.Context, alert *models.TrackingAlert) error
	Get(ctx context.Context, id string) (*models.TrackingAlert, error)
	// FindOpen returns the unresolved alert for (agent, alertType), or nil.
	FindOpen(ctx context.Context, agentID, alertType string) (*models.TrackingAlert, error)
	Resolve(ctx context.Context, id, resolvedBy, resolution string, at time.Time) error
	ListOpen(ctx context.Context, agentID string, limit, offset int) ([]*models.TrackingAlert, int64, error)
}

// PositionRepository appends to the position audit trail
type PositionRepository interface {
	Append(ctx context.Context, sample *models.PositionSample) error
	ListRecent(ctx context.Context, agentID string, limit int) ([]*models.PositionSample, error)
}
