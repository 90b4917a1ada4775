package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Account roles
const (
	RoleAgent      = "agent"
	RoleSupervisor = "supervisor"
	RoleAdmin      = "admin"
)

// Account statuses
const (
	AccountActive    = "active"
	AccountInactive  = "inactive"
	AccountSuspended = "suspended"
)

// Assignment statuses
const (
	AssignmentPending   = "pending"
	AssignmentConfirmed = "confirmed"
	AssignmentDeclined  = "declined"
	AssignmentCancelled = "cancelled"
)

// Attendance statuses
const (
	AttendancePresent = "present"
	AttendanceLate    = "late"
	AttendanceAbsent  = "absent"
)

// Check-in sources
const (
	SourceSelf       = "self"
	SourceAdmin      = "admin"
	SourceSupervisor = "supervisor"
)

// Attendance flags
const (
	FlagBoundary            = "boundary"
	FlagGeofenceOverride    = "geofence_override"
	FlagUnverifiedBiometric = "unverified_biometric"
)

// Tracking alert types
const (
	AlertExitZone       = "exit_zone"
	AlertLateArrival    = "late_arrival"
	AlertLowBattery     = "low_battery"
	AlertConnectionLost = "connection_lost"
	AlertNoMovement     = "no_movement"
	AlertHighSpeed      = "high_speed"
	AlertDeviceChanged  = "device_changed"
)

// Alert severities
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
	SeverityInfo     = "info"
)

// Account represents a staff identity with an optional biometric reference
type Account struct {
	ID                string         `gorm:"primaryKey;column:id" json:"id"`
	Name              string         `gorm:"column:name;type:varchar(255);not null" json:"name"`
	Email             string         `gorm:"column:email;type:varchar(255);uniqueIndex" json:"email"`
	Role              string         `gorm:"column:role;type:varchar(50);not null;index" json:"role"`
	Status            string         `gorm:"column:status;type:varchar(50);default:active" json:"status"`
	BiometricRef      Vector         `gorm:"column:biometric_ref;type:text" json:"-"`
	DeviceFingerprint string         `gorm:"column:device_fingerprint;type:varchar(255)" json:"device_fingerprint"`
	CreatedAt         time.Time      `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time      `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
	DeletedAt         gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`
}

// Event represents a time-boxed engagement with a geofenced anchor
type Event struct {
	ID              string         `gorm:"primaryKey;column:id" json:"id"`
	Name            string         `gorm:"column:name;type:varchar(255);not null" json:"name"`
	StartsAt        time.Time      `gorm:"column:starts_at;not null;index" json:"starts_at"`
	EndsAt          time.Time      `gorm:"column:ends_at;not null" json:"ends_at"`
	CheckInOpensAt  *time.Time     `gorm:"column:check_in_opens_at" json:"check_in_opens_at,omitempty"`
	CheckInClosesAt *time.Time     `gorm:"column:check_in_closes_at" json:"check_in_closes_at,omitempty"`
	Lat             float64        `gorm:"column:lat;not null" json:"lat"`
	Lon             float64        `gorm:"column:lon;not null" json:"lon"`
	RadiusM         float64        `gorm:"column:radius_m;not null" json:"radius_m"`
	// AgentCreationBuffer is the number of minutes before start during
	// which on-site registration of new agents is permitted.
	AgentCreationBuffer int            `gorm:"column:agent_creation_buffer;default:0" json:"agent_creation_buffer"`
	Cancelled           bool           `gorm:"column:cancelled;default:false" json:"cancelled"`
	CreatedAt           time.Time      `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time      `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
	DeletedAt           gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`
}

// Zone is an optional subdivision of an event with its own geofence
type Zone struct {
	ID            string         `gorm:"primaryKey;column:id" json:"id"`
	EventID       string         `gorm:"column:event_id;type:varchar(36);not null;index" json:"event_id"`
	Name          string         `gorm:"column:name;type:varchar(255);not null" json:"name"`
	Lat           float64        `gorm:"column:lat;not null" json:"lat"`
	Lon           float64        `gorm:"column:lon;not null" json:"lon"`
	RadiusM       float64        `gorm:"column:radius_m;not null" json:"radius_m"`
	SupervisorIDs StringList     `gorm:"column:supervisor_ids;type:text" json:"supervisor_ids"`
	CreatedAt     time.Time      `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`

	// Relationships
	Event *Event `gorm:"foreignKey:EventID;references:ID" json:"-"`
}

// Assignment links an agent to an event and optionally a zone.
// GuardKey enforces at most one non-cancelled assignment per (agent, event):
// it holds "agent|event" while the row is live and is rewritten to include the
// row id when the assignment is cancelled or soft-deleted, freeing the slot.
type Assignment struct {
	ID         string         `gorm:"primaryKey;column:id" json:"id"`
	AgentID    string         `gorm:"column:agent_id;type:varchar(36);not null;index" json:"agent_id"`
	EventID    string         `gorm:"column:event_id;type:varchar(36);not null;index" json:"event_id"`
	ZoneID     *string        `gorm:"column:zone_id;type:varchar(36)" json:"zone_id,omitempty"`
	Status     string         `gorm:"column:status;type:varchar(50);default:pending;index" json:"status"`
	AssignedBy string         `gorm:"column:assigned_by;type:varchar(36);not null" json:"assigned_by"`
	GuardKey   string         `gorm:"column:guard_key;type:varchar(120);not null;uniqueIndex" json:"-"`
	CreatedAt  time.Time      `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`
}

// AssignmentGuardKey builds the live guard key for an (agent, event) pair
func AssignmentGuardKey(agentID, eventID string) string {
	return fmt.Sprintf("%s|%s", agentID, eventID)
}

// ReleasedGuardKey builds a freed guard key unique to a retired row
func ReleasedGuardKey(guardKey, rowID string) string {
	return fmt.Sprintf("%s#%s", guardKey, rowID)
}

// Terminal reports whether the assignment can no longer transition
// (declined and cancelled are terminal states)
func (a *Assignment) Terminal() bool {
	return a.Status == AssignmentDeclined || a.Status == AssignmentCancelled
}

// AttendanceRecord is one check-in/out cycle per (agent, event, day).
// GuardKey holds "agent|event|day" while the row is live; the unique index on
// it is what resolves concurrent admissions to exactly one winner.
type AttendanceRecord struct {
	ID                string         `gorm:"primaryKey;column:id" json:"id"`
	AgentID           string         `gorm:"column:agent_id;type:varchar(36);not null;index" json:"agent_id"`
	EventID           string         `gorm:"column:event_id;type:varchar(36);not null;index" json:"event_id"`
	ZoneID            *string        `gorm:"column:zone_id;type:varchar(36)" json:"zone_id,omitempty"`
	Day               string         `gorm:"column:day;type:varchar(10);not null" json:"day"`
	GuardKey          string         `gorm:"column:guard_key;type:varchar(160);not null;uniqueIndex" json:"-"`
	CheckInAt         time.Time      `gorm:"column:check_in_at;not null" json:"check_in_at"`
	CheckOutAt        *time.Time     `gorm:"column:check_out_at" json:"check_out_at,omitempty"`
	Lat               float64        `gorm:"column:lat" json:"lat"`
	Lon               float64        `gorm:"column:lon" json:"lon"`
	DistanceM         float64        `gorm:"column:distance_m" json:"distance_m"`
	MatchScore        float64        `gorm:"column:match_score" json:"match_score"`
	FacialVerified    bool           `gorm:"column:facial_verified;default:false" json:"facial_verified"`
	DeviceFingerprint string         `gorm:"column:device_fingerprint;type:varchar(255)" json:"device_fingerprint"`
	CheckInSource     string         `gorm:"column:check_in_source;type:varchar(50);not null" json:"check_in_source"`
	ActingAccountID   string         `gorm:"column:acting_account_id;type:varchar(36);not null" json:"acting_account_id"`
	Status            string         `gorm:"column:status;type:varchar(50);not null" json:"status"`
	Flags             StringList     `gorm:"column:flags;type:text" json:"flags"`
	Note              string         `gorm:"column:note;type:text" json:"note,omitempty"`
	CreatedAt         time.Time      `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time      `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
	DeletedAt         gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`
}

// AttendanceDay formats an instant as the calendar day key. The day is
// always the UTC day so the guard key is identical across instances
// regardless of their local zones.
func AttendanceDay(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// AttendanceGuardKey builds the live guard key for an (agent, event, day) triple
func AttendanceGuardKey(agentID, eventID, day string) string {
	return fmt.Sprintf("%s|%s|%s", agentID, eventID, day)
}

// TrackingAlert is an anomaly raised by the tracking monitor
type TrackingAlert struct {
	ID         string         `gorm:"primaryKey;column:id" json:"id"`
	AgentID    string         `gorm:"column:agent_id;type:varchar(36);not null;index" json:"agent_id"`
	EventID    *string        `gorm:"column:event_id;type:varchar(36);index" json:"event_id,omitempty"`
	ZoneID     *string        `gorm:"column:zone_id;type:varchar(36)" json:"zone_id,omitempty"`
	AlertType  string         `gorm:"column:alert_type;type:varchar(50);not null;index" json:"alert_type"`
	Severity   string         `gorm:"column:severity;type:varchar(50);not null" json:"severity"`
	Message    string         `gorm:"column:message;type:text" json:"message"`
	IsResolved bool           `gorm:"column:is_resolved;default:false;index" json:"is_resolved"`
	ResolvedBy string         `gorm:"column:resolved_by;type:varchar(36)" json:"resolved_by,omitempty"`
	ResolvedAt *time.Time     `gorm:"column:resolved_at" json:"resolved_at,omitempty"`
	Resolution string         `gorm:"column:resolution;type:text" json:"resolution,omitempty"`
	CreatedAt  time.Time      `gorm:"column:created_at;autoCreateTime;index" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`
}

// PositionSample is one raw position report (append-only audit trail)
type PositionSample struct {
	ID                string    `gorm:"primaryKey;column:id" json:"id"`
	AgentID           string    `gorm:"column:agent_id;type:varchar(36);not null;index:idx_agent_recorded,priority:1" json:"agent_id"`
	EventID           *string   `gorm:"column:event_id;type:varchar(36);index" json:"event_id,omitempty"`
	Lat               float64   `gorm:"column:lat;not null" json:"lat"`
	Lon               float64   `gorm:"column:lon;not null" json:"lon"`
	AccuracyM         float64   `gorm:"column:accuracy_m" json:"accuracy_m"`
	Battery           float64   `gorm:"column:battery" json:"battery"`
	DeviceFingerprint string    `gorm:"column:device_fingerprint;type:varchar(255)" json:"device_fingerprint,omitempty"`
	RecordedAt        time.Time `gorm:"column:recorded_at;not null;index:idx_agent_recorded,priority:2" json:"recorded_at"`
	CreatedAt         time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

// TableName specifies the table name for each model
func (Account) TableName() string {
	return "accounts"
}

func (Event) TableName() string {
	return "events"
}

func (Zone) TableName() string {
	return "zones"
}

func (Assignment) TableName() string {
	return "assignments"
}

func (AttendanceRecord) TableName() string {
	return "attendance_records"
}

func (TrackingAlert) TableName() string {
	return "tracking_alerts"
}

func (PositionSample) TableName() string {
	return "position_samples"
}
