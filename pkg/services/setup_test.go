package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"guardpost/pkg/biometric"
	"guardpost/pkg/config"
	"guardpost/pkg/events"
	"guardpost/pkg/models"
	"guardpost/pkg/repository"
)

// testEnv wires the services against an in-memory database and a dispatcher
// that records everything published.
type testEnv struct {
	db          *gorm.DB
	accounts    repository.AccountRepository
	eventsRepo  repository.EventRepository
	assignments repository.AssignmentRepository
	attendance  repository.AttendanceRepository
	alerts      repository.AlertRepository
	positions   repository.PositionRepository
	dispatcher  *recordingDispatcher

	admission *AdmissionServiceImpl
	assigner  AssignmentService
	tracking  *TrackingServiceImpl
	accountsS *AccountServiceImpl
}

// recordingDispatcher captures dispatched events for assertions
type recordingDispatcher struct {
	mu     sync.Mutex
	events []events.Event
}

func (d *recordingDispatcher) Dispatch(event events.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
}

func (d *recordingDispatcher) byType(typ string) []events.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []events.Event
	for _, e := range d.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}

	// A single pooled connection keeps the in-memory database shared across
	// goroutines in the concurrency tests.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(
		&models.Account{},
		&models.Event{},
		&models.Zone{},
		&models.Assignment{},
		&models.AttendanceRecord{},
		&models.TrackingAlert{},
		&models.PositionSample{},
	)
	if err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	env := &testEnv{
		db:          db,
		accounts:    repository.NewAccountRepository(db),
		eventsRepo:  repository.NewEventRepository(db),
		assignments: repository.NewAssignmentRepository(db),
		attendance:  repository.NewAttendanceRepository(db),
		alerts:      repository.NewAlertRepository(db),
		positions:   repository.NewPositionRepository(db),
		dispatcher:  &recordingDispatcher{},
	}

	cfg := testConfig()

	env.admission = NewAdmissionService(env.accounts, env.eventsRepo, env.assignments, env.attendance, env.dispatcher, cfg.Admission)
	env.assigner = NewAssignmentService(env.assignments, env.accounts, env.eventsRepo, env.dispatcher)
	env.tracking = NewTrackingService(env.accounts, env.eventsRepo, env.assignments, env.attendance, env.alerts, env.positions, env.dispatcher, cfg.Tracking)
	env.accountsS = NewAccountService(env.accounts, env.eventsRepo, env.assigner)

	return env
}

func testConfig() *config.Config {
	return &config.Config{
		Admission: config.AdmissionConfig{
			GeofenceTolerance:             1.5,
			MinMatchScore:                 50,
			GracePeriod:                   15 * time.Minute,
			DefaultCheckInBuffer:          60 * time.Minute,
			AllowAssistedGeofenceOverride: true,
		},
		Tracking: config.TrackingConfig{
			LateArrivalGrace:      15 * time.Minute,
			LowBatteryThreshold:   15,
			HighSpeedThresholdKmh: 120,
			ConnectionLostAfter:   3 * time.Minute,
			NoMovementWindow:      20 * time.Minute,
			NoMovementNoiseM:      10,
			SweepInterval:         50 * time.Millisecond,
		},
	}
}

// referenceVector is a unit embedding along the first axis
func referenceVector() models.Vector {
	v := make(models.Vector, biometric.VectorLength)
	v[0] = 1
	return v
}

// matchingSample scores 100 against referenceVector
func matchingSample() models.Vector {
	return referenceVector()
}

// failingSample points the opposite way and scores 0
func failingSample() models.Vector {
	v := make(models.Vector, biometric.VectorLength)
	v[0] = -1
	return v
}

func (env *testEnv) seedAccount(t *testing.T, role string, ref models.Vector) *models.Account {
	t.Helper()
	account := &models.Account{
		ID:           uuid.New().String(),
		Name:         "Test " + role,
		Email:        uuid.New().String() + "@example.com",
		Role:         role,
		Status:       models.AccountActive,
		BiometricRef: ref,
	}
	if err := env.accounts.Create(context.Background(), account); err != nil {
		t.Fatalf("failed to seed account: %v", err)
	}
	return account
}

// seedEvent creates an event running 10:00 to 12:00 UTC on 2026-06-01 with a
// 150m geofence centered on central Paris.
func (env *testEnv) seedEvent(t *testing.T) *models.Event {
	t.Helper()
	event := &models.Event{
		ID:       uuid.New().String(),
		Name:     "Perimeter Detail",
		StartsAt: time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC),
		EndsAt:   time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC),
		Lat:      48.8566,
		Lon:      2.3522,
		RadiusM:  150,
	}
	if err := env.eventsRepo.Create(context.Background(), event); err != nil {
		t.Fatalf("failed to seed event: %v", err)
	}
	return event
}

func (env *testEnv) seedZone(t *testing.T, event *models.Event, supervisorIDs ...string) *models.Zone {
	t.Helper()
	zone := &models.Zone{
		ID:            uuid.New().String(),
		EventID:       event.ID,
		Name:          "North Gate",
		Lat:           event.Lat,
		Lon:           event.Lon,
		RadiusM:       100,
		SupervisorIDs: models.StringList(supervisorIDs),
	}
	if err := env.eventsRepo.CreateZone(context.Background(), zone); err != nil {
		t.Fatalf("failed to seed zone: %v", err)
	}
	return zone
}

func (env *testEnv) seedConfirmedAssignment(t *testing.T, agentID, eventID string, zoneID *string) *models.Assignment {
	t.Helper()
	assignment := &models.Assignment{
		ID:         uuid.New().String(),
		AgentID:    agentID,
		EventID:    eventID,
		ZoneID:     zoneID,
		Status:     models.AssignmentConfirmed,
		AssignedBy: "seed",
	}
	if err := env.assignments.Create(context.Background(), assignment); err != nil {
		t.Fatalf("failed to seed assignment: %v", err)
	}
	return assignment
}

// at pins a service clock to a fixed instant
func at(instant time.Time) func() time.Time {
	return func() time.Time { return instant }
}
