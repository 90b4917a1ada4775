package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"guardpost/pkg/bus"
	"guardpost/pkg/config"
	"guardpost/pkg/database"
	"guardpost/pkg/errors"
	"guardpost/pkg/events"
	httpserver "guardpost/pkg/http"
	"guardpost/pkg/logging"
	"guardpost/pkg/models"
	"guardpost/pkg/repository"
	"guardpost/pkg/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := logging.Init(logging.LogLevel(cfg.Logging.Level), cfg.Logging.Format); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}

	logging.Infof("starting guardpost on %s:%d (driver=%s)", cfg.Server.Host, cfg.Server.Port, cfg.Database.Driver)

	db, err := database.New(cfg)
	if err != nil {
		logging.Errorf("failed to open database: %v", err)
		os.Exit(1)
	}
	if err := database.Migrate(db); err != nil {
		logging.Errorf("failed to run migrations: %v", err)
		os.Exit(1)
	}

	accountRepo := repository.NewAccountRepository(db)
	eventRepo := repository.NewEventRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	alertRepo := repository.NewAlertRepository(db)
	positionRepo := repository.NewPositionRepository(db)

	// Real-time distribution bus
	hub := bus.NewHub(cfg.Bus.SendBuffer, cfg.Bus.RoomQueueSize)
	dispatcher := events.NewHubDispatcher(hub)

	// The bus handshake verifies the account exists, is not suspended and
	// presents its stored role.
	authFn := func(ctx context.Context, accountID, role string) error {
		account, err := accountRepo.Get(ctx, accountID)
		if err != nil {
			return err
		}
		if account.Status == models.AccountSuspended {
			return errors.NotAuthorizedErrorf("ACCOUNT_SUSPENDED", "account %s is suspended", accountID)
		}
		if account.Role != role {
			return errors.NotAuthorizedErrorf("ROLE_MISMATCH", "account %s is not a %s", accountID, role)
		}
		return nil
	}
	busHandler := bus.NewHandler(hub, cfg.Bus.AuthTimeout, authFn)

	assignmentService := services.NewAssignmentService(assignmentRepo, accountRepo, eventRepo, dispatcher)
	admissionService := services.NewAdmissionService(accountRepo, eventRepo, assignmentRepo, attendanceRepo, dispatcher, cfg.Admission)
	trackingService := services.NewTrackingService(accountRepo, eventRepo, assignmentRepo, attendanceRepo, alertRepo, positionRepo, dispatcher, cfg.Tracking)
	accountService := services.NewAccountService(accountRepo, eventRepo, assignmentService)

	trackingService.Start()

	server := httpserver.NewServer(cfg, &httpserver.Dependencies{
		DB:          db,
		Accounts:    accountService,
		Assignments: assignmentService,
		Admission:   admissionService,
		Tracking:    trackingService,

		AccountRepo:    accountRepo,
		EventRepo:      eventRepo,
		AssignmentRepo: assignmentRepo,
		AttendanceRepo: attendanceRepo,
		AlertRepo:      alertRepo,
		PositionRepo:   positionRepo,

		BusHandler: busHandler,
	})

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		if err != nil {
			logging.Errorf("server failed: %v", err)
		}
	case sig := <-sigChan:
		logging.Infof("received %s, shutting down", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(shutdownCtx); err != nil {
		logging.Errorf("http shutdown failed: %v", err)
	}
	trackingService.Stop()
	hub.Stop()

	logging.Info("guardpost stopped")
}
