package http

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"guardpost/pkg/bus"
	"guardpost/pkg/config"
	"guardpost/pkg/errors"
	"guardpost/pkg/http/handlers"
	"guardpost/pkg/logging"
	"guardpost/pkg/repository"
	"guardpost/pkg/services"
)

// Server is the HTTP surface: the REST API, the WebSocket endpoint and the
// operational endpoints (health, metrics).
type Server struct {
	httpServer *http.Server
	router     *gin.Engine
	cfg        *config.Config
}

// Dependencies bundles everything the server routes to
type Dependencies struct {
	DB          *gorm.DB
	Accounts    services.AccountService
	Assignments services.AssignmentService
	Admission   services.AdmissionService
	Tracking    services.TrackingService

	AccountRepo    repository.AccountRepository
	EventRepo      repository.EventRepository
	AssignmentRepo repository.AssignmentRepository
	AttendanceRepo repository.AttendanceRepository
	AlertRepo      repository.AlertRepository
	PositionRepo   repository.PositionRepository

	BusHandler *bus.Handler
}

// NewServer builds the router and wires every handler
func NewServer(cfg *config.Config, deps *Dependencies) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	errHandler := errors.NewHandler(true, logging.Errorf)
	router.Use(RequestLogger())
	router.Use(Metrics())
	router.Use(Recovery(errHandler))

	health := handlers.NewHealthHandler(deps.DB)
	accounts := handlers.NewAccountHandlers(deps.Accounts, errHandler)
	eventsH := handlers.NewEventHandlers(deps.EventRepo, errHandler, cfg.Admission)
	assignments := handlers.NewAssignmentHandlers(deps.Assignments, deps.AssignmentRepo, errHandler)
	admission := handlers.NewAdmissionHandlers(deps.Admission, deps.AttendanceRepo, errHandler)
	tracking := handlers.NewTrackingHandlers(deps.Tracking, deps.AlertRepo, deps.PositionRepo, errHandler)

	router.GET("/health", health.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if deps.BusHandler != nil {
		router.GET("/ws", gin.WrapH(deps.BusHandler))
	}

	v1 := router.Group("/api/v1")
	{
		v1.POST("/accounts", accounts.Create)
		v1.GET("/accounts", accounts.List)
		v1.GET("/accounts/:id", accounts.Get)
		v1.POST("/accounts/:id/biometric", accounts.EnrollBiometric)
		v1.POST("/accounts/:id/suspend", accounts.Suspend)
		v1.DELETE("/accounts/:id", accounts.Delete)

		v1.POST("/events", eventsH.Create)
		v1.GET("/events", eventsH.List)
		v1.GET("/events/:id", eventsH.Get)
		v1.POST("/events/:id/cancel", eventsH.Cancel)
		v1.DELETE("/events/:id", eventsH.Delete)
		v1.POST("/events/:id/zones", eventsH.CreateZone)
		v1.GET("/events/:id/zones", eventsH.ListZones)
		v1.POST("/events/:id/register", accounts.SelfRegister)
		v1.GET("/events/:id/assignments", assignments.ListForEvent)
		v1.GET("/events/:id/attendance", admission.ListForEvent)

		v1.POST("/assignments", assignments.Create)
		v1.POST("/assignments/bulk-sync", assignments.BulkSync)
		v1.POST("/assignments/:id/cancel", assignments.Cancel)
		v1.POST("/assignments/:id/decline", assignments.Decline)

		v1.POST("/attendance/check-in", admission.CheckIn)
		v1.POST("/attendance/check-out", admission.CheckOut)

		v1.POST("/tracking/positions", tracking.IngestPosition)
		v1.GET("/tracking/alerts", tracking.ListAlerts)
		v1.POST("/tracking/alerts/:id/resolve", tracking.ResolveAlert)
		v1.GET("/tracking/agents/:id/positions", tracking.ListPositions)
	}

	return &Server{
		router: router,
		cfg:    cfg,
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
	}
}

// Router exposes the underlying engine, mainly for tests
func (s *Server) Router() http.Handler {
	return s.router
}

// Start begins serving. Blocks until the listener fails or Stop is called.
func (s *Server) Start() error {
	logging.Infof("http server listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Stop drains in-flight requests and shuts the listener down
func (s *Server) Stop(ctx context.Context) error {
	logging.Info("shutting down http server")
	return s.httpServer.Shutdown(ctx)
}
