// Package api implements the REST + SSE dashboard surface: investigation
// browsing and lifecycle control, human review resolution, audit/metrics
// endpoints, DB-backed settings, and optional authentication.
package api

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gbrigandi/soctalk/pkg/auth"
	"github.com/gbrigandi/soctalk/pkg/checkpoint"
	"github.com/gbrigandi/soctalk/pkg/database"
	"github.com/gbrigandi/soctalk/pkg/emitter"
	"github.com/gbrigandi/soctalk/pkg/hil"
	"github.com/gbrigandi/soctalk/pkg/settings"
	"github.com/gbrigandi/soctalk/pkg/sse"
	"github.com/gbrigandi/soctalk/pkg/version"
)

// Server is the REST + SSE API server.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server

	dbClient         *database.Client
	emitter          *emitter.Emitter
	checkpointer     *checkpoint.Checkpointer
	hilResolver      *hil.Resolver
	settingsProvider *settings.Provider
	bus              *sse.Bus
	auth             *auth.Authenticator
}

// NewServer wires every dependency and registers routes. authenticator may
// be nil, which is equivalent to AUTH_MODE=none.
func NewServer(
	dbClient *database.Client,
	emt *emitter.Emitter,
	cp *checkpoint.Checkpointer,
	resolver *hil.Resolver,
	settingsProvider *settings.Provider,
	bus *sse.Bus,
	authenticator *auth.Authenticator,
) *Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.MaxMultipartMemory = 2 << 20 // 2 MiB, matching the original body-size ceiling

	s := &Server{
		router:           router,
		dbClient:         dbClient,
		emitter:          emt,
		checkpointer:     cp,
		hilResolver:      resolver,
		settingsProvider: settingsProvider,
		bus:              bus,
		auth:             authenticator,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthHandler)

	api := s.router.Group("/api")
	if s.auth != nil {
		api.Use(s.auth.Middleware())
	}

	api.GET("/investigations", s.listInvestigations)
	api.GET("/investigations/:id", s.getInvestigation)
	api.GET("/investigations/:id/events", s.getInvestigationEvents)
	api.POST("/investigations/:id/pause", s.pauseInvestigation)
	api.POST("/investigations/:id/resume", s.resumeInvestigationLifecycle)
	api.POST("/investigations/:id/cancel", s.cancelInvestigation)

	api.GET("/review/pending", s.listPendingReviews)
	api.GET("/review/:id", s.getPendingReview)
	api.POST("/review/:id/approve", s.approveReview)
	api.POST("/review/:id/reject", s.rejectReview)
	api.POST("/review/:id/request-info", s.requestInfoReview)

	api.GET("/audit", s.auditList)
	api.GET("/audit/investigation/:id", s.auditForInvestigation)
	api.GET("/audit/stats", s.auditStats)
	api.GET("/audit/event-types", s.auditEventTypes)

	api.GET("/metrics/overview", s.metricsOverview)
	api.GET("/metrics/hourly", s.metricsHourly)
	api.GET("/stats/iocs", s.statsIOCs)
	api.GET("/stats/rules", s.statsRules)
	api.GET("/stats/analyzers", s.statsAnalyzers)

	api.GET("/analytics/summary", s.analyticsSummary)
	api.GET("/analytics/kpis", s.analyticsKPIs)
	api.GET("/analytics/ai-behavior", s.analyticsAIBehavior)
	api.GET("/analytics/human-review", s.analyticsHumanReview)
	api.GET("/analytics/outcomes", s.analyticsOutcomes)

	api.GET("/events/stream", sse.Handler(s.bus))

	api.GET("/settings", s.getSettings)
	api.GET("/settings/export", s.exportSettings)
	api.PUT("/settings", s.putSettings)
	api.POST("/settings/reset", s.resetSettings)

	if s.auth != nil {
		s.router.GET("/auth/session", s.auth.SessionHandler)
		s.router.POST("/auth/login", s.auth.LoginHandler)
		s.router.POST("/auth/logout", s.auth.LogoutHandler)
	}
}

// Start starts the HTTP server on addr (blocking).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.router}
	return s.httpServer.ListenAndServe()
}

// StartWithListener starts the HTTP server on a pre-created listener — used
// by tests that need a random OS-assigned port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.router}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the underlying engine, mainly so tests can drive requests
// with httptest without binding a real port.
func (s *Server) Router() *gin.Engine {
	return s.router
}

type healthResponse struct {
	Status   string                 `json:"status"`
	Version  string                 `json:"version"`
	Database *database.HealthStatus `json:"database"`
}

func (s *Server) healthHandler(c *gin.Context) {
	reqCtx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	dbHealth, err := database.Health(reqCtx, s.dbClient.DB())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, healthResponse{Status: "unhealthy", Version: version.Full(), Database: dbHealth})
		return
	}
	c.JSON(http.StatusOK, healthResponse{Status: "healthy", Version: version.Full(), Database: dbHealth})
}
