// Package api exposes the HTTP surface: detection intake, device telemetry,
// recipient administration, alert dispatch, the live device stream, and
// operational endpoints.
package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"trailguard/config"
	"trailguard/hub"
	"trailguard/intake"
	"trailguard/service"
	"trailguard/storage"
)

// rateLimiterEntry holds a rate limiter with last seen time.
type rateLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// API holds the HTTP server and its collaborators.
type API struct {
	router         *mux.Router
	server         *http.Server
	gateway        *intake.Gateway
	alerts         *service.AlertService
	recipients     *storage.RecipientStore
	detections     *storage.DetectionStore
	acks           *storage.AckStore
	devices        *storage.DeviceStore
	audit          *storage.AuditLog
	hub            *hub.Hub
	config         *config.Config
	logger         *zap.SugaredLogger
	rateLimiters   map[string]*rateLimiterEntry
	rateLimitersMu sync.Mutex
	started        time.Time
	stopCh         chan struct{}
}

// NewAPI creates the API server and registers all routes.
func NewAPI(
	gateway *intake.Gateway,
	alerts *service.AlertService,
	recipients *storage.RecipientStore,
	detections *storage.DetectionStore,
	acks *storage.AckStore,
	devices *storage.DeviceStore,
	audit *storage.AuditLog,
	h *hub.Hub,
	cfg *config.Config,
	logger *zap.SugaredLogger,
) *API {
	a := &API{
		router:       mux.NewRouter(),
		gateway:      gateway,
		alerts:       alerts,
		recipients:   recipients,
		detections:   detections,
		acks:         acks,
		devices:      devices,
		audit:        audit,
		hub:          h,
		config:       cfg,
		logger:       logger,
		rateLimiters: make(map[string]*rateLimiterEntry),
		started:      time.Now(),
		stopCh:       make(chan struct{}),
	}
	a.setupRoutes()
	go a.cleanupRateLimiters()
	return a
}

// setupRoutes sets up the API routes.
func (a *API) setupRoutes() {
	a.router.Use(a.corsMiddleware)
	a.router.Use(a.rateLimitMiddleware)

	// Device-facing intake surface.
	a.router.HandleFunc("/api/detections", a.submitDetection).Methods("POST")
	a.router.HandleFunc("/api/detections/batch", a.submitBatch).Methods("POST")
	a.router.HandleFunc("/api/heartbeat", a.heartbeat).Methods("POST")
	a.router.HandleFunc("/api/devices/register", a.registerDevice).Methods("POST")

	// Dashboard read surface.
	a.router.HandleFunc("/api/detections", a.getDetections).Methods("GET")
	a.router.HandleFunc("/api/detections/{event_id}", a.getDetection).Methods("GET")
	a.router.HandleFunc("/api/detections/{event_id}/ack", a.getAck).Methods("GET")
	a.router.HandleFunc("/api/devices", a.getDevices).Methods("GET")
	a.router.HandleFunc("/api/devices/{id}", a.getDevice).Methods("GET")
	a.router.HandleFunc("/api/devices/{id}/telemetry", a.getDeviceTelemetry).Methods("GET")
	a.router.HandleFunc("/api/audit", a.getAuditLog).Methods("GET")

	// Recipient administration and alert dispatch.
	a.router.HandleFunc("/api/recipients", a.getRecipients).Methods("GET")
	a.router.HandleFunc("/api/recipients", a.createRecipient).Methods("POST")
	a.router.HandleFunc("/api/recipients/{id}", a.updateRecipient).Methods("PUT")
	a.router.HandleFunc("/api/recipients/{id}", a.deleteRecipient).Methods("DELETE")
	a.router.HandleFunc("/api/alerts/dispatch", a.dispatchAlerts).Methods("POST")
	a.router.HandleFunc("/api/alerts/history", a.getAlertHistory).Methods("GET")
	a.router.HandleFunc("/api/alerts/stats", a.getAlertStats).Methods("GET")

	// Live device updates.
	a.router.HandleFunc("/api/stream", a.streamDevices).Methods("GET")
	a.router.HandleFunc("/ws", a.serveWebSocket).Methods("GET")

	a.router.HandleFunc("/health", a.healthCheck).Methods("GET")
	a.router.Handle("/metrics", promhttp.Handler())
}

// Router exposes the configured router, mainly for tests.
func (a *API) Router() http.Handler {
	return a.router
}

// Start starts the API server.
func (a *API) Start() error {
	addr := fmt.Sprintf("%s:%d", a.config.API.Host, a.config.API.Port)
	a.server = &http.Server{
		Addr:         addr,
		Handler:      a.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // SSE connections stay open indefinitely
	}
	a.logger.Infof("API server listening on %s", addr)
	return a.server.ListenAndServe()
}

// Stop stops the API server.
func (a *API) Stop(ctx context.Context) error {
	close(a.stopCh)
	if a.server != nil {
		return a.server.Shutdown(ctx)
	}
	return nil
}
