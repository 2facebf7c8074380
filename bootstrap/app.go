// Package bootstrap wires the application together: configuration, logging,
// stores, the intake gateway, the dispatch engine, and the API server.
package bootstrap

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"trailguard/api"
	"trailguard/config"
	"trailguard/core"
	"trailguard/hub"
	"trailguard/intake"
	"trailguard/notify"
	"trailguard/service"
	"trailguard/storage"
)

// App holds every long-lived component of a running trailguard server.
type App struct {
	Config *config.Config
	Logger *zap.Logger
	Sugar  *zap.SugaredLogger

	// Stores
	Dedup      storage.DedupWindow
	Detections *storage.DetectionStore
	Acks       *storage.AckStore
	Devices    *storage.DeviceStore
	Recipients *storage.RecipientStore
	Audit      *storage.AuditLog
	Ledger     storage.MessageStore

	// Services
	Hub       *hub.Hub
	Gateway   *intake.Gateway
	Alerts    *service.AlertService
	APIServer *api.API

	redisClient *redis.Client
	serverErrCh chan error
}

// NewApp loads configuration and constructs all components. Nothing is
// started yet; call Start.
func NewApp(ctx context.Context) (*App, error) {
	app := &App{serverErrCh: make(chan error, 1)}

	logger, sugar, err := InitLogger()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	app.Logger = logger
	app.Sugar = sugar

	sugar.Info("Trailguard starting...")

	cfg, err := InitConfig(sugar)
	if err != nil {
		return nil, err
	}
	app.Config = cfg

	if err := app.initStores(ctx); err != nil {
		return nil, err
	}

	app.Hub = hub.NewHub(cfg.Stream.SubscriberBuffer, sugar)

	app.Gateway = intake.NewGateway(intake.Config{
		APIKey:         cfg.Auth.APIKey,
		DeviceSecrets:  cfg.Auth.DeviceSecrets,
		TimestampSkew:  cfg.Auth.TimestampSkew,
		AllowedSpecies: cfg.Intake.AllowedSpecies,
	}, app.Dedup, app.Detections, app.Acks, app.Devices, app.Audit, app.Hub, sugar)

	app.Alerts = service.NewAlertService(
		app.Recipients, app.Detections, app.Ledger,
		buildSenders(cfg, sugar),
		service.AlertConfig{
			MessageDelay: cfg.Alerts.MessageDelay,
			Breaker: core.CircuitBreakerConfig{
				MaxFailures:         cfg.Alerts.Breaker.MaxFailures,
				Timeout:             cfg.Alerts.Breaker.Timeout,
				MaxHalfOpenRequests: cfg.Alerts.Breaker.MaxHalfOpenRequests,
			},
		}, sugar)

	app.APIServer = api.NewAPI(
		app.Gateway, app.Alerts, app.Recipients, app.Detections, app.Acks,
		app.Devices, app.Audit, app.Hub, cfg, sugar)

	return app, nil
}

// initStores builds the storage layer from the configured backends.
func (a *App) initStores(ctx context.Context) error {
	cfg := a.Config

	a.Detections = storage.NewDetectionStore(cfg.Intake.HistorySize)
	a.Devices = storage.NewDeviceStore()
	a.Recipients = storage.NewRecipientStore()
	a.Audit = storage.NewAuditLog(cfg.Intake.AuditSize)

	acks, err := storage.NewAckStore(cfg.Intake.AckCapacity)
	if err != nil {
		return fmt.Errorf("failed to initialize ack store: %w", err)
	}
	a.Acks = acks

	switch cfg.Storage.DedupBackend {
	case "redis":
		a.redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Storage.Redis.Addr,
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := a.redisClient.Ping(pingCtx).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis at %s: %w", cfg.Storage.Redis.Addr, err)
		}
		a.Dedup = storage.NewRedisDedupWindowFromClient(a.redisClient, cfg.Intake.DedupWindow, a.Sugar)
		a.Sugar.Infow("Dedup window backed by Redis", "addr", cfg.Storage.Redis.Addr)
	default:
		a.Dedup = storage.NewMemoryDedupWindow(cfg.Intake.DedupWindow)
	}

	switch cfg.Storage.LedgerBackend {
	case "sqlite":
		ledger, err := storage.NewSQLiteMessageStore(cfg.Storage.SQLitePath, a.Sugar)
		if err != nil {
			return fmt.Errorf("failed to open message ledger at %s: %w", cfg.Storage.SQLitePath, err)
		}
		a.Ledger = ledger
		a.Sugar.Infow("Message ledger backed by SQLite", "path", cfg.Storage.SQLitePath)
	default:
		a.Ledger = storage.NewMemoryMessageStore()
	}

	return nil
}

// buildSenders constructs a sender per channel. Senders with no configured
// gateway still register; their sends fail and feed the circuit breaker
// rather than silently vanishing.
func buildSenders(cfg *config.Config, sugar *zap.SugaredLogger) []notify.Sender {
	return []notify.Sender{
		notify.NewWhatsAppSender(notify.WhatsAppConfig{
			GatewayURL: cfg.Alerts.WhatsApp.GatewayURL,
			Token:      cfg.Alerts.WhatsApp.Token,
		}, sugar),
		notify.NewSMSSender(notify.SMSConfig{
			GatewayURL: cfg.Alerts.SMS.GatewayURL,
			APIKey:     cfg.Alerts.SMS.APIKey,
			SenderID:   cfg.Alerts.SMS.SenderID,
		}, sugar),
		notify.NewEmailSender(notify.EmailConfig{
			SMTPHost:    cfg.Alerts.Email.SMTPHost,
			SMTPPort:    cfg.Alerts.Email.SMTPPort,
			Username:    cfg.Alerts.Email.Username,
			Password:    cfg.Alerts.Email.Password,
			FromAddress: cfg.Alerts.Email.FromAddress,
		}, sugar),
	}
}

// Start launches the API server.
func (a *App) Start(ctx context.Context) error {
	go func() {
		if err := a.APIServer.Start(); err != nil && err != http.ErrServerClosed {
			a.Sugar.Errorw("API server exited", "error", err)
			a.serverErrCh <- err
		}
	}()
	return nil
}

// WaitForShutdown blocks until a shutdown signal is received or the server
// fails.
func (a *App) WaitForShutdown() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-c:
		a.Sugar.Infow("Shutdown signal received", "signal", sig.String())
	case err := <-a.serverErrCh:
		a.Sugar.Errorw("Shutting down after server failure", "error", err)
	}
}

// Shutdown stops components in dependency order: the API server first so no
// new submissions arrive, then the backing stores.
func (a *App) Shutdown() {
	a.Sugar.Info("Shutting down...")

	if a.APIServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.APIServer.Stop(ctx); err != nil {
			a.Sugar.Errorw("Failed to stop API server", "error", err)
		}
	}

	if closer, ok := a.Ledger.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			a.Sugar.Errorw("Failed to close message ledger", "error", err)
		}
	}

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.Sugar.Errorw("Failed to close redis connection", "error", err)
		}
	}

	a.Sugar.Info("Shutdown complete")
	a.Logger.Sync()
}
