// Package intake implements the detection intake gateway: authentication,
// schema validation, idempotent deduplication, integrity and species checks,
// and the acceptance side effects (persist, acknowledge, audit, broadcast).
package intake

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"trailguard/core"
	"trailguard/hub"
	"trailguard/metrics"
	"trailguard/storage"
)

// Config holds the gateway's policy knobs.
type Config struct {
	// APIKey is the shared secret every device presents.
	APIKey string
	// DeviceSecrets maps device id to its HMAC signing secret. Devices
	// without an entry skip signature verification.
	DeviceSecrets map[string]string
	// TimestampSkew is the maximum accepted age of the timestamp header.
	TimestampSkew time.Duration
	// AllowedSpecies is the case-insensitive allow-list. An empty list
	// admits every species.
	AllowedSpecies []string
}

// Credentials carries the authentication material extracted from a request.
type Credentials struct {
	APIKey    string
	DeviceID  string
	Timestamp string
	Signature string
	// Body is the raw request body the signature covers.
	Body []byte
}

// Result is the receipt returned for one submission.
type Result struct {
	EventID     string         `json:"event_id"`
	AckID       string         `json:"ack_id"`
	Duplicate   bool           `json:"duplicate"`
	Status      core.AckStatus `json:"status"`
	ReceivedAt  time.Time      `json:"received_at"`
	ProcessedAt time.Time      `json:"processed_at"`
}

// Gateway runs the intake pipeline. All acceptance side effects are
// synchronous and in-process; alert dispatch is the caller's concern so a
// rejected submission can never partially notify anyone.
type Gateway struct {
	config     Config
	allowed    map[string]struct{}
	dedup      storage.DedupWindow
	detections *storage.DetectionStore
	acks       *storage.AckStore
	devices    *storage.DeviceStore
	audit      *storage.AuditLog
	hub        *hub.Hub
	validate   *validator.Validate
	logger     *zap.SugaredLogger
	now        func() time.Time
}

// NewGateway wires the intake pipeline to its stores and the broadcast hub.
func NewGateway(
	config Config,
	dedup storage.DedupWindow,
	detections *storage.DetectionStore,
	acks *storage.AckStore,
	devices *storage.DeviceStore,
	audit *storage.AuditLog,
	h *hub.Hub,
	logger *zap.SugaredLogger,
) *Gateway {
	allowed := make(map[string]struct{}, len(config.AllowedSpecies))
	for _, s := range config.AllowedSpecies {
		allowed[strings.ToLower(s)] = struct{}{}
	}
	return &Gateway{
		config:     config,
		allowed:    allowed,
		dedup:      dedup,
		detections: detections,
		acks:       acks,
		devices:    devices,
		audit:      audit,
		hub:        h,
		validate:   validator.New(),
		logger:     logger,
		now:        time.Now,
	}
}

// Authenticate verifies the shared secret, device id, timestamp freshness
// and, for devices with a configured signing secret, the body signature.
func (g *Gateway) Authenticate(creds Credentials) error {
	if subtle.ConstantTimeCompare([]byte(creds.APIKey), []byte(g.config.APIKey)) != 1 {
		return fmt.Errorf("%w: bad api key", core.ErrAuthFailed)
	}
	if creds.DeviceID == "" {
		return fmt.Errorf("%w: missing device id", core.ErrAuthFailed)
	}

	if creds.Timestamp != "" {
		ts, err := strconv.ParseInt(creds.Timestamp, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: unparseable timestamp header", core.ErrAuthFailed)
		}
		age := g.now().Sub(time.Unix(ts, 0))
		if age > g.config.TimestampSkew || age < -g.config.TimestampSkew {
			return fmt.Errorf("%w: %s outside %s window", core.ErrStaleTimestamp, age, g.config.TimestampSkew)
		}
	}

	if secret := g.config.DeviceSecrets[creds.DeviceID]; secret != "" {
		if creds.Timestamp == "" || creds.Signature == "" {
			return fmt.Errorf("%w: signature required for device %s", core.ErrAuthFailed, creds.DeviceID)
		}
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write([]byte(creds.Timestamp))
		mac.Write([]byte("."))
		mac.Write(creds.Body)
		expected := hex.EncodeToString(mac.Sum(nil))
		if !hmac.Equal([]byte(expected), []byte(strings.ToLower(creds.Signature))) {
			return fmt.Errorf("%w: bad signature for device %s", core.ErrAuthFailed, creds.DeviceID)
		}
	}

	return nil
}

// Submit runs the full intake pipeline for one detection. Each step is a
// potential rejection point; a duplicate inside the dedup window short-
// circuits with the originally issued ack id and is not an error.
func (g *Gateway) Submit(ctx context.Context, creds Credentials, payload DetectionPayload) (Result, error) {
	started := g.now()
	defer func() {
		metrics.IntakeProcessingDuration.Observe(time.Since(started).Seconds())
	}()

	if err := g.Authenticate(creds); err != nil {
		metrics.DetectionsReceived.WithLabelValues("auth_failed").Inc()
		return Result{}, err
	}
	return g.submitAuthed(ctx, creds.DeviceID, payload)
}

// submitAuthed is the pipeline after authentication; batch submissions
// authenticate once and come in here per item.
func (g *Gateway) submitAuthed(ctx context.Context, credDeviceID string, payload DetectionPayload) (Result, error) {
	deviceID := payload.DeviceID
	if deviceID == "" {
		deviceID = credDeviceID
	}

	if err := g.checkSchema(deviceID, payload); err != nil {
		metrics.DetectionsReceived.WithLabelValues("invalid").Inc()
		return Result{}, err
	}

	receivedAt := g.now().UTC()
	eventID := payload.EventID
	if eventID == "" {
		eventID = fmt.Sprintf("det_%s_%d_%d", deviceID, receivedAt.UnixMilli(), payload.DetectionID)
	}

	if ackID, seen, err := g.dedup.Check(ctx, eventID); err != nil {
		g.logger.Errorw("Dedup window lookup failed", "event_id", eventID, "error", err)
		return Result{}, fmt.Errorf("dedup lookup: %w", err)
	} else if seen {
		metrics.DetectionsDuplicate.Inc()
		g.logger.Infow("Duplicate submission absorbed",
			"event_id", eventID, "device_id", deviceID, "ack_id", ackID)
		result := Result{
			EventID:   eventID,
			AckID:     ackID,
			Duplicate: true,
			Status:    core.AckStatusProcessed,
		}
		if ack, err := g.acks.Get(eventID); err == nil {
			result.ReceivedAt = ack.ReceivedAt
			result.ProcessedAt = ack.ProcessedAt
			result.Status = ack.Status
		}
		return result, nil
	}

	eventTime := timeFromEpoch(payload.Timestamp, receivedAt)

	if payload.Checksum != "" {
		expected := core.ContentChecksum(eventID, deviceID, payload.ClassName, payload.Confidence, eventTime)
		if !strings.EqualFold(payload.Checksum, expected) {
			metrics.DetectionsReceived.WithLabelValues("integrity_failed").Inc()
			g.auditEntry(eventID, deviceID, "rejected", "checksum mismatch")
			return Result{}, fmt.Errorf("%w for event %s", core.ErrChecksumMismatch, eventID)
		}
	}

	if !g.speciesAllowed(payload.ClassName) {
		metrics.DetectionsReceived.WithLabelValues("species_filtered").Inc()
		g.auditEntry(eventID, deviceID, "rejected", fmt.Sprintf("species %q not allowed", payload.ClassName))
		return Result{}, fmt.Errorf("%w: %q", core.ErrSpeciesNotAllowed, payload.ClassName)
	}

	ackID := "ack_" + uuid.NewString()
	processedAt := g.now().UTC()

	// Claim the window slot before persisting anything. Two simultaneous
	// submissions with the same id can both pass the Check above; Remember is
	// atomic, so exactly one claims the id and the other returns the winner's
	// receipt without a second persist.
	if storedAckID, existed, err := g.dedup.Remember(ctx, eventID, ackID); err != nil {
		// A dedup write failure only weakens retry absorption, so log and
		// carry on with the submission.
		g.logger.Errorw("Failed to record event in dedup window",
			"event_id", eventID, "error", err)
	} else if existed {
		metrics.DetectionsDuplicate.Inc()
		g.logger.Infow("Duplicate submission absorbed",
			"event_id", eventID, "device_id", deviceID, "ack_id", storedAckID)
		result := Result{
			EventID:   eventID,
			AckID:     storedAckID,
			Duplicate: true,
			Status:    core.AckStatusProcessed,
		}
		if ack, err := g.acks.Get(eventID); err == nil {
			result.ReceivedAt = ack.ReceivedAt
			result.ProcessedAt = ack.ProcessedAt
			result.Status = ack.Status
		}
		return result, nil
	}

	detection := payload.toDetection(deviceID, eventID, eventTime)
	detection.Metadata.AckID = ackID
	detection.Metadata.ReceivedAt = receivedAt
	g.detections.Insert(detection)

	ack := core.Acknowledgment{
		AckID:       ackID,
		EventID:     eventID,
		DeviceID:    deviceID,
		ReceivedAt:  receivedAt,
		ProcessedAt: processedAt,
		Status:      core.AckStatusProcessed,
		Checksum:    payload.Checksum,
	}
	g.acks.Put(ack)

	g.auditEntry(eventID, deviceID, "accepted",
		fmt.Sprintf("species=%s confidence=%.2f", strings.ToLower(payload.ClassName), payload.Confidence))

	snapshot := g.devices.RecordDetection(deviceID, receivedAt)
	g.hub.Publish(*snapshot)

	metrics.DetectionsReceived.WithLabelValues("accepted").Inc()
	g.logger.Infow("Detection accepted",
		"event_id", eventID,
		"device_id", deviceID,
		"species", strings.ToLower(payload.ClassName),
		"confidence", payload.Confidence,
		"ack_id", ackID)

	return Result{
		EventID:     eventID,
		AckID:       ackID,
		Duplicate:   false,
		Status:      core.AckStatusProcessed,
		ReceivedAt:  receivedAt,
		ProcessedAt: processedAt,
	}, nil
}

// BatchItem is the per-detection outcome of a batch submission.
type BatchItem struct {
	EventID   string `json:"event_id"`
	AckID     string `json:"ack_id,omitempty"`
	Duplicate bool   `json:"duplicate"`
	Error     string `json:"error,omitempty"`
}

// BatchResult summarizes one batch submission.
type BatchResult struct {
	Accepted   int         `json:"accepted"`
	Duplicates int         `json:"duplicates"`
	Rejected   int         `json:"rejected"`
	Items      []BatchItem `json:"items"`
}

// SubmitBatch authenticates once and runs the pipeline per detection. One
// rejected item never aborts the rest of the batch.
func (g *Gateway) SubmitBatch(ctx context.Context, creds Credentials, payloads []DetectionPayload) (BatchResult, error) {
	if err := g.Authenticate(creds); err != nil {
		metrics.DetectionsReceived.WithLabelValues("auth_failed").Inc()
		return BatchResult{}, err
	}

	result := BatchResult{Items: make([]BatchItem, 0, len(payloads))}
	for _, payload := range payloads {
		r, err := g.submitAuthed(ctx, creds.DeviceID, payload)
		item := BatchItem{EventID: r.EventID, AckID: r.AckID, Duplicate: r.Duplicate}
		switch {
		case err != nil:
			item.EventID = payload.EventID
			item.Error = err.Error()
			result.Rejected++
		case r.Duplicate:
			result.Duplicates++
		default:
			result.Accepted++
		}
		result.Items = append(result.Items, item)
	}
	return result, nil
}

// Heartbeat records a device's periodic status report and broadcasts the
// refreshed snapshot.
func (g *Gateway) Heartbeat(ctx context.Context, creds Credentials, payload HeartbeatPayload) (*core.Device, error) {
	if err := g.Authenticate(creds); err != nil {
		return nil, err
	}

	deviceID := payload.DeviceID
	if deviceID == "" {
		deviceID = creds.DeviceID
	}
	if deviceID == "" {
		return nil, fmt.Errorf("%w: device_id is required", core.ErrValidation)
	}

	at := timeFromEpoch(payload.Timestamp, g.now().UTC())
	snapshot := g.devices.ApplyHeartbeat(deviceID, at, core.DeviceStatus(payload.Status), payload.Stats.toDeviceStats(), payload.Stats.Cameras)
	g.hub.Publish(*snapshot)

	metrics.HeartbeatsReceived.Inc()
	g.logger.Debugw("Heartbeat applied",
		"device_id", deviceID,
		"cpu_percent", snapshot.Stats.CPUPercent,
		"uptime_seconds", snapshot.Stats.UptimeSeconds)
	return snapshot, nil
}

// Register upserts a device's display metadata and broadcasts the snapshot.
func (g *Gateway) Register(ctx context.Context, creds Credentials, payload RegisterPayload) (*core.Device, error) {
	if err := g.Authenticate(creds); err != nil {
		return nil, err
	}

	deviceID := payload.DeviceID
	if deviceID == "" {
		deviceID = creds.DeviceID
	}
	if deviceID == "" {
		return nil, fmt.Errorf("%w: device_id is required", core.ErrValidation)
	}

	snapshot := g.devices.Register(deviceID, payload.Name, payload.Location, payload.Firmware, payload.Environment)
	g.hub.Publish(*snapshot)

	g.auditEntry("", deviceID, "registered", payload.Name)
	g.logger.Infow("Device registered", "device_id", deviceID, "name", snapshot.Name)
	return snapshot, nil
}

func (g *Gateway) checkSchema(deviceID string, payload DetectionPayload) error {
	if deviceID == "" {
		return fmt.Errorf("%w: device_id is required", core.ErrValidation)
	}
	if strings.TrimSpace(payload.ClassName) == "" {
		return fmt.Errorf("%w: class_name is required", core.ErrValidation)
	}
	if err := g.validate.Struct(payload); err != nil {
		return fmt.Errorf("%w: %v", core.ErrValidation, err)
	}
	return nil
}

func (g *Gateway) speciesAllowed(species string) bool {
	if len(g.allowed) == 0 {
		return true
	}
	_, ok := g.allowed[strings.ToLower(species)]
	return ok
}

func (g *Gateway) auditEntry(eventID, deviceID, action, detail string) {
	g.audit.Append(storage.AuditEntry{
		At:       g.now().UTC(),
		EventID:  eventID,
		DeviceID: deviceID,
		Action:   action,
		Detail:   detail,
	})
}

// timeFromEpoch converts a device-reported epoch-seconds value, tolerating
// fractional seconds. Zero falls back to the given default.
func timeFromEpoch(epoch float64, fallback time.Time) time.Time {
	if epoch <= 0 {
		return fallback
	}
	sec := int64(epoch)
	nsec := int64((epoch - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec).UTC()
}
