package intake

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"trailguard/core"
	"trailguard/hub"
	"trailguard/storage"
)

const testAPIKey = "test-api-key"

type gatewayFixture struct {
	gateway    *Gateway
	dedup      *storage.MemoryDedupWindow
	detections *storage.DetectionStore
	acks       *storage.AckStore
	devices    *storage.DeviceStore
	audit      *storage.AuditLog
	hub        *hub.Hub
	now        time.Time
}

func newGatewayFixture(t *testing.T, config Config) *gatewayFixture {
	t.Helper()
	if config.APIKey == "" {
		config.APIKey = testAPIKey
	}
	if config.TimestampSkew == 0 {
		config.TimestampSkew = 300 * time.Second
	}
	if config.AllowedSpecies == nil {
		config.AllowedSpecies = []string{"tiger", "leopard", "elephant"}
	}

	acks, err := storage.NewAckStore(128)
	require.NoError(t, err)

	f := &gatewayFixture{
		dedup:      storage.NewMemoryDedupWindow(5 * time.Minute),
		detections: storage.NewDetectionStore(100),
		acks:       acks,
		devices:    storage.NewDeviceStore(),
		audit:      storage.NewAuditLog(100),
		hub:        hub.NewHub(16, zap.NewNop().Sugar()),
		now:        time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC),
	}
	f.gateway = NewGateway(config, f.dedup, f.detections, f.acks, f.devices, f.audit, f.hub, zap.NewNop().Sugar())
	f.gateway.now = func() time.Time { return f.now }
	return f
}

func validCreds(deviceID string) Credentials {
	return Credentials{APIKey: testAPIKey, DeviceID: deviceID}
}

func validPayload() DetectionPayload {
	return DetectionPayload{
		EventID:     "evt-1",
		DetectionID: 7,
		DeviceID:    "cam-01",
		CameraID:    "cam0",
		ClassName:   "Tiger",
		Confidence:  0.92,
		BBox:        []float64{0.1, 0.2, 0.4, 0.5},
	}
}

func TestSubmit_Accepts(t *testing.T) {
	f := newGatewayFixture(t, Config{})
	updates, cancel := f.hub.Subscribe()
	defer cancel()

	result, err := f.gateway.Submit(context.Background(), validCreds("cam-01"), validPayload())
	require.NoError(t, err)

	assert.Equal(t, "evt-1", result.EventID)
	assert.True(t, len(result.AckID) > 4 && result.AckID[:4] == "ack_")
	assert.False(t, result.Duplicate)
	assert.Equal(t, core.AckStatusProcessed, result.Status)
	assert.Equal(t, f.now, result.ReceivedAt)

	d, err := f.detections.Get("evt-1")
	require.NoError(t, err)
	assert.Equal(t, "Tiger", d.Species)
	assert.Equal(t, result.AckID, d.Metadata.AckID)

	ack, err := f.acks.Get("evt-1")
	require.NoError(t, err)
	assert.Equal(t, result.AckID, ack.AckID)

	device, err := f.devices.Get("cam-01")
	require.NoError(t, err)
	assert.Equal(t, int64(1), device.DetectionCount)
	assert.Equal(t, core.DeviceStatusOnline, device.Status)

	entries := f.audit.Recent(0)
	require.Len(t, entries, 1)
	assert.Equal(t, "accepted", entries[0].Action)

	select {
	case snapshot := <-updates:
		assert.Equal(t, "cam-01", snapshot.ID)
	default:
		t.Fatal("expected device update on the hub")
	}
}

func TestSubmit_DuplicateReturnsOriginalAck(t *testing.T) {
	f := newGatewayFixture(t, Config{})

	first, err := f.gateway.Submit(context.Background(), validCreds("cam-01"), validPayload())
	require.NoError(t, err)

	second, err := f.gateway.Submit(context.Background(), validCreds("cam-01"), validPayload())
	require.NoError(t, err)

	assert.True(t, second.Duplicate)
	assert.Equal(t, first.AckID, second.AckID)
	assert.Equal(t, first.ReceivedAt, second.ReceivedAt)

	// No reprocessing: single detection, single audit entry, counter at 1.
	assert.Equal(t, 1, f.detections.Len())
	assert.Len(t, f.audit.Recent(0), 1)
	device, err := f.devices.Get("cam-01")
	require.NoError(t, err)
	assert.Equal(t, int64(1), device.DetectionCount)
}

func TestSubmit_SimultaneousDuplicatesPersistOnce(t *testing.T) {
	f := newGatewayFixture(t, Config{})

	const submitters = 8
	results := make([]Result, submitters)
	errs := make([]error, submitters)

	var wg sync.WaitGroup
	for i := 0; i < submitters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.gateway.Submit(context.Background(), validCreds("cam-01"), validPayload())
		}(i)
	}
	wg.Wait()

	// Exactly one submission claims the event id; every other one gets the
	// winner's receipt, however the goroutines interleave.
	accepted := 0
	for i := 0; i < submitters; i++ {
		require.NoError(t, errs[i])
		if !results[i].Duplicate {
			accepted++
		}
		assert.Equal(t, results[0].AckID, results[i].AckID)
	}
	assert.Equal(t, 1, accepted)

	assert.Equal(t, 1, f.detections.Len())
	assert.Len(t, f.audit.Recent(0), 1)
	device, err := f.devices.Get("cam-01")
	require.NoError(t, err)
	assert.Equal(t, int64(1), device.DetectionCount)
}

func TestSubmit_DedupWindowExpiry(t *testing.T) {
	f := newGatewayFixture(t, Config{})
	f.gateway.dedup = storage.NewMemoryDedupWindow(10 * time.Millisecond)

	_, err := f.gateway.Submit(context.Background(), validCreds("cam-01"), validPayload())
	require.NoError(t, err)

	// Once the entry ages out of the window the same id processes fresh.
	time.Sleep(25 * time.Millisecond)
	result, err := f.gateway.Submit(context.Background(), validCreds("cam-01"), validPayload())
	require.NoError(t, err)
	assert.False(t, result.Duplicate)
}

func TestSubmit_AuthFailures(t *testing.T) {
	f := newGatewayFixture(t, Config{})
	ctx := context.Background()

	_, err := f.gateway.Submit(ctx, Credentials{APIKey: "wrong", DeviceID: "cam-01"}, validPayload())
	assert.ErrorIs(t, err, core.ErrAuthFailed)

	_, err = f.gateway.Submit(ctx, Credentials{APIKey: testAPIKey}, validPayload())
	assert.ErrorIs(t, err, core.ErrAuthFailed)

	stale := validCreds("cam-01")
	stale.Timestamp = strconv.FormatInt(f.now.Add(-10*time.Minute).Unix(), 10)
	_, err = f.gateway.Submit(ctx, stale, validPayload())
	assert.ErrorIs(t, err, core.ErrStaleTimestamp)

	fresh := validCreds("cam-01")
	fresh.Timestamp = strconv.FormatInt(f.now.Add(-time.Minute).Unix(), 10)
	_, err = f.gateway.Submit(ctx, fresh, validPayload())
	assert.NoError(t, err)
}

func TestSubmit_SignatureVerification(t *testing.T) {
	f := newGatewayFixture(t, Config{
		DeviceSecrets: map[string]string{"cam-01": "device-secret"},
	})
	ctx := context.Background()
	body := []byte(`{"event_id":"evt-1"}`)
	ts := strconv.FormatInt(f.now.Unix(), 10)

	// Signature required once a secret is configured.
	creds := validCreds("cam-01")
	creds.Body = body
	_, err := f.gateway.Submit(ctx, creds, validPayload())
	assert.ErrorIs(t, err, core.ErrAuthFailed)

	creds.Timestamp = ts
	creds.Signature = "deadbeef"
	_, err = f.gateway.Submit(ctx, creds, validPayload())
	assert.ErrorIs(t, err, core.ErrAuthFailed)

	mac := hmac.New(sha256.New, []byte("device-secret"))
	fmt.Fprintf(mac, "%s.%s", ts, body)
	creds.Signature = hex.EncodeToString(mac.Sum(nil))
	_, err = f.gateway.Submit(ctx, creds, validPayload())
	assert.NoError(t, err)

	// Devices without a configured secret skip verification.
	other := validCreds("cam-02")
	payload := validPayload()
	payload.EventID = "evt-2"
	payload.DeviceID = "cam-02"
	_, err = f.gateway.Submit(ctx, other, payload)
	assert.NoError(t, err)
}

func TestSubmit_SchemaValidation(t *testing.T) {
	f := newGatewayFixture(t, Config{})
	ctx := context.Background()

	missingSpecies := validPayload()
	missingSpecies.ClassName = ""
	_, err := f.gateway.Submit(ctx, validCreds("cam-01"), missingSpecies)
	assert.ErrorIs(t, err, core.ErrValidation)

	badConfidence := validPayload()
	badConfidence.Confidence = 1.5
	_, err = f.gateway.Submit(ctx, validCreds("cam-01"), badConfidence)
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestSubmit_SpeciesFilter(t *testing.T) {
	f := newGatewayFixture(t, Config{})
	ctx := context.Background()

	rejected := validPayload()
	rejected.ClassName = "housecat"
	_, err := f.gateway.Submit(ctx, validCreds("cam-01"), rejected)
	assert.ErrorIs(t, err, core.ErrSpeciesNotAllowed)

	entries := f.audit.Recent(0)
	require.Len(t, entries, 1)
	assert.Equal(t, "rejected", entries[0].Action)

	// Matching is case-insensitive on both sides.
	upper := validPayload()
	upper.ClassName = "LEOPARD"
	_, err = f.gateway.Submit(ctx, validCreds("cam-01"), upper)
	assert.NoError(t, err)
}

func TestSubmit_ChecksumVerification(t *testing.T) {
	f := newGatewayFixture(t, Config{})
	ctx := context.Background()

	payload := validPayload()
	payload.Timestamp = float64(f.now.Add(-2 * time.Second).Unix())

	tampered := payload
	tampered.Checksum = "0000000000000000"
	_, err := f.gateway.Submit(ctx, validCreds("cam-01"), tampered)
	assert.ErrorIs(t, err, core.ErrChecksumMismatch)

	payload.Checksum = core.ContentChecksum(
		payload.EventID, payload.DeviceID, payload.ClassName,
		payload.Confidence, time.Unix(int64(payload.Timestamp), 0))
	result, err := f.gateway.Submit(ctx, validCreds("cam-01"), payload)
	require.NoError(t, err)
	assert.False(t, result.Duplicate)

	ack, err := f.acks.Get(payload.EventID)
	require.NoError(t, err)
	assert.Equal(t, payload.Checksum, ack.Checksum)
}

func TestSubmit_SynthesizesEventID(t *testing.T) {
	f := newGatewayFixture(t, Config{})

	payload := validPayload()
	payload.EventID = ""
	result, err := f.gateway.Submit(context.Background(), validCreds("cam-01"), payload)
	require.NoError(t, err)

	expected := fmt.Sprintf("det_cam-01_%d_7", f.now.UnixMilli())
	assert.Equal(t, expected, result.EventID)
}

func TestSubmitBatch(t *testing.T) {
	f := newGatewayFixture(t, Config{})

	good := validPayload()
	dup := validPayload()
	bad := validPayload()
	bad.EventID = "evt-3"
	bad.ClassName = "housecat"

	result, err := f.gateway.SubmitBatch(context.Background(), validCreds("cam-01"),
		[]DetectionPayload{good, dup, bad})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Accepted)
	assert.Equal(t, 1, result.Duplicates)
	assert.Equal(t, 1, result.Rejected)
	require.Len(t, result.Items, 3)
	assert.True(t, result.Items[1].Duplicate)
	assert.Equal(t, result.Items[0].AckID, result.Items[1].AckID)
	assert.Contains(t, result.Items[2].Error, "not in allow-list")
}

func TestHeartbeat(t *testing.T) {
	f := newGatewayFixture(t, Config{})
	updates, cancel := f.hub.Subscribe()
	defer cancel()

	battery := 81.5
	payload := HeartbeatPayload{
		DeviceID:  "cam-01",
		Timestamp: float64(f.now.Unix()),
		Status:    "online",
	}
	payload.Stats.System.CPUPercent = 37.5
	payload.Stats.System.TemperatureC = 51.0
	payload.Stats.Power.Source = "battery"
	payload.Stats.Power.BatteryPercent = &battery
	payload.Stats.UptimeSeconds = 3600
	payload.Stats.Cameras = []core.Camera{{ID: "cam0", Status: "active"}}

	snapshot, err := f.gateway.Heartbeat(context.Background(), validCreds("cam-01"), payload)
	require.NoError(t, err)

	assert.Equal(t, core.DeviceStatusOnline, snapshot.Status)
	assert.Equal(t, 37.5, snapshot.Stats.CPUPercent)
	assert.Equal(t, &battery, snapshot.Stats.BatteryPercent)
	require.Len(t, snapshot.Cameras, 1)

	select {
	case d := <-updates:
		assert.Equal(t, "cam-01", d.ID)
	default:
		t.Fatal("expected device update on the hub")
	}

	// The heartbeat also feeds the telemetry ring.
	samples := f.hub.Telemetry("cam-01", 0)
	require.Len(t, samples, 1)
	assert.Equal(t, 37.5, samples[0].CPUPercent)
}

func TestRegister(t *testing.T) {
	f := newGatewayFixture(t, Config{})

	snapshot, err := f.gateway.Register(context.Background(), validCreds("cam-01"), RegisterPayload{
		DeviceID: "cam-01",
		Name:     "North Ridge",
		Location: &core.GeoLocation{Name: "Sector 4", Latitude: 27.5, Longitude: 88.4},
		Firmware: "2.4.1",
	})
	require.NoError(t, err)

	assert.Equal(t, "North Ridge", snapshot.Name)
	assert.Equal(t, "2.4.1", snapshot.Firmware)
	require.NotNil(t, snapshot.Location)

	entries := f.audit.Recent(0)
	require.Len(t, entries, 1)
	assert.Equal(t, "registered", entries[0].Action)
}
