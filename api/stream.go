package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"trailguard/metrics"
)

// streamEvent writes one SSE frame. Payloads are single-line JSON so the
// multi-line data framing rules never come into play.
func streamEvent(w http.ResponseWriter, flusher http.Flusher, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

// streamDevices handles GET /api/stream: a server-sent-events feed of live
// device state. The client gets a connected event, a full device snapshot,
// then incremental device_update events as the hub publishes them, with
// periodic heartbeat frames so proxies keep the connection alive.
func (a *API) streamDevices(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Streaming not supported", nil, a.logger)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	updates, cancel := a.hub.Subscribe()
	defer cancel()

	metrics.StreamSubscribers.Inc()
	defer metrics.StreamSubscribers.Dec()

	if err := streamEvent(w, flusher, "connected", map[string]any{
		"server_time": time.Now().UTC(),
	}); err != nil {
		return
	}

	devices := a.devices.List(time.Now(), a.config.Devices.StaleAfter)
	if err := streamEvent(w, flusher, "devices", map[string]any{
		"devices": devices,
		"count":   len(devices),
	}); err != nil {
		return
	}

	heartbeat := time.NewTicker(a.config.Stream.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-a.stopCh:
			return
		case device, ok := <-updates:
			if !ok {
				return
			}
			if err := streamEvent(w, flusher, "device_update", device); err != nil {
				return
			}
		case <-heartbeat.C:
			if err := streamEvent(w, flusher, "heartbeat", map[string]any{
				"server_time": time.Now().UTC(),
			}); err != nil {
				return
			}
		}
	}
}
