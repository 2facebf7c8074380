package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"trailguard/storage"
)

// getDetections handles GET /api/detections.
func (a *API) getDetections(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, 100)
	detections := a.detections.Recent(limit)
	writeJSON(w, http.StatusOK, map[string]any{
		"detections": detections,
		"count":      len(detections),
	})
}

// getDetection handles GET /api/detections/{event_id}.
func (a *API) getDetection(w http.ResponseWriter, r *http.Request) {
	eventID := mux.Vars(r)["event_id"]
	detection, err := a.detections.Get(eventID)
	if err != nil {
		if errors.Is(err, storage.ErrDetectionNotFound) {
			writeError(w, http.StatusNotFound, "Detection not found", err, a.logger)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to load detection", err, a.logger)
		return
	}
	writeJSON(w, http.StatusOK, detection)
}

// getAck handles GET /api/detections/{event_id}/ack. Devices use this to
// re-fetch a lost receipt without resubmitting.
func (a *API) getAck(w http.ResponseWriter, r *http.Request) {
	eventID := mux.Vars(r)["event_id"]
	ack, err := a.acks.Get(eventID)
	if err != nil {
		writeError(w, http.StatusNotFound, "Acknowledgment not found", err, a.logger)
		return
	}
	writeJSON(w, http.StatusOK, ack)
}

// getDevices handles GET /api/devices. Status is derived against the
// staleness threshold at read time.
func (a *API) getDevices(w http.ResponseWriter, r *http.Request) {
	devices := a.devices.List(time.Now(), a.config.Devices.StaleAfter)
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// getDevice handles GET /api/devices/{id}.
func (a *API) getDevice(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	device, err := a.devices.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "Device not found", err, a.logger)
		return
	}
	device.Status = device.EffectiveStatus(time.Now(), a.config.Devices.StaleAfter)
	writeJSON(w, http.StatusOK, device)
}

// getDeviceTelemetry handles GET /api/devices/{id}/telemetry.
func (a *API) getDeviceTelemetry(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	samples := a.hub.Telemetry(id, queryLimit(r, 0))
	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": id,
		"samples":   samples,
		"count":     len(samples),
	})
}

// getAuditLog handles GET /api/audit.
func (a *API) getAuditLog(w http.ResponseWriter, r *http.Request) {
	entries := a.audit.Recent(queryLimit(r, 100))
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

// healthCheck handles GET /health.
func (a *API) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(a.started).Seconds()),
		"subscribers":    a.hub.SubscriberCount(),
		"devices":        len(a.devices.List(time.Now(), a.config.Devices.StaleAfter)),
		"breakers":       a.alerts.BreakerStates(),
	})
}
