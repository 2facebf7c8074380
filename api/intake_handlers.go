package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"trailguard/core"
	"trailguard/intake"
)

// maxBodySize bounds detection uploads; embedded images make these large.
const maxBodySize = 8 << 20

func credentialsFromRequest(r *http.Request, body []byte) intake.Credentials {
	return intake.Credentials{
		APIKey:    r.Header.Get("X-API-Key"),
		DeviceID:  r.Header.Get("X-Device-ID"),
		Timestamp: r.Header.Get("X-Timestamp"),
		Signature: r.Header.Get("X-Signature"),
		Body:      body,
	}
}

// intakeStatus maps a pipeline rejection to its HTTP status. Species policy
// rejections are 422: the payload is well-formed but not wanted.
func intakeStatus(err error) int {
	switch {
	case errors.Is(err, core.ErrAuthFailed), errors.Is(err, core.ErrStaleTimestamp):
		return http.StatusUnauthorized
	case errors.Is(err, core.ErrValidation), errors.Is(err, core.ErrChecksumMismatch):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrSpeciesNotAllowed):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "Request body too large", err, a.logger)
		return nil, false
	}
	return body, true
}

// submitDetection handles POST /api/detections.
func (a *API) submitDetection(w http.ResponseWriter, r *http.Request) {
	body, ok := a.readBody(w, r)
	if !ok {
		return
	}

	var payload intake.DetectionPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body", err, a.logger)
		return
	}

	result, err := a.gateway.Submit(r.Context(), credentialsFromRequest(r, body), payload)
	if err != nil {
		writeError(w, intakeStatus(err), err.Error(), err, a.logger)
		return
	}

	// Auto alerts run detached from the request: the device got its ack,
	// and duplicates must never notify twice.
	if !result.Duplicate {
		a.triggerAutoAlerts(result.EventID)
	}

	writeJSON(w, http.StatusOK, result)
}

// submitBatch handles POST /api/detections/batch.
func (a *API) submitBatch(w http.ResponseWriter, r *http.Request) {
	body, ok := a.readBody(w, r)
	if !ok {
		return
	}

	var payload struct {
		Detections []intake.DetectionPayload `json:"detections"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body", err, a.logger)
		return
	}

	result, err := a.gateway.SubmitBatch(r.Context(), credentialsFromRequest(r, body), payload.Detections)
	if err != nil {
		writeError(w, intakeStatus(err), err.Error(), err, a.logger)
		return
	}

	for _, item := range result.Items {
		if item.Error == "" && !item.Duplicate {
			a.triggerAutoAlerts(item.EventID)
		}
	}

	writeJSON(w, http.StatusOK, result)
}

func (a *API) triggerAutoAlerts(eventID string) {
	detection, err := a.detections.Get(eventID)
	if err != nil {
		a.logger.Errorw("Accepted detection missing before auto-alert", "event_id", eventID)
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if _, err := a.alerts.DispatchAuto(ctx, detection); err != nil {
			a.logger.Errorw("Auto-alert dispatch failed",
				"event_id", eventID, "error", err)
		}
	}()
}

// heartbeat handles POST /api/heartbeat.
func (a *API) heartbeat(w http.ResponseWriter, r *http.Request) {
	body, ok := a.readBody(w, r)
	if !ok {
		return
	}

	var payload intake.HeartbeatPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body", err, a.logger)
		return
	}

	snapshot, err := a.gateway.Heartbeat(r.Context(), credentialsFromRequest(r, body), payload)
	if err != nil {
		writeError(w, intakeStatus(err), err.Error(), err, a.logger)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// registerDevice handles POST /api/devices/register.
func (a *API) registerDevice(w http.ResponseWriter, r *http.Request) {
	body, ok := a.readBody(w, r)
	if !ok {
		return
	}

	var payload intake.RegisterPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body", err, a.logger)
		return
	}

	snapshot, err := a.gateway.Register(r.Context(), credentialsFromRequest(r, body), payload)
	if err != nil {
		writeError(w, intakeStatus(err), err.Error(), err, a.logger)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}
