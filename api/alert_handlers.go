package api

import (
	"encoding/json"
	"net/http"

	"trailguard/core"
)

// dispatchRequest is the POST /api/alerts/dispatch body.
type dispatchRequest struct {
	DetectionIDs  []string       `json:"detection_ids"`
	RecipientIDs  []string       `json:"recipient_ids"`
	Channels      []core.Channel `json:"channels"`
	CustomMessage string         `json:"custom_message,omitempty"`
}

// dispatchAlerts handles POST /api/alerts/dispatch.
func (a *API) dispatchAlerts(w http.ResponseWriter, r *http.Request) {
	var req dispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body", err, a.logger)
		return
	}

	if len(req.DetectionIDs) == 0 || len(req.RecipientIDs) == 0 || len(req.Channels) == 0 {
		writeError(w, http.StatusBadRequest,
			"detection_ids, recipient_ids and channels must all be non-empty", nil, a.logger)
		return
	}
	for _, channel := range req.Channels {
		if !channel.IsValid() {
			writeError(w, http.StatusBadRequest, "Unknown channel: "+string(channel), nil, a.logger)
			return
		}
	}

	result, err := a.alerts.DispatchBulk(r.Context(),
		req.DetectionIDs, req.RecipientIDs, req.Channels, req.CustomMessage, nil)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Dispatch failed", err, a.logger)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// getAlertHistory handles GET /api/alerts/history.
func (a *API) getAlertHistory(w http.ResponseWriter, r *http.Request) {
	recipientID := r.URL.Query().Get("recipient_id")
	messages, err := a.alerts.History(recipientID, queryLimit(r, 100))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load alert history", err, a.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"messages": messages,
		"count":    len(messages),
	})
}

// getAlertStats handles GET /api/alerts/stats.
func (a *API) getAlertStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.alerts.Stats()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute alert stats", err, a.logger)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
