package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"trailguard/core"
	"trailguard/storage"
)

// getRecipients handles GET /api/recipients.
func (a *API) getRecipients(w http.ResponseWriter, r *http.Request) {
	recipients := a.recipients.List()
	writeJSON(w, http.StatusOK, map[string]any{
		"recipients": recipients,
		"count":      len(recipients),
	})
}

// createRecipient handles POST /api/recipients. Validation lives in the
// dispatch engine, not the store.
func (a *API) createRecipient(w http.ResponseWriter, r *http.Request) {
	var recipient core.Recipient
	if err := json.NewDecoder(r.Body).Decode(&recipient); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body", err, a.logger)
		return
	}

	if problems := a.alerts.ValidateRecipient(&recipient); len(problems) > 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"errors": problems})
		return
	}

	created := a.recipients.Add(recipient)
	a.logger.Infow("Recipient created", "recipient_id", created.ID, "name", created.Name)
	writeJSON(w, http.StatusCreated, created)
}

// updateRecipient handles PUT /api/recipients/{id} with merge semantics.
func (a *API) updateRecipient(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var update core.RecipientUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body", err, a.logger)
		return
	}

	current, err := a.recipients.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "Recipient not found", err, a.logger)
		return
	}

	merged := *current
	if update.Name != nil {
		merged.Name = *update.Name
	}
	if update.Phone != nil {
		merged.Phone = *update.Phone
	}
	if update.Email != nil {
		merged.Email = *update.Email
	}
	if update.Channels != nil {
		merged.Channels = *update.Channels
	}
	if problems := a.alerts.ValidateRecipient(&merged); len(problems) > 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"errors": problems})
		return
	}

	updated, err := a.recipients.Update(id, update)
	if err != nil {
		writeError(w, http.StatusNotFound, "Recipient not found", err, a.logger)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// deleteRecipient handles DELETE /api/recipients/{id}.
func (a *API) deleteRecipient(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := a.recipients.Delete(id); err != nil {
		if errors.Is(err, storage.ErrRecipientNotFound) {
			writeError(w, http.StatusNotFound, "Recipient not found", err, a.logger)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete recipient", err, a.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
