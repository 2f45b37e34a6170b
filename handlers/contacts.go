package handlers

import (
	"encoding/json"
	"net/http"

	"bookwhisper/database"
	"bookwhisper/middleware"
)

type contactResponse struct {
	ParticipantID string `json:"participantId"`
	Online        bool   `json:"online"`
}

// GetContacts returns the caller's contact ledger with live presence flags.
// The ledger is derived bookkeeping: it lists whoever the caller has messaged
// plus whoever replied, and can always be rebuilt from the threads.
func (h *ChatHandler) GetContacts(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	owner := middleware.GetParticipantFromContext(r)
	if owner == "" {
		http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
		return
	}

	ids, err := database.GetContacts(owner)
	if err != nil {
		h.Log.WithError(err).Error("get contacts failed")
		http.Error(w, `{"error": "Failed to get contacts"}`, http.StatusInternalServerError)
		return
	}

	contacts := make([]contactResponse, 0, len(ids))
	for _, id := range ids {
		contacts = append(contacts, contactResponse{
			ParticipantID: id,
			Online:        h.Hub.IsOnline(id),
		})
	}

	json.NewEncoder(w).Encode(contacts)
}
