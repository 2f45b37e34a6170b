package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"bookwhisper/identity"
	"bookwhisper/middleware"
	"bookwhisper/notify"
)

type noteRequest struct {
	RecipientID string `json:"recipientId"`
	NoteText    string `json:"noteText"`
}

// AddressFunc resolves a participant's out-of-band contact address. Owned by
// the account service; the note endpoint is its only consumer.
type AddressFunc func(participantID string) (string, error)

// NoteHandler sends anonymous one-off notes to a participant's contact
// address. Notes never touch the thread store.
type NoteHandler struct {
	Notifier notify.Notifier
	Resolver identity.Resolver
	Address  AddressFunc
	Log      *logrus.Logger
}

func (h *NoteHandler) SendNote(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	sender := middleware.GetParticipantFromContext(r)
	if sender == "" {
		http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var req noteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}
	if req.NoteText == "" {
		http.Error(w, `{"error": "Note text is required"}`, http.StatusBadRequest)
		return
	}

	exists, err := h.Resolver.Exists(req.RecipientID)
	if err != nil || !exists {
		http.Error(w, `{"error": "User not found"}`, http.StatusNotFound)
		return
	}

	address, err := h.Address(req.RecipientID)
	if err != nil {
		http.Error(w, `{"error": "User not found"}`, http.StatusNotFound)
		return
	}

	if err := h.Notifier.Notify(address, sender, req.NoteText); err != nil {
		h.Log.WithError(err).Error("note delivery failed")
		http.Error(w, `{"error": "Failed to send note"}`, http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(map[string]string{"message": "Note sent successfully"})
}
