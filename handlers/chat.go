package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"bookwhisper/chat"
	"bookwhisper/database"
	"bookwhisper/identity"
	"bookwhisper/media"
	"bookwhisper/middleware"
	"bookwhisper/models"
)

type sendMessageRequest struct {
	Text string `json:"text"`
}

// ChatHandler serves the durable messaging endpoints.
type ChatHandler struct {
	Coordinator *chat.Coordinator
	Hub         *Hub
	Resolver    identity.Resolver
	Media       media.Store
	Log         *logrus.Logger
}

// ListThreads returns the caller's visible conversations, newest first, with
// live presence flags for the other side.
func (h *ChatHandler) ListThreads(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	participant := middleware.GetParticipantFromContext(r)
	if participant == "" {
		http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
		return
	}

	summaries, err := h.Coordinator.ListThreads(participant)
	if err != nil {
		h.Log.WithError(err).Error("list threads failed")
		http.Error(w, `{"error": "Failed to get threads"}`, http.StatusInternalServerError)
		return
	}

	for i := range summaries {
		summaries[i].Online = h.Hub.IsOnline(summaries[i].Contact)
	}

	if summaries == nil {
		summaries = []models.ThreadSummary{}
	}

	json.NewEncoder(w).Encode(summaries)
}

// LookupUser reports whether a participant ID resolves to a known user.
func (h *ChatHandler) LookupUser(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if middleware.GetParticipantFromContext(r) == "" {
		http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
		return
	}

	participantID := mux.Vars(r)["id"]
	exists, err := h.Resolver.Exists(participantID)
	if err != nil {
		h.Log.WithError(err).Error("existence probe failed")
		http.Error(w, `{"error": "Lookup failed"}`, http.StatusInternalServerError)
		return
	}
	if !exists {
		http.Error(w, `{"error": "User not found"}`, http.StatusNotFound)
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"participantId": participantID,
		"exists":        true,
	})
}

// SendMessage appends a text message to the thread with the recipient named
// in the URL, creating the thread on first contact.
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	sender := middleware.GetParticipantFromContext(r)
	if sender == "" {
		http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
		return
	}

	recipient := mux.Vars(r)["id"]
	if !h.recipientExists(w, recipient) {
		return
	}

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}
	if req.Text == "" {
		http.Error(w, `{"error": "Message text is required"}`, http.StatusBadRequest)
		return
	}

	thread, err := h.Coordinator.SendText(sender, recipient, req.Text)
	if err != nil {
		h.sendError(w, err)
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "Message sent",
		"thread":  thread,
	})
}

// SendImage accepts a multipart image upload, stores it, then appends an
// image message carrying the durable URL.
func (h *ChatHandler) SendImage(w http.ResponseWriter, r *http.Request) {
	h.sendMedia(w, r, models.KindImage, "image")
}

// SendVideo is SendImage for videos.
func (h *ChatHandler) SendVideo(w http.ResponseWriter, r *http.Request) {
	h.sendMedia(w, r, models.KindVideo, "video")
}

func (h *ChatHandler) sendMedia(w http.ResponseWriter, r *http.Request, kind models.MessageKind, field string) {
	w.Header().Set("Content-Type", "application/json")

	sender := middleware.GetParticipantFromContext(r)
	if sender == "" {
		http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
		return
	}

	recipient := mux.Vars(r)["id"]
	if !h.recipientExists(w, recipient) {
		return
	}

	file, header, err := r.FormFile(field)
	if err != nil {
		http.Error(w, `{"error": "No file provided"}`, http.StatusBadRequest)
		return
	}
	defer file.Close()

	// Storage failures abort here: no message may ever reference media that
	// was never stored.
	url, err := h.Media.Save(header.Filename, kind, header.Size, file)
	if err != nil {
		switch {
		case errors.Is(err, media.ErrFileTooLarge):
			http.Error(w, `{"error": "File too large"}`, http.StatusRequestEntityTooLarge)
		case errors.Is(err, media.ErrUnsupportedFormat):
			http.Error(w, `{"error": "Unsupported file format"}`, http.StatusBadRequest)
		default:
			h.Log.WithError(err).Error("media store failed")
			http.Error(w, `{"error": "Upload failed"}`, http.StatusInternalServerError)
		}
		return
	}

	thread, err := h.Coordinator.SendMedia(sender, recipient, header.Filename, url, kind)
	if err != nil {
		h.sendError(w, err)
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"message":  "Message sent",
		"thread":   thread,
		"mediaUrl": url,
	})
}

// ClearThread hides the thread for the caller; when the other side has
// already cleared it the thread is deleted for good.
func (h *ChatHandler) ClearThread(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	participant := middleware.GetParticipantFromContext(r)
	if participant == "" {
		http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
		return
	}

	threadID := mux.Vars(r)["id"]
	if err := h.Coordinator.ClearThread(participant, threadID); err != nil {
		if errors.Is(err, database.ErrThreadNotFound) {
			http.Error(w, `{"error": "Thread not found"}`, http.StatusNotFound)
			return
		}
		h.Log.WithError(err).Error("clear thread failed")
		http.Error(w, `{"error": "Failed to clear thread"}`, http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(map[string]string{"message": "Thread cleared"})
}

func (h *ChatHandler) recipientExists(w http.ResponseWriter, recipient string) bool {
	exists, err := h.Resolver.Exists(recipient)
	if err != nil {
		h.Log.WithError(err).Error("existence probe failed")
		http.Error(w, `{"error": "Lookup failed"}`, http.StatusInternalServerError)
		return false
	}
	if !exists {
		http.Error(w, `{"error": "User not found"}`, http.StatusNotFound)
		return false
	}
	return true
}

func (h *ChatHandler) sendError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chat.ErrSelfMessage):
		http.Error(w, `{"error": "You cannot message yourself"}`, http.StatusBadRequest)
	case errors.Is(err, database.ErrInvalidSender):
		h.Log.WithError(err).Error("append rejected")
		http.Error(w, `{"error": "Invalid sender"}`, http.StatusInternalServerError)
	default:
		h.Log.WithError(err).Error("send failed")
		http.Error(w, `{"error": "Failed to send message"}`, http.StatusInternalServerError)
	}
}
