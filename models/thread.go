package models

import "time"

// MessageKind discriminates the message payload variant.
type MessageKind string

const (
	KindText  MessageKind = "text"
	KindImage MessageKind = "image"
	KindVideo MessageKind = "video"
)

// IsMedia reports whether the kind carries a stored file.
func (k MessageKind) IsMedia() bool {
	return k == KindImage || k == KindVideo
}

// Valid reports whether k is a known kind.
func (k MessageKind) Valid() bool {
	return k == KindText || k.IsMedia()
}

// Message is an immutable entry in a thread's log. For text messages Text is
// the body; for image and video messages Text holds the original filename and
// MediaURL points at the stored file.
type Message struct {
	Sender   string      `json:"sender"`
	Text     string      `json:"text"`
	MediaURL string      `json:"mediaUrl,omitempty"`
	Kind     MessageKind `json:"kind"`
	Time     time.Time   `json:"time"`
}

// Thread is the single conversation record for an unordered pair of
// participants. Messages are append-only; ordering is log position.
type Thread struct {
	ID           string    `json:"id"`
	Participants [2]string `json:"participants"`
	Messages     []Message `json:"messages"`
	LastUpdated  time.Time `json:"lastUpdated"`
	HiddenFor    []string  `json:"hiddenFor"`
}

// Other returns the participant on the far side of the thread from p.
func (t *Thread) Other(p string) string {
	if t.Participants[0] == p {
		return t.Participants[1]
	}
	return t.Participants[0]
}

// HasParticipant reports whether p is one of the two participants.
func (t *Thread) HasParticipant(p string) bool {
	return t.Participants[0] == p || t.Participants[1] == p
}

// HiddenForParticipant reports whether p has cleared the thread from their
// own view.
func (t *Thread) HiddenForParticipant(p string) bool {
	for _, h := range t.HiddenFor {
		if h == p {
			return true
		}
	}
	return false
}

// ThreadSummary is the conversation-list view of a thread for one
// participant.
type ThreadSummary struct {
	ID          string    `json:"id"`
	Contact     string    `json:"contact"`
	Messages    []Message `json:"messages"`
	LastMessage *Message  `json:"lastMessage,omitempty"`
	LastUpdated time.Time `json:"lastUpdated"`
	Online      bool      `json:"online"`
}
