package models

import "encoding/json"

// Event types crossing a live connection.
const (
	EventSendMessage    = "send_message"
	EventSendImage      = "send_image"
	EventSendVideo      = "send_video"
	EventConnectUser    = "connect_user"
	EventReceiveMessage = "receive_message"
	EventUserConnected  = "user_connected"
)

// Event is the envelope for everything sent over a live connection.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEvent wraps a payload in an event envelope.
func NewEvent(eventType string, payload interface{}) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: eventType, Payload: data}, nil
}

// SendPayload is the inbound shape for send_message, send_image and
// send_video events. These events trigger live fan-out only; the durable
// append happens on the HTTP send endpoints.
type SendPayload struct {
	RecipientID string `json:"recipientId"`
	Text        string `json:"text,omitempty"`
	MediaURL    string `json:"mediaUrl,omitempty"`
	FileName    string `json:"fileName,omitempty"`
}

// ConnectUserPayload announces that the sender opened a conversation with the
// recipient. No durable effect.
type ConnectUserPayload struct {
	RecipientID string `json:"recipientId"`
}

// UserConnectedPayload is the outbound counterpart of connect_user.
type UserConnectedPayload struct {
	SenderID string `json:"senderId"`
}
