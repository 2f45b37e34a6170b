package handlers

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"bookwhisper/metrics"
	"bookwhisper/middleware"
	"bookwhisper/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

// Client represents one live connection of a participant. A participant may
// hold several at once (tabs, devices); all of them receive fan-out.
type Client struct {
	Conn          *websocket.Conn
	Send          chan []byte
	ParticipantID string
}

// Hub maintains the presence table: which participants are reachable over
// which live connections. Registration, unregistration and fan-out are
// serialized through the run loop; presence reads take the lock directly.
type Hub struct {
	clients    map[string]map[*Client]bool // participant ID -> connection set
	register   chan *Client
	unregister chan *Client
	broadcast  chan deliverPayload
	mutex      sync.RWMutex
	log        *logrus.Logger
}

type deliverPayload struct {
	ParticipantID string
	Data          []byte
}

func NewHub(log *logrus.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan deliverPayload, 256),
		log:        log,
	}
}

// Run processes hub events until the process exits.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			set, ok := h.clients[client.ParticipantID]
			if !ok {
				set = make(map[*Client]bool)
				h.clients[client.ParticipantID] = set
			}
			set[client] = true
			h.mutex.Unlock()
			metrics.LiveConnections.Inc()
			h.log.WithField("participant", client.ParticipantID).Info("client connected")

		case client := <-h.unregister:
			h.mutex.Lock()
			if set, ok := h.clients[client.ParticipantID]; ok && set[client] {
				delete(set, client)
				if len(set) == 0 {
					delete(h.clients, client.ParticipantID)
				}
				close(client.Send)
				metrics.LiveConnections.Dec()
				h.log.WithField("participant", client.ParticipantID).Info("client disconnected")
			}
			h.mutex.Unlock()

		case payload := <-h.broadcast:
			h.mutex.RLock()
			set := h.clients[payload.ParticipantID]
			pushed := false
			for client := range set {
				select {
				case client.Send <- payload.Data:
					pushed = true
				default:
					// Slow consumer; drop rather than block the hub.
				}
			}
			h.mutex.RUnlock()
			if pushed {
				metrics.DeliveriesPushed.Inc()
			} else {
				metrics.DeliveriesDropped.Inc()
			}
		}
	}
}

// IsOnline reports whether a participant has at least one live connection.
func (h *Hub) IsOnline(participantID string) bool {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients[participantID]) > 0
}

// Deliver pushes an event to every connection the recipient currently has.
// If there are none the event is silently dropped; the durable log remains
// the system of record. Never blocks.
func (h *Hub) Deliver(participantID string, event models.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.log.WithError(err).Error("marshal event")
		return
	}

	select {
	case h.broadcast <- deliverPayload{ParticipantID: participantID, Data: data}:
	default:
		metrics.DeliveriesDropped.Inc()
	}
}

// HandleWebSocket upgrades an authenticated request to a live connection and
// registers it. The credential was already verified by the auth middleware;
// a request that failed verification never reaches the presence table.
func HandleWebSocket(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		participantID := middleware.GetParticipantFromContext(r)
		if participantID == "" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			hub.log.WithError(err).Error("websocket upgrade failed")
			return
		}

		client := &Client{
			Conn:          conn,
			Send:          make(chan []byte, 256),
			ParticipantID: participantID,
		}

		hub.register <- client

		go client.writePump()
		go client.readPump(hub)
	}
}

func (c *Client) readPump(hub *Hub) {
	defer func() {
		hub.unregister <- c
		c.Conn.Close()
	}()

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				hub.log.WithError(err).WithField("participant", c.ParticipantID).Warn("websocket read failed")
			}
			break
		}

		var event models.Event
		if err := json.Unmarshal(data, &event); err != nil {
			continue
		}

		switch event.Type {
		case models.EventSendMessage, models.EventSendImage, models.EventSendVideo:
			// Live path only: the durable append happens through the HTTP
			// send endpoints, never here.
			var p models.SendPayload
			if err := json.Unmarshal(event.Payload, &p); err != nil || p.RecipientID == "" {
				continue
			}
			hub.relayMessage(c.ParticipantID, event.Type, p)

		case models.EventConnectUser:
			var p models.ConnectUserPayload
			if err := json.Unmarshal(event.Payload, &p); err != nil || p.RecipientID == "" {
				continue
			}
			out, err := models.NewEvent(models.EventUserConnected, models.UserConnectedPayload{
				SenderID: c.ParticipantID,
			})
			if err != nil {
				continue
			}
			hub.Deliver(p.RecipientID, out)
		}
	}
}

func (c *Client) writePump() {
	defer c.Conn.Close()

	for data := range c.Send {
		if err := c.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

// relayMessage fans a composed message out to the recipient's connections.
func (h *Hub) relayMessage(senderID, eventType string, p models.SendPayload) {
	msg := models.Message{
		Sender: senderID,
		Kind:   models.KindText,
		Text:   p.Text,
		Time:   time.Now().UTC(),
	}
	switch eventType {
	case models.EventSendImage:
		msg.Kind = models.KindImage
		msg.Text = p.FileName
		msg.MediaURL = p.MediaURL
	case models.EventSendVideo:
		msg.Kind = models.KindVideo
		msg.Text = p.FileName
		msg.MediaURL = p.MediaURL
	}

	out, err := models.NewEvent(models.EventReceiveMessage, msg)
	if err != nil {
		h.log.WithError(err).Error("encode receive_message event")
		return
	}
	h.Deliver(p.RecipientID, out)
}
