package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookwhisper/chat"
	"bookwhisper/database"
	"bookwhisper/identity"
	"bookwhisper/media"
	"bookwhisper/middleware"
	"bookwhisper/models"
	"bookwhisper/notify"
)

type testServer struct {
	srv *httptest.Server
	hub *Hub
}

func setupServer(t *testing.T) *testServer {
	t.Helper()
	require.NoError(t, database.Initialize(filepath.Join(t.TempDir(), "test.db")))
	t.Cleanup(func() { database.Close() })

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	resolver := identity.Static{Tokens: map[string]string{
		"tok-a": "100001",
		"tok-b": "100002",
		"tok-c": "100003",
	}}

	hub := NewHub(log)
	go hub.Run()

	chatHandler := &ChatHandler{
		Coordinator: chat.NewCoordinator(hub, log),
		Hub:         hub,
		Resolver:    resolver,
		Media:       &media.DiskStore{Dir: t.TempDir(), URLPrefix: "/media"},
		Log:         log,
	}
	noteHandler := &NoteHandler{
		Notifier: &notify.LogNotifier{Log: log},
		Resolver: resolver,
		Address: func(participantID string) (string, error) {
			if participantID == "100002" {
				return "reader@example.com", nil
			}
			return "", fmt.Errorf("no address for %s", participantID)
		},
		Log: log,
	}

	router := mux.NewRouter()
	api := router.PathPrefix("/api").Subrouter()
	api.Use(middleware.Auth(resolver))
	api.HandleFunc("/chat", chatHandler.ListThreads).Methods("GET")
	api.HandleFunc("/chat/user/{id}", chatHandler.LookupUser).Methods("GET")
	api.HandleFunc("/chat/{id}", chatHandler.SendMessage).Methods("POST")
	api.HandleFunc("/chat/{id}/image", chatHandler.SendImage).Methods("POST")
	api.HandleFunc("/chat/{id}/video", chatHandler.SendVideo).Methods("POST")
	api.HandleFunc("/chat/{id}/clear", chatHandler.ClearThread).Methods("POST")
	api.HandleFunc("/contacts", chatHandler.GetContacts).Methods("GET")
	api.HandleFunc("/note", noteHandler.SendNote).Methods("POST")
	router.Handle("/ws", middleware.Auth(resolver)(HandleWebSocket(hub)))

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, hub: hub}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body interface{}) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := ts.srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (ts *testServer) listThreads(t *testing.T, token string) []models.ThreadSummary {
	t.Helper()
	resp := ts.do(t, "GET", "/api/chat", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var summaries []models.ThreadSummary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&summaries))
	return summaries
}

func (ts *testServer) dialWS(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) models.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var event models.Event
	require.NoError(t, json.Unmarshal(data, &event))
	return event
}

func TestRequiresAuth(t *testing.T) {
	ts := setupServer(t)

	resp := ts.do(t, "GET", "/api/chat", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = ts.do(t, "GET", "/api/chat", "bogus", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSendListClearFlow(t *testing.T) {
	ts := setupServer(t)

	resp := ts.do(t, "POST", "/api/chat/100002", "tok-a", map[string]string{"text": "hi"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var sent struct {
		Thread models.Thread `json:"thread"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sent))
	require.Len(t, sent.Thread.Messages, 1)

	// The recipient sees the thread with the sender as contact.
	theirs := ts.listThreads(t, "tok-b")
	require.Len(t, theirs, 1)
	assert.Equal(t, "100001", theirs[0].Contact)
	require.NotNil(t, theirs[0].LastMessage)
	assert.Equal(t, "hi", theirs[0].LastMessage.Text)

	// The recipient clears it: gone for them, untouched for the sender.
	resp = ts.do(t, "POST", "/api/chat/"+sent.Thread.ID+"/clear", "tok-b", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Empty(t, ts.listThreads(t, "tok-b"))
	mine := ts.listThreads(t, "tok-a")
	require.Len(t, mine, 1)
	assert.Len(t, mine[0].Messages, 1)
}

func TestSendToUnknownRecipient(t *testing.T) {
	ts := setupServer(t)

	resp := ts.do(t, "POST", "/api/chat/555555", "tok-a", map[string]string{"text": "hi"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSendEmptyMessage(t *testing.T) {
	ts := setupServer(t)

	resp := ts.do(t, "POST", "/api/chat/100002", "tok-a", map[string]string{"text": ""})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLookupUser(t *testing.T) {
	ts := setupServer(t)

	resp := ts.do(t, "GET", "/api/chat/user/100002", "tok-a", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.do(t, "GET", "/api/chat/user/555555", "tok-a", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func (ts *testServer) uploadFile(t *testing.T, path, token, field, fileName string, content []byte) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile(field, fileName)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req, err := http.NewRequest("POST", ts.srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	resp, err := ts.srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestSendImage(t *testing.T) {
	ts := setupServer(t)

	resp := ts.uploadFile(t, "/api/chat/100002/image", "tok-a", "image", "cat.png", []byte("not really a png"))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var sent struct {
		Thread   models.Thread `json:"thread"`
		MediaURL string        `json:"mediaUrl"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sent))
	assert.True(t, strings.HasPrefix(sent.MediaURL, "/media/images/"))

	require.Len(t, sent.Thread.Messages, 1)
	msg := sent.Thread.Messages[0]
	assert.Equal(t, models.KindImage, msg.Kind)
	assert.Equal(t, "cat.png", msg.Text)
	assert.Equal(t, sent.MediaURL, msg.MediaURL)
}

func TestSendImageRejectsBadFormat(t *testing.T) {
	ts := setupServer(t)

	resp := ts.uploadFile(t, "/api/chat/100002/image", "tok-a", "image", "cat.exe", []byte("mz"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// The rejected upload must not have produced a durable append.
	assert.Empty(t, ts.listThreads(t, "tok-a"))
}

func TestContacts(t *testing.T) {
	ts := setupServer(t)

	resp := ts.do(t, "POST", "/api/chat/100002", "tok-a", map[string]string{"text": "hi"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.do(t, "GET", "/api/contacts", "tok-a", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var contacts []contactResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&contacts))
	require.Len(t, contacts, 1)
	assert.Equal(t, "100002", contacts[0].ParticipantID)

	// No reply yet, so the recipient's ledger is still empty.
	resp = ts.do(t, "GET", "/api/contacts", "tok-b", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	contacts = nil
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&contacts))
	assert.Empty(t, contacts)
}

func TestSendNote(t *testing.T) {
	ts := setupServer(t)

	resp := ts.do(t, "POST", "/api/note", "tok-a", map[string]string{
		"recipientId": "100002",
		"noteText":    "loved your shelf",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.do(t, "POST", "/api/note", "tok-a", map[string]string{
		"recipientId": "100003", // known user, but no address on file
		"noteText":    "hello",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWebSocketDelivery(t *testing.T) {
	ts := setupServer(t)

	conn := ts.dialWS(t, "tok-b")
	require.Eventually(t, func() bool {
		return ts.hub.IsOnline("100002")
	}, time.Second, 5*time.Millisecond)

	resp := ts.do(t, "POST", "/api/chat/100002", "tok-a", map[string]string{"text": "hi"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	event := readEvent(t, conn)
	assert.Equal(t, models.EventReceiveMessage, event.Type)

	var msg models.Message
	require.NoError(t, json.Unmarshal(event.Payload, &msg))
	assert.Equal(t, "100001", msg.Sender)
	assert.Equal(t, "hi", msg.Text)
	assert.Equal(t, models.KindText, msg.Kind)
}

func TestWebSocketConnectUser(t *testing.T) {
	ts := setupServer(t)

	sender := ts.dialWS(t, "tok-a")
	recipient := ts.dialWS(t, "tok-b")
	require.Eventually(t, func() bool {
		return ts.hub.IsOnline("100001") && ts.hub.IsOnline("100002")
	}, time.Second, 5*time.Millisecond)

	payload, err := json.Marshal(models.ConnectUserPayload{RecipientID: "100002"})
	require.NoError(t, err)
	require.NoError(t, sender.WriteJSON(models.Event{
		Type:    models.EventConnectUser,
		Payload: payload,
	}))

	event := readEvent(t, recipient)
	assert.Equal(t, models.EventUserConnected, event.Type)

	var connected models.UserConnectedPayload
	require.NoError(t, json.Unmarshal(event.Payload, &connected))
	assert.Equal(t, "100001", connected.SenderID)
}

func TestWebSocketSendMessageEventIsDeliveryOnly(t *testing.T) {
	ts := setupServer(t)

	sender := ts.dialWS(t, "tok-a")
	recipient := ts.dialWS(t, "tok-b")
	require.Eventually(t, func() bool {
		return ts.hub.IsOnline("100001") && ts.hub.IsOnline("100002")
	}, time.Second, 5*time.Millisecond)

	payload, err := json.Marshal(models.SendPayload{RecipientID: "100002", Text: "psst"})
	require.NoError(t, err)
	require.NoError(t, sender.WriteJSON(models.Event{
		Type:    models.EventSendMessage,
		Payload: payload,
	}))

	event := readEvent(t, recipient)
	assert.Equal(t, models.EventReceiveMessage, event.Type)

	// The live path never appends: the durable store stays empty.
	assert.Empty(t, ts.listThreads(t, "tok-a"))
	assert.Empty(t, ts.listThreads(t, "tok-b"))
}

func TestWebSocketRejectsBadCredential(t *testing.T) {
	ts := setupServer(t)

	url := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws?token=bogus"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.False(t, ts.hub.IsOnline("100002"))
}
