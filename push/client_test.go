package push_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"drudge/models"
	"drudge/push"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	kinds  []models.EventKind
	bodies []string
}

func (r *recordingSink) ReplaceAll(kind models.EventKind, raw json.RawMessage) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, kind)
	r.bodies = append(r.bodies, string(raw))
	return true
}

func (r *recordingSink) received() []models.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.EventKind(nil), r.kinds...)
}

var upgrader = websocket.Upgrader{}

func TestSocketURL(t *testing.T) {
	tests := []struct {
		endpoint string
		expected string
		wantErr  bool
	}{
		{endpoint: "https://push.example.com", expected: "wss://push.example.com/socket.io/?EIO=4&transport=websocket"},
		{endpoint: "http://localhost:3000/", expected: "ws://localhost:3000/socket.io/?EIO=4&transport=websocket"},
		{endpoint: "wss://push.example.com/custom/", expected: "wss://push.example.com/custom/?EIO=4&transport=websocket"},
		{endpoint: "ftp://push.example.com", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.endpoint, func(t *testing.T) {
			got, err := push.SocketURL(tt.endpoint)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestSubscribeDeliversEventsInOrder(t *testing.T) {
	pong := make(chan string, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/socket.io/", r.URL.Path)
		assert.Equal(t, "4", r.URL.Query().Get("EIO"))

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		conn.WriteMessage(websocket.TextMessage, []byte(`0{"sid":"s1","upgrades":[],"pingInterval":25000,"pingTimeout":20000,"maxPayload":1000000}`))

		_, msg, err := conn.ReadMessage()
		if err != nil || string(msg) != "40" {
			return
		}
		conn.WriteMessage(websocket.TextMessage, []byte(`40{"sid":"n1"}`))

		conn.WriteMessage(websocket.TextMessage, []byte("2"))
		_, msg, err = conn.ReadMessage()
		if err != nil {
			return
		}
		pong <- string(msg)

		initial, err := push.EncodeEvent("/", "initialDocuments", []models.ArticleEntry{{Title: "a", Link: "<a>A</a>", PageLocation: "Headline"}})
		if err != nil {
			return
		}
		conn.WriteMessage(websocket.TextMessage, initial)
		conn.WriteMessage(websocket.TextMessage, []byte(`42["somethingElse",{}]`))
		conn.WriteMessage(websocket.TextMessage, []byte(`not a packet`))
		conn.WriteMessage(websocket.TextMessage, []byte(`42["updateDocuments",[]]`))

		// hold the connection until the client goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	sink := &recordingSink{}
	status := push.NewStatus()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- push.Subscribe(ctx, push.Config{Endpoints: []string{srv.URL}, Status: status}, sink)
	}()

	select {
	case msg := <-pong:
		assert.Equal(t, "3", msg)
	case <-time.After(2 * time.Second):
		t.Fatal("no pong received")
	}

	require.Eventually(t, func() bool { return len(sink.received()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []models.EventKind{models.InitialDocuments, models.UpdateDocuments}, sink.received())
	assert.JSONEq(t, `[{"title":"a","link":"<a>A</a>","pageLocation":"Headline"}]`, sink.bodies[0])

	state := status.State()
	assert.True(t, state.Connected)
	assert.Equal(t, srv.URL, state.Endpoint)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Subscribe did not return after cancel")
	}
	state = status.State()
	assert.False(t, state.Connected)
	assert.Empty(t, state.LastError)
}

func TestSubscribeRecordsConnectError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte(`0{"sid":"s3","pingInterval":25000,"pingTimeout":20000}`))
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		conn.WriteMessage(websocket.TextMessage, []byte(`44{"message":"not authorized"}`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	status := push.NewStatus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go push.Subscribe(ctx, push.Config{Endpoints: []string{srv.URL}, Status: status}, &recordingSink{})

	require.Eventually(t, func() bool { return status.State().LastError != "" }, 2*time.Second, 10*time.Millisecond)
	state := status.State()
	assert.False(t, state.Connected)
	assert.Contains(t, state.LastError, "not authorized")
}

func TestSubscribeReleasesConnectionOnCancelBeforeData(t *testing.T) {
	serverSawClose := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				close(serverSawClose)
				return
			}
		}
	}))
	defer srv.Close()

	sink := &recordingSink{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- push.Subscribe(ctx, push.Config{Endpoints: []string{srv.URL}}, sink)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Subscribe did not return after cancel")
	}
	select {
	case <-serverSawClose:
	case <-time.After(2 * time.Second):
		t.Fatal("connection was not released")
	}
	assert.Empty(t, sink.received())
}

func TestSubscribeFailsOverToNextEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte(`0{"sid":"s2","pingInterval":25000,"pingTimeout":20000}`))
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		conn.WriteMessage(websocket.TextMessage, []byte(`42["initialDocuments",[]]`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	sink := &recordingSink{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go push.Subscribe(ctx, push.Config{Endpoints: []string{deadURL, srv.URL}}, sink)

	require.Eventually(t, func() bool { return len(sink.received()) == 1 }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, models.InitialDocuments, sink.received()[0])
}

func TestDialWithoutEndpoints(t *testing.T) {
	_, _, err := push.Dial(context.Background(), push.Config{})
	assert.Error(t, err)
}
