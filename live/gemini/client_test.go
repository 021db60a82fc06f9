package gemini

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jinukuntlaakhilakumargoud-web/english-tutor/internal/types"
)

// floodServer upgrades the connection, consumes the setup message and then
// writes count transcript events without waiting for the client.
func floodServer(t *testing.T, count int) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		for i := 0; i < count; i++ {
			msg := map[string]any{
				"serverContent": map[string]any{
					"outputTranscription": map[string]any{"text": "x"},
				},
			}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func wsEndpoint(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestClose_UnconsumedEvents(t *testing.T) {
	srv := floodServer(t, 200)
	defer srv.Close()

	st, err := Dial(context.Background(), types.StreamConfig{
		APIKey:   "test-key",
		Endpoint: wsEndpoint(srv),
	})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	// Let the flood overrun the event buffer while nothing reads Events.
	time.Sleep(100 * time.Millisecond)

	closed := make(chan error, 1)
	go func() { closed <- st.Close() }()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close blocked with unconsumed events")
	}
}

func TestDialAndReceive(t *testing.T) {
	srv := floodServer(t, 3)
	defer srv.Close()

	st, err := Dial(context.Background(), types.StreamConfig{
		APIKey:   "test-key",
		Endpoint: wsEndpoint(srv),
	})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer st.Close()

	select {
	case ev := <-st.Events():
		if ev.OutputTranscript != "x" {
			t.Errorf("event = %+v, want output transcript %q", ev, "x")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}
}
