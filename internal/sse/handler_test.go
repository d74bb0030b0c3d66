package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler_RejectsNonGet(t *testing.T) {
	m := NewManager(testLogger())
	h := NewHandler(m, testLogger())

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/stream", nil)

	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestHandler_StreamsEvents(t *testing.T) {
	m := NewManager(testLogger())
	h := NewHandler(m, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/stream", nil).WithContext(ctx)

	done := make(chan struct{})
	go func() {
		h.ServeHTTP(w, r)
		close(done)
	}()

	// Wait for the client to register.
	require.Eventually(t, func() bool {
		return m.ClientCount() == 1
	}, 5*time.Second, 10*time.Millisecond)

	var client *Client
	m.mu.RLock()
	for _, c := range m.clients {
		client = c
	}
	m.mu.RUnlock()
	require.NotNil(t, client)

	m.broadcast(NewFilesChangedEvent(map[string]string{"id": "chg-42"}))

	// The handler has picked the event up once the channel drains; it
	// finishes the in-flight write before honoring the disconnect.
	require.Eventually(t, func() bool {
		return len(client.EventChan) == 0
	}, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("handler did not return after disconnect")
	}

	body := w.Body.String()
	assert.Contains(t, body, "event: connected")
	assert.Contains(t, body, "event: files.changed")
	assert.Contains(t, body, "chg-42")
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, 0, m.ClientCount(), "client is deregistered on disconnect")
}
