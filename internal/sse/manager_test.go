package sse

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestManager_ConnectDisconnect(t *testing.T) {
	m := NewManager(testLogger())

	client, err := m.Connect()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(client.ID, "sse-"))
	assert.Equal(t, 1, m.ClientCount())

	m.Disconnect(client.ID)
	assert.Equal(t, 0, m.ClientCount())

	// Disconnecting twice is harmless.
	m.Disconnect(client.ID)
}

func TestManager_BroadcastDelivers(t *testing.T) {
	m := NewManager(testLogger())

	a, err := m.Connect()
	require.NoError(t, err)
	b, err := m.Connect()
	require.NoError(t, err)

	event := NewFilesChangedEvent(map[string]string{"id": "chg-1"})
	m.broadcast(event)

	for _, client := range []*Client{a, b} {
		select {
		case got := <-client.EventChan:
			assert.Equal(t, EventFilesChanged, got.Type)
		default:
			t.Fatalf("client %s did not receive the event", client.ID)
		}
	}
}

func TestManager_SlowClientDropsEvent(t *testing.T) {
	m := NewManager(testLogger())

	client, err := m.Connect()
	require.NoError(t, err)

	// Fill the client buffer; further events are dropped, not blocked on.
	for range cap(client.EventChan) + 5 {
		m.broadcast(NewHeartbeatEvent())
	}

	assert.Len(t, client.EventChan, cap(client.EventChan))
}

func TestManager_EmitQueuesForBroadcastLoop(t *testing.T) {
	m := NewManager(testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Start(ctx)

	client, err := m.Connect()
	require.NoError(t, err)

	m.Emit(NewFilesChangedEvent(nil))

	select {
	case got := <-client.EventChan:
		assert.Equal(t, EventFilesChanged, got.Type)
	case <-time.After(5 * time.Second):
		t.Fatal("broadcast loop did not deliver the event")
	}
}

func TestManager_ShutdownClosesClients(t *testing.T) {
	m := NewManager(testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go m.Start(ctx)

	client, err := m.Connect()
	require.NoError(t, err)

	cancel()

	select {
	case <-client.Done:
	case <-time.After(5 * time.Second):
		t.Fatal("client was not closed on manager stop")
	}
	assert.Equal(t, 0, m.ClientCount())
}

func TestManager_EmitAfterShutdownIsDropped(t *testing.T) {
	m := NewManager(testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go m.Start(ctx)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	require.NoError(t, m.Shutdown(shutdownCtx))

	// Must not panic on the closed channel.
	m.Emit(NewFilesChangedEvent(nil))
}
