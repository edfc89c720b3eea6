package websocket

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/adwski/chat-relay/backend/coordinator"
	"github.com/adwski/chat-relay/backend/model"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	logger := zerolog.Nop()
	coord := coordinator.New(coordinator.Config{Logger: &logger})
	srv := NewServer(Config{
		Logger:      &logger,
		Coordinator: coord,
		ListenAddr:  ":0",
	})
	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(ts.Close)
	return ts, "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) model.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev model.Event
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestJoinRoundtrip(t *testing.T) {
	_, url := newTestServer(t)
	conn := dial(t, url)

	join, err := model.NewEvent(model.EventJoin, model.JoinPayload{
		Username: "alice",
		Room:     "General",
	})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(join))

	var names []string
	for range 3 {
		names = append(names, readEvent(t, conn).Name)
	}
	assert.Equal(t, []string{
		model.EventOnlineUsers,
		model.EventMessage,
		model.EventRoomList,
	}, names)
}

func TestDisconnectPropagatesToPeers(t *testing.T) {
	_, url := newTestServer(t)

	alice := dial(t, url)
	join, err := model.NewEvent(model.EventJoin, model.JoinPayload{Username: "alice", Room: "General"})
	require.NoError(t, err)
	require.NoError(t, alice.WriteJSON(join))
	for range 3 {
		readEvent(t, alice)
	}

	bob := dial(t, url)
	join, err = model.NewEvent(model.EventJoin, model.JoinPayload{Username: "bob", Room: "General"})
	require.NoError(t, err)
	require.NoError(t, bob.WriteJSON(join))

	// alice sees bob's presence
	ev := readEvent(t, alice)
	require.Equal(t, model.EventOnlineUsers, ev.Name)

	require.NoError(t, bob.Close())

	// skip bob's join notice and wait for the shrunk member list
	for {
		ev = readEvent(t, alice)
		if ev.Name != model.EventOnlineUsers {
			continue
		}
		var members []string
		require.NoError(t, json.Unmarshal(ev.Data, &members))
		if len(members) == 1 {
			assert.Equal(t, []string{"alice"}, members)
			return
		}
	}
}
