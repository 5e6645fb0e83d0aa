package ws

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/blastarena/server/internal/config"
	"github.com/blastarena/server/internal/game/augment"
	"github.com/blastarena/server/internal/game/event"
	"github.com/blastarena/server/internal/game/health"
	"github.com/blastarena/server/internal/game/room"
	"github.com/blastarena/server/internal/game/schedule"
	"github.com/blastarena/server/internal/gameserver"
)

type hubFixture struct {
	hub    *Hub
	server *httptest.Server
	url    string
}

func newHubFixture(t *testing.T) *hubFixture {
	t.Helper()
	cfg := config.Default()
	cfg.Game.SelectionDelay = 20 * time.Millisecond
	cfg.Game.RespawnDelay = 20 * time.Millisecond

	logger := zap.NewNop()
	bus := event.NewBus(logger)
	sched := schedule.NewScheduler()
	reg := room.NewRegistry(cfg.Game, bus, sched, logger)
	auth := health.NewAuthority(reg, bus, sched, cfg.Game, logger)
	svc := gameserver.NewService(reg, bus, sched, auth, augment.NewCatalog(nil), cfg.Game, logger)
	hub := NewHub(svc, bus, cfg.Websocket, logger)

	server := httptest.NewServer(hub)
	t.Cleanup(func() {
		server.Close()
		hub.Shutdown()
		sched.Stop()
		bus.Stop()
	})

	return &hubFixture{
		hub:    hub,
		server: server,
		url:    "ws" + strings.TrimPrefix(server.URL, "http"),
	}
}

func (f *hubFixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(f.url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, reqType string, payload any) {
	t.Helper()
	var data json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		require.NoError(t, err)
		data = b
	}
	require.NoError(t, conn.WriteJSON(gameserver.Envelope{Type: reqType, Data: data}))
}

// recv reads frames until one of the wanted type arrives.
func recv(t *testing.T, conn *websocket.Conn, wantType string) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var frame map[string]any
		require.NoError(t, conn.ReadJSON(&frame), "waiting for %s", wantType)
		if frame["type"] == wantType {
			return frame
		}
	}
}

func TestHub_CreateRoomRoundTrip(t *testing.T) {
	f := newHubFixture(t)
	conn := f.dial(t)

	send(t, conn, gameserver.ReqCreateRoom, gameserver.CreateRoomRequest{
		Name: "arena", Nickname: "Host", Capacity: 4,
	})

	ack := recv(t, conn, "create_room_ack")
	require.Equal(t, true, ack["ok"])
	data := ack["data"].(map[string]any)
	assert.Len(t, data["room_id"], 6)
	assert.Equal(t, "waiting", data["status"])
}

func TestHub_JoinBroadcastsToHost(t *testing.T) {
	f := newHubFixture(t)
	host := f.dial(t)
	guest := f.dial(t)

	send(t, host, gameserver.ReqCreateRoom, gameserver.CreateRoomRequest{Name: "arena", Nickname: "Host"})
	ack := recv(t, host, "create_room_ack")
	roomID := ack["data"].(map[string]any)["room_id"].(string)

	send(t, guest, gameserver.ReqJoinRoom, gameserver.JoinRoomRequest{RoomID: roomID, Nickname: "Guest"})
	recv(t, guest, "join_room_ack")

	joined := recv(t, host, "player_joined")
	player := joined["data"].(map[string]any)["player"].(map[string]any)
	assert.Equal(t, "Guest", player["nickname"])

	state := recv(t, host, "room_state")
	assert.Len(t, state["data"].(map[string]any)["players"], 2)
}

func TestHub_RelayExcludesSender(t *testing.T) {
	f := newHubFixture(t)
	host := f.dial(t)
	guest := f.dial(t)

	send(t, host, gameserver.ReqCreateRoom, gameserver.CreateRoomRequest{Name: "arena", Nickname: "Host"})
	roomID := recv(t, host, "create_room_ack")["data"].(map[string]any)["room_id"].(string)
	send(t, guest, gameserver.ReqJoinRoom, gameserver.JoinRoomRequest{RoomID: roomID, Nickname: "Guest"})
	recv(t, guest, "join_room_ack")
	recv(t, host, "player_joined")

	send(t, guest, "move", map[string]float64{"x": 3, "y": 4})

	move := recv(t, host, "move")
	assert.Equal(t, 3.0, move["data"].(map[string]any)["x"])
}

func TestHub_DisconnectRunsLeaveCleanup(t *testing.T) {
	f := newHubFixture(t)
	host := f.dial(t)
	guest := f.dial(t)

	send(t, host, gameserver.ReqCreateRoom, gameserver.CreateRoomRequest{Name: "arena", Nickname: "Host"})
	roomID := recv(t, host, "create_room_ack")["data"].(map[string]any)["room_id"].(string)
	send(t, guest, gameserver.ReqJoinRoom, gameserver.JoinRoomRequest{RoomID: roomID, Nickname: "Guest"})
	recv(t, host, "player_joined")

	guest.Close()

	left := recv(t, host, "player_left")
	assert.NotEmpty(t, left["data"].(map[string]any)["player_id"])
}

func TestHub_LeaveDetachesFromTopic(t *testing.T) {
	f := newHubFixture(t)
	host := f.dial(t)
	guest := f.dial(t)

	send(t, host, gameserver.ReqCreateRoom, gameserver.CreateRoomRequest{Name: "arena", Nickname: "Host"})
	roomID := recv(t, host, "create_room_ack")["data"].(map[string]any)["room_id"].(string)
	send(t, guest, gameserver.ReqJoinRoom, gameserver.JoinRoomRequest{RoomID: roomID, Nickname: "Guest"})
	recv(t, guest, "join_room_ack")
	recv(t, host, "player_joined")

	send(t, guest, gameserver.ReqLeaveRoom, nil)
	recv(t, guest, "leave_room_ack")
	recv(t, host, "player_left")

	// The guest is detached: a relayed frame from the host must not arrive.
	send(t, host, "chat", map[string]string{"text": "anyone there?"})
	require.NoError(t, guest.SetReadDeadline(time.Now().Add(150*time.Millisecond)))
	var frame map[string]any
	err := guest.ReadJSON(&frame)
	require.Error(t, err, "got unexpected frame %v", frame)
}

func TestHub_SwitchingRoomsStopsOldBroadcasts(t *testing.T) {
	f := newHubFixture(t)
	host := f.dial(t)
	drifter := f.dial(t)

	send(t, host, gameserver.ReqCreateRoom, gameserver.CreateRoomRequest{Name: "one", Nickname: "Host"})
	roomID := recv(t, host, "create_room_ack")["data"].(map[string]any)["room_id"].(string)
	send(t, drifter, gameserver.ReqJoinRoom, gameserver.JoinRoomRequest{RoomID: roomID, Nickname: "Drifter"})
	recv(t, drifter, "join_room_ack")
	recv(t, host, "player_joined")

	send(t, drifter, gameserver.ReqCreateRoom, gameserver.CreateRoomRequest{Name: "two", Nickname: "Drifter"})
	recv(t, drifter, "create_room_ack")
	recv(t, host, "player_left")

	// The drifter switched rooms; the first room's relays must not follow.
	send(t, host, "chat", map[string]string{"text": "still here?"})
	require.NoError(t, drifter.SetReadDeadline(time.Now().Add(150*time.Millisecond)))
	for {
		var frame map[string]any
		if err := drifter.ReadJSON(&frame); err != nil {
			break
		}
		require.NotEqual(t, "chat", frame["type"], "received old room broadcast %v", frame)
	}
}

func TestHub_ConnCount(t *testing.T) {
	f := newHubFixture(t)
	assert.Equal(t, 0, f.hub.ConnCount())

	conn := f.dial(t)
	require.Eventually(t, func() bool { return f.hub.ConnCount() == 1 },
		time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return f.hub.ConnCount() == 0 },
		time.Second, 10*time.Millisecond)
}
