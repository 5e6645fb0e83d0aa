package room

import (
	"crypto/rand"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/blastarena/server/internal/config"
	"github.com/blastarena/server/internal/game/event"
	"github.com/blastarena/server/internal/game/schedule"
)

// codeAlphabet excludes lowercase to keep join codes easy to read aloud.
const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength   = 6
)

// JoinedEvent is the payload of a player_joined broadcast.
type JoinedEvent struct {
	RoomID string         `json:"room_id"`
	Player PlayerSnapshot `json:"player"`
}

// LeftEvent is the payload of a player_left broadcast.
type LeftEvent struct {
	RoomID    string `json:"room_id"`
	PlayerID  string `json:"player_id"`
	NewHostID string `json:"new_host_id,omitempty"`
}

// ClosedEvent is the payload of a room_closed broadcast.
type ClosedEvent struct {
	RoomID string `json:"room_id"`
}

// Stats is the registry-wide counters snapshot for the ops endpoint.
type Stats struct {
	Rooms      int `json:"rooms"`
	Players    int `json:"players"`
	InProgress int `json:"in_progress"`
}

// Registry owns every live room and is the sole authority for membership.
// Lock ordering is registry.mu before room.mu, always.
type Registry struct {
	mu sync.RWMutex

	cfg    config.GameConfig
	bus    *event.Bus
	sched  *schedule.Scheduler
	logger *zap.Logger

	rooms map[string]*Room
	// memberships maps player ID to room ID so Leave and RoomOf do not scan.
	memberships map[string]string
}

// NewRegistry builds an empty registry.
//
// Precondition: cfg has passed config.Validate; bus, sched, and logger are
// non-nil.
func NewRegistry(cfg config.GameConfig, bus *event.Bus, sched *schedule.Scheduler, logger *zap.Logger) *Registry {
	return &Registry{
		cfg:         cfg,
		bus:         bus,
		sched:       sched,
		logger:      logger,
		rooms:       make(map[string]*Room),
		memberships: make(map[string]string),
	}
}

// Create opens a new room with hostID as its first member.
//
// Precondition: hostID must not already be in a room (callers leave first).
// Postcondition: On success the room exists, the host occupies a seat, and
// the snapshot reflects both; ErrRoomLimit when the registry is at capacity.
func (g *Registry) Create(hostID, nickname, name string, mode Mode, visibility Visibility, capacity int) (Snapshot, error) {
	if capacity < g.cfg.MinCapacity {
		capacity = g.cfg.MinCapacity
	}
	if capacity > g.cfg.MaxCapacity {
		capacity = g.cfg.MaxCapacity
	}
	if mode != ModeTeams && mode != ModeFreeForAll {
		mode = ModeFreeForAll
	}
	if visibility != VisibilityPublic && visibility != VisibilityPrivate {
		visibility = VisibilityPublic
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.rooms) >= g.cfg.MaxRooms {
		return Snapshot{}, ErrRoomLimit
	}

	id, err := g.uniqueCodeLocked()
	if err != nil {
		return Snapshot{}, err
	}

	r := newRoom(id, name, mode, visibility, capacity, g.cfg.MaxHealth)
	r.hostID = hostID
	g.seatLocked(r, hostID, nickname)
	g.rooms[id] = r
	g.memberships[hostID] = id

	g.logger.Info("room created",
		zap.String("room_id", id),
		zap.String("host_id", hostID),
		zap.String("mode", string(mode)),
		zap.Int("capacity", capacity))

	return r.snapshotLocked(), nil
}

// Join seats playerID in the room. Joining a room the player is already in
// only refreshes the nickname.
//
// Postcondition: On success the player holds a seat, a player_joined event
// and a room_state event have been published; otherwise one of ErrNotFound,
// ErrInProgress, ErrFull.
func (g *Registry) Join(playerID, roomID, nickname string) (Snapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	r, ok := g.rooms[roomID]
	if !ok {
		return Snapshot{}, ErrNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, seated := r.players[playerID]; seated {
		existing.Nickname = nickname
		return r.snapshotLocked(), nil
	}
	if r.status != StatusWaiting {
		return Snapshot{}, ErrInProgress
	}
	if len(r.players) >= r.capacity {
		return Snapshot{}, ErrFull
	}

	p := &Player{
		ID:       playerID,
		Nickname: nickname,
		Health:   g.cfg.MaxHealth,
	}
	if r.mode == ModeTeams {
		team, seat := r.assignTeamLocked(g.cfg.TeamCap)
		if !seat {
			return Snapshot{}, ErrFull
		}
		p.Team = team
	}
	r.players[playerID] = p
	g.memberships[playerID] = roomID

	snap := r.snapshotLocked()
	g.bus.Publish(roomID, event.Event{Type: event.TypePlayerJoined, Data: JoinedEvent{
		RoomID: roomID,
		Player: PlayerSnapshot{ID: p.ID, Nickname: p.Nickname, Team: p.Team, Health: p.Health},
	}})
	g.bus.Publish(roomID, event.Event{Type: event.TypeRoomState, Data: snap})

	g.logger.Debug("player joined",
		zap.String("room_id", roomID),
		zap.String("player_id", playerID),
		zap.String("team", string(p.Team)))

	return snap, nil
}

// seatLocked seats a player without balancer or capacity checks; used for
// the creating host. Caller holds g.mu; the room is not yet published so its
// lock is uncontended.
func (g *Registry) seatLocked(r *Room, playerID, nickname string) {
	p := &Player{ID: playerID, Nickname: nickname, Health: g.cfg.MaxHealth}
	if r.mode == ModeTeams {
		team, _ := r.assignTeamLocked(g.cfg.TeamCap)
		p.Team = team
	}
	r.players[playerID] = p
}

// Leave removes playerID from whatever room they occupy.
//
// Postcondition: Reports the room left and whether the player was in one.
// The last member leaving deletes the room, closes its event topic, and
// cancels its pending scheduled work; otherwise the host seat migrates to
// the lexicographically first remaining member and player_left plus
// room_state events are published to everyone but the departing player, who
// may still be subscribed while their detach is in flight.
func (g *Registry) Leave(playerID string) (roomID string, left bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	roomID, ok := g.memberships[playerID]
	if !ok {
		return "", false
	}
	delete(g.memberships, playerID)

	r, ok := g.rooms[roomID]
	if !ok {
		return "", false
	}

	r.mu.Lock()
	delete(r.players, playerID)

	if len(r.players) == 0 {
		r.mu.Unlock()
		delete(g.rooms, roomID)
		g.sched.CancelRoom(roomID)
		g.bus.Publish(roomID, event.Event{Type: event.TypeRoomClosed, Data: ClosedEvent{RoomID: roomID}})
		g.bus.CloseTopic(roomID)
		g.logger.Info("room closed", zap.String("room_id", roomID))
		return roomID, true
	}

	newHost := ""
	if r.hostID == playerID {
		ids := r.memberIDsLocked()
		r.hostID = ids[0]
		newHost = r.hostID
	}
	snap := r.snapshotLocked()
	r.mu.Unlock()

	g.bus.PublishExcept(roomID, playerID, event.Event{Type: event.TypePlayerLeft, Data: LeftEvent{
		RoomID:    roomID,
		PlayerID:  playerID,
		NewHostID: newHost,
	}})
	g.bus.PublishExcept(roomID, playerID, event.Event{Type: event.TypeRoomState, Data: snap})

	g.logger.Debug("player left",
		zap.String("room_id", roomID),
		zap.String("player_id", playerID),
		zap.String("new_host_id", newHost))

	return roomID, true
}

// List returns summaries of public rooms still accepting players, newest
// first, capped at the configured listing limit.
func (g *Registry) List() []Summary {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []Summary
	for _, r := range g.rooms {
		r.mu.RLock()
		if r.visibility == VisibilityPublic && r.status == StatusWaiting {
			out = append(out, r.summaryLocked())
		}
		r.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > g.cfg.ListLimit {
		out = out[:g.cfg.ListLimit]
	}
	return out
}

// Info returns the full snapshot of one room.
func (g *Registry) Info(roomID string) (Snapshot, error) {
	g.mu.RLock()
	r, ok := g.rooms[roomID]
	g.mu.RUnlock()
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return r.Snapshot(), nil
}

// Get returns the live room object.
func (g *Registry) Get(roomID string) (*Room, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.rooms[roomID]
	return r, ok
}

// RoomOf returns the room currently holding playerID.
func (g *Registry) RoomOf(playerID string) (*Room, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	roomID, ok := g.memberships[playerID]
	if !ok {
		return nil, false
	}
	r, ok := g.rooms[roomID]
	return r, ok
}

// Stats returns registry-wide counters.
func (g *Registry) Stats() Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()

	s := Stats{Rooms: len(g.rooms), Players: len(g.memberships)}
	for _, r := range g.rooms {
		if r.Status() == StatusInProgress {
			s.InProgress++
		}
	}
	return s
}

// uniqueCodeLocked draws join codes until one misses the live set. Caller
// holds g.mu.
func (g *Registry) uniqueCodeLocked() (string, error) {
	for attempt := 0; attempt < 64; attempt++ {
		code, err := randomCode()
		if err != nil {
			return "", err
		}
		if _, taken := g.rooms[code]; !taken {
			return code, nil
		}
	}
	return "", fmt.Errorf("exhausted join code attempts")
}

func randomCode() (string, error) {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating join code: %w", err)
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf), nil
}
