// Package event defines the domain events rooms emit and the per-room topic
// bus that carries them. Game components publish here; the transport adapter
// is the only layer that maps subscriptions to live connections.
package event

// Type names every broadcast the orchestrator emits. Relay types are carried
// verbatim from one member to the rest of the room.
const (
	// Orchestrator broadcasts.
	TypeRoomState         = "room_state"
	TypePlayerJoined      = "player_joined"
	TypePlayerLeft        = "player_left"
	TypeRoomClosed        = "room_closed"
	TypeReadyState        = "ready_state"
	TypeGameStarted       = "game_started"
	TypeHealthUpdate      = "health_update"
	TypeRoundResult       = "round_result"
	TypeSelectionOpen     = "selection_open"
	TypeSelectionComplete = "selection_complete"

	// Relay passthrough (payload opaque to the server).
	TypeMove      = "move"
	TypeAim       = "aim"
	TypeShoot     = "shoot"
	TypeParticle  = "particle"
	TypeChat      = "chat"
	TypeGameEvent = "game_event"
)

// Event is one message on a room topic. It marshals directly to the wire
// envelope sent to clients.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}
