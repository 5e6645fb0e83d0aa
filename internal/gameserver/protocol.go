// Package gameserver is the connection gateway: it decodes tagged wire
// envelopes, invokes the room orchestration core, and turns the results into
// acks and room broadcasts. The transport layer owns sockets; this package
// never sees one.
package gameserver

import (
	"encoding/json"

	"github.com/blastarena/server/internal/game/augment"
	"github.com/blastarena/server/internal/game/event"
	"github.com/blastarena/server/internal/game/room"
)

// Envelope is the tagged wire frame in both directions:
// {"type": T, "data": {...}}.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Request types handled by Dispatch. Every request receives a direct ack
// typed <request>_ack; the relay and damage inputs are fire-and-forget.
const (
	ReqCreateRoom    = "create_room"
	ReqListRooms     = "list_rooms"
	ReqRoomInfo      = "room_info"
	ReqJoinRoom      = "join_room"
	ReqLeaveRoom     = "leave_room"
	ReqToggleReady   = "toggle_ready"
	ReqSelectLoadout = "select_loadout"
	ReqSetColor      = "set_color"
	ReqStartGame     = "start_game"
	ReqEndRound      = "end_round"
	ReqSelectAugment = "select_augment"
	ReqDamage        = "damage"
)

// relayTypes are forwarded verbatim to the other members of the sender's
// room. The server never interprets their payloads.
var relayTypes = map[string]bool{
	event.TypeMove:      true,
	event.TypeAim:       true,
	event.TypeShoot:     true,
	event.TypeParticle:  true,
	event.TypeChat:      true,
	event.TypeGameEvent: true,
}

// Ack is the direct response to a request envelope.
type Ack struct {
	Type string    `json:"type"`
	OK   bool      `json:"ok"`
	Code room.Code `json:"code,omitempty"`
	Data any       `json:"data,omitempty"`
}

func okAck(reqType string, data any) *Ack {
	return &Ack{Type: reqType + "_ack", OK: true, Data: data}
}

func errAck(reqType string, err error) *Ack {
	code, ok := room.CodeOf(err)
	if !ok {
		code = room.CodeNotFound
	}
	return &Ack{Type: reqType + "_ack", OK: false, Code: code}
}

// CreateRoomRequest is the create_room payload.
type CreateRoomRequest struct {
	Name       string          `json:"name"`
	Nickname   string          `json:"nickname"`
	Mode       room.Mode       `json:"mode"`
	Visibility room.Visibility `json:"visibility"`
	Capacity   int             `json:"capacity"`
}

// JoinRoomRequest is the join_room payload.
type JoinRoomRequest struct {
	RoomID   string `json:"room_id"`
	Nickname string `json:"nickname"`
}

// RoomInfoRequest is the room_info payload.
type RoomInfoRequest struct {
	RoomID string `json:"room_id"`
}

// SelectLoadoutRequest is the lenient team/color payload; nil fields are
// left untouched.
type SelectLoadoutRequest struct {
	Team  *room.Team `json:"team,omitempty"`
	Color *string    `json:"color,omitempty"`
}

// SetColorRequest is the strict color payload.
type SetColorRequest struct {
	Color string `json:"color"`
}

// EndRoundRequest is the end_round payload.
type EndRoundRequest struct {
	Results []room.PlayerResult `json:"results"`
}

// SelectAugmentRequest is the select_augment payload. RoomID, when present,
// must match the caller's seat; Round defaults to the room's current round
// when omitted. Choice IDs are opaque: the server does not validate them
// against the catalog.
type SelectAugmentRequest struct {
	RoomID   string `json:"room_id,omitempty"`
	Round    int    `json:"round,omitempty"`
	ChoiceID string `json:"choice_id"`
}

// DamageRequest is the fire-and-forget authoritative damage input.
type DamageRequest struct {
	TargetID string `json:"target_id"`
	Amount   int    `json:"amount"`
}

// ListRoomsData is the list_rooms ack payload.
type ListRoomsData struct {
	Rooms []room.Summary `json:"rooms"`
}

// LeaveRoomData is the leave_room ack payload. A connection holds at most
// one seat, so the list carries at most one entry.
type LeaveRoomData struct {
	RoomIDs []string `json:"room_ids"`
}

// ToggleReadyData is the toggle_ready ack payload.
type ToggleReadyData struct {
	Ready    bool `json:"ready"`
	AllReady bool `json:"all_ready"`
}

// SelectAugmentData is the select_augment ack payload.
type SelectAugmentData struct {
	Round    int  `json:"round"`
	Complete bool `json:"complete"`
}

// EndRoundData is the end_round ack payload.
type EndRoundData struct {
	Round int `json:"round"`
}

// ReadyEvent is the ready_state broadcast payload.
type ReadyEvent struct {
	RoomID   string `json:"room_id"`
	PlayerID string `json:"player_id"`
	Ready    bool   `json:"ready"`
	AllReady bool   `json:"all_ready"`
}

// StartedEvent is the game_started broadcast payload: the full roster (with
// health) and the authoritative start time.
type StartedEvent struct {
	Room      room.Snapshot `json:"room"`
	StartedAt int64         `json:"started_at"`
}

// RoundResultEvent is the round_result broadcast payload.
type RoundResultEvent struct {
	RoomID  string              `json:"room_id"`
	Round   int                 `json:"round"`
	Results []room.PlayerResult `json:"results"`
}

// SelectionOpenEvent is the selection_open broadcast payload. Choices may be
// empty when no catalog is loaded; clients then use their own lists.
type SelectionOpenEvent struct {
	RoomID  string           `json:"room_id"`
	Round   int              `json:"round"`
	Choices []augment.Option `json:"choices,omitempty"`
}

// SelectionCompleteEvent is the selection_complete broadcast payload.
type SelectionCompleteEvent struct {
	RoomID     string            `json:"room_id"`
	Round      int               `json:"round"`
	Selections map[string]string `json:"selections"`
}
