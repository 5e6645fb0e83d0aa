package gameserver

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/blastarena/server/internal/config"
	"github.com/blastarena/server/internal/game/augment"
	"github.com/blastarena/server/internal/game/event"
	"github.com/blastarena/server/internal/game/health"
	"github.com/blastarena/server/internal/game/room"
	"github.com/blastarena/server/internal/game/schedule"
)

// Result tells the transport what to do after a dispatch: send the ack (nil
// for fire-and-forget inputs and unparseable frames), and attach or detach
// the connection's room topic subscription.
type Result struct {
	Ack        *Ack
	AttachRoom string
	DetachRoom string
}

// Service is the game service behind the websocket gateway. One connection
// maps to at most one room seat; the connection ID is the player ID.
type Service struct {
	registry *room.Registry
	bus      *event.Bus
	sched    *schedule.Scheduler
	auth     *health.Authority
	catalog  *augment.Catalog
	cfg      config.GameConfig
	logger   *zap.Logger
}

// NewService wires the game service.
//
// Precondition: all collaborators are non-nil; catalog may be empty but not
// nil.
func NewService(registry *room.Registry, bus *event.Bus, sched *schedule.Scheduler, auth *health.Authority, catalog *augment.Catalog, cfg config.GameConfig, logger *zap.Logger) *Service {
	return &Service{
		registry: registry,
		bus:      bus,
		sched:    sched,
		auth:     auth,
		catalog:  catalog,
		cfg:      cfg,
		logger:   logger,
	}
}

// Dispatch handles one inbound frame from connID. Unknown types and
// malformed payloads are logged and dropped; the protocol has no error
// frame outside acks.
func (s *Service) Dispatch(connID string, raw []byte) Result {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		s.logger.Debug("dropping malformed frame",
			zap.String("conn_id", connID),
			zap.Error(err))
		return Result{}
	}

	if relayTypes[env.Type] {
		s.relay(connID, env)
		return Result{}
	}

	switch env.Type {
	case ReqCreateRoom:
		return s.createRoom(connID, env.Data)
	case ReqListRooms:
		return Result{Ack: okAck(ReqListRooms, ListRoomsData{Rooms: s.registry.List()})}
	case ReqRoomInfo:
		return s.roomInfo(env.Data)
	case ReqJoinRoom:
		return s.joinRoom(connID, env.Data)
	case ReqLeaveRoom:
		return s.leaveRoom(connID)
	case ReqToggleReady:
		return s.toggleReady(connID)
	case ReqSelectLoadout:
		return s.selectLoadout(connID, env.Data)
	case ReqSetColor:
		return s.setColor(connID, env.Data)
	case ReqStartGame:
		return s.startGame(connID)
	case ReqEndRound:
		return s.endRound(connID, env.Data)
	case ReqSelectAugment:
		return s.selectAugment(connID, env.Data)
	case ReqDamage:
		s.damage(connID, env.Data)
		return Result{}
	default:
		s.logger.Debug("dropping unknown request type",
			zap.String("conn_id", connID),
			zap.String("type", env.Type))
		return Result{}
	}
}

// Disconnect runs the cleanup path for a dropped connection. It never
// fails; a connection that was not seated is a no-op.
func (s *Service) Disconnect(connID string) {
	if roomID, left := s.registry.Leave(connID); left {
		s.logger.Debug("disconnect cleanup",
			zap.String("conn_id", connID),
			zap.String("room_id", roomID))
	}
}

func (s *Service) createRoom(connID string, data json.RawMessage) Result {
	var req CreateRoomRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return Result{}
	}
	// A connection holds at most one seat; creating implies leaving, and the
	// old topic subscription goes with the seat.
	prevRoom, _ := s.registry.Leave(connID)

	snap, err := s.registry.Create(connID, req.Nickname, req.Name, req.Mode, req.Visibility, req.Capacity)
	if err != nil {
		return Result{Ack: errAck(ReqCreateRoom, err), DetachRoom: prevRoom}
	}
	return Result{Ack: okAck(ReqCreateRoom, snap), AttachRoom: snap.RoomID, DetachRoom: prevRoom}
}

func (s *Service) roomInfo(data json.RawMessage) Result {
	var req RoomInfoRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return Result{}
	}
	snap, err := s.registry.Info(req.RoomID)
	if err != nil {
		return Result{Ack: errAck(ReqRoomInfo, err)}
	}
	return Result{Ack: okAck(ReqRoomInfo, snap)}
}

func (s *Service) joinRoom(connID string, data json.RawMessage) Result {
	var req JoinRoomRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return Result{}
	}
	var prevRoom string
	if r, ok := s.registry.RoomOf(connID); ok && r.ID() != req.RoomID {
		prevRoom, _ = s.registry.Leave(connID)
	}
	snap, err := s.registry.Join(connID, req.RoomID, req.Nickname)
	if err != nil {
		return Result{Ack: errAck(ReqJoinRoom, err), DetachRoom: prevRoom}
	}
	return Result{Ack: okAck(ReqJoinRoom, snap), AttachRoom: snap.RoomID, DetachRoom: prevRoom}
}

func (s *Service) leaveRoom(connID string) Result {
	roomID, left := s.registry.Leave(connID)
	if !left {
		return Result{Ack: errAck(ReqLeaveRoom, room.ErrNoRoom)}
	}
	return Result{Ack: okAck(ReqLeaveRoom, LeaveRoomData{RoomIDs: []string{roomID}}), DetachRoom: roomID}
}

func (s *Service) toggleReady(connID string) Result {
	r, ok := s.registry.RoomOf(connID)
	if !ok {
		return Result{Ack: errAck(ReqToggleReady, room.ErrNoRoom)}
	}
	ready, allReady, err := r.ToggleReady(connID)
	if err != nil {
		return Result{Ack: errAck(ReqToggleReady, err)}
	}
	s.bus.Publish(r.ID(), event.Event{Type: event.TypeReadyState, Data: ReadyEvent{
		RoomID:   r.ID(),
		PlayerID: connID,
		Ready:    ready,
		AllReady: allReady,
	}})
	return Result{Ack: okAck(ReqToggleReady, ToggleReadyData{Ready: ready, AllReady: allReady})}
}

func (s *Service) selectLoadout(connID string, data json.RawMessage) Result {
	var req SelectLoadoutRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return Result{}
	}
	r, ok := s.registry.RoomOf(connID)
	if !ok {
		return Result{Ack: errAck(ReqSelectLoadout, room.ErrNoRoom)}
	}
	if err := r.SetLoadout(connID, req.Team, req.Color); err != nil {
		return Result{Ack: errAck(ReqSelectLoadout, err)}
	}
	snap := r.Snapshot()
	s.bus.Publish(r.ID(), event.Event{Type: event.TypeRoomState, Data: snap})
	return Result{Ack: okAck(ReqSelectLoadout, snap)}
}

func (s *Service) setColor(connID string, data json.RawMessage) Result {
	var req SetColorRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return Result{}
	}
	r, ok := s.registry.RoomOf(connID)
	if !ok {
		return Result{Ack: errAck(ReqSetColor, room.ErrNoRoom)}
	}
	if err := r.SetColor(connID, req.Color); err != nil {
		return Result{Ack: errAck(ReqSetColor, err)}
	}
	snap := r.Snapshot()
	s.bus.Publish(r.ID(), event.Event{Type: event.TypeRoomState, Data: snap})
	return Result{Ack: okAck(ReqSetColor, snap)}
}

func (s *Service) startGame(connID string) Result {
	r, ok := s.registry.RoomOf(connID)
	if !ok {
		return Result{Ack: errAck(ReqStartGame, room.ErrNoRoom)}
	}
	snap, err := r.Start(connID)
	if err != nil {
		return Result{Ack: errAck(ReqStartGame, err)}
	}
	s.logger.Info("game started",
		zap.String("room_id", r.ID()),
		zap.Int("players", len(snap.Players)))
	s.bus.Publish(r.ID(), event.Event{Type: event.TypeGameStarted, Data: StartedEvent{
		Room:      snap,
		StartedAt: r.StartedAt().UnixMilli(),
	}})
	return Result{Ack: okAck(ReqStartGame, snap)}
}

// endRound closes the round, broadcasts the result, and schedules the
// selection phase. Any member may end a round, and the room status is not
// consulted: end_round during WAITING or during a pending selection phase is
// honored, and overlapping selection phases may result. The deferred
// broadcast re-checks only that the room still exists.
func (s *Service) endRound(connID string, data json.RawMessage) Result {
	var req EndRoundRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return Result{}
	}
	r, ok := s.registry.RoomOf(connID)
	if !ok {
		return Result{Ack: errAck(ReqEndRound, room.ErrNoRoom)}
	}

	roomID := r.ID()
	round := r.EndRound(req.Results)

	s.logger.Info("round ended",
		zap.String("room_id", roomID),
		zap.Int("round", round))
	s.bus.Publish(roomID, event.Event{Type: event.TypeRoundResult, Data: RoundResultEvent{
		RoomID:  roomID,
		Round:   round,
		Results: req.Results,
	}})

	choices := s.catalog.OffersFor(round, s.cfg.ChoicesPerRound)
	s.sched.After(roomID, s.cfg.SelectionDelay, func() {
		if _, alive := s.registry.Get(roomID); !alive {
			return
		}
		s.bus.Publish(roomID, event.Event{Type: event.TypeSelectionOpen, Data: SelectionOpenEvent{
			RoomID:  roomID,
			Round:   round,
			Choices: choices,
		}})
	})

	return Result{Ack: okAck(ReqEndRound, EndRoundData{Round: round})}
}

// selectAugment records the choice and broadcasts selection_complete
// whenever the recording leaves the round complete. A duplicate select on an
// already-complete round re-broadcasts: delivery is at-least-once.
func (s *Service) selectAugment(connID string, data json.RawMessage) Result {
	var req SelectAugmentRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return Result{}
	}
	r, ok := s.registry.RoomOf(connID)
	if !ok {
		return Result{Ack: errAck(ReqSelectAugment, room.ErrNoRoom)}
	}
	if req.RoomID != "" && req.RoomID != r.ID() {
		return Result{Ack: errAck(ReqSelectAugment, room.ErrNotInRoom)}
	}

	round := req.Round
	if round <= 0 {
		round = r.CurrentRound()
	}

	complete, selections, _ := r.SelectAugment(connID, round, req.ChoiceID)
	if complete {
		s.logger.Debug("selection complete",
			zap.String("room_id", r.ID()),
			zap.Int("round", round))
		s.bus.Publish(r.ID(), event.Event{Type: event.TypeSelectionComplete, Data: SelectionCompleteEvent{
			RoomID:     r.ID(),
			Round:      round,
			Selections: selections,
		}})
	}
	return Result{Ack: okAck(ReqSelectAugment, SelectAugmentData{Round: round, Complete: complete})}
}

// damage routes the fire-and-forget authoritative input to the health
// authority. No ack, and a miss is silent.
func (s *Service) damage(connID string, data json.RawMessage) {
	var req DamageRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return
	}
	r, ok := s.registry.RoomOf(connID)
	if !ok {
		return
	}
	s.auth.ApplyDamage(r.ID(), req.TargetID, req.Amount)
}

// relay forwards the envelope verbatim to everyone else in the sender's
// room. Senders outside any room are dropped silently.
func (s *Service) relay(connID string, env Envelope) {
	r, ok := s.registry.RoomOf(connID)
	if !ok {
		return
	}
	s.bus.PublishExcept(r.ID(), connID, event.Event{Type: env.Type, Data: env.Data})
}
