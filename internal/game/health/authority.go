// Package health holds the server-side health authority: damage is applied
// here, never trusted from clients, and respawns are driven by deferred
// tasks that re-check the world before touching it.
package health

import (
	"time"

	"go.uber.org/zap"

	"github.com/blastarena/server/internal/config"
	"github.com/blastarena/server/internal/game/event"
	"github.com/blastarena/server/internal/game/room"
	"github.com/blastarena/server/internal/game/schedule"
)

// Update is the payload of a health_update broadcast. Damage is zero for a
// respawn restore.
type Update struct {
	PlayerID string `json:"player_id"`
	Health   int    `json:"health"`
	Damage   int    `json:"damage"`
	TS       int64  `json:"ts"`
}

// Authority applies damage and schedules respawns. Damage application is not
// idempotent: duplicated damage messages are applied twice, and overlapping
// deaths schedule overlapping respawns. Each fired respawn re-validates the
// room and player before restoring.
type Authority struct {
	registry *room.Registry
	bus      *event.Bus
	sched    *schedule.Scheduler
	cfg      config.GameConfig
	logger   *zap.Logger
}

// NewAuthority builds the health authority.
func NewAuthority(registry *room.Registry, bus *event.Bus, sched *schedule.Scheduler, cfg config.GameConfig, logger *zap.Logger) *Authority {
	return &Authority{
		registry: registry,
		bus:      bus,
		sched:    sched,
		cfg:      cfg,
		logger:   logger,
	}
}

// ApplyDamage subtracts amount from the target's health, clamped to
// [0, max_health], and broadcasts the result. When the hit is lethal a
// respawn fires after the configured delay.
//
// Postcondition: Reports whether the target was a member of the room when
// the damage landed; misses are dropped silently (damage is fire-and-forget
// on the wire).
func (a *Authority) ApplyDamage(roomID, targetID string, amount int) bool {
	r, ok := a.registry.Get(roomID)
	if !ok {
		return false
	}

	newHealth, died, found := r.DamagePlayer(targetID, amount)
	if !found {
		return false
	}

	a.bus.Publish(roomID, event.Event{Type: event.TypeHealthUpdate, Data: Update{
		PlayerID: targetID,
		Health:   newHealth,
		Damage:   amount,
		TS:       time.Now().UnixMilli(),
	}})

	if died {
		a.logger.Debug("player down",
			zap.String("room_id", roomID),
			zap.String("player_id", targetID))
		a.sched.After(roomID, a.cfg.RespawnDelay, func() {
			a.respawn(roomID, targetID)
		})
	}
	return true
}

// respawn runs as a deferred task. The room may be gone and the player may
// have left by the time it fires; both are re-checked and the task becomes a
// no-op rather than resurrecting ghosts.
func (a *Authority) respawn(roomID, targetID string) {
	r, ok := a.registry.Get(roomID)
	if !ok {
		a.logger.Debug("respawn skipped, room gone",
			zap.String("room_id", roomID),
			zap.String("player_id", targetID))
		return
	}
	restored, ok := r.RestoreHealth(targetID)
	if !ok {
		a.logger.Debug("respawn skipped, player gone",
			zap.String("room_id", roomID),
			zap.String("player_id", targetID))
		return
	}

	a.logger.Debug("respawn fired",
		zap.String("room_id", roomID),
		zap.String("player_id", targetID),
		zap.Int("health", restored))

	a.bus.Publish(roomID, event.Event{Type: event.TypeHealthUpdate, Data: Update{
		PlayerID: targetID,
		Health:   restored,
		Damage:   0,
		TS:       time.Now().UnixMilli(),
	}})
}
