// Package room implements the room orchestrator core: the Room state
// machine, the team balancer, and the Registry that owns every live room.
package room

import (
	"encoding/json"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/blastarena/server/internal/game/augment"
)

// Status is the room lifecycle state.
type Status string

const (
	StatusWaiting    Status = "waiting"
	StatusInProgress Status = "in_progress"
	// StatusEnded is declared for a terminal state but no transition
	// currently assigns it; rooms are abandoned via last-player-leaves
	// deletion instead.
	StatusEnded Status = "ended"
)

// Visibility controls whether a room appears in the public listing.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// Mode selects the game mode; the team balancer only runs in ModeTeams.
type Mode string

const (
	ModeTeams      Mode = "teams"
	ModeFreeForAll Mode = "ffa"
)

// Team is a team tag in team mode.
type Team string

const (
	TeamNone Team = ""
	TeamRed  Team = "red"
	TeamBlue Team = "blue"
)

// other returns the opposing team.
func (t Team) other() Team {
	if t == TeamRed {
		return TeamBlue
	}
	return TeamRed
}

// ColorUnset is the reserved sentinel meaning "no color chosen yet". The
// game cannot start while any player still carries it.
const ColorUnset = ""

var colorPattern = regexp.MustCompile(`^#[0-9a-f]{6}$`)

// ValidColor reports whether color is a lowercase #rrggbb string.
func ValidColor(color string) bool {
	return colorPattern.MatchString(color)
}

// Player is one member of a room. The connection identifier doubles as the
// player identity for the room's lifetime.
type Player struct {
	ID       string
	Nickname string
	Team     Team
	Color    string
	Ready    bool
	Health   int
}

// PlayerResult is one player's opaque result line within a round result.
type PlayerResult struct {
	PlayerID string          `json:"player_id"`
	Result   json.RawMessage `json:"result,omitempty"`
}

// RoundResult is one entry in a room's append-only round log.
type RoundResult struct {
	Round   int            `json:"round"`
	Results []PlayerResult `json:"results"`
}

// PlayerSnapshot is the serializable view of a Player.
type PlayerSnapshot struct {
	ID       string `json:"id"`
	Nickname string `json:"nickname"`
	Team     Team   `json:"team,omitempty"`
	Color    string `json:"color,omitempty"`
	Ready    bool   `json:"ready"`
	Health   int    `json:"health"`
}

// Snapshot is the serializable view of a Room, sent in acks and roster
// broadcasts. Players are sorted by ID for stable output.
type Snapshot struct {
	RoomID       string           `json:"room_id"`
	HostID       string           `json:"host_id"`
	Name         string           `json:"name"`
	Mode         Mode             `json:"mode"`
	Visibility   Visibility       `json:"visibility"`
	Status       Status           `json:"status"`
	Capacity     int              `json:"capacity"`
	CurrentRound int              `json:"current_round"`
	CreatedAt    time.Time        `json:"created_at"`
	Players      []PlayerSnapshot `json:"players"`
}

// Summary is the condensed listing entry for the public lobby.
type Summary struct {
	RoomID      string    `json:"room_id"`
	Name        string    `json:"name"`
	Mode        Mode      `json:"mode"`
	PlayerCount int       `json:"player_count"`
	Capacity    int       `json:"capacity"`
	CreatedAt   time.Time `json:"created_at"`
}

// Room is one isolated game session. All exported methods are safe for
// concurrent use; the Registry manipulates membership under the same lock.
type Room struct {
	mu sync.RWMutex

	id         string
	hostID     string
	name       string
	mode       Mode
	visibility Visibility
	status     Status
	capacity   int
	maxHealth  int
	createdAt  time.Time
	startedAt  time.Time

	// nextTeam is the balancer's alternation cursor: a preference for the
	// next assignment, not a count.
	nextTeam Team

	currentRound int
	roundResults []RoundResult
	ledger       *augment.Ledger

	players map[string]*Player
}

func newRoom(id, name string, mode Mode, visibility Visibility, capacity, maxHealth int) *Room {
	return &Room{
		id:         id,
		name:       name,
		mode:       mode,
		visibility: visibility,
		status:     StatusWaiting,
		capacity:   capacity,
		maxHealth:  maxHealth,
		createdAt:  time.Now(),
		nextTeam:   TeamRed,
		ledger:     augment.NewLedger(),
		players:    make(map[string]*Player),
	}
}

// ID returns the room's stable short code.
func (r *Room) ID() string { return r.id }

// Status returns the current lifecycle state.
func (r *Room) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// HostID returns the current host's player ID.
func (r *Room) HostID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.hostID
}

// CurrentRound returns the number of rounds that have ended.
func (r *Room) CurrentRound() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.currentRound
}

// PlayerCount returns the current number of members.
func (r *Room) PlayerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.players)
}

// HasPlayer reports whether id is currently a member.
func (r *Room) HasPlayer(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.players[id]
	return ok
}

// MemberIDs returns the IDs of all current members, sorted.
func (r *Room) MemberIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.memberIDsLocked()
}

func (r *Room) memberIDsLocked() []string {
	ids := make([]string, 0, len(r.players))
	for id := range r.players {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Snapshot returns the serializable room state.
func (r *Room) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

func (r *Room) snapshotLocked() Snapshot {
	players := make([]PlayerSnapshot, 0, len(r.players))
	for _, p := range r.players {
		players = append(players, PlayerSnapshot{
			ID:       p.ID,
			Nickname: p.Nickname,
			Team:     p.Team,
			Color:    p.Color,
			Ready:    p.Ready,
			Health:   p.Health,
		})
	}
	sort.Slice(players, func(i, j int) bool { return players[i].ID < players[j].ID })

	return Snapshot{
		RoomID:       r.id,
		HostID:       r.hostID,
		Name:         r.name,
		Mode:         r.mode,
		Visibility:   r.visibility,
		Status:       r.status,
		Capacity:     r.capacity,
		CurrentRound: r.currentRound,
		CreatedAt:    r.createdAt,
		Players:      players,
	}
}

// Summary returns the condensed listing entry.
func (r *Room) Summary() Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.summaryLocked()
}

func (r *Room) summaryLocked() Summary {
	return Summary{
		RoomID:      r.id,
		Name:        r.name,
		Mode:        r.mode,
		PlayerCount: len(r.players),
		Capacity:    r.capacity,
		CreatedAt:   r.createdAt,
	}
}

// Start transitions the room from waiting to in-progress.
//
// Precondition: requesterID must be the host and every member must have a
// real (non-sentinel) color.
// Postcondition: On success status is in-progress and the start time is
// stamped; on error no state changes.
func (r *Room) Start(requesterID string) (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.hostID != requesterID {
		return Snapshot{}, ErrNotHost
	}
	if r.status != StatusWaiting {
		return Snapshot{}, ErrInProgress
	}
	for _, p := range r.players {
		if p.Color == ColorUnset {
			return Snapshot{}, ErrColorNotReady
		}
	}

	r.status = StatusInProgress
	r.startedAt = time.Now()
	return r.snapshotLocked(), nil
}

// StartedAt returns the start timestamp (zero until Start succeeds).
func (r *Room) StartedAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.startedAt
}

// ToggleReady flips the member's ready flag.
//
// Postcondition: Returns the new value and whether every member is now
// ready, or ErrNotInRoom.
func (r *Room) ToggleReady(id string) (ready, allReady bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.players[id]
	if !ok {
		return false, false, ErrNotInRoom
	}
	p.Ready = !p.Ready

	allReady = true
	for _, other := range r.players {
		if !other.Ready {
			allReady = false
			break
		}
	}
	return p.Ready, allReady, nil
}

// SetLoadout applies the lenient team/color selection: a non-nil team is
// always applied; a non-nil color is applied only when it is a valid hex
// color not used by another member, and silently ignored otherwise.
func (r *Room) SetLoadout(id string, team *Team, color *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.players[id]
	if !ok {
		return ErrNotInRoom
	}
	if team != nil {
		p.Team = *team
	}
	if color != nil && ValidColor(*color) && !r.colorTakenLocked(*color, id) {
		p.Color = *color
	}
	return nil
}

// SetColor applies the strict color selection.
//
// Postcondition: On success the member's color is set; otherwise one of
// ErrInvalidColor, ErrColorTaken, ErrNotInRoom and no state changes.
func (r *Room) SetColor(id, color string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.players[id]
	if !ok {
		return ErrNotInRoom
	}
	if !ValidColor(color) {
		return ErrInvalidColor
	}
	if r.colorTakenLocked(color, id) {
		return ErrColorTaken
	}
	p.Color = color
	return nil
}

func (r *Room) colorTakenLocked(color, exceptID string) bool {
	for _, p := range r.players {
		if p.ID != exceptID && p.Color == color {
			return true
		}
	}
	return false
}

// EndRound closes the current round: increments the round counter and
// appends the results to the append-only log.
//
// Postcondition: Returns the number of the round that just ended.
func (r *Room) EndRound(results []PlayerResult) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.currentRound++
	r.roundResults = append(r.roundResults, RoundResult{
		Round:   r.currentRound,
		Results: results,
	})
	return r.currentRound
}

// RoundResults returns a copy of the append-only round log.
func (r *Room) RoundResults() []RoundResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]RoundResult, len(r.roundResults))
	copy(out, r.roundResults)
	return out
}

// DamagePlayer applies damage to the target, clamping health to
// [0, maxHealth].
//
// Postcondition: Returns the new health; died is true whenever the new
// health is zero, including hits landing on an already-dead target, so every
// lethal delivery schedules its own respawn. found is false when the target
// is not a member.
func (r *Room) DamagePlayer(targetID string, amount int) (newHealth int, died, found bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.players[targetID]
	if !ok {
		return 0, false, false
	}
	p.Health -= amount
	if p.Health < 0 {
		p.Health = 0
	}
	if p.Health > r.maxHealth {
		p.Health = r.maxHealth
	}
	return p.Health, p.Health == 0, true
}

// RestoreHealth resets the target's health to the room maximum.
//
// Postcondition: Returns the restored health; ok is false when the target
// is no longer a member.
func (r *Room) RestoreHealth(targetID string) (health int, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, found := r.players[targetID]
	if !found {
		return 0, false
	}
	p.Health = r.maxHealth
	return p.Health, true
}

// SelectAugment records the member's choice for the round and evaluates the
// completion barrier against the live roster. Choices from non-members are
// ignored (recorded selections always belong to someone who was a member
// when they chose).
//
// Postcondition: Returns whether the round is complete after this call, the
// current selections for the round, and whether the choice was recorded.
func (r *Room) SelectAugment(playerID string, round int, choiceID string) (complete bool, selections map[string]string, recorded bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.players[playerID]; !ok {
		return false, r.ledger.Selections(round), false
	}
	r.ledger.Select(round, playerID, choiceID)
	complete = r.ledger.Complete(round, r.memberIDsLocked())
	return complete, r.ledger.Selections(round), true
}

// SelectionComplete evaluates the barrier for the round against the live
// roster without recording anything.
func (r *Room) SelectionComplete(round int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ledger.Complete(round, r.memberIDsLocked())
}

// Selections returns a copy of the recorded choices for the round.
func (r *Room) Selections(round int) map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ledger.Selections(round)
}

// assignTeam picks a team for a joining player in team mode. Counts are
// recomputed from live membership on every call, so cap enforcement stays
// correct after departures. Reports false when both teams are at cap.
func (r *Room) assignTeamLocked(cap int) (Team, bool) {
	counts := map[Team]int{}
	for _, p := range r.players {
		counts[p.Team]++
	}
	team, ok := PickTeam(counts, r.nextTeam, cap)
	if ok {
		r.nextTeam = team.other()
	}
	return team, ok
}
