package room

import "errors"

// Code is a wire-level error code from the closed set the protocol exposes.
type Code string

const (
	CodeRoomLimit     Code = "ROOM_LIMIT"
	CodeNotFound      Code = "NOT_FOUND"
	CodeInProgress    Code = "IN_PROGRESS"
	CodeFull          Code = "FULL"
	CodeNotHost       Code = "NOT_HOST"
	CodeColorNotReady Code = "COLOR_NOT_READY"
	CodeInvalidColor  Code = "INVALID_COLOR"
	CodeColorTaken    Code = "COLOR_TAKEN"
	CodeNotInRoom     Code = "NOT_IN_ROOM"
	CodeNoRoom        Code = "NO_ROOM"
)

// Error is a domain error carrying a wire code. Guarded operations return
// one of the sentinel values below; callers match with errors.Is.
type Error struct {
	Code    Code
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return string(e.Code) + ": " + e.Message
}

// Is reports whether target is an *Error with the same code, so the
// sentinels below work with errors.Is regardless of message.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}

// Sentinel errors for every code in the closed set.
var (
	ErrRoomLimit     = &Error{CodeRoomLimit, "room limit reached"}
	ErrNotFound      = &Error{CodeNotFound, "room not found"}
	ErrInProgress    = &Error{CodeInProgress, "game already in progress"}
	ErrFull          = &Error{CodeFull, "room is full"}
	ErrNotHost       = &Error{CodeNotHost, "only the host may do that"}
	ErrColorNotReady = &Error{CodeColorNotReady, "not every player has picked a color"}
	ErrInvalidColor  = &Error{CodeInvalidColor, "color must be #rrggbb"}
	ErrColorTaken    = &Error{CodeColorTaken, "color already in use"}
	ErrNotInRoom     = &Error{CodeNotInRoom, "player is not in this room"}
	ErrNoRoom        = &Error{CodeNoRoom, "not currently in a room"}
)

// CodeOf extracts the wire code from err. Reports false for errors outside
// the closed set.
func CodeOf(err error) (Code, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return "", false
}
