package room

import (
	"errors"
	"fmt"
)

// Kind names a failure the way the pages' message tables do.
type Kind string

const (
	KindEmptyNickname        Kind = "emptyNickname"
	KindTooShortNickname     Kind = "tooShortNickname"
	KindEmptyRoomID          Kind = "emptyRoomId"
	KindNoMatchingRoom       Kind = "noMatchingRoom"
	KindAlreadyFilledRoom    Kind = "alreadyFilledRoom"
	KindInvalidStartPosition Kind = "invalidStartPosition"
	KindInvalidGameSettings  Kind = "invalidGameSettings"
	KindInvalidUpdate        Kind = "invalidUpdate"

	KindFailedCreatingRoom    Kind = "failedCreatingRoom"
	KindFailedJoiningRoom     Kind = "failedJoiningRoom"
	KindFailedUpdatingRoom    Kind = "failedUpdatingRoom"
	KindFailedReadingRoom     Kind = "failedReadingRoom"
	KindFailedSubscribingRoom Kind = "failedSubscribingRoom"
)

// Fatal kinds abort the current flow; the others let the user correct input.
func (k Kind) Fatal() bool {
	switch k {
	case KindFailedCreatingRoom, KindFailedJoiningRoom, KindFailedUpdatingRoom,
		KindFailedReadingRoom, KindFailedSubscribingRoom:
		return true
	default:
		return false
	}
}

// Operation names, also used to pick the page of an i18n key.
const (
	OpCreate       = "createRoom"
	OpJoin         = "joinRoom"
	OpUpdate       = "updateRoom"
	OpRead         = "readRoom"
	OpSubscribe    = "subscribeToRoom"
	OpSubscribeAll = "subscribeToAllRooms"
)

// Error is what every exported operation returns on failure. Err holds the
// underlying cause for logs and is never shown to players.
type Error struct {
	Op    string
	Kind  Kind
	Fatal bool
	Err   error
}

func newError(op string, kind Kind, cause error) *Error {
	return &Error{Op: op, Kind: kind, Fatal: kind.Fatal(), Err: cause}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return e.Op + ": " + string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// I18nKey returns the message key, e.g. pages.joinRoom.errors.noMatchingRoom.
func (e *Error) I18nKey() string {
	return "pages." + page(e.Op) + ".errors." + string(e.Kind)
}

func page(op string) string {
	switch op {
	case OpCreate:
		return "createRoom"
	case OpJoin:
		return "joinRoom"
	default:
		return "game"
	}
}

// KindOf extracts the kind of a room error, or "" for anything else.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
