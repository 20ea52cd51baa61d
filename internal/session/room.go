package session

import (
	"context"

	"github.com/park285/cheese-rooms/internal/chessgame"
)

// RoomState is the tab's view of the room it belongs to.
type RoomState struct {
	RoomID              string
	DocID               string
	RoomOwner           bool
	GameStarted         bool
	AtLeastAGameStarted bool
	StartPosition       string
}

func DefaultRoomState() *RoomState {
	return &RoomState{StartPosition: chessgame.StartFEN}
}

func (r *RoomState) bindings() []binding {
	return []binding{
		{"roomId", &r.RoomID},
		{"docId", &r.DocID},
		{"roomOwner", &r.RoomOwner},
		{"gameStarted", &r.GameStarted},
		{"atLeastAGameStarted", &r.AtLeastAGameStarted},
		{"startPosition", &r.StartPosition},
	}
}

func (r *RoomState) Load(ctx context.Context, st Storage) error {
	return load(ctx, st, roomStore, r.bindings())
}

func (r *RoomState) Save(ctx context.Context, st Storage) error {
	return save(ctx, st, roomStore, r.bindings())
}

// SetRoomID records id unless a room id is already set.
func (r *RoomState) SetRoomID(id string) {
	if r.RoomID == "" {
		r.RoomID = id
	}
}

// SetDocID records id unless a document id is already set.
func (r *RoomState) SetDocID(id string) {
	if r.DocID == "" {
		r.DocID = id
	}
}

// SetRoomOwner only ever moves false to true.
func (r *RoomState) SetRoomOwner(owner bool) {
	if !r.RoomOwner {
		r.RoomOwner = owner
	}
}

func (r *RoomState) SetGameStarted(started bool) {
	r.GameStarted = started
	if started {
		r.AtLeastAGameStarted = true
	}
}

func (r *RoomState) SetAtLeastAGameStarted(v bool) { r.AtLeastAGameStarted = v }
