package room

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/park285/cheese-rooms/internal/chessgame"
	"github.com/park285/cheese-rooms/internal/docstore"
)

// Room is a decoded snapshot of the shared room document.
type Room struct {
	DocID  string `json:"docId"`
	RoomID string `json:"roomId"`

	HostUser      string `json:"hostUser"`
	GuestUser     string `json:"guestUser,omitempty"`
	StartPosition string `json:"startPosition"`
	Origin        string `json:"origin,omitempty"`

	HostHasWhite     bool `json:"hostHasWhite"`
	WithClock        bool `json:"withClock"`
	StartTimeMinutes int  `json:"startTimeMinutes"`
	StartTimeSeconds int  `json:"startTimeSeconds"`
	Increment        int  `json:"increment"`

	GameStarted       bool                    `json:"gameStarted"`
	CurrentPosition   string                  `json:"currentPosition,omitempty"`
	History           []chessgame.HistoryNode `json:"history,omitempty"`
	LastMoveFrom      string                  `json:"lastMoveFrom,omitempty"`
	LastMoveTo        string                  `json:"lastMoveTo,omitempty"`
	WhiteTicks        int                     `json:"whiteTicks"`
	BlackTicks        int                     `json:"blackTicks"`
	WhiteClockRunning bool                    `json:"whiteClockRunning"`
	Outcome           string                  `json:"outcome,omitempty"`
	OutcomeMethod     string                  `json:"outcomeMethod,omitempty"`
	CreatedAt         time.Time               `json:"createdAt"`

	// Extra carries fields written through the open Fields update.
	Extra docstore.Fields `json:"fields,omitempty"`
}

var knownFields = map[string]struct{}{
	"roomId": {}, "hostUser": {}, "guestUser": {}, "startPosition": {}, "origin": {},
	"hostHasWhite": {}, "withClock": {}, "startTimeMinutes": {}, "startTimeSeconds": {}, "increment": {},
	"gameStarted": {}, "currentPosition": {}, "history": {}, "lastMoveFrom": {}, "lastMoveTo": {},
	"whiteTicks": {}, "blackTicks": {}, "whiteClockRunning": {}, "outcome": {}, "outcomeMethod": {},
	"createdAt": {},
}

// Filled reports whether both seats are taken.
func (r *Room) Filled() bool { return r.HostUser != "" && r.GuestUser != "" }

func (r *Room) Finished() bool { return r.Outcome != "" }

// Position returns the current position, falling back to the start position.
func (r *Room) Position() string {
	if r.CurrentPosition != "" {
		return r.CurrentPosition
	}
	if r.StartPosition != "" {
		return r.StartPosition
	}
	return chessgame.StartFEN
}

// Clock returns the shared clock state.
func (r *Room) Clock() chessgame.Clock {
	return chessgame.Clock{
		WhiteTicks:     r.WhiteTicks,
		BlackTicks:     r.BlackTicks,
		WhiteRunning:   r.WhiteClockRunning,
		IncrementTicks: r.Increment * chessgame.TicksPerSecond,
	}
}

func decode(doc *docstore.Document) (*Room, error) {
	raw, err := json.Marshal(doc.Fields)
	if err != nil {
		return nil, fmt.Errorf("encode room %s: %w", doc.ID, err)
	}
	var r Room
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decode room %s: %w", doc.ID, err)
	}
	r.DocID = doc.ID
	r.Extra = nil
	for k, v := range doc.Fields {
		if _, ok := knownFields[k]; ok {
			continue
		}
		if r.Extra == nil {
			r.Extra = docstore.Fields{}
		}
		r.Extra[k] = v
	}
	return &r, nil
}
