package room

import (
	"errors"
	"fmt"
	"strings"

	"github.com/park285/cheese-rooms/internal/chessgame"
	"github.com/park285/cheese-rooms/internal/docstore"
)

// Update is one change merged into the room document by UpdateRoom. Several
// updates in one call become a single partial write.
type Update interface {
	patch(cur *Room) docstore.Fields
}

// snapshotUpdate marks updates computed from the current document.
type snapshotUpdate interface {
	needsSnapshot()
}

type PositionUpdate struct {
	FEN          string
	LastMoveFrom string
	LastMoveTo   string
}

func (u PositionUpdate) patch(*Room) docstore.Fields {
	return docstore.Fields{
		"currentPosition": u.FEN,
		"lastMoveFrom":    u.LastMoveFrom,
		"lastMoveTo":      u.LastMoveTo,
	}
}

// HistoryAppend adds nodes to the stored history. The current history is read
// first, so two concurrent appends can drop one of them.
type HistoryAppend struct {
	Nodes []chessgame.HistoryNode
}

func (HistoryAppend) needsSnapshot() {}

func (u HistoryAppend) patch(cur *Room) docstore.Fields {
	var hist []chessgame.HistoryNode
	if cur != nil {
		hist = append(hist, cur.History...)
	}
	hist = append(hist, u.Nodes...)
	return docstore.Fields{"history": hist}
}

type ClockUpdate struct {
	WhiteTicks   int
	BlackTicks   int
	WhiteRunning bool
}

func (u ClockUpdate) patch(*Room) docstore.Fields {
	return docstore.Fields{
		"whiteTicks":        u.WhiteTicks,
		"blackTicks":        u.BlackTicks,
		"whiteClockRunning": u.WhiteRunning,
	}
}

// OutcomeUpdate records a result token ("1-0", "0-1", "1/2-1/2") and how the
// game ended. An empty Result clears a previous outcome.
type OutcomeUpdate struct {
	Result string
	Method string
}

func (u OutcomeUpdate) patch(*Room) docstore.Fields {
	return docstore.Fields{"outcome": u.Result, "outcomeMethod": u.Method}
}

type GameStartedUpdate struct {
	Started bool
}

func (u GameStartedUpdate) patch(*Room) docstore.Fields {
	return docstore.Fields{"gameStarted": u.Started}
}

// ErrManagedField rejects a Fields update naming a field the room maintains
// itself. Those fields change only through create, join or the typed updates.
var ErrManagedField = errors.New("field is managed by the room")

// Fields merges arbitrary new named values. Keys of the room document itself
// are refused so they keep their meaning and their type.
type Fields map[string]any

func (u Fields) validate() error {
	for k := range u {
		if strings.TrimSpace(k) == "" {
			return errors.New("empty field name")
		}
		if managedField(k) {
			return fmt.Errorf("%w: %s", ErrManagedField, k)
		}
	}
	return nil
}

// managedField matches case-insensitively, as decoding does.
func managedField(k string) bool {
	if strings.EqualFold(k, "docId") || strings.EqualFold(k, "fields") {
		return true
	}
	for f := range knownFields {
		if strings.EqualFold(f, k) {
			return true
		}
	}
	return false
}

func (u Fields) patch(*Room) docstore.Fields {
	out := make(docstore.Fields, len(u))
	for k, v := range u {
		out[k] = v
	}
	return out
}

// ClockFrom converts a chessgame clock.
func ClockFrom(c chessgame.Clock) ClockUpdate {
	return ClockUpdate{WhiteTicks: c.WhiteTicks, BlackTicks: c.BlackTicks, WhiteRunning: c.WhiteRunning}
}

// MoveUpdates lists the updates that publish a played move.
func MoveUpdates(res *chessgame.MoveResult) []Update {
	ups := []Update{
		PositionUpdate{FEN: res.FEN, LastMoveFrom: res.Node.From, LastMoveTo: res.Node.To},
		HistoryAppend{Nodes: []chessgame.HistoryNode{res.Node}},
	}
	if res.Outcome != "" {
		ups = append(ups, OutcomeUpdate{Result: res.Outcome, Method: res.Method})
	}
	return ups
}

func mergePatches(cur *Room, updates []Update) docstore.Fields {
	work := &Room{}
	if cur != nil {
		c := *cur
		work = &c
	}
	out := docstore.Fields{}
	for _, u := range updates {
		if u == nil {
			continue
		}
		p := u.patch(work)
		// later appends in the same call build on earlier ones
		if h, ok := p["history"].([]chessgame.HistoryNode); ok {
			work.History = h
		}
		docstore.Merge(out, p)
	}
	return out
}

func validateUpdates(updates []Update) error {
	for _, u := range updates {
		if v, ok := u.(interface{ validate() error }); ok {
			if err := v.validate(); err != nil {
				return err
			}
		}
	}
	return nil
}

func needsSnapshot(updates []Update) bool {
	for _, u := range updates {
		if _, ok := u.(snapshotUpdate); ok {
			return true
		}
	}
	return false
}

func finalOutcome(updates []Update) (OutcomeUpdate, bool) {
	for i := len(updates) - 1; i >= 0; i-- {
		if o, ok := updates[i].(OutcomeUpdate); ok {
			return o, o.Result != ""
		}
	}
	return OutcomeUpdate{}, false
}
