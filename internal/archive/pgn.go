package archive

import (
	"fmt"
	"strings"
	"time"

	"github.com/park285/cheese-rooms/internal/chessgame"
	"github.com/park285/cheese-rooms/internal/room"
)

// game is the flattened record written to the archive.
type game struct {
	RoomID        string
	DocID         string
	WhiteName     string
	BlackName     string
	StartPosition string
	Result        string
	Method        string
	Nodes         []chessgame.HistoryNode
	MovesUCI      []string
	MovesSAN      []string
	StartedAt     time.Time
	EndedAt       time.Time
}

func gameFromRoom(rm *room.Room, endedAt time.Time) *game {
	g := &game{
		RoomID:        rm.RoomID,
		DocID:         rm.DocID,
		WhiteName:     rm.HostUser,
		BlackName:     rm.GuestUser,
		StartPosition: rm.StartPosition,
		Result:        normalizeResult(rm.Outcome),
		Method:        strings.TrimSpace(rm.OutcomeMethod),
		Nodes:         rm.History,
		MovesUCI:      make([]string, 0, len(rm.History)),
		MovesSAN:      make([]string, 0, len(rm.History)),
		StartedAt:     rm.CreatedAt,
		EndedAt:       endedAt,
	}
	if !rm.HostHasWhite {
		g.WhiteName, g.BlackName = rm.GuestUser, rm.HostUser
	}
	if g.StartPosition == "" {
		g.StartPosition = chessgame.StartFEN
	}
	if g.StartedAt.IsZero() {
		g.StartedAt = endedAt
	}
	for _, n := range rm.History {
		g.MovesUCI = append(g.MovesUCI, n.UCI)
		g.MovesSAN = append(g.MovesSAN, n.SAN)
	}
	return g
}

func normalizeResult(result string) string {
	switch strings.TrimSpace(result) {
	case chessgame.ResultWhiteWon, chessgame.ResultBlackWon, chessgame.ResultDraw:
		return strings.TrimSpace(result)
	default:
		return "*"
	}
}

func buildPGN(g *game) string {
	if g == nil {
		return ""
	}
	var b strings.Builder
	date := g.EndedAt
	if date.IsZero() {
		date = time.Now()
	}
	b.WriteString("[Event \"Casual room game\"]\n")
	b.WriteString(fmt.Sprintf("[Site \"Room %s\"]\n", sanitizePGN(g.RoomID)))
	b.WriteString(fmt.Sprintf("[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day()))
	b.WriteString(fmt.Sprintf("[White \"%s\"]\n", sanitizePGN(g.WhiteName)))
	b.WriteString(fmt.Sprintf("[Black \"%s\"]\n", sanitizePGN(g.BlackName)))
	if g.StartPosition != chessgame.StartFEN {
		b.WriteString("[SetUp \"1\"]\n")
		b.WriteString(fmt.Sprintf("[FEN \"%s\"]\n", sanitizePGN(g.StartPosition)))
	}
	if g.Method != "" {
		b.WriteString(fmt.Sprintf("[Termination \"%s\"]\n", sanitizePGN(strings.ToLower(g.Method))))
	}
	b.WriteString(fmt.Sprintf("[Result \"%s\"]\n\n", g.Result))

	for i, n := range g.Nodes {
		switch {
		case n.WhiteMove:
			b.WriteString(fmt.Sprintf("%d. ", n.MoveNumber))
		case i == 0:
			// game starting with black to move
			b.WriteString(fmt.Sprintf("%d... ", n.MoveNumber))
		}
		b.WriteString(strings.TrimSpace(n.SAN))
		b.WriteString(" ")
	}
	b.WriteString(g.Result)
	return b.String()
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}
