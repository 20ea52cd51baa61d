package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/park285/cheese-rooms/internal/chessgame"
)

// GameState mirrors the shared game as this tab last saw it.
type GameState struct {
	StartPosition      string
	CurrentPosition    string
	WhitePlayerIsHuman bool
	BlackPlayerIsHuman bool
	WeHaveWhite        bool
	WhiteNickname      string
	BlackNickname      string
	BoardReversed      bool
	HistoryNodes       []chessgame.HistoryNode
	LastMoveArrow      chessgame.Arrow
	WithClock          bool
	StartTimeMinutes   int
	StartTimeSeconds   int
	Increment          int
	WhiteTicks         int
	BlackTicks         int
	WhiteTimeRunning   bool
}

func DefaultGameState() *GameState {
	return &GameState{
		StartPosition:   chessgame.EmptyFEN,
		CurrentPosition: chessgame.EmptyFEN,
		HistoryNodes:    []chessgame.HistoryNode{},
		LastMoveArrow:   chessgame.NoArrow,
	}
}

func (g *GameState) bindings() []binding {
	return []binding{
		{"startPosition", &g.StartPosition},
		{"currentPosition", &g.CurrentPosition},
		{"whitePlayerIsHuman", &g.WhitePlayerIsHuman},
		{"blackPlayerIsHuman", &g.BlackPlayerIsHuman},
		{"weHaveWhite", &g.WeHaveWhite},
		{"whiteNickname", &g.WhiteNickname},
		{"blackNickname", &g.BlackNickname},
		{"boardReversed", &g.BoardReversed},
		{"historyNodes", &g.HistoryNodes},
		{"lastMoveArrow", &g.LastMoveArrow},
		{"withClock", &g.WithClock},
		{"startTimeMinutes", &g.StartTimeMinutes},
		{"startTimeSeconds", &g.StartTimeSeconds},
		{"increment", &g.Increment},
		{"whiteTicks", &g.WhiteTicks},
		{"blackTicks", &g.BlackTicks},
		{"whiteTimeRunning", &g.WhiteTimeRunning},
	}
}

func (g *GameState) Load(ctx context.Context, st Storage) error {
	return load(ctx, st, gameStore, g.bindings())
}

func (g *GameState) Save(ctx context.Context, st Storage) error {
	return save(ctx, st, gameStore, g.bindings())
}

// Clock returns the clock fields as a chessgame.Clock.
func (g *GameState) Clock() chessgame.Clock {
	return chessgame.Clock{
		WhiteTicks:     g.WhiteTicks,
		BlackTicks:     g.BlackTicks,
		WhiteRunning:   g.WhiteTimeRunning,
		IncrementTicks: g.Increment * chessgame.TicksPerSecond,
	}
}

func (g *GameState) SetClock(c chessgame.Clock) {
	g.WhiteTicks = c.WhiteTicks
	g.BlackTicks = c.BlackTicks
	g.WhiteTimeRunning = c.WhiteRunning
}

// ApplyMove records a move result locally.
func (g *GameState) ApplyMove(res *chessgame.MoveResult) {
	g.CurrentPosition = res.FEN
	g.HistoryNodes = append(g.HistoryNodes, res.Node)
	g.LastMoveArrow = res.Arrow
}

var ErrInvalidSettings = errors.New("invalid game settings")

// NewGameState is the pending configuration of a game not created yet.
type NewGameState struct {
	StartPosition    string
	HostHasWhite     bool
	UseClock         bool
	StartTimeMinutes int
	StartTimeSeconds int
	Increment        int
}

func DefaultNewGameState() *NewGameState {
	return &NewGameState{
		StartPosition:    chessgame.StartFEN,
		HostHasWhite:     true,
		UseClock:         true,
		StartTimeMinutes: 5,
	}
}

func (n *NewGameState) bindings() []binding {
	return []binding{
		{"startPosition", &n.StartPosition},
		{"hostHasWhite", &n.HostHasWhite},
		{"useClock", &n.UseClock},
		{"startTimeMinutes", &n.StartTimeMinutes},
		{"startTimeSeconds", &n.StartTimeSeconds},
		{"increment", &n.Increment},
	}
}

func (n *NewGameState) Load(ctx context.Context, st Storage) error {
	return load(ctx, st, newGameStore, n.bindings())
}

func (n *NewGameState) Save(ctx context.Context, st Storage) error {
	return save(ctx, st, newGameStore, n.bindings())
}

// Confirm checks the settings before they are used to create a game.
func (n *NewGameState) Confirm() error {
	if err := chessgame.ValidateFEN(n.StartPosition); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	if n.StartTimeMinutes < 0 || n.StartTimeSeconds < 0 || n.StartTimeSeconds > 59 || n.Increment < 0 {
		return fmt.Errorf("%w: negative or out of range time", ErrInvalidSettings)
	}
	if n.UseClock && n.StartTimeMinutes == 0 && n.StartTimeSeconds == 0 {
		return fmt.Errorf("%w: clock needs a starting time", ErrInvalidSettings)
	}
	return nil
}

// Game builds the GameState a player starts with. weAreHost picks the colour.
func (n *NewGameState) Game(weAreHost bool, hostNick, guestNick string) *GameState {
	start := n.StartPosition
	if start == "" {
		start = chessgame.StartFEN
	}
	weHaveWhite := n.HostHasWhite == weAreHost
	white, black := hostNick, guestNick
	if !n.HostHasWhite {
		white, black = guestNick, hostNick
	}
	g := &GameState{
		StartPosition:      start,
		CurrentPosition:    start,
		WhitePlayerIsHuman: true,
		BlackPlayerIsHuman: true,
		WeHaveWhite:        weHaveWhite,
		WhiteNickname:      white,
		BlackNickname:      black,
		BoardReversed:      !weHaveWhite,
		HistoryNodes:       []chessgame.HistoryNode{},
		LastMoveArrow:      chessgame.NoArrow,
		WithClock:          n.UseClock,
		StartTimeMinutes:   n.StartTimeMinutes,
		StartTimeSeconds:   n.StartTimeSeconds,
		Increment:          n.Increment,
	}
	if n.UseClock {
		c := chessgame.NewClock(n.StartTimeMinutes, n.StartTimeSeconds, n.Increment)
		c.WhiteRunning = chessgame.WhiteToMove(start)
		g.SetClock(c)
	}
	return g
}
