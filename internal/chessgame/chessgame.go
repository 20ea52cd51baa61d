// Package chessgame wraps the chess rules library with the few operations the
// room flow needs: validating a start position, applying a move coming from a
// player and reading the result in the shapes that get broadcast to the room.
package chessgame

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

const (
	StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"
	// EmptyFEN is shown before any game has been configured.
	EmptyFEN = "8/8/8/8/8/8/8/8 w - - 0 1"
)

// PGN result tokens.
const (
	ResultWhiteWon = "1-0"
	ResultBlackWon = "0-1"
	ResultDraw     = "1/2-1/2"
)

var (
	ErrInvalidFEN  = errors.New("invalid fen")
	ErrIllegalMove = errors.New("illegal move")
	ErrGameOver    = errors.New("game already finished")
)

// HistoryNode is one half-move as shown in the move list.
type HistoryNode struct {
	MoveNumber int    `json:"moveNumber"`
	WhiteMove  bool   `json:"whiteMove"`
	SAN        string `json:"san"`
	UCI        string `json:"uci"`
	FEN        string `json:"fen"`
	From       string `json:"from"`
	To         string `json:"to"`
}

// MoveResult is the position after a move plus what the room needs to publish.
type MoveResult struct {
	Node        HistoryNode
	FEN         string
	Arrow       Arrow
	WhiteToMove bool
	Outcome     string
	Method      string
}

// ValidateFEN reports ErrInvalidFEN when fen cannot be loaded.
func ValidateFEN(fen string) error {
	_, err := NewGame(fen)
	return err
}

// NewGame loads fen; an empty string means the standard start position.
func NewGame(fen string) (*nchess.Game, error) {
	fen = strings.TrimSpace(fen)
	if fen == "" {
		return nchess.NewGame(), nil
	}
	if len(strings.Fields(fen)) != 6 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidFEN, fen)
	}
	opt, err := nchess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFEN, err)
	}
	return nchess.NewGame(opt), nil
}

// ApplyMove plays a UCI move (e2e4, e7e8q) on fen.
func ApplyMove(fen, uci string) (*MoveResult, error) {
	game, err := NewGame(fen)
	if err != nil {
		return nil, err
	}
	if game.Outcome() != nchess.NoOutcome {
		return nil, ErrGameOver
	}
	uci = strings.ToLower(strings.TrimSpace(uci))
	if uci == "" {
		return nil, fmt.Errorf("%w: empty move", ErrIllegalMove)
	}

	pos := game.Position()
	mv, err := nchess.UCINotation{}.Decode(pos, uci)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrIllegalMove, uci)
	}
	san := nchess.AlgebraicNotation{}.Encode(pos, mv)
	whiteMoved := pos.Turn() == nchess.White
	if err := game.PushNotationMove(uci, nchess.UCINotation{}, nil); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrIllegalMove, uci)
	}

	from, to := mv.S1().String(), mv.S2().String()
	res := &MoveResult{
		Node: HistoryNode{
			MoveNumber: fullMoveNumber(fen),
			WhiteMove:  whiteMoved,
			SAN:        san,
			UCI:        uci,
			FEN:        game.FEN(),
			From:       from,
			To:         to,
		},
		FEN:         game.FEN(),
		Arrow:       ArrowFromSquares(from, to),
		WhiteToMove: game.Position().Turn() == nchess.White,
		Outcome:     ResultFromOutcome(game.Outcome()),
	}
	if res.Outcome != "" {
		res.Method = MethodName(game.Method())
	}
	return res, nil
}

// ResultFromOutcome maps the library outcome to a PGN result token, or "" while
// the game is in progress.
func ResultFromOutcome(o nchess.Outcome) string {
	switch o {
	case nchess.WhiteWon:
		return ResultWhiteWon
	case nchess.BlackWon:
		return ResultBlackWon
	case nchess.Draw:
		return ResultDraw
	default:
		return ""
	}
}

func MethodName(m nchess.Method) string {
	if m == nchess.NoMethod {
		return ""
	}
	return strings.ToLower(m.String())
}

// WhiteToMove reads the side to move from fen. Unparsable input counts as white.
func WhiteToMove(fen string) bool {
	parts := strings.Fields(fen)
	return len(parts) < 2 || parts[1] != "b"
}

func fullMoveNumber(fen string) int {
	parts := strings.Fields(fen)
	if len(parts) < 6 {
		return 1
	}
	n, err := strconv.Atoi(parts[5])
	if err != nil || n < 1 {
		return 1
	}
	return n
}
