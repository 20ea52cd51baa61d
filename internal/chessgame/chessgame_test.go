package chessgame

import (
	"errors"
	"testing"
)

func TestValidateFEN(t *testing.T) {
	if err := ValidateFEN(StartFEN); err != nil {
		t.Fatalf("start position rejected: %v", err)
	}
	if err := ValidateFEN(""); err != nil {
		t.Fatalf("empty fen should mean start position: %v", err)
	}
	for _, bad := range []string{"not a fen", "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq"} {
		if err := ValidateFEN(bad); !errors.Is(err, ErrInvalidFEN) {
			t.Fatalf("ValidateFEN(%q) = %v, want ErrInvalidFEN", bad, err)
		}
	}
}

func TestApplyMoveOpening(t *testing.T) {
	res, err := ApplyMove(StartFEN, "e2e4")
	if err != nil {
		t.Fatalf("ApplyMove: %v", err)
	}
	if res.Node.SAN != "e4" || res.Node.From != "e2" || res.Node.To != "e4" {
		t.Fatalf("unexpected node: %+v", res.Node)
	}
	if !res.Node.WhiteMove || res.Node.MoveNumber != 1 {
		t.Fatalf("unexpected move numbering: %+v", res.Node)
	}
	if res.WhiteToMove {
		t.Fatalf("black should be to move")
	}
	if res.Arrow != (Arrow{FromFile: 4, FromRank: 1, ToFile: 4, ToRank: 3}) {
		t.Fatalf("unexpected arrow: %+v", res.Arrow)
	}
	if res.Outcome != "" || res.Method != "" {
		t.Fatalf("game should be in progress: %q %q", res.Outcome, res.Method)
	}
	if WhiteToMove(res.FEN) {
		t.Fatalf("fen %q should have black to move", res.FEN)
	}
}

func TestApplyMoveIllegal(t *testing.T) {
	if _, err := ApplyMove(StartFEN, "e2e5"); !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("expected ErrIllegalMove, got %v", err)
	}
	if _, err := ApplyMove(StartFEN, " "); !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("expected ErrIllegalMove for blank move, got %v", err)
	}
}

func TestApplyMoveCheckmate(t *testing.T) {
	fen := StartFEN
	var res *MoveResult
	for _, mv := range []string{"f2f3", "e7e5", "g2g4", "d8h4"} {
		var err error
		res, err = ApplyMove(fen, mv)
		if err != nil {
			t.Fatalf("ApplyMove(%s): %v", mv, err)
		}
		fen = res.FEN
	}
	if res.Outcome != ResultBlackWon {
		t.Fatalf("outcome = %q, want %q", res.Outcome, ResultBlackWon)
	}
	if res.Method != "checkmate" {
		t.Fatalf("method = %q", res.Method)
	}
	if res.Node.MoveNumber != 2 || res.Node.WhiteMove {
		t.Fatalf("unexpected numbering for mating move: %+v", res.Node)
	}
	if _, err := ApplyMove(fen, "a2a3"); !errors.Is(err, ErrGameOver) {
		t.Fatalf("expected ErrGameOver, got %v", err)
	}
}

func TestArrowFromSquares(t *testing.T) {
	if a := ArrowFromSquares("a1", "h8"); a != (Arrow{0, 0, 7, 7}) || !a.Valid() {
		t.Fatalf("unexpected arrow %+v", a)
	}
	if a := ArrowFromSquares("z9", "e4"); a != NoArrow || a.Valid() {
		t.Fatalf("expected NoArrow, got %+v", a)
	}
}

func TestClock(t *testing.T) {
	c := NewClock(0, 3, 2)
	if c.WhiteTicks != 30 || c.BlackTicks != 30 || !c.WhiteRunning {
		t.Fatalf("unexpected clock %+v", c)
	}
	if c.Tick(10) {
		t.Fatalf("white should not flag yet")
	}
	c.Switch()
	if c.WhiteTicks != 40 || c.WhiteRunning {
		t.Fatalf("increment or switch wrong: %+v", c)
	}
	if !c.Tick(100) {
		t.Fatalf("black should flag")
	}
	if c.BlackTicks != 0 {
		t.Fatalf("ticks went negative: %d", c.BlackTicks)
	}
	res, ok := c.FlagResult()
	if !ok || res != ResultWhiteWon {
		t.Fatalf("FlagResult = %q %v", res, ok)
	}
}
