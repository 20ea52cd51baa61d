package chessgame

// Arrow marks the last move on the board as file/rank indexes (0..7).
type Arrow struct {
	FromFile int `json:"fromFile"`
	FromRank int `json:"fromRank"`
	ToFile   int `json:"toFile"`
	ToRank   int `json:"toRank"`
}

// offBoard is the coordinate used for every component of NoArrow.
const offBoard = -100

// NoArrow is stored when there is no last move to highlight.
var NoArrow = Arrow{FromFile: offBoard, FromRank: offBoard, ToFile: offBoard, ToRank: offBoard}

func (a Arrow) Valid() bool {
	for _, v := range []int{a.FromFile, a.FromRank, a.ToFile, a.ToRank} {
		if v < 0 || v > 7 {
			return false
		}
	}
	return true
}

// ArrowFromSquares converts algebraic squares ("e2", "e4"). Bad input gives NoArrow.
func ArrowFromSquares(from, to string) Arrow {
	ff, fr, ok1 := parseSquare(from)
	tf, tr, ok2 := parseSquare(to)
	if !ok1 || !ok2 {
		return NoArrow
	}
	return Arrow{FromFile: ff, FromRank: fr, ToFile: tf, ToRank: tr}
}

func parseSquare(s string) (file, rank int, ok bool) {
	if len(s) != 2 {
		return 0, 0, false
	}
	file = int(s[0] - 'a')
	rank = int(s[1] - '1')
	if file < 0 || file > 7 || rank < 0 || rank > 7 {
		return 0, 0, false
	}
	return file, rank, true
}
