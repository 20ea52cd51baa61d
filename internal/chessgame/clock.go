package chessgame

// TicksPerSecond is the clock resolution: one tick is a tenth of a second.
const TicksPerSecond = 10

const MethodTimeout = "timeout"

// Clock holds both players' remaining time in ticks.
type Clock struct {
	WhiteTicks     int  `json:"whiteTicks"`
	BlackTicks     int  `json:"blackTicks"`
	WhiteRunning   bool `json:"whiteClockRunning"`
	IncrementTicks int  `json:"incrementTicks"`
}

// NewClock starts both sides at minutes:seconds with white to move.
func NewClock(minutes, seconds, incrementSeconds int) Clock {
	total := (minutes*60 + seconds) * TicksPerSecond
	return Clock{
		WhiteTicks:     total,
		BlackTicks:     total,
		WhiteRunning:   true,
		IncrementTicks: incrementSeconds * TicksPerSecond,
	}
}

// Tick takes n ticks off the running side, never going below zero, and
// reports whether that side has just run out.
func (c *Clock) Tick(n int) bool {
	if n <= 0 || c.Flagged() {
		return c.Flagged()
	}
	if c.WhiteRunning {
		c.WhiteTicks = max(0, c.WhiteTicks-n)
		return c.WhiteTicks == 0
	}
	c.BlackTicks = max(0, c.BlackTicks-n)
	return c.BlackTicks == 0
}

// Switch credits the increment to the side that just moved and starts the
// other side's clock.
func (c *Clock) Switch() {
	if c.WhiteRunning {
		c.WhiteTicks += c.IncrementTicks
	} else {
		c.BlackTicks += c.IncrementTicks
	}
	c.WhiteRunning = !c.WhiteRunning
}

func (c Clock) Flagged() bool { return c.WhiteTicks == 0 || c.BlackTicks == 0 }

// FlagResult returns the PGN result once a side has run out of time.
func (c Clock) FlagResult() (result string, ok bool) {
	switch {
	case c.WhiteTicks == 0:
		return ResultBlackWon, true
	case c.BlackTicks == 0:
		return ResultWhiteWon, true
	default:
		return "", false
	}
}
