package roomid

import (
	"strconv"
	"testing"
	"time"
)

func TestGenerateUsesClockAndFactor(t *testing.T) {
	at := time.UnixMilli(1_700_000_000_000)
	g := New(WithClock(func() time.Time { return at }), WithRand(func(n int) int {
		if n != 999 {
			t.Fatalf("unexpected bound %d", n)
		}
		return 41
	}))
	if got, want := g.Generate(), strconv.FormatInt(1_700_000_000_000*42, 10); got != want {
		t.Fatalf("Generate = %s, want %s", got, want)
	}
}

func TestGenerateFactorBounds(t *testing.T) {
	at := time.UnixMilli(1000)
	low := New(WithClock(func() time.Time { return at }), WithRand(func(int) int { return 0 }))
	if got := low.Generate(); got != "1000" {
		t.Fatalf("lowest factor gave %s", got)
	}
	high := New(WithClock(func() time.Time { return at }), WithRand(func(n int) int { return n - 1 }))
	if got := high.Generate(); got != "999000" {
		t.Fatalf("highest factor gave %s", got)
	}
}

func TestDefaultGeneratorIsNumeric(t *testing.T) {
	for i := 0; i < 50; i++ {
		id := Generate()
		n, err := strconv.ParseInt(id, 10, 64)
		if err != nil || n <= 0 {
			t.Fatalf("bad id %q: %v", id, err)
		}
	}
}
