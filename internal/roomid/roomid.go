// Package roomid mints the short numeric room codes players share with each
// other. Codes are not unique by construction; a collision shows up later as a
// join against the wrong or an already filled room.
package roomid

import (
	"math/rand/v2"
	"strconv"
	"time"
)

// maxFactor bounds the random multiplier to [1, maxFactor).
const maxFactor = 1000

type Generator struct {
	now  func() time.Time
	intn func(n int) int
}

type Option func(*Generator)

func WithClock(now func() time.Time) Option { return func(g *Generator) { g.now = now } }

// WithRand replaces the random source. intn must return a value in [0, n).
func WithRand(intn func(n int) int) Option { return func(g *Generator) { g.intn = intn } }

func New(opts ...Option) *Generator {
	g := &Generator{now: time.Now, intn: rand.IntN}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Generate returns floor(unixMillis * r) in base 10 with r in [1, 1000).
func (g *Generator) Generate() string {
	r := int64(1 + g.intn(maxFactor-1))
	return strconv.FormatInt(g.now().UnixMilli()*r, 10)
}

var std = New()

func Generate() string { return std.Generate() }
