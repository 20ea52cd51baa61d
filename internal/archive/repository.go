// Package archive stores finished room games in PostgreSQL.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/park285/cheese-rooms/internal/room"
)

const schema = `CREATE TABLE IF NOT EXISTS room_games (
    room_id        TEXT PRIMARY KEY,
    doc_id         TEXT NOT NULL,
    white_name     TEXT NOT NULL,
    black_name     TEXT NOT NULL,
    start_position TEXT NOT NULL,
    result         TEXT NOT NULL,
    result_method  TEXT NOT NULL,
    moves_uci      JSONB NOT NULL,
    moves_san      JSONB NOT NULL,
    pgn            TEXT NOT NULL,
    started_at     TIMESTAMPTZ NOT NULL,
    ended_at       TIMESTAMPTZ NOT NULL,
    duration_ms    BIGINT NOT NULL
)`

type Repository struct {
	db  *sql.DB
	now func() time.Time
}

func NewRepository(databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Repository{db: db, now: time.Now}, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// EnsureSchema creates the games table when missing.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

var _ room.Archive = (*Repository)(nil)

// SaveRoom upserts the final state of a finished room.
func (r *Repository) SaveRoom(ctx context.Context, rm *room.Room) error {
	if r == nil || r.db == nil || rm == nil {
		return nil
	}
	g := gameFromRoom(rm, r.now())

	movesUCIRaw, _ := json.Marshal(g.MovesUCI)
	movesSANRaw, _ := json.Marshal(g.MovesSAN)
	duration := g.EndedAt.Sub(g.StartedAt).Milliseconds()
	if duration < 0 {
		duration = 0
	}

	q := `INSERT INTO room_games (
        room_id, doc_id, white_name, black_name, start_position,
        result, result_method, moves_uci, moves_san, pgn,
        started_at, ended_at, duration_ms
      ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
      ) ON CONFLICT (room_id) DO UPDATE SET
        doc_id=EXCLUDED.doc_id,
        white_name=EXCLUDED.white_name,
        black_name=EXCLUDED.black_name,
        start_position=EXCLUDED.start_position,
        result=EXCLUDED.result,
        result_method=EXCLUDED.result_method,
        moves_uci=EXCLUDED.moves_uci,
        moves_san=EXCLUDED.moves_san,
        pgn=EXCLUDED.pgn,
        started_at=EXCLUDED.started_at,
        ended_at=EXCLUDED.ended_at,
        duration_ms=EXCLUDED.duration_ms`

	_, err := r.db.ExecContext(ctx, q,
		g.RoomID, g.DocID,
		g.WhiteName, g.BlackName, g.StartPosition,
		g.Result, g.Method, string(movesUCIRaw), string(movesSANRaw), buildPGN(g),
		g.StartedAt, g.EndedAt, duration,
	)
	return err
}
