// Package session holds the per-tab state a player keeps between page loads:
// which room they are in, the game as they last saw it and the settings for a
// game they are about to create.
//
// Values are stored under "<Store>$<field>" keys with JSON encoded values.
package session

import (
	"context"
	"encoding/json"
	"fmt"
)

const (
	roomStore    = "RoomStore"
	gameStore    = "GameStore"
	newGameStore = "NewGameStore"
)

// Key builds the storage key of a field.
func Key(store, field string) string { return store + "$" + field }

type binding struct {
	name string
	ptr  any
}

// load decodes every present key into its binding. Missing keys leave the
// current value, which is the default the caller constructed.
func load(ctx context.Context, st Storage, store string, bs []binding) error {
	for _, b := range bs {
		raw, ok, err := st.Get(ctx, Key(store, b.name))
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := json.Unmarshal([]byte(raw), b.ptr); err != nil {
			return fmt.Errorf("decode %s: %w", Key(store, b.name), err)
		}
	}
	return nil
}

func save(ctx context.Context, st Storage, store string, bs []binding) error {
	for _, b := range bs {
		raw, err := json.Marshal(b.ptr)
		if err != nil {
			return fmt.Errorf("encode %s: %w", Key(store, b.name), err)
		}
		if err := st.Set(ctx, Key(store, b.name), string(raw)); err != nil {
			return err
		}
	}
	return nil
}
