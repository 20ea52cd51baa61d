// Package storetest holds behavior checks shared by every docstore backend.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/park285/cheese-rooms/internal/docstore"
)

// Options describes backend capabilities.
type Options struct {
	// CallerKeys is true when Create honors the caller-supplied key.
	CallerKeys bool
	// Subscriptions is true when Subscribe/SubscribeAll are implemented.
	Subscriptions bool
}

// Run exercises s against the docstore.Store contract.
func Run(t *testing.T, s docstore.Store, opts Options) {
	t.Helper()
	ctx := context.Background()

	t.Run("CreateGet", func(t *testing.T) {
		doc, err := s.Create(ctx, "rooms", "k-create", docstore.Fields{"roomId": "k-create", "hostUser": "Alice"})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if doc.ID == "" {
			t.Fatalf("expected document id")
		}
		if opts.CallerKeys && doc.ID != "k-create" {
			t.Fatalf("expected caller key, got %q", doc.ID)
		}
		got, err := s.Get(ctx, "rooms", doc.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.Fields["hostUser"] != "Alice" {
			t.Fatalf("hostUser = %v", got.Fields["hostUser"])
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		if _, err := s.Get(ctx, "rooms", "does-not-exist"); !errors.Is(err, docstore.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("QueryByField", func(t *testing.T) {
		if _, err := s.Create(ctx, "rooms", "q-1", docstore.Fields{"roomId": "q-1", "hostUser": "Carol"}); err != nil {
			t.Fatalf("Create: %v", err)
		}
		if _, err := s.Create(ctx, "rooms", "q-2", docstore.Fields{"roomId": "q-2", "hostUser": "Dave"}); err != nil {
			t.Fatalf("Create: %v", err)
		}
		docs, err := s.Query(ctx, "rooms", docstore.Equal("roomId", "q-2"))
		if err != nil {
			t.Fatalf("Query: %v", err)
		}
		if len(docs) != 1 || docs[0].Fields["hostUser"] != "Dave" {
			t.Fatalf("unexpected query result: %+v", docs)
		}
		none, err := s.Query(ctx, "rooms", docstore.Equal("roomId", "q-404"))
		if err != nil {
			t.Fatalf("Query: %v", err)
		}
		if len(none) != 0 {
			t.Fatalf("expected no match, got %d", len(none))
		}
	})

	t.Run("UpdateMerges", func(t *testing.T) {
		doc, err := s.Create(ctx, "rooms", "u-1", docstore.Fields{"roomId": "u-1", "hostUser": "Erin", "startPosition": "start"})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		merged, err := s.Update(ctx, "rooms", doc.ID, docstore.Fields{"guestUser": "Frank"})
		if err != nil {
			t.Fatalf("Update: %v", err)
		}
		if merged.Fields["hostUser"] != "Erin" || merged.Fields["guestUser"] != "Frank" || merged.Fields["startPosition"] != "start" {
			t.Fatalf("merge lost fields: %v", merged.Fields)
		}
		if _, err := s.Update(ctx, "rooms", "missing-doc", docstore.Fields{"x": 1}); !errors.Is(err, docstore.ErrNotFound) {
			t.Fatalf("expected ErrNotFound on missing update, got %v", err)
		}
	})

	if !opts.Subscriptions {
		t.Run("SubscribeUnsupported", func(t *testing.T) {
			if _, err := s.Subscribe(ctx, "rooms", "x", func(*docstore.Document) {}); !errors.Is(err, docstore.ErrUnsupported) {
				t.Fatalf("expected ErrUnsupported, got %v", err)
			}
			if _, err := s.SubscribeAll(ctx, "rooms", func(*docstore.Document) {}); !errors.Is(err, docstore.ErrUnsupported) {
				t.Fatalf("expected ErrUnsupported, got %v", err)
			}
		})
		return
	}

	t.Run("SubscribeSeesLatest", func(t *testing.T) {
		doc, err := s.Create(ctx, "rooms", "s-1", docstore.Fields{"roomId": "s-1", "n": 0})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		var (
			mu   sync.Mutex
			last float64
			seen = make(chan struct{}, 64)
		)
		unsub, err := s.Subscribe(ctx, "rooms", doc.ID, func(d *docstore.Document) {
			mu.Lock()
			if n, ok := d.Fields["n"].(float64); ok {
				last = n
			}
			mu.Unlock()
			select {
			case seen <- struct{}{}:
			default:
			}
		})
		if err != nil {
			t.Fatalf("Subscribe: %v", err)
		}
		defer unsub()
		time.Sleep(50 * time.Millisecond)

		for i := 1; i <= 5; i++ {
			if _, err := s.Update(ctx, "rooms", doc.ID, docstore.Fields{"n": i}); err != nil {
				t.Fatalf("Update: %v", err)
			}
		}
		deadline := time.After(3 * time.Second)
		for {
			mu.Lock()
			got := last
			mu.Unlock()
			if got == 5 {
				break
			}
			select {
			case <-seen:
			case <-deadline:
				t.Fatalf("subscriber never saw final state, last=%v", got)
			}
		}
	})

	t.Run("SubscribeAllAcrossDocs", func(t *testing.T) {
		got := make(chan string, 16)
		unsub, err := s.SubscribeAll(ctx, "lobby", func(d *docstore.Document) {
			select {
			case got <- d.ID:
			default:
			}
		})
		if err != nil {
			t.Fatalf("SubscribeAll: %v", err)
		}
		defer unsub()
		time.Sleep(50 * time.Millisecond)

		a, err := s.Create(ctx, "lobby", "a-1", docstore.Fields{"roomId": "a-1"})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		b, err := s.Create(ctx, "lobby", "a-2", docstore.Fields{"roomId": "a-2"})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		want := map[string]bool{a.ID: false, b.ID: false}
		deadline := time.After(3 * time.Second)
		for !want[a.ID] || !want[b.ID] {
			select {
			case id := <-got:
				if _, ok := want[id]; ok {
					want[id] = true
				}
			case <-deadline:
				t.Fatalf("missing notifications: %v", want)
			}
		}
	})

	t.Run("UnsubscribeStops", func(t *testing.T) {
		doc, err := s.Create(ctx, "rooms", "s-2", docstore.Fields{"roomId": "s-2"})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		calls := make(chan struct{}, 16)
		unsub, err := s.Subscribe(ctx, "rooms", doc.ID, func(*docstore.Document) { calls <- struct{}{} })
		if err != nil {
			t.Fatalf("Subscribe: %v", err)
		}
		time.Sleep(50 * time.Millisecond)
		unsub()
		unsub()
		time.Sleep(50 * time.Millisecond)
		for len(calls) > 0 {
			<-calls
		}
		if _, err := s.Update(ctx, "rooms", doc.ID, docstore.Fields{"x": 1}); err != nil {
			t.Fatalf("Update: %v", err)
		}
		select {
		case <-calls:
			t.Fatalf("callback fired after unsubscribe")
		case <-time.After(150 * time.Millisecond):
		}
	})
}
