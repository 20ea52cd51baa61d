// Package memstore is an in-process docstore.Store used for local development
// and tests. It behaves like the realtime backend: callers choose document keys
// and can subscribe to changes.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/park285/cheese-rooms/internal/docstore"
)

type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]docstore.Fields
	subs        map[uint64]*subscriber
	nextSub     uint64
}

func New() *Store {
	return &Store{
		collections: make(map[string]map[string]docstore.Fields),
		subs:        make(map[uint64]*subscriber),
	}
}

var _ docstore.Store = (*Store)(nil)

func (s *Store) Create(ctx context.Context, collection, key string, fields docstore.Fields) (*docstore.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := docstore.Normalize(fields)
	if err != nil {
		return nil, err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = uuid.NewString()
	}

	s.mu.Lock()
	col := s.collections[collection]
	if col == nil {
		col = make(map[string]docstore.Fields)
		s.collections[collection] = col
	}
	if _, exists := col[key]; exists {
		s.mu.Unlock()
		return nil, fmt.Errorf("create %s/%s: document already exists", collection, key)
	}
	col[key] = f
	doc := (&docstore.Document{ID: key, Fields: f}).Clone()
	s.mu.Unlock()

	s.notify(collection, doc)
	return doc, nil
}

func (s *Store) Get(ctx context.Context, collection, id string) (*docstore.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.collections[collection][id]
	if !ok {
		return nil, docstore.ErrNotFound
	}
	return (&docstore.Document{ID: id, Fields: f}).Clone(), nil
}

func (s *Store) Query(ctx context.Context, collection string, preds ...docstore.Predicate) ([]*docstore.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	col := s.collections[collection]
	ids := make([]string, 0, len(col))
	for id := range col {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*docstore.Document, 0)
	for _, id := range ids {
		if docstore.Matches(col[id], preds...) {
			out = append(out, (&docstore.Document{ID: id, Fields: col[id]}).Clone())
		}
	}
	return out, nil
}

func (s *Store) Update(ctx context.Context, collection, id string, fields docstore.Fields) (*docstore.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	patch, err := docstore.Normalize(fields)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	cur, ok := s.collections[collection][id]
	if !ok {
		s.mu.Unlock()
		return nil, docstore.ErrNotFound
	}
	docstore.Merge(cur, patch)
	doc := (&docstore.Document{ID: id, Fields: cur}).Clone()
	s.mu.Unlock()

	s.notify(collection, doc)
	return doc, nil
}

func (s *Store) Subscribe(ctx context.Context, collection, id string, fn func(*docstore.Document)) (func(), error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("subscribe %s: empty document id", collection)
	}
	return s.subscribe(ctx, collection, id, fn)
}

func (s *Store) SubscribeAll(ctx context.Context, collection string, fn func(*docstore.Document)) (func(), error) {
	return s.subscribe(ctx, collection, "", fn)
}

func (s *Store) subscribe(ctx context.Context, collection, id string, fn func(*docstore.Document)) (func(), error) {
	if fn == nil {
		return nil, fmt.Errorf("subscribe %s: nil callback", collection)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.nextSub++
	sub := &subscriber{id: s.nextSub, collection: collection, docID: id, c: docstore.NewCoalescer(fn)}
	s.subs[sub.id] = sub
	s.mu.Unlock()

	go sub.c.Run(ctx)

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, sub.id)
			s.mu.Unlock()
			sub.c.Stop()
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-sub.c.Done():
		}
	}()
	return cancel, nil
}

func (s *Store) notify(collection string, doc *docstore.Document) {
	s.mu.RLock()
	targets := make([]*subscriber, 0, len(s.subs))
	for _, sub := range s.subs {
		if sub.collection != collection {
			continue
		}
		if sub.docID != "" && sub.docID != doc.ID {
			continue
		}
		targets = append(targets, sub)
	}
	s.mu.RUnlock()
	for _, sub := range targets {
		sub.c.Offer(doc.Clone())
	}
}

type subscriber struct {
	id         uint64
	collection string
	docID      string
	c          *docstore.Coalescer
}
