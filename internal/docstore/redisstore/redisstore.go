// Package redisstore implements docstore.Store on Redis. Documents are JSON
// values keyed by the caller's key; every write publishes the merged snapshot so
// subscribers get push notifications.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/park285/cheese-rooms/internal/docstore"
	"github.com/park285/cheese-rooms/internal/obslog"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const maxTxRetries = 64

type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

type Option func(*Store)

// WithTTL expires documents that have not been written for d. Zero keeps them forever.
func WithTTL(d time.Duration) Option { return func(s *Store) { s.ttl = d } }

func New(rdb *redis.Client, opts ...Option) *Store {
	s := &Store{rdb: rdb}
	for _, o := range opts {
		o(s)
	}
	return s
}

// NewFromURL dials REDIS_URL-style addresses and pings the server.
func NewFromURL(ctx context.Context, raw string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, errors.New("redis url required")
	}
	o, err := redis.ParseURL(raw)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(o)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return New(rdb, opts...), nil
}

// Redis exposes the underlying client so other components can share the pool.
func (s *Store) Redis() *redis.Client { return s.rdb }

func (s *Store) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

var _ docstore.Store = (*Store)(nil)

func docKey(collection, id string) string { return "doc:" + collection + ":" + strings.TrimSpace(id) }
func idsKey(collection string) string     { return "doc:" + collection + ":_ids" }
func docChan(collection, id string) string {
	return "docch:" + collection + ":" + strings.TrimSpace(id)
}
func collChan(collection string) string { return "docch:" + collection }

func (s *Store) Create(ctx context.Context, collection, key string, fields docstore.Fields) (*docstore.Document, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("create %s: document key required", collection)
	}
	f, err := docstore.Normalize(fields)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}
	ok, err := s.rdb.SetNX(ctx, docKey(collection, key), raw, s.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("create %s/%s: %w", collection, key, err)
	}
	if !ok {
		return nil, fmt.Errorf("create %s/%s: document already exists", collection, key)
	}
	if err := s.rdb.SAdd(ctx, idsKey(collection), key).Err(); err != nil {
		// an unindexed document would never be found by Query
		if delErr := s.rdb.Del(context.WithoutCancel(ctx), docKey(collection, key)).Err(); delErr != nil {
			obslog.L().Error("redisstore_create_rollback_error", zap.String("collection", collection), zap.String("key", key), zap.Error(delErr))
		}
		return nil, fmt.Errorf("index %s/%s: %w", collection, key, err)
	}
	doc := &docstore.Document{ID: key, Fields: f}
	s.publish(ctx, collection, doc)
	return doc, nil
}

func (s *Store) Get(ctx context.Context, collection, id string) (*docstore.Document, error) {
	raw, err := s.rdb.Get(ctx, docKey(collection, id)).Bytes()
	if err == redis.Nil {
		return nil, docstore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return decode(id, raw)
}

func (s *Store) Query(ctx context.Context, collection string, preds ...docstore.Predicate) ([]*docstore.Document, error) {
	ids, err := s.rdb.SMembers(ctx, idsKey(collection)).Result()
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	if len(ids) == 0 {
		return []*docstore.Document{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = docKey(collection, id)
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	out := make([]*docstore.Document, 0)
	var stale []any
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			// expired document, drop it from the index
			stale = append(stale, ids[i])
			continue
		}
		doc, err := decode(ids[i], []byte(str))
		if err != nil {
			obslog.L().Warn("docstore_decode_error", zap.String("collection", collection), zap.String("id", ids[i]), zap.Error(err))
			continue
		}
		if docstore.Matches(doc.Fields, preds...) {
			out = append(out, doc)
		}
	}
	if len(stale) > 0 {
		_ = s.rdb.SRem(ctx, idsKey(collection), stale...).Err()
	}
	return out, nil
}

// Update merges fields inside a WATCH transaction, so concurrent writers to the
// same document never lose each other's untouched fields. Writers touching the
// same field still race with last-write-wins.
func (s *Store) Update(ctx context.Context, collection, id string, fields docstore.Fields) (*docstore.Document, error) {
	patch, err := docstore.Normalize(fields)
	if err != nil {
		return nil, err
	}
	key := docKey(collection, id)
	var merged *docstore.Document

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return docstore.ErrNotFound
		}
		if err != nil {
			return err
		}
		cur, err := decode(id, raw)
		if err != nil {
			return err
		}
		docstore.Merge(cur.Fields, patch)
		newRaw, err := json.Marshal(cur.Fields)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, newRaw, s.ttl)
			return nil
		})
		if err != nil {
			return err
		}
		merged = cur
		return nil
	}

	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err = s.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		break
	}
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	s.publish(ctx, collection, merged)
	return merged, nil
}

func (s *Store) Subscribe(ctx context.Context, collection, id string, fn func(*docstore.Document)) (func(), error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("subscribe %s: empty document id", collection)
	}
	return s.subscribe(ctx, docChan(collection, id), fn)
}

func (s *Store) SubscribeAll(ctx context.Context, collection string, fn func(*docstore.Document)) (func(), error) {
	return s.subscribe(ctx, collChan(collection), fn)
}

func (s *Store) subscribe(ctx context.Context, channel string, fn func(*docstore.Document)) (func(), error) {
	if fn == nil {
		return nil, fmt.Errorf("subscribe %s: nil callback", channel)
	}
	ps := s.rdb.Subscribe(ctx, channel)
	// wait for the subscription confirmation so no publish after return is missed
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	c := docstore.NewCoalescer(fn)
	go c.Run(subCtx)
	go func() {
		ch := ps.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var doc docstore.Document
				if err := json.Unmarshal([]byte(msg.Payload), &doc); err != nil {
					obslog.L().Warn("docstore_payload_error", zap.String("channel", channel), zap.Error(err))
					continue
				}
				c.Offer(&doc)
			}
		}
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			c.Stop()
			cancel()
			_ = ps.Close()
		})
	}
	go func() {
		select {
		case <-subCtx.Done():
		case <-c.Done():
		}
		stop()
	}()
	return stop, nil
}

func (s *Store) publish(ctx context.Context, collection string, doc *docstore.Document) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return
	}
	pipe := s.rdb.Pipeline()
	pipe.Publish(ctx, docChan(collection, doc.ID), raw)
	pipe.Publish(ctx, collChan(collection), raw)
	if _, err := pipe.Exec(ctx); err != nil {
		obslog.L().Warn("docstore_publish_error", zap.String("collection", collection), zap.String("id", doc.ID), zap.Error(err))
	}
}

func decode(id string, raw []byte) (*docstore.Document, error) {
	var f docstore.Fields
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decode %s: %w", id, err)
	}
	if f == nil {
		f = docstore.Fields{}
	}
	return &docstore.Document{ID: id, Fields: f}, nil
}
