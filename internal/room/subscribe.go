package room

import (
	"context"
	"errors"

	"github.com/park285/cheese-rooms/internal/docstore"
	"github.com/park285/cheese-rooms/internal/obslog"
	"go.uber.org/zap"
)

var errNilCallback = errors.New("nil callback")

// SubscribeToRoom calls onChange with the latest snapshot after every change.
// A slow callback may miss intermediate states. Stores without push support
// fail with KindFailedSubscribingRoom.
func (c *Client) SubscribeToRoom(ctx context.Context, ref Ref, onChange func(*Room)) (func(), error) {
	if onChange == nil {
		return nil, newError(OpSubscribe, KindFailedSubscribingRoom, errNilCallback)
	}
	docID, err := c.resolve(ctx, ref)
	if err != nil {
		obslog.L().Error("room_subscribe_error", zap.String("room_id", ref.RoomID), zap.String("step", "resolve"), zap.Error(err))
		return nil, newError(OpSubscribe, KindFailedSubscribingRoom, err)
	}
	unsub, err := c.store.Subscribe(ctx, c.collection, docID, decoded(onChange))
	if err != nil {
		obslog.L().Error("room_subscribe_error", zap.String("doc_id", docID), zap.Error(err))
		return nil, newError(OpSubscribe, KindFailedSubscribingRoom, err)
	}
	obslog.L().Debug("room_subscribe", zap.String("doc_id", docID))
	return unsub, nil
}

// SubscribeToAllRooms calls onEach once per changed room in the collection.
func (c *Client) SubscribeToAllRooms(ctx context.Context, onEach func(*Room)) (func(), error) {
	if onEach == nil {
		return nil, newError(OpSubscribeAll, KindFailedSubscribingRoom, errNilCallback)
	}
	unsub, err := c.store.SubscribeAll(ctx, c.collection, decoded(onEach))
	if err != nil {
		obslog.L().Error("room_subscribe_error", zap.String("collection", c.collection), zap.Error(err))
		return nil, newError(OpSubscribeAll, KindFailedSubscribingRoom, err)
	}
	return unsub, nil
}

func decoded(fn func(*Room)) func(*docstore.Document) {
	return func(doc *docstore.Document) {
		r, err := decode(doc)
		if err != nil {
			obslog.L().Warn("room_snapshot_decode_error", zap.String("doc_id", doc.ID), zap.Error(err))
			return
		}
		fn(r)
	}
}
