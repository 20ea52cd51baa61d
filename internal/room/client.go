// Package room pairs two players through a shared room document: the host
// creates it, a guest joins it, and both then broadcast the game through
// partial updates and read or subscribe to each other's changes.
//
// Validation failures come back before any store call. Store failures are
// logged here with their cause and surface as a fatal *Error.
package room

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/park285/cheese-rooms/internal/chessgame"
	"github.com/park285/cheese-rooms/internal/docstore"
	"github.com/park285/cheese-rooms/internal/obslog"
	"github.com/park285/cheese-rooms/internal/roomid"
	"github.com/park285/cheese-rooms/internal/session"
	"go.uber.org/zap"
)

// MinNicknameLength is the shortest accepted nickname, in characters.
const MinNicknameLength = 4

const DefaultCollection = "rooms"

var errNoRef = errors.New("room reference has neither document id nor room id")

// Archive receives finished games.
type Archive interface {
	SaveRoom(ctx context.Context, r *Room) error
}

type Client struct {
	store      docstore.Store
	collection string
	newID      func() string
	origin     string
	now        func() time.Time

	mu      sync.RWMutex
	archive Archive
}

type Option func(*Client)

func WithCollection(name string) Option {
	return func(c *Client) {
		if strings.TrimSpace(name) != "" {
			c.collection = strings.TrimSpace(name)
		}
	}
}

// WithIDGenerator replaces the room code generator.
func WithIDGenerator(gen func() string) Option { return func(c *Client) { c.newID = gen } }

// WithDefaultOrigin tags every created room unless CreateRoom overrides it.
func WithDefaultOrigin(tag string) Option { return func(c *Client) { c.origin = tag } }

func WithClock(now func() time.Time) Option { return func(c *Client) { c.now = now } }

func New(store docstore.Store, opts ...Option) *Client {
	c := &Client{
		store:      store,
		collection: DefaultCollection,
		newID:      roomid.Generate,
		now:        time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// AttachArchive wires a sink for finished games.
func (c *Client) AttachArchive(a Archive) {
	if c != nil {
		c.mu.Lock()
		c.archive = a
		c.mu.Unlock()
	}
}

// Ref addresses a room by its cached document id or, failing that, its room code.
type Ref struct {
	RoomID string
	DocID  string
}

func ByRoomID(id string) Ref { return Ref{RoomID: id} }

// Handle is what CreateRoom hands back for the caller to remember.
type Handle struct {
	RoomID string
	DocID  string
	Room   *Room
}

func (h *Handle) Ref() Ref { return Ref{RoomID: h.RoomID, DocID: h.DocID} }

// Remember records the new room in the host's session state.
func (h *Handle) Remember(local *session.RoomState) {
	local.SetRoomID(h.RoomID)
	local.SetDocID(h.DocID)
	local.SetRoomOwner(true)
	if h.Room != nil {
		local.StartPosition = h.Room.StartPosition
	}
}

type createConfig struct {
	startPosition string
	origin        *string
	settings      *session.NewGameState
}

type CreateOption func(*createConfig)

// WithStartPosition sets the FEN the game starts from.
func WithStartPosition(fen string) CreateOption {
	return func(cc *createConfig) { cc.startPosition = strings.TrimSpace(fen) }
}

func WithOrigin(tag string) CreateOption { return func(cc *createConfig) { cc.origin = &tag } }

// WithGameSettings copies the host's pending game configuration into the room.
// Its start position is used unless WithStartPosition is also given.
func WithGameSettings(n *session.NewGameState) CreateOption {
	return func(cc *createConfig) { cc.settings = n }
}

func validateNickname(op, nickname string) (string, error) {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return "", newError(op, KindEmptyNickname, nil)
	}
	if utf8.RuneCountInString(nickname) < MinNicknameLength {
		return "", newError(op, KindTooShortNickname, nil)
	}
	return nickname, nil
}

// CreateRoom writes a new room hosted by nickname.
func (c *Client) CreateRoom(ctx context.Context, nickname string, opts ...CreateOption) (*Handle, error) {
	nickname, err := validateNickname(OpCreate, nickname)
	if err != nil {
		return nil, err
	}
	var cc createConfig
	for _, o := range opts {
		o(&cc)
	}

	settings := session.DefaultNewGameState()
	if cc.settings != nil {
		s := *cc.settings
		settings = &s
	}
	if cc.startPosition != "" {
		settings.StartPosition = cc.startPosition
	}
	if settings.StartPosition == "" {
		settings.StartPosition = chessgame.StartFEN
	}
	if err := chessgame.ValidateFEN(settings.StartPosition); err != nil {
		return nil, newError(OpCreate, KindInvalidStartPosition, err)
	}
	if err := settings.Confirm(); err != nil {
		return nil, newError(OpCreate, KindInvalidGameSettings, err)
	}

	origin := c.origin
	if cc.origin != nil {
		origin = *cc.origin
	}

	id := c.newID()
	fields := docstore.Fields{
		"roomId":           id,
		"hostUser":         nickname,
		"startPosition":    settings.StartPosition,
		"currentPosition":  settings.StartPosition,
		"hostHasWhite":     settings.HostHasWhite,
		"withClock":        settings.UseClock,
		"startTimeMinutes": settings.StartTimeMinutes,
		"startTimeSeconds": settings.StartTimeSeconds,
		"increment":        settings.Increment,
		"gameStarted":      false,
		"createdAt":        c.now().UTC(),
	}
	if settings.UseClock {
		clk := chessgame.NewClock(settings.StartTimeMinutes, settings.StartTimeSeconds, settings.Increment)
		fields["whiteTicks"] = clk.WhiteTicks
		fields["blackTicks"] = clk.BlackTicks
		fields["whiteClockRunning"] = chessgame.WhiteToMove(settings.StartPosition)
	}
	if origin != "" {
		fields["origin"] = origin
	}

	doc, err := c.store.Create(ctx, c.collection, id, fields)
	if err != nil {
		obslog.L().Error("room_create_error", zap.String("room_id", id), zap.String("host", nickname), zap.Error(err))
		return nil, newError(OpCreate, KindFailedCreatingRoom, err)
	}
	r, err := decode(doc)
	if err != nil {
		obslog.L().Error("room_create_error", zap.String("room_id", id), zap.Error(err))
		return nil, newError(OpCreate, KindFailedCreatingRoom, err)
	}
	obslog.L().Info("room_create", zap.String("room_id", id), zap.String("doc_id", doc.ID), zap.String("host", nickname))
	return &Handle{RoomID: id, DocID: doc.ID, Room: r}, nil
}

// JoinRoom takes the guest seat of roomID and records the room's document id
// in local. The filled check and the write are not atomic: two guests racing
// on the same room can both pass the check and the later write wins.
func (c *Client) JoinRoom(ctx context.Context, local *session.RoomState, nickname, roomID string) error {
	nickname, err := validateNickname(OpJoin, nickname)
	if err != nil {
		return err
	}
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return newError(OpJoin, KindEmptyRoomID, nil)
	}

	docs, err := c.store.Query(ctx, c.collection, docstore.Equal("roomId", roomID))
	if err != nil {
		obslog.L().Error("room_join_error", zap.String("room_id", roomID), zap.String("step", "query"), zap.Error(err))
		return newError(OpJoin, KindFailedJoiningRoom, err)
	}
	if len(docs) == 0 {
		return newError(OpJoin, KindNoMatchingRoom, nil)
	}
	if len(docs) > 1 {
		obslog.L().Warn("room_join_duplicate_code", zap.String("room_id", roomID), zap.Int("count", len(docs)))
	}
	r, err := decode(docs[0])
	if err != nil {
		obslog.L().Error("room_join_error", zap.String("room_id", roomID), zap.String("step", "decode"), zap.Error(err))
		return newError(OpJoin, KindFailedJoiningRoom, err)
	}
	if r.GuestUser != "" {
		return newError(OpJoin, KindAlreadyFilledRoom, nil)
	}

	if _, err := c.store.Update(ctx, c.collection, r.DocID, docstore.Fields{"guestUser": nickname}); err != nil {
		obslog.L().Error("room_join_error", zap.String("room_id", roomID), zap.String("step", "update"), zap.Error(err))
		return newError(OpJoin, KindFailedJoiningRoom, err)
	}
	if local != nil {
		local.SetRoomID(roomID)
		local.SetDocID(r.DocID)
		local.StartPosition = r.StartPosition
	}
	obslog.L().Info("room_join", zap.String("room_id", roomID), zap.String("doc_id", r.DocID), zap.String("guest", nickname))
	return nil
}

// resolve returns the document id of ref, querying by room code when needed.
func (c *Client) resolve(ctx context.Context, ref Ref) (string, error) {
	if id := strings.TrimSpace(ref.DocID); id != "" {
		return id, nil
	}
	roomID := strings.TrimSpace(ref.RoomID)
	if roomID == "" {
		return "", errNoRef
	}
	docs, err := c.store.Query(ctx, c.collection, docstore.Equal("roomId", roomID))
	if err != nil {
		return "", err
	}
	if len(docs) == 0 {
		return "", docstore.ErrNotFound
	}
	return docs[0].ID, nil
}

// UpdateRoom merges updates into the room. Fields not named by any update are
// left as they are. Concurrent writers to the same field race, last write wins.
// A Fields update naming a room field fails with KindInvalidUpdate before any
// store call.
func (c *Client) UpdateRoom(ctx context.Context, ref Ref, updates ...Update) error {
	if err := validateUpdates(updates); err != nil {
		return newError(OpUpdate, KindInvalidUpdate, err)
	}
	docID, err := c.resolve(ctx, ref)
	if err != nil {
		return c.updateFailed(ref, docID, "resolve", err)
	}

	var cur *Room
	if needsSnapshot(updates) {
		doc, err := c.store.Get(ctx, c.collection, docID)
		if err != nil {
			return c.updateFailed(ref, docID, "read", err)
		}
		if cur, err = decode(doc); err != nil {
			return c.updateFailed(ref, docID, "decode", err)
		}
	}

	patch := mergePatches(cur, updates)
	if len(patch) == 0 {
		return nil
	}
	doc, err := c.store.Update(ctx, c.collection, docID, patch)
	if err != nil {
		return c.updateFailed(ref, docID, "write", err)
	}
	obslog.L().Debug("room_update", zap.String("doc_id", docID), zap.Int("fields", len(patch)))

	if o, ok := finalOutcome(updates); ok {
		c.archiveFinished(ctx, doc, o)
	}
	return nil
}

func (c *Client) updateFailed(ref Ref, docID, step string, err error) error {
	if errors.Is(err, docstore.ErrNotFound) || errors.Is(err, errNoRef) {
		// callers only hold refs obtained from create or join
		obslog.L().Error("room_update_unexpected_missing", zap.String("room_id", ref.RoomID), zap.String("doc_id", docID), zap.String("step", step), zap.Error(err))
	} else {
		obslog.L().Error("room_update_error", zap.String("room_id", ref.RoomID), zap.String("doc_id", docID), zap.String("step", step), zap.Error(err))
	}
	return newError(OpUpdate, KindFailedUpdatingRoom, err)
}

func (c *Client) archiveFinished(ctx context.Context, doc *docstore.Document, o OutcomeUpdate) {
	c.mu.RLock()
	a := c.archive
	c.mu.RUnlock()
	if a == nil {
		return
	}
	r, err := decode(doc)
	if err != nil {
		obslog.L().Error("room_archive_error", zap.String("doc_id", doc.ID), zap.Error(err))
		return
	}
	if err := a.SaveRoom(ctx, r); err != nil {
		obslog.L().Error("room_archive_error", zap.String("room_id", r.RoomID), zap.String("outcome", o.Result), zap.Error(err))
		return
	}
	obslog.L().Info("room_archive", zap.String("room_id", r.RoomID), zap.String("outcome", o.Result), zap.String("method", o.Method))
}

// ReadRoom fetches the current snapshot.
func (c *Client) ReadRoom(ctx context.Context, ref Ref) (*Room, error) {
	docID, err := c.resolve(ctx, ref)
	if err != nil {
		obslog.L().Error("room_read_error", zap.String("room_id", ref.RoomID), zap.String("step", "resolve"), zap.Error(err))
		return nil, newError(OpRead, KindFailedReadingRoom, err)
	}
	doc, err := c.store.Get(ctx, c.collection, docID)
	if err != nil {
		obslog.L().Error("room_read_error", zap.String("room_id", ref.RoomID), zap.String("doc_id", docID), zap.Error(err))
		return nil, newError(OpRead, KindFailedReadingRoom, err)
	}
	r, err := decode(doc)
	if err != nil {
		obslog.L().Error("room_read_error", zap.String("doc_id", docID), zap.Error(err))
		return nil, newError(OpRead, KindFailedReadingRoom, err)
	}
	return r, nil
}
