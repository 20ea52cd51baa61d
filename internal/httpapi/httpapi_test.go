package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/park285/cheese-rooms/internal/docstore"
	"github.com/park285/cheese-rooms/internal/docstore/memstore"
	"github.com/park285/cheese-rooms/internal/msgcat"
	"github.com/park285/cheese-rooms/internal/room"
	"github.com/park285/cheese-rooms/internal/session"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

func newTestServer(t *testing.T, opts ...Option) *httptest.Server {
	t.Helper()
	cat, err := msgcat.New("")
	if err != nil {
		t.Fatalf("msgcat: %v", err)
	}
	srv := New(":0", room.New(memstore.New()), cat, opts...)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, method, url string, body any, header map[string]string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return v
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("%s %s: status %d, want %d", resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, want)
	}
}

func createRoom(t *testing.T, ts *httptest.Server, body any) RoomRef {
	t.Helper()
	resp := do(t, http.MethodPost, ts.URL+"/rooms", body, nil)
	expectStatus(t, resp, http.StatusCreated)
	return decodeBody[RoomRef](t, resp)
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	resp := do(t, http.MethodGet, ts.URL+"/healthz", nil, nil)
	expectStatus(t, resp, http.StatusOK)
}

func TestCreateJoinRead(t *testing.T) {
	ts := newTestServer(t)
	ref := createRoom(t, ts, CreateRequest{Nickname: "alice"})
	if ref.RoomID == "" || ref.DocID == "" {
		t.Fatalf("create returned %+v", ref)
	}

	resp := do(t, http.MethodPost, ts.URL+"/rooms/"+ref.RoomID+"/join", JoinRequest{Nickname: "bobby"}, nil)
	expectStatus(t, resp, http.StatusOK)
	if got := decodeBody[RoomRef](t, resp); got != ref {
		t.Fatalf("join returned %+v, want %+v", got, ref)
	}

	resp = do(t, http.MethodGet, ts.URL+"/rooms/"+ref.RoomID, nil, nil)
	expectStatus(t, resp, http.StatusOK)
	rm := decodeBody[room.Room](t, resp)
	if rm.HostUser != "alice" || rm.GuestUser != "bobby" || rm.DocID != ref.DocID {
		t.Fatalf("snapshot = %+v", rm)
	}
	if !rm.HostHasWhite || !rm.WithClock || rm.WhiteTicks != 3000 {
		t.Fatalf("default settings not applied: %+v", rm)
	}
}

func TestCreateWithSettings(t *testing.T) {
	ts := newTestServer(t)
	ref := createRoom(t, ts, map[string]any{
		"nickname": "alice",
		"settings": map[string]any{"hostHasWhite": false, "useClock": false},
	})
	resp := do(t, http.MethodGet, ts.URL+"/rooms/"+ref.RoomID+"?docId="+ref.DocID, nil, nil)
	expectStatus(t, resp, http.StatusOK)
	rm := decodeBody[room.Room](t, resp)
	if rm.HostHasWhite || rm.WithClock {
		t.Fatalf("settings ignored: %+v", rm)
	}
}

func TestErrorsAreLocalized(t *testing.T) {
	ts := newTestServer(t)
	fr := map[string]string{"Accept-Language": "fr-FR,fr;q=0.9"}

	resp := do(t, http.MethodPost, ts.URL+"/rooms", CreateRequest{Nickname: " ab "}, fr)
	expectStatus(t, resp, http.StatusBadRequest)
	body := decodeBody[ErrorBody](t, resp)
	want := ErrorBody{
		Kind:    "tooShortNickname",
		Key:     "pages.createRoom.errors.tooShortNickname",
		Message: "Le pseudo doit contenir au moins 4 caractères !",
	}
	if body != want {
		t.Fatalf("body = %+v", body)
	}

	resp = do(t, http.MethodPost, ts.URL+"/rooms/424242/join", JoinRequest{Nickname: "bobby"}, nil)
	expectStatus(t, resp, http.StatusNotFound)
	body = decodeBody[ErrorBody](t, resp)
	if body.Kind != "noMatchingRoom" || body.Fatal || body.Message != "No room matches this ID !" {
		t.Fatalf("body = %+v", body)
	}
}

func TestJoinFilledRoomConflicts(t *testing.T) {
	ts := newTestServer(t)
	ref := createRoom(t, ts, CreateRequest{Nickname: "alice"})
	expectStatus(t, do(t, http.MethodPost, ts.URL+"/rooms/"+ref.RoomID+"/join", JoinRequest{Nickname: "bobby"}, nil), http.StatusOK)

	resp := do(t, http.MethodPost, ts.URL+"/rooms/"+ref.RoomID+"/join", JoinRequest{Nickname: "carol"}, nil)
	expectStatus(t, resp, http.StatusConflict)
	if body := decodeBody[ErrorBody](t, resp); body.Key != "pages.joinRoom.errors.alreadyFilledRoom" {
		t.Fatalf("body = %+v", body)
	}
}

func TestMalformedBody(t *testing.T) {
	ts := newTestServer(t)
	resp := do(t, http.MethodPost, ts.URL+"/rooms", "{nope", nil)
	expectStatus(t, resp, http.StatusBadRequest)
	if body := decodeBody[ErrorBody](t, resp); body.Kind != kindBadRequest || body.Message != "The request could not be read !" {
		t.Fatalf("body = %+v", body)
	}
}

func TestPatchMove(t *testing.T) {
	ts := newTestServer(t)
	ref := createRoom(t, ts, CreateRequest{Nickname: "alice"})
	started := true

	resp := do(t, http.MethodPatch, ts.URL+"/rooms/"+ref.RoomID, PatchRequest{Move: "e2e4", GameStarted: &started}, nil)
	expectStatus(t, resp, http.StatusNoContent)

	resp = do(t, http.MethodGet, ts.URL+"/rooms/"+ref.RoomID, nil, nil)
	rm := decodeBody[room.Room](t, resp)
	if !strings.HasPrefix(rm.CurrentPosition, "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b") {
		t.Fatalf("position = %q", rm.CurrentPosition)
	}
	if len(rm.History) != 1 || rm.History[0].SAN != "e4" || rm.LastMoveFrom != "e2" || rm.LastMoveTo != "e4" {
		t.Fatalf("history = %+v from=%s to=%s", rm.History, rm.LastMoveFrom, rm.LastMoveTo)
	}
	if !rm.GameStarted || rm.WhiteClockRunning {
		t.Fatalf("started=%v whiteRunning=%v", rm.GameStarted, rm.WhiteClockRunning)
	}

	resp = do(t, http.MethodPatch, ts.URL+"/rooms/"+ref.RoomID, PatchRequest{Move: "e2e4"}, nil)
	expectStatus(t, resp, http.StatusBadRequest)
	if body := decodeBody[ErrorBody](t, resp); body.Kind != kindIllegalMove || body.Key != keyIllegalMove {
		t.Fatalf("body = %+v", body)
	}
}

func TestPatchFieldsAndOutcome(t *testing.T) {
	ts := newTestServer(t)
	ref := createRoom(t, ts, CreateRequest{Nickname: "alice"})

	resp := do(t, http.MethodPatch, ts.URL+"/rooms/"+ref.RoomID, PatchRequest{
		Clock:   &ClockBody{WhiteTicks: 10, BlackTicks: 0, WhiteClockRunning: false},
		Outcome: &OutcomeBody{Result: "1-0", Method: "timeout"},
		Fields:  map[string]any{"drawOffer": "guest"},
	}, nil)
	expectStatus(t, resp, http.StatusNoContent)

	rm := decodeBody[room.Room](t, do(t, http.MethodGet, ts.URL+"/rooms/"+ref.RoomID, nil, nil))
	if rm.Outcome != "1-0" || rm.OutcomeMethod != "timeout" || rm.WhiteTicks != 10 || rm.BlackTicks != 0 {
		t.Fatalf("snapshot = %+v", rm)
	}
	if rm.Extra["drawOffer"] != "guest" || rm.HostUser != "alice" {
		t.Fatalf("partial update lost fields: %+v", rm)
	}
}

func TestPatchRefusesRoomFields(t *testing.T) {
	ts := newTestServer(t)
	ref := createRoom(t, ts, CreateRequest{Nickname: "alice"})

	resp := do(t, http.MethodPatch, ts.URL+"/rooms/"+ref.RoomID, PatchRequest{Fields: map[string]any{"guestUser": "mallory"}}, nil)
	expectStatus(t, resp, http.StatusBadRequest)
	body := decodeBody[ErrorBody](t, resp)
	if body.Kind != "invalidUpdate" || body.Fatal || body.Key != "pages.game.errors.invalidUpdate" || body.Message != "This change is not allowed !" {
		t.Fatalf("body = %+v", body)
	}

	resp = do(t, http.MethodPost, ts.URL+"/rooms/"+ref.RoomID+"/join", JoinRequest{Nickname: "bobby"}, nil)
	expectStatus(t, resp, http.StatusOK)
}

func TestPatchUnknownRoomIsFatal(t *testing.T) {
	ts := newTestServer(t)
	resp := do(t, http.MethodPatch, ts.URL+"/rooms/999", PatchRequest{Fields: map[string]any{"x": 1}}, nil)
	expectStatus(t, resp, http.StatusInternalServerError)
	body := decodeBody[ErrorBody](t, resp)
	if body.Kind != "failedUpdatingRoom" || !body.Fatal || body.Key != "pages.game.errors.failedUpdatingRoom" {
		t.Fatalf("body = %+v", body)
	}
}

func TestStatusForStoreFailure(t *testing.T) {
	e := &room.Error{Op: room.OpRead, Kind: room.KindFailedReadingRoom, Fatal: true, Err: errors.New("dial tcp: refused")}
	if got := statusFor(e); got != http.StatusBadGateway {
		t.Fatalf("status = %d", got)
	}
	e.Err = docstore.ErrNotFound
	if got := statusFor(e); got != http.StatusInternalServerError {
		t.Fatalf("status = %d", got)
	}
	if got := statusFor(&room.Error{Kind: room.KindEmptyRoomID}); got != http.StatusBadRequest {
		t.Fatalf("status = %d", got)
	}
}

func TestTabSessionRecordsRoom(t *testing.T) {
	tabs := session.MemoryTabs()
	ts := newTestServer(t, WithTabs(tabs))
	ctx := context.Background()

	resp := do(t, http.MethodPost, ts.URL+"/rooms", CreateRequest{Nickname: "alice"}, map[string]string{TabHeader: "host-tab"})
	expectStatus(t, resp, http.StatusCreated)
	ref := decodeBody[RoomRef](t, resp)

	host := session.DefaultRoomState()
	if err := host.Load(ctx, tabs("host-tab")); err != nil {
		t.Fatalf("load: %v", err)
	}
	if host.RoomID != ref.RoomID || host.DocID != ref.DocID || !host.RoomOwner {
		t.Fatalf("host state = %+v", host)
	}

	resp = do(t, http.MethodPost, ts.URL+"/rooms/"+ref.RoomID+"/join", JoinRequest{Nickname: "bobby"}, nil)
	expectStatus(t, resp, http.StatusOK)
	guestTab := resp.Header.Get(TabHeader)
	if guestTab == "" {
		t.Fatalf("no tab id minted")
	}
	guest := session.DefaultRoomState()
	if err := guest.Load(ctx, tabs(guestTab)); err != nil {
		t.Fatalf("load: %v", err)
	}
	if guest.DocID != ref.DocID || guest.RoomOwner {
		t.Fatalf("guest state = %+v", guest)
	}
}

func TestStreamDeliversLatestSnapshot(t *testing.T) {
	ts := newTestServer(t)
	ref := createRoom(t, ts, CreateRequest{Nickname: "alice"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/rooms/" + ref.RoomID + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	var first room.Room
	if err := wsjson.Read(ctx, conn, &first); err != nil {
		t.Fatalf("read initial: %v", err)
	}
	if first.RoomID != ref.RoomID || first.GuestUser != "" {
		t.Fatalf("initial = %+v", first)
	}

	expectStatus(t, do(t, http.MethodPost, ts.URL+"/rooms/"+ref.RoomID+"/join", JoinRequest{Nickname: "bobby"}, nil), http.StatusOK)
	for {
		var snap room.Room
		if err := wsjson.Read(ctx, conn, &snap); err != nil {
			t.Fatalf("read update: %v", err)
		}
		if snap.GuestUser == "bobby" {
			break
		}
	}
	_ = conn.Close(websocket.StatusNormalClosure, "")
}

func TestStreamUnknownRoom(t *testing.T) {
	ts := newTestServer(t)
	resp := do(t, http.MethodGet, ts.URL+"/rooms/31337/ws", nil, nil)
	expectStatus(t, resp, http.StatusInternalServerError)
	if body := decodeBody[ErrorBody](t, resp); body.Kind != "failedSubscribingRoom" {
		t.Fatalf("body = %+v", body)
	}
}
