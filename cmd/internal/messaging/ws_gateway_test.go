package messaging

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	v1 "vroom/shared/contracts/chat/v1"

	"github.com/coder/websocket"
)

func newWSTestServer(t *testing.T) (*httptest.Server, *InMemoryStore, *ConnectionRegistry) {
	t.Helper()

	t.Setenv("VROOM_WS_ORIGIN_REQUIRED", "false")

	store := NewInMemoryStore()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(log, store, nil)
	conns := NewConnectionRegistry(log)
	gw := NewWSGateway(log, svc, conns, nil)

	ts := httptest.NewServer(gw)
	t.Cleanup(ts.Close)
	return ts, store, conns
}

func dialWSUser(t *testing.T, baseURL, userID string) *websocket.Conn {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(baseURL, "http")
	if userID != "" {
		wsURL += "?userId=" + userID
	}

	conn, resp, err := websocket.Dial(ctx, wsURL, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("dial %q: %v", userID, err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") })
	return conn
}

func wsSend(t *testing.T, conn *websocket.Conn, f v1.SendFrame) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	b, err := json.Marshal(f)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func wsSendRaw(t *testing.T, conn *websocket.Conn, raw string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.Write(ctx, websocket.MessageText, []byte(raw)); err != nil {
		t.Fatalf("write raw: %v", err)
	}
}

func wsReadFrame(t *testing.T, conn *websocket.Conn) v1.Frame {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var f v1.Frame
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	if err := f.Validate(); err != nil {
		t.Fatalf("invalid frame: %v", err)
	}
	return f
}

func TestWSGateway_FanoutAndEcho(t *testing.T) {
	ts, _, conns := newWSTestServer(t)

	alice := dialWSUser(t, ts.URL, "alice")
	bob := dialWSUser(t, ts.URL, "bob")

	waitForConnCount(t, conns, 2)

	wsSend(t, alice, v1.SendFrame{ReceiverID: "bob", Content: "hello bob"})

	echo := wsReadFrame(t, alice)
	fanout := wsReadFrame(t, bob)

	if echo.Type != v1.TypeMessage || fanout.Type != v1.TypeMessage {
		t.Fatalf("unexpected frame types: echo=%q fanout=%q", echo.Type, fanout.Type)
	}
	if echo.Data.ID == "" || echo.Data.ID != fanout.Data.ID {
		t.Fatalf("echo and fanout must carry the same persisted message: %q vs %q", echo.Data.ID, fanout.Data.ID)
	}
	if fanout.Data.SenderID != "alice" || fanout.Data.ReceiverID != "bob" {
		t.Fatalf("participant fields wrong: %+v", fanout.Data)
	}
	if fanout.Data.Content != "hello bob" {
		t.Fatalf("content wrong: %q", fanout.Data.Content)
	}
	if fanout.Conversation == nil || fanout.Conversation.ID != fanout.Data.ConversationID {
		t.Fatalf("conversation not attached to frame")
	}
}

func TestWSGateway_ReceiverOfflinePersistsAndEchoes(t *testing.T) {
	ts, store, conns := newWSTestServer(t)

	alice := dialWSUser(t, ts.URL, "alice")
	waitForConnCount(t, conns, 1)

	wsSend(t, alice, v1.SendFrame{ReceiverID: "bob", Content: "catch up later"})

	echo := wsReadFrame(t, alice)
	if echo.Type != v1.TypeMessage {
		t.Fatalf("expected echo frame, got %q", echo.Type)
	}

	// The offline receiver finds the message in durable history.
	msgs, err := store.ListByConversation(context.Background(), echo.Data.ConversationID, 0, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Content != "catch up later" {
		t.Fatalf("message not persisted for offline receiver: %+v", msgs)
	}
	if n, _ := store.UnreadCount(context.Background(), "bob", echo.Data.ConversationID); n != 1 {
		t.Fatalf("unread for offline receiver: got %d want 1", n)
	}
}

func TestWSGateway_ErrorFrameKeepsConnectionOpen(t *testing.T) {
	ts, _, conns := newWSTestServer(t)

	alice := dialWSUser(t, ts.URL, "alice")
	waitForConnCount(t, conns, 1)

	// Self-message is rejected with an error frame, not a close.
	wsSend(t, alice, v1.SendFrame{ReceiverID: "alice", Content: "hi me"})
	errFrame := wsReadFrame(t, alice)
	if errFrame.Type != v1.TypeError {
		t.Fatalf("expected error frame, got %q", errFrame.Type)
	}
	if errFrame.Message == "" {
		t.Fatalf("error frame missing message")
	}

	// Structurally invalid intents behave the same.
	wsSend(t, alice, v1.SendFrame{ReceiverID: "bob"})
	if f := wsReadFrame(t, alice); f.Type != v1.TypeError {
		t.Fatalf("expected error frame for missing content, got %q", f.Type)
	}

	// Malformed JSON too.
	wsSendRaw(t, alice, "{not json")
	if f := wsReadFrame(t, alice); f.Type != v1.TypeError {
		t.Fatalf("expected error frame for bad json, got %q", f.Type)
	}

	// The channel still works afterwards.
	wsSend(t, alice, v1.SendFrame{ReceiverID: "bob", Content: "still here"})
	if f := wsReadFrame(t, alice); f.Type != v1.TypeMessage {
		t.Fatalf("connection unusable after error frames: got %q", f.Type)
	}
}

func TestWSGateway_AnonymousRejected(t *testing.T) {
	ts, _, _ := newWSTestServer(t)

	conn := dialWSUser(t, ts.URL, "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, _, err := conn.Read(ctx)
	if err == nil {
		t.Fatalf("expected close for anonymous connection")
	}
	if got := websocket.CloseStatus(err); got != websocket.StatusPolicyViolation {
		t.Fatalf("close status: got %v want %v", got, websocket.StatusPolicyViolation)
	}
}

func TestWSGateway_ReplacementClosesPrevious(t *testing.T) {
	ts, _, conns := newWSTestServer(t)

	_ = dialWSUser(t, ts.URL, "alice")
	waitForConnCount(t, conns, 1)

	firstHandle, ok := conns.Lookup("alice")
	if !ok {
		t.Fatalf("first connection not registered")
	}

	second := dialWSUser(t, ts.URL, "alice")

	// The replaced handle is told to shut down; the slot belongs to the
	// replacement.
	deadline := time.Now().Add(5 * time.Second)
	for {
		cur, ok := conns.Lookup("alice")
		if ok && cur != firstHandle {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("registry still points at the replaced handle")
		}
		time.Sleep(5 * time.Millisecond)
	}

	select {
	case <-firstHandle.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("replaced handle never told to close")
	}

	// The replacement channel works end to end.
	bob := dialWSUser(t, ts.URL, "bob")
	waitForConnCount(t, conns, 2)

	wsSend(t, second, v1.SendFrame{ReceiverID: "bob", Content: "from the new connection"})
	if f := wsReadFrame(t, second); f.Type != v1.TypeMessage {
		t.Fatalf("echo on replacement: got %q", f.Type)
	}
	if f := wsReadFrame(t, bob); f.Type != v1.TypeMessage {
		t.Fatalf("fanout after replacement: got %q", f.Type)
	}
}

// waitForConnCount polls until the registry tracks want connections. The
// registry is bound during HandleWS after the handshake completes, so the
// dialer can observe a successful upgrade before registration.
func waitForConnCount(t *testing.T, conns *ConnectionRegistry, want int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if conns.Len() >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("connections never reached %d", want)
}
