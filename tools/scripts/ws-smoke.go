// Package main provides a CI-friendly WebSocket smoke test for the Vroom
// messaging gateway.
//
// It validates:
//   - handshake with identity query param
//   - send -> sender echo
//   - fanout of the same persisted message to the receiver
//   - message-level error frame without connection teardown
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	v1 "vroom/shared/contracts/chat/v1"

	"github.com/coder/websocket"
)

const maxReadBytes = 1 << 20 // 1MiB

type smokeClient struct {
	name   string
	userID string
	conn   *websocket.Conn

	inbox chan v1.Frame
	errCh chan error
}

func main() {
	var (
		wsURL   = flag.String("url", "ws://127.0.0.1:8080/ws", "WebSocket URL")
		origin  = flag.String("origin", "http://localhost", "Origin header to send (browser-like WS handshake)")
		userA   = flag.String("user-a", "smoke-user-a", "Sender user id")
		userB   = flag.String("user-b", "smoke-user-b", "Receiver user id")
		text    = flag.String("text", "hello vroom 👋", "Message text to send")
		timeout = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if err := validateWSURL(*wsURL); err != nil {
		fatalf("invalid -url: %v", err)
	}
	if err := validateOrigin(*origin); err != nil {
		fatalf("invalid -origin: %v", err)
	}
	if *userA == *userB {
		fatalf("-user-a and -user-b must differ")
	}

	root := context.Background()

	a := mustConnect(root, "A", *wsURL, *origin, *userA, *timeout)
	defer closeWS(a.conn)

	b := mustConnect(root, "B", *wsURL, *origin, *userB, *timeout)
	defer closeWS(b.conn)

	if *verbose {
		fmt.Printf("connected: A=%s B=%s origin=%q\n", a.userID, b.userID, *origin)
	}

	mustSend(root, a, v1.SendFrame{ReceiverID: b.userID, Content: *text}, *timeout)

	echo := mustMessageFrame(root, a, *timeout)
	fanout := mustMessageFrame(root, b, *timeout)

	if echo.Data.ID != fanout.Data.ID {
		fatalf("echo/fanout id mismatch: echo=%q fanout=%q", echo.Data.ID, fanout.Data.ID)
	}
	if echo.Data.Content != *text {
		fatalf("echo content mismatch: got=%q want=%q", echo.Data.Content, *text)
	}
	if echo.Data.SenderID != a.userID || echo.Data.ReceiverID != b.userID {
		fatalf("echo participants mismatch: sender=%q receiver=%q", echo.Data.SenderID, echo.Data.ReceiverID)
	}
	if echo.Conversation == nil || echo.Conversation.ID != echo.Data.ConversationID {
		fatalf("echo conversation mismatch")
	}
	if echo.Data.CreatedAt.IsZero() {
		fatalf("echo createdAt missing/zero")
	}

	convID := echo.Data.ConversationID

	// A second send between the same pair must reuse the conversation.
	mustSend(root, a, v1.SendFrame{ReceiverID: b.userID, Content: *text}, *timeout)
	echo2 := mustMessageFrame(root, a, *timeout)
	_ = mustMessageFrame(root, b, *timeout)
	if echo2.Data.ConversationID != convID {
		fatalf("conversation not reused: first=%q second=%q", convID, echo2.Data.ConversationID)
	}

	// A self-addressed send must produce an error frame on A only, and the
	// connection must stay usable afterwards.
	mustSend(root, a, v1.SendFrame{ReceiverID: a.userID, Content: *text}, *timeout)
	mustErrorFrame(root, a, *timeout)
	mustAssertQuiet(root, b, 750*time.Millisecond)

	mustSend(root, a, v1.SendFrame{ReceiverID: b.userID, Content: *text}, *timeout)
	echo3 := mustMessageFrame(root, a, *timeout)
	_ = mustMessageFrame(root, b, *timeout)
	if echo3.Data.ConversationID != convID {
		fatalf("conversation changed after error frame: %q", echo3.Data.ConversationID)
	}

	fmt.Printf("OK: A=%s B=%s conversation=%s\n", a.userID, b.userID, convID)
}

func validateWSURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	if strings.TrimSpace(u.Path) == "" {
		return errors.New("missing path")
	}
	return nil
}

func validateOrigin(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("origin must be http/https, got: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("origin missing host")
	}
	return nil
}

func mustConnect(parent context.Context, name, wsURL, origin, userID string, stepTimeout time.Duration) *smokeClient {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	u, err := url.Parse(wsURL)
	if err != nil {
		fatalf("parse url: %v", err)
	}
	q := u.Query()
	q.Set("userId", userID)
	u.RawQuery = q.Encode()

	h := http.Header{}
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}

	conn, resp, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{
		HTTPHeader: h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		fatalf("connect %s: %v", name, err)
	}

	conn.SetReadLimit(maxReadBytes)

	c := &smokeClient{
		name:   name,
		userID: userID,
		conn:   conn,
		inbox:  make(chan v1.Frame, 512),
		errCh:  make(chan error, 1),
	}
	c.startReadLoop()
	return c
}

func (c *smokeClient) startReadLoop() {
	go func() {
		defer close(c.inbox)

		for {
			mt, data, err := c.conn.Read(context.Background())
			if err != nil {
				select {
				case c.errCh <- err:
				default:
				}
				return
			}

			if mt != websocket.MessageText && mt != websocket.MessageBinary {
				select {
				case c.errCh <- fmt.Errorf("unsupported message type: %v", mt):
				default:
				}
				return
			}

			var f v1.Frame
			if err := json.Unmarshal(data, &f); err != nil {
				select {
				case c.errCh <- fmt.Errorf("bad json: %w", err):
				default:
				}
				return
			}
			if err := f.Validate(); err != nil {
				select {
				case c.errCh <- fmt.Errorf("bad frame: %w", err):
				default:
				}
				return
			}

			select {
			case c.inbox <- f:
			default:
				select {
				case c.errCh <- errors.New("inbox overflow: consumer too slow"):
				default:
				}
				return
			}
		}
	}()
}

func mustSend(parent context.Context, c *smokeClient, f v1.SendFrame, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	b, err := json.Marshal(f)
	if err != nil {
		fatalf("marshal send frame: %v", err)
	}
	if err := c.conn.Write(ctx, websocket.MessageText, b); err != nil {
		fatalf("write failed (%s): %v", c.name, err)
	}
}

func mustMessageFrame(parent context.Context, c *smokeClient, stepTimeout time.Duration) v1.Frame {
	f := c.mustReadFrame(parent, stepTimeout)
	if f.Type == v1.TypeError {
		fatalf("server error (%s): %q", c.name, f.Message)
	}
	if f.Type != v1.TypeMessage || f.Data == nil {
		fatalf("unexpected frame (%s): type=%q", c.name, f.Type)
	}
	return f
}

func mustErrorFrame(parent context.Context, c *smokeClient, stepTimeout time.Duration) {
	f := c.mustReadFrame(parent, stepTimeout)
	if f.Type != v1.TypeError {
		fatalf("expected error frame (%s), got type=%q", c.name, f.Type)
	}
	if strings.TrimSpace(f.Message) == "" {
		fatalf("error frame missing message (%s)", c.name)
	}
}

func (c *smokeClient) mustReadFrame(parent context.Context, stepTimeout time.Duration) v1.Frame {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	select {
	case <-ctx.Done():
		fatalf("timeout waiting for frame (%s): %v", c.name, ctx.Err())
	case err := <-c.errCh:
		fatalf("connection error (%s): %v", c.name, err)
	case f, ok := <-c.inbox:
		if !ok {
			fatalf("connection closed (%s)", c.name)
		}
		return f
	}
	panic("unreachable")
}

func mustAssertQuiet(parent context.Context, c *smokeClient, wait time.Duration) {
	ctx, cancel := context.WithTimeout(parent, wait)
	defer cancel()

	select {
	case <-ctx.Done():
		return
	case err := <-c.errCh:
		fatalf("connection closed unexpectedly (%s): %v", c.name, err)
	case f, ok := <-c.inbox:
		if !ok {
			fatalf("connection closed unexpectedly (%s)", c.name)
		}
		fatalf("unexpected frame received (%s): type=%q", c.name, f.Type)
	}
}

func closeWS(conn *websocket.Conn) {
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
