package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"vroom/cmd/identity"
	v1 "vroom/shared/contracts/chat/v1"

	"github.com/coder/websocket"
)

const (
	wsDefaultSendQueueSize = 256
	wsMinSendQueueSize     = 32

	wsDefaultWriteTimeout = 5 * time.Second
	wsDefaultReadIdle     = 2 * time.Minute
	wsCloseGrace          = 1 * time.Second

	wsMaxPingFailures = 3

	// Security defaults:
	// - Origin is required by default.
	// - Only localhost is allowed by default (secure-by-default for dev).
	wsDefaultOriginRequired = true
	wsDefaultAllowedOrigins = "http://localhost,http://127.0.0.1"
)

// WSGateway is the websocket entrypoint for Vroom messaging.
//
// It enforces origin policy, rate limits and heartbeats, binds the connection
// to its authenticated user in the ConnectionRegistry, and runs each inbound
// send intent through the Service before fanning the accepted message out to
// the receiver's live connection and echoing it to the sender.
type WSGateway struct {
	log     *slog.Logger
	svc     *Service
	conns   *ConnectionRegistry
	metrics *Metrics

	devInsecure    bool
	originRequired bool
	allowedOrigins []string

	// Derived for websocket.Accept origin checks.
	// Accept() authorizes same-host origins by default, but for cross-origin it requires OriginPatterns.
	originPatterns []string

	writeTimeout    time.Duration
	readIdleTimeout time.Duration
	sendQueueSize   int

	heartbeatEvery   time.Duration
	heartbeatTimeout time.Duration

	rateEvents int
	rateWindow time.Duration
}

// NewWSGateway constructs a gateway with secure defaults. metrics may be nil.
func NewWSGateway(log *slog.Logger, svc *Service, conns *ConnectionRegistry, metrics *Metrics) *WSGateway {
	if log == nil {
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	if conns == nil {
		conns = NewConnectionRegistry(log)
	}

	g := &WSGateway{log: log, svc: svc, conns: conns, metrics: metrics}

	// NOTE: InsecureSkipVerify is a dev-only knob (TLS verification). It is not an origin policy.
	g.devInsecure = envBoolWS("VROOM_WS_DEV_INSECURE", false)

	g.originRequired = envBoolWS("VROOM_WS_ORIGIN_REQUIRED", wsDefaultOriginRequired)
	g.allowedOrigins = envCSVWS("VROOM_WS_ALLOWED_ORIGINS", wsDefaultAllowedOrigins)
	g.originPatterns = deriveOriginPatternsFromAllowedOrigins(g.allowedOrigins)

	g.writeTimeout = envDurationWS("VROOM_WS_WRITE_TIMEOUT", wsDefaultWriteTimeout)
	g.readIdleTimeout = envDurationWS("VROOM_WS_READ_IDLE_TIMEOUT", wsDefaultReadIdle)

	g.sendQueueSize = envIntWS("VROOM_WS_SEND_QUEUE", wsDefaultSendQueueSize)
	if g.sendQueueSize < wsMinSendQueueSize {
		g.sendQueueSize = wsMinSendQueueSize
	}

	g.heartbeatEvery = envDurationWS("VROOM_WS_HEARTBEAT_INTERVAL", heartbeatInterval)
	g.heartbeatTimeout = envDurationWS("VROOM_WS_HEARTBEAT_TIMEOUT", heartbeatTimeout)

	g.rateEvents = envIntWS("VROOM_WS_RATE_EVENTS", rateLimitEvents)
	g.rateWindow = envDurationWS("VROOM_WS_RATE_WINDOW", rateLimitWindow)

	return g
}

// ServeHTTP adapter so it can be mounted as http.Handler.
func (g *WSGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.HandleWS(w, r)
}

// HandleWS upgrades an HTTP request to a websocket session and runs the
// realtime loop for one authenticated user.
func (g *WSGateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	if err := g.enforceOrigin(r); err != nil {
		g.log.Info("ws.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: g.originPatterns,

		// Dev-only escape hatch.
		InsecureSkipVerify: g.devInsecure,
	})
	if err != nil {
		g.log.Error("ws.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	// A channel without an authenticated identity is not admitted at all.
	principal, ok := identity.FromRequest(r)
	if !ok {
		g.log.Info("ws.reject.anonymous", "remote", r.RemoteAddr)
		_ = conn.Close(websocket.StatusPolicyViolation, "user id required")
		return
	}
	userID := principal.ID

	conn.SetReadLimit(maxFrameBytes)

	client := NewClient(userID, g.sendQueueSize)

	// Last-write-wins: a newer connection for the same user replaces the
	// tracked handle; the replaced one is told to shut down.
	if replaced := g.conns.Register(userID, client); replaced != nil {
		replaced.Close()
	}
	g.metrics.connOpened()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var closeOnce sync.Once

	// shutdown is idempotent. Unregister happens before client.Close so a
	// broadcaster never holds a registered handle that is being torn down,
	// and it is compare-and-delete so it cannot evict a replacement.
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			g.conns.Unregister(userID, client)
			client.Close()
			_ = conn.Close(code, reason)
			cancel()
			g.metrics.connClosed()
		})
	}

	rl := NewRateLimiter(g.rateEvents, g.rateWindow)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)

		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case frame := <-client.Send:
				if err := writeFrame(ctx, conn, frame, g.writeTimeout); err != nil {
					g.log.Info("ws.write.fail", "user_id", userID, "close_status", websocket.CloseStatus(err), "err", err)
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
			}
		}
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)

		t := time.NewTicker(g.heartbeatEvery)
		defer t.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case <-t.C:
				hbCtx, hbCancel := context.WithTimeout(ctx, g.heartbeatTimeout)
				err := conn.Ping(hbCtx)
				hbCancel()

				if err != nil {
					failures++
					g.log.Info("ws.ping.fail", "user_id", userID, "failures", failures, "err", err)
					if failures >= wsMaxPingFailures {
						shutdown(websocket.StatusGoingAway, "heartbeat failed")
						return
					}
					continue
				}
				failures = 0
			}
		}
	}()

readLoop:
	for {
		readCtx, readCancel := context.WithTimeout(ctx, g.readIdleTimeout)
		intent, err := readSendFrame(readCtx, conn)
		readCancel()

		if err != nil {
			switch classifyReadErr(err) {
			case readErrClose:
				shutdown(websocket.StatusNormalClosure, "peer closed")
				break readLoop
			case readErrCtxDone:
				shutdown(websocket.StatusNormalClosure, "context done")
				break readLoop
			case readErrConnClosed:
				shutdown(websocket.StatusAbnormalClosure, "conn closed")
				break readLoop
			case readErrBadJSON:
				g.trySendError(ctx, client, "invalid JSON")
				continue readLoop
			default:
				g.log.Info("ws.read.fail", "user_id", userID, "err", err)
				shutdown(websocket.StatusAbnormalClosure, "read failed")
				break readLoop
			}
		}

		now := time.Now().UTC()
		if !rl.Allow(now) {
			g.trySendError(ctx, client, "too many events")
			shutdown(websocket.StatusPolicyViolation, "rate limited")
			break readLoop
		}

		if err := intent.Validate(); err != nil {
			g.trySendError(ctx, client, err.Error())
			continue readLoop
		}

		// Message-level failures go to the offending sender only; the
		// connection stays open.
		g.dispatch(ctx, client, intent)
	}

	shutdown(websocket.StatusNormalClosure, "bye")
	<-writerDone

	select {
	case <-heartbeatDone:
	case <-time.After(wsCloseGrace):
	}
}

// dispatch runs one validated send intent through the service and fans the
// accepted message out: at most one frame to the receiver's live connection,
// and always one echo frame back to the sender (the durable acknowledgment).
func (g *WSGateway) dispatch(ctx context.Context, sender *Client, intent v1.SendFrame) {
	msg, conv, err := g.svc.Send(ctx, sender.UserID, SendInput{
		ReceiverID:     intent.ReceiverID,
		Content:        intent.Content,
		ConversationID: intent.ConversationID,
		ProductID:      intent.ProductID,
	})
	if err != nil {
		g.trySendError(ctx, sender, publicMessage(err))
		return
	}

	frame := v1.NewMessageFrame(wireMessage(msg), wireConversation(conv))

	// An offline receiver is not an error: they catch up via history fetch.
	if receiver, ok := g.conns.Lookup(msg.ReceiverID); ok {
		if !g.enqueue(ctx, receiver, frame) {
			g.metrics.frameDropped()
			g.log.Info("ws.fanout.drop", "conversation_id", conv.ID, "receiver_id", msg.ReceiverID)
		}
	}

	if !g.enqueue(ctx, sender, frame) {
		g.metrics.frameDropped()
		g.log.Info("ws.echo.drop", "conversation_id", conv.ID, "sender_id", sender.UserID)
	}
}

// ---- send helpers ----

func (g *WSGateway) trySendError(ctx context.Context, client *Client, msg string) {
	if !g.enqueue(ctx, client, v1.NewErrorFrame(msg)) {
		g.metrics.frameDropped()
	}
}

func (g *WSGateway) enqueue(ctx context.Context, client *Client, frame v1.Frame) bool {
	select {
	case <-ctx.Done():
		return false
	case <-client.Done():
		return false
	case client.Send <- frame:
		return true
	default:
		return false
	}
}

// ---- frame IO ----

func readSendFrame(ctx context.Context, conn *websocket.Conn) (v1.SendFrame, error) {
	mt, data, err := conn.Read(ctx)
	if err != nil {
		return v1.SendFrame{}, err
	}
	if mt != websocket.MessageText && mt != websocket.MessageBinary {
		return v1.SendFrame{}, fmt.Errorf("unsupported message type: %v", mt)
	}
	var f v1.SendFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return v1.SendFrame{}, err
	}
	return f, nil
}

func writeFrame(parent context.Context, conn *websocket.Conn, frame v1.Frame, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	b, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

// ---- read error classification ----

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
	readErrBadJSON
)

func classifyReadErr(err error) readErrKind {
	if websocket.CloseStatus(err) != -1 {
		return readErrClose
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return readErrCtxDone
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return readErrConnClosed
	}

	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return readErrBadJSON
	}

	// JSON decode errors can also surface as propagated strings.
	s := err.Error()
	if strings.Contains(s, "unexpected end of JSON input") || strings.Contains(s, "invalid character") {
		return readErrBadJSON
	}
	return readErrUnknown
}

// ---- origin policy ----

func (g *WSGateway) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if g.originRequired {
			return errors.New("missing origin")
		}
		return nil
	}

	if len(g.allowedOrigins) == 0 {
		return errors.New("origin not allowed (no allowlist)")
	}

	originHost := originHostOnly(origin)

	for _, a := range g.allowedOrigins {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if a == "*" {
			// Strongly discouraged, but honored if explicitly configured.
			return nil
		}

		// Full origin match (scheme + host + optional port).
		if origin == a {
			return nil
		}

		// Host match fallback (ignores port/scheme).
		if originHost != "" && originHost == originHostOnly(a) {
			return nil
		}
	}

	return fmt.Errorf("origin not allowed: %s", origin)
}

func originHostOnly(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	// URL form.
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		h := strings.TrimSpace(u.Host)
		if h == "" {
			return ""
		}
		if host, _, err := net.SplitHostPort(h); err == nil {
			return strings.ToLower(host)
		}
		return strings.ToLower(h)
	}

	// host[:port] form.
	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}

func deriveOriginPatternsFromAllowedOrigins(allowed []string) []string {
	// websocket.Accept matches OriginPatterns against the origin host.
	// Keep this strict: only hosts extracted from the allowlist are accepted.
	seen := make(map[string]struct{}, len(allowed))

	for _, a := range allowed {
		h := originHostOnly(a)
		if h == "" || h == "*" {
			continue
		}
		seen[h] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

// ---- env helpers ----

func envBoolWS(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envIntWS(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDurationWS(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func envCSVWS(key string, def string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		raw = def
	}
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
