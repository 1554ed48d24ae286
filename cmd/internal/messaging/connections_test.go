package messaging

import (
	"io"
	"log/slog"
	"testing"

	v1 "vroom/shared/contracts/chat/v1"
)

func newTestRegistry() *ConnectionRegistry {
	return NewConnectionRegistry(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestConnectionRegistry_RegisterLookupUnregister(t *testing.T) {
	t.Parallel()

	r := newTestRegistry()

	c := NewClient("alice", 8)
	if replaced := r.Register("alice", c); replaced != nil {
		t.Fatalf("fresh register returned a replaced handle")
	}
	if r.Len() != 1 {
		t.Fatalf("len: got %d want 1", r.Len())
	}

	got, ok := r.Lookup("alice")
	if !ok || got != c {
		t.Fatalf("lookup returned wrong handle")
	}
	if _, ok := r.Lookup("bob"); ok {
		t.Fatalf("lookup of unknown user succeeded")
	}

	r.Unregister("alice", c)
	if _, ok := r.Lookup("alice"); ok {
		t.Fatalf("handle still present after unregister")
	}
	if r.Len() != 0 {
		t.Fatalf("len after unregister: got %d want 0", r.Len())
	}

	// Unregistering again is safe.
	r.Unregister("alice", c)
}

func TestConnectionRegistry_LastWriteWins(t *testing.T) {
	t.Parallel()

	r := newTestRegistry()

	first := NewClient("alice", 8)
	second := NewClient("alice", 8)

	if replaced := r.Register("alice", first); replaced != nil {
		t.Fatalf("unexpected replacement on first register")
	}
	replaced := r.Register("alice", second)
	if replaced != first {
		t.Fatalf("second register did not return the first handle")
	}
	if r.Len() != 1 {
		t.Fatalf("replacement grew the registry: %d", r.Len())
	}

	got, ok := r.Lookup("alice")
	if !ok || got != second {
		t.Fatalf("registry does not point at the newest connection")
	}
}

func TestConnectionRegistry_CompareAndDeleteProtectsSuccessor(t *testing.T) {
	t.Parallel()

	r := newTestRegistry()

	first := NewClient("alice", 8)
	second := NewClient("alice", 8)

	r.Register("alice", first)
	r.Register("alice", second)

	// The replaced connection's deferred teardown must not evict the new one.
	r.Unregister("alice", first)
	got, ok := r.Lookup("alice")
	if !ok || got != second {
		t.Fatalf("stale unregister evicted the successor")
	}

	// nil removes unconditionally.
	r.Unregister("alice", nil)
	if _, ok := r.Lookup("alice"); ok {
		t.Fatalf("unconditional unregister did not remove the handle")
	}
}

func TestConnectionRegistry_RejectsEmptyAndNil(t *testing.T) {
	t.Parallel()

	r := newTestRegistry()

	if replaced := r.Register("", NewClient("", 8)); replaced != nil {
		t.Fatalf("empty user id admitted")
	}
	if replaced := r.Register("alice", nil); replaced != nil {
		t.Fatalf("nil client admitted")
	}
	if r.Len() != 0 {
		t.Fatalf("registry not empty: %d", r.Len())
	}
}

func TestClient_CloseIdempotent(t *testing.T) {
	t.Parallel()

	c := NewClient("alice", 8)

	select {
	case <-c.Done():
		t.Fatalf("fresh client already done")
	default:
	}

	c.Close()
	c.Close()

	select {
	case <-c.Done():
	default:
		t.Fatalf("done channel not closed")
	}

	// Send stays open so concurrent enqueues never panic.
	c.Send <- v1.Frame{}
}
