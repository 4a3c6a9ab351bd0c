package wsrelay

import (
	"testing"

	"go.uber.org/zap"
)

func newTestConn(id string) *Conn {
	return &Conn{ID: id, send: make(chan []byte, 1), done: make(chan struct{})}
}

func TestPool_Unregister_IdentityGuarded(t *testing.T) {
	pool := NewPool("test", zap.NewNop())

	c1 := newTestConn("x")
	pool.conns["x"] = c1

	c2 := newTestConn("x")
	pool.conns["x"] = c2 // a reconnect replaced c1 in the registry directly

	if pool.Unregister("x", c1) {
		t.Fatal("expected the stale connection's Unregister to report false")
	}
	if _, ok := pool.conns["x"]; !ok {
		t.Fatal("expected the current connection to remain registered after a stale Unregister")
	}

	if !pool.Unregister("x", c2) {
		t.Fatal("expected the current connection's Unregister to report true")
	}
	if _, ok := pool.conns["x"]; ok {
		t.Fatal("expected the connection removed after the current Unregister")
	}
}

func TestConn_SendAfterClose_NeverPanicsAndReportsFalse(t *testing.T) {
	c := newTestConn("x")
	c.logger = zap.NewNop()
	c.Close()

	if c.Send([]byte("hello")) {
		t.Fatal("expected Send to report false once the connection is closed")
	}
}

func TestConn_Close_IsIdempotent(t *testing.T) {
	c := newTestConn("x")
	c.logger = zap.NewNop()

	c.Close()
	c.Close() // must not panic on double-close
}
