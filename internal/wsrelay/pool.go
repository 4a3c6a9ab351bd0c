package wsrelay

import (
	"sync"

	"go.uber.org/zap"

	"github.com/relaycore/core/internal/metrics"
)

// Pool is an in-memory, single-instance registry of live connections keyed
// by a single id (a user id or a gateway id). Exactly one connection may be
// registered per id at a time — a second Register call for the same id
// closes the previous connection with CloseReplaced before installing the
// new one, matching the Gateway "second connection replaces the first"
// contract. A single RWMutex is sufficient here: the registry is small and
// register/unregister are rare relative to Send.
type Pool struct {
	mu     sync.RWMutex
	conns  map[string]*Conn
	name   string
	logger *zap.Logger
}

// NewPool creates an empty Pool. name is used only for log scoping (e.g.
// "user", "gateway").
func NewPool(name string, logger *zap.Logger) *Pool {
	return &Pool{
		conns:  make(map[string]*Conn),
		name:   name,
		logger: logger.Named("wsrelay.pool." + name),
	}
}

// Register installs c under id, replacing and closing any prior connection
// registered under the same id.
func (p *Pool) Register(id string, c *Conn) {
	p.mu.Lock()
	old, existed := p.conns[id]
	p.conns[id] = c
	count := len(p.conns)
	p.mu.Unlock()

	metrics.PoolConnections.WithLabelValues(p.name).Set(float64(count))

	if existed {
		p.logger.Info("replacing existing connection", zap.String("id", id))
		old.CloseWithCode(CloseReplaced, "replaced by new connection")
	}
}

// Unregister removes id from the pool, but only if the currently-registered
// connection is c — this prevents a slow-closing old connection from
// unregistering a newer one that already replaced it. Reports whether it
// actually removed the entry, so a caller that also marks external state
// (e.g. a gateway's online/offline status) can skip that write when a
// replacement connection has already taken over.
func (p *Pool) Unregister(id string, c *Conn) bool {
	p.mu.Lock()
	cur, ok := p.conns[id]
	removed := ok && cur == c
	if removed {
		delete(p.conns, id)
	}
	count := len(p.conns)
	p.mu.Unlock()

	metrics.PoolConnections.WithLabelValues(p.name).Set(float64(count))
	return removed
}

// Send delivers a raw frame to id's connection if one is registered and its
// send buffer accepts it. Returns false (never an error) on any failure to
// deliver locally — callers fall back to cross-instance pub/sub delivery.
func (p *Pool) Send(id string, b []byte) bool {
	p.mu.RLock()
	c, ok := p.conns[id]
	p.mu.RUnlock()
	if !ok {
		return false
	}
	return c.Send(b)
}

// SendEnvelope marshals and delivers a typed message to id's connection.
func (p *Pool) SendEnvelope(id, msgType, msgID string, payload any) bool {
	b, err := encode(msgType, msgID, payload)
	if err != nil {
		p.logger.Warn("encode failed", zap.Error(err))
		return false
	}
	return p.Send(id, b)
}

// Connected reports whether id currently has a registered local connection.
func (p *Pool) Connected(id string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.conns[id]
	return ok
}

// ConnectedCount returns the number of currently registered connections.
func (p *Pool) ConnectedCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.conns)
}
