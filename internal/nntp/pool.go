package nntp

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/usenetsync/internal/common"
	"github.com/dmitrijs2005/usenetsync/internal/logging"
	"github.com/dmitrijs2005/usenetsync/internal/server/models"
)

// DialFunc opens a transport to the given server. Swapped for a fake in
// tests.
type DialFunc func(ctx context.Context, server *models.ServerDescriptor) (Transport, error)

// PoolOptions tune pool behaviour. Zero values pick the defaults below.
type PoolOptions struct {
	// HealthTTL caches health probe results so steady-state acquisition
	// does not re-probe on every call.
	HealthTTL time.Duration
	// FailureThreshold is the number of consecutive connection failures
	// after which a server is marked unhealthy. A single flaking
	// connection never ejects a whole server.
	FailureThreshold int
	// Cooldown is how long an unhealthy server is skipped before it may
	// be tried again.
	Cooldown time.Duration
	// Dial overrides the connection factory.
	Dial DialFunc
}

const (
	defaultHealthTTL        = 60 * time.Second
	defaultFailureThreshold = 3
	defaultCooldown         = 5 * time.Minute
)

type slot struct {
	conn Transport // nil means the slot is free and a connection is dialed lazily
}

type serverHealth struct {
	consecutiveFailures int
	unhealthyUntil      time.Time
	lastProbe           time.Time
	probeOK             bool
}

// Pool hands out live, authenticated transports per server, reusing
// connections and bounding each server to its MaxConnections. Acquiring
// beyond the limit blocks until a connection is released.
type Pool struct {
	servers  []*models.ServerDescriptor
	governor *Governor
	logger   logging.Logger
	dial     DialFunc

	healthTTL        time.Duration
	failureThreshold int
	cooldown         time.Duration

	mu     sync.Mutex
	slots  map[string]chan *slot
	health map[string]*serverHealth
}

// NewPool builds a pool over the given server descriptors. Servers are
// ordered by ascending priority; descriptors are treated as read-only.
func NewPool(servers []*models.ServerDescriptor, governor *Governor, logger logging.Logger, opts PoolOptions) *Pool {
	sorted := make([]*models.ServerDescriptor, len(servers))
	copy(sorted, servers)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority < sorted[j].Priority })

	p := &Pool{
		servers:          sorted,
		governor:         governor,
		logger:           logger,
		dial:             opts.Dial,
		healthTTL:        opts.HealthTTL,
		failureThreshold: opts.FailureThreshold,
		cooldown:         opts.Cooldown,
		slots:            make(map[string]chan *slot),
		health:           make(map[string]*serverHealth),
	}
	if p.dial == nil {
		p.dial = func(ctx context.Context, server *models.ServerDescriptor) (Transport, error) {
			return Dial(ctx, server)
		}
	}
	if p.healthTTL <= 0 {
		p.healthTTL = defaultHealthTTL
	}
	if p.failureThreshold <= 0 {
		p.failureThreshold = defaultFailureThreshold
	}
	if p.cooldown <= 0 {
		p.cooldown = defaultCooldown
	}

	for _, s := range sorted {
		n := s.MaxConnections
		if n <= 0 {
			n = 1
		}
		ch := make(chan *slot, n)
		for i := 0; i < n; i++ {
			ch <- &slot{}
		}
		p.slots[s.ServerID] = ch
		p.health[s.ServerID] = &serverHealth{}
	}
	return p
}

// PooledConn is an acquired connection slot. It must be returned with
// Release on every exit path so a failing worker cannot leak the slot.
type PooledConn struct {
	pool   *Pool
	server *models.ServerDescriptor
	conn   Transport
}

// Transport returns the live protocol connection.
func (pc *PooledConn) Transport() Transport { return pc.conn }

// Server returns the descriptor this connection belongs to.
func (pc *PooledConn) Server() *models.ServerDescriptor { return pc.server }

// Throttle charges n bytes against the pool's shared bandwidth ceiling.
func (p *Pool) Throttle(ctx context.Context, n int) error {
	return p.governor.Throttle(ctx, n)
}

// Acquire returns a connection to the preferred available server: ascending
// priority, skipping disabled servers, servers inside their unhealthy
// cool-down and servers listed in exclude. Blocks while the chosen server
// is at its connection limit. When no server qualifies it fails with an
// exhaustion error wrapping common.ErrNoServerAvailable.
func (p *Pool) Acquire(ctx context.Context, exclude ...string) (*PooledConn, error) {
	excluded := make(map[string]struct{}, len(exclude))
	for _, id := range exclude {
		excluded[id] = struct{}{}
	}

	for {
		server := p.selectServer(ctx, excluded)
		if server == nil {
			return nil, common.NewExhaustedError(common.ErrNoServerAvailable)
		}

		ch := p.slots[server.ServerID]
		var s *slot
		select {
		case s = <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		if s.conn == nil {
			conn, err := p.dial(ctx, server)
			if err != nil {
				ch <- &slot{}
				p.recordFailure(server.ServerID)
				p.logger.Warn(ctx, "dial failed", "server", server.Host, "error", err)
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				continue
			}
			s.conn = conn
		}
		return &PooledConn{pool: p, server: server, conn: s.conn}, nil
	}
}

// Release returns the slot to the pool. opErr is the error (if any) of the
// operation the caller ran on the connection: an I/O failure closes this
// connection and counts toward the server's failure threshold, while a
// clean result (including an article-not-found response, which is a valid
// protocol answer) resets it.
func (p *Pool) Release(pc *PooledConn, opErr error) {
	ch := p.slots[pc.server.ServerID]
	if opErr != nil && !errors.Is(opErr, common.ErrArticleNotFound) {
		if pc.conn != nil {
			_ = pc.conn.Close()
		}
		ch <- &slot{}
		p.recordFailure(pc.server.ServerID)
		return
	}
	ch <- &slot{conn: pc.conn}
	p.recordSuccess(pc.server.ServerID)
}

// selectServer returns the best healthy server or nil. Probes a server at
// most once per HealthTTL; in between the cached result is reused.
func (p *Pool) selectServer(ctx context.Context, excluded map[string]struct{}) *models.ServerDescriptor {
	for _, server := range p.servers {
		if !server.Enabled {
			continue
		}
		if _, skip := excluded[server.ServerID]; skip {
			continue
		}
		if p.coolingDown(server.ServerID) {
			continue
		}
		if !p.probeIfStale(ctx, server) {
			continue
		}
		return server
	}
	return nil
}

func (p *Pool) coolingDown(serverID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return time.Now().Before(p.health[serverID].unhealthyUntil)
}

// probeIfStale runs the lightweight health check when the cached result
// expired. The probe dials a fresh connection, pings and closes it.
func (p *Pool) probeIfStale(ctx context.Context, server *models.ServerDescriptor) bool {
	p.mu.Lock()
	h := p.health[server.ServerID]
	if time.Since(h.lastProbe) < p.healthTTL {
		ok := h.probeOK
		p.mu.Unlock()
		return ok
	}
	p.mu.Unlock()

	ok := p.probe(ctx, server)

	p.mu.Lock()
	h.lastProbe = time.Now()
	h.probeOK = ok
	if !ok {
		h.unhealthyUntil = time.Now().Add(p.cooldown)
	}
	p.mu.Unlock()
	return ok
}

func (p *Pool) probe(ctx context.Context, server *models.ServerDescriptor) bool {
	conn, err := p.dial(ctx, server)
	if err != nil {
		p.logger.Warn(ctx, "health probe dial failed", "server", server.Host, "error", err)
		return false
	}
	defer conn.Close()
	if err := conn.Ping(); err != nil {
		p.logger.Warn(ctx, "health probe ping failed", "server", server.Host, "error", err)
		return false
	}
	return true
}

func (p *Pool) recordFailure(serverID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	h := p.health[serverID]
	h.consecutiveFailures++
	if h.consecutiveFailures >= p.failureThreshold {
		h.unhealthyUntil = time.Now().Add(p.cooldown)
		h.probeOK = false
		h.consecutiveFailures = 0
	}
}

func (p *Pool) recordSuccess(serverID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.health[serverID].consecutiveFailures = 0
}

// Close drains every slot and closes the pooled connections. Outstanding
// acquisitions keep their connections; callers are expected to have
// released them before shutdown.
func (p *Pool) Close() error {
	var firstErr error
	for _, server := range p.servers {
		ch := p.slots[server.ServerID]
		drained := false
		for !drained {
			select {
			case s := <-ch:
				if s.conn != nil {
					if err := s.conn.Close(); err != nil && firstErr == nil {
						firstErr = err
					}
				}
			default:
				drained = true
			}
		}
	}
	if firstErr != nil {
		return fmt.Errorf("closing pool: %w", firstErr)
	}
	return nil
}
