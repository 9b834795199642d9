// Package pool implements the connection pool: a fixed collection of up
// to max_size session slots, created lazily, each running its own
// control state machine, handed out to callers through a notify-one
// waiter queue.
package pool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Stats summarizes the pool's slot counts.
type Stats struct {
	Idle      int `json:"idle"`
	InUse     int `json:"in_use"`
	Pending   int `json:"pending"` // initial, pending-ping, pending-reset, pending-connect
	Total     int `json:"total"`
	Waiting   int `json:"waiting"`
	MaxSize   int `json:"max_size"`
	Exhausted int64 `json:"exhausted_total"`
}

// NodeSnapshot is one slot's introspection row.
type NodeSnapshot struct {
	Index  int `json:"index"`
	Status string `json:"status"`
}

// Pool owns the slots and the waiter queue. Call Run in its own
// goroutine before GetConnection; Cancel stops it.
type Pool struct {
	cfg Config

	mu        sync.Mutex
	nodes     []*Node
	idle      []*Node
	waiters   []chan waiterResult
	running   bool
	cancelled bool
	exhausted int64

	runCtx context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type waiterResult struct {
	node *Node
	err  error
}

// New constructs a pool from cfg without starting it; call Run to begin
// the reactor loop.
func New(cfg Config) *Pool {
	return &Pool{cfg: cfg}
}

func (p *Pool) logger() *slog.Logger { return p.cfg.logger() }

// Run is the pool's reactor loop: it starts all
// initial slots and does not return until ctx is cancelled or Cancel is
// called. Run must be called at most once.
func (p *Pool) Run(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("pool: Run called twice")
	}
	if err := p.cfg.Validate(); err != nil {
		p.mu.Unlock()
		return err
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.runCtx = runCtx
	p.cancel = cancel
	p.running = true

	initial := p.cfg.EffectiveInitialSize()
	for i := 0; i < initial; i++ {
		p.nodes = append(p.nodes, newNode(p, i))
	}
	nodes := append([]*Node(nil), p.nodes...)
	p.mu.Unlock()

	for _, n := range nodes {
		p.startNode(n, runCtx)
	}

	<-runCtx.Done()

	p.mu.Lock()
	p.cancelled = true
	waiters := p.waiters
	p.waiters = nil
	p.mu.Unlock()
	for _, w := range waiters {
		w <- waiterResult{err: ErrCancelled}
	}

	p.wg.Wait()
	return nil
}

func (p *Pool) startNode(n *Node, ctx context.Context) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		n.run(ctx)
	}()
}

// Cancel stops the pool: every slot transitions to terminated, every
// waiter is woken with pool-cancelled, and Run returns once the slots'
// control loops have drained.
func (p *Pool) Cancel() {
	p.mu.Lock()
	if p.cancel == nil || p.cancelled {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	p.cancel()
}

// noteIdle is called by a Node's control loop whenever it becomes idle
// (after connect, ping, or reset succeeds). It either wakes the oldest
// waiter, in which case it reports true and the
// caller must treat the slot as already claimed (in-use), or adds the
// slot to the idle list and reports false.
func (p *Pool) noteIdle(n *Node) bool {
	p.mu.Lock()
	if len(p.waiters) > 0 {
		w := p.waiters[0]
		p.waiters = p.waiters[1:]
		p.mu.Unlock()
		n.setStatus(NodeInUse)
		w <- waiterResult{node: n}
		return true
	}
	p.idle = append(p.idle, n)
	p.mu.Unlock()
	return false
}

// GetConnection hands out an idle slot, or creates one if there is room
// under max_size, or enqueues the caller as a waiter woken on the next
// idle transition.
func (p *Pool) GetConnection(ctx context.Context) (*LeasedConn, error) {
	start := time.Now()
	defer func() {
		if m := p.cfg.Metrics; m != nil {
			m.AcquireDuration(time.Since(start))
		}
	}()

	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil, ErrNotRunning
	}
	if p.cancelled {
		p.mu.Unlock()
		return nil, ErrCancelled
	}

	if len(p.idle) > 0 {
		n := p.idle[len(p.idle)-1]
		p.idle = p.idle[:len(p.idle)-1]
		p.mu.Unlock()
		n.setStatus(NodeInUse)
		n.claimCh <- struct{}{}
		return &LeasedConn{node: n}, nil
	}

	if len(p.nodes) < p.cfg.EffectiveMaxSize() {
		n := newNode(p, len(p.nodes))
		p.nodes = append(p.nodes, n)
		runCtx := p.runCtx
		p.mu.Unlock()
		p.startNode(n, runCtx)
		p.mu.Lock()
	}

	ch := make(chan waiterResult, 1)
	p.waiters = append(p.waiters, ch)
	p.exhausted++
	p.mu.Unlock()
	if m := p.cfg.Metrics; m != nil {
		m.PoolExhausted()
	}

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, res.err
		}
		return &LeasedConn{node: res.node}, nil
	case <-ctx.Done():
		p.removeWaiter(ch)
		return nil, fmt.Errorf("%w: %v", ErrNoConnectionAvailable, ctx.Err())
	}
}

func (p *Pool) removeWaiter(target chan waiterResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, w := range p.waiters {
		if w == target {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			return
		}
	}
}

// Stats reports the pool's current slot counts.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := Stats{
		Total: len(p.nodes),
		Waiting: len(p.waiters),
		MaxSize: p.cfg.EffectiveMaxSize(),
		Exhausted: p.exhausted,
	}
	for _, n := range p.nodes {
		switch n.Status() {
		case NodeIdle:
			st.Idle++
		case NodeInUse:
			st.InUse++
		case NodePendingPing, NodePendingReset, NodePendingConnect, NodeInitial:
			st.Pending++
		}
	}
	if m := p.cfg.Metrics; m != nil {
		m.UpdatePoolStats(st.Idle, st.InUse, st.Pending, st.Total, st.Waiting)
	}
	return st
}

// Nodes returns a snapshot of every slot's current status.
func (p *Pool) Nodes() []NodeSnapshot {
	p.mu.Lock()
	nodes := append([]*Node(nil), p.nodes...)
	p.mu.Unlock()

	out := make([]NodeSnapshot, len(nodes))
	for i, n := range nodes {
		out[i] = NodeSnapshot{Index: n.index, Status: n.Status().String()}
	}
	return out
}
