package pool

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/dbbouncer/mysqlcore/internal/driver"
	"github.com/dbbouncer/mysqlcore/internal/session"
)

// NodeStatus is one slot's control state.
type NodeStatus int

const (
	NodeInitial NodeStatus = iota
	NodeIdle
	NodePendingPing
	NodeInUse
	NodePendingReset
	NodePendingConnect
	NodeTerminated
)

func (s NodeStatus) String() string {
	switch s {
	case NodeInitial:
		return "initial"
	case NodeIdle:
		return "idle"
	case NodePendingPing:
		return "pending-ping"
	case NodeInUse:
		return "in-use"
	case NodePendingReset:
		return "pending-reset"
	case NodePendingConnect:
		return "pending-connect"
	case NodeTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Node is one pool slot: its own sans-I/O session driven through connect,
// idle, ping, in-use, and reset phases. Handoff to a caller
// (claiming) and the idle-transition waiter wakeup live in Pool; Node only
// owns the slot's own lifecycle.
type Node struct {
	pool  *Pool
	index int

	mu         sync.Mutex
	status     NodeStatus
	sess       *session.Session
	driv       *driver.Driver
	conn       net.Conn
	needsReset bool

	claimCh    chan struct{} // pool sends here to wake an idle node into in-use
	returnedCh chan struct{} // GetConnection's caller sends here via LeasedConn.Return
}

func newNode(p *Pool, index int) *Node {
	return &Node{
		pool: p,
		index: index,
		status: NodeInitial,
		claimCh: make(chan struct{}, 1),
		returnedCh: make(chan struct{}, 1),
	}
}

func (n *Node) Status() NodeStatus {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.status
}

func (n *Node) setStatus(st NodeStatus) {
	n.mu.Lock()
	n.status = st
	n.mu.Unlock()
}

// run drives the slot's control state machine until ctx is cancelled.
// It never returns early: connect failures retry
// with RetryInterval backoff instead of terminating the slot.
func (n *Node) run(ctx context.Context) {
	status := NodeInitial
	for {
		switch status {
		case NodeInitial, NodePendingConnect:
			n.setStatus(status)
			if err := n.connect(ctx); err != nil {
				n.pool.logger().Warn("pool: connect failed, backing off", "node", n.index, "err", err)
				select {
				case <-ctx.Done():
					n.terminate()
					return
				case <-time.After(n.pool.cfg.EffectiveRetryInterval()):
				}
				status = NodePendingConnect
				continue
			}
			status = n.afterIdleTransition()

		case NodeIdle:
			n.setStatus(NodeIdle)
			var pingTimer <-chan time.Time
			if n.pool.cfg.PingInterval > 0 {
				t := time.NewTimer(n.pool.cfg.PingInterval)
				defer t.Stop()
				pingTimer = t.C
			}
			select {
			case <-ctx.Done():
				n.terminate()
				return
			case <-n.claimCh:
				status = NodeInUse
			case <-pingTimer:
				status = NodePendingPing
			}

		case NodePendingPing:
			n.setStatus(NodePendingPing)
			if err := n.ping(ctx); err != nil {
				n.pool.logger().Warn("pool: ping failed, reconnecting", "node", n.index, "err", err)
				n.closeCurrent()
				status = NodePendingConnect
				continue
			}
			status = n.afterIdleTransition()

		case NodeInUse:
			select {
			case <-ctx.Done():
				n.terminate()
				return
			case <-n.returnedCh:
			}
			if n.needsReset {
				status = NodePendingReset
			} else {
				status = n.afterIdleTransition()
			}

		case NodePendingReset:
			n.setStatus(NodePendingReset)
			if err := n.reset(ctx); err != nil {
				n.pool.logger().Warn("pool: reset failed, reconnecting", "node", n.index, "err", err)
				n.closeCurrent()
				status = NodePendingConnect
				continue
			}
			status = n.afterIdleTransition()
		}
	}
}

// afterIdleTransition reports the slot to the pool as idle and returns
// the state the control loop should continue in: NodeInUse if the pool
// handed it straight to a waiter, NodeIdle otherwise.
func (n *Node) afterIdleTransition() NodeStatus {
	if n.pool.noteIdle(n) {
		return NodeInUse
	}
	return NodeIdle
}

// closeCurrent tears down the slot's failed connection before a
// reconnect attempt.
func (n *Node) closeCurrent() {
	n.mu.Lock()
	conn := n.conn
	n.conn, n.sess, n.driv = nil, nil, nil
	n.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

func (n *Node) terminate() {
	n.mu.Lock()
	n.status = NodeTerminated
	conn := n.conn
	n.conn = nil
	n.sess = nil
	n.driv = nil
	n.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

// withTimeout bounds ctx by d unless d is zero.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func (n *Node) connect(ctx context.Context) error {
	cctx, cancel := withTimeout(ctx, n.pool.cfg.ConnectTimeout)
	defer cancel()

	addr := n.pool.cfg.Address
	dialer := net.Dialer{}
	conn, err := dialer.DialContext(cctx, addr.Network(), addr.String())
	if err != nil {
		return err
	}

	sess := session.New(n.pool.cfg.sessionConfig())
	drv := driver.New(sess, conn, n.pool.cfg.TLSConfig)

	action, err := sess.Connect()
	if derr := drv.Drive(cctx, action, err); derr != nil {
		_ = drv.Close()
		return derr
	}

	n.mu.Lock()
	n.conn = conn
	n.sess = sess
	n.driv = drv
	n.needsReset = false
	n.mu.Unlock()
	return nil
}

func (n *Node) ping(ctx context.Context) error {
	cctx, cancel := withTimeout(ctx, n.pool.cfg.PingTimeout)
	defer cancel()

	n.mu.Lock()
	sess, drv := n.sess, n.driv
	n.mu.Unlock()

	action, err := sess.Ping()
	derr := drv.Drive(cctx, action, err)
	if m := n.pool.cfg.Metrics; m != nil {
		m.PingCompleted(derr == nil)
	}
	return derr
}

func (n *Node) reset(ctx context.Context) error {
	cctx, cancel := withTimeout(ctx, n.pool.cfg.ConnectTimeout)
	defer cancel()

	n.mu.Lock()
	sess, drv := n.sess, n.driv
	n.mu.Unlock()

	action, err := sess.ResetConnection()
	derr := drv.Drive(cctx, action, err)
	if m := n.pool.cfg.Metrics; m != nil {
		m.ResetCompleted(derr == nil)
	}
	return derr
}

// Session exposes the underlying sans-I/O session to a caller holding the
// slot. Valid only between GetConnection and
// LeasedConn.Return.
func (n *Node) Session() *session.Session {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sess
}

// Driver exposes the I/O driver running this slot's session.
func (n *Node) Driver() *driver.Driver {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.driv
}
