package pool

import (
	"sync"

	"github.com/dbbouncer/mysqlcore/internal/driver"
	"github.com/dbbouncer/mysqlcore/internal/session"
)

// LeasedConn is one slot handed out by GetConnection. The caller must
// call Return exactly once when finished.
type LeasedConn struct {
	node *Node

	once sync.Once
}

// Session returns the slot's sans-I/O session.
func (lc *LeasedConn) Session() *session.Session { return lc.node.Session() }

// Driver returns the I/O driver running the slot's session.
func (lc *LeasedConn) Driver() *driver.Driver { return lc.node.Driver() }

// Return releases the slot back to the pool. needsReset should be true
// whenever the session was left in a state the pool should not hand to
// another caller as-is (a cancelled operation, an open transaction, a
// multi-function read that wasn't drained) — the slot is put through
// COM_RESET_CONNECTION before becoming idle again.
func (lc *LeasedConn) Return(needsReset bool) {
	lc.once.Do(func() {
		lc.node.mu.Lock()
		lc.node.needsReset = needsReset
		lc.node.mu.Unlock()
		if needsReset {
			if m := lc.node.pool.cfg.Metrics; m != nil {
				m.DirtyReturn()
			}
		}
		select {
		case lc.node.returnedCh <- struct{}{}:
		default:
		}
	})
}
