package mysqlcore

import (
	"context"

	"github.com/dbbouncer/mysqlcore/internal/pool"
)

// Re-exported pool types.
type (
	PoolConfig     = pool.Config
	SSLMode        = pool.SSLMode
	ServerAddress  = pool.ServerAddress
	PoolStats      = pool.Stats
	NodeSnapshot   = pool.NodeSnapshot
)

const (
	SSLDisable = pool.SSLDisable
	SSLEnable  = pool.SSLEnable
	SSLRequire = pool.SSLRequire
)

// Pool is a fixed collection of lazily-created, health-checked
// connections handed out to callers via a waiter queue.
type Pool struct {
	p *pool.Pool
}

// NewPool constructs a pool from cfg. Call Run in its own goroutine
// before GetConnection.
func NewPool(cfg PoolConfig) *Pool {
	return &Pool{p: pool.New(cfg)}
}

// Run is the pool's reactor loop: it starts every initial slot and does
// not return until ctx is cancelled or Cancel is called.
func (p *Pool) Run(ctx context.Context) error { return p.p.Run(ctx) }

// Cancel stops the pool, terminating every slot and waking every waiter
// with an error.
func (p *Pool) Cancel() { p.p.Cancel() }

// GetConnection hands out a ready connection, or waits for one to become
// available, or creates a new slot if under max_size.
func (p *Pool) GetConnection(ctx context.Context) (*LeasedConn, error) {
	lc, err := p.p.GetConnection(ctx)
	if err != nil {
		return nil, err
	}
	return &LeasedConn{lc: lc}, nil
}

// Stats reports the pool's current slot counts.
func (p *Pool) Stats() PoolStats { return p.p.Stats() }

// Nodes reports every slot's current status.
func (p *Pool) Nodes() []NodeSnapshot { return p.p.Nodes() }

// LeasedConn is one pool slot handed out by GetConnection, wrapping the
// same operations Conn exposes for a directly-dialed connection.
type LeasedConn struct {
	lc *pool.LeasedConn
}

func (c *LeasedConn) drive(ctx context.Context, action Action, err error) error {
	return c.lc.Driver().Drive(ctx, action, err)
}

// Execute runs sql to completion in aggregate mode.
func (c *LeasedConn) Execute(ctx context.Context, sql string) ([]Resultset, error) {
	sess := c.lc.Session()
	action, err := sess.Execute(sql)
	if derr := c.drive(ctx, action, err); derr != nil {
		return nil, derr
	}
	return sess.Resultsets(), nil
}

// Prepare issues COM_STMT_PREPARE.
func (c *LeasedConn) Prepare(ctx context.Context, sql string) (Statement, error) {
	sess := c.lc.Session()
	action, err := sess.Prepare(sql)
	if derr := c.drive(ctx, action, err); derr != nil {
		return Statement{}, derr
	}
	return sess.PreparedStatement(), nil
}

// ExecuteStatement runs a prepared statement with params bound.
func (c *LeasedConn) ExecuteStatement(ctx context.Context, stmt Statement, params []Param) ([]Resultset, error) {
	sess := c.lc.Session()
	action, err := sess.ExecuteStatement(stmt, params)
	if derr := c.drive(ctx, action, err); derr != nil {
		return nil, derr
	}
	return sess.Resultsets(), nil
}

// CloseStatement issues COM_STMT_CLOSE for stmt.
func (c *LeasedConn) CloseStatement(ctx context.Context, stmt Statement) error {
	sess := c.lc.Session()
	action, err := sess.CloseStatement(stmt)
	return c.drive(ctx, action, err)
}

// RunPipeline batches several independent commands into one write.
func (c *LeasedConn) RunPipeline(ctx context.Context, stages []PipelineStage) ([]PipelineStageResult, error) {
	sess := c.lc.Session()
	action, err := sess.RunPipeline(stages)
	derr := c.drive(ctx, action, err)
	results := sess.PipelineResults()
	if derr != nil && results == nil {
		return nil, derr
	}
	return results, nil
}

// Return releases the slot back to the pool. needsReset should be true
// whenever the caller is returning the connection in a state the pool
// should not hand to another caller as-is (a cancelled operation, an
// open transaction, an undrained streaming read).
func (c *LeasedConn) Return(needsReset bool) { c.lc.Return(needsReset) }
