// Package mysqlcore is the public façade over the sans-I/O session
// machine, its I/O driver, and the connection pool: a single-connection
// Conn for direct use, and Pool for pooled access.
package mysqlcore

import (
	"context"
	"crypto/tls"
	"net"

	"github.com/dbbouncer/mysqlcore/internal/driver"
	"github.com/dbbouncer/mysqlcore/internal/protocol"
	"github.com/dbbouncer/mysqlcore/internal/session"
)

// Re-exported types callers need without reaching into internal/.
type (
	Action              = session.Action
	Config              = session.Config
	TLSMode             = session.TLSMode
	Row                 = session.Row
	Resultset           = session.Resultset
	Statement           = session.Statement
	MultiFunctionEvent  = session.MultiFunctionEvent
	PipelineStage       = session.PipelineStage
	PipelineStageKind   = session.PipelineStageKind
	PipelineStageResult = session.PipelineStageResult
	Field               = protocol.Field
	ColumnDefinition    = protocol.ColumnDefinition
	Param               = protocol.Param
)

const (
	TLSDisable = session.TLSDisable
	TLSEnable  = session.TLSEnable
	TLSRequire = session.TLSRequire
)

const (
	MultiFunctionNone          = session.MultiFunctionNone
	MultiFunctionNoResultset   = session.MultiFunctionNoResultset
	MultiFunctionColumnsReady  = session.MultiFunctionColumnsReady
	MultiFunctionRow           = session.MultiFunctionRow
	MultiFunctionResultsetDone = session.MultiFunctionResultsetDone
)

const (
	PipelineExecute         = session.PipelineExecute
	PipelinePrepare         = session.PipelinePrepare
	PipelineCloseStatement  = session.PipelineCloseStatement
	PipelineResetConnection = session.PipelineResetConnection
	PipelineSetCharacterSet = session.PipelineSetCharacterSet
	PipelinePing            = session.PipelinePing
)

// Conn is one MySQL/MariaDB connection: a sans-I/O session driven by an
// I/O driver over a single net.Conn.
type Conn struct {
	sess *session.Session
	driv *driver.Driver
}

// Dial opens network/address and runs the handshake with cfg's
// credentials. tlsConfig is used if cfg.TLSMode requests an upgrade.
func Dial(ctx context.Context, network, address string, cfg Config, tlsConfig *tls.Config) (*Conn, error) {
	d := net.Dialer{}
	nc, err := d.DialContext(ctx, network, address)
	if err != nil {
		return nil, err
	}
	sess := session.New(cfg)
	drv := driver.New(sess, nc, tlsConfig)

	action, err := sess.Connect()
	if derr := drv.Drive(ctx, action, err); derr != nil {
		_ = drv.Close()
		return nil, derr
	}
	return &Conn{sess: sess, driv: drv}, nil
}

func (c *Conn) drive(ctx context.Context, action Action, err error) error {
	return c.driv.Drive(ctx, action, err)
}

// Execute runs sql to completion in aggregate mode and returns every
// resultset it produced.
func (c *Conn) Execute(ctx context.Context, sql string) ([]Resultset, error) {
	action, err := c.sess.Execute(sql)
	if derr := c.drive(ctx, action, err); derr != nil {
		return nil, derr
	}
	return c.sess.Resultsets(), nil
}

// StartExecution begins streaming (multi-function) mode.
func (c *Conn) StartExecution(ctx context.Context, sql string) error {
	action, err := c.sess.StartExecution(sql)
	return c.drive(ctx, action, err)
}

// ReadResultsetHead reads the next resultset's head in streaming mode.
func (c *Conn) ReadResultsetHead(ctx context.Context) error {
	action, err := c.sess.ReadResultsetHead()
	return c.drive(ctx, action, err)
}

// ReadSomeRows reads one row or the current resultset's terminal status
// in streaming mode.
func (c *Conn) ReadSomeRows(ctx context.Context) error {
	action, err := c.sess.ReadSomeRows()
	return c.drive(ctx, action, err)
}

// LastMultiFunctionEvent, CurrentColumns, CurrentRow, and CurrentOK
// report the outcome of the most recent streaming call.
func (c *Conn) LastMultiFunctionEvent() MultiFunctionEvent { return c.sess.LastMultiFunctionEvent() }
func (c *Conn) CurrentColumns() []ColumnDefinition          { return c.sess.CurrentColumns() }
func (c *Conn) CurrentRow() Row                             { return c.sess.CurrentRow() }
func (c *Conn) CurrentOK() protocol.OKPacket                { return c.sess.CurrentOK() }

// Prepare issues COM_STMT_PREPARE and returns the resulting statement
// handle.
func (c *Conn) Prepare(ctx context.Context, sql string) (Statement, error) {
	action, err := c.sess.Prepare(sql)
	if derr := c.drive(ctx, action, err); derr != nil {
		return Statement{}, derr
	}
	return c.sess.PreparedStatement(), nil
}

// ExecuteStatement runs a prepared statement with params bound and
// returns every resultset it produced.
func (c *Conn) ExecuteStatement(ctx context.Context, stmt Statement, params []Param) ([]Resultset, error) {
	action, err := c.sess.ExecuteStatement(stmt, params)
	if derr := c.drive(ctx, action, err); derr != nil {
		return nil, derr
	}
	return c.sess.Resultsets(), nil
}

// CloseStatement issues COM_STMT_CLOSE for stmt.
func (c *Conn) CloseStatement(ctx context.Context, stmt Statement) error {
	action, err := c.sess.CloseStatement(stmt)
	return c.drive(ctx, action, err)
}

// Ping issues COM_PING.
func (c *Conn) Ping(ctx context.Context) error {
	action, err := c.sess.Ping()
	return c.drive(ctx, action, err)
}

// ResetConnection issues COM_RESET_CONNECTION.
func (c *Conn) ResetConnection(ctx context.Context) error {
	action, err := c.sess.ResetConnection()
	return c.drive(ctx, action, err)
}

// RunPipeline batches several independent commands into one write and
// returns every stage's outcome.
func (c *Conn) RunPipeline(ctx context.Context, stages []PipelineStage) ([]PipelineStageResult, error) {
	action, err := c.sess.RunPipeline(stages)
	derr := c.drive(ctx, action, err)
	results := c.sess.PipelineResults()
	if derr != nil && results == nil {
		return nil, derr
	}
	return results, nil
}

// Quit issues COM_QUIT and closes the transport.
func (c *Conn) Quit(ctx context.Context) error {
	action, err := c.sess.Quit()
	derr := c.drive(ctx, action, err)
	_ = c.driv.Close()
	return derr
}

// Close tears down the transport immediately without sending COM_QUIT.
func (c *Conn) Close() error {
	c.sess.Close()
	return c.driv.Close()
}

// Session exposes the underlying sans-I/O session for callers that need
// lower-level accessors (character set, flavor, capabilities) not wrapped
// here.
func (c *Conn) Session() *session.Session { return c.sess }
