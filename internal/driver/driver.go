// Package driver adapts the sans-I/O session state machine
// (internal/session) to a real byte stream, turning its Actions into
// net.Conn reads/writes and TLS handshakes/shutdowns, with
// context.Context cancellation and per-call timeouts.
package driver

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/dbbouncer/mysqlcore/internal/session"
)

// ErrOperationAborted is returned when ctx is cancelled or its deadline
// expires while an Action was in flight. The session is left in an
// indeterminate state afterward: the caller must Close or
// ResetConnection it before issuing another command.
var ErrOperationAborted = errors.New("driver: operation aborted by cancellation")

// Driver runs a *session.Session's Actions against a net.Conn, upgrading
// to TLS in place when the session emits ActionSSLHandshake. It holds no
// protocol state of its own; all decisions live in the Session.
type Driver struct {
	sess *session.Session
	raw  net.Conn // the plain transport, always set
	tls  *tls.Conn // set once the session has upgraded
	cfg  *tls.Config
}

// New wraps conn for sess. cfg is used if/when the session requests a TLS
// upgrade; it may be nil if the session's TLSMode is TLSDisable.
func New(sess *session.Session, conn net.Conn, cfg *tls.Config) *Driver {
	return &Driver{sess: sess, raw: conn, cfg: cfg}
}

// activeConn returns the transport the next I/O call should use.
func (d *Driver) activeConn(useTLS bool) net.Conn {
	if useTLS && d.tls != nil {
		return d.tls
	}
	return d.raw
}

// Drive runs the session forward from (action, err) — the pair returned
// by the operation that started this call (Connect, Execute,...) —
// servicing every Action until the session reports Done. It returns the
// terminal error, if any.
func (d *Driver) Drive(ctx context.Context, action session.Action, err error) error {
	for {
		if err != nil {
			return err
		}
		if action.Done() {
			return action.Err
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrOperationAborted, ctx.Err())
		default:
		}

		switch action.Kind {
		case session.ActionRead:
			n, rerr := d.readSome(ctx, action.Buf, action.UseTLS)
			if rerr != nil {
				return rerr
			}
			action, err = d.sess.Resume(n)

		case session.ActionWrite:
			werr := d.writeAll(ctx, action.Buf, action.UseTLS)
			if werr != nil {
				return werr
			}
			action, err = d.sess.Resume(0)

		case session.ActionSSLHandshake:
			if herr := d.sslHandshake(ctx); herr != nil {
				return herr
			}
			action, err = d.sess.Resume(0)

		case session.ActionSSLShutdown:
			if serr := d.sslShutdown(); serr != nil {
				return serr
			}
			action, err = d.sess.Resume(0)

		default:
			return fmt.Errorf("driver: unknown action kind %d", action.Kind)
		}
	}
}

// readSome performs a single partial read into buf, honoring ctx's
// deadline. It never loops: the session's framing codec decides whether
// more bytes are needed and emits another ActionRead itself.
func (d *Driver) readSome(ctx context.Context, buf []byte, useTLS bool) (int, error) {
	conn := d.activeConn(useTLS)
	if err := applyDeadline(conn, ctx); err != nil {
		return 0, err
	}
	n, err := conn.Read(buf)
	if err != nil {
		return n, d.classifyIOErr(ctx, err)
	}
	return n, nil
}

// writeAll drains buf completely, looping on short writes.
func (d *Driver) writeAll(ctx context.Context, buf []byte, useTLS bool) error {
	conn := d.activeConn(useTLS)
	if err := applyDeadline(conn, ctx); err != nil {
		return err
	}
	for len(buf) > 0 {
		n, err := conn.Write(buf)
		if err != nil {
			return d.classifyIOErr(ctx, err)
		}
		buf = buf[n:]
	}
	return nil
}

// sslHandshake wraps the plain connection in a TLS client and performs
// the handshake. Once it returns, UseTLS-marked
// Actions are serviced over the encrypted transport.
func (d *Driver) sslHandshake(ctx context.Context) error {
	if d.cfg == nil {
		return errors.New("driver: TLS requested but no tls.Config was supplied")
	}
	if err := applyDeadline(d.raw, ctx); err != nil {
		return err
	}
	tlsConn := tls.Client(d.raw, d.cfg)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", session.ErrUnknownTLSError, err)
	}
	d.tls = tlsConn
	return nil
}

// sslShutdown closes the TLS layer, sending close_notify. The session
// only requests this while tearing a connection down, so it is safe to
// let it take the underlying transport with it.
func (d *Driver) sslShutdown() error {
	if d.tls == nil {
		return nil
	}
	err := d.tls.Close()
	d.tls = nil
	return err
}

// Close tears down the transport (whichever layer is active) without
// running any further protocol steps.
func (d *Driver) Close() error {
	if d.tls != nil {
		_ = d.tls.Close()
	}
	return d.raw.Close()
}

func applyDeadline(conn net.Conn, ctx context.Context) error {
	if dl, ok := ctx.Deadline(); ok {
		return conn.SetDeadline(dl)
	}
	return conn.SetDeadline(time.Time{})
}

// classifyIOErr turns a raw I/O error into ErrOperationAborted when it
// was actually caused by ctx expiring or being cancelled, so callers can
// distinguish "transport genuinely failed" from "we gave up waiting."
func (d *Driver) classifyIOErr(ctx context.Context, err error) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrOperationAborted, ctx.Err())
	default:
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrOperationAborted, err)
	}
	return err
}
