// Package session implements the sans-I/O MySQL/MariaDB client session: a
// pure, resumable state machine driving handshake, command dispatch,
// resultset consumption, pipelines, and character-set tracking. It never
// touches a socket directly — every blocking step is surfaced as an
// Action for a thin I/O driver (internal/driver) to execute.
package session

import (
	"log/slog"

	"github.com/dbbouncer/mysqlcore/internal/protocol"
	"github.com/dbbouncer/mysqlcore/internal/wire"
)

// Status is the coarse session lifecycle state.
type Status int

const (
	StatusNotConnected Status = iota
	StatusReady
	StatusEngagedInMultiFunction
)

func (s Status) String() string {
	switch s {
	case StatusNotConnected:
		return "not-connected"
	case StatusReady:
		return "ready"
	case StatusEngagedInMultiFunction:
		return "engaged-in-multi-function"
	default:
		return "unknown"
	}
}

// Flavor distinguishes the two server families whose handshake banners
// this core recognizes.
type Flavor int

const (
	FlavorUnknown Flavor = iota
	FlavorMySQL
	FlavorMariaDB
)

// ActionKind discriminates the directives a resumed operation hands back
// to the I/O driver.
type ActionKind int

const (
	ActionNone ActionKind = iota
	ActionRead
	ActionWrite
	ActionSSLHandshake
	ActionSSLShutdown
)

// Action is the sans-I/O machine's next_action: what the driver must do
// before calling Resume again. Buf is the destination for ActionRead (a
// slice of the session's own read buffer) or the source for ActionWrite.
// UseTLS tells the driver whether this action must go through the TLS
// wrapper once one is established.
type Action struct {
	Kind   ActionKind
	Buf    []byte
	UseTLS bool
	Err    error
}

// Done reports whether the operation has finished (successfully or not).
func (a Action) Done() bool { return a.Kind == ActionNone }

// Config bounds the session's buffers and behavior. Pool-level
// configuration composes a session.Config per connection.
type Config struct {
	Username  string
	Password  string
	Database  string
	TLSMode   TLSMode
	Collation uint16 // 0 selects a default.

	InitialBufferSize int
	MaxBufferSize     int

	// MultiQueries allows a single COM_QUERY to carry multiple
	// semicolon-separated statements (CLIENT_MULTI_STATEMENTS).
	MultiQueries bool

	// DecodeDecimals is not read by the session: decimal columns always
	// decode to their text form, returned by protocol.Field.Decimal().
	DecodeDecimals bool

	Logger *slog.Logger
}

// TLSMode mirrors the pool's ssl setting.
type TLSMode int

const (
	TLSDisable TLSMode = iota
	TLSEnable  // upgrade if the server supports it
	TLSRequire
)

func (c Config) effectiveLogger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

const (
	defaultInitialBufferSize = 4 << 10
	defaultMaxBufferSize     = 64 << 20
)

// Session is the sans-I/O state machine: every public operation advances
// it and returns an Action describing what the caller must do next. A
// Session must not be driven by two operations concurrently.
type Session struct {
	cfg    Config
	logger *slog.Logger

	status           Status
	connectionID     uint32
	flavor           Flavor
	capabilities     protocol.Capability
	tlsActive        bool
	characterSet     uint16
	backslashEscapes bool
	opInProgress     bool

	readBuf     *wire.ReadBuffer
	frameReader *wire.FrameReader
	writeSeq    byte
	writeBuf    []byte

	fieldStorage []protocol.Field // reused scratch storage across row batches

	op    operation
	multi *multiState
}

// New creates a not-connected session. Call Connect to begin the
// handshake.
func New(cfg Config) *Session {
	initial := cfg.InitialBufferSize
	if initial <= 0 {
		initial = defaultInitialBufferSize
	}
	max := cfg.MaxBufferSize
	if max <= 0 {
		max = defaultMaxBufferSize
	}
	if max < initial {
		max = initial
	}
	return &Session{
		cfg: cfg,
		logger: cfg.effectiveLogger(),
		status: StatusNotConnected,
		backslashEscapes: true,
		readBuf: wire.NewReadBuffer(initial, max),
		frameReader: wire.NewFrameReader(),
	}
}

// Status reports the session's current lifecycle state.
func (s *Session) Status() Status { return s.status }

// TLSActive reports whether the transport has been upgraded to TLS.
func (s *Session) TLSActive() bool { return s.tlsActive }

// ConnectionID returns the server-assigned connection id from handshake.
func (s *Session) ConnectionID() uint32 { return s.connectionID }

// Flavor reports which server family the handshake banner identified.
func (s *Session) Flavor() Flavor { return s.flavor }

// Capabilities returns the negotiated capability bitmap.
func (s *Session) Capabilities() protocol.Capability { return s.capabilities }

// CharacterSet returns the collation id currently in effect.
func (s *Session) CharacterSet() uint16 { return s.characterSet }

// BackslashEscapes reports whether the server currently treats backslash
// as an escape character.
func (s *Session) BackslashEscapes() bool { return s.backslashEscapes }

// operation is implemented by every sub-machine (handshake, execution,
// pipeline,...). step is called once per Resume; it must not block and
// must return either a non-terminal Action (more I/O needed) or a
// terminal Action{Kind: ActionNone} when finished, storing its result
// (if any) on the Session or the concrete operation struct for the
// caller to retrieve.
type operation interface {
	step(s *Session) (Action, error)
}

// begin installs op as the session's current operation, enforcing the
// at-most-one-outstanding-command invariant.
func (s *Session) begin(op operation, requiredStatuses ...Status) (Action, error) {
	if s.opInProgress {
		return Action{Kind: ActionNone, Err: ErrOperationInProgress}, ErrOperationInProgress
	}
	if len(requiredStatuses) > 0 && !statusIn(s.status, requiredStatuses) {
		err := s.statusError(requiredStatuses)
		return Action{Kind: ActionNone, Err: err}, err
	}
	s.opInProgress = true
	s.op = op
	return s.Resume(0)
}

func statusIn(status Status, allowed []Status) bool {
	for _, a := range allowed {
		if status == a {
			return true
		}
	}
	return false
}

func (s *Session) statusError(required []Status) error {
	if s.status == StatusNotConnected {
		return ErrNotConnected
	}
	if statusIn(StatusEngagedInMultiFunction, required) {
		return ErrNotEngagedInMultiFunction
	}
	return ErrEngagedInMultiFunction
}

// Resume drives the current operation forward. n is the number of bytes
// the driver placed at the start of the buffer it was handed for the
// most recent ActionRead; it is ignored for every other action kind.
// Resume must be called exactly once per action the session emitted,
// after the driver has carried it out.
func (s *Session) Resume(n int) (Action, error) {
	if s.op == nil {
		return Action{Kind: ActionNone}, nil
	}
	if n > 0 {
		s.readBuf.CommitRead(n)
	}
	action, err := s.op.step(s)
	if action.Done() {
		s.opInProgress = false
	}
	return action, err
}

// nextMessage returns the next complete logical message, or an ActionRead
// directive if more bytes are needed. Operations call this from their
// step function whenever they need to read a packet; on the next Resume
// the step function re-enters and calls nextMessage again, which uses
// the freshly committed bytes.
func (s *Session) nextMessage() (msg []byte, action Action, ready bool, err error) {
	msg, ok, err := s.frameReader.Next(s.readBuf)
	if err != nil {
		return nil, Action{}, false, err
	}
	if ok {
		return msg, Action{}, true, nil
	}
	if growErr := s.ensureReadCapacity(); growErr != nil {
		return nil, Action{}, false, growErr
	}
	return nil, Action{Kind: ActionRead, Buf: s.readBuf.Free(), UseTLS: s.tlsActive}, false, nil
}

// ensureReadCapacity grows the read buffer if its free region has run
// dry, so the next ActionRead always offers the driver somewhere to put
// bytes.
func (s *Session) ensureReadCapacity() error {
	if len(s.readBuf.Free()) > 0 {
		return nil
	}
	return s.readBuf.Grow(4 << 10)
}

// beginWrite resets the write sequence number to 0, as required whenever
// the client starts a new command, and appends payload as one or more
// framed messages.
func (s *Session) beginWrite(payload []byte) Action {
	s.writeSeq = 0
	s.writeBuf = s.writeBuf[:0]
	s.writeBuf, s.writeSeq = wire.WriteMessage(s.writeBuf, payload, s.writeSeq)
	s.frameReader.Reset(s.writeSeq)
	return Action{Kind: ActionWrite, Buf: s.writeBuf, UseTLS: s.tlsActive}
}

// beginWriteContinuing appends payload using the session's running write
// sequence number instead of restarting at 0: for the rare case (the
// TLS-upgraded handshake response) where a later frame logically
// continues a command whose earlier frame already advanced the counter.
func (s *Session) beginWriteContinuing(payload []byte) Action {
	s.writeBuf = s.writeBuf[:0]
	s.writeBuf, s.writeSeq = wire.WriteMessage(s.writeBuf, payload, s.writeSeq)
	s.frameReader.Reset(s.writeSeq)
	return Action{Kind: ActionWrite, Buf: s.writeBuf, UseTLS: s.tlsActive}
}

// beginHandshakeWrite appends payload as the next frame of the one running
// sequence counter that the whole handshake exchange shares with the
// server: greeting is seq 0, SSLRequest/HandshakeResponse41 seq 1 (seq 2
// after a TLS upgrade), every auth-switch-response or full-auth-response
// after that continuing to increment. It syncs the write counter from the
// frame reader's own expected-next sequence number, which the most recent
// read (or write, via Reset) last advanced, so every handshake write lands
// on the number the server actually expects regardless of how many reads
// or TLS upgrades came before it.
func (s *Session) beginHandshakeWrite(payload []byte) Action {
	s.writeSeq = s.frameReader.Seq()
	return s.beginWriteContinuing(payload)
}

// continueWrite appends another framed message to the in-flight write
// using the session's running sequence number, for multi-stage writes
// such as pipelines that serialize several commands into one buffer
// before flushing.
func (s *Session) continueWrite(payload []byte) {
	s.writeBuf, s.writeSeq = wire.WriteMessage(s.writeBuf, payload, s.writeSeq)
}

// appendPipelineStage writes payload as a new framed command within an
// in-flight pipeline write buffer, restarting that stage's own sequence
// counter at 0. It returns the sequence number at which that stage's
// response is expected to begin.
func (s *Session) appendPipelineStage(payload []byte) byte {
	s.writeBuf, s.writeSeq = wire.WriteMessage(s.writeBuf, payload, 0)
	return s.writeSeq
}

// flushWrite returns the accumulated write buffer as a single Write
// action.
func (s *Session) flushWrite() Action {
	return Action{Kind: ActionWrite, Buf: s.writeBuf, UseTLS: s.tlsActive}
}
