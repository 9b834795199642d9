package session

import (
	"errors"
	"fmt"

	"github.com/dbbouncer/mysqlcore/internal/protocol"
	"github.com/dbbouncer/mysqlcore/internal/wire"
)

// Client-side error sentinels. These
// never carry server diagnostics; a server-reported failure is always an
// *Error instead.
var (
	ErrProtocolValue             = errors.New("session: invalid protocol value")
	ErrIncompleteMessage         = protocol.ErrIncompleteMessage
	ErrExtraBytes                = protocol.ErrExtraBytes
	ErrSequenceMismatch          = errors.New("session: sequence number mismatch")
	ErrUnknownAuthPlugin         = errors.New("session: unknown authentication plugin")
	ErrAuthPluginRequiresSecure  = errors.New("session: authentication plugin requires a secure channel")
	ErrServerUnsupported         = errors.New("session: server does not support a required capability")
	ErrWrongNumParams            = errors.New("session: wrong number of statement parameters")
	ErrMetadataCheckFailed       = errors.New("session: resultset metadata does not match expected row shape")
	ErrNumResultsetsMismatch     = errors.New("session: unexpected number of resultsets")
	ErrRowTypeMismatch           = errors.New("session: row value does not match expected type")
	ErrStaticRowParsing          = errors.New("session: static row parsing error")
	ErrUnknownCharacterSet       = errors.New("session: unknown character set")
	ErrUnknownCollation          = errors.New("session: unknown collation")
	ErrMaxBufferSizeExceeded     = wire.ErrMaxBufferSizeExceeded
	ErrOperationInProgress       = errors.New("session: another operation is already in progress")
	ErrNotConnected              = errors.New("session: not connected")
	ErrEngagedInMultiFunction    = errors.New("session: already engaged in a multi-function operation")
	ErrNotEngagedInMultiFunction = errors.New("session: not engaged in a multi-function operation")
	ErrBadHandshakePacketType    = errors.New("session: unexpected packet type during handshake")
	ErrUnknownTLSError           = errors.New("session: unknown TLS error")
	ErrLocalInfileUnsupported    = errors.New("session: LOCAL INFILE requests are not supported")
	ErrOperationAborted          = errors.New("session: operation aborted by cancellation; session must be closed or reset")
	ErrNotAwaitingResultsetHead  = errors.New("session: not awaiting a resultset head")
	ErrNotAwaitingRows           = errors.New("session: not awaiting row data")
)

// Error is a server-reported failure: the library's own text
// never merges with the server's, because the server's message is
// untrusted input encoded in the connection's character set.
type Error struct {
	Code          uint16
	SQLState      string
	ServerMessage string
	ClientMessage string
}

func (e *Error) Error() string {
	if e.ClientMessage != "" {
		return fmt.Sprintf("session: %s: server error %d (%s): %s", e.ClientMessage, e.Code, e.SQLState, e.ServerMessage)
	}
	return fmt.Sprintf("session: server error %d (%s): %s", e.Code, e.SQLState, e.ServerMessage)
}

func newErrorFromPacket(p protocol.ErrPacket, clientMessage string) *Error {
	return &Error{
		Code: p.Code,
		SQLState: p.SQLState,
		ServerMessage: p.Message,
		ClientMessage: clientMessage,
	}
}
