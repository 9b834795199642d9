package session

import (
	"fmt"

	"github.com/dbbouncer/mysqlcore/internal/protocol"
)

// SetCharacterSet issues `SET NAMES '<charset>'` and, on success, records
// the new character set. The charset name is validated
// against the built-in table before any bytes are sent, so an unknown
// name never reaches the wire.
func (s *Session) SetCharacterSet(charset string) (Action, error) {
	collation, ok := protocol.CollationForCharset(charset)
	if !ok {
		return Action{Kind: ActionNone, Err: ErrUnknownCharacterSet}, ErrUnknownCharacterSet
	}
	return s.begin(&setCharsetOp{charset: charset, collation: collation}, StatusReady)
}

type setCharsetOp struct {
	charset   string
	collation uint16
	awaiting  bool
}

func (op *setCharsetOp) step(s *Session) (Action, error) {
	if !op.awaiting {
		query := fmt.Sprintf("SET NAMES '%s'", op.charset)
		op.awaiting = true
		return s.beginWrite(encodeCommand(nil, cmdQuery, []byte(query))), nil
	}

	msg, action, ready, err := s.nextMessage()
	if err != nil {
		return Action{Kind: ActionNone, Err: err}, err
	}
	if !ready {
		return action, nil
	}

	if protocol.IsOKHeader(msg, s.capabilities.Has(protocol.CapDeprecateEOF)) {
		ok, err := protocol.DecodeOK(msg, s.capabilities)
		if err != nil {
			return Action{Kind: ActionNone, Err: err}, err
		}
		s.backslashEscapes = !ok.StatusFlags.Has(protocol.StatusNoBackslashEscapes)
		s.characterSet = op.collation
		return Action{Kind: ActionNone}, nil
	}
	if protocol.IsErrHeader(msg) {
		ep, err := protocol.DecodeErr(msg, s.capabilities)
		if err != nil {
			return Action{Kind: ActionNone, Err: err}, err
		}
		sessErr := newErrorFromPacket(ep, "SET NAMES failed")
		return Action{Kind: ActionNone, Err: sessErr}, sessErr
	}
	return Action{Kind: ActionNone, Err: ErrProtocolValue}, ErrProtocolValue
}
