package session

import "github.com/dbbouncer/mysqlcore/internal/protocol"

// Ping issues COM_PING and expects OK or ERR.
func (s *Session) Ping() (Action, error) {
	return s.begin(&okOrErrOp{command: cmdPing, description: "ping"}, StatusReady)
}

// ResetConnection issues COM_RESET_CONNECTION. On success the server has
// cleared session variables, temporary tables, and prepared statements,
// and the session sets its backslash-escapes flag back to true.
func (s *Session) ResetConnection() (Action, error) {
	return s.begin(&okOrErrOp{command: cmdResetConn, description: "reset connection", onSuccess: func(s *Session) {
		s.backslashEscapes = true
	}}, StatusReady)
}

// okOrErrOp is the shared shape for commands whose payload is just the
// command byte and whose reply is always OK or ERR.
type okOrErrOp struct {
	command     byte
	description string
	onSuccess   func(*Session)
	awaiting    bool
}

func (op *okOrErrOp) step(s *Session) (Action, error) {
	if !op.awaiting {
		op.awaiting = true
		return s.beginWrite([]byte{op.command}), nil
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
		if op.onSuccess != nil {
			op.onSuccess(s)
		}
		return Action{Kind: ActionNone}, nil
	}
	if protocol.IsErrHeader(msg) {
		ep, err := protocol.DecodeErr(msg, s.capabilities)
		if err != nil {
			return Action{Kind: ActionNone, Err: err}, err
		}
		sessErr := newErrorFromPacket(ep, op.description+" failed")
		return Action{Kind: ActionNone, Err: sessErr}, sessErr
	}
	return Action{Kind: ActionNone, Err: ErrProtocolValue}, ErrProtocolValue
}

// Quit issues COM_QUIT. The server closes the transport without a reply,
// so this operation completes as soon as the write drains; the driver is
// expected to close the connection afterward.
func (s *Session) Quit() (Action, error) {
	return s.begin(&quitOp{}, StatusReady, StatusEngagedInMultiFunction)
}

type quitOp struct{ written bool }

func (op *quitOp) step(s *Session) (Action, error) {
	if !op.written {
		op.written = true
		return s.beginWrite([]byte{cmdQuit}), nil
	}
	s.status = StatusNotConnected
	return Action{Kind: ActionNone}, nil
}

// Close tears down the session's local state without sending anything.
// It is the counterpart to a driver-level abrupt disconnect or a
// cancelled operation that has left the protocol state indeterminate:
// the session becomes not-connected and unusable until a fresh Connect.
func (s *Session) Close() {
	s.status = StatusNotConnected
	s.opInProgress = false
	s.op = nil
	s.multi = nil
	s.frameReader.Reset(0)
}
