package session

import (
	"github.com/dbbouncer/mysqlcore/internal/protocol"
)

// resultEvent is what one call to resultsetReader's read methods produced.
type resultEvent int

const (
	eventNeedIO resultEvent = iota
	eventNoResultset
	eventColumnsReady
	eventRow
	eventResultsetDone
)

type execHeadPhase int

const (
	headAwaitFirstPacket execHeadPhase = iota
	headAwaitColumnDefs
)

// resultsetReader drives the execution-response parser and
// row streaming shared by aggregate Execute, the
// multi-function StartExecution/ReadResultsetHead/ReadSomeRows trio, and
// prepared-statement execution. binary selects text-protocol vs.
// binary-protocol row decoding.
type resultsetReader struct {
	binary bool

	headPhase     execHeadPhase
	columnsWanted int
	columns       []protocol.ColumnDefinition

	row Row
	ok  protocol.OKPacket
}

// readHead advances through the execution response header: OK/ERR (no
// resultset), or a column count followed by that many column-definition
// packets. It loops internally across column-definition packets,
// suspending for I/O whenever a message isn't fully buffered yet.
func (r *resultsetReader) readHead(s *Session) (resultEvent, Action, error) {
	for {
		switch r.headPhase {
		case headAwaitFirstPacket:
			msg, action, ready, err := s.nextMessage()
			if err != nil {
				return eventNeedIO, Action{}, err
			}
			if !ready {
				return eventNeedIO, action, nil
			}
			if len(msg) == 0 {
				return eventNeedIO, Action{}, ErrProtocolValue
			}

			if protocol.IsOKHeader(msg, s.capabilities.Has(protocol.CapDeprecateEOF)) {
				ok, err := protocol.DecodeOK(msg, s.capabilities)
				if err != nil {
					return eventNeedIO, Action{}, err
				}
				s.backslashEscapes = !ok.StatusFlags.Has(protocol.StatusNoBackslashEscapes)
				r.ok = ok
				return eventNoResultset, Action{}, nil
			}
			if protocol.IsErrHeader(msg) {
				ep, err := protocol.DecodeErr(msg, s.capabilities)
				if err != nil {
					return eventNeedIO, Action{}, err
				}
				return eventNeedIO, Action{}, newErrorFromPacket(ep, "command failed")
			}
			if msg[0] == 0xfb {
				return eventNeedIO, Action{}, ErrLocalInfileUnsupported
			}

			count, _, _, err := protocol.LenEncInt(msg)
			if err != nil {
				return eventNeedIO, Action{}, err
			}
			r.columns = r.columns[:0]
			r.columnsWanted = int(count)
			r.headPhase = headAwaitColumnDefs
			if r.columnsWanted == 0 {
				r.headPhase = headAwaitFirstPacket
				return eventColumnsReady, Action{}, nil
			}

		case headAwaitColumnDefs:
			msg, action, ready, err := s.nextMessage()
			if err != nil {
				return eventNeedIO, Action{}, err
			}
			if !ready {
				return eventNeedIO, action, nil
			}
			cd, err := protocol.DecodeColumnDefinition(msg)
			if err != nil {
				return eventNeedIO, Action{}, err
			}
			r.columns = append(r.columns, cd)
			r.columnsWanted--
			if r.columnsWanted == 0 {
				r.headPhase = headAwaitFirstPacket
				return eventColumnsReady, Action{}, nil
			}
		}
	}
}

// readRowOrTerminal reads exactly one row against the current column set,
// or the resultset's terminal OK/EOF-as-OK record.
func (r *resultsetReader) readRowOrTerminal(s *Session) (resultEvent, Action, error) {
	msg, action, ready, err := s.nextMessage()
	if err != nil {
		return eventNeedIO, Action{}, err
	}
	if !ready {
		return eventNeedIO, action, nil
	}

	deprecateEOF := s.capabilities.Has(protocol.CapDeprecateEOF)
	isTerminal := (deprecateEOF && protocol.IsOKHeader(msg, true)) || (!deprecateEOF && protocol.IsEOFHeader(msg))
	if isTerminal {
		ok, err := protocol.DecodeOK(msg, s.capabilities)
		if err != nil {
			return eventNeedIO, Action{}, err
		}
		s.backslashEscapes = !ok.StatusFlags.Has(protocol.StatusNoBackslashEscapes)
		r.ok = ok
		return eventResultsetDone, Action{}, nil
	}
	if protocol.IsErrHeader(msg) {
		ep, err := protocol.DecodeErr(msg, s.capabilities)
		if err != nil {
			return eventNeedIO, Action{}, err
		}
		return eventNeedIO, Action{}, newErrorFromPacket(ep, "row read failed")
	}

	var fields []protocol.Field
	if r.binary {
		fields, err = protocol.DecodeBinaryRow(msg, r.columns)
	} else {
		fields, err = protocol.DecodeTextRow(msg, r.columns)
	}
	if err != nil {
		return eventNeedIO, Action{}, err
	}
	r.row = Row{Fields: fields}
	return eventRow, Action{}, nil
}
