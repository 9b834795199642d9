package session

import (
	"github.com/dbbouncer/mysqlcore/internal/protocol"
)

// Statement is an opaque prepared-statement handle. It carries just enough metadata for the caller to
// bind parameters and interpret the resultset; the server owns the
// actual prepared plan.
type Statement struct {
	ID         uint32
	NumParams  uint16
	NumColumns uint16
	ParamDefs  []protocol.ColumnDefinition
	ColumnDefs []protocol.ColumnDefinition
}

// Prepare issues COM_STMT_PREPARE. The session must
// be ready. PreparedStatement retrieves the handle once the returned
// Action reports completion.
func (s *Session) Prepare(sql string) (Action, error) {
	return s.begin(&prepareOp{query: sql}, StatusReady)
}

// PreparedStatement returns the handle produced by the most recently
// completed Prepare call.
func (s *Session) PreparedStatement() Statement {
	if op, ok := s.op.(*prepareOp); ok {
		return op.stmt
	}
	return Statement{}
}

type preparePhase int

const (
	prepareAwaitOK preparePhase = iota
	prepareAwaitParamDefs
	prepareAwaitColumnDefs
)

type prepareOp struct {
	query string

	written bool
	phase   preparePhase
	stmt    Statement

	paramsRemaining  int
	columnsRemaining int
	deprecateEOF     bool
}

func (op *prepareOp) step(s *Session) (Action, error) {
	if !op.written {
		op.written = true
		op.deprecateEOF = s.capabilities.Has(protocol.CapDeprecateEOF)
		return s.beginWrite(encodeCommand(nil, cmdStmtPrepare, []byte(op.query))), nil
	}

	for {
		switch op.phase {
		case prepareAwaitOK:
			msg, action, ready, err := s.nextMessage()
			if err != nil {
				return Action{Kind: ActionNone, Err: err}, err
			}
			if !ready {
				return action, nil
			}
			if protocol.IsErrHeader(msg) {
				ep, err := protocol.DecodeErr(msg, s.capabilities)
				if err != nil {
					return Action{Kind: ActionNone, Err: err}, err
				}
				sessErr := newErrorFromPacket(ep, "prepare failed")
				return Action{Kind: ActionNone, Err: sessErr}, sessErr
			}
			ok, err := protocol.DecodePrepareOK(msg)
			if err != nil {
				return Action{Kind: ActionNone, Err: err}, err
			}
			op.stmt.ID = ok.StatementID
			op.stmt.NumParams = ok.NumParams
			op.stmt.NumColumns = ok.NumColumns
			op.paramsRemaining = int(ok.NumParams)
			op.columnsRemaining = int(ok.NumColumns)
			op.phase = prepareAwaitParamDefs
			if op.paramsRemaining == 0 {
				op.phase = prepareAwaitColumnDefs
			}

		case prepareAwaitParamDefs:
			if op.paramsRemaining == 0 {
				if !op.deprecateEOF {
					if done, action, err := op.consumeEOF(s); !done {
						return action, err
					}
				}
				op.phase = prepareAwaitColumnDefs
				continue
			}
			msg, action, ready, err := s.nextMessage()
			if err != nil {
				return Action{Kind: ActionNone, Err: err}, err
			}
			if !ready {
				return action, nil
			}
			cd, err := protocol.DecodeColumnDefinition(msg)
			if err != nil {
				return Action{Kind: ActionNone, Err: err}, err
			}
			op.stmt.ParamDefs = append(op.stmt.ParamDefs, cd)
			op.paramsRemaining--

		case prepareAwaitColumnDefs:
			if op.columnsRemaining == 0 {
				if !op.deprecateEOF && op.stmt.NumColumns > 0 {
					if done, action, err := op.consumeEOF(s); !done {
						return action, err
					}
				}
				return Action{Kind: ActionNone}, nil
			}
			msg, action, ready, err := s.nextMessage()
			if err != nil {
				return Action{Kind: ActionNone, Err: err}, err
			}
			if !ready {
				return action, nil
			}
			cd, err := protocol.DecodeColumnDefinition(msg)
			if err != nil {
				return Action{Kind: ActionNone, Err: err}, err
			}
			op.stmt.ColumnDefs = append(op.stmt.ColumnDefs, cd)
			op.columnsRemaining--
		}
	}
}

// consumeEOF reads and discards the legacy EOF packet that separates
// COM_STMT_PREPARE_OK's parameter and column metadata blocks when
// CLIENT_DEPRECATE_EOF isn't negotiated. It returns done=false with an
// Action when more I/O is needed, matching the surrounding switch's
// control flow.
func (op *prepareOp) consumeEOF(s *Session) (done bool, action Action, err error) {
	msg, action, ready, err := s.nextMessage()
	if err != nil {
		return false, Action{Kind: ActionNone, Err: err}, err
	}
	if !ready {
		return false, action, nil
	}
	if !protocol.IsEOFHeader(msg) {
		return false, Action{Kind: ActionNone, Err: ErrProtocolValue}, ErrProtocolValue
	}
	return true, Action{}, nil
}

// ExecuteStatement issues COM_STMT_EXECUTE and runs it to completion in
// aggregate mode. params must match stmt.NumParams.
func (s *Session) ExecuteStatement(stmt Statement, params []protocol.Param) (Action, error) {
	if len(params) != int(stmt.NumParams) {
		return Action{Kind: ActionNone, Err: ErrWrongNumParams}, ErrWrongNumParams
	}
	return s.begin(&stmtExecuteOp{stmt: stmt, params: params}, StatusReady)
}

type stmtExecuteOp struct {
	stmt    Statement
	params  []protocol.Param
	written bool
	agg     aggregateReader
}

func (op *stmtExecuteOp) step(s *Session) (Action, error) {
	if !op.written {
		op.written = true
		op.agg.reader.binary = true
		op.agg.awaitHead = true
		payload, err := encodeStmtExecutePayload(op.stmt.ID, op.params)
		if err != nil {
			return Action{Kind: ActionNone, Err: err}, err
		}
		return s.beginWrite(encodeCommand(nil, cmdStmtExecute, payload)), nil
	}
	return op.agg.run(s)
}

// encodeStmtExecutePayload serializes COM_STMT_EXECUTE's body: statement
// id, a cursor-type flag (always CURSOR_TYPE_NO_CURSOR, since this core
// never requests a server-side cursor), a fixed iteration count of 1, and
// (when there are parameters) the binary parameter block.
func encodeStmtExecutePayload(stmtID uint32, params []protocol.Param) ([]byte, error) {
	var buf []byte
	buf = protocol.PutFixedUint(buf, uint64(stmtID), 4)
	buf = append(buf, 0x00) // CURSOR_TYPE_NO_CURSOR
	buf = protocol.PutFixedUint(buf, 1, 4)
	if len(params) == 0 {
		return buf, nil
	}
	return protocol.EncodeBinaryParams(buf, params)
}

// CloseStatement issues COM_STMT_CLOSE, which the server never
// acknowledges: the statement id becomes invalid to reuse
// as soon as the write completes.
func (s *Session) CloseStatement(stmt Statement) (Action, error) {
	return s.begin(&closeStatementOp{stmtID: stmt.ID}, StatusReady)
}

type closeStatementOp struct {
	stmtID  uint32
	written bool
}

func (op *closeStatementOp) step(s *Session) (Action, error) {
	if !op.written {
		op.written = true
		var payload []byte
		payload = protocol.PutFixedUint(payload, uint64(op.stmtID), 4)
		return s.beginWrite(encodeCommand(nil, cmdStmtClose, payload)), nil
	}
	return Action{Kind: ActionNone}, nil
}
