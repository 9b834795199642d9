package session

import (
	"github.com/dbbouncer/mysqlcore/internal/protocol"
)

// Row is one decoded resultset row.
type Row struct {
	Fields []protocol.Field
}

// Resultset is one aggregate-mode resultset: its column metadata and every
// row the server sent for it.
type Resultset struct {
	Columns []protocol.ColumnDefinition
	Rows    []Row
	OK      protocol.OKPacket
}

// Execute runs sql to completion in aggregate mode: every resultset the command produces is read and buffered
// before Execute returns. The session must be ready. Resultsets
// retrieves the accumulated output once the Action reports completion.
func (s *Session) Execute(sql string) (Action, error) {
	return s.begin(&executeOp{query: sql}, StatusReady)
}

// Resultsets returns the resultsets accumulated by the most recently
// completed Execute call.
func (s *Session) Resultsets() []Resultset {
	if op, ok := s.op.(*executeOp); ok {
		return op.agg.resultsets
	}
	if op, ok := s.op.(*stmtExecuteOp); ok {
		return op.agg.resultsets
	}
	return nil
}

// aggregateReader drives resultsetReader through an entire command's
// output, buffering every resultset.
// Shared by plain Execute (text rows) and prepared-statement execution
// (binary rows).
type aggregateReader struct {
	reader     resultsetReader
	resultsets []Resultset
	awaitHead  bool
}

func (a *aggregateReader) run(s *Session) (Action, error) {
	for {
		if a.awaitHead {
			event, action, err := a.reader.readHead(s)
			if err != nil {
				return Action{Kind: ActionNone, Err: err}, err
			}
			if event == eventNeedIO {
				return action, nil
			}
			if event == eventNoResultset {
				a.resultsets = append(a.resultsets, Resultset{OK: a.reader.ok})
				if !a.reader.ok.StatusFlags.Has(protocol.StatusMoreResultsExist) {
					return Action{Kind: ActionNone}, nil
				}
				continue
			}
			// eventColumnsReady
			a.resultsets = append(a.resultsets, Resultset{Columns: append([]protocol.ColumnDefinition(nil), a.reader.columns...)})
			a.awaitHead = false
			continue
		}

		event, action, err := a.reader.readRowOrTerminal(s)
		if err != nil {
			return Action{Kind: ActionNone, Err: err}, err
		}
		if event == eventNeedIO {
			return action, nil
		}
		cur := &a.resultsets[len(a.resultsets)-1]
		if event == eventRow {
			cur.Rows = append(cur.Rows, a.reader.row)
			continue
		}
		// eventResultsetDone
		cur.OK = a.reader.ok
		a.awaitHead = true
		if !a.reader.ok.StatusFlags.Has(protocol.StatusMoreResultsExist) {
			return Action{Kind: ActionNone}, nil
		}
	}
}

type executeOp struct {
	query   string
	written bool
	agg     aggregateReader
}

func (op *executeOp) step(s *Session) (Action, error) {
	if !op.written {
		op.written = true
		op.agg.awaitHead = true
		return s.beginWrite(encodeCommand(nil, cmdQuery, []byte(op.query))), nil
	}
	return op.agg.run(s)
}

// StartExecution begins multi-function mode: it writes sql
// and reads only the head of the first resultset (or a no-resultset OK),
// leaving row consumption to ReadSomeRows/ReadResultsetHead. The session
// transitions to engaged-in-multi-function as soon as this begins and
// stays there until the command's final resultset is fully drained.
func (s *Session) StartExecution(sql string) (Action, error) {
	return s.begin(&multiExecOp{query: sql}, StatusReady)
}

// ReadResultsetHead reads the head of the next resultset after the
// previous one's MORE_RESULTS_EXISTS status bit was set.
// Requires engaged-in-multi-function, with the previous resultset fully
// drained.
func (s *Session) ReadResultsetHead() (Action, error) {
	return s.begin(&multiHeadOp{}, StatusEngagedInMultiFunction)
}

// ReadSomeRows reads one row, or the terminal OK/EOF of the current
// resultset, continuing multi-function mode. Requires
// engaged-in-multi-function, with a resultset head already read.
func (s *Session) ReadSomeRows() (Action, error) {
	return s.begin(&multiRowsOp{}, StatusEngagedInMultiFunction)
}

// MultiFunctionEvent reports what the most recently completed
// StartExecution/ReadResultsetHead/ReadSomeRows call produced.
type MultiFunctionEvent int

const (
	MultiFunctionNone MultiFunctionEvent = iota
	MultiFunctionNoResultset
	MultiFunctionColumnsReady
	MultiFunctionRow
	MultiFunctionResultsetDone
)

// multiPhase tracks which half of a resultset multi-function mode is
// currently expecting: a head (ReadResultsetHead) or row data
// (ReadSomeRows). It is what multiHeadOp/multiRowsOp check before
// dispatching, since headPhase on resultsetReader only distinguishes
// sub-phases within head-reading itself.
type multiPhase int

const (
	multiAwaitingHead multiPhase = iota
	multiAwaitingRows
)

// multiState is the shared, persistent multi-function bookkeeping that
// survives across StartExecution/ReadResultsetHead/ReadSomeRows calls; it
// is stashed on the Session because each of those calls installs its own
// operation value.
type multiState struct {
	reader     resultsetReader
	phase      multiPhase
	lastEvent  MultiFunctionEvent
	lastColumn []protocol.ColumnDefinition
	lastRow    Row
	lastOK     protocol.OKPacket
}

// LastMultiFunctionEvent reports the outcome of the most recently
// completed multi-function call.
func (s *Session) LastMultiFunctionEvent() MultiFunctionEvent {
	if s.multi == nil {
		return MultiFunctionNone
	}
	return s.multi.lastEvent
}

// CurrentColumns returns the column metadata of the resultset head most
// recently read by StartExecution/ReadResultsetHead.
func (s *Session) CurrentColumns() []protocol.ColumnDefinition {
	if s.multi == nil {
		return nil
	}
	return s.multi.lastColumn
}

// CurrentRow returns the row most recently read by ReadSomeRows, valid
// only when LastMultiFunctionEvent is MultiFunctionRow.
func (s *Session) CurrentRow() Row {
	if s.multi == nil {
		return Row{}
	}
	return s.multi.lastRow
}

// CurrentOK returns the OK record that closed the current resultset or
// command, valid when LastMultiFunctionEvent is MultiFunctionNoResultset
// or MultiFunctionResultsetDone.
func (s *Session) CurrentOK() protocol.OKPacket {
	if s.multi == nil {
		return protocol.OKPacket{}
	}
	return s.multi.lastOK
}

type multiExecOp struct {
	query   string
	written bool
}

func (op *multiExecOp) step(s *Session) (Action, error) {
	if !op.written {
		op.written = true
		s.status = StatusEngagedInMultiFunction
		s.multi = &multiState{}
		return s.beginWrite(encodeCommand(nil, cmdQuery, []byte(op.query))), nil
	}
	return driveMultiHead(s)
}

type multiHeadOp struct{}

func (op *multiHeadOp) step(s *Session) (Action, error) {
	if s.multi.phase != multiAwaitingHead {
		err := ErrNotAwaitingResultsetHead
		return Action{Kind: ActionNone, Err: err}, err
	}
	return driveMultiHead(s)
}

func driveMultiHead(s *Session) (Action, error) {
	event, action, err := s.multi.reader.readHead(s)
	if err != nil {
		s.status = StatusReady
		return Action{Kind: ActionNone, Err: err}, err
	}
	if event == eventNeedIO {
		return action, nil
	}
	if event == eventNoResultset {
		s.multi.lastEvent = MultiFunctionNoResultset
		s.multi.lastOK = s.multi.reader.ok
		s.multi.lastColumn = nil
		if !s.multi.reader.ok.StatusFlags.Has(protocol.StatusMoreResultsExist) {
			s.status = StatusReady
		}
		return Action{Kind: ActionNone}, nil
	}
	s.multi.lastEvent = MultiFunctionColumnsReady
	s.multi.lastColumn = append([]protocol.ColumnDefinition(nil), s.multi.reader.columns...)
	s.multi.phase = multiAwaitingRows
	return Action{Kind: ActionNone}, nil
}

type multiRowsOp struct{}

func (op *multiRowsOp) step(s *Session) (Action, error) {
	if s.multi.phase != multiAwaitingRows {
		err := ErrNotAwaitingRows
		return Action{Kind: ActionNone, Err: err}, err
	}
	event, action, err := s.multi.reader.readRowOrTerminal(s)
	if err != nil {
		s.status = StatusReady
		return Action{Kind: ActionNone, Err: err}, err
	}
	if event == eventNeedIO {
		return action, nil
	}
	if event == eventRow {
		s.multi.lastEvent = MultiFunctionRow
		s.multi.lastRow = s.multi.reader.row
		return Action{Kind: ActionNone}, nil
	}
	// eventResultsetDone
	s.multi.lastEvent = MultiFunctionResultsetDone
	s.multi.lastOK = s.multi.reader.ok
	if s.multi.reader.ok.StatusFlags.Has(protocol.StatusMoreResultsExist) {
		s.multi.phase = multiAwaitingHead
	} else {
		s.status = StatusReady
	}
	return Action{Kind: ActionNone}, nil
}
