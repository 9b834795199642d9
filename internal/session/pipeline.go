package session

import "github.com/dbbouncer/mysqlcore/internal/protocol"

// PipelineStageKind discriminates the request shapes a pipeline stage may
// carry.
type PipelineStageKind int

const (
	PipelineExecute PipelineStageKind = iota
	PipelinePrepare
	PipelineCloseStatement
	PipelineResetConnection
	PipelineSetCharacterSet
	PipelinePing
)

// PipelineStage is one request in a pipeline. Only the fields relevant to
// Kind are read.
type PipelineStage struct {
	Kind    PipelineStageKind
	Query   string // Execute, Prepare
	StmtID  uint32 // CloseStatement
	Charset string // SetCharacterSet
}

// PipelineStageResult is one stage's outcome, captured regardless of
// whether an earlier stage failed.
type PipelineStageResult struct {
	Err        error
	Resultsets []Resultset // PipelineExecute
	Statement  Statement // PipelinePrepare
	// CloseStatement, ResetConnection, SetCharacterSet, Ping carry no
	// payload beyond Err.
}

// RunPipeline serializes every stage's request bytes into one outbound
// write, each stage's own sequence counter restarting at 0, then reads
// responses stage by stage. The session must be
// ready. PipelineResults retrieves the per-stage outcomes once the Action
// reports completion; the pipeline's own returned error (if any) is
// the error of the first stage that failed, but every stage's result is
// still populated.
//
// A pipeline must never be used to express transactional composition
// (e.g. appending COMMIT after several updates): the server runs every
// stage regardless of an earlier stage's failure.
func (s *Session) RunPipeline(stages []PipelineStage) (Action, error) {
	return s.begin(&pipelineOp{stages: stages}, StatusReady)
}

// PipelineResults returns the per-stage outcomes of the most recently
// completed RunPipeline call.
func (s *Session) PipelineResults() []PipelineStageResult {
	if op, ok := s.op.(*pipelineOp); ok {
		return op.results
	}
	return nil
}

type pipelinePhase int

const (
	pipelineWriting pipelinePhase = iota
	pipelineReading
)

type pipelineOp struct {
	stages  []PipelineStage
	results []PipelineStageResult

	phase   pipelinePhase
	current int // index of the stage whose response is being read

	// responseSeq[i] is the sequence number the i'th stage's response is
	// expected to start at: each stage's request frames run its own
	// sequence counter from 0, and that stage's response
	// frames continue the same counter.
	responseSeq []byte

	// per-stage reading sub-state, reset when current advances
	agg        aggregateReader
	aggStarted bool
	seqPrimed  bool
	firstErr   error

	prep pipelinePrepareState
}

// pipelinePrepareState accumulates a PipelinePrepare stage's
// COM_STMT_PREPARE_OK response across as many Resume calls as the
// parameter/column-definition/EOF packets require, mirroring prepareOp's
// own phases without borrowing its Session-owned op slot.
type pipelinePrepareState struct {
	phase            preparePhase
	stmt             Statement
	paramsRemaining  int
	columnsRemaining int
	deprecateEOF     bool
	started          bool
}

func (op *pipelineOp) step(s *Session) (Action, error) {
	if op.phase == pipelineWriting {
		op.results = make([]PipelineStageResult, len(op.stages))
		op.responseSeq = make([]byte, len(op.stages))
		for i, st := range op.stages {
			payload, err := encodePipelineStage(s, st)
			if err != nil {
				return Action{Kind: ActionNone, Err: err}, err
			}
			op.responseSeq[i] = s.appendPipelineStage(payload)
		}
		op.phase = pipelineReading
		return s.flushWrite(), nil
	}

	for op.current < len(op.stages) {
		if !op.seqPrimed {
			s.frameReader.Reset(op.responseSeq[op.current])
			op.seqPrimed = true
		}
		action, done, err := op.readStage(s)
		if !done {
			return action, err
		}
		op.current++
		op.aggStarted = false
		op.seqPrimed = false
		op.prep = pipelinePrepareState{}
	}

	if op.firstErr != nil {
		return Action{Kind: ActionNone, Err: op.firstErr}, op.firstErr
	}
	return Action{Kind: ActionNone}, nil
}

// readStage reads exactly one stage's response (or drives it to
// completion across several Resume calls), recording the outcome in
// op.results[op.current]. done reports whether that stage's response is
// fully consumed.
func (op *pipelineOp) readStage(s *Session) (action Action, done bool, err error) {
	st := op.stages[op.current]
	res := &op.results[op.current]

	switch st.Kind {
	case PipelineCloseStatement:
		// Fire-and-forget: no response to read.
		return Action{}, true, nil

	case PipelineExecute:
		if !op.aggStarted {
			op.agg = aggregateReader{awaitHead: true}
			op.aggStarted = true
		}
		a, err := op.agg.run(s)
		if err != nil {
			op.recordErr(res, err)
			return Action{}, true, nil
		}
		if !a.Done() {
			return a, false, nil
		}
		res.Resultsets = op.agg.resultsets
		return Action{}, true, nil

	case PipelinePrepare:
		return op.stepPrepare(s, res)

	default: // ResetConnection, SetCharacterSet, Ping: OK/ERR reply
		msg, a, ready, err := s.nextMessage()
		if err != nil {
			op.recordErr(res, err)
			return Action{}, true, nil
		}
		if !ready {
			return a, false, nil
		}
		if protocol.IsOKHeader(msg, s.capabilities.Has(protocol.CapDeprecateEOF)) {
			ok, err := protocol.DecodeOK(msg, s.capabilities)
			if err != nil {
				op.recordErr(res, err)
				return Action{}, true, nil
			}
			s.backslashEscapes = !ok.StatusFlags.Has(protocol.StatusNoBackslashEscapes)
			if st.Kind == PipelineSetCharacterSet {
				if collation, ok2 := protocol.CollationForCharset(st.Charset); ok2 {
					s.characterSet = collation
				}
			}
			return Action{}, true, nil
		}
		if protocol.IsErrHeader(msg) {
			ep, derr := protocol.DecodeErr(msg, s.capabilities)
			if derr != nil {
				op.recordErr(res, derr)
				return Action{}, true, nil
			}
			op.recordErr(res, newErrorFromPacket(ep, "pipeline stage failed"))
			return Action{}, true, nil
		}
		op.recordErr(res, ErrProtocolValue)
		return Action{}, true, nil
	}
}

// stepPrepare decodes one PipelinePrepare stage's COM_STMT_PREPARE_OK
// response, which may span a prepare-OK packet, parameter-definition
// packets, column-definition packets, and (without CLIENT_DEPRECATE_EOF)
// two legacy EOF separators — the same shape prepareOp decodes, advanced
// one nextMessage call at a time so a partial read mid-stage yields a
// real ActionRead instead of losing the driver its destination buffer.
func (op *pipelineOp) stepPrepare(s *Session, res *PipelineStageResult) (Action, bool, error) {
	p := &op.prep
	if !p.started {
		*p = pipelinePrepareState{started: true, phase: prepareAwaitOK}
	}

	for {
		switch p.phase {
		case prepareAwaitOK:
			msg, a, ready, err := s.nextMessage()
			if err != nil {
				op.recordErr(res, err)
				return Action{}, true, nil
			}
			if !ready {
				return a, false, nil
			}
			if protocol.IsErrHeader(msg) {
				ep, derr := protocol.DecodeErr(msg, s.capabilities)
				if derr != nil {
					op.recordErr(res, derr)
					return Action{}, true, nil
				}
				op.recordErr(res, newErrorFromPacket(ep, "pipeline prepare failed"))
				return Action{}, true, nil
			}
			ok, derr := protocol.DecodePrepareOK(msg)
			if derr != nil {
				op.recordErr(res, derr)
				return Action{}, true, nil
			}
			p.stmt = Statement{ID: ok.StatementID, NumParams: ok.NumParams, NumColumns: ok.NumColumns}
			p.paramsRemaining = int(ok.NumParams)
			p.columnsRemaining = int(ok.NumColumns)
			p.deprecateEOF = s.capabilities.Has(protocol.CapDeprecateEOF)
			p.phase = prepareAwaitParamDefs
			if p.paramsRemaining == 0 {
				p.phase = prepareAwaitColumnDefs
			}

		case prepareAwaitParamDefs:
			if p.paramsRemaining == 0 {
				if !p.deprecateEOF {
					a, done, err := op.consumePipelineEOF(s, res)
					if !done {
						return a, false, err
					}
					if res.Err != nil {
						return Action{}, true, nil
					}
				}
				p.phase = prepareAwaitColumnDefs
				continue
			}
			msg, a, ready, err := s.nextMessage()
			if err != nil {
				op.recordErr(res, err)
				return Action{}, true, nil
			}
			if !ready {
				return a, false, nil
			}
			cd, derr := protocol.DecodeColumnDefinition(msg)
			if derr != nil {
				op.recordErr(res, derr)
				return Action{}, true, nil
			}
			p.stmt.ParamDefs = append(p.stmt.ParamDefs, cd)
			p.paramsRemaining--

		case prepareAwaitColumnDefs:
			if p.columnsRemaining == 0 {
				if !p.deprecateEOF && p.stmt.NumColumns > 0 {
					a, done, err := op.consumePipelineEOF(s, res)
					if !done {
						return a, false, err
					}
					if res.Err != nil {
						return Action{}, true, nil
					}
				}
				res.Statement = p.stmt
				return Action{}, true, nil
			}
			msg, a, ready, err := s.nextMessage()
			if err != nil {
				op.recordErr(res, err)
				return Action{}, true, nil
			}
			if !ready {
				return a, false, nil
			}
			cd, derr := protocol.DecodeColumnDefinition(msg)
			if derr != nil {
				op.recordErr(res, derr)
				return Action{}, true, nil
			}
			p.stmt.ColumnDefs = append(p.stmt.ColumnDefs, cd)
			p.columnsRemaining--
		}
	}
}

// consumePipelineEOF reads and discards one legacy EOF separator packet.
// done is false while more I/O is needed (a is the real action to
// service); when done is true, res.Err reports whether the packet was
// actually an EOF.
func (op *pipelineOp) consumePipelineEOF(s *Session, res *PipelineStageResult) (a Action, done bool, err error) {
	msg, a, ready, err := s.nextMessage()
	if err != nil {
		op.recordErr(res, err)
		return Action{}, true, nil
	}
	if !ready {
		return a, false, nil
	}
	if !protocol.IsEOFHeader(msg) {
		op.recordErr(res, ErrProtocolValue)
	}
	return Action{}, true, nil
}

func (op *pipelineOp) recordErr(res *PipelineStageResult, err error) {
	res.Err = err
	if op.firstErr == nil {
		op.firstErr = err
	}
}

// encodePipelineStage serializes one stage's command bytes (without a
// frame header: appendPipelineStage handles framing and the per-stage
// sequence restart).
func encodePipelineStage(s *Session, st PipelineStage) ([]byte, error) {
	switch st.Kind {
	case PipelineExecute:
		return encodeCommand(nil, cmdQuery, []byte(st.Query)), nil
	case PipelinePrepare:
		return encodeCommand(nil, cmdStmtPrepare, []byte(st.Query)), nil
	case PipelineCloseStatement:
		var payload []byte
		payload = protocol.PutFixedUint(payload, uint64(st.StmtID), 4)
		return encodeCommand(nil, cmdStmtClose, payload), nil
	case PipelineResetConnection:
		return encodeCommand(nil, cmdResetConn, nil), nil
	case PipelineSetCharacterSet:
		if _, ok := protocol.CollationForCharset(st.Charset); !ok {
			return nil, ErrUnknownCharacterSet
		}
		return encodeCommand(nil, cmdQuery, []byte("SET NAMES '"+st.Charset+"'")), nil
	case PipelinePing:
		return encodeCommand(nil, cmdPing, nil), nil
	default:
		return nil, ErrProtocolValue
	}
}
