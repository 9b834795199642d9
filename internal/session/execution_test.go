package session

import (
	"testing"

	"github.com/dbbouncer/mysqlcore/internal/protocol"
)

func TestExecuteNoResultset(t *testing.T) {
	s := connected(t)
	sc := &script{}
	sc.skip() // request consumes seq 0
	sc.frame(buildOK(protocol.StatusAutocommit))

	action, err := s.Execute("INSERT INTO t VALUES (1)")
	if derr := drive(t, s, action, err, sc.buf); derr != nil {
		t.Fatalf("execute: %v", derr)
	}
	results := s.Resultsets()
	if len(results) != 1 {
		t.Fatalf("resultsets = %d, want 1", len(results))
	}
	if len(results[0].Columns) != 0 || len(results[0].Rows) != 0 {
		t.Fatalf("no-resultset result carries columns/rows: %+v", results[0])
	}
}

func TestExecuteSingleResultsetWithRows(t *testing.T) {
	s := connected(t)
	sc := &script{}
	sc.skip() // request consumes seq 0
	sc.frame([]byte{0x01}) // one column
	sc.frame(buildColumnDef("n", protocol.ProtoLongLong))
	sc.frame(buildTextRow("1"))
	sc.frame(buildTextRow("2"))
	sc.frame(buildOK(protocol.StatusAutocommit))

	action, err := s.Execute("SELECT n FROM t")
	if derr := drive(t, s, action, err, sc.buf); derr != nil {
		t.Fatalf("execute: %v", derr)
	}
	results := s.Resultsets()
	if len(results) != 1 {
		t.Fatalf("resultsets = %d, want 1", len(results))
	}
	if len(results[0].Columns) != 1 || results[0].Columns[0].Name != "n" {
		t.Fatalf("columns = %+v", results[0].Columns)
	}
	if len(results[0].Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(results[0].Rows))
	}
	v, ok := results[0].Rows[0].Fields[0].String()
	if !ok || v != "1" {
		t.Fatalf("row[0][0] = %q, ok=%v", v, ok)
	}
}

func TestExecuteMultipleResultsets(t *testing.T) {
	s := connected(t)
	sc := &script{}
	sc.skip() // request consumes seq 0
	sc.frame([]byte{0x01})
	sc.frame(buildColumnDef("n", protocol.ProtoLongLong))
	sc.frame(buildTextRow("1"))
	sc.frame(buildOK(protocol.StatusAutocommit | protocol.StatusMoreResultsExist))
	sc.frame(buildOK(protocol.StatusAutocommit))

	action, err := s.Execute("SELECT 1; DO 1")
	if derr := drive(t, s, action, err, sc.buf); derr != nil {
		t.Fatalf("execute: %v", derr)
	}
	results := s.Resultsets()
	if len(results) != 2 {
		t.Fatalf("resultsets = %d, want 2", len(results))
	}
	if len(results[0].Rows) != 1 {
		t.Fatalf("first resultset rows = %d, want 1", len(results[0].Rows))
	}
	if len(results[1].Columns) != 0 {
		t.Fatalf("second resultset should carry no columns: %+v", results[1])
	}
}

func TestExecuteServerError(t *testing.T) {
	s := connected(t)
	sc := &script{}
	sc.skip() // request consumes seq 0
	sc.frame(buildErr(1146, "42S02", "Table 't' doesn't exist"))

	action, err := s.Execute("SELECT * FROM t")
	derr := drive(t, s, action, err, sc.buf)
	if derr == nil {
		t.Fatal("expected an error for a failing query")
	}
	sessErr, ok := derr.(*Error)
	if !ok {
		t.Fatalf("error = %v (%T), want *session.Error", derr, derr)
	}
	if sessErr.Code != 1146 {
		t.Fatalf("error code = %d, want 1146", sessErr.Code)
	}
}

func TestStartExecutionNoResultsetReturnsToReady(t *testing.T) {
	s := connected(t)
	sc := &script{}
	sc.skip() // request consumes seq 0
	sc.frame(buildOK(protocol.StatusAutocommit))

	action, err := s.StartExecution("DO 1")
	if derr := drive(t, s, action, err, sc.buf); derr != nil {
		t.Fatalf("start execution: %v", derr)
	}
	if s.LastMultiFunctionEvent() != MultiFunctionNoResultset {
		t.Fatalf("event = %v, want no-resultset", s.LastMultiFunctionEvent())
	}
	if s.Status() != StatusReady {
		t.Fatalf("status = %v, want ready (no more results)", s.Status())
	}
}

func TestMultiFunctionReadResultsetHeadThenRows(t *testing.T) {
	s := connected(t)
	sc := &script{}
	sc.skip() // request consumes seq 0
	sc.frame([]byte{0x01})
	sc.frame(buildColumnDef("n", protocol.ProtoLongLong))

	action, err := s.StartExecution("SELECT n FROM t")
	if derr := drive(t, s, action, err, sc.buf); derr != nil {
		t.Fatalf("start execution: %v", derr)
	}
	if s.Status() != StatusEngagedInMultiFunction {
		t.Fatalf("status = %v, want engaged-in-multi-function", s.Status())
	}
	if s.LastMultiFunctionEvent() != MultiFunctionColumnsReady {
		t.Fatalf("event = %v, want columns-ready", s.LastMultiFunctionEvent())
	}
	if len(s.CurrentColumns()) != 1 {
		t.Fatalf("columns = %+v", s.CurrentColumns())
	}

	rowScript := &script{seq: 3} // continues after the column count (1) and definition (2)
	rowScript.frame(buildTextRow("1"))

	action, err = s.ReadSomeRows()
	if derr := drive(t, s, action, err, rowScript.buf); derr != nil {
		t.Fatalf("read first row: %v", derr)
	}
	if s.LastMultiFunctionEvent() != MultiFunctionRow {
		t.Fatalf("event = %v, want row", s.LastMultiFunctionEvent())
	}
	if v, ok := s.CurrentRow().Fields[0].String(); !ok || v != "1" {
		t.Fatalf("row value = %q, ok=%v", v, ok)
	}

	terminalScript := &script{seq: 4}
	terminalScript.frame(buildOK(protocol.StatusAutocommit))
	action, err = s.ReadSomeRows()
	if derr := drive(t, s, action, err, terminalScript.buf); derr != nil {
		t.Fatalf("read terminal: %v", derr)
	}
	if s.LastMultiFunctionEvent() != MultiFunctionResultsetDone {
		t.Fatalf("event = %v, want resultset-done", s.LastMultiFunctionEvent())
	}
	if s.Status() != StatusReady {
		t.Fatalf("status = %v, want ready (single resultset fully drained)", s.Status())
	}
}

// TestReadResultsetHeadRejectedMidRowPhase asserts the precondition a
// caller violates by calling ReadResultsetHead while still mid-row-stream:
// the session must refuse to dispatch into readHead on bytes that are
// actually the next row.
func TestReadResultsetHeadRejectedMidRowPhase(t *testing.T) {
	s := connected(t)
	sc := &script{}
	sc.skip() // request consumes seq 0
	sc.frame([]byte{0x01})
	sc.frame(buildColumnDef("n", protocol.ProtoLongLong))

	action, err := s.StartExecution("SELECT n FROM t")
	if derr := drive(t, s, action, err, sc.buf); derr != nil {
		t.Fatalf("start execution: %v", derr)
	}
	if s.LastMultiFunctionEvent() != MultiFunctionColumnsReady {
		t.Fatalf("event = %v, want columns-ready", s.LastMultiFunctionEvent())
	}

	if _, err := s.ReadResultsetHead(); err != ErrNotAwaitingResultsetHead {
		t.Fatalf("ReadResultsetHead mid-row-phase: err = %v, want ErrNotAwaitingResultsetHead", err)
	}
}

// TestReadSomeRowsRejectedBeforeHead asserts the mirror precondition: a
// caller may not ask for rows while the multi-function machine is still
// waiting on the next resultset's head.
func TestReadSomeRowsRejectedBeforeHead(t *testing.T) {
	s := connected(t)
	sc := &script{}
	sc.skip() // request consumes seq 0
	sc.frame(buildOK(protocol.StatusAutocommit | protocol.StatusMoreResultsExist))

	action, err := s.StartExecution("CALL multi_result_proc()")
	if derr := drive(t, s, action, err, sc.buf); derr != nil {
		t.Fatalf("start execution: %v", derr)
	}
	if s.LastMultiFunctionEvent() != MultiFunctionNoResultset {
		t.Fatalf("event = %v, want no-resultset", s.LastMultiFunctionEvent())
	}
	if s.Status() != StatusEngagedInMultiFunction {
		t.Fatalf("status = %v, want still engaged (more results exist)", s.Status())
	}

	if _, err := s.ReadSomeRows(); err != ErrNotAwaitingRows {
		t.Fatalf("ReadSomeRows before a head was read: err = %v, want ErrNotAwaitingRows", err)
	}
}
