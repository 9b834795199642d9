package session

import (
	"testing"

	"github.com/dbbouncer/mysqlcore/internal/protocol"
)

func TestPrepareWithParamsAndColumns(t *testing.T) {
	s := connected(t)
	sc := &script{}
	sc.skip() // request consumes seq 0
	sc.frame(buildPrepareOK(9, 1, 1))
	sc.frame(buildColumnDef("?", protocol.ProtoLongLong))
	sc.frame(buildColumnDef("n", protocol.ProtoLongLong))

	action, err := s.Prepare("SELECT n FROM t WHERE n = ?")
	if derr := drive(t, s, action, err, sc.buf); derr != nil {
		t.Fatalf("prepare: %v", derr)
	}
	stmt := s.PreparedStatement()
	if stmt.ID != 9 {
		t.Fatalf("statement id = %d, want 9", stmt.ID)
	}
	if stmt.NumParams != 1 || len(stmt.ParamDefs) != 1 {
		t.Fatalf("params = %d/%d, want 1/1", stmt.NumParams, len(stmt.ParamDefs))
	}
	if stmt.NumColumns != 1 || len(stmt.ColumnDefs) != 1 {
		t.Fatalf("columns = %d/%d, want 1/1", stmt.NumColumns, len(stmt.ColumnDefs))
	}
}

func TestPrepareNoParamsNoColumns(t *testing.T) {
	s := connected(t)
	sc := &script{}
	sc.skip() // request consumes seq 0
	sc.frame(buildPrepareOK(3, 0, 0))

	action, err := s.Prepare("DO 1")
	if derr := drive(t, s, action, err, sc.buf); derr != nil {
		t.Fatalf("prepare: %v", derr)
	}
	stmt := s.PreparedStatement()
	if stmt.ID != 3 || stmt.NumParams != 0 || stmt.NumColumns != 0 {
		t.Fatalf("stmt = %+v, want id 3 with no params/columns", stmt)
	}
}

func TestExecuteStatementRejectsWrongParamCount(t *testing.T) {
	s := connected(t)
	stmt := Statement{ID: 1, NumParams: 2}

	_, err := s.ExecuteStatement(stmt, []protocol.Param{nil})
	if err != ErrWrongNumParams {
		t.Fatalf("err = %v, want ErrWrongNumParams", err)
	}
	// A synchronous rejection must not consume the at-most-one-outstanding
	// operation slot: a following call must still be allowed to start.
	if _, err := s.Ping(); err != nil {
		t.Fatalf("Ping after a rejected ExecuteStatement: %v", err)
	}
}

func TestCloseStatementIsFireAndForget(t *testing.T) {
	s := connected(t)
	action, err := s.CloseStatement(Statement{ID: 7})
	if derr := drive(t, s, action, err, nil); derr != nil {
		t.Fatalf("close statement: %v", derr)
	}
	if s.Status() != StatusReady {
		t.Fatalf("status = %v, want ready", s.Status())
	}
}
