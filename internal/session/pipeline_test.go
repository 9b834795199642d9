package session

import (
	"testing"

	"github.com/dbbouncer/mysqlcore/internal/protocol"
)

// TestRunPipelineMixedStages exercises three stage kinds in one pipeline,
// verifying each stage's response is read at its own independently
// restarted sequence number rather than a single counter shared across
// the whole pipeline.
func TestRunPipelineMixedStages(t *testing.T) {
	s := connected(t)

	var buf []byte
	pingStage := &script{}
	pingStage.skip() // request consumes seq 0
	pingStage.frame(buildOK(protocol.StatusAutocommit))
	buf = append(buf, pingStage.buf...)

	resetStage := &script{}
	resetStage.skip()
	resetStage.frame(buildOK(protocol.StatusAutocommit))
	buf = append(buf, resetStage.buf...)

	// PipelineCloseStatement is fire-and-forget: no response bytes at all.

	stages := []PipelineStage{
		{Kind: PipelinePing},
		{Kind: PipelineResetConnection},
		{Kind: PipelineCloseStatement, StmtID: 1},
	}

	action, err := s.RunPipeline(stages)
	if derr := drive(t, s, action, err, buf); derr != nil {
		t.Fatalf("run pipeline: %v", derr)
	}

	results := s.PipelineResults()
	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}
	for i, r := range results {
		if r.Err != nil {
			t.Fatalf("stage %d: %v", i, r.Err)
		}
	}
}

// TestRunPipelineFirstStageErrorStillRunsLaterStages asserts that a
// failing stage doesn't abort the rest: every stage's result is recorded
// regardless of an earlier one's failure, and the pipeline's own error is
// the first stage's error.
func TestRunPipelineFirstStageErrorStillRunsLaterStages(t *testing.T) {
	s := connected(t)

	var buf []byte
	failStage := &script{}
	failStage.skip()
	failStage.frame(buildErr(1064, "42000", "You have an error in your SQL syntax"))
	buf = append(buf, failStage.buf...)

	okStage := &script{}
	okStage.skip()
	okStage.frame(buildOK(protocol.StatusAutocommit))
	buf = append(buf, okStage.buf...)

	stages := []PipelineStage{
		{Kind: PipelineExecute, Query: "GARBAGE SQL"},
		{Kind: PipelinePing},
	}

	action, err := s.RunPipeline(stages)
	derr := drive(t, s, action, err, buf)
	if derr == nil {
		t.Fatal("expected the pipeline's own error to surface the first stage's failure")
	}

	results := s.PipelineResults()
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if results[0].Err == nil {
		t.Fatal("first stage's result should carry its own error")
	}
	if results[1].Err != nil {
		t.Fatalf("second stage should have run and succeeded: %v", results[1].Err)
	}
}
