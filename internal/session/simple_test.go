package session

import (
	"testing"

	"github.com/dbbouncer/mysqlcore/internal/protocol"
)

func TestPingSuccess(t *testing.T) {
	s := connected(t)
	sc := &script{}
	sc.skip() // request consumes seq 0
	sc.frame(buildOK(protocol.StatusAutocommit))

	action, err := s.Ping()
	if derr := drive(t, s, action, err, sc.buf); derr != nil {
		t.Fatalf("ping: %v", derr)
	}
	if s.Status() != StatusReady {
		t.Fatalf("status = %v, want ready", s.Status())
	}
}

func TestResetConnectionRestoresBackslashEscapes(t *testing.T) {
	s := connected(t)
	s.backslashEscapes = false

	sc := &script{}
	sc.skip() // request consumes seq 0
	sc.frame(buildOK(protocol.StatusAutocommit))

	action, err := s.ResetConnection()
	if derr := drive(t, s, action, err, sc.buf); derr != nil {
		t.Fatalf("reset connection: %v", derr)
	}
	if !s.BackslashEscapes() {
		t.Fatal("backslash escapes should be restored to true on reset")
	}
}

func TestQuitTransitionsToNotConnected(t *testing.T) {
	s := connected(t)
	action, err := s.Quit()
	if derr := drive(t, s, action, err, nil); derr != nil {
		t.Fatalf("quit: %v", derr)
	}
	if s.Status() != StatusNotConnected {
		t.Fatalf("status = %v, want not-connected", s.Status())
	}
}

func TestCloseResetsLocalStateWithoutIO(t *testing.T) {
	s := connected(t)
	s.Close()
	if s.Status() != StatusNotConnected {
		t.Fatalf("status = %v, want not-connected", s.Status())
	}
	// A session torn down by Close must accept a fresh Connect.
	sc := &script{}
	sc.frame(buildGreeting(testChallenge(), 0))
	sc.skip()
	sc.frame(buildOK(protocol.StatusAutocommit))

	action, err := s.Connect()
	if derr := drive(t, s, action, err, sc.buf); derr != nil {
		t.Fatalf("connect after close: %v", derr)
	}
	if s.Status() != StatusReady {
		t.Fatalf("status after reconnect = %v, want ready", s.Status())
	}
}
