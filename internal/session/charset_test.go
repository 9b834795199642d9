package session

import (
	"testing"

	"github.com/dbbouncer/mysqlcore/internal/protocol"
)

func TestSetCharacterSetSuccess(t *testing.T) {
	s := connected(t)
	sc := &script{}
	sc.skip() // request consumes seq 0
	sc.frame(buildOK(protocol.StatusAutocommit))

	action, err := s.SetCharacterSet("utf8mb4")
	if derr := drive(t, s, action, err, sc.buf); derr != nil {
		t.Fatalf("set character set: %v", derr)
	}
	if s.CharacterSet() != 45 {
		t.Fatalf("character set = %d, want 45 (utf8mb4_general_ci)", s.CharacterSet())
	}
}

func TestSetCharacterSetRejectsUnknownName(t *testing.T) {
	s := connected(t)
	if _, err := s.SetCharacterSet("not-a-real-charset"); err != ErrUnknownCharacterSet {
		t.Fatalf("err = %v, want ErrUnknownCharacterSet", err)
	}
	// Rejected synchronously, before any write: the slot must still be free.
	if _, err := s.Ping(); err != nil {
		t.Fatalf("Ping after a rejected SetCharacterSet: %v", err)
	}
}
