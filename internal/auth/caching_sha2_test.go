package auth

import (
	"bytes"
	"crypto/sha256"
	"testing"
)

func TestCachingSHA2PasswordResponse(t *testing.T) {
	challenge := bytes.Repeat([]byte{0x2a}, 20)

	got, err := CachingSHA2Password{}.Respond(challenge, "pw")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stage1 := sha256Sum([]byte("pw"))
	stage2 := sha256Sum(stage1)
	h := sha256.New()
	h.Write(stage2)
	h.Write(challenge)
	want := xorBytes(stage1, h.Sum(nil))

	if !bytes.Equal(got, want) {
		t.Fatalf("got %x, want %x", got, want)
	}
}

func TestCachingSHA2PasswordEmptyPassword(t *testing.T) {
	got, err := CachingSHA2Password{}.Respond(make([]byte, 20), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected empty response, got %x", got)
	}
}

func TestCachingSHA2PasswordRejectsWrongChallengeLength(t *testing.T) {
	_, err := CachingSHA2Password{}.Respond(make([]byte, 19), "pw")
	if err != ErrInvalidChallengeLength {
		t.Fatalf("got %v, want ErrInvalidChallengeLength", err)
	}
}

func TestCachingSHA2FullAuthResponseIsNullTerminated(t *testing.T) {
	got := CachingSHA2Password{}.FullAuthResponse("pw")
	want := append([]byte("pw"), 0)
	if !bytes.Equal(got, want) {
		t.Fatalf("got %x, want %x", got, want)
	}
}

func TestClassifyContinuation(t *testing.T) {
	cases := []struct {
		data []byte
		kind ContinuationKind
		ok   bool
	}{
		{[]byte{0x03}, ContinuationFastAuthOK, true},
		{[]byte{0x04}, ContinuationPerformFull, true},
		{[]byte{0x05}, 0, false},
		{[]byte{0x03, 0x04}, 0, false},
		{nil, 0, false},
	}
	for _, c := range cases {
		kind, ok := ClassifyContinuation(c.data)
		if ok != c.ok || (ok && kind != c.kind) {
			t.Fatalf("data=%v: got kind=%v ok=%v, want kind=%v ok=%v", c.data, kind, ok, c.kind, c.ok)
		}
	}
}

func TestByName(t *testing.T) {
	if p, err := ByName("mysql_native_password"); err != nil || p.Name() != "mysql_native_password" {
		t.Fatalf("got %v, %v", p, err)
	}
	if p, err := ByName("caching_sha2_password"); err != nil || p.Name() != "caching_sha2_password" {
		t.Fatalf("got %v, %v", p, err)
	}
	if _, err := ByName("sha256_password"); err != ErrUnknownPlugin {
		t.Fatalf("got %v, want ErrUnknownPlugin", err)
	}
}
