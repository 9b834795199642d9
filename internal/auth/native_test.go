package auth

import (
	"bytes"
	"crypto/sha1"
	"testing"
)

func TestNativePasswordResponse(t *testing.T) {
	challenge := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a,
		0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10, 0x11, 0x12, 0x13, 0x14}

	got, err := NativePassword{}.Respond(challenge, "pw")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stage1 := sha1Sum([]byte("pw"))
	stage2 := sha1Sum(stage1)
	h := sha1.New()
	h.Write(challenge)
	h.Write(stage2)
	want := xorBytes(stage1, h.Sum(nil))

	if !bytes.Equal(got, want) {
		t.Fatalf("got %x, want %x", got, want)
	}
}

func TestNativePasswordEmptyPassword(t *testing.T) {
	got, err := NativePassword{}.Respond(make([]byte, 20), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected empty response, got %x", got)
	}
}

func TestNativePasswordRejectsWrongChallengeLength(t *testing.T) {
	_, err := NativePassword{}.Respond(make([]byte, 10), "pw")
	if err != ErrInvalidChallengeLength {
		t.Fatalf("got %v, want ErrInvalidChallengeLength", err)
	}
}

func TestNativePasswordName(t *testing.T) {
	if (NativePassword{}).Name() != "mysql_native_password" {
		t.Fatalf("unexpected name %q", NativePassword{}.Name())
	}
}
