package wire

import (
	"bytes"
	"math/rand"
	"testing"
)

// roundTrip runs payload through WriteMessage then decodes it back via
// FrameReader, simulating the I/O driver delivering bytes in arbitrary
// chunk sizes.
func roundTrip(t *testing.T, payload []byte, startSeq uint8, chunkSize int) ([]byte, uint8) {
	t.Helper()
	framed, nextSeq := WriteMessage(nil, payload, startSeq)

	rb := NewReadBuffer(16, 0)
	fr := NewFrameReader()
	fr.Reset(startSeq)

	var got []byte
	pos := 0
	for {
		if msg, ok, err := fr.Next(rb); err != nil {
			t.Fatalf("Next: %v", err)
		} else if ok {
			got = msg
			break
		}
		if pos >= len(framed) {
			t.Fatalf("ran out of input before message completed")
		}
		n := chunkSize
		if pos+n > len(framed) {
			n = len(framed) - pos
		}
		if err := rb.Grow(n); err != nil {
			t.Fatalf("Grow: %v", err)
		}
		copy(rb.Free(), framed[pos:pos+n])
		rb.CommitRead(n)
		pos += n
	}
	return got, nextSeq
}

func TestFramingRoundTrip(t *testing.T) {
	lengths := []int{0, 1, MaxFramePayload - 1, MaxFramePayload, MaxFramePayload + 1, 2 * MaxFramePayload, 2*MaxFramePayload + 1}
	starts := []uint8{0, 254, 255}
	chunkSizes := []int{1 << 20, 7}

	for _, l := range lengths {
		if l > 5000 && testing.Short() {
			continue
		}
		for _, s := range starts {
			for _, cs := range chunkSizes {
				l, s, cs := l, s, cs
				t.Run("", func(t *testing.T) {
					payload := make([]byte, l)
					rand.New(rand.NewSource(int64(l) + int64(s))).Read(payload)

					got, nextSeq := roundTrip(t, payload, s, cs)
					if !bytes.Equal(got, payload) {
						t.Fatalf("length %d: payload mismatch (got %d bytes)", l, len(got))
					}

					wantFrames := (l + 1 + MaxFramePayload - 1) / MaxFramePayload
					// ceil((L+1)/max)
					wantAdvance := uint8(wantFrames)
					if s+wantAdvance != nextSeq {
						t.Fatalf("length %d: sequence advanced by %d, want %d", l, uint8(nextSeq-s), wantAdvance)
					}
				})
			}
		}
	}
}

func TestSequenceMismatchDetection(t *testing.T) {
	payload := []byte("SELECT 1")
	framed, _ := WriteMessage(nil, payload, 0)

	// Flip the sequence-number byte (offset 3) of the single frame.
	corrupted := append([]byte(nil), framed...)
	corrupted[3] ^= 0x01

	rb := NewReadBuffer(64, 0)
	fr := NewFrameReader()
	fr.Reset(0)

	if err := rb.Grow(len(corrupted)); err != nil {
		t.Fatal(err)
	}
	copy(rb.Free(), corrupted)
	rb.CommitRead(len(corrupted))

	_, _, err := fr.Next(rb)
	if err != ErrSequenceMismatch {
		t.Fatalf("got err %v, want ErrSequenceMismatch", err)
	}
}

func TestMaxBufferSizeExceeded(t *testing.T) {
	rb := NewReadBuffer(16, 32)
	if err := rb.Grow(16); err != nil {
		t.Fatalf("unexpected error growing within max: %v", err)
	}
	rb.CommitRead(16)
	if err := rb.Grow(64); err != ErrMaxBufferSizeExceeded {
		t.Fatalf("got %v, want ErrMaxBufferSizeExceeded", err)
	}
}

func TestFrameReaderSplicesHeaders(t *testing.T) {
	// Two small consecutive commands sharing the same buffer: confirms the
	// buffer offsets are independent of how many messages have passed
	// through it so far (the reserved region).
	rb := NewReadBuffer(16, 0)

	fr := NewFrameReader()
	for i, payload := range [][]byte{[]byte("one"), []byte("two"), []byte("three")} {
		fr.Reset(0)
		framed, _ := WriteMessage(nil, payload, 0)
		if err := rb.Grow(len(framed)); err != nil {
			t.Fatal(err)
		}
		copy(rb.Free(), framed)
		rb.CommitRead(len(framed))

		msg, ok, err := fr.Next(rb)
		if err != nil || !ok {
			t.Fatalf("message %d: ok=%v err=%v", i, ok, err)
		}
		if !bytes.Equal(msg, payload) {
			t.Fatalf("message %d: got %q want %q", i, msg, payload)
		}
		rb.ReleaseReserved()
	}
}
