package wire

type frameState int

const (
	stateHeader frameState = iota
	stateBody
)

// FrameReader decodes one logical message — one or more consecutive frames
// with contiguous, per-command sequence numbers — out of a ReadBuffer's
// pending region. It holds no I/O state of its own.
type FrameReader struct {
	st       frameState
	seq      uint8
	bodyLen  int
	msgStart int
	started  bool
}

// NewFrameReader creates a reader positioned to read a header next.
func NewFrameReader() *FrameReader {
	return &FrameReader{st: stateHeader}
}

// Reset (re)starts the reader for a new command, expecting the first frame
// to carry sequence number seq (0 for a freshly issued client command).
func (r *FrameReader) Reset(seq uint8) {
	r.st = stateHeader
	r.seq = seq
	r.bodyLen = 0
	r.started = false
}

// Seq returns the sequence number the reader currently expects on the next
// frame header, i.e. one past the last frame it has consumed.
func (r *FrameReader) Seq() uint8 { return r.seq }

// Next attempts to decode one complete logical message out of b. If not
// enough bytes have been received yet, it returns ok == false and the
// caller must arrange for more bytes to be read into b before calling Next
// again. The returned message is a slice of b's backing array with every
// frame header already excised; it remains valid until a Grow compaction
// discards the reserved region it lives in.
func (r *FrameReader) Next(b *ReadBuffer) (msg []byte, ok bool, err error) {
	for {
		switch r.st {
		case stateHeader:
			p := b.pending()
			if len(p) < HeaderSize {
				return nil, false, nil
			}
			bodyLen := int(p[0]) | int(p[1])<<8 | int(p[2])<<16
			seq := p[3]
			if seq != r.seq {
				return nil, false, ErrSequenceMismatch
			}
			r.seq++
			if !r.started {
				r.msgStart = b.current
				r.started = true
			}
			b.spliceHeader(HeaderSize)
			r.bodyLen = bodyLen
			r.st = stateBody
		case stateBody:
			p := b.pending()
			if len(p) < r.bodyLen {
				return nil, false, nil
			}
			b.consume(r.bodyLen)
			if r.bodyLen == MaxFramePayload {
				// Frame is exactly the cap: the message continues in the
				// next frame, whose header immediately follows.
				r.st = stateHeader
				continue
			}
			msg = b.releaseMessage(r.msgStart)
			r.started = false
			r.st = stateHeader
			return msg, true, nil
		}
	}
}

// WriteMessage appends payload to dst as one or more framed chunks starting
// at sequence number seq, splitting at MaxFramePayload and appending the
// protocol-mandated empty trailer frame when len(payload) is an exact
// multiple of MaxFramePayload (including zero). It returns the extended
// slice and the next sequence number the caller should use.
func WriteMessage(dst []byte, payload []byte, seq uint8) ([]byte, uint8) {
	remaining := payload
	for {
		n := len(remaining)
		if n > MaxFramePayload {
			n = MaxFramePayload
		}
		dst = append(dst, byte(n), byte(n>>8), byte(n>>16), seq)
		dst = append(dst, remaining[:n]...)
		remaining = remaining[n:]
		seq++
		if n < MaxFramePayload {
			return dst, seq
		}
	}
}
