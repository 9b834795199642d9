package auth

import (
	"crypto/sha256"
)

// CachingSHA2Password implements caching_sha2_password's initial response:
// SHA256(SHA256(SHA256(password)) ∥ challenge) XOR SHA256(password). The
// server may follow up with a "fast auth OK" or "perform full auth"
// continuation; FullAuthResponse computes the cleartext follow-up the
// handshake sub-machine sends in that second case, after confirming the
// channel is secure.
type CachingSHA2Password struct{}

func (CachingSHA2Password) Name() string { return "caching_sha2_password" }

func (CachingSHA2Password) Respond(challenge []byte, password string) ([]byte, error) {
	if password == "" {
		return nil, nil
	}
	if len(challenge) != 20 {
		return nil, ErrInvalidChallengeLength
	}

	stage1 := sha256Sum([]byte(password))
	stage2 := sha256Sum(stage1)

	h := sha256.New()
	h.Write(stage2)
	h.Write(challenge)
	stage3 := h.Sum(nil)

	return xorBytes(stage1, stage3), nil
}

// FullAuthResponse returns the null-terminated cleartext password sent in
// response to a "perform full auth" continuation. The caller must have
// already verified the channel is TLS-wrapped or a UNIX socket; this
// method does not re-check, since it has no visibility into the
// transport — that check belongs to the session sub-machine that knows
// whether TLS is active, and it must return
// ErrAuthPluginRequiresSecureChannel before ever calling this.
func (CachingSHA2Password) FullAuthResponse(password string) []byte {
	out := make([]byte, len(password)+1)
	copy(out, password)
	return out
}

func sha256Sum(b []byte) []byte {
	sum := sha256.Sum256(b)
	return sum[:]
}
