package auth

import (
	"crypto/sha1"
)

// NativePassword implements mysql_native_password: response =
// SHA1(password) XOR SHA1(challenge ∥ SHA1(SHA1(password))). An empty
// password always yields an empty response.
type NativePassword struct{}

func (NativePassword) Name() string { return "mysql_native_password" }

func (NativePassword) Respond(challenge []byte, password string) ([]byte, error) {
	if password == "" {
		return nil, nil
	}
	if len(challenge) != 20 {
		return nil, ErrInvalidChallengeLength
	}

	stage1 := sha1Sum([]byte(password))
	stage2 := sha1Sum(stage1)

	h := sha1.New()
	h.Write(challenge)
	h.Write(stage2)
	stage3 := h.Sum(nil)

	return xorBytes(stage1, stage3), nil
}

func sha1Sum(b []byte) []byte {
	sum := sha1.Sum(b)
	return sum[:]
}

func xorBytes(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out
}
