// Package auth implements the client-side authentication plugins the
// handshake sub-machine drives: mysql_native_password and
// caching_sha2_password.
package auth

import "errors"

// ErrUnknownPlugin is returned when the server names an auth plugin this
// core does not implement.
var ErrUnknownPlugin = errors.New("auth: unknown authentication plugin")

// ErrAuthPluginRequiresSecureChannel is returned when caching_sha2_password
// asks for a full-auth cleartext exchange over a connection that is
// neither TLS-wrapped nor a UNIX socket.
var ErrAuthPluginRequiresSecureChannel = errors.New("auth: plugin requires a secure channel for full authentication")

// ErrInvalidChallengeLength is returned when the server's auth-plugin data
// isn't the 20 bytes every supported plugin's hash requires.
var ErrInvalidChallengeLength = errors.New("auth: challenge must be exactly 20 bytes")

// Plugin computes the handshake-response auth bytes for one authentication
// mechanism, given the server's challenge and the account's password.
type Plugin interface {
	// Name is the plugin name as it appears on the wire, e.g.
	// "mysql_native_password".
	Name() string

	// Respond computes the bytes to send in the handshake response (or an
	// auth-switch-response) for this plugin, given the server's challenge.
	Respond(challenge []byte, password string) ([]byte, error)
}

// ByName looks up a built-in plugin by its wire name.
func ByName(name string) (Plugin, error) {
	switch name {
	case "mysql_native_password":
		return NativePassword{}, nil
	case "caching_sha2_password":
		return CachingSHA2Password{}, nil
	default:
		return nil, ErrUnknownPlugin
	}
}

// ContinuationKind discriminates the single-byte "more data" payloads
// caching_sha2_password sends after its initial response.
type ContinuationKind byte

const (
	ContinuationFastAuthOK  ContinuationKind = 0x03
	ContinuationPerformFull ContinuationKind = 0x04
)

// ClassifyContinuation interprets a caching_sha2_password "more data"
// payload. Any payload that isn't exactly one of the two known single
// bytes is reported as unrecognized so the caller can fall back to
// treating it as an auth-switch or error instead.
func ClassifyContinuation(data []byte) (ContinuationKind, bool) {
	if len(data) != 1 {
		return 0, false
	}
	switch ContinuationKind(data[0]) {
	case ContinuationFastAuthOK, ContinuationPerformFull:
		return ContinuationKind(data[0]), true
	default:
		return 0, false
	}
}
