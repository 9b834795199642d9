package session

import (
	"fmt"
	"strings"

	"github.com/dbbouncer/mysqlcore/internal/auth"
	"github.com/dbbouncer/mysqlcore/internal/protocol"
)

// Connect begins the handshake sub-machine. The session
// must be not-connected.
func (s *Session) Connect() (Action, error) {
	return s.begin(&handshakeOp{}, StatusNotConnected)
}

type handshakePhase int

const (
	hsAwaitInitial handshakePhase = iota
	hsAfterSSLRequestWritten
	hsAfterSSLHandshake
	hsAwaitReply
	hsDone
)

type handshakeOp struct {
	phase handshakePhase

	serverVersion string
	challenge     []byte
	pluginName    string
	wantTLS       bool
	plugin        auth.Plugin
}

func (h *handshakeOp) step(s *Session) (Action, error) {
	for {
		switch h.phase {
		case hsAwaitInitial:
			msg, action, ready, err := s.nextMessage()
			if err != nil {
				return Action{Kind: ActionNone, Err: err}, err
			}
			if !ready {
				return action, nil
			}
			if err := h.parseInitialHandshake(s, msg); err != nil {
				return Action{Kind: ActionNone, Err: err}, err
			}
			if h.wantTLS {
				writeAction := s.beginHandshakeWrite(h.buildSSLRequest(s))
				h.phase = hsAfterSSLRequestWritten
				return writeAction, nil
			}
			writeAction, err := h.writeHandshakeResponse(s)
			if err != nil {
				return Action{Kind: ActionNone, Err: err}, err
			}
			h.phase = hsAwaitReply
			return writeAction, nil

		case hsAfterSSLRequestWritten:
			h.phase = hsAfterSSLHandshake
			return Action{Kind: ActionSSLHandshake}, nil

		case hsAfterSSLHandshake:
			s.tlsActive = true
			writeAction, err := h.writeHandshakeResponse(s)
			if err != nil {
				return Action{Kind: ActionNone, Err: err}, err
			}
			h.phase = hsAwaitReply
			return writeAction, nil

		case hsAwaitReply:
			msg, action, ready, err := s.nextMessage()
			if err != nil {
				return Action{Kind: ActionNone, Err: err}, err
			}
			if !ready {
				return action, nil
			}
			done, nextAction, awaitMore, err := h.handleReply(s, msg)
			if err != nil {
				return Action{Kind: ActionNone, Err: err}, err
			}
			if done {
				s.status = StatusReady
				h.phase = hsDone
				return Action{Kind: ActionNone}, nil
			}
			if awaitMore {
				// fast_auth_ok: wait for the server's terminal OK/ERR on
				// this same phase, no bytes to write in the meantime.
				continue
			}
			return nextAction, nil

		case hsDone:
			return Action{Kind: ActionNone}, nil
		}
	}
}

// parseInitialHandshake decodes Protocol::HandshakeV10.
func (h *handshakeOp) parseInitialHandshake(s *Session, msg []byte) error {
	pos := 0
	if len(msg) < 1 {
		return protocol.ErrIncompleteMessage
	}
	protoVersion := msg[pos]
	pos++
	if protoVersion != 10 {
		return fmt.Errorf("%w: protocol version %d", ErrBadHandshakePacketType, protoVersion)
	}

	serverVersion, n, err := protocol.NullTerminatedString(msg[pos:])
	if err != nil {
		return err
	}
	h.serverVersion = serverVersion
	pos += n
	s.flavor = classifyFlavor(serverVersion)

	connID, err := protocol.FixedUint(msg[pos:], 4)
	if err != nil {
		return err
	}
	s.connectionID = uint32(connID)
	pos += 4

	if len(msg) < pos+8 {
		return protocol.ErrIncompleteMessage
	}
	authData := append([]byte(nil), msg[pos:pos+8]...)
	pos += 8
	pos++ // reserved filler byte

	capLow, err := protocol.FixedUint(msg[pos:], 2)
	if err != nil {
		return err
	}
	pos += 2

	if len(msg) < pos+1 {
		return protocol.ErrIncompleteMessage
	}
	pos++ // default collation, unused during negotiation

	if len(msg) < pos+2 {
		return protocol.ErrIncompleteMessage
	}
	pos += 2 // status flags

	capHigh, err := protocol.FixedUint(msg[pos:], 2)
	if err != nil {
		return err
	}
	pos += 2

	serverCaps := protocol.Capability(capLow | capHigh<<16)

	var authDataLen int
	if serverCaps.Has(protocol.CapPluginAuth) {
		if len(msg) < pos+1 {
			return protocol.ErrIncompleteMessage
		}
		authDataLen = int(msg[pos])
		pos++
	} else {
		pos++ // unused filler byte when plugin auth isn't advertised
	}
	pos += 10 // reserved

	part2Len := authDataLen - 8
	if part2Len < 13 {
		part2Len = 13
	}
	if len(msg) < pos+part2Len {
		return protocol.ErrIncompleteMessage
	}
	part2 := msg[pos: pos+part2Len]
	pos += part2Len
	trimmed := strings.TrimRight(string(part2), "\x00") // trailing null stripped
	authData = append(authData, trimmed...)

	pluginName := "mysql_native_password"
	if serverCaps.Has(protocol.CapPluginAuth) {
		name, _, err := protocol.NullTerminatedString(msg[pos:])
		if err == nil {
			pluginName = name
		}
	}

	clientCaps := s.desiredClientCapabilities()
	negotiated, ok := protocol.Negotiate(clientCaps, serverCaps)
	if !ok {
		return ErrServerUnsupported
	}
	s.capabilities = negotiated

	h.challenge = authData
	h.pluginName = pluginName
	h.wantTLS = s.cfg.TLSMode != TLSDisable && serverCaps.Has(protocol.CapSSL)
	if s.cfg.TLSMode == TLSRequire && !serverCaps.Has(protocol.CapSSL) {
		return ErrServerUnsupported
	}
	if h.wantTLS {
		s.capabilities |= protocol.CapSSL
	}

	plugin, err := auth.ByName(pluginName)
	if err != nil {
		return ErrUnknownAuthPlugin
	}
	h.plugin = plugin
	return nil
}

func classifyFlavor(serverVersion string) Flavor {
	if strings.Contains(strings.ToLower(serverVersion), "mariadb") {
		return FlavorMariaDB
	}
	return FlavorMySQL
}

// desiredClientCapabilities is what this core always asks for, plus
// database/multi-statements when configured.
func (s *Session) desiredClientCapabilities() protocol.Capability {
	caps := protocol.Required | protocol.CapMultiResults | protocol.CapPSMultiResults
	if s.cfg.Database != "" {
		caps |= protocol.CapConnectWithDB
	}
	if s.cfg.MultiQueries {
		caps |= protocol.CapMultiStatements
	}
	if s.cfg.TLSMode != TLSDisable {
		caps |= protocol.CapSSL
	}
	return caps
}

// buildSSLRequest serializes Protocol::SSLRequest.
func (h *handshakeOp) buildSSLRequest(s *Session) []byte {
	var buf []byte
	buf = protocol.PutFixedUint(buf, uint64(s.capabilities), 4)
	buf = protocol.PutFixedUint(buf, 1<<24-1, 4) // max packet size
	buf = append(buf, byte(s.effectiveCollation()))
	buf = append(buf, make([]byte, 23)...) // filler
	return buf
}

func (s *Session) effectiveCollation() uint16 {
	if s.cfg.Collation != 0 {
		return s.cfg.Collation
	}
	return 45 // utf8mb4_general_ci
}

// writeHandshakeResponse serializes Protocol::HandshakeResponse41.
func (h *handshakeOp) writeHandshakeResponse(s *Session) (Action, error) {
	response, err := h.plugin.Respond(h.challenge, s.cfg.Password)
	if err != nil {
		return Action{}, err
	}

	var buf []byte
	buf = protocol.PutFixedUint(buf, uint64(s.capabilities), 4)
	buf = protocol.PutFixedUint(buf, 1<<24-1, 4)
	buf = append(buf, byte(s.effectiveCollation()))
	buf = append(buf, make([]byte, 23)...)
	buf = protocol.PutNullTerminatedString(buf, s.cfg.Username)

	if s.capabilities.Has(protocol.CapPluginAuthLenencData) {
		buf = protocol.PutLenEncString(buf, response)
	} else {
		buf = append(buf, byte(len(response)))
		buf = append(buf, response...)
	}

	if s.capabilities.Has(protocol.CapConnectWithDB) {
		buf = protocol.PutNullTerminatedString(buf, s.cfg.Database)
	}
	if s.capabilities.Has(protocol.CapPluginAuth) {
		buf = protocol.PutNullTerminatedString(buf, h.plugin.Name())
	}

	s.characterSet = s.effectiveCollation()
	return s.beginHandshakeWrite(buf), nil
}

// handleReply processes the server's response to a handshake response or
// a continuation: OK, ERR, auth-switch-request, or
// a plugin-specific "more data" continuation.
func (h *handshakeOp) handleReply(s *Session, msg []byte) (done bool, action Action, awaitMore bool, err error) {
	// During the handshake a 0xFE header is an auth switch request, never
	// an OK, so only the 0x00 header counts as OK here.
	if protocol.IsOKHeader(msg, false) {
		ok, err := protocol.DecodeOK(msg, s.capabilities)
		if err != nil {
			return false, Action{}, false, err
		}
		s.backslashEscapes = !ok.StatusFlags.Has(protocol.StatusNoBackslashEscapes)
		return true, Action{}, false, nil
	}
	if protocol.IsErrHeader(msg) {
		ep, err := protocol.DecodeErr(msg, s.capabilities)
		if err != nil {
			return false, Action{}, false, err
		}
		return false, Action{}, false, newErrorFromPacket(ep, "handshake failed")
	}

	if msg[0] == 0xfe {
		// Auth switch request: plugin name (null-terminated), new
		// challenge (rest of the packet).
		pos := 1
		name, n, perr := protocol.NullTerminatedString(msg[pos:])
		if perr != nil {
			return false, Action{}, false, perr
		}
		pos += n
		challenge := msg[pos:]

		plugin, perr := auth.ByName(name)
		if perr != nil {
			return false, Action{}, false, ErrUnknownAuthPlugin
		}
		h.plugin = plugin
		h.challenge = challenge

		response, perr := plugin.Respond(challenge, s.cfg.Password)
		if perr != nil {
			return false, Action{}, false, perr
		}
		return false, s.beginHandshakeWrite(response), false, nil
	}

	// caching_sha2_password "more data" continuation.
	kind, ok := auth.ClassifyContinuation(msg[1:])
	if !ok {
		return false, Action{}, false, fmt.Errorf("%w: unrecognized handshake continuation", ErrBadHandshakePacketType)
	}
	switch kind {
	case auth.ContinuationFastAuthOK:
		return false, Action{}, true, nil // next message will be the terminal OK/ERR
	case auth.ContinuationPerformFull:
		if !s.tlsActive {
			return false, Action{}, false, ErrAuthPluginRequiresSecure
		}
		sha2, ok := h.plugin.(auth.CachingSHA2Password)
		if !ok {
			return false, Action{}, false, fmt.Errorf("%w: perform-full-auth requested by non-caching_sha2 plugin", ErrBadHandshakePacketType)
		}
		return false, s.beginHandshakeWrite(sha2.FullAuthResponse(s.cfg.Password)), false, nil
	default:
		return false, Action{}, false, fmt.Errorf("%w: unrecognized handshake continuation", ErrBadHandshakePacketType)
	}
}
