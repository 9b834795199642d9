package protocol

import "fmt"

// Generic response header bytes: every command response begins with one
// of OK, ERR, a result-set header, or (for a handful of commands) a
// dedicated packet type.
const (
	headerOK          = 0x00
	headerEOF         = 0xfe
	headerErr         = 0xff
	headerLocalInfile = 0xfb
)

// OKPacket is the server's generic success acknowledgement.
type OKPacket struct {
	AffectedRows uint64
	LastInsertID uint64
	StatusFlags  StatusFlags
	Warnings     uint16
	Info         string
	// SessionStateChanges holds raw session-state-tracking payload when
	// StatusFlags has StatusSessionStateChanged set. The core surfaces the
	// bytes as-is; decoding individual tracker kinds is left to higher
	// layers.
	SessionStateChanges []byte
}

// StatusFlags mirrors the server status bitmap embedded in OK/EOF packets.
type StatusFlags uint16

const (
	StatusInTrans             StatusFlags = 1 << 0
	StatusAutocommit          StatusFlags = 1 << 1
	StatusMoreResultsExist    StatusFlags = 1 << 3
	StatusNoGoodIndexUsed     StatusFlags = 1 << 4
	StatusNoIndexUsed         StatusFlags = 1 << 5
	StatusCursorExists        StatusFlags = 1 << 6
	StatusLastRowSent         StatusFlags = 1 << 7
	StatusDBDropped           StatusFlags = 1 << 8
	StatusNoBackslashEscapes  StatusFlags = 1 << 9
	StatusMetadataChanged     StatusFlags = 1 << 10
	StatusQueryWasSlow        StatusFlags = 1 << 11
	StatusPSOutParams         StatusFlags = 1 << 12
	StatusInTransReadonly     StatusFlags = 1 << 13
	StatusSessionStateChanged StatusFlags = 1 << 14
)

// Has reports whether all bits in want are set.
func (s StatusFlags) Has(want StatusFlags) bool { return s&want == want }

// IsOKHeader reports whether the first byte of a command response denotes
// an OK packet. With CLIENT_DEPRECATE_EOF negotiated, 0xFE is also used for
// OK when the packet is at least 7 bytes long and shorter than the
// negotiated max packet size.
func IsOKHeader(b []byte, deprecateEOF bool) bool {
	if len(b) == 0 {
		return false
	}
	if b[0] == headerOK {
		return true
	}
	return deprecateEOF && b[0] == headerEOF && len(b) >= 7 && len(b) < 0xffffff
}

// IsErrHeader reports whether the first byte denotes an ERR packet.
func IsErrHeader(b []byte) bool { return len(b) > 0 && b[0] == headerErr }

// IsEOFHeader reports whether the first byte denotes a legacy EOF packet
// (only meaningful when CLIENT_DEPRECATE_EOF was not negotiated).
func IsEOFHeader(b []byte) bool { return len(b) > 0 && b[0] == headerEOF && len(b) < 9 }

// DecodeOK parses an OK packet. b is the whole packet, header byte
// included; DecodeOK skips the header itself.
func DecodeOK(b []byte, capabilities Capability) (OKPacket, error) {
	if len(b) < 1 {
		return OKPacket{}, ErrIncompleteMessage
	}
	pos := 1 // skip header byte (0x00 or 0xFE)
	var ok OKPacket

	affectedRows, n, _, err := LenEncInt(b[pos:])
	if err != nil {
		return OKPacket{}, err
	}
	ok.AffectedRows = affectedRows
	pos += n

	lastInsertID, n, _, err := LenEncInt(b[pos:])
	if err != nil {
		return OKPacket{}, err
	}
	ok.LastInsertID = lastInsertID
	pos += n

	if capabilities.Has(CapProtocol41) {
		if len(b) < pos+4 {
			return OKPacket{}, ErrIncompleteMessage
		}
		status, err := FixedUint(b[pos:], 2)
		if err != nil {
			return OKPacket{}, err
		}
		ok.StatusFlags = StatusFlags(status)
		pos += 2
		warnings, err := FixedUint(b[pos:], 2)
		if err != nil {
			return OKPacket{}, err
		}
		ok.Warnings = uint16(warnings)
		pos += 2
	} else if capabilities.Has(CapTransactions) {
		if len(b) < pos+2 {
			return OKPacket{}, ErrIncompleteMessage
		}
		status, err := FixedUint(b[pos:], 2)
		if err != nil {
			return OKPacket{}, err
		}
		ok.StatusFlags = StatusFlags(status)
		pos += 2
	}

	if ok.StatusFlags.Has(StatusSessionStateChanged) {
		info, n, _, err := LenEncString(b[pos:])
		if err != nil {
			return OKPacket{}, err
		}
		ok.Info = string(info)
		pos += n
		changes, n, _, err := LenEncString(b[pos:])
		if err != nil {
			return OKPacket{}, err
		}
		ok.SessionStateChanges = append([]byte(nil), changes...)
		pos += n
	} else {
		ok.Info = string(EOFTerminatedString(b[pos:]))
	}

	return ok, nil
}

// ErrPacket is the server's generic error response.
type ErrPacket struct {
	Code           uint16
	SQLStateMarker byte
	SQLState       string
	Message        string
}

func (e ErrPacket) Error() string {
	if e.SQLState != "" {
		return fmt.Sprintf("mysql: error %d (%s): %s", e.Code, e.SQLState, e.Message)
	}
	return fmt.Sprintf("mysql: error %d: %s", e.Code, e.Message)
}

// DecodeErr parses an ERR packet body.
func DecodeErr(b []byte, capabilities Capability) (ErrPacket, error) {
	if len(b) < 3 {
		return ErrPacket{}, ErrIncompleteMessage
	}
	pos := 1
	code, err := FixedUint(b[pos:], 2)
	if err != nil {
		return ErrPacket{}, err
	}
	var e ErrPacket
	e.Code = uint16(code)
	pos += 2

	if capabilities.Has(CapProtocol41) {
		if len(b) < pos+6 {
			return ErrPacket{}, ErrIncompleteMessage
		}
		e.SQLStateMarker = b[pos]
		pos++
		e.SQLState = string(b[pos: pos+5])
		pos += 5
	}
	e.Message = string(EOFTerminatedString(b[pos:]))
	return e, nil
}

// ColumnDefinition is Protocol::ColumnDefinition41, the per-column metadata
// packet sent ahead of a result set.
type ColumnDefinition struct {
	Catalog      string
	Schema       string
	Table        string
	OrgTable     string
	Name         string
	OrgName      string
	CharsetID    uint16
	ColumnLength uint32
	Type         ProtocolType
	Flags        ColumnFlag
	Decimals     byte
	Semantic     ColumnType
}

// DecodeColumnDefinition parses a Protocol::ColumnDefinition41 packet.
func DecodeColumnDefinition(b []byte) (ColumnDefinition, error) {
	var cd ColumnDefinition
	pos := 0

	read := func() ([]byte, error) {
		s, n, _, err := LenEncString(b[pos:])
		if err != nil {
			return nil, err
		}
		pos += n
		return s, nil
	}

	catalog, err := read()
	if err != nil {
		return cd, err
	}
	schema, err := read()
	if err != nil {
		return cd, err
	}
	table, err := read()
	if err != nil {
		return cd, err
	}
	orgTable, err := read()
	if err != nil {
		return cd, err
	}
	name, err := read()
	if err != nil {
		return cd, err
	}
	orgName, err := read()
	if err != nil {
		return cd, err
	}
	cd.Catalog, cd.Schema, cd.Table = string(catalog), string(schema), string(table)
	cd.OrgTable, cd.Name, cd.OrgName = string(orgTable), string(name), string(orgName)

	fixedLen, n, _, err := LenEncInt(b[pos:])
	if err != nil {
		return cd, err
	}
	pos += n
	if fixedLen != 0x0c {
		return cd, fmt.Errorf("protocol: unexpected column definition fixed-length field marker %d", fixedLen)
	}
	if len(b) < pos+10 {
		return cd, ErrIncompleteMessage
	}
	charset, _ := FixedUint(b[pos:], 2)
	cd.CharsetID = uint16(charset)
	pos += 2
	colLen, _ := FixedUint(b[pos:], 4)
	cd.ColumnLength = uint32(colLen)
	pos += 4
	cd.Type = ProtocolType(b[pos])
	pos++
	flags, _ := FixedUint(b[pos:], 2)
	cd.Flags = ColumnFlag(flags)
	pos += 2
	cd.Decimals = b[pos]
	pos++

	cd.Semantic = ResolveColumnType(cd.Type, cd.CharsetID, cd.Flags)
	return cd, nil
}

// PrepareOK is COM_STMT_PREPARE_OK, the response to a successful
// COM_STMT_PREPARE.
type PrepareOK struct {
	StatementID uint32
	NumColumns  uint16
	NumParams   uint16
	Warnings    uint16
}

// DecodePrepareOK parses a COM_STMT_PREPARE_OK packet body.
func DecodePrepareOK(b []byte) (PrepareOK, error) {
	if len(b) < 12 {
		return PrepareOK{}, ErrIncompleteMessage
	}
	pos := 1 // status byte, always 0x00
	var p PrepareOK
	id, _ := FixedUint(b[pos:], 4)
	p.StatementID = uint32(id)
	pos += 4
	cols, _ := FixedUint(b[pos:], 2)
	p.NumColumns = uint16(cols)
	pos += 2
	params, _ := FixedUint(b[pos:], 2)
	p.NumParams = uint16(params)
	pos += 2
	pos++ // reserved filler byte
	warn, _ := FixedUint(b[pos:], 2)
	p.Warnings = uint16(warn)
	return p, nil
}
