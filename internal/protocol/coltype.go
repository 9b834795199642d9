package protocol

// ProtocolType is the raw, one-byte protocol-level column type as it
// appears on the wire. It is deliberately distinct from ColumnType, which
// is the semantic type this library resolves down to.
type ProtocolType byte

// Protocol-level type bytes, as transmitted in Protocol::ColumnDefinition41
// and in binary-protocol parameter/row type lists.
const (
	ProtoDecimal    ProtocolType = 0x00
	ProtoTiny       ProtocolType = 0x01
	ProtoShort      ProtocolType = 0x02
	ProtoLong       ProtocolType = 0x03
	ProtoFloat      ProtocolType = 0x04
	ProtoDouble     ProtocolType = 0x05
	ProtoNull       ProtocolType = 0x06
	ProtoTimestamp  ProtocolType = 0x07
	ProtoLongLong   ProtocolType = 0x08
	ProtoInt24      ProtocolType = 0x09
	ProtoDate       ProtocolType = 0x0a
	ProtoTime       ProtocolType = 0x0b
	ProtoDateTime   ProtocolType = 0x0c
	ProtoYear       ProtocolType = 0x0d
	ProtoNewDate    ProtocolType = 0x0e
	ProtoVarChar    ProtocolType = 0x0f
	ProtoBit        ProtocolType = 0x10
	ProtoJSON       ProtocolType = 0xf5
	ProtoNewDecimal ProtocolType = 0xf6
	ProtoEnum       ProtocolType = 0xf7
	ProtoSet        ProtocolType = 0xf8
	ProtoTinyBlob   ProtocolType = 0xf9
	ProtoMediumBlob ProtocolType = 0xfa
	ProtoLongBlob   ProtocolType = 0xfb
	ProtoBlob       ProtocolType = 0xfc
	ProtoVarString  ProtocolType = 0xfd
	ProtoString     ProtocolType = 0xfe
	ProtoGeometry   ProtocolType = 0xff
)

// ColumnType is the semantic column type the library exposes to callers,
// resolved from the protocol type together with the column's collation and
// flags.
type ColumnType int

const (
	ColumnUnknown ColumnType = iota
	ColumnTinyInt
	ColumnSmallInt
	ColumnMediumInt
	ColumnInt
	ColumnBigInt
	ColumnFloat
	ColumnDouble
	ColumnDecimal
	ColumnDate
	ColumnDateTime
	ColumnTimestamp
	ColumnYear
	ColumnTime
	ColumnText
	ColumnVarchar
	ColumnChar
	ColumnBlob
	ColumnVarBinary
	ColumnBinary
	ColumnBit
	ColumnJSON
	ColumnEnum
	ColumnSet
	ColumnGeometry
	ColumnNull
)

// binaryCollationID is the collation id MySQL/MariaDB uses to mark a
// string-shaped column as actually holding binary data ("binary" charset,
// collation "binary").
const binaryCollationID = 63

// ColumnFlag mirrors the server flags transmitted in a column definition
// packet.
type ColumnFlag uint16

const (
	FlagNotNull     ColumnFlag = 1 << 0
	FlagPriKey      ColumnFlag = 1 << 1
	FlagUniqueKey   ColumnFlag = 1 << 2
	FlagMultipleKey ColumnFlag = 1 << 3
	FlagBlob        ColumnFlag = 1 << 4
	FlagUnsigned    ColumnFlag = 1 << 5
	FlagZerofill    ColumnFlag = 1 << 6
	FlagBinary      ColumnFlag = 1 << 7
	FlagEnum        ColumnFlag = 1 << 8
	FlagAutoInc     ColumnFlag = 1 << 9
	FlagTimestamp   ColumnFlag = 1 << 10
	FlagSet         ColumnFlag = 1 << 11
)

// ResolveColumnType maps a protocol-level type byte, together with the
// column's collation id and flags, to a semantic ColumnType.
//
// Older server versions transmit the legacy codes TINY_BLOB, MEDIUM_BLOB,
// LONG_BLOB, VARCHAR, ENUM, SET and NULL in place of the modern codes; the
// resolver treats them as aliases of their modern counterparts, using the
// collation id to distinguish text from binary exactly as the modern codes
// do.
func ResolveColumnType(pt ProtocolType, collation uint16, flags ColumnFlag) ColumnType {
	isBinary := collation == binaryCollationID

	switch pt {
	case ProtoTiny:
		return ColumnTinyInt
	case ProtoShort:
		return ColumnSmallInt
	case ProtoInt24:
		return ColumnMediumInt
	case ProtoLong:
		return ColumnInt
	case ProtoLongLong:
		return ColumnBigInt
	case ProtoFloat:
		return ColumnFloat
	case ProtoDouble:
		return ColumnDouble
	case ProtoDecimal, ProtoNewDecimal:
		return ColumnDecimal
	case ProtoDate, ProtoNewDate:
		return ColumnDate
	case ProtoDateTime:
		return ColumnDateTime
	case ProtoTimestamp:
		return ColumnTimestamp
	case ProtoYear:
		return ColumnYear
	case ProtoTime:
		return ColumnTime
	case ProtoJSON:
		return ColumnJSON
	case ProtoBit:
		return ColumnBit
	case ProtoGeometry:
		return ColumnGeometry
	case ProtoNull:
		return ColumnNull

	case ProtoEnum:
		return ColumnEnum
	case ProtoSet:
		return ColumnSet

	// VARCHAR / VAR_STRING: variable-length string column. Binary
	// collation means the application declared VARBINARY.
	case ProtoVarChar, ProtoVarString:
		if isBinary {
			return ColumnVarBinary
		}
		return ColumnVarchar

	// STRING: fixed-length CHAR, or BINARY if the collation is binary.
	case ProtoString:
		if flags&FlagEnum != 0 {
			return ColumnEnum
		}
		if flags&FlagSet != 0 {
			return ColumnSet
		}
		if isBinary {
			return ColumnBinary
		}
		return ColumnChar

	// TINY_BLOB / MEDIUM_BLOB / LONG_BLOB / BLOB: binary collation means
	// an actual BLOB; any other collation means TEXT.
	case ProtoTinyBlob, ProtoMediumBlob, ProtoLongBlob, ProtoBlob:
		if isBinary {
			return ColumnBlob
		}
		return ColumnText

	default:
		return ColumnUnknown
	}
}
