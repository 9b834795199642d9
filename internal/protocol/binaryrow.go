package protocol

import "fmt"

// nullBitmapOffset is the bit offset binary-protocol row NULL bitmaps start
// at.
const nullBitmapOffset = 2

// binaryNullBitmapSize returns the byte length of a NULL bitmap covering n
// columns starting at the given bit offset.
func binaryNullBitmapSize(n, offset int) int {
	return (n + offset + 7) / 8
}

func nullBitSet(bitmap []byte, i, offset int) bool {
	bytePos := (i + offset) / 8
	bitPos := uint((i + offset) % 8)
	return bitmap[bytePos]&(1<<bitPos) != 0
}

// DecodeBinaryRow parses one Protocol::BinaryResultsetRow:
// a packet header byte, a NULL bitmap, then a packed binary value for each
// non-null column in its protocol-native encoding.
func DecodeBinaryRow(b []byte, cols []ColumnDefinition) ([]Field, error) {
	if len(b) < 1 || b[0] != 0x00 {
		return nil, fmt.Errorf("protocol: binary row missing packet header byte")
	}
	pos := 1
	bitmapLen := binaryNullBitmapSize(len(cols), nullBitmapOffset)
	if len(b) < pos+bitmapLen {
		return nil, ErrIncompleteMessage
	}
	bitmap := b[pos: pos+bitmapLen]
	pos += bitmapLen

	fields := make([]Field, len(cols))
	for i, col := range cols {
		if nullBitSet(bitmap, i, nullBitmapOffset) {
			fields[i] = Field{kind: KindNull, semantic: col.Semantic}
			continue
		}
		f, n, err := decodeBinaryValue(b[pos:], col)
		if err != nil {
			return nil, fmt.Errorf("protocol: column %d (%s): %w", i, col.Name, err)
		}
		pos += n
		fields[i] = f
	}
	if pos != len(b) {
		return nil, ErrExtraBytes
	}
	return fields, nil
}

func decodeBinaryValue(b []byte, col ColumnDefinition) (Field, int, error) {
	unsigned := col.Flags&FlagUnsigned != 0
	sem := col.Semantic

	switch col.Type {
	case ProtoTiny:
		if len(b) < 1 {
			return Field{}, 0, ErrIncompleteMessage
		}
		if unsigned {
			return Field{kind: KindUint64, u64: uint64(b[0]), semantic: sem}, 1, nil
		}
		return Field{kind: KindInt64, i64: int64(int8(b[0])), semantic: sem}, 1, nil

	case ProtoShort, ProtoYear:
		v, err := FixedUint(b, 2)
		if err != nil {
			return Field{}, 0, err
		}
		if unsigned {
			return Field{kind: KindUint64, u64: v, semantic: sem}, 2, nil
		}
		return Field{kind: KindInt64, i64: int64(int16(v)), semantic: sem}, 2, nil

	case ProtoLong, ProtoInt24:
		v, err := FixedUint(b, 4)
		if err != nil {
			return Field{}, 0, err
		}
		if unsigned {
			return Field{kind: KindUint64, u64: v, semantic: sem}, 4, nil
		}
		return Field{kind: KindInt64, i64: int64(int32(v)), semantic: sem}, 4, nil

	case ProtoLongLong:
		v, err := FixedUint(b, 8)
		if err != nil {
			return Field{}, 0, err
		}
		if unsigned {
			return Field{kind: KindUint64, u64: v, semantic: sem}, 8, nil
		}
		return Field{kind: KindInt64, i64: int64(v), semantic: sem}, 8, nil

	case ProtoFloat:
		v, err := Float32(b)
		if err != nil {
			return Field{}, 0, err
		}
		return Field{kind: KindFloat32, f32: v, semantic: sem}, 4, nil

	case ProtoDouble:
		v, err := Float64(b)
		if err != nil {
			return Field{}, 0, err
		}
		return Field{kind: KindFloat64, f64: v, semantic: sem}, 8, nil

	case ProtoDecimal, ProtoNewDecimal:
		raw, n, _, err := LenEncString(b)
		if err != nil {
			return Field{}, 0, err
		}
		return Field{kind: KindDecimal, raw: raw, semantic: sem}, n, nil

	case ProtoDate, ProtoNewDate:
		date, n, err := decodeBinaryDate(b)
		if err != nil {
			return Field{}, 0, err
		}
		return Field{kind: KindDate, date: date, semantic: sem}, n, nil

	case ProtoDateTime, ProtoTimestamp:
		dt, n, err := decodeBinaryDateTime(b)
		if err != nil {
			return Field{}, 0, err
		}
		return Field{kind: KindDateTime, datetime: dt, semantic: sem}, n, nil

	case ProtoTime:
		d, n, err := decodeBinaryTime(b)
		if err != nil {
			return Field{}, 0, err
		}
		return Field{kind: KindTime, dur: d, semantic: sem}, n, nil

	case ProtoJSON:
		raw, n, _, err := LenEncString(b)
		if err != nil {
			return Field{}, 0, err
		}
		return Field{kind: KindJSON, raw: raw, semantic: sem}, n, nil

	case ProtoBit:
		raw, n, _, err := LenEncString(b)
		if err != nil {
			return Field{}, 0, err
		}
		return Field{kind: KindBit, raw: raw, semantic: sem}, n, nil

	case ProtoGeometry:
		raw, n, _, err := LenEncString(b)
		if err != nil {
			return Field{}, 0, err
		}
		return Field{kind: KindGeometry, raw: raw, semantic: sem}, n, nil

	case ProtoEnum:
		raw, n, _, err := LenEncString(b)
		if err != nil {
			return Field{}, 0, err
		}
		return Field{kind: KindEnum, raw: raw, semantic: sem}, n, nil

	case ProtoSet:
		raw, n, _, err := LenEncString(b)
		if err != nil {
			return Field{}, 0, err
		}
		return Field{kind: KindSet, raw: raw, semantic: sem}, n, nil

	case ProtoVarChar, ProtoVarString, ProtoString, ProtoTinyBlob, ProtoMediumBlob, ProtoLongBlob, ProtoBlob:
		raw, n, _, err := LenEncString(b)
		if err != nil {
			return Field{}, 0, err
		}
		if sem == ColumnBlob || sem == ColumnVarBinary || sem == ColumnBinary {
			return Field{kind: KindBlob, raw: raw, semantic: sem}, n, nil
		}
		return Field{kind: KindString, raw: raw, semantic: sem}, n, nil

	default:
		raw, n, _, err := LenEncString(b)
		if err != nil {
			return Field{}, 0, err
		}
		return Field{kind: KindString, raw: raw, semantic: sem}, n, nil
	}
}

// decodeBinaryDate parses Protocol::MYSQL_TIME's date-only encoding: a
// length byte (0, or 4), followed by year(2) month(1) day(1).
func decodeBinaryDate(b []byte) (Date, int, error) {
	if len(b) < 1 {
		return Date{}, 0, ErrIncompleteMessage
	}
	length := int(b[0])
	if length == 0 {
		return Date{}, 1, nil
	}
	if len(b) < 1+4 || length < 4 {
		return Date{}, 0, ErrIncompleteMessage
	}
	year, _ := FixedUint(b[1:], 2)
	return Date{Year: int(year), Month: b[3], Day: b[4]}, 5, nil
}

// decodeBinaryDateTime parses Protocol::MYSQL_TIME's full encoding: a
// length byte (0, 4, 7, or 11), followed by year(2) month(1) day(1)
// [hour(1) minute(1) second(1) [microsecond(4)]].
func decodeBinaryDateTime(b []byte) (DateTime, int, error) {
	if len(b) < 1 {
		return DateTime{}, 0, ErrIncompleteMessage
	}
	length := int(b[0])
	if length == 0 {
		return DateTime{}, 1, nil
	}
	if len(b) < 1+length {
		return DateTime{}, 0, ErrIncompleteMessage
	}
	year, _ := FixedUint(b[1:], 2)
	dt := DateTime{Date: Date{Year: int(year), Month: b[3], Day: b[4]}}
	if length >= 7 {
		dt.Hour, dt.Minute, dt.Second = b[5], b[6], b[7]
	}
	if length >= 11 {
		micro, _ := FixedUint(b[8:], 4)
		dt.Microsecond = uint32(micro)
	}
	return dt, 1 + length, nil
}

// decodeBinaryTime parses Protocol::MYSQL_TIME's TIME encoding: a length
// byte (0, 8, or 12), followed by sign(1) days(4) hour(1) minute(1)
// second(1) [microsecond(4)].
func decodeBinaryTime(b []byte) (Duration, int, error) {
	if len(b) < 1 {
		return Duration{}, 0, ErrIncompleteMessage
	}
	length := int(b[0])
	if length == 0 {
		return Duration{}, 1, nil
	}
	if len(b) < 1+length {
		return Duration{}, 0, ErrIncompleteMessage
	}
	neg := b[1] != 0
	days, _ := FixedUint(b[2:], 4)
	d := Duration{Negative: neg, Hours: uint32(days)*24 + uint32(b[6]), Minutes: b[7], Seconds: b[8]}
	if length >= 12 {
		micro, _ := FixedUint(b[9:], 4)
		d.Microsecond = uint32(micro)
	}
	return d, 1 + length, nil
}
