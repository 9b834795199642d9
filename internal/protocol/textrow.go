package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// DecodeTextRow parses one Protocol::ResultsetRow in the text protocol:
// every column arrives as a length-encoded string (or the NULL
// sentinel), and this decoder interprets that text against each
// column's semantic type to populate the matching Field variant.
func DecodeTextRow(b []byte, cols []ColumnDefinition) ([]Field, error) {
	fields := make([]Field, len(cols))
	pos := 0
	for i, col := range cols {
		raw, n, isNull, err := LenEncString(b[pos:])
		if err != nil {
			return nil, fmt.Errorf("protocol: column %d (%s): %w", i, col.Name, err)
		}
		pos += n
		if isNull {
			fields[i] = Field{kind: KindNull, semantic: col.Semantic}
			continue
		}
		f, err := decodeTextValue(raw, col.Semantic)
		if err != nil {
			return nil, fmt.Errorf("protocol: column %d (%s): %w", i, col.Name, err)
		}
		fields[i] = f
	}
	if pos != len(b) {
		return nil, ErrExtraBytes
	}
	return fields, nil
}

func decodeTextValue(raw []byte, sem ColumnType) (Field, error) {
	text := string(raw)
	switch sem {
	case ColumnTinyInt, ColumnSmallInt, ColumnMediumInt, ColumnInt, ColumnBigInt, ColumnYear:
		if v, err := strconv.ParseInt(text, 10, 64); err == nil {
			return Field{kind: KindInt64, i64: v, semantic: sem}, nil
		}
		v, err := strconv.ParseUint(text, 10, 64)
		if err != nil {
			return Field{}, fmt.Errorf("invalid integer text %q: %w", text, err)
		}
		return Field{kind: KindUint64, u64: v, semantic: sem}, nil

	case ColumnFloat:
		v, err := strconv.ParseFloat(text, 32)
		if err != nil {
			return Field{}, fmt.Errorf("invalid float text %q: %w", text, err)
		}
		return Field{kind: KindFloat32, f32: float32(v), semantic: sem}, nil

	case ColumnDouble:
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return Field{}, fmt.Errorf("invalid double text %q: %w", text, err)
		}
		return Field{kind: KindFloat64, f64: v, semantic: sem}, nil

	case ColumnDecimal:
		return Field{kind: KindDecimal, raw: raw, semantic: sem}, nil

	case ColumnDate:
		d, err := parseDateText(text)
		if err != nil {
			return Field{}, err
		}
		return Field{kind: KindDate, date: d, semantic: sem}, nil

	case ColumnDateTime, ColumnTimestamp:
		dt, err := parseDateTimeText(text)
		if err != nil {
			return Field{}, err
		}
		return Field{kind: KindDateTime, datetime: dt, semantic: sem}, nil

	case ColumnTime:
		d, err := parseTimeText(text)
		if err != nil {
			return Field{}, err
		}
		return Field{kind: KindTime, dur: d, semantic: sem}, nil

	case ColumnJSON:
		return Field{kind: KindJSON, raw: raw, semantic: sem}, nil
	case ColumnEnum:
		return Field{kind: KindEnum, raw: raw, semantic: sem}, nil
	case ColumnSet:
		return Field{kind: KindSet, raw: raw, semantic: sem}, nil
	case ColumnBit:
		return Field{kind: KindBit, raw: raw, semantic: sem}, nil
	case ColumnGeometry:
		return Field{kind: KindGeometry, raw: raw, semantic: sem}, nil
	case ColumnBlob, ColumnVarBinary, ColumnBinary:
		return Field{kind: KindBlob, raw: raw, semantic: sem}, nil

	default: // Text, Varchar, Char, and anything unresolved decode as string
		return Field{kind: KindString, raw: raw, semantic: sem}, nil
	}
}

func parseDateText(text string) (Date, error) {
	var y, m, d int
	if _, err := fmt.Sscanf(text, "%04d-%02d-%02d", &y, &m, &d); err != nil {
		return Date{}, fmt.Errorf("invalid date text %q: %w", text, err)
	}
	return Date{Year: y, Month: uint8(m), Day: uint8(d)}, nil
}

func parseDateTimeText(text string) (DateTime, error) {
	datePart := text
	timePart := "00:00:00"
	if idx := strings.IndexByte(text, ' '); idx >= 0 {
		datePart = text[:idx]
		timePart = text[idx+1:]
	}
	date, err := parseDateText(datePart)
	if err != nil {
		return DateTime{}, err
	}
	var hh, mm, ss, micro int
	if strings.Contains(timePart, ".") {
		var fracStr string
		parts := strings.SplitN(timePart, ".", 2)
		fracStr = parts[1]
		if _, err := fmt.Sscanf(parts[0], "%02d:%02d:%02d", &hh, &mm, &ss); err != nil {
			return DateTime{}, fmt.Errorf("invalid datetime text %q: %w", text, err)
		}
		for len(fracStr) < 6 {
			fracStr += "0"
		}
		micro, _ = strconv.Atoi(fracStr[:6])
	} else if _, err := fmt.Sscanf(timePart, "%02d:%02d:%02d", &hh, &mm, &ss); err != nil {
		return DateTime{}, fmt.Errorf("invalid datetime text %q: %w", text, err)
	}
	return DateTime{Date: date, Hour: uint8(hh), Minute: uint8(mm), Second: uint8(ss), Microsecond: uint32(micro)}, nil
}

func parseTimeText(text string) (Duration, error) {
	neg := strings.HasPrefix(text, "-")
	text = strings.TrimPrefix(text, "-")
	main := text
	fracStr := ""
	if idx := strings.IndexByte(text, '.'); idx >= 0 {
		main    = text[:idx]
		fracStr = text[idx+1:]
	}
	var hh, mm, ss int
	if _, err := fmt.Sscanf(main, "%d:%02d:%02d", &hh, &mm, &ss); err != nil {
		return Duration{}, fmt.Errorf("invalid time text %q: %w", text, err)
	}
	var micro int
	if fracStr != "" {
		for len(fracStr) < 6 {
			fracStr += "0"
		}
		micro, _ = strconv.Atoi(fracStr[:6])
	}
	return Duration{Negative: neg, Hours: uint32(hh), Minutes: uint8(mm), Seconds: uint8(ss), Microsecond: uint32(micro)}, nil
}
