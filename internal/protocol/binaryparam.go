package protocol

import (
	"fmt"
)

// Param is one bound value for COM_STMT_EXECUTE. Nil
// means SQL NULL. Supported Go types mirror Field's variants: int64,
// uint64, float32, float64, string, []byte, bool, Date, DateTime,
// Duration.
type Param = any

// paramNullBitmapSize returns the byte length of the parameter NULL bitmap
// for n parameters (offset 0, unlike row NULL bitmaps).
func paramNullBitmapSize(n int) int { return (n + 7) / 8 }

// EncodeBinaryParams appends the parameter portion of a COM_STMT_EXECUTE
// payload to dst: the NULL bitmap, the new-params-bound-flag, the
// per-parameter type array, and finally the packed values for every
// non-null parameter. The caller is responsible for the preceding command
// byte, statement id, cursor flags and iteration count.
func EncodeBinaryParams(dst []byte, params []Param) ([]byte, error) {
	if len(params) == 0 {
		return dst, nil
	}

	bitmapStart := len(dst)
	bitmapLen := paramNullBitmapSize(len(params))
	for i := 0; i < bitmapLen; i++ {
		dst = append(dst, 0)
	}
	for i, p := range params {
		if p == nil {
			dst[bitmapStart+i/8] |= 1 << uint(i%8)
		}
	}

	dst = append(dst, 1) // new_params_bound_flag

	for _, p := range params {
		pt, unsigned, err := paramProtocolType(p)
		if err != nil {
			return nil, err
		}
		dst = append(dst, byte(pt))
		if unsigned {
			dst = append(dst, 0x80)
		} else {
			dst = append(dst, 0)
		}
	}

	for _, p := range params {
		if p == nil {
			continue
		}
		var err error
		dst, err = encodeParamValue(dst, p)
		if err != nil {
			return nil, err
		}
	}
	return dst, nil
}

func paramProtocolType(p Param) (ProtocolType, bool, error) {
	switch p.(type) {
	case nil:
		return ProtoNull, false, nil
	case int64, int, int32:
		return ProtoLongLong, false, nil
	case uint64, uint, uint32:
		return ProtoLongLong, true, nil
	case float32:
		return ProtoFloat, false, nil
	case float64:
		return ProtoDouble, false, nil
	case bool:
		return ProtoTiny, false, nil
	case string:
		return ProtoVarString, false, nil
	case []byte:
		return ProtoBlob, false, nil
	case Date:
		return ProtoDate, false, nil
	case DateTime:
		return ProtoDateTime, false, nil
	case Duration:
		return ProtoTime, false, nil
	default:
		return 0, false, fmt.Errorf("protocol: unsupported parameter type %T", p)
	}
}

func encodeParamValue(dst []byte, p Param) ([]byte, error) {
	switch v := p.(type) {
	case int64:
		return PutFixedUint(dst, uint64(v), 8), nil
	case int:
		return PutFixedUint(dst, uint64(int64(v)), 8), nil
	case int32:
		return PutFixedUint(dst, uint64(int64(v)), 8), nil
	case uint64:
		return PutFixedUint(dst, v, 8), nil
	case uint:
		return PutFixedUint(dst, uint64(v), 8), nil
	case uint32:
		return PutFixedUint(dst, uint64(v), 8), nil
	case float32:
		return PutFloat32(dst, v), nil
	case float64:
		return PutFloat64(dst, v), nil
	case bool:
		if v {
			return append(dst, 1), nil
		}
		return append(dst, 0), nil
	case string:
		return PutLenEncString(dst, []byte(v)), nil
	case []byte:
		return PutLenEncString(dst, v), nil
	case Date:
		return encodeBinaryDate(dst, v), nil
	case DateTime:
		return encodeBinaryDateTime(dst, v), nil
	case Duration:
		return encodeBinaryTime(dst, v), nil
	default:
		return nil, fmt.Errorf("protocol: unsupported parameter type %T", p)
	}
}

func encodeBinaryDate(dst []byte, d Date) []byte {
	if d == (Date{}) {
		return append(dst, 0)
	}
	dst = append(dst, 4)
	dst = PutFixedUint(dst, uint64(d.Year), 2)
	dst = append(dst, d.Month, d.Day)
	return dst
}

func encodeBinaryDateTime(dst []byte, dt DateTime) []byte {
	switch {
	case dt.Microsecond != 0:
		dst = append(dst, 11)
		dst = PutFixedUint(dst, uint64(dt.Year), 2)
		dst = append(dst, dt.Month, dt.Day, dt.Hour, dt.Minute, dt.Second)
		dst = PutFixedUint(dst, uint64(dt.Microsecond), 4)
	case dt.Hour != 0 || dt.Minute != 0 || dt.Second != 0:
		dst = append(dst, 7)
		dst = PutFixedUint(dst, uint64(dt.Year), 2)
		dst = append(dst, dt.Month, dt.Day, dt.Hour, dt.Minute, dt.Second)
	case dt.Date != (Date{}):
		dst = append(dst, 4)
		dst = PutFixedUint(dst, uint64(dt.Year), 2)
		dst = append(dst, dt.Month, dt.Day)
	default:
		dst = append(dst, 0)
	}
	return dst
}

func encodeBinaryTime(dst []byte, d Duration) []byte {
	if d.Hours == 0 && d.Minutes == 0 && d.Seconds == 0 && d.Microsecond == 0 {
		return append(dst, 0)
	}
	days := d.Hours / 24
	hours := d.Hours % 24
	if d.Microsecond != 0 {
		dst = append(dst, 12)
		dst = appendTimeSign(dst, d.Negative)
		dst = PutFixedUint(dst, uint64(days), 4)
		dst = append(dst, byte(hours), d.Minutes, d.Seconds)
		dst = PutFixedUint(dst, uint64(d.Microsecond), 4)
		return dst
	}
	dst = append(dst, 8)
	dst = appendTimeSign(dst, d.Negative)
	dst = PutFixedUint(dst, uint64(days), 4)
	dst = append(dst, byte(hours), d.Minutes, d.Seconds)
	return dst
}

func appendTimeSign(dst []byte, negative bool) []byte {
	if negative {
		return append(dst, 1)
	}
	return append(dst, 0)
}
