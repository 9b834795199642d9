package protocol

import "testing"

func col(name string, pt ProtocolType, collation uint16, flags ColumnFlag) ColumnDefinition {
	return ColumnDefinition{
		Name:     name,
		Type:     pt,
		CharsetID: collation,
		Flags:    flags,
		Semantic: ResolveColumnType(pt, collation, flags),
	}
}

func TestDecodeTextRowScalarTypes(t *testing.T) {
	cols := []ColumnDefinition{
		col("id", ProtoLong, 33, FlagNotNull),
		col("price", ProtoNewDecimal, 33, 0),
		col("name", ProtoVarString, 33, 0),
		col("created_at", ProtoDateTime, 33, 0),
		col("deleted", ProtoTiny, 33, 0),
	}

	var buf []byte
	buf = PutLenEncString(buf, []byte("42"))
	buf = PutLenEncString(buf, []byte("19.99"))
	buf = PutLenEncString(buf, []byte("widget"))
	buf = PutLenEncString(buf, []byte("2024-01-02 03:04:05.600000"))
	buf = append(buf, nullLenEncSentinel)

	fields, err := DecodeTextRow(buf, cols)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v, ok := fields[0].Int64(); !ok || v != 42 {
		t.Fatalf("id: got %v, ok=%v", v, ok)
	}
	if v, ok := fields[1].Decimal(); !ok || v != "19.99" {
		t.Fatalf("price: got %q, ok=%v", v, ok)
	}
	if v, ok := fields[2].String(); !ok || v != "widget" {
		t.Fatalf("name: got %q, ok=%v", v, ok)
	}
	dt, ok := fields[3].DateTime()
	if !ok || dt.Year != 2024 || dt.Month != 1 || dt.Day != 2 || dt.Hour != 3 || dt.Minute != 4 || dt.Second != 5 || dt.Microsecond != 600000 {
		t.Fatalf("created_at: got %+v, ok=%v", dt, ok)
	}
	if !fields[4].IsNull() {
		t.Fatal("deleted: expected NULL")
	}
}

func TestDecodeTextRowUnsignedBigInt(t *testing.T) {
	cols := []ColumnDefinition{col("big", ProtoLongLong, 33, FlagUnsigned)}
	var buf []byte
	buf = PutLenEncString(buf, []byte("18446744073709551615"))
	fields, err := DecodeTextRow(buf, cols)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v, ok := fields[0].Uint64()
	if !ok || v != 18446744073709551615 {
		t.Fatalf("got %v, ok=%v", v, ok)
	}
}

func TestDecodeTextRowTimeNegative(t *testing.T) {
	cols := []ColumnDefinition{col("d", ProtoTime, 33, 0)}
	var buf []byte
	buf = PutLenEncString(buf, []byte("-838:59:59.000001"))
	fields, err := DecodeTextRow(buf, cols)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d, ok := fields[0].Time()
	if !ok || !d.Negative || d.Hours != 838 || d.Minutes != 59 || d.Seconds != 59 || d.Microsecond != 1 {
		t.Fatalf("got %+v, ok=%v", d, ok)
	}
}

func TestDecodeTextRowBinaryCollationYieldsBlob(t *testing.T) {
	cols := []ColumnDefinition{col("payload", ProtoBlob, binaryCollationID, 0)}
	var buf []byte
	buf = PutLenEncString(buf, []byte{0x00, 0x01, 0xff})
	fields, err := DecodeTextRow(buf, cols)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, ok := fields[0].Bytes()
	if !ok || len(b) != 3 {
		t.Fatalf("got %v, ok=%v", b, ok)
	}
}
