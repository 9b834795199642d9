package mysqlcore

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/dbbouncer/mysqlcore/internal/protocol"
	"github.com/dbbouncer/mysqlcore/internal/wire"
)

func writeFrame(dst []byte, seq byte, payload []byte) []byte {
	out, _ := wire.WriteMessage(dst, payload, seq)
	return out
}

func fakeServerHandshake(t *testing.T, conn net.Conn, challenge []byte) {
	t.Helper()
	var body []byte
	body = append(body, 10)
	body = protocol.PutNullTerminatedString(body, "8.0.34-test")
	body = protocol.PutFixedUint(body, 7, 4)
	body = append(body, challenge[:8]...)
	body = append(body, 0)
	caps := protocol.Required | protocol.CapMultiResults | protocol.CapPSMultiResults
	body = protocol.PutFixedUint(body, uint64(caps)&0xffff, 2)
	body = append(body, 0x21)
	body = protocol.PutFixedUint(body, 2, 2)
	body = protocol.PutFixedUint(body, uint64(caps)>>16, 2)
	body = append(body, byte(len(challenge)+1))
	body = append(body, make([]byte, 10)...)
	body = append(body, challenge[8:]...)
	body = append(body, 0)
	body = protocol.PutNullTerminatedString(body, "mysql_native_password")

	buf := writeFrame(nil, 0, body)
	if _, err := conn.Write(buf); err != nil {
		t.Fatalf("write handshake: %v", err)
	}
}

func fakeServerReadMessage(t *testing.T, conn net.Conn, startSeq byte) []byte {
	t.Helper()
	rb := wire.NewReadBuffer(4<<10, 1<<20)
	fr := wire.NewFrameReader()
	fr.Reset(startSeq)
	for {
		msg, ok, err := fr.Next(rb)
		if err != nil {
			t.Fatalf("frame read: %v", err)
		}
		if ok {
			return append([]byte(nil), msg...)
		}
		n, err := conn.Read(rb.Free())
		if err != nil {
			t.Fatalf("conn read: %v", err)
		}
		rb.CommitRead(n)
	}
}

func okPacket(status protocol.StatusFlags) []byte {
	var body []byte
	body = append(body, 0x00)
	body = protocol.PutLenEncInt(body, 0)
	body = protocol.PutLenEncInt(body, 0)
	body = protocol.PutFixedUint(body, uint64(status), 2)
	body = protocol.PutFixedUint(body, 0, 2)
	return body
}

// TestDialAndPing exercises Dial and Ping end to end against a fake
// listener through the public façade rather than the internal
// session/driver types directly.
func TestDialAndPing(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	challenge := make([]byte, 20)
	for i := range challenge {
		challenge[i] = byte(i + 1)
	}

	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		serverConn, err := ln.Accept()
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		defer serverConn.Close()

		fakeServerHandshake(t, serverConn, challenge)
		fakeServerReadMessage(t, serverConn, 1) // handshake response
		if _, err := serverConn.Write(writeFrame(nil, 2, okPacket(protocol.StatusAutocommit))); err != nil {
			t.Errorf("write handshake ok: %v", err)
			return
		}

		fakeServerReadMessage(t, serverConn, 0) // COM_PING
		if _, err := serverConn.Write(writeFrame(nil, 1, okPacket(protocol.StatusAutocommit))); err != nil {
			t.Errorf("write ping ok: %v", err)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := Dial(ctx, "tcp", ln.Addr().String(), Config{Username: "root", Password: "pw"}, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if err := conn.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}

	<-serverDone
}
