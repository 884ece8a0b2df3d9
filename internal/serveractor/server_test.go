package serveractor

import (
	"net"
	"testing"
	"time"

	"github.com/cenkalti/soulseek/internal/actor"
	"github.com/cenkalti/soulseek/internal/clientop"
	"github.com/cenkalti/soulseek/internal/protocol"
)

func TestLoginRoundTrip(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	serverSide := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		serverSide <- conn
	}()

	events := make(chan clientop.Operation, 8)
	sys := actor.NewSystem(2)
	h := Spawn(sys, ln.Addr().String(), events)

	conn := <-serverSide
	defer conn.Close()

	// Read the Login frame the actor just sent on connect+login.
	reply := make(chan error, 1)
	h.Send(Msg{Kind: MsgLogin, Username: "u", Password: "p", Reply: reply})

	frames := protocol.NewFrameReader()
	loginPayload := readOneFrame(t, conn, frames)
	m := protocol.NewMessageFromBytes(loginPayload)
	if m.MessageCode(true) != protocol.ServerLogin {
		t.Fatalf("expected Login opcode, got %d", m.MessageCode(true))
	}

	// Reply with success.
	resp := protocol.NewMessage(protocol.ServerLogin, true)
	resp.WriteBool(true)
	conn.Write(resp.Buffer())

	select {
	case err := <-reply:
		if err != nil {
			t.Fatalf("expected successful login, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for login reply")
	}

	// Expect SharedFolders, HaveNoParents, SetStatus to follow.
	wantOpcodes := []uint32{protocol.ServerSharedFolders, protocol.ServerHaveNoParents, protocol.ServerSetStatus}
	for _, want := range wantOpcodes {
		payload := readOneFrame(t, conn, frames)
		got := protocol.NewMessageFromBytes(payload).MessageCode(true)
		if got != want {
			t.Fatalf("expected opcode %d, got %d", want, got)
		}
	}

	h.Stop()
	sys.Wait()
}

func readOneFrame(t *testing.T, conn net.Conn, frames *protocol.FrameReader) []byte {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		payload, ok, err := frames.ExtractMessage()
		if err != nil {
			t.Fatalf("frame error: %v", err)
		}
		if ok {
			return payload
		}
		if _, err := frames.ReadFromSocket(conn); err != nil {
			t.Fatalf("read: %v", err)
		}
	}
}
