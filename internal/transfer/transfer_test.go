package transfer

import (
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/cenkalti/soulseek/internal/download"
	"github.com/cenkalti/soulseek/internal/protocol"
)

func TestRunPierceHandshakeAndStream(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	dir := t.TempDir()
	updates := make(chan download.Update, 8)
	d := download.New("peer", "song.mp3", 123, 11, dir, updates)

	remoteDone := make(chan struct{})
	go func() {
		defer close(remoteDone)
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		conn.SetReadDeadline(time.Now().Add(3 * time.Second))

		frames := protocol.NewFrameReader()
		var payload []byte
		for {
			if n, rerr := frames.ReadFromSocket(conn); n == 0 && rerr != nil {
				t.Errorf("remote read: %v", rerr)
				return
			}
			p, ok, perr := frames.ExtractMessage()
			if perr != nil {
				t.Errorf("remote extract: %v", perr)
				return
			}
			if ok {
				payload = p
				break
			}
		}
		m := protocol.NewMessageFromBytes(payload)
		if m.MessageCode(false) != protocol.PeerInitPierceFirewall {
			t.Errorf("expected PierceFirewall, got %d", m.MessageCode(false))
			return
		}
		m.SetPointer(1)
		if tok := m.ReadUint32(); tok != 123 {
			t.Errorf("expected token 123, got %d", tok)
		}

		var tokenEcho [4]byte
		tokenEcho[0] = 123
		conn.Write(tokenEcho[:])
		// Sleep so the echoed token and the file payload land in
		// separate TCP reads on the client side, matching how a real
		// peer's two distinct writes behave in practice.
		time.Sleep(50 * time.Millisecond)
		conn.Write([]byte("hello world"))
	}()

	host, portStr, _ := net.SplitHostPort(ln.Addr().String())
	portNum, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}
	port := uint16(portNum)

	Run(Params{
		Username: "peer",
		Host:     host,
		Port:     port,
		Token:    123,
		NoPierce: false,
		Download: d,
	})

	<-remoteDone

	status := d.Status()
	if status.Kind != download.StatusCompleted {
		t.Fatalf("expected completed, got %+v", status)
	}

	data, err := os.ReadFile(filepath.Join(dir, "song.mp3"))
	if err != nil {
		t.Fatalf("reading output file: %v", err)
	}
	if string(data) != "hello world" {
		t.Fatalf("unexpected file contents: %q", data)
	}
}

