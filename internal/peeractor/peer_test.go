package peeractor

import (
	"net"
	"testing"
	"time"

	"github.com/cenkalti/soulseek/internal/actor"
	"github.com/cenkalti/soulseek/internal/clientop"
	"github.com/cenkalti/soulseek/internal/protocol"
)

func TestRemoteInitiatedTransferRequestRepliesAllowed(t *testing.T) {
	clientConn, peerConn := net.Pipe()
	defer clientConn.Close()
	defer peerConn.Close()

	events := make(chan clientop.Operation, 8)
	sys := actor.NewSystem(2)
	h := SpawnAttached(sys, "M", clientConn, nil, events)

	req := protocol.NewMessage(protocol.PeerTransferRequest, true)
	req.WriteUint32(1) // direction: upload (remote -> us is a download for us)
	req.WriteUint32(222)
	req.WriteString("f.mp3")
	req.WriteUint64(17580946)

	go func() {
		peerConn.SetWriteDeadline(time.Now().Add(2 * time.Second))
		peerConn.Write(req.Buffer())
	}()

	frames := protocol.NewFrameReader()
	peerConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var payload []byte
	for {
		n, err := frames.ReadFromSocket(peerConn)
		if n == 0 && err != nil {
			t.Fatalf("read: %v", err)
		}
		p, ok, err2 := frames.ExtractMessage()
		if err2 != nil {
			t.Fatalf("extract: %v", err2)
		}
		if ok {
			payload = p
			break
		}
	}
	m := protocol.NewMessageFromBytes(payload)
	if m.MessageCode(true) != protocol.PeerTransferResponse {
		t.Fatalf("expected TransferResponse, got opcode %d", m.MessageCode(true))
	}
	m.SetPointer(4)
	token := m.ReadUint32()
	allowed := m.ReadBool()
	if token != 222 || !allowed {
		t.Fatalf("expected token=222 allowed=true, got token=%d allowed=%v", token, allowed)
	}

	select {
	case op := <-events:
		if op.Kind != clientop.KindUpdateDownloadTokens {
			t.Fatalf("expected UpdateDownloadTokens event, got %v", op.Kind)
		}
		if op.Transfer.Token != 222 || op.Transfer.Filename != "f.mp3" {
			t.Fatalf("unexpected transfer info: %+v", op.Transfer)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for UpdateDownloadTokens")
	}

	h.Stop()
	sys.Wait()
}
