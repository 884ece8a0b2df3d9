package listener

import (
	"net"
	"testing"
	"time"

	"github.com/cenkalti/soulseek/internal/clientop"
	"github.com/cenkalti/soulseek/internal/peer"
	"github.com/cenkalti/soulseek/internal/protocol"
)

func TestConnectionHandlerRoutesControlConnection(t *testing.T) {
	clientConn, peerConn := net.Pipe()
	defer clientConn.Close()
	defer peerConn.Close()

	events := make(chan clientop.Operation, 1)
	h := NewConnectionHandler(clientConn, events)

	init := protocol.NewMessage(protocol.PeerInitPeerInit, false)
	init.WriteString("alice")
	init.WriteString(string(peer.TypeControl))
	init.WriteUint32(777)

	go func() {
		peerConn.SetWriteDeadline(time.Now().Add(2 * time.Second))
		peerConn.Write(init.Buffer())
	}()

	done := make(chan struct{})
	go func() {
		h.Run()
		close(done)
	}()

	select {
	case op := <-events:
		if op.Kind != clientop.KindNewPeer {
			t.Fatalf("expected KindNewPeer, got %v", op.Kind)
		}
		if op.Peer.Username != "alice" || op.Peer.ConnectionType != peer.TypeControl || op.Peer.Token != 777 {
			t.Fatalf("unexpected peer record: %+v", op.Peer)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for NewPeer event")
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ConnectionHandler.Run did not return")
	}
}

func TestConnectionHandlerDropsDistributedConnection(t *testing.T) {
	clientConn, peerConn := net.Pipe()
	defer clientConn.Close()

	events := make(chan clientop.Operation, 1)
	h := NewConnectionHandler(clientConn, events)

	init := protocol.NewMessage(protocol.PeerInitPeerInit, false)
	init.WriteString("bob")
	init.WriteString("D")
	init.WriteUint32(0)

	go func() {
		peerConn.SetWriteDeadline(time.Now().Add(2 * time.Second))
		peerConn.Write(init.Buffer())
	}()

	done := make(chan struct{})
	go func() {
		h.Run()
		close(done)
	}()

	select {
	case <-events:
		t.Fatal("expected no event for a dropped distributed connection")
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ConnectionHandler.Run did not return")
	}
}
