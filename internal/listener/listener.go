// Package listener accepts inbound peer connections, reads the PeerInit
// preamble, and routes each socket to a Peer Actor (control) or the
// Transfer Engine (file), or drops it (distributed — unimplemented,
// logged and dropped per the design notes).
package listener

import (
	"fmt"
	"net"
	"time"

	"github.com/cenkalti/soulseek/internal/actor"
	"github.com/cenkalti/soulseek/internal/clientop"
	"github.com/cenkalti/soulseek/internal/logger"
	"github.com/cenkalti/soulseek/internal/peer"
	"github.com/cenkalti/soulseek/internal/protocol"
)

// Msg is the (empty) mailbox type for the Listener Actor: it does all of
// its work from Tick, so no external messages are needed today. The type
// still exists so it composes with the shared actor runtime.
type Msg struct{}

// Actor binds the configured listen port and accepts one connection per
// tick, handing each off to a short-lived ConnectionHandler.
type Actor struct {
	port uint16
	ln   net.Listener
	log  logger.Logger
	emit clientop.Queue
}

// New builds a Listener Actor bound to 0.0.0.0:port.
func New(port uint16, emit clientop.Queue) *Actor {
	return &Actor{port: port, log: logger.New("listener"), emit: emit}
}

func (a *Actor) OnStart() {
	ln, err := net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", a.port))
	if err != nil {
		a.log.Error(protocol.Wrap(protocol.KindNetwork, "bind listener", err))
		return
	}
	a.ln = ln
}

func (a *Actor) OnStop() {
	if a.ln != nil {
		a.ln.Close()
	}
}

func (a *Actor) Handle(Msg) {}

// Tick tries to accept exactly one connection; WouldBlock (surfaced here
// as a short accept deadline timing out) is the normal no-op case.
func (a *Actor) Tick() {
	if a.ln == nil {
		return
	}
	if tcpLn, ok := a.ln.(*net.TCPListener); ok {
		_ = tcpLn.SetDeadline(time.Now().Add(10 * time.Millisecond))
	}
	conn, err := a.ln.Accept()
	if err != nil {
		return
	}
	NewConnectionHandler(conn, a.emit).Run()
}

// Spawn binds and starts a Listener Actor on sys.
func Spawn(sys *actor.System, port uint16, emit clientop.Queue) actor.Handle[Msg] {
	return actor.Spawn[Msg](sys, New(port, emit))
}

// ConnectionHandler is the short-lived classifier for one freshly
// accepted socket: it reads exactly one PeerInit frame, then routes the
// connection and any residual buffered bytes to its real owner. The
// Coordinator, not the handler itself, spawns whatever actor ends up
// owning the connection.
type ConnectionHandler struct {
	conn net.Conn
	emit clientop.Queue
	log  logger.Logger
}

func NewConnectionHandler(conn net.Conn, emit clientop.Queue) *ConnectionHandler {
	return &ConnectionHandler{conn: conn, emit: emit, log: logger.New("conn-handler")}
}

// Run reads the PeerInit preamble synchronously (on the caller's
// goroutine, here the Listener Actor's tick) and classifies the
// connection. Soulseek peers send PeerInit immediately on connect, so a
// short blocking read is acceptable and matches the original's
// read_peer_init_message loop.
func (h *ConnectionHandler) Run() {
	frames := protocol.NewFrameReader()
	_ = h.conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	var payload []byte
	for {
		p, ok, err := frames.ExtractMessage()
		if err != nil {
			h.log.Warningln("malformed PeerInit frame:", err)
			h.conn.Close()
			return
		}
		if ok {
			payload = p
			break
		}
		n, err := frames.ReadFromSocket(h.conn)
		if n == 0 && err != nil {
			h.log.Debugln("connection closed before PeerInit:", err)
			h.conn.Close()
			return
		}
	}
	_ = h.conn.SetReadDeadline(time.Time{})

	m := protocol.NewMessageFromBytes(payload)
	if m.MessageCode(false) != protocol.PeerInitPeerInit {
		h.log.Warningln("expected PeerInit opcode, got", m.MessageCode(false))
		h.conn.Close()
		return
	}
	m.SetPointer(1)
	username, err := m.ReadString()
	if err != nil {
		h.conn.Close()
		return
	}
	connType, err := m.ReadString()
	if err != nil {
		h.conn.Close()
		return
	}
	token := m.ReadUint32()
	residual := frames.Drain()

	switch peer.ConnectionType(connType) {
	case peer.TypeControl:
		h.emit <- clientop.NewPeer(peer.Peer{
			Username:       username,
			ConnectionType: peer.TypeControl,
			Host:           h.conn.RemoteAddr().String(),
			Token:          token,
			HasToken:       true,
		}, h.conn, residual)
	case peer.TypeFileTransfer:
		var downloadToken uint32
		hasToken := false
		if len(residual) >= 4 {
			downloadToken = uint32(residual[0]) | uint32(residual[1])<<8 | uint32(residual[2])<<16 | uint32(residual[3])<<24
			hasToken = true
		}
		h.emit <- clientop.Operation{
			Kind: clientop.KindNewPeer,
			Peer: peer.Peer{
				Username:       username,
				ConnectionType: peer.TypeFileTransfer,
				Token:          downloadToken,
				HasToken:       hasToken,
			},
			Conn:     h.conn,
			Residual: residual,
		}
	default:
		h.log.Infoln("dropping unsupported distributed connection type from", username)
		h.conn.Close()
	}
}
