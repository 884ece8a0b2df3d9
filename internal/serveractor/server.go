// Package serveractor owns the TCP control connection to the central
// Soulseek server: authentication, peer-introduction relays, and the
// handful of housekeeping frames sent right after login.
package serveractor

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net"
	"time"

	"github.com/cenkalti/soulseek/internal/actor"
	"github.com/cenkalti/soulseek/internal/clientop"
	"github.com/cenkalti/soulseek/internal/connstate"
	"github.com/cenkalti/soulseek/internal/dispatch"
	"github.com/cenkalti/soulseek/internal/logger"
	"github.com/cenkalti/soulseek/internal/peer"
	"github.com/cenkalti/soulseek/internal/protocol"
)

const (
	loginTimeout     = 5 * time.Second
	clientVersion    = 157
	clientMinorBuild = 100
)

// MsgKind tags the mailbox messages the Server Actor accepts.
type MsgKind int

const (
	MsgLogin MsgKind = iota
	MsgFileSearch
	MsgPierceFirewall
	MsgGetPeerAddress
	MsgSetListenPort
)

type Msg struct {
	Kind MsgKind

	// MsgLogin
	Username string
	Password string
	Reply    chan<- error

	// MsgFileSearch
	Token uint32
	Query string

	// MsgGetPeerAddress / shared with Token above for PierceFirewall
	// and Username above.

	// MsgSetListenPort
	Port uint16
}

// event is what the internal handler registry emits; the actor processes
// these itself rather than forwarding raw bytes, keeping handlers pure
// with respect to I/O per the codec's design.
type event struct {
	kind       eventKind
	success    bool
	reason     string
	peer       peer.Peer
	username   string
	host       string
	portNumber uint16
}

type eventKind int

const (
	eventLoginStatus eventKind = iota
	eventConnectToPeer
	eventGetPeerAddressResponse
)

// Actor owns the server socket, grounded on the original implementation's
// ServerActor::check_connection_status / process_read / send_message
// trio and rain's session.Session connection bookkeeping style.
type Actor struct {
	addr string
	log  logger.Logger
	emit clientop.Queue

	conn    net.Conn
	dialRes chan dialResult
	frames  *protocol.FrameReader
	state   *connstate.Machine[Msg]

	registry   *dispatch.Registry[event]
	dispatcher *dispatch.Dispatcher[event]

	loginReply    chan<- error
	loginDeadline time.Time
	loginPending  bool

	listenPort uint16
}

type dialResult struct {
	conn net.Conn
	err  error
}

// New builds a Server Actor for the given "host:port" server address.
func New(addr string, emit clientop.Queue) *Actor {
	a := &Actor{
		addr:   addr,
		log:    logger.New("server"),
		emit:   emit,
		frames: protocol.NewFrameReader(),
		state:  connstate.New[Msg](),
	}
	a.registry = buildRegistry()
	a.dispatcher = dispatch.NewDispatcher[event](protocol.ChannelServer, a.registry, dispatch.EmitterFunc[event](a.onEvent), a.log)
	return a
}

func buildRegistry() *dispatch.Registry[event] {
	r := dispatch.NewRegistry[event]()
	r.Register(dispatch.HandlerFunc[event]{
		Code: protocol.ServerLogin,
		HandleFn: func(m *protocol.Message, emit dispatch.Emitter[event]) {
			success := m.ReadBool()
			reason := ""
			if !success {
				reason, _ = m.ReadString()
			}
			emit.Emit(event{kind: eventLoginStatus, success: success, reason: reason})
		},
	})
	r.Register(dispatch.HandlerFunc[event]{
		Code: protocol.ServerConnectToPeer,
		HandleFn: func(m *protocol.Message, emit dispatch.Emitter[event]) {
			username, _ := m.ReadString()
			connType, _ := m.ReadString()
			ip := m.ReadRaw(4)
			host := reversedIPv4(ip)
			port := m.ReadUint32()
			tok := m.ReadUint32()
			emit.Emit(event{kind: eventConnectToPeer, peer: peer.Peer{
				Username:       username,
				ConnectionType: peer.ConnectionType(connType),
				Host:           host,
				Port:           uint16(port),
				Token:          tok,
				HasToken:       true,
			}})
		},
	})
	r.Register(dispatch.HandlerFunc[event]{
		Code: protocol.ServerGetPeerAddress,
		HandleFn: func(m *protocol.Message, emit dispatch.Emitter[event]) {
			username, _ := m.ReadString()
			ip := m.ReadRaw(4)
			host := reversedIPv4(ip)
			port := m.ReadUint32()
			emit.Emit(event{kind: eventGetPeerAddressResponse, username: username, host: host, portNumber: uint16(port)})
		},
	})
	return r
}

// reversedIPv4 renders a raw little-endian 4-byte address as the
// anomalous-but-required-for-interop "{b[3]}.{b[2]}.{b[1]}.{b[0]}" form
// the server actually transmits (see the design notes on this reversal).
func reversedIPv4(b []byte) string {
	if len(b) < 4 {
		return ""
	}
	return fmt.Sprintf("%d.%d.%d.%d", b[3], b[2], b[1], b[0])
}

// OnStart begins a non-blocking dial and enters Connecting.
func (a *Actor) OnStart() {
	a.state.BeginConnecting(time.Now())
	a.dialRes = make(chan dialResult, 1)
	go func() {
		conn, err := net.DialTimeout("tcp", a.addr, connstate.ConnectingTimeout)
		a.dialRes <- dialResult{conn: conn, err: err}
	}()
}

func (a *Actor) OnStop() {
	if a.conn != nil {
		a.conn.Close()
	}
}

// Handle processes one mailbox message, queueing it if the connection
// isn't up yet (every message kind except MsgSetListenPort is queued:
// none of the others make sense to process before the socket is ready).
func (a *Actor) Handle(msg Msg) {
	if msg.Kind == MsgSetListenPort {
		// Exempt: just records the port locally, sent over the wire
		// only after a successful login (see succeedLogin).
		a.listenPort = msg.Port
		return
	}
	if !a.state.IsConnected() {
		if msg.Kind == MsgLogin && !a.loginPending {
			// Start the login timeout now, so a connection that never
			// comes up still answers the reply-sink.
			a.loginReply = msg.Reply
			a.loginDeadline = time.Now().Add(loginTimeout)
			a.loginPending = true
		}
		a.state.Enqueue(msg)
		return
	}
	a.dispatchOutbound(msg)
}

func (a *Actor) dispatchOutbound(msg Msg) {
	switch msg.Kind {
	case MsgLogin:
		a.sendLogin(msg)
	case MsgFileSearch:
		m := protocol.NewMessage(protocol.ServerFileSearch, true)
		m.WriteUint32(msg.Token)
		m.WriteString(msg.Query)
		a.write(m)
	case MsgPierceFirewall:
		// Literal per the source: the PeerInit-channel PierceFirewall
		// frame is issued over the server's own connection at the
		// Coordinator's request.
		m := protocol.NewMessage(protocol.PeerInitPierceFirewall, false)
		m.WriteUint32(msg.Token)
		a.write(m)
	case MsgGetPeerAddress:
		m := protocol.NewMessage(protocol.ServerGetPeerAddress, true)
		m.WriteString(msg.Username)
		a.write(m)
	}
}

func (a *Actor) sendLogin(msg Msg) {
	sum := md5.Sum([]byte(msg.Username + msg.Password))
	m := protocol.NewMessage(protocol.ServerLogin, true)
	m.WriteString(msg.Username)
	m.WriteString(msg.Password)
	m.WriteUint32(clientVersion)
	m.WriteString(hex.EncodeToString(sum[:]))
	m.WriteUint32(clientMinorBuild)
	a.write(m)
	a.loginReply = msg.Reply
	a.loginDeadline = time.Now().Add(loginTimeout)
	a.loginPending = true
}

func (a *Actor) write(m *protocol.Message) {
	if a.conn == nil {
		return
	}
	_, err := a.conn.Write(m.Buffer())
	if err != nil {
		a.log.Error(protocol.Wrap(protocol.KindNetwork, "write to server", err))
		a.disconnect(err)
	}
}

// Tick drives the connection lifecycle and, once connected, reads and
// dispatches any available frames.
func (a *Actor) Tick() {
	switch {
	case a.state.IsConnecting():
		a.tickConnecting()
	case a.state.IsConnected():
		a.tickConnected()
	}
	if a.loginPending && !time.Now().Before(a.loginDeadline) {
		a.failLogin(protocol.ErrTimeout)
	}
}

func (a *Actor) tickConnecting() {
	select {
	case res := <-a.dialRes:
		if res.err != nil {
			a.log.Error(protocol.Wrap(protocol.KindNetwork, "dial server", res.err))
			a.disconnect(res.err)
			return
		}
		a.conn = res.conn
		a.onConnectionEstablished()
	default:
	}
	if a.state.TimedOut(time.Now()) {
		a.log.Warningln("timed out connecting to server")
		a.disconnect(protocol.ErrTimeout)
	}
}

func (a *Actor) onConnectionEstablished() {
	queued := a.state.Connect()
	a.log.Infoln("connected to server", a.addr)
	for _, m := range queued {
		a.dispatchOutbound(m)
	}
}

func (a *Actor) tickConnected() {
	_ = a.conn.SetReadDeadline(time.Now().Add(10 * time.Millisecond))
	for {
		n, err := a.frames.ReadFromSocket(a.conn)
		if n == 0 {
			if err != nil && !isTimeout(err) {
				a.log.Warningln("server connection closed:", err)
				a.disconnect(err)
				return
			}
			break
		}
	}
	for {
		payload, ok, err := a.frames.ExtractMessage()
		if err != nil {
			// The length prefix cannot be trusted, so the frame boundary
			// is lost: drop everything buffered.
			a.log.Warningln("dropping malformed frame:", err)
			a.frames.Drain()
			break
		}
		if !ok {
			break
		}
		a.dispatcher.Dispatch(payload)
	}
}

func (a *Actor) onEvent(e event) {
	switch e.kind {
	case eventLoginStatus:
		if e.success {
			a.succeedLogin()
		} else {
			a.failLogin(protocol.Wrap(protocol.KindAuthenticationFailed, e.reason, nil))
		}
	case eventConnectToPeer:
		a.emit <- clientop.ConnectToPeer(e.peer)
	case eventGetPeerAddressResponse:
		a.emit <- clientop.GetPeerAddressResponse(e.username, e.host, e.portNumber)
	}
}

func (a *Actor) succeedLogin() {
	if a.loginReply != nil {
		a.loginReply <- nil
	}
	a.loginPending = false
	a.loginReply = nil

	if a.listenPort != 0 {
		wait := protocol.NewMessage(protocol.ServerSetWaitPort, true)
		wait.WriteUint32(uint32(a.listenPort))
		a.write(wait)
	}
	sharedFolders := protocol.NewMessage(protocol.ServerSharedFolders, true)
	sharedFolders.WriteUint32(1)
	sharedFolders.WriteUint32(499)
	a.write(sharedFolders)

	a.write(protocol.NewMessage(protocol.ServerHaveNoParents, true).WriteBool(true))

	status := protocol.NewMessage(protocol.ServerSetStatus, true)
	status.WriteUint32(2)
	a.write(status)
}

func (a *Actor) failLogin(err error) {
	if a.loginReply != nil {
		a.loginReply <- err
	}
	a.loginPending = false
	a.loginReply = nil
}

func (a *Actor) disconnect(err error) {
	a.failLogin(protocol.Wrap(protocol.KindNetwork, "server connection lost", err))
	if a.conn != nil {
		a.conn.Close()
		a.conn = nil
	}
	a.state.Disconnect()
}

func isTimeout(err error) bool {
	type timeouter interface{ Timeout() bool }
	te, ok := err.(timeouter)
	return ok && te.Timeout()
}

// Spawn starts a Server Actor on sys and returns its mailbox handle. Unlike
// the Peer Actor, the Server Actor never needs to address itself, so it
// uses the plain Spawn rather than SpawnWithInit.
func Spawn(sys *actor.System, addr string, emit clientop.Queue) actor.Handle[Msg] {
	a := New(addr, emit)
	return actor.Spawn[Msg](sys, a)
}
