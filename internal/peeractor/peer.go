// Package peeractor owns the TCP control connection to a single remote
// peer: search-result delivery and the transfer-request/transfer-response
// handshake that precedes every file transfer.
package peeractor

import (
	"net"
	"time"

	"github.com/cenkalti/soulseek/internal/actor"
	"github.com/cenkalti/soulseek/internal/clientop"
	"github.com/cenkalti/soulseek/internal/connstate"
	"github.com/cenkalti/soulseek/internal/dispatch"
	"github.com/cenkalti/soulseek/internal/download"
	"github.com/cenkalti/soulseek/internal/logger"
	"github.com/cenkalti/soulseek/internal/peer"
	"github.com/cenkalti/soulseek/internal/protocol"
	"github.com/cenkalti/soulseek/internal/search"
)

type MsgKind int

const (
	MsgSendRaw MsgKind = iota
	MsgFileSearchResult
	MsgTransferRequestInbound
	MsgTransferResponse
	MsgPlaceInQueueResponse
	MsgSetUsername
	MsgQueueUpload
	MsgRequestTransfer
	MsgProcessRead
	MsgUploadFailedInbound
)

type Msg struct {
	Kind MsgKind

	Raw *protocol.Message

	Result search.SearchResult

	Transfer clientop.TransferInfo

	// MsgTransferResponse
	Token   uint32
	Allowed bool
	Reason  string

	// MsgPlaceInQueueResponse / MsgQueueUpload
	Filename string
	Place    uint32

	Username string

	// MsgRequestTransfer
	Download *download.Download
}

// Actor owns one peer's control socket, grounded on the original
// PeerActor's process_read/handle_message pair and rain's
// torrent/internal/peerconn.Peer reader/writer-goroutine shape (adapted
// here into a single non-blocking tick loop, since this connection is
// driven by the shared actor runtime rather than its own goroutines).
type Actor struct {
	username    string
	ownUsername string
	addr        string
	token       uint32
	hasToken    bool

	log  logger.Logger
	emit clientop.Queue

	conn    net.Conn
	dialRes chan dialResult
	frames  *protocol.FrameReader
	state   *connstate.Machine[Msg]

	registry   *dispatch.Registry[Msg]
	dispatcher *dispatch.Dispatcher[Msg]

	self actor.Handle[Msg]
}

type dialResult struct {
	conn net.Conn
	err  error
}

// New builds a Peer Actor for an outbound dial. ownUsername is announced
// in the PeerInit preamble we send once connected, so the remote knows
// who dialed them. When the connection is instead handed off from the
// Listener Actor (inbound), use Attach — the remote already knows who we
// are, since it sent us its own PeerInit.
func New(username, ownUsername, addr string, token uint32, hasToken bool, emit clientop.Queue) *Actor {
	a := &Actor{
		username:    username,
		ownUsername: ownUsername,
		addr:        addr,
		token:       token,
		hasToken:    hasToken,
		log:         logger.New("peer " + username),
		emit:        emit,
		frames:      protocol.NewFrameReader(),
		state:       connstate.New[Msg](),
	}
	a.registry = buildRegistry()
	return a
}

// Attach wires an already-connected socket (handed off by the Listener
// Actor after PeerInit classification), along with any residual buffered
// bytes, so no wire bytes are lost across ownership transfer.
func (a *Actor) Attach(conn net.Conn, residual []byte) {
	a.conn = conn
	a.frames.Feed(residual)
}

func buildRegistry() *dispatch.Registry[Msg] {
	r := dispatch.NewRegistry[Msg]()
	r.Register(dispatch.HandlerFunc[Msg]{
		Code: protocol.PeerFileSearchResponse,
		HandleFn: func(m *protocol.Message, emit dispatch.Emitter[Msg]) {
			result, err := search.ParseFileSearchResponse(m.ReadRaw(m.Remaining()))
			if err != nil {
				return
			}
			emit.Emit(Msg{Kind: MsgFileSearchResult, Result: *result})
		},
	})
	r.Register(dispatch.HandlerFunc[Msg]{
		Code: protocol.PeerTransferRequest,
		HandleFn: func(m *protocol.Message, emit dispatch.Emitter[Msg]) {
			direction := m.ReadUint32()
			token := m.ReadUint32()
			filename, _ := m.ReadString()
			size := m.ReadUint64()
			emit.Emit(Msg{Kind: MsgTransferRequestInbound, Transfer: clientop.TransferInfo{
				Direction: direction,
				Token:     token,
				Filename:  filename,
				Size:      size,
			}})
		},
	})
	r.Register(dispatch.HandlerFunc[Msg]{
		Code: protocol.PeerTransferResponse,
		HandleFn: func(m *protocol.Message, emit dispatch.Emitter[Msg]) {
			token := m.ReadUint32()
			allowed := m.ReadBool()
			reason := ""
			if !allowed {
				reason, _ = m.ReadString()
			}
			emit.Emit(Msg{Kind: MsgTransferResponse, Token: token, Allowed: allowed, Reason: reason})
		},
	})
	r.Register(dispatch.HandlerFunc[Msg]{
		Code: protocol.PeerPlaceInQueueResponse,
		HandleFn: func(m *protocol.Message, emit dispatch.Emitter[Msg]) {
			filename, _ := m.ReadString()
			place := m.ReadUint32()
			emit.Emit(Msg{Kind: MsgPlaceInQueueResponse, Filename: filename, Place: place})
		},
	})
	r.Register(dispatch.HandlerFunc[Msg]{
		Code: protocol.PeerUploadFailed,
		HandleFn: func(m *protocol.Message, emit dispatch.Emitter[Msg]) {
			filename, _ := m.ReadString()
			emit.Emit(Msg{Kind: MsgUploadFailedInbound, Filename: filename})
		},
	})
	return r
}

func (a *Actor) OnStart() {
	if a.conn != nil {
		// Already attached by the Listener Actor; run the same
		// post-connect sequence an outbound dial would trigger once it
		// succeeds (WatchUser handshake, queue flush, initial read).
		a.onConnected()
		return
	}
	a.state.BeginConnecting(time.Now())
	a.dialRes = make(chan dialResult, 1)
	addr := a.addr
	go func() {
		conn, err := net.DialTimeout("tcp", addr, connstate.ConnectingTimeout)
		a.dialRes <- dialResult{conn: conn, err: err}
	}()
}

func (a *Actor) OnStop() {
	if a.conn != nil {
		a.conn.Close()
	}
}

func (a *Actor) SetSelf(h actor.Handle[Msg]) {
	a.self = h
	a.dispatcher = dispatch.NewDispatcher[Msg](protocol.ChannelPeer, a.registry, dispatch.EmitterFunc[Msg](func(msg Msg) {
		a.self.Send(msg)
	}), a.log)
}

// Handle processes one mailbox message. While Connecting, only
// SetUsername and ProcessRead are exempt from queueing.
func (a *Actor) Handle(msg Msg) {
	if !a.state.IsConnected() && msg.Kind != MsgSetUsername && msg.Kind != MsgProcessRead {
		a.state.Enqueue(msg)
		return
	}
	a.process(msg)
}

func (a *Actor) process(msg Msg) {
	switch msg.Kind {
	case MsgSendRaw:
		a.write(msg.Raw)
	case MsgSetUsername:
		a.username = msg.Username
	case MsgProcessRead:
		a.processRead()
	case MsgFileSearchResult:
		a.emit <- clientop.SearchResultOp(msg.Result)
	case MsgTransferRequestInbound:
		a.handleRemoteTransferRequest(msg.Transfer)
	case MsgTransferResponse:
		a.handleTransferResponse(msg)
	case MsgPlaceInQueueResponse:
		a.log.Debugf("place in queue for %s: %d", msg.Filename, msg.Place)
	case MsgQueueUpload:
		m := protocol.NewMessage(protocol.PeerQueueUpload, true)
		m.WriteString(msg.Filename)
		a.write(m)
	case MsgRequestTransfer:
		a.requestTransfer(msg.Download)
	case MsgUploadFailedInbound:
		a.emit <- clientop.UploadFailed(a.username, msg.Filename)
	}
}

func (a *Actor) handleRemoteTransferRequest(t clientop.TransferInfo) {
	resp := protocol.NewMessage(protocol.PeerTransferResponse, true)
	resp.WriteUint32(t.Token)
	resp.WriteBool(true)
	a.write(resp)
	a.emit <- clientop.UpdateDownloadTokens(t, a.username)
}

func (a *Actor) handleTransferResponse(msg Msg) {
	if !msg.Allowed {
		a.log.Debugln("transfer not yet allowed, awaiting remote-initiated request:", msg.Reason)
		return
	}
	p := a.peerRecord()
	a.emit <- clientop.DownloadFromPeer(msg.Token, p, true)
}

func (a *Actor) peerRecord() peer.Peer {
	return peer.Peer{
		Username:       a.username,
		ConnectionType: peer.TypeControl,
		Host:           a.addr,
		Token:          a.token,
		HasToken:       a.hasToken,
	}
}

func (a *Actor) requestTransfer(d *download.Download) {
	m := protocol.NewMessage(protocol.PeerTransferRequest, true)
	m.WriteUint32(0) // direction 0: we are requesting to download
	m.WriteUint32(d.TokenValue())
	m.WriteString(d.Filename)
	a.write(m)
}

func (a *Actor) write(m *protocol.Message) {
	if a.conn == nil {
		return
	}
	_, err := a.conn.Write(m.Buffer())
	if err != nil {
		a.disconnect(err)
	}
}

func (a *Actor) processRead() {
	if a.conn == nil {
		return
	}
	_ = a.conn.SetReadDeadline(time.Now().Add(10 * time.Millisecond))
	for {
		n, err := a.frames.ReadFromSocket(a.conn)
		if n == 0 {
			if err != nil && !isTimeout(err) {
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

func (a *Actor) Tick() {
	switch {
	case a.state.IsConnecting():
		a.tickConnecting()
	case a.state.IsConnected():
		a.processRead()
	}
}

func (a *Actor) tickConnecting() {
	select {
	case res := <-a.dialRes:
		if res.err != nil {
			a.disconnect(res.err)
			return
		}
		a.conn = res.conn
		a.sendPeerInit()
		a.onConnected()
	default:
	}
	if a.state.TimedOut(time.Now()) {
		a.disconnect(protocol.ErrTimeout)
	}
}

// sendPeerInit announces who we are to a peer we dialed ourselves,
// mirroring the PeerInit preamble every inbound connection sends us
// (see listener.ConnectionHandler). Connections handed off by the
// Listener Actor skip this: the remote already knows who we are.
func (a *Actor) sendPeerInit() {
	m := protocol.NewMessage(protocol.PeerInitPeerInit, false)
	m.WriteString(a.ownUsername)
	m.WriteString(string(peer.TypeControl))
	m.WriteUint32(a.token)
	a.write(m)
}

func (a *Actor) onConnected() {
	queued := a.state.Connect()
	if a.hasToken {
		watch := protocol.NewMessage(protocol.PeerWatchUser, true)
		watch.WriteUint32(a.token)
		a.write(watch)
	}
	for _, m := range queued {
		a.process(m)
	}
	a.self.Send(Msg{Kind: MsgProcessRead})
}

func (a *Actor) disconnect(err error) {
	if a.conn != nil {
		a.conn.Close()
		a.conn = nil
	}
	a.state.Disconnect()
	a.emit <- clientop.PeerDisconnected(a.username, err)
}

func isTimeout(err error) bool {
	type timeouter interface{ Timeout() bool }
	te, ok := err.(timeouter)
	return ok && te.Timeout()
}

// Spawn starts a Peer Actor for an outbound dial.
func Spawn(sys *actor.System, username, ownUsername, addr string, token uint32, hasToken bool, emit clientop.Queue) actor.Handle[Msg] {
	a := New(username, ownUsername, addr, token, hasToken, emit)
	return actor.SpawnWithInit[Msg](sys, a, a.SetSelf)
}

// SpawnAttached starts a Peer Actor around an already-connected socket
// handed off by the Listener Actor, carrying over any residual buffered
// bytes.
func SpawnAttached(sys *actor.System, username string, conn net.Conn, residual []byte, emit clientop.Queue) actor.Handle[Msg] {
	a := New(username, "", conn.RemoteAddr().String(), 0, false, emit)
	a.Attach(conn, residual)
	return actor.SpawnWithInit[Msg](sys, a, a.SetSelf)
}
