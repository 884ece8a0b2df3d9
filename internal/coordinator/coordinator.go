// Package coordinator implements the Client Coordinator (C10): the
// routing loop that consumes the single ClientOperation queue every
// actor emits onto, owns the peer registry, search table and download
// table, and spawns Peer Actors and Transfer Engine sessions in response.
// It is deliberately not itself an actor — it runs a dedicated goroutine
// reading off a plain channel, the same way rain's session.Session runs
// its own routing loop (run.go's sessionHandler) alongside, rather than
// inside, the actor/goroutine pool it drives.
package coordinator

import (
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/soulseek/internal/actor"
	"github.com/cenkalti/soulseek/internal/clientop"
	"github.com/cenkalti/soulseek/internal/download"
	"github.com/cenkalti/soulseek/internal/logger"
	"github.com/cenkalti/soulseek/internal/peer"
	"github.com/cenkalti/soulseek/internal/peeractor"
	"github.com/cenkalti/soulseek/internal/protocol"
	"github.com/cenkalti/soulseek/internal/resumer"
	"github.com/cenkalti/soulseek/internal/search"
	"github.com/cenkalti/soulseek/internal/serveractor"
	"github.com/cenkalti/soulseek/internal/transfer"
)

// checkpointInterval is how often the download table is swept and
// checkpointed to the resume database beyond the per-transition writes
// already triggered from the status-update channel, mirroring rain's
// periodic resume-file flush in addition to its end-of-piece writes.
const checkpointInterval = 30 * time.Second

// PeerHandle is the mailbox handle type the registry holds, an alias for
// readability at coordinator call sites.
type PeerHandle = actor.Handle[peeractor.Msg]

// ServerHandle is the Server Actor's mailbox handle type.
type ServerHandle = actor.Handle[serveractor.Msg]

// Coordinator owns the cross-actor shared state (§5): the peer registry,
// the search table and the download table, each guarded the way rain
// guards session.Session's own maps (a mutex for the registry, since
// operations are lookup/insert/remove; an RWMutex for the rest, since
// reads dominate).
type Coordinator struct {
	sys         *actor.System
	ops         chan clientop.Operation
	log         logger.Logger
	ownUsername string
	listenPort  uint16

	server   ServerHandle
	serverMu sync.RWMutex

	peers *peer.Registry[PeerHandle]

	mu            sync.RWMutex
	searchByQuery map[string]*search.Search
	searchByToken map[uint32]*search.Search
	addrCache     map[string]peer.Peer
	pending       map[string][]*download.Download

	downloads *download.Table
	updates   chan download.Update
	resume    *resumer.Resumer
	keys      map[uint32]string // download token -> resume key

	stopC chan struct{}
	wg    sync.WaitGroup
}

// New builds a Coordinator. resume may be nil, in which case downloads
// are not checkpointed to disk (useful for tests).
func New(sys *actor.System, ownUsername string, listenPort uint16, resume *resumer.Resumer) *Coordinator {
	return &Coordinator{
		sys:           sys,
		ops:           make(chan clientop.Operation, 256),
		log:           logger.New("coordinator"),
		ownUsername:   ownUsername,
		listenPort:    listenPort,
		peers:         peer.NewRegistry[PeerHandle](),
		searchByQuery: make(map[string]*search.Search),
		searchByToken: make(map[uint32]*search.Search),
		addrCache:     make(map[string]peer.Peer),
		pending:       make(map[string][]*download.Download),
		downloads:     download.NewTable(),
		updates:       make(chan download.Update, 64),
		resume:        resume,
		keys:          make(map[uint32]string),
		stopC:         make(chan struct{}),
	}
}

// Queue returns the channel every actor sends ClientOperation events on.
func (c *Coordinator) Queue() clientop.Queue { return c.ops }

// SetServerHandle installs the Server Actor's mailbox handle. Spec §4.9
// models this as a SetServerSender(sink) operation flowing through the
// same queue as every other event; here it is wired directly at
// construction instead, because an Operation payload cannot carry a
// *serveractor.Msg without clientop importing serveractor, which already
// imports clientop for the events it emits. The effect is identical: the
// Coordinator has the server's mailbox handle before it needs it.
func (c *Coordinator) SetServerHandle(h ServerHandle) {
	c.serverMu.Lock()
	c.server = h
	c.serverMu.Unlock()
}

func (c *Coordinator) serverHandle() (ServerHandle, bool) {
	c.serverMu.RLock()
	defer c.serverMu.RUnlock()
	var zero ServerHandle
	return c.server, c.server != zero
}

// Run drains the operation queue and the download status-update channel
// until Stop is called. It is meant to run on its own goroutine for the
// lifetime of the client.
func (c *Coordinator) Run() {
	ticker := time.NewTicker(checkpointInterval)
	defer ticker.Stop()
	for {
		select {
		case op := <-c.ops:
			c.handle(op)
		case u := <-c.updates:
			c.onDownloadUpdate(u)
		case <-ticker.C:
			c.checkpointAll()
		case <-c.stopC:
			return
		}
	}
}

// Stop ends Run's loop. It does not stop spawned actors; each of them is
// stopped through its own handle.
func (c *Coordinator) Stop() {
	select {
	case <-c.stopC:
	default:
		close(c.stopC)
	}
}

func (c *Coordinator) handle(op clientop.Operation) {
	switch op.Kind {
	case clientop.KindNewPeer:
		c.onNewPeer(op)
	case clientop.KindConnectToPeer:
		c.onConnectToPeer(op.Peer)
	case clientop.KindGetPeerAddressResponse:
		c.onGetPeerAddressResponse(op.Username, op.Host, op.Port)
	case clientop.KindSearchResult:
		c.onSearchResult(op.Result)
	case clientop.KindPeerDisconnected:
		c.onPeerDisconnected(op.Username, op.Err)
	case clientop.KindDownloadFromPeer:
		c.onDownloadFromPeer(op.Token, op.Peer, op.Allowed)
	case clientop.KindUpdateDownloadTokens:
		c.onUpdateDownloadTokens(op.Transfer, op.Username)
	case clientop.KindUploadFailed:
		c.onUploadFailed(op.Username, op.Filename)
	case clientop.KindPierceFirewall:
		c.onPierceFirewall(op.Peer)
	}
}

// onNewPeer handles an inbound connection the Listener Actor has already
// classified as peer control ("P") or file transfer ("F") and handed off
// with its residual frame-reader buffer.
func (c *Coordinator) onNewPeer(op clientop.Operation) {
	switch op.Peer.ConnectionType {
	case peer.TypeControl:
		known := c.peers.Contains(op.Peer.Username)
		h := peeractor.SpawnAttached(c.sys, op.Peer.Username, op.Conn, op.Residual, c.ops)
		c.peers.Register(op.Peer.Username, h)
		c.flushPending(op.Peer.Username, h)
		if !known {
			c.requestPeerAddress(op.Peer.Username)
		}
	case peer.TypeFileTransfer:
		var initial []byte
		if len(op.Residual) > 4 {
			initial = op.Residual[4:]
		}
		d, _ := c.downloads.ByToken(op.Peer.Token)
		c.runTransfer(transfer.Params{
			Username: op.Peer.Username,
			Conn:     op.Conn,
			NoPierce: true,
			Download: d,
			Tokens:   c.downloads,
			Initial:  initial,
		})
	}
}

func (c *Coordinator) onConnectToPeer(p peer.Peer) {
	addr := netAddr(p.Host, p.Port)
	switch p.ConnectionType {
	case peer.TypeControl:
		h := peeractor.Spawn(c.sys, p.Username, c.ownUsername, addr, p.Token, p.HasToken, c.ops)
		c.peers.Register(p.Username, h)
		c.flushPending(p.Username, h)
	case peer.TypeFileTransfer:
		d, ok := c.downloads.ByToken(p.Token)
		params := transfer.Params{Username: p.Username, Host: p.Host, Port: p.Port, Token: p.Token, Download: d}
		if !ok {
			params.Tokens = c.downloads
		}
		c.runTransfer(params)
	}
}

func (c *Coordinator) onGetPeerAddressResponse(username, host string, port uint16) {
	c.mu.Lock()
	c.addrCache[username] = peer.Peer{Username: username, Host: host, Port: port}
	c.mu.Unlock()

	if c.peers.Contains(username) {
		return
	}
	addr := netAddr(host, port)
	h := peeractor.Spawn(c.sys, username, c.ownUsername, addr, 0, false, c.ops)
	c.peers.Register(username, h)
	c.flushPending(username, h)
}

func (c *Coordinator) onSearchResult(r search.SearchResult) {
	c.mu.RLock()
	s, ok := c.searchByToken[r.Token]
	c.mu.RUnlock()
	if !ok {
		return
	}
	s.AddResult(r)
}

func (c *Coordinator) onPeerDisconnected(username string, err error) {
	c.peers.Remove(username)
	if err == nil {
		return
	}
	for _, d := range c.downloads.ByUsername(username) {
		switch d.Status().Kind {
		case download.StatusCompleted, download.StatusFailed, download.StatusTimedOut:
			continue
		}
		d.Finish(download.StatusFailed, err)
	}
}

func (c *Coordinator) onDownloadFromPeer(token uint32, p peer.Peer, allowed bool) {
	if !allowed {
		return
	}
	d, ok := c.downloads.ByToken(token)
	if !ok {
		c.log.Warningln("DownloadFromPeer for unknown token", token)
		return
	}
	c.runTransfer(transfer.Params{Username: p.Username, Host: p.Host, Port: p.Port, Token: token, Download: d})
}

func (c *Coordinator) onUpdateDownloadTokens(t clientop.TransferInfo, username string) {
	d, ok := c.downloads.ByUserFilename(username, t.Filename)
	if !ok {
		c.log.Warningln("TransferRequest token update for unknown download", username, t.Filename)
		return
	}
	oldToken := d.TokenValue()
	c.downloads.Retarget(d, t.Token)
	c.mu.Lock()
	if key, ok := c.keys[oldToken]; ok {
		delete(c.keys, oldToken)
		c.keys[t.Token] = key
	}
	c.mu.Unlock()
}

func (c *Coordinator) onUploadFailed(username, filename string) {
	d, ok := c.downloads.ByUserFilename(username, filename)
	if !ok {
		return
	}
	d.Finish(download.StatusFailed, protocol.New(protocol.KindConnectionClosed, "remote reported upload failed"))
}

// onPierceFirewall asks the Server Actor to relay a PierceFirewall frame
// carrying the peer's token, then dials the peer directly: the server
// hop lets a peer behind a NAT learn to expect our inbound-looking dial.
func (c *Coordinator) onPierceFirewall(p peer.Peer) {
	if h, ok := c.serverHandle(); ok {
		h.Send(serveractor.Msg{Kind: serveractor.MsgPierceFirewall, Token: p.Token})
	}
	c.onConnectToPeer(p)
}

// requestPeerAddress asks the server for username's address so future
// outbound messages (e.g. a subsequent download request) can reach it
// even though this peer reached us first.
func (c *Coordinator) requestPeerAddress(username string) {
	h, ok := c.serverHandle()
	if !ok {
		return
	}
	h.Send(serveractor.Msg{Kind: serveractor.MsgGetPeerAddress, Username: username})
}

func (c *Coordinator) flushPending(username string, h PeerHandle) {
	c.mu.Lock()
	ds := c.pending[username]
	delete(c.pending, username)
	c.mu.Unlock()
	for _, d := range ds {
		h.Send(peeractor.Msg{Kind: peeractor.MsgRequestTransfer, Download: d})
	}
}

func (c *Coordinator) runTransfer(p transfer.Params) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		transfer.Run(p)
	}()
}

// Login sends a Login request to the Server Actor and blocks for the
// result (success, authentication failure, a lost server connection, or
// a 5s timeout surfaced by the actor itself).
func (c *Coordinator) Login(username, password string) error {
	h, ok := c.serverHandle()
	if !ok {
		return protocol.New(protocol.KindNetwork, "server actor not attached")
	}
	reply := make(chan error, 1)
	h.Send(serveractor.Msg{Kind: serveractor.MsgLogin, Username: username, Password: password, Reply: reply})
	return <-reply
}

// Search starts a new distributed search for query and returns the
// Search record the Coordinator will append results to as they arrive.
func (c *Coordinator) Search(query string) *search.Search {
	s := search.New(query)
	c.mu.Lock()
	c.searchByQuery[query] = s
	c.searchByToken[s.Token] = s
	c.mu.Unlock()

	if h, ok := c.serverHandle(); ok {
		h.Send(serveractor.Msg{Kind: serveractor.MsgFileSearch, Token: s.Token, Query: query})
	}
	return s
}

// LookupSearch returns a previously started search by its query string.
func (c *Coordinator) LookupSearch(query string) (*search.Search, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.searchByQuery[query]
	return s, ok
}

// Download enqueues a new download for (username, filename). If a Peer
// Actor for username is already running the request is sent immediately;
// otherwise it is parked until one is spawned, either from an address
// the server already supplied or from a fresh GetPeerAddress round trip.
func (c *Coordinator) Download(username, filename string, size uint64, directory string) *download.Download {
	token := search.Token(filename)
	d := download.New(username, filename, token, size, directory, c.updates)
	c.downloads.Add(d)

	if c.resume != nil {
		key := resumer.NewKey()
		c.mu.Lock()
		c.keys[token] = key
		c.mu.Unlock()
		_ = c.resume.Checkpoint(key, d)
	}

	if h, ok := c.peers.Get(username); ok {
		h.Send(peeractor.Msg{Kind: peeractor.MsgRequestTransfer, Download: d})
		return d
	}

	c.mu.Lock()
	if addr, ok := c.addrCache[username]; ok {
		c.mu.Unlock()
		h := peeractor.Spawn(c.sys, username, c.ownUsername, netAddr(addr.Host, addr.Port), 0, false, c.ops)
		c.peers.Register(username, h)
		h.Send(peeractor.Msg{Kind: peeractor.MsgRequestTransfer, Download: d})
		return d
	}
	c.pending[username] = append(c.pending[username], d)
	c.mu.Unlock()
	c.requestPeerAddress(username)
	return d
}

func (c *Coordinator) onDownloadUpdate(u download.Update) {
	if c.resume == nil {
		return
	}
	c.mu.RLock()
	key, ok := c.keys[u.DownloadToken]
	c.mu.RUnlock()
	if !ok {
		return
	}
	d, ok := c.downloads.ByToken(u.DownloadToken)
	if !ok {
		return
	}
	switch u.Status.Kind {
	case download.StatusCompleted, download.StatusFailed, download.StatusTimedOut:
		_ = c.resume.Remove(key)
		c.mu.Lock()
		delete(c.keys, u.DownloadToken)
		c.mu.Unlock()
	default:
		_ = c.resume.Checkpoint(key, d)
	}
}

func (c *Coordinator) checkpointAll() {
	if c.resume == nil {
		return
	}
	c.mu.RLock()
	keys := make(map[uint32]string, len(c.keys))
	for k, v := range c.keys {
		keys[k] = v
	}
	c.mu.RUnlock()
	for token, key := range keys {
		if d, ok := c.downloads.ByToken(token); ok {
			_ = c.resume.Checkpoint(key, d)
		}
	}
}

func netAddr(host string, port uint16) string {
	return host + ":" + strconv.Itoa(int(port))
}
