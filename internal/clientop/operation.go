// Package clientop defines the ClientOperation events every actor emits
// onto the Client Coordinator's single event queue. It exists as its own
// package, independent of the coordinator, so the actors that produce
// these events (Server Actor, Peer Actor, Listener Actor) don't need to
// import the coordinator package, which in turn
// needs to import them to spawn and drive them.
package clientop

import (
	"net"

	"github.com/cenkalti/soulseek/internal/peer"
	"github.com/cenkalti/soulseek/internal/search"
)

// TransferInfo is the transient record parsed from a TransferRequest
// frame.
type TransferInfo struct {
	Direction uint32
	Token     uint32
	Filename  string
	Size      uint64
}

// Operation is the tagged-union event type the Coordinator's queue
// carries. Exactly one of the typed fields is meaningful per Kind.
type Kind int

const (
	KindNewPeer Kind = iota
	KindConnectToPeer
	KindGetPeerAddressResponse
	KindSearchResult
	KindPeerDisconnected
	KindDownloadFromPeer
	KindUpdateDownloadTokens
	KindUploadFailed
	KindPierceFirewall
)

type Operation struct {
	Kind Kind

	// KindNewPeer
	Peer     peer.Peer
	Conn     net.Conn
	Residual []byte

	// KindGetPeerAddressResponse
	Username string
	Host     string
	Port     uint16

	// KindSearchResult
	Result search.SearchResult

	// KindPeerDisconnected / KindUploadFailed
	Err      error
	Filename string

	// KindDownloadFromPeer
	Token   uint32
	Allowed bool

	// KindUpdateDownloadTokens
	Transfer TransferInfo
}

func NewPeer(p peer.Peer, conn net.Conn, residual []byte) Operation {
	return Operation{Kind: KindNewPeer, Peer: p, Conn: conn, Residual: residual}
}

func ConnectToPeer(p peer.Peer) Operation {
	return Operation{Kind: KindConnectToPeer, Peer: p}
}

func GetPeerAddressResponse(username, host string, port uint16) Operation {
	return Operation{Kind: KindGetPeerAddressResponse, Username: username, Host: host, Port: port}
}

func SearchResultOp(r search.SearchResult) Operation {
	return Operation{Kind: KindSearchResult, Result: r}
}

func PeerDisconnected(username string, err error) Operation {
	return Operation{Kind: KindPeerDisconnected, Username: username, Err: err}
}

func DownloadFromPeer(token uint32, p peer.Peer, allowed bool) Operation {
	return Operation{Kind: KindDownloadFromPeer, Token: token, Peer: p, Allowed: allowed}
}

func UpdateDownloadTokens(t TransferInfo, username string) Operation {
	return Operation{Kind: KindUpdateDownloadTokens, Transfer: t, Username: username}
}

func UploadFailed(username, filename string) Operation {
	return Operation{Kind: KindUploadFailed, Username: username, Filename: filename}
}

func PierceFirewall(p peer.Peer) Operation {
	return Operation{Kind: KindPierceFirewall, Peer: p}
}

// Queue is the channel type every actor holds to emit operations onto
// the Coordinator's single event queue.
type Queue chan<- Operation
