package coordinator

import (
	"net"
	"testing"
	"time"

	"github.com/cenkalti/soulseek/internal/actor"
	"github.com/cenkalti/soulseek/internal/clientop"
	"github.com/cenkalti/soulseek/internal/download"
	"github.com/cenkalti/soulseek/internal/peer"
	"github.com/cenkalti/soulseek/internal/protocol"
	"github.com/cenkalti/soulseek/internal/search"
)

func searchResultFor(token uint32, username string) search.SearchResult {
	return search.SearchResult{Token: token, Username: username}
}

// TestTokenRetargeting exercises spec scenario 4 and the "token
// retargeting" testable property: after a remote-initiated
// TransferRequest for (username, filename), the download's token equals
// the new one and the old token is no longer present in the table.
func TestTokenRetargeting(t *testing.T) {
	sys := actor.NewSystem(2)
	c := New(sys, "me", 0, nil)

	d := download.New("M", "f.mp3", 111, 17580946, "/music", nil)
	c.downloads.Add(d)

	c.onUpdateDownloadTokens(clientop.TransferInfo{
		Direction: 1,
		Token:     222,
		Filename:  "f.mp3",
		Size:      17580946,
	}, "M")

	if _, ok := c.downloads.ByToken(111); ok {
		t.Fatal("expected old token 111 to be absent from the table")
	}
	got, ok := c.downloads.ByToken(222)
	if !ok {
		t.Fatal("expected download to be present under the new token 222")
	}
	if got != d {
		t.Fatal("expected the same download record to be returned under the new token")
	}
	if got.TokenValue() != 222 {
		t.Fatalf("expected download.Token == 222, got %d", got.TokenValue())
	}

	byUF, ok := c.downloads.ByUserFilename("M", "f.mp3")
	if !ok || byUF != d {
		t.Fatal("expected (username, filename) lookup to still resolve to the same download")
	}
}

// TestPendingDownloadFlushesOnNewPeer covers the Coordinator's queueing
// discipline for downloads requested before a Peer Actor exists for that
// username: an inbound PeerInit classified as control ("P") should both
// register the peer and flush any pending transfer requests for it.
func TestPendingDownloadFlushesOnNewPeer(t *testing.T) {
	sys := actor.NewSystem(2)
	c := New(sys, "me", 0, nil)

	d := c.Download("dodigan", "song.flac", 47184516, "/music")
	if d == nil {
		t.Fatal("expected a Download record")
	}
	if c.peers.Contains("dodigan") {
		t.Fatal("expected no Peer Actor yet")
	}

	clientConn, peerConn := net.Pipe()
	defer clientConn.Close()
	defer peerConn.Close()

	c.onNewPeer(clientop.NewPeer(peer.Peer{
		Username:       "dodigan",
		ConnectionType: peer.TypeControl,
	}, clientConn, nil))

	if !c.peers.Contains("dodigan") {
		t.Fatal("expected Peer Actor to be registered")
	}

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
	if m.MessageCode(true) != protocol.PeerTransferRequest {
		t.Fatalf("expected TransferRequest, got opcode %d", m.MessageCode(true))
	}
	m.SetPointer(4)
	m.ReadUint32() // direction
	token := m.ReadUint32()
	if token != d.TokenValue() {
		t.Fatalf("expected flushed TransferRequest for token %d, got %d", d.TokenValue(), token)
	}

	if h, ok := c.peers.Get("dodigan"); ok {
		h.Stop()
	}
	sys.Wait()
}

// TestSearchResultCorrelation covers the Coordinator's token-keyed
// routing of inbound FileSearchResponse results back to the Search that
// originated the query.
func TestSearchResultCorrelation(t *testing.T) {
	sys := actor.NewSystem(1)
	c := New(sys, "me", 0, nil)

	s := c.Search("flac albums")

	c.onSearchResult(searchResultFor(s.Token, "alice"))
	c.onSearchResult(searchResultFor(s.Token+1, "bob")) // unrelated token, ignored

	got, ok := c.LookupSearch("flac albums")
	if !ok {
		t.Fatal("expected to find the search by query")
	}
	results := got.Results()
	if len(results) != 1 || results[0].Username != "alice" {
		t.Fatalf("expected exactly one correlated result from alice, got %+v", results)
	}
}
