// Package download holds the Download data model: the record the
// Coordinator and Transfer Engine share for a single in-flight or
// completed file transfer.
package download

import (
	"sync"

	"github.com/rcrowley/go-metrics"
)

// StatusKind tags which variant of Status is active.
type StatusKind int

const (
	StatusQueued StatusKind = iota
	StatusInProgress
	StatusCompleted
	StatusFailed
	StatusTimedOut
)

// Status is a tagged union over a download's lifecycle, mirroring the
// spec's Status ∈ {Queued, InProgress{bytes,total,bps}, Completed,
// Failed, TimedOut}.
type Status struct {
	Kind  StatusKind
	Bytes uint64
	Total uint64
	BPS   float64
	Err   error
}

// Update is what a Transfer Engine publishes on a download's status-sink.
type Update struct {
	DownloadToken uint32
	Status        Status
}

// Download is keyed externally by Token (which may be reassigned, see
// token retargeting in the spec's design notes) and internally by
// (Username, Filename) for lookups that must survive a token swap.
type Download struct {
	mu sync.RWMutex

	Username  string
	Filename  string
	Token     uint32
	Size      uint64
	Directory string

	status Status
	sink   chan<- Update

	speed metrics.EWMA
}

// New creates a queued download. sink may be nil if the caller doesn't
// want progress updates pushed anywhere beyond the record itself.
func New(username, filename string, token uint32, size uint64, directory string, sink chan<- Update) *Download {
	d := &Download{
		Username:  username,
		Filename:  filename,
		Token:     token,
		Size:      size,
		Directory: directory,
		status:    Status{Kind: StatusQueued},
		sink:      sink,
		speed:     metrics.NewEWMA1(),
	}
	return d
}

// Status returns a snapshot of the current status under the read lock.
func (d *Download) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.status
}

// SetToken reassigns the external correlation token, used when the
// remote initiates a TransferRequest that doesn't match our locally
// derived token.
func (d *Download) SetToken(token uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Token = token
}

// TokenValue reads the current token under the lock.
func (d *Download) TokenValue() uint32 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.Token
}

// RecordProgress updates bytes transferred, ticks the EWMA speed
// estimator, and publishes an InProgress status both into the record and
// onto the status-sink.
func (d *Download) RecordProgress(bytesRead int) {
	d.mu.Lock()
	d.speed.Update(int64(bytesRead))
	d.speed.Tick()
	status := Status{
		Kind:  StatusInProgress,
		Bytes: d.status.Bytes + uint64(bytesRead),
		Total: d.Size,
		BPS:   d.speed.Rate(),
	}
	d.status = status
	sink := d.sink
	token := d.Token
	d.mu.Unlock()

	if sink != nil {
		sink <- Update{DownloadToken: token, Status: status}
	}
}

// Finish transitions the download to a terminal status.
func (d *Download) Finish(kind StatusKind, err error) {
	d.mu.Lock()
	d.status = Status{Kind: kind, Bytes: d.status.Bytes, Total: d.Size, Err: err}
	status := d.status
	sink := d.sink
	token := d.Token
	d.mu.Unlock()

	if sink != nil {
		sink <- Update{DownloadToken: token, Status: status}
	}
}

// Table is the Coordinator's download table: lookup by token (the
// external correlation key) and by (username, filename) (the stable
// internal key that survives token reassignment).
type Table struct {
	mu       sync.RWMutex
	byToken  map[uint32]*Download
	byUserFn map[string]*Download
}

// NewTable returns an empty download table.
func NewTable() *Table {
	return &Table{
		byToken:  make(map[uint32]*Download),
		byUserFn: make(map[string]*Download),
	}
}

func userFnKey(username, filename string) string {
	return username + "\x00" + filename
}

// Add inserts d, indexed both by its current token and by its stable
// (username, filename) key.
func (t *Table) Add(d *Download) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byToken[d.Token] = d
	t.byUserFn[userFnKey(d.Username, d.Filename)] = d
}

// ByToken looks up a download by its current external token.
func (t *Table) ByToken(token uint32) (*Download, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	d, ok := t.byToken[token]
	return d, ok
}

// ByUserFilename looks up a download by its stable internal key.
func (t *Table) ByUserFilename(username, filename string) (*Download, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	d, ok := t.byUserFn[userFnKey(username, filename)]
	return d, ok
}

// Retarget reassigns d's token in the table: the old token entry is
// removed and a new one installed, preserving the (username, filename)
// entry unchanged. This is the token-retargeting operation the spec
// requires on a remote-initiated TransferRequest.
func (t *Table) Retarget(d *Download, newToken uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.byToken, d.Token)
	d.SetToken(newToken)
	t.byToken[newToken] = d
}

// ByUsername returns every download currently attributed to username,
// used to fail all in-flight downloads from a peer that disconnected.
func (t *Table) ByUsername(username string) []*Download {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []*Download
	for _, d := range t.byUserFn {
		if d.Username == username {
			out = append(out, d)
		}
	}
	return out
}

// All returns a snapshot of every download in the table.
func (t *Table) All() []*Download {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Download, 0, len(t.byToken))
	for _, d := range t.byToken {
		out = append(out, d)
	}
	return out
}
