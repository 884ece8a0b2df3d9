// Package transfer drives one file-transfer socket end to end: the
// PierceFirewall handshake and the remote's leading token echo (when we
// dialed out; for an inbound connection the Listener Actor has already
// parsed the token), and the chunked read loop that streams
// the file to disk. Unlike the control actors, a transfer runs on its
// own goroutine rather than the shared tick loop: 8 KiB reads against a
// 30s deadline are already non-blocking in the aggregate sense that
// matters here, and a dedicated goroutine per transfer keeps one slow
// peer from stalling the actor system's tick budget.
package transfer

import (
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	homedir "github.com/mitchellh/go-homedir"

	"github.com/cenkalti/soulseek/internal/download"
	"github.com/cenkalti/soulseek/internal/logger"
	"github.com/cenkalti/soulseek/internal/protocol"
)

const (
	dialTimeout  = 20 * time.Second
	readTimeout  = 30 * time.Second
	writeTimeout = 5 * time.Second
	chunkSize    = 8 * 1024

	// progressEvery controls how often RecordProgress publishes to the
	// download's status sink and the on-disk resumer checkpoint, matching
	// spec.md's "every 15 chunks (~120 KiB)" cadence.
	progressEvery = 15
)

var startDownloadSentinel = []byte{0, 0, 0, 0, 0, 0, 0, 0}

// Params describes one transfer request, grounded on DownloadPeer::new.
type Params struct {
	Username string
	Host     string
	Port     uint16
	Token    uint32

	// NoPierce is true when the Listener Actor already accepted this
	// socket (the remote dialed us for an "F" connection): no
	// PierceFirewall handshake is sent, and the first bytes read are
	// already file data rather than a token echo.
	NoPierce bool

	// Conn is set when the Listener Actor already owns the socket
	// (NoPierce case). When nil, Run dials Host:Port itself.
	Conn net.Conn

	// Download is the record to stream into, when already known up
	// front (the NoPierce case: the Listener Actor parsed the download
	// token out of the residual buffer before handing the connection
	// off). When nil, Run discovers it from the token echoed by the
	// remote in the first data chunk; that lookup happens only when
	// NoPierce is false.
	Download *download.Download

	// Tokens resolves a just-echoed token to its Download record, used
	// only when Download is nil.
	Tokens *download.Table

	// Initial holds file bytes the caller already read off Conn before
	// handing it to Run (the Listener Actor's PeerInit read can coalesce
	// the first file-data bytes onto the same socket read as the
	// preamble). Only meaningful together with NoPierce and a non-nil
	// Conn; Run treats it as the first chunk of the stream so no wire
	// bytes are dropped across the ownership transfer.
	Initial []byte
}

// Run performs the handshake and streams the transfer to completion,
// reporting progress and the terminal state on the resolved Download
// record. It blocks until the transfer finishes, fails, or times out.
func Run(p Params) {
	log := logger.New("transfer " + p.Username)

	conn := p.Conn
	var err error
	if conn == nil {
		conn, err = net.DialTimeout("tcp", netJoin(p.Host, p.Port), dialTimeout)
		if err != nil {
			log.Error(protocol.Wrap(protocol.KindNetwork, "dial transfer peer", err))
			if p.Download != nil {
				p.Download.Finish(download.StatusFailed, err)
			}
			return
		}
		defer conn.Close()
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}

	if !p.NoPierce {
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		m := protocol.NewMessage(protocol.PeerInitPierceFirewall, false)
		m.WriteUint32(p.Token)
		if _, werr := conn.Write(m.Buffer()); werr != nil {
			log.Error(protocol.Wrap(protocol.KindNetwork, "pierce firewall handshake", werr))
			if p.Download != nil {
				p.Download.Finish(download.StatusFailed, werr)
			}
			return
		}
	}

	d := p.Download
	receivedToken := p.NoPierce

	if d != nil && receivedToken {
		if err := writeSentinel(conn); err != nil {
			log.Error(protocol.Wrap(protocol.KindNetwork, "start download sentinel", err))
			d.Finish(download.StatusFailed, err)
			return
		}
	}

	dest, err := resolveDestination(d)
	if err != nil && d != nil {
		log.Error(protocol.Wrap(protocol.KindPathResolution, "resolve download destination", err))
		d.Finish(download.StatusFailed, err)
		return
	}

	var out *os.File
	var incompletePath string
	if d != nil {
		incompletePath = dest + ".incomplete"
		out, err = createTempFile(incompletePath)
		if err != nil {
			log.Error(protocol.Wrap(protocol.KindPathResolution, "create temp file", err))
			d.Finish(download.StatusFailed, err)
			return
		}
		defer out.Close()
	}

	buf := make([]byte, chunkSize)
	chunks := 0
	var total uint64
	var pending int

	// flushProgress publishes any bytes accumulated since the last
	// progressEvery-chunk sink emission. Called before every terminal
	// status so d's Bytes counter never lags what was actually written.
	flushProgress := func() {
		if d != nil && pending > 0 {
			d.RecordProgress(pending)
			pending = 0
		}
	}

	if d != nil && receivedToken && len(p.Initial) > 0 {
		if _, werr := out.Write(p.Initial); werr != nil {
			log.Error(protocol.Wrap(protocol.KindNetwork, "write transfer data", werr))
			d.Finish(download.StatusFailed, werr)
			return
		}
		total += uint64(len(p.Initial))
		d.RecordProgress(len(p.Initial))
		if total >= d.Size {
			if cerr := out.Close(); cerr != nil {
				d.Finish(download.StatusFailed, cerr)
				return
			}
			if rerr := os.Rename(incompletePath, dest); rerr != nil {
				d.Finish(download.StatusFailed, rerr)
				return
			}
			d.Finish(download.StatusCompleted, nil)
			log.Infoln("download completed:", dest)
			return
		}
	}

	for {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		n, rerr := conn.Read(buf)
		if n == 0 {
			if rerr == io.EOF || rerr == nil {
				break
			}
			log.Error(protocol.Wrap(protocol.KindNetwork, "transfer read", rerr))
			if d != nil {
				flushProgress()
				d.Finish(download.StatusFailed, rerr)
				os.Remove(incompletePath)
			}
			return
		}
		data := buf[:n]

		if !receivedToken {
			if len(data) < 4 {
				log.Warningln("short first chunk, cannot read echoed token")
				if d != nil {
					d.Finish(download.StatusFailed, protocol.New(protocol.KindInvalidMessage, "short token echo"))
				}
				return
			}
			token := uint32(data[0]) | uint32(data[1])<<8 | uint32(data[2])<<16 | uint32(data[3])<<24
			receivedToken = true
			if err := writeSentinel(conn); err != nil {
				log.Error(protocol.Wrap(protocol.KindNetwork, "start download sentinel", err))
				return
			}
			if d == nil && p.Tokens != nil {
				found, ok := p.Tokens.ByToken(token)
				if !ok {
					log.Warningln("no download registered for echoed token", token)
					return
				}
				d = found
				dest, err = resolveDestination(d)
				if err != nil {
					log.Error(protocol.Wrap(protocol.KindPathResolution, "resolve download destination", err))
					d.Finish(download.StatusFailed, err)
					return
				}
				incompletePath = dest + ".incomplete"
				out, err = createTempFile(incompletePath)
				if err != nil {
					log.Error(protocol.Wrap(protocol.KindPathResolution, "create temp file", err))
					d.Finish(download.StatusFailed, err)
					return
				}
				defer out.Close()
			}
			continue
		}

		if out != nil {
			if _, werr := out.Write(data); werr != nil {
				log.Error(protocol.Wrap(protocol.KindNetwork, "write transfer data", werr))
				if d != nil {
					flushProgress()
					d.Finish(download.StatusFailed, werr)
				}
				return
			}
		}
		total += uint64(n)
		chunks++
		pending += n
		if d != nil && chunks%progressEvery == 0 {
			d.RecordProgress(pending)
			pending = 0
			log.Debugf("%s: %d/%d bytes", d.Filename, total, d.Size)
		}
		if d != nil && total >= d.Size {
			break
		}
	}

	if d == nil {
		return
	}
	flushProgress()
	if err := out.Close(); err != nil {
		d.Finish(download.StatusFailed, err)
		return
	}
	if err := os.Rename(incompletePath, dest); err != nil {
		d.Finish(download.StatusFailed, err)
		return
	}
	d.Finish(download.StatusCompleted, nil)
	log.Infoln("download completed:", dest)
}

func writeSentinel(conn net.Conn) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_, err := conn.Write(startDownloadSentinel)
	return err
}

func createTempFile(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return os.Create(path)
}

// resolveDestination expands ~, falls back to the directory's parent
// when the configured directory doesn't exist, and joins the peer's
// filename (which may arrive with Windows-style backslash separators)
// onto it.
func resolveDestination(d *download.Download) (string, error) {
	if d == nil {
		return "", protocol.New(protocol.KindPathResolution, "no download record to resolve a destination for")
	}
	expanded, err := homedir.Expand(d.Directory)
	if err != nil {
		expanded = d.Directory
	}
	if info, statErr := os.Stat(expanded); statErr != nil || !info.IsDir() {
		expanded = filepath.Dir(expanded)
	}
	name := basename(d.Filename)
	return filepath.Join(expanded, name), nil
}

// basename extracts the final path component from a filename that may
// use either '/' or '\' as a separator, mirroring the original's
// extract_filename_from_path (Soulseek peers send Windows-style paths).
func basename(path string) string {
	path = strings.ReplaceAll(path, "\\", "/")
	return filepath.Base(path)
}

func netJoin(host string, port uint16) string {
	return net.JoinHostPort(host, strconv.Itoa(int(port)))
}
