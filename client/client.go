package client

import (
	"os"
	"path/filepath"

	"github.com/cenkalti/soulseek/internal/actor"
	"github.com/cenkalti/soulseek/internal/coordinator"
	"github.com/cenkalti/soulseek/internal/download"
	"github.com/cenkalti/soulseek/internal/listener"
	"github.com/cenkalti/soulseek/internal/logger"
	"github.com/cenkalti/soulseek/internal/resumer"
	"github.com/cenkalti/soulseek/internal/search"
	"github.com/cenkalti/soulseek/internal/serveractor"
)

// Client is the public façade over the actor runtime and the
// Coordinator: New wires a Server Actor, an optional Listener Actor and
// the Coordinator's routing loop together, the same way rain's
// session.New wires a Session around its torrent/peer/tracker machinery.
type Client struct {
	cfg    Config
	log    logger.Logger
	sys    *actor.System
	coord  *coordinator.Coordinator
	server coordinator.ServerHandle
	ln     actor.Handle[listener.Msg]
	resume *resumer.Resumer
}

// New builds and starts a Client: the Server Actor it spawns dials the
// server right away, but New does not log in by itself — call Login once
// the caller is ready (mirroring the
// teacher's own New/Run split, and spec.md's reply-sink Login contract).
func New(cfg Config) (*Client, error) {
	if err := cfg.expandDirs(); err != nil {
		return nil, err
	}

	var resume *resumer.Resumer
	if cfg.ResumeDatabase != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.ResumeDatabase), 0o750); err != nil {
			return nil, err
		}
		r, err := resumer.Open(cfg.ResumeDatabase)
		if err != nil {
			return nil, err
		}
		resume = r
	}

	sys := actor.NewSystem(cfg.MaxPeerConnections)
	coord := coordinator.New(sys, cfg.Username, cfg.ListenPort, resume)

	server := serveractor.Spawn(sys, cfg.ServerAddr, coord.Queue())
	coord.SetServerHandle(server)
	server.Send(serveractor.Msg{Kind: serveractor.MsgSetListenPort, Port: cfg.ListenPort})

	c := &Client{
		cfg:    cfg,
		log:    logger.New("client"),
		sys:    sys,
		coord:  coord,
		server: server,
		resume: resume,
	}
	if cfg.ListenPort != 0 {
		c.ln = listener.Spawn(sys, cfg.ListenPort, coord.Queue())
	}

	go coord.Run()

	if resume != nil {
		c.resumePersisted()
	}
	return c, nil
}

// resumePersisted re-enqueues every non-terminal download found in the
// resume database, mirroring rain's loadExistingTorrents at startup.
func (c *Client) resumePersisted() {
	records, err := c.resume.LoadAll()
	if err != nil {
		c.log.Error(err)
		return
	}
	for _, rec := range records {
		if rec.Completed {
			continue
		}
		c.log.Infof("resuming download %s from %s (%d/%d bytes)", rec.Filename, rec.Username, rec.Bytes, rec.Size)
		c.coord.Download(rec.Username, rec.Filename, rec.Size, rec.Directory)
	}
}

// Login authenticates against the server and blocks for the result.
func (c *Client) Login() error {
	return c.coord.Login(c.cfg.Username, c.cfg.Password)
}

// Search starts a distributed file search and returns the Search record
// results will be appended to as FileSearchResponse frames arrive.
func (c *Client) Search(query string) *search.Search {
	return c.coord.Search(query)
}

// LookupSearch returns a previously started search by its query text.
func (c *Client) LookupSearch(query string) (*search.Search, bool) {
	return c.coord.LookupSearch(query)
}

// Download queues a file download from username into the configured
// download directory.
func (c *Client) Download(username, filename string, size uint64) *download.Download {
	return c.coord.Download(username, filename, size, c.cfg.DownloadDir)
}

// Close stops the Coordinator's routing loop, the Server Actor and (if
// running) the Listener Actor, and closes the resume database. In-flight
// Peer Actors and Transfer Engine sessions are left to wind down on
// their own I/O errors rather than being torn down synchronously here.
func (c *Client) Close() error {
	c.coord.Stop()
	c.server.Stop()
	if c.cfg.ListenPort != 0 {
		c.ln.Stop()
	}
	if c.resume != nil {
		return c.resume.Close()
	}
	return nil
}
