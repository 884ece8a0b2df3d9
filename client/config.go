// Package client is the public façade: it wires the actor runtime, the
// three protocol actors and the Coordinator together behind a small API
// (Login/Search/Download), and owns config loading, mirroring rain's own
// session package and its root config.go exactly in shape.
package client

import (
	"io/ioutil"
	"os"

	homedir "github.com/mitchellh/go-homedir"
	yaml "gopkg.in/yaml.v1"
)

// Config is the ambient configuration every façade method is built
// around: server address and credentials, the listen port peers dial
// back on, where downloads land, and where the resume database lives.
type Config struct {
	ServerAddr         string `yaml:"server_addr"`
	Username           string `yaml:"username"`
	Password           string `yaml:"password"`
	ListenPort         uint16 `yaml:"listen_port"`
	DownloadDir        string `yaml:"download_dir"`
	ResumeDatabase     string `yaml:"resume_database"`
	MaxPeerConnections int    `yaml:"max_peer_connections"`
}

// DefaultConfig mirrors the teacher's DefaultConfig: sane values for
// every field a user doesn't override in their own config file.
var DefaultConfig = Config{
	ServerAddr:         "server.slsknet.org:2242",
	ListenPort:         2234,
	DownloadDir:        "~/Downloads",
	ResumeDatabase:     "~/.soulseek/resume.db",
	MaxPeerConnections: 0, // 0 -> actor.NewSystem defaults to GOMAXPROCS
}

// LoadConfig reads filename as YAML over DefaultConfig, exactly as the
// teacher's LoadConfig does: a missing file is not an error, it just
// yields the defaults.
func LoadConfig(filename string) (*Config, error) {
	c := DefaultConfig
	b, err := ioutil.ReadFile(filename)
	if os.IsNotExist(err) {
		return &c, nil
	}
	if err != nil {
		return nil, err
	}
	if err = yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// expandDirs resolves leading "~" in path-valued fields, the same
// homedir.Expand calls the teacher's session.New performs on
// cfg.Database/cfg.DataDir.
func (c *Config) expandDirs() error {
	var err error
	c.DownloadDir, err = homedir.Expand(c.DownloadDir)
	if err != nil {
		return err
	}
	c.ResumeDatabase, err = homedir.Expand(c.ResumeDatabase)
	return err
}
