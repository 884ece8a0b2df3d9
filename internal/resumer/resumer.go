// Package resumer checkpoints the download table to a local BoltDB file
// so in-flight and queued downloads survive a client restart, the same
// way the teacher checkpoints torrent bitfields and stats to its own
// resume database.
package resumer

import (
	"errors"
	"time"

	"github.com/boltdb/bolt"
	uuid "github.com/satori/go.uuid"

	"github.com/cenkalti/soulseek/internal/download"
	"gopkg.in/yaml.v1"
)

var downloadsBucket = []byte("downloads")

// Resumer owns the BoltDB handle and the per-download resume keys. The
// key is an internally generated UUID, deliberately independent of the
// protocol-level transfer token: that token is externally supplied and
// can be reassigned mid-flight (see the token-retargeting design note),
// so it cannot serve as a stable storage key.
type Resumer struct {
	db *bolt.DB
}

// Open opens (creating if necessary) the resume database at path and
// ensures the downloads bucket exists.
func Open(path string) (*Resumer, error) {
	db, err := bolt.Open(path, 0640, &bolt.Options{Timeout: time.Second})
	if err == bolt.ErrTimeout {
		return nil, errors.New("resume database is locked by another process")
	}
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(downloadsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Resumer{db: db}, nil
}

// Close closes the underlying database.
func (r *Resumer) Close() error { return r.db.Close() }

// record is the on-disk shape of one download, intentionally not reusing
// download.Download directly: it has no sync.Mutex or channel fields to
// marshal, and it persists only what's needed to recreate a Download on
// reload (not transient speed/progress state).
type record struct {
	Username  string
	Filename  string
	Token     uint32
	Size      uint64
	Directory string
	Bytes     uint64
	Completed bool
}

// Checkpoint persists the current state of d under its resume key,
// creating the key on first call and overwriting it thereafter.
func (r *Resumer) Checkpoint(key string, d *download.Download) error {
	status := d.Status()
	rec := record{
		Username:  d.Username,
		Filename:  d.Filename,
		Token:     d.TokenValue(),
		Size:      d.Size,
		Directory: d.Directory,
		Bytes:     status.Bytes,
		Completed: status.Kind == download.StatusCompleted,
	}
	b, err := yaml.Marshal(rec)
	if err != nil {
		return err
	}
	return r.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(downloadsBucket).Put([]byte(key), b)
	})
}

// Remove deletes a completed or abandoned download's checkpoint.
func (r *Resumer) Remove(key string) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(downloadsBucket).Delete([]byte(key))
	})
}

// LoadAll returns every checkpointed download record keyed by its resume
// key, for reconstruction into live *download.Download values by the
// client façade on startup.
func (r *Resumer) LoadAll() (map[string]Record, error) {
	out := make(map[string]Record)
	err := r.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(downloadsBucket)
		return b.ForEach(func(k, v []byte) error {
			var rec record
			if err := yaml.Unmarshal(v, &rec); err != nil {
				return err
			}
			out[string(k)] = Record(rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Record is the exported view of a persisted download, returned by
// LoadAll.
type Record record

// NewKey generates a fresh resume key, independent of any protocol token.
func NewKey() string {
	return uuid.NewV1().String()
}
