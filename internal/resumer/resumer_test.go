package resumer

import (
	"path/filepath"
	"testing"

	"github.com/cenkalti/soulseek/internal/download"
)

func TestCheckpointAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resume.db")
	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	d := download.New("alice", "song.flac", 555, 1000, "/music", nil)
	key := NewKey()
	if err := r.Checkpoint(key, d); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}

	records, err := r.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	rec, ok := records[key]
	if !ok {
		t.Fatalf("expected key %s to be present", key)
	}
	if rec.Username != "alice" || rec.Filename != "song.flac" || rec.Token != 555 {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resume.db")
	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	d := download.New("bob", "x.mp3", 1, 1, "/tmp", nil)
	key := NewKey()
	if err := r.Checkpoint(key, d); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}
	if err := r.Remove(key); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	records, err := r.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if _, ok := records[key]; ok {
		t.Fatal("expected key to be removed")
	}
}
