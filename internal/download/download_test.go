package download

import "testing"

func TestTableRetargeting(t *testing.T) {
	table := NewTable()
	d := New("M", "f.mp3", 111, 17580946, "/tmp", nil)
	table.Add(d)

	if _, ok := table.ByToken(111); !ok {
		t.Fatal("expected download to be found by its initial token")
	}

	table.Retarget(d, 222)

	if _, ok := table.ByToken(111); ok {
		t.Fatal("expected old token to be absent from the table")
	}
	got, ok := table.ByToken(222)
	if !ok || got != d {
		t.Fatal("expected download to be found by its new token")
	}
	byName, ok := table.ByUserFilename("M", "f.mp3")
	if !ok || byName != d {
		t.Fatal("expected (username, filename) lookup to still resolve after retargeting")
	}
	if len(table.ByUsername("M")) != 1 {
		t.Fatalf("expected exactly one download for M, got %d", len(table.ByUsername("M")))
	}
}

func TestRecordProgressPublishesToSink(t *testing.T) {
	sink := make(chan Update, 4)
	d := New("u", "f", 1, 100, "/tmp", sink)
	d.RecordProgress(50)

	select {
	case u := <-sink:
		if u.Status.Kind != StatusInProgress || u.Status.Bytes != 50 {
			t.Fatalf("unexpected status: %+v", u.Status)
		}
	default:
		t.Fatal("expected a status update on the sink")
	}
}

func TestFinishSetsTerminalStatus(t *testing.T) {
	d := New("u", "f", 1, 100, "/tmp", nil)
	d.Finish(StatusCompleted, nil)
	if d.Status().Kind != StatusCompleted {
		t.Fatalf("expected Completed, got %v", d.Status().Kind)
	}
}
