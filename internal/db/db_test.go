package db

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	d, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestOpenAndMigrate(t *testing.T) {
	d := openTestDB(t)

	if err := d.Put("session:abc123", []byte(`{"id":"abc123"}`), 0); err != nil {
		t.Fatalf("Put: %v", err)
	}

	value, ok, err := d.Get("session:abc123")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatalf("expected key to exist")
	}
	if string(value) != `{"id":"abc123"}` {
		t.Fatalf("unexpected value: %s", value)
	}
}

func TestGetMissingKey(t *testing.T) {
	d := openTestDB(t)

	_, ok, err := d.Get("session:missing")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatalf("expected missing key to report ok=false")
	}
}

func TestPutOverwritesExistingKey(t *testing.T) {
	d := openTestDB(t)

	if err := d.Put("daily:2026-07-30", []byte(`{"queries":1}`), 0); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := d.Put("daily:2026-07-30", []byte(`{"queries":2}`), 0); err != nil {
		t.Fatalf("Put overwrite: %v", err)
	}

	value, ok, err := d.Get("daily:2026-07-30")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if string(value) != `{"queries":2}` {
		t.Fatalf("expected overwritten value, got %s", value)
	}
}

func TestTTLExpiry(t *testing.T) {
	d := openTestDB(t)

	if err := d.Put("event:s1:1", []byte(`{}`), -time.Second); err != nil {
		t.Fatalf("Put: %v", err)
	}

	_, ok, err := d.Get("event:s1:1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatalf("expected key with a TTL in the past to be treated as expired")
	}
}

func TestDelete(t *testing.T) {
	d := openTestDB(t)

	if err := d.Put("session:xyz", []byte(`{}`), 0); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := d.Delete("session:xyz"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	_, ok, err := d.Get("session:xyz")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatalf("expected key to be gone after Delete")
	}
}

func TestScanPrefix(t *testing.T) {
	d := openTestDB(t)

	for _, k := range []string{"event:s1:1", "event:s1:2", "event:s2:1", "session:s1"} {
		if err := d.Put(k, []byte(`{}`), 0); err != nil {
			t.Fatalf("Put %s: %v", k, err)
		}
	}

	got, err := d.ScanPrefix("event:s1:")
	if err != nil {
		t.Fatalf("ScanPrefix: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 matches, got %d: %v", len(got), got)
	}
}

func TestBlobRoundTrip(t *testing.T) {
	d := openTestDB(t)

	content := []byte{0x89, 'P', 'N', 'G'}
	if err := d.PutBlob("vitamix-5200", "hero-1", content, "image/png"); err != nil {
		t.Fatalf("PutBlob: %v", err)
	}

	got, contentType, ok, err := d.GetBlob("vitamix-5200", "hero-1")
	if err != nil {
		t.Fatalf("GetBlob: %v", err)
	}
	if !ok {
		t.Fatalf("expected blob to exist")
	}
	if contentType != "image/png" {
		t.Fatalf("unexpected content type: %s", contentType)
	}
	if string(got) != string(content) {
		t.Fatalf("unexpected content: %v", got)
	}
}

func TestBlobMissing(t *testing.T) {
	d := openTestDB(t)

	_, _, ok, err := d.GetBlob("nope", "nope")
	if err != nil {
		t.Fatalf("GetBlob: %v", err)
	}
	if ok {
		t.Fatalf("expected missing blob to report ok=false")
	}
}

func TestMigrateIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	d1, err := Open(path)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	_ = d1.Close()

	d2, err := Open(path)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	_ = d2.Close()
}
