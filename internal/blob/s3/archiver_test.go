package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/mevrebels/internal/domain"
	"github.com/alanyoungcy/mevrebels/internal/ledger"
)

type fakeEvents struct {
	events  []ledger.Event
	deleted uint64
}

func (f *fakeEvents) ListBefore(_ context.Context, before time.Time, afterSeq uint64, limit int) ([]ledger.Event, error) {
	var out []ledger.Event
	for _, e := range f.events {
		if e.Timestamp < before.Unix() && e.Seq > afterSeq {
			out = append(out, e)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (f *fakeEvents) DeleteThrough(_ context.Context, seq uint64) (int64, error) {
	f.deleted = seq
	var kept []ledger.Event
	var n int64
	for _, e := range f.events {
		if e.Seq <= seq {
			n++
			continue
		}
		kept = append(kept, e)
	}
	f.events = kept
	return n, nil
}

type memBlobs struct {
	objects map[string][]byte
	puts    int
}

func newMemBlobs() *memBlobs { return &memBlobs{objects: make(map[string][]byte)} }

func (m *memBlobs) Put(_ context.Context, path string, data io.Reader, _ string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.objects[path] = b
	m.puts++
	return nil
}

func (m *memBlobs) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return m.Put(ctx, path, data, jsonlContentType)
}

func (m *memBlobs) Get(_ context.Context, path string) (io.ReadCloser, error) {
	b, ok := m.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memBlobs) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	var out []domain.BlobInfo
	for p, b := range m.objects {
		if strings.HasPrefix(p, prefix) {
			out = append(out, domain.BlobInfo{Path: p, Size: int64(len(b))})
		}
	}
	return out, nil
}

func (m *memBlobs) Exists(_ context.Context, path string) (bool, error) {
	_, ok := m.objects[path]
	return ok, nil
}

type memAudit struct{ entries []domain.AuditEntry }

func (m *memAudit) Log(_ context.Context, event string, detail map[string]any) error {
	m.entries = append(m.entries, domain.AuditEntry{Event: event, Detail: detail})
	return nil
}

func (m *memAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return m.entries, nil
}

var january = time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)

func makeEvents(n int) []ledger.Event {
	events := make([]ledger.Event, n)
	for i := range events {
		events[i] = ledger.Event{
			Seq:       uint64(i + 1),
			Kind:      ledger.EventKind("VaultFunded"),
			Timestamp: january.Add(time.Duration(i) * time.Minute).Unix(),
			Payload:   json.RawMessage(`{"amount":1}`),
		}
	}
	return events
}

func TestArchiveEvents(t *testing.T) {
	src := &fakeEvents{events: makeEvents(10)}
	blobs := newMemBlobs()
	audit := &memAudit{}
	a := NewEventArchiver(ArchiverOptions{Events: src, Writer: blobs, Reader: blobs, Audit: audit})

	// Events 1..6 are older than the cutoff.
	cutoff := january.Add(5*time.Minute + time.Second)
	n, err := a.ArchiveEvents(context.Background(), cutoff)
	if err != nil {
		t.Fatal(err)
	}
	if n != 6 {
		t.Fatalf("archived %d, want 6", n)
	}

	body, ok := blobs.objects["archive/events/2025-01/1-6.jsonl"]
	if !ok {
		t.Fatalf("missing archive object, have %v", blobs.objects)
	}
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	if len(lines) != 6 {
		t.Fatalf("got %d lines, want 6", len(lines))
	}
	var first ledger.Event
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatal(err)
	}
	if first.Seq != 1 || first.Kind != "VaultFunded" {
		t.Errorf("first line = %+v", first)
	}

	if len(audit.entries) != 1 || audit.entries[0].Event != "archive.events" {
		t.Fatalf("audit = %+v", audit.entries)
	}
	if src.deleted != 0 {
		t.Error("pruned without Prune set")
	}
}

func TestArchiveEventsRerunSkipsExistingPages(t *testing.T) {
	src := &fakeEvents{events: makeEvents(4)}
	blobs := newMemBlobs()
	a := NewEventArchiver(ArchiverOptions{Events: src, Writer: blobs, Reader: blobs})

	cutoff := january.Add(time.Hour)
	for i := 0; i < 2; i++ {
		n, err := a.ArchiveEvents(context.Background(), cutoff)
		if err != nil {
			t.Fatal(err)
		}
		if n != 4 {
			t.Fatalf("run %d archived %d, want 4", i, n)
		}
	}
	if blobs.puts != 1 {
		t.Errorf("puts = %d, want 1", blobs.puts)
	}
}

func TestArchiveEventsPrune(t *testing.T) {
	src := &fakeEvents{events: makeEvents(5)}
	blobs := newMemBlobs()
	a := NewEventArchiver(ArchiverOptions{Events: src, Writer: blobs, Reader: blobs, Prune: true})

	n, err := a.ArchiveEvents(context.Background(), january.Add(2*time.Minute+time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 || src.deleted != 3 {
		t.Fatalf("archived %d, deleted through %d", n, src.deleted)
	}
	if len(src.events) != 2 || src.events[0].Seq != 4 {
		t.Errorf("remaining = %+v", src.events)
	}
}

func TestArchiveEventsNothingOld(t *testing.T) {
	src := &fakeEvents{events: makeEvents(3)}
	blobs := newMemBlobs()
	audit := &memAudit{}
	a := NewEventArchiver(ArchiverOptions{Events: src, Writer: blobs, Reader: blobs, Audit: audit})

	n, err := a.ArchiveEvents(context.Background(), january.Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 || blobs.puts != 0 || len(audit.entries) != 0 {
		t.Errorf("n=%d puts=%d audit=%d", n, blobs.puts, len(audit.entries))
	}
}

type failingWriter struct{ memBlobs }

func (f *failingWriter) Put(context.Context, string, io.Reader, string) error {
	return errors.New("bucket unavailable")
}

func TestArchiveEventsUploadError(t *testing.T) {
	src := &fakeEvents{events: makeEvents(2)}
	blobs := newMemBlobs()
	a := NewEventArchiver(ArchiverOptions{Events: src, Writer: &failingWriter{}, Reader: blobs, Prune: true})

	if _, err := a.ArchiveEvents(context.Background(), january.Add(time.Hour)); err == nil {
		t.Fatal("expected upload error")
	}
	if src.deleted != 0 {
		t.Error("pruned after a failed upload")
	}
}

func TestNormaliseEndpoint(t *testing.T) {
	tests := []struct {
		in     string
		useSSL bool
		want   string
	}{
		{"localhost:9000", false, "http://localhost:9000"},
		{"minio.internal:9000", true, "https://minio.internal:9000"},
		{"https://s3.example.com", false, "https://s3.example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := normaliseEndpoint(tt.in, tt.useSSL); got != tt.want {
				t.Errorf("normaliseEndpoint(%q, %v) = %q, want %q", tt.in, tt.useSSL, got, tt.want)
			}
		})
	}
}
