package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/mevrebels/internal/domain"
	"github.com/alanyoungcy/mevrebels/internal/ledger"
)

const (
	jsonlContentType = "application/x-ndjson"

	// archivePageSize bounds how many events are held in memory per upload.
	archivePageSize = 5000

	// multipartThreshold switches uploads to multipart above 8 MiB.
	multipartThreshold = 8 * 1024 * 1024
)

// EventSource is the slice of the event store the archiver needs.
type EventSource interface {
	ListBefore(ctx context.Context, before time.Time, afterSeq uint64, limit int) ([]ledger.Event, error)
	DeleteThrough(ctx context.Context, seq uint64) (int64, error)
}

// EventArchiver copies committed ledger events older than a cutoff into
// object storage as JSONL. Each page lands at a key named after its seq
// range, so a rerun skips pages that were already uploaded.
type EventArchiver struct {
	events EventSource
	writer domain.BlobWriter
	reader domain.BlobReader
	audit  domain.AuditStore
	prune  bool
	logger *slog.Logger
}

// ArchiverOptions configures an EventArchiver.
type ArchiverOptions struct {
	Events EventSource
	Writer domain.BlobWriter
	Reader domain.BlobReader
	Audit  domain.AuditStore
	// Prune deletes archived events from the primary store once every page
	// has been uploaded.
	Prune  bool
	Logger *slog.Logger
}

// NewEventArchiver creates an EventArchiver.
func NewEventArchiver(opts ArchiverOptions) *EventArchiver {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &EventArchiver{
		events: opts.Events,
		writer: opts.Writer,
		reader: opts.Reader,
		audit:  opts.Audit,
		prune:  opts.Prune,
		logger: logger.With(slog.String("component", "event_archiver")),
	}
}

// ArchiveEvents uploads every event committed before the cutoff and returns
// how many events are now held in the archive for this run, including pages
// found already present.
func (a *EventArchiver) ArchiveEvents(ctx context.Context, before time.Time) (int64, error) {
	var (
		count    int64
		uploaded int
		skipped  int
		afterSeq uint64
		lastSeq  uint64
	)
	for {
		page, err := a.events.ListBefore(ctx, before, afterSeq, archivePageSize)
		if err != nil {
			return count, fmt.Errorf("s3blob: archive events query: %w", err)
		}
		if len(page) == 0 {
			break
		}

		wrote, err := a.archivePage(ctx, page)
		if err != nil {
			return count, err
		}
		if wrote {
			uploaded++
		} else {
			skipped++
		}

		count += int64(len(page))
		lastSeq = page[len(page)-1].Seq
		afterSeq = lastSeq
		if len(page) < archivePageSize {
			break
		}
	}
	if count == 0 {
		return 0, nil
	}

	var pruned int64
	if a.prune {
		n, err := a.events.DeleteThrough(ctx, lastSeq)
		if err != nil {
			return count, fmt.Errorf("s3blob: prune archived events: %w", err)
		}
		pruned = n
	}

	a.logger.InfoContext(ctx, "events archived",
		slog.Int64("count", count),
		slog.Int("uploaded", uploaded),
		slog.Int("skipped", skipped),
		slog.Uint64("last_seq", lastSeq),
		slog.Int64("pruned", pruned),
	)

	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive.events", map[string]any{
			"count":    count,
			"uploaded": uploaded,
			"skipped":  skipped,
			"last_seq": lastSeq,
			"pruned":   pruned,
			"before":   before.UTC().Format(time.RFC3339),
		}); err != nil {
			return count, fmt.Errorf("s3blob: archive events audit log: %w", err)
		}
	}
	return count, nil
}

func (a *EventArchiver) archivePage(ctx context.Context, page []ledger.Event) (bool, error) {
	path := eventArchivePath(page[0], page[len(page)-1])

	exists, err := a.reader.Exists(ctx, path)
	if err != nil {
		return false, fmt.Errorf("s3blob: archive events check %s: %w", path, err)
	}
	if exists {
		a.logger.DebugContext(ctx, "archive page already present", slog.String("path", path))
		return false, nil
	}

	buf, err := marshalJSONL(page)
	if err != nil {
		return false, fmt.Errorf("s3blob: archive events marshal: %w", err)
	}

	if len(buf) > multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), jsonlContentType)
	}
	if err != nil {
		return false, fmt.Errorf("s3blob: archive events upload: %w", err)
	}
	return true, nil
}

// ArchivePrefix is the key prefix of every archived event page.
const ArchivePrefix = "archive/events/"

// eventArchivePath partitions pages by the UTC month of their first event.
//
//	archive/events/2025-01/1-5000.jsonl
func eventArchivePath(first, last ledger.Event) string {
	month := time.Unix(first.Timestamp, 0).UTC().Format("2006-01")
	return fmt.Sprintf("%s%s/%d-%d.jsonl", ArchivePrefix, month, first.Seq, last.Seq)
}

// marshalJSONL encodes each item as one JSON line.
func marshalJSONL[T any](items []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range items {
		if err := enc.Encode(items[i]); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

var _ domain.EventArchiver = (*EventArchiver)(nil)
