package s3blob

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/mevrebels/internal/domain"
)

// ArchivePage describes one uploaded JSONL page of ledger events.
type ArchivePage struct {
	Path         string    `json:"path"`
	Month        string    `json:"month"`
	FirstSeq     uint64    `json:"first_seq"`
	LastSeq      uint64    `json:"last_seq"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// ParseArchivePath splits an archive key into its month and seq range. It
// reports false for keys the archiver did not write.
func ParseArchivePath(path string) (ArchivePage, bool) {
	rest, ok := strings.CutPrefix(path, ArchivePrefix)
	if !ok {
		return ArchivePage{}, false
	}
	month, file, ok := strings.Cut(rest, "/")
	if !ok {
		return ArchivePage{}, false
	}
	if _, err := time.Parse("2006-01", month); err != nil {
		return ArchivePage{}, false
	}
	span, ok := strings.CutSuffix(file, ".jsonl")
	if !ok {
		return ArchivePage{}, false
	}
	lo, hi, ok := strings.Cut(span, "-")
	if !ok {
		return ArchivePage{}, false
	}
	first, err := strconv.ParseUint(lo, 10, 64)
	if err != nil {
		return ArchivePage{}, false
	}
	last, err := strconv.ParseUint(hi, 10, 64)
	if err != nil || last < first {
		return ArchivePage{}, false
	}
	return ArchivePage{Path: path, Month: month, FirstSeq: first, LastSeq: last}, true
}

// ArchiveBrowser lists and opens archived event pages.
type ArchiveBrowser struct {
	reader domain.BlobReader
}

// NewArchiveBrowser creates an ArchiveBrowser over reader.
func NewArchiveBrowser(reader domain.BlobReader) *ArchiveBrowser {
	return &ArchiveBrowser{reader: reader}
}

// Pages returns the archived pages in seq order. A non-empty month
// ("2025-01") restricts the listing to that partition.
func (b *ArchiveBrowser) Pages(ctx context.Context, month string) ([]ArchivePage, error) {
	prefix := ArchivePrefix
	if month != "" {
		if _, err := time.Parse("2006-01", month); err != nil {
			return nil, fmt.Errorf("s3blob: month %q: %w", month, domain.ErrInvalidInput)
		}
		prefix += month + "/"
	}
	infos, err := b.reader.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	pages := make([]ArchivePage, 0, len(infos))
	for _, info := range infos {
		page, ok := ParseArchivePath(info.Path)
		if !ok {
			continue
		}
		page.Size = info.Size
		page.LastModified = info.LastModified
		pages = append(pages, page)
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].FirstSeq < pages[j].FirstSeq })
	return pages, nil
}

// Open returns the JSONL body of one archived page. Keys outside the event
// archive are reported as not found.
func (b *ArchiveBrowser) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	if _, ok := ParseArchivePath(path); !ok {
		return nil, fmt.Errorf("s3blob: open %s: %w", path, domain.ErrNotFound)
	}
	return b.reader.Get(ctx, path)
}
