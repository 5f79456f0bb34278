package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	s3blob "github.com/alanyoungcy/mevrebels/internal/blob/s3"
)

// ArchiveBrowser lists and opens archived event pages.
type ArchiveBrowser interface {
	Pages(ctx context.Context, month string) ([]s3blob.ArchivePage, error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)
}

// ArchiveHandler serves the cold event archive.
type ArchiveHandler struct {
	archive ArchiveBrowser
	logger  *slog.Logger
}

// NewArchiveHandler creates an ArchiveHandler. archive may be nil when S3 is
// not configured.
func NewArchiveHandler(archive ArchiveBrowser, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{archive: archive, logger: logger}
}

// ListPages returns the archived pages in seq order.
// GET /api/archive?month=2025-01
func (h *ArchiveHandler) ListPages(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		writeError(w, http.StatusNotFound, "event archive requires s3")
		return
	}
	pages, err := h.archive.Pages(r.Context(), r.URL.Query().Get("month"))
	if err != nil {
		writeOpError(w, r, h.logger, "list archive", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pages": pages})
}

// GetPage streams one archived page as JSONL.
// GET /api/archive/{month}/{page}
func (h *ArchiveHandler) GetPage(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		writeError(w, http.StatusNotFound, "event archive requires s3")
		return
	}
	path := s3blob.ArchivePrefix + r.PathValue("month") + "/" + r.PathValue("page")
	body, err := h.archive.Open(r.Context(), path)
	if err != nil {
		writeOpError(w, r, h.logger, "open archive page", err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.logger.WarnContext(r.Context(), "handler: archive page copy interrupted",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}
