package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/orbitflash/internal/domain"
)

const (
	jsonlContentType = "application/x-ndjson"
	archivePageSize  = 1000
	// Payloads above this go through the multipart uploader.
	multipartThreshold = 8 * 1024 * 1024
)

// AuditArchiver copies old audit entries to object storage as JSONL and
// then removes them from the store.
type AuditArchiver struct {
	writer domain.BlobWriter
	store  domain.AuditStore
	prefix string
	logger *slog.Logger
}

// NewAuditArchiver creates an archiver writing under prefix ("archive" if
// empty).
func NewAuditArchiver(writer domain.BlobWriter, store domain.AuditStore, prefix string, logger *slog.Logger) *AuditArchiver {
	if prefix == "" {
		prefix = "archive"
	}
	return &AuditArchiver{
		writer: writer,
		store:  store,
		prefix: prefix,
		logger: logger.With(slog.String("component", "audit_archiver")),
	}
}

// ArchiveAudit uploads every entry created before the cutoff, deletes them
// and returns how many were archived. Nothing is deleted if the upload
// fails.
func (a *AuditArchiver) ArchiveAudit(ctx context.Context, before time.Time) (int64, error) {
	var (
		buf   bytes.Buffer
		count int64
	)
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	until := before.Add(-time.Nanosecond)
	for offset := 0; ; offset += archivePageSize {
		page, err := a.store.List(ctx, domain.ListOpts{Until: &until, Limit: archivePageSize, Offset: offset})
		if err != nil {
			return 0, fmt.Errorf("s3blob: list audit entries: %w", err)
		}
		for i, e := range page {
			if err := enc.Encode(e); err != nil {
				return 0, fmt.Errorf("s3blob: encode audit entry %d: %w", offset+i, err)
			}
		}
		count += int64(len(page))
		if len(page) < archivePageSize {
			break
		}
	}
	if count == 0 {
		return 0, nil
	}

	path := archivePath(a.prefix, before)
	var err error
	if buf.Len() > multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, &buf, 0)
	} else {
		err = a.writer.Put(ctx, path, &buf, jsonlContentType)
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: upload audit archive: %w", err)
	}

	deleted, err := a.store.DeleteBefore(ctx, before)
	if err != nil {
		return count, fmt.Errorf("s3blob: prune archived audit entries: %w", err)
	}
	if deleted != count {
		a.logger.Warn("archived and deleted counts differ",
			slog.Int64("archived", count), slog.Int64("deleted", deleted))
	}

	a.logger.Info("audit archived", slog.String("path", path), slog.Int64("count", count))
	if err := a.store.Log(ctx, domain.AuditArchived, map[string]any{
		"path":   path,
		"count":  count,
		"before": before.UTC().Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: log archive event: %w", err)
	}
	return count, nil
}

// archivePath partitions by cutoff, e.g. archive/audit/2026-01-02T150405Z.jsonl.
func archivePath(prefix string, before time.Time) string {
	return fmt.Sprintf("%s/audit/%s.jsonl", prefix, before.UTC().Format("2006-01-02T150405Z"))
}

var _ domain.Archiver = (*AuditArchiver)(nil)
