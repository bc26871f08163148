// Package blob fetches the large-binary field of exported records into
// per-record files and links them back into the tabular export.
package blob

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/datalift/bulkvault/internal/bulk"
	"github.com/datalift/bulkvault/internal/csvutil"
	"github.com/datalift/bulkvault/internal/logger"
)

// maxFileNameLen caps sanitized content file names.
const maxFileNameLen = 100

// Result summarizes one content-fetch pass.
type Result struct {
	Downloaded int
	Skipped    int
	Failed     int
}

// Fetcher downloads binary content for the records of one export.
type Fetcher struct {
	client *bulk.Client
	logger *logger.Logger
}

// NewFetcher creates a content fetcher backed by the given protocol client.
func NewFetcher(client *bulk.Client, log *logger.Logger) *Fetcher {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Fetcher{client: client, logger: log}
}

// FetchAll downloads the blob field of every record listed in the export file
// at csvPath into blobDir, then rewrites the export file with a ContentPath
// column pointing at the fetched files.
//
// The pass is idempotent: an existing non-empty file is kept as-is, while a
// zero-byte leftover from an interrupted run is downloaded again. A failed
// record download removes its partial file and is counted, not fatal.
func (f *Fetcher) FetchAll(ctx context.Context, entity, blobField, csvPath, blobDir string) (*Result, error) {
	ids, err := csvutil.ExtractIdentifiersFromFile(csvPath, "Id")
	if err != nil {
		return nil, fmt.Errorf("failed to collect record identifiers: %w", err)
	}
	if ids.Len() == 0 {
		return &Result{}, nil
	}

	if err := os.MkdirAll(blobDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create content directory: %w", err)
	}

	log := f.logger.WithEntity(entity)
	log.Infow("Fetching binary content", "field", blobField, "records", ids.Len())

	result := &Result{}
	contentPaths := make(map[string]string, ids.Len())

	for _, recordID := range ids.Values() {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		fileName := f.contentFileName(ctx, entity, recordID)
		target := filepath.Join(blobDir, fileName)

		if info, err := os.Stat(target); err == nil && info.Size() > 0 {
			result.Skipped++
			contentPaths[recordID] = target
			continue
		}

		if err := f.fetchOne(ctx, entity, recordID, blobField, target); err != nil {
			log.Warnw("Content download failed", "record_id", recordID, "error", err)
			result.Failed++
			continue
		}
		result.Downloaded++
		contentPaths[recordID] = target
	}

	if err := csvutil.AppendColumn(csvPath, "Id", "ContentPath", func(recordID string) string {
		return contentPaths[recordID]
	}); err != nil {
		return result, fmt.Errorf("failed to link content paths: %w", err)
	}

	log.Infow("Content fetch finished",
		"downloaded", result.Downloaded,
		"skipped", result.Skipped,
		"failed", result.Failed,
	)
	return result, nil
}

// fetchOne streams one record's content to target, removing the partial file
// on any failure.
func (f *Fetcher) fetchOne(ctx context.Context, entity, recordID, blobField, target string) error {
	out, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", target, err)
	}

	if err := f.client.StreamContent(ctx, entity, recordID, blobField, out); err != nil {
		out.Close()
		os.Remove(target)
		return err
	}
	return out.Close()
}

// contentFileName builds a deterministic file name for one record's content.
// Record metadata supplies a human-readable name when available; the record
// identifier prefix keeps names unique either way.
func (f *Fetcher) contentFileName(ctx context.Context, entity, recordID string) string {
	name := ""
	if meta, err := f.client.RecordMetadata(ctx, entity, recordID); err == nil {
		name = displayName(entity, meta)
	}
	if name == "" {
		return SanitizeFileName(recordID + ".bin")
	}
	return SanitizeFileName(recordID + "_" + name)
}

// displayName picks the record's natural file name out of its metadata.
func displayName(entity string, meta map[string]interface{}) string {
	if entity == "ContentVersion" {
		title, _ := meta["Title"].(string)
		ext, _ := meta["FileExtension"].(string)
		if title != "" && ext != "" {
			return title + "." + ext
		}
		return title
	}
	if name, ok := meta["Name"].(string); ok {
		return name
	}
	if title, ok := meta["Title"].(string); ok {
		return title
	}
	return ""
}

// SanitizeFileName strips path separators and characters unsafe on common
// filesystems, collapsing them to underscores, and caps the length while
// keeping the extension.
func SanitizeFileName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r == '/' || r == '\\' || r == ':' || r == '*' || r == '?' ||
			r == '"' || r == '<' || r == '>' || r == '|' || r < 0x20:
			b.WriteByte('_')
		default:
			b.WriteRune(r)
		}
	}
	out := strings.TrimSpace(b.String())
	if out == "" {
		out = "unnamed"
	}
	if len(out) <= maxFileNameLen {
		return out
	}

	ext := filepath.Ext(out)
	if len(ext) > 20 {
		ext = ""
	}
	keep := maxFileNameLen - len(ext)
	return out[:keep] + ext
}
