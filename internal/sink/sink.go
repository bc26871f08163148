// Package sink persists finished exports. Every export is first assembled as
// a CSV file in the output folder; a sink decides what else happens to it.
package sink

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/datalift/bulkvault/internal/config"
	"github.com/datalift/bulkvault/internal/logger"
)

// Sink stores one entity's finished export file.
type Sink interface {
	// Store persists the export at csvPath and returns the number of data
	// rows stored.
	Store(ctx context.Context, entity, csvPath string) (int64, error)
	Close() error
}

// New builds the configured sink.
func New(ctx context.Context, cfg config.OutputConfig, log *logger.Logger) (Sink, error) {
	switch cfg.Sink {
	case "", "csv":
		return &CSVSink{}, nil
	case "database":
		return NewDBSink(ctx, cfg.Database, log)
	default:
		return nil, fmt.Errorf("unknown sink type %q", cfg.Sink)
	}
}

// CSVSink leaves the export where the pipeline wrote it. Store only counts
// the data rows for reporting.
type CSVSink struct{}

func (s *CSVSink) Store(_ context.Context, _ string, csvPath string) (int64, error) {
	f, err := os.Open(csvPath)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", csvPath, err)
	}
	defer f.Close()

	rows, err := countDataRows(f)
	if err != nil {
		return 0, fmt.Errorf("failed to count rows in %s: %w", csvPath, err)
	}
	return rows, nil
}

func (s *CSVSink) Close() error { return nil }

// countDataRows counts CSV records after the header.
func countDataRows(r io.Reader) (int64, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	if _, err := reader.Read(); err == io.EOF {
		return 0, nil
	} else if err != nil {
		return 0, err
	}

	var rows int64
	for {
		_, err := reader.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return rows, err
		}
		rows++
	}
}
