// Package csvutil holds the small CSV transformations the export pipeline
// needs: pulling an identifier column out of a finished export, and rewriting
// a file with an extra column appended.
package csvutil

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/datalift/bulkvault/internal/types"
)

// ColumnNotFoundError reports a header without the requested column.
type ColumnNotFoundError struct {
	Column string
	Path   string
}

func (e *ColumnNotFoundError) Error() string {
	return fmt.Sprintf("column %q not found in %s", e.Column, e.Path)
}

// ExtractIdentifiers reads a CSV stream and collects the values of one column
// into an ordered, deduplicated identifier set. Column lookup is
// case-insensitive; empty values are skipped.
func ExtractIdentifiers(r io.Reader, column string) (*types.IdentifierSet, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return types.NewIdentifierSet(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	idx := columnIndex(header, column)
	if idx < 0 {
		return nil, &ColumnNotFoundError{Column: column}
	}

	ids := types.NewIdentifierSet()
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read record: %w", err)
		}
		if idx < len(record) {
			ids.Add(record[idx])
		}
	}
	return ids, nil
}

// ExtractIdentifiersFromFile is ExtractIdentifiers over a file on disk.
func ExtractIdentifiersFromFile(path, column string) (*types.IdentifierSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	ids, err := ExtractIdentifiers(f, column)
	if err != nil {
		var notFound *ColumnNotFoundError
		if errors.As(err, &notFound) {
			notFound.Path = path
		}
		return nil, err
	}
	return ids, nil
}

// AppendColumn rewrites the CSV file at path with one extra column whose
// value per row comes from valueFor keyed on the keyColumn cell. The rewrite
// goes through a temp file in the same directory and replaces the original
// atomically on success.
func AppendColumn(path, keyColumn, newColumn string, valueFor func(key string) string) error {
	in, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer in.Close()

	reader := csv.NewReader(in)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read header: %w", err)
	}

	keyIdx := columnIndex(header, keyColumn)
	if keyIdx < 0 {
		return &ColumnNotFoundError{Column: keyColumn, Path: path}
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		tmp.Close()
		os.Remove(tmpPath)
	}()

	writer := csv.NewWriter(tmp)
	if err := writer.Write(append(header, newColumn)); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read record: %w", err)
		}

		var key string
		if keyIdx < len(record) {
			key = record[keyIdx]
		}
		if err := writer.Write(append(record, valueFor(key))); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush output: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	in.Close()

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

func columnIndex(header []string, column string) int {
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), column) {
			return i
		}
	}
	return -1
}
