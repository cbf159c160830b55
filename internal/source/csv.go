package source

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/chuanzhoupan/goingest/internal/domain"
	"github.com/chuanzhoupan/goingest/internal/logger"
)

// CSVSource reads capture jobs from a flat CSV table with id, url and
// domain columns (case-insensitive, BOM tolerant). Acknowledged rows
// are removed so an interrupted run resumes where it left off. A CSV
// source runs exactly one batch.
type CSVSource struct {
	path   string
	logger logger.Interface

	// mu serializes every read-modify-write of the file: concurrent
	// workers acknowledge rows one atomic rewrite at a time.
	mu        sync.Mutex
	exhausted bool
}

// NewCSVSource creates a source over the given CSV file.
func NewCSVSource(path string, log logger.Interface) *CSVSource {
	return &CSVSource{path: path, logger: log}
}

// FetchBatch reads every remaining row with a non-empty url. Rows
// missing an id are still captured; they just cannot be removed on
// acknowledgement. A missing file yields an empty batch so the run
// exits cleanly with no jobs.
func (s *CSVSource) FetchBatch(_ context.Context) ([]domain.Job, error) {
	if s.exhausted {
		return nil, nil
	}

	s.mu.Lock()
	header, rows, err := s.readAll()
	s.mu.Unlock()
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Warn("csv source not found, treating as empty", "path", s.path)
			s.exhausted = true
			return nil, nil
		}
		return nil, err
	}

	idx := headerIndex(header)
	jobs := make([]domain.Job, 0, len(rows))
	for _, row := range rows {
		url := fieldAt(row, idx.col("url"))
		if url == "" {
			continue
		}
		jobs = append(jobs, domain.Job{
			ID:     fieldAt(row, idx.col("id")),
			URL:    url,
			Domain: fieldAt(row, idx.col("domain")),
		})
	}

	if len(jobs) == 0 {
		s.exhausted = true
	}
	return jobs, nil
}

// OnSuccess removes the acknowledged row from the file.
func (s *CSVSource) OnSuccess(_ context.Context, job *domain.Job, _ domain.ArtifactPaths) error {
	return s.removeRow(job.ID)
}

// OnFailure also removes the row: a terminally failed URL should not be
// re-captured on the next run.
func (s *CSVSource) OnFailure(_ context.Context, job *domain.Job, _ string) error {
	return s.removeRow(job.ID)
}

// ShouldContinue is false: a CSV source runs a single batch.
func (s *CSVSource) ShouldContinue() bool {
	return false
}

// Close is a no-op for CSV sources.
func (s *CSVSource) Close() error {
	return nil
}

// removeRow deletes exactly the first row whose id matches, rewriting
// the file atomically via a temp file and rename.
func (s *CSVSource) removeRow(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	header, rows, err := s.readAll()
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	idCol := headerIndex(header).col("id")
	if idCol < 0 {
		return nil
	}

	removed := false
	remaining := rows[:0]
	for _, row := range rows {
		if !removed && fieldAt(row, idCol) == id {
			removed = true
			continue
		}
		remaining = append(remaining, row)
	}
	if !removed {
		return nil
	}

	if err := s.writeAll(header, remaining); err != nil {
		return err
	}
	s.logger.Debug("removed csv row", "id", id, "remaining", len(remaining))
	return nil
}

// readAll parses the whole file. The caller holds s.mu when the result
// feeds a rewrite.
func (s *CSVSource) readAll() (header []string, rows [][]string, err error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse %s: %w", s.path, err)
	}
	if len(records) == 0 {
		return nil, nil, nil
	}

	header = records[0]
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\uFEFF")
	}
	return header, records[1:], nil
}

// writeAll rewrites the file atomically.
func (s *CSVSource) writeAll(header []string, rows [][]string) error {
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".csv_*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp csv: %w", err)
	}
	tmpPath := tmp.Name()

	w := csv.NewWriter(tmp)
	writeErr := w.Write(header)
	for _, row := range rows {
		if writeErr != nil {
			break
		}
		writeErr = w.Write(row)
	}
	if writeErr == nil {
		w.Flush()
		writeErr = w.Error()
	}
	if closeErr := tmp.Close(); writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp csv: %w", writeErr)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace %s: %w", s.path, err)
	}
	return nil
}

type columnIndex map[string]int

// headerIndex maps lowercased column names to positions.
func headerIndex(header []string) columnIndex {
	idx := make(columnIndex, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	return idx
}

// col returns the position of a column, or -1 when absent.
func (c columnIndex) col(name string) int {
	i, ok := c[name]
	if !ok {
		return -1
	}
	return i
}

// fieldAt returns the trimmed field, tolerating ragged rows.
func fieldAt(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
