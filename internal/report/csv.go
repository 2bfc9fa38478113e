// Package report persists per-job run outcomes so conversion batches can be
// compared across runs. One CSV row per job; the header is written once.
package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"modelconv/internal/common/fsutil"
)

// Record is one finished workflow run.
type Record struct {
	Time     time.Time
	JobID    string
	Model    string
	Format   string
	Verdict  string // passed | failed | error
	Artifact string
	Duration time.Duration
	Detail   string
}

var header = []string{"time", "job_id", "model", "format", "verdict", "artifact", "duration_sec", "detail"}

// CSVWriter appends records to a CSV file, creating it (with header) on
// first use. Safe for concurrent use; jobs may finish in parallel.
type CSVWriter struct {
	mu   sync.Mutex
	path string
}

// NewCSVWriter returns a writer appending to path.
func NewCSVWriter(path string) *CSVWriter {
	return &CSVWriter{path: path}
}

// Append writes one record, emitting the header first if the file is new.
func (w *CSVWriter) Append(rec Record) error {
	if w.path == "" {
		return fmt.Errorf("no report path configured")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	writeHeader := !fsutil.PathExists(w.path)
	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open report: %w", err)
	}
	defer f.Close()
	cw := csv.NewWriter(f)
	if writeHeader {
		if err := cw.Write(header); err != nil {
			return err
		}
	}
	row := []string{
		rec.Time.UTC().Format(time.RFC3339),
		rec.JobID,
		rec.Model,
		rec.Format,
		rec.Verdict,
		rec.Artifact,
		strconv.FormatFloat(rec.Duration.Seconds(), 'f', 3, 64),
		rec.Detail,
	}
	if err := cw.Write(row); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}
