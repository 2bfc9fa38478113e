package report

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"
)

func TestAppendWritesHeaderOnce(t *testing.T) {
	p := filepath.Join(t.TempDir(), "runs.csv")
	w := NewCSVWriter(p)

	rec := Record{
		Time: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), JobID: "j1",
		Model: "bert-base-uncased", Format: "onnx", Verdict: "passed",
		Artifact: "/out/model.onnx", Duration: 1500 * time.Millisecond,
	}
	if err := w.Append(rec); err != nil {
		t.Fatalf("append: %v", err)
	}
	rec.JobID = "j2"
	rec.Verdict = "failed"
	if err := w.Append(rec); err != nil {
		t.Fatalf("append: %v", err)
	}

	f, err := os.Open(p)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want header + 2", len(rows))
	}
	if rows[0][0] != "time" || rows[0][4] != "verdict" {
		t.Fatalf("header = %v", rows[0])
	}
	if rows[1][1] != "j1" || rows[2][4] != "failed" {
		t.Fatalf("rows = %v", rows[1:])
	}
	if rows[1][6] != "1.500" {
		t.Fatalf("duration cell = %q", rows[1][6])
	}
}

func TestAppendNoPath(t *testing.T) {
	if err := NewCSVWriter("").Append(Record{}); err == nil {
		t.Fatal("expected error with no path")
	}
}

func TestAppendConcurrent(t *testing.T) {
	// Jobs may finish in parallel; rows must not interleave and the header
	// must still appear exactly once.
	p := filepath.Join(t.TempDir(), "runs.csv")
	w := NewCSVWriter(p)

	const n = 16
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := Record{Time: time.Now(), JobID: "j" + strconv.Itoa(i), Model: "m", Format: "onnx", Verdict: "passed"}
			if err := w.Append(rec); err != nil {
				t.Errorf("append: %v", err)
			}
		}(i)
	}
	wg.Wait()

	f, err := os.Open(p)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(rows) != n+1 {
		t.Fatalf("rows = %d, want header + %d", len(rows), n)
	}
	headers := 0
	for _, row := range rows {
		if row[0] == "time" {
			headers++
		}
	}
	if headers != 1 {
		t.Fatalf("header written %d times", headers)
	}
}
