// Package csvfile writes the normalized events and the summary of a run as
// two CSV files, named after the run date:
//
//	<dir>/Events_<date>.csv
//	<dir>/Summary_<date>.csv
package csvfile

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/crimson-sun/auditor/internal/model"
)

const defaultBufSize = 64 * 1024 // 64KB

// Option configures a csvfile Output.
type Option func(*Output)

// WithExcelHint prefixes each file with a "sep=," line so spreadsheet
// applications pick the right delimiter regardless of locale.
func WithExcelHint(on bool) Option {
	return func(o *Output) { o.excelHint = on }
}

// WithBufSize sets the bufio.Writer buffer size. Default: 64KB.
func WithBufSize(bytes int) Option {
	return func(o *Output) { o.bufSize = bytes }
}

// Output writes CSV report files into a directory. Files for the same date
// are replaced, so re-running a day produces identical output.
type Output struct {
	mu        sync.Mutex
	dir       string
	excelHint bool
	bufSize   int
}

// New creates a csvfile output rooted at dir. The directory is created if
// it does not exist.
func New(dir string, opts ...Option) (*Output, error) {
	o := &Output{
		dir:     dir,
		bufSize: defaultBufSize,
	}
	for _, opt := range opts {
		opt(o)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("csvfile output: create %s: %w", dir, err)
	}
	return o, nil
}

// EventsPath returns the events file path for a run date.
func (o *Output) EventsPath(date string) string {
	return filepath.Join(o.dir, "Events_"+date+".csv")
}

// SummaryPath returns the summary file path for a run date.
func (o *Output) SummaryPath(date string) string {
	return filepath.Join(o.dir, "Summary_"+date+".csv")
}

// Write emits both files for the report.
func (o *Output) Write(_ context.Context, report model.Report) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	date := report.Summary.Date
	if date == "" {
		return fmt.Errorf("csvfile output: report has no date")
	}

	rows := make([][]string, 0, len(report.Records))
	for _, r := range report.Records {
		rows = append(rows, r.Row())
	}
	if err := o.writeFile(o.EventsPath(date), model.RecordColumns, rows); err != nil {
		return err
	}
	return o.writeFile(o.SummaryPath(date), model.SummaryColumns, [][]string{report.Summary.Row()})
}

// Close is a no-op; every Write leaves complete files behind.
func (o *Output) Close() error {
	return nil
}

// writeFile writes to a temp file in the same directory and renames it into
// place, so readers never see a half-written report.
func (o *Output) writeFile(path string, header []string, rows [][]string) error {
	f, err := os.CreateTemp(o.dir, ".tmp-*.csv")
	if err != nil {
		return fmt.Errorf("csvfile output: create: %w", err)
	}
	tmp := f.Name()
	defer os.Remove(tmp) // no-op after a successful rename

	bw := bufio.NewWriterSize(f, o.bufSize)
	if err := encode(bw, o.excelHint, header, rows); err != nil {
		f.Close()
		return fmt.Errorf("csvfile output: write %s: %w", path, err)
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("csvfile output: flush %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("csvfile output: close %s: %w", path, err)
	}
	if err := os.Chmod(tmp, 0o644); err != nil {
		return fmt.Errorf("csvfile output: chmod %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("csvfile output: rename %s: %w", path, err)
	}
	return nil
}

func encode(w io.Writer, excelHint bool, header []string, rows [][]string) error {
	if excelHint {
		if _, err := io.WriteString(w, "sep=,\n"); err != nil {
			return err
		}
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	return cw.WriteAll(rows)
}
