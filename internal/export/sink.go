package export

import (
	"encoding/csv"
	"fmt"
	"os"
)

// SinkWriter appends rows to the export file for the duration of one batch.
// Every batch performs its own open/close cycle: batches arrive as separate
// requests and no file handle may outlive one.
type SinkWriter struct {
	file *os.File
	csv  *csv.Writer
}

// OpenSink opens the export file in append mode, creating it if needed.
// When writeHeader is true (offset 0) the header row is written first.
// Quoting and escaping follow encoding/csv, so fields containing commas,
// quotes or line breaks come out valid.
func OpenSink(path string, writeHeader bool) (*SinkWriter, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open export file: %w", err)
	}

	w := &SinkWriter{
		file: f,
		csv:  csv.NewWriter(f),
	}

	if writeHeader {
		if err := w.csv.Write(Header); err != nil {
			f.Close()
			return nil, fmt.Errorf("write header: %w", err)
		}
	}

	return w, nil
}

// Write appends one row.
func (w *SinkWriter) Write(record []string) error {
	return w.csv.Write(record)
}

// Close flushes buffered rows and releases the file handle.
func (w *SinkWriter) Close() error {
	w.csv.Flush()
	flushErr := w.csv.Error()
	closeErr := w.file.Close()
	if flushErr != nil {
		return fmt.Errorf("flush export file: %w", flushErr)
	}
	return closeErr
}
