package tracing

import (
	"fmt"
	"os"

	"github.com/tebeka/atexit"
)

// CSVWriter stores timing records in a CSV file.
type CSVWriter struct {
	path string
	file *os.File

	records    []Record
	bufferSize int
}

// NewCSVWriter creates a CSV writer. Passing an empty path picks a
// generated file name.
func NewCSVWriter(path string) *CSVWriter {
	return &CSVWriter{
		path:       path,
		bufferSize: 1000,
	}
}

// Init creates the CSV file and writes the header. An existing file at
// the same path is an error.
func (w *CSVWriter) Init() error {
	if w.path == "" {
		w.path = "tomsim_trace_" + NewRunID() + ".csv"
	}

	if _, err := os.Stat(w.path); err == nil {
		return fmt.Errorf("file %s already exists", w.path)
	}

	file, err := os.Create(w.path)
	if err != nil {
		return err
	}
	w.file = file

	fmt.Fprintf(file, "RunID, Seq, Instruction, Issue, Dispatch, Complete, Write\n")

	atexit.Register(func() { w.Flush() })

	return nil
}

// Path returns the file the writer writes to, available after Init.
func (w *CSVWriter) Path() string {
	return w.path
}

// Write buffers one record.
func (w *CSVWriter) Write(r Record) {
	w.records = append(w.records, r)
	if len(w.records) >= w.bufferSize {
		w.Flush()
	}
}

// Flush writes all buffered records to the file.
func (w *CSVWriter) Flush() error {
	for _, r := range w.records {
		_, err := fmt.Fprintf(w.file, "%s, %d, %s, %d, %d, %d, %d\n",
			r.RunID,
			r.Seq,
			r.Text,
			r.IssueCycle,
			r.DispatchCycle,
			r.CompleteCycle,
			r.WriteCycle,
		)
		if err != nil {
			return err
		}
	}

	w.records = nil
	return nil
}

// Close flushes and closes the file.
func (w *CSVWriter) Close() error {
	if err := w.Flush(); err != nil {
		return err
	}
	return w.file.Close()
}
