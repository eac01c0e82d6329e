// Package tracing records per-instruction timing tables from finished
// runs, either as CSV files or in a SQLite database.
package tracing

import (
	"github.com/rs/xid"

	"github.com/sarchlab/tomsim/timing/tomasulo"
)

// Record is one instruction's timing row. Cycle values of -1 mean the
// stage was never reached.
type Record struct {
	RunID string
	Seq   int
	Text  string

	IssueCycle    int64
	DispatchCycle int64
	CompleteCycle int64
	WriteCycle    int64
}

// A Writer persists timing records. Writes are buffered; Flush forces
// them out and Close flushes and releases the underlying file or
// database.
type Writer interface {
	Init() error
	Write(Record)
	Flush() error
	Close() error
}

// NewRunID returns a fresh globally unique run identifier.
func NewRunID() string {
	return xid.New().String()
}

// RecordsFromResult converts a run's timing table into records under one
// run id.
func RecordsFromResult(runID string, result *tomasulo.Result) []Record {
	records := make([]Record, 0, len(result.Timings))
	for _, t := range result.Timings {
		records = append(records, Record{
			RunID:         runID,
			Seq:           t.Seq,
			Text:          t.Text,
			IssueCycle:    t.Issue,
			DispatchCycle: t.Dispatch,
			CompleteCycle: t.Complete,
			WriteCycle:    t.Write,
		})
	}
	return records
}
