package tracing

import (
	"database/sql"
	"fmt"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"

	"github.com/tebeka/atexit"
)

// SQLiteWriter stores timing records in a SQLite database. Multiple runs
// can share one database; rows are distinguished by their run id.
type SQLiteWriter struct {
	*sql.DB
	statement *sql.Stmt

	dbPath    string
	records   []Record
	batchSize int
}

// NewSQLiteWriter creates a SQLite writer. Passing an empty path picks a
// generated file name.
func NewSQLiteWriter(path string) *SQLiteWriter {
	return &SQLiteWriter{
		dbPath:    path,
		batchSize: 100000,
	}
}

// Init opens the database and prepares the schema.
func (w *SQLiteWriter) Init() error {
	if w.dbPath == "" {
		w.dbPath = "tomsim_trace_" + NewRunID() + ".sqlite3"
	}

	db, err := sql.Open("sqlite3", w.dbPath)
	if err != nil {
		return fmt.Errorf("open trace database: %w", err)
	}
	w.DB = db

	if err := w.createTable(); err != nil {
		return err
	}
	if err := w.prepareStatement(); err != nil {
		return err
	}

	atexit.Register(func() { w.Flush() })

	return nil
}

// Path returns the database file, available after Init.
func (w *SQLiteWriter) Path() string {
	return w.dbPath
}

// Write buffers one record.
func (w *SQLiteWriter) Write(r Record) {
	w.records = append(w.records, r)
	if len(w.records) >= w.batchSize {
		w.Flush()
	}
}

// Flush writes all buffered records in one transaction.
func (w *SQLiteWriter) Flush() error {
	if len(w.records) == 0 {
		return nil
	}

	if _, err := w.Exec("BEGIN TRANSACTION"); err != nil {
		return err
	}

	for _, r := range w.records {
		_, err := w.statement.Exec(
			r.RunID,
			r.Seq,
			r.Text,
			r.IssueCycle,
			r.DispatchCycle,
			r.CompleteCycle,
			r.WriteCycle,
		)
		if err != nil {
			w.Exec("ROLLBACK TRANSACTION")
			return fmt.Errorf("insert record %d: %w", r.Seq, err)
		}
	}

	if _, err := w.Exec("COMMIT TRANSACTION"); err != nil {
		return err
	}

	w.records = nil
	return nil
}

// Close flushes and closes the database.
func (w *SQLiteWriter) Close() error {
	if err := w.Flush(); err != nil {
		return err
	}
	return w.DB.Close()
}

func (w *SQLiteWriter) createTable() error {
	_, err := w.Exec(`
		create table if not exists instruction_trace
		(
			run_id         varchar(200) not null,
			seq            integer      not null,
			instruction    varchar(100) not null,
			issue_cycle    integer,
			dispatch_cycle integer,
			complete_cycle integer,
			write_cycle    integer
		);
	`)
	if err != nil {
		return err
	}

	_, err = w.Exec(`
		create index if not exists instruction_trace_run_id_index
			on instruction_trace (run_id);
	`)
	return err
}

func (w *SQLiteWriter) prepareStatement() error {
	stmt, err := w.Prepare(
		`INSERT INTO instruction_trace VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	w.statement = stmt
	return nil
}

// SQLiteReader reads timing records back from a trace database.
type SQLiteReader struct {
	*sql.DB

	dbPath string
}

// NewSQLiteReader creates a reader over an existing trace database.
func NewSQLiteReader(path string) *SQLiteReader {
	return &SQLiteReader{dbPath: path}
}

// Init opens the database.
func (r *SQLiteReader) Init() error {
	db, err := sql.Open("sqlite3", r.dbPath)
	if err != nil {
		return err
	}
	r.DB = db
	return nil
}

// ListRuns returns the distinct run ids in the database.
func (r *SQLiteReader) ListRuns() ([]string, error) {
	rows, err := r.Query(
		"SELECT DISTINCT run_id FROM instruction_trace ORDER BY run_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		runs = append(runs, id)
	}

	return runs, rows.Err()
}

// ListRecords returns the records of one run in sequence order.
func (r *SQLiteReader) ListRecords(runID string) ([]Record, error) {
	rows, err := r.Query(`
		SELECT run_id, seq, instruction,
			issue_cycle, dispatch_cycle, complete_cycle, write_cycle
		FROM instruction_trace
		WHERE run_id = ?
		ORDER BY seq`,
		runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		err := rows.Scan(
			&rec.RunID,
			&rec.Seq,
			&rec.Text,
			&rec.IssueCycle,
			&rec.DispatchCycle,
			&rec.CompleteCycle,
			&rec.WriteCycle,
		)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}
