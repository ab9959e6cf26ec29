package tracing

import (
	"database/sql"
	"fmt"
	"os"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/rs/xid"
	"github.com/tebeka/atexit"
)

const (
	createStagesSQL = `CREATE TABLE trace_stages (
	ID INTEGER PRIMARY KEY,
	Description TEXT
);`
	createRecordsSQL = `CREATE TABLE trace_records (
	ID INTEGER PRIMARY KEY,
	Disassembly TEXT
);`
	createEventsSQL = `CREATE TABLE trace_events (
	ID INTEGER,
	Cycle INTEGER,
	Stage INTEGER
);`

	insertStageSQL  = "INSERT INTO trace_stages VALUES (?, ?)"
	insertRecordSQL = "INSERT INTO trace_records VALUES (?, ?)"
	insertEventSQL  = "INSERT INTO trace_events VALUES (?, ?, ?)"
)

// SQLiteWriter stores trace entries in a SQLite database. Entries are buffered
// and inserted in one transaction per batch.
type SQLiteWriter struct {
	*sql.DB

	dbName    string
	batchSize int
	buffer    []Entry
	err       error
}

// NewSQLiteWriter creates a writer that stores the trace in
// <path>.sqlite3. A unique name is generated if path is empty.
func NewSQLiteWriter(path string) *SQLiteWriter {
	return &SQLiteWriter{
		dbName:    path,
		batchSize: 100000,
	}
}

// WithBatchSize sets the number of entries buffered before they are inserted.
func (w *SQLiteWriter) WithBatchSize(n int) *SQLiteWriter {
	if n < 1 {
		panic("batch size must be at least 1")
	}

	w.batchSize = n

	return w
}

// Filename returns the name of the database file.
func (w *SQLiteWriter) Filename() string {
	return w.dbName + ".sqlite3"
}

// Init creates the database and the trace tables. It refuses to overwrite an
// existing file. The writer is closed when the program exits through atexit.
func (w *SQLiteWriter) Init() error {
	if w.dbName == "" {
		w.dbName = "pipesim_trace_" + xid.New().String()
	}

	filename := w.Filename()

	_, err := os.Stat(filename)
	if err == nil {
		return errors.Errorf("file %s already exists", filename)
	}

	db, err := sql.Open("sqlite3", filename)
	if err != nil {
		return errors.Wrap(err, "opening trace database")
	}

	w.DB = db

	for _, q := range []string{createStagesSQL, createRecordsSQL, createEventsSQL} {
		if _, err := w.Exec(q); err != nil {
			return errors.Wrapf(err, "failed to execute %q", q)
		}
	}

	fmt.Fprintf(os.Stderr, "Database created for tracing: %s\n", filename)

	atexit.Register(func() {
		if err := w.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to flush trace database: %v\n", err)
		}
	})

	return nil
}

// Write buffers an entry. A failure while inserting a full batch is reported
// by the next call to Flush.
func (w *SQLiteWriter) Write(e Entry) {
	w.buffer = append(w.buffer, e)

	if len(w.buffer) >= w.batchSize {
		if err := w.flushBuffer(); err != nil && w.err == nil {
			w.err = err
		}
	}
}

// Flush inserts every buffered entry.
func (w *SQLiteWriter) Flush() error {
	if w.err != nil {
		err := w.err
		w.err = nil

		return err
	}

	return w.flushBuffer()
}

// Close flushes the buffered entries and closes the database. The database is
// closed even if the flush fails. Closing twice is a no-op.
func (w *SQLiteWriter) Close() error {
	if w.DB == nil {
		return nil
	}

	flushErr := w.Flush()
	closeErr := w.DB.Close()
	w.DB = nil

	if flushErr != nil {
		return flushErr
	}

	return errors.Wrap(closeErr, "closing trace database")
}

func (w *SQLiteWriter) flushBuffer() (err error) {
	if len(w.buffer) == 0 {
		return nil
	}

	if w.DB == nil {
		return errors.New("trace database is not initialized")
	}

	tx, err := w.Begin()
	if err != nil {
		return errors.Wrap(err, "beginning trace transaction")
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmts, err := prepareInserts(tx)
	if err != nil {
		return err
	}

	defer func() {
		for _, s := range stmts {
			s.Close()
		}
	}()

	for _, e := range w.buffer {
		if err := insertEntry(stmts, e); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "committing trace transaction")
	}

	w.buffer = nil

	return nil
}

func prepareInserts(tx *sql.Tx) (map[EntryKind]*sql.Stmt, error) {
	queries := map[EntryKind]string{
		KindStage:  insertStageSQL,
		KindRecord: insertRecordSQL,
		KindEvent:  insertEventSQL,
	}

	stmts := make(map[EntryKind]*sql.Stmt, len(queries))
	for kind, q := range queries {
		s, err := tx.Prepare(q)
		if err != nil {
			for _, prepared := range stmts {
				prepared.Close()
			}

			return nil, errors.Wrapf(err, "preparing %q", q)
		}

		stmts[kind] = s
	}

	return stmts, nil
}

func insertEntry(stmts map[EntryKind]*sql.Stmt, e Entry) error {
	var err error

	switch e.Kind {
	case KindStage:
		_, err = stmts[KindStage].Exec(int64(e.ID), e.Description)
	case KindRecord:
		_, err = stmts[KindRecord].Exec(int64(e.ID), e.Disassembly)
	case KindEvent:
		_, err = stmts[KindEvent].Exec(int64(e.ID), int64(e.Cycle), int(e.Stage))
	default:
		err = errors.Errorf("unknown trace entry kind %q", e.Kind)
	}

	return errors.Wrapf(err, "inserting %s entry %d", e.Kind, e.ID)
}
