package trace

import (
	"database/sql"
	"fmt"
	"os"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"

	"github.com/sarchlab/netsim/idgen"
	"github.com/tebeka/atexit"
)

// SQLiteWriter stores trace records in a SQLite database.
type SQLiteWriter struct {
	db        *sql.DB
	statement *sql.Stmt

	path      string
	buffer    []Record
	batchSize int
	err       error
}

// NewSQLiteWriter creates a writer for the database at path. An empty path
// picks a unique file name in the working directory.
func NewSQLiteWriter(path string) *SQLiteWriter {
	return &SQLiteWriter{
		path:      path,
		batchSize: 10000,
	}
}

// Path returns the database file name.
func (w *SQLiteWriter) Path() string {
	return w.path
}

// Init creates the database and its table. The database file must not exist.
func (w *SQLiteWriter) Init() error {
	if w.path == "" {
		w.path = idgen.UniqueName("netsim_trace_") + ".sqlite3"
	}

	if _, err := os.Stat(w.path); err == nil {
		return fmt.Errorf("trace database %s already exists", w.path)
	}

	db, err := sql.Open("sqlite3", w.path)
	if err != nil {
		return err
	}
	w.db = db

	_, err = w.db.Exec(`
		create table trace (
			seq   integer primary key autoincrement,
			kind  text    not null,
			time  real    not null,
			node  integer not null,
			link  integer not null,
			bytes integer not null,
			frame integer not null
		);
		create index trace_time on trace (time);
	`)
	if err != nil {
		return err
	}

	w.statement, err = w.db.Prepare(
		"insert into trace (kind, time, node, link, bytes, frame) " +
			"values (?, ?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}

	atexit.Register(func() { _ = w.Close() })

	return nil
}

// Record buffers r and writes the buffer when it is full.
func (w *SQLiteWriter) Record(r Record) {
	w.buffer = append(w.buffer, r)
	if len(w.buffer) >= w.batchSize {
		if err := w.Flush(); err != nil && w.err == nil {
			w.err = err
		}
	}
}

// Flush writes all buffered records in one transaction.
func (w *SQLiteWriter) Flush() error {
	if w.err != nil {
		return w.err
	}

	if len(w.buffer) == 0 || w.db == nil {
		return nil
	}

	tx, err := w.db.Begin()
	if err != nil {
		return err
	}

	stmt := tx.Stmt(w.statement)
	for _, r := range w.buffer {
		_, err := stmt.Exec(string(r.Kind), float64(r.Time),
			int(r.NodeID), int(r.LinkID), r.Bytes, uint64(r.FrameID))
		if err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	w.buffer = nil

	return nil
}

// Close flushes the buffer and closes the database. Calling Close twice is
// safe.
func (w *SQLiteWriter) Close() error {
	if w.db == nil {
		return nil
	}

	err := w.Flush()

	if w.statement != nil {
		_ = w.statement.Close()
	}

	if cerr := w.db.Close(); err == nil {
		err = cerr
	}

	w.db = nil

	return err
}

// ReadSQLite loads every record of a database written by SQLiteWriter in
// recording order.
func ReadSQLite(path string) ([]Record, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.Query(
		"select kind, time, node, link, bytes, frame from trace order by seq")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			r     Record
			kind  string
			frame uint64
		)

		err := rows.Scan(&kind, &r.Time, &r.NodeID, &r.LinkID, &r.Bytes, &frame)
		if err != nil {
			return nil, err
		}

		r.Kind = Kind(kind)
		r.FrameID = idgen.ID(frame)
		records = append(records, r)
	}

	return records, rows.Err()
}
