package telix

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// EventDatabase is the abstract per-identifier append/iterate collaborator.
// It owns two logically disjoint keyspaces — management events
// keyed by registry IdentifierPrefix, VC events keyed by credential
// IdentifierPrefix — and guarantees append-only, durable, restartable
// iteration in insertion order. Implementations must surface every failure;
// none may drop writes silently.
type EventDatabase interface {
	AddNewManagementEvent(id IdentifierPrefix, raw []byte) error
	AddNewEvent(vcID IdentifierPrefix, raw []byte) error
	IterManagementEvents(id IdentifierPrefix) ([][]byte, error)
	IterEvents(vcID IdentifierPrefix) ([][]byte, error)
	Close() error
}

// ---- file-backed EventDatabase ----------------------------------------

// fileEventDatabase persists each identifier's stream as a flat append-only
// file of length-prefixed records, one directory per keyspace. Grounded on
// securelog's file store: a single growable file per identifier, fsynced on
// every append, read back by streaming length-prefixed records rather than
// relying on any delimiter inside the record bytes (TEL records are
// themselves self-describing, but the length prefix keeps record boundaries
// cheap to recover without re-parsing SerializationInfo on every read).
type fileEventDatabase struct {
	mgmtDir string
	vcDir   string
	mu      sync.Mutex
}

// OpenFileEventDatabase creates (if absent) the management/ and vc/
// subdirectories of dir and returns an EventDatabase backed by them.
func OpenFileEventDatabase(dir string) (EventDatabase, error) {
	mgmtDir := filepath.Join(dir, "management")
	vcDir := filepath.Join(dir, "vc")
	if err := os.MkdirAll(mgmtDir, 0700); err != nil {
		return nil, fmt.Errorf("telix: create management directory: %w", err)
	}
	if err := os.MkdirAll(vcDir, 0700); err != nil {
		return nil, fmt.Errorf("telix: create vc directory: %w", err)
	}
	return &fileEventDatabase{mgmtDir: mgmtDir, vcDir: vcDir}, nil
}

func identifierFileName(id IdentifierPrefix) string {
	s := id.String()
	if s == "" {
		s = "_default"
	}
	return s + ".log"
}

func appendLengthPrefixed(path string, raw []byte) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("telix: open event stream: %w", err)
	}
	defer f.Close()

	var lenBuf [4]byte
	n := len(raw)
	lenBuf[0] = byte(n >> 24)
	lenBuf[1] = byte(n >> 16)
	lenBuf[2] = byte(n >> 8)
	lenBuf[3] = byte(n)

	if _, err := f.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("telix: write record length: %w", err)
	}
	if _, err := f.Write(raw); err != nil {
		return fmt.Errorf("telix: write record: %w", err)
	}
	return f.Sync()
}

func readLengthPrefixed(path string) ([][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("telix: open event stream: %w", err)
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	var out [][]byte
	for {
		var lenBuf [4]byte
		if _, err := readFull(reader, lenBuf[:]); err != nil {
			if errors.Is(err, errEOF) {
				break
			}
			return nil, fmt.Errorf("telix: read record length: %w", err)
		}
		n := int(lenBuf[0])<<24 | int(lenBuf[1])<<16 | int(lenBuf[2])<<8 | int(lenBuf[3])
		rec := make([]byte, n)
		if _, err := readFull(reader, rec); err != nil {
			return nil, fmt.Errorf("telix: read record body: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

var errEOF = errors.New("telix: eof")

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			if total == 0 {
				return total, errEOF
			}
			return total, fmt.Errorf("telix: truncated record: %w", err)
		}
	}
	return total, nil
}

func (db *fileEventDatabase) AddNewManagementEvent(id IdentifierPrefix, raw []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return appendLengthPrefixed(filepath.Join(db.mgmtDir, identifierFileName(id)), raw)
}

func (db *fileEventDatabase) AddNewEvent(vcID IdentifierPrefix, raw []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return appendLengthPrefixed(filepath.Join(db.vcDir, identifierFileName(vcID)), raw)
}

func (db *fileEventDatabase) IterManagementEvents(id IdentifierPrefix) ([][]byte, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return readLengthPrefixed(filepath.Join(db.mgmtDir, identifierFileName(id)))
}

func (db *fileEventDatabase) IterEvents(vcID IdentifierPrefix) ([][]byte, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return readLengthPrefixed(filepath.Join(db.vcDir, identifierFileName(vcID)))
}

func (db *fileEventDatabase) Close() error { return nil }

// ---- SQLite-backed EventDatabase --------------------------------------

// sqliteEventDatabase keeps the two keyspaces as two tables, each ordering an
// identifier's records by a seq column scoped per identifier, grounded on
// securelog's sqliteStore: WAL journaling, a serializable append transaction
// that assigns the next seq (MAX(seq)+1, or 0 for a new identifier), and
// plain ascending-order SELECTs for iteration.
type sqliteEventDatabase struct{ db *sql.DB }

// OpenSQLiteEventDatabase opens/creates a SQLite database at dsn and ensures
// the management_events/vc_events schema exists.
func OpenSQLiteEventDatabase(dsn string) (EventDatabase, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("telix: open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("telix: ping sqlite database: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=FULL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("telix: set %s: %w", pragma, err)
		}
	}
	schema := `
CREATE TABLE IF NOT EXISTS management_events (
  id    TEXT    NOT NULL,
  seq   INTEGER NOT NULL,
  raw   BLOB    NOT NULL,
  PRIMARY KEY (id, seq)
);
CREATE TABLE IF NOT EXISTS vc_events (
  vc_id TEXT    NOT NULL,
  seq   INTEGER NOT NULL,
  raw   BLOB    NOT NULL,
  PRIMARY KEY (vc_id, seq)
);
`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("telix: apply schema: %w", err)
	}
	return &sqliteEventDatabase{db: db}, nil
}

func (db *sqliteEventDatabase) appendTo(ctx context.Context, table, keyCol string, key string, raw []byte) error {
	tx, err := db.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("telix: begin append transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var nextSeq sql.NullInt64
	q := fmt.Sprintf(`SELECT COALESCE(MAX(seq), -1) + 1 FROM %s WHERE %s = ?`, table, keyCol)
	if err := tx.QueryRowContext(ctx, q, key).Scan(&nextSeq.Int64); err != nil {
		return fmt.Errorf("telix: read next sequence: %w", err)
	}

	ins := fmt.Sprintf(`INSERT INTO %s (%s, seq, raw) VALUES (?, ?, ?)`, table, keyCol)
	if _, err := tx.ExecContext(ctx, ins, key, nextSeq.Int64, raw); err != nil {
		return fmt.Errorf("telix: insert event: %w", err)
	}
	return tx.Commit()
}

func (db *sqliteEventDatabase) AddNewManagementEvent(id IdentifierPrefix, raw []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return db.appendTo(ctx, "management_events", "id", id.String(), raw)
}

func (db *sqliteEventDatabase) AddNewEvent(vcID IdentifierPrefix, raw []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return db.appendTo(ctx, "vc_events", "vc_id", vcID.String(), raw)
}

func (db *sqliteEventDatabase) iterFrom(table, keyCol, key string) ([][]byte, error) {
	q := fmt.Sprintf(`SELECT raw FROM %s WHERE %s = ? ORDER BY seq ASC`, table, keyCol)
	rows, err := db.db.Query(q, key)
	if err != nil {
		return nil, fmt.Errorf("telix: query events: %w", err)
	}
	defer rows.Close()
	var out [][]byte
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("telix: scan event: %w", err)
		}
		out = append(out, raw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("telix: iterate events: %w", err)
	}
	return out, nil
}

func (db *sqliteEventDatabase) IterManagementEvents(id IdentifierPrefix) ([][]byte, error) {
	return db.iterFrom("management_events", "id", id.String())
}

func (db *sqliteEventDatabase) IterEvents(vcID IdentifierPrefix) ([][]byte, error) {
	return db.iterFrom("vc_events", "vc_id", vcID.String())
}

func (db *sqliteEventDatabase) Close() error { return db.db.Close() }
