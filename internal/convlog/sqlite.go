package convlog

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteLog is the embedded-store backend. It keeps the same append-only
// contract as the JSONL backend with insertion order given by the rowid.
type SQLiteLog struct {
	db  *sql.DB
	cap int
}

// OpenSQLite opens (creating if needed) a conversation log database at
// path. cap <= 0 uses DefaultCap.
func OpenSQLite(path string, cap int) (*SQLiteLog, error) {
	if cap <= 0 {
		cap = DefaultCap
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open conversation database: %w", err)
	}
	// Single writer: the log serializes appends per process anyway, and
	// this avoids SQLITE_BUSY on concurrent handler goroutines.
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS conversations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			type TEXT NOT NULL,
			api TEXT NOT NULL,
			model TEXT NOT NULL,
			upstream_model TEXT,
			message TEXT NOT NULL,
			response TEXT NOT NULL,
			usage TEXT,
			timestamp TEXT NOT NULL,
			request_id TEXT NOT NULL
		)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create conversations table: %w", err)
	}
	return &SQLiteLog{db: db, cap: cap}, nil
}

// Append inserts one record and drops the oldest rows above the cap.
func (l *SQLiteLog) Append(r Record) error {
	r.Stamp()

	var usage any
	if r.Usage != nil {
		data, err := json.Marshal(r.Usage)
		if err != nil {
			return fmt.Errorf("marshal usage: %w", err)
		}
		usage = string(data)
	}

	tx, err := l.db.Begin()
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO conversations (type, api, model, upstream_model, message, response, usage, timestamp, request_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Type, r.ProviderID, r.ModelAlias, r.UpstreamModelID,
		r.RequestSummary, r.ResponseText, usage, r.Timestamp, r.RequestID)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}

	// Head compaction, contiguous from the oldest rowid only.
	_, err = tx.Exec(`
		DELETE FROM conversations WHERE id IN (
			SELECT id FROM conversations ORDER BY id DESC LIMIT -1 OFFSET ?
		)`, l.cap)
	if err != nil {
		return fmt.Errorf("compact log: %w", err)
	}
	return tx.Commit()
}

// Load returns records oldest-first.
func (l *SQLiteLog) Load(limit int) ([]Record, error) {
	query := `
		SELECT type, api, model, upstream_model, message, response, usage, timestamp, request_id
		FROM conversations ORDER BY id`
	var rows *sql.Rows
	var err error
	if limit > 0 {
		// Most recent N, returned oldest-first.
		query = `SELECT * FROM (
			SELECT type, api, model, upstream_model, message, response, usage, timestamp, request_id, id
			FROM conversations ORDER BY id DESC LIMIT ?
		) ORDER BY id`
		rows, err = l.db.Query(query, limit)
	} else {
		rows, err = l.db.Query(query)
	}
	if err != nil {
		return nil, fmt.Errorf("load conversations: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var upstream, usage sql.NullString
		var rowid int64
		dest := []any{&r.Type, &r.ProviderID, &r.ModelAlias, &upstream, &r.RequestSummary, &r.ResponseText, &usage, &r.Timestamp, &r.RequestID}
		if limit > 0 {
			dest = append(dest, &rowid)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		r.UpstreamModelID = upstream.String
		if usage.Valid && usage.String != "" {
			var u UsageInfo
			if json.Unmarshal([]byte(usage.String), &u) == nil {
				r.Usage = &u
			}
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Count returns the total number of stored records.
func (l *SQLiteLog) Count() (int, error) {
	var n int
	if err := l.db.QueryRow(`SELECT COUNT(*) FROM conversations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count conversations: %w", err)
	}
	return n, nil
}

func (l *SQLiteLog) Close() error { return l.db.Close() }
