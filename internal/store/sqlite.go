package store

import (
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

type DB struct {
	*sql.DB
}

func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	// Create events table
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS events(
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ts REAL,
		level TEXT,
		code TEXT,
		msg TEXT,
		meta TEXT
	)`); err != nil {
		return nil, err
	}

	// Create requests table with per-request batch and memory stats
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS requests(
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ts REAL,
		trace_id TEXT,
		req_id TEXT,
		worker_id TEXT,
		source TEXT,
		text_count INTEGER,
		max_text_len INTEGER,
		batch_size INTEGER,
		batch_count INTEGER,
		embedding_size INTEGER,
		embedding_count INTEGER,
		mem_before_mb REAL,
		mem_after_mb REAL,
		dur_ms REAL,
		status TEXT,
		error TEXT
	)`); err != nil {
		return nil, err
	}

	return &DB{db}, nil
}

func (db *DB) Event(level, code, msg string, meta map[string]interface{}) {
	m := ""
	if meta != nil {
		b, _ := json.Marshal(meta)
		m = string(b)
	}
	_, _ = db.Exec(`INSERT INTO events(ts,level,code,msg,meta) VALUES(?,?,?,?,?)`,
		float64(time.Now().UnixNano())/1e9, level, code, msg, m)
}

func (db *DB) Req(start time.Time, traceID, reqID, workerID, source string,
	textCount, maxTextLen, batchSize, batchCount, embeddingSize, embeddingCount int,
	memBeforeMB, memAfterMB float64, dur time.Duration, status, errStr string) {
	_, _ = db.Exec(`INSERT INTO requests(
		ts, trace_id, req_id, worker_id, source, text_count, max_text_len, batch_size, batch_count, embedding_size, embedding_count, mem_before_mb, mem_after_mb, dur_ms, status, error)
		VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		float64(start.UnixNano())/1e9, traceID, reqID, workerID, source,
		textCount, maxTextLen, batchSize, batchCount, embeddingSize, embeddingCount,
		memBeforeMB, memAfterMB, float64(dur.Milliseconds()), status, errStr)
}
