package repository

import (
	"context"
	"time"

	"github.com/semflow/inference-gateway/internal/models"
	"github.com/semflow/inference-gateway/internal/store"
)

// SQLiteRepository implements Repository interface using SQLite
type SQLiteRepository struct {
	db          *store.DB
	requestRepo RequestRepositoryInterface
	eventRepo   EventRepositoryInterface
}

func NewSQLiteRepository(db *store.DB) Repository {
	return &SQLiteRepository{
		db:          db,
		requestRepo: &SQLiteRequestRepository{db: db},
		eventRepo:   &SQLiteEventRepository{db: db},
	}
}

func (r *SQLiteRepository) Request() RequestRepositoryInterface {
	return r.requestRepo
}

func (r *SQLiteRepository) Event() EventRepositoryInterface {
	return r.eventRepo
}

// SQLiteRequestRepository handles request logging
type SQLiteRequestRepository struct {
	db *store.DB
}

func (r *SQLiteRequestRepository) LogRequest(ctx context.Context, req *models.RequestLog) error {
	r.db.Req(
		req.Timestamp,
		req.TraceID,
		req.ReqID,
		req.WorkerID,
		req.Source,
		req.TextCount,
		req.MaxTextLen,
		req.BatchSize,
		req.BatchCount,
		req.EmbeddingSize,
		req.EmbeddingCount,
		req.MemBeforeMB,
		req.MemAfterMB,
		time.Duration(req.DurationMs)*time.Millisecond,
		req.Status,
		req.Error,
	)
	return nil
}

func (r *SQLiteRequestRepository) GetRequestLogs(ctx context.Context, limit int) ([]*models.RequestLog, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT ts,trace_id,req_id,worker_id,source,text_count,max_text_len,batch_size,batch_count,embedding_size,embedding_count,mem_before_mb,mem_after_mb,dur_ms,status,error FROM requests ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []*models.RequestLog
	for rows.Next() {
		var entry models.RequestLog
		var tsFloat float64
		var durMs float64

		if err := rows.Scan(
			&tsFloat, &entry.TraceID, &entry.ReqID, &entry.WorkerID, &entry.Source,
			&entry.TextCount, &entry.MaxTextLen, &entry.BatchSize, &entry.BatchCount,
			&entry.EmbeddingSize, &entry.EmbeddingCount,
			&entry.MemBeforeMB, &entry.MemAfterMB, &durMs, &entry.Status, &entry.Error,
		); err == nil {
			entry.Timestamp = time.Unix(0, int64(tsFloat*1e9))
			entry.DurationMs = int64(durMs)
			logs = append(logs, &entry)
		}
	}
	return logs, rows.Err()
}

// SQLiteEventRepository handles event logging
type SQLiteEventRepository struct {
	db *store.DB
}

func (r *SQLiteEventRepository) LogEvent(ctx context.Context, level, code, msg string, meta map[string]interface{}) error {
	r.db.Event(level, code, msg, meta)
	return nil
}
