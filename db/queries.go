package db

import (
	"context"
	"database/sql"
	"time"
)

const insertAPIRequest = `
INSERT INTO api_requests (
    provider, method, url, request_headers, request_body,
    response_status, response_headers, response_body, error, duration_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

type InsertAPIRequestParams struct {
	Provider        string
	Method          string
	Url             string
	RequestHeaders  sql.NullString
	RequestBody     sql.NullString
	ResponseStatus  sql.NullInt64
	ResponseHeaders sql.NullString
	ResponseBody    sql.NullString
	Error           sql.NullString
	DurationMs      sql.NullInt64
}

func (q *Queries) InsertAPIRequest(ctx context.Context, arg InsertAPIRequestParams) error {
	_, err := q.db.ExecContext(ctx, insertAPIRequest,
		arg.Provider,
		arg.Method,
		arg.Url,
		arg.RequestHeaders,
		arg.RequestBody,
		arg.ResponseStatus,
		arg.ResponseHeaders,
		arg.ResponseBody,
		arg.Error,
		arg.DurationMs,
	)
	return err
}

const listRecentAPIRequests = `
SELECT id, provider, method, url, request_headers, request_body, response_status,
       response_headers, response_body, error, duration_ms, created_at
FROM api_requests
ORDER BY id DESC
LIMIT ?
`

func (q *Queries) ListRecentAPIRequests(ctx context.Context, limit int64) ([]ApiRequest, error) {
	rows, err := q.db.QueryContext(ctx, listRecentAPIRequests, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []ApiRequest
	for rows.Next() {
		var i ApiRequest
		if err := rows.Scan(
			&i.ID,
			&i.Provider,
			&i.Method,
			&i.Url,
			&i.RequestHeaders,
			&i.RequestBody,
			&i.ResponseStatus,
			&i.ResponseHeaders,
			&i.ResponseBody,
			&i.Error,
			&i.DurationMs,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const insertSwapAttempt = `
INSERT INTO swap_attempts (
    id, from_chain_id, to_chain_id, from_token, to_token, from_amount,
    tx_hash, stage, status, bridge_status, message, started_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

type InsertSwapAttemptParams struct {
	ID           string
	FromChainID  int64
	ToChainID    int64
	FromToken    string
	ToToken      string
	FromAmount   string
	TxHash       string
	Stage        string
	Status       string
	BridgeStatus string
	Message      string
	StartedAt    time.Time
}

func (q *Queries) InsertSwapAttempt(ctx context.Context, arg InsertSwapAttemptParams) error {
	_, err := q.db.ExecContext(ctx, insertSwapAttempt,
		arg.ID,
		arg.FromChainID,
		arg.ToChainID,
		arg.FromToken,
		arg.ToToken,
		arg.FromAmount,
		arg.TxHash,
		arg.Stage,
		arg.Status,
		arg.BridgeStatus,
		arg.Message,
		arg.StartedAt,
		time.Now().UTC(),
	)
	return err
}

const updateSwapAttempt = `
UPDATE swap_attempts
SET tx_hash = ?, stage = ?, status = ?, bridge_status = ?, message = ?, updated_at = ?
WHERE id = ?
`

type UpdateSwapAttemptParams struct {
	TxHash       string
	Stage        string
	Status       string
	BridgeStatus string
	Message      string
	ID           string
}

func (q *Queries) UpdateSwapAttempt(ctx context.Context, arg UpdateSwapAttemptParams) error {
	_, err := q.db.ExecContext(ctx, updateSwapAttempt,
		arg.TxHash,
		arg.Stage,
		arg.Status,
		arg.BridgeStatus,
		arg.Message,
		time.Now().UTC(),
		arg.ID,
	)
	return err
}

const swapAttemptColumns = `id, from_chain_id, to_chain_id, from_token, to_token, from_amount,
       tx_hash, stage, status, bridge_status, message, started_at, updated_at`

const getSwapAttempt = `SELECT ` + swapAttemptColumns + ` FROM swap_attempts WHERE id = ?`

func (q *Queries) GetSwapAttempt(ctx context.Context, id string) (SwapAttempt, error) {
	row := q.db.QueryRowContext(ctx, getSwapAttempt, id)
	var i SwapAttempt
	err := scanSwapAttempt(row, &i)
	return i, err
}

const listPendingBridgeAttempts = `SELECT ` + swapAttemptColumns + `
FROM swap_attempts
WHERE status = 'pending'
  AND tx_hash != ''
  AND from_chain_id != to_chain_id
  AND stage IN ('confirming', 'cross_chain_polling')
ORDER BY started_at ASC
`

func (q *Queries) ListPendingBridgeAttempts(ctx context.Context) ([]SwapAttempt, error) {
	return q.listSwapAttempts(ctx, listPendingBridgeAttempts)
}

const listRecentSwapAttempts = `SELECT ` + swapAttemptColumns + `
FROM swap_attempts
ORDER BY started_at DESC
LIMIT ?
`

func (q *Queries) ListRecentSwapAttempts(ctx context.Context, limit int64) ([]SwapAttempt, error) {
	return q.listSwapAttempts(ctx, listRecentSwapAttempts, limit)
}

func (q *Queries) listSwapAttempts(ctx context.Context, query string, args ...interface{}) ([]SwapAttempt, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []SwapAttempt
	for rows.Next() {
		var i SwapAttempt
		if err := scanSwapAttempt(rows, &i); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSwapAttempt(row scanner, i *SwapAttempt) error {
	return row.Scan(
		&i.ID,
		&i.FromChainID,
		&i.ToChainID,
		&i.FromToken,
		&i.ToToken,
		&i.FromAmount,
		&i.TxHash,
		&i.Stage,
		&i.Status,
		&i.BridgeStatus,
		&i.Message,
		&i.StartedAt,
		&i.UpdatedAt,
	)
}
