package db

import (
	"context"
	"database/sql"
	"time"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	PrepareContext(context.Context, string) (*sql.Stmt, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type ApiRequest struct {
	ID              int64
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
	CreatedAt       time.Time
}

type SwapAttempt struct {
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
	UpdatedAt    time.Time
}
