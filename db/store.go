package db

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/RaghavSood/crosswap/swaps"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store wraps Queries with connection management and the swap journal.
type Store struct {
	*Queries
	conn *sql.DB
}

var _ swaps.Journal = (*Store)(nil)

func Open(path string) (*Store, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting goose dialect: %w", err)
	}
	if err := goose.Up(conn, "migrations"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{
		Queries: New(conn),
		conn:    conn,
	}, nil
}

func (s *Store) Close() error {
	return s.conn.Close()
}

// RecordAttempt journals a new execution attempt.
func (s *Store) RecordAttempt(ctx context.Context, a swaps.Attempt) error {
	fromToken, err := json.Marshal(a.FromToken)
	if err != nil {
		return err
	}
	toToken, err := json.Marshal(a.ToToken)
	if err != nil {
		return err
	}

	amount := "0"
	if a.FromAmount != nil {
		amount = a.FromAmount.String()
	}

	return s.InsertSwapAttempt(ctx, InsertSwapAttemptParams{
		ID:           a.ID,
		FromChainID:  int64(a.FromChainID),
		ToChainID:    int64(a.ToChainID),
		FromToken:    string(fromToken),
		ToToken:      string(toToken),
		FromAmount:   amount,
		TxHash:       txHashString(a.TxHash),
		Stage:        string(a.Stage),
		Status:       string(a.Status),
		BridgeStatus: string(a.Bridge),
		Message:      a.Message,
		StartedAt:    a.StartedAt.UTC(),
	})
}

// UpdateAttempt stores the attempt's latest progress.
func (s *Store) UpdateAttempt(ctx context.Context, a swaps.Attempt) error {
	return s.UpdateSwapAttempt(ctx, UpdateSwapAttemptParams{
		TxHash:       txHashString(a.TxHash),
		Stage:        string(a.Stage),
		Status:       string(a.Status),
		BridgeStatus: string(a.Bridge),
		Message:      a.Message,
		ID:           a.ID,
	})
}

// PendingBridgeAttempts returns journaled cross-chain attempts that never reached
// a terminal state.
func (s *Store) PendingBridgeAttempts(ctx context.Context) ([]swaps.Attempt, error) {
	rows, err := s.ListPendingBridgeAttempts(ctx)
	if err != nil {
		return nil, err
	}

	attempts := make([]swaps.Attempt, 0, len(rows))
	for _, row := range rows {
		a, err := row.Attempt()
		if err != nil {
			return nil, fmt.Errorf("decoding attempt %s: %w", row.ID, err)
		}
		attempts = append(attempts, a)
	}
	return attempts, nil
}

// Attempt converts the row back into the engine's representation.
func (r SwapAttempt) Attempt() (swaps.Attempt, error) {
	a := swaps.Attempt{
		ID:          r.ID,
		FromChainID: uint64(r.FromChainID),
		ToChainID:   uint64(r.ToChainID),
		Stage:       swaps.Stage(r.Stage),
		Status:      swaps.TxState(r.Status),
		Bridge:      swaps.BridgeStatus(r.BridgeStatus),
		Message:     r.Message,
		StartedAt:   r.StartedAt,
	}
	if err := json.Unmarshal([]byte(r.FromToken), &a.FromToken); err != nil {
		return a, fmt.Errorf("from token: %w", err)
	}
	if err := json.Unmarshal([]byte(r.ToToken), &a.ToToken); err != nil {
		return a, fmt.Errorf("to token: %w", err)
	}
	amount, ok := new(big.Int).SetString(r.FromAmount, 10)
	if !ok {
		return a, fmt.Errorf("invalid from amount %q", r.FromAmount)
	}
	a.FromAmount = amount
	if r.TxHash != "" {
		a.TxHash = common.HexToHash(r.TxHash)
	}
	return a, nil
}

func txHashString(h common.Hash) string {
	if h == (common.Hash{}) {
		return ""
	}
	return h.Hex()
}
