package balances

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"

	"github.com/RaghavSood/crosswap/swaps"
)

// Reader reads one on-chain balance; evm.Client satisfies it.
type Reader interface {
	ReadBalance(ctx context.Context, chainID uint64, token, owner common.Address) (*big.Int, error)
}

// Balance is the last observed balance of one token for one owner.
type Balance struct {
	Owner     string      `json:"owner"`
	Token     swaps.Token `json:"token"`
	Raw       string      `json:"raw"`
	Display   string      `json:"display"`
	UpdatedAt time.Time   `json:"updated_at"`
}

type key struct {
	chainID uint64
	token   common.Address
	owner   common.Address
}

// Book keeps the balances shown to the user, refreshed on demand.
type Book struct {
	reader Reader

	mu      sync.RWMutex
	entries map[key]Balance
}

var _ swaps.BalanceRefresher = (*Book)(nil)

func NewBook(reader Reader) *Book {
	return &Book{
		reader:  reader,
		entries: make(map[key]Balance),
	}
}

// Refresh re-reads every distinct token for owner. Tokens that fail to read keep
// their previous value; the errors are joined.
func (b *Book) Refresh(ctx context.Context, owner common.Address, tokens ...swaps.Token) error {
	seen := make(map[key]bool, len(tokens))
	var errs []error

	for _, tok := range tokens {
		if tok.IsZero() {
			continue
		}
		k := key{chainID: tok.ChainID, token: tok.Address, owner: owner}
		if seen[k] {
			continue
		}
		seen[k] = true

		raw, err := b.reader.ReadBalance(ctx, tok.ChainID, tok.Address, owner)
		if err != nil {
			errs = append(errs, fmt.Errorf("reading %s balance: %w", tok, err))
			continue
		}

		b.mu.Lock()
		b.entries[k] = Balance{
			Owner:     owner.Hex(),
			Token:     tok,
			Raw:       raw.String(),
			Display:   swaps.FormatUnits(raw, tok.Decimals),
			UpdatedAt: time.Now(),
		}
		b.mu.Unlock()
	}

	log.WithField("owner", owner.Hex()).Debugf("balances: refreshed %d token(s)", len(seen))
	return errors.Join(errs...)
}

// Get returns the last observed balance of tok for owner.
func (b *Book) Get(owner common.Address, tok swaps.Token) (Balance, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	bal, ok := b.entries[key{chainID: tok.ChainID, token: tok.Address, owner: owner}]
	return bal, ok
}

// All returns every known balance ordered by chain then token.
func (b *Book) All() []Balance {
	b.mu.RLock()
	out := make([]Balance, 0, len(b.entries))
	for _, bal := range b.entries {
		out = append(out, bal)
	}
	b.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Token.ChainID != out[j].Token.ChainID {
			return out[i].Token.ChainID < out[j].Token.ChainID
		}
		if out[i].Token.Address != out[j].Token.Address {
			return out[i].Token.Address.Hex() < out[j].Token.Address.Hex()
		}
		return out[i].Owner < out[j].Owner
	})
	return out
}
