package swaps

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/core/types"
	log "github.com/sirupsen/logrus"
)

const allowanceCacheTTL = 15 * time.Second

// AllowanceState describes the sender's approval for the published quote.
type AllowanceState struct {
	Token      Token          `json:"token"`
	Spender    common.Address `json:"spender"`
	Allowance  string         `json:"allowance"`
	Required   string         `json:"required"`
	Native     bool           `json:"native"`
	Sufficient bool           `json:"sufficient"`
}

// AllowanceManager checks and grants ERC-20 spending approval for the published quote.
type AllowanceManager struct {
	store    *Store
	signer   Signer
	reader   ChainReader
	cache    *Cache[*big.Int]
	infinite bool
}

// NewAllowanceManager creates an allowance manager. With infinite set, approvals are
// granted for the maximum uint256 instead of the quote's input amount.
func NewAllowanceManager(store *Store, signer Signer, reader ChainReader, infinite bool) *AllowanceManager {
	return &AllowanceManager{
		store:    store,
		signer:   signer,
		reader:   reader,
		cache:    NewCache[*big.Int](allowanceCacheTTL),
		infinite: infinite,
	}
}

// usableQuote returns the published quote if it still matches the current request.
func (a *AllowanceManager) usableQuote() (*Quote, error) {
	q := a.store.Quote()
	if q == nil {
		return nil, ErrNoQuote
	}
	if !q.MatchesRequest(a.store.Request()) {
		return nil, ErrStaleQuote
	}
	return q, nil
}

// HasSufficientAllowance reports whether the sender has approved at least the quote's
// input amount to the quote's spender. Native input is always sufficient.
func (a *AllowanceManager) HasSufficientAllowance(ctx context.Context) (bool, error) {
	q, err := a.usableQuote()
	if err != nil {
		return false, err
	}
	if q.FromToken.IsNative() {
		return true, nil
	}

	allowance, err := a.allowance(ctx, q)
	if err != nil {
		return false, err
	}
	return allowance.Cmp(q.FromAmount) >= 0, nil
}

// State returns the full allowance picture for the published quote.
func (a *AllowanceManager) State(ctx context.Context) (AllowanceState, error) {
	q, err := a.usableQuote()
	if err != nil {
		return AllowanceState{}, err
	}

	st := AllowanceState{
		Token:    q.FromToken,
		Spender:  q.ApprovalSpender,
		Required: q.FromAmount.String(),
		Native:   q.FromToken.IsNative(),
	}
	if st.Native {
		st.Sufficient = true
		return st, nil
	}

	allowance, err := a.allowance(ctx, q)
	if err != nil {
		return AllowanceState{}, err
	}
	st.Allowance = allowance.String()
	st.Sufficient = allowance.Cmp(q.FromAmount) >= 0
	return st, nil
}

// Approve submits an approval for the published quote and waits for it to confirm.
// onSuccess runs after confirmation. It returns false, without sending anything,
// when there is no quote or the quote is stale.
func (a *AllowanceManager) Approve(ctx context.Context, onSuccess func()) bool {
	q, err := a.usableQuote()
	if err != nil {
		log.Printf("allowance: refusing approval: %v", err)
		return false
	}
	if q.FromToken.IsNative() {
		if onSuccess != nil {
			onSuccess()
		}
		return true
	}

	amount := new(big.Int).Set(q.FromAmount)
	if a.infinite {
		amount = new(big.Int).Set(math.MaxBig256)
	}

	a.store.setApproval(pendingStatus(common.Hash{}))

	hash, err := a.signer.SendApproval(ctx, q.FromToken.ChainID, q.FromToken.Address, q.ApprovalSpender, amount)
	if err != nil {
		log.Printf("allowance: sending approval for %s: %v", q.FromToken, err)
		a.store.setApproval(errorStatus(common.Hash{}, fmt.Errorf("%w: %v", ErrTransactionFailed, err)))
		return false
	}

	a.store.setApproval(pendingStatus(hash))
	log.WithFields(log.Fields{
		"token":   q.FromToken.String(),
		"spender": q.ApprovalSpender.Hex(),
		"tx":      hash.Hex(),
	}).Info("allowance: approval sent")

	receipt, err := a.reader.WaitForReceipt(ctx, q.FromToken.ChainID, hash)
	if err != nil {
		a.store.setApproval(errorStatus(hash, fmt.Errorf("%w: %v", ErrTransactionFailed, err)))
		return false
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		a.store.setApproval(errorStatus(hash, ErrTransactionFailed))
		return false
	}

	a.cache.Invalidate(allowanceKey(q))
	a.store.setApproval(successStatus(hash))
	log.Printf("allowance: approval confirmed: %s", hash.Hex())

	if onSuccess != nil {
		onSuccess()
	}
	return true
}

func (a *AllowanceManager) allowance(ctx context.Context, q *Quote) (*big.Int, error) {
	return a.cache.GetOrFetch(allowanceKey(q), func() (*big.Int, error) {
		v, err := a.reader.ReadAllowance(ctx, q.FromToken.ChainID, q.FromToken.Address, a.signer.Address(), q.ApprovalSpender)
		if err != nil {
			return nil, fmt.Errorf("reading allowance: %w", err)
		}
		return v, nil
	})
}

func allowanceKey(q *Quote) string {
	return fmt.Sprintf("%d:%s:%s", q.FromToken.ChainID, q.FromToken.Address.Hex(), q.ApprovalSpender.Hex())
}
