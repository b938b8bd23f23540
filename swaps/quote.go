package swaps

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// TransactionRequest is the executable payload returned by the aggregator.
type TransactionRequest struct {
	From     common.Address `json:"from"`
	To       common.Address `json:"to"`
	Data     []byte         `json:"data"`
	Value    *big.Int       `json:"value"`
	GasLimit uint64         `json:"gasLimit"`
	GasPrice *big.Int       `json:"gasPrice"`
	ChainID  uint64         `json:"chainId"`
}

// Quote is an immutable aggregator snapshot. The session replaces it wholesale.
type Quote struct {
	ID        string `json:"id"`
	RequestID string `json:"requestId"`
	Tool      string `json:"tool"`

	FromToken   Token    `json:"fromToken"`
	ToToken     Token    `json:"toToken"`
	FromAmount  *big.Int `json:"fromAmount"`
	ToAmount    *big.Int `json:"toAmount"`
	ToAmountMin *big.Int `json:"toAmountMin"`

	// Advisory USD values as reported by the aggregator.
	FromAmountUSD string `json:"fromAmountUSD"`
	ToAmountUSD   string `json:"toAmountUSD"`

	ApprovalSpender    common.Address     `json:"approvalSpender"`
	TransactionRequest TransactionRequest `json:"transactionRequest"`
	ExecutionDuration  time.Duration      `json:"executionDuration"`

	SourceChainID uint64    `json:"sourceChainId"`
	DestChainID   uint64    `json:"destChainId"`
	FetchedAt     time.Time `json:"fetchedAt"`

	// Request is the configuration the quote was fetched for. The transaction
	// request encodes its receiver and minimum output.
	Request SwapRequest `json:"-"`
}

// IsCrossChain returns true if the quote bridges between two chains.
func (q *Quote) IsCrossChain() bool {
	return q.SourceChainID != q.DestChainID
}

// OutputAmount returns toAmount normalized at the output token's precision.
func (q *Quote) OutputAmount() string {
	return FormatUnits(q.ToAmount, q.ToToken.Decimals)
}

// MatchesRequest reports whether the quote was fetched for exactly r: same tokens,
// input amount, receiver, slippage and route preference.
func (q *Quote) MatchesRequest(r SwapRequest) bool {
	if !q.FromToken.Same(r.InputToken) || !q.ToToken.Same(r.OutputToken) {
		return false
	}
	if q.FromAmount == nil || r.InputAmount.Raw == nil || q.FromAmount.Cmp(r.InputAmount.Raw) != 0 {
		return false
	}
	f := q.Request
	return f.Receiver == r.Receiver && f.Slippage == r.Slippage && f.Order == r.Order
}

// BridgeStatus is the aggregator's view of a cross-chain transfer.
type BridgeStatus string

const (
	BridgeNotFound BridgeStatus = "NOT_FOUND"
	BridgeInvalid  BridgeStatus = "INVALID"
	BridgePending  BridgeStatus = "PENDING"
	BridgeDone     BridgeStatus = "DONE"
	BridgeFailed   BridgeStatus = "FAILED"
)

// CrossChainStatus is one polling snapshot.
type CrossChainStatus struct {
	Status           BridgeStatus `json:"status"`
	Substatus        string       `json:"substatus,omitempty"`
	SubstatusMessage string       `json:"substatusMessage,omitempty"`
	ReceivingTxHash  string       `json:"receivingTxHash,omitempty"`
}

// Terminal returns true for DONE and FAILED.
func (s CrossChainStatus) Terminal() bool {
	return s.Status == BridgeDone || s.Status == BridgeFailed
}
