package swaps

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// QuoteParams is the normalized request sent to the aggregator.
type QuoteParams struct {
	FromChain   uint64
	ToChain     uint64
	FromToken   common.Address
	ToToken     common.Address
	FromAmount  *big.Int
	FromAddress common.Address
	ToAddress   common.Address
	Slippage    float64
	Order       RoutePreference
}

// QuoteClient is the remote aggregator: one quote call and one status call, no loops.
type QuoteClient interface {
	// FetchQuote returns a quote or a *QuoteError. Cancellation of ctx is
	// reported with Kind == KindCanceled.
	FetchQuote(ctx context.Context, params QuoteParams) (*Quote, error)

	// FetchStatus returns the bridge status of a source-chain transaction.
	FetchStatus(ctx context.Context, fromChain, toChain uint64, txHash common.Hash) (CrossChainStatus, error)
}

// Signer is the wallet capability: it owns the sender account and the active chain.
type Signer interface {
	Address() common.Address

	// ActiveChainID returns the chain the signer currently sends on.
	ActiveChainID(ctx context.Context) (uint64, error)

	// SwitchChain changes the active chain.
	SwitchChain(ctx context.Context, chainID uint64) error

	// SignAndSend signs tx with the given gas limit and broadcasts it.
	SignAndSend(ctx context.Context, tx TransactionRequest, gas uint64) (common.Hash, error)

	// SendApproval broadcasts an ERC-20 approve(spender, amount) on chainID.
	SendApproval(ctx context.Context, chainID uint64, token, spender common.Address, amount *big.Int) (common.Hash, error)
}

// ChainReader is the read side of the chain capability.
type ChainReader interface {
	EstimateGas(ctx context.Context, tx TransactionRequest) (uint64, error)
	WaitForReceipt(ctx context.Context, chainID uint64, txHash common.Hash) (*types.Receipt, error)
	ReadAllowance(ctx context.Context, chainID uint64, token, owner, spender common.Address) (*big.Int, error)
	ReadBalance(ctx context.Context, chainID uint64, token, owner common.Address) (*big.Int, error)
}

// BalanceRefresher re-reads the balances shown to the user.
type BalanceRefresher interface {
	Refresh(ctx context.Context, owner common.Address, tokens ...Token) error
}

// Attempt is a journaled execution attempt.
type Attempt struct {
	ID          string
	FromChainID uint64
	ToChainID   uint64
	FromToken   Token
	ToToken     Token
	FromAmount  *big.Int
	TxHash      common.Hash
	Stage       Stage
	Status      TxState
	Bridge      BridgeStatus
	Message     string
	StartedAt   time.Time
}

// Journal persists execution attempts so interrupted bridge transfers can be resumed.
type Journal interface {
	RecordAttempt(ctx context.Context, a Attempt) error
	UpdateAttempt(ctx context.Context, a Attempt) error
}
