package swaps

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var (
	sender = common.HexToAddress("0x1111111111111111111111111111111111111111")
	router = common.HexToAddress("0x1231DEB6f5749EF6cE6943a275A1D3E7486F4EaE")

	usdcMainnet  = Token{ChainID: 1, Address: common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"), Symbol: "USDC", Decimals: 6}
	usdtMainnet  = Token{ChainID: 1, Address: common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7"), Symbol: "USDT", Decimals: 6}
	usdtOptimism = Token{ChainID: 10, Address: common.HexToAddress("0x94b008aA00579c1307B0EF2c499aD98a8ce58e58"), Symbol: "USDT", Decimals: 6}
	ethMainnet   = NativeToken(1, "ETH")
)

// quoteFor builds the quote an aggregator would return for p, paying out
// 99.5% of the input at the output token's precision.
func quoteFor(p QuoteParams, from, to Token) *Quote {
	out := new(big.Int).Mul(p.FromAmount, big.NewInt(995))
	out.Div(out, big.NewInt(1000))
	return &Quote{
		ID:              "quote-" + p.FromAmount.String(),
		Tool:            "stargate",
		FromToken:       from,
		ToToken:         to,
		FromAmount:      new(big.Int).Set(p.FromAmount),
		ToAmount:        out,
		ToAmountMin:     out,
		ApprovalSpender: router,
		TransactionRequest: TransactionRequest{
			To:       router,
			Data:     []byte{0xde, 0xad, 0xbe, 0xef},
			Value:    new(big.Int),
			GasLimit: 150000,
			ChainID:  from.ChainID,
		},
		SourceChainID: from.ChainID,
		DestChainID:   to.ChainID,
	}
}

type fakeQuoteClient struct {
	mu     sync.Mutex
	quotes []QuoteParams
	fetch  func(ctx context.Context, p QuoteParams) (*Quote, error)

	statuses   []CrossChainStatus
	statusErrs []error
	polls      int
}

func (f *fakeQuoteClient) FetchQuote(ctx context.Context, p QuoteParams) (*Quote, error) {
	f.mu.Lock()
	f.quotes = append(f.quotes, p)
	fetch := f.fetch
	f.mu.Unlock()
	return fetch(ctx, p)
}

func (f *fakeQuoteClient) FetchStatus(ctx context.Context, fromChain, toChain uint64, txHash common.Hash) (CrossChainStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.polls
	f.polls++
	if i < len(f.statusErrs) && f.statusErrs[i] != nil {
		return CrossChainStatus{}, f.statusErrs[i]
	}
	if i >= len(f.statuses) {
		return CrossChainStatus{Status: BridgePending}, nil
	}
	return f.statuses[i], nil
}

func (f *fakeQuoteClient) quoteCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.quotes)
}

func (f *fakeQuoteClient) pollCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls
}

type approval struct {
	chainID uint64
	token   common.Address
	spender common.Address
	amount  *big.Int
}

type fakeSigner struct {
	mu        sync.Mutex
	active    uint64
	switchErr error
	sendErr   error
	switches  []uint64
	sent      []TransactionRequest
	gasUsed   []uint64
	approvals []approval
}

func (f *fakeSigner) Address() common.Address { return sender }

func (f *fakeSigner) ActiveChainID(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active, nil
}

func (f *fakeSigner) SwitchChain(ctx context.Context, chainID uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.switches = append(f.switches, chainID)
	if f.switchErr != nil {
		return f.switchErr
	}
	f.active = chainID
	return nil
}

func (f *fakeSigner) SignAndSend(ctx context.Context, tx TransactionRequest, gas uint64) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return common.Hash{}, f.sendErr
	}
	f.sent = append(f.sent, tx)
	f.gasUsed = append(f.gasUsed, gas)
	return common.HexToHash("0xabc1"), nil
}

func (f *fakeSigner) SendApproval(ctx context.Context, chainID uint64, token, spender common.Address, amount *big.Int) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return common.Hash{}, f.sendErr
	}
	f.approvals = append(f.approvals, approval{chainID, token, spender, amount})
	return common.HexToHash("0xa991"), nil
}

type fakeReader struct {
	mu             sync.Mutex
	gas            uint64
	gasErr         error
	receiptStatus  uint64
	receiptErr     error
	receiptWait    chan struct{}
	allowance      *big.Int
	allowanceCalls int
}

func newFakeReader() *fakeReader {
	return &fakeReader{gas: 100000, receiptStatus: types.ReceiptStatusSuccessful, allowance: new(big.Int)}
}

func (f *fakeReader) EstimateGas(ctx context.Context, tx TransactionRequest) (uint64, error) {
	return f.gas, f.gasErr
}

func (f *fakeReader) WaitForReceipt(ctx context.Context, chainID uint64, txHash common.Hash) (*types.Receipt, error) {
	if f.receiptWait != nil {
		select {
		case <-f.receiptWait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.receiptErr != nil {
		return nil, f.receiptErr
	}
	return &types.Receipt{Status: f.receiptStatus, TxHash: txHash}, nil
}

func (f *fakeReader) ReadAllowance(ctx context.Context, chainID uint64, token, owner, spender common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.allowanceCalls++
	return new(big.Int).Set(f.allowance), nil
}

func (f *fakeReader) ReadBalance(ctx context.Context, chainID uint64, token, owner common.Address) (*big.Int, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeReader) setAllowance(v *big.Int) {
	f.mu.Lock()
	f.allowance = v
	f.mu.Unlock()
}

func (f *fakeReader) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.allowanceCalls
}

type fakeBalances struct {
	mu      sync.Mutex
	calls   int
	refresh [][]Token
}

func (f *fakeBalances) Refresh(ctx context.Context, owner common.Address, tokens ...Token) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.refresh = append(f.refresh, tokens)
	return nil
}

type fakeJournal struct {
	mu       sync.Mutex
	recorded []Attempt
	updates  []Attempt
}

func (f *fakeJournal) RecordAttempt(ctx context.Context, a Attempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recorded = append(f.recorded, a)
	return nil
}

func (f *fakeJournal) UpdateAttempt(ctx context.Context, a Attempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, a)
	return nil
}

func (f *fakeJournal) last() Attempt {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updates[len(f.updates)-1]
}

type recordingObserver struct {
	mu        sync.Mutex
	stages    []Stage
	terminals []ExecutionUpdate
}

func (r *recordingObserver) OnStatusChange(u ExecutionUpdate) {
	r.mu.Lock()
	r.stages = append(r.stages, u.Stage)
	r.mu.Unlock()
}

func (r *recordingObserver) OnTerminal(u ExecutionUpdate) {
	r.mu.Lock()
	r.terminals = append(r.terminals, u)
	r.mu.Unlock()
}

// publishedStore returns a store configured for amount of from → to with a
// matching quote already published.
func publishedStore(from, to Token, amount string) *Store {
	store := NewStore(0)
	if err := store.SetInput(from, amount); err != nil {
		panic(err)
	}
	store.SetOutput(to)
	req := store.Request()
	q := quoteFor(QuoteParams{FromAmount: req.InputAmount.Raw}, from, to)
	q.Request = req
	store.notify(store.publishQuote(q))
	return store
}
