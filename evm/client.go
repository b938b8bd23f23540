// Package evm implements the wallet and chain capabilities the swap engine consumes,
// on top of go-ethereum RPC clients.
package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	log "github.com/sirupsen/logrus"

	"github.com/RaghavSood/crosswap/swaps"
	"github.com/RaghavSood/crosswap/wallet"
)

const (
	approvalGasFallback = 100000
	receiptPollInterval = 2 * time.Second
)

// Backend is the subset of ethclient.Client used here.
type Backend interface {
	ethereum.ContractCaller
	ethereum.GasEstimator
	ethereum.GasPricer
	ethereum.TransactionSender
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Client signs with one account across every configured chain.
type Client struct {
	account  *wallet.Account
	backends map[uint64]Backend
	closers  []func()

	mu     sync.RWMutex
	active uint64
}

var (
	_ swaps.Signer      = (*Client)(nil)
	_ swaps.ChainReader = (*Client)(nil)
)

// New creates a client over existing backends. The lowest chain id starts active.
func New(account *wallet.Account, backends map[uint64]Backend) *Client {
	c := &Client{account: account, backends: backends}
	for id := range backends {
		if c.active == 0 || id < c.active {
			c.active = id
		}
	}
	return c
}

// Dial connects to every endpoint and checks that each RPC serves the chain it is keyed by.
func Dial(ctx context.Context, account *wallet.Account, endpoints map[uint64]string) (*Client, error) {
	backends := make(map[uint64]Backend, len(endpoints))
	var closers []func()

	for chainID, url := range endpoints {
		rpc, err := ethclient.DialContext(ctx, url)
		if err != nil {
			closeAll(closers)
			return nil, fmt.Errorf("connecting to chain %d RPC: %w", chainID, err)
		}
		closers = append(closers, rpc.Close)

		remote, err := rpc.ChainID(ctx)
		if err != nil {
			closeAll(closers)
			return nil, fmt.Errorf("querying chain id for %d: %w", chainID, err)
		}
		if remote.Uint64() != chainID {
			closeAll(closers)
			return nil, fmt.Errorf("RPC for chain %d reports chain id %s", chainID, remote)
		}

		log.Printf("Connected to chain %d RPC", chainID)
		backends[chainID] = rpc
	}

	c := New(account, backends)
	c.closers = closers
	return c, nil
}

func closeAll(closers []func()) {
	for _, fn := range closers {
		fn()
	}
}

// Close releases every RPC connection opened by Dial.
func (c *Client) Close() {
	closeAll(c.closers)
}

// Chains returns the configured chain ids.
func (c *Client) Chains() []uint64 {
	ids := make([]uint64, 0, len(c.backends))
	for id := range c.backends {
		ids = append(ids, id)
	}
	return ids
}

func (c *Client) backend(chainID uint64) (Backend, error) {
	b, ok := c.backends[chainID]
	if !ok {
		return nil, fmt.Errorf("no RPC configured for chain %d", chainID)
	}
	return b, nil
}

func (c *Client) Address() common.Address {
	return c.account.Address()
}

func (c *Client) ActiveChainID(ctx context.Context) (uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.active == 0 {
		return 0, errors.New("no active chain")
	}
	return c.active, nil
}

// SwitchChain makes chainID the active chain. It fails when no RPC serves it.
func (c *Client) SwitchChain(ctx context.Context, chainID uint64) error {
	if _, err := c.backend(chainID); err != nil {
		return err
	}
	c.mu.Lock()
	c.active = chainID
	c.mu.Unlock()
	return nil
}

// SignAndSend signs and broadcasts tx. A request without a gas price is sent as a
// dynamic-fee transaction on London chains.
func (c *Client) SignAndSend(ctx context.Context, req swaps.TransactionRequest, gas uint64) (common.Hash, error) {
	value := req.Value
	if value == nil {
		value = new(big.Int)
	}
	return c.send(ctx, req.ChainID, req.To, value, req.Data, gas, req.GasPrice)
}

// SendApproval broadcasts approve(spender, amount) on token.
func (c *Client) SendApproval(ctx context.Context, chainID uint64, token, spender common.Address, amount *big.Int) (common.Hash, error) {
	data, err := erc20ABI.Pack("approve", spender, amount)
	if err != nil {
		return common.Hash{}, err
	}

	b, err := c.backend(chainID)
	if err != nil {
		return common.Hash{}, err
	}

	gas, err := b.EstimateGas(ctx, ethereum.CallMsg{
		From: c.Address(),
		To:   &token,
		Data: data,
	})
	if err != nil {
		log.Printf("evm: estimating approval gas on chain %d: %v; using %d", chainID, err, approvalGasFallback)
		gas = approvalGasFallback
	}

	return c.send(ctx, chainID, token, new(big.Int), data, gas, nil)
}

func (c *Client) send(ctx context.Context, chainID uint64, to common.Address, value *big.Int, data []byte, gas uint64, gasPrice *big.Int) (common.Hash, error) {
	b, err := c.backend(chainID)
	if err != nil {
		return common.Hash{}, err
	}

	from := c.Address()
	nonce, err := b.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("getting nonce: %w", err)
	}

	var tx *types.Transaction
	switch {
	case gasPrice != nil:
		tx = types.NewTransaction(nonce, to, value, gas, gasPrice, data)
	default:
		tx, err = c.dynamicFeeTx(ctx, b, chainID, nonce, to, value, gas, data)
		if err != nil {
			return common.Hash{}, err
		}
	}

	signed, err := c.account.SignTx(tx, new(big.Int).SetUint64(chainID))
	if err != nil {
		return common.Hash{}, err
	}

	if err := b.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("sending tx: %w", err)
	}

	log.WithFields(log.Fields{"chain": chainID, "tx": signed.Hash().Hex(), "nonce": nonce}).Info("evm: transaction sent")
	return signed.Hash(), nil
}

func (c *Client) dynamicFeeTx(ctx context.Context, b Backend, chainID, nonce uint64, to common.Address, value *big.Int, gas uint64, data []byte) (*types.Transaction, error) {
	head, err := b.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("getting head: %w", err)
	}

	if head.BaseFee == nil {
		gasPrice, err := b.SuggestGasPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("getting gas price: %w", err)
		}
		return types.NewTransaction(nonce, to, value, gas, gasPrice, data), nil
	}

	tip, err := b.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting tip cap: %w", err)
	}
	feeCap := new(big.Int).Add(new(big.Int).Mul(head.BaseFee, big.NewInt(2)), tip)

	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   new(big.Int).SetUint64(chainID),
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &to,
		Value:     value,
		Data:      data,
	}), nil
}

// EstimateGas simulates the transaction on its chain.
func (c *Client) EstimateGas(ctx context.Context, req swaps.TransactionRequest) (uint64, error) {
	b, err := c.backend(req.ChainID)
	if err != nil {
		return 0, err
	}

	from := req.From
	if from == (common.Address{}) {
		from = c.Address()
	}
	to := req.To
	return b.EstimateGas(ctx, ethereum.CallMsg{
		From:  from,
		To:    &to,
		Value: req.Value,
		Data:  req.Data,
	})
}

// WaitForReceipt polls until the transaction is mined or ctx is done.
func (c *Client) WaitForReceipt(ctx context.Context, chainID uint64, txHash common.Hash) (*types.Receipt, error) {
	b, err := c.backend(chainID)
	if err != nil {
		return nil, err
	}

	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := b.TransactionReceipt(ctx, txHash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			log.Printf("evm: receipt for %s: %v", txHash.Hex(), err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) ReadAllowance(ctx context.Context, chainID uint64, token, owner, spender common.Address) (*big.Int, error) {
	data, err := erc20ABI.Pack("allowance", owner, spender)
	if err != nil {
		return nil, err
	}
	return c.callUint(ctx, chainID, token, data)
}

// ReadBalance returns the native balance for the native placeholder, else balanceOf.
func (c *Client) ReadBalance(ctx context.Context, chainID uint64, token, owner common.Address) (*big.Int, error) {
	if token == swaps.NativeTokenAddress {
		b, err := c.backend(chainID)
		if err != nil {
			return nil, err
		}
		return b.BalanceAt(ctx, owner, nil)
	}

	data, err := erc20ABI.Pack("balanceOf", owner)
	if err != nil {
		return nil, err
	}
	return c.callUint(ctx, chainID, token, data)
}

func (c *Client) callUint(ctx context.Context, chainID uint64, contract common.Address, data []byte) (*big.Int, error) {
	b, err := c.backend(chainID)
	if err != nil {
		return nil, err
	}

	output, err := b.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("calling %s: %w", contract.Hex(), err)
	}
	if len(output) < 32 {
		return big.NewInt(0), nil
	}
	return new(big.Int).SetBytes(output[:32]), nil
}
