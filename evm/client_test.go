package evm

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RaghavSood/crosswap/swaps"
	"github.com/RaghavSood/crosswap/wallet"
)

type fakeBackend struct {
	baseFee  *big.Int
	gasErr   error
	callOut  []byte
	calls    []ethereum.CallMsg
	sent     []*types.Transaction
	balance  *big.Int
	receipts map[common.Hash]*types.Receipt
}

func (f *fakeBackend) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	f.calls = append(f.calls, call)
	return f.callOut, nil
}

func (f *fakeBackend) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	if f.gasErr != nil {
		return 0, f.gasErr
	}
	return 60000, nil
}

func (f *fakeBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(3_000000000), nil
}

func (f *fakeBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeBackend) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	return f.balance, nil
}

func (f *fakeBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return 7, nil
}

func (f *fakeBackend) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000000000), nil
}

func (f *fakeBackend) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return &types.Header{BaseFee: f.baseFee}, nil
}

func (f *fakeBackend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	if r, ok := f.receipts[txHash]; ok {
		return r, nil
	}
	return nil, ethereum.NotFound
}

func testClient(t *testing.T) (*Client, map[uint64]*fakeBackend) {
	t.Helper()
	account, err := wallet.NewAccount("test test test test test test test test test test test junk", 0)
	require.NoError(t, err)

	fakes := map[uint64]*fakeBackend{
		1:  {baseFee: big.NewInt(10_000000000)},
		10: {},
	}
	backends := make(map[uint64]Backend, len(fakes))
	for id, f := range fakes {
		backends[id] = f
	}
	return New(account, backends), fakes
}

func TestSwitchChain(t *testing.T) {
	c, _ := testClient(t)

	active, err := c.ActiveChainID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), active)

	require.NoError(t, c.SwitchChain(context.Background(), 10))
	active, _ = c.ActiveChainID(context.Background())
	assert.Equal(t, uint64(10), active)

	assert.Error(t, c.SwitchChain(context.Background(), 137))
	active, _ = c.ActiveChainID(context.Background())
	assert.Equal(t, uint64(10), active, "failed switch keeps the active chain")
}

func TestSignAndSendDynamicFee(t *testing.T) {
	c, fakes := testClient(t)
	to := common.HexToAddress("0x1231DEB6f5749EF6cE6943a275A1D3E7486F4EaE")

	hash, err := c.SignAndSend(context.Background(), swaps.TransactionRequest{
		To:      to,
		Data:    []byte{0x01},
		Value:   big.NewInt(5),
		ChainID: 1,
	}, 250000)
	require.NoError(t, err)

	require.Len(t, fakes[1].sent, 1)
	tx := fakes[1].sent[0]
	assert.Equal(t, hash, tx.Hash())
	assert.Equal(t, uint8(types.DynamicFeeTxType), tx.Type())
	assert.Equal(t, uint64(7), tx.Nonce())
	assert.Equal(t, uint64(250000), tx.Gas())
	assert.Equal(t, "21000000000", tx.GasFeeCap().String())

	from, err := types.Sender(types.LatestSignerForChainID(big.NewInt(1)), tx)
	require.NoError(t, err)
	assert.Equal(t, c.Address(), from)
}

func TestSignAndSendLegacy(t *testing.T) {
	c, fakes := testClient(t)

	_, err := c.SignAndSend(context.Background(), swaps.TransactionRequest{
		To:       common.HexToAddress("0x01"),
		GasPrice: big.NewInt(2_000000000),
		ChainID:  1,
	}, 21000)
	require.NoError(t, err)
	assert.Equal(t, uint8(types.LegacyTxType), fakes[1].sent[0].Type())

	// Pre-London chains fall back to the suggested gas price.
	_, err = c.SignAndSend(context.Background(), swaps.TransactionRequest{To: common.HexToAddress("0x01"), ChainID: 10}, 21000)
	require.NoError(t, err)
	assert.Equal(t, "3000000000", fakes[10].sent[0].GasPrice().String())
}

func TestSendApprovalGasFallback(t *testing.T) {
	c, fakes := testClient(t)
	fakes[1].gasErr = errors.New("execution reverted")
	token := common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")

	_, err := c.SendApproval(context.Background(), 1, token, common.HexToAddress("0x02"), big.NewInt(100))
	require.NoError(t, err)

	tx := fakes[1].sent[0]
	assert.Equal(t, uint64(approvalGasFallback), tx.Gas())
	assert.Equal(t, token, *tx.To())
	assert.Equal(t, []byte{0x09, 0x5e, 0xa7, 0xb3}, tx.Data()[:4], "approve selector")
}

func TestReadAllowanceAndBalance(t *testing.T) {
	c, fakes := testClient(t)
	fakes[1].callOut = common.LeftPadBytes(big.NewInt(123456).Bytes(), 32)
	fakes[1].balance = big.NewInt(42)

	token := common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	v, err := c.ReadAllowance(context.Background(), 1, token, c.Address(), common.HexToAddress("0x02"))
	require.NoError(t, err)
	assert.Equal(t, "123456", v.String())
	assert.Equal(t, []byte{0xdd, 0x62, 0xed, 0x3e}, fakes[1].calls[0].Data[:4], "allowance selector")

	native, err := c.ReadBalance(context.Background(), 1, swaps.NativeTokenAddress, c.Address())
	require.NoError(t, err)
	assert.Equal(t, "42", native.String())

	_, err = c.ReadBalance(context.Background(), 56, token, c.Address())
	assert.Error(t, err)
}

func TestWaitForReceipt(t *testing.T) {
	c, fakes := testClient(t)
	hash := common.HexToHash("0xabc1")
	fakes[1].receipts = map[common.Hash]*types.Receipt{hash: {Status: types.ReceiptStatusSuccessful}}

	r, err := c.WaitForReceipt(context.Background(), 1, hash)
	require.NoError(t, err)
	assert.Equal(t, types.ReceiptStatusSuccessful, r.Status)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.WaitForReceipt(ctx, 1, common.HexToHash("0xdead"))
	assert.ErrorIs(t, err, context.Canceled)
}
