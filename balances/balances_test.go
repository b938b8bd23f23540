package balances

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RaghavSood/crosswap/swaps"
)

type fakeReader struct {
	calls    int
	balances map[common.Address]*big.Int
}

func (f *fakeReader) ReadBalance(ctx context.Context, chainID uint64, token, owner common.Address) (*big.Int, error) {
	f.calls++
	v, ok := f.balances[token]
	if !ok {
		return nil, errors.New("execution reverted")
	}
	return v, nil
}

var (
	owner = common.HexToAddress("0x1111111111111111111111111111111111111111")
	usdc  = swaps.Token{ChainID: 1, Address: common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"), Symbol: "USDC", Decimals: 6}
	eth   = swaps.NativeToken(1, "ETH")
	bogus = swaps.Token{ChainID: 1, Address: common.HexToAddress("0x9999999999999999999999999999999999999999"), Decimals: 18}
)

func TestRefresh(t *testing.T) {
	reader := &fakeReader{balances: map[common.Address]*big.Int{
		usdc.Address: big.NewInt(99_500000),
		eth.Address:  new(big.Int).Mul(big.NewInt(15), big.NewInt(1e17)),
	}}
	book := NewBook(reader)

	err := book.Refresh(context.Background(), owner, usdc, eth, usdc, swaps.Token{})
	require.NoError(t, err)
	assert.Equal(t, 2, reader.calls, "duplicates and unset tokens are skipped")

	bal, ok := book.Get(owner, usdc)
	require.True(t, ok)
	assert.Equal(t, "99.5", bal.Display)
	assert.Equal(t, "99500000", bal.Raw)

	bal, ok = book.Get(owner, eth)
	require.True(t, ok)
	assert.Equal(t, "1.5", bal.Display)

	all := book.All()
	require.Len(t, all, 2)
	assert.Equal(t, usdc, all[0].Token)
}

func TestRefreshJoinsErrors(t *testing.T) {
	reader := &fakeReader{balances: map[common.Address]*big.Int{usdc.Address: big.NewInt(1)}}
	book := NewBook(reader)

	err := book.Refresh(context.Background(), owner, bogus, usdc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "execution reverted")

	_, ok := book.Get(owner, usdc)
	assert.True(t, ok, "readable tokens are still recorded")
	_, ok = book.Get(owner, bogus)
	assert.False(t, ok)
}
