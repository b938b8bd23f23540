package wallet

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMnemonic = "test test test test test test test test test test test junk"

func TestNewAccountDerivesStandardPath(t *testing.T) {
	a0, err := NewAccount(testMnemonic, 0)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"), a0.Address())

	a1, err := NewAccount(testMnemonic, 1)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8"), a1.Address())
	assert.Equal(t, uint32(1), a1.Index())
}

func TestNewAccountRejectsInvalidMnemonic(t *testing.T) {
	_, err := NewAccount("not a real mnemonic", 0)
	assert.ErrorIs(t, err, ErrInvalidMnemonic)
}

func TestNewMnemonic(t *testing.T) {
	m, err := NewMnemonic()
	require.NoError(t, err)
	assert.Len(t, strings.Fields(m), 24)

	_, err = NewAccount(m, 0)
	assert.NoError(t, err)
}

func TestSignTx(t *testing.T) {
	a, err := NewAccount(testMnemonic, 0)
	require.NoError(t, err)

	chainID := big.NewInt(10)
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     3,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(2),
		Gas:       21000,
		To:        &common.Address{},
		Value:     big.NewInt(1),
	})

	signed, err := a.SignTx(tx, chainID)
	require.NoError(t, err)

	from, err := types.Sender(types.LatestSignerForChainID(chainID), signed)
	require.NoError(t, err)
	assert.Equal(t, a.Address(), from)
}
