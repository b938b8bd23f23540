package wallet

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip32"
	"github.com/tyler-smith/go-bip39"
)

var ErrInvalidMnemonic = errors.New("invalid mnemonic")

// derivationPrefix is m/44'/60'/0'/0; the account index is appended as the last element.
var derivationPrefix = []uint32{
	bip32.FirstHardenedChild + 44,
	bip32.FirstHardenedChild + 60,
	bip32.FirstHardenedChild + 0,
	0,
}

// DeriveKey derives an ECDSA private key from a mnemonic at m/44'/60'/0'/0/{index}.
func DeriveKey(mnemonic string, index uint32) (*ecdsa.PrivateKey, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, ErrInvalidMnemonic
	}
	seed := bip39.NewSeed(mnemonic, "")

	key, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("creating master key: %w", err)
	}

	path := append(append([]uint32(nil), derivationPrefix...), index)
	for depth, child := range path {
		key, err = key.NewChildKey(child)
		if err != nil {
			return nil, fmt.Errorf("deriving path element %d: %w", depth, err)
		}
	}

	privateKey, err := crypto.ToECDSA(key.Key)
	if err != nil {
		return nil, fmt.Errorf("converting to ECDSA: %w", err)
	}
	return privateKey, nil
}

// NewMnemonic generates a fresh 24-word mnemonic.
func NewMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return "", fmt.Errorf("generating entropy: %w", err)
	}
	return bip39.NewMnemonic(entropy)
}

// Account is the single key that funds and signs swaps.
type Account struct {
	key     *ecdsa.PrivateKey
	address common.Address
	index   uint32
}

// NewAccount derives the account at index from mnemonic.
func NewAccount(mnemonic string, index uint32) (*Account, error) {
	key, err := DeriveKey(mnemonic, index)
	if err != nil {
		return nil, err
	}
	return FromKey(key, index), nil
}

// FromKey wraps an existing private key.
func FromKey(key *ecdsa.PrivateKey, index uint32) *Account {
	return &Account{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		index:   index,
	}
}

func (a *Account) Address() common.Address { return a.address }
func (a *Account) Index() uint32           { return a.index }

// SignTx signs tx for chainID with the latest signer the chain supports.
func (a *Account) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), a.key)
	if err != nil {
		return nil, fmt.Errorf("signing tx: %w", err)
	}
	return signed, nil
}
