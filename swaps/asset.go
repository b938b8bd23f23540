package swaps

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// NativeTokenAddress is the placeholder address aggregators use for a chain's native coin.
var NativeTokenAddress = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

// Token identifies an asset on a specific EVM chain.
type Token struct {
	ChainID  uint64         `json:"chainId"`
	Address  common.Address `json:"address"`
	Symbol   string         `json:"symbol"`
	Decimals int32          `json:"decimals"`
}

// NativeToken returns the native coin placeholder for chainID.
func NativeToken(chainID uint64, symbol string) Token {
	return Token{
		ChainID:  chainID,
		Address:  NativeTokenAddress,
		Symbol:   symbol,
		Decimals: 18,
	}
}

// ParseToken parses "CHAINID:0xADDRESS[:SYMBOL[:DECIMALS]]".
// Examples: "1:0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48:USDC:6", "10:native:ETH".
func ParseToken(s string) (Token, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return Token{}, fmt.Errorf("invalid token notation %q: expected CHAINID:ADDRESS", s)
	}

	var chainID uint64
	if _, err := fmt.Sscanf(parts[0], "%d", &chainID); err != nil || chainID == 0 {
		return Token{}, fmt.Errorf("invalid chain id in %q", s)
	}

	tok := Token{ChainID: chainID, Decimals: 18}
	switch {
	case strings.EqualFold(parts[1], "native"):
		tok.Address = NativeTokenAddress
	case common.IsHexAddress(parts[1]):
		tok.Address = common.HexToAddress(parts[1])
	default:
		return Token{}, fmt.Errorf("invalid token address %q", parts[1])
	}

	if len(parts) > 2 {
		tok.Symbol = strings.ToUpper(parts[2])
	}
	if len(parts) > 3 {
		if _, err := fmt.Sscanf(parts[3], "%d", &tok.Decimals); err != nil || tok.Decimals < 0 || tok.Decimals > 36 {
			return Token{}, fmt.Errorf("invalid decimals in %q", s)
		}
	}
	return tok, nil
}

// String returns the token in CHAINID:ADDRESS:SYMBOL notation.
func (t Token) String() string {
	if t.Symbol != "" {
		return fmt.Sprintf("%d:%s:%s", t.ChainID, t.Address.Hex(), t.Symbol)
	}
	return fmt.Sprintf("%d:%s", t.ChainID, t.Address.Hex())
}

// IsNative returns true if the token is the chain's native coin.
func (t Token) IsNative() bool {
	return t.Address == NativeTokenAddress
}

// IsZero returns true if no token has been selected.
func (t Token) IsZero() bool {
	return t.Address == (common.Address{})
}

// Same reports whether both tokens refer to the same asset, ignoring display metadata.
func (t Token) Same(o Token) bool {
	return t.ChainID == o.ChainID && t.Address == o.Address
}
