package swaps

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
)

// DefaultSlippage is the slippage tolerance applied to a fresh request (1%).
const DefaultSlippage = 0.01

// RoutePreference tells the aggregator how to rank candidate routes.
type RoutePreference string

const (
	OrderRecommended RoutePreference = "RECOMMENDED"
	OrderSafest      RoutePreference = "SAFEST"
	OrderFastest     RoutePreference = "FASTEST"
	OrderCheapest    RoutePreference = "CHEAPEST"
)

// ParseRoutePreference accepts any casing of the four supported orders.
func ParseRoutePreference(s string) (RoutePreference, error) {
	switch p := RoutePreference(strings.ToUpper(strings.TrimSpace(s))); p {
	case OrderRecommended, OrderSafest, OrderFastest, OrderCheapest:
		return p, nil
	case "":
		return OrderRecommended, nil
	default:
		return "", fmt.Errorf("unknown route preference %q", s)
	}
}

// Amount is a token amount kept both as the raw on-chain integer and as the user's display string.
type Amount struct {
	Raw     *big.Int `json:"raw"`
	Display string   `json:"display"`
}

// ZeroAmount returns an empty amount.
func ZeroAmount() Amount {
	return Amount{Raw: new(big.Int), Display: ""}
}

// ParseAmount converts a human-readable amount into raw units at the given precision.
// Digits beyond the token's precision are truncated.
func ParseAmount(display string, decimals int32) (Amount, error) {
	display = strings.TrimSpace(display)
	if display == "" {
		return ZeroAmount(), nil
	}

	d, err := decimal.NewFromString(display)
	if err != nil {
		return Amount{}, fmt.Errorf("invalid amount %q: %w", display, err)
	}
	if d.IsNegative() {
		return Amount{}, fmt.Errorf("amount must not be negative: %s", display)
	}

	raw := d.Shift(decimals).Truncate(0).BigInt()
	return Amount{Raw: raw, Display: display}, nil
}

// AmountFromRaw builds an amount from raw units, deriving the display string.
func AmountFromRaw(raw *big.Int, decimals int32) Amount {
	if raw == nil {
		return ZeroAmount()
	}
	return Amount{Raw: new(big.Int).Set(raw), Display: FormatUnits(raw, decimals)}
}

// FormatUnits renders raw units as a normalized decimal string.
// Example: FormatUnits(99500000, 6) = "99.5".
func FormatUnits(raw *big.Int, decimals int32) string {
	if raw == nil {
		return "0"
	}
	return decimal.NewFromBigInt(raw, -decimals).String()
}

// IsZero returns true if the raw amount is unset or zero.
func (a Amount) IsZero() bool {
	return a.Raw == nil || a.Raw.Sign() == 0
}

// SwapRequest is the user-editable swap configuration.
type SwapRequest struct {
	Receiver    common.Address  `json:"receiver"`
	InputToken  Token           `json:"inputToken"`
	InputAmount Amount          `json:"inputAmount"`
	OutputToken Token           `json:"outputToken"`
	Slippage    float64         `json:"slippage"`
	Order       RoutePreference `json:"order"`
}

// DefaultSwapRequest returns the idle configuration.
func DefaultSwapRequest() SwapRequest {
	return SwapRequest{
		InputAmount: ZeroAmount(),
		Slippage:    DefaultSlippage,
		Order:       OrderRecommended,
	}
}

// Fetchable reports whether a quote can be requested for this configuration.
func (r SwapRequest) Fetchable() bool {
	if r.InputToken.IsZero() || r.OutputToken.IsZero() {
		return false
	}
	return r.InputAmount.Raw != nil && r.InputAmount.Raw.Sign() > 0
}

// IsCrossChain returns true if the input and output tokens live on different chains.
func (r SwapRequest) IsCrossChain() bool {
	return r.InputToken.ChainID != r.OutputToken.ChainID
}

// clone returns a deep copy so callers never share the big.Int with the store.
func (r SwapRequest) clone() SwapRequest {
	c := r
	if r.InputAmount.Raw != nil {
		c.InputAmount.Raw = new(big.Int).Set(r.InputAmount.Raw)
	}
	return c
}

// RequestID derives the anti-staleness key for one fetch attempt. It hashes the
// minimal tuple (input, output, raw amount, receiver, slippage, order) together with
// a per-session sequence number, so two attempts never share an identifier.
func RequestID(r SwapRequest, seq uint64) string {
	raw := "0"
	if r.InputAmount.Raw != nil {
		raw = r.InputAmount.Raw.String()
	}
	key := strings.Join([]string{
		r.InputToken.String(),
		r.OutputToken.String(),
		raw,
		r.Receiver.Hex(),
		strconv.FormatFloat(r.Slippage, 'f', -1, 64),
		string(r.Order),
		strconv.FormatUint(seq, 10),
	}, "|")
	return crypto.Keccak256Hash([]byte(key)).Hex()
}
