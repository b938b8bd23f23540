package lifi

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/RaghavSood/crosswap/swaps"
)

type TokenInfo struct {
	Address  string `json:"address"`
	ChainID  uint64 `json:"chainId"`
	Symbol   string `json:"symbol"`
	Decimals int32  `json:"decimals"`
	PriceUSD string `json:"priceUSD"`
}

type Action struct {
	FromToken   TokenInfo `json:"fromToken"`
	FromAmount  string    `json:"fromAmount"`
	ToToken     TokenInfo `json:"toToken"`
	FromChainID uint64    `json:"fromChainId"`
	ToChainID   uint64    `json:"toChainId"`
	Slippage    float64   `json:"slippage"`
	FromAddress string    `json:"fromAddress"`
	ToAddress   string    `json:"toAddress"`
}

type Estimate struct {
	Tool              string  `json:"tool"`
	ApprovalAddress   string  `json:"approvalAddress"`
	FromAmount        string  `json:"fromAmount"`
	ToAmount          string  `json:"toAmount"`
	ToAmountMin       string  `json:"toAmountMin"`
	FromAmountUSD     string  `json:"fromAmountUSD"`
	ToAmountUSD       string  `json:"toAmountUSD"`
	ExecutionDuration float64 `json:"executionDuration"`
}

type TransactionRequest struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Data     string `json:"data"`
	Value    string `json:"value"`
	ChainID  uint64 `json:"chainId"`
	GasPrice string `json:"gasPrice"`
	GasLimit string `json:"gasLimit"`
}

type QuoteResponse struct {
	ID                 string             `json:"id"`
	Type               string             `json:"type"`
	Tool               string             `json:"tool"`
	Action             Action             `json:"action"`
	Estimate           Estimate           `json:"estimate"`
	TransactionRequest TransactionRequest `json:"transactionRequest"`
}

type TransferLeg struct {
	TxHash  string `json:"txHash"`
	ChainID uint64 `json:"chainId"`
}

type StatusResponse struct {
	Status           string      `json:"status"`
	Substatus        string      `json:"substatus"`
	SubstatusMessage string      `json:"substatusMessage"`
	Tool             string      `json:"tool"`
	Sending          TransferLeg `json:"sending"`
	Receiving        TransferLeg `json:"receiving"`
}

// ErrorResponse is the body LI.FI returns with non-2xx responses.
type ErrorResponse struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// toQuote converts the wire response into the engine's quote.
func (r *QuoteResponse) toQuote() (*swaps.Quote, error) {
	fromAmount, ok := new(big.Int).SetString(r.Action.FromAmount, 10)
	if !ok {
		return nil, fmt.Errorf("invalid fromAmount %q", r.Action.FromAmount)
	}
	toAmount, ok := new(big.Int).SetString(r.Estimate.ToAmount, 10)
	if !ok {
		return nil, fmt.Errorf("invalid toAmount %q", r.Estimate.ToAmount)
	}
	toAmountMin, ok := new(big.Int).SetString(r.Estimate.ToAmountMin, 10)
	if !ok {
		toAmountMin = new(big.Int).Set(toAmount)
	}

	tx, err := r.TransactionRequest.decode()
	if err != nil {
		return nil, err
	}
	if tx.ChainID == 0 {
		tx.ChainID = r.Action.FromChainID
	}

	tool := r.Tool
	if tool == "" {
		tool = r.Estimate.Tool
	}

	return &swaps.Quote{
		ID:                 r.ID,
		Tool:               tool,
		FromToken:          r.Action.FromToken.token(),
		ToToken:            r.Action.ToToken.token(),
		FromAmount:         fromAmount,
		ToAmount:           toAmount,
		ToAmountMin:        toAmountMin,
		FromAmountUSD:      r.Estimate.FromAmountUSD,
		ToAmountUSD:        r.Estimate.ToAmountUSD,
		ApprovalSpender:    common.HexToAddress(r.Estimate.ApprovalAddress),
		TransactionRequest: tx,
		ExecutionDuration:  time.Duration(r.Estimate.ExecutionDuration * float64(time.Second)),
		SourceChainID:      r.Action.FromChainID,
		DestChainID:        r.Action.ToChainID,
		FetchedAt:          time.Now(),
	}, nil
}

func (t TokenInfo) token() swaps.Token {
	addr := common.HexToAddress(t.Address)
	// LI.FI reports some native coins with the zero address.
	if addr == (common.Address{}) {
		addr = swaps.NativeTokenAddress
	}
	return swaps.Token{
		ChainID:  t.ChainID,
		Address:  addr,
		Symbol:   t.Symbol,
		Decimals: t.Decimals,
	}
}

func (t TransactionRequest) decode() (swaps.TransactionRequest, error) {
	if !common.IsHexAddress(t.To) {
		return swaps.TransactionRequest{}, fmt.Errorf("transaction request has invalid to address %q", t.To)
	}

	out := swaps.TransactionRequest{
		From:    common.HexToAddress(t.From),
		To:      common.HexToAddress(t.To),
		ChainID: t.ChainID,
		Value:   new(big.Int),
	}

	var err error
	if t.Data != "" {
		if out.Data, err = hexutil.Decode(t.Data); err != nil {
			return out, fmt.Errorf("decoding transaction data: %w", err)
		}
	}
	if t.Value != "" {
		if out.Value, err = decodeBig(t.Value); err != nil {
			return out, fmt.Errorf("decoding transaction value: %w", err)
		}
	}
	if t.GasPrice != "" {
		if out.GasPrice, err = decodeBig(t.GasPrice); err != nil {
			return out, fmt.Errorf("decoding gas price: %w", err)
		}
	}
	if t.GasLimit != "" {
		limit, err := decodeBig(t.GasLimit)
		if err != nil {
			return out, fmt.Errorf("decoding gas limit: %w", err)
		}
		out.GasLimit = limit.Uint64()
	}
	return out, nil
}

// decodeBig accepts both 0x-prefixed hex (with leading zeros) and decimal strings.
func decodeBig(s string) (*big.Int, error) {
	if has0xPrefix(s) {
		v, ok := new(big.Int).SetString(s[2:], 16)
		if !ok {
			if s == "0x" {
				return new(big.Int), nil
			}
			return nil, fmt.Errorf("invalid hex quantity %q", s)
		}
		return v, nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid quantity %q", s)
	}
	return v, nil
}

func has0xPrefix(s string) bool {
	return len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}

func (r StatusResponse) toStatus() swaps.CrossChainStatus {
	status := swaps.BridgeStatus(r.Status)
	switch status {
	case swaps.BridgeNotFound, swaps.BridgeInvalid, swaps.BridgePending, swaps.BridgeDone, swaps.BridgeFailed:
	default:
		status = swaps.BridgePending
	}
	return swaps.CrossChainStatus{
		Status:           status,
		Substatus:        r.Substatus,
		SubstatusMessage: r.SubstatusMessage,
		ReceivingTxHash:  r.Receiving.TxHash,
	}
}
