package server

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RaghavSood/crosswap/balances"
	"github.com/RaghavSood/crosswap/swaps"
)

var (
	account = common.HexToAddress("0x1111111111111111111111111111111111111111")
	spender = common.HexToAddress("0x1231DEB6f5749EF6cE6943a275A1D3E7486F4EaE")
	usdc    = swaps.Token{ChainID: 1, Address: common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"), Symbol: "USDC", Decimals: 6}
	usdt    = swaps.Token{ChainID: 10, Address: common.HexToAddress("0x94b008aA00579c1307B0EF2c499aD98a8ce58e58"), Symbol: "USDT", Decimals: 6}
)

type stubChain struct{}

func (stubChain) Address() common.Address { return account }

func (stubChain) ActiveChainID(ctx context.Context) (uint64, error) { return 1, nil }

func (stubChain) SwitchChain(ctx context.Context, chainID uint64) error { return nil }

func (stubChain) EstimateGas(ctx context.Context, tx swaps.TransactionRequest) (uint64, error) {
	return 21000, nil
}

func (stubChain) SignAndSend(ctx context.Context, tx swaps.TransactionRequest, gas uint64) (common.Hash, error) {
	return common.HexToHash("0x01"), nil
}

func (stubChain) SendApproval(ctx context.Context, chainID uint64, token, spender common.Address, amount *big.Int) (common.Hash, error) {
	return common.HexToHash("0x02"), nil
}

func (stubChain) WaitForReceipt(ctx context.Context, chainID uint64, txHash common.Hash) (*types.Receipt, error) {
	return &types.Receipt{Status: types.ReceiptStatusSuccessful}, nil
}

func (stubChain) ReadAllowance(ctx context.Context, chainID uint64, token, owner, spender common.Address) (*big.Int, error) {
	return big.NewInt(5_000000), nil
}

func (stubChain) ReadBalance(ctx context.Context, chainID uint64, token, owner common.Address) (*big.Int, error) {
	return big.NewInt(250_000000), nil
}

type stubQuotes struct{}

func (stubQuotes) FetchQuote(ctx context.Context, p swaps.QuoteParams) (*swaps.Quote, error) {
	if p.FromAmount.Cmp(big.NewInt(1_000000_000000)) > 0 {
		return nil, &swaps.QuoteError{Kind: swaps.KindRemote, Message: "Insufficient liquidity"}
	}
	out := new(big.Int).Mul(p.FromAmount, big.NewInt(995))
	out.Div(out, big.NewInt(1000))
	return &swaps.Quote{
		Tool:            "stargate",
		FromToken:       usdc,
		ToToken:         usdt,
		FromAmount:      new(big.Int).Set(p.FromAmount),
		ToAmount:        out,
		ToAmountMin:     out,
		ApprovalSpender: spender,
		SourceChainID:   1,
		DestChainID:     10,
	}, nil
}

func (stubQuotes) FetchStatus(ctx context.Context, fromChain, toChain uint64, txHash common.Hash) (swaps.CrossChainStatus, error) {
	return swaps.CrossChainStatus{Status: swaps.BridgePending}, nil
}

func newTestServer(t *testing.T) (*Server, *swaps.Manager) {
	t.Helper()
	mgr := swaps.NewManager(stubQuotes{}, stubChain{}, stubChain{}, swaps.Config{})
	t.Cleanup(mgr.Close)
	return New(mgr, balances.NewBook(stubChain{}), nil, 0), mgr
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeState(t *testing.T, rec *httptest.ResponseRecorder) swaps.State {
	t.Helper()
	var st swaps.State
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&st))
	return st
}

func TestConfigureAndQuote(t *testing.T) {
	srv, mgr := newTestServer(t)
	h := srv.Handler()

	rec := do(t, h, http.MethodPost, "/api/input", map[string]interface{}{"token": usdc, "amount": "100"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, h, http.MethodPost, "/api/output", map[string]interface{}{"token": usdt})
	require.Equal(t, http.StatusOK, rec.Code)
	mgr.Wait()

	rec = do(t, h, http.MethodGet, "/api/state", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	st := decodeState(t, rec)
	require.NotNil(t, st.Quote)
	assert.Equal(t, "99.5", st.OutputAmount)
	assert.Equal(t, "100", st.Request.InputAmount.Display)

	rec = do(t, h, http.MethodGet, "/api/allowance", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var allowance swaps.AllowanceState
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&allowance))
	assert.False(t, allowance.Sufficient)
	assert.Equal(t, "5000000", allowance.Allowance)
	assert.Equal(t, spender, allowance.Spender)
}

func TestQuoteErrorIsPublished(t *testing.T) {
	srv, mgr := newTestServer(t)
	h := srv.Handler()

	do(t, h, http.MethodPost, "/api/input", map[string]interface{}{"token": usdc, "amount": "5000000"})
	do(t, h, http.MethodPost, "/api/output", map[string]interface{}{"token": usdt})
	mgr.Wait()

	st := decodeState(t, do(t, h, http.MethodGet, "/api/state", nil))
	assert.Nil(t, st.Quote)
	assert.Equal(t, "Insufficient liquidity", st.CurrentError)
}

func TestValidation(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/slippage", map[string]float64{"slippage": 0.9}).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/order", map[string]string{"order": "YOLO"}).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/receiver", map[string]string{"address": "0x12"}).Code)

	req := httptest.NewRequest(http.MethodPost, "/api/input", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestActionsWithoutQuote(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	assert.Equal(t, http.StatusConflict, do(t, h, http.MethodPost, "/api/execute", nil).Code)
	assert.Equal(t, http.StatusConflict, do(t, h, http.MethodPost, "/api/approve", nil).Code)
	assert.Equal(t, http.StatusConflict, do(t, h, http.MethodGet, "/api/allowance", nil).Code)
}

func TestStaleQuoteRefusesExecution(t *testing.T) {
	srv, mgr := newTestServer(t)
	h := srv.Handler()

	do(t, h, http.MethodPost, "/api/input", map[string]interface{}{"token": usdc, "amount": "100"})
	do(t, h, http.MethodPost, "/api/output", map[string]interface{}{"token": usdt})
	mgr.Wait()

	// Change the amount directly on the store so no refresh replaces the quote.
	require.NoError(t, mgr.Store().SetInputAmount("150"))

	rec := do(t, h, http.MethodPost, "/api/execute", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), swaps.ErrStaleQuote.Error())
}

func TestQuoteForOldReceiverRefused(t *testing.T) {
	srv, mgr := newTestServer(t)
	h := srv.Handler()

	do(t, h, http.MethodPost, "/api/input", map[string]interface{}{"token": usdc, "amount": "100"})
	do(t, h, http.MethodPost, "/api/output", map[string]interface{}{"token": usdt})
	mgr.Wait()

	mgr.Store().SetReceiver(common.HexToAddress("0x2222222222222222222222222222222222222222"))

	assert.Equal(t, http.StatusConflict, do(t, h, http.MethodPost, "/api/execute", nil).Code)
	assert.Equal(t, http.StatusConflict, do(t, h, http.MethodPost, "/api/approve", nil).Code)
}

func TestBalancesAndHistory(t *testing.T) {
	srv, mgr := newTestServer(t)
	h := srv.Handler()

	do(t, h, http.MethodPost, "/api/input", map[string]interface{}{"token": usdc, "amount": "1"})
	mgr.Wait()

	rec := do(t, h, http.MethodGet, "/api/balances?refresh=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got []balances.Balance
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	require.Len(t, got, 2, "input token and its chain's native coin")
	assert.Equal(t, "250", got[0].Display)

	rec = do(t, h, http.MethodGet, "/api/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestResetClearsState(t *testing.T) {
	srv, mgr := newTestServer(t)
	h := srv.Handler()

	do(t, h, http.MethodPost, "/api/input", map[string]interface{}{"token": usdc, "amount": "100"})
	do(t, h, http.MethodPost, "/api/output", map[string]interface{}{"token": usdt})
	mgr.Wait()

	st := decodeState(t, do(t, h, http.MethodPost, "/api/reset", nil))
	assert.Nil(t, st.Quote)
	assert.True(t, st.Request.InputToken.IsZero())
	assert.Equal(t, swaps.DefaultSlippage, st.Request.Slippage)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	swaps.Metrics()

	rec := do(t, srv.Handler(), http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "crosswap_")
}
