// Package lifi is a client for the LI.FI aggregator's quote and status endpoints.
package lifi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/RaghavSood/crosswap/swaps"
)

const (
	DefaultBaseURL     = "https://li.quest"
	DefaultReferrer    = "crosswap"
	DefaultRateLimit   = 2.0
	defaultHTTPTimeout = 30 * time.Second
)

// Options configures a Client. Zero values select the defaults.
type Options struct {
	BaseURL    string
	APIKey     string
	Integrator string
	Referrer   string
	// RateLimit is the maximum number of requests per second.
	RateLimit float64
	// Transport wraps outbound requests, e.g. for request logging.
	Transport http.RoundTripper
}

// Client implements swaps.QuoteClient against the LI.FI REST API.
type Client struct {
	baseURL    string
	apiKey     string
	integrator string
	referrer   string
	httpClient *http.Client
	limiter    *rate.Limiter
}

var _ swaps.QuoteClient = (*Client)(nil)

func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Referrer == "" {
		opts.Referrer = DefaultReferrer
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = DefaultRateLimit
	}

	httpClient := &http.Client{Timeout: defaultHTTPTimeout}
	if opts.Transport != nil {
		httpClient.Transport = opts.Transport
	}

	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		apiKey:     opts.APIKey,
		integrator: opts.Integrator,
		referrer:   opts.Referrer,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(opts.RateLimit), 1),
	}
}

// FetchQuote requests a single executable quote.
func (c *Client) FetchQuote(ctx context.Context, p swaps.QuoteParams) (*swaps.Quote, error) {
	if p.FromAmount == nil || p.FromAmount.Sign() <= 0 {
		return nil, &swaps.QuoteError{Kind: swaps.KindNoRoute, Message: swaps.ErrNoRoute.Error()}
	}

	params := url.Values{}
	params.Set("fromChain", strconv.FormatUint(p.FromChain, 10))
	params.Set("toChain", strconv.FormatUint(p.ToChain, 10))
	params.Set("fromToken", p.FromToken.Hex())
	params.Set("toToken", p.ToToken.Hex())
	params.Set("fromAmount", p.FromAmount.String())
	params.Set("fromAddress", p.FromAddress.Hex())
	params.Set("toAddress", p.ToAddress.Hex())
	params.Set("slippage", strconv.FormatFloat(p.Slippage, 'f', -1, 64))
	if p.Order != "" {
		params.Set("order", string(p.Order))
	}
	params.Set("referrer", c.referrer)
	if c.integrator != "" {
		params.Set("integrator", c.integrator)
	}

	body, status, err := c.get(ctx, "/v1/quote", params)
	if err != nil {
		return nil, quoteFailure(ctx, err)
	}
	if status != http.StatusOK {
		return nil, remoteFailure(status, body)
	}

	var resp QuoteResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &swaps.QuoteError{Kind: swaps.KindRemote, Message: swaps.ErrNoRoute.Error(), Err: fmt.Errorf("parsing quote: %w", err)}
	}

	q, err := resp.toQuote()
	if err != nil {
		return nil, &swaps.QuoteError{Kind: swaps.KindRemote, Message: swaps.ErrNoRoute.Error(), Err: err}
	}

	log.WithFields(log.Fields{
		"tool":      q.Tool,
		"from":      p.FromChain,
		"to":        p.ToChain,
		"to_amount": q.ToAmount.String(),
	}).Debug("lifi: quote received")

	return q, nil
}

// FetchStatus queries the bridge status of a source-chain transaction. It does not loop.
func (c *Client) FetchStatus(ctx context.Context, fromChain, toChain uint64, txHash common.Hash) (swaps.CrossChainStatus, error) {
	params := url.Values{}
	params.Set("txHash", txHash.Hex())
	params.Set("fromChain", strconv.FormatUint(fromChain, 10))
	params.Set("toChain", strconv.FormatUint(toChain, 10))

	body, status, err := c.get(ctx, "/v1/status", params)
	if err != nil {
		return swaps.CrossChainStatus{}, fmt.Errorf("requesting status: %w", err)
	}

	// The status endpoint answers 404 until the indexer sees the transaction.
	if status == http.StatusNotFound {
		return swaps.CrossChainStatus{Status: swaps.BridgeNotFound}, nil
	}
	if status != http.StatusOK {
		return swaps.CrossChainStatus{}, fmt.Errorf("status API returned %d: %s", status, string(body))
	}

	var resp StatusResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return swaps.CrossChainStatus{}, fmt.Errorf("parsing status: %w", err)
	}
	return resp.toStatus(), nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, 0, err
	}

	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-lifi-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("reading response: %w", err)
	}
	return body, resp.StatusCode, nil
}

func quoteFailure(ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return &swaps.QuoteError{Kind: swaps.KindCanceled, Message: swaps.ErrCanceled.Error(), Err: err}
	}
	return &swaps.QuoteError{Kind: swaps.KindRemote, Message: swaps.ErrNoRoute.Error(), Err: err}
}

func remoteFailure(status int, body []byte) error {
	kind := swaps.KindRemote
	if status == http.StatusNotFound {
		kind = swaps.KindNoRoute
	}

	msg := swaps.ErrNoRoute.Error()
	var er ErrorResponse
	if err := json.Unmarshal(body, &er); err == nil && er.Message != "" {
		msg = er.Message
	}

	return &swaps.QuoteError{
		Kind:       kind,
		Message:    msg,
		StatusCode: status,
		Err:        fmt.Errorf("quote API returned %d: %s", status, string(body)),
	}
}
