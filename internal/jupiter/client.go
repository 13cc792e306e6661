// Package jupiter is a client for the Jupiter swap aggregator quote and swap APIs.
package jupiter

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"solana-hedge/internal/domain"
	"solana-hedge/internal/signer"
)

// Default endpoints.
const (
	DefaultQuoteURL = "https://quote-api.jup.ag/v6/quote"
	DefaultSwapURL  = "https://quote-api.jup.ag/v6/swap"
	DefaultTimeout  = 30 * time.Second
)

// maxBodySize bounds how much of a response body is read.
const maxBodySize = 8 << 20

// QuoteError is returned when the aggregator refuses or fails to price a route.
type QuoteError struct {
	StatusCode int    // 0 on transport failure
	Message    string // aggregator error message, if any
	Payload    []byte // raw response body
	Err        error
}

func (e *QuoteError) Error() string {
	switch {
	case e.Message != "":
		return fmt.Sprintf("quote: %s", e.Message)
	case e.Err != nil:
		return fmt.Sprintf("quote: %v", e.Err)
	default:
		return fmt.Sprintf("quote: unexpected status %d: %s", e.StatusCode, truncate(e.Payload))
	}
}

func (e *QuoteError) Unwrap() error {
	return e.Err
}

// SwapBuildError is returned when the aggregator does not return a transaction.
type SwapBuildError struct {
	StatusCode int
	Payload    []byte
	Err        error
}

func (e *SwapBuildError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("build swap: %v", e.Err)
	}
	return fmt.Sprintf("build swap: unexpected status %d: %s", e.StatusCode, truncate(e.Payload))
}

func (e *SwapBuildError) Unwrap() error {
	return e.Err
}

// Quote is an aggregator quote. Raw holds the exact response body, which is
// sent back unchanged when building the swap.
type Quote struct {
	InputMint            string      `json:"inputMint"`
	OutputMint           string      `json:"outputMint"`
	InAmount             string      `json:"inAmount"`
	OutAmount            string      `json:"outAmount"`
	OtherAmountThreshold string      `json:"otherAmountThreshold"`
	SwapMode             string      `json:"swapMode"`
	SlippageBps          int         `json:"slippageBps"`
	PriceImpactPct       string      `json:"priceImpactPct"`
	RoutePlan            []RouteStep `json:"routePlan"`

	Raw json.RawMessage `json:"-"`
}

// RouteStep is one hop of a quoted route.
type RouteStep struct {
	Percent  int `json:"percent"`
	SwapInfo struct {
		AmmKey string `json:"ammKey"`
		Label  string `json:"label"`
	} `json:"swapInfo"`
}

// Labels returns the AMM labels of the route, in order.
func (q *Quote) Labels() []string {
	labels := make([]string, 0, len(q.RoutePlan))
	for _, step := range q.RoutePlan {
		labels = append(labels, step.SwapInfo.Label)
	}
	return labels
}

// Client calls the aggregator. Requests are sent once, never retried.
type Client struct {
	quoteURL string
	swapURL  string
	client   *http.Client
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithQuoteURL overrides the quote endpoint.
func WithQuoteURL(u string) ClientOption {
	return func(c *Client) {
		c.quoteURL = u
	}
}

// WithSwapURL overrides the swap endpoint.
func WithSwapURL(u string) ClientOption {
	return func(c *Client) {
		c.swapURL = u
	}
}

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// NewClient creates an aggregator client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		quoteURL: DefaultQuoteURL,
		swapURL:  DefaultSwapURL,
		client:   &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetQuote requests a route for params.
func (c *Client) GetQuote(ctx context.Context, params domain.SwapParams) (*Quote, error) {
	u, err := url.Parse(c.quoteURL)
	if err != nil {
		return nil, &QuoteError{Err: fmt.Errorf("parse quote url: %w", err)}
	}
	q := u.Query()
	q.Set("inputMint", params.InputMint)
	q.Set("outputMint", params.OutputMint)
	q.Set("amount", strconv.FormatUint(params.Amount, 10))
	q.Set("slippageBps", strconv.Itoa(params.SlippageBps))
	q.Set("swapMode", string(params.SwapMode))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &QuoteError{Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")

	status, body, err := c.do(req)
	if err != nil {
		return nil, &QuoteError{Err: err}
	}

	if msg := errorField(body); msg != "" {
		return nil, &QuoteError{StatusCode: status, Message: msg, Payload: body}
	}
	if status < 200 || status > 299 {
		return nil, &QuoteError{StatusCode: status, Payload: body}
	}

	quote := &Quote{}
	if err := json.Unmarshal(body, quote); err != nil {
		return nil, &QuoteError{StatusCode: status, Payload: body, Err: fmt.Errorf("decode quote: %w", err)}
	}
	quote.Raw = json.RawMessage(body)
	return quote, nil
}

// swapRequest is the body of the swap endpoint.
type swapRequest struct {
	QuoteResponse    json.RawMessage `json:"quoteResponse"`
	UserPublicKey    string          `json:"userPublicKey"`
	WrapAndUnwrapSol bool            `json:"wrapAndUnwrapSol"`
}

type swapResponse struct {
	SwapTransaction      string `json:"swapTransaction"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
}

// SwapTransaction is an unsigned transaction built by the aggregator.
type SwapTransaction struct {
	Raw []byte
	// LastValidBlockHeight is the last block height at which the transaction's
	// blockhash is accepted. Zero when the aggregator did not report it.
	LastValidBlockHeight uint64
}

// BuildSwap asks the aggregator for an unsigned transaction executing quote
// with userPublicKey as fee payer, and returns the decoded transaction.
func (c *Client) BuildSwap(ctx context.Context, quote *Quote, userPublicKey string) (*SwapTransaction, error) {
	if quote == nil || len(quote.Raw) == 0 {
		return nil, &SwapBuildError{Err: fmt.Errorf("missing quote")}
	}

	payload, err := json.Marshal(swapRequest{
		QuoteResponse:    quote.Raw,
		UserPublicKey:    userPublicKey,
		WrapAndUnwrapSol: true,
	})
	if err != nil {
		return nil, &SwapBuildError{Err: fmt.Errorf("marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.swapURL, bytes.NewReader(payload))
	if err != nil {
		return nil, &SwapBuildError{Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	status, body, err := c.do(req)
	if err != nil {
		return nil, &SwapBuildError{Err: err}
	}

	var resp swapResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		if status < 200 || status > 299 {
			return nil, &SwapBuildError{StatusCode: status, Payload: body}
		}
		return nil, &SwapBuildError{StatusCode: status, Payload: body, Err: fmt.Errorf("decode response: %w", err)}
	}
	if resp.SwapTransaction == "" {
		if msg := errorField(body); msg != "" {
			return nil, &SwapBuildError{StatusCode: status, Payload: body, Err: fmt.Errorf("%s", msg)}
		}
		return nil, &SwapBuildError{StatusCode: status, Payload: body, Err: fmt.Errorf("response has no swapTransaction")}
	}

	raw, err := base64.StdEncoding.DecodeString(resp.SwapTransaction)
	if err != nil {
		return nil, &signer.DeserializationError{Err: fmt.Errorf("decode base64: %w", err)}
	}
	return &SwapTransaction{Raw: raw, LastValidBlockHeight: resp.LastValidBlockHeight}, nil
}

func (c *Client) do(req *http.Request) (int, []byte, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

// errorField extracts a top-level "error" string from a JSON body.
func errorField(body []byte) string {
	var e struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &e); err != nil || len(e.Error) == 0 || string(e.Error) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(e.Error, &s); err == nil {
		return s
	}
	return string(e.Error)
}

func truncate(b []byte) string {
	const limit = 256
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
