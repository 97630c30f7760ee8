// Package rpcclient talks to the upstream node: an HTTP getBlock call
// wrapped with the retry/timeout policy FetcherPool requires. Message
// framing and the JSON-RPC envelope live entirely in this package; the
// rest of the pipeline only ever sees a decoded model.Block.
package rpcclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/serfrae/solder/internal/apperror"
	"github.com/serfrae/solder/internal/logging"
	"github.com/serfrae/solder/internal/model"
)

// GetBlockConfig mirrors the getBlock RPC's request parameters.
type GetBlockConfig struct {
	Commitment        string `json:"commitment"`
	TransactionDetails string `json:"transactionDetails"`
	Rewards           bool   `json:"rewards"`
	MaxTxVersion      int    `json:"maxSupportedTransactionVersion"`
}

// DefaultGetBlockConfig is the fixed request shape FetcherPool always
// uses.
var DefaultGetBlockConfig = GetBlockConfig{
	Commitment:         "confirmed",
	TransactionDetails: "full",
	Rewards:            true,
	MaxTxVersion:       0,
}

// Transport is the minimal surface the fetcher needs from an upstream
// node. A production binary backs this with a real JSON-RPC HTTP
// client; tests back it with a fake.
type Transport interface {
	GetBlock(ctx context.Context, slot uint64, cfg GetBlockConfig) (*model.Block, error)
}

// HTTPTransport is a Transport backed by a JSON-RPC 2.0 HTTP endpoint.
type HTTPTransport struct {
	URL    string
	Client *http.Client
}

// NewHTTPTransport returns an HTTPTransport with a sane default client
// timeout; the retry/timeout policy layered by Client below is what
// actually enforces the fetch budget, so this is a generous per-request
// backstop.
func NewHTTPTransport(url string) *HTTPTransport {
	return &HTTPTransport{URL: url, Client: &http.Client{Timeout: 30 * time.Second}}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string { return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message) }

func (t *HTTPTransport) GetBlock(ctx context.Context, slot uint64, cfg GetBlockConfig) (*model.Block, error) {
	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "getBlock",
		Params:  []interface{}{slot, cfg},
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal getBlock request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.URL, bytesReader(body))
	if err != nil {
		return nil, fmt.Errorf("build getBlock request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := t.Client.Do(httpReq)
	if err != nil {
		return nil, apperror.Wrap(apperror.Transient, "getBlock request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, apperror.Wrap(apperror.Transient, fmt.Sprintf("getBlock http %d", resp.StatusCode), nil)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("getBlock http %d", resp.StatusCode)
	}

	var rr rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return nil, fmt.Errorf("decode getBlock response: %w", err)
	}
	if rr.Error != nil {
		return nil, apperror.Wrap(apperror.Transient, "getBlock rpc error", rr.Error)
	}

	block, err := decodeBlock(rr.Result)
	if err != nil {
		return nil, fmt.Errorf("decode block payload: %w", err)
	}
	return block, nil
}

// Client wraps a Transport with a fixed-delay retry policy and an
// overall timeout spanning every attempt, plus a token-bucket rate
// limiter bounding outbound getBlock calls across the whole
// FetcherPool.
type Client struct {
	transport  Transport
	maxRetries int
	retryDelay time.Duration
	timeout    time.Duration
	limiter    *rate.Limiter
	log        logging.Logger
}

// NewClient constructs a retry/timeout/rate-limited Client.
func NewClient(transport Transport, maxRetries int, retryDelay, timeout time.Duration, ratePerSec float64) *Client {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	limiter := rate.NewLimiter(rate.Limit(ratePerSec), int(ratePerSec)+1)
	return &Client{
		transport:  transport,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		timeout:    timeout,
		limiter:    limiter,
		log:        logging.Root().With("component", "rpcclient"),
	}
}

// GetBlock resolves slot to a Block, retrying transient failures up to
// maxRetries times with a fixed delay between attempts, the whole
// operation bounded by timeout.
func (c *Client) GetBlock(ctx context.Context, slot uint64) (*model.Block, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, apperror.Wrap(apperror.Timeout, "rate limiter wait", err)
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		block, err := c.transport.GetBlock(ctx, slot, DefaultGetBlockConfig)
		if err == nil {
			return block, nil
		}
		lastErr = err
		c.log.Warn("getBlock attempt failed", "slot", slot, "attempt", attempt, "err", err)

		if ctx.Err() != nil {
			return nil, apperror.Wrap(apperror.Timeout, "getBlock exceeded total timeout", ctx.Err())
		}
		if !errors.Is(err, apperror.Transient) {
			return nil, err
		}
		if attempt < c.maxRetries {
			select {
			case <-time.After(c.retryDelay):
			case <-ctx.Done():
				return nil, apperror.Wrap(apperror.Timeout, "getBlock exceeded total timeout", ctx.Err())
			}
		}
	}
	return nil, apperror.Wrap(apperror.Transient, fmt.Sprintf("getBlock exhausted %d retries", c.maxRetries), lastErr)
}
