package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"dag-stitch/models"

	"golang.org/x/time/rate"
)

var ErrBlockNotFound = errors.New("block not found")

// Client talks to the ledger node: request/response calls over HTTP, notifications over websocket
type Client struct {
	wsURL   string
	httpURL string
	http    *http.Client
	limiter *rate.Limiter
}

// New creates a client for the node at rpcURL, a ws:// or wss:// address.
// The HTTP endpoint is derived by swapping the scheme. Requests are capped at rps per second.
func New(rpcURL string, rps int) (*Client, error) {
	u, err := url.Parse(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("parse rpc url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("rpc url %q: expected ws or wss scheme", rpcURL)
	}
	if rps < 1 {
		rps = 1
	}
	return &Client{
		wsURL:   rpcURL,
		httpURL: strings.TrimSuffix(HTTPURL(rpcURL), "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
	}, nil
}

// HTTPURL swaps a leading ws/wss scheme for http/https
func HTTPURL(wsURL string) string {
	if strings.HasPrefix(wsURL, "ws") {
		return "http" + strings.TrimPrefix(wsURL, "ws")
	}
	return wsURL
}

type tipsResponse struct {
	Hashes []string `json:"hashes"`
}

type submitResponse struct {
	TxID string `json:"txid"`
}

// GetTipHashes returns the node's current DAG tips
func (c *Client) GetTipHashes(ctx context.Context) ([]string, error) {
	var resp tipsResponse
	if err := c.do(ctx, http.MethodGet, "/tips", nil, &resp); err != nil {
		return nil, fmt.Errorf("get tips: %w", err)
	}
	return resp.Hashes, nil
}

// GetBlock fetches a block with its transactions
func (c *Client) GetBlock(ctx context.Context, id string) (*models.LedgerBlock, error) {
	var block models.LedgerBlock
	if err := c.do(ctx, http.MethodGet, "/blocks/"+url.PathEscape(id), nil, &block); err != nil {
		return nil, fmt.Errorf("get block %s: %w", id, err)
	}
	return &block, nil
}

// SubmitTransaction submits a signed transaction and returns its id
func (c *Client) SubmitTransaction(ctx context.Context, tx *models.Transaction) (string, error) {
	body, err := json.Marshal(tx)
	if err != nil {
		return "", err
	}
	var resp submitResponse
	if err := c.do(ctx, http.MethodPost, "/transactions", body, &resp); err != nil {
		return "", fmt.Errorf("submit transaction: %w", err)
	}
	if resp.TxID == "" {
		return "", errors.New("submit transaction: node returned empty txid")
	}
	return resp.TxID, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.httpURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrBlockNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected HTTP status: %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
