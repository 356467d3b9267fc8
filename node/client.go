package node

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// Client talks to a single transaction-network node over its JSON HTTP API.
// Transport failures surface as plain errors (transient); mempool and
// execution rejections surface as the typed errors in errors.go so callers
// can classify them.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

func NewClient(baseURL string) (*Client, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}

	return &Client{
		baseURL:    parsed,
		httpClient: &http.Client{},
	}, nil
}

type accountResponse struct {
	Address  string `json:"address"`
	Sequence uint64 `json:"sequence"`
}

type broadcastResponse struct {
	Hash string `json:"hash"`
	Code uint32 `json:"code"`
	Log  string `json:"log"`
}

type statusResponse struct {
	Hash   string   `json:"hash"`
	Status TxStatus `json:"status"`
	Height int64    `json:"height"`
}

type recentFeesResponse struct {
	Blocks []BlockFees `json:"blocks"`
}

// AccountSequence returns the next unconsumed sequence number for an
// identity, as the chain sees it. Used to seed the nonce ledger on startup.
func (c *Client) AccountSequence(ctx context.Context, identity string) (uint64, error) {
	var resp accountResponse
	if err := c.get(ctx, fmt.Sprintf("accounts/%s", identity), &resp); err != nil {
		return 0, err
	}
	return resp.Sequence, nil
}

// Simulate dry-runs the transaction against latest state. A revert comes
// back as a *RejectionError and means the opportunity is already gone.
func (c *Client) Simulate(ctx context.Context, tx Tx) error {
	var resp broadcastResponse
	if err := c.post(ctx, "txs/simulate", tx, &resp); err != nil {
		return err
	}
	if resp.Code != CodeOK {
		return &RejectionError{Code: resp.Code, Log: resp.Log}
	}
	return nil
}

// Broadcast submits the transaction to the mempool and returns its hash.
// Admission failures come back as typed errors; an "already known" response
// is treated as success since the tx is in the mempool either way.
func (c *Client) Broadcast(ctx context.Context, tx Tx) (string, error) {
	var resp broadcastResponse
	if err := c.post(ctx, "txs", tx, &resp); err != nil {
		return "", err
	}

	switch resp.Code {
	case CodeOK, CodeTxAlreadyKnown:
		return resp.Hash, nil
	case CodeFeeTooLow:
		return "", &FeeTooLowError{Log: resp.Log}
	case CodeBadSequence:
		return "", &BadSequenceError{Log: resp.Log}
	case CodeMempoolFull:
		return "", &MempoolFullError{Log: resp.Log}
	default:
		return "", &RejectionError{Code: resp.Code, Log: resp.Log}
	}
}

// TxStatus reports where a broadcast transaction currently stands. A hash
// the node has never seen returns StatusNotFound, not an error.
func (c *Client) TxStatus(ctx context.Context, hash string) (TxStatus, error) {
	var resp statusResponse
	err := c.get(ctx, fmt.Sprintf("txs/%s", hash), &resp)
	if err != nil {
		return StatusNotFound, err
	}
	return resp.Status, nil
}

// RecentBlockFees returns fee statistics for the last n confirmed blocks.
func (c *Client) RecentBlockFees(ctx context.Context, n int) ([]BlockFees, error) {
	var resp recentFeesResponse
	if err := c.get(ctx, fmt.Sprintf("fees/recent?blocks=%d", n), &resp); err != nil {
		return nil, err
	}
	return resp.Blocks, nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	bz, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := c.newRequest(ctx, http.MethodPost, path, bytes.NewReader(bz))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	refPath, err := url.Parse(path)
	if err != nil {
		return nil, err
	}
	fullURL := c.baseURL.ResolveReference(refPath)
	return http.NewRequestWithContext(ctx, method, fullURL.String(), body)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	bz, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	// broadcast-style endpoints encode rejection detail in the body with a
	// 4xx status; surface it as a decodable response rather than a flat error
	if resp.StatusCode != http.StatusOK {
		var rejected broadcastResponse
		if json.Unmarshal(bz, &rejected) == nil && rejected.Code != CodeOK {
			if br, ok := out.(*broadcastResponse); ok {
				*br = rejected
				return nil
			}
		}
		return fmt.Errorf("request failed: %s", string(bz))
	}

	return json.Unmarshal(bz, out)
}
