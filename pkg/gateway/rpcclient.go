package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// RPCClient is a single long-lived HTTP client shared across every
// dispatch, with a pooled transport. Its one operation, Send, carries a
// per-call timeout and returns a structured DispatchError on any failure.
type RPCClient struct {
	httpClient *http.Client
}

// NewRPCClient builds a client with a pooled transport sized for a gateway
// fanning requests out to several upstreams concurrently.
func NewRPCClient() *RPCClient {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
	}
	return &RPCClient{
		httpClient: &http.Client{Transport: transport},
	}
}

// Close releases idle pooled connections. Safe to call once at shutdown.
func (c *RPCClient) Close() {
	c.httpClient.CloseIdleConnections()
}

// Send POSTs payload to url and decodes the JSON response, observing
// wall-clock latency. timeout bounds the whole attempt including
// connection setup.
func (c *RPCClient) Send(ctx context.Context, url string, payload interface{}, timeout time.Duration) (*DispatchResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &DispatchError{Kind: FailureDecode, Message: fmt.Sprintf("encode request: %v", err)}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &DispatchError{Kind: FailureConnection, Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, &DispatchError{Kind: FailureTimeout, Message: err.Error()}
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, &DispatchError{Kind: FailureTimeout, Message: err.Error()}
		}
		return nil, &DispatchError{Kind: FailureConnection, Message: err.Error()}
	}
	defer resp.Body.Close()

	latency := float64(time.Since(start)) / float64(time.Millisecond)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &DispatchError{
			Kind:    FailureHTTPStatus,
			Message: fmt.Sprintf("status %d", resp.StatusCode),
		}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &DispatchError{Kind: FailureDecode, Message: err.Error()}
	}

	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, &DispatchError{Kind: FailureDecode, Message: err.Error()}
	}

	return &DispatchResult{Result: decoded, LatencyMS: latency}, nil
}
