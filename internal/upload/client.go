package upload

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"fieldscout/internal/logging"
)

const requestTimeout = 30 * time.Second

// BadStatusError reports a response other than 201 Created.
type BadStatusError struct {
	Status int
	Body   string
}

func (e *BadStatusError) Error() string {
	return fmt.Sprintf("ingest endpoint returned HTTP %d: %s", e.Status, e.Body)
}

// Client POSTs gzip-compressed envelopes to the ingestion endpoint.
type Client struct {
	baseURL    string
	deviceUUID string
	policy     Policy
	httpClient *http.Client
}

// NewClient returns a client for baseURL (no trailing slash needed).
func NewClient(baseURL, deviceUUID string, policy Policy) *Client {
	return &Client{
		baseURL:    trimSlash(baseURL),
		deviceUUID: deviceUUID,
		policy:     policy,
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}

// Deliver compresses the serialized envelope and POSTs it, retrying per
// the client's policy. Idle connections are dropped after every failed
// attempt so a stale cellular connection is never reused. notify fires
// once per retry.
func (c *Client) Deliver(ctx context.Context, body []byte, notify func(error)) error {
	compressed, err := gzipBytes(body)
	if err != nil {
		return fmt.Errorf("compress payload: %w", err)
	}
	log := logging.FromContext(ctx)
	return c.policy.Do(ctx, func() error {
		err := c.post(ctx, compressed)
		if err != nil {
			log.Warn("upload attempt failed", "err", err)
			c.httpClient.CloseIdleConnections()
		}
		return err
	}, notify)
}

// post performs one attempt. Success is strictly 201 Created.
func (c *Client) post(ctx context.Context, compressed []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/ingest", bytes.NewReader(compressed))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Encoding", "gzip")
	req.Header.Set("User-Agent", "fieldscout-device/"+c.deviceUUID)
	req.Close = true

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &BadStatusError{Status: resp.StatusCode, Body: string(snippet)}
	}
	// Drain the acknowledgement body; the connection closes after
	// every request regardless.
	io.Copy(io.Discard, resp.Body)
	return nil
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
