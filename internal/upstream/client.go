// Package upstream はカタログAPIをHTTP経由で再取得するクライアントと、それを使う /async/* ルートを提供します。
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const maxBodyBytes = 1 << 20

// FetchError は取得の失敗を表します。Status は応答が得られた場合のみ設定されます。
type FetchError struct {
	Status int
	Body   json.RawMessage
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("upstream responded %d", e.Status)
	}
	return fmt.Sprintf("upstream request failed: %v", e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Client はベースURL配下のJSONを取得します。各呼び出しは独立しており再試行しません。
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient は Client を作成します。
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Get は path のJSONを取得し、2xx の場合は本文を返します。
func (c *Client) Get(ctx context.Context, path string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, &FetchError{Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &FetchError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &FetchError{Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		fe := &FetchError{Status: resp.StatusCode}
		if json.Valid(body) {
			fe.Body = body
		}
		return nil, fe
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, body); err != nil {
		return nil, &FetchError{Err: fmt.Errorf("decode upstream body: %w", err)}
	}
	return compact.Bytes(), nil
}
