/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package backend

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"hltaskit/internal/storage"
)

// Client talks to a catalog server.
type Client struct {
	BaseURL string
	Token   string // bearer token
	client  *http.Client
}

// ClientOptions tune the HTTP transport. Zero values mean defaults.
type ClientOptions struct {
	Timeout     time.Duration
	TLSInsecure bool
}

// NewClient creates a catalog client. A trailing slash on baseURL is dropped.
func NewClient(baseURL, token string, opts ClientOptions) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	hc := &http.Client{Timeout: opts.Timeout}
	if opts.TLSInsecure {
		hc.Transport = &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}} //nolint:gosec // opt-in for self-signed dev servers
	}
	return &Client{BaseURL: strings.TrimRight(baseURL, "/"), Token: token, client: hc}
}

// APIError is a non-2xx answer from the server. Code and Line carry the
// script error when a publish was rejected.
type APIError struct {
	Status  int
	Message string
	Code    int
	Line    int
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("server %d: %s (code %d, line %d)", e.Status, e.Message, e.Code, e.Line)
	}
	return fmt.Sprintf("server %d: %s", e.Status, e.Message)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, dest any) error {
	u, err := url.Parse(c.BaseURL + path)
	if err != nil {
		return err
	}
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var ae apiError
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(b, &ae) != nil || ae.Error == "" {
			ae.Error = strings.TrimSpace(string(b))
			if ae.Error == "" {
				ae.Error = resp.Status
			}
		}
		return &APIError{Status: resp.StatusCode, Message: ae.Error, Code: ae.Code, Line: ae.Line}
	}
	if dest == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(dest)
}

// TokenResponse is the answer of POST /api/auth/token.
type TokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

// RequestToken asks the server for a bearer token for subject.
func (c *Client) RequestToken(ctx context.Context, subject string, ttl time.Duration) (TokenResponse, error) {
	var tr TokenResponse
	body := map[string]any{"subject": subject, "ttl_seconds": int64(ttl / time.Second)}
	err := c.doJSON(ctx, http.MethodPost, "/api/auth/token", body, &tr)
	return tr, err
}

// Publish uploads script text under name.
func (c *Client) Publish(ctx context.Context, name, text string) (ScriptInfo, error) {
	var info ScriptInfo
	err := c.doJSON(ctx, http.MethodPost, "/api/scripts", PublishRequest{Name: name, Text: text}, &info)
	return info, err
}

// ListScripts returns the published scripts.
func (c *Client) ListScripts(ctx context.Context) ([]ScriptInfo, error) {
	var list []ScriptInfo
	if err := c.doJSON(ctx, http.MethodGet, "/api/scripts", nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// GetScript fetches one published script with its text.
func (c *Client) GetScript(ctx context.Context, id int64) (*Script, error) {
	var s Script
	if err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/api/scripts/%d", id), nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// DeleteScript removes a published script.
func (c *Client) DeleteScript(ctx context.Context, id int64) error {
	return c.doJSON(ctx, http.MethodDelete, fmt.Sprintf("/api/scripts/%d", id), nil, nil)
}

// Search runs q on the server.
func (c *Client) Search(ctx context.Context, q storage.SearchQuery) ([]storage.SearchResult, error) {
	v := url.Values{}
	if q.Text != "" {
		v.Set("q", q.Text)
	}
	for _, k := range q.Kinds {
		v.Add("kind", k)
	}
	if q.Script != "" {
		v.Set("script", q.Script)
	}
	if q.Property != "" {
		v.Set("property", q.Property)
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		v.Set("offset", strconv.Itoa(q.Offset))
	}
	path := "/api/search"
	if len(v) > 0 {
		path += "?" + v.Encode()
	}
	var res []storage.SearchResult
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &res); err != nil {
		return nil, err
	}
	return res, nil
}
