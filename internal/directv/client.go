// Copyright 2025 Arion Yau
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package directv talks to DirecTV receivers over their local HTTP/JSON API.
package directv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"dtvctl/internal"
	"dtvctl/internal/logger"
)

// Response is a successful (non-error) receiver reply
type Response struct {
	StatusCode  int
	ContentType string
	// Data holds the decoded object for JSON replies
	Data map[string]any
	// Text holds the raw body
	Text string
}

// IsJSON reports whether the body was decoded as a JSON object
func (r *Response) IsJSON() bool {
	return r.Data != nil
}

// Client issues single requests against one receiver and classifies the outcome
type Client struct {
	host      string
	port      int
	basePath  string
	username  string
	password  string
	timeout   time.Duration
	userAgent string

	mu         sync.Mutex
	httpClient *http.Client
	ownsClient bool

	modeOpts *internal.FnModeOptions
	logger   zerolog.Logger
}

// NewClient creates a client for the receiver at host
func NewClient(host string, opts ...Option) *Client {
	c := &Client{
		host:       host,
		port:       DefaultPort,
		basePath:   DefaultBasePath,
		timeout:    DefaultTimeout,
		userAgent:  DefaultUserAgent,
		ownsClient: true,
		modeOpts:   internal.NewModeOptions(),
		logger:     logger.Component("directv"),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Host returns the receiver host name or address
func (c *Client) Host() string {
	return c.host
}

// BaseURL returns http://host:port/basePath
func (c *Client) BaseURL() string {
	return fmt.Sprintf("http://%s%s", net.JoinHostPort(c.host, strconv.Itoa(c.port)), c.basePath)
}

func (c *Client) session() *http.Client {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.httpClient == nil {
		var transport http.RoundTripper
		if c.modeOpts.Test {
			transport = NewSimulator()
		} else {
			transport = http.DefaultTransport.(*http.Transport).Clone()
		}
		c.httpClient = &http.Client{Transport: transport}
		c.ownsClient = true
	}

	return c.httpClient
}

// Request performs one call. Non-2xx replies and transport failures come back as *Error.
func (c *Client) Request(ctx context.Context, method, uri string, params url.Values, body io.Reader) (*Response, error) {
	target := c.BaseURL() + strings.TrimPrefix(uri, "/")
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, newError(fmt.Sprintf("Invalid request: %v", err), nil)
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", acceptHeader)
	if c.username != "" && c.password != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	if c.modeOpts.Debug {
		c.logger.Debug().
			Str("method", method).
			Str("url", target).
			Msg("Sending receiver request")
	}

	resp, err := c.session().Do(req)
	if err != nil {
		return nil, c.connectionError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.connectionError(err)
	}

	contentType := resp.Header.Get("Content-Type")

	if c.modeOpts.Debug {
		c.logger.Debug().
			Int("status", resp.StatusCode).
			Str("content_type", contentType).
			Int("bytes", len(raw)).
			Msg("Receiver request completed")
	}

	if resp.StatusCode == http.StatusForbidden {
		return nil, newAccessRestrictedError()
	}

	if resp.StatusCode >= 400 {
		return nil, c.responseError(resp.StatusCode, contentType, raw)
	}

	response := &Response{
		StatusCode:  resp.StatusCode,
		ContentType: contentType,
		Text:        string(raw),
	}

	// an empty 2xx JSON body leaves Data nil
	if isJSONContentType(contentType) && len(bytes.TrimSpace(raw)) > 0 {
		data, err := decodeObject(raw)
		if err != nil {
			return nil, newError(msgInvalidJSON, map[string]any{
				"content-type": contentType,
				"message":      err.Error(),
				"status-code":  resp.StatusCode,
			})
		}
		response.Data = data
	}

	return response, nil
}

// Get issues a GET with query parameters
func (c *Client) Get(ctx context.Context, uri string, params url.Values) (*Response, error) {
	return c.Request(ctx, http.MethodGet, uri, params, nil)
}

// Close releases the HTTP client if this Client created it
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.httpClient != nil && c.ownsClient {
		c.httpClient.CloseIdleConnections()
		c.httpClient = nil
	}
	return nil
}

func (c *Client) connectionError(err error) *Error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		c.logger.Debug().Err(err).Str("host", c.host).Msg("Receiver request timed out")
		return newConnectionError(msgTimeout, err)
	}
	c.logger.Debug().Err(err).Str("host", c.host).Msg("Receiver request failed")
	return newConnectionError(msgCommunication, err)
}

func (c *Client) responseError(status int, contentType string, raw []byte) *Error {
	message := fmt.Sprintf("HTTP %d", status)

	if isJSONContentType(contentType) {
		if detail, err := decodeObject(raw); err == nil {
			return newError(message, detail)
		}
	}

	return newError(message, map[string]any{
		"content-type": contentType,
		"message":      string(raw),
		"status-code":  status,
	})
}

func isJSONContentType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.Contains(strings.ToLower(contentType), "application/json")
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

func decodeObject(raw []byte) (map[string]any, error) {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()

	var data map[string]any
	if err := decoder.Decode(&data); err != nil {
		return nil, err
	}
	if data == nil {
		data = map[string]any{}
	}
	return data, nil
}
