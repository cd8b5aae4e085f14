package directv

import (
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"dtvctl/internal"
)

// Option configures a Client or Receiver
type Option func(*Client)

// WithPort overrides the receiver API port (default 8080)
func WithPort(port int) Option {
	return func(c *Client) {
		if port > 0 {
			c.port = port
		}
	}
}

// WithBasePath sets the path prefix in front of every endpoint
func WithBasePath(basePath string) Option {
	return func(c *Client) {
		c.basePath = normalizeBasePath(basePath)
	}
}

// WithCredentials enables HTTP Basic auth when both values are non-empty
func WithCredentials(username, password string) Option {
	return func(c *Client) {
		c.username = username
		c.password = password
	}
}

// WithTimeout bounds every individual request
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		if userAgent != "" {
			c.userAgent = userAgent
		}
	}
}

// WithHTTPClient supplies a caller-owned client; Close never touches it
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
			c.ownsClient = false
		}
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = log
	}
}

// WithModeOptions switches on debug logging and the in-process simulator
func WithModeOptions(opts *internal.FnModeOptions) Option {
	return func(c *Client) {
		if opts != nil {
			c.modeOpts = opts
		}
	}
}

func normalizeBasePath(basePath string) string {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return DefaultBasePath
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	if !strings.HasSuffix(basePath, "/") {
		basePath += "/"
	}
	return basePath
}
