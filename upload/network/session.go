package network

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/saphetor/vc-file-upload/version"
)

const (
	// DefaultConnectTimeout bounds establishing a TCP connection.
	DefaultConnectTimeout = 10 * time.Second
	// DefaultReadTimeout bounds waiting for the response once the request is written.
	DefaultReadTimeout = 60 * time.Second
	// DefaultRetries is the number of retries after the first attempt.
	DefaultRetries = 5
	// DefaultBackoff seeds the exponential backoff between retries.
	DefaultBackoff = time.Second

	maxBackoff = 2 * time.Minute
)

// DefaultRetryCodes are the HTTP statuses retried transparently.
var DefaultRetryCodes = []int{http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusTooManyRequests}

var retryMethods = map[string]bool{
	http.MethodGet:    true,
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodDelete: true,
	http.MethodPatch:  true,
	http.MethodHead:   true,
}

// SessionConfig ...
type SessionConfig struct {
	Token          string
	Retries        int
	Backoff        time.Duration
	RetryCodes     []int
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	UserAgent      string
}

// DefaultSessionConfig returns the session defaults for the given bearer token.
func DefaultSessionConfig(token string) SessionConfig {
	return SessionConfig{
		Token:          token,
		Retries:        DefaultRetries,
		Backoff:        DefaultBackoff,
		RetryCodes:     DefaultRetryCodes,
		ConnectTimeout: DefaultConnectTimeout,
		ReadTimeout:    DefaultReadTimeout,
		UserAgent:      version.UserAgent(),
	}
}

// Session is an authenticated, retrying HTTP client shared by all requests of a batch.
// It holds no per-file state.
type Session struct {
	config  SessionConfig
	headers http.Header
	logger  log.Logger

	mu        sync.Mutex
	clients   map[time.Duration]*retryablehttp.Client
	closeOnce sync.Once
}

// RequestOpt customizes a single request.
type RequestOpt func(*requestOpts)

type requestOpts struct {
	readTimeout time.Duration
}

// WithReadTimeout overrides the read timeout of one request. Zero keeps the session default.
func WithReadTimeout(timeout time.Duration) RequestOpt {
	return func(o *requestOpts) {
		if timeout > 0 {
			o.readTimeout = timeout
		}
	}
}

// NewSession creates a session. It does not perform any network call.
func NewSession(config SessionConfig, logger log.Logger) *Session {
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = DefaultConnectTimeout
	}
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = DefaultReadTimeout
	}
	if config.Retries < 0 {
		config.Retries = 0
	}
	if config.Backoff <= 0 {
		config.Backoff = DefaultBackoff
	}
	if config.RetryCodes == nil {
		config.RetryCodes = DefaultRetryCodes
	}
	if config.UserAgent == "" {
		config.UserAgent = version.UserAgent()
	}

	headers := http.Header{}
	headers.Set("Accept", "application/json")
	headers.Set("Authorization", fmt.Sprintf("Bearer %s", config.Token))
	headers.Set("User-Agent", config.UserAgent)

	return &Session{
		config:  config,
		headers: headers,
		logger:  logger,
		clients: map[time.Duration]*retryablehttp.Client{},
	}
}

// Do sends the request with the session headers, timeouts and retry policy.
// Headers already set on the request take precedence over the session headers.
func (s *Session) Do(req *retryablehttp.Request, opts ...RequestOpt) (*http.Response, error) {
	o := requestOpts{readTimeout: s.config.ReadTimeout}
	for _, opt := range opts {
		opt(&o)
	}

	for key, values := range s.headers {
		if req.Header.Get(key) == "" {
			req.Header[key] = values
		}
	}

	return s.client(o.readTimeout).Do(req)
}

// Close releases idle connections. Calling it more than once is a no-op.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for _, client := range s.clients {
			client.HTTPClient.CloseIdleConnections()
		}
	})
}

func (s *Session) client(readTimeout time.Duration) *retryablehttp.Client {
	s.mu.Lock()
	defer s.mu.Unlock()

	if client, ok := s.clients[readTimeout]; ok {
		return client
	}
	client := s.newClient(readTimeout)
	s.clients[readTimeout] = client
	return client
}

func (s *Session) newClient(readTimeout time.Duration) *retryablehttp.Client {
	transport := cleanhttp.DefaultPooledTransport()
	dialer := &net.Dialer{
		Timeout:   s.config.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}
	transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := dialer.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		return &idleTimeoutConn{Conn: conn, timeout: readTimeout}, nil
	}
	transport.ResponseHeaderTimeout = readTimeout

	client := retryhttp.NewClient(s.logger)
	client.HTTPClient = &http.Client{Transport: transport}
	client.RetryMax = s.config.Retries
	client.RetryWaitMin = s.config.Backoff
	client.RetryWaitMax = maxBackoff
	client.Backoff = retryablehttp.DefaultBackoff
	client.CheckRetry = newRetryPolicy(s.config.RetryCodes, s.logger)
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return client
}

// idleTimeoutConn fails a read once the connection made no progress for timeout.
// Writes push the read deadline too, so a long request body does not trip it.
type idleTimeoutConn struct {
	net.Conn
	timeout time.Duration
}

func (c *idleTimeoutConn) Read(b []byte) (int, error) {
	if err := c.Conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Read(b)
}

func (c *idleTimeoutConn) Write(b []byte) (int, error) {
	n, err := c.Conn.Write(b)
	if n > 0 {
		_ = c.Conn.SetReadDeadline(time.Now().Add(c.timeout))
	}
	return n, err
}

// newRetryPolicy retries transport errors and the given status codes for the standard methods.
func newRetryPolicy(codes []int, logger log.Logger) retryablehttp.CheckRetry {
	retryable := map[int]bool{}
	for _, code := range codes {
		retryable[code] = true
	}

	return func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}

		if err != nil {
			retry, policyErr := retryablehttp.DefaultRetryPolicy(ctx, resp, err)
			logger.Debugf("CheckRetry: retry=%v ; err=%+v ; requestErr=%+v", retry, policyErr, err)
			return retry, policyErr
		}

		if !retryable[resp.StatusCode] {
			return false, nil
		}
		if req := resp.Request; req != nil {
			if !retryMethods[req.Method] {
				return false, nil
			}
			logger.Debugf("CheckRetry: retrying %s %s after HTTP %d", req.Method, req.URL.Redacted(), resp.StatusCode)
		}
		return true, nil
	}
}
