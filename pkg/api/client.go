package api

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/rerobots/client-go/pkg/telemetry"
)

// DefaultBaseURI is the production API origin.
const DefaultBaseURI = "https://api.rerobots.net"

// TokenEnvVar is the environment variable consulted for an API token when
// the configuration does not carry one and IgnoreEnvironment is false.
const TokenEnvVar = "REROBOTS_API_TOKEN"

const defaultRequestTimeout = 30 * time.Second

// Config configures a Client. The zero value is usable for anonymous calls
// against the production API.
type Config struct {
	// BaseURI overrides the API origin, e.g. for a mock server in tests.
	// Empty means DefaultBaseURI.
	BaseURI string

	// Token is the API bearer token. When set it takes precedence over
	// TokenProvider and the environment.
	Token string

	// TokenProvider, when non-nil and Token is empty, is consulted on every
	// request. This lets callers pick up rotated credentials from a file
	// without rebuilding the client.
	TokenProvider func() (string, error)

	// IgnoreEnvironment disables the TokenEnvVar fallback. The environment
	// is read exactly once, during New, never later.
	IgnoreEnvironment bool

	// Insecure disables TLS certificate verification. Only for test targets.
	Insecure bool

	// HTTPClient overrides the underlying HTTP client. When set, Insecure
	// is ignored.
	HTTPClient *http.Client

	// Logger receives per-request debug events. The zero value is silent.
	Logger zerolog.Logger

	// Metrics, when non-nil, records request counts and latencies.
	Metrics *telemetry.Metrics

	// Tracer, when non-nil, wraps each request in a span.
	Tracer *telemetry.Tracer
}

// Client issues authenticated requests against the rerobots API and maps
// non-success responses onto the typed error taxonomy. It performs no
// retries itself; retry policy belongs to callers, which know whether an
// operation is safe to repeat.
//
// A Client holds no per-call mutable state beyond its static headers, so it
// may be shared across goroutines.
type Client struct {
	baseURI       string
	token         string
	tokenProvider func() (string, error)
	headers       http.Header
	hc            *http.Client
	log           zerolog.Logger
	metrics       *telemetry.Metrics
	tracer        *telemetry.Tracer
}

// New creates a Client from cfg. The token is resolved here: an explicit
// Token wins, then TokenProvider (consulted per request), then TokenEnvVar
// unless IgnoreEnvironment is set.
func New(cfg Config) (*Client, error) {
	baseURI := cfg.BaseURI
	if baseURI == "" {
		baseURI = DefaultBaseURI
	}
	baseURI = strings.TrimRight(baseURI, "/")
	if _, err := url.Parse(baseURI); err != nil {
		return nil, NewValidationError("new client", "invalid base URI: "+baseURI)
	}

	token := cfg.Token
	if token == "" && cfg.TokenProvider == nil && !cfg.IgnoreEnvironment {
		token = strings.TrimSpace(os.Getenv(TokenEnvVar))
	}

	hc := cfg.HTTPClient
	if hc == nil {
		transport := http.DefaultTransport
		if cfg.Insecure {
			transport = &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			}
		}
		hc = &http.Client{
			Timeout:   defaultRequestTimeout,
			Transport: transport,
		}
	}

	return &Client{
		baseURI:       baseURI,
		token:         token,
		tokenProvider: cfg.TokenProvider,
		headers:       make(http.Header),
		hc:            hc,
		log:           cfg.Logger,
		metrics:       cfg.Metrics,
		tracer:        cfg.Tracer,
	}, nil
}

// AddHeader adds a supplemental header sent with every request. Supplemental
// headers accumulate across calls. A held token cannot be overridden this
// way: the Authorization header derived from it is applied last.
func (c *Client) AddHeader(key, value string) {
	c.headers.Add(key, value)
}

// BaseURI returns the API origin this client talks to.
func (c *Client) BaseURI() string {
	return c.baseURI
}

// HasToken reports whether the client will attach an Authorization header.
func (c *Client) HasToken() bool {
	return c.token != "" || c.tokenProvider != nil
}

func (c *Client) bearerToken() (string, error) {
	if c.token != "" {
		return c.token, nil
	}
	if c.tokenProvider != nil {
		return c.tokenProvider()
	}
	return "", nil
}

// do performs one API call. op names the operation for errors, metrics and
// spans. body, when non-nil, is marshaled as JSON. out, when non-nil,
// receives the decoded 2xx response body.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, out any) (err error) {
	if c.tracer != nil {
		var span trace.Span
		ctx, span = c.tracer.StartRequestSpan(ctx, op, method, path)
		defer func() {
			if err != nil {
				telemetry.RecordError(span, err)
			} else {
				telemetry.RecordSuccess(span)
			}
			span.End()
		}()
	}

	uri := c.baseURI + path
	if len(query) > 0 {
		uri += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &Error{Kind: KindValidation, Op: op, Message: "encoding request body", Err: err}
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, uri, reqBody)
	if err != nil {
		return &Error{Kind: KindValidation, Op: op, Message: "building request", Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-ID", uuid.New().String())
	for key, values := range c.headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	token, err := c.bearerToken()
	if err != nil {
		return &Error{Kind: KindAuth, Op: op, Message: "resolving API token", Err: err}
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	res, err := c.hc.Do(req)
	if err != nil {
		c.record(op, 0, time.Since(start))
		return NewTransportError(op, err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	elapsed := time.Since(start)
	c.record(op, res.StatusCode, elapsed)
	c.log.Debug().
		Str("op", op).
		Str("method", method).
		Str("path", path).
		Int("status", res.StatusCode).
		Dur("elapsed", elapsed).
		Msg("api request")
	if err != nil {
		return NewTransportError(op, err)
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		var payload errorPayload
		_ = json.Unmarshal(data, &payload)
		text := payload.text()
		if text == "" {
			text = strings.TrimSpace(string(data))
		}
		return classifyRemote(op, res.StatusCode, text)
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return &Error{Kind: KindRemote, Op: op, StatusCode: res.StatusCode, Message: "malformed response body", Err: err}
		}
	}
	return nil
}

func (c *Client) record(op string, statusCode int, elapsed time.Duration) {
	if c.metrics != nil {
		c.metrics.RecordAPIRequest(op, statusCode, elapsed)
	}
}
