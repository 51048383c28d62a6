// Package api is the REST client for the shipments service.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Tanmoy095/LogiSynapse/services/tracker/internal/crypto"
	domainErr "github.com/Tanmoy095/LogiSynapse/services/tracker/internal/domain/errors"
	"github.com/Tanmoy095/LogiSynapse/shared/contracts"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	DefaultBaseURL = "http://localhost:5000/api"
	DefaultTimeout = 10 * time.Second

	maxBodyBytes = 4 << 20
)

// ShipmentClient talks to the shipments REST API.
// Every request carries a fingerprint and a request id; every failure comes
// back as *Error.
type ShipmentClient struct {
	baseURL string
	token   string
	http    *http.Client
	breaker *Breaker
	logger  *slog.Logger
	now     func() time.Time
}

type Option func(*ShipmentClient)

// WithToken sets the bearer token sent on every request.
func WithToken(token string) Option { return func(c *ShipmentClient) { c.token = token } }

func WithHTTPClient(h *http.Client) Option { return func(c *ShipmentClient) { c.http = h } }

func WithBreaker(b *Breaker) Option { return func(c *ShipmentClient) { c.breaker = b } }

func WithLogger(l *slog.Logger) Option { return func(c *ShipmentClient) { c.logger = l } }

func WithClock(now func() time.Time) Option {
	return func(c *ShipmentClient) {
		c.now = now
		if c.breaker != nil {
			c.breaker.now = now
		}
	}
}

func NewShipmentClient(baseURL string, opts ...Option) (*ShipmentClient, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		return nil, fmt.Errorf("%w: api base url %q must be http(s)", domainErr.ErrConfiguration, baseURL)
	}
	// client spans propagate trace context to the shipments service
	httpClient := &http.Client{
		Timeout:   DefaultTimeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	c := &ShipmentClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		breaker: NewBreaker(DefaultFailureThreshold, DefaultFailureWindow),
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// response is the {data: ..., message: ...} wrapper the service returns.
type response struct {
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

// ListShipments calls GET /shipments.
func (c *ShipmentClient) ListShipments(ctx context.Context) ([]contracts.ShipmentRecord, error) {
	data, err := c.do(ctx, http.MethodGet, "/shipments", nil)
	if err != nil {
		return nil, err
	}
	var records []contracts.ShipmentRecord
	// data must be a JSON array; null or an object is a malformed body
	if len(data) == 0 || data[0] != '[' || json.Unmarshal(data, &records) != nil {
		return nil, c.invalidResponse("/shipments")
	}
	return records, nil
}

// CreateShipment calls POST /shipments.
func (c *ShipmentClient) CreateShipment(ctx context.Context, input contracts.CreateShipmentInput) (contracts.ShipmentRecord, error) {
	data, err := c.do(ctx, http.MethodPost, "/shipments", input)
	if err != nil {
		return contracts.ShipmentRecord{}, err
	}
	var record contracts.ShipmentRecord
	if len(data) == 0 || data[0] != '{' || json.Unmarshal(data, &record) != nil {
		return contracts.ShipmentRecord{}, c.invalidResponse("/shipments")
	}
	return record, nil
}

func (c *ShipmentClient) invalidResponse(endpoint string) *Error {
	c.logger.Error("api response has invalid structure", slog.String("endpoint", endpoint))
	return &Error{Code: http.StatusInternalServerError, Message: "invalid response structure", Timestamp: c.now().UTC()}
}

func (c *ShipmentClient) do(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	if !c.breaker.Allow() {
		c.logger.Warn("circuit breaker open, request not sent", slog.String("endpoint", path))
		return nil, circuitOpenError()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, ValidationError(fmt.Sprintf("cannot encode request: %v", err))
		}
		reader = bytes.NewReader(b)
	}
	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, ValidationError(fmt.Sprintf("cannot build request: %v", err))
	}
	c.prepareHeaders(req, body != nil)

	resp, err := c.http.Do(req)
	if err != nil {
		// the caller gave up; the service is not at fault
		if ctx.Err() != nil {
			return nil, canceledError(ctx.Err())
		}
		c.logger.Error("network failure", slog.String("endpoint", path), slog.Any("error", err))
		return nil, c.fail(networkError(err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		if ctx.Err() != nil {
			return nil, canceledError(ctx.Err())
		}
		return nil, c.fail(networkError(err))
	}

	var envelope response
	decodeErr := json.Unmarshal(raw, &envelope)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		message := envelope.Message
		if decodeErr != nil || message == "" {
			message = http.StatusText(resp.StatusCode)
		}
		apiErr := &Error{Code: resp.StatusCode, Message: message, Timestamp: c.now().UTC()}
		c.logger.Error("api error",
			slog.Int("status", resp.StatusCode),
			slog.String("endpoint", path),
			slog.String("message", message),
		)
		return nil, c.fail(apiErr)
	}

	if decodeErr != nil {
		return nil, c.invalidResponse(path)
	}
	c.breaker.Success()
	return envelope.Data, nil
}

// fail records the failure on the breaker. The call that trips it is
// reported as the service being unavailable.
func (c *ShipmentClient) fail(apiErr *Error) error {
	if !IsRetryable(apiErr) {
		return apiErr
	}
	if c.breaker.Failure() {
		c.logger.Error("circuit breaker tripped")
		open := circuitOpenError()
		open.Timestamp = c.now().UTC()
		return open
	}
	return apiErr
}

func (c *ShipmentClient) prepareHeaders(req *http.Request, hasBody bool) {
	// fingerprint: sha256("<method>-<url>-<unix ms>")
	fingerprint := fmt.Sprintf("%s-%s-%s", strings.ToLower(req.Method), req.URL.String(), strconv.FormatInt(c.now().UnixMilli(), 10))
	req.Header.Set("X-Request-Fingerprint", crypto.HashString(fingerprint))
	req.Header.Set("X-Request-ID", strings.ReplaceAll(uuid.NewString(), "-", ""))
	req.Header.Set("X-Content-Type-Options", "nosniff")
	req.Header.Set("Content-Security-Policy", "default-src 'self'")
	req.Header.Set("Accept", "application/json")
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
