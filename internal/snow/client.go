// Package snow implements a resilient client for the ServiceNow-style
// Table API: authenticated JSON requests, typed error classification,
// bounded retry with exponential backoff, and bounded pagination.
package snow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/snowops/discovery-agent/internal/config"
	"github.com/snowops/discovery-agent/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tableAPIPath = "/api/now/table"
	statsAPIPath = "/api/now/stats"

	// probeTable is a small table every authenticated user can read;
	// used by TestConnection.
	probeTable = "sys_properties"
)

// Record is one table row as returned by the API. Reference fields may
// arrive as nested {"value": ..., "link": ...} objects.
type Record = map[string]interface{}

// ListOptions controls a table listing request.
type ListOptions struct {
	Query  *Query
	Fields []string
	Limit  int
	Offset int
}

// Client is an immutable table API client. All configuration is fixed at
// construction; a Client is safe for concurrent use.
type Client struct {
	baseURL     string
	username    string
	password    string
	httpClient  *http.Client
	maxRetries  int
	backoffBase time.Duration
	pageSize    int
	logger      *logging.Logger
	metrics     *Metrics
	tracer      trace.Tracer
}

// NewClient creates a client from validated configuration with tuned
// connection pooling. metrics may be nil to disable instrumentation.
func NewClient(cfg *config.Config, metrics *Metrics) *Client {
	transport := &http.Transport{
		// Connection pool settings
		MaxIdleConns:        100,
		MaxConnsPerHost:     20,
		MaxIdleConnsPerHost: 10, // default 2 causes connection churn
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,

		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	return &Client{
		baseURL:  strings.TrimSuffix(cfg.InstanceURL, "/"),
		username: cfg.Username,
		password: cfg.Password,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
		maxRetries:  cfg.MaxRetries,
		backoffBase: time.Duration(cfg.BackoffBaseSeconds * float64(time.Second)),
		pageSize:    cfg.PageSize,
		logger:      logging.GetLogger("snow.client"),
		metrics:     metrics,
		tracer:      otel.Tracer("snow.client"),
	}
}

// PageSize returns the configured default page size
func (c *Client) PageSize() int {
	return c.pageSize
}

// resultEnvelope is the {"result": ...} wrapper on every table API response
type resultEnvelope struct {
	Result json.RawMessage `json:"result"`
}

// apiErrorEnvelope is the error body shape on non-2xx responses
type apiErrorEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Detail  string `json:"detail"`
	} `json:"error"`
}

// List fetches one page of records from a table
func (c *Client) List(ctx context.Context, table string, opts ListOptions) ([]Record, error) {
	params, err := listParams(opts)
	if err != nil {
		return nil, err
	}

	body, err := c.do(ctx, http.MethodGet, tableAPIPath+"/"+url.PathEscape(table), table, params, nil, true)
	if err != nil {
		return nil, err
	}

	var records []Record
	if err := unmarshalResult(body, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// ListAll pages through a table until a short page, maxRecords, or the end
// of data. maxRecords <= 0 falls back to a single configured page, so a
// listing is never unbounded.
func (c *Client) ListAll(ctx context.Context, table string, opts ListOptions, maxRecords int) ([]Record, error) {
	page := c.pageSize
	if opts.Limit > 0 && opts.Limit < page {
		page = opts.Limit
	}
	if maxRecords <= 0 {
		maxRecords = page
	}

	var all []Record
	offset := opts.Offset
	for len(all) < maxRecords {
		want := page
		if remaining := maxRecords - len(all); remaining < want {
			want = remaining
		}

		pageOpts := opts
		pageOpts.Limit = want
		pageOpts.Offset = offset
		records, err := c.List(ctx, table, pageOpts)
		if err != nil {
			return nil, err
		}

		all = append(all, records...)
		if len(records) < want {
			break
		}
		offset += len(records)
	}
	return all, nil
}

// Get fetches a single record by sys_id. A missing record surfaces as a
// typed not_found error.
func (c *Client) Get(ctx context.Context, table, sysID string, fields []string) (Record, error) {
	if err := ValidateSysID(sysID); err != nil {
		return nil, err
	}

	params := url.Values{}
	if len(fields) > 0 {
		params.Set("sysparm_fields", strings.Join(fields, ","))
	}

	body, err := c.do(ctx, http.MethodGet, tableAPIPath+"/"+url.PathEscape(table)+"/"+sysID, table, params, nil, true)
	if err != nil {
		return nil, err
	}

	var record Record
	if err := unmarshalResult(body, &record); err != nil {
		return nil, err
	}
	return record, nil
}

// Create inserts a record. Creates are never auto-retried: a timed-out
// create may have landed, and repeating it would duplicate the record.
func (c *Client) Create(ctx context.Context, table string, fields Record) (Record, error) {
	body, err := c.do(ctx, http.MethodPost, tableAPIPath+"/"+url.PathEscape(table), table, nil, fields, false)
	if err != nil {
		return nil, err
	}

	var record Record
	if err := unmarshalResult(body, &record); err != nil {
		return nil, err
	}
	return record, nil
}

// Update patches fields on an existing record. Idempotent by construction
// (absolute field values, no increments), so transient failures are retried.
func (c *Client) Update(ctx context.Context, table, sysID string, fields Record) (Record, error) {
	if err := ValidateSysID(sysID); err != nil {
		return nil, err
	}

	body, err := c.do(ctx, http.MethodPatch, tableAPIPath+"/"+url.PathEscape(table)+"/"+sysID, table, nil, fields, true)
	if err != nil {
		return nil, err
	}

	var record Record
	if err := unmarshalResult(body, &record); err != nil {
		return nil, err
	}
	return record, nil
}

// Delete removes a record. Idempotent, retried on transient failures.
func (c *Client) Delete(ctx context.Context, table, sysID string) error {
	if err := ValidateSysID(sysID); err != nil {
		return err
	}

	_, err := c.do(ctx, http.MethodDelete, tableAPIPath+"/"+url.PathEscape(table)+"/"+sysID, table, nil, nil, true)
	return err
}

// Count returns the number of records matching q via the aggregate stats
// endpoint, without transferring the records themselves.
func (c *Client) Count(ctx context.Context, table string, q *Query) (int, error) {
	params := url.Values{}
	params.Set("sysparm_count", "true")
	if q != nil {
		encoded, err := q.Encode()
		if err != nil {
			return 0, err
		}
		if encoded != "" {
			params.Set("sysparm_query", encoded)
		}
	}

	body, err := c.do(ctx, http.MethodGet, statsAPIPath+"/"+url.PathEscape(table), table, params, nil, true)
	if err != nil {
		return 0, err
	}

	var result struct {
		Stats struct {
			Count string `json:"count"`
		} `json:"stats"`
	}
	if err := unmarshalResult(body, &result); err != nil {
		return 0, err
	}

	count, err := strconv.Atoi(result.Stats.Count)
	if err != nil {
		return 0, WrapError(KindAPI, "stats endpoint returned a non-numeric count", err)
	}
	return count, nil
}

// TestConnection probes the instance with a minimal single-record read
func (c *Client) TestConnection(ctx context.Context) error {
	_, err := c.List(ctx, probeTable, ListOptions{Limit: 1})
	return err
}

// do executes one request with classification and, when retryable, a
// bounded retry loop. Only transient failures (connection, timeout, 429,
// 5xx) are ever retried; auth and other 4xx fail immediately. When retries
// are exhausted the terminal error keeps its transient classification so
// callers can tell exhaustion from a permanent failure.
func (c *Client) do(ctx context.Context, method, path, table string, params url.Values, payload interface{}, retryable bool) ([]byte, error) {
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	var payloadBytes []byte
	if payload != nil {
		var err error
		payloadBytes, err = json.Marshal(payload)
		if err != nil {
			return nil, WrapError(KindInvalidParameter, "request payload is not serializable", err)
		}
	}

	ctx, span := c.tracer.Start(ctx, "snow.request",
		trace.WithAttributes(
			attribute.String("snow.table", table),
			attribute.String("http.method", method),
		))
	defer span.End()

	attempts := c.maxRetries + 1
	var lastErr *Error
	for attempt := 1; attempt <= attempts; attempt++ {
		body, err := c.doOnce(ctx, method, reqURL, table, payloadBytes)
		if err == nil {
			span.SetStatus(codes.Ok, "")
			return body, nil
		}

		if !errors.As(err, &lastErr) {
			lastErr = WrapError(KindUnknown, "unclassified request failure", err)
		}

		if !retryable || !lastErr.Transient() || attempt == attempts || ctx.Err() != nil {
			break
		}

		delay := time.Duration(float64(c.backoffBase) * math.Pow(2, float64(attempt-1)))
		c.logger.WarnWithFields("transient request failure, retrying",
			logging.Field("table", table),
			logging.Field("method", method),
			logging.Field("attempt", attempt),
			logging.Field("delay", delay.String()),
			logging.Field("error_code", lastErr.Code),
		)
		if c.metrics != nil {
			c.metrics.RetriesTotal.Inc()
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			span.SetStatus(codes.Error, "context cancelled")
			return nil, WrapError(KindTimeout, "request cancelled during backoff", ctx.Err())
		case <-timer.C:
		}
	}

	span.SetStatus(codes.Error, lastErr.Code)
	return nil, lastErr
}

// doOnce performs a single HTTP round trip and classifies the outcome
func (c *Client) doOnce(ctx context.Context, method, reqURL, table string, payload []byte) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return nil, WrapError(KindInvalidParameter, "failed to build request", err)
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(table, method, "error", start)
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	// Always read the body to completion for connection reuse
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.observe(table, method, "error", start)
		return nil, WrapError(KindConnection, "failed to read response body", err)
	}

	c.observe(table, method, strconv.Itoa(resp.StatusCode), start)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}
	return nil, classifyStatus(resp.StatusCode, apiErrorMessage(resp.StatusCode, body))
}

func (c *Client) observe(table, method, code string, start time.Time) {
	if c.metrics == nil {
		return
	}
	c.metrics.RequestsTotal.WithLabelValues(table, method, code).Inc()
	c.metrics.RequestDuration.WithLabelValues(table, method).Observe(time.Since(start).Seconds())
}

// classifyTransportError distinguishes timeouts from other connection
// failures. Both are transient; cancellation is not.
func classifyTransportError(err error) *Error {
	if errors.Is(err, context.Canceled) {
		return WrapError(KindTimeout, "request cancelled", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return WrapError(KindTimeout, "request timed out", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return WrapError(KindTimeout, "request timed out", err)
	}
	return WrapError(KindConnection, "connection failed", err)
}

// apiErrorMessage extracts the error message from a non-2xx body without
// ever echoing request content back
func apiErrorMessage(status int, body []byte) string {
	var envelope apiErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		if envelope.Error.Detail != "" {
			return envelope.Error.Message + ": " + envelope.Error.Detail
		}
		return envelope.Error.Message
	}
	return fmt.Sprintf("request failed with status %d", status)
}

// unmarshalResult decodes the {"result": ...} envelope into out. A body
// that does not parse is a permanent api error, never retried.
func unmarshalResult(body []byte, out interface{}) error {
	var envelope resultEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return WrapError(KindAPI, "malformed response body", err)
	}
	if envelope.Result == nil {
		return NewError(KindAPI, "response missing result envelope")
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return WrapError(KindAPI, "unexpected result shape", err)
	}
	return nil
}

func listParams(opts ListOptions) (url.Values, error) {
	params := url.Values{}
	if opts.Query != nil {
		encoded, err := opts.Query.Encode()
		if err != nil {
			return nil, err
		}
		if encoded != "" {
			params.Set("sysparm_query", encoded)
		}
	}
	if len(opts.Fields) > 0 {
		params.Set("sysparm_fields", strings.Join(opts.Fields, ","))
	}
	if opts.Limit > 0 {
		params.Set("sysparm_limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		params.Set("sysparm_offset", strconv.Itoa(opts.Offset))
	}
	return params, nil
}
