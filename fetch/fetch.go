// Package fetch reads JSON documents from public price APIs.
//
// Requests are rate limited, retried with exponential backoff on transport errors,
// 429 and 5xx answers, and values are extracted with JSONPath expressions.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/PaesslerAG/jsonpath"
	"github.com/etnz/taxlot/logger"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// StatusError is a non 2xx HTTP answer.
type StatusError struct {
	URL    string
	Code   int
	Status string
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("cannot http GET %s: %s", e.URL, e.Status)
}

// Retryable reports whether the request may succeed later.
func (e *StatusError) Retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// NotFound reports whether the server answered that the resource does not exist.
// Some APIs answer 400 for an unknown symbol.
func NotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && (se.Code == http.StatusNotFound || se.Code == http.StatusBadRequest)
}

// Client is a rate limited, retrying JSON client.
type Client struct {
	HTTP    *http.Client
	Limiter *rate.Limiter
	Retries int           // attempts after the first one
	Backoff time.Duration // first retry delay, doubled on each retry
	Header  http.Header   // added to every request, e.g. API keys
}

// New returns a Client allowing rps requests per second with the given burst.
func New(rps float64, burst int) *Client {
	return &Client{
		HTTP:    &http.Client{Timeout: 10 * time.Second},
		Limiter: rate.NewLimiter(rate.Limit(rps), burst),
		Retries: 3,
		Backoff: 500 * time.Millisecond,
		Header:  make(http.Header),
	}
}

// get performs a single GET and returns the body of a 2xx answer.
func (c *Client) get(ctx context.Context, addr string) ([]byte, error) {
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range c.Header {
		req.Header[k] = v
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(resp.Body, 8<<20)); err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Debug("http get", "host", req.URL.Host, "path", req.URL.Path, "status", resp.StatusCode)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body := buf.String()
		if len(body) > 200 {
			body = body[:200]
		}
		return nil, &StatusError{URL: req.URL.Host + req.URL.Path, Code: resp.StatusCode, Status: resp.Status, Body: body}
	}
	return buf.Bytes(), nil
}

// Get returns the body of addr, retrying transient failures.
func (c *Client) Get(ctx context.Context, addr string) ([]byte, error) {
	delay := c.Backoff
	for attempt := 0; ; attempt++ {
		body, err := c.get(ctx, addr)
		if err == nil {
			return body, nil
		}
		var se *StatusError
		if errors.As(err, &se) && !se.Retryable() {
			return nil, err
		}
		if ctx.Err() != nil || attempt >= c.Retries {
			return nil, fmt.Errorf("after %d attempts: %w", attempt+1, err)
		}
		logger.FromContext(ctx).Warn("retrying http get", "attempt", attempt+1, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
}

// JSON gets addr and unmarshals the answer into data.
func (c *Client) JSON(ctx context.Context, addr string, data any) error {
	body, err := c.Get(ctx, addr)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, data)
}

// Path gets addr and returns the value at the JSONPath path.
// Numbers are kept as json.Number.
func (c *Client) Path(ctx context.Context, addr, path string) (any, error) {
	body, err := c.Get(ctx, addr)
	if err != nil {
		return nil, err
	}
	return Extract(body, path)
}

// Extract returns the value at path in a JSON document.
func Extract(body []byte, path string) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var jobj any
	if err := dec.Decode(&jobj); err != nil {
		return nil, fmt.Errorf("decoding json: %w", err)
	}
	jval, err := jsonpath.Get(path, jobj)
	if err != nil {
		return nil, fmt.Errorf("evaluating %q: %w", path, err)
	}
	// jsonpath may answer a list of one value: keep the first one.
	if jlist, ok := jval.([]any); ok {
		if len(jlist) == 0 {
			return nil, fmt.Errorf("evaluating %q: no value", path)
		}
		jval = jlist[0]
	}
	return jval, nil
}

// Decimal gets addr and reads the number at path. It accepts JSON numbers and numeric strings.
func (c *Client) Decimal(ctx context.Context, addr, path string) (decimal.Decimal, error) {
	jval, err := c.Path(ctx, addr, path)
	if err != nil {
		return decimal.Zero, err
	}
	return ToDecimal(jval)
}

// ToDecimal converts a decoded JSON value to a decimal.
func ToDecimal(jval any) (decimal.Decimal, error) {
	switch v := jval.(type) {
	case json.Number:
		return decimal.NewFromString(v.String())
	case string:
		return decimal.NewFromString(v)
	case float64:
		return decimal.NewFromFloat(v), nil
	case nil:
		return decimal.Zero, errors.New("no value")
	default:
		return decimal.Zero, fmt.Errorf("not a number: %v", jval)
	}
}
