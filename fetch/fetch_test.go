package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func testClient() *Client {
	c := New(1000, 10)
	c.Backoff = time.Millisecond
	return c
}

func TestClient_Decimal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"rates":{"VND":25431.5,"EUR":"0.92"},"list":[[1,"40000.01"]]}`))
	}))
	defer srv.Close()

	testCases := []struct {
		path string
		want string
	}{
		{"$.rates.VND", "25431.5"},
		{"$.rates.EUR", "0.92"},
		{"$.list[0][1]", "40000.01"},
	}
	for _, tc := range testCases {
		got, err := testClient().Decimal(context.Background(), srv.URL, tc.path)
		if err != nil {
			t.Errorf("Decimal(%q) unexpected error: %v", tc.path, err)
			continue
		}
		if !got.Equal(decimal.RequireFromString(tc.want)) {
			t.Errorf("Decimal(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
	if _, err := testClient().Decimal(context.Background(), srv.URL, "$.rates.XXX"); err == nil {
		t.Error("Decimal(missing) expected an error")
	}
}

func TestClient_Retry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`[1]`))
	}))
	defer srv.Close()

	if _, err := testClient().Get(context.Background(), srv.URL); err != nil {
		t.Fatalf("Get() unexpected error: %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("Get() made %d calls, want 3", got)
	}
}

func TestClient_NoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"code":-1121,"msg":"Invalid symbol."}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := testClient().Get(context.Background(), srv.URL)
	if !NotFound(err) {
		t.Errorf("Get() error = %v, want a not found status", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("Get() made %d calls, want 1", got)
	}
}

func TestClient_GiveUp(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := testClient()
	c.Retries = 2
	if _, err := c.Get(context.Background(), srv.URL); err == nil {
		t.Error("Get() expected an error")
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("Get() made %d calls, want 3", got)
	}
}

func TestClient_Header(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-cg-demo-api-key") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := testClient()
	c.Header.Set("x-cg-demo-api-key", "secret")
	if _, err := c.Get(context.Background(), srv.URL); err != nil {
		t.Errorf("Get() unexpected error: %v", err)
	}
}

func TestToDecimal(t *testing.T) {
	for _, v := range []any{nil, true, map[string]any{}} {
		if _, err := ToDecimal(v); err == nil {
			t.Errorf("ToDecimal(%v) expected an error", v)
		}
	}
}
