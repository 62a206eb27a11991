package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/etnz/taxlot"
	"github.com/etnz/taxlot/date"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

const records = `{"key":"1","time":"2025-03-01T10:00:00Z","type":"buy","asset":"ETH","amount":"1","price":"2400"}
{"key":"2","time":"2025-05-01T10:00:00Z","type":"swap","asset":"ETH","amount":"1","secondaryAsset":"BTC","secondaryAmount":"0.05"}
{"key":"3","time":"2025-05-02T10:00:00Z","type":"staking_reward","asset":"SOL","amount":"2"}
`

// envelope is the wire form of a taxlot.Result.
type envelope struct {
	Status   string          `json:"status"`
	Message  string          `json:"message"`
	Kind     string          `json:"kind"`
	Data     json.RawMessage `json:"data"`
	Problems []struct {
		Kind string `json:"kind"`
		Ref  string `json:"ref"`
	} `json:"problems"`
}

func newTestServer(t *testing.T, opts Options) *httptest.Server {
	t.Helper()
	prices := map[string]int64{"BTC": 40000, "ETH": 2400, "SOL": 150}
	source := taxlot.PriceSourceFunc(func(_ context.Context, asset string, day date.Date) (taxlot.PriceQuote, error) {
		p, ok := prices[asset]
		if !ok {
			return taxlot.PriceQuote{}, fmt.Errorf("%w: %s", taxlot.ErrPriceUnavailable, asset)
		}
		return taxlot.PriceQuote{Asset: asset, Day: day, Price: decimal.NewFromInt(p)}, nil
	})
	store := taxlot.NewMemoryStore()
	resolver := taxlot.NewResolver(source, nil, store, taxlot.ResolverOptions{
		Base:       "USD",
		National:   "VND",
		ManualRate: decimal.NewFromInt(25000),
	})
	e, err := taxlot.NewEngine(store, resolver, taxlot.NewNormalizer("USD"), taxlot.Options{Rates: taxlot.DefaultRates()})
	require.NoError(t, err)

	ts := httptest.NewServer(New(e, opts).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, method, url, contentType, body string) (int, envelope) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	if resp.Header.Get("Content-Type") == "application/json" {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	}
	return resp.StatusCode, env
}

func importRecords(t *testing.T, ts *httptest.Server) envelope {
	t.Helper()
	code, env := do(t, http.MethodPost, ts.URL+"/api/import?provenance=wallet", "application/x-ndjson", records)
	require.Equal(t, http.StatusOK, code)
	return env
}

func TestImport(t *testing.T) {
	ts := newTestServer(t, Options{})
	env := importRecords(t, ts)
	assert.Equal(t, "success", env.Status, env.Message)

	var report struct {
		BatchID    string            `json:"batchId"`
		Accepted   []json.RawMessage `json:"accepted"`
		Duplicates []string          `json:"duplicates"`
		NewLots    int               `json:"newLots"`
		Events     []json.RawMessage `json:"events"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &report))
	assert.NotEmpty(t, report.BatchID)
	assert.Len(t, report.Accepted, 3)
	assert.Equal(t, 3, report.NewLots)
	assert.Len(t, report.Events, 3)

	// A second import of the same records only reports duplicates.
	env = importRecords(t, ts)
	require.NoError(t, json.Unmarshal(env.Data, &report))
	assert.Empty(t, report.Accepted)
	assert.Len(t, report.Duplicates, 3)
}

func TestImport_CSV(t *testing.T) {
	ts := newTestServer(t, Options{})
	body := "date,type,token,amount,price\n2025-03-01T10:00:00Z,buy,ETH,1,2400\n"
	code, env := do(t, http.MethodPost, ts.URL+"/api/import", "text/csv", body)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "success", env.Status, env.Message)

	var report struct {
		Provenance string `json:"provenance"`
		NewLots    int    `json:"newLots"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &report))
	assert.Equal(t, taxlot.ProvenanceCSV, report.Provenance)
	assert.Equal(t, 1, report.NewLots)
}

func TestImport_Partial(t *testing.T) {
	ts := newTestServer(t, Options{})
	body := `{"key":"p","time":"2025-05-02T10:00:00Z","type":"airdrop","asset":"PEPE","amount":"1000"}
{"key":"bad","time":"2025-05-02T10:00:00Z","type":"buy","asset":"ETH","amount":"-1"}
`
	code, env := do(t, http.MethodPost, ts.URL+"/api/import", "", body)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "partial", env.Status)
	assert.NotEmpty(t, env.Problems)
}

func TestImport_BadRequest(t *testing.T) {
	testCases := []struct {
		name string
		url  string
		body string
	}{
		{"format", "/api/import?format=xml", "<records/>"},
		{"malformed json", "/api/import", "{not json\n"},
		{"csv header", "/api/import?format=csv", "a,b,c\n1,2,3\n"},
		{"too large", "/api/import", strings.Repeat(" ", 2048) + "\n"},
	}
	ts := newTestServer(t, Options{MaxUploadBytes: 1024})
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			code, env := do(t, http.MethodPost, ts.URL+tc.url, "", tc.body)
			assert.Equal(t, http.StatusBadRequest, code)
			assert.Equal(t, "failure", env.Status)
			assert.Equal(t, "validation", env.Kind)
		})
	}
}

func TestQueries(t *testing.T) {
	ts := newTestServer(t, Options{Bucketing: taxlot.ByMonth})
	importRecords(t, ts)

	t.Run("transactions", func(t *testing.T) {
		code, env := do(t, http.MethodGet, ts.URL+"/api/transactions?asset=btc", "", "")
		require.Equal(t, http.StatusOK, code)
		var txs []struct {
			ID    string `json:"id"`
			Class string `json:"class"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &txs))
		require.Len(t, txs, 1)
		assert.Equal(t, "exchange", txs[0].Class)

		code, env = do(t, http.MethodGet, ts.URL+"/api/transactions?from=2025-05-01&to=2025-05-01&class=exchange,reward-income", "", "")
		require.Equal(t, http.StatusOK, code)
		require.NoError(t, json.Unmarshal(env.Data, &txs))
		assert.Len(t, txs, 1)
	})

	t.Run("events", func(t *testing.T) {
		code, env := do(t, http.MethodGet, ts.URL+"/api/events?from=2025-05-01", "", "")
		require.Equal(t, http.StatusOK, code)
		var events []struct {
			TxID      string `json:"txId"`
			Treatment string `json:"treatment"`
			Status    string `json:"status"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &events))
		require.Len(t, events, 2)
		assert.Equal(t, "transfer-tax", events[0].Treatment)
		assert.Equal(t, "other-income-tax", events[1].Treatment)
	})

	t.Run("summary", func(t *testing.T) {
		code, env := do(t, http.MethodGet, ts.URL+"/api/summary?bucketing=quarter", "", "")
		require.Equal(t, http.StatusOK, code)
		var s struct {
			Buckets []struct {
				Key string `json:"key"`
			} `json:"buckets"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &s))
		require.Len(t, s.Buckets, 2)
		assert.Equal(t, "2025-Q1", s.Buckets[0].Key)
		assert.Equal(t, "2025-Q2", s.Buckets[1].Key)
	})

	t.Run("lots", func(t *testing.T) {
		code, env := do(t, http.MethodGet, ts.URL+"/api/lots?until=2025-04-30", "", "")
		require.Equal(t, http.StatusOK, code)
		var lots []struct {
			Asset string `json:"asset"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &lots))
		require.Len(t, lots, 1)
		assert.Equal(t, "ETH", lots[0].Asset)
	})

	t.Run("holdings", func(t *testing.T) {
		code, env := do(t, http.MethodGet, ts.URL+"/api/holdings", "", "")
		require.Equal(t, http.StatusOK, code)
		var h map[string]taxlot.Quantity
		require.NoError(t, json.Unmarshal(env.Data, &h))
		assert.True(t, h["BTC"].Equal(taxlot.Q(0.05)))
		assert.True(t, h["SOL"].Equal(taxlot.Q(2)))
		_, eth := h["ETH"]
		assert.False(t, eth, "ETH was swapped away")
	})

	t.Run("rate", func(t *testing.T) {
		code, env := do(t, http.MethodGet, ts.URL+"/api/rate?date=2025-05-01", "", "")
		require.Equal(t, http.StatusOK, code)
		var c struct {
			Rate   json.Number `json:"rate"`
			Source string      `json:"source"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &c))
		assert.Equal(t, "25000", c.Rate.String())
		assert.Equal(t, "manual", c.Source)
	})

	t.Run("recompute", func(t *testing.T) {
		code, env := do(t, http.MethodPost, ts.URL+"/api/recompute", "", "")
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, "success", env.Status)
	})
}

func TestQueries_BadRequest(t *testing.T) {
	ts := newTestServer(t, Options{})
	for _, url := range []string{
		"/api/summary?bucketing=week",
		"/api/transactions?from=yesterday",
		"/api/transactions?class=gift",
		"/api/events?to=2025-13-01",
		"/api/lots?until=soon",
		"/api/rate?date=01/05/2025",
	} {
		t.Run(url, func(t *testing.T) {
			code, env := do(t, http.MethodGet, ts.URL+url, "", "")
			assert.Equal(t, http.StatusBadRequest, code)
			assert.Equal(t, "validation", env.Kind)
		})
	}
}

func TestMiddleware(t *testing.T) {
	ts := newTestServer(t, Options{Limiter: rate.NewLimiter(rate.Every(time.Hour), 1)})

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	resp, err = http.Get(ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}
