package binance

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/etnz/taxlot"
	"github.com/etnz/taxlot/date"
	"github.com/etnz/taxlot/fetch"
	"github.com/shopspring/decimal"
)

func TestSource_HistoricalPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if r.URL.Path != "/api/v3/klines" || q.Get("interval") != "1d" || q.Get("startTime") != "1746057600000" {
			t.Errorf("unexpected request %s", r.URL)
		}
		switch q.Get("symbol") {
		case "BTCUSDT":
			w.Write([]byte(`[[1746057600000,"94172.00","97437.96","93985.23","96489.91","21365.29",1746143999999,"2055405437.55",3091847,"10587.09","1018692785.29","0"]]`))
		case "EMPTYUSDT":
			w.Write([]byte(`[]`))
		default:
			http.Error(w, `{"code":-1121,"msg":"Invalid symbol."}`, http.StatusBadRequest)
		}
	}))
	defer srv.Close()

	client := fetch.New(1000, 10)
	client.Retries = 0
	s := New(client)
	s.URL = srv.URL
	day := date.New(2025, 5, 1)

	q, err := s.HistoricalPrice(context.Background(), "BTC", day)
	if err != nil {
		t.Fatalf("HistoricalPrice() unexpected error: %v", err)
	}
	if !q.Price.Equal(decimal.RequireFromString("96489.91")) || q.Day != day || q.Source != "binance" {
		t.Errorf("HistoricalPrice() = %+v, want close 96489.91", q)
	}

	if _, err := s.HistoricalPrice(context.Background(), "NOPE", day); !errors.Is(err, taxlot.ErrPriceUnavailable) {
		t.Errorf("HistoricalPrice(unknown) error = %v, want ErrPriceUnavailable", err)
	}
	if _, err := s.HistoricalPrice(context.Background(), "EMPTY", day); !errors.Is(err, taxlot.ErrPriceUnavailable) {
		t.Errorf("HistoricalPrice(empty) error = %v, want ErrPriceUnavailable", err)
	}
}

func TestSource_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := fetch.New(1000, 10)
	client.Retries = 0
	s := New(client)
	s.URL = srv.URL
	if _, err := s.HistoricalPrice(context.Background(), "BTC", date.New(2025, 5, 1)); !errors.Is(err, taxlot.ErrExternalSource) {
		t.Errorf("HistoricalPrice() error = %v, want ErrExternalSource", err)
	}
}
