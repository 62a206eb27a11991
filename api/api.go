// Package api exposes the taxlot engine over HTTP, as JSON.
//
// Every response body is a taxlot.Result envelope. Success and partial results are
// 200 OK, validation failures 400 Bad Request and other failures 500.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/etnz/taxlot"
	"github.com/etnz/taxlot/date"
	"github.com/etnz/taxlot/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Options configures a Server.
type Options struct {
	Location       *time.Location   // where query dates are observed
	Bucketing      taxlot.Bucketing // default summary bucketing
	MaxUploadBytes int64            // import body limit, 10 MiB by default
	Limiter        *rate.Limiter    // nil for 10 requests per second, burst 30
}

// Server serves an Engine.
type Server struct {
	engine *taxlot.Engine
	opts   Options
}

// New returns a Server for e.
func New(e *taxlot.Engine, opts Options) *Server {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 10 << 20
	}
	if opts.Limiter == nil {
		opts.Limiter = rate.NewLimiter(rate.Every(100*time.Millisecond), 30)
	}
	return &Server{engine: e, opts: opts}
}

// Handler returns the HTTP routes of the server.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(contextualLogger)
	r.Use(s.rateLimit)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Route("/api", func(r chi.Router) {
		r.Post("/import", s.handleImport)
		r.Post("/recompute", s.handleRecompute)
		r.Get("/transactions", s.handleTransactions)
		r.Get("/events", s.handleEvents)
		r.Get("/summary", s.handleSummary)
		r.Get("/lots", s.handleLots)
		r.Get("/holdings", s.handleHoldings)
		r.Get("/rate", s.handleRate)
	})
	return r
}

// contextualLogger attaches a logger with a request ID to every request.
func contextualLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		l := logger.L.With(slog.String("requestID", requestID), slog.String("path", r.URL.Path))
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(logger.ToContext(r.Context(), l)))
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.opts.Limiter.Allow() {
			logger.FromContext(r.Context()).Warn("rate limit exceeded")
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// writeResult writes a result envelope with the status code matching its outcome.
func writeResult[T any](w http.ResponseWriter, r *http.Request, res taxlot.Result[T]) {
	code := http.StatusOK
	if res.Status == taxlot.StatusFailure {
		code = http.StatusInternalServerError
		if res.Kind == taxlot.KindValidation {
			code = http.StatusBadRequest
		}
		logger.FromContext(r.Context()).Error("request failed", "kind", res.Kind, "message", res.Message)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(res); err != nil {
		logger.FromContext(r.Context()).Error("writing response", "error", err)
	}
}

// badRequest writes a validation failure.
func badRequest[T any](w http.ResponseWriter, r *http.Request, format string, args ...any) {
	writeResult(w, r, taxlot.Fail[T](fmt.Errorf("%w: %s", taxlot.ErrValidation, fmt.Sprintf(format, args...))))
}

// day parses an optional date query parameter as the first instant of the day.
func (s *Server) day(r *http.Request, key string) (time.Time, date.Date, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return time.Time{}, date.Date{}, nil
	}
	d, err := date.Parse(v)
	if err != nil {
		return time.Time{}, date.Date{}, fmt.Errorf("%s: %w", key, err)
	}
	return d.Start(s.opts.Location), d, nil
}

// period parses the inclusive from and to query parameters into a half open range.
func (s *Server) period(r *http.Request) (from, to time.Time, err error) {
	if from, _, err = s.day(r, "from"); err != nil {
		return
	}
	_, d, err := s.day(r, "to")
	if err != nil || d.IsZero() {
		return from, time.Time{}, err
	}
	return from, d.Add(1).Start(s.opts.Location), nil
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	defer body.Close()

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "jsonl"
		if strings.HasPrefix(r.Header.Get("Content-Type"), "text/csv") {
			format = "csv"
		}
	}
	provenance := r.URL.Query().Get("provenance")

	var records []taxlot.Record
	var err error
	switch format {
	case "jsonl":
		records, err = taxlot.DecodeRecords(body)
		if provenance == "" {
			provenance = taxlot.ProvenanceWallet
		}
	case "csv":
		var csvFormat taxlot.CSVFormat
		records, csvFormat, err = taxlot.DecodeCSV(body)
		if provenance == "" {
			provenance = taxlot.ProvenanceCSV
			if csvFormat == taxlot.BinanceCSV {
				provenance = taxlot.ProvenanceBinance
			}
		}
	default:
		badRequest[taxlot.ImportReport](w, r, "unknown format %q", format)
		return
	}
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			badRequest[taxlot.ImportReport](w, r, "body larger than %d bytes", maxErr.Limit)
			return
		}
		badRequest[taxlot.ImportReport](w, r, "decoding %s body: %v", format, err)
		return
	}
	writeResult(w, r, s.engine.Import(r.Context(), records, provenance))
}

func (s *Server) handleRecompute(w http.ResponseWriter, r *http.Request) {
	writeResult(w, r, s.engine.Recompute(r.Context()))
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	from, to, err := s.period(r)
	if err != nil {
		badRequest[[]taxlot.Transaction](w, r, "%v", err)
		return
	}
	f := taxlot.Filter{Asset: strings.ToUpper(r.URL.Query().Get("asset")), From: from, To: to}
	if classes := r.URL.Query().Get("class"); classes != "" {
		for _, c := range strings.Split(classes, ",") {
			class, err := taxlot.ParseClassification(strings.TrimSpace(c))
			if err != nil {
				badRequest[[]taxlot.Transaction](w, r, "%v", err)
				return
			}
			f.Classes = append(f.Classes, class)
		}
	}
	writeResult(w, r, s.engine.Transactions(r.Context(), f))
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	from, to, err := s.period(r)
	if err != nil {
		badRequest[[]taxlot.TaxEvent](w, r, "%v", err)
		return
	}
	writeResult(w, r, s.engine.TaxEvents(r.Context(), from, to))
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	b := s.opts.Bucketing
	if v := r.URL.Query().Get("bucketing"); v != "" {
		var err error
		if b, err = taxlot.ParseBucketing(v); err != nil {
			badRequest[taxlot.Summary](w, r, "%v", err)
			return
		}
	}
	writeResult(w, r, s.engine.Summary(r.Context(), b))
}

func (s *Server) handleLots(w http.ResponseWriter, r *http.Request) {
	_, until, err := s.day(r, "until")
	if err != nil {
		badRequest[[]taxlot.Lot](w, r, "%v", err)
		return
	}
	f := taxlot.LotFilter{Asset: strings.ToUpper(r.URL.Query().Get("asset"))}
	if !until.IsZero() {
		f.Until = until.Add(1).Start(s.opts.Location).Add(-time.Nanosecond)
	}
	writeResult(w, r, s.engine.Lots(r.Context(), f))
}

func (s *Server) handleHoldings(w http.ResponseWriter, r *http.Request) {
	writeResult(w, r, s.engine.Holdings(r.Context()))
}

func (s *Server) handleRate(w http.ResponseWriter, r *http.Request) {
	_, d, err := s.day(r, "date")
	if err != nil {
		badRequest[taxlot.Conversion](w, r, "%v", err)
		return
	}
	if d.IsZero() {
		d = date.Of(time.Now(), s.opts.Location)
	}
	writeResult(w, r, s.engine.Rate(r.Context(), d))
}
