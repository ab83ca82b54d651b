// Package httpapi exposes the storage administration service over HTTP.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/Siwa-Docsecure/base/internal/auth"
	"github.com/Siwa-Docsecure/base/internal/obs"
	"github.com/Siwa-Docsecure/base/internal/records"
)

const (
	serviceName         = "psms-api"
	defaultMaxBodyBytes = 1 << 20
)

// ReadyProbe checks the database for /readyz.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Deps wires the API to the services it fronts.
type Deps struct {
	Tokens   *auth.TokenService
	Accounts *auth.Accounts
	Guard    *auth.Guard
	Engine   *records.Engine
	Ready    ReadyProbe
	Logger   *slog.Logger
	Version  string

	RateBurst      int
	RatePerSec     int
	LoginBurst     int
	LoginPerMinute int
	AllowedOrigins []string
	MaxBodyBytes   int64
}

// API is the HTTP layer.
type API struct {
	mux      *http.ServeMux
	tokens   *auth.TokenService
	accounts *auth.Accounts
	guard    *auth.Guard
	engine   *records.Engine
	ready    ReadyProbe
	logger   *slog.Logger
	version  string

	rateBurst      int
	ratePerSec     int
	loginBurst     int
	loginPerMinute int
	origins        []string
	maxBody        int64
}

func New(d Deps) (*API, error) {
	if d.Tokens == nil || d.Accounts == nil || d.Guard == nil || d.Engine == nil {
		return nil, errors.New("httpapi: tokens, accounts, guard and engine are required")
	}
	a := &API{
		mux:            http.NewServeMux(),
		tokens:         d.Tokens,
		accounts:       d.Accounts,
		guard:          d.Guard,
		engine:         d.Engine,
		ready:          d.Ready,
		logger:         obs.ResolveLogger(d.Logger),
		version:        d.Version,
		rateBurst:      orDefault(d.RateBurst, 50),
		ratePerSec:     orDefault(d.RatePerSec, 20),
		loginBurst:     orDefault(d.LoginBurst, 5),
		loginPerMinute: orDefault(d.LoginPerMinute, 10),
		origins:        d.AllowedOrigins,
		maxBody:        d.MaxBodyBytes,
	}
	if a.maxBody <= 0 {
		a.maxBody = defaultMaxBodyBytes
	}
	a.routes()
	return a, nil
}

func (a *API) routes() {
	a.mux.HandleFunc("GET /healthz", a.Healthz)
	a.mux.HandleFunc("GET /readyz", a.Ready)
	a.mux.Handle("GET /metrics", obs.Handler())

	a.authRoutes()
	a.userRoutes()
	a.recordRoutes()

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "resource not found")
	})
}

// Handler returns the mux wrapped in the middleware chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = MaxBodyBytes(h, a.maxBody)
	h = CORS(h, a.origins)
	h = SecurityHeaders(h)
	h = Logging(h, a.logger)
	h = RequestID(h)
	h = obs.Instrument(h)
	return otelhttp.NewHandler(h, serviceName)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.ready.Check(ctx); err != nil {
		a.logger.Warn("readiness check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not_ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return errors.New("request body is required")
		case errors.As(err, &maxErr):
			return errors.New("request body too large")
		}
		return errors.New("malformed JSON body")
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("unexpected data after JSON body")
	}
	return nil
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
