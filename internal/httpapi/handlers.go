package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"ecowatch.org/internal/dashboard"
	"ecowatch.org/internal/monitor"
	"ecowatch.org/internal/obs"
	"ecowatch.org/internal/stream"
)

const serviceName = "ecowatch-api"

// Pinger is a dependency whose reachability gates readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadyProbe reports ready when every dependency answers.
type ReadyProbe struct {
	Deps map[string]Pinger
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	for name, dep := range rp.Deps {
		if dep == nil {
			continue
		}
		if err := dep.Ping(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

type readinessChecker interface {
	Check(ctx context.Context) error
}

// Options tunes the middleware chain.
type Options struct {
	CORSOrigins   []string
	RateBurst     int
	RatePerSec    float64
	MaxBodyBytes  int64
	TokenExchange bool
}

func (o Options) withDefaults() Options {
	if o.RateBurst <= 0 {
		o.RateBurst = 40
	}
	if o.RatePerSec <= 0 {
		o.RatePerSec = 20
	}
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = 1 << 20
	}
	return o
}

// API is the HTTP layer over the monitoring services.
type API struct {
	mux        *http.ServeMux
	readyProbe readinessChecker
	version    string
	monitor    *monitor.Service
	dashboard  *dashboard.Service
	stream     *stream.Stream
	opts       Options
}

// New wires routes for svc. st may be nil to disable the live stream.
func New(rp readinessChecker, version string, svc *monitor.Service, st *stream.Stream, opts Options) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: rp,
		version:    version,
		monitor:    svc,
		dashboard:  dashboard.New(svc.Store()),
		stream:     st,
		opts:       opts.withDefaults(),
	}

	a.mux.HandleFunc("GET /healthz", a.Healthz)
	a.mux.HandleFunc("GET /readyz", a.Ready)
	a.mux.HandleFunc("GET /v1/info", a.Info)
	a.mux.Handle("GET /metrics", obs.Handler())
	if a.opts.TokenExchange {
		a.mux.HandleFunc("POST /v1/auth/token", a.handleAuthToken)
	}

	a.mux.HandleFunc("GET /v1/users", a.listUsers)
	a.mux.HandleFunc("POST /v1/users", a.createUser)
	a.mux.HandleFunc("GET /v1/users/{id}", a.getUser)
	a.mux.HandleFunc("PATCH /v1/users/{id}", a.updateUser)

	a.mux.HandleFunc("GET /v1/zones", a.listZones)
	a.mux.HandleFunc("POST /v1/zones", a.createZone)
	a.mux.HandleFunc("GET /v1/zones/metrics", a.zoneMetrics)
	a.mux.HandleFunc("GET /v1/zones/{id}", a.getZone)
	a.mux.HandleFunc("PATCH /v1/zones/{id}", a.updateZone)
	a.mux.HandleFunc("POST /v1/zones/{id}/archive", a.archiveZone)
	a.mux.HandleFunc("GET /v1/zones/{id}/snapshot", a.zoneSnapshot)

	a.mux.HandleFunc("GET /v1/sensors", a.listSensors)
	a.mux.HandleFunc("POST /v1/sensors", a.createSensor)
	a.mux.HandleFunc("GET /v1/sensors/{id}", a.getSensor)
	a.mux.HandleFunc("PATCH /v1/sensors/{id}", a.updateSensor)
	a.mux.HandleFunc("POST /v1/sensors/{id}/readings", a.recordReading)

	a.mux.HandleFunc("GET /v1/actions", a.listActions)
	a.mux.HandleFunc("POST /v1/actions", a.createAction)
	a.mux.HandleFunc("GET /v1/actions/metrics", a.actionMetrics)
	a.mux.HandleFunc("GET /v1/actions/{id}", a.getAction)
	a.mux.HandleFunc("PATCH /v1/actions/{id}", a.updateAction)

	a.mux.HandleFunc("GET /v1/stream/readings", a.Stream)

	return a
}

// Handler returns the mux wrapped in the full middleware chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = MaxBodyBytes(h, a.opts.MaxBodyBytes)
	h = RateLimit(h, a.opts.RateBurst, a.opts.RatePerSec)
	h = CORS(h, a.opts.CORSOrigins)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
