package httpapi

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	volcanion "github.com/rickymta/volcanion-auth"
	promexport "github.com/rickymta/volcanion-auth/metrics/export/prometheus"
	"github.com/rickymta/volcanion-auth/middleware"
)

// Engine is the slice of *volcanion.Engine the API drives.
type Engine interface {
	middleware.TokenVerifier
	middleware.PermissionChecker

	Login(ctx context.Context, req volcanion.LoginRequest) (*volcanion.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*volcanion.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) (bool, error)
	LogoutAll(ctx context.Context, accountID string) (int64, error)
	Sessions(ctx context.Context, accountID string) ([]volcanion.SessionInfo, error)
	RequestPasswordReset(ctx context.Context, email string) error
	ConfirmPasswordReset(ctx context.Context, token, newPassword string) error
	RequestEmailVerification(ctx context.Context, accountID string) error
	ConfirmEmailVerification(ctx context.Context, token string) (string, error)
	MetricsSnapshot() volcanion.MetricsSnapshot
	AuditDropped() uint64
}

// Options tunes the HTTP layer. Zero values fall back to the defaults of
// volcanion.ServerConfig.
type Options struct {
	RequestsPerSecond float64
	Burst             int
	TrustForwardedFor bool
	MaxBodyBytes      int64
	Logger            *slog.Logger
	// Registry receives the engine exporter and HTTP metrics. A private
	// registry is created when nil.
	Registry *prometheus.Registry
	// Now drives the origin limiter; tests pin it.
	Now func() time.Time
}

// API is the HTTP layer. It is safe for concurrent use.
type API struct {
	engine   Engine
	gate     *middleware.Gate
	mux      *http.ServeMux
	logger   *slog.Logger
	limiter  *originLimiter
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec

	trustForwardedFor bool
	maxBodyBytes      int64
}

func New(engine Engine, opts Options) *API {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 10
	}
	if opts.Burst <= 0 {
		opts.Burst = 20
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
		opts.Registry.MustRegister(collectors.NewGoCollector())
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	a := &API{
		engine:  engine,
		gate:    middleware.NewGate(engine, engine, middleware.WithLogger(opts.Logger)),
		mux:     http.NewServeMux(),
		logger:  opts.Logger,
		limiter: newOriginLimiter(rate.Limit(opts.RequestsPerSecond), opts.Burst, opts.Now),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "volcanion_http_requests_total",
			Help: "HTTP requests by handler, method and status code.",
		}, []string{"handler", "method", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "volcanion_http_request_duration_seconds",
			Help:    "HTTP request latency by handler.",
			Buckets: prometheus.DefBuckets,
		}, []string{"handler", "method"}),
		registry:          opts.Registry,
		trustForwardedFor: opts.TrustForwardedFor,
		maxBodyBytes:      opts.MaxBodyBytes,
	}
	a.registry.MustRegister(a.requests, a.duration, promexport.NewExporterFromSource(engine))

	a.route("POST /v1/auth/login", "login", http.HandlerFunc(a.handleLogin))
	a.route("POST /v1/auth/refresh", "refresh", http.HandlerFunc(a.handleRefresh))
	a.route("POST /v1/auth/logout", "logout", http.HandlerFunc(a.handleLogout))
	a.route("POST /v1/auth/logout-all", "logout_all", a.gate.Authenticate(http.HandlerFunc(a.handleLogoutAll)))
	a.route("POST /v1/password-reset/request", "password_reset_request", http.HandlerFunc(a.handlePasswordResetRequest))
	a.route("POST /v1/password-reset/confirm", "password_reset_confirm", http.HandlerFunc(a.handlePasswordResetConfirm))
	a.route("POST /v1/email-verification/request", "email_verification_request", a.gate.Authenticate(http.HandlerFunc(a.handleEmailVerificationRequest)))
	a.route("POST /v1/email-verification/confirm", "email_verification_confirm", http.HandlerFunc(a.handleEmailVerificationConfirm))
	a.route("GET /v1/me", "me", a.gate.Authenticate(http.HandlerFunc(a.handleMe)))

	a.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	a.mux.Handle("GET /metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	return a
}

// Gate exposes the authorization gate so callers can mount extra routes
// behind the same checks.
func (a *API) Gate() *middleware.Gate { return a.gate }

// Handler returns the root handler. The origin limiter applies to /v1
// routes only.
func (a *API) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r, a.trustForwardedFor)
		ctx := volcanion.WithClientIP(r.Context(), ip)
		if ua := r.UserAgent(); ua != "" {
			ctx = volcanion.WithUserAgent(ctx, ua)
		}
		r = r.WithContext(ctx)

		if len(r.URL.Path) >= 4 && r.URL.Path[:4] == "/v1/" {
			if ok, retry := a.limiter.allow(ip); !ok {
				w.Header().Set("Retry-After", retryAfter(retry))
				writeJSON(w, http.StatusTooManyRequests, errorBody{Error: volcanion.KindRateLimited.String()})
				return
			}
		}
		a.mux.ServeHTTP(w, r)
	})
}

func (a *API) route(pattern, name string, h http.Handler) {
	labels := prometheus.Labels{"handler": name}
	h = promhttp.InstrumentHandlerCounter(a.requests.MustCurryWith(labels), h)
	h = promhttp.InstrumentHandlerDuration(a.duration.MustCurryWith(labels), h)
	a.mux.Handle(pattern, h)
}
