package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"tiergate.dev/internal/audit"
	"tiergate.dev/internal/auth"
	"tiergate.dev/internal/obs"
	"tiergate.dev/internal/tierrequest"
)

const serviceName = "tiergate"

type readinessChecker interface {
	Check(ctx context.Context) error
}

// ReadyProbe pings the backing stores that are configured.
type ReadyProbe struct {
	DB    *sql.DB
	Redis *redis.Client
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB != nil {
		if err := rp.DB.PingContext(ctx); err != nil {
			return err
		}
	}
	if rp.Redis != nil {
		if err := rp.Redis.Ping(ctx).Err(); err != nil {
			return err
		}
	}
	return nil
}

// Options wires the HTTP layer to its services.
type Options struct {
	Auth         *auth.Service
	TierRequests *tierrequest.Service
	Audit        *audit.Recorder
	Ready        readinessChecker
	Logger       zerolog.Logger
	Version      string
	Cookies      CookieOptions
	MaxBodyBytes int64

	// TrustedProxies may name the client in X-Forwarded-For. Nil trusts none.
	TrustedProxies *TrustedProxies

	LoginLimit    int
	LoginWindow   time.Duration
	RefreshLimit  int
	RefreshWindow time.Duration
}

// API is the HTTP layer.
type API struct {
	mux      *http.ServeMux
	auth     *auth.Service
	requests *tierrequest.Service
	audit    *audit.Recorder
	ready    readinessChecker
	log      zerolog.Logger
	version  string
	cookies  CookieOptions
	maxBody  int64
}

func New(opts Options) *API {
	a := &API{
		mux:      http.NewServeMux(),
		auth:     opts.Auth,
		requests: opts.TierRequests,
		audit:    opts.Audit,
		ready:    opts.Ready,
		log:      opts.Logger,
		version:  opts.Version,
		cookies:  opts.Cookies,
		maxBody:  opts.MaxBodyBytes,
	}
	if a.ready == nil {
		a.ready = ReadyProbe{}
	}

	// health/ready/metrics
	a.mux.HandleFunc("GET /healthz", a.Healthz)
	a.mux.HandleFunc("GET /readyz", a.Ready)
	a.mux.Handle("GET /metrics", obs.Handler())

	// session
	a.mux.Handle("POST /auth/login", RateLimit(http.HandlerFunc(a.login), opts.LoginLimit, opts.LoginWindow, opts.TrustedProxies))
	a.mux.Handle("POST /auth/refresh", RateLimit(http.HandlerFunc(a.refresh), opts.RefreshLimit, opts.RefreshWindow, opts.TrustedProxies))
	a.mux.HandleFunc("POST /auth/logout", a.logout)
	a.mux.HandleFunc("GET /auth/me", a.withAuth(a.me))
	a.mux.HandleFunc("PUT /auth/password", a.withAuth(a.changePassword))

	// admin
	a.mux.HandleFunc("PUT /admin/users/{id}/status", a.requireAdmin(a.setUserStatus))
	a.mux.HandleFunc("GET /admin/tier-requests", a.requireAdmin(a.listTierRequests))
	a.mux.HandleFunc("GET /admin/tier-requests/{id}", a.requireAdmin(a.getTierRequest))
	a.mux.HandleFunc("PUT /admin/tier-requests/{id}/approve", a.requireAdmin(a.approveTierRequest))
	a.mux.HandleFunc("PUT /admin/tier-requests/{id}/reject", a.requireAdmin(a.rejectTierRequest))

	// vendor portal
	for _, typ := range []tierrequest.Type{tierrequest.TypeUpgrade, tierrequest.TypeDowngrade} {
		base := "/portal/vendors/{id}/tier-" + string(typ) + "-request"
		a.mux.HandleFunc("POST "+base, a.withAuth(a.submitTierRequest(typ)))
		a.mux.HandleFunc("GET "+base, a.withAuth(a.currentTierRequest(typ)))
		a.mux.HandleFunc("DELETE "+base+"/{requestId}", a.withAuth(a.cancelTierRequest(typ)))
	}
	a.mux.HandleFunc("GET /portal/vendors/{id}/tier", a.withAuth(a.vendorTier))
	a.mux.HandleFunc("GET /portal/vendors/{id}/features/{feature}", a.withAuth(a.vendorFeature))

	return a
}

// Handler returns the mux wrapped in the standard middleware chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = MaxBodyBytes(h, a.maxBody)
	h = SecurityHeaders(h)
	h = obs.Instrument(h)
	h = Logging(a.log)(h)
	return RequestID(h)
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
		obs.SetReady(false)
		a.log.Warn().Err(err).Msg("readiness check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

// record queues an audit entry and counts it.
func (a *API) record(r *http.Request, e audit.Entry) {
	obs.AuthEvent(string(e.Event))
	a.audit.Record(r.Context(), e)
}
