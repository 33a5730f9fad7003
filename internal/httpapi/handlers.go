package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"pitchvault.io/internal/audit"
	"pitchvault.io/internal/authz"
	"pitchvault.io/internal/obs"
)

// ReadyProbe reports storage readiness.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer over the authorization engine.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	resolver *authz.Resolver
	grants   *authz.GrantService
	nda      *authz.NdaService
	roles    *authz.RoleService
	audit    *audit.Recorder

	jwtSecret []byte
	jwtIssuer string

	rateBurst     int
	ratePerSecond int
	maxBodyBytes  int64
}

// Options carries the service wiring for New.
type Options struct {
	ReadyProbe ReadyProbe
	Version    string

	Resolver *authz.Resolver
	Grants   *authz.GrantService
	Nda      *authz.NdaService
	Roles    *authz.RoleService
	Audit    *audit.Recorder

	JWTSecret string
	JWTIssuer string

	RateBurst     int
	RatePerSecond int
	MaxBodyBytes  int64
}

func New(opts Options) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: opts.ReadyProbe,
		version:    opts.Version,
		resolver:   opts.Resolver,
		grants:     opts.Grants,
		nda:        opts.Nda,
		roles:      opts.Roles,
		audit:      opts.Audit,
		jwtIssuer:  opts.JWTIssuer,

		rateBurst:     opts.RateBurst,
		ratePerSecond: opts.RatePerSecond,
		maxBodyBytes:  opts.MaxBodyBytes,
	}
	if opts.JWTSecret != "" {
		a.jwtSecret = []byte(opts.JWTSecret)
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/check", a.handleCheck)
	a.mux.HandleFunc("/v1/grants", a.handleGrants)
	a.mux.HandleFunc("/v1/grants/", a.handleGrantResource)
	a.mux.HandleFunc("/v1/resources", a.handleResources)
	a.mux.HandleFunc("/v1/resources/", a.handleResourceScoped)
	a.mux.HandleFunc("/v1/nda/requests", a.handleNdaRequests)
	a.mux.HandleFunc("/v1/nda/requests/", a.handleNdaRequestScoped)
	a.mux.HandleFunc("/v1/roles", a.handleRoles)
	a.mux.HandleFunc("/v1/roles/", a.handleRoleScoped)
	a.mux.HandleFunc("/v1/users/", a.handleUserScoped)
	a.mux.HandleFunc("/v1/audit", a.handleAuditTail)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped http.Handler for the server.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	if a.maxBodyBytes > 0 {
		h = MaxBodyBytes(h, a.maxBodyBytes)
	}
	if a.rateBurst > 0 && a.ratePerSecond > 0 {
		h = RateLimit(h, a.rateBurst, a.ratePerSecond)
	}
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "pitchvault-authz",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "pitchvault-authz",
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

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func handleEngineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, authz.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, authz.ErrForbidden):
		writeError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, authz.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, authz.ErrConflict), errors.Is(err, authz.ErrInvalidTransition):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, authz.ErrConfiguration):
		writeError(w, r, http.StatusInternalServerError, "engine configuration error")
	default:
		writeError(w, r, http.StatusInternalServerError, "authorization operation failed")
	}
}
