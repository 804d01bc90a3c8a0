// Package httpapi is the UI-facing HTTP surface: associate authentication
// plus the catalog, sourcing and order endpoints backed by the orchestration
// facade.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"instoreorder/backend/internal/credentials"
	"instoreorder/backend/internal/domain"
	"instoreorder/backend/internal/oauth"
	"instoreorder/backend/internal/omf"
	"instoreorder/backend/internal/orchestrator"
)

type API struct {
	facade        *orchestrator.Facade
	auth          *AuthManager
	allowedOrigin string
	loginLimiter  *attemptLimiter
}

func New(facade *orchestrator.Facade, auth *AuthManager, allowedOrigin string) *API {
	return &API{
		facade:        facade,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
	}
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	kept = append(kept, now)
	l.entries[key] = kept
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

type actorContextKey struct{}

func withActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext returns the authenticated associate attached by
// requireAuth.
func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/api/v1/auth/login", a.handleLogin)

	mux.HandleFunc("/api/v1/products", a.requireAuth(a.handleProductSearch, "associate", "admin"))
	mux.HandleFunc("/api/v1/products/", a.requireAuth(a.handleProductActions, "associate", "admin"))
	mux.HandleFunc("/api/v1/cart/sourcing", a.requireAuth(a.handleCartSourcing, "associate", "admin"))
	mux.HandleFunc("/api/v1/orders", a.requireAuth(a.handleOrders, "associate", "admin"))
	mux.HandleFunc("/api/v1/orders/recent", a.requireAuth(a.handleRecentOrders, "associate", "admin"))
	mux.HandleFunc("/api/v1/orders/search", a.requireAuth(a.handleOrderSearch, "associate", "admin"))
	mux.HandleFunc("/api/v1/orders/", a.requireAuth(a.handleOrderActions, "associate", "admin"))
	mux.HandleFunc("/api/v1/users/associates", a.requireAuth(a.handleAssociates, "admin"))

	return a.withMiddleware(mux)
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		next(w, r.WithContext(withActor(r.Context(), actor)))
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleProductSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	query := r.URL.Query().Get("q")
	page := parsePositiveInt(r.URL.Query().Get("page"), 1, 0)
	pageSize := parsePositiveInt(r.URL.Query().Get("pageSize"), 20, 100)

	result := a.facade.SearchProducts(r.Context(), query, page, pageSize)
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleProductActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	tail := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/products/"), "/")
	if tail == "" {
		writeError(w, http.StatusBadRequest, errors.New("product id required"))
		return
	}

	if id, ok := strings.CutSuffix(tail, "/availability"); ok {
		id = strings.Trim(id, "/")
		if id == "" {
			writeError(w, http.StatusBadRequest, errors.New("product id required"))
			return
		}
		availability := a.facade.GetProductAvailability(r.Context(), id, r.URL.Query().Get("unit"))
		writeJSON(w, http.StatusOK, availability)
		return
	}

	product, err := a.facade.GetProductByID(r.Context(), tail)
	if err != nil {
		a.writeAdapterError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": product})
}

func (a *API) handleCartSourcing(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		result := a.facade.CachedSourcing()
		if result == nil {
			writeJSON(w, http.StatusOK, map[string]any{"sourcing": nil, "valid": false})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sourcing": result, "valid": true})
	case http.MethodPost:
		var cart domain.Cart
		if err := decodeJSON(r, &cart); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		result := a.facade.TriggerSourcing(r.Context(), cart)
		writeJSON(w, http.StatusOK, result)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleOrders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var order domain.OrderData
	if err := decodeJSON(r, &order); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	canonical, err := a.facade.PlaceOrder(r.Context(), order)
	if err != nil {
		a.writeAdapterError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"order": canonical})
}

func (a *API) handleRecentOrders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	limit := parsePositiveInt(r.URL.Query().Get("limit"), 20, 100)
	orders, err := a.facade.RecentOrders(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (a *API) handleOrderSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	orders, source := a.facade.SearchOrders(r.Context(), r.URL.Query().Get("q"))
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders, "source": source})
}

func (a *API) handleOrderActions(w http.ResponseWriter, r *http.Request) {
	tail := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/orders/"), "/")
	if tail == "" {
		writeError(w, http.StatusBadRequest, errors.New("order id required"))
		return
	}

	orderID, action, _ := strings.Cut(tail, "/")
	switch action {
	case "":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		order := a.facade.GetOrder(r.Context(), orderID)
		writeJSON(w, http.StatusOK, map[string]any{"order": order})
	case "status":
		if r.Method != http.MethodPut {
			writeMethodNotAllowed(w)
			return
		}
		var req struct {
			Status string `json:"status"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if strings.TrimSpace(req.Status) == "" {
			writeError(w, http.StatusBadRequest, errors.New("status required"))
			return
		}
		order := a.facade.UpdateOrderStatus(r.Context(), orderID, req.Status)
		writeJSON(w, http.StatusOK, map[string]any{"order": order})
	case "cancel":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		order := a.facade.CancelOrder(r.Context(), orderID)
		writeJSON(w, http.StatusOK, map[string]any{"order": order})
	case "fulfillment":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		fulfillment, source := a.facade.GetOrderFulfillment(r.Context(), orderID)
		writeJSON(w, http.StatusOK, map[string]any{"fulfillment": fulfillment, "source": source})
	case "payment":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		var payment domain.PaymentOption
		if err := decodeJSON(r, &payment); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		info, source := a.facade.ProcessPayment(r.Context(), orderID, payment)
		writeJSON(w, http.StatusOK, map[string]any{"payment": info, "source": source})
	default:
		writeError(w, http.StatusNotFound, errors.New("unknown order action"))
	}
}

func (a *API) handleAssociates(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"associates": a.auth.ListAssociates()})
	case http.MethodPost:
		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		account, err := a.auth.CreateAssociate(req.Username, req.Password)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"associate": account})
	default:
		writeMethodNotAllowed(w)
	}
}

// writeAdapterError maps integration-layer errors onto HTTP statuses:
// missing configuration is 503, backend auth failure and order rejection are
// 502, bad input is 400 and an unknown product is 404.
func (a *API) writeAdapterError(w http.ResponseWriter, err error) {
	var missingCreds *credentials.MissingCredentialsError
	var configErr *omf.ConfigurationError
	var authErr *oauth.AuthenticationError
	var submitErr *omf.OrderSubmissionError
	var validationErrs validator.ValidationErrors

	switch {
	case errors.Is(err, orchestrator.ErrProductNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.As(err, &missingCreds), errors.As(err, &configErr):
		writeError(w, http.StatusServiceUnavailable, err)
	case errors.As(err, &validationErrs):
		writeError(w, http.StatusBadRequest, err)
	case errors.As(err, &submitErr):
		if submitErr.Code == "INVALID_ORDER" {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":   "order submission failed",
			"code":    submitErr.Code,
			"message": submitErr.Message,
		})
	case errors.As(err, &authErr):
		writeError(w, http.StatusBadGateway, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func parsePositiveInt(raw string, fallback int, max int) int {
	value := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			value = parsed
		}
	}
	if max > 0 && value > max {
		return max
	}
	return value
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx details stay in the log; clients get a generic message.
	msg := err.Error()
	if status >= 500 && status != http.StatusServiceUnavailable && status != http.StatusBadGateway {
		log.Printf("internal error (status %d): %v", status, err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if (r.Method == http.MethodPost || r.Method == http.MethodPut) && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		startedAt := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(startedAt))
	})
}
