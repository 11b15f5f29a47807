package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/agentworkforce/dupeguard/internal/dupes"
	"github.com/agentworkforce/dupeguard/internal/intake"
	"github.com/agentworkforce/dupeguard/internal/settings"
	"github.com/agentworkforce/dupeguard/internal/shopify"
)

type ServerConfig struct {
	// AdminJWTSecret enables bearer auth on /api/* when set.
	AdminJWTSecret string
	// WebhookSecret enables Shopify HMAC verification on webhooks when set.
	WebhookSecret  string
	RateLimitRPS   float64
	RateLimitBurst int
	MaxBodyBytes   int64
	ScanTimeout    time.Duration
}

// Scanner is the part of dupes.Scanner the API drives.
type Scanner interface {
	RunBatch(ctx context.Context, settings dupes.Settings, opts dupes.BatchOptions) (*dupes.Report, error)
	Reverse(ctx context.Context, settings dupes.Settings, orderID string, removeTag bool) error
	CanceledDuplicates(ctx context.Context, settings dupes.Settings) ([]dupes.Order, error)
}

type SettingsStore interface {
	Get() dupes.Settings
	Update(ctx context.Context, patch settings.Patch) (dupes.Settings, error)
}

type EventSink interface {
	Submit(event intake.Event) (bool, error)
	Stats() intake.Stats
}

// ShopProbe tests the store connection. A nil probe means no credentials.
type ShopProbe interface {
	Shop(ctx context.Context) (shopify.ShopInfo, error)
}

type Deps struct {
	Scanner  Scanner
	Settings SettingsStore
	Intake   EventSink
	Shop     ShopProbe
	Events   *EventHub
	Logger   *slog.Logger
}

type Server struct {
	deps    Deps
	cfg     ServerConfig
	limiter *clientLimiter
	logger  *slog.Logger
	now     func() time.Time
}

func NewServer(deps Deps, cfg ServerConfig) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if cfg.ScanTimeout <= 0 {
		cfg.ScanTimeout = 2 * time.Minute
	}
	if cfg.RateLimitRPS < 0 {
		cfg.RateLimitRPS = 0
	}
	var limiter *clientLimiter
	if cfg.RateLimitRPS > 0 {
		limiter = newClientLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Events == nil {
		deps.Events = NewEventHub(logger, 0)
	}
	return &Server{
		deps:    deps,
		cfg:     cfg,
		limiter: limiter,
		logger:  logger.With("component", "httpapi"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSuffix(r.URL.Path, "/")
	if path == "" {
		path = "/"
	}
	correlationID := getCorrelationID(r)
	w.Header().Set("X-Correlation-Id", correlationID)

	switch {
	case path == "/" && r.Method == http.MethodGet:
		s.handleDashboard(w, r)
		return
	case (path == "/health" || path == "/api/health") && r.Method == http.MethodGet:
		s.handleHealth(w)
		return
	case path == "/api/webhooks/orders/create" && r.Method == http.MethodPost:
		s.handleOrderCreated(w, r, correlationID)
		return
	}

	if !strings.HasPrefix(path, "/api/") {
		writeError(w, http.StatusNotFound, "not_found", "route not found", correlationID)
		return
	}
	parts := strings.Split(strings.TrimPrefix(path, "/api/"), "/")

	var route string
	switch {
	case len(parts) == 1 && parts[0] == "settings" && r.Method == http.MethodGet:
		route = "settings_get"
	case len(parts) == 1 && parts[0] == "settings" && r.Method == http.MethodPost:
		route = "settings_update"
	case len(parts) == 1 && parts[0] == "find-duplicates" && r.Method == http.MethodPost:
		route = "find_duplicates"
	case len(parts) == 1 && parts[0] == "test-shopify" && r.Method == http.MethodGet:
		route = "test_shopify"
	case len(parts) == 1 && parts[0] == "events" && r.Method == http.MethodGet:
		route = "events"
	case len(parts) == 1 && parts[0] == "intake" && r.Method == http.MethodGet:
		route = "intake_stats"
	case len(parts) == 2 && parts[0] == "orders" && parts[1] == "canceled-duplicates" && r.Method == http.MethodGet:
		route = "canceled_duplicates"
	case len(parts) == 3 && parts[0] == "orders" && parts[2] == "reopen" && parts[1] != "" && r.Method == http.MethodPost:
		route = "reopen"
	default:
		writeError(w, http.StatusNotFound, "not_found", "route not found", correlationID)
		return
	}

	var subject string
	if s.cfg.AdminJWTSecret != "" {
		claims, authErr := parseAdminToken(bearerToken(r), s.cfg.AdminJWTSecret, s.now())
		if authErr != nil {
			writeError(w, authErr.status, authErr.code, authErr.message, correlationID)
			return
		}
		subject = claims.Subject
	}
	if s.limiter != nil && !s.limiter.allow(clientKey(r, subject), s.now()) {
		w.Header().Set("Retry-After", strconv.Itoa(s.limiter.retryAfterSeconds()))
		writeError(w, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded", correlationID)
		return
	}

	switch route {
	case "settings_get":
		s.handleGetSettings(w)
	case "settings_update":
		s.handleUpdateSettings(w, r, correlationID)
	case "find_duplicates":
		s.handleFindDuplicates(w, r, correlationID)
	case "test_shopify":
		s.handleTestShopify(w, r)
	case "events":
		s.deps.Events.serveWebsocket(w, r)
	case "intake_stats":
		s.handleIntakeStats(w, correlationID)
	case "canceled_duplicates":
		s.handleCanceledDuplicates(w, r, correlationID)
	case "reopen":
		s.handleReopen(w, r, parts[1], correlationID)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"status":    "ok",
		"timestamp": s.now().Format(time.RFC3339),
	})
}

func (s *Server) handleGetSettings(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "settings": s.deps.Settings.Get()})
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request, correlationID string) {
	body, ok := s.readRequestBody(w, r, correlationID)
	if !ok {
		return
	}
	patch, err := settings.DecodePatch(body)
	if err != nil {
		if errors.Is(err, settings.ErrInvalidPatch) {
			writeError(w, http.StatusBadRequest, "invalid_settings", err.Error(), correlationID)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error(), correlationID)
		return
	}
	updated, err := s.deps.Settings.Update(r.Context(), patch)
	if err != nil {
		s.logger.Error("settings update failed", "error", err, "correlation_id", correlationID)
		writeError(w, http.StatusInternalServerError, "settings_unavailable", err.Error(), correlationID)
		return
	}
	s.logger.Info("settings updated", "search_days", updated.SearchDays, "tag", updated.TagName,
		"auto_cancel", updated.AutoCancel, "webhook_enabled", updated.WebhookEnabled)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "settings": updated})
}

type findDuplicatesRequest struct {
	SearchDays int  `json:"searchDays"`
	DryRun     bool `json:"dryRun"`
}

type findDuplicatesResponse struct {
	Success         bool                    `json:"success"`
	Message         string                  `json:"message"`
	DuplicatesFound int                     `json:"duplicatesFound"`
	Details         []dupes.DecisionSummary `json:"details"`
	Failed          []string                `json:"failed"`
	Report          *dupes.Report           `json:"report"`
}

func (s *Server) handleFindDuplicates(w http.ResponseWriter, r *http.Request, correlationID string) {
	var req findDuplicatesRequest
	if !s.decodeOptionalJSONBody(w, r, correlationID, &req) {
		return
	}
	if req.SearchDays < 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "searchDays must be positive", correlationID)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ScanTimeout)
	defer cancel()
	report, err := s.deps.Scanner.RunBatch(ctx, s.deps.Settings.Get(), dupes.BatchOptions{
		SearchDays: req.SearchDays,
		DryRun:     req.DryRun,
	})
	if err != nil {
		s.writeEngineError(w, err, correlationID)
		return
	}
	details := report.Decisions
	if details == nil {
		details = []dupes.DecisionSummary{}
	}
	failed := report.Failed
	if failed == nil {
		failed = []string{}
	}
	writeJSON(w, http.StatusOK, findDuplicatesResponse{
		Success:         true,
		Message:         fmt.Sprintf("Scan completed. Found %d orders with duplicate phone numbers.", len(details)),
		DuplicatesFound: len(details),
		Details:         details,
		Failed:          failed,
		Report:          report,
	})
}

const (
	headerShopifyHMAC      = "X-Shopify-Hmac-Sha256"
	headerShopifyWebhookID = "X-Shopify-Webhook-Id"
	headerShopifyTopic     = "X-Shopify-Topic"
	headerShopifyDomain    = "X-Shopify-Shop-Domain"
)

// handleOrderCreated acknowledges Shopify quickly and leaves the check to the
// intake workers. Payloads that can never be processed are acknowledged too,
// otherwise Shopify would keep redelivering them.
func (s *Server) handleOrderCreated(w http.ResponseWriter, r *http.Request, correlationID string) {
	body, ok := s.readRequestBody(w, r, correlationID)
	if !ok {
		return
	}
	if s.cfg.WebhookSecret != "" {
		if authErr := verifyShopifyHMAC(s.cfg.WebhookSecret, r.Header.Get(headerShopifyHMAC), body); authErr != nil {
			s.logger.Warn("webhook rejected", "reason", authErr.message, "correlation_id", correlationID)
			writeError(w, authErr.status, authErr.code, authErr.message, correlationID)
			return
		}
	}
	log := s.logger.With("webhook_id", r.Header.Get(headerShopifyWebhookID), "correlation_id", correlationID)

	order, err := shopify.ParseOrder(body)
	if err != nil {
		log.Warn("ignoring unusable webhook payload", "error", err)
		writeText(w, http.StatusOK, "OK")
		return
	}
	if !s.deps.Settings.Get().WebhookEnabled {
		log.Info("webhook processing disabled, order ignored", "order", order.Name)
		writeText(w, http.StatusOK, "OK")
		return
	}
	if s.deps.Intake == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "event intake not configured", correlationID)
		return
	}
	accepted, err := s.deps.Intake.Submit(intake.Event{
		ID:         r.Header.Get(headerShopifyWebhookID),
		Topic:      r.Header.Get(headerShopifyTopic),
		ShopDomain: r.Header.Get(headerShopifyDomain),
		Order:      order,
	})
	switch {
	case errors.Is(err, intake.ErrQueueFull):
		w.Header().Set("Retry-After", "5")
		writeError(w, http.StatusServiceUnavailable, "queue_full", err.Error(), correlationID)
		return
	case errors.Is(err, intake.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, "shutting_down", err.Error(), correlationID)
		return
	case err != nil:
		log.Error("webhook enqueue failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error(), correlationID)
		return
	}
	log.Info("order webhook received", "order", order.Name, "queued", accepted)
	writeText(w, http.StatusOK, "OK")
}

func (s *Server) handleTestShopify(w http.ResponseWriter, r *http.Request) {
	if s.deps.Shop == nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"success":    false,
			"message":    "Shopify credentials not configured",
			"configured": false,
		})
		return
	}
	shop, err := s.deps.Shop.Shop(r.Context())
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"success":    false,
			"message":    err.Error(),
			"configured": true,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"message":    "Connected to " + shop.Name,
		"configured": true,
		"shop":       shop,
	})
}

func (s *Server) handleIntakeStats(w http.ResponseWriter, correlationID string) {
	if s.deps.Intake == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "event intake not configured", correlationID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"intake":      s.deps.Intake.Stats(),
		"subscribers": s.deps.Events.Subscribers(),
	})
}

type canceledOrderView struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Customer     string     `json:"customer"`
	Phone        string     `json:"phone"`
	TotalPrice   string     `json:"totalPrice"`
	CreatedAt    time.Time  `json:"createdAt"`
	CanceledAt   *time.Time `json:"canceledAt"`
	CancelReason string     `json:"cancelReason"`
	Tags         string     `json:"tags"`
}

func (s *Server) handleCanceledDuplicates(w http.ResponseWriter, r *http.Request, correlationID string) {
	orders, err := s.deps.Scanner.CanceledDuplicates(r.Context(), s.deps.Settings.Get())
	if err != nil {
		s.writeEngineError(w, err, correlationID)
		return
	}
	views := make([]canceledOrderView, 0, len(orders))
	for _, order := range orders {
		views = append(views, canceledOrderView{
			ID:           order.ID,
			Name:         order.Name,
			Customer:     order.CustomerName,
			Phone:        string(dupes.PhoneKeyOf(order)),
			TotalPrice:   order.TotalPrice,
			CreatedAt:    order.CreatedAt,
			CanceledAt:   order.CancelledAt,
			CancelReason: order.CancelReason,
			Tags:         order.Tags.String(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"canceledOrders": views,
		"count":          len(views),
	})
}

type reopenRequest struct {
	RemoveTag *bool `json:"removeTag"`
}

func (s *Server) handleReopen(w http.ResponseWriter, r *http.Request, orderID, correlationID string) {
	var req reopenRequest
	if !s.decodeOptionalJSONBody(w, r, correlationID, &req) {
		return
	}
	removeTag := true
	if req.RemoveTag != nil {
		removeTag = *req.RemoveTag
	}
	if err := s.deps.Scanner.Reverse(r.Context(), s.deps.Settings.Get(), orderID, removeTag); err != nil {
		var reversal *dupes.ReversalError
		if errors.As(err, &reversal) {
			status, code := http.StatusInternalServerError, "reversal_failed"
			if len(reversal.Steps) > 0 && reversal.Steps[0].Step == dupes.StepReopen && errors.Is(reversal.Steps[0].Err, dupes.ErrOrderNotFound) {
				status, code = http.StatusNotFound, "order_not_found"
			}
			writeJSON(w, status, map[string]any{
				"success":       false,
				"code":          code,
				"message":       reversal.Error(),
				"failedSteps":   reversal.FailedSteps(),
				"correlationId": correlationID,
			})
			return
		}
		s.writeEngineError(w, err, correlationID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": fmt.Sprintf("Order %s reopened successfully", orderID),
	})
}

func (s *Server) writeEngineError(w http.ResponseWriter, err error, correlationID string) {
	switch {
	case errors.Is(err, dupes.ErrSourceUnavailable):
		s.logger.Warn("order source unavailable", "error", err, "correlation_id", correlationID)
		writeError(w, http.StatusBadGateway, "source_unavailable", err.Error(), correlationID)
	case errors.Is(err, dupes.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, "order_not_found", err.Error(), correlationID)
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "timeout", err.Error(), correlationID)
	default:
		s.logger.Error("request failed", "error", err, "correlation_id", correlationID)
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error(), correlationID)
	}
}

func getCorrelationID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get("X-Correlation-Id")); id != "" {
		return id
	}
	return uuid.NewString()
}

func (s *Server) readRequestBody(w http.ResponseWriter, r *http.Request, correlationID string) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body exceeds configured limit", correlationID)
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "bad_request", "failed to read request body", correlationID)
		return nil, false
	}
	return body, true
}

// decodeOptionalJSONBody treats an empty body as "{}".
func (s *Server) decodeOptionalJSONBody(w http.ResponseWriter, r *http.Request, correlationID string, dst any) bool {
	body, ok := s.readRequestBody(w, r, correlationID)
	if !ok {
		return false
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return true
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid json body", correlationID)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeText(w http.ResponseWriter, status int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, text)
}

func writeError(w http.ResponseWriter, status int, code, message, correlationID string) {
	writeJSON(w, status, map[string]any{
		"success":       false,
		"code":          code,
		"message":       message,
		"correlationId": correlationID,
	})
}
