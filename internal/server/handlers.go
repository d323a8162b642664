package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"rwa-price-aggregator/internal/domain"
	"rwa-price-aggregator/internal/service"
)

// PriceReader is the slice of the aggregator the API needs.
type PriceReader interface {
	AggregatedPrices(ctx context.Context, symbol string, includeStale bool) (service.AggregatedPrices, error)
}

// TokenReader lists the token registry.
type TokenReader interface {
	ListActiveTokens(ctx context.Context) ([]domain.Token, error)
}

// AlertManager is the slice of the subscription service the API needs.
type AlertManager interface {
	Create(ctx context.Context, input service.CreateAlertInput) (domain.Alert, domain.Token, error)
	ListByEmail(ctx context.Context, email string) ([]service.AlertWithToken, error)
	Delete(ctx context.Context, id int64) error
}

// Handler implements every API route.
type Handler struct {
	prices PriceReader
	tokens TokenReader
	alerts AlertManager
	logger zerolog.Logger
}

// NewHandler wires the API routes to their services.
func NewHandler(prices PriceReader, tokens TokenReader, alerts AlertManager, logger zerolog.Logger) *Handler {
	return &Handler{
		prices: prices,
		tokens: tokens,
		alerts: alerts,
		logger: logger.With().Str("component", "api").Logger(),
	}
}

// writeJSON marshals v and writes it with the given status. A marshal
// failure degrades to a plain 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps domain sentinels onto HTTP statuses.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrTokenNotFound),
		errors.Is(err, domain.ErrNoPriceData),
		errors.Is(err, domain.ErrAlertNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrNotTradable):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// Health reports liveness.
// GET /api/health
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

type tokenResponse struct {
	Symbol     string `json:"symbol"`
	Name       string `json:"name"`
	Category   string `json:"category"`
	Issuer     string `json:"issuer,omitempty"`
	Chain      string `json:"chain,omitempty"`
	MarketType string `json:"market_type"`
}

// ListTokens returns the active token registry.
// GET /api/tokens
func (h *Handler) ListTokens(w http.ResponseWriter, r *http.Request) {
	tokens, err := h.tokens.ListActiveTokens(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	out := make([]tokenResponse, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, tokenResponse{
			Symbol:     t.Symbol,
			Name:       t.Name,
			Category:   string(t.Category),
			Issuer:     t.Issuer,
			Chain:      t.Chain,
			MarketType: string(t.MarketType),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"tokens": out})
}

// ListPrices returns aggregated views for every active tradable token.
// Tokens without any price data are omitted rather than failing the
// whole listing.
// GET /api/prices?include_stale=true
func (h *Handler) ListPrices(w http.ResponseWriter, r *http.Request) {
	includeStale := parseIncludeStale(r)

	tokens, err := h.tokens.ListActiveTokens(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	views := make([]service.AggregatedPrices, 0, len(tokens))
	for _, t := range tokens {
		if !t.MarketType.Tradable() {
			continue
		}
		view, aggErr := h.prices.AggregatedPrices(r.Context(), t.Symbol, includeStale)
		if aggErr != nil {
			if errors.Is(aggErr, domain.ErrNoPriceData) {
				continue
			}
			h.writeDomainError(w, aggErr)
			return
		}
		views = append(views, view)
	}
	writeJSON(w, http.StatusOK, map[string]any{"prices": views})
}

// GetPrices returns the aggregated view for one token.
// GET /api/prices/{symbol}?include_stale=true
func (h *Handler) GetPrices(w http.ResponseWriter, r *http.Request) {
	symbol := r.PathValue("symbol")
	view, err := h.prices.AggregatedPrices(r.Context(), symbol, parseIncludeStale(r))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type createAlertRequest struct {
	Email         string          `json:"email"`
	TokenSymbol   string          `json:"token_symbol"`
	ThresholdPct  decimal.Decimal `json:"threshold_pct"`
	Kind          string          `json:"kind"`
	CooldownHours int             `json:"cooldown_hours"`
}

type alertResponse struct {
	ID            int64           `json:"id"`
	Email         string          `json:"email"`
	TokenSymbol   string          `json:"token_symbol"`
	TokenName     string          `json:"token_name,omitempty"`
	ThresholdPct  decimal.Decimal `json:"threshold_pct"`
	Kind          string          `json:"kind"`
	Status        string          `json:"status"`
	CooldownHours int             `json:"cooldown_hours"`
	LastTriggered *time.Time      `json:"last_triggered_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// CreateAlert registers a new alert subscription.
// POST /api/alerts
func (h *Handler) CreateAlert(w http.ResponseWriter, r *http.Request) {
	var req createAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	alert, token, err := h.alerts.Create(r.Context(), service.CreateAlertInput{
		Email:         req.Email,
		TokenSymbol:   req.TokenSymbol,
		ThresholdPct:  req.ThresholdPct,
		Kind:          domain.AlertKind(req.Kind),
		CooldownHours: req.CooldownHours,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, alertToResponse(alert, token.Symbol, token.Name))
}

// ListAlerts returns a subscriber's alerts.
// GET /api/alerts?email=
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		writeError(w, http.StatusBadRequest, "email query parameter is required")
		return
	}

	entries, err := h.alerts.ListByEmail(r.Context(), email)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	out := make([]alertResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, alertToResponse(e.Alert, e.TokenSymbol, e.TokenName))
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": out})
}

// DeleteAlert logically removes a subscription.
// DELETE /api/alerts/{id}
func (h *Handler) DeleteAlert(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "alert id must be an integer")
		return
	}

	if err := h.alerts.Delete(r.Context(), id); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func alertToResponse(alert domain.Alert, symbol, name string) alertResponse {
	return alertResponse{
		ID:            alert.ID,
		Email:         alert.Email.String(),
		TokenSymbol:   symbol,
		TokenName:     name,
		ThresholdPct:  alert.ThresholdPct,
		Kind:          string(alert.Kind),
		Status:        string(alert.Status),
		CooldownHours: alert.CooldownHours,
		LastTriggered: alert.LastTriggeredAt,
		CreatedAt:     alert.CreatedAt,
	}
}

// parseIncludeStale defaults to true: the dashboard wants to show
// stale venues greyed out rather than hidden.
func parseIncludeStale(r *http.Request) bool {
	v := r.URL.Query().Get("include_stale")
	if v == "" {
		return true
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return true
	}
	return parsed
}
