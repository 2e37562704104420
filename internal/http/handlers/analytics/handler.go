package analytics

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	domain "github.com/subtrack-app/subtrack/internal/domain/subscription"
	"github.com/subtrack-app/subtrack/internal/services/analytics"
)

type Handler struct {
	engine *analytics.Engine
	logger *slog.Logger
}

func New(engine *analytics.Engine, logger *slog.Logger) *Handler {
	return &Handler{engine: engine, logger: logger.WithGroup("analytics_http")}
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/api/v1/analytics", func(r chi.Router) {
		r.Get("/summary", h.handleSummary)
		r.Get("/actual", h.handleActualSpend)
		r.Get("/categories", h.handleSpendByCategory)
		r.Get("/stats", h.handleStats)
		r.Get("/upcoming", h.handleUpcoming)
	})
}

type summaryResponse struct {
	Monthly map[string]decimal.Decimal `json:"monthly"`
	Yearly  map[string]decimal.Decimal `json:"yearly"`
	Weekly  map[string]decimal.Decimal `json:"weekly"`
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	monthly, err := h.engine.MonthlyTotal(r.Context())
	if err != nil {
		h.fail(w, r, err, "failed to compute summary")
		return
	}
	yearly, err := h.engine.YearlyTotal(r.Context())
	if err != nil {
		h.fail(w, r, err, "failed to compute summary")
		return
	}
	weekly, err := h.engine.WeeklyTotal(r.Context())
	if err != nil {
		h.fail(w, r, err, "failed to compute summary")
		return
	}

	writeJSON(w, http.StatusOK, summaryResponse{Monthly: monthly, Yearly: yearly, Weekly: weekly})
}

type monthSpendResponse struct {
	Total         decimal.Decimal `json:"total"`
	Subscriptions []billResponse  `json:"subscriptions"`
}

func (h *Handler) handleActualSpend(w http.ResponseWriter, r *http.Request) {
	var (
		year  int
		month time.Month
	)

	query := r.URL.Query()
	if y := query.Get("year"); y != "" {
		parsed, err := strconv.Atoi(y)
		if err != nil || parsed < 1 {
			http.Error(w, "invalid year", http.StatusBadRequest)
			return
		}
		year = parsed
	}
	if m := query.Get("month"); m != "" {
		parsed, err := strconv.Atoi(m)
		if err != nil || parsed < 1 || parsed > 12 {
			http.Error(w, "invalid month", http.StatusBadRequest)
			return
		}
		month = time.Month(parsed)
	}
	if (year == 0) != (month == 0) {
		http.Error(w, "year and month must be provided together", http.StatusBadRequest)
		return
	}

	spend, err := h.engine.ActualSpendForMonth(r.Context(), year, month)
	if err != nil {
		h.fail(w, r, err, "failed to compute actual spend")
		return
	}

	resp := make(map[string]monthSpendResponse, len(spend))
	for currency, entry := range spend {
		resp[currency] = monthSpendResponse{
			Total:         entry.Total,
			Subscriptions: billsFromDomain(entry.Subscriptions),
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

type categorySpendResponse struct {
	CategoryID      string          `json:"category_id"`
	Currency        string          `json:"currency"`
	MonthlyEquivSum decimal.Decimal `json:"monthly_equivalent"`
	Count           int             `json:"count"`
}

func (h *Handler) handleSpendByCategory(w http.ResponseWriter, r *http.Request) {
	groups, err := h.engine.SpendByCategory(r.Context())
	if err != nil {
		h.fail(w, r, err, "failed to compute category spend")
		return
	}

	resp := make([]categorySpendResponse, 0, len(groups))
	for _, g := range groups {
		resp = append(resp, categorySpendResponse{
			CategoryID:      g.CategoryID,
			Currency:        g.Currency,
			MonthlyEquivSum: g.MonthlyEquivSum,
			Count:           g.Count,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

type statsResponse struct {
	ActiveCount          int                        `json:"active_count"`
	InactiveCount        int                        `json:"inactive_count"`
	MostExpensive        *billResponse              `json:"most_expensive"`
	Cheapest             *billResponse              `json:"cheapest"`
	AvgMonthlyByCurrency map[string]decimal.Decimal `json:"avg_monthly_by_currency"`
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.Stats(r.Context())
	if err != nil {
		h.fail(w, r, err, "failed to compute stats")
		return
	}

	resp := statsResponse{
		ActiveCount:          stats.ActiveCount,
		InactiveCount:        stats.InactiveCount,
		AvgMonthlyByCurrency: stats.AvgMonthlyByCurrency,
	}
	if stats.MostExpensive != nil {
		b := billFromDomain(*stats.MostExpensive)
		resp.MostExpensive = &b
	}
	if stats.Cheapest != nil {
		b := billFromDomain(*stats.Cheapest)
		resp.Cheapest = &b
	}

	writeJSON(w, http.StatusOK, resp)
}

type upcomingResponse struct {
	Overdue  []billResponse `json:"overdue"`
	Today    []billResponse `json:"today"`
	Tomorrow []billResponse `json:"tomorrow"`
	ThisWeek []billResponse `json:"this_week"`
	NextWeek []billResponse `json:"next_week"`
	Later    []billResponse `json:"later"`
}

func (h *Handler) handleUpcoming(w http.ResponseWriter, r *http.Request) {
	upcoming, err := h.engine.UpcomingGrouped(r.Context())
	if err != nil {
		h.fail(w, r, err, "failed to group upcoming bills")
		return
	}

	writeJSON(w, http.StatusOK, upcomingResponse{
		Overdue:  billsFromDomain(upcoming.Overdue),
		Today:    billsFromDomain(upcoming.Today),
		Tomorrow: billsFromDomain(upcoming.Tomorrow),
		ThisWeek: billsFromDomain(upcoming.ThisWeek),
		NextWeek: billsFromDomain(upcoming.NextWeek),
		Later:    billsFromDomain(upcoming.Later),
	})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error, message string) {
	h.logger.Error(message, slog.String("path", r.URL.Path), slog.Any("error", err))
	http.Error(w, message, http.StatusInternalServerError)
}

// billResponse is the compact subscription projection used by the aggregate
// endpoints.
type billResponse struct {
	ID              uuid.UUID       `json:"id"`
	Name            string          `json:"name"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	Cycle           string          `json:"billing_cycle"`
	NextBillingDate string          `json:"next_billing_date"`
	CategoryID      string          `json:"category_id"`
}

func billFromDomain(sub domain.Subscription) billResponse {
	return billResponse{
		ID:              sub.ID,
		Name:            sub.Name,
		Amount:          sub.Amount,
		Currency:        sub.Currency,
		Cycle:           sub.Cycle.String(),
		NextBillingDate: sub.NextBillingDate.Format(domain.DateLayout),
		CategoryID:      sub.CategoryID,
	}
}

func billsFromDomain(subs []domain.Subscription) []billResponse {
	resp := make([]billResponse, 0, len(subs))
	for _, sub := range subs {
		resp = append(resp, billFromDomain(sub))
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Default().Error("failed to encode response", slog.Any("error", err))
	}
}
