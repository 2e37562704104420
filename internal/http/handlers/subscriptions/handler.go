package subscriptions

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/subtrack-app/subtrack/internal/domain/category"
	domain "github.com/subtrack-app/subtrack/internal/domain/subscription"
	"github.com/subtrack-app/subtrack/internal/services/subscriptions"
)

type Handler struct {
	service *subscriptions.Service
	logger  *slog.Logger
}

func New(service *subscriptions.Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger.WithGroup("subscriptions_http")}
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/api/v1/subscriptions", func(r chi.Router) {
		r.Post("/", h.handleCreate)
		r.Get("/", h.handleList)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.handleGet)
			r.Put("/", h.handleUpdate)
			r.Delete("/", h.handleDelete)
			r.Post("/pay", h.handleMarkPaid)
			r.Post("/toggle", h.handleToggle)
		})
	})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode create request", slog.Any("error", err))
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	input, err := req.toCreateInput()
	if err != nil {
		h.logger.Warn("invalid create request", slog.Any("error", err))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sub, err := h.service.Create(r.Context(), input)
	if err != nil {
		h.respondError(w, r, err, "failed to create subscription")
		return
	}

	h.logger.Info("subscription created", slog.String("subscription_id", sub.ID.String()))
	writeJSON(w, http.StatusCreated, responseFromDomain(sub))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	sub, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err, "failed to get subscription")
		return
	}

	writeJSON(w, http.StatusOK, responseFromDomain(sub))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	if dueWithin := query.Get("due_within"); dueWithin != "" {
		days, err := strconv.Atoi(dueWithin)
		if err != nil || days < 0 {
			http.Error(w, "invalid due_within", http.StatusBadRequest)
			return
		}

		subs, err := h.service.ListDueBy(r.Context(), days)
		if err != nil {
			h.respondError(w, r, err, "failed to list subscriptions")
			return
		}
		writeJSON(w, http.StatusOK, responsesFromDomain(subs))
		return
	}

	var filter domain.ListFilter
	if active := query.Get("active"); active != "" {
		parsed, err := strconv.ParseBool(active)
		if err != nil {
			http.Error(w, "invalid active", http.StatusBadRequest)
			return
		}
		filter.Active = &parsed
	}
	if categoryID := query.Get("category"); categoryID != "" {
		filter.CategoryID = &categoryID
	}

	subs, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, err, "failed to list subscriptions")
		return
	}

	writeJSON(w, http.StatusOK, responsesFromDomain(subs))
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode update request", slog.String("subscription_id", id.String()), slog.Any("error", err))
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	input, err := req.toUpdateInput()
	if err != nil {
		h.logger.Warn("invalid update request", slog.String("subscription_id", id.String()), slog.Any("error", err))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sub, err := h.service.Update(r.Context(), id, input)
	if err != nil {
		h.respondError(w, r, err, "failed to update subscription")
		return
	}

	writeJSON(w, http.StatusOK, responseFromDomain(sub))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		h.respondError(w, r, err, "failed to delete subscription")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMarkPaid(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	sub, err := h.service.MarkPaid(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err, "failed to mark subscription paid")
		return
	}

	writeJSON(w, http.StatusOK, responseFromDomain(sub))
}

func (h *Handler) handleToggle(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	sub, err := h.service.ToggleActive(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err, "failed to toggle subscription")
		return
	}

	writeJSON(w, http.StatusOK, responseFromDomain(sub))
}

func (h *Handler) parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.logger.Warn("failed to parse subscription id", slog.String("raw", chi.URLParam(r, "id")))
		http.Error(w, "invalid subscription id", http.StatusBadRequest)
		return uuid.UUID{}, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		http.Error(w, verr.Error(), http.StatusBadRequest)
	case errors.Is(err, category.ErrNotFound):
		http.Error(w, "category not found", http.StatusBadRequest)
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, "subscription not found", http.StatusNotFound)
	default:
		h.logger.Error(fallback, slog.String("path", r.URL.Path), slog.Any("error", err))
		http.Error(w, fallback, http.StatusInternalServerError)
	}
}

type createRequest struct {
	Name         string          `json:"name"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	Cycle        string          `json:"billing_cycle"`
	BillingDate  string          `json:"next_billing_date"`
	StartDate    string          `json:"start_date,omitempty"`
	CategoryID   string          `json:"category_id"`
	Notes        *string         `json:"notes,omitempty"`
	IsActive     *bool           `json:"is_active"`
	ReminderDays []int           `json:"reminder_days"`
}

func (r createRequest) toCreateInput() (domain.CreateInput, error) {
	billingDate, err := time.Parse(domain.DateLayout, r.BillingDate)
	if err != nil {
		return domain.CreateInput{}, errors.New("invalid next_billing_date, expected YYYY-MM-DD")
	}

	var startDate time.Time
	if r.StartDate != "" {
		startDate, err = time.Parse(domain.DateLayout, r.StartDate)
		if err != nil {
			return domain.CreateInput{}, errors.New("invalid start_date, expected YYYY-MM-DD")
		}
	}

	isActive := true
	if r.IsActive != nil {
		isActive = *r.IsActive
	}

	return domain.CreateInput{
		Name:         r.Name,
		Amount:       r.Amount,
		Currency:     r.Currency,
		Cycle:        domain.Cycle(r.Cycle),
		BillingDate:  billingDate,
		StartDate:    startDate,
		CategoryID:   r.CategoryID,
		Notes:        r.Notes,
		IsActive:     isActive,
		ReminderDays: r.ReminderDays,
	}, nil
}

type updateRequest struct {
	Name         *string          `json:"name,omitempty"`
	Amount       *decimal.Decimal `json:"amount,omitempty"`
	Currency     *string          `json:"currency,omitempty"`
	Cycle        *string          `json:"billing_cycle,omitempty"`
	BillingDate  *string          `json:"next_billing_date,omitempty"`
	CategoryID   *string          `json:"category_id,omitempty"`
	Notes        *string          `json:"notes,omitempty"`
	ClearNotes   bool             `json:"clear_notes,omitempty"`
	IsActive     *bool            `json:"is_active,omitempty"`
	ReminderDays *[]int           `json:"reminder_days,omitempty"`
}

func (r updateRequest) toUpdateInput() (domain.UpdateInput, error) {
	input := domain.UpdateInput{
		Name:         r.Name,
		Amount:       r.Amount,
		Currency:     r.Currency,
		CategoryID:   r.CategoryID,
		Notes:        r.Notes,
		ClearNotes:   r.ClearNotes,
		IsActive:     r.IsActive,
		ReminderDays: r.ReminderDays,
	}

	if r.Cycle != nil {
		cycle, err := domain.ParseCycle(*r.Cycle)
		if err != nil {
			return domain.UpdateInput{}, err
		}
		input.Cycle = &cycle
	}

	if r.BillingDate != nil {
		parsed, err := time.Parse(domain.DateLayout, *r.BillingDate)
		if err != nil {
			return domain.UpdateInput{}, errors.New("invalid next_billing_date, expected YYYY-MM-DD")
		}
		input.BillingDate = &parsed
	}

	return input, nil
}

type subscriptionResponse struct {
	ID              uuid.UUID       `json:"id"`
	Name            string          `json:"name"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	Cycle           string          `json:"billing_cycle"`
	NextBillingDate string          `json:"next_billing_date"`
	StartDate       string          `json:"start_date"`
	CategoryID      string          `json:"category_id"`
	Notes           *string         `json:"notes,omitempty"`
	IsActive        bool            `json:"is_active"`
	ReminderDays    []int           `json:"reminder_days"`
	NotificationIDs []string        `json:"notification_ids"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func responseFromDomain(sub domain.Subscription) subscriptionResponse {
	return subscriptionResponse{
		ID:              sub.ID,
		Name:            sub.Name,
		Amount:          sub.Amount,
		Currency:        sub.Currency,
		Cycle:           sub.Cycle.String(),
		NextBillingDate: sub.NextBillingDate.Format(domain.DateLayout),
		StartDate:       sub.StartDate.Format(domain.DateLayout),
		CategoryID:      sub.CategoryID,
		Notes:           sub.Notes,
		IsActive:        sub.IsActive,
		ReminderDays:    sub.ReminderDays,
		NotificationIDs: sub.NotificationIDs,
		CreatedAt:       sub.CreatedAt,
		UpdatedAt:       sub.UpdatedAt,
	}
}

func responsesFromDomain(subs []domain.Subscription) []subscriptionResponse {
	resp := make([]subscriptionResponse, 0, len(subs))
	for _, sub := range subs {
		resp = append(resp, responseFromDomain(sub))
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
