package categories

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/subtrack-app/subtrack/internal/domain/category"
)

type Storage interface {
	ListCategories(ctx context.Context) ([]category.Category, error)
}

type Handler struct {
	storage Storage
	logger  *slog.Logger
}

func New(storage Storage, logger *slog.Logger) *Handler {
	return &Handler{storage: storage, logger: logger.WithGroup("categories_http")}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/api/v1/categories", h.handleList)
}

type categoryResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Icon  string `json:"icon"`
	Color string `json:"color"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.storage.ListCategories(r.Context())
	if err != nil {
		h.logger.Error("failed to list categories", slog.Any("error", err))
		http.Error(w, "failed to list categories", http.StatusInternalServerError)
		return
	}

	resp := make([]categoryResponse, 0, len(list))
	for _, c := range list {
		resp = append(resp, categoryResponse{ID: c.ID, Name: c.Name, Icon: c.Icon, Color: c.Color})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Default().Error("failed to encode response", slog.Any("error", err))
	}
}
