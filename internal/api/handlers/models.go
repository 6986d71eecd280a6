package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/readstack/readstack/internal/api"
	"github.com/readstack/readstack/internal/domain"
)

type ModelRegistry interface {
	Create(ctx context.Context, m *domain.Model) error
	List(ctx context.Context) ([]*domain.Model, error)
}

type ModelsHandler struct {
	registry ModelRegistry
}

func NewModelsHandler(registry ModelRegistry) *ModelsHandler {
	return &ModelsHandler{registry: registry}
}

type CreateModelRequest struct {
	Name     string `json:"name"`
	Provider string `json:"provider"`
	Type     string `json:"type"`
}

type ModelResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Provider  string `json:"provider"`
	Type      string `json:"type"`
	CreatedAt string `json:"created_at"`
}

func modelToResponse(m *domain.Model) *ModelResponse {
	return &ModelResponse{
		ID:        m.ID,
		Name:      m.Name,
		Provider:  m.Provider,
		Type:      string(m.Type),
		CreatedAt: m.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (h *ModelsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateModelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	model := domain.NewModel(uuid.NewString(), req.Name, req.Provider, domain.ModelType(req.Type), time.Now().UTC())
	if err := domain.ValidateModel(model); err != nil {
		api.HandleError(w, err)
		return
	}

	if err := h.registry.Create(r.Context(), model); err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, modelToResponse(model))
}

func (h *ModelsHandler) List(w http.ResponseWriter, r *http.Request) {
	models, err := h.registry.List(r.Context())
	if err != nil {
		api.HandleError(w, err)
		return
	}

	out := make([]*ModelResponse, 0, len(models))
	for _, m := range models {
		out = append(out, modelToResponse(m))
	}

	api.Success(w, http.StatusOK, out)
}
