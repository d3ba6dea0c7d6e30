package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/cloo-solutions/supportkb/internal/api"
	"github.com/cloo-solutions/supportkb/internal/domain"
	"github.com/cloo-solutions/supportkb/internal/service"
)

type SearchService interface {
	Search(ctx context.Context, input service.SearchInput) ([]domain.SearchResult, error)
	Answer(ctx context.Context, orgID, query string) (*domain.Answer, error)
}

type SearchHandler struct {
	svc SearchService
}

func NewSearchHandler(svc SearchService) *SearchHandler {
	return &SearchHandler{svc: svc}
}

type SearchRequest struct {
	OrganizationID string   `json:"organization_id"`
	Query          string   `json:"query"`
	TopK           int      `json:"top_k"`
	Threshold      *float64 `json:"threshold"`
}

type SearchResponse struct {
	Results []domain.SearchResult `json:"results"`
}

type AnswerRequest struct {
	OrganizationID string `json:"organization_id"`
	Query          string `json:"query"`
}

func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	orgID, err := resolveOrg(r, req.OrganizationID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	results, err := h.svc.Search(r.Context(), service.SearchInput{
		OrgID:     orgID,
		Query:     req.Query,
		TopK:      req.TopK,
		Threshold: req.Threshold,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}
	if results == nil {
		results = []domain.SearchResult{}
	}

	api.Success(w, http.StatusOK, SearchResponse{Results: results})
}

func (h *SearchHandler) Answer(w http.ResponseWriter, r *http.Request) {
	var req AnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	orgID, err := resolveOrg(r, req.OrganizationID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	answer, err := h.svc.Answer(r.Context(), orgID, req.Query)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, answer)
}
