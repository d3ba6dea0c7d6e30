package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/cloo-solutions/supportkb/internal/api"
	"github.com/cloo-solutions/supportkb/internal/api/middleware"
	"github.com/cloo-solutions/supportkb/internal/domain"
	"github.com/cloo-solutions/supportkb/internal/pagination"
	"github.com/cloo-solutions/supportkb/internal/service"
	"github.com/go-chi/chi/v5"
)

type ArticleService interface {
	Ingest(ctx context.Context, input service.IngestInput) (*service.IngestResult, error)
	Unpublish(ctx context.Context, orgID, articleID string) error
	Delete(ctx context.Context, orgID, articleID string) error
	ListJobs(ctx context.Context, input service.ListJobsInput) (pagination.Page[*domain.EmbeddingJob], error)
}

type ArticleHandler struct {
	svc ArticleService
}

func NewArticleHandler(svc ArticleService) *ArticleHandler {
	return &ArticleHandler{svc: svc}
}

type IngestArticleRequest struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organization_id"`
	Title          string `json:"title"`
	Content        string `json:"content"`
	Category       string `json:"category"`
	IsPublished    *bool  `json:"is_published"`
}

type IngestArticleResponse struct {
	ArticleID string  `json:"article_id"`
	JobID     *string `json:"job_id"`
	Status    string  `json:"status"`
}

// Ingest stores the article and answers 202 with the queued job. Indexing
// happens asynchronously. is_published defaults to true.
func (h *ArticleHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req IngestArticleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	orgID, err := resolveOrg(r, req.OrganizationID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	published := true
	if req.IsPublished != nil {
		published = *req.IsPublished
	}

	result, err := h.svc.Ingest(r.Context(), service.IngestInput{
		ID:          req.ID,
		OrgID:       orgID,
		Title:       req.Title,
		Content:     req.Content,
		Category:    req.Category,
		IsPublished: published,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := IngestArticleResponse{ArticleID: result.Article.ID, Status: "stored"}
	if result.Job != nil {
		resp.JobID = &result.Job.ID
		resp.Status = string(result.Job.Status)
	}
	api.Success(w, http.StatusAccepted, resp)
}

func (h *ArticleHandler) Unpublish(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrgID(r.Context())
	if err := h.svc.Unpublish(r.Context(), orgID, chi.URLParam(r, "id")); err != nil {
		api.HandleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ArticleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrgID(r.Context())
	if err := h.svc.Delete(r.Context(), orgID, chi.URLParam(r, "id")); err != nil {
		api.HandleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListJobs returns the article's job history, newest first.
func (h *ArticleHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			api.Error(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	page, err := h.svc.ListJobs(r.Context(), service.ListJobsInput{
		OrgID:     middleware.GetOrgID(r.Context()),
		ArticleID: chi.URLParam(r, "id"),
		Cursor:    r.URL.Query().Get("cursor"),
		Limit:     limit,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	items := make([]JobResponse, len(page.Items))
	for i, job := range page.Items {
		items[i] = jobToResponse(job)
	}
	api.Success(w, http.StatusOK, pagination.Page[JobResponse]{
		Items:      items,
		NextCursor: page.NextCursor,
		HasMore:    page.HasMore,
	})
}

// resolveOrg combines the organization in the request body with the scope
// from the X-Org-ID header. When both are present they must agree.
func resolveOrg(r *http.Request, bodyOrg string) (string, error) {
	scoped := middleware.GetOrgID(r.Context())
	bodyOrg = strings.TrimSpace(bodyOrg)

	switch {
	case scoped != "" && bodyOrg != "" && scoped != bodyOrg:
		return "", domain.NewValidationError("organization_id does not match " + middleware.OrgIDHeader)
	case bodyOrg != "":
		return bodyOrg, nil
	case scoped != "":
		return scoped, nil
	default:
		return "", domain.ErrMissingOrganization
	}
}
