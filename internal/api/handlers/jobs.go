package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/cloo-solutions/supportkb/internal/api"
	"github.com/cloo-solutions/supportkb/internal/api/middleware"
	"github.com/cloo-solutions/supportkb/internal/domain"
	"github.com/go-chi/chi/v5"
)

type JobService interface {
	GetJob(ctx context.Context, orgID, jobID string) (*domain.EmbeddingJob, error)
	CountIndexedChunks(ctx context.Context, orgID, articleID string) (int, error)
}

type JobHandler struct {
	svc JobService
}

func NewJobHandler(svc JobService) *JobHandler {
	return &JobHandler{svc: svc}
}

type JobResponse struct {
	ID             string  `json:"id"`
	ArticleID      string  `json:"article_id"`
	OrganizationID string  `json:"organization_id"`
	Status         string  `json:"status"`
	Attempts       int32   `json:"attempts"`
	Error          string  `json:"error,omitempty"`
	CreatedAt      string  `json:"created_at"`
	UpdatedAt      string  `json:"updated_at"`
	ProcessedAt    *string `json:"processed_at,omitempty"`
	IndexedChunks  *int    `json:"indexed_chunks,omitempty"`
}

func jobToResponse(j *domain.EmbeddingJob) JobResponse {
	resp := JobResponse{
		ID:             j.ID,
		ArticleID:      j.ArticleID,
		OrganizationID: j.OrgID,
		Status:         string(j.Status),
		Attempts:       j.Attempts,
		Error:          j.Error,
		CreatedAt:      j.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:      j.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if j.ProcessedAt != nil {
		ts := j.ProcessedAt.UTC().Format(time.RFC3339)
		resp.ProcessedAt = &ts
	}
	return resp
}

// Get returns a job. Completed jobs also report how many chunks their article
// currently has indexed; the count is omitted when it cannot be read.
func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrgID(r.Context())
	job, err := h.svc.GetJob(r.Context(), orgID, chi.URLParam(r, "id"))
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := jobToResponse(job)
	if job.Status == domain.EmbeddingJobStatusCompleted {
		if n, err := h.svc.CountIndexedChunks(r.Context(), orgID, job.ArticleID); err == nil {
			resp.IndexedChunks = &n
		}
	}
	api.Success(w, http.StatusOK, resp)
}
