package domain

import (
	"fmt"
	"time"
)

// EmbeddingJobStatus represents the status of an embedding job
type EmbeddingJobStatus string

const (
	EmbeddingJobStatusPending    EmbeddingJobStatus = "pending"
	EmbeddingJobStatusProcessing EmbeddingJobStatus = "processing"
	EmbeddingJobStatusCompleted  EmbeddingJobStatus = "completed"
	EmbeddingJobStatusFailed     EmbeddingJobStatus = "failed"
)

// IsTerminal reports whether no further transitions are allowed.
func (s EmbeddingJobStatus) IsTerminal() bool {
	return s == EmbeddingJobStatusCompleted || s == EmbeddingJobStatusFailed
}

// EmbeddingJob tracks the asynchronous (re)indexing of one article revision.
type EmbeddingJob struct {
	ID          string
	ArticleID   string
	OrgID       string
	Status      EmbeddingJobStatus
	Attempts    int32
	Error       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ProcessedAt *time.Time
}

// NewEmbeddingJob creates a pending job for an article.
func NewEmbeddingJob(id, articleID, orgID string, now time.Time) *EmbeddingJob {
	return &EmbeddingJob{
		ID:        id,
		ArticleID: articleID,
		OrgID:     orgID,
		Status:    EmbeddingJobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ValidateEmbeddingJob validates an EmbeddingJob instance
func ValidateEmbeddingJob(j *EmbeddingJob) error {
	if j == nil {
		return fmt.Errorf("embedding job cannot be nil")
	}

	if j.ID == "" {
		return fmt.Errorf("embedding job ID is required")
	}

	if j.ArticleID == "" {
		return fmt.Errorf("embedding job ArticleID is required")
	}

	if j.OrgID == "" {
		return fmt.Errorf("embedding job OrgID is required")
	}

	if !isValidEmbeddingJobStatus(j.Status) {
		return fmt.Errorf("embedding job Status is invalid: %s", j.Status)
	}

	if j.Attempts < 0 {
		return fmt.Errorf("embedding job Attempts cannot be negative")
	}

	return nil
}

func isValidEmbeddingJobStatus(s EmbeddingJobStatus) bool {
	switch s {
	case EmbeddingJobStatusPending, EmbeddingJobStatusProcessing,
		EmbeddingJobStatusCompleted, EmbeddingJobStatusFailed:
		return true
	}
	return false
}
