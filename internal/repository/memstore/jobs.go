package memstore

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/cloo-solutions/supportkb/internal/domain"
	"github.com/cloo-solutions/supportkb/internal/pagination"
)

type JobRepository struct {
	v view
}

func (r *JobRepository) Create(ctx context.Context, job *domain.EmbeddingJob) error {
	if err := domain.ValidateEmbeddingJob(job); err != nil {
		return domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid embedding job", err)
	}
	return r.v.write(func(st *state) error {
		if _, ok := st.jobs[job.ID]; ok {
			return domain.NewDomainError(domain.ErrCodeConflict, "embedding job already exists")
		}
		st.seq++
		st.jobs[job.ID] = jobEntry{job: *job, seq: st.seq}
		return nil
	})
}

func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.EmbeddingJob, error) {
	var out *domain.EmbeddingJob
	err := r.v.read(func(st *state) error {
		e, ok := st.jobs[id]
		if !ok {
			return domain.ErrEmbeddingJobNotFound
		}
		job := e.job
		out = &job
		return nil
	})
	return out, err
}

func (r *JobRepository) ListByArticle(ctx context.Context, articleID string, cursor *pagination.Cursor, limit int) ([]*domain.EmbeddingJob, error) {
	var entries []jobEntry
	_ = r.v.read(func(st *state) error {
		for _, e := range st.jobs {
			if e.job.ArticleID == articleID {
				entries = append(entries, e)
			}
		}
		return nil
	})

	slices.SortFunc(entries, func(a, b jobEntry) int {
		if c := b.job.CreatedAt.Compare(a.job.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.job.ID, a.job.ID)
	})

	jobs := make([]*domain.EmbeddingJob, 0, limit+1)
	for _, e := range entries {
		if cursor != nil && !before(e.job, cursor) {
			continue
		}
		job := e.job
		jobs = append(jobs, &job)
		if len(jobs) == limit+1 {
			break
		}
	}
	return jobs, nil
}

// before reports whether job sorts after the cursor in (created_at, id) DESC order.
func before(job domain.EmbeddingJob, c *pagination.Cursor) bool {
	if !job.CreatedAt.Equal(c.CreatedAt) {
		return job.CreatedAt.Before(c.CreatedAt)
	}
	return job.ID < c.ID
}

func (r *JobRepository) ClaimPending(ctx context.Context, limit int) ([]*domain.EmbeddingJob, error) {
	if limit <= 0 {
		limit = 10
	}

	var claimed []*domain.EmbeddingJob
	err := r.v.write(func(st *state) error {
		var pending []jobEntry
		for _, e := range st.jobs {
			if e.job.Status == domain.EmbeddingJobStatusPending {
				pending = append(pending, e)
			}
		}
		slices.SortFunc(pending, func(a, b jobEntry) int {
			if c := a.job.CreatedAt.Compare(b.job.CreatedAt); c != 0 {
				return c
			}
			return int(a.seq - b.seq)
		})
		if len(pending) > limit {
			pending = pending[:limit]
		}

		now := r.v.now()
		for _, e := range pending {
			e.job.Status = domain.EmbeddingJobStatusProcessing
			e.job.Attempts++
			e.job.UpdatedAt = now
			e.job.ProcessedAt = nil
			st.jobs[e.job.ID] = e
			job := e.job
			claimed = append(claimed, &job)
		}
		return nil
	})
	return claimed, err
}

func (r *JobRepository) Claim(ctx context.Context, id string) (*domain.EmbeddingJob, error) {
	var out *domain.EmbeddingJob
	err := r.v.write(func(st *state) error {
		e, ok := st.jobs[id]
		if !ok {
			return domain.ErrEmbeddingJobNotFound
		}
		if e.job.Status != domain.EmbeddingJobStatusPending {
			return domain.ErrEmbeddingJobNotPending
		}
		e.job.Status = domain.EmbeddingJobStatusProcessing
		e.job.Attempts++
		e.job.UpdatedAt = r.v.now()
		e.job.ProcessedAt = nil
		st.jobs[id] = e
		job := e.job
		out = &job
		return nil
	})
	return out, err
}

func (r *JobRepository) Complete(ctx context.Context, id, note string) error {
	return r.transition(id, domain.EmbeddingJobStatusCompleted, note, true)
}

func (r *JobRepository) Fail(ctx context.Context, id, errMsg string) error {
	return r.transition(id, domain.EmbeddingJobStatusFailed, errMsg, true)
}

func (r *JobRepository) Requeue(ctx context.Context, id, errMsg string) error {
	return r.transition(id, domain.EmbeddingJobStatusPending, errMsg, false)
}

func (r *JobRepository) transition(id string, status domain.EmbeddingJobStatus, msg string, terminal bool) error {
	return r.v.write(func(st *state) error {
		e, ok := st.jobs[id]
		if !ok {
			return domain.ErrEmbeddingJobNotFound
		}
		if e.job.Status != domain.EmbeddingJobStatusProcessing {
			return domain.NewDomainError(domain.ErrCodeConflict, "embedding job is not processing")
		}
		now := r.v.now()
		e.job.Status = status
		e.job.Error = msg
		e.job.UpdatedAt = now
		if terminal {
			e.job.ProcessedAt = &now
		}
		st.jobs[id] = e
		return nil
	})
}

func (r *JobRepository) RequeueStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	var n int64
	err := r.v.write(func(st *state) error {
		now := r.v.now()
		cutoff := now.Add(-olderThan)
		for id, e := range st.jobs {
			if e.job.Status != domain.EmbeddingJobStatusProcessing || !e.job.UpdatedAt.Before(cutoff) {
				continue
			}
			e.job.Status = domain.EmbeddingJobStatusPending
			e.job.Error = "requeued after processing timeout"
			e.job.UpdatedAt = now
			st.jobs[id] = e
			n++
		}
		return nil
	})
	return n, err
}

func (r *JobRepository) HasNewerJob(ctx context.Context, job *domain.EmbeddingJob) (bool, error) {
	var found bool
	err := r.v.read(func(st *state) error {
		self, ok := st.jobs[job.ID]
		if !ok {
			return domain.ErrEmbeddingJobNotFound
		}
		for id, e := range st.jobs {
			if id == job.ID || e.job.ArticleID != job.ArticleID || e.job.Status == domain.EmbeddingJobStatusFailed {
				continue
			}
			if e.seq > self.seq {
				found = true
				return nil
			}
		}
		return nil
	})
	return found, err
}
