package repository

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/cloo-solutions/supportkb/internal/domain"
	"github.com/cloo-solutions/supportkb/internal/pagination"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const jobColumns = `id, article_id, organization_id, status, attempts, error, created_at, updated_at, processed_at`

type EmbeddingJobRepository struct {
	db dbtx
}

func NewEmbeddingJobRepository(pool *pgxpool.Pool) *EmbeddingJobRepository {
	return &EmbeddingJobRepository{db: pool}
}

func NewEmbeddingJobRepositoryWithTx(tx pgx.Tx) *EmbeddingJobRepository {
	return &EmbeddingJobRepository{db: tx}
}

func (r *EmbeddingJobRepository) Create(ctx context.Context, job *domain.EmbeddingJob) error {
	if err := domain.ValidateEmbeddingJob(job); err != nil {
		return domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid embedding job", err)
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO embedding_jobs (id, article_id, organization_id, status, attempts, error, created_at, updated_at, processed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		job.ID, job.ArticleID, job.OrgID, job.Status, job.Attempts, nullableString(job.Error), job.CreatedAt, job.UpdatedAt, job.ProcessedAt,
	)
	if err != nil {
		return domain.NewStoreError("create embedding job", err)
	}
	return nil
}

func (r *EmbeddingJobRepository) GetByID(ctx context.Context, id string) (*domain.EmbeddingJob, error) {
	job, err := scanJob(r.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM embedding_jobs WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrEmbeddingJobNotFound
		}
		return nil, domain.NewStoreError("get embedding job", err)
	}
	return job, nil
}

func (r *EmbeddingJobRepository) ListByArticle(ctx context.Context, articleID string, cursor *pagination.Cursor, limit int) ([]*domain.EmbeddingJob, error) {
	var rows pgx.Rows
	var err error
	if cursor == nil {
		rows, err = r.db.Query(ctx,
			`SELECT `+jobColumns+` FROM embedding_jobs
			 WHERE article_id = $1
			 ORDER BY created_at DESC, id DESC
			 LIMIT $2`,
			articleID, limit+1,
		)
	} else {
		rows, err = r.db.Query(ctx,
			`SELECT `+jobColumns+` FROM embedding_jobs
			 WHERE article_id = $1 AND (created_at, id) < ($2, $3)
			 ORDER BY created_at DESC, id DESC
			 LIMIT $4`,
			articleID, cursor.CreatedAt, cursor.ID, limit+1,
		)
	}
	if err != nil {
		return nil, domain.NewStoreError("list embedding jobs", err)
	}
	return collectJobs(rows)
}

// ClaimPending atomically moves up to limit pending jobs to processing,
// oldest first, counting the attempt. Rows locked by a concurrent claimer are
// skipped rather than waited on.
func (r *EmbeddingJobRepository) ClaimPending(ctx context.Context, limit int) ([]*domain.EmbeddingJob, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := r.db.Query(ctx,
		`WITH cte AS (
			 SELECT id
			 FROM embedding_jobs
			 WHERE status = $1
			 ORDER BY created_at ASC
			 FOR UPDATE SKIP LOCKED
			 LIMIT $2
		 )
		 UPDATE embedding_jobs j
		 SET status = $3,
		     attempts = j.attempts + 1,
		     updated_at = $4,
		     processed_at = NULL
		 FROM cte
		 WHERE j.id = cte.id
		 RETURNING j.id, j.article_id, j.organization_id, j.status, j.attempts, j.error, j.created_at, j.updated_at, j.processed_at`,
		domain.EmbeddingJobStatusPending, limit, domain.EmbeddingJobStatusProcessing, time.Now().UTC(),
	)
	if err != nil {
		return nil, domain.NewStoreError("claim embedding jobs", err)
	}
	jobs, err := collectJobs(rows)
	if err != nil {
		return nil, err
	}
	sortJobsByCreatedAt(jobs)
	return jobs, nil
}

// Claim moves a single job from pending to processing. It fails with
// domain.ErrEmbeddingJobNotPending when another worker got there first.
func (r *EmbeddingJobRepository) Claim(ctx context.Context, id string) (*domain.EmbeddingJob, error) {
	job, err := scanJob(r.db.QueryRow(ctx,
		`UPDATE embedding_jobs
		 SET status = $1, attempts = attempts + 1, updated_at = $2, processed_at = NULL
		 WHERE id = $3 AND status = $4
		 RETURNING `+jobColumns,
		domain.EmbeddingJobStatusProcessing, time.Now().UTC(), id, domain.EmbeddingJobStatusPending,
	))
	if err == nil {
		return job, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NewStoreError("claim embedding job", err)
	}
	if _, getErr := r.GetByID(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, domain.ErrEmbeddingJobNotPending
}

// Complete marks a processing job completed. note is kept in the error column
// for skipped jobs.
func (r *EmbeddingJobRepository) Complete(ctx context.Context, id, note string) error {
	return r.finish(ctx, id, domain.EmbeddingJobStatusCompleted, note)
}

func (r *EmbeddingJobRepository) Fail(ctx context.Context, id, errMsg string) error {
	return r.finish(ctx, id, domain.EmbeddingJobStatusFailed, errMsg)
}

func (r *EmbeddingJobRepository) finish(ctx context.Context, id string, status domain.EmbeddingJobStatus, msg string) error {
	now := time.Now().UTC()
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE embedding_jobs SET status = $1, error = $2, updated_at = $3, processed_at = $3
		 WHERE id = $4 AND status = $5`,
		status, nullableString(msg), now, id, domain.EmbeddingJobStatusProcessing,
	)
	if err != nil {
		return domain.NewStoreError("update embedding job", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return r.notProcessing(ctx, id)
	}
	return nil
}

// Requeue returns a processing job to pending for another attempt.
func (r *EmbeddingJobRepository) Requeue(ctx context.Context, id, errMsg string) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE embedding_jobs SET status = $1, error = $2, updated_at = $3
		 WHERE id = $4 AND status = $5`,
		domain.EmbeddingJobStatusPending, nullableString(errMsg), time.Now().UTC(), id, domain.EmbeddingJobStatusProcessing,
	)
	if err != nil {
		return domain.NewStoreError("requeue embedding job", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return r.notProcessing(ctx, id)
	}
	return nil
}

// RequeueStale returns jobs stuck in processing for longer than olderThan
// (crashed workers) to pending.
func (r *EmbeddingJobRepository) RequeueStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	now := time.Now().UTC()
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE embedding_jobs SET status = $1, error = $2, updated_at = $3
		 WHERE status = $4 AND updated_at < $5`,
		domain.EmbeddingJobStatusPending, "requeued after processing timeout", now,
		domain.EmbeddingJobStatusProcessing, now.Add(-olderThan),
	)
	if err != nil {
		return 0, domain.NewStoreError("requeue stale embedding jobs", err)
	}
	return cmdTag.RowsAffected(), nil
}

// HasNewerJob reports whether a later job for the same article is queued,
// running or done, making job redundant.
func (r *EmbeddingJobRepository) HasNewerJob(ctx context.Context, job *domain.EmbeddingJob) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (
			 SELECT 1 FROM embedding_jobs
			 WHERE article_id = $1 AND id <> $2 AND created_at > $3 AND status <> $4
		 )`,
		job.ArticleID, job.ID, job.CreatedAt, domain.EmbeddingJobStatusFailed,
	).Scan(&exists)
	if err != nil {
		return false, domain.NewStoreError("check newer embedding jobs", err)
	}
	return exists, nil
}

func (r *EmbeddingJobRepository) notProcessing(ctx context.Context, id string) error {
	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	return domain.NewDomainError(domain.ErrCodeConflict, "embedding job is not processing")
}

func scanJob(row scanner) (*domain.EmbeddingJob, error) {
	var job domain.EmbeddingJob
	var errMsg pgtype.Text
	if err := row.Scan(&job.ID, &job.ArticleID, &job.OrgID, &job.Status, &job.Attempts, &errMsg, &job.CreatedAt, &job.UpdatedAt, &job.ProcessedAt); err != nil {
		return nil, err
	}
	if errMsg.Valid {
		job.Error = errMsg.String
	}
	return &job, nil
}

func collectJobs(rows pgx.Rows) ([]*domain.EmbeddingJob, error) {
	defer rows.Close()

	var jobs []*domain.EmbeddingJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, domain.NewStoreError("scan embedding job", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStoreError("scan embedding job", err)
	}
	return jobs, nil
}

// UPDATE ... RETURNING does not preserve the CTE order.
func sortJobsByCreatedAt(jobs []*domain.EmbeddingJob) {
	slices.SortStableFunc(jobs, func(a, b *domain.EmbeddingJob) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
