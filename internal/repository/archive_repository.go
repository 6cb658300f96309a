package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"stylizer/api/internal/models"
)

// ArchiveRepository records terminal task outcomes in postgres. The redis
// record is deliberately short-lived; the archive keeps a durable trail for
// operational history. Writes are best effort and never fail a task.
type ArchiveRepository struct {
	pool *pgxpool.Pool
}

func NewArchiveRepository(pool *pgxpool.Pool) *ArchiveRepository {
	return &ArchiveRepository{pool: pool}
}

func (r *ArchiveRepository) Record(ctx context.Context, task models.Task) error {
	const query = `
		INSERT INTO task_archive (
			task_id, status, attempt_count, approved, overall_score, error_message, created_at, finished_at
		) VALUES (
			$1, $2, $3, $4, $5, NULLIF($6, ''), $7, NOW()
		)
		ON CONFLICT (task_id) DO NOTHING
	`

	var approved bool
	var overall float64
	if n := len(task.ReviewHistory); n > 0 {
		approved = task.ReviewHistory[n-1].Approved
		overall = task.ReviewHistory[n-1].OverallScore
	}

	_, err := r.pool.Exec(ctx, query,
		task.ID,
		string(task.Status),
		task.AttemptCount,
		approved,
		overall,
		task.ErrorMessage,
		task.CreatedAt,
	)
	return err
}

// Prune deletes archive rows older than the retention window and returns the
// number removed.
func (r *ArchiveRepository) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	const query = `DELETE FROM task_archive WHERE finished_at < NOW() - make_interval(secs => $1)`

	cmd, err := r.pool.Exec(ctx, query, retention.Seconds())
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}
