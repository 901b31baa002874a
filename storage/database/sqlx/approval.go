package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/abiaedu/portal/core/approval"
	"github.com/abiaedu/portal/core/submission"
)

type approvalRepository struct {
	db *sqlx.DB
}

var _ approval.Repository = (*approvalRepository)(nil) // interface compliance check

func NewApprovalRepository(db *sqlx.DB) *approvalRepository {
	return &approvalRepository{db: db}
}

func (repo approvalRepository) ListPendingSubmissions(ctx context.Context) ([]submission.Submission, error) {
	var rows []submissionRow
	qb := selectSubmissions().Where("s.approved IS NULL").OrderBy("s.submitted_at DESC", "s.id DESC")
	if err := selectAll(ctx, repo.db, &rows, qb); err != nil {
		return nil, errors.Wrap(err, "listing pending submissions")
	}
	return submissions(rows), nil
}

func (repo approvalRepository) DecideSubmission(
	ctx context.Context,
	id int,
	approve bool,
	actor string,
) (sub submission.Submission, fact *approval.Fact, err error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return sub, nil, errors.Wrap(err, "beginning transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// compare-and-set on the tri-state flag: only a pending row can be decided
	var decided int
	err = tx.QueryRowxContext(ctx, `
		UPDATE submissions SET approved = $2, reviewed_at = now()
		WHERE id = $1 AND approved IS NULL
		RETURNING id`, id, approve).Scan(&decided)
	if err == sql.ErrNoRows {
		var exists bool
		if err = tx.GetContext(ctx, &exists, "SELECT EXISTS (SELECT 1 FROM submissions WHERE id = $1)", id); err != nil {
			return sub, nil, errors.Wrap(err, "checking submission")
		}
		if exists {
			err = approval.ErrAlreadyReviewed
		} else {
			err = submission.ErrNotFound
		}
		return sub, nil, err
	}
	if err != nil {
		return sub, nil, errors.Wrap(err, "updating submission")
	}

	if sub, err = getSubmission(ctx, tx, id); err != nil {
		return sub, nil, err
	}

	action := approval.ActionReject
	if approve {
		action = approval.ActionApprove

		var f approval.Fact
		err = tx.GetContext(ctx, &f, `
			INSERT INTO facts (district_id, enrollment_total, teachers_total, approved, submission_id, updated_at)
			VALUES ($1, $2, $3, TRUE, $4, now())
			ON CONFLICT (district_id) DO UPDATE
			SET enrollment_total = EXCLUDED.enrollment_total,
			    teachers_total   = EXCLUDED.teachers_total,
			    approved         = EXCLUDED.approved,
			    submission_id    = EXCLUDED.submission_id,
			    updated_at       = EXCLUDED.updated_at
			RETURNING district_id, enrollment_total, teachers_total, approved, submission_id, updated_at`,
			sub.DistrictID, sub.EnrollmentTotal, sub.TeachersTotal, sub.ID)
		if err != nil {
			return sub, nil, errors.Wrap(err, "upserting fact")
		}
		f.District = sub.District
		f.UpdatedAt = f.UpdatedAt.UTC()
		fact = &f
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO activity_log (admin, action, submission_id) VALUES ($1, $2, $3)",
		actor, action, id)
	if err != nil {
		return sub, nil, errors.Wrap(err, "logging activity")
	}

	if err = tx.Commit(); err != nil {
		return sub, nil, errors.Wrap(err, "committing decision")
	}
	return sub, fact, nil
}

func (repo approvalRepository) ListFacts(ctx context.Context) ([]approval.Fact, error) {
	var facts []approval.Fact
	qb := psql.Select(
		"f.district_id", "d.name AS district", "f.enrollment_total", "f.teachers_total",
		"f.approved", "f.submission_id", "f.updated_at",
	).
		From("facts f").
		Join("districts d ON d.id = f.district_id").
		OrderBy("d.name")
	if err := selectAll(ctx, repo.db, &facts, qb); err != nil {
		return nil, errors.Wrap(err, "listing facts")
	}
	if facts == nil {
		facts = []approval.Fact{}
	}
	return facts, nil
}

func (repo approvalRepository) ListActivity(ctx context.Context, limit int) ([]approval.Activity, error) {
	var activity []approval.Activity
	qb := psql.Select("id", "admin", "action", "submission_id", "created_at").
		From("activity_log").
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(limit))
	if err := selectAll(ctx, repo.db, &activity, qb); err != nil {
		return nil, errors.Wrap(err, "listing activity")
	}
	if activity == nil {
		activity = []approval.Activity{}
	}
	return activity, nil
}
