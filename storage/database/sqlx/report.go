package sqlxrepos

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/abiaedu/portal/core/report"
	"github.com/abiaedu/portal/core/submission"
)

type reportRepository struct {
	db *sqlx.DB
}

var _ report.Repository = (*reportRepository)(nil) // interface compliance check

func NewReportRepository(db *sqlx.DB) *reportRepository {
	return &reportRepository{db: db}
}

func (repo reportRepository) DistrictTotals(ctx context.Context) ([]report.DistrictSummary, error) {
	rows := make([]struct {
		District        string `db:"district"`
		EnrollmentTotal int    `db:"enrollment_total"`
		TeachersTotal   int    `db:"teachers_total"`
	}, 0, 17)
	err := repo.db.SelectContext(ctx, &rows, `
		SELECT d.name                                AS district,
		       COALESCE(SUM(f.enrollment_total), 0) AS enrollment_total,
		       COALESCE(SUM(f.teachers_total), 0)   AS teachers_total
		FROM facts f
		JOIN districts d ON d.id = f.district_id
		WHERE f.approved
		GROUP BY d.name
		ORDER BY enrollment_total DESC, d.name`)
	if err != nil {
		return nil, errors.Wrap(err, "summing facts")
	}

	totals := make([]report.DistrictSummary, 0, len(rows))
	for _, row := range rows {
		totals = append(totals, report.DistrictSummary{
			District:        row.District,
			EnrollmentTotal: row.EnrollmentTotal,
			TeachersTotal:   row.TeachersTotal,
		})
	}
	return totals, nil
}

func (repo reportRepository) QuerySubmissions(ctx context.Context, q report.Query) ([]submission.Submission, error) {
	qb := selectSubmissions()

	switch q.Status {
	case submission.StatusPending:
		qb = qb.Where("s.approved IS NULL")
	case submission.StatusApproved:
		qb = qb.Where("s.approved IS TRUE")
	case submission.StatusRejected:
		qb = qb.Where("s.approved IS FALSE")
	}
	if len(q.DistrictKeys) > 0 {
		qb = qb.Where(sq.Eq{"lower(regexp_replace(btrim(d.name), '\\s+', ' ', 'g'))": q.DistrictKeys})
	}
	if !q.From.IsZero() {
		qb = qb.Where(sq.GtOrEq{"s.submitted_at": q.From})
	}
	if !q.Until.IsZero() {
		qb = qb.Where(sq.Lt{"s.submitted_at": q.Until})
	}
	if q.Search != "" {
		pattern := likePattern(q.Search)
		qb = qb.Where(sq.Or{
			sq.ILike{"s.school_name": pattern},
			sq.ILike{"s.submitted_by": pattern},
			sq.ILike{"s.email": pattern},
		})
	}
	qb = qb.OrderBy("s.submitted_at DESC", "s.id DESC")

	var rows []submissionRow
	if err := selectAll(ctx, repo.db, &rows, qb); err != nil {
		return nil, errors.Wrap(err, "querying submissions")
	}
	return submissions(rows), nil
}
