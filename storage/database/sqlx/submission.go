package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/abiaedu/portal/core/submission"
)

var submissionColumns = []string{
	"s.id", "s.school_name", "s.district_id", "d.name AS district", "s.enrollment_total", "s.teachers_total",
	"s.submitted_by", "s.email", "s.facilities", "s.photo_path", "s.submitted_at", "s.approved", "s.reviewed_at",
}

type submissionRow struct {
	ID              int            `db:"id"`
	SchoolName      string         `db:"school_name"`
	DistrictID      int            `db:"district_id"`
	District        string         `db:"district"`
	EnrollmentTotal int            `db:"enrollment_total"`
	TeachersTotal   int            `db:"teachers_total"`
	SubmittedBy     string         `db:"submitted_by"`
	Email           string         `db:"email"`
	Facilities      pq.StringArray `db:"facilities"`
	PhotoPath       string         `db:"photo_path"`
	SubmittedAt     time.Time      `db:"submitted_at"`
	Approved        null.Bool      `db:"approved"`
	ReviewedAt      null.Time      `db:"reviewed_at"`
}

func (row submissionRow) submission() submission.Submission {
	facilities := []string(row.Facilities)
	if facilities == nil {
		facilities = []string{}
	}
	return submission.Submission{
		ID:              row.ID,
		SchoolName:      row.SchoolName,
		DistrictID:      row.DistrictID,
		District:        row.District,
		EnrollmentTotal: row.EnrollmentTotal,
		TeachersTotal:   row.TeachersTotal,
		SubmittedBy:     row.SubmittedBy,
		Email:           row.Email,
		Facilities:      facilities,
		PhotoPath:       row.PhotoPath,
		SubmittedAt:     row.SubmittedAt.UTC(),
		Approved:        row.Approved,
		ReviewedAt:      row.ReviewedAt,
	}
}

func submissions(rows []submissionRow) []submission.Submission {
	subs := make([]submission.Submission, 0, len(rows))
	for _, row := range rows {
		subs = append(subs, row.submission())
	}
	return subs
}

func selectSubmissions() sq.SelectBuilder {
	return psql.Select(submissionColumns...).
		From("submissions s").
		Join("districts d ON d.id = s.district_id")
}

func getSubmission(ctx context.Context, db sqlx.QueryerContext, id int) (submission.Submission, error) {
	q, args, err := selectSubmissions().Where(sq.Eq{"s.id": id}).ToSql()
	if err != nil {
		return submission.Submission{}, errors.Wrap(err, "building query")
	}
	var row submissionRow
	if err = sqlx.GetContext(ctx, db, &row, q, args...); err != nil {
		return submission.Submission{}, trapNoRowsErr(err, submission.ErrNotFound, "finding submission")
	}
	return row.submission(), nil
}

type submissionRepository struct {
	db *sqlx.DB
}

var _ submission.Repository = (*submissionRepository)(nil) // interface compliance check

func NewSubmissionRepository(db *sqlx.DB) *submissionRepository {
	return &submissionRepository{db: db}
}

func (repo submissionRepository) CreateSubmission(ctx context.Context, sub submission.Submission) (submission.Submission, error) {
	facilities := sub.Facilities
	if facilities == nil {
		facilities = []string{}
	}
	var id int
	err := repo.db.QueryRowxContext(ctx, `
		INSERT INTO submissions (school_name, district_id, enrollment_total, teachers_total, submitted_by, email,
		                         facilities, photo_path, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		sub.SchoolName, sub.DistrictID, sub.EnrollmentTotal, sub.TeachersTotal, sub.SubmittedBy, sub.Email,
		pq.StringArray(facilities), sub.PhotoPath, sub.SubmittedAt.UTC(),
	).Scan(&id)
	if err != nil {
		return submission.Submission{}, errors.Wrap(err, "inserting submission")
	}
	return getSubmission(ctx, repo.db, id)
}

func (repo submissionRepository) GetSubmission(ctx context.Context, id int) (submission.Submission, error) {
	return getSubmission(ctx, repo.db, id)
}
