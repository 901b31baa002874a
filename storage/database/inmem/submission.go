package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/abiaedu/portal/core/approval"
	"github.com/abiaedu/portal/core/report"
	"github.com/abiaedu/portal/core/submission"
)

type submissionRepository struct {
	db *DB
}

func NewSubmissionRepository(db *DB) submission.Repository {
	return &submissionRepository{db: db}
}

func (repo *submissionRepository) CreateSubmission(_ context.Context, sub submission.Submission) (submission.Submission, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	sub.ID = repo.db.nextPK()
	sub.District = repo.db.districtName(sub.DistrictID)
	if sub.Facilities == nil {
		sub.Facilities = []string{}
	}
	sub.Approved = null.Bool{}
	sub.ReviewedAt = null.Time{}
	stored := copySubmission(sub)
	repo.db.submissions[sub.ID] = &stored
	return sub, nil
}

func (repo *submissionRepository) GetSubmission(_ context.Context, id int) (submission.Submission, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if sub, ok := repo.db.submissions[id]; ok {
		return copySubmission(*sub), nil
	}
	return submission.Submission{}, submission.ErrNotFound
}

// sortNewestFirst orders by submission time, then id, descending.
func sortNewestFirst(subs []submission.Submission) {
	sort.Slice(subs, func(i, j int) bool {
		if !subs[i].SubmittedAt.Equal(subs[j].SubmittedAt) {
			return subs[i].SubmittedAt.After(subs[j].SubmittedAt)
		}
		return subs[i].ID > subs[j].ID
	})
}

func (db *DB) filterSubmissions(keep func(submission.Submission) bool) []submission.Submission {
	subs := make([]submission.Submission, 0, len(db.submissions))
	for _, sub := range db.submissions {
		if keep(*sub) {
			subs = append(subs, copySubmission(*sub))
		}
	}
	sortNewestFirst(subs)
	return subs
}

type approvalRepository struct {
	db *DB
}

func NewApprovalRepository(db *DB) approval.Repository {
	return &approvalRepository{db: db}
}

func (repo *approvalRepository) ListPendingSubmissions(context.Context) ([]submission.Submission, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return repo.db.filterSubmissions(submission.Submission.IsPending), nil
}

func (repo *approvalRepository) DecideSubmission(
	_ context.Context,
	id int,
	approve bool,
	actor string,
) (submission.Submission, *approval.Fact, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	stored, ok := repo.db.submissions[id]
	if !ok {
		return submission.Submission{}, nil, submission.ErrNotFound
	}
	if !stored.IsPending() {
		return submission.Submission{}, nil, approval.ErrAlreadyReviewed
	}

	now := time.Now().UTC()
	stored.Approved = null.BoolFrom(approve)
	stored.ReviewedAt = null.TimeFrom(now)

	var fact *approval.Fact
	action := approval.ActionReject
	if approve {
		action = approval.ActionApprove
		f := approval.Fact{
			DistrictID:      stored.DistrictID,
			District:        stored.District,
			EnrollmentTotal: stored.EnrollmentTotal,
			TeachersTotal:   stored.TeachersTotal,
			Approved:        true,
			SubmissionID:    stored.ID,
			UpdatedAt:       now,
		}
		repo.db.facts[f.DistrictID] = &f
		cp := f
		fact = &cp
	}
	repo.db.activity = append(repo.db.activity, approval.Activity{
		ID:           len(repo.db.activity) + 1,
		Admin:        actor,
		Action:       action,
		SubmissionID: id,
		CreatedAt:    now,
	})
	return copySubmission(*stored), fact, nil
}

func (repo *approvalRepository) ListFacts(context.Context) ([]approval.Fact, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	facts := make([]approval.Fact, 0, len(repo.db.facts))
	for _, f := range repo.db.facts {
		facts = append(facts, *f)
	}
	sort.Slice(facts, func(i, j int) bool { return facts[i].District < facts[j].District })
	return facts, nil
}

func (repo *approvalRepository) ListActivity(_ context.Context, limit int) ([]approval.Activity, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	activity := make([]approval.Activity, 0, limit)
	for i := len(repo.db.activity) - 1; i >= 0 && len(activity) < limit; i-- {
		activity = append(activity, repo.db.activity[i])
	}
	return activity, nil
}

type reportRepository struct {
	db *DB
}

func NewReportRepository(db *DB) report.Repository {
	return &reportRepository{db: db}
}

func (repo *reportRepository) DistrictTotals(context.Context) ([]report.DistrictSummary, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	byName := make(map[string]*report.DistrictSummary)
	for _, f := range repo.db.facts {
		if !f.Approved {
			continue
		}
		sum, ok := byName[f.District]
		if !ok {
			sum = &report.DistrictSummary{District: f.District}
			byName[f.District] = sum
		}
		sum.EnrollmentTotal += f.EnrollmentTotal
		sum.TeachersTotal += f.TeachersTotal
	}

	totals := make([]report.DistrictSummary, 0, len(byName))
	for _, sum := range byName {
		totals = append(totals, *sum)
	}
	sort.Slice(totals, func(i, j int) bool {
		if totals[i].EnrollmentTotal != totals[j].EnrollmentTotal {
			return totals[i].EnrollmentTotal > totals[j].EnrollmentTotal
		}
		return totals[i].District < totals[j].District
	})
	return totals, nil
}

func (repo *reportRepository) QuerySubmissions(_ context.Context, q report.Query) ([]submission.Submission, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return repo.db.filterSubmissions(q.Matches), nil
}
