package sqlxrepos_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abiaedu/portal/core"
	"github.com/abiaedu/portal/core/approval"
	"github.com/abiaedu/portal/core/report"
	"github.com/abiaedu/portal/core/submission"
	"github.com/abiaedu/portal/core/user"
	sqlxrepos "github.com/abiaedu/portal/storage/database/sqlx"
	testutil "github.com/abiaedu/portal/tests"
)

const abaNorth, bende = 1, 4

var tdb *testutil.TestDB

func TestMain(m *testing.M) {
	os.Exit(testutil.RunWithDB(m, &tdb))
}

func setup(t *testing.T) context.Context {
	testutil.RequireDB(t, tdb)
	tdb.Reset(t)
	return context.Background()
}

func TestSubmissionRepository(t *testing.T) {
	ctx := setup(t)
	repo := sqlxrepos.NewSubmissionRepository(tdb.DB)

	created := testutil.CreateSubmission(t, repo, "Ngwa High", abaNorth, 400, 20)
	assert.NotZero(t, created.ID)
	assert.Equal(t, "Aba North", created.District)
	assert.Equal(t, []string{"Library"}, created.Facilities)
	assert.Equal(t, submission.StatusPending, created.Status())

	got, err := repo.GetSubmission(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)

	_, err = repo.GetSubmission(ctx, created.ID+100)
	assert.Equal(t, submission.ErrNotFound, err)
}

func TestApprovalRepository_DecideSubmission(t *testing.T) {
	ctx := setup(t)
	subRepo := sqlxrepos.NewSubmissionRepository(tdb.DB)
	repo := sqlxrepos.NewApprovalRepository(tdb.DB)

	first := testutil.CreateSubmission(t, subRepo, "Ngwa High", abaNorth, 400, 20, time.Now().Add(-time.Hour))
	second := testutil.CreateSubmission(t, subRepo, "Aba Girls", abaNorth, 600, 25)
	rejected := testutil.CreateSubmission(t, subRepo, "Bende Grammar", bende, 300, 15)

	pending, err := repo.ListPendingSubmissions(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 3)

	sub, fact, err := repo.DecideSubmission(ctx, first.ID, true, "admin")
	require.NoError(t, err)
	assert.Equal(t, submission.StatusApproved, sub.Status())
	require.NotNil(t, fact)
	assert.Equal(t, 400, fact.EnrollmentTotal)

	// a later approval in the same district overwrites the fact
	_, fact, err = repo.DecideSubmission(ctx, second.ID, true, "admin")
	require.NoError(t, err)
	require.NotNil(t, fact)
	assert.Equal(t, second.ID, fact.SubmissionID)

	sub, fact, err = repo.DecideSubmission(ctx, rejected.ID, false, "admin")
	require.NoError(t, err)
	assert.Nil(t, fact)
	assert.Equal(t, submission.StatusRejected, sub.Status())

	tests := []struct {
		name    string
		id      int
		wantErr error
	}{
		{name: "already approved", id: first.ID, wantErr: approval.ErrAlreadyReviewed},
		{name: "already rejected", id: rejected.ID, wantErr: approval.ErrAlreadyReviewed},
		{name: "not found", id: rejected.ID + 100, wantErr: submission.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := repo.DecideSubmission(ctx, tt.id, true, "admin")
			assert.Equal(t, tt.wantErr, err)
		})
	}

	facts, err := repo.ListFacts(ctx)
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, approval.Fact{
		DistrictID:      abaNorth,
		District:        "Aba North",
		EnrollmentTotal: 600,
		TeachersTotal:   25,
		Approved:        true,
		SubmissionID:    second.ID,
		UpdatedAt:       facts[0].UpdatedAt,
	}, facts[0])

	activity, err := repo.ListActivity(ctx, 10)
	require.NoError(t, err)
	require.Len(t, activity, 3)
	assert.Equal(t, rejected.ID, activity[0].SubmissionID)
	assert.Equal(t, approval.ActionReject, activity[0].Action)

	pending, err = repo.ListPendingSubmissions(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	totals, err := sqlxrepos.NewReportRepository(tdb.DB).DistrictTotals(ctx)
	require.NoError(t, err)
	assert.Equal(t, []report.DistrictSummary{{District: "Aba North", EnrollmentTotal: 600, TeachersTotal: 25}}, totals)
}

func TestReportRepository_QuerySubmissions(t *testing.T) {
	ctx := setup(t)
	subRepo := sqlxrepos.NewSubmissionRepository(tdb.DB)
	repo := sqlxrepos.NewReportRepository(tdb.DB)

	day := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	x := testutil.CreateSubmission(t, subRepo, "X", abaNorth, 100, 5, day)
	y := testutil.CreateSubmission(t, subRepo, "Y", abaNorth, 200, 10, day.Add(24*time.Hour))
	z := testutil.CreateSubmission(t, subRepo, "Z 100%", bende, 300, 15, day.Add(48*time.Hour))
	_, _, err := sqlxrepos.NewApprovalRepository(tdb.DB).DecideSubmission(ctx, x.ID, true, "admin")
	require.NoError(t, err)

	tests := []struct {
		name   string
		filter report.ExportFilter
		want   []int
	}{
		{name: "all, newest first", want: []int{z.ID, y.ID, x.ID}},
		{name: "approved", filter: report.ExportFilter{Status: "Approved"}, want: []int{x.ID}},
		{name: "pending", filter: report.ExportFilter{Status: "pending"}, want: []int{z.ID, y.ID}},
		{name: "district", filter: report.ExportFilter{Districts: []string{" aba  NORTH "}}, want: []int{y.ID, x.ID}},
		{name: "inclusive day", filter: report.ExportFilter{
			From: report.Date{Time: day.Truncate(24 * time.Hour)},
			To:   report.Date{Time: day.Add(24 * time.Hour).Truncate(24 * time.Hour)},
		}, want: []int{y.ID, x.ID}},
		{name: "search escapes wildcards", filter: report.ExportFilter{Search: "100%"}, want: []int{z.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := tt.filter.Clean()
			require.NoError(t, err)
			subs, err := repo.QuerySubmissions(ctx, q)
			require.NoError(t, err)
			ids := make([]int, 0, len(subs))
			for _, s := range subs {
				ids = append(ids, s.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestUserRepository(t *testing.T) {
	ctx := setup(t)
	repo := sqlxrepos.NewUserRepository(tdb.DB)
	now := time.Now()

	ada := testutil.CreateUser(t, repo, "Ada Eze", "ada@school.test", "Tr0ub4dor&3x", user.RoleSchool, true, true, now.Add(-time.Hour))
	ike := testutil.CreateUser(t, repo, "Ike Uche", "ike@moe.test", "Tr0ub4dor&3x", user.RoleAnalyst, false, false, now)

	_, err := repo.CreateUser(ctx, user.User{ID: uuid.NewString(), Name: "Dup", Email: ada.Email, Role: user.RoleSchool, CreatedAt: now, UpdatedAt: now})
	assert.Equal(t, user.ErrEmailExists, err)

	got, err := repo.GetUser(ctx, user.GetFilter{Email: ada.Email})
	require.NoError(t, err)
	assert.Equal(t, ada.ID, got.ID)
	assert.NoError(t, got.CheckPassword("Tr0ub4dor&3x"))

	_, err = repo.GetUser(ctx, user.GetFilter{ID: "00000000-0000-0000-0000-000000000000"})
	assert.Equal(t, user.ErrNotFound, err)

	got.Blocked = true
	_, err = repo.UpdateUser(ctx, got)
	require.NoError(t, err)

	blocked := true
	tests := []struct {
		name   string
		filter user.QueryFilter
		want   []string
	}{
		{name: "all, newest first", want: []string{ike.ID, ada.ID}},
		{name: "search", filter: user.QueryFilter{Search: "MOE"}, want: []string{ike.ID}},
		{name: "role", filter: user.QueryFilter{Role: user.RoleSchool}, want: []string{ada.ID}},
		{name: "state", filter: user.QueryFilter{State: user.StateRegistered}, want: []string{ike.ID}},
		{name: "blocked", filter: user.QueryFilter{Blocked: &blocked}, want: []string{ada.ID}},
		{name: "ordering", filter: user.QueryFilter{Ordering: []core.DBOrdering{{Field: "name", Ascending: true}}}, want: []string{ada.ID, ike.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users, err := repo.QueryUsers(ctx, tt.filter)
			require.NoError(t, err)
			ids := make([]string, 0, len(users))
			for _, u := range users {
				ids = append(ids, u.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}
