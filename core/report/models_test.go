package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/abiaedu/portal/core"
	"github.com/abiaedu/portal/core/submission"
)

func TestRatio(t *testing.T) {
	tests := []struct {
		name                 string
		enrollment, teachers int
		want                 float64
	}{
		{name: "exact", enrollment: 400, teachers: 20, want: 20},
		{name: "rounded down", enrollment: 100, teachers: 3, want: 33.3},
		{name: "rounded up", enrollment: 200, teachers: 3, want: 66.7},
		{name: "no teachers", enrollment: 350, teachers: 0, want: RatioUnavailable},
		{name: "nothing", want: RatioUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Ratio(tt.enrollment, tt.teachers))
		})
	}
}

func TestDate_UnmarshalParam(t *testing.T) {
	tests := []struct {
		param   string
		want    time.Time
		wantErr bool
	}{
		{param: "", want: time.Time{}},
		{param: "2024-03-01", want: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		{param: "2024-03-01T10:30:00Z", want: time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)},
		{param: "01/03/2024", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.param, func(t *testing.T) {
			var d Date
			err := d.UnmarshalParam(tt.param)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(d.Time), "got %v", d.Time)
		})
	}
}

func TestExportFilter_Clean(t *testing.T) {
	day := func(s string) Date {
		var d Date
		require.NoError(t, d.UnmarshalParam(s))
		return d
	}

	q, err := ExportFilter{
		Districts: []string{" aba  north ", ""},
		Status:    "approved",
		From:      day("2024-03-01"),
		To:        day("2024-03-31"),
		Search:    "  Community  School ",
	}.Clean()
	require.NoError(t, err)
	assert.Equal(t, []string{"aba north"}, q.DistrictKeys)
	assert.Equal(t, submission.StatusApproved, q.Status)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), q.From)
	assert.Equal(t, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), q.Until, "the to day is inclusive")
	assert.Equal(t, "community school", q.Search)

	_, err = ExportFilter{Status: "archived"}.Clean()
	var vErr *core.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "status", vErr.Fields[0].Field)

	_, err = ExportFilter{From: day("2024-04-02"), To: day("2024-04-01")}.Clean()
	assert.Error(t, err)
}

func TestQuery_Matches(t *testing.T) {
	march := func(d int) time.Time { return time.Date(2024, 3, d, 12, 0, 0, 0, time.UTC) }
	sub := submission.Submission{
		SchoolName:  "Community Primary School",
		District:    "Aba North",
		SubmittedBy: "Ngozi Okafor",
		Email:       "ngozi@school.test",
		SubmittedAt: march(15),
		Approved:    null.BoolFrom(true),
	}

	tests := []struct {
		name string
		q    Query
		want bool
	}{
		{name: "empty", q: Query{}, want: true},
		{name: "all", q: Query{Status: submission.StatusAll}, want: true},
		{name: "status match", q: Query{Status: submission.StatusApproved}, want: true},
		{name: "status mismatch", q: Query{Status: submission.StatusPending}, want: false},
		{name: "district match", q: Query{DistrictKeys: []string{"bende", "aba north"}}, want: true},
		{name: "district mismatch", q: Query{DistrictKeys: []string{"bende"}}, want: false},
		{name: "in range", q: Query{From: march(15), Until: march(16)}, want: true},
		{name: "before range", q: Query{From: march(16)}, want: false},
		{name: "until is exclusive", q: Query{Until: march(15)}, want: false},
		{name: "search school", q: Query{Search: "primary"}, want: true},
		{name: "search submitter", q: Query{Search: "okafor"}, want: true},
		{name: "search email", q: Query{Search: "school.test"}, want: true},
		{name: "search miss", q: Query{Search: "secondary"}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.q.Matches(sub))
		})
	}
}
