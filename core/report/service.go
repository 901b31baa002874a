package report

import (
	"context"
	"fmt"
	"time"

	"github.com/kat-co/vala"
	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"

	"github.com/abiaedu/portal/core/submission"
)

const summaryKey = "district_summary"

type (
	Repository interface {
		// DistrictTotals sums approved facts per district, largest enrollment first.
		DistrictTotals(ctx context.Context) ([]DistrictSummary, error)
		// QuerySubmissions returns the submissions matching q, newest first.
		QuerySubmissions(ctx context.Context, q Query) ([]submission.Submission, error)
	}

	// Service serves the read-only dashboard and export paths. Results are cached for a short TTL,
	// so readers may see data up to that old.
	Service struct {
		repo  Repository
		cache *cache.Cache
	}
)

func NewService(repo Repository, ttl time.Duration) *Service {
	vala.BeginValidation().Validate(vala.IsNotNil(repo, "repo")).CheckAndPanic()
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Service{repo: repo, cache: cache.New(ttl, 2*ttl)}
}

func (svc *Service) DistrictSummary(ctx context.Context) ([]DistrictSummary, error) {
	if cached, ok := svc.cache.Get(summaryKey); ok {
		return cached.([]DistrictSummary), nil
	}

	rows, err := svc.repo.DistrictTotals(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "computing district totals")
	}
	for i := range rows {
		rows[i].Ratio = Ratio(rows[i].EnrollmentTotal, rows[i].TeachersTotal)
	}
	svc.cache.SetDefault(summaryKey, rows)
	return rows, nil
}

// Submissions returns the submissions selected by filter.
func (svc *Service) Submissions(ctx context.Context, filter ExportFilter) ([]submission.Submission, error) {
	q, err := filter.Clean()
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("export:%v", q)
	if cached, ok := svc.cache.Get(key); ok {
		return cached.([]submission.Submission), nil
	}

	subs, err := svc.repo.QuerySubmissions(ctx, q)
	if err != nil {
		return nil, errors.Wrap(err, "querying submissions")
	}
	svc.cache.SetDefault(key, subs)
	return subs, nil
}

// Export renders the submissions selected by filter as a spreadsheet.
func (svc *Service) Export(ctx context.Context, filter ExportFilter) (Spreadsheet, error) {
	subs, err := svc.Submissions(ctx, filter)
	if err != nil {
		return Spreadsheet{}, err
	}
	return RenderSpreadsheet(subs)
}

// Invalidate drops every cached result.
func (svc *Service) Invalidate() {
	svc.cache.Flush()
}
