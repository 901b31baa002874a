package district

import (
	"context"
	"errors"

	"github.com/kat-co/vala"
)

var ErrNotFound = errors.New("district not found")

type (
	Repository interface {
		ListDistricts(ctx context.Context) ([]District, error)
		// GetDistrictByKey finds a district whose Normalize(name) equals key.
		GetDistrictByKey(ctx context.Context, key string) (District, error)
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	vala.BeginValidation().Validate(vala.IsNotNil(repo, "repo")).CheckAndPanic()
	return &Service{repo: repo}
}

func (svc *Service) List(ctx context.Context) ([]District, error) {
	return svc.repo.ListDistricts(ctx)
}

// Resolve finds the district matching name regardless of case and spacing.
func (svc *Service) Resolve(ctx context.Context, name string) (District, error) {
	key := Normalize(name)
	if key == "" {
		return District{}, ErrNotFound
	}
	return svc.repo.GetDistrictByKey(ctx, key)
}
