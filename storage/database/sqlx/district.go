package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/abiaedu/portal/core/district"
)

type districtRepository struct {
	db *sqlx.DB
}

var _ district.Repository = (*districtRepository)(nil) // interface compliance check

func NewDistrictRepository(db *sqlx.DB) *districtRepository {
	return &districtRepository{db: db}
}

func (repo districtRepository) ListDistricts(ctx context.Context) ([]district.District, error) {
	districts := make([]district.District, 0, len(district.Names))
	if err := repo.db.SelectContext(ctx, &districts, "SELECT id, name FROM districts ORDER BY name"); err != nil {
		return nil, errors.Wrap(err, "listing districts")
	}
	return districts, nil
}

func (repo districtRepository) GetDistrictByKey(ctx context.Context, key string) (district.District, error) {
	var d district.District
	err := repo.db.GetContext(ctx, &d, `
		SELECT id, name FROM districts
		WHERE lower(regexp_replace(btrim(name), '\s+', ' ', 'g')) = $1`, key)
	if err != nil {
		return district.District{}, trapNoRowsErr(err, district.ErrNotFound, "finding district")
	}
	return d, nil
}
