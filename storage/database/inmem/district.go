package inmemdb

import (
	"context"
	"sort"

	"github.com/abiaedu/portal/core/district"
)

type districtRepository struct {
	db *DB
}

func NewDistrictRepository(db *DB) district.Repository {
	return &districtRepository{db: db}
}

func (repo *districtRepository) ListDistricts(context.Context) ([]district.District, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	districts := append([]district.District{}, repo.db.districts...)
	sort.Slice(districts, func(i, j int) bool { return districts[i].Name < districts[j].Name })
	return districts, nil
}

func (repo *districtRepository) GetDistrictByKey(_ context.Context, key string) (district.District, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, d := range repo.db.districts {
		if district.Normalize(d.Name) == key {
			return d, nil
		}
	}
	return district.District{}, district.ErrNotFound
}
