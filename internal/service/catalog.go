package service

import (
	"context"
	"fmt"

	"homestay-booking/internal/domain"
	"homestay-booking/internal/repository"
)

type catalogService struct {
	catalogRepo repository.CatalogRepository
}

func NewCatalogService(catalogRepo repository.CatalogRepository) CatalogService {
	return &catalogService{catalogRepo: catalogRepo}
}

func (s *catalogService) GetPackage(ctx context.Context, id string) (*domain.Package, error) {
	return s.catalogRepo.GetPackage(ctx, id)
}

func (s *catalogService) SavePackage(ctx context.Context, pkg *domain.Package) error {
	if pkg.ID == "" || len(pkg.UnitIDs) == 0 {
		return fmt.Errorf("%w: package id and units are required", domain.ErrValidation)
	}
	if pkg.WeekdayRateCents <= 0 || pkg.WeekendRateCents <= 0 {
		return fmt.Errorf("%w: rates must be positive", domain.ErrValidation)
	}
	if _, err := s.catalogRepo.ListUnits(ctx, pkg.UnitIDs); err != nil {
		return fmt.Errorf("package %s references unknown units: %w", pkg.ID, err)
	}
	return s.catalogRepo.UpsertPackage(ctx, pkg)
}

func (s *catalogService) SaveUnit(ctx context.Context, unit *domain.LodgingUnit) error {
	if unit.ID == "" || unit.Capacity <= 0 {
		return fmt.Errorf("%w: unit id and positive capacity are required", domain.ErrValidation)
	}
	return s.catalogRepo.UpsertUnit(ctx, unit)
}
