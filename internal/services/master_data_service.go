package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	apperrors "energybudget/internal/errors"
	"energybudget/internal/models"
)

// masterDataService reads the energy type and meter catalog. The catalog is
// owned elsewhere; nothing here writes to it.
type masterDataService struct {
	db *gorm.DB
}

// NewMasterDataService creates a new MasterDataServicer.
func NewMasterDataService(db *gorm.DB) MasterDataServicer {
	return &masterDataService{db: db}
}

// ListEnergyTypes returns every energy type ordered by name.
func (s *masterDataService) ListEnergyTypes(ctx context.Context) ([]models.EnergyType, error) {
	var types []models.EnergyType
	if err := s.db.WithContext(ctx).Order("name").Find(&types).Error; err != nil {
		return nil, apperrors.Store(err)
	}
	return types, nil
}

// GetEnergyType returns a single energy type.
func (s *masterDataService) GetEnergyType(ctx context.Context, id uint) (*models.EnergyType, error) {
	var et models.EnergyType
	if err := s.db.WithContext(ctx).First(&et, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrEnergyTypeNotFound
		}
		return nil, apperrors.Store(err)
	}
	return &et, nil
}

// ListMeters returns meters matching filter ordered by code.
func (s *masterDataService) ListMeters(ctx context.Context, filter MeterFilter) ([]models.Meter, error) {
	query := s.db.WithContext(ctx)
	if filter.EnergyTypeID != nil {
		query = query.Where("energy_type_id = ?", *filter.EnergyTypeID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}

	var meters []models.Meter
	if err := query.Order("code").Find(&meters).Error; err != nil {
		return nil, apperrors.Store(err)
	}
	return meters, nil
}
