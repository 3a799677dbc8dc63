package services

import (
	"context"
	"errors"

	apperrors "energybudget/internal/errors"
	"energybudget/internal/logger"
)

// classificationService sends a budget's realization to the external
// classifier.
type classificationService struct {
	realization RealizationServicer
	classifier  Classifier
}

// NewClassificationService creates a new ClassificationServicer. A nil
// classifier makes every call fail with ErrUpstreamDisabled.
func NewClassificationService(realization RealizationServicer, classifier Classifier) ClassificationServicer {
	return &classificationService{realization: realization, classifier: classifier}
}

// ClassifyBudget labels budget id's spending as efficient, normal or wasteful.
func (s *classificationService) ClassifyBudget(ctx context.Context, id uint) (*Classification, error) {
	if s.classifier == nil {
		return nil, apperrors.ErrUpstreamDisabled
	}
	detail, err := s.realization.GetBudgetDetail(ctx, id)
	if err != nil {
		return nil, err
	}

	label, confidence, err := s.classifier.Classify(ctx, id, detail.TotalBudget, detail.TotalRealization, detail.RealizationPercentage)
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		if ctx.Err() != nil {
			return nil, apperrors.Store(ctx.Err())
		}
		logger.Get().Warnw("budget classification failed", "budget_id", id, "error", err)
		return nil, apperrors.Wrap(apperrors.ErrUpstreamUnavailable, err)
	}

	return &Classification{
		BudgetID:              id,
		Label:                 label,
		Confidence:            confidence,
		AllocatedBudget:       detail.TotalBudget,
		TotalRealization:      detail.TotalRealization,
		RealizationPercentage: detail.RealizationPercentage,
	}, nil
}
