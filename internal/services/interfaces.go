package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"energybudget/internal/allocation"
	"energybudget/internal/models"
	"energybudget/internal/pagination"
)

// Clock abstracts the current time so derived statuses are testable.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time { return time.Now() }

// AllocationInput is one meter share in a submitted child budget. Pointers
// distinguish a missing value from zero.
type AllocationInput struct {
	MeterID *int64   `json:"meterId" validate:"required,gt=0"`
	Weight  *float64 `json:"weight" validate:"required,gte=0,lte=1"`
}

// BudgetCandidate is an unvalidated budget submission. BudgetType selects
// which of the remaining fields apply.
type BudgetCandidate struct {
	BudgetType     string            `json:"budgetType" validate:"required,budget_kind"`
	PeriodStart    string            `json:"periodStart"`
	PeriodEnd      string            `json:"periodEnd"`
	TotalBudget    *decimal.Decimal  `json:"totalBudget"`
	EfficiencyTag  *float64          `json:"efficiencyTag"`
	EnergyTypeID   *int64            `json:"energyTypeId"`
	ParentBudgetID *int64            `json:"parentBudgetId"`
	Allocations    []AllocationInput `json:"allocations" validate:"dive"`
}

// ReferenceReader resolves the records a candidate budget refers to.
type ReferenceReader interface {
	EnergyTypeExists(ctx context.Context, id uint) (bool, error)
	// FindBudget returns nil without error when the budget does not exist.
	FindBudget(ctx context.Context, id uint) (*models.AnnualBudget, error)
	FindMeters(ctx context.Context, ids []uint) (map[uint]models.Meter, error)
}

// AllocationValidator turns candidates into validated budgets.
type AllocationValidator interface {
	// ValidateBudget returns a Parent or Child, or an AppError carrying every
	// field violation found.
	ValidateBudget(ctx context.Context, candidate BudgetCandidate) (allocation.Budget, error)
}

// BudgetFilter holds optional filter parameters for listing budgets.
type BudgetFilter struct {
	Kind         *allocation.Kind
	ParentID     *uint
	EnergyTypeID *uint
}

// BudgetStorer persists the budget hierarchy. Writes touching a parent's
// capacity are serialized per parent.
type BudgetStorer interface {
	CreateBudget(ctx context.Context, budget allocation.Budget) (*models.AnnualBudget, error)
	UpdateBudget(ctx context.Context, id uint, budget allocation.Budget) (*models.AnnualBudget, error)
	DeleteBudget(ctx context.Context, id uint, cascade bool) error
	GetParents(ctx context.Context, energyTypeID *uint) ([]models.AnnualBudget, error)
	GetChildren(ctx context.Context, parentID *uint) ([]models.AnnualBudget, error)
	GetByID(ctx context.Context, id uint) (*models.AnnualBudget, error)
	ListBudgets(ctx context.Context, filter BudgetFilter, page pagination.PageRequest) (*pagination.PageResponse[models.AnnualBudget], error)
}

// AllocationView is a stored allocation as returned by the API.
type AllocationView struct {
	ID        uint    `json:"id"`
	MeterID   uint    `json:"meterId"`
	MeterCode string  `json:"meterCode,omitempty"`
	MeterName string  `json:"meterName,omitempty"`
	Weight    float64 `json:"weight"`
}

// BudgetView is a stored budget with its derived status.
type BudgetView struct {
	ID             uint              `json:"id"`
	BudgetType     allocation.Kind   `json:"budgetType"`
	ParentBudgetID *uint             `json:"parentBudgetId"`
	PeriodStart    string            `json:"periodStart"`
	PeriodEnd      string            `json:"periodEnd"`
	TotalBudget    decimal.Decimal   `json:"totalBudget"`
	EfficiencyTag  *float64          `json:"efficiencyTag"`
	EnergyTypeID   uint              `json:"energyTypeId"`
	Status         allocation.Status `json:"status"`
	Version        int64             `json:"version"`
	Allocations    []AllocationView  `json:"allocations"`
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`
}

// BudgetServicer defines the contract for the budget write path and listing.
type BudgetServicer interface {
	CreateBudget(ctx context.Context, candidate BudgetCandidate) (*BudgetView, error)
	// CandidateFor returns the stored budget in submission form so a partial
	// update can be merged onto it and revalidated as a whole.
	CandidateFor(ctx context.Context, id uint) (*BudgetCandidate, error)
	UpdateBudget(ctx context.Context, id uint, candidate BudgetCandidate) (*BudgetView, error)
	DeleteBudget(ctx context.Context, id uint, cascade bool) error
	GetBudget(ctx context.Context, id uint) (*BudgetView, error)
	ListBudgets(ctx context.Context, filter BudgetFilter, page pagination.PageRequest) (*pagination.PageResponse[BudgetView], error)
}

// AllocationRealization is the realization of one meter allocation.
type AllocationRealization struct {
	AllocationID          uint            `json:"allocationId"`
	MeterID               uint            `json:"meterId"`
	MeterCode             string          `json:"meterCode,omitempty"`
	MeterName             string          `json:"meterName,omitempty"`
	Weight                float64         `json:"weight"`
	AllocatedBudget       decimal.Decimal `json:"allocatedBudget"`
	TotalRealization      decimal.Decimal `json:"totalRealization"`
	RemainingBudget       decimal.Decimal `json:"remainingBudget"`
	RealizationPercentage *float64        `json:"realizationPercentage"`
}

// MonthlyUsageDetail is one calendar month of a budget's burn rate.
type MonthlyUsageDetail struct {
	Month           string          `json:"month"`
	AllocatedBudget decimal.Decimal `json:"allocatedBudget"`
	RealizationCost decimal.Decimal `json:"realizationCost"`
}

// ChildSummary is a child's rollup as seen from its parent.
type ChildSummary struct {
	BudgetID              uint            `json:"budgetId"`
	PeriodStart           string          `json:"periodStart"`
	PeriodEnd             string          `json:"periodEnd"`
	AllocatedBudget       decimal.Decimal `json:"allocatedBudget"`
	TotalRealization      decimal.Decimal `json:"totalRealization"`
	RemainingBudget       decimal.Decimal `json:"remainingBudget"`
	RealizationPercentage *float64        `json:"realizationPercentage"`
}

// Realization is the computed rollup of one budget. PerAllocation is set for
// children and Children for parents.
type Realization struct {
	BudgetID              uint                    `json:"budgetId"`
	BudgetType            allocation.Kind         `json:"budgetType"`
	AllocatedBudget       decimal.Decimal         `json:"allocatedBudget"`
	TotalRealization      decimal.Decimal         `json:"totalRealization"`
	RemainingBudget       decimal.Decimal         `json:"remainingBudget"`
	RealizationPercentage *float64                `json:"realizationPercentage"`
	PerAllocation         []AllocationRealization `json:"allocations,omitempty"`
	Children              []ChildSummary          `json:"children,omitempty"`
	MonthlyAllocation     []MonthlyUsageDetail    `json:"monthlyAllocation"`
}

// BudgetDetail is a budget with its live realization figures.
type BudgetDetail struct {
	BudgetView
	Allocations           []AllocationRealization `json:"allocations"`
	Children              []ChildSummary          `json:"children,omitempty"`
	TotalRealization      decimal.Decimal         `json:"totalRealization"`
	RemainingBudget       decimal.Decimal         `json:"remainingBudget"`
	RealizationPercentage *float64                `json:"realizationPercentage"`
	MonthlyAllocation     []MonthlyUsageDetail    `json:"monthlyAllocation"`
}

// RecalculationSummary reports a bulk recalculation run.
type RecalculationSummary struct {
	RunID        string `json:"runId"`
	Budgets      int    `json:"budgets"`
	Recalculated int    `json:"recalculated"`
	Failed       int    `json:"failed"`
}

// RealizationServicer defines the contract for realization rollups.
type RealizationServicer interface {
	ComputeChildRealization(ctx context.Context, childBudgetID uint) (*Realization, error)
	ComputeParentRealization(ctx context.Context, parentBudgetID uint) (*Realization, error)
	GetBudgetDetail(ctx context.Context, id uint) (*BudgetDetail, error)
	Recalculate(ctx context.Context, id uint) (*models.RealizationSnapshot, error)
	RecalculateActive(ctx context.Context) (*RecalculationSummary, error)
	GetSnapshot(ctx context.Context, id uint) (*models.RealizationSnapshot, error)
}

// PeriodBudgetEstimator suggests a budget for a set of meters over a period.
type PeriodBudgetEstimator interface {
	EstimatePeriodBudget(ctx context.Context, meterIDs []uint, period allocation.Period) (decimal.Decimal, error)
}

// CapacityView describes how much of a parent budget is still unallocated.
type CapacityView struct {
	ParentBudgetID               uint            `json:"parentBudgetId"`
	ParentTotalBudget            decimal.Decimal `json:"parentTotalBudget"`
	TotalAllocatedToChildren     decimal.Decimal `json:"totalAllocatedToChildren"`
	AvailableBudgetForNextPeriod decimal.Decimal `json:"availableBudgetForNextPeriod"`
	ChildCount                   int             `json:"childCount"`
	IntegrityWarning             string          `json:"integrityWarning,omitempty"`
}

// PreviewAllocationInput is a possibly incomplete meter share in a preview.
type PreviewAllocationInput struct {
	MeterID uint    `json:"meterId" binding:"required,gt=0"`
	Weight  float64 `json:"weight" binding:"gte=0,lte=1"`
}

// PreviewRequest is the input of a budget preview. Nothing in it is persisted.
type PreviewRequest struct {
	ParentBudgetID *uint                    `json:"parentBudgetId" binding:"omitempty,gt=0"`
	BudgetID       *uint                    `json:"budgetId" binding:"omitempty,gt=0"`
	TotalBudget    *decimal.Decimal         `json:"totalBudget"`
	PeriodStart    string                   `json:"periodStart" binding:"required,budget_date"`
	PeriodEnd      string                   `json:"periodEnd" binding:"required,budget_date"`
	Allocations    []PreviewAllocationInput `json:"allocations" binding:"omitempty,dive"`
}

// MeterPreview is one meter's share in a preview.
type MeterPreview struct {
	MeterID         uint            `json:"meterId"`
	MeterName       string          `json:"meterName"`
	Weight          float64         `json:"weight"`
	AllocatedBudget decimal.Decimal `json:"allocatedBudget"`
}

// MonthShareView is one month of a prorated preview total.
type MonthShareView struct {
	Month  string          `json:"month"`
	Amount decimal.Decimal `json:"amount"`
}

// Preview is the read-only suggestion for a budget being composed.
type Preview struct {
	PeriodStart              string           `json:"periodStart"`
	PeriodEnd                string           `json:"periodEnd"`
	Months                   int              `json:"months"`
	TotalBudget              decimal.Decimal  `json:"totalBudget"`
	BudgetPerMonth           decimal.Decimal  `json:"budgetPerMonth"`
	MonthlyBreakdown         []MonthShareView `json:"monthlyBreakdown"`
	SuggestedBudgetForPeriod *decimal.Decimal `json:"suggestedBudgetForPeriod"`
	WeightTotal              float64          `json:"weightTotal"`
	WeightsSuggested         bool             `json:"weightsSuggested"`
	MeterAllocationPreview   []MeterPreview   `json:"meterAllocationPreview"`
	AvailableCapacity        *CapacityView    `json:"availableCapacity,omitempty"`
}

// PreviewServicer defines the contract for the read-only preview engine.
type PreviewServicer interface {
	AvailableCapacity(ctx context.Context, parentBudgetID uint) (*CapacityView, error)
	PreviewAllocation(ctx context.Context, req PreviewRequest) (*Preview, error)
}

// Classification is the external classifier's verdict on a budget.
type Classification struct {
	BudgetID              uint            `json:"budgetId"`
	Label                 string          `json:"label"`
	Confidence            float64         `json:"confidence"`
	AllocatedBudget       decimal.Decimal `json:"allocatedBudget"`
	TotalRealization      decimal.Decimal `json:"totalRealization"`
	RealizationPercentage *float64        `json:"realizationPercentage"`
}

// Classifier labels a budget's spending behaviour.
type Classifier interface {
	Classify(ctx context.Context, budgetID uint, allocated, realized decimal.Decimal, percentage *float64) (label string, confidence float64, err error)
}

// ClassificationServicer defines the contract for budget classification.
type ClassificationServicer interface {
	ClassifyBudget(ctx context.Context, id uint) (*Classification, error)
}

// MeterFilter holds optional filter parameters for listing meters.
type MeterFilter struct {
	EnergyTypeID *uint
	Status       *models.MeterStatus
}

// MasterDataServicer defines the read-only contract over the master-data catalog.
type MasterDataServicer interface {
	ListEnergyTypes(ctx context.Context) ([]models.EnergyType, error)
	GetEnergyType(ctx context.Context, id uint) (*models.EnergyType, error)
	ListMeters(ctx context.Context, filter MeterFilter) ([]models.Meter, error)
}

// AuditServicer defines the contract for audit logging.
type AuditServicer interface {
	Log(actor, action, resourceType string, resourceID uint, ipAddress string, changes map[string]interface{})
}
