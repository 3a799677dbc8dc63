package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"energybudget/internal/allocation"
	apperrors "energybudget/internal/errors"
	"energybudget/internal/pagination"
	"energybudget/internal/services"
)

// BudgetHandler handles the budget hierarchy's write path and reads.
type BudgetHandler struct {
	budgetService      services.BudgetServicer
	realizationService services.RealizationServicer
	auditService       services.AuditServicer
}

// NewBudgetHandler creates a new BudgetHandler.
func NewBudgetHandler(budgetService services.BudgetServicer, realizationService services.RealizationServicer, auditService services.AuditServicer) *BudgetHandler {
	return &BudgetHandler{
		budgetService:      budgetService,
		realizationService: realizationService,
		auditService:       auditService,
	}
}

// BudgetResponse wraps a single budget.
type BudgetResponse struct {
	Budget services.BudgetView `json:"budget"`
}

// BudgetDetailResponse wraps a budget with its realization figures.
type BudgetDetailResponse struct {
	Budget services.BudgetDetail `json:"budget"`
}

// CreateBudget handles the creation of a parent or child budget.
// @Summary     Create a budget
// @Description Create a parent budget, or a child budget with meter allocations under a parent
// @Tags        budgets
// @Accept      json
// @Produce     json
// @Param       request body services.BudgetCandidate true "Budget details"
// @Success     201 {object} BudgetResponse "Budget created"
// @Failure     400 {object} ErrorResponse "Malformed request"
// @Failure     409 {object} ErrorResponse "Parent capacity exceeded"
// @Failure     422 {object} ErrorResponse "Field validation errors"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /budgets [post]
func (h *BudgetHandler) CreateBudget(c *gin.Context) {
	var candidate services.BudgetCandidate
	if err := c.ShouldBindJSON(&candidate); err != nil {
		respondWithError(c, invalidInput(err))
		return
	}

	budget, err := h.budgetService.CreateBudget(c.Request.Context(), candidate)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(getActor(c), services.AuditCreateBudget, "budget", budget.ID, c.ClientIP(),
		map[string]interface{}{
			"budgetType":     budget.BudgetType,
			"totalBudget":    budget.TotalBudget,
			"parentBudgetId": budget.ParentBudgetID,
			"allocations":    len(budget.Allocations),
		})

	c.JSON(http.StatusCreated, gin.H{"budget": budget})
}

// GetBudgets handles listing budgets.
// @Summary     List budgets
// @Description Get a paginated list of budgets, optionally filtered by kind, parent and energy type
// @Tags        budgets
// @Produce     json
// @Param       kind       query string false "parent or child"
// @Param       parentId   query int    false "Parent budget ID"
// @Param       energyType query int    false "Energy type ID"
// @Param       page       query int    false "Page number (default 1)"
// @Param       page_size  query int    false "Items per page (default 20, max 100)"
// @Success     200 {object} pagination.PageResponse[services.BudgetView] "Paginated budgets"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /budgets [get]
func (h *BudgetHandler) GetBudgets(c *gin.Context) {
	var page pagination.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		respondWithError(c, invalidInput(err))
		return
	}

	var filter services.BudgetFilter
	if v := c.Query("kind"); v != "" {
		kind := allocation.Kind(v)
		if kind != allocation.KindParent && kind != allocation.KindChild {
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "kind must be 'parent' or 'child'"))
			return
		}
		filter.Kind = &kind
	}

	var err error
	if filter.ParentID, err = parseQueryID(c, "parentId"); err != nil {
		respondWithError(c, err)
		return
	}
	if filter.EnergyTypeID, err = parseQueryID(c, "energyType"); err != nil {
		respondWithError(c, err)
		return
	}

	result, err := h.budgetService.ListBudgets(c.Request.Context(), filter, page)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetBudget handles retrieving a budget with its live realization.
// @Summary     Get budget by ID
// @Description Get a budget with per-allocation realization, totals and the monthly burn rate
// @Tags        budgets
// @Produce     json
// @Param       id path int true "Budget ID"
// @Success     200 {object} BudgetDetailResponse "Budget details"
// @Failure     400 {object} ErrorResponse "Invalid budget ID"
// @Failure     404 {object} ErrorResponse "Budget not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /budgets/{id} [get]
func (h *BudgetHandler) GetBudget(c *gin.Context) {
	budgetID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	detail, err := h.realizationService.GetBudgetDetail(c.Request.Context(), budgetID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"budget": detail})
}

// UpdateBudget handles a partial update. Fields present in the body replace
// the stored ones; a present allocations list replaces the whole set. The
// merged budget is revalidated as a whole.
// @Summary     Update budget
// @Description Partially update a budget; the merged result is validated like a new submission
// @Tags        budgets
// @Accept      json
// @Produce     json
// @Param       id      path int                      true "Budget ID"
// @Param       request body services.BudgetCandidate true "Fields to change"
// @Success     200 {object} BudgetResponse "Updated budget"
// @Failure     400 {object} ErrorResponse "Invalid input or budget ID"
// @Failure     404 {object} ErrorResponse "Budget not found"
// @Failure     409 {object} ErrorResponse "Capacity or concurrency conflict"
// @Failure     422 {object} ErrorResponse "Field validation errors"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /budgets/{id} [patch]
func (h *BudgetHandler) UpdateBudget(c *gin.Context) {
	budgetID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	body, err := c.GetRawData()
	if err != nil {
		respondWithError(c, invalidInput(err))
		return
	}
	var patch map[string]json.RawMessage
	if err := json.Unmarshal(body, &patch); err != nil {
		respondWithError(c, invalidInput(err))
		return
	}

	candidate, err := h.budgetService.CandidateFor(c.Request.Context(), budgetID)
	if err != nil {
		respondWithError(c, err)
		return
	}
	// A submitted allocation list replaces the stored set; its rows never
	// inherit fields from stored rows at the same index.
	if _, ok := patch["allocations"]; ok {
		candidate.Allocations = nil
	}
	if err := json.Unmarshal(body, candidate); err != nil {
		respondWithError(c, invalidInput(err))
		return
	}

	budget, err := h.budgetService.UpdateBudget(c.Request.Context(), budgetID, *candidate)
	if err != nil {
		respondWithError(c, err)
		return
	}

	changed := make([]string, 0, len(patch))
	for field := range patch {
		changed = append(changed, field)
	}
	h.auditService.Log(getActor(c), services.AuditUpdateBudget, "budget", budgetID, c.ClientIP(),
		map[string]interface{}{"fields": changed, "version": budget.Version})

	c.JSON(http.StatusOK, gin.H{"budget": budget})
}

// DeleteBudget handles deleting a budget.
// @Summary     Delete budget
// @Description Delete a budget. A parent with children requires cascade=true, which deletes the children too.
// @Tags        budgets
// @Produce     json
// @Param       id      path  int  true  "Budget ID"
// @Param       cascade query bool false "Delete child budgets as well"
// @Success     200 {object} MessageResponse "Budget deleted"
// @Failure     400 {object} ErrorResponse "Invalid budget ID"
// @Failure     404 {object} ErrorResponse "Budget not found"
// @Failure     409 {object} ErrorResponse "Budget has children"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /budgets/{id} [delete]
func (h *BudgetHandler) DeleteBudget(c *gin.Context) {
	budgetID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	cascade, err := parseQueryBool(c, "cascade")
	if err != nil {
		respondWithError(c, err)
		return
	}

	if err := h.budgetService.DeleteBudget(c.Request.Context(), budgetID, cascade); err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(getActor(c), services.AuditDeleteBudget, "budget", budgetID, c.ClientIP(),
		map[string]interface{}{"cascade": cascade})

	c.JSON(http.StatusOK, gin.H{"message": "Budget deleted successfully"})
}
