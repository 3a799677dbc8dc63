package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"energybudget/internal/services"
)

// PreviewHandler serves the read-only capacity and preview endpoints.
type PreviewHandler struct {
	previewService services.PreviewServicer
}

// NewPreviewHandler creates a new PreviewHandler.
func NewPreviewHandler(previewService services.PreviewServicer) *PreviewHandler {
	return &PreviewHandler{previewService: previewService}
}

// GetAvailableCapacity handles reading how much of a parent is unallocated.
// @Summary     Get available capacity
// @Description Get the parent total, the amount allocated to its children and what is left for the next period
// @Tags        budgets
// @Produce     json
// @Param       id path int true "Parent budget ID"
// @Success     200 {object} services.CapacityView "Available capacity"
// @Failure     400 {object} ErrorResponse "Budget is not a parent"
// @Failure     404 {object} ErrorResponse "Budget not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /budgets/{id}/available-capacity [get]
func (h *PreviewHandler) GetAvailableCapacity(c *gin.Context) {
	parentID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	capacity, err := h.previewService.AvailableCapacity(c.Request.Context(), parentID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, capacity)
}

// PreviewBudget handles a budget preview. Nothing is persisted.
// @Summary     Preview a budget
// @Description Prorate a total over a period, split it across meter weights and suggest a budget from history
// @Tags        budgets
// @Accept      json
// @Produce     json
// @Param       request body services.PreviewRequest true "Budget being composed"
// @Success     200 {object} services.Preview "Preview"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     404 {object} ErrorResponse "Parent budget not found"
// @Failure     422 {object} ErrorResponse "Invalid period"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /budgets/preview [post]
func (h *PreviewHandler) PreviewBudget(c *gin.Context) {
	var req services.PreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, invalidInput(err))
		return
	}

	preview, err := h.previewService.PreviewAllocation(c.Request.Context(), req)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, preview)
}
