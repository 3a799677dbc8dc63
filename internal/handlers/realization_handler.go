package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"energybudget/internal/models"
	"energybudget/internal/services"
)

// RealizationHandler serves persisted realization snapshots, recalculation
// and classification.
type RealizationHandler struct {
	realizationService    services.RealizationServicer
	classificationService services.ClassificationServicer
	auditService          services.AuditServicer
}

// NewRealizationHandler creates a new RealizationHandler.
func NewRealizationHandler(
	realizationService services.RealizationServicer,
	classificationService services.ClassificationServicer,
	auditService services.AuditServicer,
) *RealizationHandler {
	return &RealizationHandler{
		realizationService:    realizationService,
		classificationService: classificationService,
		auditService:          auditService,
	}
}

// RealizationResponse wraps a realization snapshot.
type RealizationResponse struct {
	Realization models.RealizationSnapshot `json:"realization"`
}

// ClassificationResponse wraps a classification.
type ClassificationResponse struct {
	Classification services.Classification `json:"classification"`
}

// GetRealization handles reading the last persisted snapshot of a budget.
// @Summary     Get realization snapshot
// @Description Get the realization persisted by the last recalculation of a budget
// @Tags        realization
// @Produce     json
// @Param       id path int true "Budget ID"
// @Success     200 {object} RealizationResponse "Realization snapshot"
// @Failure     400 {object} ErrorResponse "Invalid budget ID"
// @Failure     404 {object} ErrorResponse "Budget not found or never recalculated"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /budgets/{id}/realization [get]
func (h *RealizationHandler) GetRealization(c *gin.Context) {
	budgetID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	snapshot, err := h.realizationService.GetSnapshot(c.Request.Context(), budgetID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"realization": snapshot})
}

// Recalculate handles recomputing and persisting one budget's realization.
// @Summary     Recalculate realization
// @Description Recompute a budget's realization and replace its snapshot
// @Tags        realization
// @Produce     json
// @Param       id path int true "Budget ID"
// @Success     200 {object} RealizationResponse "New snapshot"
// @Failure     400 {object} ErrorResponse "Invalid budget ID"
// @Failure     404 {object} ErrorResponse "Budget not found"
// @Failure     503 {object} ErrorResponse "Store unavailable"
// @Failure     504 {object} ErrorResponse "Request timed out"
// @Router      /budgets/{id}/recalculate [post]
func (h *RealizationHandler) Recalculate(c *gin.Context) {
	budgetID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	snapshot, err := h.realizationService.Recalculate(c.Request.Context(), budgetID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(getActor(c), services.AuditRecalculate, "budget", budgetID, c.ClientIP(),
		map[string]interface{}{"runId": snapshot.RunID})

	c.JSON(http.StatusOK, gin.H{"realization": snapshot})
}

// RecalculateActive handles the ingestion pipeline's bulk recalculation.
// @Summary     Recalculate active budgets
// @Description Recompute the realization of every budget whose period contains today
// @Tags        pipeline
// @Produce     json
// @Security    PipelineKey
// @Success     200 {object} services.RecalculationSummary "Run summary"
// @Failure     401 {object} ErrorResponse "Invalid API key"
// @Failure     503 {object} ErrorResponse "Pipeline not configured"
// @Router      /pipeline/recalculate [post]
func (h *RealizationHandler) RecalculateActive(c *gin.Context) {
	summary, err := h.realizationService.RecalculateActive(c.Request.Context())
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

// GetClassification handles labelling a budget's spending behaviour.
// @Summary     Classify budget
// @Description Send a budget's realization to the classifier and return its label (HEMAT, NORMAL or BOROS)
// @Tags        realization
// @Produce     json
// @Param       id path int true "Budget ID"
// @Success     200 {object} ClassificationResponse "Classification"
// @Failure     400 {object} ErrorResponse "Invalid budget ID"
// @Failure     404 {object} ErrorResponse "Budget not found"
// @Failure     502 {object} ErrorResponse "Classifier unavailable"
// @Failure     503 {object} ErrorResponse "Classifier not configured"
// @Router      /budgets/{id}/classification [get]
func (h *RealizationHandler) GetClassification(c *gin.Context) {
	budgetID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	classification, err := h.classificationService.ClassifyBudget(c.Request.Context(), budgetID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"classification": classification})
}
