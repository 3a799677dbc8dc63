package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"energybudget/internal/models"
	"energybudget/internal/services"
)

// MasterDataHandler serves the read-only energy type and meter catalog.
type MasterDataHandler struct {
	masterDataService services.MasterDataServicer
}

// NewMasterDataHandler creates a new MasterDataHandler.
func NewMasterDataHandler(masterDataService services.MasterDataServicer) *MasterDataHandler {
	return &MasterDataHandler{masterDataService: masterDataService}
}

// GetEnergyTypes handles listing energy types.
// @Summary     List energy types
// @Tags        master-data
// @Produce     json
// @Success     200 {object} map[string][]models.EnergyType "Energy types"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /energy-types [get]
func (h *MasterDataHandler) GetEnergyTypes(c *gin.Context) {
	energyTypes, err := h.masterDataService.ListEnergyTypes(c.Request.Context())
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"energyTypes": energyTypes})
}

// GetEnergyType handles retrieving one energy type.
// @Summary     Get energy type by ID
// @Tags        master-data
// @Produce     json
// @Param       id path int true "Energy type ID"
// @Success     200 {object} map[string]models.EnergyType "Energy type"
// @Failure     400 {object} ErrorResponse "Invalid energy type ID"
// @Failure     404 {object} ErrorResponse "Energy type not found"
// @Router      /energy-types/{id} [get]
func (h *MasterDataHandler) GetEnergyType(c *gin.Context) {
	id, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	energyType, err := h.masterDataService.GetEnergyType(c.Request.Context(), id)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"energyType": energyType})
}

// MeterQuery holds the meter list filters.
type MeterQuery struct {
	EnergyType uint   `form:"energyType" binding:"omitempty,gt=0"`
	Status     string `form:"status" binding:"omitempty,meter_status"`
}

// GetMeters handles listing meters.
// @Summary     List meters
// @Tags        master-data
// @Produce     json
// @Param       energyType query int    false "Energy type ID"
// @Param       status     query string false "active, under_maintenance, inactive or deleted"
// @Success     200 {object} map[string][]models.Meter "Meters"
// @Failure     400 {object} ErrorResponse "Invalid filter"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /meters [get]
func (h *MasterDataHandler) GetMeters(c *gin.Context) {
	var query MeterQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		respondWithError(c, invalidInput(err))
		return
	}

	var filter services.MeterFilter
	if query.EnergyType != 0 {
		filter.EnergyTypeID = &query.EnergyType
	}
	if query.Status != "" {
		status := models.MeterStatus(query.Status)
		filter.Status = &status
	}

	meters, err := h.masterDataService.ListMeters(c.Request.Context(), filter)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"meters": meters})
}
