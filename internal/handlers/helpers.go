package handlers

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "energybudget/internal/errors"
	"energybudget/internal/logger"
)

// ActorHeader identifies the caller for audit logging. Authentication itself
// happens in front of this service.
const ActorHeader = "X-Actor-ID"

const anonymousActor = "anonymous"

// getActor returns the caller recorded in audit logs.
func getActor(c *gin.Context) string {
	if actor := c.GetHeader(ActorHeader); actor != "" {
		return actor
	}
	return anonymousActor
}

// parsePathID parses a uint path parameter.
// Returns ErrInvalidInput if the parameter is not a valid positive integer.
func parsePathID(c *gin.Context, param string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(param), 10, 32)
	if err != nil || id == 0 {
		return 0, apperrors.WithMessage(apperrors.ErrInvalidInput, "Invalid "+param)
	}
	return uint(id), nil
}

// parseQueryID parses an optional uint query parameter. A missing parameter
// yields nil.
func parseQueryID(c *gin.Context, param string) (*uint, error) {
	raw := c.Query(param)
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, param+" must be a positive integer")
	}
	v := uint(id)
	return &v, nil
}

// parseQueryBool parses an optional boolean query parameter.
func parseQueryBool(c *gin.Context, param string) (bool, error) {
	raw := c.Query(param)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, apperrors.WithMessage(apperrors.ErrInvalidInput, param+" must be 'true' or 'false'")
	}
	return v, nil
}

// respondWithError writes a consistent JSON error response. If the error is an
// *AppError it uses the error's status code, code, message and field
// violations. Otherwise it logs the unexpected error and returns a generic
// internal server error.
func respondWithError(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		if appErr.Internal != nil {
			logger.Get().Errorw("app error",
				"request_id", c.GetString("requestID"),
				"code", appErr.Code,
				"internal", appErr.Internal.Error(),
				"path", c.Request.URL.Path,
			)
		}
		c.JSON(appErr.StatusCode, apperrors.ErrorBody{Error: appErr})
		return
	}

	logger.Get().Errorw("unexpected error",
		"request_id", c.GetString("requestID"),
		"error", err.Error(),
		"path", c.Request.URL.Path,
		"method", c.Request.Method,
	)
	c.JSON(apperrors.ErrInternalServer.StatusCode, apperrors.ErrorBody{Error: apperrors.ErrInternalServer})
}

// invalidInput wraps a binding failure as ErrInvalidInput.
func invalidInput(err error) *apperrors.AppError {
	return apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error())
}

// ErrorResponse documents the error body for swagger.
type ErrorResponse struct {
	Error apperrors.AppError `json:"error"`
}

// MessageResponse represents a simple message response
type MessageResponse struct {
	Message string `json:"message"`
}
