// Package handler exposes the registry over HTTP: entity CRUD, hybrid
// search, federation admin, health probes, the read-only discovery surface,
// and the edge middleware. Handlers translate domain errors to status codes
// and never leak stack traces.
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/openharbor-io/beacon/internal/registry/model"
	"github.com/openharbor-io/beacon/internal/registry/repository"
)

// errorBody is the uniform error shape: {error: kind, message, detail?}.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Detail  any    `json:"detail,omitempty"`
}

// writeError maps a domain error onto its HTTP representation.
func writeError(c *gin.Context, logger *zap.Logger, err error) {
	var valErr *model.ErrValidation
	var unsafeErr *model.ErrUnsafe
	switch {
	case errors.As(err, &valErr):
		c.JSON(http.StatusBadRequest, errorBody{Error: "validation", Message: valErr.Msg})
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, errorBody{Error: "not_found", Message: "entity not found"})
	case errors.Is(err, repository.ErrAlreadyExists):
		c.JSON(http.StatusConflict, errorBody{Error: "already_exists", Message: "an entity with that path already exists"})
	case errors.As(err, &unsafeErr):
		c.JSON(http.StatusUnprocessableEntity, errorBody{
			Error:   "security_blocked",
			Message: unsafeErr.Error(),
			Detail:  unsafeErr.Scan,
		})
	case errors.Is(err, repository.ErrUnavailable):
		logger.Error("storage backend unavailable", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, errorBody{Error: "backend_unavailable", Message: "storage backend unavailable"})
	default:
		logger.Error("unexpected error", zap.Error(err), zap.Stack("stack"))
		c.JSON(http.StatusInternalServerError, errorBody{Error: "unexpected", Message: "internal error"})
	}
}

// denied writes the 403 used by every scope and visibility check.
func denied(c *gin.Context) {
	c.JSON(http.StatusForbidden, errorBody{Error: "permission_denied", Message: "access denied"})
}

// badRequest writes a 400 for malformed request bodies.
func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, errorBody{Error: "validation", Message: msg})
}
