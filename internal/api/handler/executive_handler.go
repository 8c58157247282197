package handler

import (
	"errors"
	"net/http"
	"strconv"

	"office_parking/internal/api/middleware"
	"office_parking/internal/repository"
	"office_parking/internal/service"

	"github.com/gin-gonic/gin"
)

type ExecutiveHandler struct {
	executiveService *service.ExecutiveService
}

func NewExecutiveHandler(es *service.ExecutiveService) *ExecutiveHandler {
	return &ExecutiveHandler{executiveService: es}
}

func writeExecutiveError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "parking spot not found"})
	case errors.Is(err, service.ErrPermissionDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "executive spot operation failed", "details": err.Error()})
	}
}

// POST /spots/:id/release hands the caller's dedicated spot back to the pool
// until they reclaim it.
func (h *ExecutiveHandler) ReleaseSpot(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid spot id"})
		return
	}

	spot, err := h.executiveService.Release(c.Request.Context(), id, middleware.CallerID(c))
	if err != nil {
		writeExecutiveError(c, err)
		return
	}
	c.JSON(http.StatusOK, spot)
}

// POST /spots/:id/reoccupy reclaims a released dedicated spot. Any bookings
// other users placed on it from today onward are cancelled.
func (h *ExecutiveHandler) ReoccupySpot(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid spot id"})
		return
	}

	spot, err := h.executiveService.Reoccupy(c.Request.Context(), id, middleware.CallerID(c))
	if err != nil {
		writeExecutiveError(c, err)
		return
	}
	c.JSON(http.StatusOK, spot)
}
