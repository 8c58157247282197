package handler

import (
	"errors"
	"net/http"

	"office_parking/internal/api/middleware"
	"office_parking/internal/service"

	"github.com/gin-gonic/gin"
)

type AvailabilityHandler struct {
	availabilityService *service.AvailabilityService
}

func NewAvailabilityHandler(as *service.AvailabilityService) *AvailabilityHandler {
	return &AvailabilityHandler{availabilityService: as}
}

// GET /spots?date=YYYY-MM-DD renders the parking map for one day as the
// caller sees it.
func (h *AvailabilityHandler) GetDayOverview(c *gin.Context) {
	date := c.Query("date")
	if date == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date query parameter is required"})
		return
	}

	spots, capacity, err := h.availabilityService.DayOverview(c.Request.Context(), date, middleware.CallerID(c))
	if err != nil {
		if errors.Is(err, service.ErrInvalidDate) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load day overview", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": date, "spots": spots, "capacity": capacity})
}

// GET /days?from=YYYY-MM-DD&to=YYYY-MM-DD returns the per-day capacity
// summaries for a calendar range.
func (h *AvailabilityHandler) GetDayRange(c *gin.Context) {
	from := c.Query("from")
	to := c.Query("to")
	if from == "" || to == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from and to query parameters are required"})
		return
	}

	days, err := h.availabilityService.DayRange(c.Request.Context(), from, to)
	if err != nil {
		if errors.Is(err, service.ErrInvalidDate) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load day range", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"days": days, "count": len(days)})
}
