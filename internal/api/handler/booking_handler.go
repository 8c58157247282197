package handler

import (
	"errors"
	"net/http"
	"strconv"

	"office_parking/internal/domain"
	"office_parking/internal/repository"
	"office_parking/internal/service"

	"office_parking/internal/api/middleware"

	"github.com/gin-gonic/gin"
)

type BookingHandler struct {
	bookingService *service.BookingService
}

func NewBookingHandler(bs *service.BookingService) *BookingHandler {
	return &BookingHandler{bookingService: bs}
}

// writeBookingError maps the booking sentinels onto HTTP statuses. Conflicts
// with another claim land on 409, business rejections on 422.
func writeBookingError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "booking not found"})
	case errors.Is(err, service.ErrInvalidDate):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidStatus):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrPermissionDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrAlreadyBooked),
		errors.Is(err, service.ErrSpotTaken),
		errors.Is(err, service.ErrOperationInFlight):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNotVerified),
		errors.Is(err, service.ErrSpotBlocked),
		errors.Is(err, service.ErrSpotUnavailable),
		errors.Is(err, service.ErrBookingFinal):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "booking operation failed", "details": err.Error()})
	}
}

// POST /bookings
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	var dto domain.CreateBookingDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	booking, err := h.bookingService.CreateDirectBooking(c.Request.Context(), middleware.CallerID(c), dto)
	if err != nil {
		writeBookingError(c, err)
		return
	}
	c.JSON(http.StatusCreated, booking)
}

// POST /bookings/pool requests a spot from the shared pool. The request is
// queued on the day's waitlist and promoted in arrival order.
func (h *BookingHandler) RequestPoolBooking(c *gin.Context) {
	var dto domain.PoolBookingDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	booking, err := h.bookingService.RequestPoolBooking(c.Request.Context(), middleware.CallerID(c), dto.Date)
	if err != nil {
		writeBookingError(c, err)
		return
	}
	c.JSON(http.StatusCreated, booking)
}

// GET /bookings lists the caller's own bookings, optionally filtered.
func (h *BookingHandler) ListOwnBookings(c *gin.Context) {
	var filter domain.BookingFilterDTO
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query parameters: " + err.Error()})
		return
	}

	bookings, err := h.bookingService.ListOwn(c.Request.Context(), middleware.CallerID(c), filter)
	if err != nil {
		writeBookingError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookings": bookings, "count": len(bookings)})
}

// DELETE /bookings/:id cancels a booking. Owners cancel their own; admins can
// cancel anybody's. Cancelling an already cancelled booking is a no-op.
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid booking id"})
		return
	}

	booking, err := h.bookingService.Cancel(c.Request.Context(), id, middleware.CallerID(c), domain.Role(middleware.CallerRole(c)))
	if err != nil {
		writeBookingError(c, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}

// PUT /bookings/:id/carpool attaches or detaches a carpool companion.
func (h *BookingHandler) SetCarpool(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid booking id"})
		return
	}

	var dto domain.SetCarpoolDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	booking, err := h.bookingService.SetCarpoolCompanion(c.Request.Context(), id, middleware.CallerID(c), dto.CompanionID)
	if err != nil {
		writeBookingError(c, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}
