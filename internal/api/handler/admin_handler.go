package handler

import (
	"errors"
	"net/http"
	"strconv"

	"office_parking/internal/api/middleware"
	"office_parking/internal/domain"
	"office_parking/internal/repository"
	"office_parking/internal/service"

	"github.com/gin-gonic/gin"
)

type AdminHandler struct {
	bookingService   *service.BookingService
	executiveService *service.ExecutiveService
	authService      *service.AuthService
}

func NewAdminHandler(
	bs *service.BookingService,
	es *service.ExecutiveService,
	as *service.AuthService,
) *AdminHandler {
	return &AdminHandler{
		bookingService:   bs,
		executiveService: es,
		authService:      as,
	}
}

// GET /admin/bookings?date=YYYY-MM-DD lists pending requests awaiting a
// confirm or reject decision.
func (h *AdminHandler) ListPendingBookings(c *gin.Context) {
	var date *string
	if d := c.Query("date"); d != "" {
		date = &d
	}

	bookings, err := h.bookingService.ListPending(c.Request.Context(), date)
	if err != nil {
		writeBookingError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookings": bookings, "count": len(bookings)})
}

// PUT /admin/bookings/:id/status confirms, rejects (cancels) or reopens a
// booking. Cancelled bookings are final.
func (h *AdminHandler) SetBookingStatus(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid booking id"})
		return
	}

	var dto domain.SetBookingStatusDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	booking, err := h.bookingService.AdminSetStatus(c.Request.Context(), id, dto.Status)
	if err != nil {
		writeBookingError(c, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}

// POST /admin/spot-blocks takes a spot out of service for one day.
func (h *AdminHandler) CreateSpotBlock(c *gin.Context) {
	var dto domain.CreateSpotBlockDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	block, err := h.bookingService.CreateSpotBlock(c.Request.Context(), middleware.CallerID(c), dto)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "parking spot not found"})
		case errors.Is(err, repository.ErrDuplicateEntry):
			c.JSON(http.StatusConflict, gin.H{"error": "spot is already blocked for that day"})
		case errors.Is(err, service.ErrInvalidDate):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create spot block", "details": err.Error()})
		}
		return
	}
	c.JSON(http.StatusCreated, block)
}

// DELETE /admin/spot-blocks/:id
func (h *AdminHandler) DeleteSpotBlock(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid spot block id"})
		return
	}

	if err := h.bookingService.DeleteSpotBlock(c.Request.Context(), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "spot block not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete spot block", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "spot block deleted"})
}

// GET /admin/spot-blocks?from=YYYY-MM-DD&to=YYYY-MM-DD
func (h *AdminHandler) ListSpotBlocks(c *gin.Context) {
	from := c.Query("from")
	to := c.Query("to")
	if from == "" || to == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from and to query parameters are required"})
		return
	}

	blocks, err := h.bookingService.ListSpotBlocks(c.Request.Context(), from, to)
	if err != nil {
		if errors.Is(err, service.ErrInvalidDate) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list spot blocks", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"blocks": blocks, "count": len(blocks)})
}

// PUT /admin/users/:id/role changes a user's role. Promoting to directivo
// assigns a dedicated spot and seeds its standing bookings; demoting revokes
// them.
func (h *AdminHandler) ChangeUserRole(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	var dto domain.ChangeRoleDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	profile, err := h.executiveService.SetRole(c.Request.Context(), id, dto.Role)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		case errors.Is(err, service.ErrNoExecutiveSpotAvailable):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrInvalidStatus):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not change role", "details": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, profile)
}

// PUT /admin/users/:id/verify marks an account as verified so it can book.
func (h *AdminHandler) VerifyUser(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	if err := h.authService.VerifyProfile(c.Request.Context(), id, true); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not verify user", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "user verified"})
}
