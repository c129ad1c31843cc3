package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"demobook/database/cache"
	"demobook/models"
	"demobook/services/fulfillment"
	"demobook/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	IdempotencyHeader = "Idempotency-Key"

	defaultListLimit = 50
	maxListLimit     = 500
)

// BookingHandler exposes the fulfillment service over HTTP.
type BookingHandler struct {
	Service     fulfillment.FulfillmentService
	Idempotency cache.IdempotencyStore
	Logger      *zap.Logger

	newID func() string
}

func NewBookingHandler(svc fulfillment.FulfillmentService, idem cache.IdempotencyStore, logger *zap.Logger) *BookingHandler {
	return &BookingHandler{Service: svc, Idempotency: idem, Logger: logger, newID: uuid.NewString}
}

// SubmitBooking handles POST /api/bookings.
func (h *BookingHandler) SubmitBooking(c *gin.Context) {
	var req models.BookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.JSONKindError(c, getLogger(c, h.Logger), "Invalid booking request",
			models.WrapError(models.KindInvalidArgument, err, "request body does not match the booking schema"))
		return
	}

	if key := strings.TrimSpace(c.GetHeader(IdempotencyHeader)); key != "" && h.Idempotency != nil {
		if req.BookingID == "" {
			req.BookingID = h.newID()
		}
		id, created, err := h.Idempotency.Reserve(c.Request.Context(), key, req.BookingID)
		if err != nil {
			getLogger(c, h.Logger).Warn("Idempotency store unavailable, continuing without it", zap.Error(err))
		} else {
			if !created {
				getLogger(c, h.Logger).Info("Replaying idempotent booking request", zap.String("bookingId", id))
			}
			req.BookingID = id
		}
	}

	out, err := h.Service.Submit(c.Request.Context(), req)
	h.respond(c, out, err, true)
}

// GetBooking handles GET /api/bookings/:id.
func (h *BookingHandler) GetBooking(c *gin.Context) {
	b, err := h.Service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		utils.JSONKindError(c, getLogger(c, h.Logger), "Failed to fetch booking", err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// ListBookings handles GET /api/bookings?status=&limit=.
func (h *BookingHandler) ListBookings(c *gin.Context) {
	status := models.BookingStatus(c.DefaultQuery("status", string(models.StatusPartiallyFulfilled)))
	limit := defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			utils.JSONKindError(c, getLogger(c, h.Logger), "Invalid limit",
				models.NewError(models.KindInvalidArgument, "limit must be a positive integer"))
			return
		}
		limit = min(n, maxListLimit)
	}

	bookings, err := h.Service.List(c.Request.Context(), status, limit)
	if err != nil {
		utils.JSONKindError(c, getLogger(c, h.Logger), "Failed to list bookings", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": status, "count": len(bookings), "bookings": bookings})
}

// ResumeBooking handles POST /api/bookings/:id/resume.
func (h *BookingHandler) ResumeBooking(c *gin.Context) {
	out, err := h.Service.Fulfill(c.Request.Context(), c.Param("id"))
	h.respond(c, out, err, false)
}

// AbandonBooking handles POST /api/bookings/:id/abandon.
func (h *BookingHandler) AbandonBooking(c *gin.Context) {
	out, err := h.Service.Abandon(c.Request.Context(), c.Param("id"))
	if err != nil {
		utils.JSONKindError(c, getLogger(c, h.Logger), "Failed to abandon booking", err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// respond writes an outcome. Errors with no booking behind them use the
// plain error body; the rest return the outcome so callers see what succeeded.
func (h *BookingHandler) respond(c *gin.Context, out models.BookingOutcome, err error, submitted bool) {
	if err != nil {
		kind := models.KindOf(err)
		if out.BookingID == "" || kind == models.KindInvalidArgument || kind == models.KindNotFound {
			utils.JSONKindError(c, getLogger(c, h.Logger), "Booking request rejected", err)
			return
		}
		getLogger(c, h.Logger).Warn("Booking stopped short of Notified",
			zap.String("bookingId", out.BookingID),
			zap.String("status", string(out.Status)),
			zap.String("kind", string(kind)))
		c.JSON(utils.StatusForKind(kind), out)
		return
	}

	switch {
	case out.Status == models.StatusNotified && submitted:
		c.JSON(http.StatusCreated, out)
	case out.Status == models.StatusPartiallyFulfilled:
		c.JSON(http.StatusAccepted, out)
	default:
		c.JSON(http.StatusOK, out)
	}
}
