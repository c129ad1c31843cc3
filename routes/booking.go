package routes

import (
	"demobook/handlers"

	"github.com/gin-gonic/gin"
)

// RegisterBookingRoutes registers all endpoints for booking fulfillment.
func RegisterBookingRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	bookings := r.Group("/api/bookings")
	{
		bookings.POST("", hb.Booking.SubmitBooking)
		bookings.GET("", hb.Booking.ListBookings)
		bookings.GET("/:id", hb.Booking.GetBooking)
		bookings.POST("/:id/resume", hb.Booking.ResumeBooking)
		bookings.POST("/:id/abandon", hb.Booking.AbandonBooking)
	}
}
