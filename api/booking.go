package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Pd-Patel-dev/Waypool-sub000/booking"
	"github.com/Pd-Patel-dev/Waypool-sub000/internal/middleware"
	"github.com/Pd-Patel-dev/Waypool-sub000/lifecycle"
)

type bookingRequest struct {
	NumberOfSeats int    `json:"numberOfSeats"`
	PaymentMethod string `json:"paymentMethod"`
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

type verifyPickupRequest struct {
	PIN string `json:"pin"`
}

type bookingResponse struct {
	ID            uuid.UUID             `json:"id"`
	RideID        uuid.UUID             `json:"rideId"`
	RiderID       string                `json:"riderId"`
	NumberOfSeats int                   `json:"numberOfSeats"`
	Status        booking.Status        `json:"status"`
	PickupStatus  booking.PickupStatus  `json:"pickupStatus"`
	PaymentStatus booking.PaymentStatus `json:"paymentStatus"`
	CreatedAt     time.Time             `json:"createdAt"`
}

func toBookingResponse(b booking.Booking) bookingResponse {
	return bookingResponse{
		ID:            b.ID,
		RideID:        b.RideID,
		RiderID:       b.RiderID,
		NumberOfSeats: b.NumberOfSeats,
		Status:        b.Status,
		PickupStatus:  b.PickupStatus,
		PaymentStatus: b.PaymentStatus,
		CreatedAt:     b.CreatedAt,
	}
}

func (a *API) requestBookingHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	riderID, ok := caller(c)
	if !ok {
		return
	}
	rideID, ok := pathID(c, "rideId")
	if !ok {
		return
	}

	var req bookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.InfoContext(c, "Failed to bind request", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "message": err.Error()})
		return
	}

	b, err := a.svc.RequestBooking(c, lifecycle.BookingRequest{
		RideID:        rideID,
		RiderID:       riderID,
		Seats:         req.NumberOfSeats,
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toBookingResponse(b))
}

// acceptBookingHandler answers with the pickup PIN so the driver app can
// show the rider's confirmation. It is not stored in clear anywhere.
func (a *API) acceptBookingHandler(c *gin.Context) {
	driverID, ok := caller(c)
	if !ok {
		return
	}
	bookingID, ok := pathID(c, "bookingId")
	if !ok {
		return
	}

	pin, err := a.svc.AcceptBooking(c, bookingID, driverID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": booking.StatusConfirmed, "pickupPin": pin})
}

func (a *API) rejectBookingHandler(c *gin.Context) {
	driverID, ok := caller(c)
	if !ok {
		return
	}
	bookingID, ok := pathID(c, "bookingId")
	if !ok {
		return
	}

	// The reason is optional, so an empty body is fine.
	var req rejectRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "message": err.Error()})
			return
		}
	}

	if err := a.svc.RejectBooking(c, bookingID, driverID, req.Reason); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": booking.StatusRejected})
}

func (a *API) verifyPickupHandler(c *gin.Context) {
	driverID, ok := caller(c)
	if !ok {
		return
	}
	bookingID, ok := pathID(c, "bookingId")
	if !ok {
		return
	}

	var req verifyPickupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "message": err.Error()})
		return
	}

	if err := a.svc.VerifyPickupPIN(c, bookingID, driverID, req.PIN); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pickupStatus": booking.PickupPickedUp})
}

func (a *API) revealPINHandler(c *gin.Context) {
	riderID, ok := caller(c)
	if !ok {
		return
	}
	bookingID, ok := pathID(c, "bookingId")
	if !ok {
		return
	}

	pin, err := a.svc.RevealPickupPIN(c, bookingID, riderID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pickupPin": pin})
}
