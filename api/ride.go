package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Pd-Patel-dev/Waypool-sub000/internal/middleware"
	"github.com/Pd-Patel-dev/Waypool-sub000/ride"
)

type createRideRequest struct {
	Origin        ride.Place         `json:"origin"`
	Destination   ride.Place         `json:"destination"`
	DepartureDate string             `json:"departureDate"`
	DepartureTime string             `json:"departureTime"`
	Recurrence    *recurrenceRequest `json:"recurrence"`
	TotalSeats    int                `json:"totalSeats"`
	PricePerSeat  int64              `json:"pricePerSeatCents"`
	Draft         bool               `json:"draft"`
}

type recurrenceRequest struct {
	Pattern string `json:"pattern"`
	EndDate string `json:"endDate"`
}

type rideResponse struct {
	ID             uuid.UUID        `json:"id"`
	DriverID       string           `json:"driverId"`
	Origin         ride.Place       `json:"origin"`
	Destination    ride.Place       `json:"destination"`
	DepartureAt    time.Time        `json:"departureAt"`
	Recurrence     *ride.Recurrence `json:"recurrence,omitempty"`
	TotalSeats     int              `json:"totalSeats"`
	AvailableSeats int              `json:"availableSeats"`
	PricePerSeat   int64            `json:"pricePerSeatCents"`
	Status         ride.Status      `json:"status"`
	TotalEarnings  *int64           `json:"totalEarningsCents,omitempty"`
}

func toRideResponse(r ride.Ride) rideResponse {
	resp := rideResponse{
		ID:             r.ID,
		DriverID:       r.DriverID,
		Origin:         r.Origin(),
		Destination:    r.Destination(),
		DepartureAt:    r.DepartureAt,
		TotalSeats:     r.TotalSeats,
		AvailableSeats: r.AvailableSeats,
		PricePerSeat:   r.PricePerSeat,
		Status:         r.Status,
	}
	if rec, ok := r.Recurrence(); ok {
		resp.Recurrence = &rec
	}
	if r.TotalEarnings.Valid {
		resp.TotalEarnings = &r.TotalEarnings.Int64
	}
	return resp
}

func (a *API) createRideHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	driverID, ok := caller(c)
	if !ok {
		return
	}

	var req createRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.InfoContext(c, "Failed to bind request", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "message": err.Error()})
		return
	}

	rr := ride.Request{
		DriverID:      driverID,
		Origin:        req.Origin,
		Destination:   req.Destination,
		DepartureDate: req.DepartureDate,
		DepartureTime: req.DepartureTime,
		TotalSeats:    req.TotalSeats,
		PricePerSeat:  req.PricePerSeat,
		Draft:         req.Draft,
	}
	if req.Recurrence != nil {
		end, err := ride.ParseDeparture(req.Recurrence.EndDate, "00:00", a.svc.Policy().Location)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "field": "recurrence.endDate", "message": err.Error()})
			return
		}
		rr.Recurrence = &ride.Recurrence{Pattern: ride.RecurrencePattern(req.Recurrence.Pattern), EndDate: end}
	}

	r, err := a.svc.CreateRide(c, rr)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toRideResponse(r))
}

func (a *API) publishRideHandler(c *gin.Context) {
	driverID, ok := caller(c)
	if !ok {
		return
	}
	rideID, ok := pathID(c, "rideId")
	if !ok {
		return
	}

	r, err := a.svc.PublishRide(c, rideID, driverID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toRideResponse(r))
}

func (a *API) startRideHandler(c *gin.Context) {
	driverID, ok := caller(c)
	if !ok {
		return
	}
	rideID, ok := pathID(c, "rideId")
	if !ok {
		return
	}

	if err := a.svc.StartRide(c, rideID, driverID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": ride.StatusInProgress})
}

func (a *API) completeRideHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	driverID, ok := caller(c)
	if !ok {
		return
	}
	rideID, ok := pathID(c, "rideId")
	if !ok {
		return
	}

	var at ride.Point
	if err := c.ShouldBindJSON(&at); err != nil {
		logger.InfoContext(c, "Failed to bind request", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "message": err.Error()})
		return
	}

	gross, err := a.svc.CompleteRide(c, rideID, driverID, at)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": ride.StatusCompleted, "totalEarningsCents": gross})
}

func (a *API) cancelRideHandler(c *gin.Context) {
	driverID, ok := caller(c)
	if !ok {
		return
	}
	rideID, ok := pathID(c, "rideId")
	if !ok {
		return
	}

	if err := a.svc.CancelRide(c, rideID, driverID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": ride.StatusCancelled})
}

func (a *API) rideEarningsHandler(c *gin.Context) {
	driverID, ok := caller(c)
	if !ok {
		return
	}
	rideID, ok := pathID(c, "rideId")
	if !ok {
		return
	}

	b, err := a.svc.RideEarnings(c, rideID, driverID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}
