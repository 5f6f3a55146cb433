package api

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Pd-Patel-dev/Waypool-sub000/booking"
	"github.com/Pd-Patel-dev/Waypool-sub000/capacity"
	"github.com/Pd-Patel-dev/Waypool-sub000/internal/middleware"
	"github.com/Pd-Patel-dev/Waypool-sub000/lifecycle"
	"github.com/Pd-Patel-dev/Waypool-sub000/pickup"
	"github.com/Pd-Patel-dev/Waypool-sub000/ride"
)

// conflictCodes maps state errors to their response code, all sent as 409.
var conflictCodes = []struct {
	err  error
	code string
}{
	{lifecycle.ErrConflictingSchedule, "conflicting_schedule"},
	{lifecycle.ErrDuplicateRide, "duplicate_ride"},
	{lifecycle.ErrConflictingActiveRide, "conflicting_active_ride"},
	{lifecycle.ErrNoConfirmedBookings, "no_confirmed_bookings"},
	{lifecycle.ErrDuplicateBooking, "duplicate_booking"},
	{lifecycle.ErrInvalidState, "invalid_state"},
	{booking.ErrAlreadyConfirmed, "already_confirmed"},
	{booking.ErrAlreadyRejected, "already_rejected"},
	{booking.ErrAlreadyCancelled, "already_cancelled"},
	{booking.ErrInvalidTransition, "invalid_state"},
	{pickup.ErrAlreadyPickedUp, "already_picked_up"},
	{pickup.ErrExpired, "pin_expired"},
	{pickup.ErrNotIssued, "pin_not_issued"},
}

// writeError answers c with the status and body for err. Unexpected errors
// are logged and reported as 500 without detail.
func writeError(c *gin.Context, err error) {
	logger := middleware.GetLogger(c)

	var (
		validation   *lifecycle.ValidationError
		insufficient *capacity.InsufficientError
		notPickedUp  *lifecycle.NotPickedUpError
		tooFar       *lifecycle.TooFarError
		locked       *pickup.LockedError
		invalidPIN   *pickup.InvalidPINError
	)

	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "field": validation.Field, "message": validation.Reason})
	case errors.Is(err, pickup.ErrMalformed):
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "field": "pin", "message": err.Error()})
	case errors.As(err, &invalidPIN):
		c.JSON(http.StatusBadRequest, gin.H{"code": "invalid_pin", "message": err.Error(), "attemptsRemaining": invalidPIN.AttemptsRemaining})
	case errors.Is(err, lifecycle.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"code": "forbidden", "message": err.Error()})
	case errors.Is(err, ride.ErrNotFound), errors.Is(err, booking.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "message": err.Error()})
	case errors.As(err, &locked):
		retry := int(math.Ceil(locked.Remaining.Seconds()))
		c.Header("Retry-After", strconv.Itoa(retry))
		c.JSON(http.StatusLocked, gin.H{"code": "locked", "message": err.Error(), "retryAfterSeconds": retry})
	case errors.As(err, &insufficient):
		c.JSON(http.StatusConflict, gin.H{
			"code":      "insufficient_capacity",
			"message":   err.Error(),
			"requested": insufficient.Requested,
			"available": insufficient.Available,
		})
	case errors.As(err, &notPickedUp):
		c.JSON(http.StatusConflict, gin.H{"code": "passengers_not_picked_up", "message": err.Error(), "outstanding": notPickedUp.Outstanding})
	case errors.As(err, &tooFar):
		c.JSON(http.StatusConflict, gin.H{
			"code":           "too_far_from_destination",
			"message":        err.Error(),
			"distanceMeters": math.Round(tooFar.DistanceMeters),
			"radiusMeters":   tooFar.RadiusMeters,
		})
	case errors.Is(err, lifecycle.ErrPaymentAuthorization):
		logger.WarnContext(c, "payment authorization failed", "error", err)
		c.JSON(http.StatusPaymentRequired, gin.H{"code": "payment_failed", "message": "payment could not be authorized"})
	default:
		for _, cc := range conflictCodes {
			if errors.Is(err, cc.err) {
				body := gin.H{"code": cc.code, "message": err.Error()}
				if id, ok := lifecycle.ConflictingRide(err); ok {
					body["conflictingRideId"] = id
				}
				c.JSON(http.StatusConflict, body)
				return
			}
		}
		logger.ErrorContext(c, "unexpected error", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": "internal_error", "message": "internal server error"})
	}
}
