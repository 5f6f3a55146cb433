package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Pd-Patel-dev/Waypool-sub000/internal/middleware"
	"github.com/Pd-Patel-dev/Waypool-sub000/internal/o11y"
	"github.com/Pd-Patel-dev/Waypool-sub000/lifecycle"
)

type API struct {
	r   *gin.Engine
	svc *lifecycle.Service
}

// New builds the router. auth runs in front of every driver and rider
// route and must leave the caller's id under middleware.UserIDKey.
func New(svc *lifecycle.Service, obs *o11y.Observability, auth gin.HandlersChain, metricsUsername, metricsPassword string) *API {
	a := &API{
		r:   gin.New(),
		svc: svc,
	}

	// Handlers pass c as the context; this makes it carry the request's
	// span and deadline.
	a.r.ContextWithFallback = true

	a.r.Use(gin.Recovery(), middleware.Tracing(), middleware.Logging(obs.Logger), middleware.Metrics(obs.Registry))

	a.r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	metrics := gin.WrapH(promhttp.HandlerFor(obs.Registry, promhttp.HandlerOpts{}))
	if metricsUsername != "" {
		a.r.GET("/metrics", gin.BasicAuth(gin.Accounts{metricsUsername: metricsPassword}), metrics)
	} else {
		a.r.GET("/metrics", metrics)
	}

	driver := a.r.Group("/driver", auth...)
	{
		driver.POST("/rides", a.createRideHandler)
		driver.POST("/rides/:rideId/publish", a.publishRideHandler)
		driver.POST("/rides/:rideId/start", a.startRideHandler)
		driver.POST("/rides/:rideId/complete", a.completeRideHandler)
		driver.POST("/rides/:rideId/cancel", a.cancelRideHandler)
		driver.GET("/rides/:rideId/earnings", a.rideEarningsHandler)
		driver.POST("/bookings/:bookingId/accept", a.acceptBookingHandler)
		driver.POST("/bookings/:bookingId/reject", a.rejectBookingHandler)
		driver.POST("/bookings/:bookingId/verify-pickup", a.verifyPickupHandler)
	}

	rider := a.r.Group("/rider", auth...)
	{
		rider.POST("/rides/:rideId/bookings", a.requestBookingHandler)
		rider.GET("/bookings/:bookingId/pin", a.revealPINHandler)
	}

	return a
}

func (a *API) Router() *gin.Engine {
	return a.r
}

// caller returns the authenticated user id, answering 401 when absent.
func caller(c *gin.Context) (string, bool) {
	id, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"code": "unauthorized", "message": "authentication required"})
	}
	return id, ok
}

func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "field": name, "message": "must be a uuid"})
		return uuid.Nil, false
	}
	return id, true
}
