package acceptance

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/crypto/bcrypt"

	"github.com/Pd-Patel-dev/Waypool-sub000/api"
	"github.com/Pd-Patel-dev/Waypool-sub000/internal/memstore"
	"github.com/Pd-Patel-dev/Waypool-sub000/internal/middleware"
	"github.com/Pd-Patel-dev/Waypool-sub000/internal/o11y"
	"github.com/Pd-Patel-dev/Waypool-sub000/internal/payments"
	"github.com/Pd-Patel-dev/Waypool-sub000/lifecycle"
	"github.com/Pd-Patel-dev/Waypool-sub000/pickup"
)

// now is the fixed clock of every test server.
var now = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

type TestServer struct {
	Router   *gin.Engine
	Store    *memstore.Store
	Payments *payments.Fake
}

func NewTestServer(t *testing.T) *TestServer {
	t.Helper()

	gin.SetMode(gin.TestMode)

	cipher, err := pickup.NewCipher([]byte("acceptance-secret"))
	if err != nil {
		t.Fatalf("failed to create cipher: %v", err)
	}

	store := memstore.New()
	pay := payments.NewFake()
	svc := lifecycle.New(store, pickup.NewIssuer(cipher, pickup.WithHashCost(bcrypt.MinCost)),
		lifecycle.WithClock(func() time.Time { return now }),
		lifecycle.WithPayments(pay),
	)

	obs := &o11y.Observability{
		Logger:   slog.New(slog.DiscardHandler),
		Registry: prometheus.NewRegistry(),
	}
	a := api.New(svc, obs, gin.HandlersChain{fakeAuthMiddleware()}, "", "")

	return &TestServer{
		Router:   a.Router(),
		Store:    store,
		Payments: pay,
	}
}

// fakeAuthMiddleware extracts user ID from X-User-ID header for testing
func fakeAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader("X-User-ID")
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"code": "unauthorized", "message": "authentication required"})
			c.Abort()
			return
		}
		c.Set(middleware.UserIDKey, userID)
		c.Next()
	}
}

func as(userID string) map[string]string {
	return map[string]string{"X-User-ID": userID}
}

// Helper methods for making requests
func (ts *TestServer) GET(path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	ts.Router.ServeHTTP(w, req)
	return w
}

func (ts *TestServer) POST(path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	ts.Router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	return v
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, status int) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, w.Code, w.Body.String())
	}
}

type place struct {
	Address   string  `json:"address"`
	City      string  `json:"city"`
	State     string  `json:"state"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

var (
	austin = place{"1 Congress Ave", "Austin", "TX", 30.2672, -97.7431}
	dallas = place{"500 Main St", "Dallas", "TX", 32.7767, -96.797}
)

type rideRequest struct {
	Origin        place  `json:"origin"`
	Destination   place  `json:"destination"`
	DepartureDate string `json:"departureDate"`
	DepartureTime string `json:"departureTime"`
	TotalSeats    int    `json:"totalSeats"`
	PricePerSeat  int64  `json:"pricePerSeatCents"`
	Draft         bool   `json:"draft,omitempty"`
}

type rideResponse struct {
	ID             string `json:"id"`
	DriverID       string `json:"driverId"`
	TotalSeats     int    `json:"totalSeats"`
	AvailableSeats int    `json:"availableSeats"`
	Status         string `json:"status"`
}

type bookingResponse struct {
	ID            string `json:"id"`
	RideID        string `json:"rideId"`
	RiderID       string `json:"riderId"`
	NumberOfSeats int    `json:"numberOfSeats"`
	Status        string `json:"status"`
	PickupStatus  string `json:"pickupStatus"`
	PaymentStatus string `json:"paymentStatus"`
}

func newRide(seats int, at string) rideRequest {
	return rideRequest{
		Origin:        austin,
		Destination:   dallas,
		DepartureDate: "03/20/2026",
		DepartureTime: at,
		TotalSeats:    seats,
		PricePerSeat:  1500,
	}
}

// CreateRide posts a ride for driverID and returns it.
func (ts *TestServer) CreateRide(t *testing.T, driverID string, req rideRequest) rideResponse {
	t.Helper()
	w := ts.POST("/driver/rides", req, as(driverID))
	expectStatus(t, w, http.StatusCreated)
	return decode[rideResponse](t, w)
}

// RequestBooking books seats for riderID with a saved card.
func (ts *TestServer) RequestBooking(t *testing.T, riderID, rideID string, seats int) bookingResponse {
	t.Helper()
	w := ts.POST("/rider/rides/"+rideID+"/bookings", map[string]any{
		"numberOfSeats": seats,
		"paymentMethod": "pm_card_visa",
	}, as(riderID))
	expectStatus(t, w, http.StatusCreated)
	return decode[bookingResponse](t, w)
}

// AcceptBooking accepts as driverID and returns the pickup PIN.
func (ts *TestServer) AcceptBooking(t *testing.T, driverID, bookingID string) string {
	t.Helper()
	w := ts.POST("/driver/bookings/"+bookingID+"/accept", nil, as(driverID))
	expectStatus(t, w, http.StatusOK)
	resp := decode[struct {
		PickupPIN string `json:"pickupPin"`
	}](t, w)
	return resp.PickupPIN
}
