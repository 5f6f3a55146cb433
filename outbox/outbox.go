// Package outbox carries side effects out of lifecycle transactions.
// Events are written in the same transaction as the state change that
// causes them and delivered afterwards by a Dispatcher, so a crash or a
// failing collaborator can delay a notification or a capture but never undo
// or half-apply a committed transition.
package outbox

import (
	"database/sql"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

type Kind string

const (
	KindNotify         Kind = "notify"
	KindPaymentCapture Kind = "payment.capture"
	KindPaymentRefund  Kind = "payment.refund"
)

type Event struct {
	ID            uuid.UUID      `db:"id"`
	Kind          Kind           `db:"kind"`
	Payload       []byte         `db:"payload"`
	Attempts      int            `db:"attempts"`
	NextAttemptAt time.Time      `db:"next_attempt_at"`
	DeliveredAt   sql.NullTime   `db:"delivered_at"`
	DeadAt        sql.NullTime   `db:"dead_at"`
	LastError     sql.NullString `db:"last_error"`
	CreatedAt     time.Time      `db:"created_at"`
}

// Notification is the payload of a KindNotify event.
type Notification struct {
	UserID string            `json:"userId"`
	Type   string            `json:"type"`
	Data   map[string]string `json:"data,omitempty"`
}

// PaymentAction is the payload of capture and refund events.
type PaymentAction struct {
	BookingID uuid.UUID `json:"bookingId"`
	Reference string    `json:"reference"`
}

// Notify builds a notification event for userID.
func Notify(now time.Time, userID, eventType string, data map[string]string) Event {
	payload, _ := json.Marshal(Notification{UserID: userID, Type: eventType, Data: data})
	return newEvent(now, KindNotify, payload)
}

// Capture builds an event asking the payment gateway to capture ref.
func Capture(now time.Time, bookingID uuid.UUID, ref string) Event {
	payload, _ := json.Marshal(PaymentAction{BookingID: bookingID, Reference: ref})
	return newEvent(now, KindPaymentCapture, payload)
}

// Refund builds an event asking the payment gateway to release ref.
func Refund(now time.Time, bookingID uuid.UUID, ref string) Event {
	payload, _ := json.Marshal(PaymentAction{BookingID: bookingID, Reference: ref})
	return newEvent(now, KindPaymentRefund, payload)
}

func newEvent(now time.Time, kind Kind, payload []byte) Event {
	return Event{
		ID:            uuid.New(),
		Kind:          kind,
		Payload:       payload,
		NextAttemptAt: now,
		CreatedAt:     now,
	}
}

func (e Event) Notification() (Notification, error) {
	var n Notification
	err := json.Unmarshal(e.Payload, &n)
	return n, err
}

func (e Event) PaymentAction() (PaymentAction, error) {
	var p PaymentAction
	err := json.Unmarshal(e.Payload, &p)
	return p, err
}
