package pickup

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrAlreadyPickedUp = errors.New("passenger already picked up")
	ErrNotIssued       = errors.New("no pickup pin issued")
	ErrExpired         = errors.New("pickup pin expired")
	ErrLocked          = errors.New("pickup pin verification locked")
	ErrInvalidPIN      = errors.New("invalid pickup pin")
	ErrMalformed       = errors.New("pickup pin must be four digits")
)

// LockedError carries how long until verification is allowed again.
type LockedError struct {
	Remaining time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("too many attempts, try again in %s", e.Remaining.Round(time.Second))
}

func (e *LockedError) Is(target error) bool {
	return target == ErrLocked
}

// InvalidPINError carries how many guesses are left before a lockout.
type InvalidPINError struct {
	AttemptsRemaining int
}

func (e *InvalidPINError) Error() string {
	return fmt.Sprintf("invalid pickup pin, %d attempts remaining", e.AttemptsRemaining)
}

func (e *InvalidPINError) Is(target error) bool {
	return target == ErrInvalidPIN
}

// Record is the verification state of one booking's PIN.
type Record struct {
	Hash        string
	ExpiresAt   time.Time
	Attempts    int
	LockedUntil time.Time
	PickedUp    bool
	PickedUpAt  time.Time
}

// Policy holds the rate-limiting knobs of verification.
type Policy struct {
	MaxAttempts int
	Lockout     time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 5,
		Lockout:     10 * time.Minute,
	}
}

// Verify checks candidate against rec and updates rec in place: failed
// guesses are counted, a lockout is started once MaxAttempts is reached and
// a match marks the passenger picked up. The caller must persist rec even
// when Verify returns an error, and must hold the booking's lock while doing
// so.
func (p Policy) Verify(rec *Record, candidate string, now time.Time) error {
	if rec.PickedUp {
		return ErrAlreadyPickedUp
	}
	if rec.Hash == "" {
		return ErrNotIssued
	}
	if now.After(rec.ExpiresAt) {
		return ErrExpired
	}
	if !rec.LockedUntil.IsZero() {
		if now.Before(rec.LockedUntil) {
			return &LockedError{Remaining: rec.LockedUntil.Sub(now)}
		}
		rec.Attempts = 0
		rec.LockedUntil = time.Time{}
	}
	if !wellFormed(candidate) {
		return ErrMalformed
	}

	if bcrypt.CompareHashAndPassword([]byte(rec.Hash), []byte(candidate)) != nil {
		rec.Attempts++
		if rec.Attempts >= p.MaxAttempts {
			rec.LockedUntil = now.Add(p.Lockout)
		}
		remaining := p.MaxAttempts - rec.Attempts
		if remaining < 0 {
			remaining = 0
		}
		return &InvalidPINError{AttemptsRemaining: remaining}
	}

	rec.PickedUp = true
	rec.PickedUpAt = now
	rec.Attempts = 0
	rec.LockedUntil = time.Time{}
	return nil
}
