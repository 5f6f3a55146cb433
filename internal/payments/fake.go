package payments

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/Pd-Patel-dev/Waypool-sub000/lifecycle"
)

var ErrDeclined = errors.New("payment declined")

// Fake is an in-memory gateway used by tests and local runs.
type Fake struct {
	mu       sync.Mutex
	holds    map[string]lifecycle.Authorization
	captured map[string]bool
	refunded map[string]bool

	// Decline makes Authorize fail with ErrDeclined.
	Decline bool
	// FailCapture makes Capture return this error.
	FailCapture error
}

func NewFake() *Fake {
	return &Fake{
		holds:    make(map[string]lifecycle.Authorization),
		captured: make(map[string]bool),
		refunded: make(map[string]bool),
	}
}

func (f *Fake) Authorize(_ context.Context, auth lifecycle.Authorization) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Decline {
		return "", ErrDeclined
	}
	ref := "pi_" + auth.BookingID.String()
	f.holds[ref] = auth
	return ref, nil
}

func (f *Fake) Capture(_ context.Context, reference string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailCapture != nil {
		return f.FailCapture
	}
	if _, ok := f.holds[reference]; !ok {
		return errors.New("unknown payment reference")
	}
	f.captured[reference] = true
	return nil
}

func (f *Fake) Refund(_ context.Context, reference string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.holds[reference]; !ok {
		return errors.New("unknown payment reference")
	}
	f.refunded[reference] = true
	return nil
}

// Hold returns the authorization behind reference.
func (f *Fake) Hold(reference string) (lifecycle.Authorization, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.holds[reference]
	return a, ok
}

func (f *Fake) Captured(reference string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.captured[reference]
}

func (f *Fake) Refunded(reference string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refunded[reference]
}

// References lists every reference ever authorized, sorted.
func (f *Fake) References() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	refs := make([]string, 0, len(f.holds))
	for ref := range f.holds {
		refs = append(refs, ref)
	}
	slices.Sort(refs)
	return refs
}
