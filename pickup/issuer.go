package pickup

import (
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// DefaultTTL is how long an issued PIN stays valid.
const DefaultTTL = 24 * time.Hour

// Issued is a freshly generated PIN with everything that gets stored for it.
type Issued struct {
	PIN       PIN
	Hash      string
	Cipher    string
	ExpiresAt time.Time
}

type Issuer struct {
	cipher *Cipher
	random io.Reader
	cost   int
	ttl    time.Duration
}

type IssuerOption func(*Issuer)

// WithRandom replaces crypto/rand as the PIN source.
func WithRandom(r io.Reader) IssuerOption {
	return func(i *Issuer) { i.random = r }
}

// WithHashCost sets the bcrypt cost. Tests use bcrypt.MinCost.
func WithHashCost(cost int) IssuerOption {
	return func(i *Issuer) { i.cost = cost }
}

func WithTTL(ttl time.Duration) IssuerOption {
	return func(i *Issuer) { i.ttl = ttl }
}

func NewIssuer(c *Cipher, opts ...IssuerOption) *Issuer {
	i := &Issuer{
		cipher: c,
		cost:   bcrypt.DefaultCost,
		ttl:    DefaultTTL,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Issue generates, hashes and seals a new PIN for bookingID.
func (i *Issuer) Issue(bookingID uuid.UUID, now time.Time) (Issued, error) {
	p, err := Generate(i.random)
	if err != nil {
		return Issued{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(p), i.cost)
	if err != nil {
		return Issued{}, fmt.Errorf("hashing pin: %w", err)
	}
	sealed, err := i.cipher.Seal(p, bookingID)
	if err != nil {
		return Issued{}, err
	}
	return Issued{
		PIN:       p,
		Hash:      string(hash),
		Cipher:    sealed,
		ExpiresAt: now.Add(i.ttl),
	}, nil
}

// Reveal recovers the PIN sealed for bookingID.
func (i *Issuer) Reveal(sealed string, bookingID uuid.UUID) (PIN, error) {
	return i.cipher.Open(sealed, bookingID)
}
