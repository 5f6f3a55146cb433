package pickup

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// cipherVersion prefixes every sealed PIN and is authenticated with it.
const cipherVersion byte = 0x01

var hkdfInfo = []byte("waypool.pickup-pin.v1")

var (
	ErrEmptySecret = errors.New("pin secret must not be empty")
	ErrCiphertext  = errors.New("malformed pin ciphertext")
)

// Cipher seals PINs so they can be shown to the rider again.
type Cipher struct {
	key []byte
}

// NewCipher derives the sealing key from secret with HKDF-SHA256.
func NewCipher(secret []byte) (*Cipher, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, hkdfInfo), key); err != nil {
		return nil, fmt.Errorf("deriving pin key: %w", err)
	}
	return &Cipher{key: key}, nil
}

// Seal encrypts p bound to bookingID, returning
// base64url(version || nonce || ciphertext+tag).
func (c *Cipher) Seal(p PIN, bookingID uuid.UUID) (string, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", fmt.Errorf("creating XChaCha20-Poly1305 cipher: %w", err)
	}
	out := make([]byte, 1+chacha20poly1305.NonceSizeX, 1+chacha20poly1305.NonceSizeX+len(p)+chacha20poly1305.Overhead)
	out[0] = cipherVersion
	if _, err := io.ReadFull(rand.Reader, out[1:]); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}
	out = aead.Seal(out, out[1:], []byte(p), aad(bookingID))
	return base64.RawURLEncoding.EncodeToString(out), nil
}

// Open reverses Seal. It fails if the ciphertext was produced for another
// booking or under another secret.
func (c *Cipher) Open(sealed string, bookingID uuid.UUID) (PIN, error) {
	raw, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCiphertext, err)
	}
	if len(raw) < 1+chacha20poly1305.NonceSizeX+chacha20poly1305.Overhead || raw[0] != cipherVersion {
		return "", ErrCiphertext
	}
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", fmt.Errorf("creating XChaCha20-Poly1305 cipher: %w", err)
	}
	nonce := raw[1 : 1+chacha20poly1305.NonceSizeX]
	plain, err := aead.Open(nil, nonce, raw[1+chacha20poly1305.NonceSizeX:], aad(bookingID))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCiphertext, err)
	}
	return PIN(plain), nil
}

func aad(bookingID uuid.UUID) []byte {
	out := make([]byte, 0, 1+len(bookingID))
	out = append(out, cipherVersion)
	return append(out, bookingID[:]...)
}
