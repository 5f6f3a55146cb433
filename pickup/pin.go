// Package pickup issues and checks the short numeric PIN a rider shows the
// driver at pickup.
//
// A PIN is stored twice: as a bcrypt hash that verification compares
// against, and as an XChaCha20-Poly1305 ciphertext under a key derived from
// a server secret so the rider can be shown the PIN again. The plain value
// is never persisted.
package pickup

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// PIN is a four digit pickup code.
type PIN string

const Digits = 4

// maxDraws bounds rejection sampling so a broken random source cannot spin
// forever.
const maxDraws = 1000

var ErrExhausted = errors.New("no acceptable pin drawn")

// popular holds codes people pick often that the run and repeat checks
// miss.
var popular = map[PIN]bool{
	"1212": true,
	"1122": true,
	"1004": true,
	"2000": true,
	"2580": true,
	"6969": true,
	"0852": true,
}

// Denied reports whether p is too easy to guess: all digits equal, a
// strictly ascending or descending run, or a popular code.
func Denied(p PIN) bool {
	if !wellFormed(string(p)) {
		return true
	}
	if popular[p] {
		return true
	}
	repeated, ascending, descending := true, true, true
	for i := 1; i < len(p); i++ {
		d := int(p[i]) - int(p[i-1])
		if d != 0 {
			repeated = false
		}
		if d != 1 {
			ascending = false
		}
		if d != -1 {
			descending = false
		}
	}
	return repeated || ascending || descending
}

// Generate draws uniformly random PINs from r until one passes Denied. A nil
// r means crypto/rand.
func Generate(r io.Reader) (PIN, error) {
	if r == nil {
		r = rand.Reader
	}
	var buf [2]byte
	for range maxDraws {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return "", fmt.Errorf("reading random source: %w", err)
		}
		v := binary.BigEndian.Uint16(buf[:])
		// 60000 is the largest multiple of 10000 below 65536.
		if v >= 60000 {
			continue
		}
		p := PIN(fmt.Sprintf("%04d", v%10000))
		if !Denied(p) {
			return p, nil
		}
	}
	return "", ErrExhausted
}

func wellFormed(s string) bool {
	if len(s) != Digits {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
