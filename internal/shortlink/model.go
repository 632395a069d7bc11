package shortlink

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Link is a stored short link. This service only reads links.
type Link struct {
	ID         uuid.UUID
	Slug       string
	Target     string
	Active     bool
	Password   string // empty means unprotected
	Expiration Expiration
	CreatedAt  time.Time
	UpdatedAt  time.Time // expiration window starts here
}

// Protected reports whether the link requires a password.
func (l Link) Protected() bool { return l.Password != "" }

// Expiration is how long a link stays valid after its last update.
type Expiration time.Duration

// Never disables expiry.
const Never Expiration = -1

// ExpireAfter returns an Expiration of d, or Never when d is negative.
func ExpireAfter(d time.Duration) Expiration {
	if d < 0 {
		return Never
	}
	return Expiration(d)
}

func (e Expiration) IsNever() bool { return e < 0 }

func (e Expiration) Duration() time.Duration { return time.Duration(e) }

// ExpiredAt reports whether a link last updated at updatedAt is expired at now.
// The boundary instant itself is still valid.
func (e Expiration) ExpiredAt(updatedAt, now time.Time) bool {
	if e.IsNever() {
		return false
	}
	return now.After(updatedAt.Add(e.Duration()))
}

// String returns the stored text form: "-1" or whole seconds.
func (e Expiration) String() string {
	if e.IsNever() {
		return "-1"
	}
	return strconv.FormatInt(int64(e.Duration()/time.Second), 10)
}

var errMalformedExpiration = errors.New("malformed expiration")

// ParseExpiration reads the stored text form. "", "never" and any negative
// number mean Never; a non-negative integer is a number of seconds.
func ParseExpiration(s string) (Expiration, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "never") {
		return Never, nil
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w %q", errMalformedExpiration, s)
	}
	if n < 0 {
		return Never, nil
	}
	if n > math.MaxInt64/int64(time.Second) {
		// longer than time.Duration can hold; effectively unlimited
		return Never, nil
	}
	return Expiration(time.Duration(n) * time.Second), nil
}
