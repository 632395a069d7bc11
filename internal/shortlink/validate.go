package shortlink

import (
	"crypto/subtle"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Outcome is the terminal state of validating one access to a link.
// An allowed outcome carries the target; a denied one carries a Code.
type Outcome struct {
	Allowed bool
	Target  string
	Code    Code
}

func Allow(target string) Outcome { return Outcome{Allowed: true, Target: target} }

func Deny(code Code) Outcome { return Outcome{Code: code} }

// Validate decides whether an access may proceed. Checks run in a fixed order:
// existence, active flag, password, expiration. An empty supplied password
// means none was given.
func Validate(link Link, found bool, suppliedPassword string, now time.Time) Outcome {
	if !found {
		return Deny(CodeMissing)
	}
	if !link.Active {
		return Deny(CodeDisabled)
	}
	if link.Protected() {
		if suppliedPassword == "" {
			return Deny(CodePasswordRequired)
		}
		if !passwordMatches(link.Password, suppliedPassword) {
			return Deny(CodeIncorrectPassword)
		}
	}
	if link.Expiration.ExpiredAt(link.UpdatedAt, now) {
		return Deny(CodeExpired)
	}
	return Allow(link.Target)
}

func passwordMatches(stored, supplied string) bool {
	if isBcryptHash(stored) {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(supplied)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(supplied)) == 1
}

func isBcryptHash(s string) bool {
	if len(s) != 60 {
		return false
	}
	return strings.HasPrefix(s, "$2a$") ||
		strings.HasPrefix(s, "$2b$") ||
		strings.HasPrefix(s, "$2y$")
}
