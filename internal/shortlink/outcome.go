package shortlink

import (
	"strings"
	"unicode"
)

// Code is a wire code sent to the edge caller in place of a target.
// The string values are a stable contract.
type Code string

const (
	CodeMissing           Code = "Missing"
	CodeExpired           Code = "Expired"
	CodeDisabled          Code = "Disabled"
	CodeError             Code = "Error"
	CodePasswordRequired  Code = "PasswordRequired"
	CodeIncorrectPassword Code = "IncorrectPassword"
)

var codes = []Code{
	CodeMissing,
	CodeExpired,
	CodeDisabled,
	CodeError,
	CodePasswordRequired,
	CodeIncorrectPassword,
}

// Codes returns every wire code.
func Codes() []Code {
	out := make([]Code, len(codes))
	copy(out, codes)
	return out
}

// ParseCode matches s exactly against the wire vocabulary.
func ParseCode(s string) (Code, bool) {
	for _, c := range codes {
		if string(c) == s {
			return c, true
		}
	}
	return "", false
}

// PathSegment returns the code in kebab case, e.g. "password-required".
func (c Code) PathSegment() string {
	var b strings.Builder
	for i, r := range string(c) {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('-')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}

const (
	KindRedirect = "redirect"
	KindCode     = "code"
)

// Result is what the edge caller receives: a redirect target or a wire code.
type Result struct {
	Kind   string `json:"kind"`
	Target string `json:"target,omitempty"`
	Value  Code   `json:"value,omitempty"`
}

func (r Result) IsRedirect() bool { return r.Kind == KindRedirect }

// Label names the result for metrics and logs.
func (r Result) Label() string {
	if r.IsRedirect() {
		return KindRedirect
	}
	return string(r.Value)
}

// Encode maps a validation outcome to its wire form.
func Encode(o Outcome) Result {
	if o.Allowed {
		return Result{Kind: KindRedirect, Target: o.Target}
	}
	return Result{Kind: KindCode, Value: o.Code}
}

// ErrorResult is returned when the link could not be looked up.
func ErrorResult() Result {
	return Encode(Deny(CodeError))
}
