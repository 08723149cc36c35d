package routing

import (
	"errors"
	"strings"
)

// ErrExhausted is returned when every provider/model combination has
// been tried up to the attempts budget without a successful call.
// Callers must treat it as "classification unavailable", not as a
// fatal process error.
var ErrExhausted = errors.New("all AI providers exhausted")

// rateLimitSignatures are matched case-insensitively against error
// text to detect rate limiting regardless of which upstream produced
// the error.
var rateLimitSignatures = []string{
	"429",
	"rate limit",
	"quota exceeded",
	"too many requests",
}

// IsRateLimit reports whether err looks like an upstream rate-limit
// rejection.
func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}

	s := strings.ToLower(err.Error())
	for _, sig := range rateLimitSignatures {
		if strings.Contains(s, sig) {
			return true
		}
	}
	return false
}
