package routing

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsRateLimit(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("rate limit exceeded"), true},
		{errors.New("Rate Limit reached for model"), true},
		{errors.New("monthly quota exceeded"), true},
		{errors.New("http 429: slow down"), true},
		{errors.New("Too Many Requests"), true},
		{fmt.Errorf("completion call: %w", errors.New("429")), true},
		{errors.New("connection refused"), false},
		{errors.New("invalid api key"), false},
	}

	for _, c := range cases {
		if got := IsRateLimit(c.err); got != c.want {
			t.Errorf("IsRateLimit(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}
