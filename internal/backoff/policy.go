// Package backoff computes retry delays and runs retry loops for outbound calls.
package backoff

import (
	"math"
	"math/rand"
	"time"
)

// Policy is an exponential backoff envelope.
type Policy struct {
	Initial time.Duration
	Max     time.Duration
	Factor  float64
	// Jitter is a fraction in [0,1] of extra random delay added to each step.
	Jitter float64
}

// ProviderPolicy is used by the LLM provider clients: 250ms doubling up to 2s,
// no jitter.
func ProviderPolicy() Policy {
	return Policy{Initial: 250 * time.Millisecond, Max: 2 * time.Second, Factor: 2}
}

// Delay returns the wait before retry number attempt (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	return p.delay(attempt, rand.Float64()) // #nosec G404 -- jitter only
}

func (p Policy) delay(attempt int, r float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	factor := p.Factor
	if factor < 1 {
		factor = 1
	}
	base := float64(p.Initial.Milliseconds()) * math.Pow(factor, float64(attempt-1))
	total := base + base*p.Jitter*r
	if p.Max > 0 {
		total = math.Min(total, float64(p.Max.Milliseconds()))
	}
	return time.Duration(math.Round(total)) * time.Millisecond
}

// Schedule lists the first n delays of the policy without jitter.
func (p Policy) Schedule(n int) []time.Duration {
	out := make([]time.Duration, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, p.delay(i, 0))
	}
	return out
}
