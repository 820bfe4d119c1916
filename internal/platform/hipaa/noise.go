package hipaa

import (
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/carelink/carelink/internal/platform/apperr"
)

// NoiseSource perturbs numeric values with Laplace noise.
type NoiseSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewNoiseSource seeds from the clock; NewNoiseSourceWithSeed is for tests.
func NewNoiseSource() *NoiseSource {
	return NewNoiseSourceWithSeed(time.Now().UnixNano())
}

func NewNoiseSourceWithSeed(seed int64) *NoiseSource {
	return &NoiseSource{rng: rand.New(rand.NewSource(seed))}
}

// laplace draws from Laplace(0, scale) by inverse CDF.
func (n *NoiseSource) laplace(scale float64) float64 {
	n.mu.Lock()
	u := n.rng.Float64() - 0.5
	n.mu.Unlock()
	sign := 1.0
	if u < 0 {
		sign = -1.0
	}
	return -scale * sign * math.Log(1-2*math.Abs(u))
}

// AddDifferentialPrivacyNoise adds Laplace(0, 1/epsilon) noise to every
// decimal token in text. Results are floored at zero and printed with two
// decimals. Other text is left as is.
func (n *NoiseSource) AddDifferentialPrivacyNoise(text string, epsilon float64) (string, error) {
	if epsilon <= 0 || math.IsNaN(epsilon) || math.IsInf(epsilon, 0) {
		return "", apperr.Validation("epsilon must be a positive number, got %v", epsilon)
	}
	scale := 1 / epsilon
	return decimalPattern.ReplaceAllStringFunc(text, func(tok string) string {
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return tok
		}
		return fmt.Sprintf("%.2f", math.Max(0, v+n.laplace(scale)))
	}), nil
}
