package hipaa

import (
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
	"testing"

	"github.com/carelink/carelink/internal/platform/apperr"
)

func TestAddDifferentialPrivacyNoise_RejectsBadEpsilon(t *testing.T) {
	n := NewNoiseSourceWithSeed(1)
	for _, eps := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		_, err := n.AddDifferentialPrivacyNoise("70.5", eps)
		if !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("epsilon %v: expected validation error, got %v", eps, err)
		}
	}
}

func TestAddDifferentialPrivacyNoise_PerturbsDecimalsOnly(t *testing.T) {
	n := NewNoiseSourceWithSeed(42)
	got, err := n.AddDifferentialPrivacyNoise("Weight 70.5 kg, BP 120/80", 1.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !regexp.MustCompile(`^Weight \d+\.\d{2} kg, BP 120/80$`).MatchString(got) {
		t.Errorf("unexpected output %q", got)
	}
}

func TestAddDifferentialPrivacyNoise_FlooredAtZero(t *testing.T) {
	n := NewNoiseSourceWithSeed(7)
	for i := 0; i < 50; i++ {
		got, err := n.AddDifferentialPrivacyNoise("0.01", 0.001)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if strings.HasPrefix(got, "-") {
			t.Fatalf("negative value %q", got)
		}
	}
}

func TestAddDifferentialPrivacyNoise_Deterministic(t *testing.T) {
	a, _ := NewNoiseSourceWithSeed(99).AddDifferentialPrivacyNoise("36.6", 0.5)
	b, _ := NewNoiseSourceWithSeed(99).AddDifferentialPrivacyNoise("36.6", 0.5)
	if a != b {
		t.Errorf("same seed gave %q and %q", a, b)
	}
}

func TestLaplace_CenteredOnZero(t *testing.T) {
	n := NewNoiseSourceWithSeed(3)
	const draws = 20000
	var sum float64
	for i := 0; i < draws; i++ {
		sum += n.laplace(1)
	}
	if mean := sum / draws; math.Abs(mean) > 0.1 {
		t.Errorf("mean %s too far from zero", strconv.FormatFloat(mean, 'f', 3, 64))
	}
}
