package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestAccessChecksCounter(t *testing.T) {
	before := testutil.ToFloat64(AccessChecks.WithLabelValues("caregiver", AccessResult(false)))
	AccessChecks.WithLabelValues("caregiver", AccessResult(false)).Inc()
	after := testutil.ToFloat64(AccessChecks.WithLabelValues("caregiver", AccessResult(false)))
	if after-before != 1 {
		t.Errorf("expected counter to increase by 1, got %v", after-before)
	}
}

func TestAccessResult(t *testing.T) {
	if AccessResult(true) != "granted" || AccessResult(false) != "denied" {
		t.Error("unexpected access result labels")
	}
}
