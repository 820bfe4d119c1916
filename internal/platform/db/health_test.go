package db

import (
	"encoding/json"
	"testing"
)

func TestPoolStats_JSONKeys(t *testing.T) {
	raw, err := json.Marshal(PoolStats{TotalConns: 4, MaxConns: 20, AcquireDuration: "12ms", Healthy: true})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"total_conns", "idle_conns", "acquired_conns", "max_conns", "acquire_count", "acquire_duration", "healthy"} {
		if _, ok := out[key]; !ok {
			t.Errorf("missing key %q", key)
		}
	}
	if out["healthy"] != true {
		t.Errorf("healthy = %v, want true", out["healthy"])
	}
}
