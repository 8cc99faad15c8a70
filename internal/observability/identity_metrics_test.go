package observability

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/geocoder89/projecthub/internal/identity"
	"github.com/prometheus/client_golang/prometheus"
)

func TestClassifyIdentityErr(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{fmt.Errorf("identity ping: %w", identity.ErrUnreachable), "unreachable"},
		{identity.ErrForbidden, "forbidden"},
		{identity.ErrNotFound, "not_found"},
		{identity.ErrConflict, "conflict"},
		{errors.New("weird"), "error"},
	}

	for _, tt := range tests {
		if got := classifyIdentityErr(tt.err); got != tt.want {
			t.Fatalf("classify(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func gaugeValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name && len(mf.GetMetric()) > 0 {
			return mf.GetMetric()[0].GetGauge().GetValue()
		}
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

func TestPromImplementsBreakerObserver(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewProm(reg)

	var obs identity.CallObserver = p
	obs.ObserveIdentityCall("ping", 10*time.Millisecond, identity.ErrUnreachable)
	obs.SetIdentityCircuitState("open")

	if got := gaugeValue(t, reg, "projecthub_identity_circuit_open"); got != 1 {
		t.Fatalf("circuit gauge = %v, want 1", got)
	}

	obs.SetIdentityCircuitState("half_open")
	if got := gaugeValue(t, reg, "projecthub_identity_circuit_open"); got != 1 {
		t.Fatalf("half-open should still report 1, got %v", got)
	}

	obs.SetIdentityCircuitState("closed")
	if got := gaugeValue(t, reg, "projecthub_identity_circuit_open"); got != 0 {
		t.Fatalf("circuit gauge = %v, want 0", got)
	}
}
