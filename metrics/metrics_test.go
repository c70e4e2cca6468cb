package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	Register(reg)

	AdapterCallsTotal.WithLabelValues("load", Result(nil)).Inc()

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	var found bool
	for _, f := range families {
		if f.GetName() != "playerwatch_adapter_calls_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			if m.GetCounter().GetValue() >= 1 {
				found = true
			}
		}
	}
	if !found {
		t.Fatal("playerwatch_adapter_calls_total not gathered")
	}
}

func TestLabels(t *testing.T) {
	if Result(errors.New("x")) != "error" || Result(nil) != "ok" {
		t.Fatal("Result labels")
	}
	if Bool(true) != "true" || Bool(false) != "false" {
		t.Fatal("Bool labels")
	}
}
