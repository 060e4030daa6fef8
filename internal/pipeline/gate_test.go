package pipeline

import (
	"testing"

	"github.com/groblegark/footfall/internal/model"
)

func TestGate_SuppressesEmptyCycles(t *testing.T) {
	g := Gate{LogEmptyCycles: false}

	if g.ShouldLog(&model.CycleSummary{}) {
		t.Error("empty cycle passed the gate")
	}
	if !g.ShouldLog(&model.CycleSummary{TransientCount: 1}) {
		t.Error("transient cycle was suppressed")
	}
	if !g.ShouldLog(&model.CycleSummary{StationaryCount: 2}) {
		t.Error("stationary-only cycle was suppressed")
	}
}

func TestGate_LogEmptyCyclesPassesEverything(t *testing.T) {
	g := Gate{LogEmptyCycles: true}

	if !g.ShouldLog(&model.CycleSummary{}) {
		t.Error("empty cycle was suppressed with logging forced on")
	}
}
