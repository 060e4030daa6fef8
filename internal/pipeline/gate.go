package pipeline

import (
	"github.com/groblegark/footfall/internal/model"
)

// Gate decides whether a cycle summary is persisted. A pure function
// of configuration and the summary's counts.
//
// With LogEmptyCycles off (the default), cycles that saw nothing are
// suppressed. That is a modeling decision, not data loss: the absence
// of a record means "nothing present", and downstream aggregation
// must treat missing cycles as zero-valued intervals, never as gaps
// to interpolate across.
type Gate struct {
	LogEmptyCycles bool
}

// ShouldLog reports whether the summary should be persisted.
func (g Gate) ShouldLog(s *model.CycleSummary) bool {
	if g.LogEmptyCycles {
		return true
	}
	return s.TransientCount+s.StationaryCount > 0
}
