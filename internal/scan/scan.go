// Package scan is the boundary to the radio scan primitive.
//
// The radio itself is a black box: a Scanner returns the raw
// (address, signal strength) pairs one sweep saw, possibly none. An
// empty sweep is a valid result, never an error.
package scan

import (
	"context"
	"errors"

	"github.com/groblegark/footfall/internal/model"
)

// ErrTimeout is returned when a sweep exceeded its hard ceiling. The
// scheduler treats it as a failed cycle with an empty result.
var ErrTimeout = errors.New("scan timed out")

// Scanner performs one radio sweep. Scan blocks up to the configured
// sweep duration and honors ctx cancellation.
type Scanner interface {
	Scan(ctx context.Context) ([]model.Reading, error)
}

// Func adapts a function to the Scanner interface.
type Func func(ctx context.Context) ([]model.Reading, error)

// Scan calls f.
func (f Func) Scan(ctx context.Context) ([]model.Reading, error) { return f(ctx) }
