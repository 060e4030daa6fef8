// Package sink implements the persistence port: destinations that
// receive finalized cycle records.
//
// Sinks do not retry or buffer. A failed write is reported to the
// scheduler, which logs it and drops the record; keeping the scan loop
// alive always wins over keeping any single cycle's data.
package sink

import (
	"context"

	"github.com/groblegark/footfall/internal/model"
)

// Sink receives finalized cycle records.
type Sink interface {
	// Persist writes one record as a self-contained unit.
	Persist(ctx context.Context, rec *model.CycleRecord) error
	Close() error
}
