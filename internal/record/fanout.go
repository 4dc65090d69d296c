package record

import (
	"context"
	"errors"
	"fmt"

	"github.com/alanyoungcy/tickerwatch/internal/domain"
	"github.com/alanyoungcy/tickerwatch/internal/metrics"
)

// Sink is a named record store.
type Sink struct {
	Name  string
	Store domain.RecordStore
}

// Fanout appends to every sink; one failing sink does not skip the others.
type Fanout struct {
	sinks []Sink
}

// NewFanout creates a Fanout over sinks.
func NewFanout(sinks ...Sink) *Fanout {
	return &Fanout{sinks: sinks}
}

// Append writes obs to all sinks and joins their errors.
func (f *Fanout) Append(ctx context.Context, obs domain.Observation) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Store.Append(ctx, obs); err != nil {
			metrics.RecordAppends.WithLabelValues(s.Name, "error").Inc()
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
			continue
		}
		metrics.RecordAppends.WithLabelValues(s.Name, "ok").Inc()
	}
	if len(errs) > 0 {
		return fmt.Errorf("record: %w: %w", domain.ErrRecordStore, errors.Join(errs...))
	}
	return nil
}
