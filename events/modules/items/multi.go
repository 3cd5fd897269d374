package items

import (
	"context"
	"errors"
	"fmt"

	"github.com/ortelius/versionwatch/model"
)

// Dispatcher is one event sink.
type Dispatcher interface {
	Dispatch(ctx context.Context, eventType string, payload model.EventPayload) error
}

// MultiPublisher fans an event out to every sink. A failing sink does not stop the others.
type MultiPublisher struct {
	sinks []Dispatcher
}

// NewMultiPublisher skips nil sinks.
func NewMultiPublisher(sinks ...Dispatcher) *MultiPublisher {
	m := &MultiPublisher{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Len returns the number of sinks.
func (m *MultiPublisher) Len() int { return len(m.sinks) }

// Dispatch implements checker.EventDispatcher.
func (m *MultiPublisher) Dispatch(ctx context.Context, eventType string, payload model.EventPayload) error {
	var errs []error
	for i, s := range m.sinks {
		if err := s.Dispatch(ctx, eventType, payload); err != nil {
			errs = append(errs, fmt.Errorf("sink %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
