package observability

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel/metric"
)

// ErrMeterNil is returned when no meter is supplied.
var ErrMeterNil = errors.New("observability: meter cannot be nil")

// OTelFactory is a MetricFactory backed by an OpenTelemetry meter.
// Instruments that fail to register degrade to no-ops and are logged.
type OTelFactory struct {
	meter  metric.Meter
	logger *slog.Logger
}

// NewOTelFactory creates a factory on meter.
func NewOTelFactory(meter metric.Meter, logger *slog.Logger) (*OTelFactory, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OTelFactory{meter: meter, logger: logger}, nil
}

// Counter implements MetricFactory.
func (f *OTelFactory) Counter(name string) Counter {
	c, err := f.meter.Float64Counter(name)
	if err != nil {
		f.logger.Warn("observability: counter not registered", "name", name, "error", err)
		return nopCounter{}
	}
	return otelCounter{c: c}
}

// Histogram implements MetricFactory.
func (f *OTelFactory) Histogram(name string) Histogram {
	h, err := f.meter.Float64Histogram(name)
	if err != nil {
		f.logger.Warn("observability: histogram not registered", "name", name, "error", err)
		return nopHistogram{}
	}
	return otelHistogram{h: h}
}

type otelCounter struct{ c metric.Float64Counter }

func (o otelCounter) Inc()          { o.c.Add(context.Background(), 1) }
func (o otelCounter) Add(v float64) { o.c.Add(context.Background(), v) }

type otelHistogram struct{ h metric.Float64Histogram }

func (o otelHistogram) Observe(v float64) { o.h.Record(context.Background(), v) }

type nopCounter struct{}

func (nopCounter) Inc()        {}
func (nopCounter) Add(float64) {}

type nopHistogram struct{}

func (nopHistogram) Observe(float64) {}
