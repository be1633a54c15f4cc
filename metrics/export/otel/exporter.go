package otel

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/disappointingsupernova/sessiongate"
	"github.com/disappointingsupernova/sessiongate/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("otel: nil meter")
	ErrNilSource = errors.New("otel: nil metrics source")
)

type counter struct {
	id         sessiongate.MetricID
	instrument metric.Int64ObservableCounter
}

type histogram struct {
	id      sessiongate.MetricID
	buckets []metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
}

// Exporter holds the callback registration; Close removes it.
type Exporter struct {
	source       internaldefs.Source
	registration metric.Registration
	counters     []counter
	histograms   []histogram
	auditDropped metric.Int64ObservableCounter
	auditFailed  metric.Int64ObservableCounter
}

func New(meter metric.Meter, source internaldefs.Source) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &Exporter{source: source}
	var observables []metric.Observable

	for _, def := range internaldefs.Counters {
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("counter %s: %w", def.Name, err)
		}
		e.counters = append(e.counters, counter{id: def.ID, instrument: ins})
		observables = append(observables, ins)
	}

	for _, def := range internaldefs.Histograms {
		h := histogram{id: def.ID}
		for _, name := range BucketNames(def.Name) {
			ins, err := meter.Int64ObservableGauge(name, metric.WithDescription("Cumulative bucket count of "+def.Name+"."))
			if err != nil {
				return nil, fmt.Errorf("bucket %s: %w", name, err)
			}
			h.buckets = append(h.buckets, ins)
			observables = append(observables, ins)
		}
		count, err := meter.Int64ObservableGauge(def.Name+"_count", metric.WithDescription("Sample count of "+def.Name+"."))
		if err != nil {
			return nil, fmt.Errorf("count %s: %w", def.Name, err)
		}
		h.count = count
		observables = append(observables, count)
		e.histograms = append(e.histograms, h)
	}

	var err error
	if e.auditDropped, err = meter.Int64ObservableCounter(internaldefs.AuditDroppedName,
		metric.WithDescription(internaldefs.AuditDroppedHelp)); err != nil {
		return nil, fmt.Errorf("counter %s: %w", internaldefs.AuditDroppedName, err)
	}
	if e.auditFailed, err = meter.Int64ObservableCounter(internaldefs.AuditFailedName,
		metric.WithDescription(internaldefs.AuditFailedHelp)); err != nil {
		return nil, fmt.Errorf("counter %s: %w", internaldefs.AuditFailedName, err)
	}
	observables = append(observables, e.auditDropped, e.auditFailed)

	e.registration, err = meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	return e, nil
}

func (e *Exporter) observe(_ context.Context, o metric.Observer) error {
	snap := e.source.MetricsSnapshot()
	for _, c := range e.counters {
		o.ObserveInt64(c.instrument, int64(snap.Counters[c.id]))
	}
	for _, h := range e.histograms {
		raw, ok := snap.Histograms[h.id]
		if !ok {
			continue
		}
		cumulative := internaldefs.Cumulative(raw)
		for i, ins := range h.buckets {
			o.ObserveInt64(ins, int64(cumulative[i]))
		}
		o.ObserveInt64(h.count, int64(cumulative[len(cumulative)-1]))
	}
	o.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))
	o.ObserveInt64(e.auditFailed, int64(e.source.AuditFailed()))
	return nil
}

func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}

// BucketNames returns the gauge names for base's buckets, for example
// base_bucket_le_0_005 through base_bucket_le_inf.
func BucketNames(base string) []string {
	out := make([]string, 0, len(internaldefs.UpperBounds)+1)
	for _, le := range internaldefs.UpperBounds {
		suffix := strings.ReplaceAll(strconv.FormatFloat(le, 'f', -1, 64), ".", "_")
		out = append(out, base+"_bucket_le_"+suffix)
	}
	return append(out, base+"_bucket_le_inf")
}
