package prometheus

import (
	"net/http"

	"github.com/disappointingsupernova/sessiongate/metrics/export/internaldefs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type counterDesc struct {
	def  internaldefs.Def
	desc *prometheus.Desc
}

// Collector implements prometheus.Collector over an engine snapshot.
type Collector struct {
	source       internaldefs.Source
	counters     []counterDesc
	histograms   []counterDesc
	auditDropped *prometheus.Desc
	auditFailed  *prometheus.Desc
}

// NewCollector returns a collector reading from source, usually a
// *sessiongate.Engine.
func NewCollector(source internaldefs.Source) *Collector {
	c := &Collector{
		source:       source,
		auditDropped: prometheus.NewDesc(internaldefs.AuditDroppedName, internaldefs.AuditDroppedHelp, nil, nil),
		auditFailed:  prometheus.NewDesc(internaldefs.AuditFailedName, internaldefs.AuditFailedHelp, nil, nil),
	}
	for _, def := range internaldefs.Counters {
		c.counters = append(c.counters, counterDesc{def: def, desc: prometheus.NewDesc(def.Name, def.Help, nil, nil)})
	}
	for _, def := range internaldefs.Histograms {
		c.histograms = append(c.histograms, counterDesc{def: def, desc: prometheus.NewDesc(def.Name, def.Help, nil, nil)})
	}
	return c
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.counters {
		ch <- d.desc
	}
	for _, d := range c.histograms {
		ch <- d.desc
	}
	ch <- c.auditDropped
	ch <- c.auditFailed
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.source == nil {
		return
	}
	snap := c.source.MetricsSnapshot()

	for _, d := range c.counters {
		ch <- prometheus.MustNewConstMetric(d.desc, prometheus.CounterValue, float64(snap.Counters[d.def.ID]))
	}
	for _, d := range c.histograms {
		raw, ok := snap.Histograms[d.def.ID]
		if !ok {
			continue
		}
		cumulative := internaldefs.Cumulative(raw)
		buckets := make(map[float64]uint64, len(internaldefs.UpperBounds))
		for i, le := range internaldefs.UpperBounds {
			buckets[le] = cumulative[i]
		}
		// The engine keeps counts only, so the sum is reported as zero.
		ch <- prometheus.MustNewConstHistogram(d.desc, cumulative[len(cumulative)-1], 0, buckets)
	}
	ch <- prometheus.MustNewConstMetric(c.auditDropped, prometheus.CounterValue, float64(c.source.AuditDropped()))
	ch <- prometheus.MustNewConstMetric(c.auditFailed, prometheus.CounterValue, float64(c.source.AuditFailed()))
}

// Handler serves source's metrics from a private registry.
func Handler(source internaldefs.Source) (http.Handler, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(NewCollector(source)); err != nil {
		return nil, err
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), nil
}
