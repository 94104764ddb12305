package zerkalo

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

type counters struct {
	appends   atomic.Int64
	events    atomic.Int64
	applies   atomic.Int64
	outOfSync atomic.Int64
}

var stats counters

// DocumentCollector exposes the library-wide write path counters to
// prometheus.
type DocumentCollector struct {
	logAppends     *prometheus.Desc
	eventsEmitted  *prometheus.Desc
	replicaApplies *prometheus.Desc
	outOfSync      *prometheus.Desc
}

func NewDocumentCollector() *DocumentCollector {
	return &DocumentCollector{
		logAppends: prometheus.NewDesc(
			"zerkalo_log_appends_total",
			"Total number of entries appended to document logs",
			nil, nil,
		),
		eventsEmitted: prometheus.NewDesc(
			"zerkalo_events_emitted_total",
			"Total number of change events published",
			nil, nil,
		),
		replicaApplies: prometheus.NewDesc(
			"zerkalo_replica_applies_total",
			"Total number of events applied by replicas",
			nil, nil,
		),
		outOfSync: prometheus.NewDesc(
			"zerkalo_replica_out_of_sync_total",
			"Total number of events rejected by replicas over a sequence gap",
			nil, nil,
		),
	}
}

func (dc *DocumentCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- dc.logAppends
	ch <- dc.eventsEmitted
	ch <- dc.replicaApplies
	ch <- dc.outOfSync
}

func (dc *DocumentCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(dc.logAppends, prometheus.CounterValue, float64(stats.appends.Load()))
	ch <- prometheus.MustNewConstMetric(dc.eventsEmitted, prometheus.CounterValue, float64(stats.events.Load()))
	ch <- prometheus.MustNewConstMetric(dc.replicaApplies, prometheus.CounterValue, float64(stats.applies.Load()))
	ch <- prometheus.MustNewConstMetric(dc.outOfSync, prometheus.CounterValue, float64(stats.outOfSync.Load()))
}
