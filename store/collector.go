package store

import (
	"github.com/cockroachdb/pebble"
	"github.com/prometheus/client_golang/prometheus"
)

// StoreCollector exposes the archive's pebble internals to
// prometheus.
type StoreCollector struct {
	db *pebble.DB

	compactionCount *prometheus.Desc
	compactionDebt  *prometheus.Desc

	memtableSize  *prometheus.Desc
	memtableCount *prometheus.Desc

	walFiles        *prometheus.Desc
	walSize         *prometheus.Desc
	walBytesWritten *prometheus.Desc
}

func NewStoreCollector(s *Store) *StoreCollector {
	return &StoreCollector{
		db: s.db,

		compactionCount: prometheus.NewDesc(
			"zerkalo_store_compaction_count_total",
			"Total number of compactions performed",
			nil, nil,
		),
		compactionDebt: prometheus.NewDesc(
			"zerkalo_store_compaction_estimated_debt_bytes",
			"Estimated number of bytes that need to be compacted",
			nil, nil,
		),
		memtableSize: prometheus.NewDesc(
			"zerkalo_store_memtable_size_bytes",
			"Current size of the memtables",
			nil, nil,
		),
		memtableCount: prometheus.NewDesc(
			"zerkalo_store_memtable_count",
			"Current number of memtables",
			nil, nil,
		),
		walFiles: prometheus.NewDesc(
			"zerkalo_store_wal_files",
			"Current number of WAL files",
			nil, nil,
		),
		walSize: prometheus.NewDesc(
			"zerkalo_store_wal_size_bytes",
			"Current size of the WAL",
			nil, nil,
		),
		walBytesWritten: prometheus.NewDesc(
			"zerkalo_store_wal_bytes_written_total",
			"Total physical bytes written to the WAL",
			nil, nil,
		),
	}
}

func (sc *StoreCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- sc.compactionCount
	ch <- sc.compactionDebt
	ch <- sc.memtableSize
	ch <- sc.memtableCount
	ch <- sc.walFiles
	ch <- sc.walSize
	ch <- sc.walBytesWritten
}

func (sc *StoreCollector) Collect(ch chan<- prometheus.Metric) {
	metrics := sc.db.Metrics()

	ch <- prometheus.MustNewConstMetric(
		sc.compactionCount,
		prometheus.CounterValue,
		float64(metrics.Compact.Count),
	)
	ch <- prometheus.MustNewConstMetric(
		sc.compactionDebt,
		prometheus.GaugeValue,
		float64(metrics.Compact.EstimatedDebt),
	)
	ch <- prometheus.MustNewConstMetric(
		sc.memtableSize,
		prometheus.GaugeValue,
		float64(metrics.MemTable.Size),
	)
	ch <- prometheus.MustNewConstMetric(
		sc.memtableCount,
		prometheus.GaugeValue,
		float64(metrics.MemTable.Count),
	)
	ch <- prometheus.MustNewConstMetric(
		sc.walFiles,
		prometheus.GaugeValue,
		float64(metrics.WAL.Files),
	)
	ch <- prometheus.MustNewConstMetric(
		sc.walSize,
		prometheus.GaugeValue,
		float64(metrics.WAL.Size),
	)
	ch <- prometheus.MustNewConstMetric(
		sc.walBytesWritten,
		prometheus.CounterValue,
		float64(metrics.WAL.BytesWritten),
	)
}
