// Package metrics provides Prometheus metrics for the LVM device and
// metadata engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "lvmcore"

// Scan outcomes, used as the "result" label on scansTotal.
const (
	ScanResultFound   = "found"
	ScanResultNoLabel = "no_label"
	ScanResultError   = "error"
)

// Cache lookup outcomes, used as the "result" label on cacheLookupsTotal.
const (
	CacheHit  = "hit"
	CacheMiss = "miss"
)

var (
	scansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "device_scans_total",
			Help:      "Total number of device label scans by outcome",
		},
		[]string{"result"},
	)

	scanDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "device_scan_duration_seconds",
			Help:      "Duration of a single device's label scan",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14), // 100us to ~0.8s
		},
		[]string{"result"},
	)

	cacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lvmcache_lookups_total",
			Help:      "Total number of lvmcache PVID/VG lookups by outcome",
		},
		[]string{"result"},
	)

	lockWaitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "vg_lock_wait_duration_seconds",
			Help:      "Time spent waiting to acquire a per-VG lock",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		},
		[]string{"mode"},
	)

	devicesFileRewritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "devices_file_rewrites_total",
			Help:      "Total number of devices-file rewrites by outcome",
		},
		[]string{"status"},
	)

	hintsOutcomeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hints_outcome_total",
			Help:      "Total number of hints-file reads and writes by outcome (missing, unparseable, read, written, write_error)",
		},
		[]string{"outcome"},
	)

	duplicateDevsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_devs_total",
			Help:      "Total number of duplicate-PVID or duplicate-VG-name resolutions observed",
		},
	)
)

// RecordScan records the outcome and duration of one device's label scan.
func RecordScan(result string, duration time.Duration) {
	scansTotal.WithLabelValues(result).Inc()
	scanDuration.WithLabelValues(result).Observe(duration.Seconds())
}

// RecordCacheLookup records an lvmcache PVID/VG lookup outcome.
func RecordCacheLookup(result string) {
	cacheLookupsTotal.WithLabelValues(result).Inc()
}

// RecordLockWait records how long a caller waited to acquire a per-VG
// lock in the given mode ("shared" or "exclusive").
func RecordLockWait(mode string, duration time.Duration) {
	lockWaitDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// RecordDevicesFileRewrite records a devices-file rewrite attempt.
func RecordDevicesFileRewrite(status string) {
	devicesFileRewritesTotal.WithLabelValues(status).Inc()
}

// RecordHintsOutcome records a hints-file read outcome.
func RecordHintsOutcome(outcome string) {
	hintsOutcomeTotal.WithLabelValues(outcome).Inc()
}

// RecordDuplicateDevs increments the duplicate-PVID/VG-name counter.
func RecordDuplicateDevs() {
	duplicateDevsTotal.Inc()
}

// ScanTimer times a device scan and records it on completion, mirroring
// the teacher's OperationTimer shape.
type ScanTimer struct {
	start time.Time
}

func NewScanTimer() *ScanTimer {
	return &ScanTimer{start: time.Now()}
}

// Observe records the scan's outcome and elapsed duration.
func (t *ScanTimer) Observe(result string) {
	RecordScan(result, time.Since(t.start))
}
