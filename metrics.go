package sched

import (
	"sync/atomic"
	"time"
)

// LatencyBuckets defines the dl_sched/ul_sched latency histogram buckets in
// nanoseconds. Buckets cover from 1us to 10ms with logarithmic spacing; a
// TTI budget of 1ms means anything past the 1ms bucket is already a missed
// deadline.
var LatencyBuckets = []uint64{
	1_000,       // 1us
	10_000,      // 10us
	100_000,     // 100us
	250_000,     // 250us
	500_000,     // 500us
	1_000_000,   // 1ms
	5_000_000,   // 5ms
	10_000_000,  // 10ms
}

const numLatencyBuckets = 8

// Metrics tracks per-cell scheduling statistics. Every field is atomic:
// dl_sched/ul_sched record outcomes while holding the scheduler's mutex,
// and Snapshot reads them without taking that mutex.
type Metrics struct {
	// TTI counters
	DlTtis atomic.Uint64 // dl_sched calls
	UlTtis atomic.Uint64 // ul_sched calls

	// DL grant counters
	DlNewTx      atomic.Uint64 // new-data DL grants issued
	DlRetx       atomic.Uint64 // HARQ retransmission DL grants issued
	DlRbgUsed    atomic.Uint64 // cumulative RBGs allocated across all dl_sched calls
	DlBroadcast  atomic.Uint64 // SIB/paging DL grants issued
	DlRar        atomic.Uint64 // RAR DL grants issued

	// UL grant counters
	UlNewTx   atomic.Uint64 // new-data UL grants issued
	UlRetx    atomic.Uint64 // HARQ retransmission UL grants issued
	UlMsg3    atomic.Uint64 // Msg3 UL grants issued from a RAR reservation

	// PDCCH
	CceAllocated atomic.Uint64 // CCE spans successfully allocated
	CceExhausted atomic.Uint64 // times no collision-free CCE span was found

	// RACH / RAR
	RarEmitted atomic.Uint64 // RARs successfully scheduled
	RarDropped atomic.Uint64 // PRACH detections that never got a RAR (ring full or window expired)

	// Msg3
	Msg3HarqUnavailable atomic.Uint64 // Msg3 owners with no free UL HARQ process at the reserved TTI

	// DCI
	TbsTooLarge atomic.Uint64 // format1a MCS searches that found no fit

	// Performance tracking (covers both dl_sched and ul_sched calls)
	TotalLatencyNs atomic.Uint64
	OpCount        atomic.Uint64

	// Latency histogram buckets (cumulative counts).
	LatencyBuckets [numLatencyBuckets]atomic.Uint64

	// Scheduler lifecycle
	StartTime atomic.Int64 // UnixNano of New()
	StopTime  atomic.Int64 // UnixNano of Stop(), 0 while running
}

// NewMetrics creates a new metrics instance.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordDlSched records the outcome of one dl_sched call.
func (m *Metrics) RecordDlSched(newTx, retx, broadcast, rar uint64, rbgUsed uint64, latencyNs uint64) {
	m.DlTtis.Add(1)
	m.DlNewTx.Add(newTx)
	m.DlRetx.Add(retx)
	m.DlBroadcast.Add(broadcast)
	m.DlRar.Add(rar)
	m.DlRbgUsed.Add(rbgUsed)
	m.recordLatency(latencyNs)
}

// RecordUlSched records the outcome of one ul_sched call.
func (m *Metrics) RecordUlSched(newTx, retx, msg3 uint64, latencyNs uint64) {
	m.UlTtis.Add(1)
	m.UlNewTx.Add(newTx)
	m.UlRetx.Add(retx)
	m.UlMsg3.Add(msg3)
	m.recordLatency(latencyNs)
}

// RecordCce records whether a PDCCH candidate search at some TTI succeeded.
func (m *Metrics) RecordCce(allocated bool) {
	if allocated {
		m.CceAllocated.Add(1)
	} else {
		m.CceExhausted.Add(1)
	}
}

// RecordRar records whether a pending PRACH detection was turned into a
// scheduled RAR or dropped (ring full, or its window expired first).
func (m *Metrics) RecordRar(emitted bool) {
	if emitted {
		m.RarEmitted.Add(1)
	} else {
		m.RarDropped.Add(1)
	}
}

// RecordMsg3HarqUnavailable counts a Msg3 reservation that found no free UL
// HARQ process at its reserved TTI (spec.md §4.4).
func (m *Metrics) RecordMsg3HarqUnavailable() {
	m.Msg3HarqUnavailable.Add(1)
}

// RecordTbsTooLarge counts a format1a MCS search that found nothing that
// meets the requested payload.
func (m *Metrics) RecordTbsTooLarge() {
	m.TbsTooLarge.Add(1)
}

// recordLatency records operation latency and updates the histogram.
func (m *Metrics) recordLatency(latencyNs uint64) {
	m.TotalLatencyNs.Add(latencyNs)
	m.OpCount.Add(1)

	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyBuckets[i].Add(1)
		}
	}
}

// Stop marks the scheduler as stopped.
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time snapshot of Metrics.
type MetricsSnapshot struct {
	DlTtis uint64
	UlTtis uint64

	DlNewTx     uint64
	DlRetx      uint64
	DlRbgUsed   uint64
	DlBroadcast uint64
	DlRar       uint64

	UlNewTx uint64
	UlRetx  uint64
	UlMsg3  uint64

	CceAllocated uint64
	CceExhausted uint64

	RarEmitted uint64
	RarDropped uint64

	Msg3HarqUnavailable uint64
	TbsTooLarge         uint64

	AvgLatencyNs uint64
	UptimeNs     uint64

	LatencyP50Ns  uint64
	LatencyP99Ns  uint64
	LatencyP999Ns uint64

	LatencyHistogram [numLatencyBuckets]uint64

	DlTtiRate float64 // dl_sched calls per second
	UlTtiRate float64 // ul_sched calls per second

	CceExhaustionRate float64 // percentage of CCE searches that failed
	RarDropRate       float64 // percentage of PRACH detections dropped
}

// Snapshot creates a point-in-time snapshot of metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		DlTtis:              m.DlTtis.Load(),
		UlTtis:              m.UlTtis.Load(),
		DlNewTx:             m.DlNewTx.Load(),
		DlRetx:              m.DlRetx.Load(),
		DlRbgUsed:           m.DlRbgUsed.Load(),
		DlBroadcast:         m.DlBroadcast.Load(),
		DlRar:               m.DlRar.Load(),
		UlNewTx:             m.UlNewTx.Load(),
		UlRetx:              m.UlRetx.Load(),
		UlMsg3:              m.UlMsg3.Load(),
		CceAllocated:        m.CceAllocated.Load(),
		CceExhausted:        m.CceExhausted.Load(),
		RarEmitted:          m.RarEmitted.Load(),
		RarDropped:          m.RarDropped.Load(),
		Msg3HarqUnavailable: m.Msg3HarqUnavailable.Load(),
		TbsTooLarge:         m.TbsTooLarge.Load(),
	}

	totalLatencyNs := m.TotalLatencyNs.Load()
	opCount := m.OpCount.Load()
	if opCount > 0 {
		snap.AvgLatencyNs = totalLatencyNs / opCount
	}

	startTime := m.StartTime.Load()
	stopTime := m.StopTime.Load()
	if stopTime > 0 {
		snap.UptimeNs = uint64(stopTime - startTime)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - startTime)
	}

	if snap.UptimeNs > 0 {
		uptimeSeconds := float64(snap.UptimeNs) / 1e9
		snap.DlTtiRate = float64(snap.DlTtis) / uptimeSeconds
		snap.UlTtiRate = float64(snap.UlTtis) / uptimeSeconds
	}

	if cceTotal := snap.CceAllocated + snap.CceExhausted; cceTotal > 0 {
		snap.CceExhaustionRate = float64(snap.CceExhausted) / float64(cceTotal) * 100.0
	}
	if rarTotal := snap.RarEmitted + snap.RarDropped; rarTotal > 0 {
		snap.RarDropRate = float64(snap.RarDropped) / float64(rarTotal) * 100.0
	}

	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = m.LatencyBuckets[i].Load()
	}

	if opCount > 0 {
		snap.LatencyP50Ns = m.calculatePercentile(0.50)
		snap.LatencyP99Ns = m.calculatePercentile(0.99)
		snap.LatencyP999Ns = m.calculatePercentile(0.999)
	}

	return snap
}

// calculatePercentile estimates the latency at the given percentile (0.0-1.0)
// using linear interpolation between histogram buckets.
func (m *Metrics) calculatePercentile(percentile float64) uint64 {
	totalOps := m.OpCount.Load()
	if totalOps == 0 {
		return 0
	}

	targetCount := uint64(float64(totalOps) * percentile)

	prevBucket := uint64(0)
	for i, bucket := range LatencyBuckets {
		bucketCount := m.LatencyBuckets[i].Load()
		if bucketCount >= targetCount {
			prevCount := uint64(0)
			if i > 0 {
				prevCount = m.LatencyBuckets[i-1].Load()
			}
			if bucketCount == prevCount {
				return bucket
			}
			fraction := float64(targetCount-prevCount) / float64(bucketCount-prevCount)
			return prevBucket + uint64(fraction*float64(bucket-prevBucket))
		}
		prevBucket = bucket
	}

	return LatencyBuckets[numLatencyBuckets-1]
}

// Reset resets all metrics counters and restarts the uptime clock.
// Scheduler.Reset does not call it; counters survive a scheduler reset.
func (m *Metrics) Reset() {
	m.DlTtis.Store(0)
	m.UlTtis.Store(0)
	m.DlNewTx.Store(0)
	m.DlRetx.Store(0)
	m.DlRbgUsed.Store(0)
	m.DlBroadcast.Store(0)
	m.DlRar.Store(0)
	m.UlNewTx.Store(0)
	m.UlRetx.Store(0)
	m.UlMsg3.Store(0)
	m.CceAllocated.Store(0)
	m.CceExhausted.Store(0)
	m.RarEmitted.Store(0)
	m.RarDropped.Store(0)
	m.Msg3HarqUnavailable.Store(0)
	m.TbsTooLarge.Store(0)
	m.TotalLatencyNs.Store(0)
	m.OpCount.Store(0)
	for i := 0; i < numLatencyBuckets; i++ {
		m.LatencyBuckets[i].Store(0)
	}
	m.StartTime.Store(time.Now().UnixNano())
	m.StopTime.Store(0)
}

// Observer allows pluggable collection of scheduling outcomes, e.g. forwarding
// into Prometheus counters. cmd/enb-sched-sim does not implement it; its
// prometheus.Collector reads Metrics snapshots instead (see SPEC_FULL.md §B).
type Observer interface {
	ObserveDlSched(newTx, retx, broadcast, rar uint64, rbgUsed uint64, latencyNs uint64)
	ObserveUlSched(newTx, retx, msg3 uint64, latencyNs uint64)
	ObserveCce(allocated bool)
	ObserveRar(emitted bool)
	ObserveMsg3HarqUnavailable()
	ObserveTbsTooLarge()
}

// NoOpObserver is a no-op implementation of Observer.
type NoOpObserver struct{}

func (NoOpObserver) ObserveDlSched(uint64, uint64, uint64, uint64, uint64, uint64) {}
func (NoOpObserver) ObserveUlSched(uint64, uint64, uint64, uint64)                {}
func (NoOpObserver) ObserveCce(bool)                                             {}
func (NoOpObserver) ObserveRar(bool)                                             {}
func (NoOpObserver) ObserveMsg3HarqUnavailable()                                 {}
func (NoOpObserver) ObserveTbsTooLarge()                                        {}

// MetricsObserver implements Observer using the built-in Metrics.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an observer that records to the given metrics.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveDlSched(newTx, retx, broadcast, rar uint64, rbgUsed uint64, latencyNs uint64) {
	o.metrics.RecordDlSched(newTx, retx, broadcast, rar, rbgUsed, latencyNs)
}

func (o *MetricsObserver) ObserveUlSched(newTx, retx, msg3 uint64, latencyNs uint64) {
	o.metrics.RecordUlSched(newTx, retx, msg3, latencyNs)
}

func (o *MetricsObserver) ObserveCce(allocated bool) {
	o.metrics.RecordCce(allocated)
}

func (o *MetricsObserver) ObserveRar(emitted bool) {
	o.metrics.RecordRar(emitted)
}

func (o *MetricsObserver) ObserveMsg3HarqUnavailable() {
	o.metrics.RecordMsg3HarqUnavailable()
}

func (o *MetricsObserver) ObserveTbsTooLarge() {
	o.metrics.RecordTbsTooLarge()
}

// Compile-time interface check.
var _ Observer = (*MetricsObserver)(nil)
var _ Observer = (*NoOpObserver)(nil)
