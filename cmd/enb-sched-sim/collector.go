package main

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/lteran/enb-sched/internal/logging"
)

// metricsCollector adapts a *sched.Metrics snapshot into Prometheus
// gauges/counters, the same Describe/Collect shape
// runZeroInc-sockstats/pkg/exporter/exporter.go uses to expose its
// TCPInfoCollector: one struct implementing prometheus.Collector, holding
// a fixed set of descriptors whose values are read from a fresh snapshot
// on every scrape.
type metricsCollector struct {
	snapshot func() snapshotLike

	dlTtis       *prometheus.Desc
	ulTtis       *prometheus.Desc
	dlNewTx      *prometheus.Desc
	dlRetx       *prometheus.Desc
	dlRbgUsed    *prometheus.Desc
	dlBroadcast  *prometheus.Desc
	dlRar        *prometheus.Desc
	ulNewTx      *prometheus.Desc
	ulRetx       *prometheus.Desc
	ulMsg3       *prometheus.Desc
	cceExhaustionRate *prometheus.Desc
	rarDropRate       *prometheus.Desc
	latencyP50   *prometheus.Desc
	latencyP99   *prometheus.Desc
}

// snapshotLike is the subset of sched.MetricsSnapshot the collector reads;
// declared locally so this file only depends on the root package through
// the single accessor newMetricsCollector takes.
type snapshotLike struct {
	DlTtis, UlTtis                         uint64
	DlNewTx, DlRetx, DlRbgUsed, DlBroadcast, DlRar uint64
	UlNewTx, UlRetx, UlMsg3                uint64
	CceExhaustionRate, RarDropRate         float64
	LatencyP50Ns, LatencyP99Ns             uint64
}

func newMetricsCollector(snapshot func() snapshotLike) *metricsCollector {
	ns := "enb_sched"
	return &metricsCollector{
		snapshot:    snapshot,
		dlTtis:      prometheus.NewDesc(ns+"_dl_ttis_total", "dl_sched calls processed", nil, nil),
		ulTtis:      prometheus.NewDesc(ns+"_ul_ttis_total", "ul_sched calls processed", nil, nil),
		dlNewTx:     prometheus.NewDesc(ns+"_dl_newtx_total", "new-data DL grants issued", nil, nil),
		dlRetx:      prometheus.NewDesc(ns+"_dl_retx_total", "HARQ retransmission DL grants issued", nil, nil),
		dlRbgUsed:   prometheus.NewDesc(ns+"_dl_rbg_used_total", "cumulative RBGs allocated", nil, nil),
		dlBroadcast: prometheus.NewDesc(ns+"_dl_broadcast_total", "SIB/paging DL grants issued", nil, nil),
		dlRar:       prometheus.NewDesc(ns+"_dl_rar_total", "RAR DL grants issued", nil, nil),
		ulNewTx:     prometheus.NewDesc(ns+"_ul_newtx_total", "new-data UL grants issued", nil, nil),
		ulRetx:      prometheus.NewDesc(ns+"_ul_retx_total", "HARQ retransmission UL grants issued", nil, nil),
		ulMsg3:      prometheus.NewDesc(ns+"_ul_msg3_total", "Msg3 UL grants issued", nil, nil),
		cceExhaustionRate: prometheus.NewDesc(ns+"_cce_exhaustion_rate", "percentage of CCE searches that failed", nil, nil),
		rarDropRate:       prometheus.NewDesc(ns+"_rar_drop_rate", "percentage of PRACH detections dropped", nil, nil),
		latencyP50: prometheus.NewDesc(ns+"_sched_latency_p50_ns", "p50 dl_sched/ul_sched latency, nanoseconds", nil, nil),
		latencyP99: prometheus.NewDesc(ns+"_sched_latency_p99_ns", "p99 dl_sched/ul_sched latency, nanoseconds", nil, nil),
	}
}

func (c *metricsCollector) Describe(descs chan<- *prometheus.Desc) {
	descs <- c.dlTtis
	descs <- c.ulTtis
	descs <- c.dlNewTx
	descs <- c.dlRetx
	descs <- c.dlRbgUsed
	descs <- c.dlBroadcast
	descs <- c.dlRar
	descs <- c.ulNewTx
	descs <- c.ulRetx
	descs <- c.ulMsg3
	descs <- c.cceExhaustionRate
	descs <- c.rarDropRate
	descs <- c.latencyP50
	descs <- c.latencyP99
}

func (c *metricsCollector) Collect(metrics chan<- prometheus.Metric) {
	snap := c.snapshot()

	counter := func(desc *prometheus.Desc, v uint64) {
		metrics <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(v))
	}
	gauge := func(desc *prometheus.Desc, v float64) {
		metrics <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, v)
	}

	counter(c.dlTtis, snap.DlTtis)
	counter(c.ulTtis, snap.UlTtis)
	counter(c.dlNewTx, snap.DlNewTx)
	counter(c.dlRetx, snap.DlRetx)
	counter(c.dlRbgUsed, snap.DlRbgUsed)
	counter(c.dlBroadcast, snap.DlBroadcast)
	counter(c.dlRar, snap.DlRar)
	counter(c.ulNewTx, snap.UlNewTx)
	counter(c.ulRetx, snap.UlRetx)
	counter(c.ulMsg3, snap.UlMsg3)
	gauge(c.cceExhaustionRate, snap.CceExhaustionRate)
	gauge(c.rarDropRate, snap.RarDropRate)
	gauge(c.latencyP50, float64(snap.LatencyP50Ns))
	gauge(c.latencyP99, float64(snap.LatencyP99Ns))
}

var _ prometheus.Collector = (*metricsCollector)(nil)

// logLevelFromVerbose mirrors cmd/ublk-mem's -v flag pattern of raising
// the default logger's level for a single boolean switch.
func logLevelFromVerbose(verbose bool) logging.LogLevel {
	if verbose {
		return logging.LevelDebug
	}
	return logging.LevelInfo
}
