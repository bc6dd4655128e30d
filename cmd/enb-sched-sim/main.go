// Command enb-sched-sim drives the scheduler against a synthetic RACH and
// traffic generator over a TTI range, the way cmd/ublk-mem exercises the
// teacher's device against a RAM-backed block store: a pflag-based CLI,
// a YAML-loaded configuration, leveled logging, and a Prometheus
// /metrics endpoint fed by the scheduler's own Metrics.
package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"github.com/lteran/enb-sched"
	"github.com/lteran/enb-sched/internal/broadcast"
	"github.com/lteran/enb-sched/internal/logging"
	"github.com/lteran/enb-sched/internal/simconfig"
)

func main() {
	var (
		configPath = pflag.StringP("config", "c", "", "Path to a cell configuration YAML file. Missing or unset uses built-in defaults.")
		seed       = pflag.Int64P("seed", "s", 1, "Seed for the synthetic traffic/RACH generator.")
		ttis       = pflag.IntP("ttis", "n", 1000, "Number of TTIs to drive.")
		metricsAddr = pflag.StringP("metrics-addr", "m", "", "Address to serve /metrics on (e.g. :9090). Empty disables the endpoint.")
		verbose    = pflag.BoolP("verbose", "v", false, "Verbose (debug-level) logging.")
	)
	pflag.Parse()

	logger := logging.NewLogger(&logging.Config{Level: logLevelFromVerbose(*verbose), Output: os.Stderr})
	logging.SetDefault(logger)

	cell, err := simconfig.Load(*configPath)
	if err != nil {
		logger.Error("failed to load cell config", "error", err)
		os.Exit(1)
	}

	metrics := sched.NewMetrics()
	s := sched.New(&sched.Options{
		Logger:  logger,
		Metrics: metrics,
	})

	sibs := make([]broadcast.SibCfg, len(cell.Sibs))
	for i, e := range cell.Sibs {
		sibs[i] = broadcast.SibCfg{Len: e.Len, PeriodRF: e.PeriodRF}
	}
	if err := s.CellCfg(sched.CellCfg{
		NofPRB:          cell.NofPRB,
		NofAntennaPorts: cell.NofAntennaPorts,
		Sibs:            sibs,
		SiWindowMs:      cell.SiWindowMs,
		PrachRarWindow:  cell.PrachRarWindow,
		MaxHarqMsg3Tx:   cell.MaxHarqMsg3Tx,
	}); err != nil {
		logger.Error("invalid cell config", "error", err)
		os.Exit(1)
	}

	if *metricsAddr != "" {
		collector := newMetricsCollector(func() snapshotLike {
			snap := metrics.Snapshot()
			return snapshotLike{
				DlTtis: snap.DlTtis, UlTtis: snap.UlTtis,
				DlNewTx: snap.DlNewTx, DlRetx: snap.DlRetx, DlRbgUsed: snap.DlRbgUsed,
				DlBroadcast: snap.DlBroadcast, DlRar: snap.DlRar,
				UlNewTx: snap.UlNewTx, UlRetx: snap.UlRetx, UlMsg3: snap.UlMsg3,
				CceExhaustionRate: snap.CceExhaustionRate, RarDropRate: snap.RarDropRate,
				LatencyP50Ns: snap.LatencyP50Ns, LatencyP99Ns: snap.LatencyP99Ns,
			}
		})
		registry := prometheus.NewRegistry()
		registry.MustRegister(collector)

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		go func() {
			logger.Info("serving metrics", "addr", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				logger.Error("metrics server stopped", "error", err)
			}
		}()
	}

	gen := newTrafficGen(*seed)
	logger.Info("starting simulation", "ttis", *ttis, "nof_prb", cell.NofPRB, "seed", *seed)

	for tti := 0; tti < *ttis; tti++ {
		gen.step(s, tti)
		dl := s.DlSched(tti)
		ul := s.UlSched(tti)
		if len(dl.Bc) > 0 || len(dl.Rar) > 0 {
			logger.Debug("dl emission", "tti", tti, "bc", len(dl.Bc), "rar", len(dl.Rar), "data", len(dl.Data))
		}
		if len(ul.Pusch) > 0 {
			logger.Debug("ul emission", "tti", tti, "pusch", len(ul.Pusch), "phich", len(ul.Phich))
		}
	}

	snap := metrics.Snapshot()
	fmt.Printf("dl_ttis=%d ul_ttis=%d dl_newtx=%d dl_retx=%d dl_bc=%d dl_rar=%d ul_newtx=%d ul_retx=%d ul_msg3=%d cce_exhaustion=%.2f%% rar_drop=%.2f%%\n",
		snap.DlTtis, snap.UlTtis, snap.DlNewTx, snap.DlRetx, snap.DlBroadcast, snap.DlRar,
		snap.UlNewTx, snap.UlRetx, snap.UlMsg3, snap.CceExhaustionRate, snap.RarDropRate)
}
