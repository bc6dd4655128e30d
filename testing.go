package sched

import "github.com/lteran/enb-sched/internal/metric"

// NewMockDLMetric returns a minimal round-robin DL metric, useful in tests
// and as cmd/enb-sched-sim's default policy when no production scheduler
// is wired in (the real per-user scheduling metric is a pluggable external
// collaborator per spec.md §6, not something this package prescribes).
func NewMockDLMetric() DLMetric {
	return metric.NewRoundRobinDL()
}

// NewMockULMetric is the UL analogue of NewMockDLMetric.
func NewMockULMetric() ULMetric {
	return metric.NewRoundRobinUL()
}
