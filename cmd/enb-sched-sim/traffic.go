package main

import (
	"math/rand"

	"github.com/lteran/enb-sched"
	"github.com/lteran/enb-sched/internal/ue"
)

// trafficGen drives a synthetic cell: it periodically admits new UEs,
// feeds them DL traffic and UL BSRs, and injects RACH detections — a
// stand-in for the RRC/PHY collaborators spec.md treats as external.
type trafficGen struct {
	rng        *rand.Rand
	nextRnti   uint16
	nextRaID   uint8
	ueEveryTti int
	raEveryTti int
}

func newTrafficGen(seed int64) *trafficGen {
	return &trafficGen{
		rng:        rand.New(rand.NewSource(seed)),
		nextRnti:   0x46,
		ueEveryTti: 37,
		raEveryTti: 53,
	}
}

// step is invoked once per TTI, before DlSched/UlSched, and mutates the
// scheduler's control-plane state through its public entry points only —
// exactly the boundary a real RRC/PHY integration would cross.
func (g *trafficGen) step(s *sched.Scheduler, tti int) {
	if tti%g.ueEveryTti == 0 {
		rnti := g.nextRnti
		g.nextRnti++
		s.UeCfg(rnti, ue.Cfg{MaxMCS: 28, MaxMCSUL: 28, MaxAggrL: 8})
		_ = s.PhyConfigEnabled(rnti, true)
		_ = s.BearerUeCfg(rnti, 3)
	}

	for rnti := uint16(0x46); rnti < g.nextRnti; rnti++ {
		if !s.UeExists(rnti) {
			continue
		}
		if g.rng.Intn(10) == 0 {
			_ = s.DlRlcBufferState(rnti, 3, uint32(100+g.rng.Intn(1400)), 0)
		}
		if g.rng.Intn(15) == 0 {
			_ = s.UlBsr(rnti, 0, uint32(50+g.rng.Intn(500)))
		}
		if g.rng.Intn(20) == 0 {
			_ = s.DlCqiInfo(tti, rnti, 4+g.rng.Intn(11))
		}
	}

	if tti%g.raEveryTti == 0 && g.nextRnti < 0xfffe {
		raID := g.nextRaID
		g.nextRaID++
		rnti := g.nextRnti
		g.nextRnti++
		s.DlRachInfo(tti, raID, rnti, 7)
	}
}
