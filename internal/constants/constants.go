// Package constants collects the fixed sizes and timing deltas used
// throughout the scheduler. Values follow the FDD LTE numerology the
// scheduler assumes (10 TTIs per radio frame, 10240 TTI wraparound).
package constants

// TTI / frame numerology.
const (
	// TTIWrap is the modulus TTI counters wrap at (spec.md §3).
	TTIWrap = 10240

	// SubframesPerFrame is the number of TTIs (subframes) per radio frame.
	SubframesPerFrame = 10
)

// HARQ timing (FDD).
const (
	// DLHarqRTT is the TTI delta between a DL new-tx/retx and its ACK/NACK.
	DLHarqRTT = 8

	// ULGrantToTxDelta is the TTI delta between a UL grant and the
	// corresponding CRC report (and hence the UL scheduling TTI for
	// ul_sched relative to the dl_sched TTI that issued the grant).
	ULGrantToTxDelta = 4

	// RarToMsg3Delta is the TTI delta between a RAR grant emission and the
	// Msg3 transmission it reserves uplink resources for.
	RarToMsg3Delta = 6

	// RarMinDelay is the minimum number of TTIs that must elapse between a
	// PRACH detection and the earliest TTI a RAR for it may be emitted.
	RarMinDelay = 3
)

// Pending-RAR ring sizing (spec.md §3: "ring of at least 8 slots").
const MaxPendingRar = 8

// SIB/paging table sizing.
const MaxSibs = 16

// MaxCCE covers every legal CFI (1..3) at the largest supported cell
// bandwidth (100 PRB); allocators only ever use the CCE count the
// current CFI actually provides.
const MaxCCE = 88

// HARQ process pool sizing (typical FDD configuration, spec.md §3).
const (
	NumDLHarqProcesses = 8
	NumULHarqProcesses = 8
)

// AggregationLevels are the PDCCH aggregation levels, index i covering 2^i CCEs.
var AggregationLevels = [4]int{1, 2, 4, 8}

// Fixed aggregation levels used for broadcast and RAR DCI (spec.md §4.3, §4.4).
const (
	BroadcastAggrLevel = 2
	RarAggrLevel       = 2
)

// MaxTPCAccum bounds the UE's accumulated TPC command counter. spec.md is
// silent on a bound; SPEC_FULL.md §D.4 pins this saturation point so
// repeated tpc_inc/tpc_dec control-plane calls cannot overflow silently.
const MaxTPCAccum = 8

// RAR/Msg3 fixed parameters (spec.md §4.4: the source only ever grants one
// fixed-size Msg3 allocation).
const (
	RarNRB      = 3
	Msg3NPRB    = 2
	Msg3LPRB    = 3
	Msg3MCS     = 0
	RarTPCPusch = 3
	RarTruncMCS = 0
)

// MaxFormat1AMCS is the highest MCS index format1a's linear search
// considers (spec.md §4.1 / §9: the search covers indices 0..26).
const MaxFormat1AMCS = 26

// Default scheduler argument values (spec.md §3: -1 means "choose from CQI").
const (
	DefaultMCS    = -1
	DefaultMaxMCS = 28
	DefaultCFI    = 3
)
