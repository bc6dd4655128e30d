// Package broadcast tracks SIB and paging transmission windows
// (spec.md §4.3): for each configured SIB, whether the current TTI lies
// in its window, how many repetitions are due, and which subframe is
// eligible; plus the paging opportunity check that runs after SIB
// scheduling.
package broadcast

import "github.com/lteran/enb-sched/internal/constants"

// SibCfg is one entry of the cell's SIB table (spec.md §3: "SIB table
// (payload length, period in radio frames, for up to 16 SIBs)").
type SibCfg struct {
	Len      int
	PeriodRF int
}

type windowState struct {
	inWindow       bool
	windowStartTti int
	nTx            int
}

// EmissionType distinguishes a SIB (BCCH) broadcast from a paging (PCCH)
// broadcast (spec.md §6 result payload: "type ∈ {BCCH, PCCH}").
type EmissionType int

const (
	BCCH EmissionType = iota
	PCCH
)

// Emission is one broadcast opportunity the tracker found for the current
// TTI.
type Emission struct {
	Type EmissionType
	Index int // SIB index for BCCH; unused for PCCH
	Rv    int
	Len   int
}

// Tracker holds every SIB's window state. SIB index 0 is SIB1 itself and
// is special-cased per spec.md §4.3.
type Tracker struct {
	sibs       [constants.MaxSibs]SibCfg
	nofSibs    int
	siWindowMs int
	state      [constants.MaxSibs]windowState
}

// New creates a tracker. siWindowMs is the cell-wide SI window
// (spec.md §3: "si_window_ms (1..40)").
func New(sibs []SibCfg, siWindowMs int) *Tracker {
	t := &Tracker{siWindowMs: siWindowMs}
	t.nofSibs = len(sibs)
	if t.nofSibs > constants.MaxSibs {
		t.nofSibs = constants.MaxSibs
	}
	copy(t.sibs[:], sibs[:t.nofSibs])
	return t
}

func nofTxChunks(siWindowMs int) int {
	switch {
	case siWindowMs <= 10:
		return 1
	case siWindowMs <= 20:
		return 2
	case siWindowMs <= 30:
		return 3
	default:
		return 4
	}
}

var rvSequence = [4]int{0, 2, 3, 1}

// CheckSibs returns every SIB eligible for emission at tti, advancing
// n_tx for each one emitted. sfn and sfIdx are derived from tti by the
// caller's TTI numerology (10 subframes per frame).
func (t *Tracker) CheckSibs(tti int) []Emission {
	sfn := tti / constants.SubframesPerFrame
	sfIdx := tti % constants.SubframesPerFrame

	var out []Emission

	// SIB1 (index 0): permanently in window; even SFN, sf_idx==5, up to
	// 4 transmissions then the RV cycle wraps (spec.md §8 invariant 5).
	if t.nofSibs > 0 && sfn%2 == 0 && sfIdx == 5 {
		st := &t.state[0]
		rv := rvSequence[st.nTx%4]
		out = append(out, Emission{Type: BCCH, Index: 0, Rv: rv, Len: t.sibs[0].Len})
		st.nTx++
	}

	for i := 1; i < t.nofSibs; i++ {
		if em, ok := t.checkSibI(i, tti, sfn, sfIdx); ok {
			out = append(out, em)
		}
	}

	return out
}

func (t *Tracker) checkSibI(i, tti, sfn, sfIdx int) (Emission, bool) {
	cfg := t.sibs[i]
	st := &t.state[i]

	x := (i - 1) * t.siWindowMs
	windowOpensNow := sfn%cfg.PeriodRF == x/10 && sfIdx == x%10

	if !st.inWindow {
		if !windowOpensNow {
			return Emission{}, false
		}
		st.inWindow = true
		st.windowStartTti = tti
		st.nTx = 0
	}

	elapsed := tti - st.windowStartTti
	if elapsed >= t.siWindowMs {
		st.inWindow = false
		return Emission{}, false
	}

	chunks := nofTxChunks(t.siWindowMs)
	chunkSize := t.siWindowMs / chunks
	if sfIdx != 1 {
		return Emission{}, false
	}
	if st.nTx >= chunks {
		return Emission{}, false
	}
	if elapsed < chunkSize*st.nTx {
		return Emission{}, false
	}

	rv := rvSequence[st.nTx%4]
	st.nTx++
	return Emission{Type: BCCH, Index: i, Rv: rv, Len: cfg.Len}, true
}

// CheckPaging emits one PCCH element if a paging opportunity exists and
// enough RBGs remain after SIB scheduling (spec.md §4.3: "if avail_rbg >
// si_n_rbg and the RRC collaborator reports a paging opportunity").
func CheckPaging(availRBG, siNRBG, pagingPayloadBytes int) (Emission, bool) {
	if availRBG <= siNRBG || pagingPayloadBytes <= 0 {
		return Emission{}, false
	}
	return Emission{Type: PCCH, Rv: 0, Len: pagingPayloadBytes}, true
}
