// Package cce implements the PDCCH CCE bitmap allocator (spec.md §4.2):
// given the set of CCEs available at the current CFI, find a
// collision-free span at a requested aggregation level, skipping any
// span that overlaps a UE's PUCCH reservation.
package cce

import (
	"github.com/lteran/enb-sched/internal/constants"
	"github.com/lteran/enb-sched/internal/scherr"
)

// Location identifies one PDCCH candidate: L CCEs starting at Ncce.
type Location struct {
	L    int
	Ncce int
}

// Bitmap tracks which CCEs in the current TTI are already allocated.
// Reset once per TTI by the scheduler per the shared used_cce discipline
// (spec.md §5: "dl_sched(tti) and ul_sched(tti) each reset used_cce iff
// the other has not yet run for the same tti").
type Bitmap struct {
	used   [constants.MaxCCE]bool
	nofCCE int
}

// New creates a bitmap sized for nofCCE CCEs (derived from the cell's CFI
// and bandwidth).
func New(nofCCE int) *Bitmap {
	if nofCCE > constants.MaxCCE {
		nofCCE = constants.MaxCCE
	}
	return &Bitmap{nofCCE: nofCCE}
}

// Reset clears every CCE back to free.
func (b *Bitmap) Reset(nofCCE int) {
	if nofCCE > constants.MaxCCE {
		nofCCE = constants.MaxCCE
	}
	b.nofCCE = nofCCE
	for i := range b.used {
		b.used[i] = false
	}
}

// candidates enumerates every legal location at aggregation level L within
// the current CCE count, in ascending Ncce order (lowest-candidate-index
// tie-break, spec.md §4.2).
func (b *Bitmap) candidates(l int) []Location {
	out := make([]Location, 0, b.nofCCE/l)
	for ncce := 0; ncce+l <= b.nofCCE; ncce += l {
		out = append(out, Location{L: l, Ncce: ncce})
	}
	return out
}

func (b *Bitmap) free(loc Location) bool {
	for i := loc.Ncce; i < loc.Ncce+loc.L; i++ {
		if i >= b.nofCCE || b.used[i] {
			return false
		}
	}
	return true
}

// collides reports whether loc overlaps a reservation reported by the
// caller (PUCCH/SR collision, spec.md §8 scenario S6).
func collides(loc Location, reserved func(ncce int) bool) bool {
	if reserved == nil {
		return false
	}
	for i := loc.Ncce; i < loc.Ncce+loc.L; i++ {
		if reserved(i) {
			return true
		}
	}
	return false
}

// Allocate finds the lowest-index collision-free candidate at aggregation
// level L, skipping any candidate for which reserved reports a collision.
// On success it marks the span used and returns it.
func (b *Bitmap) Allocate(l int, reserved func(ncce int) bool) (Location, error) {
	for _, loc := range b.candidates(l) {
		if !b.free(loc) {
			continue
		}
		if collides(loc, reserved) {
			continue
		}
		for i := loc.Ncce; i < loc.Ncce+loc.L; i++ {
			b.used[i] = true
		}
		return loc, nil
	}
	return Location{}, scherr.New("cce_alloc", scherr.CceExhausted, "no collision-free candidate at this aggregation level")
}
