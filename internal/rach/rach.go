// Package rach implements the pending-RAR ring and Msg3 pre-reservation
// table (spec.md §4.4, §9: "global mutable ring for pending RARs: an
// array of fixed size with 'empty = buf_rar==0' sentinel"). Grounded on
// the teacher's fixed-slab-with-sentinel pool and per-tag state array
// pattern (internal/queue/pool.go, internal/queue/runner.go).
package rach

import "github.com/lteran/enb-sched/internal/constants"

// PendingRar is one RACH detection awaiting a RAR emission. RarTti is the
// TTI the preamble was detected at (spec.md §3: "rar_tti (the TTI the
// preamble was detected)") — the minimum-delay and window-close deltas
// are applied against it at scan time, never baked into the stored value,
// since §4.4's RAR-RNTI formula (rar_tti+1 mod 10) is computed from the
// detection TTI itself.
type PendingRar struct {
	RaID          uint8
	Rnti          uint16
	EstimatedSize int
	RarTti        int
	used          bool
}

func (p *PendingRar) Empty() bool { return !p.used }

// Msg3Reservation is the fixed-size pre-reservation for one Msg3 owner per
// tti%10 slot (spec.md §4.6 step 4: "pending_msg3[tti%10].enabled").
type Msg3Reservation struct {
	Enabled bool
	Rnti    uint16
	RBStart int
	L       int
	Mcs     int
}

// Ring is the fixed-size slab of pending RARs plus the 10-slot Msg3
// reservation table.
type Ring struct {
	slots [constants.MaxPendingRar]PendingRar
	msg3  [constants.SubframesPerFrame]Msg3Reservation
}

func New() *Ring {
	return &Ring{}
}

// Push inserts a new pending RAR at the first free slot, recording tti as
// its rar_tti (the detection TTI).
func (r *Ring) Push(tti int, raID uint8, rnti uint16, estimatedSize int) bool {
	for i := range r.slots {
		if r.slots[i].Empty() {
			r.slots[i] = PendingRar{
				RaID:          raID,
				Rnti:          rnti,
				EstimatedSize: estimatedSize,
				RarTti:        tti,
				used:          true,
			}
			return true
		}
	}
	return false
}

// ExpireWindow drops any pending RAR whose window has closed by tti
// without being emitted, per the RAR-window-expiry rule (spec.md §8:
// "RAR window (rar_tti + prach_rar_window + 3) exactly-inclusive
// boundary"). Returns the RA IDs dropped, for logging/metrics.
func (r *Ring) ExpireWindow(tti, prachRarWindow int) []uint8 {
	var dropped []uint8
	for i := range r.slots {
		s := &r.slots[i]
		if s.Empty() {
			continue
		}
		windowClose := s.RarTti + prachRarWindow + 3
		if tti > windowClose {
			dropped = append(dropped, s.RaID)
			*s = PendingRar{}
		}
	}
	return dropped
}

// DueAt returns every pending RAR that may be emitted at tti: the minimum
// PRACH→RAR delay has elapsed (spec.md §4.4: "if current_tti <
// rar_tti+3... skip"). Window expiry is handled separately by
// ExpireWindow, which the caller invokes first each TTI; a slot that
// fails CCE/TBS allocation this TTI is simply reconsidered on a later
// call, since it is left untouched here — the caller decides whether to
// consume it.
func (r *Ring) DueAt(tti int) []*PendingRar {
	var out []*PendingRar
	for i := range r.slots {
		s := &r.slots[i]
		if s.Empty() {
			continue
		}
		if tti < s.RarTti+constants.RarMinDelay {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Consume clears a pending RAR slot after it has been granted a RAR.
func (r *Ring) Consume(s *PendingRar) {
	*s = PendingRar{}
}

// ReserveMsg3 records the Msg3 pre-reservation for emitTti+RarToMsg3Delta
// mod 10 (spec.md §8 invariant 6: "a Msg3 reservation for
// (emit_tti+6) mod 10 exists and is consumed exactly once").
func (r *Ring) ReserveMsg3(emitTti int, rnti uint16, rbStart, l, mcs int) {
	slot := (emitTti + constants.RarToMsg3Delta) % constants.SubframesPerFrame
	r.msg3[slot] = Msg3Reservation{Enabled: true, Rnti: rnti, RBStart: rbStart, L: l, Mcs: mcs}
}

// Msg3At returns the Msg3 reservation for tti%10 if one is enabled, and
// clears it (consumed exactly once).
func (r *Ring) Msg3At(tti int) (Msg3Reservation, bool) {
	slot := tti % constants.SubframesPerFrame
	res := r.msg3[slot]
	if !res.Enabled {
		return Msg3Reservation{}, false
	}
	r.msg3[slot] = Msg3Reservation{}
	return res, true
}

// Reset clears every pending RAR and Msg3 reservation (backs
// Scheduler.Reset, SPEC_FULL §D.1).
func (r *Ring) Reset() {
	*r = Ring{}
}
