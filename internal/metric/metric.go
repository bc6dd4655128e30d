// Package metric defines the pluggable DL/UL scheduling-metric
// collaborator interfaces (spec.md §6, §9: "express as a capability
// interface {new_tti, get_user_allocation}; inject at config time") and
// ships a minimal round-robin reference implementation used as the
// default policy by tests and by cmd/enb-sched-sim.
package metric

import "github.com/lteran/enb-sched/internal/ue"

// RBAlloc is a type-0 RBG or type-2 PRB allocation handed to UpdateAllocation
// so the UL metric can track which resources are already spoken for this
// TTI (PUCCH/Msg3 pre-reservation, spec.md §4.6 steps 4-5).
type RBAlloc struct {
	RBStart int
	L       int
}

// DLMetric decides, for the current TTI, which UE (if any) gets the next
// DL HARQ process and its resource allocation.
type DLMetric interface {
	// NewTTI is called once per dl_sched call before any per-UE
	// allocation decision, giving the metric the current RBG cursor and
	// the UE database to rank.
	NewTTI(db *ue.DB, startRBG, availRBG, nofCtrlSymbols, tti int)

	// GetUserAllocation returns the DL HARQ process the metric selected
	// for rnti this TTI, or nil if the UE was not selected.
	GetUserAllocation(rnti uint16) *ue.DLHarqProc
}

// ULMetric is the UL analogue of DLMetric.
type ULMetric interface {
	NewTTI(db *ue.DB, nofPRB, tti int)

	// UpdateAllocation informs the metric that alloc is already reserved
	// this TTI (Msg3 and PUCCH pre-reservation) and must not be handed to
	// another UE.
	UpdateAllocation(alloc RBAlloc)

	GetUserAllocation(rnti uint16) *ue.ULHarqProc
}

func dlHarqIdxForTti(tti int) int { return ((tti % 8) + 8) % 8 }
func ulHarqIdxForTti(tti int) int { return ((tti % 8) + 8) % 8 }

// RoundRobinDL is a reference DL metric: it walks UEs in RNTI order
// starting just after the last UE served, and grants the current RBG
// cursor to the first UE with pending DL data and a free HARQ process.
// It exists so the scheduler is independently testable from any
// particular production scheduling policy (spec.md §6's metric boundary).
type RoundRobinDL struct {
	lastRnti uint16

	grantRnti uint16
	granted   bool
	proc      ue.DLHarqProc
}

func NewRoundRobinDL() *RoundRobinDL { return &RoundRobinDL{} }

func (r *RoundRobinDL) NewTTI(db *ue.DB, startRBG, availRBG, nofCtrlSymbols, tti int) {
	r.granted = false

	rntis := db.SortedRntis()
	if len(rntis) == 0 || availRBG <= 0 {
		return
	}

	startIdx := 0
	for i, rnti := range rntis {
		if rnti > r.lastRnti {
			startIdx = i
			break
		}
	}

	for i := 0; i < len(rntis); i++ {
		rnti := rntis[(startIdx+i)%len(rntis)]
		u, ok := db.Get(rnti)
		if !ok || !u.PhyEnabled || !u.GetPendingDlNewData() {
			continue
		}
		idx := dlHarqIdxForTti(tti)
		proc := &u.DlHarq[idx]
		if !proc.Empty() {
			// A HARQ retransmission already owns this process; the
			// scheduler services retransmissions ahead of calling the
			// metric, so skip this UE this TTI.
			continue
		}
		proc.Tti = tti
		proc.Rbg = uint64(1) << uint(startRBG)
		proc.NewData = true

		r.grantRnti = rnti
		r.granted = true
		r.proc = *proc
		r.lastRnti = rnti
		return
	}
}

func (r *RoundRobinDL) GetUserAllocation(rnti uint16) *ue.DLHarqProc {
	if !r.granted || rnti != r.grantRnti {
		return nil
	}
	p := r.proc
	return &p
}

// RoundRobinUL is the UL analogue of RoundRobinDL.
type RoundRobinUL struct {
	lastRnti uint16

	ulDB     *ue.DB
	ulNofPRB int
	ulTti    int

	reserved []RBAlloc

	grantRnti uint16
	granted   bool
	proc      ue.ULHarqProc
}

func NewRoundRobinUL() *RoundRobinUL { return &RoundRobinUL{} }

// NewTTI records the scheduling context for this TTI. The actual grant
// decision is deferred to GetUserAllocation, since spec.md §4.6 calls
// UpdateAllocation (Msg3/PUCCH pre-reservation) between NewTTI and the
// per-UE PUSCH loop, and those reservations must be visible to the grant
// decision.
func (r *RoundRobinUL) NewTTI(db *ue.DB, nofPRB, tti int) {
	r.ulDB = db
	r.ulNofPRB = nofPRB
	r.ulTti = tti
	r.reserved = r.reserved[:0]
	r.granted = false
	r.grantRnti = 0 // RNTI 0 is never valid, so no UE matches until decide grants one
}

func (r *RoundRobinUL) UpdateAllocation(alloc RBAlloc) {
	r.reserved = append(r.reserved, alloc)
}

// GetUserAllocation lazily decides, on first call each TTI, which pending
// UE (starting just after the last one served) gets the next free 3-PRB
// span that does not collide with any reservation recorded so far.
func (r *RoundRobinUL) GetUserAllocation(rnti uint16) *ue.ULHarqProc {
	if !r.granted {
		r.decide()
	}
	if !r.granted || rnti != r.grantRnti {
		return nil
	}
	p := r.proc
	return &p
}

func (r *RoundRobinUL) decide() {
	r.granted = true // only attempt once per TTI, success or not
	if r.ulDB == nil {
		return
	}

	rntis := r.ulDB.SortedRntis()
	if len(rntis) == 0 {
		return
	}

	startIdx := 0
	for i, rnti := range rntis {
		if rnti > r.lastRnti {
			startIdx = i
			break
		}
	}

	const allocL = 3
	for i := 0; i < len(rntis); i++ {
		rnti := rntis[(startIdx+i)%len(rntis)]
		u, ok := r.ulDB.Get(rnti)
		if !ok || !u.PhyEnabled || !u.GetPendingUlNewData() {
			continue
		}
		idx := ulHarqIdxForTti(r.ulTti)
		proc := &u.UlHarq[idx]
		if !proc.Empty() {
			continue
		}
		if r.collides(0, allocL) {
			continue
		}
		proc.Tti = r.ulTti
		proc.RBStart = 0
		proc.L = allocL
		proc.NewData = true

		r.grantRnti = rnti
		r.proc = *proc
		r.lastRnti = rnti
		return
	}
}

func (r *RoundRobinUL) collides(rbStart, l int) bool {
	for _, a := range r.reserved {
		if rbStart < a.RBStart+a.L && a.RBStart < rbStart+l {
			return true
		}
	}
	return false
}

var (
	_ DLMetric = (*RoundRobinDL)(nil)
	_ ULMetric = (*RoundRobinUL)(nil)
)
