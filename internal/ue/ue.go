// Package ue holds per-UE scheduling state: HARQ process pools, buffer
// state, CQI/PHR/SR/TPC feedback, and the PUCCH reservation a UE has for
// the current TTI. Every method assumes the caller already holds the
// scheduler's single control-plane mutex (spec.md §5) — nothing here does
// its own locking.
package ue

import (
	"sort"

	"github.com/lteran/enb-sched/internal/constants"
	"github.com/lteran/enb-sched/internal/scherr"
)

const maxLCID = 11 // LTE supports LCID 0..10 for DTCH/DCCH/CCCH

// DLHarqProc is one DL HARQ process slot. Tti is the TTI it was last
// (re)scheduled at; -1 marks an empty process (spec.md §9's
// "tagged-empty" pattern, same as the pending-RAR ring).
type DLHarqProc struct {
	Tti       int
	Rbg       uint64 // RBG allocation mask
	Tbs       int
	Rv        int
	NofRetx   int
	NewData   bool
	NeedsRetx bool // set on NACK, cleared once the retransmission is scheduled
}

func (p *DLHarqProc) Empty() bool { return p.Tti < 0 }

// ULHarqProc is one UL HARQ process slot, including the Msg3 special case
// (spec.md §4.6 step 6): a Msg3-owning process uses MaxRetx from
// maxharq_msg3tx rather than the cell-wide default.
type ULHarqProc struct {
	Tti        int
	RBStart    int
	L          int
	Tbs        int
	Rv         int
	NofRetx    int
	MaxRetx    int
	NewData    bool
	IsMsg3     bool
	PendingAck bool // a PHICH element is due this TTI
	LastAckOk  bool
	NeedsRetx  bool // set on NACK, cleared once the retransmission is scheduled
}

func (p *ULHarqProc) Empty() bool { return p.Tti < 0 }

type dlBufferState struct {
	TxBytes   uint32
	RetxBytes uint32
}

// PucchReservation marks PRBs a UE holds for PUCCH at a given TTI
// (spec.md §4.6 step 5).
type PucchReservation struct {
	Valid     bool
	Tti       int
	NCCEStart int
	L         int
}

// Cfg is the subset of ue_cfg spec.md leaves opaque to the scheduler
// (scheduling-relevant parameters only; RRC-layer bearer details are an
// external collaborator's concern).
type Cfg struct {
	MaxMCS    int
	MaxMCSUL  int
	MaxAggrL  int // UE-specific PDCCH aggregation level ceiling
}

// UE is one RNTI's scheduling state.
type UE struct {
	Rnti             uint16
	Cfg              Cfg
	Bearers          [maxLCID]bool
	PhyEnabled       bool

	DlHarq [constants.NumDLHarqProcesses]DLHarqProc
	UlHarq [constants.NumULHarqProcesses]ULHarqProc

	DlBuffer  [maxLCID]dlBufferState
	MacBuffer uint32 // pending MAC CE codes, OR'd together as a bitmask

	UlBuffer  [maxLCID]uint32 // last reported BSR, bytes
	UlRecvLen [maxLCID]uint32

	Phr     int
	DlCqi   int
	UlCqi   int
	UlChCode int

	SrPending bool
	TpcAccum  int

	Pucch PucchReservation
}

// New creates a UE with every HARQ process marked empty.
func New(rnti uint16, cfg Cfg) *UE {
	u := &UE{Rnti: rnti, Cfg: cfg}
	for i := range u.DlHarq {
		u.DlHarq[i].Tti = -1
	}
	for i := range u.UlHarq {
		u.UlHarq[i].Tti = -1
		u.UlHarq[i].MaxRetx = -1
	}
	return u
}

func (u *UE) SetCfg(cfg Cfg) { u.Cfg = cfg }

func (u *UE) SetBearerCfg(lcid int) error {
	if lcid < 0 || lcid >= maxLCID {
		return scherr.NewRnti("bearer_ue_cfg", scherr.InvalidCellCfg, u.Rnti, "lcid out of range")
	}
	u.Bearers[lcid] = true
	return nil
}

func (u *UE) RemBearer(lcid int) {
	if lcid >= 0 && lcid < maxLCID {
		u.Bearers[lcid] = false
		u.DlBuffer[lcid] = dlBufferState{}
		u.UlBuffer[lcid] = 0
	}
}

func (u *UE) SetPhyConfigEnabled(on bool) { u.PhyEnabled = on }

func (u *UE) DlBufferState(lcid int, txBytes, retxBytes uint32) {
	if lcid < 0 || lcid >= maxLCID {
		return
	}
	u.DlBuffer[lcid] = dlBufferState{TxBytes: txBytes, RetxBytes: retxBytes}
}

func (u *UE) MacBufferState(ceCode uint32) { u.MacBuffer |= ceCode }

func (u *UE) UlBufferState(lcid int, bsrBytes uint32) {
	if lcid >= 0 && lcid < maxLCID {
		u.UlBuffer[lcid] = bsrBytes
	}
}

func (u *UE) UlRecvLenUpdate(lcid int, length uint32) {
	if lcid >= 0 && lcid < maxLCID {
		u.UlRecvLen[lcid] = length
	}
}

func (u *UE) UlPhr(value int) { u.Phr = value }

// dlHarqIdx and ulHarqIdx implement the FDD synchronous HARQ timing
// relationship: RTT and process-pool size coincide, so the process
// scheduled at TTI t and the one an ACK for TTI t-RTT refers to are the
// same array slot (spec.md §4.7, §8 invariant 7).
func dlHarqIdx(tti int) int { return ((tti % constants.TTIWrap) + constants.TTIWrap) % constants.NumDLHarqProcesses }
func ulHarqIdx(tti int) int { return ((tti % constants.TTIWrap) + constants.TTIWrap) % constants.NumULHarqProcesses }

// SetAckInfo applies a DL ACK/NACK referencing the DL emission at
// tti-DLHarqRTT. Returns the effective TBS on ACK (0 on NACK or an empty
// process).
func (u *UE) SetAckInfo(tti int, ack bool) (int, error) {
	idx := dlHarqIdx(tti - constants.DLHarqRTT)
	proc := &u.DlHarq[idx]
	if proc.Empty() {
		return 0, nil
	}
	if ack {
		tbs := proc.Tbs
		proc.Tti = -1
		return tbs, nil
	}
	proc.NofRetx++
	const maxRetx = 4 // default max DL HARQ retransmissions
	if proc.NofRetx > maxRetx {
		proc.Tti = -1
		proc.NeedsRetx = false
	} else {
		proc.NeedsRetx = true
	}
	return 0, nil
}

// SetUlCrc applies a CRC result referencing the UL grant at
// tti-ULGrantToTxDelta.
func (u *UE) SetUlCrc(tti int, crcOk bool) error {
	idx := ulHarqIdx(tti - constants.ULGrantToTxDelta)
	proc := &u.UlHarq[idx]
	if proc.Empty() {
		return nil
	}
	proc.PendingAck = true
	proc.LastAckOk = crcOk
	if crcOk {
		proc.Tti = -1
	} else {
		proc.NofRetx++
		maxRetx := proc.MaxRetx
		if maxRetx < 0 {
			maxRetx = 4
		}
		if proc.NofRetx > maxRetx {
			proc.Tti = -1
			proc.NeedsRetx = false
		} else {
			proc.NeedsRetx = true
		}
	}
	return nil
}

func (u *UE) SetDlCqi(wideband int) { u.DlCqi = wideband }

func (u *UE) SetUlCqi(cqi, ulChCode int) {
	u.UlCqi = cqi
	u.UlChCode = ulChCode
}

func (u *UE) SetSr()   { u.SrPending = true }
func (u *UE) UnsetSr() { u.SrPending = false }

// TpcInc/TpcDec accumulate a signed TPC command counter, saturating at
// ±MaxTPCAccum (SPEC_FULL.md §D.4 — the source leaves this bound
// undocumented).
func (u *UE) TpcInc() {
	if u.TpcAccum < constants.MaxTPCAccum {
		u.TpcAccum++
	}
}

func (u *UE) TpcDec() {
	if u.TpcAccum > -constants.MaxTPCAccum {
		u.TpcAccum--
	}
}

// GetPendingDlNewData reports whether any DL bearer has undelivered bytes.
func (u *UE) GetPendingDlNewData() bool {
	for i := range u.DlBuffer {
		if u.DlBuffer[i].TxBytes > 0 || u.DlBuffer[i].RetxBytes > 0 {
			return true
		}
	}
	return u.MacBuffer != 0
}

// GetPendingUlNewData reports whether the UE has a positive BSR or a
// pending scheduling request.
func (u *UE) GetPendingUlNewData() bool {
	if u.SrPending {
		return true
	}
	for _, b := range u.UlBuffer {
		if b > 0 {
			return true
		}
	}
	return false
}

// PucchSrCollision reports whether this UE's PUCCH reservation for tti
// collides with a candidate CCE location starting at ncce.
func (u *UE) PucchSrCollision(tti, ncce int) bool {
	if !u.Pucch.Valid || u.Pucch.Tti != tti {
		return false
	}
	lo, hi := u.Pucch.NCCEStart, u.Pucch.NCCEStart+u.Pucch.L-1
	return ncce >= lo && ncce <= hi
}

// DB is the scheduler's UE database: a RNTI-keyed map with deterministic
// ascending-RNTI iteration, per spec.md §9 ("source uses RNTI-keyed
// ordered map; specify ordered iteration... so tests are deterministic").
type DB struct {
	ues map[uint16]*UE
}

func NewDB() *DB {
	return &DB{ues: make(map[uint16]*UE)}
}

func (d *DB) Add(rnti uint16, cfg Cfg) *UE {
	u := New(rnti, cfg)
	d.ues[rnti] = u
	return u
}

func (d *DB) Remove(rnti uint16) {
	delete(d.ues, rnti)
}

func (d *DB) Get(rnti uint16) (*UE, bool) {
	u, ok := d.ues[rnti]
	return u, ok
}

func (d *DB) Len() int { return len(d.ues) }

// SortedRntis returns every RNTI currently in the database in ascending
// order. dl_sched/ul_sched iterate UEs in this order so test scenarios are
// reproducible (spec.md §4.5).
func (d *DB) SortedRntis() []uint16 {
	out := make([]uint16, 0, len(d.ues))
	for r := range d.ues {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Reset clears every UE from the database (backs Scheduler.Reset, SPEC_FULL §D.1).
func (d *DB) Reset() {
	d.ues = make(map[uint16]*UE)
}
