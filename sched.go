// Package sched implements the per-TTI downlink/uplink radio resource
// scheduler of an LTE eNodeB MAC layer: resource-block-group and
// PDCCH/CCE bookkeeping, HARQ retransmission state, system-information
// and paging windowing, and random-access response lifecycles. The PHY
// layer, the RRC layer, and the per-user scheduling metric are external
// collaborators; this package only decides, does not execute.
package sched

import (
	"sync"
	"time"

	"github.com/lteran/enb-sched/internal/broadcast"
	"github.com/lteran/enb-sched/internal/cce"
	"github.com/lteran/enb-sched/internal/constants"
	"github.com/lteran/enb-sched/internal/dci"
	"github.com/lteran/enb-sched/internal/logging"
	"github.com/lteran/enb-sched/internal/metric"
	"github.com/lteran/enb-sched/internal/rach"
	"github.com/lteran/enb-sched/internal/scherr"
	"github.com/lteran/enb-sched/internal/ue"
)

// RRC is the paging collaborator (spec.md §6): "is_paging_opportunity(tti)
// → paging_payload_bytes_or_zero".
type RRC interface {
	IsPagingOpportunity(tti int) int
}

type noRRC struct{}

func (noRRC) IsPagingOpportunity(int) int { return 0 }

// CellCfg is the cell configuration set once via Scheduler.CellCfg and
// thereafter read-only to the hot path (spec.md §3, §5).
type CellCfg struct {
	NofPRB          int
	NofAntennaPorts int
	Sibs            []broadcast.SibCfg
	SiWindowMs      int
	PrachRarWindow  int
	MaxHarqMsg3Tx   int
}

// SchedCfg is the mutable scheduler argument set (spec.md §3).
type SchedCfg struct {
	PdschMCS       int
	PdschMaxMCS    int
	PuschMCS       int
	PuschMaxMCS    int
	NofCtrlSymbols int // CFI, 1..3
}

// DefaultSchedCfg mirrors the source's -1-means-"choose from CQI" defaults.
func DefaultSchedCfg() SchedCfg {
	return SchedCfg{
		PdschMCS:       constants.DefaultMCS,
		PdschMaxMCS:    constants.DefaultMaxMCS,
		PuschMCS:       constants.DefaultMCS,
		PuschMaxMCS:    constants.DefaultMaxMCS,
		NofCtrlSymbols: constants.DefaultCFI,
	}
}

// DLMetric and ULMetric are re-exported here so callers implementing a
// custom scheduling policy never need to import internal/metric directly.
type DLMetric = metric.DLMetric
type ULMetric = metric.ULMetric

// DciLocation is a PDCCH candidate: L CCEs starting at Ncce.
type DciLocation = cce.Location

// DlSchedBc is one broadcast (SIB or paging) emission for a TTI.
type DlSchedBc struct {
	Type        broadcast.EmissionType
	Index       int
	Dci         dci.Format1A
	DciLocation DciLocation
	Tbs         int
}

// RarGrant is one UE's grant inside a RAR PDU.
type RarGrant struct {
	RaID     uint8
	TpcPusch int
	TruncMcs int
	Rba      int
}

// DlSchedRar is the (at most one) RAR emission for a TTI.
type DlSchedRar struct {
	Rarnti      int
	Dci         dci.Format1A
	DciLocation DciLocation
	Tbs         int
	Grants      []RarGrant
}

// DlSchedData is one UE's DL data grant for a TTI.
type DlSchedData struct {
	Rnti        uint16
	Dci         dci.Format1A
	DciLocation DciLocation
	Tbs         int
}

// DlSchedRes is the full result of one DlSched(tti) call.
type DlSchedRes struct {
	Bc   []DlSchedBc
	Rar  []DlSchedRar
	Data []DlSchedData
	Cfi  int
}

// UlSchedPusch is one UE's uplink grant.
type UlSchedPusch struct {
	Rnti        uint16
	NeedsPdcch  bool
	DciLocation DciLocation
	Tbs         int
	Alloc       metric.RBAlloc
}

// UlSchedPhich is one UE's HARQ-ACK/NACK indicator on PHICH.
type UlSchedPhich struct {
	Rnti uint16
	Ack  bool
}

// UlSchedRes is the full result of one UlSched(tti) call.
type UlSchedRes struct {
	Pusch []UlSchedPusch
	Phich []UlSchedPhich
}

// Options configures a Scheduler at construction time (mirrors the
// teacher's CreateAndServe Options{Context, Logger, Observer} pattern).
type Options struct {
	Logger   *logging.Logger
	Metrics  *Metrics
	Observer Observer
	DLMetric DLMetric
	ULMetric ULMetric
	RRC      RRC
}

// Scheduler is the single-writer, single-mutex MAC scheduler (spec.md §5:
// "every control-plane entry and both hot-path entries share one lock").
type Scheduler struct {
	mu sync.Mutex

	logger   *logging.Logger
	metrics  *Metrics
	observer Observer

	configured bool
	cellCfg    CellCfg
	schedCfg   SchedCfg

	rrc        RRC
	db         *ue.DB
	sibTracker *broadcast.Tracker
	rarRing    *rach.Ring
	cceBitmap  *cce.Bitmap

	dlMetric DLMetric
	ulMetric ULMetric

	nofRBG int
	rbgP   int
	siNRBG int

	// lastResetTti/lastResetValid implement the shared used_cce reset
	// discipline (spec.md §5, §9): whichever of DlSched/UlSched runs first
	// for a TTI resets the bitmap; the other shares it.
	lastResetTti   int
	lastResetValid bool
}

// New creates a Scheduler. A nil options, or nil fields within it, fall
// back to sensible defaults: the process-wide default logger, a fresh
// Metrics/MetricsObserver pair, the round-robin reference metric from
// testing.go, and a RRC collaborator that never reports a paging
// opportunity.
func New(options *Options) *Scheduler {
	if options == nil {
		options = &Options{}
	}
	logger := options.Logger
	if logger == nil {
		logger = logging.Default()
	}
	metrics := options.Metrics
	if metrics == nil {
		metrics = NewMetrics()
	}
	observer := options.Observer
	if observer == nil {
		observer = NewMetricsObserver(metrics)
	}
	dlMetric := options.DLMetric
	if dlMetric == nil {
		dlMetric = NewMockDLMetric()
	}
	ulMetric := options.ULMetric
	if ulMetric == nil {
		ulMetric = NewMockULMetric()
	}
	rrc := options.RRC
	if rrc == nil {
		rrc = noRRC{}
	}

	return &Scheduler{
		logger:   logger,
		metrics:  metrics,
		observer: observer,
		rrc:      rrc,
		db:       ue.NewDB(),
		rarRing:  rach.New(),
		dlMetric: dlMetric,
		ulMetric: ulMetric,
	}
}

// Metrics returns the scheduler's metrics collector.
func (s *Scheduler) Metrics() *Metrics { return s.metrics }

// SetMetric swaps the pluggable DL/UL scheduling policy (spec.md §6:
// "inject at config time"). A nil argument leaves that side unchanged.
func (s *Scheduler) SetMetric(dl DLMetric, ul ULMetric) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if dl != nil {
		s.dlMetric = dl
	}
	if ul != nil {
		s.ulMetric = ul
	}
}

// SetRRC swaps the paging collaborator.
func (s *Scheduler) SetRRC(rrc RRC) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rrc != nil {
		s.rrc = rrc
	}
}

// nofCCEForCfi is a monotone stand-in for the REG/PHICH-group counting
// that yields the true PDCCH CCE count (spec.md §1: PDCCH location
// enumeration is a library collaborator). It only needs to be
// monotonically increasing in CFI and PRB count so the CCE allocator
// behaves like the real region sizing.
func nofCCEForCfi(cfi, nofPRB int) int {
	n := cfi * nofPRB
	if n < 1 {
		n = 1
	}
	if n > constants.MaxCCE {
		n = constants.MaxCCE
	}
	return n
}

// CellCfg sets the cell configuration. It may be called more than once
// (re-configuration), but si_window_ms must be positive.
func (s *Scheduler) CellCfg(cfg CellCfg) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cfg.SiWindowMs <= 0 {
		return scherr.New("cell_cfg", scherr.InvalidCellCfg, "si_window_ms must be > 0")
	}

	s.cellCfg = cfg
	s.rbgP = dci.Type0RBGSize(cfg.NofPRB)
	s.nofRBG = (cfg.NofPRB + s.rbgP - 1) / s.rbgP
	s.siNRBG = 4 / s.rbgP
	if s.siNRBG < 1 {
		s.siNRBG = 1
	}
	s.sibTracker = broadcast.New(cfg.Sibs, cfg.SiWindowMs)
	s.cceBitmap = cce.New(nofCCEForCfi(constants.DefaultCFI, cfg.NofPRB))
	s.schedCfg = DefaultSchedCfg()
	s.lastResetValid = false
	s.configured = true
	return nil
}

// SetSchedCfg updates the mutable scheduler argument set.
func (s *Scheduler) SetSchedCfg(cfg SchedCfg) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedCfg = cfg
}

// UeCfg adds or reconfigures a UE.
func (s *Scheduler) UeCfg(rnti uint16, cfg ue.Cfg) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.db.Get(rnti); ok {
		u.SetCfg(cfg)
		return
	}
	s.db.Add(rnti, cfg)
}

// UeRem removes a UE; any pending DL/UL HARQ state for it is discarded
// with it (spec.md §3: "a UE removed... cancels its pending DL/UL HARQs").
func (s *Scheduler) UeRem(rnti uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.db.Remove(rnti)
}

func (s *Scheduler) UeExists(rnti uint16) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.db.Get(rnti)
	return ok
}

func (s *Scheduler) BearerUeCfg(rnti uint16, lcid int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.db.Get(rnti)
	if !ok {
		return unknownRnti("bearer_ue_cfg", rnti)
	}
	return u.SetBearerCfg(lcid)
}

func (s *Scheduler) BearerUeRem(rnti uint16, lcid int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.db.Get(rnti)
	if !ok {
		return unknownRnti("bearer_ue_rem", rnti)
	}
	u.RemBearer(lcid)
	return nil
}

func (s *Scheduler) PhyConfigEnabled(rnti uint16, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.db.Get(rnti)
	if !ok {
		return unknownRnti("phy_config_enabled", rnti)
	}
	u.SetPhyConfigEnabled(on)
	return nil
}

// DlAckInfo applies a DL HARQ ACK/NACK. Returns the effective TBS on ACK.
func (s *Scheduler) DlAckInfo(tti int, rnti uint16, ack bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.db.Get(rnti)
	if !ok {
		return 0, unknownRnti("dl_ack_info", rnti)
	}
	return u.SetAckInfo(tti, ack)
}

func (s *Scheduler) UlCrcInfo(tti int, rnti uint16, crcOk bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.db.Get(rnti)
	if !ok {
		return unknownRnti("ul_crc_info", rnti)
	}
	return u.SetUlCrc(tti, crcOk)
}

func (s *Scheduler) DlCqiInfo(tti int, rnti uint16, cqi int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.db.Get(rnti)
	if !ok {
		return unknownRnti("dl_cqi_info", rnti)
	}
	u.SetDlCqi(cqi)
	return nil
}

func (s *Scheduler) UlCqiInfo(tti int, rnti uint16, cqi, ulChCode int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.db.Get(rnti)
	if !ok {
		return unknownRnti("ul_cqi_info", rnti)
	}
	u.SetUlCqi(cqi, ulChCode)
	return nil
}

func (s *Scheduler) UlBsr(rnti uint16, lcid int, bsr uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.db.Get(rnti)
	if !ok {
		return unknownRnti("ul_bsr", rnti)
	}
	u.UlBufferState(lcid, bsr)
	return nil
}

func (s *Scheduler) UlRecvLen(rnti uint16, lcid int, length uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.db.Get(rnti)
	if !ok {
		return unknownRnti("ul_recv_len", rnti)
	}
	u.UlRecvLenUpdate(lcid, length)
	return nil
}

func (s *Scheduler) UlPhr(rnti uint16, phr int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.db.Get(rnti)
	if !ok {
		return unknownRnti("ul_phr", rnti)
	}
	u.UlPhr(phr)
	return nil
}

func (s *Scheduler) UlSrInfo(tti int, rnti uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.db.Get(rnti)
	if !ok {
		return unknownRnti("ul_sr_info", rnti)
	}
	u.SetSr()
	return nil
}

func (s *Scheduler) TpcInc(rnti uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.db.Get(rnti)
	if !ok {
		return unknownRnti("tpc_inc", rnti)
	}
	u.TpcInc()
	return nil
}

func (s *Scheduler) TpcDec(rnti uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.db.Get(rnti)
	if !ok {
		return unknownRnti("tpc_dec", rnti)
	}
	u.TpcDec()
	return nil
}

// DlRachInfo records a RACH detection. The source treats this as a
// lock-free single-producer write (spec.md §5); this implementation uses
// the same mutex as every other entry point for uniformity (an allowed
// alternative per spec.md §5), since the ring itself already tolerates a
// dl_sched call landing in the same or the next TTI.
func (s *Scheduler) DlRachInfo(tti int, raID uint8, rnti uint16, estimatedSize int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.rarRing.Push(tti, raID, rnti, estimatedSize) {
		s.logger.WithRnti(rnti).Warn("pending RAR ring full, dropping RACH detection", "ra_id", raID)
		s.observer.ObserveRar(false)
	}
}

func (s *Scheduler) DlRlcBufferState(rnti uint16, lcid int, tx, retx uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.db.Get(rnti)
	if !ok {
		return unknownRnti("dl_rlc_buffer_state", rnti)
	}
	u.DlBufferState(lcid, tx, retx)
	return nil
}

func (s *Scheduler) DlMacBufferState(rnti uint16, ceCode uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.db.Get(rnti)
	if !ok {
		return unknownRnti("dl_mac_buffer_state", rnti)
	}
	u.MacBufferState(ceCode)
	return nil
}

// GetDlBuffer reports whether the UE currently has pending DL data.
func (s *Scheduler) GetDlBuffer(rnti uint16) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.db.Get(rnti)
	if !ok {
		return false, unknownRnti("get_dl_buffer", rnti)
	}
	return u.GetPendingDlNewData(), nil
}

// GetUlBuffer reports whether the UE currently has pending UL data.
func (s *Scheduler) GetUlBuffer(rnti uint16) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.db.Get(rnti)
	if !ok {
		return false, unknownRnti("get_ul_buffer", rnti)
	}
	return u.GetPendingUlNewData(), nil
}

// Reset clears all UE, SIB, and RAR state (SPEC_FULL §D.1, sched::reset()).
// Cell/sched configuration is preserved.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.db.Reset()
	s.rarRing.Reset()
	if s.configured {
		s.sibTracker = broadcast.New(s.cellCfg.Sibs, s.cellCfg.SiWindowMs)
	}
	s.lastResetValid = false
}

// ensureCceReset implements the shared used_cce reset discipline
// (spec.md §5, §9): the first of DlSched/UlSched to run for a given TTI
// resets the bitmap; the other shares it.
func (s *Scheduler) ensureCceReset(tti int) {
	if s.lastResetValid && s.lastResetTti == tti {
		return
	}
	s.cceBitmap.Reset(nofCCEForCfi(s.schedCfg.NofCtrlSymbols, s.cellCfg.NofPRB))
	s.lastResetTti = tti
	s.lastResetValid = true
}

func effectiveNofCtrlSymbols(cfi, nofPRB int) int {
	if nofPRB < 10 {
		return cfi + 1
	}
	return cfi
}

// reservedFor builds the "collides with this UE's PUCCH/SR reservation"
// predicate the CCE allocator needs for UE-specific candidates
// (spec.md §4.2).
func reservedFor(u *ue.UE, tti int) func(ncce int) bool {
	return func(ncce int) bool { return u.PucchSrCollision(tti, ncce) }
}

// DlSched computes the downlink schedule for one TTI: broadcast, then
// RAR, then per-UE data, in that order (spec.md §4.5, §5, §8 invariant 3).
// Before CellCfg has been called it is a no-op, returning a zero result.
func (s *Scheduler) DlSched(tti int) DlSchedRes {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res DlSchedRes
	if !s.configured {
		s.logger.Debug("dl_sched called before cell_cfg", "tti", tti)
		return res
	}

	start := time.Now()
	s.ensureCceReset(tti)

	cfi := s.schedCfg.NofCtrlSymbols
	res.Cfi = cfi
	nofCtrlSymbols := effectiveNofCtrlSymbols(cfi, s.cellCfg.NofPRB)

	startRBG := 0
	availRBG := s.nofRBG

	var newTx, retx, bcCount, rarCount uint64
	var rbgUsed uint64

	// 1. Broadcast (BCCH/PCCH), spec.md §4.3.
	for _, em := range s.sibTracker.CheckSibs(tti) {
		if availRBG < s.siNRBG {
			break
		}
		loc, err := s.cceBitmap.Allocate(constants.BroadcastAggrLevel, nil)
		if err != nil {
			s.logger.Warn("cce exhausted for sib broadcast", "tti", tti, "sib", em.Index)
			s.observer.ObserveCce(false)
			continue
		}
		s.observer.ObserveCce(true)
		d, err := dci.BuildFormat1A(startRBG*s.rbgP, s.siNRBG*s.rbgP, em.Len*8, em.Rv)
		if err != nil {
			s.logger.Warn("tbs too large for sib broadcast", "tti", tti, "sib", em.Index)
			s.observer.ObserveTbsTooLarge()
			continue
		}
		res.Bc = append(res.Bc, DlSchedBc{Type: em.Type, Index: em.Index, Dci: d, DciLocation: loc, Tbs: d.Tbs})
		startRBG += s.siNRBG
		availRBG -= s.siNRBG
		rbgUsed += uint64(s.siNRBG)
		bcCount++
	}

	if em, ok := broadcast.CheckPaging(availRBG, s.siNRBG, s.rrc.IsPagingOpportunity(tti)); ok {
		if loc, err := s.cceBitmap.Allocate(constants.BroadcastAggrLevel, nil); err == nil {
			s.observer.ObserveCce(true)
			if d, err := dci.BuildFormat1A(startRBG*s.rbgP, s.siNRBG*s.rbgP, em.Len*8, em.Rv); err == nil {
				res.Bc = append(res.Bc, DlSchedBc{Type: em.Type, Dci: d, DciLocation: loc, Tbs: d.Tbs})
				startRBG += s.siNRBG
				availRBG -= s.siNRBG
				rbgUsed += uint64(s.siNRBG)
				bcCount++
			} else {
				s.observer.ObserveTbsTooLarge()
			}
		} else {
			s.observer.ObserveCce(false)
		}
	}

	// 2. RAR (spec.md §4.4).
	for _, raID := range s.rarRing.ExpireWindow(tti, s.cellCfg.PrachRarWindow) {
		s.logger.Warn("rar window expired, dropping RACH detection", "tti", tti, "ra_id", raID)
		s.observer.ObserveRar(false)
	}
	for _, pending := range s.rarRing.DueAt(tti) {
		if availRBG < 1 {
			break
		}
		loc, err := s.cceBitmap.Allocate(constants.RarAggrLevel, nil)
		if err != nil {
			s.logger.Warn("cce exhausted for rar", "tti", tti, "ra_id", pending.RaID)
			s.observer.ObserveCce(false)
			break // at most one RAR attempted per TTI regardless of outcome
		}
		s.observer.ObserveCce(true)

		rba := dci.Type2ToRiv(constants.Msg3LPRB, constants.Msg3NPRB, s.cellCfg.NofPRB)
		d, err := dci.BuildFormat1A(startRBG*s.rbgP, constants.RarNRB, pending.EstimatedSize*8, 0)
		if err != nil {
			s.logger.Warn("tbs too large for rar", "tti", tti, "ra_id", pending.RaID)
			s.observer.ObserveTbsTooLarge()
			break
		}

		s.rarRing.ReserveMsg3(tti, pending.Rnti, constants.Msg3NPRB, constants.Msg3LPRB, constants.Msg3MCS)
		rarnti := (pending.RarTti + 1) % constants.SubframesPerFrame

		res.Rar = append(res.Rar, DlSchedRar{
			Rarnti:      rarnti,
			Dci:         d,
			DciLocation: loc,
			Tbs:         d.Tbs,
			Grants: []RarGrant{{
				RaID:     pending.RaID,
				TpcPusch: constants.RarTPCPusch,
				TruncMcs: constants.RarTruncMCS,
				Rba:      rba,
			}},
		})
		// Only one RA is answered per RAR: other detections sharing this
		// rar_tti are logged and stay pending for a later TTI.
		for _, other := range s.rarRing.DueAt(tti) {
			if other != pending && other.RarTti == pending.RarTti {
				s.logger.Warn("one RA per RAR, leaving RACH detection pending", "tti", tti, "ra_id", other.RaID)
			}
		}
		s.rarRing.Consume(pending)
		startRBG += 1
		availRBG -= 1
		rbgUsed++
		rarCount++
		s.observer.ObserveRar(true)
		break // at most one RAR element emitted per TTI (spec.md §3 invariant)
	}

	// 3. Per-user data (spec.md §4.5). Retransmissions are serviced
	// directly against the HARQ process the NACK marked (spec.md §4.7:
	// "retransmission uses identical RBG mask"); the DL metric is
	// consulted afterwards, by which time a retransmitted process carries
	// this TTI and is no longer empty, so a metric that only grants empty
	// processes (as the reference round-robin metric does) never
	// reassigns it.
	idx := dlHarqIdxFor(tti)
	for _, rnti := range s.db.SortedRntis() {
		u, ok := s.db.Get(rnti)
		if !ok || !u.PhyEnabled {
			continue
		}
		proc := &u.DlHarq[idx]
		if !proc.NeedsRetx {
			continue
		}
		aggrLevel := dciAggrLevel(u.DlCqi, u.Cfg.MaxAggrL)
		loc, err := s.cceBitmap.Allocate(aggrLevel, reservedFor(u, tti))
		if err != nil {
			s.logger.WithRnti(rnti).WithTti(tti).Warn("cce exhausted for dl retx")
			s.observer.ObserveCce(false)
			continue
		}
		s.observer.ObserveCce(true)

		rv := dci.RvIdx(proc.NofRetx)
		d, err := dci.BuildFormat1A(rbgMaskStart(proc.Rbg, s.rbgP), rbgMaskLen(proc.Rbg, s.rbgP), proc.Tbs, rv)
		if err != nil {
			s.logger.WithRnti(rnti).WithTti(tti).Warn("tbs too large for dl retx")
			s.observer.ObserveTbsTooLarge()
			continue
		}
		proc.Tti = tti
		proc.Rv = rv
		proc.NeedsRetx = false
		res.Data = append(res.Data, DlSchedData{Rnti: rnti, Dci: d, DciLocation: loc, Tbs: d.Tbs})
		retx++
	}

	s.dlMetric.NewTTI(s.db, startRBG, availRBG, nofCtrlSymbols, tti)
	for _, rnti := range s.db.SortedRntis() {
		u, ok := s.db.Get(rnti)
		if !ok || !u.PhyEnabled {
			continue
		}
		proc := s.dlMetric.GetUserAllocation(rnti)
		if proc == nil {
			continue
		}
		aggrLevel := dciAggrLevel(u.DlCqi, u.Cfg.MaxAggrL)
		loc, err := s.cceBitmap.Allocate(aggrLevel, reservedFor(u, tti))
		if err != nil {
			s.logger.WithRnti(rnti).WithTti(tti).Warn("cce exhausted for dl data")
			s.observer.ObserveCce(false)
			continue
		}
		s.observer.ObserveCce(true)

		rv := dci.RvIdx(proc.NofRetx)
		d, err := dci.BuildFormat1A(rbgMaskStart(proc.Rbg, s.rbgP), rbgMaskLen(proc.Rbg, s.rbgP), maxTbsBytes(proc.Tbs, true), rv)
		if err != nil {
			s.logger.WithRnti(rnti).WithTti(tti).Warn("tbs too large for dl data")
			s.observer.ObserveTbsTooLarge()
			continue
		}
		// GetUserAllocation hands back a copy; write the materialized TBS
		// and RV back into the real process so a later dl_ack_info sees
		// them (spec.md §4.7).
		real := &u.DlHarq[idx]
		real.Tbs = d.Tbs
		real.Rv = rv
		res.Data = append(res.Data, DlSchedData{Rnti: rnti, Dci: d, DciLocation: loc, Tbs: d.Tbs})
		newTx++
	}

	s.observer.ObserveDlSched(newTx, retx, bcCount, rarCount, rbgUsed, uint64(time.Since(start)))
	return res
}

// dciAggrLevel picks the UE-specific PDCCH aggregation level from DL CQI,
// a simplified stand-in for the standard's CQI→aggregation-level table
// (lower CQI needs more CCEs for the same reliability).
func dciAggrLevel(cqi, maxAggrL int) int {
	level := 1
	switch {
	case cqi <= 3:
		level = 8
	case cqi <= 6:
		level = 4
	case cqi <= 9:
		level = 2
	default:
		level = 1
	}
	if maxAggrL > 0 && level > maxAggrL {
		level = maxAggrL
	}
	return level
}

func rbgMaskStart(mask uint64, rbgP int) int {
	for i := 0; i < 64; i++ {
		if mask&(1<<uint(i)) != 0 {
			return i * rbgP
		}
	}
	return 0
}

func rbgMaskLen(mask uint64, rbgP int) int {
	count := 0
	for i := 0; i < 64; i++ {
		if mask&(1<<uint(i)) != 0 {
			count++
		}
	}
	if count == 0 {
		count = 1
	}
	return count * rbgP
}

func maxTbsBytes(currentTbs int, isNewTx bool) int {
	if !isNewTx && currentTbs > 0 {
		return currentTbs
	}
	if currentTbs > 0 {
		return currentTbs
	}
	return 8 // minimum payload so BuildFormat1A's search always has a floor
}

// UlSched computes the uplink schedule for the uplink TTI tti (spec.md
// §4.6); no offset is added to tti here, so a caller scheduling the
// uplink 4 TTIs ahead of its DL TTI passes that later TTI. Step order is
// pinned exactly: CCE reset, PHICH, UL metric
// new_tti, Msg3 pre-reservation, PUCCH pre-reservation, PUSCH.
func (s *Scheduler) UlSched(tti int) UlSchedRes {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res UlSchedRes
	if !s.configured {
		s.logger.Debug("ul_sched called before cell_cfg", "tti", tti)
		return res
	}

	start := time.Now()

	// 1. CCE reset (conditional).
	s.ensureCceReset(tti)

	// 2. PHICH.
	for _, rnti := range s.db.SortedRntis() {
		u, ok := s.db.Get(rnti)
		if !ok {
			continue
		}
		for i := range u.UlHarq {
			p := &u.UlHarq[i]
			if p.PendingAck {
				res.Phich = append(res.Phich, UlSchedPhich{Rnti: rnti, Ack: p.LastAckOk})
				p.PendingAck = false
			}
		}
	}

	// 3. UL metric new_tti.
	s.ulMetric.NewTTI(s.db, s.cellCfg.NofPRB, tti)

	// 4. Msg3 pre-reservation.
	msg3, hasMsg3 := s.rarRing.Msg3At(tti)
	if hasMsg3 {
		s.ulMetric.UpdateAllocation(metric.RBAlloc{RBStart: msg3.RBStart, L: msg3.L})
	}

	// 5. PUCCH pre-reservation.
	for _, rnti := range s.db.SortedRntis() {
		u, ok := s.db.Get(rnti)
		if !ok {
			continue
		}
		if u.Pucch.Valid && u.Pucch.Tti == tti {
			s.ulMetric.UpdateAllocation(metric.RBAlloc{RBStart: u.Pucch.NCCEStart, L: u.Pucch.L})
		}
	}

	// 6. PUSCH allocation.
	var newTx, retx, msg3Count uint64

	// UL HARQ retransmissions are serviced directly against the UE's
	// stuck process before the UL metric is ever consulted, mirroring the
	// DL retx loop above: a non-adaptive retransmission reuses the
	// original allocation verbatim and needs no PDCCH (spec.md §4.6 step
	// 6: "needs_pdcch = !adaptive_retx && !is_rar"; spec.md §4.7:
	// "retransmission uses identical RBG mask").
	idxUl := ulHarqIdxFor(tti)
	for _, rnti := range s.db.SortedRntis() {
		u, ok := s.db.Get(rnti)
		if !ok || !u.PhyEnabled {
			continue
		}
		if hasMsg3 && msg3.Rnti == rnti {
			continue // Msg3 owner is handled below, not a retransmission
		}
		proc := &u.UlHarq[idxUl]
		if proc.Empty() || !proc.NeedsRetx {
			continue
		}
		proc.Tti = tti
		proc.Rv = dci.RvIdx(proc.NofRetx)
		proc.NeedsRetx = false
		s.ulMetric.UpdateAllocation(metric.RBAlloc{RBStart: proc.RBStart, L: proc.L})
		res.Pusch = append(res.Pusch, UlSchedPusch{
			Rnti:       rnti,
			NeedsPdcch: false,
			Tbs:        proc.Tbs,
			Alloc:      metric.RBAlloc{RBStart: proc.RBStart, L: proc.L},
		})
		retx++
	}

	for _, rnti := range s.db.SortedRntis() {
		u, ok := s.db.Get(rnti)
		if !ok || !u.PhyEnabled {
			continue
		}

		if hasMsg3 && msg3.Rnti == rnti {
			idx := ulHarqIdxFor(tti)
			proc := &u.UlHarq[idx]
			hasMsg3 = false // reservation is consumed exactly once, success or not
			if !proc.Empty() {
				s.logger.WithRnti(rnti).WithTti(tti).Warn("msg3 owner's ul harq process already in use")
				s.observer.ObserveMsg3HarqUnavailable()
				continue
			}
			proc.Tti = tti
			proc.RBStart = msg3.RBStart
			proc.L = msg3.L
			proc.Tbs = dci.TbsFromIdx(msg3.Mcs, msg3.L)
			proc.NewData = true
			proc.IsMsg3 = true
			proc.MaxRetx = s.cellCfg.MaxHarqMsg3Tx

			res.Pusch = append(res.Pusch, UlSchedPusch{
				Rnti:       rnti,
				NeedsPdcch: false,
				Tbs:        proc.Tbs,
				Alloc:      metric.RBAlloc{RBStart: msg3.RBStart, L: msg3.L},
			})
			msg3Count++
			continue
		}

		proc := s.ulMetric.GetUserAllocation(rnti)
		if proc == nil {
			continue
		}

		// Non-adaptive retransmissions and RAR-granted Msg3 are both
		// serviced above without ever calling GetUserAllocation, so
		// whatever the UL metric hands out here is new data or an
		// adaptive retx — either way it needs a PDCCH (spec.md §4.6 step
		// 6: "needs_pdcch = !adaptive_retx && !is_rar").
		needsPdcch := true
		aggrLevel := dciAggrLevel(u.UlCqi, u.Cfg.MaxAggrL)
		loc, err := s.cceBitmap.Allocate(aggrLevel, reservedFor(u, tti))
		if err != nil {
			s.logger.WithRnti(rnti).WithTti(tti).Warn("cce exhausted for ul grant")
			s.observer.ObserveCce(false)
			continue
		}
		s.observer.ObserveCce(true)

		tbs := dci.TbsFromIdx(s.schedCfg.PuschMCS, proc.L)
		if tbs <= 0 {
			tbs = dci.TbsFromIdx(10, proc.L)
		}
		// GetUserAllocation hands back a copy; write the materialized TBS
		// back into the real process so a later ul_crc_info sees it.
		real := &u.UlHarq[ulHarqIdxFor(tti)]
		real.Tbs = tbs
		isNewTx := proc.NewData
		if isNewTx {
			u.UnsetSr()
			newTx++
		} else {
			retx++
		}

		res.Pusch = append(res.Pusch, UlSchedPusch{
			Rnti:        rnti,
			NeedsPdcch:  needsPdcch,
			DciLocation: loc,
			Tbs:         tbs,
			Alloc:       metric.RBAlloc{RBStart: proc.RBStart, L: proc.L},
		})
	}

	s.observer.ObserveUlSched(newTx, retx, msg3Count, uint64(time.Since(start)))
	if hasMsg3 {
		s.logger.WithRnti(msg3.Rnti).WithTti(tti).Warn("msg3 owner had no free ul harq process")
		s.observer.ObserveMsg3HarqUnavailable()
	}
	return res
}

func ulHarqIdxFor(tti int) int {
	return ((tti % constants.TTIWrap) + constants.TTIWrap) % constants.NumULHarqProcesses
}

func dlHarqIdxFor(tti int) int {
	return ((tti % constants.TTIWrap) + constants.TTIWrap) % constants.NumDLHarqProcesses
}
