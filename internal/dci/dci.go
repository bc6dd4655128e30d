// Package dci implements the DCI/TBS primitives the scheduler needs to
// materialize a grant: the type-0 RBG sizing rule, the type-2 RIV
// encoding used by Format 0/1A resource indication, the Format 1A MCS
// search, the RV cycling sequence, and a compact wire encoding for the
// grants handed to the PHY boundary (spec.md §1: "the PHY layer... is an
// external collaborator that executes the decisions this component
// makes").
package dci

import (
	"encoding/binary"

	"github.com/lteran/enb-sched/internal/constants"
	"github.com/lteran/enb-sched/internal/scherr"
)

// Type0RBGSize returns P, the number of PRBs grouped into one RBG for a
// type-0 allocation at the given cell bandwidth (3GPP TS 36.213 table
// 7.1.6.1-1, the "P = type0_rbg_size(nof_prb)" library function named in
// spec.md §3).
func Type0RBGSize(nofPRB int) int {
	switch {
	case nofPRB <= 10:
		return 1
	case nofPRB <= 26:
		return 2
	case nofPRB <= 63:
		return 3
	default:
		return 4
	}
}

// rvSequence is the standard HARQ redundancy-version cycle (3GPP TS
// 36.213 table 7.2.2-1 column for 4 RV states); spec.md §8 scenario S1
// expects exactly this cycle for SIB1.
var rvSequence = [4]int{0, 2, 3, 1}

// RvIdx returns the redundancy version for the given (re)transmission
// count, 0 for a new transmission.
func RvIdx(nofRetx int) int {
	return rvSequence[nofRetx%len(rvSequence)]
}

// Type2ToRiv computes the Resource Indication Value for a contiguous type-2
// allocation of L PRBs starting at rbStart, within a cell of nofPRB PRBs
// (3GPP TS 36.213 §8.1.1). Invertible via RivToType2 (spec.md §8
// round-trip property).
func Type2ToRiv(l, rbStart, nofPRB int) int {
	if l <= 0 || l > nofPRB-rbStart {
		l = nofPRB - rbStart
	}
	if (l-1) <= nofPRB/2 {
		return nofPRB*(l-1) + rbStart
	}
	return nofPRB*(nofPRB-l+1) + (nofPRB - 1 - rbStart)
}

// RivToType2 is the inverse of Type2ToRiv.
func RivToType2(riv, nofPRB int) (l, rbStart int) {
	a := riv / nofPRB
	b := riv % nofPRB
	if a+b < nofPRB {
		return a + 1, b
	}
	return nofPRB - a + 1, nofPRB - 1 - b
}

// tbsStandIn is a monotone stand-in for the 3GPP TS 36.213 table 7.1.7.1-1
// TBS table: the real table is a lookup collaborator outside this
// component's scope (spec.md §1). It grows with both MCS index and
// allocated PRBs so format1a's search below still behaves like the real
// table (larger MCS or more PRBs never yields a smaller TBS).
func tbsStandIn(mcsIdx, nPRB int) int {
	if mcsIdx < 0 {
		mcsIdx = 0
	}
	if nPRB < 1 {
		nPRB = 1
	}
	// Bits-per-PRB scales roughly linearly with MCS index, from ~16 (QPSK,
	// low code rate) to ~saturating near 64QAM full rate.
	bitsPerPRB := 16 + mcsIdx*20
	return bitsPerPRB * nPRB
}

// TbsFromIdx returns the transport block size, in bits, for the given MCS
// index and allocated PRB count.
func TbsFromIdx(mcsIdx, nPRB int) int {
	return tbsStandIn(mcsIdx, nPRB)
}

// Format1A is the compact DCI format 1A/0 descriptor handed to the PHY
// boundary: a fixed-size, PHY-facing grant record (not a 3GPP bit-level
// DCI payload — that packing belongs to the PHY collaborator).
type Format1A struct {
	RBStart int
	LCrb    int
	Mcs     int
	Rv      int
	Tbs     int
	TpcPusch int
	HarqProcess int
	Ndi     bool
}

// BuildFormat1A searches MCS 0..MaxFormat1AMCS for the smallest index whose
// TBS at lCrb PRBs meets minTbsBits, mirroring the source's linear MCS
// search (spec.md §9: "Format 1A MCS search iterates 0..26... treat 'no
// MCS found' as the single failure condition").
func BuildFormat1A(rbStart, lCrb, minTbsBits, rv int) (Format1A, error) {
	for mcs := 0; mcs <= constants.MaxFormat1AMCS; mcs++ {
		tbs := TbsFromIdx(mcs, lCrb)
		if tbs >= minTbsBits {
			return Format1A{
				RBStart: rbStart,
				LCrb:    lCrb,
				Mcs:     mcs,
				Rv:      rv,
				Tbs:     tbs,
			}, nil
		}
	}
	return Format1A{}, scherr.New("format1a", scherr.TbsTooLarge, "no mcs index met requested tbs")
}

// wireFormat1ASize is the byte length of the packed wire encoding below.
const wireFormat1ASize = 20

// Marshal packs a Format1A grant into its fixed-size PHY wire encoding
// using explicit little-endian field placement (grounded on the teacher's
// hand-rolled encoding/binary struct packing, repurposed from kernel ioctl
// structs to a DCI descriptor).
func Marshal(d Format1A) []byte {
	buf := make([]byte, wireFormat1ASize)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(d.RBStart))
	binary.LittleEndian.PutUint16(buf[2:4], uint16(d.LCrb))
	binary.LittleEndian.PutUint16(buf[4:6], uint16(d.Mcs))
	binary.LittleEndian.PutUint16(buf[6:8], uint16(d.Rv))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(d.Tbs))
	binary.LittleEndian.PutUint16(buf[12:14], uint16(d.TpcPusch))
	binary.LittleEndian.PutUint16(buf[14:16], uint16(d.HarqProcess))
	ndi := uint32(0)
	if d.Ndi {
		ndi = 1
	}
	binary.LittleEndian.PutUint32(buf[16:20], ndi)
	return buf
}

// Unmarshal is the inverse of Marshal.
func Unmarshal(data []byte) (Format1A, error) {
	if len(data) < wireFormat1ASize {
		return Format1A{}, scherr.New("dci_unmarshal", scherr.InvalidCellCfg, "short buffer")
	}
	d := Format1A{
		RBStart:     int(binary.LittleEndian.Uint16(data[0:2])),
		LCrb:        int(binary.LittleEndian.Uint16(data[2:4])),
		Mcs:         int(binary.LittleEndian.Uint16(data[4:6])),
		Rv:          int(binary.LittleEndian.Uint16(data[6:8])),
		Tbs:         int(binary.LittleEndian.Uint32(data[8:12])),
		TpcPusch:    int(binary.LittleEndian.Uint16(data[12:14])),
		HarqProcess: int(binary.LittleEndian.Uint16(data[14:16])),
		Ndi:         binary.LittleEndian.Uint32(data[16:20]) != 0,
	}
	return d, nil
}
