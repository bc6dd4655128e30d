package sched

import (
	"errors"

	"github.com/lteran/enb-sched/internal/scherr"
)

// Error is the structured error type returned by control-plane entry
// points; see internal/scherr for its fields. Re-exported here so callers
// never need to import the internal package directly.
type Error = scherr.Error

// Error codes (spec.md §7). Test for one with IsCode(err, ErrCodeUnknownRnti),
// or extract the *Error with errors.As and compare its Code field.
const (
	ErrCodeUnknownRnti             = scherr.UnknownRnti
	ErrCodeNoFreeRarSlot           = scherr.NoFreeRarSlot
	ErrCodeRarWindowExpired        = scherr.RarWindowExpired
	ErrCodeCceExhausted            = scherr.CceExhausted
	ErrCodeNoFreeDciCandidate      = scherr.NoFreeDciCandidate
	ErrCodeTbsTooLarge             = scherr.TbsTooLarge
	ErrCodeHarqUnavailableForMsg3  = scherr.HarqUnavailableForMsg3
	ErrCodeInvalidCellCfg          = scherr.InvalidCellCfg
)

// IsCode reports whether err is a *Error carrying the given code.
func IsCode(err error, code scherr.Code) bool {
	var se *scherr.Error
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// unknownRnti builds the error set_ack_info/set_ul_crc/etc. return when
// the caller addresses a RNTI that was never configured or already
// removed (spec.md §3: "feedback for a missing RNTI is an error, not an
// assertion").
func unknownRnti(op string, rnti uint16) error {
	return scherr.NewRnti(op, scherr.UnknownRnti, rnti, "rnti not found")
}
