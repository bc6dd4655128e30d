// Package scherr provides the structured error type shared by the
// scheduler's public package and its internal components, so that
// internal/ue and the root sched package can both produce and compare
// the same error codes without an import cycle.
package scherr

import (
	"errors"
	"fmt"
)

// Code classifies a scheduler error (spec.md §7).
type Code string

const (
	// UnknownRnti: feedback addressed a RNTI that was never configured or
	// has since been removed. Returned to the caller, never asserted.
	UnknownRnti Code = "unknown_rnti"

	// NoFreeRarSlot: dl_rach_info found the pending-RAR ring full.
	NoFreeRarSlot Code = "no_free_rar_slot"

	// RarWindowExpired: a pending RAR aged out of its window before it
	// could be scheduled.
	RarWindowExpired Code = "rar_window_expired"

	// CceExhausted: no collision-free CCE span exists at the requested
	// aggregation level this TTI.
	CceExhausted Code = "cce_exhausted"

	// NoFreeDciCandidate: no DCI candidate exists at all for the requested
	// aggregation level. The internal/cce allocator does not produce it; it
	// reports zero candidates as CceExhausted as well.
	NoFreeDciCandidate Code = "no_free_dci_candidate"

	// TbsTooLarge: format1a's MCS search (0..26) found nothing that meets
	// the requested payload.
	TbsTooLarge Code = "tbs_too_large"

	// HarqUnavailableForMsg3: a RAR-granted Msg3 owner had no free UL HARQ
	// process at the reserved TTI.
	HarqUnavailableForMsg3 Code = "harq_unavailable_for_msg3"

	// InvalidCellCfg: cell_cfg was called with a malformed configuration
	// (e.g. si_window_ms == 0).
	InvalidCellCfg Code = "invalid_cell_cfg"
)

// Error is the structured error type returned from control-plane entry
// points and logged (never returned) from the hot path.
type Error struct {
	Op    string // operation that failed, e.g. "dl_ack_info"
	Code  Code
	Tti   int32 // -1 if not applicable
	Rnti  int32 // -1 if not applicable (RNTI 0 is reserved, never valid)
	Msg   string
	Inner error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	switch {
	case e.Rnti >= 0 && e.Tti >= 0:
		return fmt.Sprintf("sched: %s: %s (rnti=0x%x tti=%d)", e.Op, msg, e.Rnti, e.Tti)
	case e.Rnti >= 0:
		return fmt.Sprintf("sched: %s: %s (rnti=0x%x)", e.Op, msg, e.Rnti)
	case e.Tti >= 0:
		return fmt.Sprintf("sched: %s: %s (tti=%d)", e.Op, msg, e.Tti)
	default:
		return fmt.Sprintf("sched: %s: %s", e.Op, msg)
	}
}

func (e *Error) Unwrap() error { return e.Inner }

// Is supports errors.Is(err, scherr.New("", code, "")) and comparing
// directly against a Code-carrying sentinel.
func (e *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == te.Code
}

// New creates a structured error with no TTI/RNTI context.
func New(op string, code Code, msg string) *Error {
	return &Error{Op: op, Code: code, Tti: -1, Rnti: -1, Msg: msg}
}

// NewRnti creates a structured error scoped to a RNTI.
func NewRnti(op string, code Code, rnti uint16, msg string) *Error {
	return &Error{Op: op, Code: code, Tti: -1, Rnti: int32(rnti), Msg: msg}
}

// NewTti creates a structured error scoped to a TTI and RNTI.
func NewTti(op string, code Code, tti int, rnti uint16, msg string) *Error {
	return &Error{Op: op, Code: code, Tti: int32(tti), Rnti: int32(rnti), Msg: msg}
}

// Is reports whether err carries the given Code.
func Is(err error, code Code) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}
