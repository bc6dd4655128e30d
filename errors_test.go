package sched

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lteran/enb-sched/internal/scherr"
)

func TestErrorMessageIncludesContext(t *testing.T) {
	err := scherr.NewTti("dl_ack_info", scherr.UnknownRnti, 120, 0x46, "rnti not found")
	msg := err.Error()
	assert.Contains(t, msg, "dl_ack_info")
	assert.Contains(t, msg, "0x46")
	assert.Contains(t, msg, "120")
}

func TestErrorMessageRntiOnly(t *testing.T) {
	err := scherr.NewRnti("ul_crc_info", scherr.UnknownRnti, 0x21, "rnti not found")
	msg := err.Error()
	assert.Contains(t, msg, "0x21")
	assert.NotContains(t, msg, "tti=")
}

func TestErrorMessageNoContext(t *testing.T) {
	err := scherr.New("cell_cfg", scherr.InvalidCellCfg, "si_window_ms must be > 0")
	assert.Equal(t, "sched: cell_cfg: si_window_ms must be > 0", err.Error())
}

func TestIsCodeMatches(t *testing.T) {
	err := unknownRnti("ul_crc_info", 0x55)
	assert.True(t, IsCode(err, ErrCodeUnknownRnti))
	assert.False(t, IsCode(err, ErrCodeCceExhausted))
}

func TestIsCodeNilError(t *testing.T) {
	assert.False(t, IsCode(nil, ErrCodeUnknownRnti))
}

func TestErrorsIsAgainstSentinelCode(t *testing.T) {
	err := unknownRnti("ul_phr", 0x10)
	sentinel := scherr.New("", scherr.UnknownRnti, "")
	assert.True(t, errors.Is(err, sentinel))

	other := scherr.New("", scherr.CceExhausted, "")
	assert.False(t, errors.Is(err, other))
}

func TestErrorUnwrap(t *testing.T) {
	inner := errors.New("boom")
	err := &scherr.Error{Op: "x", Code: scherr.CceExhausted, Tti: -1, Rnti: -1, Inner: inner}
	assert.Equal(t, inner, errors.Unwrap(err))
}

func TestErrorsAsExtractsCode(t *testing.T) {
	err := unknownRnti("bearer_ue_cfg", 0x99)
	var se *scherr.Error
	require := errors.As(err, &se)
	assert.True(t, require)
	assert.Equal(t, scherr.UnknownRnti, se.Code)
	assert.Equal(t, int32(0x99), se.Rnti)
}
