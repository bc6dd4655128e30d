package ue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lteran/enb-sched/internal/constants"
)

func TestNewUEStartsWithEmptyHarq(t *testing.T) {
	u := New(0x46, Cfg{})
	for _, p := range u.DlHarq {
		assert.True(t, p.Empty())
	}
	for _, p := range u.UlHarq {
		assert.True(t, p.Empty())
	}
}

func TestSetAckInfoReferencesRttTti(t *testing.T) {
	u := New(0x46, Cfg{})
	idx := dlHarqIdx(12)
	u.DlHarq[idx] = DLHarqProc{Tti: 12, Tbs: 256}

	tbs, err := u.SetAckInfo(12+constants.DLHarqRTT, true)
	require.NoError(t, err)
	assert.Equal(t, 256, tbs)
	assert.True(t, u.DlHarq[idx].Empty())
}

func TestSetAckInfoNackMarksNeedsRetx(t *testing.T) {
	u := New(0x46, Cfg{})
	idx := dlHarqIdx(12)
	u.DlHarq[idx] = DLHarqProc{Tti: 12, Tbs: 256}

	tbs, err := u.SetAckInfo(12+constants.DLHarqRTT, false)
	require.NoError(t, err)
	assert.Zero(t, tbs)
	assert.True(t, u.DlHarq[idx].NeedsRetx)
	assert.False(t, u.DlHarq[idx].Empty())
}

func TestSetAckInfoDiscardsAfterMaxRetx(t *testing.T) {
	u := New(0x46, Cfg{})
	idx := dlHarqIdx(12)
	u.DlHarq[idx] = DLHarqProc{Tti: 12, NofRetx: 4}

	_, err := u.SetAckInfo(12+constants.DLHarqRTT, false)
	require.NoError(t, err)
	assert.True(t, u.DlHarq[idx].Empty())
	assert.False(t, u.DlHarq[idx].NeedsRetx)
}

func TestSetUlCrcOkClearsProcess(t *testing.T) {
	u := New(0x46, Cfg{})
	idx := ulHarqIdx(20)
	u.UlHarq[idx] = ULHarqProc{Tti: 20, MaxRetx: -1}

	err := u.SetUlCrc(20+constants.ULGrantToTxDelta, true)
	require.NoError(t, err)
	assert.True(t, u.UlHarq[idx].Empty())
	assert.True(t, u.UlHarq[idx].PendingAck)
}

func TestPendingDlAndUlData(t *testing.T) {
	u := New(0x46, Cfg{})
	assert.False(t, u.GetPendingDlNewData())
	u.DlBufferState(3, 1500, 0)
	assert.True(t, u.GetPendingDlNewData())

	assert.False(t, u.GetPendingUlNewData())
	u.UlBufferState(0, 100)
	assert.True(t, u.GetPendingUlNewData())
}

func TestTpcSaturates(t *testing.T) {
	u := New(0x46, Cfg{})
	for i := 0; i < constants.MaxTPCAccum+5; i++ {
		u.TpcInc()
	}
	assert.Equal(t, constants.MaxTPCAccum, u.TpcAccum)

	for i := 0; i < 2*constants.MaxTPCAccum+5; i++ {
		u.TpcDec()
	}
	assert.Equal(t, -constants.MaxTPCAccum, u.TpcAccum)
}

func TestPucchSrCollision(t *testing.T) {
	u := New(0x46, Cfg{})
	u.Pucch = PucchReservation{Valid: true, Tti: 50, NCCEStart: 4, L: 2}

	assert.True(t, u.PucchSrCollision(50, 4))
	assert.True(t, u.PucchSrCollision(50, 5))
	assert.False(t, u.PucchSrCollision(50, 6))
	assert.False(t, u.PucchSrCollision(51, 4))
}

func TestDBSortedRntisAscending(t *testing.T) {
	db := NewDB()
	db.Add(0x50, Cfg{})
	db.Add(0x10, Cfg{})
	db.Add(0x30, Cfg{})

	assert.Equal(t, []uint16{0x10, 0x30, 0x50}, db.SortedRntis())
}

func TestDBRemoveAndExists(t *testing.T) {
	db := NewDB()
	db.Add(0x46, Cfg{})
	_, ok := db.Get(0x46)
	assert.True(t, ok)

	db.Remove(0x46)
	_, ok = db.Get(0x46)
	assert.False(t, ok)
}

func TestDBResetClearsAllUEs(t *testing.T) {
	db := NewDB()
	db.Add(0x46, Cfg{})
	db.Add(0x47, Cfg{})
	require.Equal(t, 2, db.Len())

	db.Reset()
	assert.Zero(t, db.Len())
}
