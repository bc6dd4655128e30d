package rach

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lteran/enb-sched/internal/constants"
)

func TestPushAndDueAt(t *testing.T) {
	r := New()
	ok := r.Push(100, 7, 0x46, 7)
	require.True(t, ok)

	rarTti := 100 + constants.RarMinDelay
	due := r.DueAt(rarTti)
	require.Len(t, due, 1)
	assert.Equal(t, uint8(7), due[0].RaID)
	assert.Equal(t, uint16(0x46), due[0].Rnti)

	assert.Empty(t, r.DueAt(rarTti-1))
}

func TestPushFillsRingThenRejects(t *testing.T) {
	r := New()
	for i := 0; i < constants.MaxPendingRar; i++ {
		ok := r.Push(0, uint8(i), uint16(i+1), 7)
		require.True(t, ok)
	}
	ok := r.Push(0, 99, 0xff, 7)
	assert.False(t, ok, "ring should be full")
}

func TestConsumeFreesSlot(t *testing.T) {
	r := New()
	r.Push(0, 1, 0x10, 7)
	due := r.DueAt(constants.RarMinDelay)
	require.Len(t, due, 1)

	r.Consume(due[0])
	assert.Empty(t, r.DueAt(constants.RarMinDelay))

	ok := r.Push(1, 2, 0x20, 7)
	assert.True(t, ok, "slot should be reusable after consume")
}

func TestExpireWindowDropsStaleEntries(t *testing.T) {
	r := New()
	r.Push(0, 3, 0x30, 7) // rarTti = 0, the detection TTI

	prachRarWindow := 3
	windowClose := 0 + prachRarWindow + constants.RarMinDelay

	dropped := r.ExpireWindow(windowClose, prachRarWindow)
	assert.Empty(t, dropped, "exactly at the boundary the entry must still be alive")

	dropped = r.ExpireWindow(windowClose+1, prachRarWindow)
	assert.Equal(t, []uint8{3}, dropped)

	assert.Empty(t, r.DueAt(constants.RarMinDelay))
}

func TestReserveAndConsumeMsg3(t *testing.T) {
	r := New()
	r.ReserveMsg3(100, 0x46, 2, 3, 0)

	slot := (100 + constants.RarToMsg3Delta) % constants.SubframesPerFrame

	res, ok := r.Msg3At(slot)
	require.True(t, ok)
	assert.Equal(t, uint16(0x46), res.Rnti)
	assert.Equal(t, 2, res.RBStart)
	assert.Equal(t, 3, res.L)

	_, ok = r.Msg3At(slot)
	assert.False(t, ok, "msg3 reservation must be consumed exactly once")
}

func TestReset(t *testing.T) {
	r := New()
	r.Push(0, 1, 0x10, 7)
	r.ReserveMsg3(0, 0x10, 2, 3, 0)

	r.Reset()

	assert.Empty(t, r.DueAt(constants.RarMinDelay))
	_, ok := r.Msg3At(constants.RarToMsg3Delta)
	assert.False(t, ok)
}
