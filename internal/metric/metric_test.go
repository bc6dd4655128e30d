package metric

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lteran/enb-sched/internal/ue"
)

func TestRoundRobinDLGrantsPendingUE(t *testing.T) {
	db := ue.NewDB()
	u := db.Add(0x46, ue.Cfg{})
	u.SetPhyConfigEnabled(true)
	u.DlBufferState(3, 1000, 0)

	rr := NewRoundRobinDL()
	rr.NewTTI(db, 0, 5, 3, 10)

	proc := rr.GetUserAllocation(0x46)
	require.NotNil(t, proc)
	assert.True(t, proc.NewData)
}

func TestRoundRobinDLSkipsUEWithNoData(t *testing.T) {
	db := ue.NewDB()
	u := db.Add(0x46, ue.Cfg{})
	u.SetPhyConfigEnabled(true)

	rr := NewRoundRobinDL()
	rr.NewTTI(db, 0, 5, 3, 10)

	assert.Nil(t, rr.GetUserAllocation(0x46))
}

func TestRoundRobinDLRotatesAcrossTtis(t *testing.T) {
	db := ue.NewDB()
	a := db.Add(0x10, ue.Cfg{})
	a.SetPhyConfigEnabled(true)
	a.DlBufferState(0, 500, 0)
	b := db.Add(0x20, ue.Cfg{})
	b.SetPhyConfigEnabled(true)
	b.DlBufferState(0, 500, 0)

	rr := NewRoundRobinDL()

	rr.NewTTI(db, 0, 5, 3, 0)
	first := rr.grantRnti

	// free the process the first UE was granted so it is eligible again
	db2, _ := db.Get(first)
	for i := range db2.DlHarq {
		db2.DlHarq[i].Tti = -1
	}

	rr.NewTTI(db, 0, 5, 3, 8) // same HARQ index as tti 0 (8%8 == 0); the loop above freed it
	second := rr.grantRnti

	assert.NotEqual(t, first, second)
}

func TestRoundRobinULReservationBlocksGrant(t *testing.T) {
	db := ue.NewDB()
	u := db.Add(0x46, ue.Cfg{})
	u.SetPhyConfigEnabled(true)
	u.UlBufferState(0, 200)

	rr := NewRoundRobinUL()
	rr.NewTTI(db, 50, 10)
	rr.UpdateAllocation(RBAlloc{RBStart: 0, L: 3}) // e.g. Msg3 pre-reservation

	proc := rr.GetUserAllocation(0x46)
	assert.Nil(t, proc, "the only candidate span collides with the pre-reservation")
}

func TestRoundRobinULGrantsPendingUE(t *testing.T) {
	db := ue.NewDB()
	u := db.Add(0x46, ue.Cfg{})
	u.SetPhyConfigEnabled(true)
	u.UlBufferState(0, 200)

	rr := NewRoundRobinUL()
	rr.NewTTI(db, 50, 10)

	proc := rr.GetUserAllocation(0x46)
	require.NotNil(t, proc)
	assert.True(t, proc.NewData)
}
