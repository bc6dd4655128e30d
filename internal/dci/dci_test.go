package dci

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lteran/enb-sched/internal/scherr"
)

func TestType0RBGSize(t *testing.T) {
	assert.Equal(t, 1, Type0RBGSize(6))
	assert.Equal(t, 1, Type0RBGSize(10))
	assert.Equal(t, 2, Type0RBGSize(11))
	assert.Equal(t, 2, Type0RBGSize(25))
	assert.Equal(t, 3, Type0RBGSize(50))
	assert.Equal(t, 4, Type0RBGSize(100))
}

func TestRvIdxCyclesStandardSequence(t *testing.T) {
	assert.Equal(t, 0, RvIdx(0))
	assert.Equal(t, 2, RvIdx(1))
	assert.Equal(t, 3, RvIdx(2))
	assert.Equal(t, 1, RvIdx(3))
	assert.Equal(t, 0, RvIdx(4))
}

func TestType2RivRoundTrip(t *testing.T) {
	nofPRB := 50
	for l := 1; l <= nofPRB; l++ {
		for start := 0; start+l <= nofPRB; start++ {
			riv := Type2ToRiv(l, start, nofPRB)
			gotL, gotStart := RivToType2(riv, nofPRB)
			assert.Equal(t, l, gotL, "l=%d start=%d", l, start)
			assert.Equal(t, start, gotStart, "l=%d start=%d", l, start)
		}
	}
}

func TestType2ToRivMsg3Example(t *testing.T) {
	// spec.md S2: rba = type2_to_riv(3, 2, 50).
	riv := Type2ToRiv(3, 2, 50)
	l, start := RivToType2(riv, 50)
	assert.Equal(t, 3, l)
	assert.Equal(t, 2, start)
}

func TestBuildFormat1AFindsIncreasingTbs(t *testing.T) {
	d, err := BuildFormat1A(0, 6, 500, 0)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, d.Tbs, 500)
	assert.GreaterOrEqual(t, d.Mcs, 0)
}

func TestBuildFormat1ATooLarge(t *testing.T) {
	_, err := BuildFormat1A(0, 1, 1_000_000_000, 0)
	require.Error(t, err)
	assert.True(t, scherr.Is(err, scherr.TbsTooLarge))
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	d := Format1A{RBStart: 4, LCrb: 10, Mcs: 12, Rv: 2, Tbs: 712, TpcPusch: 1, HarqProcess: 3, Ndi: true}
	buf := Marshal(d)
	got, err := Unmarshal(buf)
	require.NoError(t, err)
	assert.Equal(t, d, got)
}

func TestUnmarshalShortBuffer(t *testing.T) {
	_, err := Unmarshal([]byte{1, 2, 3})
	require.Error(t, err)
}
