package cce

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lteran/enb-sched/internal/scherr"
)

func TestAllocateNonOverlapping(t *testing.T) {
	b := New(16)

	loc1, err := b.Allocate(2, nil)
	require.NoError(t, err)
	assert.Equal(t, Location{L: 2, Ncce: 0}, loc1)

	loc2, err := b.Allocate(2, nil)
	require.NoError(t, err)
	assert.Equal(t, Location{L: 2, Ncce: 2}, loc2)

	assert.False(t, overlap(loc1, loc2))
}

func overlap(a, b Location) bool {
	return a.Ncce < b.Ncce+b.L && b.Ncce < a.Ncce+a.L
}

func TestAllocateExhaustion(t *testing.T) {
	b := New(4)

	_, err := b.Allocate(4, nil)
	require.NoError(t, err)

	_, err = b.Allocate(1, nil)
	require.Error(t, err)
	assert.True(t, scherr.Is(err, scherr.CceExhausted))
}

func TestAllocateSkipsReservedCandidate(t *testing.T) {
	b := New(8)

	reserved := func(ncce int) bool { return ncce == 0 || ncce == 1 }
	loc, err := b.Allocate(2, reserved)
	require.NoError(t, err)
	assert.Equal(t, Location{L: 2, Ncce: 2}, loc)
}

func TestResetClearsUsage(t *testing.T) {
	b := New(8)
	_, err := b.Allocate(2, nil)
	require.NoError(t, err)

	b.Reset(8)

	loc, err := b.Allocate(2, nil)
	require.NoError(t, err)
	assert.Equal(t, Location{L: 2, Ncce: 0}, loc)
}
