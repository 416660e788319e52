package series

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSet_SeriesAreIndependent(t *testing.T) {
	s, err := NewSet(3, DashboardNames...)
	require.NoError(t, err)

	require.NoError(t, s.Push(CPU, 50))

	assert.Equal(t, []float64{0, 0, 50}, s.Snapshot(CPU))
	for _, name := range []Name{Memory, GPU, NetIn, NetOut} {
		assert.Equal(t, []float64{0, 0, 0}, s.Snapshot(name), name)
	}
}

func TestSet_PushPair(t *testing.T) {
	s, err := NewSet(2, NetIn, NetOut)
	require.NoError(t, err)

	require.NoError(t, s.PushPair(NetIn, 2.0, NetOut, 1.0))

	assert.Equal(t, []float64{0, 2}, s.Snapshot(NetIn))
	assert.Equal(t, []float64{0, 1}, s.Snapshot(NetOut))
}

func TestSet_PushPairUnknownLeavesBothUntouched(t *testing.T) {
	s, err := NewSet(2, NetIn)
	require.NoError(t, err)

	err = s.PushPair(NetIn, 2.0, NetOut, 1.0)
	require.Error(t, err)
	assert.Equal(t, []float64{0, 0}, s.Snapshot(NetIn))
}

func TestSet_UnknownName(t *testing.T) {
	s, err := NewSet(2, CPU)
	require.NoError(t, err)

	assert.Error(t, s.Push(GPU, 1))
	assert.Nil(t, s.Snapshot(GPU))
}

func TestNewSet_Errors(t *testing.T) {
	_, err := NewSet(0, CPU)
	assert.ErrorIs(t, err, ErrCapacity)

	_, err = NewSet(3, CPU, CPU)
	assert.Error(t, err)
}

func TestSet_CloneDoesNotShareBuffers(t *testing.T) {
	s, err := NewSet(2, DashboardNames...)
	require.NoError(t, err)

	c := s.Clone()
	require.NoError(t, c.Push(Memory, 10))

	assert.Equal(t, []float64{0, 0}, s.Snapshot(Memory))
	assert.Equal(t, []float64{0, 10}, c.Snapshot(Memory))
	assert.Equal(t, DashboardNames, c.Names())
	assert.Equal(t, 2, c.Capacity())
}
