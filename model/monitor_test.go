package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitorConverges(t *testing.T) {

	mon, err := NewMonitor(1e-3, 100)
	require.NoError(t, err)
	assert.Equal(t, Initialized, mon.Status())

	mon.Start([]float64{10, 0.5})
	assert.Equal(t, Iterating, mon.Status())
	assert.Equal(t, 0, mon.Iterations())

	st := mon.Step([]float64{5, 0.5})
	assert.Equal(t, Iterating, st)

	st = mon.Step([]float64{5.0001, 0.5})
	assert.Equal(t, Converged, st)
	assert.True(t, st.Terminal())
	assert.True(t, mon.Converged())
	assert.Equal(t, 2, mon.Iterations())
}

func TestMonitorMaxIters(t *testing.T) {

	mon, err := NewMonitor(1e-12, 1)
	require.NoError(t, err)
	mon.Start([]float64{0})

	st := mon.Step([]float64{1})
	assert.Equal(t, MaxIters, st)
	assert.True(t, st.Terminal())
	assert.False(t, mon.Converged())
	assert.Equal(t, 1, mon.Iterations())
}

func TestMonitorScalarSignature(t *testing.T) {

	mon, err := NewMonitor(0.5, 10)
	require.NoError(t, err)
	mon.Start([]float64{-100})
	assert.Equal(t, Iterating, mon.Step([]float64{-99}))
	assert.Equal(t, Converged, mon.Step([]float64{-98.9}))
}

func TestMonitorInvalidConfig(t *testing.T) {

	_, err := NewMonitor(0, 10)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewMonitor(-1e-5, 10)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewMonitor(1e-5, 0)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestMonitorDistance(t *testing.T) {

	assert.Equal(t, 3.0, distance([]float64{1, 2, 3}, []float64{1, 5, 2}))
	assert.Equal(t, 0.0, distance([]float64{1, 2}, []float64{1, 2}))
}
