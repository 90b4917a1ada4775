package biometric

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vector(fill func(i int) float64) []float64 {
	v := make([]float64, VectorLength)
	for i := range v {
		v[i] = fill(i)
	}
	return v
}

func TestCompare_IdenticalVectors(t *testing.T) {
	v := vector(func(i int) float64 { return float64(i%7) + 0.5 })

	score, err := Compare(v, v)
	require.NoError(t, err)
	assert.InDelta(t, 100, score, 1e-9)
}

func TestCompare_OppositeVectors(t *testing.T) {
	v := vector(func(i int) float64 { return float64(i) + 1 })
	neg := vector(func(i int) float64 { return -(float64(i) + 1) })

	score, err := Compare(v, neg)
	require.NoError(t, err)
	assert.InDelta(t, 0, score, 1e-9)
}

func TestCompare_ScaleInvariant(t *testing.T) {
	v := vector(func(i int) float64 { return float64(i%13) - 6 })
	scaled := vector(func(i int) float64 { return (float64(i%13) - 6) * 3.5 })

	score, err := Compare(v, scaled)
	require.NoError(t, err)
	assert.InDelta(t, 100, score, 1e-9)
}

func TestCompare_LengthMismatch(t *testing.T) {
	good := vector(func(i int) float64 { return 1 })

	_, err := Compare(good[:10], good)
	assert.Error(t, err)

	_, err = Compare(good, good[:10])
	assert.Error(t, err)
}

func TestCompare_ZeroVector(t *testing.T) {
	zero := make([]float64, VectorLength)
	v := vector(func(i int) float64 { return 1 })

	score, err := Compare(zero, v)
	require.NoError(t, err)
	assert.Equal(t, 0.0, score)
}
