package chunk

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewSizerStartsAt64KiB(t *testing.T) {
	s := NewSizer()
	assert.Equal(t, StartSize, s.Size())
}

func TestResetReturnsToStartSize(t *testing.T) {
	s := NewSizer()
	for i := 0; i < 10; i++ {
		s.Observe(float64(i+1) * 10_000_000)
	}
	s.Reset()
	assert.Equal(t, StartSize, s.Size())
}

func TestSizeStaysWithinBoundsAcrossRandomSamples(t *testing.T) {
	s := NewSizer()
	rnd := rand.New(rand.NewSource(1))

	for i := 0; i < 10_000; i++ {
		sample := rnd.Float64() * 200_000_000
		s.Observe(sample)
		assert.GreaterOrEqual(t, s.Size(), MinSize)
		assert.LessOrEqual(t, s.Size(), MaxSize)
	}
}

func TestGrowsOnSustainedImprovement(t *testing.T) {
	s := NewSizer()
	s.Observe(1_000_000)
	for i := 0; i < 6; i++ {
		s.Observe(10_000_000)
	}
	assert.Greater(t, s.Size(), StartSize)
}

func TestShrinksOnSustainedDegradation(t *testing.T) {
	s := NewSizer()
	s.Observe(10_000_000)
	for i := 0; i < 6; i++ {
		s.Observe(1_000_000)
	}
	assert.Less(t, s.Size(), StartSize)
}
