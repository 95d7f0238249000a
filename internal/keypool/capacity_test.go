package keypool

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculateMaxUnitsOfWorkBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 1000; i++ {
		quota := rng.Int63n(1_000_000)
		cost := rng.Int63n(5000) + 1
		got := CalculateMaxUnitsOfWork(quota, cost)
		assert.LessOrEqual(t, got*cost, quota)
		assert.Less(t, quota, (got+1)*cost)
	}
}

func TestCalculateMaxUnitsOfWorkEdges(t *testing.T) {
	tests := []struct {
		quota, cost, want int64
	}{
		{quota: 999, cost: 1000, want: 0},
		{quota: 1000, cost: 1000, want: 1},
		{quota: 2999, cost: 1000, want: 2},
		{quota: 0, cost: 10, want: 0},
		{quota: 100, cost: 0, want: 0},
		{quota: 100, cost: -5, want: 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CalculateMaxUnitsOfWork(tt.quota, tt.cost), "quota=%d cost=%d", tt.quota, tt.cost)
	}
}

func TestDaysToExhaustAndUsage(t *testing.T) {
	assert.EqualValues(t, 3, DaysToExhaust(2001, 1000))
	assert.EqualValues(t, 2, DaysToExhaust(2000, 1000))
	assert.EqualValues(t, 0, DaysToExhaust(2000, 0))
	assert.EqualValues(t, 400, TokenUsagePerDay(200_000))
	assert.EqualValues(t, 0, TokenUsagePerDay(-1))
}
