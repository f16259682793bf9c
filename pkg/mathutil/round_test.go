package mathutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRound4(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{1000.0 / 30.0, 33.3333},
		{2.0 / 3.0, 0.6667},
		{100, 100},
		{1.00005, 1.0001},
		{-1.00005, -1.0001},
		{0.1 + 0.2, 0.3},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Round4(tt.in), "Round4(%v)", tt.in)
	}
}

func TestRound(t *testing.T) {
	assert.Equal(t, 12.35, Round(12.345, 2))
	assert.Equal(t, 12.0, Round(12.4, 0))
}

func TestSum(t *testing.T) {
	assert.Equal(t, 0.3, Sum(0.1, 0.2))
	assert.Equal(t, 0.0, Sum())
	assert.Equal(t, 3300.0, Sum(1100, 1100, 1100))
}
