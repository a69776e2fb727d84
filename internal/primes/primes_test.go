package primes

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSelect(t *testing.T) {
	tests := []struct {
		n    int
		want int
	}{
		{n: -5, want: 17},
		{n: 0, want: 17},
		{n: 17, want: 17},
		{n: 18, want: 37},
		{n: 127, want: 131},
		{n: 1000, want: 1103},
		{n: 1103, want: 1103},
		{n: 7199369, want: 7199369},
		{n: 1 << 30, want: 7199369},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Select(tt.n), "Select(%d)", tt.n)
	}
}

func TestTableSortedPrimes(t *testing.T) {
	for i, p := range table {
		if i > 0 {
			assert.Greater(t, p, table[i-1])
		}
		for d := 2; d*d <= p; d++ {
			if p%d == 0 {
				t.Fatalf("%d is divisible by %d", p, d)
			}
		}
	}
	assert.Equal(t, 7199369, Max())
}
