package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPercent(t *testing.T) {
	assert.Equal(t, int64(5500), Percent(11000, 50))
	assert.Equal(t, int64(3300), Percent(11000, 30))
	assert.Equal(t, int64(10), Percent(100, 10))

	// Half-up rounding: 15% of 333 cents = 49.95 -> 50
	assert.Equal(t, int64(50), Percent(333, 15))
	// 10% of 5 cents = 0.5 -> 1
	assert.Equal(t, int64(1), Percent(5, 10))
	// 30% of 101 = 30.3 -> 30
	assert.Equal(t, int64(30), Percent(101, 30))
}

func TestSplit(t *testing.T) {
	legs := Split(11000, 50, 30, 20)
	assert.Equal(t, []int64{5500, 3300, 2200}, legs)

	// Remainder lands on the last leg.
	legs = Split(10001, 50, 30, 20)
	assert.Equal(t, int64(5001), legs[0]) // 5000.5 rounds up
	assert.Equal(t, int64(3000), legs[1])
	assert.Equal(t, int64(2000), legs[2])

	var sum int64
	for _, l := range legs {
		sum += l
	}
	assert.Equal(t, int64(10001), sum)
}

func TestFormatUSD(t *testing.T) {
	assert.Equal(t, "$110.00", FormatUSD(11000))
	assert.Equal(t, "$0.05", FormatUSD(5))
	assert.Equal(t, "-$2.50", FormatUSD(-250))
}
