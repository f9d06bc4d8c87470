package decoder

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFits(t *testing.T) {
	buf := make([]byte, 10)

	tests := []struct {
		name   string
		off, n int
		want   bool
	}{
		{"whole buffer", 0, 10, true},
		{"empty read at tail", 10, 0, true},
		{"one past tail", 10, 1, false},
		{"straddles tail", 8, 4, false},
		{"negative offset", -1, 1, false},
		{"negative length", 0, -1, false},
		{"offset past tail", 11, 0, false},
		{"overflowing length", 1, math.MaxInt, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, fits(buf, tt.off, tt.n))
		})
	}
}

func TestCursor(t *testing.T) {
	c := cursor{buf: []byte{0x02, 0x04, 0x05, 0xb4}}

	assert.True(t, c.has(4))
	assert.Equal(t, byte(0x02), c.u8())
	assert.Equal(t, byte(0x04), c.u8())
	assert.True(t, c.has(2))
	assert.Equal(t, uint16(1460), c.peek16())
	assert.Equal(t, 2, c.off, "peek16 must not advance")

	assert.False(t, c.skip(3))
	assert.Equal(t, 2, c.off, "failed skip must not advance")
	assert.True(t, c.skip(2))
	assert.False(t, c.has(1))
}
