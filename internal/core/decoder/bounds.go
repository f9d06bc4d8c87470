// Package decoder implements protocol decoding.
package decoder

import "encoding/binary"

// fits reports whether the n bytes starting at off lie inside buf.
// Every structured read in this package is preceded by a fits check.
func fits(buf []byte, off, n int) bool {
	return off >= 0 && n >= 0 && off <= len(buf) && n <= len(buf)-off
}

// cursor is a read position over buf. Reads never advance past the tail:
// callers must check has(n) before u8, be16 or skip.
type cursor struct {
	buf []byte
	off int
}

func (c *cursor) has(n int) bool {
	return fits(c.buf, c.off, n)
}

func (c *cursor) u8() byte {
	b := c.buf[c.off]
	c.off++
	return b
}

// peek16 reads a big-endian uint16 without advancing.
func (c *cursor) peek16() uint16 {
	return binary.BigEndian.Uint16(c.buf[c.off : c.off+2])
}

// skip advances by n bytes, or reports false and leaves the cursor untouched
// when fewer than n bytes remain.
func (c *cursor) skip(n int) bool {
	if !c.has(n) {
		return false
	}
	c.off += n
	return true
}
