// Package difficulty implements the core verification/ordering rule of
// spec.md §4.4: a candidate hash H satisfies a challenge's bitmask
// difficulty D iff H OR D == D (H is a subset mask of D), and
// popcount(D) is the sole scalar determinant of difficulty used for
// work-queue ordering and solve-rate estimation.
//
// Both H and D are represented with holiman/uint256.Int, matching the
// teacher's fixed-width 256-bit arithmetic dependency, rather than
// math/big: the values here are always exactly 256 bits wide and never
// need big.Int's arbitrary-precision growth.
package difficulty

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// Mask is a parsed difficulty bitmask.
type Mask struct {
	value *uint256.Int
}

// Parse decodes a hex difficulty string (with or without a leading
// "0x") into a Mask.
func Parse(hexDifficulty string) (Mask, error) {
	s := strings.TrimPrefix(hexDifficulty, "0x")
	s = strings.TrimPrefix(s, "0X")
	if s == "" {
		return Mask{}, fmt.Errorf("difficulty: empty hex string")
	}
	v, err := uint256.FromHex("0x" + s)
	if err != nil {
		return Mask{}, fmt.Errorf("difficulty: parse %q: %w", hexDifficulty, err)
	}
	return Mask{value: v}, nil
}

// PopCount returns the number of set bits in D, the scalar difficulty
// used for ordering and rate estimation (spec.md §4.4: "the number of
// set bits in D (popcount) is the sole scalar determinant of
// difficulty").
func (m Mask) PopCount() int {
	n := 0
	for _, word := range m.value.Bytes32() {
		n += popcountByte(word)
	}
	return n
}

func popcountByte(b byte) int {
	n := 0
	for b != 0 {
		n += int(b & 1)
		b >>= 1
	}
	return n
}

// Satisfies reports whether candidate hash h qualifies against this
// difficulty mask: h OR D == D, i.e. h is a subset mask of D.
func (m Mask) Satisfies(h *uint256.Int) bool {
	var or uint256.Int
	or.Or(h, m.value)
	return or.Eq(m.value)
}

// Easier reports whether a is an easier challenge than b: more set bits
// means a denser set of qualifying hashes (spec.md §4.4: "easier" = more
// set bits). Work-queue sorting puts Easier challenges first.
func Easier(a, b Mask) bool {
	return a.PopCount() > b.PopCount()
}
