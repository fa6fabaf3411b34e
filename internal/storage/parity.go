package storage

import (
	"fmt"
	"math/bits"
)

// ParityByte is a byte value together with its even-parity check bit.
type ParityByte struct {
	Value  byte
	Parity bool
}

// NewParityByte returns v with a freshly computed parity bit.
func NewParityByte(v byte) ParityByte {
	return ParityByte{Value: v, Parity: parityOf(v)}
}

// IsParityOk recomputes the parity of the value and compares it with the
// stored bit.
func (b ParityByte) IsParityOk() bool {
	return parityOf(b.Value) == b.Parity
}

// Corrupt flips the lowest bit of the value and leaves the parity bit stale.
func (b ParityByte) Corrupt() ParityByte {
	return ParityByte{Value: b.Value ^ 0x01, Parity: b.Parity}
}

// String returns a short human readable representation.
func (b ParityByte) String() string {
	return fmt.Sprintf("[%d parity=%t ok=%t]", b.Value, b.Parity, b.IsParityOk())
}

func parityOf(v byte) bool {
	return bits.OnesCount8(v)%2 == 1
}

// pack/unpack store a ParityByte in one atomic word: bits 0-7 hold the value,
// bit 8 holds the parity.
func pack(b ParityByte) uint32 {
	w := uint32(b.Value)
	if b.Parity {
		w |= 1 << 8
	}
	return w
}

func unpack(w uint32) ParityByte {
	return ParityByte{Value: byte(w), Parity: w&(1<<8) != 0}
}
