// Package sequence draws fixed-length 128-bit pseudo-random sequences and
// writes them to disk as ASCII bit text or raw binary.
package sequence

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Bits is the length of every BitSequence.
const Bits = 128

// Encoding selects how a BitSequence is serialised.
type Encoding int

const (
	// TextBits renders each bit as an ASCII '0' or '1' in generation order.
	TextBits Encoding = iota
	// RawBinary writes the two 64-bit words as raw bytes in native order.
	RawBinary
)

func (e Encoding) String() string {
	switch e {
	case TextBits:
		return "text"
	case RawBinary:
		return "raw"
	default:
		return fmt.Sprintf("encoding(%d)", int(e))
	}
}

// Ext is the conventional file extension for the encoding.
func (e Encoding) Ext() string {
	if e == RawBinary {
		return ".bin"
	}
	return ".txt"
}

// ParseEncoding accepts text|txt|bits and raw|bin|binary, case-insensitive.
func ParseEncoding(s string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text", "txt", "bits":
		return TextBits, nil
	case "raw", "bin", "binary":
		return RawBinary, nil
	default:
		return 0, fmt.Errorf("unknown encoding %q (want text or raw)", s)
	}
}

// BitSequence is an immutable 128-bit value. Bit i lives in bit i%64 of
// word i/64.
type BitSequence struct {
	words [2]uint64
}

// FromWords builds a sequence from two 64-bit chunks.
func FromWords(w0, w1 uint64) BitSequence {
	return BitSequence{words: [2]uint64{w0, w1}}
}

// FromText parses exactly 128 '0'/'1' characters.
func FromText(s string) (BitSequence, error) {
	if len(s) != Bits {
		return BitSequence{}, fmt.Errorf("bit text has %d characters, want %d", len(s), Bits)
	}
	var seq BitSequence
	for i := 0; i < Bits; i++ {
		switch s[i] {
		case '0':
		case '1':
			seq.words[i/64] |= 1 << uint(i%64)
		default:
			return BitSequence{}, fmt.Errorf("byte #%d=%q is not '0' or '1'", i, s[i])
		}
	}
	return seq, nil
}

// Bit returns bit i (0 or 1). It panics if i is out of range.
func (s BitSequence) Bit(i int) uint8 {
	if i < 0 || i >= Bits {
		panic(fmt.Sprintf("sequence: bit index %d out of range", i))
	}
	return uint8(s.words[i/64]>>uint(i%64)) & 1
}

// Words returns the underlying 64-bit chunks.
func (s BitSequence) Words() [2]uint64 { return s.words }

// Text renders the sequence as 128 ASCII '0'/'1' characters.
func (s BitSequence) Text() string {
	var b strings.Builder
	b.Grow(Bits)
	for i := 0; i < Bits; i++ {
		b.WriteByte('0' + s.Bit(i))
	}
	return b.String()
}

// Raw returns the 16 bytes of the two words in native byte order.
func (s BitSequence) Raw() []byte {
	out := make([]byte, 16)
	binary.NativeEndian.PutUint64(out[0:8], s.words[0])
	binary.NativeEndian.PutUint64(out[8:16], s.words[1])
	return out
}

// Encode serialises the sequence with the given encoding.
func (s BitSequence) Encode(e Encoding) ([]byte, error) {
	switch e {
	case TextBits:
		return []byte(s.Text()), nil
	case RawBinary:
		return s.Raw(), nil
	default:
		return nil, fmt.Errorf("unknown encoding %v", e)
	}
}

// Unpack returns the bits in generation order, one per element.
func (s BitSequence) Unpack() []uint8 {
	out := make([]uint8, Bits)
	for i := range out {
		out[i] = s.Bit(i)
	}
	return out
}

// Ones counts set bits.
func (s BitSequence) Ones() int {
	n := 0
	for i := 0; i < Bits; i++ {
		n += int(s.Bit(i))
	}
	return n
}
