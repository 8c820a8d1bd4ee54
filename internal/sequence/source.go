package sequence

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	mrand "math/rand/v2"
	"strings"

	"seqgen/internal/drbg"
)

// Source is the PRNG a Writer draws from. *rand.Rand and *drbg.HMAC both
// satisfy it.
type Source interface {
	Uint32() uint32
	Uint64() uint64
}

// Generator names accepted by NewSource.
const (
	GeneratorPCG  = "pcg"
	GeneratorDRBG = "drbg"
)

// golden ratio scramble, used as the PCG stream selector
const scramble uint64 = 0x9e3779b97f4a7c15

// NewSource builds a named generator from a 64-bit seed. extra is mixed
// into the DRBG seed material and ignored by PCG.
func NewSource(name string, seed int64, extra ...int64) (Source, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", GeneratorPCG:
		return mrand.New(mrand.NewPCG(uint64(seed), uint64(seed)^scramble)), nil
	case GeneratorDRBG:
		return drbg.FromSeed(seed, extra...), nil
	default:
		return nil, fmt.Errorf("unknown generator %q (want pcg or drbg)", name)
	}
}

// systemSource seeds PCG from the OS entropy source.
func systemSource() (Source, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return nil, fmt.Errorf("read random seed: %w", err)
	}
	return NewSource(GeneratorPCG, int64(binary.LittleEndian.Uint64(b[:])))
}

// Draw produces a BitSequence from src. TextBits takes 128 one-bit draws,
// RawBinary takes two 64-bit draws; the two strategies are not
// interchangeable.
func Draw(src Source, enc Encoding) BitSequence {
	var seq BitSequence
	if enc == RawBinary {
		seq.words[0] = src.Uint64()
		seq.words[1] = src.Uint64()
		return seq
	}
	for i := 0; i < Bits; i++ {
		if src.Uint32()%2 == 1 {
			seq.words[i/64] |= 1 << uint(i%64)
		}
	}
	return seq
}
