// Package drbg implements a minimal HMAC-DRBG (SP800-90A style) over
// HMAC-SHA256. There is no reseed interval; output is fully determined by
// the seed material, which makes it suitable for reproducible sequences.
package drbg

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
)

// HMAC is the DRBG state. K and V are the SP800-90A working values.
type HMAC struct {
	k []byte
	v []byte
}

// New instantiates the DRBG with K = 0x00.., V = 0x01.. and mixes in seed.
func New(seedMaterial []byte) *HMAC {
	k := make([]byte, sha256.Size)
	v := make([]byte, sha256.Size)
	for i := range v {
		v[i] = 0x01
	}
	d := &HMAC{k: k, v: v}
	d.update(seedMaterial)
	return d
}

// FromSeed builds seed material as seed || extra (little-endian int64s).
func FromSeed(seed int64, extra ...int64) *HMAC {
	buf := make([]byte, 8*(1+len(extra)))
	binary.LittleEndian.PutUint64(buf[0:8], uint64(seed))
	off := 8
	for _, e := range extra {
		binary.LittleEndian.PutUint64(buf[off:off+8], uint64(e))
		off += 8
	}
	return New(buf)
}

func (d *HMAC) mac(parts ...[]byte) []byte {
	m := hmac.New(sha256.New, d.k)
	for _, p := range parts {
		m.Write(p)
	}
	return m.Sum(nil)
}

func (d *HMAC) update(seedMaterial []byte) {
	// K = HMAC(K, V || 0x00 || seed); V = HMAC(K, V)
	d.k = d.mac(d.v, []byte{0x00}, seedMaterial)
	d.v = d.mac(d.v)
	if len(seedMaterial) == 0 {
		return
	}
	d.k = d.mac(d.v, []byte{0x01}, seedMaterial)
	d.v = d.mac(d.v)
}

// Generate returns n bytes and advances the state.
func (d *HMAC) Generate(n int) []byte {
	out := make([]byte, 0, n+sha256.Size)
	for len(out) < n {
		d.v = d.mac(d.v)
		out = append(out, d.v...)
	}
	d.update(nil)
	return out[:n]
}

// Uint64 draws 8 bytes, little-endian.
func (d *HMAC) Uint64() uint64 {
	return binary.LittleEndian.Uint64(d.Generate(8))
}

// Uint32 draws 4 bytes, little-endian.
func (d *HMAC) Uint32() uint32 {
	return binary.LittleEndian.Uint32(d.Generate(4))
}
