package nist

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

// Mode tells the parser how a file or body encodes its bits.
type Mode int

const (
	ModeAuto      Mode = iota
	ModeText           // '0'/'1' characters, whitespace ignored
	ModeBytes01        // one bit per byte, 0x00 or 0x01
	ModePackedMSB      // packed bytes, most significant bit first
)

// ParseMode accepts auto|txt|bin01|binpacked. Empty means auto.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return ModeAuto, nil
	case "txt", "text":
		return ModeText, nil
	case "bin01":
		return ModeBytes01, nil
	case "binpacked", "raw":
		return ModePackedMSB, nil
	default:
		return ModeAuto, fmt.Errorf("unknown bit mode %q (want auto, txt, bin01 or binpacked)", s)
	}
}

// ParseText collects '0' and '1' characters, skipping whitespace.
func ParseText(s string) ([]uint8, error) {
	out := make([]uint8, 0, len(s))
	for i, r := range s {
		switch {
		case r == '0':
			out = append(out, 0)
		case r == '1':
			out = append(out, 1)
		case unicode.IsSpace(r):
		default:
			return nil, fmt.Errorf("character %q at offset %d is not a bit", r, i)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("no 0/1 bits found")
	}
	return out, nil
}

// ParseBytes01 treats each byte as a single bit.
func ParseBytes01(b []byte) ([]uint8, error) {
	if len(b) == 0 {
		return nil, errors.New("empty input")
	}
	out := make([]uint8, len(b))
	for i, by := range b {
		if by > 1 {
			return nil, fmt.Errorf("byte #%d=0x%02X is not 0x00/0x01", i, by)
		}
		out[i] = by
	}
	return out, nil
}

// UnpackMSB expands packed bytes, most significant bit first.
func UnpackMSB(b []byte) []uint8 {
	out := make([]uint8, 0, len(b)*8)
	for _, by := range b {
		for bit := 7; bit >= 0; bit-- {
			out = append(out, (by>>uint(bit))&1)
		}
	}
	return out
}

func looksLikeBitText(b []byte) bool {
	count := 0
	for _, c := range b {
		switch {
		case c == '0' || c == '1':
			count++
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
		default:
			return false
		}
	}
	return count > 0
}

// guessBinMode prefers one-bit-per-byte when every byte is 0x00 or 0x01.
func guessBinMode(b []byte) Mode {
	for _, by := range b {
		if by > 1 {
			return ModePackedMSB
		}
	}
	return ModeBytes01
}

// Parse decodes data with mode, guessing when mode is ModeAuto.
func Parse(data []byte, mode Mode) ([]uint8, error) {
	if mode == ModeAuto {
		if looksLikeBitText(data) {
			mode = ModeText
		} else {
			mode = guessBinMode(data)
		}
	}
	switch mode {
	case ModeText:
		return ParseText(string(data))
	case ModeBytes01:
		return ParseBytes01(data)
	case ModePackedMSB:
		if len(data) == 0 {
			return nil, errors.New("empty input")
		}
		return UnpackMSB(data), nil
	default:
		return nil, fmt.Errorf("unknown bit mode %d", mode)
	}
}

// ParseFile reads path and decodes it. In auto mode a .txt extension forces
// text and .bin/.dat/.raw force a binary guess.
func ParseFile(path string, mode Mode) ([]uint8, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sequence: %w", err)
	}
	if mode == ModeAuto {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".txt":
			mode = ModeText
		case ".bin", ".dat", ".raw":
			mode = guessBinMode(data)
		}
	}
	bits, err := Parse(data, mode)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return bits, nil
}
