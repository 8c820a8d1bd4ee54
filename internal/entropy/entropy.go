// Package entropy derives the 64-bit seed that initialises a sequence
// generator. The default source is the operating system's entropy pool;
// jitter, remote HTTP endpoints, a mix of all three and a fixed
// reproduction seed are also available.
package entropy

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Source modes accepted in Spec.Mode.
const (
	ModeOS     = "os"
	ModeJitter = "jitter"
	ModeHTTP   = "http"
	ModeMix    = "mix"
	ModeRepro  = "repro"
)

// DefaultTimeout bounds each HTTP seed fetch.
const DefaultTimeout = 3 * time.Second

// Spec selects where seed material comes from.
type Spec struct {
	Mode    string
	Seed    int64 // used only by ModeRepro
	HTTP    []string
	Timeout time.Duration
	Client  *http.Client
}

// Seed is a derived seed plus a description of where it came from.
type Seed struct {
	Value     int64   `json:"value"`
	Mode      string  `json:"mode"`
	Tag       string  `json:"tag"`
	PerSource []int64 `json:"per_source,omitempty"`
}

// Derive gathers seed material according to spec. An empty mode means os.
func Derive(ctx context.Context, spec Spec) (Seed, error) {
	mode := strings.ToLower(strings.TrimSpace(spec.Mode))
	switch mode {
	case "", ModeOS:
		v, err := FromOS()
		if err != nil {
			return Seed{}, err
		}
		return Seed{Value: v, Mode: ModeOS, Tag: "mode:os"}, nil
	case ModeRepro:
		return Seed{Value: spec.Seed, Mode: ModeRepro, Tag: "mode:repro seed=" + strconv.FormatInt(spec.Seed, 10)}, nil
	case ModeJitter:
		return Seed{Value: seedFromBytes(rawFromJitter(32)), Mode: ModeJitter, Tag: "mode:jitter"}, nil
	case ModeHTTP:
		if len(spec.HTTP) == 0 {
			return Seed{}, fmt.Errorf("entropy mode http needs at least one source URL")
		}
		b := newFetcher(spec).raw(ctx, spec.HTTP)
		if len(b) < 8 {
			extra, err := rawFromOS(8)
			if err != nil {
				return Seed{}, err
			}
			b = append(b, extra...)
		}
		return Seed{Value: seedFromBytes(b), Mode: ModeHTTP, Tag: "mode:http:" + hexOfURLs(spec.HTTP)}, nil
	case ModeMix:
		return deriveMix(ctx, spec)
	default:
		return Seed{}, fmt.Errorf("unknown entropy mode %q", spec.Mode)
	}
}

func deriveMix(ctx context.Context, spec Spec) (Seed, error) {
	osRaw, err := rawFromOS(32)
	if err != nil {
		return Seed{}, err
	}
	h := sha256.New()
	h.Write(osRaw)
	h.Write(rawFromJitter(48))

	f := newFetcher(spec)
	per := make([]int64, 0, len(spec.HTTP))
	perStr := make([]string, 0, len(spec.HTTP))
	for _, u := range spec.HTTP {
		b := f.raw(ctx, []string{u})
		h.Write(b)
		if len(b) < 8 {
			extra, err := rawFromOS(8)
			if err != nil {
				return Seed{}, err
			}
			b = append(b, extra...)
		}
		s := seedFromBytes(b)
		per = append(per, s)
		perStr = append(perStr, strconv.FormatInt(s, 10))
	}
	sum := h.Sum([]byte(nil))
	final := sha256.Sum256(append(sum, "seed-mix-v1"...))

	tag := "mode:mix"
	if len(spec.HTTP) > 0 {
		tag += " http=" + hexOfURLs(spec.HTTP)
	}
	if len(perStr) > 0 {
		tag += " per_seeds=" + strings.Join(perStr, ",")
	}
	if len(per) == 0 {
		per = nil
	}
	return Seed{Value: seedFromBytes(final[:]), Mode: ModeMix, Tag: tag, PerSource: per}, nil
}

// FromOS reads 8 bytes from crypto/rand.
func FromOS() (int64, error) {
	b, err := rawFromOS(8)
	if err != nil {
		return 0, err
	}
	return seedFromBytes(b), nil
}

func rawFromOS(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, fmt.Errorf("read random seed: %w", err)
	}
	return b, nil
}

func seedFromBytes(b []byte) int64 {
	return int64(binary.LittleEndian.Uint64(b[:8]))
}

// rawFromJitter hashes scheduler and clock jitter over a number of rounds.
func rawFromJitter(rounds int) []byte {
	h := sha256.New()
	tmp := make([]byte, 8)
	for i := 0; i < rounds; i++ {
		t0 := time.Now()
		spin := 100 + (i % 17)
		for k := 0; k < spin; k++ {
		}
		time.Sleep(0)
		binary.LittleEndian.PutUint64(tmp, uint64(time.Since(t0).Nanoseconds()))
		h.Write(tmp)
		binary.LittleEndian.PutUint64(tmp, uint64(time.Now().UnixNano()))
		h.Write(tmp)
	}
	return h.Sum(nil)
}

func hexOfURLs(v []string) string {
	h := sha256.New()
	for _, s := range v {
		h.Write([]byte(s))
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}
