package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"seqgen/internal/entropy"
	"seqgen/internal/ledger"
	"seqgen/internal/sequence"
)

// paramError marks a failure caused by caller input rather than I/O.
type paramError struct{ err error }

func (e *paramError) Error() string { return e.err.Error() }
func (e *paramError) Unwrap() error { return e.err }

func isParamError(err error) bool {
	var pe *paramError
	return errors.As(err, &pe)
}

type generation struct {
	Seq       sequence.BitSequence
	Encoding  sequence.Encoding
	Generator string
	Seed      entropy.Seed
	Path      string
}

// generateTo derives a seed, builds the named generator and writes one
// sequence to path. The generator gets only the derived seed, so a repro
// run with the same seed and generator reproduces the bits exactly.
func generateTo(ctx context.Context, path string, p GenerateParams, opts ...sequence.Option) (generation, error) {
	enc, err := sequence.ParseEncoding(p.Encoding)
	if err != nil {
		return generation{}, &paramError{err}
	}
	seed, err := entropy.Derive(ctx, p.Entropy)
	if err != nil {
		return generation{}, &paramError{fmt.Errorf("derive seed: %w", err)}
	}
	gen := strings.ToLower(strings.TrimSpace(p.Generator))
	if gen == "" {
		gen = sequence.GeneratorPCG
	}
	src, err := sequence.NewSource(gen, seed.Value)
	if err != nil {
		return generation{}, &paramError{err}
	}
	w, err := sequence.NewWriter(src, opts...)
	if err != nil {
		return generation{}, err
	}
	seq, err := w.WriteNew(path, enc)
	if err != nil {
		return generation{}, err
	}
	return generation{Seq: seq, Encoding: enc, Generator: gen, Seed: seed, Path: path}, nil
}

func (g generation) record(id string) ledger.Record {
	return ledger.Record{
		ID:        id,
		Encoding:  g.Encoding.String(),
		Generator: g.Generator,
		Path:      g.Path,
		Seed:      g.Seed.Value,
		SeedTag:   g.Seed.Tag,
		Bits:      g.Seq.Text(),
	}
}

// replayURL rebuilds the /generate query that reproduces a record.
func replayURL(r ledger.Record) string {
	q := url.Values{}
	q.Set("encoding", r.Encoding)
	q.Set("prng", r.Generator)
	q.Set("entropy", entropy.ModeRepro)
	q.Set("seed", strconv.FormatInt(r.Seed, 10))
	return "/generate?" + q.Encode()
}
