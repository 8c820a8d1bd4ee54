package main

import (
	"time"

	"seqgen/internal/entropy"
	"seqgen/internal/ledger"
)

// GenerateParams are the knobs accepted by /generate and `seqgen write`.
type GenerateParams struct {
	Encoding  string
	Generator string
	Entropy   entropy.Spec
}

type sequenceSummary struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Encoding  string    `json:"encoding"`
	Generator string    `json:"generator"`
	Seed      int64     `json:"seed"`
	SeedTag   string    `json:"seed_tag"`
	BitsHash  string    `json:"bits_hash"`
}

func summarize(r ledger.Record) sequenceSummary {
	return sequenceSummary{
		ID:        r.ID,
		CreatedAt: r.CreatedAt,
		Encoding:  r.Encoding,
		Generator: r.Generator,
		Seed:      r.Seed,
		SeedTag:   r.SeedTag,
		BitsHash:  r.BitsHash,
	}
}

type generateResponse struct {
	ID        string       `json:"id"`
	CreatedAt string       `json:"created_at"`
	Path      string       `json:"path"`
	Encoding  string       `json:"encoding"`
	Generator string       `json:"generator"`
	Seed      entropy.Seed `json:"seed"`
	Bits      string       `json:"bits"`
	Ones      int          `json:"ones"`
	Block     ledger.Block `json:"block"`
	ReplayURL string       `json:"replay_url"`
}
