// Package ledger keeps an append-only, hash-chained history of generated
// sequences. Every record is sealed by a block whose hash covers the
// previous block, so editing or dropping an entry breaks verification.
package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned for unknown record ids.
var ErrNotFound = errors.New("record not found")

// Record describes one generated sequence.
type Record struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Encoding  string    `json:"encoding"`
	Generator string    `json:"generator"`
	Path      string    `json:"path,omitempty"`
	Seed      int64     `json:"seed"`
	SeedTag   string    `json:"seed_tag"`
	Bits      string    `json:"bits"`
	BitsHash  string    `json:"bits_hash"`
}

// Block seals a record into the chain.
type Block struct {
	Index     int    `json:"index"`
	Timestamp int64  `json:"timestamp"`
	RecordID  string `json:"record_id"`
	DataHash  string `json:"data_hash"`
	PrevHash  string `json:"prev_hash"`
	Hash      string `json:"hash"`
}

// Store persists records and blocks.
type Store interface {
	Load(ctx context.Context) ([]Record, []Block, error)
	Append(ctx context.Context, rec Record, blk Block) error
	Close() error
}

// Verification is the outcome of checking one record.
type Verification struct {
	ChainValid    bool `json:"chain_valid"`
	RecordFound   bool `json:"record_found"`
	BitsHashMatch bool `json:"bits_hash_match"`
	SealedInChain bool `json:"sealed_in_chain"`
}

// Ledger is safe for concurrent use.
type Ledger struct {
	mu      sync.RWMutex
	store   Store
	records map[string]Record
	chain   []Block
	now     func() time.Time
}

// Open loads existing history from store.
func Open(ctx context.Context, store Store) (*Ledger, error) {
	if store == nil {
		return nil, errors.New("ledger store is required")
	}
	recs, chain, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	l := &Ledger{
		store:   store,
		records: make(map[string]Record, len(recs)),
		chain:   chain,
		now:     time.Now,
	}
	for _, r := range recs {
		l.records[r.ID] = r
	}
	return l, nil
}

// Close releases the store.
func (l *Ledger) Close() error {
	return l.store.Close()
}

// HashBits is the hex SHA-256 of the text form of a sequence.
func HashBits(bits string) string {
	sum := sha256.Sum256([]byte(bits))
	return hex.EncodeToString(sum[:])
}

// Digest is the value a block seals for a record. Every field is covered;
// CreatedAt at millisecond precision.
func Digest(r Record) string {
	s := fmt.Sprintf("%s:%s:%s:%s:%d:%s:%d:%q",
		r.ID, r.BitsHash, r.Encoding, r.Generator, r.Seed, r.SeedTag, r.CreatedAt.UnixMilli(), r.Path)
	sum := sha256.Sum256(append([]byte(s), "sealed-record-v2"...))
	return hex.EncodeToString(sum[:])
}

func computeBlockHash(b Block) string {
	s := fmt.Sprintf("%d:%d:%s:%s:%s", b.Index, b.Timestamp, b.RecordID, b.DataHash, b.PrevHash)
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

// Append assigns an id, timestamp and bits hash, seals the record and
// persists both. Nothing is kept in memory if the store rejects it.
func (l *Ledger) Append(ctx context.Context, rec Record) (Record, Block, error) {
	if len(rec.Bits) == 0 {
		return Record{}, Block{}, errors.New("record has no bits")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := l.now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.CreatedAt = rec.CreatedAt.UTC().Truncate(time.Millisecond)
	rec.BitsHash = HashBits(rec.Bits)

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, dup := l.records[rec.ID]; dup {
		return Record{}, Block{}, fmt.Errorf("record %s already exists", rec.ID)
	}
	prev := ""
	if len(l.chain) > 0 {
		prev = l.chain[len(l.chain)-1].Hash
	}
	blk := Block{
		Index:     len(l.chain),
		Timestamp: now.Unix(),
		RecordID:  rec.ID,
		DataHash:  Digest(rec),
		PrevHash:  prev,
	}
	blk.Hash = computeBlockHash(blk)
	if err := l.store.Append(ctx, rec, blk); err != nil {
		return Record{}, Block{}, fmt.Errorf("persist record %s: %w", rec.ID, err)
	}
	l.records[rec.ID] = rec
	l.chain = append(l.chain, blk)
	return rec, blk, nil
}

// Get returns a record by id.
func (l *Ledger) Get(id string) (Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	r, ok := l.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return r, nil
}

// List returns records in chain order.
func (l *Ledger) List() []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Record, 0, len(l.chain))
	for _, b := range l.chain {
		if r, ok := l.records[b.RecordID]; ok {
			out = append(out, r)
		}
	}
	return out
}

// Chain returns a copy of the block chain.
func (l *Ledger) Chain() []Block {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Block, len(l.chain))
	copy(out, l.chain)
	return out
}

// VerifyChain checks every block hash and back-link, and that each sealed
// record still matches its digest.
func (l *Ledger) VerifyChain() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.verifyChainLocked()
}

func (l *Ledger) verifyChainLocked() error {
	for i, b := range l.chain {
		if b.Index != i {
			return fmt.Errorf("block %d: index %d out of sequence", i, b.Index)
		}
		if computeBlockHash(b) != b.Hash {
			return fmt.Errorf("block %d: hash mismatch", i)
		}
		if i > 0 && b.PrevHash != l.chain[i-1].Hash {
			return fmt.Errorf("block %d: broken link to block %d", i, i-1)
		}
		r, ok := l.records[b.RecordID]
		if !ok {
			return fmt.Errorf("block %d: record %s missing", i, b.RecordID)
		}
		if HashBits(r.Bits) != r.BitsHash || Digest(r) != b.DataHash {
			return fmt.Errorf("block %d: record %s was modified", i, b.RecordID)
		}
	}
	return nil
}

// Verify checks the chain and one record.
func (l *Ledger) Verify(id string) Verification {
	l.mu.RLock()
	defer l.mu.RUnlock()
	v := Verification{ChainValid: l.verifyChainLocked() == nil}
	r, ok := l.records[id]
	if !ok {
		return v
	}
	v.RecordFound = true
	v.BitsHashMatch = HashBits(r.Bits) == r.BitsHash
	for _, b := range l.chain {
		if b.RecordID == id {
			v.SealedInChain = b.DataHash == Digest(r)
			break
		}
	}
	return v
}
