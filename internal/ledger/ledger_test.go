package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var bitsA = strings.Repeat("01", 64)
var bitsB = strings.Repeat("0011", 32)

func openTestLedger(t *testing.T, store Store) *Ledger {
	t.Helper()
	l, err := Open(context.Background(), store)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return l
}

func TestAppendChainsBlocks(t *testing.T) {
	ctx := context.Background()
	l := openTestLedger(t, MemoryStore{})

	r1, b1, err := l.Append(ctx, Record{Encoding: "text", Generator: "pcg", Bits: bitsA})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if r1.ID == "" || r1.BitsHash != HashBits(bitsA) {
		t.Fatalf("record not filled in: %+v", r1)
	}
	_, b2, err := l.Append(ctx, Record{Encoding: "raw", Generator: "drbg", Bits: bitsB})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if b1.Index != 0 || b2.Index != 1 || b2.PrevHash != b1.Hash || b1.PrevHash != "" {
		t.Fatalf("blocks not linked: %+v %+v", b1, b2)
	}
	if err := l.VerifyChain(); err != nil {
		t.Fatalf("VerifyChain: %v", err)
	}
	list := l.List()
	if len(list) != 2 || list[0].ID != r1.ID {
		t.Fatalf("List order wrong: %+v", list)
	}
	v := l.Verify(r1.ID)
	if !v.ChainValid || !v.RecordFound || !v.BitsHashMatch || !v.SealedInChain {
		t.Fatalf("Verify = %+v", v)
	}
}

func TestAppendRejectsEmptyAndDuplicate(t *testing.T) {
	ctx := context.Background()
	l := openTestLedger(t, MemoryStore{})
	if _, _, err := l.Append(ctx, Record{}); err == nil {
		t.Fatalf("expected error for empty bits")
	}
	if _, _, err := l.Append(ctx, Record{ID: "x", Bits: bitsA}); err != nil {
		t.Fatal(err)
	}
	if _, _, err := l.Append(ctx, Record{ID: "x", Bits: bitsA}); err == nil {
		t.Fatalf("expected duplicate id error")
	}
}

func TestGetUnknown(t *testing.T) {
	l := openTestLedger(t, MemoryStore{})
	if _, err := l.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if v := l.Verify("nope"); v.RecordFound || !v.ChainValid {
		t.Fatalf("Verify(unknown) = %+v", v)
	}
}

func TestTamperingDetected(t *testing.T) {
	ctx := context.Background()
	l := openTestLedger(t, MemoryStore{})
	r, _, err := l.Append(ctx, Record{Bits: bitsA})
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := l.Append(ctx, Record{Bits: bitsB}); err != nil {
		t.Fatal(err)
	}

	tampered := r
	tampered.Bits = bitsB
	l.records[r.ID] = tampered
	if err := l.VerifyChain(); err == nil {
		t.Fatalf("modified bits went unnoticed")
	}
	if v := l.Verify(r.ID); v.BitsHashMatch {
		t.Fatalf("bits hash should not match after tampering")
	}
	l.records[r.ID] = r

	l.chain[1].PrevHash = "deadbeef"
	if err := l.VerifyChain(); err == nil {
		t.Fatalf("broken link went unnoticed")
	}
}

func TestUnsealedFieldEditsDetected(t *testing.T) {
	ctx := context.Background()
	l := openTestLedger(t, MemoryStore{})
	r, _, err := l.Append(ctx, Record{Bits: bitsA, Path: "out/a.txt", SeedTag: "mode:os"})
	if err != nil {
		t.Fatal(err)
	}
	edits := map[string]func(*Record){
		"path":       func(x *Record) { x.Path = "elsewhere.txt" },
		"seed_tag":   func(x *Record) { x.SeedTag = "mode:repro seed=1" },
		"created_at": func(x *Record) { x.CreatedAt = x.CreatedAt.Add(time.Hour) },
	}
	for name, edit := range edits {
		changed := r
		edit(&changed)
		l.records[r.ID] = changed
		if err := l.VerifyChain(); err == nil {
			t.Errorf("%s edit went unnoticed", name)
		}
		if v := l.Verify(r.ID); v.SealedInChain {
			t.Errorf("%s edit: record still reported as sealed", name)
		}
		l.records[r.ID] = r
	}
	if err := l.VerifyChain(); err != nil {
		t.Fatalf("restored ledger should verify: %v", err)
	}
}

func TestJSONStorePersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "store.json")

	l := openTestLedger(t, NewJSONStore(path))
	r, _, err := l.Append(ctx, Record{Encoding: "text", Bits: bitsA, Seed: -3})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, _, err := l.Append(ctx, Record{Encoding: "raw", Bits: bitsB}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	reopened := openTestLedger(t, NewJSONStore(path))
	got, err := reopened.Get(r.ID)
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if got.Seed != -3 || !got.CreatedAt.Equal(r.CreatedAt) {
		t.Fatalf("record changed across reopen: %+v vs %+v", got, r)
	}
	if err := reopened.VerifyChain(); err != nil {
		t.Fatalf("VerifyChain after reopen: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var p persisted
	if err := json.Unmarshal(raw, &p); err != nil || len(p.Chain) != 2 {
		t.Fatalf("file content: %v, %d blocks", err, len(p.Chain))
	}
}

func TestJSONStoreCorruptBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	s := NewJSONStore(path)
	if _, err := Open(context.Background(), s); err == nil {
		t.Fatalf("expected error for corrupt store")
	}
	if s.BackupPath == "" {
		t.Fatalf("corrupt file was not moved aside")
	}
	if _, err := os.Stat(s.BackupPath); err != nil {
		t.Fatalf("backup missing: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("corrupt file still in place, stat err = %v", err)
	}
}

func TestSQLiteStorePersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")

	store, err := OpenStore(DriverSQLite, path)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	l := openTestLedger(t, store)
	r, _, err := l.Append(ctx, Record{Encoding: "text", Generator: "pcg", Bits: bitsA, SeedTag: "mode:os"})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	store, err = OpenStore(DriverSQLite, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	reopened := openTestLedger(t, store)
	defer reopened.Close()
	got, err := reopened.Get(r.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Bits != r.Bits || got.SeedTag != r.SeedTag || got.Generator != r.Generator || !got.CreatedAt.Equal(r.CreatedAt) {
		t.Fatalf("record changed across reopen:\n got %+v\nwant %+v", got, r)
	}
	if err := reopened.VerifyChain(); err != nil {
		t.Fatalf("VerifyChain: %v", err)
	}
}

func TestOpenStoreUnknownDriver(t *testing.T) {
	if _, err := OpenStore("postgres", "x"); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}
