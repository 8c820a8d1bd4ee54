package main

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/c2h5oh/datasize"

	"seqgen/internal/config"
	"seqgen/internal/ledger"
	"seqgen/internal/nist"
	"seqgen/internal/sequence"
)

func newTestServer(t *testing.T) (*httptest.Server, config.Config) {
	t.Helper()
	cfg := config.Config{
		Encoding:       "text",
		Entropy:        "os",
		Generator:      "pcg",
		EntropyTimeout: time.Second,
		OutputDir:      filepath.Join(t.TempDir(), "out"),
		MaxUpload:      datasize.KB,
	}
	l, err := ledger.Open(context.Background(), ledger.MemoryStore{})
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	ts := httptest.NewServer(newServer(cfg, l).routes())
	t.Cleanup(ts.Close)
	return ts, cfg
}

func fetch(t *testing.T, url string) (int, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read %s: %v", url, err)
	}
	return resp.StatusCode, b
}

func generate(t *testing.T, base, query string) generateResponse {
	t.Helper()
	status, body := fetch(t, base+"/generate?"+query)
	if status != http.StatusOK {
		t.Fatalf("generate %q: status %d: %s", query, status, body)
	}
	var out generateResponse
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode generate response: %v", err)
	}
	return out
}

func TestGenerateThenDownload(t *testing.T) {
	ts, _ := newTestServer(t)
	gen := generate(t, ts.URL, "")

	if len(gen.Bits) != sequence.Bits || gen.Encoding != "text" || gen.Generator != "pcg" {
		t.Fatalf("unexpected response: %+v", gen)
	}
	onDisk, err := os.ReadFile(gen.Path)
	if err != nil {
		t.Fatalf("read written file: %v", err)
	}
	if string(onDisk) != gen.Bits {
		t.Fatalf("file content differs from response bits")
	}

	status, txt := fetch(t, ts.URL+"/sequences/"+gen.ID+"/txt")
	if status != http.StatusOK || string(txt) != gen.Bits {
		t.Fatalf("txt: status %d, %d bytes", status, len(txt))
	}

	seq, err := sequence.FromText(gen.Bits)
	if err != nil {
		t.Fatal(err)
	}
	status, bin := fetch(t, ts.URL+"/sequences/"+gen.ID+"/bin")
	if status != http.StatusOK || !bytes.Equal(bin, seq.Raw()) {
		t.Fatalf("bin: status %d, got %x want %x", status, bin, seq.Raw())
	}

	status, img := fetch(t, ts.URL+"/sequences/"+gen.ID+"/png?cell=4")
	if status != http.StatusOK {
		t.Fatalf("png status %d", status)
	}
	decoded, err := png.Decode(bytes.NewReader(img))
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	if b := decoded.Bounds(); b.Dx() != gridCols*4+1 || b.Dy() != gridRows*4+1 {
		t.Fatalf("png bounds %v", b)
	}

	status, body := fetch(t, ts.URL+"/sequences/"+gen.ID+"/verify")
	var v ledger.Verification
	if status != http.StatusOK || json.Unmarshal(body, &v) != nil {
		t.Fatalf("verify: status %d: %s", status, body)
	}
	if !v.ChainValid || !v.RecordFound || !v.BitsHashMatch || !v.SealedInChain {
		t.Fatalf("verify = %+v", v)
	}

	status, body = fetch(t, ts.URL+"/sequences/"+gen.ID+"/stats")
	var rep struct {
		N       int `json:"n"`
		Results []struct {
			Key    string `json:"key"`
			Status string `json:"status"`
		} `json:"results"`
	}
	if status != http.StatusOK || json.Unmarshal(body, &rep) != nil {
		t.Fatalf("stats: status %d: %s", status, body)
	}
	if rep.N != sequence.Bits || len(rep.Results) != 7 {
		t.Fatalf("stats report n=%d results=%d", rep.N, len(rep.Results))
	}

	status, body = fetch(t, ts.URL+"/sequences")
	var list []sequenceSummary
	if status != http.StatusOK || json.Unmarshal(body, &list) != nil {
		t.Fatalf("list: status %d: %s", status, body)
	}
	if len(list) != 1 || list[0].ID != gen.ID {
		t.Fatalf("list = %+v", list)
	}
}

func TestGenerateRawWritesSixteenBytes(t *testing.T) {
	ts, cfg := newTestServer(t)
	gen := generate(t, ts.URL, "encoding=raw")
	if filepath.Ext(gen.Path) != ".bin" || filepath.Dir(gen.Path) != cfg.OutputDir {
		t.Fatalf("unexpected path %q", gen.Path)
	}
	data, err := os.ReadFile(gen.Path)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 16 {
		t.Fatalf("raw file has %d bytes", len(data))
	}
}

func TestGenerateReproducibleWithSeed(t *testing.T) {
	ts, _ := newTestServer(t)
	for _, prng := range []string{"pcg", "drbg"} {
		a := generate(t, ts.URL, "seed=42&prng="+prng)
		b := generate(t, ts.URL, "seed=42&prng="+prng)
		if a.ID == b.ID {
			t.Fatalf("%s: ids should differ", prng)
		}
		if a.Bits != b.Bits {
			t.Fatalf("%s: same seed produced different bits", prng)
		}
		if a.Seed.Mode != "repro" || a.Seed.Value != 42 {
			t.Fatalf("%s: seed = %+v", prng, a.Seed)
		}
		c := generate(t, ts.URL, strings.TrimPrefix(a.ReplayURL, "/generate?"))
		if c.Bits != a.Bits {
			t.Fatalf("%s: replay url did not reproduce the bits", prng)
		}
	}
}

func TestGenerateRejectsBadParams(t *testing.T) {
	ts, _ := newTestServer(t)
	for _, q := range []string{"encoding=hex", "prng=mt19937", "entropy=dice", "seed=abc", "entropy=http"} {
		status, body := fetch(t, ts.URL+"/generate?"+q)
		if status != http.StatusBadRequest {
			t.Errorf("%s: status %d: %s", q, status, body)
		}
	}
	resp, err := http.Post(ts.URL+"/generate", "text/plain", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("POST /generate status %d", resp.StatusCode)
	}
}

func TestGenerateIgnoresRequestSeedURLs(t *testing.T) {
	var hits atomic.Int32
	seedSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		io.WriteString(w, "42")
	}))
	defer seedSrv.Close()

	ts, _ := newTestServer(t)
	status, body := fetch(t, ts.URL+"/generate?entropy=http&http="+seedSrv.URL)
	if status != http.StatusBadRequest {
		t.Fatalf("status %d: %s", status, body)
	}
	gen := generate(t, ts.URL, "entropy=mix&http="+seedSrv.URL)
	if len(gen.Seed.PerSource) != 0 {
		t.Fatalf("request URL was used as a seed source: %+v", gen.Seed)
	}
	if n := hits.Load(); n != 0 {
		t.Fatalf("server fetched a caller-supplied URL %d times", n)
	}
}

func TestUnknownSequence(t *testing.T) {
	ts, _ := newTestServer(t)
	if status, _ := fetch(t, ts.URL+"/sequences/missing/txt"); status != http.StatusNotFound {
		t.Fatalf("unknown id status %d", status)
	}
	gen := generate(t, ts.URL, "")
	if status, _ := fetch(t, ts.URL+"/sequences/"+gen.ID+"/mp3"); status != http.StatusNotFound {
		t.Fatalf("unknown action status %d", status)
	}
	status, body := fetch(t, ts.URL+"/sequences/missing/verify")
	var v ledger.Verification
	if status != http.StatusNotFound || json.Unmarshal(body, &v) != nil || v.RecordFound {
		t.Fatalf("verify unknown: status %d: %s", status, body)
	}
}

func postStats(t *testing.T, url, contentType string, body io.Reader) (int, nist.Report) {
	t.Helper()
	resp, err := http.Post(url, contentType, body)
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	var rep nist.Report
	if resp.StatusCode == http.StatusOK {
		var raw struct {
			N    int `json:"n"`
			Ones int `json:"ones"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
			t.Fatalf("decode report: %v", err)
		}
		rep.N, rep.Ones = raw.N, raw.Ones
	}
	return resp.StatusCode, rep
}

func TestUploadStatsRawBody(t *testing.T) {
	ts, _ := newTestServer(t)
	bits := strings.Repeat("0110", 50)
	status, rep := postStats(t, ts.URL+"/stats", "text/plain", strings.NewReader(bits))
	if status != http.StatusOK || rep.N != 200 || rep.Ones != 100 {
		t.Fatalf("status %d report %+v", status, rep)
	}

	status, rep = postStats(t, ts.URL+"/stats?mode=binpacked", "application/octet-stream", bytes.NewReader([]byte{0xff, 0x00}))
	if status != http.StatusOK || rep.N != 16 || rep.Ones != 8 {
		t.Fatalf("packed: status %d report %+v", status, rep)
	}
}

func TestUploadStatsMultipart(t *testing.T) {
	ts, _ := newTestServer(t)
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "seq.txt")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := io.WriteString(fw, strings.Repeat("01", 64)+"\n"); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	status, rep := postStats(t, ts.URL+"/stats", mw.FormDataContentType(), &buf)
	if status != http.StatusOK || rep.N != 128 || rep.Ones != 64 {
		t.Fatalf("status %d report %+v", status, rep)
	}
}

func TestUploadStatsErrors(t *testing.T) {
	ts, _ := newTestServer(t)
	if status, _ := postStats(t, ts.URL+"/stats?mode=txt", "text/plain", strings.NewReader("01x1")); status != http.StatusBadRequest {
		t.Fatalf("bad bits status %d", status)
	}
	if status, _ := postStats(t, ts.URL+"/stats?mode=morse", "text/plain", strings.NewReader("0101")); status != http.StatusBadRequest {
		t.Fatalf("bad mode status %d", status)
	}
	big := strings.Repeat("0", 2048)
	if status, _ := postStats(t, ts.URL+"/stats", "text/plain", strings.NewReader(big)); status != http.StatusRequestEntityTooLarge {
		t.Fatalf("oversized upload status %d", status)
	}
	if status, _ := fetch(t, ts.URL+"/stats"); status != http.StatusMethodNotAllowed {
		t.Fatalf("GET /stats status %d", status)
	}
}

func TestChainEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)
	first := generate(t, ts.URL, "")
	second := generate(t, ts.URL, "encoding=raw")

	status, body := fetch(t, ts.URL+"/chain")
	var chain []ledger.Block
	if status != http.StatusOK || json.Unmarshal(body, &chain) != nil {
		t.Fatalf("chain: status %d: %s", status, body)
	}
	if len(chain) != 2 || chain[0].RecordID != first.ID || chain[1].RecordID != second.ID {
		t.Fatalf("chain = %+v", chain)
	}
	if chain[1].PrevHash != chain[0].Hash || second.Block.Hash != chain[1].Hash {
		t.Fatalf("chain links wrong: %+v", chain)
	}
}
