package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/cors"

	"seqgen/internal/config"
	"seqgen/internal/entropy"
	"seqgen/internal/ledger"
	"seqgen/internal/nist"
	"seqgen/internal/sequence"
)

type server struct {
	cfg    config.Config
	ledger *ledger.Ledger
}

func newServer(cfg config.Config, l *ledger.Ledger) *server {
	return &server{cfg: cfg, ledger: l}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/generate", s.generateHandler)
	mux.HandleFunc("/sequences", s.sequencesHandler)
	mux.HandleFunc("/sequences/", s.sequenceRouter)
	mux.HandleFunc("/chain", s.chainHandler)
	mux.HandleFunc("/stats", s.uploadStatsHandler)
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: false,
	})
	return c.Handler(mux)
}

func (s *server) httpServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// ======= helpers =======
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("encode response: %v", err)
	}
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

// ======= handlers =======

// /generate?encoding=text|raw&entropy=os|jitter|http|mix|repro&seed=N&prng=pcg|drbg
// Seed URLs come only from SEQGEN_HTTP_SOURCES, never from the request.
func (s *server) generateHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	p := GenerateParams{
		Encoding:  orDefault(q.Get("encoding"), s.cfg.Encoding),
		Generator: orDefault(q.Get("prng"), s.cfg.Generator),
		Entropy: entropy.Spec{
			Mode:    orDefault(q.Get("entropy"), s.cfg.Entropy),
			HTTP:    s.cfg.HTTPSources,
			Timeout: s.cfg.EntropyTimeout,
		},
	}
	if seedStr := q.Get("seed"); seedStr != "" {
		v, err := strconv.ParseInt(seedStr, 10, 64)
		if err != nil {
			http.Error(w, "invalid seed: "+err.Error(), http.StatusBadRequest)
			return
		}
		p.Entropy.Seed = v
		p.Entropy.Mode = entropy.ModeRepro
	}

	enc, err := sequence.ParseEncoding(p.Encoding)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	id := uuid.NewString()
	path := filepath.Join(s.cfg.OutputDir, id+enc.Ext())

	log.Printf("generate: encoding=%s prng=%s entropy=%s", enc, p.Generator, p.Entropy.Mode)
	g, err := generateTo(r.Context(), path, p, sequence.WithParents())
	if err != nil {
		status := http.StatusInternalServerError
		if isParamError(err) {
			status = http.StatusBadRequest
		}
		log.Printf("generate: %v", err)
		http.Error(w, err.Error(), status)
		return
	}

	rec, blk, err := s.ledger.Append(r.Context(), g.record(id))
	if err != nil {
		log.Printf("generate: record %s: %v", id, err)
		http.Error(w, "record sequence: "+err.Error(), http.StatusInternalServerError)
		return
	}
	log.Printf("generate: wrote %s seed=%d tag=%s", path, g.Seed.Value, g.Seed.Tag)

	writeJSON(w, http.StatusOK, generateResponse{
		ID:        rec.ID,
		CreatedAt: rec.CreatedAt.Format(time.RFC3339),
		Path:      rec.Path,
		Encoding:  rec.Encoding,
		Generator: rec.Generator,
		Seed:      g.Seed,
		Bits:      rec.Bits,
		Ones:      g.Seq.Ones(),
		Block:     blk,
		ReplayURL: replayURL(rec),
	})
}

func (s *server) chainHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ledger.Chain())
}

// /sequences - summaries in chain order
func (s *server) sequencesHandler(w http.ResponseWriter, r *http.Request) {
	recs := s.ledger.List()
	list := make([]sequenceSummary, 0, len(recs))
	for _, rec := range recs {
		list = append(list, summarize(rec))
	}
	writeJSON(w, http.StatusOK, list)
}

// /sequences/{id}/txt|bin|png|verify|stats|info
func (s *server) sequenceRouter(w http.ResponseWriter, r *http.Request) {
	p := strings.TrimPrefix(r.URL.Path, "/sequences/")
	parts := strings.SplitN(p, "/", 2)
	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "missing sequence id", http.StatusBadRequest)
		return
	}
	id := parts[0]
	action := "info"
	if len(parts) == 2 && parts[1] != "" {
		action = parts[1]
	}

	if action == "verify" {
		v := s.ledger.Verify(id)
		status := http.StatusOK
		if !v.RecordFound {
			status = http.StatusNotFound
		}
		writeJSON(w, status, v)
		return
	}

	rec, seq, ok := s.lookup(w, id)
	if !ok {
		return
	}
	switch action {
	case "txt":
		serveFile(w, id, sequence.TextBits, seq)
	case "bin":
		serveFile(w, id, sequence.RawBinary, seq)
	case "png":
		cell, _ := strconv.Atoi(r.URL.Query().Get("cell"))
		w.Header().Set("Content-Type", "image/png")
		if err := writePNG(w, seq, cell); err != nil {
			log.Printf("png %s: %v", id, err)
		}
	case "stats":
		writeJSON(w, http.StatusOK, nist.Run(seq.Unpack()))
	case "info":
		writeJSON(w, http.StatusOK, map[string]any{
			"record":     rec,
			"replay_url": replayURL(rec),
		})
	default:
		log.Printf("sequenceRouter: unknown action %q for %s", action, id)
		http.Error(w, "unknown sequence action", http.StatusNotFound)
	}
}

func (s *server) lookup(w http.ResponseWriter, id string) (ledger.Record, sequence.BitSequence, bool) {
	rec, err := s.ledger.Get(id)
	if errors.Is(err, ledger.ErrNotFound) {
		http.Error(w, "sequence not found", http.StatusNotFound)
		return ledger.Record{}, sequence.BitSequence{}, false
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return ledger.Record{}, sequence.BitSequence{}, false
	}
	seq, err := sequence.FromText(rec.Bits)
	if err != nil {
		http.Error(w, "stored bits unreadable: "+err.Error(), http.StatusInternalServerError)
		return ledger.Record{}, sequence.BitSequence{}, false
	}
	return rec, seq, true
}

func serveFile(w http.ResponseWriter, id string, enc sequence.Encoding, seq sequence.BitSequence) {
	data, err := seq.Encode(enc)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	contentType := "text/plain"
	if enc == sequence.RawBinary {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s%s\"", id, enc.Ext()))
	_, _ = w.Write(data)
}

// POST /stats?mode=auto|txt|bin01|binpacked with a raw body or a multipart
// "file" field.
func (s *server) uploadStatsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	limit := int64(s.cfg.MaxUpload.Bytes())
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	data, modeParam, err := readUpload(r, limit)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			http.Error(w, fmt.Sprintf("upload exceeds %s", s.cfg.MaxUpload.HumanReadable()), http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "read upload: "+err.Error(), http.StatusBadRequest)
		return
	}
	mode, err := nist.ParseMode(modeParam)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	bits, err := nist.Parse(data, mode)
	if err != nil {
		http.Error(w, "failed to parse bits: "+err.Error(), http.StatusBadRequest)
		return
	}
	log.Printf("stats: %d bits uploaded", len(bits))
	writeJSON(w, http.StatusOK, nist.Run(bits))
}

func readUpload(r *http.Request, limit int64) ([]byte, string, error) {
	mode := r.URL.Query().Get("mode")
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		data, err := io.ReadAll(r.Body)
		return data, mode, err
	}
	if err := r.ParseMultipartForm(limit); err != nil {
		return nil, "", err
	}
	if mode == "" {
		mode = r.FormValue("mode")
	}
	f, hdr, err := r.FormFile("file")
	if err != nil {
		return nil, "", err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, "", err
	}
	if mode == "" {
		mode = modeForName(hdr.Filename)
	}
	return data, mode, nil
}

// modeForName picks a parse mode from an uploaded file's extension.
func modeForName(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt":
		return "txt"
	default:
		return "auto"
	}
}
