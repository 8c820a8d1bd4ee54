package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"seqgen/internal/config"
	"seqgen/internal/entropy"
	"seqgen/internal/ledger"
	"seqgen/internal/sequence"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type app struct {
	cfg config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:          "seqgen",
		Short:        "Write 128-bit pseudo-random sequences and test them",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			a.cfg = cfg
			return nil
		},
		// With no subcommand, write one sequence to the configured default path.
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runWrite(cmd, nil, &writeFlags{})
		},
	}
	root.AddCommand(a.writeCmd(), a.statsCmd(), a.serveCmd(), a.verifyCmd())
	return root
}

func openLedger(ctx context.Context, cfg config.Config) (*ledger.Ledger, error) {
	store, err := ledger.OpenStore(cfg.LedgerDriver, cfg.LedgerPath)
	if err != nil {
		return nil, err
	}
	l, err := ledger.Open(ctx, store)
	if err == nil {
		return l, nil
	}
	if js, ok := store.(*ledger.JSONStore); ok && js.BackupPath != "" {
		log.Printf("ledger: %v; starting with an empty ledger", err)
		return ledger.Open(ctx, js)
	}
	_ = store.Close()
	return nil, err
}

// ======= write =======

type writeFlags struct {
	encoding string
	entropy  string
	seed     int64
	prng     string
	http     []string
	parents  bool
	record   bool
}

func (a *app) writeCmd() *cobra.Command {
	f := &writeFlags{}
	cmd := &cobra.Command{
		Use:   "write [path]",
		Short: "Write one 128-bit sequence to a file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runWrite(cmd, args, f)
		},
	}
	cmd.Flags().StringVarP(&f.encoding, "encoding", "e", "", "text or raw (default $SEQGEN_ENCODING)")
	cmd.Flags().StringVar(&f.entropy, "entropy", "", "os|jitter|http|mix|repro (default $SEQGEN_ENTROPY)")
	cmd.Flags().Int64Var(&f.seed, "seed", 0, "fixed seed; implies --entropy repro")
	cmd.Flags().StringVar(&f.prng, "prng", "", "pcg or drbg (default $SEQGEN_PRNG)")
	cmd.Flags().StringSliceVar(&f.http, "http", nil, "seed URLs for http and mix entropy")
	cmd.Flags().BoolVarP(&f.parents, "parents", "p", false, "create missing ancestor directories")
	cmd.Flags().BoolVar(&f.record, "record", false, "append the sequence to the ledger")
	return cmd
}

func (a *app) runWrite(cmd *cobra.Command, args []string, f *writeFlags) error {
	path := a.cfg.Output
	if len(args) == 1 {
		path = args[0]
	}
	p := GenerateParams{
		Encoding:  orDefault(f.encoding, a.cfg.Encoding),
		Generator: orDefault(f.prng, a.cfg.Generator),
		Entropy: entropy.Spec{
			Mode:    orDefault(f.entropy, a.cfg.Entropy),
			HTTP:    a.cfg.HTTPSources,
			Timeout: a.cfg.EntropyTimeout,
		},
	}
	if len(f.http) > 0 {
		p.Entropy.HTTP = f.http
	}
	if flag := cmd.Flags().Lookup("seed"); flag != nil && flag.Changed {
		p.Entropy.Mode = entropy.ModeRepro
		p.Entropy.Seed = f.seed
	}
	var opts []sequence.Option
	if f.parents {
		opts = append(opts, sequence.WithParents())
	}

	g, err := generateTo(cmd.Context(), path, p, opts...)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if !f.record {
		fmt.Fprintln(out, path)
		return nil
	}

	l, err := openLedger(cmd.Context(), a.cfg)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer l.Close()
	rec, blk, err := l.Append(cmd.Context(), g.record(""))
	if err != nil {
		return err
	}
	log.Printf("recorded %s as block %d", rec.ID, blk.Index)
	fmt.Fprintf(out, "%s\t%s\n", path, rec.ID)
	return nil
}

// ======= serve =======

func (a *app) serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = a.cfg.Addr
			}
			return a.runServe(cmd.Context(), addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default $SEQGEN_ADDR)")
	return cmd
}

func (a *app) runServe(ctx context.Context, addr string) error {
	l, err := openLedger(ctx, a.cfg)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer l.Close()
	if err := sequence.EnsureDir(a.cfg.OutputDir, true); err != nil {
		return err
	}
	log.Printf("ledger: %s store at %s, %d records", a.cfg.LedgerDriver, a.cfg.LedgerPath, len(l.List()))

	srv := newServer(a.cfg, l).httpServer(addr)
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Printf("seqgen server on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	log.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// ======= verify =======

func (a *app) verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify [id]",
		Short: "Check the ledger hash chain, optionally one record",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := openLedger(cmd.Context(), a.cfg)
			if err != nil {
				return fmt.Errorf("open ledger: %w", err)
			}
			defer l.Close()
			out := cmd.OutOrStdout()
			if len(args) == 1 {
				v := l.Verify(args[0])
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(v); err != nil {
					return err
				}
				if !v.RecordFound {
					return fmt.Errorf("record %s: %w", args[0], ledger.ErrNotFound)
				}
				if !v.ChainValid || !v.BitsHashMatch || !v.SealedInChain {
					return fmt.Errorf("record %s failed verification", args[0])
				}
				return nil
			}
			if err := l.VerifyChain(); err != nil {
				return fmt.Errorf("ledger invalid: %w", err)
			}
			fmt.Fprintf(out, "chain valid: %d blocks\n", len(l.Chain()))
			return nil
		},
	}
}
