package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"seqgen/internal/nist"
)

type statsFlags struct {
	mode    string
	out     string
	bits    string
	asJSON  bool
	failBad bool
}

func (a *app) statsCmd() *cobra.Command {
	f := &statsFlags{}
	cmd := &cobra.Command{
		Use:   "stats [file]",
		Short: "Run the NIST SP800-22 subset over a bit sequence",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(cmd, args, f)
		},
	}
	cmd.Flags().StringVarP(&f.mode, "mode", "m", "auto", "auto|txt|bin01|binpacked")
	cmd.Flags().StringVarP(&f.out, "out", "o", "", "write the report to this file instead of stdout")
	cmd.Flags().StringVar(&f.bits, "bits", "", "analyse this 0/1 string instead of a file")
	cmd.Flags().BoolVar(&f.asJSON, "json", false, "emit JSON instead of text lines")
	cmd.Flags().BoolVar(&f.failBad, "strict", false, "exit non-zero when any test fails")
	return cmd
}

func runStats(cmd *cobra.Command, args []string, f *statsFlags) (err error) {
	bits, err := loadBits(args, f)
	if err != nil {
		return err
	}
	rep := nist.Run(bits)

	var w io.Writer = cmd.OutOrStdout()
	if f.out != "" {
		file, err := os.Create(f.out)
		if err != nil {
			return fmt.Errorf("the file could not be opened for writing: %w", err)
		}
		defer func() {
			if cerr := file.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("close report: %w", cerr)
			}
		}()
		w = file
	}
	if err := writeReport(w, rep, f.asJSON); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if f.failBad && !rep.Passed() {
		return errors.New("sequence failed at least one test")
	}
	return nil
}

func writeReport(w io.Writer, rep nist.Report, asJSON bool) error {
	if !asJSON {
		return rep.WriteText(w)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

func loadBits(args []string, f *statsFlags) ([]uint8, error) {
	if f.bits != "" {
		if len(args) > 0 {
			return nil, errors.New("give either a file or --bits, not both")
		}
		return nist.ParseText(f.bits)
	}
	if len(args) == 0 {
		return nil, errors.New("a sequence file or --bits is required")
	}
	mode, err := nist.ParseMode(f.mode)
	if err != nil {
		return nil, err
	}
	return nist.ParseFile(args[0], mode)
}
