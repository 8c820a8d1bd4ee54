package nist

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
)

// Alpha is the significance level; p-values below it fail.
const Alpha = 0.01

// Status of a single test.
type Status string

const (
	StatusPassed  Status = "Passed"
	StatusFailed  Status = "Failed"
	StatusSkipped Status = "Skipped"
)

// Test keys, in report order.
const (
	KeyFrequency          = "frequency"
	KeyBlockFrequency     = "frequency_block"
	KeyRuns               = "runs"
	KeyLongestRun         = "longest_run"
	KeySerial             = "serial_m2"
	KeyApproximateEntropy = "approx_entropy_m2"
	KeyCumulativeSums     = "cumulative_sums"
)

var testNames = map[string]string{
	KeyFrequency:          "Frequency (Monobit) Test",
	KeyBlockFrequency:     "Frequency Test within a Block",
	KeyRuns:               "Runs Test",
	KeyLongestRun:         "Longest Run of Ones in a Block",
	KeySerial:             "Serial Test (m=2)",
	KeyApproximateEntropy: "Approximate Entropy Test (m=2)",
	KeyCumulativeSums:     "Cumulative Sums (Cusum) Test",
}

// Result is the outcome of one test. Values holds p-values and statistics;
// NaN entries encode as JSON null.
type Result struct {
	Key    string
	Name   string
	Values map[string]float64
	Status Status
	Reason string
}

func newResult(key string, values map[string]float64, ps ...float64) Result {
	st := StatusPassed
	for _, p := range ps {
		if !(p >= Alpha) {
			st = StatusFailed
		}
	}
	return Result{Key: key, Name: testNames[key], Values: values, Status: st}
}

func skipped(key, reason string) Result {
	return Result{Key: key, Name: testNames[key], Values: map[string]float64{}, Status: StatusSkipped, Reason: reason}
}

// PValues returns the p-value entries sorted by name.
func (r Result) PValues() []float64 {
	keys := make([]string, 0, len(r.Values))
	for k := range r.Values {
		if strings.HasPrefix(k, "pValue") {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := make([]float64, len(keys))
	for i, k := range keys {
		out[i] = r.Values[k]
	}
	return out
}

func (r Result) MarshalJSON() ([]byte, error) {
	vals := make(map[string]any, len(r.Values))
	for k, v := range r.Values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			vals[k] = nil
		} else {
			vals[k] = v
		}
	}
	return json.Marshal(struct {
		Key    string         `json:"key"`
		Name   string         `json:"name"`
		Values map[string]any `json:"values"`
		Status Status         `json:"status"`
		Reason string         `json:"reason,omitempty"`
	}{r.Key, r.Name, vals, r.Status, r.Reason})
}

// Report is the full battery over one sequence.
type Report struct {
	N       int      `json:"n"`
	Ones    int      `json:"ones"`
	Results []Result `json:"results"`
}

// minimum input lengths in bits
var minLength = map[string]int{
	KeyFrequency:          100,
	KeyBlockFrequency:     100,
	KeyRuns:               100,
	KeyLongestRun:         128,
	KeySerial:             100,
	KeyApproximateEntropy: 100,
	KeyCumulativeSums:     100,
}

// Run evaluates every test in report order. Tests whose minimum length is
// not met are reported as skipped.
func Run(seq []uint8) Report {
	n := len(seq)
	ones := 0
	for _, b := range seq {
		ones += int(b)
	}
	rep := Report{N: n, Ones: ones}

	run := func(key string, fn func() Result) {
		if n < minLength[key] {
			rep.Results = append(rep.Results, skipped(key, fmt.Sprintf("needs at least %d bits, got %d", minLength[key], n)))
			return
		}
		rep.Results = append(rep.Results, fn())
	}
	run(KeyFrequency, func() Result { return Frequency(seq) })
	run(KeyBlockFrequency, func() Result { return BlockFrequency(seq, blockFrequencySize(n)) })
	run(KeyRuns, func() Result { return Runs(seq) })
	run(KeyLongestRun, func() Result { return LongestRun(seq) })
	run(KeySerial, func() Result {
		// m must stay below floor(log2 n) - 2
		if 2 >= int(math.Floor(math.Log2(float64(n))))-2 {
			return skipped(KeySerial, "sequence too short for m=2")
		}
		return Serial(seq, 2)
	})
	run(KeyApproximateEntropy, func() Result { return ApproximateEntropy(seq, 2) })
	run(KeyCumulativeSums, func() Result { return CumulativeSums(seq) })
	return rep
}

// Passed reports whether no executed test failed.
func (r Report) Passed() bool {
	for _, res := range r.Results {
		if res.Status == StatusFailed {
			return false
		}
	}
	return true
}

// Result looks up a test by key.
func (r Report) Result(key string) (Result, bool) {
	for _, res := range r.Results {
		if res.Key == key {
			return res, true
		}
	}
	return Result{}, false
}

// WriteText writes one "<key>: <status> (p=...)" line per test.
func (r Report) WriteText(w io.Writer) error {
	for _, res := range r.Results {
		line := fmt.Sprintf("%s: %s", res.Key, res.Status)
		if ps := res.PValues(); len(ps) > 0 {
			parts := make([]string, len(ps))
			for i, p := range ps {
				parts[i] = fmt.Sprintf("%.6f", p)
			}
			line += " (p=" + strings.Join(parts, ", ") + ")"
		}
		if res.Reason != "" {
			line += " [" + res.Reason + "]"
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
