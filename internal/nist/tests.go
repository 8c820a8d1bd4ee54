package nist

import "math"

// Frequency is the monobit test.
func Frequency(seq []uint8) Result {
	n := len(seq)
	sum := 0
	for _, b := range seq {
		sum += 2*int(b) - 1
	}
	sObs := math.Abs(float64(sum)) / math.Sqrt(float64(n))
	p := erfc(sObs / math.Sqrt2)
	return newResult(KeyFrequency, map[string]float64{"pValue": p, "sObs": sObs, "sum": float64(sum)}, p)
}

// BlockFrequency tests the proportion of ones within M-bit blocks.
func BlockFrequency(seq []uint8, m int) Result {
	n := len(seq)
	blocks := 0
	if m > 0 {
		blocks = n / m
	}
	if blocks == 0 {
		return skipped(KeyBlockFrequency, "sequence shorter than one block")
	}
	chi := 0.0
	for i := 0; i < blocks; i++ {
		ones := 0
		for _, b := range seq[i*m : (i+1)*m] {
			ones += int(b)
		}
		pi := float64(ones)/float64(m) - 0.5
		chi += pi * pi
	}
	chi *= 4.0 * float64(m)
	p := igamc(float64(blocks)/2.0, chi/2.0)
	return newResult(KeyBlockFrequency, map[string]float64{"pValue": p, "M": float64(m), "N": float64(blocks), "chiSqr": chi}, p)
}

// blockFrequencySize picks M for BlockFrequency.
func blockFrequencySize(n int) int {
	if n >= 12800 {
		return 128
	}
	return 8
}

// Runs counts uninterrupted runs of identical bits. When the frequency
// prerequisite fails the p-value is 0.
func Runs(seq []uint8) Result {
	n := len(seq)
	ones := 0
	for _, b := range seq {
		ones += int(b)
	}
	pi := float64(ones) / float64(n)
	tau := 2.0 / math.Sqrt(float64(n))
	if math.Abs(pi-0.5) >= tau {
		r := newResult(KeyRuns, map[string]float64{"pValue": 0, "piObs": pi, "tau": tau}, 0)
		r.Reason = "frequency prerequisite failed"
		return r
	}
	vObs := 1
	for i := 1; i < n; i++ {
		if seq[i] != seq[i-1] {
			vObs++
		}
	}
	num := math.Abs(float64(vObs) - 2.0*float64(n)*pi*(1.0-pi))
	den := 2.0 * math.Sqrt(2.0*float64(n)) * pi * (1.0 - pi)
	p := erfc(num / den)
	return newResult(KeyRuns, map[string]float64{"pValue": p, "vObs": float64(vObs), "piObs": pi}, p)
}

type longestRunTable struct {
	m    int // block length
	vmin int // run length of the lowest category
	pi   []float64
}

func longestRunParams(n int) longestRunTable {
	switch {
	case n < 6272:
		return longestRunTable{m: 8, vmin: 1, pi: []float64{0.2148, 0.3672, 0.2305, 0.1875}}
	case n < 750000:
		return longestRunTable{m: 128, vmin: 4, pi: []float64{0.1174, 0.2430, 0.2493, 0.1752, 0.1027, 0.1124}}
	default:
		return longestRunTable{m: 10000, vmin: 10, pi: []float64{0.0882, 0.2092, 0.2483, 0.1933, 0.1208, 0.0675, 0.0727}}
	}
}

// LongestRun is the longest-run-of-ones-in-a-block test.
func LongestRun(seq []uint8) Result {
	tbl := longestRunParams(len(seq))
	k := len(tbl.pi) - 1
	blocks := len(seq) / tbl.m
	if blocks == 0 {
		return skipped(KeyLongestRun, "sequence shorter than one block")
	}
	nu := make([]int, k+1)
	for i := 0; i < blocks; i++ {
		longest, cur := 0, 0
		for _, b := range seq[i*tbl.m : (i+1)*tbl.m] {
			if b == 1 {
				cur++
				longest = max(longest, cur)
			} else {
				cur = 0
			}
		}
		nu[min(max(longest-tbl.vmin, 0), k)]++
	}
	chi := 0.0
	for i := 0; i <= k; i++ {
		exp := float64(blocks) * tbl.pi[i]
		d := float64(nu[i]) - exp
		chi += d * d / exp
	}
	p := igamc(float64(k)/2.0, chi/2.0)
	return newResult(KeyLongestRun, map[string]float64{"pValue": p, "M": float64(tbl.m), "N": float64(blocks), "chiSqr": chi}, p)
}

// patternCounts counts every overlapping m-bit pattern, wrapping around the
// end of the sequence.
func patternCounts(seq []uint8, m int) []int {
	counts := make([]int, 1<<uint(m))
	if m == 0 {
		return counts
	}
	n := len(seq)
	for i := 0; i < n; i++ {
		idx := 0
		for j := 0; j < m; j++ {
			idx = idx<<1 | int(seq[(i+j)%n])
		}
		counts[idx]++
	}
	return counts
}

func psiSq(seq []uint8, m int) float64 {
	if m <= 0 {
		return 0
	}
	n := float64(len(seq))
	sum := 0.0
	for _, c := range patternCounts(seq, m) {
		sum += float64(c) * float64(c)
	}
	return sum*float64(int(1)<<uint(m))/n - n
}

// Serial checks the uniformity of overlapping m-bit patterns.
func Serial(seq []uint8, m int) Result {
	if m < 2 {
		return skipped(KeySerial, "block length must be at least 2")
	}
	p0, p1, p2 := psiSq(seq, m), psiSq(seq, m-1), psiSq(seq, m-2)
	del1 := p0 - p1
	del2 := p0 - 2.0*p1 + p2
	pv1 := igamc(math.Pow(2, float64(m-2)), del1/2.0)
	pv2 := igamc(math.Pow(2, float64(m-3)), del2/2.0)
	return newResult(KeySerial, map[string]float64{"pValue1": pv1, "pValue2": pv2, "m": float64(m), "delta1": del1, "delta2": del2}, pv1, pv2)
}

func phi(seq []uint8, m int) float64 {
	n := float64(len(seq))
	sum := 0.0
	for _, c := range patternCounts(seq, m) {
		if c > 0 {
			f := float64(c) / n
			sum += f * math.Log(f)
		}
	}
	return sum
}

// ApproximateEntropy compares frequencies of m and m+1 bit patterns.
func ApproximateEntropy(seq []uint8, m int) Result {
	n := float64(len(seq))
	apen := phi(seq, m) - phi(seq, m+1)
	chi := 2.0 * n * (math.Ln2 - apen)
	p := igamc(math.Pow(2, float64(m-1)), chi/2.0)
	return newResult(KeyApproximateEntropy, map[string]float64{"pValue": p, "m": float64(m), "apen": apen, "chiSqr": chi}, p)
}

func cusumP(n, z int) float64 {
	fn, fz := float64(n), float64(z)
	sqrtN := math.Sqrt(fn)
	sum1 := 0.0
	for k := int(math.Trunc((-fn/fz + 1.0) / 4.0)); k <= int(math.Trunc((fn/fz-1.0)/4.0)); k++ {
		fk := float64(k)
		sum1 += normalCDF((4.0*fk+1.0)*fz/sqrtN) - normalCDF((4.0*fk-1.0)*fz/sqrtN)
	}
	sum2 := 0.0
	for k := int(math.Trunc((-fn/fz - 3.0) / 4.0)); k <= int(math.Trunc((fn/fz-1.0)/4.0)); k++ {
		fk := float64(k)
		sum2 += normalCDF((4.0*fk+3.0)*fz/sqrtN) - normalCDF((4.0*fk+1.0)*fz/sqrtN)
	}
	return 1.0 - sum1 + sum2
}

// maxExcursion is max |S_k| over the partial sums of ±1, walked forward or
// in reverse.
func maxExcursion(seq []uint8, reverse bool) int {
	s, z := 0, 0
	n := len(seq)
	for i := 0; i < n; i++ {
		b := seq[i]
		if reverse {
			b = seq[n-1-i]
		}
		s += 2*int(b) - 1
		if s > z {
			z = s
		} else if -s > z {
			z = -s
		}
	}
	return z
}

// CumulativeSums runs the cusum test forward and in reverse.
func CumulativeSums(seq []uint8) Result {
	n := len(seq)
	zf, zr := maxExcursion(seq, false), maxExcursion(seq, true)
	pf, pr := cusumP(n, zf), cusumP(n, zr)
	return newResult(KeyCumulativeSums, map[string]float64{"pValueFWD": pf, "pValueREV": pr, "zFWD": float64(zf), "zREV": float64(zr)}, pf, pr)
}
