// Package indexset compresses sparse sets of array-task indices into the
// Slurm array range syntax (a, a-b, a-b:s) and expands specs back into sets.
//
// The compressor is a prioritized strategy chain tuned for the failure
// shapes this tool actually sees (uniform batches failing at regular
// offsets). It is deliberately not an optimal encoder; downstream only
// needs a valid, reasonably compact spec, and the exact outputs for known
// inputs are pinned by tests.
package indexset

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Compress renders a set of non-negative task indices as a comma-separated
// spec of literals, inclusive ranges and strided ranges. Input is treated
// as a set: order and duplicates are ignored.
func Compress(indices []int) string {
	sorted := dedupeSorted(indices)
	n := len(sorted)

	switch n {
	case 0:
		return ""
	case 1:
		return strconv.Itoa(sorted[0])
	case 2:
		if sorted[1] == sorted[0]+1 {
			return fmt.Sprintf("%d-%d", sorted[0], sorted[1])
		}
		return fmt.Sprintf("%d,%d", sorted[0], sorted[1])
	}

	gaps := make([]int, n-1)
	allSame := true
	for i := 1; i < n; i++ {
		gaps[i-1] = sorted[i] - sorted[i-1]
		if gaps[i-1] != gaps[0] {
			allSame = false
		}
	}

	// Uniform stride across the whole set: one range covers everything.
	if allSame {
		if gaps[0] == 1 {
			return fmt.Sprintf("%d-%d", sorted[0], sorted[n-1])
		}
		return fmt.Sprintf("%d-%d:%d", sorted[0], sorted[n-1], gaps[0])
	}

	if out, ok := compressPeriodic(sorted, gaps); ok {
		return out
	}
	if out, ok := compressModGrouped(sorted); ok {
		return out
	}
	return compressGreedy(sorted)
}

// compressPeriodic looks for a repeating gap pattern with period 2..5 and,
// if found, splits the values into interleaved lanes by position modulo the
// period. Each lane advances by the sum of one period of gaps.
func compressPeriodic(sorted, gaps []int) (string, bool) {
	period := 0
	for p := 2; p <= 5; p++ {
		// Need the first gap to recur at least three times to form a range.
		if len(gaps) < p*2+1 {
			continue
		}
		periodic := true
		for i := p; i < len(gaps); i++ {
			if gaps[i] != gaps[i%p] {
				periodic = false
				break
			}
		}
		if periodic {
			period = p
			break
		}
	}
	if period < 2 {
		return "", false
	}

	totalStride := 0
	for _, g := range gaps[:period] {
		totalStride += g
	}

	parts := make([]string, 0, period)
	for offset := 0; offset < period; offset++ {
		var lane []int
		for j := offset; j < len(sorted); j += period {
			lane = append(lane, sorted[j])
		}
		start, end := lane[0], lane[len(lane)-1]
		switch {
		case len(lane) >= 3:
			if totalStride == 1 {
				parts = append(parts, fmt.Sprintf("%d-%d", start, end))
			} else {
				parts = append(parts, fmt.Sprintf("%d-%d:%d", start, end, totalStride))
			}
		case len(lane) == 2:
			if end == start+1 {
				parts = append(parts, fmt.Sprintf("%d-%d", start, end))
			} else {
				parts = append(parts, fmt.Sprintf("%d,%d", start, end))
			}
		default:
			parts = append(parts, strconv.Itoa(start))
		}
	}
	return strings.Join(parts, ","), true
}

// compressModGrouped partitions indices by value modulo a candidate stride
// (10, then 5, then 2) and greedily merges stride-separated runs inside
// each residue group. The grouping is only accepted when it renders under
// roughly two characters per original index; otherwise the caller falls
// through to the greedy pass.
func compressModGrouped(sorted []int) (string, bool) {
	n := len(sorted)
	for _, stride := range []int{10, 5, 2} {
		if n < stride*3 {
			continue
		}

		groups := map[int][]int{}
		for _, v := range sorted {
			groups[v%stride] = append(groups[v%stride], v)
		}

		useful := 0
		for _, g := range groups {
			if len(g) >= 3 {
				useful++
			}
		}
		if useful < 2 {
			continue
		}

		mods := make([]int, 0, len(groups))
		for m := range groups {
			mods = append(mods, m)
		}
		sort.Ints(mods)

		var parts []string
		for _, m := range mods {
			g := groups[m]
			switch {
			case len(g) == 1:
				parts = append(parts, strconv.Itoa(g[0]))
			case len(g) == 2:
				if g[1]-g[0] == stride {
					parts = append(parts, fmt.Sprintf("%d-%d:%d", g[0], g[1], stride))
				} else {
					parts = append(parts, fmt.Sprintf("%d,%d", g[0], g[1]))
				}
			default:
				parts = append(parts, compressGroupGreedy(g, stride)...)
			}
		}

		out := strings.Join(parts, ",")
		if len(out) < n*2 {
			return out, true
		}
	}
	return "", false
}

// compressGroupGreedy merges consecutive members of one residue group that
// differ by exactly stride. Runs of two or more become a strided range.
func compressGroupGreedy(group []int, stride int) []string {
	var parts []string
	i := 0
	for i < len(group) {
		start := group[i]
		end := start
		count := 1
		j := i + 1
		for j < len(group) && group[j] == end+stride {
			end = group[j]
			count++
			j++
		}
		if count >= 2 {
			parts = append(parts, fmt.Sprintf("%d-%d:%d", start, end, stride))
			i = j
		} else {
			parts = append(parts, strconv.Itoa(start))
			i++
		}
	}
	return parts
}

// compressGreedy is the final fallback: a left-to-right pass that extends a
// candidate range while the gap stays constant, committing strided ranges
// of three or more members (two when the stride is 1).
func compressGreedy(sorted []int) string {
	n := len(sorted)
	var parts []string
	i := 0
	for i < n {
		start := sorted[i]
		if i+1 >= n {
			parts = append(parts, strconv.Itoa(start))
			i++
			continue
		}

		stride := sorted[i+1] - sorted[i]
		end := start
		count := 1
		j := i + 1
		for j < n && sorted[j] == end+stride {
			end = sorted[j]
			count++
			j++
		}

		switch {
		case count >= 3:
			if stride == 1 {
				parts = append(parts, fmt.Sprintf("%d-%d", start, end))
			} else {
				parts = append(parts, fmt.Sprintf("%d-%d:%d", start, end, stride))
			}
			i = j
		case count == 2 && stride == 1:
			parts = append(parts, fmt.Sprintf("%d-%d", start, end))
			i = j
		default:
			parts = append(parts, strconv.Itoa(start))
			i++
		}
	}
	return strings.Join(parts, ",")
}

// Expand parses a spec produced by Compress (or hand-written in the same
// syntax) back into a sorted, de-duplicated slice of indices. A malformed
// token is an error, never silently coerced.
func Expand(spec string) ([]int, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, nil
	}

	seen := map[int]struct{}{}
	for _, token := range strings.Split(spec, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			return nil, fmt.Errorf("index spec %q: empty token", spec)
		}

		rangePart := token
		stride := 1
		if idx := strings.Index(token, ":"); idx >= 0 {
			s, err := strconv.Atoi(token[idx+1:])
			if err != nil || s <= 0 {
				return nil, fmt.Errorf("index spec %q: bad stride in token %q", spec, token)
			}
			stride = s
			rangePart = token[:idx]
		}

		if idx := strings.Index(rangePart, "-"); idx >= 0 {
			lo, err1 := strconv.Atoi(rangePart[:idx])
			hi, err2 := strconv.Atoi(rangePart[idx+1:])
			if err1 != nil || err2 != nil || lo < 0 || hi < lo {
				return nil, fmt.Errorf("index spec %q: bad range in token %q", spec, token)
			}
			for v := lo; v <= hi; v += stride {
				seen[v] = struct{}{}
			}
			continue
		}

		if stride != 1 {
			return nil, fmt.Errorf("index spec %q: stride without range in token %q", spec, token)
		}
		v, err := strconv.Atoi(rangePart)
		if err != nil || v < 0 {
			return nil, fmt.Errorf("index spec %q: bad index %q", spec, token)
		}
		seen[v] = struct{}{}
	}

	out := make([]int, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Ints(out)
	return out, nil
}

// Count returns the number of distinct indices a spec covers.
func Count(spec string) (int, error) {
	indices, err := Expand(spec)
	if err != nil {
		return 0, err
	}
	return len(indices), nil
}

// Format joins raw indices as a plain comma-separated list, sorted and
// de-duplicated. Used where the uncompressed form is wanted for display.
func Format(indices []int) string {
	sorted := dedupeSorted(indices)
	parts := make([]string, len(sorted))
	for i, v := range sorted {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

func dedupeSorted(indices []int) []int {
	if len(indices) == 0 {
		return nil
	}
	seen := map[int]struct{}{}
	out := make([]int, 0, len(indices))
	for _, v := range indices {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}
