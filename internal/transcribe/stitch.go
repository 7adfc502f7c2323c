package transcribe

import (
	"slices"
	"strings"
)

const (
	// maxOverlapWords bounds the suffix/prefix search at a join.
	maxOverlapWords = 30
	// minCharOverlap is the shortest common run worth treating as duplication.
	minCharOverlap = 20
)

// Stitch appends current to the running transcript previous, dropping text
// that current repeats from the end of previous.
//
// A word-level suffix/prefix overlap is preferred. Without one, the longest
// common character run is removed from current if it is long enough;
// otherwise both are kept, since a duplicated phrase is better than a lost one.
func Stitch(previous, current string) string {
	if previous == "" {
		return current
	}
	if current == "" {
		return previous
	}

	prevWords := strings.Fields(previous)
	currWords := strings.Fields(current)

	for n := min(len(prevWords), len(currWords), maxOverlapWords); n > 0; n-- {
		if slices.Equal(prevWords[len(prevWords)-n:], currWords[:n]) {
			return strings.Join(append(prevWords, currWords[n:]...), " ")
		}
	}

	if run := longestCommonRun(previous, current); len([]rune(run)) > minCharOverlap {
		remainder := strings.TrimSpace(strings.Replace(current, run, "", 1))
		if remainder == "" {
			return previous
		}
		return strings.TrimSpace(previous + " " + remainder)
	}

	return strings.TrimSpace(previous + " " + current)
}

// longestCommonRun returns the longest substring shared by a and b,
// preferring the earliest occurrence in b on ties.
func longestCommonRun(a, b string) string {
	ar, br := []rune(a), []rune(b)
	if len(ar) == 0 || len(br) == 0 {
		return ""
	}

	prev := make([]int, len(br)+1)
	curr := make([]int, len(br)+1)
	bestLen, bestEnd := 0, 0

	for i := 1; i <= len(ar); i++ {
		for j := 1; j <= len(br); j++ {
			if ar[i-1] != br[j-1] {
				curr[j] = 0
				continue
			}
			curr[j] = prev[j-1] + 1
			if curr[j] > bestLen || (curr[j] == bestLen && j < bestEnd) {
				bestLen, bestEnd = curr[j], j
			}
		}
		prev, curr = curr, prev
	}

	return string(br[bestEnd-bestLen : bestEnd])
}
