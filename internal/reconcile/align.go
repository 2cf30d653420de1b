// Package reconcile implements the hybrid transcription reconciliation
// engine: aligning two independent STT passes over the same audio, resolving
// word-level disagreements by confidence voting, and selectively
// re-transcribing low-confidence spans.
//
// All entities are created fresh per request; the engine holds no state
// between requests.
package reconcile

import (
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/tandemscribe/tandem/pkg/types"
)

const (
	// temporalToleranceMs is how far apart two words' time ranges may sit and
	// still be considered the same utterance. Beyond this the aligner treats
	// them as independent insertion+deletion, so text similarity alone can
	// never pair unrelated distant words.
	temporalToleranceMs = 300

	// maxAlignCells caps the DP table size. One chunk of speech is a few
	// hundred words, so this bound is generous; anything larger falls back to
	// a one-sided mapping.
	maxAlignCells = 4_000_000

	costInsDel = 1.0

	// costForbidden exceeds insertion+deletion combined, so a temporally
	// implausible substitution is never chosen.
	costForbidden = 2.5
)

// Pair is one element of an alignment. At most one side is nil: both present
// means match or substitution, one nil means the other side's word has no
// counterpart (insertion/deletion).
type Pair struct {
	Primary   *types.Word
	Secondary *types.Word
}

// Align aligns two time-stamped word sequences with Wagner-Fischer edit
// distance. Substitution cost is 0 for a case-insensitive text match and
// 1 - normalized Levenshtein similarity otherwise, provided the words are
// temporally plausible partners. Order of both inputs is preserved, and
// every input word appears in exactly one pair.
//
// An empty input yields a full one-sided mapping of the other. Inputs too
// large for a full DP table yield a one-sided mapping of the primary along
// with ErrAlignmentDegenerate; the pairs remain usable.
func Align(primary, secondary []types.Word) ([]Pair, error) {
	n, m := len(primary), len(secondary)
	if n == 0 || m == 0 {
		pairs := make([]Pair, 0, n+m)
		for i := range primary {
			pairs = append(pairs, Pair{Primary: &primary[i]})
		}
		for j := range secondary {
			pairs = append(pairs, Pair{Secondary: &secondary[j]})
		}
		return pairs, nil
	}
	if n*m > maxAlignCells {
		pairs := make([]Pair, 0, n)
		for i := range primary {
			pairs = append(pairs, Pair{Primary: &primary[i]})
		}
		return pairs, ErrAlignmentDegenerate
	}

	// dp[i][j] = min cost of aligning primary[:i] with secondary[:j].
	dp := make([][]float64, n+1)
	for i := range dp {
		dp[i] = make([]float64, m+1)
	}
	for i := 1; i <= n; i++ {
		dp[i][0] = float64(i) * costInsDel
	}
	for j := 1; j <= m; j++ {
		dp[0][j] = float64(j) * costInsDel
	}
	for i := 1; i <= n; i++ {
		for j := 1; j <= m; j++ {
			sub := dp[i-1][j-1] + pairCost(primary[i-1], secondary[j-1])
			del := dp[i-1][j] + costInsDel
			ins := dp[i][j-1] + costInsDel
			dp[i][j] = min(sub, min(del, ins))
		}
	}

	// Backtrace. Built in reverse, then flipped.
	var rev []Pair
	i, j := n, m
	for i > 0 || j > 0 {
		switch {
		case i > 0 && j > 0 && dp[i][j] == dp[i-1][j-1]+pairCost(primary[i-1], secondary[j-1]):
			rev = append(rev, Pair{Primary: &primary[i-1], Secondary: &secondary[j-1]})
			i--
			j--
		case i > 0 && dp[i][j] == dp[i-1][j]+costInsDel:
			rev = append(rev, Pair{Primary: &primary[i-1]})
			i--
		default:
			rev = append(rev, Pair{Secondary: &secondary[j-1]})
			j--
		}
	}
	pairs := make([]Pair, len(rev))
	for k := range rev {
		pairs[k] = rev[len(rev)-1-k]
	}
	return pairs, nil
}

// pairCost is the substitution cost for pairing p with s.
func pairCost(p, s types.Word) float64 {
	if !temporallyPlausible(p, s) {
		return costForbidden
	}
	if strings.EqualFold(p.Text, s.Text) {
		return 0
	}
	return 1 - textSimilarity(p.Text, s.Text)
}

// temporallyPlausible reports whether the two words' time ranges overlap or
// sit within temporalToleranceMs of each other.
func temporallyPlausible(a, b types.Word) bool {
	if a.StartMs <= b.EndMs+temporalToleranceMs && b.StartMs <= a.EndMs+temporalToleranceMs {
		return true
	}
	return false
}

// textSimilarity returns normalized Levenshtein similarity in [0,1],
// case-insensitive. Identical strings score 1.
func textSimilarity(a, b string) float64 {
	a, b = strings.ToLower(a), strings.ToLower(b)
	if a == b {
		return 1
	}
	longest := max(len(a), len(b))
	if longest == 0 {
		return 1
	}
	d := matchr.Levenshtein(a, b)
	return 1 - float64(d)/float64(longest)
}
