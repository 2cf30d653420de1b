// Package hotword corrects misrecognized vocabulary in a word sequence by
// fuzzy-matching against a caller-supplied dictionary of canonical terms.
//
// Correction is a pure function over its inputs: order-preserving and
// idempotent. The dictionary is passed per call, never cached, so concurrent
// requests can use different vocabularies without stale-state bugs.
package hotword

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"

	"github.com/tandemscribe/tandem/pkg/types"
)

// Correct replaces words (and incorrectly split two-word runs) that fuzzily
// match a dictionary term with the term's canonical spelling and casing.
// Timing, confidence, and speaker are preserved; a merged two-word run keeps
// the first word's start, the second word's end, and the lower confidence.
// Matching is case-insensitive with a length-scaled Levenshtein budget, so
// short terms need a near-exact match. Only one replacement is applied per
// position; already-replaced text is never re-matched.
func Correct(words []types.Word, dictionary []string) []types.Word {
	dict := normalizeDictionary(dictionary)
	if len(dict) == 0 || len(words) == 0 {
		return words
	}

	out := make([]types.Word, 0, len(words))
	for i := 0; i < len(words); i++ {
		// Two-word window first, to catch terms the STT split ("git hub").
		if i+1 < len(words) {
			core1, lead1, _ := splitPunct(words[i].Text)
			core2, _, trail2 := splitPunct(words[i+1].Text)
			if term, ok := bestMatch(core1+" "+core2, dict); ok {
				merged := words[i]
				merged.Text = lead1 + term + trail2
				merged.EndMs = words[i+1].EndMs
				if words[i+1].Confidence < merged.Confidence {
					merged.Confidence = words[i+1].Confidence
				}
				out = append(out, merged)
				i++
				continue
			}
		}

		core, lead, trail := splitPunct(words[i].Text)
		if term, ok := bestMatch(core, dict); ok {
			w := words[i]
			w.Text = lead + term + trail
			out = append(out, w)
			continue
		}
		out = append(out, words[i])
	}
	return out
}

// LoadDictionary reads a hotword file: one term per line, blank lines and
// lines starting with '#' ignored.
func LoadDictionary(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("hotword: open dictionary: %w", err)
	}
	defer f.Close()

	var terms []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		terms = append(terms, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("hotword: read dictionary: %w", err)
	}
	return terms, nil
}

// Merge combines dictionaries, deduplicating case-insensitively while
// keeping the first-seen canonical casing.
func Merge(dicts ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, d := range dicts {
		for _, term := range d {
			term = strings.TrimSpace(term)
			if term == "" {
				continue
			}
			key := strings.ToLower(term)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, term)
		}
	}
	return out
}

// entry is a dictionary term prepared for matching.
type entry struct {
	canonical string
	lower     string
}

func normalizeDictionary(dictionary []string) []entry {
	seen := make(map[string]struct{}, len(dictionary))
	entries := make([]entry, 0, len(dictionary))
	for _, term := range dictionary {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		lower := strings.ToLower(term)
		if _, ok := seen[lower]; ok {
			continue
		}
		seen[lower] = struct{}{}
		entries = append(entries, entry{canonical: term, lower: lower})
	}
	return entries
}

// bestMatch returns the canonical form of the closest dictionary term within
// its edit budget, preferring smaller distances and earlier entries on ties.
func bestMatch(text string, dict []entry) (string, bool) {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return "", false
	}

	bestDist := -1
	bestTerm := ""
	for _, e := range dict {
		budget := editBudget(len([]rune(e.lower)))
		d := matchr.Levenshtein(lower, e.lower)
		if d > budget {
			continue
		}
		if bestDist == -1 || d < bestDist {
			bestDist = d
			bestTerm = e.canonical
		}
	}
	return bestTerm, bestDist >= 0
}

// editBudget is the maximum Levenshtein distance allowed for a dictionary
// term of n runes. Short terms must match exactly to avoid false positives
// on common short words; longer terms tolerate roughly a third of their
// length.
func editBudget(n int) int {
	switch {
	case n <= 3:
		return 0
	case n <= 5:
		return 1
	case n <= 7:
		return 2
	default:
		return n / 3
	}
}

// splitPunct separates leading and trailing punctuation from the matchable
// core of a word, so "world." can match the term "World" and keep its period.
func splitPunct(s string) (core, lead, trail string) {
	runes := []rune(s)
	start, end := 0, len(runes)
	for start < end && !unicode.IsLetter(runes[start]) && !unicode.IsDigit(runes[start]) {
		start++
	}
	for end > start && !unicode.IsLetter(runes[end-1]) && !unicode.IsDigit(runes[end-1]) {
		end--
	}
	return string(runes[start:end]), string(runes[:start]), string(runes[end:])
}
