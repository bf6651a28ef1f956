package coordination

import (
	"github.com/sift-social/sift/detection/texttools"
)

// Similarity returns a fuzzy similarity in [0,1] between two comment texts.
//
// Texts are normalized first (lower-case, punctuation stripped, whitespace
// collapsed, unicode folded); identical normalized texts score 1.0 regardless
// of casing or punctuation noise. Otherwise the score is the Jaccard overlap
// of the token sets, which is robust to word reordering and small insertions
// in copy-pasted template text.
func Similarity(a, b string) float64 {
	na := texttools.Normalize(a)
	nb := texttools.Normalize(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}
	return jaccard(texttools.Tokenize(a), texttools.Tokenize(b))
}

func jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	setA := make(map[string]bool, len(a))
	for _, tok := range a {
		setA[tok] = true
	}
	setB := make(map[string]bool, len(b))
	for _, tok := range b {
		setB[tok] = true
	}
	inter := 0
	for tok := range setA {
		if setB[tok] {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
