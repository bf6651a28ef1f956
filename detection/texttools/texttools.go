package texttools

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode"

	"github.com/spaolacci/murmur3"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	nonTokenChars = regexp.MustCompile(`[^\pL\pN\s]+`)
	whitespace    = regexp.MustCompile(`\s+`)
	urlRegex      = regexp.MustCompile(`(?:(?:https?|ftp):\/\/)?[\w/\-?=%.]+\.[\w/\-&?=%.]*[\w/\-&?=%]+`)
	emojiRegex    = regexp.MustCompile(`[\x{1F300}-\x{1F5FF}\x{1F600}-\x{1F64F}\x{1F680}-\x{1F6FF}\x{1F700}-\x{1F77F}\x{1F780}-\x{1F7FF}\x{1F800}-\x{1F8FF}\x{1F900}-\x{1F9FF}\x{1FA00}-\x{1FAFF}]`)
)

// Splits free-form comment or caption text in to tokens: lower-case, unicode
// normalization, punctuation stripped. Intended to behave like a simple NLP
// tokenizer so near-duplicate texts map to identical token sets.
func Tokenize(text string) []string {
	// the transform chain carries state, so it must be constructed per call
	normFunc := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	bare := strings.ToLower(nonTokenChars.ReplaceAllString(text, " "))
	folded, _, err := transform.String(normFunc, bare)
	if err != nil {
		slog.Warn("unicode normalization error", "err", err)
		folded = bare
	}
	return strings.Fields(folded)
}

// Canonical form of a text for duplicate comparison: lower-cased, punctuation
// removed, whitespace collapsed to single spaces, unicode-folded.
func Normalize(text string) string {
	return strings.Join(Tokenize(text), " ")
}

// returns a fast, compact hash of a string
//
// current implementation uses murmur3, default seed, and hex encoding
func HashOfString(s string) string {
	val := murmur3.Sum64([]byte(s))
	return fmt.Sprintf("%016x", val)
}

func ExtractTextURLs(raw string) []string {
	return urlRegex.FindAllString(raw, -1)
}

func CountEmoji(raw string) int {
	return len(emojiRegex.FindAllString(raw, -1))
}

func DedupeStrings(in []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, v := range in {
		if !seen[v] {
			out = append(out, v)
			seen[v] = true
		}
	}
	return out
}
