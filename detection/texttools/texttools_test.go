package texttools

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	assert := assert.New(t)

	assert.Equal([]string{"great", "deal"}, Tokenize("Great deal!!"))
	assert.Equal([]string{"great", "deal"}, Tokenize("  GREAT,   deal?! "))
	assert.Equal([]string{"hello", "world"}, Tokenize("Héllo wörld"))
	assert.Empty(Tokenize("!!! ???"))
}

func TestNormalize(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("great deal", Normalize("Great deal!!"))
	assert.Equal("great deal", Normalize("great   DEAL"))
	assert.Equal("", Normalize("..."))
}

func TestHashOfString(t *testing.T) {
	assert := assert.New(t)

	a := HashOfString("monitor-account/alice/2024-03-01T12")
	b := HashOfString("monitor-account/alice/2024-03-01T12")
	c := HashOfString("monitor-account/alice/2024-03-01T13")
	assert.Equal(a, b)
	assert.NotEqual(a, c)
	assert.Len(a, 16)
}

func TestExtractTextURLs(t *testing.T) {
	assert := assert.New(t)

	assert.Len(ExtractTextURLs("click https://spam.example/deal now"), 1)
	assert.Empty(ExtractTextURLs("no links here"))
}

func TestCountEmoji(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(0, CountEmoji("plain text"))
	assert.Equal(3, CountEmoji("wow 😀😀🚀"))
}

func TestDedupeStrings(t *testing.T) {
	assert := assert.New(t)

	assert.Equal([]string{"a", "b"}, DedupeStrings([]string{"a", "b", "a", "b", "a"}))
}
