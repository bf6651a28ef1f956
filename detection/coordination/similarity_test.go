package coordination

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSimilarityExactAfterNormalization(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(1.0, Similarity("Great deal!!", "great deal!!"))
	assert.Equal(1.0, Similarity("Great deal!!", "Great deal !!"))
	assert.Equal(1.0, Similarity("Héllo wörld", "hello world"))
}

func TestSimilarityTokenOverlap(t *testing.T) {
	assert := assert.New(t)

	// reordered words still match fully on token sets
	assert.Equal(1.0, Similarity("deal great", "great deal"))

	sim := Similarity("you must watch this video", "you must watch this video now")
	assert.Greater(sim, 0.8)
	assert.Less(sim, 1.0)

	assert.Equal(0.0, Similarity("great deal", "i love hiking"))
}

func TestSimilarityEmpty(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(0.0, Similarity("", "anything"))
	assert.Equal(0.0, Similarity("!!!", "???"))
}
