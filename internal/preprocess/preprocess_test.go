package preprocess

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	// "e" followed by a combining acute accent composes to a single rune.
	in := "  cafe\u0301 \t is\n\nopen  "
	assert.Equal(t, "caf\u00e9 is open", Normalize(in))
}

func TestSentenceLimit(t *testing.T) {
	text := "The sky is blue. Grass is green. Is water wet?"
	out := SentenceLimit(2)(text)
	assert.True(t, strings.HasPrefix(out, "The sky is blue."))
	assert.NotContains(t, out, "water")

	assert.Equal(t, text, SentenceLimit(5)(text))
	assert.Equal(t, text, SentenceLimit(0)(text))
}

func TestChainAndOptions(t *testing.T) {
	upper := Func(strings.ToUpper)
	assert.Equal(t, "A B", Chain(Normalize, nil, upper)(" a   b "))

	fn := FromOptions(Options{Normalize: true})
	assert.Equal(t, "x y", fn("x \n y"))

	assert.Equal(t, " raw ", FromOptions(Options{})(" raw "))
	assert.Equal(t, "normalize=true max_sentences=3", Options{Normalize: true, MaxSentences: 3}.String())
}
