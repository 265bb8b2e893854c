package cmd

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"texttools/internal/models"
	"texttools/pkg/categorizer"
)

type wordEncoder struct{}

func (wordEncoder) Encode(_ context.Context, texts []string) ([]pgvector.Vector, error) {
	out := make([]pgvector.Vector, len(texts))
	for i, t := range texts {
		vec := []float32{0, 1}
		if strings.Contains(strings.ToLower(t), "apple") {
			vec = []float32{1, 0}
		}
		out[i] = pgvector.NewVector(vec)
	}
	return out, nil
}

func newTestEmbeddingCategorizer(t *testing.T) *categorizer.EmbeddingCategorizer {
	t.Helper()
	cats, err := categorizer.NewCategories("FRUIT", "VEHICLE")
	require.NoError(t, err)
	c, err := categorizer.NewEmbeddingCategorizer(wordEncoder{}, cats, categorizer.Prototypes{
		"FRUIT":   {pgvector.NewVector([]float32{1, 0})},
		"VEHICLE": {pgvector.NewVector([]float32{0, 1})},
	}, categorizer.EmbeddingOptions{})
	require.NoError(t, err)
	return c
}

func TestRunEmbed_NumbersTexts(t *testing.T) {
	var out bytes.Buffer
	texts := []string{"apple pie", "bus", "", "apple", "truck", "pear", "car", "van", "apple", "tram", "apple"}
	err := runEmbed(context.Background(), newTestEmbeddingCategorizer(t), models.PayloadFromTexts(texts...), &out)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	var rows []string
	for _, l := range lines {
		if strings.HasPrefix(strings.TrimSpace(l), "|") {
			rows = append(rows, l)
		}
	}
	require.Len(t, rows, 12, "header plus one row per text")
	assert.Contains(t, rows[1], "FRUIT")
	assert.Contains(t, rows[2], "VEHICLE")
	assert.Contains(t, rows[3], "empty text")
	assert.True(t, strings.Contains(rows[10], " 10 "), "ids sort numerically: %q", rows[10])
}

func TestRunEmbed_Items(t *testing.T) {
	var out bytes.Buffer
	err := runEmbed(context.Background(), newTestEmbeddingCategorizer(t),
		models.PayloadFromItems(map[string]string{"b": "a car", "a": "an apple"}), &out)
	require.NoError(t, err)
	text := out.String()
	assert.Less(t, strings.Index(text, "| a "), strings.Index(text, "| b "))
	assert.Contains(t, text, "FRUIT")
	assert.Contains(t, text, "VEHICLE")
}
