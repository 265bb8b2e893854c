package categorizer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/pgvector/pgvector-go"
	log "github.com/sirupsen/logrus"

	"texttools/internal/preprocess"
)

// Encoder turns texts into embedding vectors, one per text, in order.
type Encoder interface {
	Encode(ctx context.Context, texts []string) ([]pgvector.Vector, error)
}

// Prototypes holds the reference vectors each category is matched against.
type Prototypes map[Category][]pgvector.Vector

// EmbeddingOptions configures the embedding categorizer.
type EmbeddingOptions struct {
	Preprocess preprocess.Func
}

// EmbeddingCategorizer picks the category whose closest prototype has the
// highest cosine similarity to the text. It calls the embeddings endpoint
// directly and never goes through a batch job.
type EmbeddingCategorizer struct {
	encoder    Encoder
	categories Categories
	prototypes Prototypes
	opts       EmbeddingOptions
}

// NewEmbeddingCategorizer requires at least one prototype per category.
func NewEmbeddingCategorizer(encoder Encoder, categories Categories, prototypes Prototypes, opts EmbeddingOptions) (*EmbeddingCategorizer, error) {
	if encoder == nil {
		return nil, errors.New("embedding categorizer needs an encoder")
	}
	if len(categories) == 0 {
		return nil, errors.New("categorizer needs at least one category")
	}
	for _, c := range categories {
		if len(prototypes[c]) == 0 {
			return nil, fmt.Errorf("category %q has no prototype embeddings", c)
		}
	}
	if opts.Preprocess == nil {
		opts.Preprocess = preprocess.Identity
	}
	return &EmbeddingCategorizer{encoder: encoder, categories: categories, prototypes: prototypes, opts: opts}, nil
}

// Categories returns the configured categories.
func (c *EmbeddingCategorizer) Categories() Categories { return c.categories }

// Categorize classifies a single text.
func (c *EmbeddingCategorizer) Categorize(ctx context.Context, text string) (Category, error) {
	const id = "input"
	got, failures, err := c.CategorizeMany(ctx, map[string]string{id: text})
	if err != nil {
		return "", err
	}
	if msg, failed := failures[id]; failed {
		return "", errors.New(msg)
	}
	return got[id], nil
}

// CategorizeMany classifies every item with one embeddings call. Items that
// cannot be classified are reported in the failure map by id.
func (c *EmbeddingCategorizer) CategorizeMany(ctx context.Context, items map[string]string) (map[string]Category, map[string]string, error) {
	ids := make([]string, 0, len(items))
	for id := range items {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make(map[string]Category, len(items))
	failures := map[string]string{}
	var encodeIDs, texts []string
	for _, id := range ids {
		text := c.opts.Preprocess(items[id])
		if text == "" {
			failures[id] = "empty text after preprocessing"
			continue
		}
		encodeIDs = append(encodeIDs, id)
		texts = append(texts, text)
	}
	if len(texts) == 0 {
		return out, failures, nil
	}

	vecs, err := c.encoder.Encode(ctx, texts)
	if err != nil {
		return nil, nil, fmt.Errorf("embed texts: %w", err)
	}
	if len(vecs) != len(texts) {
		return nil, nil, fmt.Errorf("encoder returned %d vectors for %d texts", len(vecs), len(texts))
	}
	for i, id := range encodeIDs {
		cat, score, ok := c.nearest(vecs[i].Slice())
		if !ok {
			failures[id] = "no comparable prototype for embedding"
			continue
		}
		log.WithFields(log.Fields{"id": id, "category": cat, "score": score}).Debug("Categorized by embedding")
		out[id] = cat
	}
	return out, failures, nil
}

// nearest returns the best scoring category. Ties go to the earlier category.
func (c *EmbeddingCategorizer) nearest(vec []float32) (Category, float64, bool) {
	var (
		best  Category
		score = math.Inf(-1)
		found bool
	)
	for _, cat := range c.categories {
		for _, proto := range c.prototypes[cat] {
			s, ok := CosineSimilarity(vec, proto.Slice())
			if ok && s > score {
				best, score, found = cat, s, true
			}
		}
	}
	return best, score, found
}

// CosineSimilarity reports false when the vectors differ in length or either
// has zero norm.
func CosineSimilarity(a, b []float32) (float64, bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), true
}

// BuildPrototypes embeds the example texts of every category. A category with
// no examples is represented by its own name. Example keys match categories
// case-insensitively.
func BuildPrototypes(ctx context.Context, encoder Encoder, categories Categories, examples map[string][]string) (Prototypes, error) {
	grouped := groupExamples(categories, examples)
	var (
		owners []Category
		texts  []string
	)
	for _, cat := range categories {
		for _, s := range grouped[cat] {
			owners = append(owners, cat)
			texts = append(texts, s)
		}
	}

	vecs, err := encoder.Encode(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed category prototypes: %w", err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("encoder returned %d vectors for %d prototypes", len(vecs), len(texts))
	}
	protos := Prototypes{}
	for i, cat := range owners {
		protos[cat] = append(protos[cat], vecs[i])
	}
	return protos, nil
}

// groupExamples assigns example texts to categories in a stable order.
func groupExamples(categories Categories, examples map[string][]string) map[Category][]string {
	keys := make([]string, 0, len(examples))
	for k := range examples {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	grouped := map[Category][]string{}
	for _, key := range keys {
		if cat, ok := categories.Match(key); ok {
			grouped[cat] = append(grouped[cat], examples[key]...)
		}
	}
	for _, cat := range categories {
		if len(grouped[cat]) == 0 {
			grouped[cat] = []string{string(cat)}
		}
	}
	return grouped
}

// PrototypeStore persists category prototypes per embedding model.
type PrototypeStore interface {
	LoadPrototypes(ctx context.Context, model string) (map[string][]pgvector.Vector, error)
	SavePrototypes(ctx context.Context, model string, category string, examples []string, vecs []pgvector.Vector) error
}

// LoadOrBuildPrototypes reads stored prototypes for model and embeds, then
// stores, those of any category that has none yet.
func LoadOrBuildPrototypes(ctx context.Context, encoder Encoder, ps PrototypeStore, model string, categories Categories, examples map[string][]string) (Prototypes, error) {
	stored, err := ps.LoadPrototypes(ctx, model)
	if err != nil {
		return nil, err
	}
	protos := Prototypes{}
	for name, vecs := range stored {
		if cat, ok := categories.Match(name); ok {
			protos[cat] = append(protos[cat], vecs...)
		}
	}

	var missing Categories
	for _, cat := range categories {
		if len(protos[cat]) == 0 {
			missing = append(missing, cat)
		}
	}
	if len(missing) == 0 {
		return protos, nil
	}

	built, err := BuildPrototypes(ctx, encoder, missing, examples)
	if err != nil {
		return nil, err
	}
	grouped := groupExamples(missing, examples)
	for _, cat := range missing {
		if err := ps.SavePrototypes(ctx, model, string(cat), grouped[cat], built[cat]); err != nil {
			return nil, fmt.Errorf("store prototypes for %q: %w", cat, err)
		}
		protos[cat] = built[cat]
	}
	log.WithFields(log.Fields{"model": model, "categories": len(missing)}).Info("Stored new category prototypes")
	return protos, nil
}
