package categorizer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"

	"texttools/internal/models"
	"texttools/internal/preprocess"
	"texttools/internal/services"
	"texttools/internal/store"
)

const (
	DefaultModel  = "gpt-4o-mini"
	DefaultPrompt = "You are a text classifier. Choose exactly one category from the list."
	schemaName    = "CategorizationOutput"

	// LabelCategories records the category set a job was submitted with.
	LabelCategories = "categories"
)

// Options configures the categorizer. Zero values fall back to the defaults.
// The prompt may contain {{CATEGORIES}}, replaced by the comma separated names.
type Options struct {
	Model          string
	PromptTemplate string
	Temperature    float32
	MaxTokens      int
	Preprocess     preprocess.Func
	PollInterval   time.Duration
	Timeout        time.Duration
}

// LLMCategorizer assigns one of a fixed set of categories to each text through
// the batch API.
type LLMCategorizer struct {
	svc        *services.BatchService
	categories Categories
	opts       Options
	prompt     string
}

// NewLLMCategorizer wires a categorizer onto its own BatchService. The task
// builder and entry parser fields of svcOpts are overwritten.
func NewLLMCategorizer(provider services.BatchAPIProvider, states store.JobStateStore, svcOpts services.BatchServiceOptions, categories Categories, opts Options) (*LLMCategorizer, error) {
	if len(categories) == 0 {
		return nil, errors.New("categorizer needs at least one category")
	}
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.PromptTemplate == "" {
		opts.PromptTemplate = DefaultPrompt
	}
	if opts.Preprocess == nil {
		opts.Preprocess = preprocess.Identity
	}
	c := &LLMCategorizer{categories: categories, opts: opts}
	c.prompt = c.renderPrompt()

	svcOpts.TaskBuilder = c.BuildTask
	svcOpts.EntryParser = c.ParseEntry
	labels := map[string]string{LabelCategories: categories.Key()}
	for k, v := range svcOpts.Labels {
		if _, set := labels[k]; !set {
			labels[k] = v
		}
	}
	svcOpts.Labels = labels
	svc, err := services.NewBatchService(provider, states, svcOpts)
	if err != nil {
		return nil, fmt.Errorf("init categorizer: %w", err)
	}
	c.svc = svc
	return c, nil
}

// Service exposes the underlying lifecycle manager.
func (c *LLMCategorizer) Service() *services.BatchService { return c.svc }

// Categories returns the configured categories.
func (c *LLMCategorizer) Categories() Categories { return c.categories }

func (c *LLMCategorizer) renderPrompt() string {
	names := strings.Join(c.categories.Names(), ", ")
	if strings.Contains(c.opts.PromptTemplate, "{{CATEGORIES}}") {
		return strings.ReplaceAll(c.opts.PromptTemplate, "{{CATEGORIES}}", names)
	}
	return c.opts.PromptTemplate + "\nCategories: " + names
}

// Schema restricts the answer to one of the categories.
func (c *LLMCategorizer) Schema() *jsonschema.Definition {
	return &jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"category": {Type: jsonschema.String, Enum: c.categories.Names()},
		},
		Required:             []string{"category"},
		AdditionalProperties: false,
	}
}

// BuildTask renders one chat completion task for text.
func (c *LLMCategorizer) BuildTask(customID, text string) (models.Task, error) {
	text = c.opts.Preprocess(text)
	if text == "" {
		return models.Task{}, errors.New("empty text after preprocessing")
	}
	temp := c.opts.Temperature
	if temp == 0 {
		temp = math.SmallestNonzeroFloat32
	}
	body := openai.ChatCompletionRequest{
		Model:       c.opts.Model,
		Temperature: temp,
		MaxTokens:   c.opts.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: c.prompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   schemaName,
				Schema: c.Schema(),
				Strict: true,
			},
		},
	}
	return models.Task{CustomID: customID, Method: "POST", URL: services.DefaultEndpoint, Body: body}, nil
}

// ParseEntry reads the chosen category of one result line. The content may be
// a JSON object with a category field or a bare category name.
func (c *LLMCategorizer) ParseEntry(line *models.ResultLine) (string, any, error) {
	content, err := services.MessageContent(line)
	if err != nil {
		return "", nil, err
	}
	content = strings.TrimSpace(content)

	name := content
	var parsed struct {
		Category string `json:"category"`
	}
	if strings.HasPrefix(content, "{") {
		if err := json.Unmarshal([]byte(content), &parsed); err != nil {
			return "", nil, fmt.Errorf("failed to parse LLM response as JSON: %w", err)
		}
		name = parsed.Category
	}
	cat, ok := c.categories.Match(strings.Trim(name, `"`))
	if !ok {
		return "", nil, fmt.Errorf("unknown category %q", name)
	}
	return line.CustomID, cat, nil
}

// Submit starts a categorization job. It is a no-op if jobName is already in flight.
func (c *LLMCategorizer) Submit(ctx context.Context, payload models.Payload, jobName string) (*models.JobRecord, error) {
	return c.svc.Start(ctx, payload, jobName)
}

// Status reports the lifecycle status of jobName.
func (c *LLMCategorizer) Status(ctx context.Context, jobName string) (models.JobStatus, error) {
	return c.svc.CheckStatus(ctx, jobName)
}

// Wait blocks until jobName completes, fails or the configured timeout passes.
func (c *LLMCategorizer) Wait(ctx context.Context, jobName string) (models.JobStatus, error) {
	return c.svc.Wait(ctx, jobName, c.opts.PollInterval, c.opts.Timeout)
}

// Fetch returns the categories of a finished job keyed by custom id, plus the
// per-item failures.
func (c *LLMCategorizer) Fetch(ctx context.Context, jobName string) (map[string]Category, map[string]string, error) {
	results, err := c.svc.FetchResults(ctx, jobName)
	if err != nil {
		return nil, nil, err
	}
	return Assignments(results)
}

// Assignments converts reconciled results into typed values.
func Assignments(results *models.BatchResults) (map[string]Category, map[string]string, error) {
	out := make(map[string]Category, results.Len())
	for id, v := range results.Values() {
		cat, ok := v.(Category)
		if !ok {
			return nil, nil, fmt.Errorf("entry %s: unexpected value %T", id, v)
		}
		out[id] = cat
	}
	return out, results.Failures(), nil
}

// Categorize classifies a single text synchronously.
func (c *LLMCategorizer) Categorize(ctx context.Context, text string) (Category, error) {
	const id = "input"
	results, err := c.svc.Run(ctx, models.PayloadFromItems(map[string]string{id: text}), c.opts.PollInterval, c.opts.Timeout)
	if err != nil {
		return "", err
	}
	entry, ok := results.Entries[id]
	switch {
	case !ok:
		return "", fmt.Errorf("no result returned for %q", id)
	case !entry.OK():
		return "", errors.New(entry.Error)
	}
	cat, _ := entry.Value.(Category)
	return cat, nil
}
