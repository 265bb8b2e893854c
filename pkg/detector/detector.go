// Package detector classifies texts as questions or not through the batch API.
package detector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
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
	DefaultPrompt = "You are a binary classifier. Answer only with `true` or `false` depending on the input."
	schemaName    = "DetectionOutput"
)

// Options configures the detector. Zero values fall back to the defaults.
type Options struct {
	Model        string
	SystemPrompt string
	Temperature  float32
	MaxTokens    int
	Preprocess   preprocess.Func
	PollInterval time.Duration
	Timeout      time.Duration
}

// Detector runs binary question detection as batch jobs.
type Detector struct {
	svc  *services.BatchService
	opts Options
}

// New wires a detector onto its own BatchService. The task builder and entry
// parser fields of svcOpts are overwritten.
func New(provider services.BatchAPIProvider, states store.JobStateStore, svcOpts services.BatchServiceOptions, opts Options) (*Detector, error) {
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = DefaultPrompt
	}
	if opts.Preprocess == nil {
		opts.Preprocess = preprocess.Identity
	}
	d := &Detector{opts: opts}
	svcOpts.TaskBuilder = d.BuildTask
	svcOpts.EntryParser = ParseEntry
	svc, err := services.NewBatchService(provider, states, svcOpts)
	if err != nil {
		return nil, fmt.Errorf("init detector: %w", err)
	}
	d.svc = svc
	return d, nil
}

// Service exposes the underlying lifecycle manager.
func (d *Detector) Service() *services.BatchService { return d.svc }

// Schema is the structured output the model must return.
func Schema() *jsonschema.Definition {
	return &jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"result": {Type: jsonschema.Boolean, Description: "true if the input is a question"},
		},
		Required:             []string{"result"},
		AdditionalProperties: false,
	}
}

// BuildTask renders one chat completion task for text.
func (d *Detector) BuildTask(customID, text string) (models.Task, error) {
	text = d.opts.Preprocess(text)
	if text == "" {
		return models.Task{}, errors.New("empty text after preprocessing")
	}
	temp := d.opts.Temperature
	if temp == 0 {
		// go-openai drops a zero temperature from the request.
		temp = math.SmallestNonzeroFloat32
	}
	body := openai.ChatCompletionRequest{
		Model:       d.opts.Model,
		Temperature: temp,
		MaxTokens:   d.opts.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: d.opts.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   schemaName,
				Schema: Schema(),
				Strict: true,
			},
		},
	}
	return models.Task{CustomID: customID, Method: "POST", URL: services.DefaultEndpoint, Body: body}, nil
}

// ParseEntry reads the boolean verdict of one result line. A top level
// body.result wins over the message content.
func ParseEntry(line *models.ResultLine) (string, any, error) {
	if v, err := services.Lookup(line, services.PathBodyResult); err == nil {
		if b, ok := v.(bool); ok {
			return line.CustomID, b, nil
		}
	}
	content, err := services.MessageContent(line)
	if err != nil {
		return "", nil, err
	}
	var out struct {
		Result *bool `json:"result"`
	}
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return "", nil, fmt.Errorf("decode detection output: %w", err)
	}
	if out.Result == nil {
		return "", nil, errors.New("detection output has no result")
	}
	return line.CustomID, *out.Result, nil
}

// Submit starts a detection job. It is a no-op if jobName is already in flight.
func (d *Detector) Submit(ctx context.Context, payload models.Payload, jobName string) (*models.JobRecord, error) {
	return d.svc.Start(ctx, payload, jobName)
}

// Status reports the lifecycle status of jobName.
func (d *Detector) Status(ctx context.Context, jobName string) (models.JobStatus, error) {
	return d.svc.CheckStatus(ctx, jobName)
}

// Wait blocks until jobName completes, fails or the configured timeout passes.
func (d *Detector) Wait(ctx context.Context, jobName string) (models.JobStatus, error) {
	return d.svc.Wait(ctx, jobName, d.opts.PollInterval, d.opts.Timeout)
}

// Fetch returns the verdicts of a finished job keyed by custom id, plus the
// per-item failures.
func (d *Detector) Fetch(ctx context.Context, jobName string) (map[string]bool, map[string]string, error) {
	results, err := d.svc.FetchResults(ctx, jobName)
	if err != nil {
		return nil, nil, err
	}
	return Verdicts(results)
}

// Verdicts converts reconciled results into typed values.
func Verdicts(results *models.BatchResults) (map[string]bool, map[string]string, error) {
	out := make(map[string]bool, results.Len())
	for id, v := range results.Values() {
		b, ok := v.(bool)
		if !ok {
			return nil, nil, fmt.Errorf("entry %s: unexpected value %T", id, v)
		}
		out[id] = b
	}
	return out, results.Failures(), nil
}

// Detect classifies a single text synchronously.
func (d *Detector) Detect(ctx context.Context, text string) (bool, error) {
	const id = "input"
	results, err := d.svc.Run(ctx, models.PayloadFromItems(map[string]string{id: text}), d.opts.PollInterval, d.opts.Timeout)
	if err != nil {
		return false, err
	}
	entry, ok := results.Entries[id]
	switch {
	case !ok:
		return false, fmt.Errorf("no result returned for %q", id)
	case !entry.OK():
		return false, errors.New(entry.Error)
	}
	b, _ := entry.Value.(bool)
	return b, nil
}
