// Package batchtest provides an in-memory BatchAPIProvider for tests.
package batchtest

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"texttools/internal/models"
)

// Responder produces the output line for one uploaded task.
type Responder func(task models.Task) string

// Provider simulates the remote batch service. Uploaded task files are parsed
// and, once a batch reports completed, an output artifact is produced by
// calling Respond for every task.
type Provider struct {
	mu sync.Mutex

	Respond Responder
	// Statuses is consumed one entry per RetrieveBatch call; the last one repeats.
	// Empty means completed on the first poll.
	Statuses       []models.JobStatus
	FailureMessage string
	// Output replaces the generated output artifact when non-nil.
	Output []byte
	// ErrorArtifact is served as the error file when non-nil.
	ErrorArtifact []byte

	// BeforeRetrieve runs at the start of every RetrieveBatch, outside the lock.
	BeforeRetrieve func(batchID string)

	UploadErr   error
	CreateErr   error
	RetrieveErr error
	DownloadErr error

	Uploads   int
	Creates   int
	Retrieves int
	Downloads int

	uploaded map[string][]models.Task
	batches  map[string]string // batch id -> input file id
	files    map[string][]byte
	polls    map[string]int
}

func (p *Provider) init() {
	if p.uploaded == nil {
		p.uploaded = map[string][]models.Task{}
		p.batches = map[string]string{}
		p.files = map[string][]byte{}
		p.polls = map[string]int{}
	}
}

func (p *Provider) CreateFile(_ context.Context, filePath string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.init()
	p.Uploads++
	if p.UploadErr != nil {
		return "", p.UploadErr
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", err
	}
	var tasks []models.Task
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 8<<20)
	for sc.Scan() {
		var t models.Task
		if err := json.Unmarshal(sc.Bytes(), &t); err != nil {
			return "", fmt.Errorf("bad task line: %w", err)
		}
		tasks = append(tasks, t)
	}
	id := fmt.Sprintf("file-in-%d", p.Uploads)
	p.uploaded[id] = tasks
	return id, nil
}

func (p *Provider) CreateBatch(_ context.Context, inputFileID, _, _ string) (models.RemoteBatch, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.init()
	p.Creates++
	if p.CreateErr != nil {
		return models.RemoteBatch{}, p.CreateErr
	}
	id := fmt.Sprintf("batch_%d", p.Creates)
	p.batches[id] = inputFileID
	return models.RemoteBatch{ID: id, Status: models.JobStatusInProgress, NativeStatus: "validating"}, nil
}

func (p *Provider) RetrieveBatch(_ context.Context, batchID string) (models.RemoteBatch, error) {
	if p.BeforeRetrieve != nil {
		p.BeforeRetrieve(batchID)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.init()
	p.Retrieves++
	if p.RetrieveErr != nil {
		return models.RemoteBatch{}, p.RetrieveErr
	}
	input, ok := p.batches[batchID]
	if !ok {
		return models.RemoteBatch{}, fmt.Errorf("no such batch %s", batchID)
	}

	status := models.JobStatusCompleted
	if n := len(p.Statuses); n > 0 {
		i := p.polls[batchID]
		if i >= n {
			i = n - 1
		}
		status = p.Statuses[i]
	}
	p.polls[batchID]++

	rb := models.RemoteBatch{ID: batchID, Status: status, NativeStatus: string(status)}
	switch {
	case status == models.JobStatusCompleted:
		rb.OutputFileID = "out-" + batchID
		if _, done := p.files[rb.OutputFileID]; !done {
			p.files[rb.OutputFileID] = p.render(p.uploaded[input])
		}
		if p.ErrorArtifact != nil {
			rb.ErrorFileID = "err-" + batchID
			p.files[rb.ErrorFileID] = p.ErrorArtifact
		}
	case status.IsFailure():
		rb.FailureMessage = p.FailureMessage
	}
	return rb, nil
}

func (p *Provider) GetFileContent(_ context.Context, fileID string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.init()
	p.Downloads++
	if p.DownloadErr != nil {
		return nil, p.DownloadErr
	}
	data, ok := p.files[fileID]
	if !ok {
		return nil, fmt.Errorf("no such file %s", fileID)
	}
	return data, nil
}

// Tasks returns every task uploaded so far.
func (p *Provider) Tasks() []models.Task {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []models.Task
	for i := 1; i <= p.Uploads; i++ {
		out = append(out, p.uploaded[fmt.Sprintf("file-in-%d", i)]...)
	}
	return out
}

func (p *Provider) render(tasks []models.Task) []byte {
	if p.Output != nil {
		return p.Output
	}
	var b strings.Builder
	for _, t := range tasks {
		var line string
		if p.Respond != nil {
			line = p.Respond(t)
		} else {
			line = ChatLine(t.CustomID, `{"result": true}`)
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

// ChatLine renders a successful chat completion output line.
func ChatLine(customID, content string) string {
	line := map[string]any{
		"id":        "req_" + customID,
		"custom_id": customID,
		"response": map[string]any{
			"status_code": 200,
			"request_id":  "rq_" + customID,
			"body": map[string]any{
				"object":  "chat.completion",
				"choices": []any{map[string]any{"index": 0, "message": map[string]any{"role": "assistant", "content": content}}},
				"usage":   map[string]any{"prompt_tokens": 10, "completion_tokens": 2, "total_tokens": 12},
			},
		},
		"error": nil,
	}
	b, _ := json.Marshal(line)
	return string(b)
}

// ErrorLine renders an output line for a request the remote rejected.
func ErrorLine(customID string, statusCode int, message string) string {
	line := map[string]any{
		"id":        "req_" + customID,
		"custom_id": customID,
		"response": map[string]any{
			"status_code": statusCode,
			"body":        map[string]any{"error": map[string]any{"message": message, "type": "invalid_request_error"}},
		},
		"error": nil,
	}
	b, _ := json.Marshal(line)
	return string(b)
}

// UserText returns the last user message of a chat completion task body.
func UserText(t models.Task) string {
	body, _ := t.Body.(map[string]any)
	msgs, _ := body["messages"].([]any)
	for i := len(msgs) - 1; i >= 0; i-- {
		m, _ := msgs[i].(map[string]any)
		if m["role"] == "user" {
			s, _ := m["content"].(string)
			return s
		}
	}
	return ""
}
