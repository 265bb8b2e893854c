// Package inputprocessor turns CLI arguments, files, stdin and URLs into
// batch payloads.
package inputprocessor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"

	"texttools/internal/models"
	"texttools/internal/util"
)

// StdinSource reads the payload from standard input.
const StdinSource = "-"

// Processor loads a payload from a source: a file path, "-" for stdin or an
// http(s) URL. JSON documents may be an array of texts or an object of
// id-to-text items; anything else is read one text per non-empty line.
type Processor interface {
	Process(ctx context.Context, source string) (models.Payload, error)
}

func New() Processor {
	return &defaultProcessor{client: http.DefaultClient, stdin: os.Stdin}
}

type defaultProcessor struct {
	client *http.Client
	stdin  io.Reader
}

func (p *defaultProcessor) Process(ctx context.Context, source string) (models.Payload, error) {
	data, err := p.read(ctx, source)
	if err != nil {
		return models.Payload{}, err
	}
	body, err := util.CleanFileContent(data, source)
	if err != nil {
		return models.Payload{}, err
	}
	payload, err := Parse(body)
	if err != nil {
		return models.Payload{}, fmt.Errorf("parse %s: %w", source, err)
	}
	log.WithFields(log.Fields{"source": source, "items": payload.Len()}).Debug("Loaded payload")
	return payload, nil
}

func (p *defaultProcessor) read(ctx context.Context, source string) ([]byte, error) {
	if source == StdinSource {
		data, err := io.ReadAll(p.stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return data, nil
	}

	if u, err := url.Parse(source); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		return p.fetch(ctx, u.String())
	}

	fi, err := os.Stat(source)
	if err != nil {
		return nil, fmt.Errorf("failed to stat input '%s': %w", source, err)
	}
	if fi.IsDir() {
		return nil, fmt.Errorf("input '%s' is a directory, not a file", source)
	}
	if binary, err := util.IsLikelyBinary(source); err == nil && binary {
		return nil, fmt.Errorf("input '%s' looks like a binary file", filepath.Base(source))
	}
	data, err := os.ReadFile(source)
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			return nil, fmt.Errorf("permission denied reading file '%s': %w", source, err)
		}
		return nil, fmt.Errorf("failed to read file '%s': %w", source, err)
	}
	return data, nil
}

func (p *defaultProcessor) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for URL '%s': %w", rawURL, err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL '%s': %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		hint, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("failed to fetch URL '%s': status code %d %s - Body Hint: %s",
			rawURL, resp.StatusCode, http.StatusText(resp.StatusCode), string(hint))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body from URL '%s': %w", rawURL, err)
	}
	return data, nil
}

// Parse reads body as a JSON array, a JSON object or plain lines.
func Parse(body string) (models.Payload, error) {
	trimmed := strings.TrimSpace(body)
	switch {
	case strings.HasPrefix(trimmed, "["):
		var texts []string
		if err := json.Unmarshal([]byte(trimmed), &texts); err != nil {
			return models.Payload{}, fmt.Errorf("expected a JSON array of strings: %w", err)
		}
		return models.PayloadFromTexts(texts...), nil
	case strings.HasPrefix(trimmed, "{"):
		var items map[string]string
		if err := json.Unmarshal([]byte(trimmed), &items); err != nil {
			return models.Payload{}, fmt.Errorf("expected a JSON object of id to text: %w", err)
		}
		return models.PayloadFromItems(items), nil
	}
	return models.PayloadFromTexts(util.NonEmptyLines(body)...), nil
}
