package services

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	jmespath "github.com/jmespath-community/go-jmespath"

	"texttools/internal/models"
)

// Paths into a decoded result line.
const (
	PathErrorMessage   = "response.body.error.message"
	PathMessageContent = "response.body.choices[0].message.content"
	PathBodyResult     = "response.body.result"
	PathUsage          = "response.body.usage"
)

const maxResultLineSize = 32 << 20

// Lookup evaluates a JMESPath expression against the generic decoding of a line.
func Lookup(line *models.ResultLine, expr string) (any, error) {
	if line == nil || line.Doc == nil {
		return nil, nil
	}
	return jmespath.Search(expr, line.Doc)
}

// LookupString is Lookup restricted to non-empty string results.
func LookupString(line *models.ResultLine, expr string) (string, bool) {
	v, err := Lookup(line, expr)
	if err != nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}

// MessageContent returns the assistant message of a chat completion result line.
func MessageContent(line *models.ResultLine) (string, error) {
	s, ok := LookupString(line, PathMessageContent)
	if !ok {
		return "", fmt.Errorf("no message content in response body")
	}
	return s, nil
}

// lineUsage reads the token usage block of a response, if any.
func lineUsage(line *models.ResultLine) models.TokenUsage {
	v, err := Lookup(line, PathUsage)
	if err != nil {
		return models.TokenUsage{}
	}
	m, ok := v.(map[string]any)
	if !ok {
		return models.TokenUsage{}
	}
	count := func(key string) int {
		n, _ := m[key].(float64)
		return int(n)
	}
	return models.TokenUsage{
		PromptTokens:     count("prompt_tokens"),
		CompletionTokens: count("completion_tokens"),
		TotalTokens:      count("total_tokens"),
	}
}

// lineFailure reports whether a decoded line describes a failed request and why.
func lineFailure(line *models.ResultLine) (string, bool) {
	if line.Error != nil {
		switch {
		case line.Error.Message != "":
			return line.Error.Message, true
		case line.Error.Code != "":
			return line.Error.Code, true
		}
		return "unknown error", true
	}
	if line.Response == nil {
		return "missing response", true
	}
	if line.Response.StatusCode != http.StatusOK {
		if msg, ok := LookupString(line, PathErrorMessage); ok {
			return msg, true
		}
		return "unknown error", true
	}
	return "", false
}

// rawLine is one non-blank line of an artifact with its 1-based number.
type rawLine struct {
	number int
	data   []byte
}

func splitLines(data []byte) ([]rawLine, error) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), maxResultLineSize)
	var out []rawLine
	n := 0
	for sc.Scan() {
		n++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		out = append(out, rawLine{number: n, data: append([]byte(nil), b...)})
	}
	if err := sc.Err(); err != nil {
		return out, fmt.Errorf("scan result artifact: %w", err)
	}
	return out, nil
}

// decodeLine decodes one artifact line into both the typed and generic forms.
func decodeLine(raw rawLine) (*models.ResultLine, error) {
	var line models.ResultLine
	if err := json.Unmarshal(raw.data, &line); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw.data, &line.Doc); err != nil {
		return nil, err
	}
	line.Number = raw.number
	return &line, nil
}

func lineKey(n int) string { return fmt.Sprintf("line-%d", n) }
