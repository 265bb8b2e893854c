package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// defaultPromptDir is the subdirectory within the user's home directory.
const defaultPromptDir = ".config/texttools/prompts"

var promptFileExts = []string{".txt", ".md", ".tmpl"}

// LoadPromptContent returns the prompt text for a configured value. Values
// ending in .txt, .md or .tmpl are read as files: absolute paths directly,
// relative ones from the working directory and then from ~/.config/texttools/prompts.
// Anything else is used as the prompt itself. An empty value returns "".
func LoadPromptContent(configured string) (string, error) {
	configured = strings.TrimSpace(configured)
	if configured == "" || !isPromptPath(configured) {
		return configured, nil
	}

	candidates := []string{configured}
	if !filepath.IsAbs(configured) {
		if homeDir, err := os.UserHomeDir(); err == nil {
			candidates = append(candidates, filepath.Join(homeDir, defaultPromptDir, configured))
		}
	}

	for _, path := range candidates {
		promptBytes, err := os.ReadFile(path)
		if err == nil {
			return strings.TrimSpace(string(promptBytes)), nil
		}
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("failed to read prompt file '%s': %w", path, err)
		}
	}
	return "", fmt.Errorf("prompt file %q not found (looked in %s)", configured, strings.Join(candidates, ", "))
}

func isPromptPath(s string) bool {
	if strings.ContainsAny(s, "\n") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(s))
	for _, e := range promptFileExts {
		if ext == e {
			return true
		}
	}
	return false
}
