package util

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	log "github.com/sirupsen/logrus"
)

const maxBinaryCheckBytes = 512

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Typographic characters that models treat inconsistently are folded to ASCII.
var charReplacementMap = map[string]string{
	"\u2018": "'", "\u2019": "'", "\u201C": "\"", "\u201D": "\"",
	"\u2013": "-", "\u2014": "--", "\u2026": "...", "\u00a0": " ",
	"\u0091": "'", "\u0092": "'", "\u0093": "\"", "\u0094": "\"",
	"\u0096": "-", "\u0097": "--",
}

// IsLikelyBinary reports whether the first bytes of path contain a NUL.
func IsLikelyBinary(path string) (bool, error) {
	file, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer file.Close()

	buffer := make([]byte, maxBinaryCheckBytes)
	n, err := file.Read(buffer)
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	return bytes.Contains(buffer[:n], []byte{0}), nil
}

// CleanFileContent strips a BOM, repairs invalid UTF-8 and folds typographic
// punctuation. src is only used in log and error messages.
func CleanFileContent(content []byte, src string) (string, error) {
	content = bytes.TrimPrefix(content, utf8BOM)

	if !utf8.Valid(content) {
		log.Warnf("%s has invalid UTF-8, replacing invalid chars", src)
		content = bytes.ToValidUTF8(content, []byte(string(utf8.RuneError)))
	}

	str := string(content)
	for bad, good := range charReplacementMap {
		str = strings.ReplaceAll(str, bad, good)
	}

	if !utf8.ValidString(str) {
		return "", fmt.Errorf("invalid UTF-8 after replacements: %s", src)
	}
	return str, nil
}

// NonEmptyLines splits s on newlines, trimming each line and dropping blanks.
func NonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
