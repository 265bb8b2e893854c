// Package preprocess holds text transforms applied before a task is built.
package preprocess

import (
	"fmt"
	"strings"
	"sync"

	"github.com/neurosnap/sentences"
	"github.com/neurosnap/sentences/english"
	log "github.com/sirupsen/logrus"
	"golang.org/x/text/unicode/norm"
)

// Func transforms one input text.
type Func func(string) string

// Chain applies fns in order. Nil entries are skipped.
func Chain(fns ...Func) Func {
	return func(s string) string {
		for _, fn := range fns {
			if fn != nil {
				s = fn(s)
			}
		}
		return s
	}
}

// Identity returns the text unchanged.
func Identity(s string) string { return s }

// Normalize applies Unicode NFC and collapses runs of whitespace to one space.
func Normalize(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}

var (
	tokenizerOnce sync.Once
	tokenizer     *sentences.DefaultSentenceTokenizer
	tokenizerErr  error
)

func englishTokenizer() (*sentences.DefaultSentenceTokenizer, error) {
	tokenizerOnce.Do(func() {
		tokenizer, tokenizerErr = english.NewSentenceTokenizer(nil)
	})
	return tokenizer, tokenizerErr
}

// SentenceLimit keeps at most n sentences of the text. n <= 0 disables it.
// If the tokenizer cannot be loaded the text passes through unchanged.
func SentenceLimit(n int) Func {
	if n <= 0 {
		return Identity
	}
	return func(s string) string {
		tok, err := englishTokenizer()
		if err != nil {
			log.Warnf("Sentence tokenizer unavailable, not truncating: %v", err)
			return s
		}
		sents := tok.Tokenize(s)
		if len(sents) <= n {
			return s
		}
		parts := make([]string, 0, n)
		for _, sent := range sents[:n] {
			if t := strings.TrimSpace(sent.Text); t != "" {
				parts = append(parts, t)
			}
		}
		return strings.Join(parts, " ")
	}
}

// Options selects the shipped transforms.
type Options struct {
	Normalize    bool
	MaxSentences int
}

// FromOptions builds the chain described by opts.
func FromOptions(opts Options) Func {
	var fns []Func
	if opts.Normalize {
		fns = append(fns, Normalize)
	}
	if opts.MaxSentences > 0 {
		fns = append(fns, SentenceLimit(opts.MaxSentences))
	}
	return Chain(fns...)
}

// String describes the options for logs.
func (o Options) String() string {
	return fmt.Sprintf("normalize=%t max_sentences=%d", o.Normalize, o.MaxSentences)
}
