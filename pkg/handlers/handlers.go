// Package handlers contains result sinks for finished batch jobs.
package handlers

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"texttools/internal/models"
)

// NoOpResultHandler discards results.
type NoOpResultHandler struct{}

func (NoOpResultHandler) Name() string { return "noop" }

func (NoOpResultHandler) Handle(context.Context, *models.BatchResults) error { return nil }

// FormatValue renders an entry value for text sinks.
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

// PrintResultHandler renders results as a table.
type PrintResultHandler struct {
	out io.Writer
}

// NewPrintResultHandler writes to out, or stdout when out is nil.
func NewPrintResultHandler(out io.Writer) *PrintResultHandler {
	if out == nil {
		out = os.Stdout
	}
	return &PrintResultHandler{out: out}
}

func (h *PrintResultHandler) Name() string { return "print" }

func (h *PrintResultHandler) Handle(_ context.Context, results *models.BatchResults) error {
	fmt.Fprintf(h.out, "Results for job %s (%d entries)\n", results.JobName, results.Len())

	table := tablewriter.NewWriter(h.out)
	table.SetHeader([]string{"ID", "Value", "Error"})
	table.SetBorder(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoWrapText(false)

	for _, id := range results.SortedIDs() {
		e := results.Entries[id]
		if e.OK() {
			table.Append([]string{id, color.GreenString(FormatValue(e.Value)), ""})
		} else {
			table.Append([]string{id, "", color.RedString(e.Error)})
		}
	}
	table.Render()
	return nil
}

// SaveToFileResultHandler appends id,value rows to a file. Failed entries are
// written as id,ERROR: message.
type SaveToFileResultHandler struct {
	path string
	mu   sync.Mutex
}

func NewSaveToFileResultHandler(path string) *SaveToFileResultHandler {
	return &SaveToFileResultHandler{path: path}
}

func (h *SaveToFileResultHandler) Name() string { return "save_file" }

func (h *SaveToFileResultHandler) Handle(_ context.Context, results *models.BatchResults) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if dir := filepath.Dir(h.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir %s: %w", dir, err)
		}
	}
	f, err := os.OpenFile(h.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", h.path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	for _, id := range results.SortedIDs() {
		e := results.Entries[id]
		value := FormatValue(e.Value)
		if !e.OK() {
			value = "ERROR: " + e.Error
		}
		if err := w.Write([]string{id, value}); err != nil {
			return fmt.Errorf("write %s: %w", h.path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush %s: %w", h.path, err)
	}
	return nil
}
