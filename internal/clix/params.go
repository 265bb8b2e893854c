package clix

import (
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// WaitParams are the polling knobs shared by `wait`, `run` and `submit --watch`.
type WaitParams struct {
	Interval time.Duration
	Timeout  time.Duration
}

// AddWaitFlags registers --interval and --timeout on flags.
func AddWaitFlags(flags *pflag.FlagSet) {
	flags.Duration("interval", 0, "Polling interval (default from batch.poll_interval)")
	flags.Duration("timeout", 0, "Give up waiting after this long (default from batch.timeout)")
}

// ParseWait reads the wait flags, falling back to the given defaults for
// unset or non-positive values.
func ParseWait(flags *pflag.FlagSet, defaults WaitParams) WaitParams {
	interval, _ := flags.GetDuration("interval")
	timeout, _ := flags.GetDuration("timeout")
	if interval <= 0 {
		interval = defaults.Interval
	}
	if timeout <= 0 {
		timeout = defaults.Timeout
	}
	return WaitParams{Interval: interval, Timeout: timeout}
}

// ParseList reads a comma separated flag, trimming entries and dropping blanks.
func ParseList(flags *pflag.FlagSet, name string) []string {
	raw, _ := flags.GetString(name)
	var out []string
	if raw != "" {
		// Trim space and filter out empty strings in one pass
		for _, t := range strings.Split(raw, ",") {
			if trimmed := strings.TrimSpace(t); trimmed != "" {
				out = append(out, trimmed)
			}
		}
	}
	return out
}
