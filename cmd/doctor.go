package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/hibiken/asynq"

	"texttools/internal/app"
)

type doctorCheck struct {
	name string
	run  func(ctx context.Context) error
}

func runDoctor(ctx context.Context, a *app.App, out io.Writer) error {
	checks := []doctorCheck{
		{"OpenAI API key", func(context.Context) error {
			if !a.Provider.Enabled() {
				return fmt.Errorf("not set (openai.api_key or OPENAI_API_KEY)")
			}
			return nil
		}},
		{"Job state backend (" + a.Config.Batch.StateBackend + ")", func(ctx context.Context) error {
			if a.PrimaryStore != nil {
				return a.PrimaryStore.Ping(ctx)
			}
			return os.MkdirAll(a.FileState.Dir(), 0o755)
		}},
		{"Redis (" + a.Config.Redis.Address + ")", func(context.Context) error {
			inspector := asynq.NewInspector(a.RedisClientOpt())
			defer inspector.Close()
			_, err := inspector.Queues()
			return err
		}},
	}

	failed := 0
	for _, c := range checks {
		if err := c.run(ctx); err != nil {
			failed++
			fmt.Fprintf(out, "%s %s: %v\n", color.RedString("FAIL"), c.name, err)
			continue
		}
		fmt.Fprintf(out, "%s %s\n", color.GreenString("OK  "), c.name)
	}
	if failed > 0 {
		return fmt.Errorf("%d check(s) failed", failed)
	}
	return nil
}
