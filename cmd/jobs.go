package cmd

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"texttools/internal/app"
	"texttools/internal/clix"
	"texttools/internal/inputprocessor"
	"texttools/internal/models"
	"texttools/internal/services"
)

// lifecycleResolver returns the batch service a command group works on.
type lifecycleResolver func(cmd *cobra.Command, a *app.App) (*services.BatchService, error)

// newJobCommands builds the submit/status/wait/fetch/run subcommands for one
// use case kind.
func newJobCommands(parent *cobra.Command, kind string, resolve lifecycleResolver) {
	setup := func(cmd *cobra.Command) (*app.App, *services.BatchService, error) {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return nil, nil, err
		}
		svc, err := resolve(cmd, appInstance)
		if err != nil {
			return nil, nil, err
		}
		return appInstance, svc, nil
	}
	waitDefaults := func(a *app.App) clix.WaitParams {
		return clix.WaitParams{Interval: a.Config.Batch.PollInterval, Timeout: a.Config.Batch.Timeout}
	}

	submitCmd := &cobra.Command{
		Use:   "submit <job-name> [text...]",
		Short: "Submit texts as a named batch job",
		Long: `Uploads one task per text and creates a remote batch job under <job-name>.
Submitting a name that already has a job returns the existing job.
Texts come from the arguments, repeated --item id=text flags, or --input
(a file, "-" for stdin, or an http(s) URL).`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, svc, err := setup(cmd)
			if err != nil {
				return err
			}
			payload, err := loadPayload(cmd, args[1:])
			if err != nil {
				return err
			}
			rec, err := svc.Start(cmd.Context(), payload, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Job %s submitted as %s (%d items, status %s)\n",
				rec.JobName, rec.RemoteID, len(rec.CustomIDs), rec.Status)

			if watch, _ := cmd.Flags().GetBool("watch"); watch {
				if appInstance.JobClient == nil {
					return fmt.Errorf("--watch needs a reachable Redis (redis.address)")
				}
				interval := clix.ParseWait(cmd.Flags(), waitDefaults(appInstance)).Interval
				if err := appInstance.JobClient.EnqueueBatchCheck(cmd.Context(), kind, rec.JobName, interval); err != nil {
					return fmt.Errorf("failed to schedule background check: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Background check scheduled every %s; run `texttools worker` to process it.\n", interval)
			}
			return nil
		},
	}
	addPayloadFlags(submitCmd)
	submitCmd.Flags().Bool("watch", false, "Enqueue a background batch:check that fetches the job when done")
	submitCmd.Flags().Duration("interval", 0, "Polling interval for --watch (default from batch.poll_interval)")

	statusCmd := &cobra.Command{
		Use:   "status <job-name>",
		Short: "Refresh and show the state of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, svc, err := setup(cmd)
			if err != nil {
				return err
			}
			status, err := svc.CheckStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			rec, err := svc.Record(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if rec == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "No stored job named %s (status %s)\n", args[0], status)
				return nil
			}
			renderRecord(cmd.OutOrStdout(), rec)
			return nil
		},
	}

	waitCmd := &cobra.Command{
		Use:   "wait <job-name>",
		Short: "Block until a job completes, fails or the timeout passes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, svc, err := setup(cmd)
			if err != nil {
				return err
			}
			p := clix.ParseWait(cmd.Flags(), waitDefaults(appInstance))
			status, err := svc.Wait(cmd.Context(), args[0], p.Interval, p.Timeout)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Job %s is %s\n", args[0], status)
			return nil
		},
	}
	clix.AddWaitFlags(waitCmd.Flags())

	fetchCmd := &cobra.Command{
		Use:   "fetch <job-name>",
		Short: "Download results of a finished job into the result handlers",
		Long: `Fetches and reconciles the results of a completed job, hands them to the
configured result handlers and forgets the job. A job that is still running
yields no results and is kept.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, svc, err := setup(cmd)
			if err != nil {
				return err
			}
			results, err := svc.FetchResults(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			reportResults(cmd.OutOrStdout(), args[0], results)
			return nil
		},
	}

	runCmd := &cobra.Command{
		Use:   "run [text...]",
		Short: "Submit, wait for and fetch a job in one step",
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, svc, err := setup(cmd)
			if err != nil {
				return err
			}
			payload, err := loadPayload(cmd, args)
			if err != nil {
				return err
			}
			p := clix.ParseWait(cmd.Flags(), waitDefaults(appInstance))
			started := time.Now()
			results, err := svc.Run(cmd.Context(), payload, p.Interval, p.Timeout)
			if err != nil {
				return err
			}
			log.Debugf("Run finished in %s", time.Since(started).Round(time.Second))
			reportResults(cmd.OutOrStdout(), results.JobName, results)
			return nil
		},
	}
	addPayloadFlags(runCmd)
	clix.AddWaitFlags(runCmd.Flags())

	parent.AddCommand(submitCmd, statusCmd, waitCmd, fetchCmd, runCmd)
}

func addPayloadFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("input", "i", "", `Read texts from a file, "-" for stdin, or an http(s) URL`)
	cmd.Flags().StringToString("item", nil, "Keyed text as id=text (repeatable)")
}

// loadPayload picks exactly one payload source among --input, --item and texts.
func loadPayload(cmd *cobra.Command, texts []string) (models.Payload, error) {
	input, _ := cmd.Flags().GetString("input")
	items, _ := cmd.Flags().GetStringToString("item")

	sources := 0
	for _, set := range []bool{input != "", len(items) > 0, len(texts) > 0} {
		if set {
			sources++
		}
	}
	switch {
	case sources == 0:
		return models.Payload{}, models.ErrEmptyPayload
	case sources > 1:
		return models.Payload{}, fmt.Errorf("use only one of texts, --item or --input")
	case input != "":
		return inputprocessor.New().Process(cmd.Context(), input)
	case len(items) > 0:
		return models.PayloadFromItems(items), nil
	}
	return models.PayloadFromTexts(texts...), nil
}

func renderRecord(out io.Writer, rec *models.JobRecord) {
	table := tablewriter.NewWriter(out)
	table.SetBorder(true)
	table.SetRowLine(true)
	table.SetHeader([]string{"Field", "Value"})
	table.AppendBulk([][]string{
		{"Job Name", rec.JobName},
		{"Remote ID", rec.RemoteID},
		{"Status", statusColor(rec.Status)},
		{"Items", strconv.Itoa(len(rec.CustomIDs))},
		{"Input File", rec.InputFileID},
		{"Output File", orNA(rec.OutputFileID)},
		{"Error File", orNA(rec.ErrorFileID)},
		{"Failure", orNA(rec.FailureMessage)},
		{"Created At", rec.CreatedAt.Format(time.RFC3339)},
		{"Updated At", rec.UpdatedAt.Format(time.RFC3339)},
	})
	keys := make([]string, 0, len(rec.Labels))
	for k := range rec.Labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		table.Append([]string{"Label " + k, rec.Labels[k]})
	}
	table.Render()
}

func reportResults(out io.Writer, jobName string, results *models.BatchResults) {
	if results.IsEmpty() {
		fmt.Fprintf(out, "No results for %s yet.\n", jobName)
		return
	}
	failures := len(results.Failures())
	msg := fmt.Sprintf("Fetched %d results for %s", results.Len(), jobName)
	if failures > 0 {
		msg += color.YellowString(" (%d failed)", failures)
	}
	if results.Usage.TotalTokens > 0 {
		msg += fmt.Sprintf(", %d tokens", results.Usage.TotalTokens)
	}
	fmt.Fprintln(out, msg)
}

func statusColor(s models.JobStatus) string {
	switch {
	case s == models.JobStatusCompleted:
		return color.GreenString(s.String())
	case s.IsFailure():
		return color.RedString(s.String())
	}
	return color.YellowString(s.String())
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
