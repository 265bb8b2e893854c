package cmd

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"texttools/internal/app"
	"texttools/internal/clix"
	"texttools/internal/models"
	"texttools/internal/services"
	"texttools/pkg/categorizer"
)

var categorizeCmd = &cobra.Command{
	Use:   "categorize",
	Short: "Assign one of a fixed set of categories to texts",
	Long: `Runs categorization as OpenAI batch jobs. Categories come from
categorizer.categories in the config or --categories. A job remembers the
categories it was submitted with and is only fetched with the same set.`,
}

func init() {
	categorizeCmd.PersistentFlags().String("categories", "", "Comma separated category names (overrides categorizer.categories)")
	newJobCommands(categorizeCmd, models.KindCategorize, func(cmd *cobra.Command, a *app.App) (*services.BatchService, error) {
		if names := clix.ParseList(cmd.Flags(), "categories"); len(names) > 0 {
			c, err := a.NewCategorizer(names)
			if err != nil {
				return nil, err
			}
			return c.Service(), nil
		}
		if a.Categorizer == nil {
			return nil, fmt.Errorf("no categories: set categorizer.categories or pass --categories")
		}
		return a.Categorizer.Service(), nil
	})
	categorizeCmd.AddCommand(newEmbedCmd())
	rootCmd.AddCommand(categorizeCmd)
}

func newEmbedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "embed [text...]",
		Short: "Categorize texts right away by embedding similarity",
		Long: `Embeds each text and picks the category whose prototype is most similar.
Prototypes are built from categorizer.embedding.examples (or the category names)
and, with categorizer.embedding.store, kept in database.primary with pgvector.
No batch job is created.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := GetAppFromContext(cmd.Context())
			if err != nil {
				return err
			}
			names := clix.ParseList(cmd.Flags(), "categories")
			if len(names) == 0 {
				names = appInstance.Config.Categorizer.Categories
			}
			if len(names) == 0 {
				return fmt.Errorf("no categories: set categorizer.categories or pass --categories")
			}
			payload, err := loadPayload(cmd, args)
			if err != nil {
				return err
			}
			c, err := appInstance.NewEmbeddingCategorizer(cmd.Context(), names)
			if err != nil {
				return err
			}
			return runEmbed(cmd.Context(), c, payload, cmd.OutOrStdout())
		},
	}
	addPayloadFlags(cmd)
	return cmd
}

// runEmbed numbers bare texts from 1 and prints one row per item.
func runEmbed(ctx context.Context, c *categorizer.EmbeddingCategorizer, payload models.Payload, out io.Writer) error {
	items := payload.Items
	if len(payload.Texts) > 0 {
		items = make(map[string]string, len(payload.Texts))
		for i, text := range payload.Texts {
			items[strconv.Itoa(i+1)] = text
		}
	}
	got, failures, err := c.CategorizeMany(ctx, items)
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(items))
	for id := range items {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, errA := strconv.Atoi(ids[i])
		b, errB := strconv.Atoi(ids[j])
		if errA == nil && errB == nil {
			return a < b
		}
		return ids[i] < ids[j]
	})

	table := tablewriter.NewWriter(out)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"ID", "Category"})
	for _, id := range ids {
		if msg, failed := failures[id]; failed {
			table.Append([]string{id, color.RedString("error: %s", msg)})
			continue
		}
		table.Append([]string{id, got[id].String()})
	}
	table.Render()
	return nil
}
