package cmd

import (
	"github.com/spf13/cobra"

	"texttools/internal/app"
	"texttools/internal/models"
	"texttools/internal/services"
)

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Detect whether texts are questions",
	Long: `Runs binary question detection as OpenAI batch jobs. Each text gets a
true/false verdict keyed by its custom id.`,
}

func init() {
	newJobCommands(detectCmd, models.KindDetect, func(_ *cobra.Command, a *app.App) (*services.BatchService, error) {
		return a.Detector.Service(), nil
	})
	rootCmd.AddCommand(detectCmd)
}
