package main

import (
	"github.com/spf13/cobra"

	fingerprint "github.com/high-horse/fingerprint-server"
	"github.com/high-horse/fingerprint-server/extract"
)

var qualityCmd = &cobra.Command{
	Use:   "quality <template-or-image>",
	Short: "Print the quality verdict of a template",
	Args:  cobra.ExactArgs(1),
	RunE:  runQuality,
}

func init() {
	rootCmd.AddCommand(qualityCmd)
}

func runQuality(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	l := loader{creator: extract.NewCreator(cfg.ToExtractOptions())}
	t, err := l.load(args[0])
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), fingerprint.AssessQuality(t, cfg.ToPolicy().Quality))
}
