package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/high-horse/fingerprint-server/extract"
)

var extractCmd = &cobra.Command{
	Use:   "extract <image>",
	Short: "Extract a minutiae template from a fingerprint image",
	Long: `Extract reads a PNG, JPEG, GIF, BMP, TIFF, PGM/PBM or WSQ image and writes
the encoded template to stdout, or to --out.`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().String("out", "", "Write the template to this file instead of stdout")
}

func runExtract(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	img, err := extract.LoadImage(args[0])
	if err != nil {
		return err
	}
	t, err := extract.NewCreator(cfg.ToExtractOptions()).Template(img)
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}
	raw, err := cfg.Codec().Encode(t)
	if err != nil {
		return err
	}

	if out := mustGetString(cmd, "out"); out != "" {
		return os.WriteFile(out, raw, 0o644)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(raw))
	return err
}
