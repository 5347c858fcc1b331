package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/cobra"

	fingerprint "github.com/high-horse/fingerprint-server"
	"github.com/high-horse/fingerprint-server/extract"
)

var identifyCmd = &cobra.Command{
	Use:   "identify",
	Short: "Identify a probe against a directory of enrolled templates",
	Long: `Identify loads every file in --roster as one enrolled person, named after the
file without its extension, and prints the identification result as JSON.
Image files are converted to templates first.`,
	Args: cobra.NoArgs,
	RunE: runIdentify,
}

func init() {
	rootCmd.AddCommand(identifyCmd)

	identifyCmd.Flags().String("probe", "", "Probe template or image")
	identifyCmd.Flags().String("roster", "", "Directory of enrolled templates or images")
	identifyCmd.Flags().String("transparency", "", "Write CBOR transparency records into this directory")
	_ = identifyCmd.MarkFlagRequired("probe")
	_ = identifyCmd.MarkFlagRequired("roster")
}

func runIdentify(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	l := loader{creator: extract.NewCreator(cfg.ToExtractOptions())}

	probe, err := l.load(mustGetString(cmd, "probe"))
	if err != nil {
		return fmt.Errorf("probe: %w", err)
	}
	roster, err := l.roster(mustGetString(cmd, "roster"))
	if err != nil {
		return fmt.Errorf("roster: %w", err)
	}

	var transparency *fingerprint.TransparencyLogger
	if dir := mustGetString(cmd, "transparency"); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		transparency = fingerprint.NewTransparencyLogger(&dirContents{dir: dir})
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Matching.Timeout)
	defer cancel()
	result, err := fingerprint.NewIdentifier(cfg.ToPolicy(), transparency).Identify(ctx, probe, roster)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), result)
}

// dirContents writes each transparency record to its own numbered file.
type dirContents struct {
	dir string

	mu  sync.Mutex
	seq int
}

func (d *dirContents) Accepts(string) bool { return true }

func (d *dirContents) Accept(key, mime string, data []byte) error {
	if mime != "application/cbor" {
		return errors.New("unexpected transparency mime " + mime)
	}
	d.mu.Lock()
	d.seq++
	name := fmt.Sprintf("%04d-%s.cbor", d.seq, key)
	d.mu.Unlock()
	return os.WriteFile(filepath.Join(d.dir, name), data, 0o644)
}
