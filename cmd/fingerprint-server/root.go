package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/high-horse/fingerprint-server/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "fingerprint-server",
	Short: "Fingerprint 1:N identification server and tools",
	Long: `fingerprint-server identifies a probe fingerprint template against a roster
of enrolled templates. It runs as an HTTP service or as one-shot commands for
quality checks, template extraction and offline identification.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "TOML config file (FP_* environment variables override it)")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}

func loadConfig() (*config.Config, error) {
	return config.Load(configPath, os.LookupEnv)
}
