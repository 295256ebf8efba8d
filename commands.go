package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/akila/media-converter/staging"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete staged files older than the configured age and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := staging.New(cfg)
		if err != nil {
			return err
		}
		fmt.Printf("Removed %d file(s) from %s and %s\n", store.Sweep(), store.UploadDir, store.OutputDir)
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		out, err := cfg.YAML()
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(out)
		return err
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of media-converter",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("media-converter %s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd, configCmd, versionCmd)
}
