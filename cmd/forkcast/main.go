// Command forkcast serves and renders EIP comparison documents.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"forkcast/api/internal/config"
	"forkcast/api/internal/eips"
	"forkcast/api/internal/logging"
)

// cli holds what every subcommand needs once flags are parsed.
type cli struct {
	configFile string
	cfg        config.Config
	log        *zap.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:          "forkcast",
		Short:        "Render, validate and serve EIP comparison documents",
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return c.setup()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if c.log != nil {
				_ = c.log.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&c.configFile, "config", "", "config file (yaml, json or toml)")

	root.AddCommand(
		newServeCmd(c),
		newRenderCmd(c),
		newValidateCmd(c),
		newExportCmd(c),
		newGistCmd(c),
	)
	return root
}

func (c *cli) setup() error {
	cfg, err := config.Load(c.configFile)
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	c.cfg = cfg
	c.log = log
	return nil
}

// dataset returns the bundled reference data unless EIPsPath overrides it.
// A forks.json next to the override is picked up when present.
func (c *cli) dataset() (*eips.Dataset, error) {
	if c.cfg.EIPsPath == "" {
		return eips.Default(), nil
	}
	forks := filepath.Join(filepath.Dir(c.cfg.EIPsPath), "forks.json")
	if _, err := os.Stat(forks); err != nil {
		forks = ""
	}
	ds, err := eips.LoadFile(c.cfg.EIPsPath, forks)
	if err != nil {
		return nil, fmt.Errorf("load eips dataset: %w", err)
	}
	return ds, nil
}
