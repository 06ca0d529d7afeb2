package main

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"xiapu/imageguard/internal/container"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Manage the page and serve the control API",
	RunE:  runServe,
}

var checkOut string

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Resolve every image once and print the stats",
	Long: `Loads every image of the page eagerly, waits until each one settled on
its original source or a fallback and prints the result. With --out the
resulting page is written to a file.`,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringVarP(&checkOut, "out", "o", "", "write the resolved page to this file")
}

func runServe(cmd *cobra.Command, _ []string) error {
	log.Info("Starting imageguard...")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Initialize container with all dependencies
	app, err := container.New(cfg, afero.NewOsFs())
	if err != nil {
		return fmt.Errorf("failed to initialize container: %w", err)
	}
	defer app.Close()

	if err := app.Run(cmd.Context()); err != nil {
		return err
	}

	log.Info("Application finished successfully")
	return nil
}

func runCheck(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Images.Lazy = false

	app, err := container.New(cfg, afero.NewOsFs())
	if err != nil {
		return fmt.Errorf("failed to initialize container: %w", err)
	}
	defer app.Close()

	stats, err := app.Check(cmd.Context())
	if err != nil {
		return err
	}

	if checkOut != "" {
		if err := app.WritePage(checkOut); err != nil {
			return err
		}
		log.Infof("📝 Resolved page written to %s", checkOut)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s\ntotal=%d loaded=%d fallback=%d failed=%d\n",
		app.Pipeline.Status().Text, stats.Total, stats.Loaded, stats.Fallback, stats.Failed)
	return nil
}
