package main

import (
	"fmt"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/adminbjkai/img2/config"
	"github.com/adminbjkai/img2/utils"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "img2",
		Short: "Ephemeral image hosting.",
		Long: `img2 stores uploaded images under short random identifiers, serves them
back with a 300x300 PNG preview, and deletes images whose optional
expiry has passed.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
	rootCmd.AddCommand(newServeCmd(), newSweepCmd())
	return rootCmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server and the expiration sweeper (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired images once and exit",
		Long: `Run a single expiration pass over the metadata store and upload directory.

Examples:
  img2 sweep
  UPLOAD_DIR=/srv/img DB_PATH=/srv/img/images.db img2 sweep`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(cmd)
		},
	}
}

func boot() (*app, error) {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		return nil, err
	}
	return newApp(cfg, afero.NewOsFs(), utils.Logger)
}

func runServe() error {
	a, err := boot()
	if err != nil {
		return err
	}
	defer utils.Logger.Sync()

	stopSweeper := a.startSweeper()

	utils.Sugar.Infof("Starting server on %s (graceful), uploads in %s", a.cfg.ListenAddr(), a.cfg.UploadDir)
	err = utils.GraceServer(a.cfg.ListenAddr(), a.router(), stopSweeper, func() {
		if cerr := a.close(); cerr != nil {
			utils.Sugar.Warnf("close: %v", cerr)
		}
	})
	if err != nil {
		utils.Sugar.Errorf("server stopped with error: %v", err)
	}
	return err
}

func runSweep(cmd *cobra.Command) error {
	a, err := boot()
	if err != nil {
		return err
	}
	defer a.close()
	defer utils.Logger.Sync()

	res := a.sweeper.Sweep(cmd.Context())
	fmt.Fprintf(cmd.OutOrStdout(), "expired: %d, files removed: %d, records removed: %d, failures: %d\n",
		res.Expired, res.FilesRemoved, res.RecordsRemoved, res.Failures)
	if res.Failures > 0 {
		return fmt.Errorf("sweep finished with %d failures", res.Failures)
	}
	return nil
}
