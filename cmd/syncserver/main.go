// Command syncserver runs the central fleet-sync server (C8): it answers
// paginated delta-sync queries against the relational store over HTTP,
// merging each live table with its "_del" twin into a single time-ordered
// stream per device.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyuneru/boxnet/db"
	"github.com/fyuneru/boxnet/errors"
	"github.com/fyuneru/boxnet/internal/config"
	"github.com/fyuneru/boxnet/internal/syncserver"
	"github.com/fyuneru/boxnet/internal/timeconv"
	"github.com/fyuneru/boxnet/internal/timers"
	"github.com/fyuneru/boxnet/logger"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "syncserver",
	Short: "Run the central fleet delta-sync server",
	RunE:  run,
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to the server's JSON config file")
	rootCmd.MarkFlagRequired("config")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return errors.Wrap(err, "load config")
	}

	if err := logger.Initialize(cfg.Log.JSONOutput); err != nil {
		return errors.Wrap(err, "initialize logger")
	}
	log := logger.Logger
	log.Infow("starting syncserver")

	conv, err := timeconv.NewConverter(cfg.NodeID.Timezone)
	if err != nil {
		return errors.Wrap(err, "build time converter")
	}

	conn, err := db.OpenWithMigrations(cfg.Database.Path, log)
	if err != nil {
		return errors.Wrap(err, "open database")
	}
	defer conn.Close()

	fanout := timers.NewFanout(context.Background(), log)
	ctx := fanout.Context()

	srv := syncserver.New(conn, conv, cfg.Sync.BatchSize, log)
	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)

	httpSrv := &http.Server{Addr: cfg.Server.BindAddr, Handler: mux}

	srvErr := make(chan error, 1)
	go func() {
		log.Infow("sync http listening", logger.FieldAddress, cfg.Server.BindAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			srvErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-srvErr:
		log.Errorw("sync http server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}
