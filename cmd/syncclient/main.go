// Command syncclient runs the fleet-management agent side of boxnet: it
// consumes commands and heartbeat/sync ticks, reconciles local analyzer /
// recognizer state against the central sync server (C7), and reports status
// and logs back over the broker.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyuneru/boxnet/errors"
	"github.com/fyuneru/boxnet/internal/analyzerapi"
	"github.com/fyuneru/boxnet/internal/broker"
	"github.com/fyuneru/boxnet/internal/config"
	"github.com/fyuneru/boxnet/internal/deviceid"
	"github.com/fyuneru/boxnet/internal/recognizerapi"
	"github.com/fyuneru/boxnet/internal/syncclient"
	"github.com/fyuneru/boxnet/internal/timeconv"
	"github.com/fyuneru/boxnet/internal/timers"
	"github.com/fyuneru/boxnet/logger"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "syncclient",
	Short: "Run the fleet sync agent: commands in, cameras/dbs/persons reconciled, status out",
	RunE:  run,
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to the agent's JSON config file")
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

	hwID, err := resolveIdentity(cfg.NodeID.HWID, cfg.NodeID.HWIDPath)
	if err != nil {
		return errors.Wrap(err, "resolve hw_id")
	}
	log.Infow("starting syncclient", logger.FieldHWID, hwID)

	conv, err := timeconv.NewConverter(cfg.NodeID.Timezone)
	if err != nil {
		return errors.Wrap(err, "build time converter")
	}

	fanout := timers.NewFanout(context.Background(), log)
	ctx := fanout.Context()

	cursors, err := syncclient.LoadCursors(cfg.Sync.CursorPath)
	if err != nil {
		return errors.Wrap(err, "load sync cursors")
	}

	delta := syncclient.NewDeltaClient(cfg.Sync.ServerURL, time.Duration(cfg.Sync.ConnectTimeoutSeconds)*time.Second, conv)

	analyzer := analyzerapi.New(cfg.Analyzer.BaseURL, time.Duration(cfg.Analyzer.ConnectTimeoutSeconds)*time.Second)
	recognizer := recognizerapi.New(cfg.Recognizer.BaseURL, time.Duration(cfg.Recognizer.ConnectTimeoutSeconds)*time.Second)

	link := broker.NewLink(
		cfg.Broker.URL,
		time.Duration(cfg.Broker.BackoffInitialSeconds)*time.Second,
		time.Duration(cfg.Broker.BackoffMaxSeconds)*time.Second,
		log,
	)
	_, ch, err := link.Connect(ctx)
	if err != nil {
		return errors.Wrap(err, "connect to broker")
	}
	producer, err := broker.NewProducer(ch, cfg.Broker.LogExchange, time.Duration(cfg.Broker.MessageTTLMinutes)*time.Minute, log)
	if err != nil {
		return errors.Wrap(err, "build broker producer")
	}

	worker := syncclient.New(syncclient.Config{
		HWID:           hwID,
		CursorPath:     cfg.Sync.CursorPath,
		UploadURL:      cfg.Sync.UploadURL,
		MaxIterations:  cfg.Sync.MaxIterationsPerStage,
		IterationSleep: time.Duration(cfg.Sync.IterationSleepMillis) * time.Millisecond,
	}, delta, cursors, analyzer, recognizer, producer, log)

	dispatcher := broker.NewDispatcher(hwID, log)
	go link.RunConsumer(ctx, cfg.Broker.CommandExchange, fmt.Sprintf("box_cmd_%s", hwID), "#", dispatcher.Handle)

	go timers.RunHeartbeat(ctx, time.Duration(cfg.Sync.HeartbeatMinutes)*time.Minute, dispatcher.Tasks)
	go timers.RunSyncTicker(ctx, time.Duration(cfg.Sync.SyncTTLMinutes)*time.Minute, dispatcher.Tasks)

	worker.Run(ctx, dispatcher.Tasks)

	if err := cursors.Save(cfg.Sync.CursorPath); err != nil {
		log.Errorw("failed to persist sync cursors on shutdown", "error", err)
	}
	log.Infow("syncclient shut down cleanly")
	return nil
}

func resolveIdentity(value, path string) (string, error) {
	if value != "" {
		return value, nil
	}
	return deviceid.Read(path)
}
