// Command boxagent runs the camera-side ingestion pipeline: it accepts
// face/vehicle track notifications over HTTP, aggregates them per uuid,
// searches faces against the external recognizer, and egresses the result
// to object storage and the broker's log exchange.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyuneru/boxnet/errors"
	"github.com/fyuneru/boxnet/internal/aggregator"
	"github.com/fyuneru/boxnet/internal/broker"
	"github.com/fyuneru/boxnet/internal/config"
	"github.com/fyuneru/boxnet/internal/deviceid"
	"github.com/fyuneru/boxnet/internal/ingest"
	"github.com/fyuneru/boxnet/internal/model"
	"github.com/fyuneru/boxnet/internal/objectstore"
	"github.com/fyuneru/boxnet/internal/recognizerapi"
	"github.com/fyuneru/boxnet/internal/search"
	"github.com/fyuneru/boxnet/internal/timeconv"
	"github.com/fyuneru/boxnet/internal/timers"
	"github.com/fyuneru/boxnet/internal/uplink"
	"github.com/fyuneru/boxnet/logger"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "boxagent",
	Short: "Run the camera-side track ingestion and uplink agent",
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
	log.Infow("starting boxagent", logger.FieldHWID, hwID)

	conv, err := timeconv.NewConverter(cfg.NodeID.Timezone)
	if err != nil {
		return errors.Wrap(err, "build time converter")
	}

	fanout := timers.NewFanout(context.Background(), log)
	ctx := fanout.Context()

	store, err := objectstore.New(ctx, objectstore.Config{
		Endpoint:        cfg.ObjectStore.Endpoint,
		Region:          cfg.ObjectStore.Region,
		AccessKeyID:     cfg.ObjectStore.AccessKeyID,
		SecretAccessKey: cfg.ObjectStore.SecretAccessKey,
		UseSSL:          cfg.ObjectStore.UseSSL,
		FaceBucket:      cfg.ObjectStore.FaceBucket,
		CarBucket:       cfg.ObjectStore.CarBucket,
	})
	if err != nil {
		return errors.Wrap(err, "build object store")
	}

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
	publisher := uplink.New(store, producer, conv, log)

	recognizer := recognizerapi.New(cfg.Recognizer.BaseURL, time.Duration(cfg.Recognizer.ConnectTimeoutSeconds)*time.Second)

	faceAgg := aggregator.New(aggregator.Config{
		Kind:        model.KindFace,
		Readiness:   faceReadiness(cfg),
		ReadyDelay:  cfg.Aggregator.ReadyDelaySeconds,
		CleanDelay:  cfg.Aggregator.CleanDelaySeconds,
		QueueBuffer: 256,
	}, log)
	vehicleAgg := aggregator.New(aggregator.Config{
		Kind:        model.KindVehicle,
		Readiness:   vehicleReadiness(cfg),
		ReadyDelay:  cfg.Aggregator.ReadyDelaySeconds,
		CleanDelay:  cfg.Aggregator.CleanDelaySeconds,
		QueueBuffer: 256,
	}, log)
	go faceAgg.Run(ctx)
	go vehicleAgg.Run(ctx)

	ignoreDBs := make(map[string]struct{}, len(cfg.Search.IgnoreDBs))
	for _, db := range cfg.Search.IgnoreDBs {
		ignoreDBs[db] = struct{}{}
	}
	batcher := search.New(search.Config{
		BatchSize:  cfg.Search.BatchSize,
		CacheTTL:   time.Duration(cfg.Search.CacheTTLMinutes) * time.Minute,
		TopN:       cfg.Search.TopN,
		Threshold:  cfg.Search.Threshold,
		SkipSearch: cfg.Search.SkipSearch,
		IgnoreDBs:  ignoreDBs,
	}, recognizer, log)
	go batcher.Run(ctx)

	go pumpFaceToSearch(ctx, faceAgg.Forwarded, batcher.In)
	go pumpFaceEgress(ctx, batcher.Out, publisher, log)
	go pumpVehicleEgress(ctx, vehicleAgg.Forwarded, publisher, log)

	handler := ingest.New(cfg.Server.MaxContentLength, faceAgg.Ingress(), vehicleAgg.Ingress(), log)
	mux := http.NewServeMux()
	mux.Handle("/trackupload", handler)
	srv := &http.Server{Addr: cfg.Server.BindAddr, Handler: mux}

	srvErr := make(chan error, 1)
	go func() {
		log.Infow("ingress http listening", logger.FieldAddress, cfg.Server.BindAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			srvErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-srvErr:
		log.Errorw("ingress http server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func resolveIdentity(value, path string) (string, error) {
	if value != "" {
		return value, nil
	}
	return deviceid.Read(path)
}

func faceReadiness(cfg *config.Config) aggregator.Readiness {
	return func(t *model.Track) bool {
		count := 0
		for _, f := range t.Faces {
			if f.Quality > cfg.Aggregator.FaceQualityThreshold && f.HasFeature() {
				count++
			}
		}
		return count >= cfg.Aggregator.FaceCount
	}
}

func vehicleReadiness(cfg *config.Config) aggregator.Readiness {
	return func(t *model.Track) bool {
		if t.Plate == nil {
			return false
		}
		confs := t.Plate.TopBitConfidences()
		if len(confs) == 0 {
			return false
		}
		for _, c := range confs {
			if c < cfg.Aggregator.PlateConfThreshold {
				return false
			}
		}
		return len(t.VehicleImages) >= cfg.Aggregator.VehicleCount
	}
}

func pumpFaceToSearch(ctx context.Context, in <-chan *model.Track, out chan<- *model.Track) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-in:
			select {
			case out <- t:
			case <-ctx.Done():
				return
			}
		}
	}
}

func pumpFaceEgress(ctx context.Context, in <-chan *model.Track, publisher *uplink.Publisher, log interface {
	Errorw(string, ...interface{})
}) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-in:
			if err := publisher.PublishFace(ctx, t); err != nil {
				log.Errorw("publish face track failed", "uuid", t.UUID, "error", err)
			}
		}
	}
}

func pumpVehicleEgress(ctx context.Context, in <-chan *model.Track, publisher *uplink.Publisher, log interface {
	Errorw(string, ...interface{})
}) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-in:
			if err := publisher.PublishVehicle(ctx, t); err != nil {
				log.Errorw("publish vehicle track failed", "uuid", t.UUID, "error", err)
			}
		}
	}
}
