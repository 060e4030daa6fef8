package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/groblegark/footfall/internal/anonymize"
	"github.com/groblegark/footfall/internal/archive"
	"github.com/groblegark/footfall/internal/config"
	"github.com/groblegark/footfall/internal/events"
	"github.com/groblegark/footfall/internal/idgen"
	"github.com/groblegark/footfall/internal/ledger"
	"github.com/groblegark/footfall/internal/pipeline"
	"github.com/groblegark/footfall/internal/scan"
	"github.com/groblegark/footfall/internal/server"
	"github.com/groblegark/footfall/internal/sink"
	"github.com/groblegark/footfall/internal/storage"
	"github.com/spf13/cobra"
)

var replayPath string

var runCmd = &cobra.Command{
	Use:     "run",
	Short:   "Start the scan loop daemon",
	GroupID: "sensor",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		runID, err := idgen.Generate()
		if err != nil {
			return err
		}

		// A fresh salt epoch. Failure here means the randomness source
		// is broken; running with a guessable salt is not an option.
		epoch, err := anonymize.NewEpoch(cfg.RotationPeriod(), time.Now())
		if err != nil {
			return err
		}

		store := storage.NewManager(cfg.Storage.DataDir, cfg.Storage.MountRoots, logger)
		store.WriteReadme()
		if mount, ok := store.Removable(); ok {
			logger.Info("removable drive in use", "mount", mount)
		}

		// Persistence sinks. The JSONL day file is always on; Postgres
		// joins it when configured.
		sinks := []sink.Sink{
			sink.NewJSONLSink(func() (string, error) { return store.DataDir("raw") }, logger),
		}
		if cfg.Sink.PostgresURL != "" {
			pg, err := sink.NewPostgresSink(cfg.Sink.PostgresURL)
			if err != nil {
				return err
			}
			sinks = append(sinks, pg)
			logger.Info("postgres sink enabled")
		}
		defer func() {
			for _, dst := range sinks {
				if err := dst.Close(); err != nil {
					logger.Error("closing sink", "err", err)
				}
			}
		}()

		var publisher events.Publisher
		if cfg.Events.NATSURL != "" {
			pub, err := events.NewNATSPublisher(cfg.Events.NATSURL)
			if err != nil {
				return err
			}
			publisher = pub
			logger.Info("events enabled", "nats_url", cfg.Events.NATSURL)
		} else {
			publisher = events.NoopPublisher{}
			logger.Info("events disabled (events.nats_url not set)")
		}
		defer func() {
			if err := publisher.Close(); err != nil {
				logger.Error("closing publisher", "err", err)
			}
		}()

		var scanner scan.Scanner
		if replayPath != "" {
			sweeps, err := scan.LoadScript(replayPath)
			if err != nil {
				return err
			}
			scanner = scan.NewScriptScanner(sweeps...)
			logger.Info("replaying scripted sweeps", "path", replayPath, "sweeps", len(sweeps))
		} else {
			scanner = scan.NewExecScanner(cfg.Scan.Command, cfg.ScanDuration(), logger)
		}

		led := ledger.New(ledger.Options{
			AbsenceTimeout:      cfg.AbsenceTimeout(),
			StationaryThreshold: cfg.StationaryThreshold(),
			MinSignalStrength:   cfg.Tracking.MinSignalStrength,
		})

		sched := pipeline.NewScheduler(epoch, led, scanner, sinks, publisher, logger, pipeline.Options{
			RunID:        runID,
			ScanInterval: cfg.ScanInterval(),
			ScanDuration: cfg.ScanDuration(),
			Gate:         pipeline.Gate{LogEmptyCycles: cfg.Logging.LogEmptyCycles},
		})

		// Archive scheduler, when an S3 bucket is configured.
		var archiver *archive.Scheduler
		if cfg.Archive.S3Bucket != "" {
			rawDir, err := store.DataDir("raw")
			if err != nil {
				return err
			}
			dest, err := archive.NewS3Destination(context.Background(),
				cfg.Archive.S3Bucket, cfg.Archive.S3Prefix,
				cfg.Archive.S3Region, cfg.Archive.S3Endpoint)
			if err != nil {
				return err
			}
			archiver = archive.NewScheduler(rawDir, dest, cfg.ArchiveInterval(), logger)
			archiver.Start()
			logger.Info("archive scheduler started",
				"bucket", cfg.Archive.S3Bucket, "interval", cfg.ArchiveInterval())
		}

		// HTTP status API, when an address is configured.
		var httpServer *http.Server
		if cfg.API.Addr != "" {
			httpServer = &http.Server{
				Addr:    cfg.API.Addr,
				Handler: server.New(sched).Handler(),
			}
			go func() {
				logger.Info("status API listening", "addr", cfg.API.Addr)
				if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Error("status API error", "err", err)
				}
			}()
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		runErr := sched.Run(ctx)
		if runErr != nil {
			logger.Error("scan loop halted", "err", runErr)
		}

		// Graceful shutdown, inner components first.
		if archiver != nil {
			archiver.Stop()
			logger.Info("archive scheduler stopped")
		}
		if httpServer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("status API shutdown error", "err", err)
			}
			logger.Info("status API stopped")
		}

		return runErr
	},
}

func init() {
	runCmd.Flags().StringVar(&replayPath, "replay", "", "replay sweeps from a script file instead of scanning")
}
