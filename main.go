package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"dexflow/config"
	"dexflow/internal/channel"
	"dexflow/logger"
	"dexflow/processor"
	"dexflow/reader/dexscreener"
	"dexflow/writer"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")

	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	env := config.AppEnvironment()

	log.WithFields(logger.Fields{
		"service":     cfg.Dexflow.Name,
		"version":     cfg.Dexflow.Version,
		"environment": env,
	}).Info("starting dexflow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, 30*time.Second)
	}
	if cfg.Storage.S3.Enabled {
		logger.InitCloudWatch(cfg.Storage.S3.Region, "Dexflow", "Dexflow")
	}

	channels := channel.NewChannels(
		cfg.Channels.RawBuffer,
		cfg.Channels.ProcessedBuffer,
	)
	defer channels.Close()

	channels.StartMetricsReporting(ctx)

	readers := make([]*dexscreener.Reader, 0, len(cfg.Source.Targets))
	for _, target := range cfg.Source.Targets {
		readers = append(readers, dexscreener.NewReader(cfg, target, channels))
	}

	decoder := processor.NewDecoder(cfg, channels)

	// Every enabled writer gets its own feed of the decoded pair batches.
	// A shared channel would split batches between writers instead of
	// duplicating them.
	pairsFeeds := 0
	if cfg.Storage.S3.Enabled {
		pairsFeeds++
	}
	if cfg.Storage.Kafka.Enabled {
		pairsFeeds++
	}
	if cfg.Writer.File.Enabled {
		pairsFeeds++
	}
	fanout := newPairsFanout(ctx, channels.Pairs.Norm, pairsFeeds, cfg.Channels.ProcessedBuffer, log)

	var pairsWriter *writer.PairsWriter
	var kafkaWriter *writer.KafkaWriter
	var fileWriter *writer.FileWriter

	if cfg.Storage.S3.Enabled {
		pairsWriter, err = writer.NewPairsWriter(cfg, fanout.next())
		if err != nil {
			log.WithError(err).Error("failed to create S3 writer")
			if config.IsProductionLike(env) {
				os.Exit(1)
			}
			log.Warn("continuing without S3 writer")
		}
	} else {
		log.WithComponent("main").Info("S3 storage disabled; skipping parquet writer")
	}

	if cfg.Storage.Kafka.Enabled {
		kafkaWriter, err = writer.NewKafkaWriter(cfg, fanout.next())
		if err != nil {
			log.WithError(err).Error("failed to create kafka writer")
			if config.IsProductionLike(env) {
				os.Exit(1)
			}
			log.Warn("continuing without kafka writer")
		}
	}

	if cfg.Writer.File.Enabled {
		fileWriter, err = writer.NewFileWriter(cfg, fanout.next(), channels.OHLC.Norm)
		if err != nil {
			log.WithError(err).Error("failed to create file writer")
			os.Exit(1)
		}
	}

	var wg sync.WaitGroup

	for _, r := range readers {
		wg.Add(1)
		go func(reader *dexscreener.Reader) {
			defer wg.Done()
			if err := reader.Start(ctx); err != nil {
				log.WithError(err).Warn("reader failed to start")
			}
		}(r)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := decoder.Start(ctx); err != nil {
			log.WithError(err).Warn("decoder failed to start")
		}
	}()

	if pairsWriter != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := pairsWriter.Start(ctx); err != nil {
				log.WithError(err).Warn("s3 writer failed to start")
			}
		}()
	}
	if kafkaWriter != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := kafkaWriter.Start(ctx); err != nil {
				log.WithError(err).Warn("kafka writer failed to start")
			}
		}()
	}
	if fileWriter != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fileWriter.Start(ctx); err != nil {
				log.WithError(err).Warn("file writer failed to start")
			}
		}()
	}

	// Watch for readers that exhaust their reconnect budget.
	fatal := make(chan error, len(readers))
	for _, r := range readers {
		go func(reader *dexscreener.Reader) {
			select {
			case err := <-reader.Fatal():
				fatal <- err
			case <-ctx.Done():
			}
		}(r)
	}

	time.Sleep(2 * time.Second)
	log.Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")
	case err := <-fatal:
		log.WithError(err).Error("stream terminally failed")
	}

	log.Info("starting graceful shutdown")
	cancel()

	if pairsWriter != nil {
		log.Info("stopping S3 writer")
		pairsWriter.Stop()
	}
	if kafkaWriter != nil {
		log.Info("stopping kafka writer")
		kafkaWriter.Stop()
	}
	if fileWriter != nil {
		log.Info("stopping file writer")
		fileWriter.Stop()
	}

	log.Info("stopping decoder")
	decoder.Stop()

	log.Info("stopping readers")
	for _, r := range readers {
		r.Stop()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("graceful shutdown completed")
	case <-time.After(30 * time.Second):
		log.Warn("graceful shutdown timeout exceeded")
	}

	log.Info("dexflow stopped")
}
