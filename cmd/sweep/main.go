package main

import (
	"context"
	"flag"
	"os"
	"time"

	"innkeep/internal/events"
	overstayrepo "innkeep/internal/overstay/repository"
	overstayservice "innkeep/internal/overstay/service"
	sweeprepo "innkeep/internal/sweep/repository"
	sweepservice "innkeep/internal/sweep/service"
	"innkeep/pkg/config"
	"innkeep/pkg/kafka"
	"innkeep/pkg/postgres"
)

const JobName = "innkeep-sweep"

const jobTimeout = 10 * time.Minute

func main() {
	dryRun := flag.Bool("dry-run", false, "report candidates without mutating anything")
	batchSize := flag.Int("batch-size", 0, "override configured sweep batch size")
	skipOverstay := flag.Bool("skip-overstay", false, "skip the overstay detection pass")
	flag.Parse()

	cfg := config.Load(JobName)

	size := cfg.SweepBatchSize
	if *batchSize > 0 {
		size = *batchSize
	}

	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	db, err := postgres.Connect(postgres.Config{
		DSN:         cfg.DatabaseURL,
		ConnTimeout: cfg.DatabaseConnTimeout,
	})
	if err != nil {
		cfg.Log.Fatal("Failed to connect to Postgres", "error", err)
	}
	defer db.Close()

	publisher := initPublisher(cfg)
	sweeper := sweepservice.NewSweepService(sweeprepo.NewPostgresSweepRepository(db), publisher, size, cfg.Log)
	now := time.Now().UTC()

	if *dryRun {
		report, err := sweeper.DryRun(ctx, now)
		if err != nil {
			cfg.Log.Error("Dry run failed", "error", err)
			os.Exit(1)
		}
		cfg.Log.Info("Dry run: rows a sweep would touch",
			"would_expire", report.Expired,
			"would_cancel_drafts", report.DraftsCancelled,
		)
		return
	}

	report, err := sweeper.Run(ctx, now)
	if err != nil {
		cfg.Log.Error("Sweep failed", "error", err)
		os.Exit(1)
	}
	cfg.Log.Info("Sweep finished",
		"expired", report.Expired,
		"drafts_cancelled", report.DraftsCancelled,
		"batches", report.Batches,
	)

	if *skipOverstay {
		return
	}

	detector := overstayservice.NewOverstayService(
		overstayrepo.NewPostgresIncidentRepository(db),
		publisher,
		cfg.HotelLocation(),
		cfg.CheckoutHour,
		cfg.Log,
	)
	detection, err := detector.RunDetection(ctx, now)
	if err != nil {
		cfg.Log.Error("Overstay detection failed", "error", err)
		os.Exit(1)
	}
	cfg.Log.Info("Overstay detection finished",
		"scanned", detection.Scanned,
		"detected", detection.Detected,
	)
}

func initPublisher(cfg *config.Config) events.Publisher {
	if len(cfg.KafkaBrokers) == 0 {
		return events.NewNoopPublisher()
	}

	producer, err := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaEventTopic, cfg.KafkaDLQTopic)
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka producer", "error", err)
	}
	return events.NewKafkaPublisher(producer, JobName, cfg.Log)
}
