package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"automation-service/internal/actuator"
	"automation-service/internal/api"
	"automation-service/internal/config"
	"automation-service/internal/db"
	"automation-service/internal/dispatch"
	"automation-service/internal/kafka"
	"automation-service/internal/ledger"
	"automation-service/internal/logging"
	"automation-service/internal/models"
	"automation-service/internal/notify"
	"automation-service/internal/runmode"
	"automation-service/internal/taskstore"
	"automation-service/internal/topology"
	"automation-service/internal/ws"
)

func main() {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Connect to database and bring the schema up
	dbConn, err := db.New(cfg.DB.DSN)
	if err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}
	defer dbConn.Close()
	if err := dbConn.Migrate(ctx); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	led := ledger.New(dbConn)

	// Topology registry, seeded from the database, audited to it
	topo := topology.NewRegistry(dbConn, func(e models.AuditEntry) {
		if err := dbConn.SaveAudit(context.Background(), e); err != nil {
			logger.Errorf("Audit write failed: %v", err)
		}
	})
	hosts, nodes, stations, err := dbConn.LoadTopology(ctx)
	if err != nil {
		log.Fatalf("Topology load failed: %v", err)
	}
	topo.Seed(hosts, nodes, stations)
	logger.Infof("Loaded topology: %d hosts, %d nodes, %d substations", len(hosts), len(nodes), len(stations))

	// Task store and run modes
	tasks := taskstore.New(topo, led, dbConn)
	defs, err := dbConn.LoadTasks(ctx)
	if err != nil {
		log.Fatalf("Task load failed: %v", err)
	}
	tasks.Seed(defs)
	logger.Infof("Loaded %d task definitions", len(defs))

	modes := runmode.New(tasks, dbConn)
	storedModes, err := dbConn.LoadRunModes(ctx)
	if err != nil {
		log.Fatalf("Run mode load failed: %v", err)
	}
	modes.Seed(storedModes)

	// Outbound actuation channel and push surfaces
	publisher := actuator.NewKafkaPublisher(cfg.Kafka.Broker, cfg.Kafka.ActuationTopic)
	defer publisher.Close()
	hub := ws.NewHub(logger)
	notifier := notify.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatIDs, cfg.Telegram.PerSecond, logger)

	// Dispatch coordinator
	coord := dispatch.New(tasks, modes, topo, led, publisher, hub, notifier, logger, dispatch.Config{
		Tick:             cfg.Dispatch.Tick,
		ActuationTimeout: cfg.Dispatch.ActuationTimeout,
		ExpireAfter:      cfg.Dispatch.ExpireAfter,
		Workers:          cfg.Dispatch.Workers,
	})
	coord.Start(ctx)
	defer coord.Stop()

	// Inbound event streams
	consumer := kafka.NewConsumer(cfg.Kafka.Broker, cfg.Kafka.GroupID,
		cfg.Kafka.ReadingsTopic, cfg.Kafka.ScenesTopic, coord, logger)
	consumer.Start(ctx)
	defer consumer.Close()

	// API server
	handler := api.NewHandler(tasks, modes, topo, led, coord, hub, notifier, dbConn, logger)
	router := api.NewRouter(handler, cfg)
	logger.Infof("Starting API server on %s", cfg.API.Port)
	if err := router.Run(cfg.API.Port); err != nil {
		logger.Errorf("API server failed: %v", err)
	}
}
