package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/hydromaas/hydromaas/pkg/config"
	"github.com/hydromaas/hydromaas/pkg/logger"
	"github.com/hydromaas/hydromaas/pkg/models"
	"github.com/hydromaas/hydromaas/pkg/scheduler"
	"github.com/hydromaas/hydromaas/pkg/service"
	"github.com/hydromaas/hydromaas/pkg/transport"
)

var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func main() {
	var (
		configFile  = flag.String("config", "configs/schedulerd.yaml", "Path to config file")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("hydromaas schedulerd\n")
		fmt.Printf("  Version:    %s\n", Version)
		fmt.Printf("  Git Commit: %s\n", GitCommit)
		fmt.Printf("  Build Time: %s\n", BuildTime)
		os.Exit(0)
	}

	cfg, err := config.LoadSchedulerServiceConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	log.Info("Starting scheduler service",
		logger.String("version", Version),
		logger.String("config", *configFile),
	)

	resources := scheduler.NewResourceManager(log)
	for _, n := range cfg.Nodes.Static {
		resources.RegisterNode(models.ComputeNode{
			NodeID:      n.NodeID,
			Hostname:    n.Hostname,
			CPUCount:    n.CPUCount,
			MemoryBytes: n.MemoryBytes,
		})
	}

	sched := scheduler.NewScheduler(resources, scheduler.Defaults{
		CPUs:        cfg.Jobs.DefaultCPUs,
		MemoryBytes: cfg.Jobs.DefaultMemoryBytes,
	}, log)

	handler := service.NewSchedulerService(sched, resources, log)
	server := transport.NewServer(transport.ServerConfig{
		Host:     cfg.Server.Host,
		Port:     cfg.Server.Port,
		CertFile: cfg.Server.CertFile,
		KeyFile:  cfg.Server.KeyFile,
	}, service.NewLoop(handler, log), log)

	grace := time.Duration(cfg.Shutdown.GracePeriod) * time.Second
	if grace == 0 {
		grace = 10 * time.Second
	}
	sv := transport.NewSupervisor(log, grace)

	// Agent-registered nodes go inactive when their heartbeats stop.
	heartbeatTimeout := time.Duration(cfg.Nodes.HeartbeatTimeout) * time.Second
	if heartbeatTimeout == 0 {
		heartbeatTimeout = 60 * time.Second
	}
	sweepInterval := time.Duration(cfg.Nodes.SweepInterval) * time.Second
	if sweepInterval == 0 {
		sweepInterval = 15 * time.Second
	}
	resources.StartStaleSweep(sv.Context(), sweepInterval, heartbeatTimeout)

	if err := server.Listen(sv.Context()); err != nil {
		log.Fatal("Failed to start transport", logger.Error(err))
	}

	log.Info("Scheduler service started",
		logger.String("host", cfg.Server.Host),
		logger.Int("port", cfg.Server.Port),
		logger.Int("static_nodes", len(cfg.Nodes.Static)),
	)

	code := sv.Run(server)
	log.Info("Scheduler service stopped")
	os.Exit(code)
}
