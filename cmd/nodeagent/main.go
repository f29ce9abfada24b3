package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/hydromaas/hydromaas/pkg/agent"
	"github.com/hydromaas/hydromaas/pkg/config"
	"github.com/hydromaas/hydromaas/pkg/logger"
	"github.com/hydromaas/hydromaas/pkg/transport"
)

var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func main() {
	var (
		configFile  = flag.String("config", "configs/nodeagent.yaml", "Path to config file")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("hydromaas nodeagent\n")
		fmt.Printf("  Version:    %s\n", Version)
		fmt.Printf("  Git Commit: %s\n", GitCommit)
		fmt.Printf("  Build Time: %s\n", BuildTime)
		os.Exit(0)
	}

	cfg, err := config.LoadNodeAgentConfig(*configFile)
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

	node, err := agent.DiscoverInventory(cfg.Node.ID)
	if err != nil {
		log.Fatal("Failed to discover local resources", logger.Error(err))
	}

	log.Info("Starting node agent",
		logger.String("version", Version),
		logger.String("node_id", node.NodeID),
		logger.Int("cpu_count", node.CPUCount),
		logger.Uint64("memory_bytes", node.MemoryBytes),
	)

	client, err := transport.NewClient(transport.ClientConfig{
		Host:   cfg.Scheduler.Host,
		Port:   cfg.Scheduler.Port,
		CAFile: cfg.Scheduler.CAFile,
	})
	if err != nil {
		log.Fatal("Failed to configure scheduler client", logger.Error(err))
	}

	reporter := agent.NewReporter(
		node,
		client,
		time.Duration(cfg.Agent.HeartbeatInterval)*time.Second,
		time.Duration(cfg.Agent.RetryInterval)*time.Second,
		log,
	)

	sv := transport.NewSupervisor(log, 5*time.Second)

	done := make(chan struct{})
	go func() {
		reporter.Run(sv.Context())
		close(done)
	}()
	sv.OnShutdown(func() { <-done })

	code := sv.Run()
	log.Info("Node agent stopped")
	os.Exit(code)
}
