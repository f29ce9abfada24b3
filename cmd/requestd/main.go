package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/hydromaas/hydromaas/pkg/auth"
	"github.com/hydromaas/hydromaas/pkg/config"
	"github.com/hydromaas/hydromaas/pkg/logger"
	"github.com/hydromaas/hydromaas/pkg/schedclient"
	"github.com/hydromaas/hydromaas/pkg/service"
	"github.com/hydromaas/hydromaas/pkg/session"
	"github.com/hydromaas/hydromaas/pkg/transport"
)

var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func main() {
	var (
		configFile  = flag.String("config", "configs/requestd.yaml", "Path to config file")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("hydromaas requestd\n")
		fmt.Printf("  Version:    %s\n", Version)
		fmt.Printf("  Git Commit: %s\n", GitCommit)
		fmt.Printf("  Build Time: %s\n", BuildTime)
		os.Exit(0)
	}

	cfg, err := config.LoadRequestServiceConfig(*configFile)
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

	log.Info("Starting request service",
		logger.String("version", Version),
		logger.String("config", *configFile),
	)

	sessions, err := session.Open(cfg.Sessions.StorePath, log)
	if err != nil {
		log.Fatal("Failed to open session store", logger.Error(err))
	}

	schedTransport, err := transport.NewClient(transport.ClientConfig{
		Host:   cfg.Scheduler.Host,
		Port:   cfg.Scheduler.Port,
		CAFile: cfg.Scheduler.CAFile,
	})
	if err != nil {
		log.Fatal("Failed to configure scheduler client", logger.Error(err))
	}
	sched := schedclient.New(schedTransport, time.Duration(cfg.Scheduler.RequestTimeout)*time.Second, log)

	// Capabilities are injected explicitly; the allow-all pair is the
	// bootstrap configuration until a real identity backend is wired in.
	sessionInit := auth.NewSessionInitHandler(auth.AllowAll{}, auth.AllowAll{}, sessions, log)

	handler := service.NewRequestService(sessionInit, sessions, sched, log)
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
	sv.OnShutdown(func() {
		if err := sessions.Close(); err != nil {
			log.Warn("Failed to close session store", logger.Error(err))
		}
	})

	if err := server.Listen(sv.Context()); err != nil {
		log.Fatal("Failed to start transport", logger.Error(err))
	}

	log.Info("Request service started",
		logger.String("host", cfg.Server.Host),
		logger.Int("port", cfg.Server.Port),
	)

	code := sv.Run(server)
	log.Info("Request service stopped")
	os.Exit(code)
}
