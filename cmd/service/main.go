package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"qualtrack/internal/config"
	"qualtrack/internal/infrastructure/logger"
	"qualtrack/internal/service"
)

func main() {
	install := flag.Bool("install", false, "Install Windows service")
	uninstall := flag.Bool("uninstall", false, "Uninstall Windows service")
	start := flag.Bool("start", false, "Start the service")
	stop := flag.Bool("stop", false, "Stop the service")
	status := flag.Bool("status", false, "Show service state, signing certificates and document folders")
	debug := flag.Bool("debug", false, "Run in debug/console mode")
	version := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *version {
		fmt.Printf("QualTrack Signing Service\n")
		fmt.Printf("Version: %s\n", config.Version)
		os.Exit(0)
	}

	exePath, err := os.Executable()
	if err != nil {
		log.Fatal(err)
	}

	// config.yaml is looked up next to the executable
	if err := os.Chdir(filepath.Dir(exePath)); err != nil {
		log.Printf("Warning: could not change to executable directory: %v", err)
	}

	cfg, cfgErr := config.NewConfig()
	svcCfg := config.Defaults().Service
	if cfgErr == nil {
		svcCfg = cfg.Service
	}

	switch {
	case *install:
		if cfgErr != nil {
			log.Printf("Warning: config not loaded, installing with default service settings: %v", cfgErr)
		}
		if err := service.InstallService(exePath, svcCfg); err != nil {
			log.Fatalf("Failed to install service: %v", err)
		}
		fmt.Printf("Service %s installed successfully\n", svcCfg.Name)

		if err := service.StartService(svcCfg); err != nil {
			log.Printf("Warning: Failed to start service: %v", err)
			fmt.Println("You may need to start the service manually")
		} else {
			fmt.Println("Service started")
		}

	case *uninstall:
		_ = service.StopService(svcCfg)

		if err := service.UninstallService(svcCfg); err != nil {
			log.Fatalf("Failed to uninstall service: %v", err)
		}
		fmt.Println("Service uninstalled successfully")

	case *start:
		if err := service.StartService(svcCfg); err != nil {
			log.Fatalf("Failed to start service: %v", err)
		}
		fmt.Println("Service started")

	case *stop:
		if err := service.StopService(svcCfg); err != nil {
			log.Fatalf("Failed to stop service: %v", err)
		}
		fmt.Println("Service stopped")

	case *status:
		if cfgErr != nil {
			log.Fatalf("Failed to load config: %v", cfgErr)
		}
		os.Exit(printStatus(cfg))

	default:
		isService, err := service.IsWindowsService()
		if err != nil {
			log.Printf("Warning: could not determine if running as service: %v", err)
		}

		// A missing config surfaces as a start failure from the graph itself.
		app := service.NewApplication(cfg)

		switch {
		case isService:
			err = service.RunService(false, app, svcCfg)
		case *debug:
			err = service.RunService(true, app, svcCfg)
		default:
			fmt.Println("QualTrack Signing Service")
			fmt.Printf("Version: %s\n", config.Version)
			fmt.Println("Running in console mode. Press Ctrl+C to stop.")
			fmt.Println()
			fmt.Println("Available commands:")
			fmt.Println("  -install    Install as Windows service")
			fmt.Println("  -uninstall  Uninstall Windows service")
			fmt.Println("  -start      Start the service")
			fmt.Println("  -stop       Stop the service")
			fmt.Println("  -status     Show service state and signing readiness")
			fmt.Println("  -debug      Run in debug mode")
			fmt.Println("  -version    Show version")
			fmt.Println()

			err = app.Run()
		}
		if err != nil {
			log.Fatalf("Service exited: %v", err)
		}
	}
}

// printStatus writes the readiness report and returns the process exit code
func printStatus(cfg *config.Config) int {
	zl, err := logger.NewLogger(cfg)
	if err != nil {
		zl = zap.NewNop()
	}
	defer zl.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	report, err := service.CheckReadiness(ctx, cfg, zl, time.Now())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Readiness check failed: %v\n", err)
		return 2
	}

	state, err := service.QueryState(cfg.Service)
	switch {
	case errors.Is(err, service.ErrUnsupported):
	case err != nil:
		report.ServiceState = fmt.Sprintf("unknown (%v)", err)
	default:
		report.ServiceState = state
	}

	report.Write(os.Stdout)
	if !report.CanSign() {
		return 1
	}
	return 0
}
