package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuemby/glassdome/pkg/config"
	"github.com/cuemby/glassdome/pkg/log"
	"github.com/cuemby/glassdome/pkg/metrics"
	"github.com/cuemby/glassdome/pkg/network"
	"github.com/cuemby/glassdome/pkg/orchestrator"
	"github.com/cuemby/glassdome/pkg/platform"
	"github.com/cuemby/glassdome/pkg/reconciler"
	"github.com/cuemby/glassdome/pkg/sparepool"
	"github.com/cuemby/glassdome/pkg/storage"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "glassdome",
	Short: "Glassdome - cyber range orchestrator",
	Long: `Glassdome provisions and tears down isolated VM-based cyber range
labs: logical networks, VMs, a hot spare pool for fast assignment, and a
background reconciler that keeps recorded state honest against the
platform.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Glassdome version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serveCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Glassdome core: hot spare pool, reconciler, and orchestrator",
	Long: `serve stands up the Glassdome core as a long-running process: it
opens the bolt store, starts the hot spare pool's maintenance loop and the
state reconciler, exposes a Prometheus /metrics endpoint, and blocks until
interrupted.

Deployment (LabSpec -> Deploy) is driven through the orchestrator
programmatically; this command has no HTTP/gRPC API surface of its own,
matching spec.md's scope (§1: core engine, not the outer interfaces).`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("data-dir", "./data", "Directory for the bolt database and platform adapter state")
	serveCmd.Flags().String("platform-instance", "glassdome", "Lima instance name this core manages")
	serveCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "Address for the Prometheus /metrics endpoint")
	serveCmd.Flags().String("ubuntu-ip-start", "10.10.0.10", "First IP in the ubuntu hot spare pool's range")
	serveCmd.Flags().String("ubuntu-ip-end", "10.10.0.250", "Last IP in the ubuntu hot spare pool's range")
	serveCmd.Flags().String("windows-ip-start", "10.10.1.10", "First IP in the windows10 hot spare pool's range")
	serveCmd.Flags().String("windows-ip-end", "10.10.1.250", "Last IP in the windows10 hot spare pool's range")
}

func runServe(cmd *cobra.Command, args []string) error {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	platformInstance, _ := cmd.Flags().GetString("platform-instance")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	ubuntuStart, _ := cmd.Flags().GetString("ubuntu-ip-start")
	ubuntuEnd, _ := cmd.Flags().GetString("ubuntu-ip-end")
	windowsStart, _ := cmd.Flags().GetString("windows-ip-start")
	windowsEnd, _ := cmd.Flags().GetString("windows-ip-end")

	cfg := config.Default()
	cfg.DataDir = dataDir

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	fmt.Println("✓ Store opened at", cfg.DataDir)
	metrics.SetVersion(Version)
	metrics.RegisterComponent("store", true, "ready")

	adapter := platform.NewLimaAdapter(cfg.DataDir)
	fmt.Println("✓ Platform adapter:", adapter.Name(), "instance:", platformInstance)

	poolConfigs := sparepool.DefaultPoolConfigs(platformInstance, ubuntuStart, ubuntuEnd, windowsStart, windowsEnd)
	pool := sparepool.New(store, adapter, poolConfigs)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := pool.Start(ctx); err != nil {
		return fmt.Errorf("start hot spare pool: %w", err)
	}
	metrics.RegisterComponent("spare_pool", true, "ready")
	fmt.Println("✓ Hot spare pool started")

	recon := reconciler.New(store, map[string]platform.Adapter{adapter.Name(): adapter})
	recon.Start(ctx)
	metrics.RegisterComponent("reconciler", true, "ready")
	fmt.Println("✓ State reconciler started")

	allocator := network.NewAllocator()
	lab := orchestrator.New(store, adapter, allocator, platformInstance)
	_ = lab // held for future callers (gRPC/HTTP surface is out of scope, §1)

	go func() {
		http.Handle("/metrics", metrics.Handler())
		http.Handle("/health", metrics.HealthHandler())
		http.Handle("/ready", metrics.ReadyHandler())
		http.Handle("/live", metrics.LivenessHandler())
		if err := http.ListenAndServe(metricsAddr, nil); err != nil {
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()
	fmt.Printf("✓ Metrics endpoint: http://%s/metrics\n", metricsAddr)
	fmt.Printf("✓ Health endpoints: http://%s/health, /ready, /live\n", metricsAddr)

	fmt.Println()
	fmt.Println("Glassdome core is running. Press Ctrl+C to stop.")
	fmt.Println()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	fmt.Println("\nShutting down...")
	recon.Stop()
	if err := pool.Stop(); err != nil {
		fmt.Printf("hot spare pool shutdown error: %v\n", err)
	}
	if err := store.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}

	fmt.Println("✓ Shutdown complete")
	return nil
}
