package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"supvisors/pkg/agent"
	"supvisors/pkg/config"
	"supvisors/pkg/engine"
	"supvisors/pkg/eventloop"
	"supvisors/pkg/log"
	"supvisors/pkg/metrics"
	"supvisors/pkg/types"
)

var (
	// Version information (set via ldflags during build)
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "supervisord",
	Short:   "supervisord is the distributed coordination engine of a supvisors cluster",
	Version: Version,
	RunE:    runDaemon,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("supervisord version %s\nCommit: %s\n", Version, Commit))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	rootCmd.Flags().String("rules", "", "Path to the rules file (required)")
	rootCmd.Flags().String("local", "", "This node's identifier (overrides the rules file's \"local\")")
	rootCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "Metrics/health HTTP listen address")
	rootCmd.Flags().Duration("tick-period", 2*time.Second, "Control-thread tick period")
	rootCmd.Flags().String("conciliation-strategy", "", "Conciliation strategy (SENICIDE, INFANTICIDE, USER, STOP, RESTART, RUNNING_FAILURE); overrides the rules file")
	_ = rootCmd.MarkFlagRequired("rules")

	cobra.OnInitialize(initLogging)
}

func initLogging() {
	logLevel, _ := rootCmd.Flags().GetString("log-level")
	logJSON, _ := rootCmd.Flags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	rulesPath, _ := cmd.Flags().GetString("rules")
	localOverride, _ := cmd.Flags().GetString("local")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	tickPeriod, _ := cmd.Flags().GetDuration("tick-period")
	conciliationStrategy, _ := cmd.Flags().GetString("conciliation-strategy")

	doc, err := config.Load(rulesPath)
	if err != nil {
		return fmt.Errorf("loading rules: %w", err)
	}

	local := doc.Local
	if localOverride != "" {
		local = localOverride
	}

	strategy := types.ConciliationStrategy(conciliationStrategy)
	if strategy == "" {
		strategy = types.ConciliationStrategy(doc.ConciliationStrategy)
	}

	// The demo/reference transport: every configured peer, including
	// this node, is backed by an in-memory pkg/agent.Fake. A real
	// deployment supplies an eventloop.Transport that dials each peer's
	// actual local supervisor agent; spec.md §1 treats that wiring as an
	// external collaborator out of this engine's scope.
	transport := newFakeCluster(doc.Nodes)

	e, err := engine.New(engine.Config{
		Local:                local,
		Nodes:                doc.Nodes,
		Rules:                doc,
		Transport:            transport,
		TickPeriod:           tickPeriod,
		SynchroTimeout:       doc.SynchroTimeout,
		IsolationDelay:       doc.IsolationDelay,
		ConciliationStrategy: strategy,
	}, time.Now())
	if err != nil {
		return fmt.Errorf("building engine: %w", err)
	}

	metrics.RegisterComponent("state", true, "registry initialized")
	metrics.RegisterComponent("fsm", true, "initialized")
	metrics.RegisterComponent("eventloop", true, "initialized")
	metrics.SetVersion(Version)

	collector := metrics.NewCollector(e)
	collector.Start()
	defer collector.Stop()

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", metrics.HealthHandler())
	mux.HandleFunc("/ready", metrics.ReadyHandler())
	mux.HandleFunc("/live", metrics.LivenessHandler())
	metricsServer := &http.Server{Addr: metricsAddr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("metrics server error: %w", err)
		}
	}()
	fmt.Printf("supervisord: node %q joining %d configured peers\n", local, len(doc.Nodes))
	fmt.Printf("metrics/health endpoint: http://%s/metrics\n", metricsAddr)

	e.Start(time.Now())
	fmt.Println("supervisord running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		fmt.Println("\nshutting down...")
	case err := <-errCh:
		fmt.Fprintf(os.Stderr, "\n%v\n", err)
	}

	e.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)

	fmt.Println("shutdown complete")
	return nil
}

// fakeCluster is the reference eventloop.Transport: one pkg/agent.Fake
// per configured node, and an always-authorized PeerViewOfLocal (no
// isolation in the single-process demo topology).
type fakeCluster struct {
	agents map[string]*agent.Fake
}

func newFakeCluster(identifiers []string) *fakeCluster {
	c := &fakeCluster{agents: make(map[string]*agent.Fake, len(identifiers))}
	for _, id := range identifiers {
		c.agents[id] = agent.NewFake()
	}
	return c
}

func (c *fakeCluster) Agent(identifier string) (agent.Agent, bool) {
	a, ok := c.agents[identifier]
	return a, ok
}

func (c *fakeCluster) PeerViewOfLocal(context.Context, string) (bool, error) {
	return false, nil
}

var _ eventloop.Transport = (*fakeCluster)(nil)
