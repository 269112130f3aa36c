package commands

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/steering/content-steering/internal/bandit"
	"github.com/steering/content-steering/internal/config"
	"github.com/steering/content-steering/internal/feedbacklog"
	"github.com/steering/content-steering/internal/geoip"
	"github.com/steering/content-steering/internal/nodemonitor"
	"github.com/steering/content-steering/internal/oracle"
	"github.com/steering/content-steering/internal/steering"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the content steering HTTP service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe()
		},
	}

	var flags *pflag.FlagSet = cmd.Flags()
	flags.Var(&overrides.strategy, "strategy",
		"bandit strategy: epsilon_greedy, no_steering, random, ucb1, d_ucb, oracle_best_choice (default: $STEERING_STRATEGY)")
	flags.StringVar(&overrides.logSuffix, "log_suffix", "", "suffix appended to the feedback log filename")
	flags.BoolVar(&overrides.verbose, "verbose", false, "enable verbose logging")

	return cmd
}

func runServe() error {
	envCfg, err := config.LoadEnvConfig()
	if err != nil {
		fatalf("%v", err)
	}
	applyFlagOverrides(envCfg)
	if !config.IsValidStrategy(envCfg.Strategy) {
		fatalf("invalid --strategy %q", envCfg.Strategy)
	}

	runtimeCfg := config.NewRuntimeConfig(envCfg.Epsilon)

	lister, err := buildLister(envCfg)
	if err != nil {
		fatalf("building node lister: %v", err)
	}

	monitor := nodemonitor.New(lister, envCfg.MonitorInterval, envCfg.Verbose)
	monitor.Start()
	defer monitor.Stop()
	log.Println("node monitor started")

	latencyOracle := oracle.New(monitor, envCfg.OracleInterval, envCfg.Verbose)
	latencyOracle.Start()
	defer latencyOracle.Stop()
	log.Println("latency oracle started")

	selector, err := buildSelector(envCfg.Strategy, runtimeCfg, latencyOracle, envCfg.Verbose)
	if err != nil {
		fatalf("building selector: %v", err)
	}

	geoSvc, err := geoip.NewService(envCfg.GeoIPDBPath, envCfg.GeoIPUpdateSchedule, geoip.MMDBOpen)
	if err != nil {
		fatalf("building geoip service: %v", err)
	}
	defer geoSvc.Stop()

	logger, err := feedbacklog.Open(envCfg.LogDir, envCfg.Strategy, envCfg.LogSuffix)
	if err != nil {
		fatalf("opening feedback log: %v", err)
	}
	defer logger.Close()
	log.Printf("feedback log: %s", logger.Path())

	front := steering.NewFront(steering.Config{
		Nodes:      monitor,
		Oracle:     latencyOracle,
		Selector:   selector,
		Logger:     logger,
		GeoIP:      geoSvc,
		Strategy:   envCfg.Strategy,
		AdminToken: envCfg.AdminToken,
		MaxBody:    int64(envCfg.APIMaxBodyBytes),
		Verbose:    envCfg.Verbose,
	})

	addr := envCfg.ListenAddress + ":" + strconv.Itoa(envCfg.Port)
	serverErrCh := make(chan error, 1)
	go func() {
		log.Printf("content steering service listening on %s (strategy=%s)", addr, envCfg.Strategy)
		if err := front.ListenAndServe(addr); err != nil {
			serverErrCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		log.Printf("received signal %s, shutting down", sig)
	case err := <-serverErrCh:
		log.Printf("server error: %v, shutting down", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := front.Shutdown(ctx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	log.Println("content steering service stopped")
	return nil
}

func applyFlagOverrides(cfg *config.EnvConfig) {
	if overrides.strategy.value != "" {
		cfg.Strategy = overrides.strategy.value
	}
	if overrides.logSuffix != "" {
		cfg.LogSuffix = overrides.logSuffix
	}
	if overrides.verbose {
		cfg.Verbose = true
	}
}

func buildLister(cfg *config.EnvConfig) (nodemonitor.Lister, error) {
	if cfg.StaticNodesFile != "" {
		return nodemonitor.NewStaticLister(cfg.StaticNodesFile), nil
	}
	return nodemonitor.NewK8sLister("default", cfg.NetworkName)
}

func buildSelector(strategy string, runtimeCfg *config.RuntimeConfig, latencyOracle *oracle.Oracle, verbose bool) (bandit.Selector, error) {
	switch strategy {
	case "epsilon_greedy":
		return bandit.NewEpsilonGreedy(runtimeCfg.Epsilon), nil
	case "ucb1":
		return bandit.NewUCB1(), nil
	case "d_ucb":
		return bandit.NewDUCB(verbose), nil
	case "random":
		return bandit.NewRandom(), nil
	case "no_steering":
		return bandit.NewNoSteering(), nil
	case "oracle_best_choice":
		return bandit.NewOracleBest(latencyOracle)
	default:
		return nil, errUnknownStrategy(strategy)
	}
}

type errUnknownStrategy string

func (e errUnknownStrategy) Error() string { return "unknown strategy: " + string(e) }
