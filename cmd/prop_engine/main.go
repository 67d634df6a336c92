package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"frizo/prop_engine/internal/collateral"
	"frizo/prop_engine/internal/common"
	"frizo/prop_engine/internal/config"
	"frizo/prop_engine/internal/events"
	"frizo/prop_engine/internal/feed"
	"frizo/prop_engine/internal/logger"
	"frizo/prop_engine/internal/qualification"
	"frizo/prop_engine/internal/version"
	"frizo/prop_engine/pkg/utils"
)

func main() {
	// Command line flags
	var (
		showVersion = flag.Bool("version", false, "Show version information")
		showHelp    = flag.Bool("help", false, "Show help information")
		healthCheck = flag.Bool("health-check", false, "Perform health check")
		rulesFile   = flag.String("rules", "", "Path to YAML rule set (overrides RULES_PATH)")
		logLevel    = flag.String("log-level", "", "Log level (debug, info, warn, error)")
	)
	flag.Parse()

	// Handle version flag
	if *showVersion {
		fmt.Println(version.String())
		os.Exit(0)
	}

	// Handle help flag
	if *showHelp {
		fmt.Printf("Prop Engine %s\n\n", version.Short())
		fmt.Println("Usage:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	// Handle health check
	if *healthCheck {
		fmt.Println("OK")
		os.Exit(0)
	}

	// Load configuration
	cfg := config.Load()

	// Override log level from command line
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *rulesFile != "" {
		cfg.RulesPath = *rulesFile
	}

	// Initialize logger
	log := logger.New(cfg.LogLevel)
	logger.SetDefault(log)

	log.Info("Starting Prop Engine",
		"version", version.Short(),
		"environment", cfg.Environment,
	)

	// Setup graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	bus := events.NewBus()
	stopAudit := startAuditLog(bus, log)

	if err := run(cfg, bus, log); err != nil {
		log.Error("Application error", "error", err)
		os.Exit(1)
	}

	log.Info("Prop Engine is running")

	// Wait for shutdown signal
	<-quit
	log.Info("Shutting down Prop Engine...")

	stopAudit()
	log.Info("Prop Engine stopped")
}

// run wires the engines: one feed registry, the shared collateral pool and
// the qualification manager, all publishing to the process-wide bus.
func run(cfg *config.Config, bus *events.Bus, log *logger.Logger) error {
	rules, err := loadRules(cfg)
	if err != nil {
		return err
	}
	qualRules, err := rules.QualificationRules()
	if err != nil {
		return err
	}

	adminKey := os.Getenv("ADMIN_KEY")
	if adminKey == "" {
		adminKey = common.GenerateUUID("adm")
		log.Warn("ADMIN_KEY not set, generated ephemeral admin key")
	}

	registry, err := feed.NewRegistry(adminKey)
	if err != nil {
		return err
	}

	feedCfg, err := rules.FeedConfig("BTCUSDT", authorizedSources(), cfg.FeedHistory)
	if err != nil {
		return err
	}
	btc, err := feed.New(feedCfg, bus)
	if err != nil {
		return err
	}
	if err := registry.Register(adminKey, btc); err != nil {
		return err
	}

	poolCfg, err := rules.PoolParams()
	if err != nil {
		return err
	}
	pool, err := collateral.NewPool(poolCfg.TotalCollateral,
		poolCfg.MaxExposureRatioBps, poolCfg.MinCollateralRatioBps, bus)
	if err != nil {
		return err
	}

	manager, err := qualification.NewManager(adminKey, registry, qualification.DisabledIssuer{}, bus, log)
	if err != nil {
		return err
	}

	log.Info("engines wired",
		"rule_set", rules.Name,
		"rule_version", rules.Version,
		"virtual_balance", qualRules.VirtualBalance,
		"pool_collateral", pool.TotalCollateral(),
		"evaluations", manager.Count(),
	)
	return nil
}

func loadRules(cfg *config.Config) (*config.RuleSet, error) {
	if cfg.RulesPath == "" {
		return config.DefaultRuleSet(), nil
	}
	return config.LoadRuleSet(cfg.RulesPath)
}

func authorizedSources() []string {
	if v := os.Getenv("FEED_SOURCES"); v != "" {
		return utils.Map(strings.Split(v, ","), strings.TrimSpace)
	}
	return []string{"oracle-primary"}
}

// startAuditLog drains the bus onto the structured log until the returned
// stop function is called.
func startAuditLog(bus *events.Bus, log *logger.Logger) func() {
	ch := bus.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for evt := range ch {
			log.Info("event",
				"id", evt.ID, "kind", string(evt.Kind),
				"account", evt.AccountID, "symbol", evt.Symbol)
		}
	}()
	return func() {
		bus.Unsubscribe(ch)
		<-done
	}
}
