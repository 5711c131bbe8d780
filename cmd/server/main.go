// Package main provides the coordinator server entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"github.com/quillduel/quillduel/internal/app/aifill"
	"github.com/quillduel/quillduel/internal/app/scoring"
	"github.com/quillduel/quillduel/internal/app/sweeper"
	"github.com/quillduel/quillduel/internal/app/transition"
	"github.com/quillduel/quillduel/internal/domain/match"
	"github.com/quillduel/quillduel/internal/infra/config"
	"github.com/quillduel/quillduel/internal/infra/logger"
	"github.com/quillduel/quillduel/internal/store"
)

var (
	app        = kingpin.New("quillduel-server", "quillduel match coordination server")
	configPath = app.Flag("config", "Path to config file").Default("config/coordinator.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	// print-tiers command
	printTiersCmd = app.Command("print-tiers", "Print the rank tier duration table and exit")
)

func init() {
	app.Command("start", "Start the coordinator (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	loggerConfig := logger.Config{Output: "stdout", Level: "info"}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if command == printTiersCmd.FullCommand() {
		printTiers(cfg)
		return
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Coordinator error: %v", err)
		os.Exit(1)
	}
}

// run executes the main coordinator logic. Using a separate function
// ensures defer statements execute even when returning with an error.
func run(cfg *config.Config) error {
	st := store.New()
	defer st.Close()

	trigger := transition.New(st, cfg)
	if err := trigger.Start(); err != nil {
		return fmt.Errorf("failed to start transition trigger: %w", err)
	}
	defer trigger.Close()

	fallback := scoring.StaticScorer{Value: cfg.AI.FallbackScore, Feedback: "automated feedback"}
	filler := aifill.New(st, cfg, fallback)
	watcher := aifill.NewWatcher(filler, st)
	if err := watcher.Start(); err != nil {
		return fmt.Errorf("failed to start aifill watcher: %w", err)
	}
	defer watcher.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sweeper.New(st, cfg).Run(ctx)

	zlog.Info().Msg("Coordinator started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	zlog.Info().Msg("Received shutdown signal...")
	cancel()
	zlog.Info().Msg("Coordinator stopped")
	return nil
}

// printTiers prints the rank tier duration table.
func printTiers(cfg *config.Config) {
	fmt.Println("Rank tier phase durations (seconds):")
	tiers := []match.Tier{match.TierBronze, match.TierSilver, match.TierGold, match.TierPlatinum, match.TierDiamond, match.TierMaster}
	for _, t := range tiers {
		row := cfg.TierDurationsFor(t)
		fmt.Printf("  %-10s phase2=%-4d phase3=%d\n", t, row.Phase2Sec, row.Phase3Sec)
	}
	fmt.Printf("  %-10s phase1=%-4d phase2=%-4d phase3=%d\n", "(no rank)",
		cfg.Session.DefaultDurations.Phase1Sec,
		cfg.Session.DefaultDurations.Phase2Sec,
		cfg.Session.DefaultDurations.Phase3Sec)
}
