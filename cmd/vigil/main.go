package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"vigil/cmd/vigil/ui"
	"vigil/internal/config"
	"vigil/internal/digest"
	"vigil/internal/engine"
	"vigil/internal/logging"
	"vigil/internal/watch"
)

var (
	workspace  string
	configPath string
	focusMode  string
	debug      bool
)

var rootCmd = &cobra.Command{
	Use:   "vigil",
	Short: "vigil - background initiative engine for a workspace",
	Long: `vigil watches a workspace, accumulates signals, and proposes work
when its quorum rules agree something needs attention. Proposals are
intent cards the operator can accept, defer, or dismiss; accepted cards
are decomposed into subtasks and executed under safety and energy
constraints.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runEngine()
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the initiative engine in the foreground",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runEngine()
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Write the default configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.DefaultConfig()
		if err := cfg.Save(configPath); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", configPath)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", ".", "workspace directory to watch")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", ".vigil/config.yaml", "configuration file path")
	rootCmd.PersistentFlags().StringVar(&focusMode, "focus", "", "focus mode override (pair, background, solo_batches)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(configCmd)
}

func runEngine() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if focusMode != "" {
		cfg.Focus.Mode = focusMode
	}
	if debug {
		cfg.Logging.Debug = true
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := logging.Initialize(workspace, cfg.LoggingSettings()); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	defer logging.CloseAll()

	dispatchCfg, err := cfg.DispatchSettings()
	if err != nil {
		return err
	}
	eng, err := engine.New(engine.Options{
		InitialEnergy: cfg.Engine.InitialEnergy,
		BusCapacity:   cfg.Engine.BusCapacity,
		Budget:        cfg.EnergyBudget(),
		Limits:        cfg.SafetyLimits(),
		Rules:         cfg.Rules,
		Dispatch:      dispatchCfg,
	})
	if err != nil {
		return err
	}
	if err := eng.SetMode(cfg.Focus.Mode); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nshutting down...")
		cancel()
	}()

	presenter := ui.NewConsolePresenter(os.Stdout)

	reporter := digest.NewReporter(eng, presenter)
	if err := reporter.SetInterval(cfg.DigestInterval()); err != nil {
		return err
	}
	go reporter.Run(ctx)

	if cfg.Watch.Enabled {
		watcher, err := watch.NewWatcher(workspace, cfg.Watch.Extensions, eng.HandleEvent)
		if err != nil {
			return fmt.Errorf("watch: %w", err)
		}
		watcher.Start(ctx)
		defer watcher.Stop()
	}

	go func() {
		for n := range eng.Notifications() {
			switch n.Kind {
			case engine.NotifyProposal:
				presenter.RenderCard(n.Card)
			case engine.NotifyResolution:
				presenter.RenderResolution(n.Card, n.Success)
			}
		}
	}()

	fmt.Printf("vigil watching %s (focus: %s)\n", workspace, cfg.Focus.Mode)
	return eng.Run(ctx)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
