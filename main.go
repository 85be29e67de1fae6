package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/readguard/readguard/actuator"
	"github.com/readguard/readguard/database"
	"github.com/readguard/readguard/platform"
	"github.com/readguard/readguard/sigma"
	"github.com/readguard/readguard/tracker"
	"github.com/readguard/readguard/types"
	"github.com/readguard/readguard/web"
)

const version = "1.0.0"

// config holds every recognized option, resolved through viper so flags,
// READGUARD_* environment variables, and defaults all land in one place.
type config struct {
	TargetComm    string
	TargetFD      int64
	Retryable     []string
	StoreCapacity int
	SweepInterval time.Duration
	DataDir       string
	RulesDir      string
	ListenAddr    string
	WebEnabled    bool
	LogLevel      string
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "readguard",
		Short: "Terminate processes stuck in a read retry loop",
		Long: `readguard watches one executable's read() syscalls at the kernel boundary
and sends SIGINT to any process whose read of the monitored descriptor
comes back with EOF or a non-retryable error, before it can spin forever
retrying a call that will never succeed.`,
		Version: version,
		RunE:    run,
	}

	fl := rootCmd.PersistentFlags()
	fl.String("target", "", "Executable name (comm) to monitor (required)")
	fl.Int64("fd", 0, "File descriptor treated as the monitored input")
	fl.StringSlice("retryable-errnos", []string{"EINTR", "EAGAIN"}, "Errnos treated as retryable read outcomes")
	fl.Int("store-capacity", tracker.DefaultCapacity, "Maximum tracked threads before state drops")
	fl.Duration("sweep-interval", time.Minute, "Stale state sweep interval (0 disables)")
	fl.String("data-dir", "data", "Directory for the detection database")
	fl.String("rules-dir", "", "Directory of Sigma rules to match detections against (empty disables)")
	fl.String("listen", "localhost:8080", "Status server listen address")
	fl.Bool("web-enabled", true, "Enable the status server")
	fl.String("log-level", "info", "Log level (debug, info, warn, error)")

	// Flags and READGUARD_* environment variables resolve through viper;
	// the replacer maps dashed flag names to underscored env names
	// (--sweep-interval <- READGUARD_SWEEP_INTERVAL).
	viper.SetEnvPrefix("READGUARD")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	viper.BindPFlags(fl)

	return rootCmd
}

// resolveConfig reads every setting through viper, so explicit flags win
// over environment variables, which win over defaults.
func resolveConfig() config {
	return config{
		TargetComm:    viper.GetString("target"),
		TargetFD:      viper.GetInt64("fd"),
		Retryable:     viper.GetStringSlice("retryable-errnos"),
		StoreCapacity: viper.GetInt("store-capacity"),
		SweepInterval: viper.GetDuration("sweep-interval"),
		DataDir:       viper.GetString("data-dir"),
		RulesDir:      viper.GetString("rules-dir"),
		ListenAddr:    viper.GetString("listen"),
		WebEnabled:    viper.GetBool("web-enabled"),
		LogLevel:      viper.GetString("log-level"),
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg := resolveConfig()

	// Two separable streams: routine output to stdout, anomaly records to
	// stderr, so redirecting one never buries the other.
	infoLog, diagLog := newLoggers(cfg.LogLevel)

	if cfg.TargetComm == "" {
		return fmt.Errorf("--target is required")
	}

	if err := platform.EnsureRoot(); err != nil {
		return err
	}

	retrySet, err := tracker.ParseErrnoSet(cfg.Retryable)
	if err != nil {
		return fmt.Errorf("invalid --retryable-errnos: %v", err)
	}

	db, err := database.NewDB(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %v", err)
	}
	defer db.Close()
	if err := platform.ChownDataDir(cfg.DataDir); err != nil {
		infoLog.WithError(err).Warn("could not hand data directory to invoking user")
	}

	runID, err := db.StartRun(cfg.TargetComm)
	if err != nil {
		return fmt.Errorf("failed to record run start: %v", err)
	}
	defer db.CloseRun(runID)

	var rules *sigma.Detector
	if cfg.RulesDir != "" {
		rules, err = sigma.NewDetector(cfg.RulesDir, diagLog)
		if err != nil {
			return fmt.Errorf("failed to initialize Sigma detector: %v", err)
		}
		defer rules.Close()
	}

	store := tracker.NewStore(cfg.StoreCapacity)
	act := actuator.New(diagLog, db, rules)
	classifier := tracker.NewClassifier(tracker.Config{
		TargetComm: cfg.TargetComm,
		TargetFD:   cfg.TargetFD,
		Retryable:  retrySet,
	}, store, act, diagLog)

	events := make(chan types.ReadEvent, 1024) // buffer to absorb bursts
	monitor, err := platform.NewMonitor(platform.MonitorConfig{TargetComm: cfg.TargetComm}, events, infoLog)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	monitorErr := make(chan error, 1)
	go func() {
		monitorErr <- monitor.Start()
	}()

	go func() {
		for ev := range events {
			classifier.HandleEvent(ev)
		}
	}()

	sweeper := tracker.NewSweeper(store, platform.ThreadAlive, cfg.SweepInterval, infoLog)
	go sweeper.Run(ctx)

	if cfg.WebEnabled {
		srv := web.NewServer(db, store, cfg.ListenAddr, infoLog)
		go func() {
			if err := srv.Start(ctx); err != nil {
				infoLog.WithError(err).Error("status server error")
			}
		}()
	}

	infoLog.WithFields(logrus.Fields{
		"version":   version,
		"target":    cfg.TargetComm,
		"fd":        cfg.TargetFD,
		"retryable": retrySet.String(),
	}).Info("readguard started")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sig:
		infoLog.WithField("signal", s.String()).Info("readguard shutting down")
	case err := <-monitorErr:
		if err != nil {
			return fmt.Errorf("kernel event subscription failed: %v", err)
		}
		infoLog.Info("event source closed, shutting down")
	}

	monitor.Stop()
	cancel()
	return nil
}

func newLoggers(logLevel string) (*logrus.Logger, *logrus.Logger) {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}

	infoLog := logrus.New()
	infoLog.SetOutput(os.Stdout)
	infoLog.SetLevel(level)
	infoLog.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	diagLog := logrus.New()
	diagLog.SetOutput(os.Stderr)
	diagLog.SetLevel(level)
	diagLog.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	return infoLog, diagLog
}
