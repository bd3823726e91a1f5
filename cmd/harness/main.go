package main

import (
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go-ml.dev/pkg/harness/config"
	"go-ml.dev/pkg/harness/monitor"
	"go-ml.dev/pkg/harness/tuner"
	"go-ml.dev/pkg/zorros/zlog"
)

const stopTimeout = 5 * time.Second

var (
	configFile string
	textFile   string
	envFile    string
	logDir     string

	rootCmd = &cobra.Command{
		Use:          "harness",
		Short:        "Tune, train and evaluate a regression model while logging host resources",
		SilenceUsage: true,
		RunE:         run,
	}
)

func bindFlags(f *pflag.FlagSet) {
	f.StringVarP(&configFile, "config_file", "c", "config.yaml", "YAML configuration file")
	f.StringVarP(&textFile, "text_file", "t", "", "text file passed to the run")
	f.StringVar(&envFile, "env_file", ".env", "environment file")
	f.StringVar(&logDir, "log_dir", "log", "directory of log files")
}

func main() {
	bindFlags(rootCmd.Flags())
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	start := time.Now()
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return err
	}
	logger := zlog.Config{
		Name:      "harness",
		Verbose:   true,
		LogFile:   filepath.Join(logDir, "monitoring_"+start.Format("20060102-150405")+".log"),
		SentryDsn: os.Getenv("SENTRY_DSN"),
	}.Init()
	defer logger.Close()
	defer zlog.Info("Log closing.")

	zlog.Info("Program starting...")
	if wd, err := os.Getwd(); err == nil {
		zlog.Infof("system path: %v", wd)
	}
	if textFile != "" {
		zlog.Infof("text file: %v", textFile)
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		zlog.Error(err)
		return err
	}
	if err = config.LoadEnv(envFile); err != nil {
		zlog.Error(err)
		return err
	}
	zlog.Infof("model: %v", cfg.Model)
	kind, err := tuner.ParseKind(cfg.Model)
	if err != nil {
		zlog.Error(err)
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Monitoring {
		interval, err := config.LogInterval()
		if err != nil {
			zlog.Error(err)
			return err
		}
		zlog.Infof("Log interval: %v", interval)
		opts := []monitor.Option{}
		if cfg.MonitoringAddr != "" {
			reg := prometheus.NewRegistry()
			opts = append(opts, monitor.WithRegisterer(reg))
			go func() {
				if err := monitor.Serve(ctx, cfg.MonitoringAddr, reg); err != nil {
					zlog.Error(err)
				}
			}()
		}
		m, err := monitor.New(interval, opts...)
		if err != nil {
			zlog.Error(err)
			return err
		}
		m.Start()
		defer m.Stop(stopTimeout)
	} else {
		zlog.Info("Monitoring off")
	}

	if _, err = tuner.Run(ctx, cfg, kind); err != nil {
		if ctx.Err() != nil {
			zlog.Info("Interrupted. Program stopping.")
			return nil
		}
		zlog.Errorf("Exception: %v", err)
		return err
	}
	zlog.Infof("Job finished. Elapsed time: %.2f", time.Since(start).Seconds())
	return nil
}
