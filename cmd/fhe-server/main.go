// Command fhe-server serves homomorphic key generation, encryption,
// evaluation and decryption over HTTP and, optionally, NATS.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Hermetic-Labs/hermetic-fhe/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type flags struct {
	configPath   string
	logLevel     string
	httpAddr     string
	metricsAddr  string
	natsURL      string
	queueBackend string
	redisAddr    string
	computeSlots int
	jobRunners   int
}

func newRootCmd() *cobra.Command {
	var f flags

	root := &cobra.Command{
		Use:           "fhe-server",
		Short:         "Serve fully homomorphic encryption over HTTP and NATS",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(f, cmd.Flags())
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&f.configPath, "config", "c", "", "path to a TOML config file")
	pf.StringVar(&f.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	pf.StringVar(&f.httpAddr, "http-addr", ":8080", "HTTP API listen address")
	pf.StringVar(&f.metricsAddr, "metrics-addr", "", "separate metrics listen address (default: serve on the API listener)")
	pf.StringVar(&f.natsURL, "nats-url", "", "NATS server URL; enables the NATS transport")
	pf.StringVar(&f.queueBackend, "queue", config.QueueMemory, "job queue backend (memory, redis)")
	pf.StringVar(&f.redisAddr, "redis-addr", "localhost:6379", "Redis address for the redis queue backend")
	pf.IntVar(&f.computeSlots, "compute-slots", 0, "concurrent cryptographic operations (0 = GOMAXPROCS)")
	pf.IntVar(&f.jobRunners, "job-runners", 4, "asynchronous job runners")

	root.AddCommand(newConfigCmd(&f))
	return root
}

func newConfigCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as TOML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*f, cmd.Flags())
			if err != nil {
				return err
			}
			return config.Write(cmd.OutOrStdout(), cfg)
		},
	}
}

// loadConfig reads the config file and applies the flags the user set.
func loadConfig(f flags, set *pflag.FlagSet) (config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return config.Config{}, err
	}

	if set.Changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if set.Changed("http-addr") {
		cfg.HTTP.Addr = f.httpAddr
	}
	if set.Changed("metrics-addr") {
		cfg.Metrics.Addr = f.metricsAddr
	}
	if set.Changed("nats-url") {
		cfg.NATS.Enabled = f.natsURL != ""
		cfg.NATS.URL = f.natsURL
	}
	if set.Changed("queue") {
		cfg.Queue.Backend = f.queueBackend
	}
	if set.Changed("redis-addr") {
		cfg.Queue.Redis.Addr = f.redisAddr
	}
	if set.Changed("compute-slots") {
		cfg.Worker.ComputeSlots = f.computeSlots
	}
	if set.Changed("job-runners") {
		cfg.Worker.JobRunners = f.jobRunners
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:       zap.NewAtomicLevelAt(lvl),
		Development: false,
		Encoding:    "json",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	return cfg.Build()
}
