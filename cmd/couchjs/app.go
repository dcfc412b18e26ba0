package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/couchjs/internal/binding/couchhttp"
	"github.com/GriffinCanCode/couchjs/internal/config"
	"github.com/GriffinCanCode/couchjs/internal/engine"
	"github.com/GriffinCanCode/couchjs/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/couchjs/internal/logging"
	"github.com/GriffinCanCode/couchjs/internal/runner"
	"github.com/GriffinCanCode/couchjs/internal/transport"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitInstall = 2
)

type options struct {
	configFile  string
	stackSize   int64
	eval        bool
	http        bool
	testFuncs   bool
	uriFile     string
	baseURL     string
	logLevel    string
	dev         bool
	metricsFile string
}

// run executes the command line and returns the process exit code.
func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cmd := newRootCommand(stdin, stdout)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	if err := cmd.Execute(); err != nil {
		var exit *engine.ExitError
		if errors.As(err, &exit) {
			return exit.Code
		}
		fmt.Fprintf(stderr, "couchjs: %v\n", err)
		if errors.Is(err, couchhttp.ErrInstall) {
			return exitInstall
		}
		return exitFailure
	}
	return exitOK
}

func newRootCommand(stdin io.Reader, stdout io.Writer) *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:           "couchjs [flags] script...",
		Short:         "Run CouchDB JavaScript in an embedded engine",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := buildConfig(cmd, opts)
			if err != nil {
				return err
			}
			return execute(cfg, args, stdin, stdout)
		},
	}

	defaults := config.Default()
	flags := cmd.Flags()
	flags.Int64VarP(&opts.stackSize, "stack-size", "S", defaults.Engine.StackSize, "Root stack budget in bytes")
	flags.BoolVarP(&opts.eval, "eval", "E", false, "Permit sandboxed evaluation with evalcx")
	flags.BoolVarP(&opts.http, "http", "H", false, "Install the CouchHTTP class")
	flags.BoolVarP(&opts.testFuncs, "test-suite", "T", false, "Install test-suite functions (sleep)")
	flags.StringVarP(&opts.uriFile, "uri-file", "u", "", "File whose first line is the CouchHTTP base URL")
	flags.StringVar(&opts.baseURL, "base-url", "", "CouchHTTP base URL (the URI file wins)")
	flags.StringVar(&opts.configFile, "config", os.Getenv("COUCHJS_CONFIG_FILE"), "YAML or TOML configuration file")
	flags.StringVar(&opts.logLevel, "log-level", defaults.Logging.Level, "Log level (debug, info, warn, error)")
	flags.BoolVar(&opts.dev, "dev", false, "Human-readable development logging")
	flags.StringVar(&opts.metricsFile, "metrics-file", "", "Write Prometheus metrics to this file at exit")

	return cmd
}

// buildConfig layers defaults, environment, the config file and explicitly
// set flags, in that order.
func buildConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	if opts.configFile != "" {
		if err := config.LoadFile(cfg, opts.configFile); err != nil {
			return nil, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("stack-size") {
		cfg.Engine.StackSize = opts.stackSize
	}
	if flags.Changed("eval") {
		cfg.Sandbox.EvalEnabled = opts.eval
	}
	if flags.Changed("http") {
		cfg.HTTP.Enabled = opts.http
	}
	if flags.Changed("test-suite") {
		cfg.Test.Enabled = opts.testFuncs
	}
	if flags.Changed("uri-file") {
		cfg.HTTP.URIFile = opts.uriFile
	}
	if flags.Changed("base-url") {
		cfg.HTTP.BaseURL = opts.baseURL
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = opts.logLevel
	}
	if flags.Changed("dev") {
		cfg.Logging.Development = opts.dev
	}
	if flags.Changed("metrics-file") {
		cfg.Metrics.File = opts.metricsFile
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func execute(cfg *config.Config, scripts []string, stdin io.Reader, stdout io.Writer) error {
	base, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		OutputPaths: []string{"stderr"},
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = base.Sync() }()

	runID := uuid.NewString()
	logger := base.ForRun(runID)

	metrics := monitoring.NewMetrics()
	if cfg.Metrics.File != "" {
		defer func() {
			if werr := metrics.WriteTextfile(cfg.Metrics.File); werr != nil {
				logger.Warn("failed to write metrics", zap.String("file", cfg.Metrics.File), zap.Error(werr))
			}
		}()
	}

	e, err := engine.Initialize(engine.Options{
		Logger:            logger,
		Metrics:           metrics,
		Policy:            engine.NewPolicy(cfg.Sandbox.EvalEnabled),
		Stdout:            stdout,
		Stdin:             stdin,
		GCThreshold:       cfg.Engine.GCThreshold,
		SandboxStackBytes: cfg.Sandbox.StackSize,
		SandboxTimeout:    cfg.Sandbox.SandboxTimeout(),
		TestSupport:       cfg.Test.Enabled,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize engine: %w", err)
	}
	defer func() {
		if serr := e.Shutdown(); serr != nil {
			logger.Warn("engine shutdown failed", zap.Error(serr))
		}
	}()

	root, err := e.NewRootContext(cfg.Engine.StackSize)
	if err != nil {
		return fmt.Errorf("failed to create root context: %w", err)
	}
	defer func() { _ = root.Close() }()

	if err := root.InstallBuiltins(); err != nil {
		return fmt.Errorf("failed to install builtins: %w", err)
	}

	if cfg.HTTP.Enabled {
		if err := installHTTP(root, cfg.HTTP, logger, metrics); err != nil {
			return err
		}
	}

	logger.Debug("running scripts", zap.Strings("scripts", scripts))
	return runner.New(root, logger, metrics).Run(scripts)
}

func installHTTP(root *engine.Context, cfg config.HTTPConfig, logger *zap.Logger, metrics *monitoring.Metrics) error {
	baseURL, err := cfg.ResolveBaseURL()
	if err != nil {
		return fmt.Errorf("%w: %w", couchhttp.ErrInstall, err)
	}

	opts := transport.OptionsFromConfig(cfg)
	opts.Logger = logger
	opts.Metrics = metrics

	return couchhttp.Install(root, couchhttp.Options{
		Transport: transport.NewClient(opts),
		BaseURL:   baseURL,
	})
}
