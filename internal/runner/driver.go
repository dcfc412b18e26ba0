package runner

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/couchjs/internal/engine"
	"github.com/GriffinCanCode/couchjs/internal/infrastructure/monitoring"
)

var (
	ErrRead    = errors.New("failed to read script")
	ErrCompile = errors.New("failed to compile script")
	ErrExecute = errors.New("script execution failed")
)

// Driver runs script files, in order, in the root context.
type Driver struct {
	root    *engine.Context
	logger  *zap.Logger
	metrics *monitoring.Metrics
}

// New creates a driver for root.
func New(root *engine.Context, logger *zap.Logger, metrics *monitoring.Metrics) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{
		root:    root,
		logger:  logger,
		metrics: metrics,
	}
}

// Run expands args and runs each script. It stops at the first failure or
// quit call; a quit surfaces as *engine.ExitError.
func (d *Driver) Run(args []string) error {
	paths, err := ExpandPaths(args)
	if err != nil {
		return err
	}

	for _, path := range paths {
		if err := d.RunScript(path); err != nil {
			return err
		}
	}
	return nil
}

// RunScript reads, compiles and runs one script, then gives the engine a
// chance to finalize unreachable objects.
func (d *Driver) RunScript(path string) error {
	timer := monitoring.NewTimer(d.metrics)
	log := d.logger.With(zap.String("script", path))

	src, err := LoadScript(path)
	if err != nil {
		timer.Stop("read_error")
		return fmt.Errorf("%w: %s: %w", ErrRead, path, err)
	}

	prog, err := d.root.Compile(path, src)
	if err != nil {
		timer.Stop("compile_error")
		return fmt.Errorf("%w: %w", ErrCompile, err)
	}

	if _, err := d.root.Run(prog); err != nil {
		var exit *engine.ExitError
		if errors.As(err, &exit) {
			timer.Stop("quit")
			log.Debug("script called quit", zap.Int("code", exit.Code))
			return exit
		}
		timer.Stop("error")
		return fmt.Errorf("%w: %s: %w", ErrExecute, path, err)
	}

	elapsed := timer.Stop("ok")
	finalized := d.root.Engine().MaybeCollect()
	log.Debug("script complete",
		zap.Duration("duration", elapsed),
		zap.Int("finalized", finalized))
	return nil
}
