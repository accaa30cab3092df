package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	errs "github.com/jmgilman/go/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"xclibtool/internal/cli"
	"xclibtool/internal/config"
	"xclibtool/internal/core"
	"xclibtool/internal/logging"
)

// main is the only place that reads the process argument vector; everything
// below receives it explicitly.
func main() {
	exitCode := cli.ExitFailure

	rootCmd := &cobra.Command{
		Use:   "xclibtool [libtool arguments]",
		Short: "libtool replacement that reuses cached static libraries",
		// Every argument belongs to libtool; cobra must not interpret any.
		DisableFlagParsing: true,
		SilenceErrors:      true,
		SilenceUsage:       true,
		Args:               cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			exitCode = run(cmd.Context(), args)
			return nil
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		cli.Report(os.Stderr, err, os.Args[1:])
		os.Exit(cli.ExitFailure)
	}
	os.Exit(exitCode)
}

func run(ctx context.Context, args []string) int {
	var logger *zap.Logger
	defer func() {
		if logger != nil {
			_ = logger.Sync()
		}
	}()

	// Configuration is only loaded once the invocation classified, so a
	// malformed command line is reported as such even with a broken config.
	factory := func(inv core.Invocation) (cli.BuildExecutor, error) {
		workDir, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		cfg, err := config.Load(workDir, config.EnvSource{})
		if err != nil {
			return nil, err
		}
		logger, err = logging.New(cfg.LogLevel, os.Stderr)
		if err != nil {
			return nil, errs.Wrap(err, errs.CodeInvalidConfig, "configuring logger")
		}
		logger.Debug("loaded config", zap.String("path", cfg.Path), zap.Bool("cache", cfg.Enabled))
		return cli.NewExecutorFactory(cfg, workDir, logger)(inv)
	}

	return cli.Main(ctx, args, factory, os.Stderr)
}
