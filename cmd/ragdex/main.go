package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/config"
	logpkg "github.com/kailas-cloud/ragdex/internal/logger"
	"github.com/kailas-cloud/ragdex/internal/version"
)

const usage = `usage: ragdex <command> [flags]

commands:
  build     chunk and embed the corpus, replace the index pair
  query     print the nearest records for a question
  answer    answer a question from retrieved context
  serve     run the HTTP API
  history   list recorded builds
  version   print build information

Run "ragdex <command> -h" for command flags.
`

// command is one CLI subcommand. args exclude the command name.
type command func(ctx context.Context, c *cli, args []string) error

var commands = map[string]command{
	"build":   runBuild,
	"query":   runQuery,
	"answer":  runAnswer,
	"serve":   runServe,
	"history": runHistory,
}

// cli carries the process streams shared by all commands.
type cli struct {
	stdout io.Writer
	stderr io.Writer
	logger *zap.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	name, rest := args[0], args[1:]
	switch name {
	case "version":
		fmt.Fprintln(stdout, version.String())
		return 0
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return 0
	}

	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", name, usage)
		return 2
	}

	c := &cli{stdout: stdout, stderr: stderr, logger: zap.NewNop()}
	defer func() { _ = c.logger.Sync() }()

	if err := cmd(ctx, c, rest); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		c.logger.Error("Command failed", zap.String("command", name), zap.Error(err))
		fmt.Fprintln(stderr, "ragdex:", err)
		return 1
	}
	return 0
}

// flags creates a subcommand flag set with the shared -config flag.
func (c *cli) flags(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	cfgPath := fs.String("config", "", "path to YAML config (default config/$ENV.yaml)")
	return fs, cfgPath
}

// setup loads configuration and installs the process logger into ctx.
func (c *cli) setup(ctx context.Context, cfgPath string) (context.Context, config.Config, error) {
	var (
		cfg config.Config
		err error
	)
	if cfgPath != "" {
		cfg, err = config.LoadFile(cfgPath)
	} else {
		cfg, err = config.Load(config.GetEnv())
	}
	if err != nil {
		return ctx, config.Config{}, err
	}

	logger, err := logpkg.NewLogger(config.GetEnv(), logpkg.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		return ctx, config.Config{}, fmt.Errorf("create logger: %w", err)
	}
	c.logger = logger

	logger.Debug("Configuration loaded",
		zap.String("version", version.Version),
		zap.String("env", config.GetEnv()),
		zap.String("index_path", cfg.IndexPath()),
		zap.String("meta_path", cfg.MetaPath()),
	)
	return logpkg.ContextWithLogger(ctx, logger), cfg, nil
}
