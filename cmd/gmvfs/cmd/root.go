package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string
	verbose    bool
	debug      bool
	logLevel   string
	assumeYes  bool
	showStats  bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "gmvfs",
	Short: "Browse and edit a GameMaker project through yy-boss",
	Long: `gmvfs talks to a yy-boss project server and exposes the project
as a tree of folders, resources and object events.

It starts the server for the single .yyp project found in the workspace
(or connects to a running one), lets you inspect the tree and performs
folder, resource and event edits, saving the project after each one.

Configuration is read from gmvfs.hcl in the current directory, or from
the file named by --config.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// ErrReported is returned by Execute when the failure has already been
// shown to the user.
var ErrReported = errors.New("error already reported")

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "configuration file (default ./gmvfs.hcl if present)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "debug output")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "", "log level (debug, info, warn, error); overrides the config file")
	rootCmd.PersistentFlags().BoolVarP(&assumeYes, "yes", "y", false, "answer yes to every confirmation")
	rootCmd.PersistentFlags().BoolVar(&showStats, "stats", false, "print command metrics to stderr on exit")
}

// GetVerbose returns the verbose flag value
func GetVerbose() bool {
	return verbose
}

// GetDebug returns the debug flag value
func GetDebug() bool {
	return debug
}

// setupLogger builds the process logger from the command line flags. The
// returned level can be adjusted once the config file has been read.
func setupLogger() (*zap.Logger, zap.AtomicLevel, error) {
	level := logLevel
	if level == "" {
		level = "info"
	}

	if GetDebug() {
		level = "debug"
	} else if GetVerbose() && level == "info" {
		level = "debug"
	}

	var zapLevel zap.AtomicLevel
	switch strings.ToLower(level) {
	case "debug":
		zapLevel = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn", "warning":
		zapLevel = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapLevel = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		zapLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	config := zap.NewProductionConfig()
	config.Level = zapLevel
	config.Development = GetDebug()
	config.Encoding = "console"
	config.EncoderConfig = zap.NewDevelopmentEncoderConfig()

	logger, err := config.Build()
	return logger, zapLevel, err
}

// applyConfiguredLevel uses the config file's level unless one of the log
// flags was given.
func applyConfiguredLevel(level zap.AtomicLevel, configured string) error {
	if logLevel != "" || GetDebug() || GetVerbose() || configured == "" {
		return nil
	}
	return level.UnmarshalText([]byte(configured))
}
