package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tsarna/gmvfs/pkg/gmvfs/config"
	"github.com/tsarna/gmvfs/pkg/gmvfs/o11y"
	"github.com/tsarna/gmvfs/pkg/gmvfs/ops"
	"github.com/tsarna/gmvfs/pkg/gmvfs/otel"
	"github.com/tsarna/gmvfs/pkg/gmvfs/protocol"
	"github.com/tsarna/gmvfs/pkg/gmvfs/session"
	"github.com/tsarna/gmvfs/pkg/gmvfs/vfs"
	"github.com/tsarna/gmvfs/pkg/gmvfs/workspace"
)

const (
	serviceName    = "gmvfs"
	serviceVersion = "0.1.0"
)

// app is one connected project: the session and everything layered on it.
type app struct {
	logger      *zap.Logger
	cfg         *config.Config
	projectPath string

	session *session.Session
	client  *protocol.Client
	tree    *vfs.Tree
	ops     *ops.Orchestrator
	host    *cliHost
	stats   *o11y.MemoryProvider

	out    io.Writer
	errOut io.Writer
}

// loadConfig reads the configuration named by --config, or gmvfs.hcl when
// it exists.
func loadConfig(logger *zap.Logger) (*config.Config, error) {
	builder := config.NewConfig().
		WithLogger(logger).
		WithEnviron(os.Environ())

	if configPath != "" {
		builder = builder.WithFile(configPath, false)
	} else {
		builder = builder.WithFile(config.DefaultFileName, true)
	}

	cfg, diags := builder.Build()
	if diags.HasErrors() {
		for _, diag := range diags {
			logger.Error("Configuration error", zap.String("diagnostic", diag.Error()))
		}
		return nil, fmt.Errorf("invalid configuration: %w", diags)
	}
	return cfg, nil
}

// openApp starts a session for the workspace project and wires the tree
// and the orchestrator to it. The caller must call close.
func openApp(cmd *cobra.Command) (*app, error) {
	logger, level, err := setupLogger()
	if err != nil {
		return nil, fmt.Errorf("failed to setup logger: %w", err)
	}

	cfg, err := loadConfig(logger)
	if err != nil {
		return nil, err
	}
	if err := applyConfiguredLevel(level, cfg.Log.Level); err != nil {
		logger.Warn("Ignoring configured log level", zap.String("level", cfg.Log.Level), zap.Error(err))
	}

	projectPath, err := workspace.FindProject(cfg.Workspace.Root, cfg.Workspace.Project)
	if err != nil && !cfg.Server.Remote() {
		return nil, err
	}

	ctx := cmd.Context()
	provider := otel.NewProvider(serviceName, serviceVersion)
	obs := provider.Config(serviceName, serviceVersion)

	var stats *o11y.MemoryProvider
	if showStats {
		stats = o11y.NewMemoryProvider(serviceName)
		obs.MetricsProvider = stats
	}

	monitor := session.MonitorFuncs{
		Open: func(ctx context.Context, s *session.Session, metadata protocol.ProjectMetadata) {
			logger.Debug("Project opened",
				zap.String("project", metadata.Name),
				zap.String("ide_version", metadata.IDEVersion))
		},
		UnexpectedShutdown: func(ctx context.Context, s *session.Session, err error) {
			logger.Error("Project server stopped unexpectedly; see its log for details",
				zap.String("log_file", s.LogFile()),
				zap.Error(err))
		},
	}

	logger.Debug("Starting session",
		zap.String("project", projectPath),
		zap.Bool("remote", cfg.Server.Remote()),
		zap.String("config", cfg.Source))

	s, err := cfg.SessionBuilder().
		WithLogger(logger).
		WithMonitor(monitor).
		WithObservability(obs).
		Start(ctx, cfg.Connector(projectPath))
	if err != nil {
		return nil, err
	}

	client := protocol.NewClient(s, logger).WithObservability(obs)
	tree := vfs.NewTree(client, s.Metadata(), logger).WithObservability(obs)
	host := newCLIHost(cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr(), assumeYes, logger)

	return &app{
		logger:      logger,
		cfg:         cfg,
		projectPath: projectPath,
		session:     s,
		client:      client,
		tree:        tree,
		ops:         ops.New(client, tree, host, logger).WithObservability(obs),
		host:        host,
		stats:       stats,
		out:         cmd.OutOrStdout(),
		errOut:      cmd.ErrOrStderr(),
	}, nil
}

// close shuts the session down within the configured grace period.
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownGrace+time.Second)
	defer cancel()

	if err := a.session.Shutdown(ctx); err != nil {
		a.logger.Warn("Error during session shutdown", zap.Error(err))
	}
	if a.stats != nil {
		printStats(a.errOut, a.stats.Snapshot())
	}
	_ = a.logger.Sync()
}

// printStats writes counters and histogram summaries, one series per line.
func printStats(w io.Writer, snapshot o11y.MetricsSnapshot) {
	keys := make([]string, 0, len(snapshot.Counters))
	for k := range snapshot.Counters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%-60s %d\n", k, snapshot.Counters[k])
	}

	keys = keys[:0]
	for k := range snapshot.Histograms {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		values := snapshot.Histograms[k]
		var sum float64
		for _, v := range values {
			sum += v
		}
		fmt.Fprintf(w, "%-60s n=%d mean=%.3f\n", k, len(values), sum/float64(len(values)))
	}
}

// withApp runs fn against a freshly opened app and closes it afterwards.
func withApp(fn func(ctx context.Context, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		err = fn(cmd.Context(), a, args)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, ops.ErrDeclined):
			fmt.Fprintln(cmd.ErrOrStderr(), "Cancelled.")
			return nil
		case a.host.wasReported(err):
			return ErrReported
		}
		return err
	}
}
