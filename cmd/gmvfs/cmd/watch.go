package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tsarna/gmvfs/pkg/gmvfs/subutils"
	"github.com/tsarna/gmvfs/pkg/gmvfs/transform"
	"github.com/tsarna/gmvfs/pkg/gmvfs/vfs"
	"github.com/tsarna/gmvfs/pkg/gmvfs/workspace"
)

var (
	watchJSON    bool
	watchExclude []string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Report changes to the project tree as they happen",
	Long: `Watch the project file and report folders, resources and events that
appear, disappear or change whenever the project is saved.

Runs until interrupted or until the project server stops.

Examples:
  gmvfs watch
  gmvfs watch --json
  gmvfs watch --exclude 'vfs/changed/objects/#'`,
	Args: cobra.NoArgs,
	RunE: withApp(runWatch),
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().BoolVar(&watchJSON, "json", false, "print each change set as JSON")
	watchCmd.Flags().StringArrayVar(&watchExclude, "exclude", nil, "change topic pattern to ignore (repeatable)")
}

// changeReporter keeps the last listing and prints what differs each time
// the tree is invalidated.
type changeReporter struct {
	a       *app
	mu      sync.Mutex
	listing map[string]any
}

func (r *changeReporter) snapshot(ctx context.Context) (map[string]any, error) {
	records, err := transform.Records(ctx, r.a.tree, nil, 0)
	if err != nil {
		return nil, err
	}
	return transform.Listing(records), nil
}

func (r *changeReporter) OnChanged(ctx context.Context, topic string, node *vfs.Node, fields map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	listing, err := r.snapshot(ctx)
	if err != nil {
		return err
	}
	changes, err := transform.DiffListings(r.listing, listing)
	if err != nil {
		return err
	}
	r.listing = listing
	if changes.Empty() {
		return nil
	}

	if watchJSON {
		return json.NewEncoder(r.a.out).Encode(changes)
	}
	for _, path := range changes.Added {
		fmt.Fprintf(r.a.out, "+ %s\n", path)
	}
	for _, path := range changes.Removed {
		fmt.Fprintf(r.a.out, "- %s\n", path)
	}
	for _, path := range changes.Changed {
		fmt.Fprintf(r.a.out, "~ %s\n", path)
	}
	return nil
}

func runWatch(ctx context.Context, a *app, args []string) error {
	projectFile := a.projectPath
	if projectFile == "" {
		projectFile = a.tree.Metadata().ProjectFile
	}
	if projectFile == "" {
		return errors.New("watch needs a local project file")
	}

	reporter := &changeReporter{a: a}
	initial, err := reporter.snapshot(ctx)
	if err != nil {
		return err
	}
	reporter.listing = initial

	filters := make([]subutils.Filter, 0, len(watchExclude))
	for _, pattern := range watchExclude {
		filters = append(filters, subutils.DropTopicPattern(pattern))
	}

	observer := subutils.NewAsyncObserver(
		subutils.NewFilteringObserver(
			subutils.NewNamedLoggingObserver(reporter, a.logger, zap.DebugLevel, "watch"),
			filters...),
		a.cfg.Server.QueueSize, a.logger).Start()
	defer observer.Close()

	unsubscribe, err := a.tree.Subscribe(vfs.TopicPrefix+"#", observer)
	if err != nil {
		return err
	}
	defer unsubscribe()

	a.logger.Info("Watching project", zap.String("file", projectFile))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return workspace.Watch(ctx, projectFile, a.cfg.Workspace.WatchDebounce, a.logger, func(ctx context.Context) {
			a.tree.Refresh(ctx, nil)
		})
	})
	g.Go(func() error {
		select {
		case <-ctx.Done():
			return nil
		case <-a.session.Done():
			if err := a.session.Err(); err != nil {
				return fmt.Errorf("project server stopped: %w", err)
			}
			return errors.New("project server stopped")
		}
	})

	return g.Wait()
}
