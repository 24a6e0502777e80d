// Package workspace locates the project descriptor in a workspace and
// watches it for edits made outside the session.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ProjectExt is the extension of project descriptor files.
const ProjectExt = ".yyp"

var (
	ErrProjectNotFound  = errors.New("no project file found")
	ErrAmbiguousProject = errors.New("more than one project file found")
)

// FindProject returns the absolute path of the project descriptor. When
// project is set it names the file, relative to root unless absolute.
// Otherwise root must contain exactly one descriptor at its top level.
func FindProject(root, project string) (string, error) {
	if root == "" {
		root = "."
	}

	if project != "" {
		path := project
		if !filepath.IsAbs(path) {
			path = filepath.Join(root, path)
		}
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				return "", fmt.Errorf("%w: %s", ErrProjectNotFound, path)
			}
			return "", err
		}
		if info.IsDir() || !strings.EqualFold(filepath.Ext(path), ProjectExt) {
			return "", fmt.Errorf("%s is not a %s file", path, ProjectExt)
		}
		return filepath.Abs(path)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return "", fmt.Errorf("read workspace: %w", err)
	}

	var found []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.EqualFold(filepath.Ext(e.Name()), ProjectExt) {
			found = append(found, e.Name())
		}
	}

	switch len(found) {
	case 0:
		return "", fmt.Errorf("%w in %s", ErrProjectNotFound, root)
	case 1:
		return filepath.Abs(filepath.Join(root, found[0]))
	}
	sort.Strings(found)
	return "", fmt.Errorf("%w in %s: %s", ErrAmbiguousProject, root, strings.Join(found, ", "))
}

// Watch calls onChange after the file at path has been written, created or
// replaced, once no further events have arrived for debounce. It watches
// the containing directory so editors that save by renaming are seen. It
// returns nil when ctx ends.
func Watch(ctx context.Context, path string, debounce time.Duration, logger *zap.Logger, onChange func(ctx context.Context)) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	dir, name := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	logger.Info("Watching project file", zap.String("path", path))

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			logger.Debug("Project watch stopped", zap.String("path", path))
			return nil

		case <-fire:
			fire = nil
			onChange(ctx)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != name {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			logger.Debug("Project file changed", zap.String("op", ev.Op.String()))
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C

		case werr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Watch error", zap.Error(werr))
		}
	}
}
