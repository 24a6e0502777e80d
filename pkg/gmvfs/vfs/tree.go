// Package vfs projects the server's flat folder graphs into a lazily
// expanded tree of folders, resources, object events and shader stages.
//
// Children of a node are fetched the first time they are requested and
// kept until the node is refreshed. There is no incremental patching: a
// refresh discards the cached children and the next request refetches
// them.
package vfs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/tsarna/gmvfs/pkg/gmvfs/events"
	"github.com/tsarna/gmvfs/pkg/gmvfs/o11y"
	"github.com/tsarna/gmvfs/pkg/gmvfs/protocol"
)

// Client is the subset of protocol.Client the tree reads through.
type Client interface {
	GetFullVfs(ctx context.Context) (protocol.FolderGraph, error)
	GetFolderVfs(ctx context.Context, folder protocol.ViewPath) (protocol.FolderGraph, error)
	AssociatedData(ctx context.Context, kind protocol.ResourceKind, name string) (protocol.SerializedData, error)
	PrettyEventNames(ctx context.Context, fileNames []string) ([]string, error)
}

type cacheEntry struct {
	children []*Node
	missing  []events.Kind
}

// Tree is the client-side cache of the project hierarchy. It is safe for
// concurrent use; fetches go through the session one at a time anyway.
type Tree struct {
	client   Client
	metadata protocol.ProjectMetadata
	logger   *zap.Logger

	mu    sync.Mutex
	cache   map[*Node]cacheEntry // nil key is the root
	rootGen uint64

	observers observers
	refreshes o11y.Counter
}

// NewTree creates an empty tree for the project described by metadata.
func NewTree(client Client, metadata protocol.ProjectMetadata, logger *zap.Logger) *Tree {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tree{
		client:    client,
		metadata:  metadata,
		logger:    logger,
		cache:     make(map[*Node]cacheEntry),
		observers: observers{logger: logger},
	}
}

// WithObservability counts refreshes.
func (t *Tree) WithObservability(cfg o11y.ObservabilityConfig) *Tree {
	if cfg.MetricsProvider != nil {
		t.refreshes = cfg.MetricsProvider.Counter(o11y.MetricTreeRefreshes)
	}
	return t
}

// Metadata returns the project metadata the tree was created with.
func (t *Tree) Metadata() protocol.ProjectMetadata {
	return t.metadata
}

// Root returns the view path of the project root folder.
func (t *Tree) Root() protocol.ViewPath {
	return t.metadata.Root
}

// GetParent returns the parent of n, nil for top-level nodes.
func (t *Tree) GetParent(n *Node) *Node {
	if n == nil {
		return nil
	}
	return n.parent
}

// Subscribe registers observer for change topics matching pattern, which
// may use MQTT wildcards. The returned function cancels the subscription.
func (t *Tree) Subscribe(pattern string, observer Observer) (func(), error) {
	return t.observers.subscribe(pattern, observer)
}

// GetChildren returns the children of n, or of the root when n is nil,
// fetching them if they are not cached.
//
// A failure reported by the server is logged and yields no children and no
// error. A transport failure also yields no children but is returned so the
// caller can offer to restart the session. Neither is cached.
func (t *Tree) GetChildren(ctx context.Context, n *Node) ([]*Node, error) {
	if n != nil && !n.Expandable() {
		return nil, nil
	}

	t.mu.Lock()
	if entry, ok := t.cache[n]; ok {
		t.mu.Unlock()
		return entry.children, nil
	}
	gen := t.stampLocked(n)
	t.mu.Unlock()

	entry, err := t.fetch(ctx, n)
	if err != nil {
		var se *protocol.ServerError
		if errors.As(err, &se) {
			t.logger.Error("Server refused listing",
				zap.Stringer("node", nodeStringer{n}),
				zap.Error(err))
			return []*Node{}, nil
		}
		t.logger.Error("Listing failed", zap.Stringer("node", nodeStringer{n}), zap.Error(err))
		return []*Node{}, err
	}

	t.mu.Lock()
	if t.stampLocked(n) == gen && (n == nil || !n.detached) {
		if cached, ok := t.cache[n]; ok {
			entry = cached
		} else {
			t.cache[n] = entry
		}
	}
	t.mu.Unlock()

	return entry.children, nil
}

// MissingEvents returns the event kinds object does not have yet, as of the
// last fetch of its children. It fetches them if needed.
func (t *Tree) MissingEvents(ctx context.Context, object *Node) ([]events.Kind, error) {
	if object == nil || object.Kind != KindResource || object.Resource != protocol.ResourceObject {
		return nil, fmt.Errorf("%v is not an object", nodeStringer{object})
	}
	if _, err := t.GetChildren(ctx, object); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if entry, ok := t.cache[object]; ok {
		return entry.missing, nil
	}
	return events.All(), nil
}

// Refresh discards the cached children of n (the root when nil), and of
// everything below it, then notifies observers.
func (t *Tree) Refresh(ctx context.Context, n *Node) {
	t.mu.Lock()
	for cached, entry := range t.cache {
		if isWithin(cached, n) {
			delete(t.cache, cached)
			for _, child := range entry.children {
				child.detached = true
			}
		}
	}
	if n == nil {
		t.rootGen++
	} else {
		n.gen++
	}
	t.mu.Unlock()

	if t.refreshes != nil {
		t.refreshes.Add(ctx, 1)
	}

	topic := TopicFor(n)
	t.logger.Debug("Tree refreshed", zap.String("topic", topic))
	t.observers.notify(ctx, topic, n)
}

// ErrNotFound is returned by Find when no node matches.
var ErrNotFound = errors.New("node not found")

// Walk visits the descendants of start (the root when nil) depth first in
// display order, loading children as needed. When fn returns false the
// node's children are skipped. The first error from GetChildren stops the
// walk.
func (t *Tree) Walk(ctx context.Context, start *Node, fn func(n *Node, depth int) bool) error {
	var walk func(parent *Node, depth int) error
	walk = func(parent *Node, depth int) error {
		children, err := t.GetChildren(ctx, parent)
		if err != nil {
			return err
		}
		for _, child := range children {
			if fn(child, depth) && child.Expandable() {
				if err := walk(child, depth+1); err != nil {
					return err
				}
			}
		}
		return nil
	}
	return walk(start, 0)
}

// Find returns the first folder or resource, in display order, for which
// match returns true. Only folders are descended into.
func (t *Tree) Find(ctx context.Context, match func(n *Node) bool) (*Node, error) {
	var found *Node
	err := t.Walk(ctx, nil, func(n *Node, _ int) bool {
		if found != nil {
			return false
		}
		if match(n) {
			found = n
			return false
		}
		return n.Kind == KindFolder
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

// FindFolder returns the folder with the given view path; the root path
// yields nil and no error.
func (t *Tree) FindFolder(ctx context.Context, path string) (*Node, error) {
	if path == "" || path == t.metadata.Root.Path {
		return nil, nil
	}
	return t.Find(ctx, func(n *Node) bool {
		return n.Kind == KindFolder && n.ViewPath.Path == path
	})
}

// FindResource returns the resource called name.
func (t *Tree) FindResource(ctx context.Context, name string) (*Node, error) {
	return t.Find(ctx, func(n *Node) bool {
		return n.Kind == KindResource && n.Name == name
	})
}

// isWithin reports whether n is ancestor or one of its descendants. A nil
// ancestor contains everything.
// stampLocked sums the generations of n, its ancestors and the root. Any
// refresh covering n changes it.
func (t *Tree) stampLocked(n *Node) uint64 {
	stamp := t.rootGen
	for p := n; p != nil; p = p.parent {
		stamp += p.gen
	}
	return stamp
}

func isWithin(n, ancestor *Node) bool {
	if ancestor == nil {
		return true
	}
	for p := n; p != nil; p = p.parent {
		if p == ancestor {
			return true
		}
	}
	return false
}

func (t *Tree) fetch(ctx context.Context, n *Node) (cacheEntry, error) {
	switch {
	case n == nil:
		graph, err := t.client.GetFullVfs(ctx)
		if err != nil {
			return cacheEntry{}, err
		}
		return cacheEntry{children: t.folderChildren(graph, nil)}, nil

	case n.Kind == KindFolder:
		graph, err := t.client.GetFolderVfs(ctx, n.ViewPath)
		if err != nil {
			return cacheEntry{}, err
		}
		return cacheEntry{children: t.folderChildren(graph, n)}, nil

	case n.Resource == protocol.ResourceObject:
		return t.objectChildren(ctx, n)

	case n.Resource == protocol.ResourceShader:
		return cacheEntry{children: []*Node{
			newStageNode(StageFragment, n),
			newStageNode(StageVertex, n),
		}}, nil
	}

	return cacheEntry{children: []*Node{}}, nil
}

func (t *Tree) folderChildren(graph protocol.FolderGraph, parent *Node) []*Node {
	children := make([]*Node, 0, len(graph.Folders)+len(graph.Files))
	for _, vp := range graph.Folders {
		children = append(children, newFolderNode(vp, parent))
	}
	for _, entry := range graph.Files {
		children = append(children, newResourceNode(entry, parent))
	}
	sortNodes(children)
	return children
}

func (t *Tree) objectChildren(ctx context.Context, object *Node) (cacheEntry, error) {
	data, err := t.client.AssociatedData(ctx, object.Resource, object.Name)
	if err != nil {
		return cacheEntry{}, err
	}

	raw, err := readSerializedData(data)
	if err != nil {
		t.logger.Error("Cannot read object events", zap.String("object", object.Name), zap.Error(err))
		return cacheEntry{children: []*Node{}, missing: events.All()}, nil
	}

	var fileNames []string
	if len(raw) > 0 {
		var eventMap map[string]json.RawMessage
		if err := json.Unmarshal(raw, &eventMap); err != nil {
			t.logger.Error("Object events are not a JSON object", zap.String("object", object.Name), zap.Error(err))
			return cacheEntry{children: []*Node{}, missing: events.All()}, nil
		}
		for name := range eventMap {
			fileNames = append(fileNames, name)
		}
		events.SortFileNames(fileNames)
	}

	entry := cacheEntry{children: make([]*Node, 0, len(fileNames)), missing: events.Missing(fileNames)}
	if len(fileNames) == 0 {
		return entry, nil
	}

	pretty, err := t.client.PrettyEventNames(ctx, fileNames)
	if err != nil {
		return cacheEntry{}, err
	}
	if len(pretty) != len(fileNames) {
		t.logger.Warn("Event name count mismatch",
			zap.String("object", object.Name),
			zap.Int("requested", len(fileNames)),
			zap.Int("received", len(pretty)))
		pretty = nil
	}

	for i, name := range fileNames {
		label := name
		if pretty != nil {
			label = pretty[i]
		} else if k := events.FromFileName(name); k != events.Unknown {
			label = k.Pretty()
		}
		entry.children = append(entry.children, newEventNode(label, name, object))
	}

	return entry, nil
}

// readSerializedData returns the JSON text carried by data. A Filename
// variant names a single-use temporary file, which is removed after reading.
func readSerializedData(data protocol.SerializedData) ([]byte, error) {
	switch data.Type {
	case protocol.DataValue:
		return []byte(data.Data), nil
	case protocol.DataFilename:
		content, err := os.ReadFile(data.Data)
		if rmErr := os.Remove(data.Data); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) && err == nil {
			err = rmErr
		}
		return content, err
	case protocol.DataDefault, "":
		return nil, nil
	}
	return nil, fmt.Errorf("unknown data type %q", data.Type)
}

type nodeStringer struct {
	n *Node
}

func (s nodeStringer) String() string {
	if s.n == nil {
		return "root"
	}
	return s.n.String()
}
