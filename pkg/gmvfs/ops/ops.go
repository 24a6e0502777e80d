// Package ops runs the project mutations a user can ask for. Each one sends
// its primary command, then a Serialize checkpoint, and only when both
// succeed refreshes the affected part of the tree. A failure is reported to
// the host and returned; the tree is left as it was.
package ops

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/tsarna/gmvfs/pkg/gmvfs/events"
	"github.com/tsarna/gmvfs/pkg/gmvfs/o11y"
	"github.com/tsarna/gmvfs/pkg/gmvfs/protocol"
	"github.com/tsarna/gmvfs/pkg/gmvfs/vfs"
)

// DefaultFolderName is used when CreateFolder is given no name.
const DefaultFolderName = "New Folder"

// maxFolderSuffix bounds the numbered default names tried after the requested one.
const maxFolderSuffix = 9

// Client is the subset of protocol.Client the orchestrator sends through.
type Client interface {
	CreateFolder(ctx context.Context, parent protocol.ViewPath, name string) (protocol.ViewPath, error)
	RenameFolder(ctx context.Context, folder protocol.ViewPath, newName string) error
	RemoveFolder(ctx context.Context, folder protocol.ViewPath, recursive bool) error
	CreateResourceYyFile(ctx context.Context, kind protocol.ResourceKind, name string, parent protocol.ViewPath) (protocol.CreatedResource, error)
	AddResource(ctx context.Context, kind protocol.ResourceKind, data protocol.CreatedResource, assoc protocol.SerializedData) error
	RemoveResource(ctx context.Context, kind protocol.ResourceKind, name string) error
	RenameResource(ctx context.Context, kind protocol.ResourceKind, name, newName string) error
	CanUseResourceName(ctx context.Context, name string) (bool, error)
	ScriptGmlPath(ctx context.Context, script string) (string, error)
	EventGmlPath(ctx context.Context, object, eventFile string) (string, error)
	CreateEvent(ctx context.Context, object, eventFile string) error
	DeleteEvent(ctx context.Context, object, eventFile string) error
	Checkpoint(ctx context.Context) error
}

// Tree is what the orchestrator needs from the project cache.
type Tree interface {
	Root() protocol.ViewPath
	Refresh(ctx context.Context, n *vfs.Node)
}

// Orchestrator performs mutations against one session.
type Orchestrator struct {
	client Client
	tree   Tree
	host   Host
	logger *zap.Logger

	checkpoints o11y.Counter
}

// New creates an orchestrator. A nil host confirms everything and a nil
// logger discards.
func New(client Client, tree Tree, host Host, logger *zap.Logger) *Orchestrator {
	if host == nil {
		host = HostFuncs{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{client: client, tree: tree, host: host, logger: logger}
}

// WithObservability counts checkpoints.
func (o *Orchestrator) WithObservability(cfg o11y.ObservabilityConfig) *Orchestrator {
	if cfg.MetricsProvider != nil {
		o.checkpoints = cfg.MetricsProvider.Counter(o11y.MetricCheckpointsTotal)
	}
	return o
}

// CreateFolder creates a folder under parent, or under the project root
// when parent is nil. If name is taken it tries "New Folder 1" through
// "New Folder 9" before giving up with ReasonNamesExhausted.
func (o *Orchestrator) CreateFolder(ctx context.Context, parent *vfs.Node, name string) (protocol.ViewPath, error) {
	const op = "create folder"

	if name = strings.TrimSpace(name); name == "" {
		name = DefaultFolderName
	}
	parentPath, err := o.folderPath(parent)
	if err != nil {
		return protocol.ViewPath{}, o.fail(ctx, op, err)
	}

	var created protocol.ViewPath
	for i := 0; i <= maxFolderSuffix; i++ {
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%s %d", DefaultFolderName, i)
		}

		created, err = o.client.CreateFolder(ctx, parentPath, candidate)
		if err == nil {
			break
		}
		if !protocol.IsErrorKind(err, protocol.ErrorKindNameTaken) {
			return protocol.ViewPath{}, o.fail(ctx, op, err)
		}
		o.logger.Debug("Folder name taken", zap.String("name", candidate))
	}
	if err != nil {
		return protocol.ViewPath{}, o.fail(ctx, op, &ValidationError{Reason: ReasonNamesExhausted, Name: name})
	}

	if err := o.commit(ctx, op, parent); err != nil {
		return protocol.ViewPath{}, err
	}
	o.logger.Info("Folder created", zap.String("path", created.Path))
	return created, nil
}

// RenameFolder renames folder in place.
func (o *Orchestrator) RenameFolder(ctx context.Context, folder *vfs.Node, newName string) error {
	const op = "rename folder"

	if err := expectKind(folder, vfs.KindFolder); err != nil {
		return o.fail(ctx, op, err)
	}
	if newName = strings.TrimSpace(newName); newName == "" {
		return o.fail(ctx, op, &ValidationError{Reason: ReasonEmptyName})
	}

	if err := o.client.RenameFolder(ctx, folder.ViewPath, newName); err != nil {
		return o.fail(ctx, op, err)
	}
	return o.commit(ctx, op, folder.Parent())
}

// DeleteFolder removes folder and everything in it once the host confirms.
func (o *Orchestrator) DeleteFolder(ctx context.Context, folder *vfs.Node) error {
	const op = "delete folder"

	if err := expectKind(folder, vfs.KindFolder); err != nil {
		return o.fail(ctx, op, err)
	}
	if err := o.confirm(ctx, op, fmt.Sprintf("Delete folder %q and everything in it?", folder.Name)); err != nil {
		return err
	}

	if err := o.client.RemoveFolder(ctx, folder.ViewPath, true); err != nil {
		return o.fail(ctx, op, err)
	}
	return o.commit(ctx, op, folder.Parent())
}

// CreateResource adds a resource of kind to parent, or to the project root
// when parent is nil. A new script is opened in the host.
func (o *Orchestrator) CreateResource(ctx context.Context, parent *vfs.Node, kind protocol.ResourceKind, name string) error {
	const op = "create resource"

	if !kind.Valid() {
		return o.fail(ctx, op, &ValidationError{Reason: ReasonWrongNode, Name: string(kind)})
	}
	parentPath, err := o.folderPath(parent)
	if err != nil {
		return o.fail(ctx, op, err)
	}
	if err := o.checkResourceName(ctx, name); err != nil {
		return o.fail(ctx, op, err)
	}

	doc, err := o.client.CreateResourceYyFile(ctx, kind, name, parentPath)
	if err != nil {
		return o.fail(ctx, op, err)
	}
	if err := o.client.AddResource(ctx, kind, doc, protocol.DefaultData()); err != nil {
		return o.fail(ctx, op, err)
	}
	if err := o.commit(ctx, op, parent); err != nil {
		return err
	}
	o.logger.Info("Resource created", zap.String("kind", string(kind)), zap.String("name", name))

	if kind == protocol.ResourceScript {
		return o.openScript(ctx, op, name)
	}
	return nil
}

// RenameResource renames res after checking the new name with the server.
func (o *Orchestrator) RenameResource(ctx context.Context, res *vfs.Node, newName string) error {
	const op = "rename resource"

	if err := expectKind(res, vfs.KindResource); err != nil {
		return o.fail(ctx, op, err)
	}
	if err := o.checkResourceName(ctx, newName); err != nil {
		return o.fail(ctx, op, err)
	}

	if err := o.client.RenameResource(ctx, res.Resource, res.Name, newName); err != nil {
		return o.fail(ctx, op, err)
	}
	return o.commit(ctx, op, res.Parent())
}

// DeleteResource removes res once the host confirms.
func (o *Orchestrator) DeleteResource(ctx context.Context, res *vfs.Node) error {
	const op = "delete resource"

	if err := expectKind(res, vfs.KindResource); err != nil {
		return o.fail(ctx, op, err)
	}
	if err := o.confirm(ctx, op, fmt.Sprintf("Delete %s %q?", strings.ToLower(string(res.Resource)), res.Name)); err != nil {
		return err
	}

	if err := o.client.RemoveResource(ctx, res.Resource, res.Name); err != nil {
		return o.fail(ctx, op, err)
	}
	return o.commit(ctx, op, res.Parent())
}

// CreateEvent adds an event of kind to object and opens its source.
func (o *Orchestrator) CreateEvent(ctx context.Context, object *vfs.Node, kind events.Kind) error {
	const op = "create event"

	if err := expectObject(object); err != nil {
		return o.fail(ctx, op, err)
	}
	fileName := kind.FileName()
	if fileName == "" {
		return o.fail(ctx, op, &ValidationError{Reason: ReasonUnknownEvent, Name: kind.String()})
	}

	if err := o.client.CreateEvent(ctx, object.Name, fileName); err != nil {
		return o.fail(ctx, op, err)
	}
	if err := o.commit(ctx, op, object); err != nil {
		return err
	}

	path, err := o.client.EventGmlPath(ctx, object.Name, fileName)
	if err != nil {
		return o.fail(ctx, op, err)
	}
	return o.open(ctx, op, path)
}

// DeleteEvent removes the event of kind from object once the host confirms.
func (o *Orchestrator) DeleteEvent(ctx context.Context, object *vfs.Node, kind events.Kind) error {
	const op = "delete event"

	if err := expectObject(object); err != nil {
		return o.fail(ctx, op, err)
	}
	fileName := kind.FileName()
	if fileName == "" {
		return o.fail(ctx, op, &ValidationError{Reason: ReasonUnknownEvent, Name: kind.String()})
	}
	if err := o.confirm(ctx, op, fmt.Sprintf("Delete the %s event of %q?", kind.Pretty(), object.Name)); err != nil {
		return err
	}

	if err := o.client.DeleteEvent(ctx, object.Name, fileName); err != nil {
		return o.fail(ctx, op, err)
	}
	return o.commit(ctx, op, object)
}

// OpenScript opens the source file of a script resource.
func (o *Orchestrator) OpenScript(ctx context.Context, script *vfs.Node) error {
	const op = "open script"

	if err := expectKind(script, vfs.KindResource); err != nil {
		return o.fail(ctx, op, err)
	}
	if script.Resource != protocol.ResourceScript {
		return o.fail(ctx, op, &ValidationError{Reason: ReasonWrongNode, Name: script.String()})
	}
	return o.openScript(ctx, op, script.Name)
}

// OpenEvent opens the source file of an object event.
func (o *Orchestrator) OpenEvent(ctx context.Context, event *vfs.Node) error {
	const op = "open event"

	if err := expectKind(event, vfs.KindEvent); err != nil {
		return o.fail(ctx, op, err)
	}
	path, err := o.client.EventGmlPath(ctx, event.Object, event.EventFile)
	if err != nil {
		return o.fail(ctx, op, err)
	}
	return o.open(ctx, op, path)
}

// commit checkpoints the server and refreshes target once that succeeds.
func (o *Orchestrator) commit(ctx context.Context, op string, target *vfs.Node) error {
	if err := o.client.Checkpoint(ctx); err != nil {
		return o.fail(ctx, op, fmt.Errorf("checkpoint: %w", err))
	}
	if o.checkpoints != nil {
		o.checkpoints.Add(ctx, 1, o11y.Label{Key: "operation", Value: op})
	}
	o.tree.Refresh(ctx, target)
	return nil
}

func (o *Orchestrator) confirm(ctx context.Context, op, prompt string) error {
	ok, err := o.host.Confirm(ctx, prompt)
	if err != nil {
		return o.fail(ctx, op, err)
	}
	if !ok {
		o.logger.Debug("Operation declined", zap.String("operation", op))
		return ErrDeclined
	}
	return nil
}

func (o *Orchestrator) checkResourceName(ctx context.Context, name string) error {
	if strings.TrimSpace(name) == "" {
		return &ValidationError{Reason: ReasonEmptyName}
	}
	ok, err := o.client.CanUseResourceName(ctx, name)
	if err != nil {
		return err
	}
	if !ok {
		return &ValidationError{Reason: ReasonNameUnavailable, Name: name}
	}
	return nil
}

func (o *Orchestrator) openScript(ctx context.Context, op, name string) error {
	path, err := o.client.ScriptGmlPath(ctx, name)
	if err != nil {
		return o.fail(ctx, op, err)
	}
	return o.open(ctx, op, path)
}

func (o *Orchestrator) open(ctx context.Context, op, path string) error {
	if err := o.host.OpenFile(ctx, path); err != nil {
		return o.fail(ctx, op, fmt.Errorf("open %s: %w", path, err))
	}
	return nil
}

// fail logs err, hands it to the host and returns it.
func (o *Orchestrator) fail(ctx context.Context, op string, err error) error {
	if isCancellation(err) {
		return err
	}
	o.logger.Error("Operation failed",
		zap.String("operation", op),
		zap.Stringer("category", Classify(err)),
		zap.Error(err))
	o.host.ReportError(ctx, op, err)
	return err
}

func (o *Orchestrator) folderPath(parent *vfs.Node) (protocol.ViewPath, error) {
	if parent == nil {
		return o.tree.Root(), nil
	}
	if err := expectKind(parent, vfs.KindFolder); err != nil {
		return protocol.ViewPath{}, err
	}
	return parent.ViewPath, nil
}

func expectKind(n *vfs.Node, kind vfs.NodeKind) error {
	if n == nil {
		return &ValidationError{Reason: ReasonWrongNode, Name: "root"}
	}
	if n.Kind != kind {
		return &ValidationError{Reason: ReasonWrongNode, Name: n.String()}
	}
	return nil
}

func expectObject(n *vfs.Node) error {
	if err := expectKind(n, vfs.KindResource); err != nil {
		return err
	}
	if n.Resource != protocol.ResourceObject {
		return &ValidationError{Reason: ReasonWrongNode, Name: n.String()}
	}
	return nil
}
