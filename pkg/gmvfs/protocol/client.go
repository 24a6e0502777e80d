package protocol

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/tsarna/gmvfs/pkg/gmvfs/o11y"
)

// Client exposes one typed method per server command on top of a Transport.
// Every dispatch is logged at debug level and, when providers are
// configured, counted, timed and traced.
type Client struct {
	transport Transport
	logger    *zap.Logger

	tracing  o11y.TracingProvider
	sent     o11y.Counter
	failed   o11y.Counter
	duration o11y.Histogram
}

// NewClient creates a client over t. A nil logger is replaced by a no-op
// logger.
func NewClient(t Transport, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{transport: t, logger: logger}
}

// WithObservability enables metrics and tracing for every dispatch.
func (c *Client) WithObservability(cfg o11y.ObservabilityConfig) *Client {
	if cfg.MetricsProvider != nil {
		c.sent = cfg.MetricsProvider.Counter(o11y.MetricCommandsSent)
		c.failed = cfg.MetricsProvider.Counter(o11y.MetricCommandErrors)
		c.duration = cfg.MetricsProvider.Histogram(o11y.MetricCommandDuration)
	}
	c.tracing = cfg.TracingProvider
	return c
}

// Transport returns the underlying transport.
func (c *Client) Transport() Transport {
	return c.transport
}

func call[R any](ctx context.Context, c *Client, cmd Command[R]) (R, error) {
	kind := string(cmd.Kind())
	labels := []o11y.Label{{Key: "command", Value: kind}}

	var span o11y.Span
	if c.tracing != nil {
		ctx, span = c.tracing.StartSpan(ctx, kind)
		span.SetAttributes(o11y.Label{Key: "category", Value: string(cmd.Category())})
		defer span.End()
	}

	start := time.Now()
	result, err := Send(ctx, c.transport, cmd)
	elapsed := time.Since(start)

	if c.sent != nil {
		c.sent.Add(ctx, 1, labels...)
		c.duration.Record(ctx, elapsed.Seconds(), labels...)
	}

	if err != nil {
		if c.failed != nil {
			c.failed.Add(ctx, 1, append(labels, o11y.Label{Key: "class", Value: errorClass(err)})...)
		}
		if span != nil {
			span.SetStatus(o11y.SpanStatusError, err.Error())
		}
		c.logger.Debug("Command failed", zap.String("command", kind), zap.Duration("elapsed", elapsed), zap.Error(err))
		return result, err
	}

	if span != nil {
		span.SetStatus(o11y.SpanStatusOK, "")
	}
	c.logger.Debug("Command completed", zap.String("command", kind), zap.Duration("elapsed", elapsed))

	return result, nil
}

func errorClass(err error) string {
	var se *ServerError
	switch {
	case errors.As(err, &se):
		return "server"
	case IsTransport(err):
		return "transport"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "other"
	}
}

func (c *Client) GetFullVfs(ctx context.Context) (FolderGraph, error) {
	return call[FolderGraph](ctx, c, GetFullVfs{})
}

func (c *Client) GetFolderVfs(ctx context.Context, folder ViewPath) (FolderGraph, error) {
	return call[FolderGraph](ctx, c, GetFolderVfs{Folder: folder})
}

// CreateFolder creates name inside parent and returns the new folder's
// location.
func (c *Client) CreateFolder(ctx context.Context, parent ViewPath, name string) (ViewPath, error) {
	res, err := call[CreatedFolder](ctx, c, CreateFolderVfs{Folder: parent, Name: name})
	return res.Folder, err
}

func (c *Client) RenameFolder(ctx context.Context, folder ViewPath, newName string) error {
	_, err := call[Empty](ctx, c, RenameFolderVfs{Folder: folder, NewName: newName})
	return err
}

func (c *Client) RemoveFolder(ctx context.Context, folder ViewPath, recursive bool) error {
	_, err := call[Empty](ctx, c, RemoveFolderVfs{Folder: folder, Recursive: recursive})
	return err
}

// AddResource registers a resource document previously built by
// CreateResourceYyFile.
func (c *Client) AddResource(ctx context.Context, kind ResourceKind, data CreatedResource, assoc SerializedData) error {
	_, err := call[Empty](ctx, c, AddResource{Resource: kind, Data: data.Resource, AssociatedData: assoc})
	return err
}

func (c *Client) RemoveResource(ctx context.Context, kind ResourceKind, name string) error {
	_, err := call[Empty](ctx, c, RemoveResource{Resource: kind, Name: name})
	return err
}

func (c *Client) RenameResource(ctx context.Context, kind ResourceKind, name, newName string) error {
	_, err := call[Empty](ctx, c, RenameResource{Resource: kind, Name: name, NewName: newName})
	return err
}

func (c *Client) AssociatedData(ctx context.Context, kind ResourceKind, name string) (SerializedData, error) {
	res, err := call[AssociatedData](ctx, c, GetAssociatedDataResource{Resource: kind, Name: name})
	return res.Data, err
}

func (c *Client) CreateResourceYyFile(ctx context.Context, kind ResourceKind, name string, parent ViewPath) (CreatedResource, error) {
	return call[CreatedResource](ctx, c, CreateResourceYyFile{Resource: kind, Name: name, ParentFolder: parent})
}

func (c *Client) CanUseResourceName(ctx context.Context, name string) (bool, error) {
	res, err := call[NameValidity](ctx, c, CanUseResourceName{Name: name})
	return res.Valid, err
}

func (c *Client) CanUseFolderName(ctx context.Context, folder ViewPath, name string) (bool, error) {
	res, err := call[NameValidity](ctx, c, CanUseFolderName{Folder: folder, Name: name})
	return res.Valid, err
}

// PrettyEventNames returns display names index-aligned with fileNames.
func (c *Client) PrettyEventNames(ctx context.Context, fileNames []string) ([]string, error) {
	res, err := call[EventNames](ctx, c, PrettyEventNames{EventNames: fileNames})
	return res.Names, err
}

func (c *Client) ScriptGmlPath(ctx context.Context, script string) (string, error) {
	res, err := call[RequestedPath](ctx, c, ScriptGmlPath{ScriptName: script})
	return res.Path, err
}

func (c *Client) EventGmlPath(ctx context.Context, object, eventFile string) (string, error) {
	res, err := call[RequestedPath](ctx, c, EventGmlPath{ObjectName: object, EventFileName: eventFile})
	return res.Path, err
}

func (c *Client) CreateEvent(ctx context.Context, object, eventFile string) error {
	_, err := call[Empty](ctx, c, CreateEvent{ObjectName: object, EventFileName: eventFile})
	return err
}

func (c *Client) DeleteEvent(ctx context.Context, object, eventFile string) error {
	_, err := call[Empty](ctx, c, DeleteEvent{ObjectName: object, EventFileName: eventFile})
	return err
}

// Checkpoint asks the server to write its project model to disk.
func (c *Client) Checkpoint(ctx context.Context) error {
	_, err := call[Empty](ctx, c, SerializationCheckpoint{})
	return err
}

func (c *Client) ProjectMetadata(ctx context.Context) (ProjectMetadata, error) {
	return call[ProjectMetadata](ctx, c, GetProjectMetadata{})
}
