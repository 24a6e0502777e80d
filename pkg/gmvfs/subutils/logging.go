// Package subutils holds reusable vfs.Observer wrappers.
package subutils

import (
	"context"

	"github.com/tsarna/gmvfs/pkg/gmvfs/vfs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoggingObserver logs every change notification and forwards it to the
// wrapped observer, if any.
type LoggingObserver struct {
	wrapped  vfs.Observer
	logger   *zap.Logger
	logLevel zapcore.Level
	name     string
}

// NewLoggingObserver wraps an observer. wrapped may be nil, in which case
// notifications are only logged.
func NewLoggingObserver(wrapped vfs.Observer, logger *zap.Logger, logLevel zapcore.Level) *LoggingObserver {
	return NewNamedLoggingObserver(wrapped, logger, logLevel, "LoggingObserver")
}

// NewNamedLoggingObserver is NewLoggingObserver with a name that appears
// in every log line.
func NewNamedLoggingObserver(wrapped vfs.Observer, logger *zap.Logger, logLevel zapcore.Level, name string) *LoggingObserver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingObserver{
		wrapped:  wrapped,
		logger:   logger,
		logLevel: logLevel,
		name:     name,
	}
}

func (l *LoggingObserver) OnChanged(ctx context.Context, topic string, node *vfs.Node, fields map[string]string) error {
	nodeName := "root"
	if node != nil {
		nodeName = node.Label()
	}

	l.logger.Log(l.logLevel, "OnChanged called",
		zap.String("observer", l.name),
		zap.String("topic", topic),
		zap.String("node", nodeName),
		zap.Any("extractedFields", fields),
		zap.Bool("hasWrapped", l.wrapped != nil),
	)

	if l.wrapped != nil {
		return l.wrapped.OnChanged(ctx, topic, node, fields)
	}
	return nil
}
