package session

import (
	"context"

	"github.com/tsarna/gmvfs/pkg/gmvfs/protocol"
)

// Monitor receives session lifecycle events. OnUnexpectedShutdown is called
// at most once per session and never together with OnShutdown.
type Monitor interface {
	OnOpen(ctx context.Context, s *Session, metadata protocol.ProjectMetadata)
	OnShutdown(ctx context.Context, s *Session)
	OnUnexpectedShutdown(ctx context.Context, s *Session, err error)
}

// MonitorFuncs adapts plain functions to Monitor. Nil fields are skipped.
type MonitorFuncs struct {
	Open               func(ctx context.Context, s *Session, metadata protocol.ProjectMetadata)
	Shutdown           func(ctx context.Context, s *Session)
	UnexpectedShutdown func(ctx context.Context, s *Session, err error)
}

func (m MonitorFuncs) OnOpen(ctx context.Context, s *Session, metadata protocol.ProjectMetadata) {
	if m.Open != nil {
		m.Open(ctx, s, metadata)
	}
}

func (m MonitorFuncs) OnShutdown(ctx context.Context, s *Session) {
	if m.Shutdown != nil {
		m.Shutdown(ctx, s)
	}
}

func (m MonitorFuncs) OnUnexpectedShutdown(ctx context.Context, s *Session, err error) {
	if m.UnexpectedShutdown != nil {
		m.UnexpectedShutdown(ctx, s, err)
	}
}
