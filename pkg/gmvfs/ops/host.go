package ops

import "context"

// Host is the user-facing side of the orchestrator: it asks, opens and
// tells.
type Host interface {
	// Confirm asks the user to approve a destructive operation.
	Confirm(ctx context.Context, prompt string) (bool, error)
	// OpenFile shows an absolute path in the editor.
	OpenFile(ctx context.Context, path string) error
	// ReportError shows a failed operation to the user.
	ReportError(ctx context.Context, op string, err error)
}

// HostFuncs adapts plain functions to Host. Nil fields confirm everything,
// ignore opens and drop reports.
type HostFuncs struct {
	ConfirmFunc     func(ctx context.Context, prompt string) (bool, error)
	OpenFileFunc    func(ctx context.Context, path string) error
	ReportErrorFunc func(ctx context.Context, op string, err error)
}

func (h HostFuncs) Confirm(ctx context.Context, prompt string) (bool, error) {
	if h.ConfirmFunc == nil {
		return true, nil
	}
	return h.ConfirmFunc(ctx, prompt)
}

func (h HostFuncs) OpenFile(ctx context.Context, path string) error {
	if h.OpenFileFunc == nil {
		return nil
	}
	return h.OpenFileFunc(ctx, path)
}

func (h HostFuncs) ReportError(ctx context.Context, op string, err error) {
	if h.ReportErrorFunc != nil {
		h.ReportErrorFunc(ctx, op, err)
	}
}
