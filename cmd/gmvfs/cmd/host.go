package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/tsarna/gmvfs/pkg/gmvfs/ops"
)

// cliHost answers the orchestrator from a terminal: confirmations are read
// from stdin, files open in $VISUAL or $EDITOR (or are printed when
// neither is set), and failures go to stderr.
type cliHost struct {
	in        *bufio.Reader
	out       io.Writer
	errOut    io.Writer
	assumeYes bool
	logger    *zap.Logger
	editor    []string

	mu       sync.Mutex
	reported error
}

func newCLIHost(in io.Reader, out, errOut io.Writer, assumeYes bool, logger *zap.Logger) *cliHost {
	editor := os.Getenv("VISUAL")
	if editor == "" {
		editor = os.Getenv("EDITOR")
	}
	return &cliHost{
		in:        bufio.NewReader(in),
		out:       out,
		errOut:    errOut,
		assumeYes: assumeYes,
		logger:    logger,
		editor:    strings.Fields(editor),
	}
}

func (h *cliHost) Confirm(ctx context.Context, prompt string) (bool, error) {
	if h.assumeYes {
		return true, nil
	}

	fmt.Fprintf(h.out, "%s [y/N] ", prompt)

	type answer struct {
		line string
		err  error
	}
	answers := make(chan answer, 1)
	go func() {
		line, err := h.in.ReadString('\n')
		answers <- answer{line, err}
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(h.out)
		return false, ctx.Err()
	case a := <-answers:
		if a.err != nil && !errors.Is(a.err, io.EOF) {
			return false, a.err
		}
		switch strings.ToLower(strings.TrimSpace(a.line)) {
		case "y", "yes":
			return true, nil
		}
		return false, nil
	}
}

func (h *cliHost) OpenFile(ctx context.Context, path string) error {
	if len(h.editor) == 0 {
		fmt.Fprintln(h.out, path)
		return nil
	}

	h.logger.Debug("Opening file", zap.Strings("editor", h.editor), zap.String("path", path))

	editor := exec.CommandContext(ctx, h.editor[0], append(h.editor[1:], path)...)
	editor.Stdin = os.Stdin
	editor.Stdout = os.Stdout
	editor.Stderr = os.Stderr
	if err := editor.Run(); err != nil {
		return fmt.Errorf("run editor %s: %w", h.editor[0], err)
	}
	return nil
}

func (h *cliHost) ReportError(ctx context.Context, op string, err error) {
	h.mu.Lock()
	h.reported = err
	h.mu.Unlock()

	switch ops.Classify(err) {
	case ops.CategoryServer:
		fmt.Fprintf(h.errOut, "%s failed: the project server refused: %v\n", op, err)
	case ops.CategoryTransport:
		fmt.Fprintf(h.errOut, "%s failed: lost contact with the project server: %v\n", op, err)
	default:
		fmt.Fprintf(h.errOut, "%s failed: %v\n", op, err)
	}
}

// wasReported reports whether err is the failure last shown by ReportError.
func (h *cliHost) wasReported(err error) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reported != nil && errors.Is(err, h.reported)
}
