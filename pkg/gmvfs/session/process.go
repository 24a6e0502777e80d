package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultShutdownGrace is how long a closed server process is given to exit
// before it is killed.
const DefaultShutdownGrace = 5 * time.Second

// ProcessConnector starts the project server as a child process and talks
// to it over stdin/stdout. The server is invoked as
//
//	<ServerPath> <ProjectPath> <WorkingDir> [<LogPath>]
//
// and every stderr line is forwarded to the session logger.
type ProcessConnector struct {
	ServerPath  string
	ProjectPath string
	WorkingDir  string
	LogPath     string

	// ShutdownGrace overrides DefaultShutdownGrace when positive.
	ShutdownGrace time.Duration
}

// LogFile names the file the server writes its own log to.
func (p ProcessConnector) LogFile() string {
	return p.LogPath
}

func (p ProcessConnector) Connect(ctx context.Context, logger *zap.Logger) (Conn, error) {
	if p.ServerPath == "" {
		return nil, fmt.Errorf("server executable is required")
	}
	if p.ProjectPath == "" {
		return nil, fmt.Errorf("project path is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	args := []string{p.ProjectPath, p.WorkingDir}
	if p.LogPath != "" {
		args = append(args, p.LogPath)
	}

	cmd := exec.Command(p.ServerPath, args...)
	if p.WorkingDir != "" {
		cmd.Dir = p.WorkingDir
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", p.ServerPath, err)
	}

	logger = logger.With(zap.Int("pid", cmd.Process.Pid))
	logger.Info("Project server started",
		zap.String("executable", p.ServerPath),
		zap.String("project", p.ProjectPath))

	out := newDrainReader(stdout)
	errOut := newDrainReader(stderr)
	go forwardStderr(errOut, logger)

	grace := p.ShutdownGrace
	if grace <= 0 {
		grace = DefaultShutdownGrace
	}

	pc := &processConn{cmd: cmd, stdin: stdin, grace: grace, logger: logger, outputs: []*drainReader{out, errOut}}
	pc.lineConn = newLineConn(out, stdin, pc.stop)

	return pc, nil
}

func (p *processConn) awaitDrained(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for _, r := range p.outputs {
		select {
		case <-r.done:
		case <-timer.C:
			return false
		}
	}
	return true
}

// drainReader closes done once the underlying reader returns an error,
// usually io.EOF when the process closes its end.
type drainReader struct {
	r    io.Reader
	once sync.Once
	done chan struct{}
}

func newDrainReader(r io.Reader) *drainReader {
	return &drainReader{r: r, done: make(chan struct{})}
}

func (d *drainReader) Read(p []byte) (int, error) {
	n, err := d.r.Read(p)
	if err != nil {
		d.once.Do(func() { close(d.done) })
	}
	return n, err
}

func forwardStderr(r io.Reader, logger *zap.Logger) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		logger.Info(scanner.Text(), zap.String("stream", "stderr"))
	}
	// Keep reading past an over-long line so the pipe still reaches EOF.
	_, _ = io.Copy(io.Discard, r)
}

type processConn struct {
	*lineConn

	cmd     *exec.Cmd
	stdin   io.Closer
	grace   time.Duration
	logger  *zap.Logger
	outputs []*drainReader
}

// stop closes stdin and waits up to the grace period for the server to
// close its output, killing it otherwise. Wait closes the stdout and stderr
// pipes, so it only runs once their readers have seen EOF.
func (p *processConn) stop() error {
	_ = p.stdin.Close()

	if !p.awaitDrained(p.grace) {
		p.logger.Warn("Project server did not exit, killing it", zap.Duration("grace", p.grace))
		_ = p.cmd.Process.Kill()
		if !p.awaitDrained(p.grace) {
			p.logger.Warn("Project server output still open after kill")
		}
	}

	err := p.cmd.Wait()

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		p.logger.Info("Project server exited", zap.Int("exit_code", exitErr.ExitCode()))
		return nil
	}
	if err == nil {
		p.logger.Info("Project server exited", zap.Int("exit_code", 0))
	}
	return err
}
