package engine

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/rvedder/gambit/internal/uci"
)

const lineBufferSize = 64

// Process owns one engine subprocess and its line-buffered pipes. A dedicated
// goroutine blocks on stdout reads and forwards whole lines over a channel;
// channel closure means the process exited.
type Process struct {
	path      string
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	lines     chan string
	done      chan struct{}
	closeOnce sync.Once
}

// StartProcess spawns the engine executable at path with piped stdin/stdout.
func StartProcess(path string) (*Process, error) {
	cmd := exec.Command(path)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdin pipe: %v", ErrLaunch, err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdout pipe: %v", ErrLaunch, err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLaunch, err)
	}

	p := &Process{
		path:  path,
		cmd:   cmd,
		stdin: stdin,
		lines: make(chan string, lineBufferSize),
		done:  make(chan struct{}),
	}

	slog.Debug("Engine process started", "path", path, "pid", cmd.Process.Pid)

	go p.readLines(stdout)
	go p.wait()

	return p, nil
}

// readLines forwards stdout lines until the stream closes.
func (p *Process) readLines(stdout io.ReadCloser) {
	reader := bufio.NewReader(stdout)

	for {
		line, err := reader.ReadString('\n')

		if line != "" {
			slog.Debug("Engine stdout", "line", strings.TrimRight(line, "\n"))
			p.lines <- line
		}

		if err != nil {
			close(p.lines)
			return
		}
	}
}

func (p *Process) wait() {
	err := p.cmd.Wait()
	slog.Debug("Engine process exited", "path", p.path, "err", err)
	close(p.done)
}

// Send writes one command line to the engine's stdin. Writes are
// fire-and-forget; they may block briefly on OS pipe buffers.
func (p *Process) Send(cmd string) error {
	slog.Debug("Engine stdin", "cmd", cmd)

	if _, err := io.WriteString(p.stdin, cmd+"\n"); err != nil {
		return fmt.Errorf("failed to write command: %w", err)
	}

	return nil
}

// Lines returns the channel of engine output lines. It is closed when the
// process exits.
func (p *Process) Lines() <-chan string {
	return p.lines
}

// Alive reports whether the process is still running without blocking.
func (p *Process) Alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Kill force-terminates the process.
func (p *Process) Kill() error {
	if err := p.cmd.Process.Kill(); err != nil {
		return fmt.Errorf("failed to kill engine process: %w", err)
	}

	return nil
}

// Close requests a protocol-level quit and waits up to timeout for the
// process to exit before force-terminating it. Closing an already-closed
// process is a no-op.
func (p *Process) Close(timeout time.Duration) {
	p.closeOnce.Do(func() {
		// Drain remaining output so the reader goroutine can finish.
		go func() {
			for range p.lines {
			}
		}()

		if err := p.Send(uci.CmdQuit); err != nil {
			slog.Debug("Engine quit command failed", "err", err)
		}

		select {
		case <-p.done:
		case <-time.After(timeout):
			slog.Warn("Engine did not quit in time, killing", "path", p.path)

			if err := p.Kill(); err != nil {
				slog.Warn("Failed to kill engine", "err", err)
			}
			<-p.done
		}

		_ = p.stdin.Close()
	})
}
