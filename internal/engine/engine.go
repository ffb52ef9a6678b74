package engine

import (
	"fmt"
	"time"

	"github.com/rvedder/gambit/internal/uci"
)

const (
	handshakeTimeout = 5 * time.Second
	quitTimeout      = 2 * time.Second
)

// Engine is a loaded UCI engine: a running process that completed the
// handshake. At most one search runs per engine; see Session.
type Engine struct {
	proc    *Process
	name    string
	author  string
	options map[string]uci.Option
	ready   bool
}

// Load spawns the engine at path, performs the UCI handshake and applies the
// given options. The returned engine is ready for searches.
func Load(path string, options map[string]string) (*Engine, error) {
	proc, err := StartProcess(path)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		proc:    proc,
		options: make(map[string]uci.Option),
	}

	if err := e.handshake(); err != nil {
		proc.Close(quitTimeout)
		return nil, err
	}

	for name, value := range options {
		if err := proc.Send(uci.EncodeSetOption(name, value)); err != nil {
			proc.Close(quitTimeout)
			return nil, err
		}
	}

	// A final isready round trip confirms the options were consumed.
	if err := e.sync(); err != nil {
		proc.Close(quitTimeout)
		return nil, err
	}

	e.ready = true

	return e, nil
}

// handshake sends "uci" and collects identity and option declarations until
// the engine confirms with "uciok".
func (e *Engine) handshake() error {
	if err := e.proc.Send(uci.CmdUCI); err != nil {
		return err
	}

	deadline := time.After(handshakeTimeout)

	for {
		select {
		case line, ok := <-e.proc.Lines():
			if !ok {
				return fmt.Errorf("%w: during handshake", ErrCrashed)
			}

			switch msg := uci.ParseLine(line).(type) {
			case uci.ID:
				if msg.Name != "" {
					e.name = msg.Name
				}
				if msg.Author != "" {
					e.author = msg.Author
				}
			case uci.Option:
				e.options[msg.Name] = msg
			case uci.UCIOk:
				return nil
			}
		case <-deadline:
			return fmt.Errorf("%w: no uciok within %s", ErrUnresponsive, handshakeTimeout)
		}
	}
}

// sync sends "isready" and waits for "readyok".
func (e *Engine) sync() error {
	if err := e.proc.Send(uci.CmdIsReady); err != nil {
		return err
	}

	deadline := time.After(handshakeTimeout)

	for {
		select {
		case line, ok := <-e.proc.Lines():
			if !ok {
				return fmt.Errorf("%w: waiting for readyok", ErrCrashed)
			}

			if _, ok := uci.ParseLine(line).(uci.ReadyOk); ok {
				return nil
			}
		case <-deadline:
			return fmt.Errorf("%w: no readyok within %s", ErrUnresponsive, handshakeTimeout)
		}
	}
}

// Name returns the name the engine declared during the handshake.
func (e *Engine) Name() string {
	return e.name
}

// Author returns the author the engine declared during the handshake.
func (e *Engine) Author() string {
	return e.author
}

// Options returns the options the engine declared during the handshake.
func (e *Engine) Options() map[string]uci.Option {
	return e.options
}

// Ready reports whether the handshake completed.
func (e *Engine) Ready() bool {
	return e.ready
}

// Alive reports whether the engine process is still running.
func (e *Engine) Alive() bool {
	return e.proc.Alive()
}

// Send writes one command line to the engine.
func (e *Engine) Send(cmd string) error {
	return e.proc.Send(cmd)
}

// Lines returns the engine's output line channel.
func (e *Engine) Lines() <-chan string {
	return e.proc.Lines()
}

// Kill force-terminates the engine process.
func (e *Engine) Kill() error {
	return e.proc.Kill()
}

// Close unloads the engine: it requests a graceful quit and force-terminates
// after a bounded timeout. Closing twice is a no-op.
func (e *Engine) Close() {
	e.ready = false
	e.proc.Close(quitTimeout)
}
