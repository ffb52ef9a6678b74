package engine

import "errors"

var (
	// ErrLaunch means the engine executable could not be started. The user
	// can recover by choosing another engine.
	ErrLaunch = errors.New("engine launch failed")

	// ErrCrashed means the engine process exited unexpectedly.
	ErrCrashed = errors.New("engine crashed")

	// ErrUnresponsive means the engine did not acknowledge a command within
	// its deadline and was force-terminated.
	ErrUnresponsive = errors.New("engine unresponsive")

	// ErrProtocol means the engine sent malformed or illegal data. The
	// engine is considered unreliable for the rest of the session.
	ErrProtocol = errors.New("engine protocol violation")
)
