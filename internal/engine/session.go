package engine

import (
	"log/slog"
	"time"

	"github.com/rvedder/gambit/internal/uci"
)

// State of one analysis/play cycle.
type State int

const (
	Idle State = iota
	Configuring
	Searching
	Stopping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Configuring:
		return "configuring"
	case Searching:
		return "searching"
	case Stopping:
		return "stopping"
	default:
		return "unknown"
	}
}

const (
	defaultStopTimeout = 3 * time.Second
	eventBufferSize    = 64
)

// transport is the part of an engine a session drives. Engine implements it;
// tests substitute a scripted fake.
type transport interface {
	Send(cmd string) error
	Lines() <-chan string
	Kill() error
}

type ctlKind int

const (
	ctlStart ctlKind = iota
	ctlStop
	ctlForce
	ctlNewGame
	ctlClose
)

type control struct {
	kind ctlKind
	req  SearchRequest
}

// Session owns the single in-flight search of one engine. All engine output
// is consumed on the session's goroutine and turned into events; starting a
// new search while one is active stops the previous one first and discards
// its remaining output.
type Session struct {
	transport   transport
	stopTimeout time.Duration

	ctl    chan control
	events chan Event
	closed chan struct{}

	// Run-loop state, owned by the run goroutine.
	state        State
	current      SearchRequest
	pending      *SearchRequest
	deliver      bool
	goSent       bool
	stopSent     bool
	sawOutput    bool
	killed       bool
	stopDeadline <-chan time.Time
}

// NewSession starts a session loop on the given engine.
func NewSession(t transport) *Session {
	return newSession(t, defaultStopTimeout)
}

func newSession(t transport, stopTimeout time.Duration) *Session {
	s := &Session{
		transport:   t,
		stopTimeout: stopTimeout,
		ctl:         make(chan control),
		events:      make(chan Event, eventBufferSize),
		closed:      make(chan struct{}),
	}

	go s.run()

	return s
}

// Events returns the session's event stream. It is closed when the session
// shuts down.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Start begins a new search. An active search is stopped first; none of its
// remaining output is surfaced.
func (s *Session) Start(req SearchRequest) {
	s.send(control{kind: ctlStart, req: req})
}

// Stop cancels the active search. The engine's concluding best move is
// swallowed, not reported.
func (s *Session) Stop() {
	s.send(control{kind: ctlStop})
}

// ForceMove stops the active search but delivers the move the engine was
// converging toward as a BestMoveResult.
func (s *Session) ForceMove() {
	s.send(control{kind: ctlForce})
}

// NewGame hints to the engine that upcoming searches belong to a fresh game,
// so it can clear game-scoped state like killer tables. The hint is only
// passed on while no search is active.
func (s *Session) NewGame() {
	s.send(control{kind: ctlNewGame})
}

// Close shuts the session loop down. It does not unload the engine.
func (s *Session) Close() {
	s.send(control{kind: ctlClose})
	<-s.closed
}

func (s *Session) send(c control) {
	select {
	case s.ctl <- c:
	case <-s.closed:
	}
}

func (s *Session) run() {
	defer close(s.closed)
	defer close(s.events)

	for {
		select {
		case line, ok := <-s.transport.Lines():
			if !ok {
				s.handleExit()
				return
			}
			s.handleLine(line)
		case c := <-s.ctl:
			switch c.kind {
			case ctlStart:
				s.handleStart(c.req)
			case ctlStop:
				s.requestStop(false)
			case ctlForce:
				s.requestStop(true)
			case ctlNewGame:
				s.handleNewGame()
			case ctlClose:
				return
			}
		case <-s.stopDeadline:
			s.handleStopTimeout()
		}
	}
}

// handleExit deals with the output stream closing, which means the process
// exited. A session being torn down via Close never reaches this, so it is
// a crash; it is surfaced exactly once and the engine is not restarted.
func (s *Session) handleExit() {
	if s.killed {
		return
	}

	slog.Warn("Engine process exited unexpectedly", "state", s.state.String())
	s.events <- EngineError{RequestID: s.current.ID, Err: ErrCrashed}
	s.reset()
}

func (s *Session) reset() {
	s.state = Idle
	s.pending = nil
	s.deliver = false
	s.goSent = false
	s.stopSent = false
	s.sawOutput = false
	s.stopDeadline = nil
}

func (s *Session) handleStart(req SearchRequest) {
	switch s.state {
	case Idle:
		s.beginSearch(req)
	case Configuring, Searching:
		// Engines are not guaranteed to accept overlapping go commands:
		// stop the active search and begin this one when it unwinds.
		r := req
		s.pending = &r
		s.requestStop(false)
	case Stopping:
		r := req
		s.pending = &r
	}
}

func (s *Session) handleNewGame() {
	if s.state != Idle {
		slog.Debug("Skipping ucinewgame, search active", "state", s.state.String())
		return
	}

	if err := s.transport.Send(uci.CmdUCINewGame); err != nil {
		slog.Warn("Failed to send ucinewgame", "err", err)
	}
}

func (s *Session) beginSearch(req SearchRequest) {
	s.current = req
	s.state = Configuring
	s.goSent = false
	s.stopSent = false
	s.sawOutput = false
	s.deliver = false
	s.pending = nil

	slog.Debug("Starting search", "request", req.ID, "limits", uci.EncodeGo(req.Limits))

	if err := s.transport.Send(uci.EncodePosition(req.FEN, req.Moves)); err != nil {
		slog.Warn("Failed to send position", "err", err)
		return
	}

	if err := s.transport.Send(uci.CmdIsReady); err != nil {
		slog.Warn("Failed to send isready", "err", err)
	}
}

func (s *Session) requestStop(deliver bool) {
	switch s.state {
	case Configuring:
		// go was not sent yet; the search is swallowed when the engine
		// confirms readiness.
		s.deliver = false
		s.enterStopping()
	case Searching:
		s.deliver = deliver
		s.enterStopping()

		// stop must never race ahead of go: defer it until the engine
		// produced at least one output line for this search.
		if s.sawOutput {
			s.sendStop()
		}
	}
}

// enterStopping arms the unresponsiveness deadline alongside the state
// change. The deadline runs from the cancellation request, not from the stop
// command going out: an engine that never produces the output a deferred
// stop waits on is just as hung as one that ignores stop.
func (s *Session) enterStopping() {
	s.state = Stopping
	s.stopDeadline = time.After(s.stopTimeout)
}

func (s *Session) sendStop() {
	if s.stopSent {
		return
	}
	s.stopSent = true

	if err := s.transport.Send(uci.CmdStop); err != nil {
		slog.Warn("Failed to send stop", "err", err)
	}

	s.stopDeadline = time.After(s.stopTimeout)
}

func (s *Session) handleLine(line string) {
	msg := uci.ParseLine(line)

	_, isBestMove := msg.(uci.BestMove)

	if s.goSent && !s.sawOutput {
		s.sawOutput = true

		// A deferred stop can go out now, unless this line already
		// concludes the search.
		if s.state == Stopping && !isBestMove {
			s.sendStop()
		}
	}

	switch msg := msg.(type) {
	case uci.ReadyOk:
		s.handleReadyOk()
	case uci.Info:
		s.handleInfo(msg)
	case uci.BestMove:
		s.handleBestMove(msg)
	default:
		// Identity lines outside the handshake, vendor extensions and
		// unparsed lines are tolerated silently.
	}
}

func (s *Session) handleReadyOk() {
	switch s.state {
	case Configuring:
		if err := s.transport.Send(uci.EncodeGo(s.current.Limits)); err != nil {
			slog.Warn("Failed to send go", "err", err)
			return
		}
		s.goSent = true
		s.sawOutput = false
		s.state = Searching
	case Stopping:
		if !s.goSent {
			// The search was cancelled before go went out.
			s.finishSearch()
		}
	}
}

func (s *Session) handleInfo(info uci.Info) {
	// Updates for a stopped or superseded search are discarded, never
	// surfaced.
	if s.state != Searching {
		return
	}

	// Heartbeat lines (currmove, hashfull, info string) carry nothing to
	// display.
	if info.Score == nil && len(info.PV) == 0 {
		return
	}

	var score uci.Score
	if info.Score != nil {
		score = *info.Score
	}

	// The engine reports scores for the side to move; flip so the
	// application always sees white-relative values.
	if !s.current.WhiteToMove {
		score = score.Negate()
	}

	s.events <- AnalysisUpdate{
		RequestID: s.current.ID,
		Depth:     info.Depth,
		Score:     score,
		PV:        info.PV,
		Nodes:     info.Nodes,
		NPS:       info.NPS,
		TimeMS:    info.TimeMS,
	}
}

func (s *Session) handleBestMove(best uci.BestMove) {
	switch s.state {
	case Searching:
		s.events <- BestMoveResult{
			RequestID: s.current.ID,
			Move:      best.Move,
			Ponder:    best.Ponder,
		}
		s.finishSearch()
	case Stopping:
		if s.deliver {
			s.events <- BestMoveResult{
				RequestID: s.current.ID,
				Move:      best.Move,
				Ponder:    best.Ponder,
			}
		}
		s.finishSearch()
	default:
		slog.Debug("Ignoring stray best move", "move", best.Move)
	}
}

// finishSearch returns to idle and begins the queued search, if any.
func (s *Session) finishSearch() {
	pending := s.pending
	s.reset()

	if pending != nil {
		s.beginSearch(*pending)
	}
}

func (s *Session) handleStopTimeout() {
	if s.state != Stopping {
		return
	}

	slog.Warn("Engine did not acknowledge stop, killing", "request", s.current.ID)

	s.killed = true
	if err := s.transport.Kill(); err != nil {
		slog.Warn("Failed to kill engine", "err", err)
	}

	s.events <- EngineError{RequestID: s.current.ID, Err: ErrUnresponsive}
	s.reset()
}
