package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rvedder/gambit/internal/uci"
)

// fakeTransport scripts an engine: tests inspect sent commands and feed
// output lines.
type fakeTransport struct {
	mu     sync.Mutex
	sent   []string
	lines  chan string
	killed bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{lines: make(chan string, 64)}
}

func (f *fakeTransport) Send(cmd string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.sent = append(f.sent, cmd)
	return nil
}

func (f *fakeTransport) Lines() <-chan string {
	return f.lines
}

func (f *fakeTransport) Kill() error {
	f.crash()
	return nil
}

// crash closes the line stream, as a dead process would.
func (f *fakeTransport) crash() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.killed {
		f.killed = true
		close(f.lines)
	}
}

func (f *fakeTransport) emit(line string) {
	f.lines <- line
}

func (f *fakeTransport) sentCount(cmd string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	count := 0
	for _, sent := range f.sent {
		if sent == cmd {
			count++
		}
	}
	return count
}

func (f *fakeTransport) wasKilled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.killed
}

func waitForSent(t *testing.T, tr *fakeTransport, cmd string) {
	t.Helper()
	waitForSentCount(t, tr, cmd, 1)
}

func waitForSentCount(t *testing.T, tr *fakeTransport, cmd string, count int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return tr.sentCount(cmd) >= count
	}, time.Second, time.Millisecond, "command %q not sent %d times", cmd, count)
}

func waitEvent(t *testing.T, s *Session) Event {
	t.Helper()

	select {
	case ev, ok := <-s.Events():
		require.True(t, ok, "event channel closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func waitClosed(t *testing.T, s *Session) {
	t.Helper()

	select {
	case _, ok := <-s.Events():
		assert.False(t, ok, "expected event channel to be closed")
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event channel to close")
	}
}

func TestSessionCompletesSearch(t *testing.T) {
	tr := newFakeTransport()
	s := NewSession(tr)
	defer s.Close()

	req := NewSearchRequest("", nil, uci.Limits{Depth: 10})
	s.Start(req)

	waitForSent(t, tr, "position startpos")
	waitForSent(t, tr, "isready")
	tr.emit("readyok\n")
	waitForSent(t, tr, "go depth 10")

	tr.emit("info depth 10 score cp 34 pv e2e4 e7e5\n")

	update, ok := waitEvent(t, s).(AnalysisUpdate)
	require.True(t, ok)
	assert.Equal(t, req.ID, update.RequestID)
	assert.Equal(t, 10, update.Depth)
	assert.Equal(t, uci.Score{CP: 34}, update.Score)
	assert.Equal(t, []string{"e2e4", "e7e5"}, update.PV)

	tr.emit("bestmove e2e4 ponder e7e5\n")

	result, ok := waitEvent(t, s).(BestMoveResult)
	require.True(t, ok)
	assert.Equal(t, req.ID, result.RequestID)
	assert.Equal(t, "e2e4", result.Move)
	assert.Equal(t, "e7e5", result.Ponder)
}

func TestSessionFlipsScoreForBlack(t *testing.T) {
	tr := newFakeTransport()
	s := NewSession(tr)
	defer s.Close()

	fen := "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1"
	req := NewSearchRequest(fen, nil, uci.Limits{Depth: 8})
	require.False(t, req.WhiteToMove)

	s.Start(req)
	waitForSent(t, tr, "position fen "+fen)
	tr.emit("readyok\n")
	waitForSent(t, tr, "go depth 8")

	// -50 for the side to move (black) is +0.50 for white.
	tr.emit("info depth 8 score cp -50 pv e7e5\n")

	update, ok := waitEvent(t, s).(AnalysisUpdate)
	require.True(t, ok)
	assert.Equal(t, uci.Score{CP: 50}, update.Score)
}

func TestSessionSupersedesActiveSearch(t *testing.T) {
	tr := newFakeTransport()
	s := NewSession(tr)
	defer s.Close()

	first := NewSearchRequest("", nil, uci.Limits{Infinite: true})
	s.Start(first)
	waitForSent(t, tr, "isready")
	tr.emit("readyok\n")
	waitForSent(t, tr, "go infinite")

	tr.emit("info depth 1 score cp 10 pv e2e4\n")
	firstUpdate, ok := waitEvent(t, s).(AnalysisUpdate)
	require.True(t, ok)
	assert.Equal(t, first.ID, firstUpdate.RequestID)

	// Starting a new search stops the old one first.
	second := NewSearchRequest("", []string{"e2e4"}, uci.Limits{Depth: 12})
	s.Start(second)
	waitForSent(t, tr, "stop")

	// Remaining output of the superseded search is discarded, including
	// its concluding best move.
	tr.emit("info depth 2 score cp 20 pv e2e4\n")
	tr.emit("bestmove e2e4\n")

	waitForSent(t, tr, "position startpos moves e2e4")
	waitForSentCount(t, tr, "isready", 2)
	tr.emit("readyok\n")
	waitForSent(t, tr, "go depth 12")

	tr.emit("info depth 12 score cp -30 pv e7e5\n")
	tr.emit("bestmove e7e5\n")

	// Black to move after e2e4: the score flips to white-relative.
	update, ok := waitEvent(t, s).(AnalysisUpdate)
	require.True(t, ok, "expected no leaked events from the superseded search")
	assert.Equal(t, second.ID, update.RequestID)
	assert.Equal(t, uci.Score{CP: 30}, update.Score)

	result, ok := waitEvent(t, s).(BestMoveResult)
	require.True(t, ok)
	assert.Equal(t, second.ID, result.RequestID)
	assert.Equal(t, "e7e5", result.Move)
}

func TestSessionStopBeforeFirstOutput(t *testing.T) {
	tr := newFakeTransport()
	s := NewSession(tr)
	defer s.Close()

	req := NewSearchRequest("", nil, uci.Limits{Infinite: true})
	s.Start(req)
	tr.emit("readyok\n")
	waitForSent(t, tr, "go infinite")

	s.Stop()

	// stop is held back until the engine produced output for this go.
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, tr.sentCount("stop"))

	tr.emit("info depth 1 score cp 0 pv e2e4\n")
	waitForSent(t, tr, "stop")

	// The concluding best move is swallowed and the session is idle
	// again: a follow-up search runs to completion.
	tr.emit("bestmove e2e4\n")

	next := NewSearchRequest("", nil, uci.Limits{Depth: 4})
	s.Start(next)
	waitForSentCount(t, tr, "position startpos", 2)
	tr.emit("readyok\n")
	waitForSent(t, tr, "go depth 4")
	tr.emit("bestmove d2d4\n")

	result, ok := waitEvent(t, s).(BestMoveResult)
	require.True(t, ok, "expected the cancelled search to deliver nothing")
	assert.Equal(t, next.ID, result.RequestID)
	assert.Equal(t, "d2d4", result.Move)
}

func TestSessionForceMoveDeliversResult(t *testing.T) {
	tr := newFakeTransport()
	s := NewSession(tr)
	defer s.Close()

	req := NewSearchRequest("", nil, uci.Limits{Infinite: true})
	s.Start(req)
	tr.emit("readyok\n")
	waitForSent(t, tr, "go infinite")

	tr.emit("info depth 6 score cp 12 pv d2d4\n")
	_ = waitEvent(t, s)

	s.ForceMove()
	waitForSent(t, tr, "stop")

	tr.emit("bestmove d2d4\n")

	result, ok := waitEvent(t, s).(BestMoveResult)
	require.True(t, ok)
	assert.Equal(t, req.ID, result.RequestID)
	assert.Equal(t, "d2d4", result.Move)
}

func TestSessionEngineCrashMidSearch(t *testing.T) {
	tr := newFakeTransport()
	s := NewSession(tr)
	defer s.Close()

	req := NewSearchRequest("", nil, uci.Limits{Infinite: true})
	s.Start(req)
	tr.emit("readyok\n")
	waitForSent(t, tr, "go infinite")

	tr.emit("info depth 3 score cp 5 pv e2e4\n")
	_ = waitEvent(t, s)

	tr.crash()

	// Exactly one EngineCrashed, no BestMoveResult, then shutdown.
	ev, ok := waitEvent(t, s).(EngineError)
	require.True(t, ok)
	assert.ErrorIs(t, ev.Err, ErrCrashed)
	assert.Equal(t, req.ID, ev.RequestID)

	waitClosed(t, s)
}

func TestSessionUnresponsiveEngineIsKilled(t *testing.T) {
	tr := newFakeTransport()
	s := newSession(tr, 50*time.Millisecond)
	defer s.Close()

	req := NewSearchRequest("", nil, uci.Limits{Infinite: true})
	s.Start(req)
	tr.emit("readyok\n")
	waitForSent(t, tr, "go infinite")

	tr.emit("info depth 1 score cp 0 pv e2e4\n")
	_ = waitEvent(t, s)

	s.Stop()
	waitForSent(t, tr, "stop")

	// No best move acknowledgment arrives: the engine is presumed hung.
	ev, ok := waitEvent(t, s).(EngineError)
	require.True(t, ok)
	assert.ErrorIs(t, ev.Err, ErrUnresponsive)
	assert.True(t, tr.wasKilled())

	waitClosed(t, s)
}

func TestSessionSilentEngineIsKilledOnStop(t *testing.T) {
	tr := newFakeTransport()
	s := newSession(tr, 50*time.Millisecond)
	defer s.Close()

	req := NewSearchRequest("", nil, uci.Limits{Infinite: true})
	s.Start(req)
	tr.emit("readyok\n")
	waitForSent(t, tr, "go infinite")

	// The engine never produces output, so the stop stays deferred. The
	// unresponsiveness deadline still has to fire.
	s.Stop()

	ev, ok := waitEvent(t, s).(EngineError)
	require.True(t, ok)
	assert.ErrorIs(t, ev.Err, ErrUnresponsive)
	assert.Zero(t, tr.sentCount("stop"))
	assert.True(t, tr.wasKilled())

	waitClosed(t, s)
}

func TestSessionHungHandshakeIsKilledOnStop(t *testing.T) {
	tr := newFakeTransport()
	s := newSession(tr, 50*time.Millisecond)
	defer s.Close()

	req := NewSearchRequest("", nil, uci.Limits{Depth: 10})
	s.Start(req)
	waitForSent(t, tr, "isready")

	// Cancelling while readyok is outstanding: a hung engine never
	// confirms, so the deadline kills it.
	s.Stop()

	ev, ok := waitEvent(t, s).(EngineError)
	require.True(t, ok)
	assert.ErrorIs(t, ev.Err, ErrUnresponsive)
	assert.True(t, tr.wasKilled())

	waitClosed(t, s)
}

func TestSessionNewGameHint(t *testing.T) {
	tr := newFakeTransport()
	s := NewSession(tr)
	defer s.Close()

	s.NewGame()
	waitForSent(t, tr, "ucinewgame")

	// While a search is active the hint is dropped, not queued.
	req := NewSearchRequest("", nil, uci.Limits{Infinite: true})
	s.Start(req)
	tr.emit("readyok\n")
	waitForSent(t, tr, "go infinite")

	s.NewGame()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, tr.sentCount("ucinewgame"))
}

func TestNewSearchRequestSideToMove(t *testing.T) {
	assert.True(t, NewSearchRequest("", nil, uci.Limits{}).WhiteToMove)
	assert.False(t, NewSearchRequest("", []string{"e2e4"}, uci.Limits{}).WhiteToMove)
	assert.True(t, NewSearchRequest("", []string{"e2e4", "e7e5"}, uci.Limits{}).WhiteToMove)

	blackFEN := "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1"
	assert.False(t, NewSearchRequest(blackFEN, nil, uci.Limits{}).WhiteToMove)
	assert.True(t, NewSearchRequest(blackFEN, []string{"e7e5"}, uci.Limits{}).WhiteToMove)
}
