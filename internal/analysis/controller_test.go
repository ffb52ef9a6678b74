package analysis

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rvedder/gambit/internal/engine"
	"github.com/rvedder/gambit/internal/game"
	"github.com/rvedder/gambit/internal/uci"
)

// fakeSearcher records what the controller asks of the session and lets
// tests script the engine's responses.
type fakeSearcher struct {
	mu       sync.Mutex
	events   chan engine.Event
	started  []engine.SearchRequest
	stops    int
	forces   int
	newGames int
}

func newFakeSearcher() *fakeSearcher {
	return &fakeSearcher{
		events: make(chan engine.Event, 16),
	}
}

func (f *fakeSearcher) Events() <-chan engine.Event {
	return f.events
}

func (f *fakeSearcher) Start(req engine.SearchRequest) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, req)
}

func (f *fakeSearcher) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
}

func (f *fakeSearcher) ForceMove() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forces++
}

func (f *fakeSearcher) NewGame() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.newGames++
}

func (f *fakeSearcher) Close() {
	close(f.events)
}

func (f *fakeSearcher) emit(event engine.Event) {
	f.events <- event
}

func (f *fakeSearcher) lastRequest() engine.SearchRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started[len(f.started)-1]
}

func (f *fakeSearcher) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.started)
}

func (f *fakeSearcher) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

func (f *fakeSearcher) newGameCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.newGames
}

func waitUIEvent(t *testing.T, c *Controller) UIEvent {
	t.Helper()

	select {
	case event, ok := <-c.Events():
		require.True(t, ok, "event channel closed")
		return event
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func newTestController(t *testing.T) (*Controller, *fakeSearcher) {
	t.Helper()

	f := newFakeSearcher()
	c := NewController(f, game.New(), NewCache(), nil, "testengine")
	t.Cleanup(c.Close)

	return c, f
}

func TestControllerAnalysisUpdates(t *testing.T) {
	c, f := newTestController(t)

	c.StartAnalysis()
	req := f.lastRequest()
	assert.True(t, req.Limits.Infinite)

	f.emit(engine.AnalysisUpdate{
		RequestID: req.ID,
		Depth:     12,
		Score:     uci.Score{CP: 34},
		PV:        []string{"e2e4", "e7e5"},
		Nodes:     100000,
	})

	event := waitUIEvent(t, c)
	update, ok := event.(UpdateEvent)
	require.True(t, ok, "expected UpdateEvent, got %T", event)

	assert.Equal(t, 12, update.Depth)
	assert.Equal(t, 34, update.Score.CP)
	assert.Equal(t, "e4 e5", update.Line)

	// The update also lands in the cache.
	cached, ok := c.CachedEvaluation()
	require.True(t, ok)
	assert.Equal(t, 12, cached.Depth)
	assert.Equal(t, "e2e4", cached.BestMove)
}

func TestControllerDropsUntrackedUpdates(t *testing.T) {
	c, f := newTestController(t)

	c.StartAnalysis()
	req := f.lastRequest()

	f.emit(engine.AnalysisUpdate{
		RequestID: uuid.New(),
		Depth:     30,
		Score:     uci.Score{CP: 999},
		PV:        []string{"a2a3"},
	})
	f.emit(engine.AnalysisUpdate{
		RequestID: req.ID,
		Depth:     5,
		Score:     uci.Score{CP: 20},
		PV:        []string{"d2d4"},
	})

	event := waitUIEvent(t, c)
	update, ok := event.(UpdateEvent)
	require.True(t, ok, "expected UpdateEvent, got %T", event)
	assert.Equal(t, 5, update.Depth)
}

func TestControllerAppliesEngineMove(t *testing.T) {
	c, f := newTestController(t)

	require.NoError(t, c.RequestEngineMove(uci.Limits{Depth: 18}))
	req := f.lastRequest()
	assert.Equal(t, 18, req.Limits.Depth)

	f.emit(engine.BestMoveResult{RequestID: req.ID, Move: "e2e4"})

	event := waitUIEvent(t, c)
	moveEvent, ok := event.(EngineMoveEvent)
	require.True(t, ok, "expected EngineMoveEvent, got %T", event)

	assert.Equal(t, "e4", moveEvent.Move.SAN)
	assert.Equal(t, []string{"e2e4"}, c.Game().MoveTokens())
}

func TestControllerEngineMoveEndsGame(t *testing.T) {
	c, f := newTestController(t)

	require.NoError(t, c.SetFEN("6k1/5ppp/8/8/8/8/8/4R2K w - - 0 1"))
	require.NoError(t, c.RequestEngineMove(uci.Limits{MoveTime: 100}))

	f.emit(engine.BestMoveResult{RequestID: f.lastRequest().ID, Move: "e1e8"})

	event := waitUIEvent(t, c)
	moveEvent, ok := event.(EngineMoveEvent)
	require.True(t, ok, "expected EngineMoveEvent, got %T", event)
	assert.Equal(t, "Re8#", moveEvent.Move.SAN)

	event = waitUIEvent(t, c)
	overEvent, ok := event.(GameOverEvent)
	require.True(t, ok, "expected GameOverEvent, got %T", event)
	assert.Equal(t, "1-0", overEvent.Status.Outcome)

	// No more moves can be requested in a finished game.
	assert.Error(t, c.RequestEngineMove(uci.Limits{Depth: 1}))
}

func TestControllerRejectsIllegalEngineMove(t *testing.T) {
	c, f := newTestController(t)

	require.NoError(t, c.RequestEngineMove(uci.Limits{Depth: 1}))
	f.emit(engine.BestMoveResult{RequestID: f.lastRequest().ID, Move: "e2e5"})

	event := waitUIEvent(t, c)
	errEvent, ok := event.(ErrorEvent)
	require.True(t, ok, "expected ErrorEvent, got %T", event)
	assert.ErrorIs(t, errEvent.Err, engine.ErrProtocol)

	assert.Empty(t, c.Game().MoveTokens())
}

func TestControllerHumanMoveRestartsAnalysis(t *testing.T) {
	c, f := newTestController(t)

	c.StartAnalysis()
	first := f.lastRequest()

	applied, err := c.PlayHumanMove("e2", "e4", "")
	require.NoError(t, err)
	assert.Equal(t, "e4", applied.SAN)

	require.Equal(t, 2, f.startCount())
	second := f.lastRequest()
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, []string{"e2e4"}, second.Moves)
}

func TestControllerForwardsEngineErrors(t *testing.T) {
	c, f := newTestController(t)

	f.emit(engine.EngineError{Err: engine.ErrCrashed})

	event := waitUIEvent(t, c)
	errEvent, ok := event.(ErrorEvent)
	require.True(t, ok, "expected ErrorEvent, got %T", event)
	assert.ErrorIs(t, errEvent.Err, engine.ErrCrashed)
}

func TestControllerNewGameStopsSearch(t *testing.T) {
	c, f := newTestController(t)

	_, err := c.PlayHumanMove("e2", "e4", "")
	require.NoError(t, err)

	c.NewGame()

	assert.Empty(t, c.Game().MoveTokens())
	assert.Equal(t, uci.StartPos, c.Game().FEN())
	assert.Equal(t, 1, f.stopCount())
	assert.Equal(t, 1, f.newGameCount())
}
