// Package analysis coordinates the engine session, the game state, the
// evaluation cache and the optional book server into one event stream the
// user interface consumes.
package analysis

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rvedder/gambit/internal/book"
	"github.com/rvedder/gambit/internal/engine"
	"github.com/rvedder/gambit/internal/game"
	"github.com/rvedder/gambit/internal/models"
	"github.com/rvedder/gambit/internal/uci"
)

const (
	uiEventBufferSize = 64
	bookSaveInterval  = time.Second
	heartbeatInterval = time.Minute
)

// searcher is the part of an engine session the controller drives.
type searcher interface {
	Events() <-chan engine.Event
	Start(req engine.SearchRequest)
	Stop()
	ForceMove()
	NewGame()
	Close()
}

// UIEvent is something the controller reports to the user interface.
type UIEvent interface {
	uiEvent()
}

// UpdateEvent is an analysis progress report for the current position.
// The score is white-relative and the line is rendered in standard
// algebraic notation.
type UpdateEvent struct {
	Depth  int
	Score  uci.Score
	Line   string
	Nodes  int64
	NPS    int64
	TimeMS int64
}

// EngineMoveEvent reports a move the engine played on the board.
type EngineMoveEvent struct {
	Move game.MoveApplied
}

// GameOverEvent reports that the game ended.
type GameOverEvent struct {
	Status game.Status
}

// ErrorEvent reports an engine failure. The controller keeps running; the
// application decides whether to reload the engine.
type ErrorEvent struct {
	Err error
}

func (UpdateEvent) uiEvent()     {}
func (EngineMoveEvent) uiEvent() {}
func (GameOverEvent) uiEvent()   {}
func (ErrorEvent) uiEvent()      {}

// Controller ties an engine session to a game. It restarts analysis after
// every move, applies engine best moves to the board, keeps the cache
// current and batches evaluations to the book server.
type Controller struct {
	searcher   searcher
	game       *game.Game
	cache      *Cache
	book       *book.Client // nil when no book server is configured
	engineName string

	events chan UIEvent
	done   chan struct{}

	mu         sync.Mutex
	analyzing  bool
	analysisID uuid.UUID
	applyID    uuid.UUID
	searchFEN  map[uuid.UUID]string

	// unsaved is only touched on the run goroutine.
	unsaved map[string]models.Evaluation
}

// NewController starts a controller loop. The book client may be nil.
func NewController(s searcher, g *game.Game, cache *Cache, bookClient *book.Client, engineName string) *Controller {
	c := &Controller{
		searcher:   s,
		game:       g,
		cache:      cache,
		book:       bookClient,
		engineName: engineName,
		events:     make(chan UIEvent, uiEventBufferSize),
		done:       make(chan struct{}),
		searchFEN:  make(map[uuid.UUID]string),
		unsaved:    make(map[string]models.Evaluation),
	}

	go c.run()

	return c
}

// Events returns the controller's event stream. It is closed on shutdown.
func (c *Controller) Events() <-chan UIEvent {
	return c.events
}

// Game returns the game the controller operates on.
func (c *Controller) Game() *game.Game {
	return c.game
}

// StartAnalysis begins continuous analysis of the current position. The
// analysis follows the game as moves are played, until StopAnalysis.
func (c *Controller) StartAnalysis() {
	c.mu.Lock()
	c.analyzing = true
	c.startAnalysisLocked()
	c.mu.Unlock()

	c.primeFromBook()
}

// StopAnalysis cancels continuous analysis. Pending results are discarded.
func (c *Controller) StopAnalysis() {
	c.mu.Lock()
	c.analyzing = false
	delete(c.searchFEN, c.analysisID)
	c.analysisID = uuid.Nil
	c.mu.Unlock()

	c.searcher.Stop()
}

// PlayHumanMove applies a human move and restarts analysis when it is on.
func (c *Controller) PlayHumanMove(origin, destination, promotion string) (game.MoveApplied, error) {
	applied, err := c.game.ApplyHumanMove(origin, destination, promotion)
	if err != nil {
		return game.MoveApplied{}, err
	}

	if applied.Status.Over {
		c.haltSearch()
		return applied, nil
	}

	c.mu.Lock()
	if c.analyzing {
		c.startAnalysisLocked()
	}
	c.mu.Unlock()

	return applied, nil
}

// RequestEngineMove asks the engine to pick a move under the given limits.
// The resulting best move is applied to the board and reported as an
// EngineMoveEvent.
func (c *Controller) RequestEngineMove(limits uci.Limits) error {
	if status := c.game.Status(); status.Over {
		return fmt.Errorf("game is over: %s", status.Method)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.searchFEN, c.applyID)

	req := engine.NewSearchRequest(c.game.RootFEN(), c.game.MoveTokens(), limits)
	c.applyID = req.ID
	c.searchFEN[req.ID] = c.game.FEN()

	c.searcher.Start(req)
	return nil
}

// ForceMove makes a thinking engine move now with its current best.
func (c *Controller) ForceMove() {
	c.searcher.ForceMove()
}

// NewGame resets the board to the initial position.
func (c *Controller) NewGame() {
	c.game.Reset()
	c.searcher.NewGame()
	c.afterPositionChange()
}

// SetFEN replaces the board with the given position.
func (c *Controller) SetFEN(fen string) error {
	if err := c.game.SetFEN(fen); err != nil {
		return err
	}

	c.searcher.NewGame()
	c.afterPositionChange()
	return nil
}

// Rewind truncates the game to its first ply moves.
func (c *Controller) Rewind(ply int) error {
	if err := c.game.Rewind(ply); err != nil {
		return err
	}

	c.afterPositionChange()
	return nil
}

// CachedEvaluation returns the best stored evaluation for the current
// position, from earlier searches or the shared book.
func (c *Controller) CachedEvaluation() (models.Evaluation, bool) {
	return c.cache.Lookup(c.game.FEN())
}

// Close shuts the session and the controller loop down, flushing unsaved
// evaluations to the book first.
func (c *Controller) Close() {
	c.searcher.Close()
	<-c.done
}

// afterPositionChange drops any pending engine move and re-targets or stops
// the search after the board changed out from under it.
func (c *Controller) afterPositionChange() {
	c.mu.Lock()
	delete(c.searchFEN, c.applyID)
	c.applyID = uuid.Nil

	analyzing := c.analyzing
	if analyzing {
		c.startAnalysisLocked()
	}
	c.mu.Unlock()

	if analyzing {
		c.primeFromBook()
	} else {
		c.searcher.Stop()
	}
}

// startAnalysisLocked begins an unbounded search for the current position.
// It assumes mu is locked.
func (c *Controller) startAnalysisLocked() {
	delete(c.searchFEN, c.analysisID)

	req := engine.NewSearchRequest(c.game.RootFEN(), c.game.MoveTokens(), uci.Limits{Infinite: true})
	c.analysisID = req.ID
	c.searchFEN[req.ID] = c.game.FEN()

	c.searcher.Start(req)
}

// haltSearch stops all searching, as when the game ended.
func (c *Controller) haltSearch() {
	c.mu.Lock()
	c.analyzing = false
	c.analysisID = uuid.Nil
	c.applyID = uuid.Nil
	c.searchFEN = make(map[uuid.UUID]string)
	c.mu.Unlock()

	c.searcher.Stop()
}

// primeFromBook pulls a stored evaluation for the current position into the
// cache, so the display has a starting point before the engine gets deep.
func (c *Controller) primeFromBook() {
	if c.book == nil {
		return
	}

	missing := c.cache.GetMissing([]string{c.game.FEN()})
	if len(missing) == 0 {
		return
	}

	go func() {
		evaluations, err := c.book.LookupPositions(missing)
		if err != nil {
			slog.Debug("Book lookup failed", "err", err)
			return
		}
		c.cache.BulkUpsert(evaluations)
	}()
}

func (c *Controller) run() {
	defer close(c.done)
	defer close(c.events)

	saveTicker := time.NewTicker(bookSaveInterval)
	defer saveTicker.Stop()

	heartbeatTicker := time.NewTicker(heartbeatInterval)
	defer heartbeatTicker.Stop()

	for {
		select {
		case event, ok := <-c.searcher.Events():
			if !ok {
				c.finalFlush()
				return
			}
			c.handleEngineEvent(event)
		case <-saveTicker.C:
			c.flushBook()
		case <-heartbeatTicker.C:
			c.heartbeat()
		}
	}
}

func (c *Controller) handleEngineEvent(event engine.Event) {
	switch event := event.(type) {
	case engine.AnalysisUpdate:
		c.handleUpdate(event)
	case engine.BestMoveResult:
		c.handleBestMove(event)
	case engine.EngineError:
		c.events <- ErrorEvent{Err: event.Err}
	}
}

func (c *Controller) handleUpdate(update engine.AnalysisUpdate) {
	c.mu.Lock()
	fen, ok := c.searchFEN[update.RequestID]
	c.mu.Unlock()

	// Updates for searches the controller no longer tracks are dropped.
	if !ok {
		return
	}

	c.recordEvaluation(fen, update)

	c.events <- UpdateEvent{
		Depth:  update.Depth,
		Score:  update.Score,
		Line:   c.game.VariationSAN(update.PV),
		Nodes:  update.Nodes,
		NPS:    update.NPS,
		TimeMS: update.TimeMS,
	}
}

func (c *Controller) recordEvaluation(fen string, update engine.AnalysisUpdate) {
	if update.Depth == 0 || len(update.PV) == 0 {
		return
	}

	evaluation := models.Evaluation{
		FEN:      fen,
		Engine:   c.engineName,
		Depth:    update.Depth,
		BestMove: update.PV[0],
		PV:       update.PV,
	}
	if update.Score.IsMate {
		evaluation.Mate = update.Score.Mate
	} else {
		evaluation.ScoreCP = update.Score.CP
	}

	c.cache.Upsert(evaluation)

	// Every engine update is at least as deep as the previous one, so the
	// latest always wins here.
	c.unsaved[fen] = evaluation
}

func (c *Controller) handleBestMove(result engine.BestMoveResult) {
	c.mu.Lock()
	isApply := result.RequestID == c.applyID
	delete(c.searchFEN, result.RequestID)
	if isApply {
		c.applyID = uuid.Nil
	}
	if result.RequestID == c.analysisID {
		c.analysisID = uuid.Nil
	}
	c.mu.Unlock()

	if !isApply {
		return
	}

	applied, err := c.game.ApplyEngineMove(result)
	if err != nil {
		c.events <- ErrorEvent{Err: err}
		return
	}

	c.events <- EngineMoveEvent{Move: applied}

	if applied.Status.Over {
		c.haltSearchAsync()
		c.events <- GameOverEvent{Status: applied.Status}
		return
	}

	c.mu.Lock()
	if c.analyzing {
		c.startAnalysisLocked()
	}
	c.mu.Unlock()
}

// haltSearchAsync is haltSearch without the Stop round-trip, for use on the
// run goroutine where a control send could deadlock against event delivery.
func (c *Controller) haltSearchAsync() {
	c.mu.Lock()
	c.analyzing = false
	c.analysisID = uuid.Nil
	c.applyID = uuid.Nil
	c.searchFEN = make(map[uuid.UUID]string)
	c.mu.Unlock()
}

// flushBook batches recent evaluations to reduce load on the book server.
func (c *Controller) flushBook() {
	updates := c.takeUnsaved()
	if updates == nil {
		return
	}

	go c.submit(updates)
}

// finalFlush submits synchronously, for use during shutdown.
func (c *Controller) finalFlush() {
	updates := c.takeUnsaved()
	if updates == nil {
		return
	}

	c.submit(updates)
}

func (c *Controller) takeUnsaved() []models.Evaluation {
	if c.book == nil || len(c.unsaved) == 0 {
		return nil
	}

	unsaved := c.unsaved
	c.unsaved = make(map[string]models.Evaluation)

	updates := make([]models.Evaluation, 0, len(unsaved))
	for _, evaluation := range unsaved {
		updates = append(updates, evaluation)
	}

	return updates
}

func (c *Controller) submit(updates []models.Evaluation) {
	if err := c.book.SubmitEvaluations(updates); err != nil {
		slog.Warn("Failed to submit evaluations to book", "err", err)
	}
}

func (c *Controller) heartbeat() {
	if c.book == nil {
		return
	}

	go func() {
		if err := c.book.Heartbeat(); err != nil {
			slog.Debug("Book heartbeat failed", "err", err)
		}
	}()
}
