package engine

import (
	"strings"

	"github.com/google/uuid"

	"github.com/rvedder/gambit/internal/uci"
)

// SearchRequest describes what to analyze. It is immutable once created and
// consumed by exactly one search.
type SearchRequest struct {
	ID          uuid.UUID
	FEN         string
	Moves       []string
	Limits      uci.Limits
	WhiteToMove bool
}

// NewSearchRequest builds a request for the position reached by playing
// moves from fen. An empty fen means the initial position.
func NewSearchRequest(fen string, moves []string, limits uci.Limits) SearchRequest {
	if fen == "" {
		fen = uci.StartPos
	}

	return SearchRequest{
		ID:          uuid.New(),
		FEN:         fen,
		Moves:       moves,
		Limits:      limits,
		WhiteToMove: whiteToMove(fen, len(moves)),
	}
}

// whiteToMove derives the side to move at the end of the move list from the
// FEN's side-to-move field.
func whiteToMove(fen string, moveCount int) bool {
	white := true

	fields := strings.Fields(fen)
	if len(fields) >= 2 && fields[1] == "b" {
		white = false
	}

	if moveCount%2 == 1 {
		white = !white
	}

	return white
}

// Event is something a session reports to the application: a progress
// update, a terminal best move, or an engine failure.
type Event interface {
	event()
}

// AnalysisUpdate is a point-in-time progress report. The score is
// white-relative regardless of the side to move.
type AnalysisUpdate struct {
	RequestID uuid.UUID
	Depth     int
	Score     uci.Score
	PV        []string
	Nodes     int64
	NPS       int64
	TimeMS    int64
}

// BestMoveResult is the terminal outcome of a search. At most one is
// delivered per request; a cancelled search delivers none.
type BestMoveResult struct {
	RequestID uuid.UUID
	Move      string
	Ponder    string
}

// EngineError reports a crashed or unresponsive engine. The session is back
// to idle when it is delivered; the engine is not restarted automatically.
type EngineError struct {
	RequestID uuid.UUID
	Err       error
}

func (AnalysisUpdate) event() {}
func (BestMoveResult) event() {}
func (EngineError) event()    {}
