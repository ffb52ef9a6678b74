// Package game bridges move intents, from the UI or from an engine, to the
// rules library that owns position state and legality.
package game

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/notnil/chess"

	"github.com/rvedder/gambit/internal/engine"
	"github.com/rvedder/gambit/internal/uci"
)

var (
	// ErrIllegalMove means a human move was not in the legal-move set.
	// The game state is unchanged; the UI re-prompts.
	ErrIllegalMove = errors.New("illegal move")

	// ErrInvalidFEN means a position string could not be parsed.
	ErrInvalidFEN = errors.New("invalid FEN")
)

// Status describes whether and how the game ended.
type Status struct {
	Over    bool
	Outcome string // "1-0", "0-1", "1/2-1/2" or "*"
	Method  string // "checkmate", "stalemate", ...
}

// MoveApplied reports one applied move: its notations, the resulting
// position and the game status after it.
type MoveApplied struct {
	SAN    string
	UCI    string
	FEN    string
	Status Status
}

// Game wraps the rules library's position and move history. All mutation
// goes through one lock, so a human move and an engine move can never be
// applied concurrently.
type Game struct {
	mu      sync.Mutex
	game    *chess.Game
	rootFEN string
	moves   []string // coordinate-notation tokens from the root position
	sans    []string
}

// New creates a game at the initial position.
func New() *Game {
	return &Game{
		game:    chess.NewGame(),
		rootFEN: uci.StartPos,
	}
}

// NewFromFEN creates a game rooted at the given position.
func NewFromFEN(fen string) (*Game, error) {
	g := New()
	if err := g.SetFEN(fen); err != nil {
		return nil, err
	}
	return g, nil
}

// Reset starts a new game from the initial position, clearing the history.
func (g *Game) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.game = chess.NewGame()
	g.rootFEN = uci.StartPos
	g.moves = nil
	g.sans = nil
}

// SetFEN replaces the root position and clears the history.
func (g *Game) SetFEN(fen string) error {
	option, err := chess.FEN(fen)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFEN, err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.game = chess.NewGame(option)
	g.rootFEN = fen
	g.moves = nil
	g.sans = nil

	return nil
}

// FEN returns the current position.
func (g *Game) FEN() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.game.Position().String()
}

// RootFEN returns the position the game started from.
func (g *Game) RootFEN() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.rootFEN
}

// WhiteToMove reports whether white is on turn.
func (g *Game) WhiteToMove() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.game.Position().Turn() == chess.White
}

// LegalMoves returns the legal moves for the current position in
// coordinate notation.
func (g *Game) LegalMoves() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	notation := chess.UCINotation{}
	position := g.game.Position()

	moves := g.game.ValidMoves()
	tokens := make([]string, len(moves))
	for i, move := range moves {
		tokens[i] = notation.Encode(position, move)
	}

	return tokens
}

// MoveTokens returns the move history from the root position in coordinate
// notation, the shape the engine's position command wants.
func (g *Game) MoveTokens() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	return append([]string(nil), g.moves...)
}

// SANHistory returns the move history in standard algebraic notation.
func (g *Game) SANHistory() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	return append([]string(nil), g.sans...)
}

// Status returns the current game-termination status.
func (g *Game) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.statusLocked()
}

// ApplyHumanMove validates and applies a move given as origin and
// destination squares plus an optional promotion letter. Moves outside the
// legal-move set fail with ErrIllegalMove and change nothing.
func (g *Game) ApplyHumanMove(origin, destination, promotion string) (MoveApplied, error) {
	token := origin + destination + promotion

	if err := uci.ValidateMoveToken(token); err != nil {
		return MoveApplied{}, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	move := g.findMoveLocked(token)
	if move == nil {
		return MoveApplied{}, fmt.Errorf("%w: %s", ErrIllegalMove, token)
	}

	return g.applyLocked(move, token)
}

// ApplyEngineMove applies a best move reported by the engine. The move is
// still validated against the legal-move set: a non-compliant engine fails
// with an engine protocol violation instead of corrupting the game state.
func (g *Game) ApplyEngineMove(result engine.BestMoveResult) (MoveApplied, error) {
	if result.Move == "" || result.Move == uci.NullMove {
		return MoveApplied{}, fmt.Errorf("%w: engine returned no move", engine.ErrProtocol)
	}

	if err := uci.ValidateMoveToken(result.Move); err != nil {
		return MoveApplied{}, fmt.Errorf("%w: %v", engine.ErrProtocol, err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	move := g.findMoveLocked(result.Move)
	if move == nil {
		return MoveApplied{}, fmt.Errorf("%w: illegal move %s", engine.ErrProtocol, result.Move)
	}

	return g.applyLocked(move, result.Move)
}

// Rewind truncates the game to its first ply moves, as when the user jumps
// back in the move list.
func (g *Game) Rewind(ply int) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if ply < 0 || ply > len(g.moves) {
		return fmt.Errorf("invalid ply %d with %d moves played", ply, len(g.moves))
	}

	option, err := chess.FEN(g.rootFEN)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFEN, err)
	}

	rebuilt := chess.NewGame(option)
	kept := g.moves[:ply]

	game := &Game{game: rebuilt, rootFEN: g.rootFEN}
	for _, token := range kept {
		move := game.findMoveLocked(token)
		if move == nil {
			return fmt.Errorf("history replay failed at %s", token)
		}
		if _, err := game.applyLocked(move, token); err != nil {
			return err
		}
	}

	g.game = game.game
	g.moves = game.moves
	g.sans = game.sans

	return nil
}

// VariationSAN renders a coordinate-notation line from the current position
// in standard algebraic notation. The line is cut short at the first token
// that is not legal in its position.
func (g *Game) VariationSAN(pv []string) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	option, err := chess.FEN(g.game.Position().String())
	if err != nil {
		return ""
	}

	scratch := &Game{game: chess.NewGame(option)}

	sans := make([]string, 0, len(pv))
	for _, token := range pv {
		move := scratch.findMoveLocked(token)
		if move == nil {
			break
		}

		applied, err := scratch.applyLocked(move, token)
		if err != nil {
			break
		}
		sans = append(sans, applied.SAN)
	}

	return strings.Join(sans, " ")
}

// findMoveLocked looks a token up in the rules library's legal-move set.
func (g *Game) findMoveLocked(token string) *chess.Move {
	notation := chess.UCINotation{}
	position := g.game.Position()

	for _, move := range g.game.ValidMoves() {
		if notation.Encode(position, move) == token {
			return move
		}
	}

	return nil
}

func (g *Game) applyLocked(move *chess.Move, token string) (MoveApplied, error) {
	san := chess.AlgebraicNotation{}.Encode(g.game.Position(), move)

	if err := g.game.Move(move); err != nil {
		return MoveApplied{}, fmt.Errorf("failed to apply move %s: %w", token, err)
	}

	g.claimDrawLocked()

	g.moves = append(g.moves, token)
	g.sans = append(g.sans, san)

	return MoveApplied{
		SAN:    san,
		UCI:    token,
		FEN:    g.game.Position().String(),
		Status: g.statusLocked(),
	}, nil
}

// claimDrawLocked claims rule-based draws automatically, so threefold
// repetition and the fifty-move rule end the game without a dialog.
func (g *Game) claimDrawLocked() {
	for _, method := range g.game.EligibleDraws() {
		if method == chess.ThreefoldRepetition || method == chess.FiftyMoveRule {
			_ = g.game.Draw(method)
			return
		}
	}
}

func (g *Game) statusLocked() Status {
	outcome := g.game.Outcome()

	return Status{
		Over:    outcome != chess.NoOutcome,
		Outcome: outcome.String(),
		Method:  methodName(g.game.Method()),
	}
}

func methodName(method chess.Method) string {
	switch method {
	case chess.Checkmate:
		return "checkmate"
	case chess.Stalemate:
		return "stalemate"
	case chess.ThreefoldRepetition:
		return "threefold repetition"
	case chess.FivefoldRepetition:
		return "fivefold repetition"
	case chess.FiftyMoveRule:
		return "fifty-move rule"
	case chess.SeventyFiveMoveRule:
		return "seventy-five-move rule"
	case chess.InsufficientMaterial:
		return "insufficient material"
	case chess.DrawOffer:
		return "draw agreed"
	case chess.Resignation:
		return "resignation"
	default:
		return ""
	}
}
