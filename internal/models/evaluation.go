package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rvedder/gambit/internal/uci"
)

// Evaluation is a stored engine judgment of one position. Scores are
// white-relative; Mate is nonzero for forced-mate scores.
type Evaluation struct {
	FEN      string   `json:"fen" db:"fen"`
	Engine   string   `json:"engine" db:"engine"`
	Depth    int      `json:"depth" db:"depth"`
	ScoreCP  int      `json:"score_cp" db:"score_cp"`
	Mate     int      `json:"mate" db:"mate"`
	BestMove string   `json:"best_move" db:"best_move"`
	PV       []string `json:"pv"`
}

// Validate checks an evaluation before it is cached or stored.
func (e Evaluation) Validate() error {
	if strings.TrimSpace(e.FEN) == "" {
		return errors.New("evaluation without position")
	}

	if e.Depth < 0 {
		return fmt.Errorf("invalid depth %d", e.Depth)
	}

	if e.BestMove != "" {
		if err := uci.ValidateMoveToken(e.BestMove); err != nil {
			return fmt.Errorf("invalid best move: %w", err)
		}
	}

	for _, token := range e.PV {
		if err := uci.ValidateMoveToken(token); err != nil {
			return fmt.Errorf("invalid pv move: %w", err)
		}
	}

	return nil
}

// Score renders the evaluation's score in the shared display convention.
func (e Evaluation) Score() uci.Score {
	if e.Mate != 0 {
		return uci.Score{Mate: e.Mate, IsMate: true}
	}
	return uci.Score{CP: e.ScoreCP}
}
