package uci

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrMalformedMoveToken is returned when a move token does not have the
// 4-or-5-character coordinate shape. Callers log and drop these; they are
// never fatal.
var ErrMalformedMoveToken = errors.New("malformed move token")

// NullMove is the UCI null move token, sent by some engines when no legal
// move exists.
const NullMove = "0000"

var moveTokenRegex = regexp.MustCompile(`^[a-h][1-8][a-h][1-8][qrbn]?$`)

// ValidateMoveToken checks the syntactic shape of a coordinate-notation move
// token (origin square, destination square, optional promotion letter). It
// does not check legality; that is the rules library's job.
func ValidateMoveToken(token string) error {
	if token == NullMove {
		return nil
	}

	if !moveTokenRegex.MatchString(token) {
		return fmt.Errorf("%w: %q", ErrMalformedMoveToken, token)
	}

	return nil
}

// Message is a parsed engine output line.
type Message interface {
	message()
}

// ID carries the engine's declared name or author.
type ID struct {
	Name   string
	Author string
}

// Option describes an option the engine declared during the handshake.
type Option struct {
	Name    string
	Type    string
	Default string
	Min     int
	Max     int
	Vars    []string
}

// UCIOk marks the end of the handshake.
type UCIOk struct{}

// ReadyOk is the engine's response to isready.
type ReadyOk struct{}

// Info is a search progress report. The score is relative to the side to
// move at the searched position; callers flip the sign for a white-relative
// convention.
type Info struct {
	Depth    int
	SelDepth int
	MultiPV  int
	Score    *Score
	Nodes    int64
	NPS      int64
	TimeMS   int64
	PV       []string
}

// BestMove is the terminal output of a search.
type BestMove struct {
	Move   string
	Ponder string
}

// Unknown wraps a line that could not be recognized. Engines emit
// vendor-specific lines, so these are ignored, never treated as errors.
type Unknown struct {
	Raw string
}

func (ID) message()       {}
func (Option) message()   {}
func (UCIOk) message()    {}
func (ReadyOk) message()  {}
func (Info) message()     {}
func (BestMove) message() {}
func (Unknown) message()  {}

// Score is an engine evaluation, either in centipawns or as a distance to
// mate. A mate score takes precedence over a centipawn score.
type Score struct {
	CP     int
	Mate   int
	IsMate bool
}

// Negate flips the score to the other side's perspective.
func (s Score) Negate() Score {
	if s.IsMate {
		return Score{Mate: -s.Mate, IsMate: true}
	}
	return Score{CP: -s.CP}
}

func (s Score) String() string {
	if s.IsMate {
		return fmt.Sprintf("#%d", s.Mate)
	}
	return fmt.Sprintf("%+.2f", float64(s.CP)/100)
}
