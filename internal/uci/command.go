package uci

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Simple commands without arguments.
const (
	CmdUCI        = "uci"
	CmdIsReady    = "isready"
	CmdUCINewGame = "ucinewgame"
	CmdStop       = "stop"
	CmdQuit       = "quit"
)

// StartPos is the FEN of the initial chess position.
const StartPos = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// Limits bound a single search. The zero value means an unbounded search,
// which encodes as "go infinite".
type Limits struct {
	Infinite bool
	Depth    int
	MoveTime int64 // milliseconds
	Nodes    int64
}

// Unbounded returns true if no constraint is set.
func (l Limits) Unbounded() bool {
	return l.Depth == 0 && l.MoveTime == 0 && l.Nodes == 0
}

// EncodeGo builds the "go" command line for the given limits.
func EncodeGo(l Limits) string {
	parts := []string{"go"}

	if l.Depth > 0 {
		parts = append(parts, "depth", strconv.Itoa(l.Depth))
	}
	if l.MoveTime > 0 {
		parts = append(parts, "movetime", strconv.FormatInt(l.MoveTime, 10))
	}
	if l.Nodes > 0 {
		parts = append(parts, "nodes", strconv.FormatInt(l.Nodes, 10))
	}
	if l.Infinite || l.Unbounded() {
		parts = append(parts, "infinite")
	}

	return strings.Join(parts, " ")
}

// ParseGo decodes a "go" command line back into limits.
func ParseGo(line string) (Limits, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 || fields[0] != "go" {
		return Limits{}, errors.New("not a go command")
	}

	var limits Limits
	var err error

	for i := 1; i < len(fields); i++ {
		switch fields[i] {
		case "infinite":
			limits.Infinite = true
		case "depth":
			i++
			if i >= len(fields) {
				return Limits{}, errors.New("go: depth without value")
			}
			if limits.Depth, err = strconv.Atoi(fields[i]); err != nil {
				return Limits{}, fmt.Errorf("go: bad depth: %w", err)
			}
		case "movetime":
			i++
			if i >= len(fields) {
				return Limits{}, errors.New("go: movetime without value")
			}
			if limits.MoveTime, err = strconv.ParseInt(fields[i], 10, 64); err != nil {
				return Limits{}, fmt.Errorf("go: bad movetime: %w", err)
			}
		case "nodes":
			i++
			if i >= len(fields) {
				return Limits{}, errors.New("go: nodes without value")
			}
			if limits.Nodes, err = strconv.ParseInt(fields[i], 10, 64); err != nil {
				return Limits{}, fmt.Errorf("go: bad nodes: %w", err)
			}
		default:
			return Limits{}, fmt.Errorf("go: unknown constraint: %s", fields[i])
		}
	}

	return limits, nil
}

// EncodePosition builds the "position" command for a FEN plus an optional
// move list. The initial position encodes as "position startpos".
func EncodePosition(fen string, moves []string) string {
	var builder strings.Builder

	if fen == StartPos || fen == "" {
		builder.WriteString("position startpos")
	} else {
		builder.WriteString("position fen ")
		builder.WriteString(fen)
	}

	if len(moves) > 0 {
		builder.WriteString(" moves ")
		builder.WriteString(strings.Join(moves, " "))
	}

	return builder.String()
}

// EncodeSetOption builds the "setoption" command.
func EncodeSetOption(name, value string) string {
	if value == "" {
		return fmt.Sprintf("setoption name %s", name)
	}
	return fmt.Sprintf("setoption name %s value %s", name, value)
}
