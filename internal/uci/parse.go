package uci

import (
	"strconv"
	"strings"
)

// ParseLine parses one line of engine output. Unrecognized lines come back
// as Unknown, never as an error: engines are free to emit extensions and the
// protocol requires tolerating them.
func ParseLine(line string) Message {
	line = strings.TrimSpace(line)

	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Unknown{Raw: line}
	}

	switch fields[0] {
	case "uciok":
		return UCIOk{}
	case "readyok":
		return ReadyOk{}
	case "id":
		return parseID(fields)
	case "option":
		return parseOption(fields, line)
	case "info":
		return parseInfo(fields)
	case "bestmove":
		return parseBestMove(fields, line)
	default:
		return Unknown{Raw: line}
	}
}

func parseID(fields []string) Message {
	if len(fields) < 3 {
		return Unknown{Raw: strings.Join(fields, " ")}
	}

	value := strings.Join(fields[2:], " ")

	switch fields[1] {
	case "name":
		return ID{Name: value}
	case "author":
		return ID{Author: value}
	default:
		return Unknown{Raw: strings.Join(fields, " ")}
	}
}

// parseOption handles lines like:
//
//	option name Hash type spin default 16 min 1 max 33554432
//	option name Style type combo default Normal var Solid var Normal var Risky
func parseOption(fields []string, raw string) Message {
	option := Option{}

	i := 1
	for i < len(fields) {
		switch fields[i] {
		case "name":
			// The name runs until the next keyword.
			start := i + 1
			i = start
			for i < len(fields) && fields[i] != "type" {
				i++
			}
			option.Name = strings.Join(fields[start:i], " ")
		case "type":
			if i+1 >= len(fields) {
				return Unknown{Raw: raw}
			}
			option.Type = fields[i+1]
			i += 2
		case "default":
			if i+1 >= len(fields) {
				// A "default" with no value means an empty string default.
				i++
				continue
			}
			option.Default = fields[i+1]
			i += 2
		case "min":
			if i+1 >= len(fields) {
				return Unknown{Raw: raw}
			}
			option.Min, _ = strconv.Atoi(fields[i+1])
			i += 2
		case "max":
			if i+1 >= len(fields) {
				return Unknown{Raw: raw}
			}
			option.Max, _ = strconv.Atoi(fields[i+1])
			i += 2
		case "var":
			if i+1 >= len(fields) {
				return Unknown{Raw: raw}
			}
			option.Vars = append(option.Vars, fields[i+1])
			i += 2
		default:
			i++
		}
	}

	if option.Name == "" || option.Type == "" {
		return Unknown{Raw: raw}
	}

	return option
}

func parseInfo(fields []string) Message {
	info := Info{}

	i := 1
	for i < len(fields) {
		key := fields[i]

		switch key {
		case "depth":
			info.Depth = atoiField(fields, i+1)
			i += 2
		case "seldepth":
			info.SelDepth = atoiField(fields, i+1)
			i += 2
		case "multipv":
			info.MultiPV = atoiField(fields, i+1)
			i += 2
		case "nodes":
			info.Nodes = int64(atoiField(fields, i+1))
			i += 2
		case "nps":
			info.NPS = int64(atoiField(fields, i+1))
			i += 2
		case "time":
			info.TimeMS = int64(atoiField(fields, i+1))
			i += 2
		case "score":
			var consumed int
			info.Score, consumed = parseScore(fields, i+1)
			i += 1 + consumed
		case "pv":
			info.PV = parsePV(fields[i+1:])
			i = len(fields)
		case "string":
			// Free-form text until end of line; nothing left to parse.
			i = len(fields)
		default:
			// Unrecognized single-value fields (currmove, hashfull,
			// tbhits, ...) are tolerated silently.
			i += 2
		}
	}

	return info
}

// parseScore reads "cp N" or "mate N", optionally followed by a bound
// marker. A mate score takes precedence over a centipawn score.
func parseScore(fields []string, i int) (*Score, int) {
	score := &Score{}
	consumed := 0

	for i < len(fields) {
		switch fields[i] {
		case "cp":
			if !score.IsMate {
				score.CP = atoiField(fields, i+1)
			}
			i += 2
			consumed += 2
		case "mate":
			score.Mate = atoiField(fields, i+1)
			score.IsMate = true
			score.CP = 0
			i += 2
			consumed += 2
		case "lowerbound", "upperbound":
			i++
			consumed++
		default:
			return score, consumed
		}
	}

	return score, consumed
}

// parsePV collects syntactically valid move tokens. A malformed token ends
// the variation; everything before it is kept.
func parsePV(fields []string) []string {
	pv := make([]string, 0, len(fields))

	for _, field := range fields {
		if err := ValidateMoveToken(field); err != nil {
			break
		}
		pv = append(pv, field)
	}

	return pv
}

func parseBestMove(fields []string, raw string) Message {
	if len(fields) < 2 {
		return Unknown{Raw: raw}
	}

	move := fields[1]
	if move == "(none)" {
		return BestMove{}
	}

	if err := ValidateMoveToken(move); err != nil {
		return Unknown{Raw: raw}
	}

	best := BestMove{Move: move}

	if len(fields) >= 4 && fields[2] == "ponder" {
		if err := ValidateMoveToken(fields[3]); err == nil {
			best.Ponder = fields[3]
		}
	}

	return best
}

func atoiField(fields []string, i int) int {
	if i >= len(fields) {
		return 0
	}

	value, err := strconv.Atoi(fields[i])
	if err != nil {
		return 0
	}

	return value
}
