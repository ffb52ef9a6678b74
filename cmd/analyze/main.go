package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/rvedder/gambit/internal/config"
	"github.com/rvedder/gambit/internal/engine"
	"github.com/rvedder/gambit/internal/game"
	"github.com/rvedder/gambit/internal/uci"
)

func main() {
	// A .env file is optional
	_ = godotenv.Load()

	config.SetLogLevel()

	fen := flag.String("fen", uci.StartPos, "the position to analyze")
	moveList := flag.String("moves", "", "moves played from the position, in coordinate notation")
	depth := flag.Int("depth", 24, "search depth, 0 searches by time instead")
	moveTime := flag.Int64("movetime", 10000, "search time in milliseconds when depth is 0")
	flag.Parse()

	g, err := game.NewFromFEN(*fen)
	if err != nil {
		slog.Error("Invalid position", "error", err)
		os.Exit(1)
	}

	moves := strings.Fields(*moveList)
	for _, token := range moves {
		if len(token) < 4 {
			slog.Error("Invalid move token", "move", token)
			os.Exit(1)
		}
		if _, err := g.ApplyHumanMove(token[:2], token[2:4], token[4:]); err != nil {
			slog.Error("Invalid move", "move", token, "error", err)
			os.Exit(1)
		}
	}

	cfg := config.LoadEngineConfig()

	eng, err := engine.Load(cfg.EnginePath, cfg.Options)
	if err != nil {
		slog.Error("Failed to load engine", "error", err)
		os.Exit(1)
	}
	defer eng.Close()

	limits := uci.Limits{Depth: *depth}
	if *depth == 0 {
		limits = uci.Limits{MoveTime: *moveTime}
	}

	session := engine.NewSession(eng)
	defer session.Close()

	session.Start(engine.NewSearchRequest(*fen, moves, limits))

	for event := range session.Events() {
		switch event := event.(type) {
		case engine.AnalysisUpdate:
			fmt.Printf("depth %2d  score %-7s  %s\n", event.Depth, event.Score, g.VariationSAN(event.PV))
		case engine.BestMoveResult:
			fmt.Printf("bestmove %s\n", event.Move)
			return
		case engine.EngineError:
			slog.Error("Engine failure", "error", event.Err)
			os.Exit(1)
		}
	}
}
