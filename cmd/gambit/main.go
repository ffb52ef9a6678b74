package main

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/rvedder/gambit/internal/analysis"
	"github.com/rvedder/gambit/internal/book"
	"github.com/rvedder/gambit/internal/config"
	"github.com/rvedder/gambit/internal/engine"
	"github.com/rvedder/gambit/internal/game"
	"github.com/rvedder/gambit/internal/uci"
)

func main() {
	// A .env file is optional
	_ = godotenv.Load()

	config.SetLogLevel()

	cfg := config.LoadEngineConfig()

	eng, err := engine.Load(cfg.EnginePath, cfg.Options)
	if err != nil {
		slog.Error("Failed to load engine", "error", err)
		os.Exit(1)
	}
	defer eng.Close()

	fmt.Printf("loaded %s by %s\n", eng.Name(), eng.Author())

	var bookClient *book.Client
	if bookCfg := config.LoadBookClientConfig(); bookCfg != nil {
		bookClient = book.NewClient(bookCfg, eng.Name())
	}

	controller := analysis.NewController(
		engine.NewSession(eng),
		game.New(),
		analysis.NewCache(),
		bookClient,
		eng.Name(),
	)

	go printEvents(controller.Events())

	runPrompt(controller)

	controller.Close()
}

func printEvents(events <-chan analysis.UIEvent) {
	for event := range events {
		switch event := event.(type) {
		case analysis.UpdateEvent:
			fmt.Printf("[analysis] depth %2d  score %-7s  %s\n", event.Depth, event.Score, event.Line)
		case analysis.EngineMoveEvent:
			fmt.Printf("engine plays %s\n", event.Move.SAN)
		case analysis.GameOverEvent:
			fmt.Printf("game over: %s by %s\n", event.Status.Outcome, event.Status.Method)
		case analysis.ErrorEvent:
			fmt.Printf("engine error: %v\n", event.Err)
		}
	}
}

func runPrompt(controller *analysis.Controller) {
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}

		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "quit", "exit":
			return
		case "help":
			printHelp()
		case "new":
			controller.NewGame()
		case "fen":
			if len(fields) < 2 {
				fmt.Println("usage: fen <FEN>")
				continue
			}
			if err := controller.SetFEN(strings.Join(fields[1:], " ")); err != nil {
				fmt.Println(err)
			}
		case "moves":
			fmt.Println(strings.Join(controller.Game().SANHistory(), " "))
		case "position":
			fmt.Println(controller.Game().FEN())
		case "rewind":
			if len(fields) != 2 {
				fmt.Println("usage: rewind <ply>")
				continue
			}
			ply, err := strconv.Atoi(fields[1])
			if err != nil {
				fmt.Println("usage: rewind <ply>")
				continue
			}
			if err := controller.Rewind(ply); err != nil {
				fmt.Println(err)
			}
		case "analyze":
			controller.StartAnalysis()
		case "stop":
			controller.StopAnalysis()
		case "force":
			controller.ForceMove()
		case "go":
			limits, err := parseLimits(fields[1:])
			if err != nil {
				fmt.Println(err)
				continue
			}
			if err := controller.RequestEngineMove(limits); err != nil {
				fmt.Println(err)
			}
		default:
			playMove(controller, fields[0])
		}
	}
}

// playMove treats the input as a move in coordinate notation, like e2e4 or
// e7e8q.
func playMove(controller *analysis.Controller, token string) {
	if len(token) != 4 && len(token) != 5 {
		fmt.Printf("unknown command %q, try help\n", token)
		return
	}

	applied, err := controller.PlayHumanMove(token[:2], token[2:4], token[4:])
	if err != nil {
		fmt.Println(err)
		return
	}

	fmt.Printf("played %s\n", applied.SAN)

	if applied.Status.Over {
		fmt.Printf("game over: %s by %s\n", applied.Status.Outcome, applied.Status.Method)
	}
}

func parseLimits(fields []string) (uci.Limits, error) {
	// Without arguments the engine gets a few seconds to think.
	if len(fields) == 0 {
		return uci.Limits{MoveTime: 3000}, nil
	}

	if len(fields) != 2 {
		return uci.Limits{}, fmt.Errorf("usage: go [depth <n> | movetime <ms> | nodes <n>]")
	}

	value, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil || value <= 0 {
		return uci.Limits{}, fmt.Errorf("invalid %s value %q", fields[0], fields[1])
	}

	switch fields[0] {
	case "depth":
		return uci.Limits{Depth: int(value)}, nil
	case "movetime":
		return uci.Limits{MoveTime: value}, nil
	case "nodes":
		return uci.Limits{Nodes: value}, nil
	default:
		return uci.Limits{}, fmt.Errorf("usage: go [depth <n> | movetime <ms> | nodes <n>]")
	}
}

func printHelp() {
	fmt.Print(`commands:
  e2e4, e7e8q       play a move in coordinate notation
  go [limit value]  let the engine pick a move (depth, movetime or nodes)
  force             make a thinking engine move now
  analyze           analyze the current position continuously
  stop              stop analyzing
  new               start a new game
  fen <FEN>         set up a position
  rewind <ply>      go back to an earlier point in the game
  moves             show the moves played so far
  position          show the current position as FEN
  quit              exit
`)
}
