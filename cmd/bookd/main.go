package main

import (
	"log"

	"github.com/joho/godotenv"

	"github.com/rvedder/gambit/internal"
	"github.com/rvedder/gambit/internal/config"
)

func main() {
	// A .env file is optional
	_ = godotenv.Load()

	config.SetLogLevel()

	// Setup app
	app, cfg := internal.SetupApp()

	// Start server
	address := cfg.ServerHost + ":" + cfg.ServerPort
	log.Fatal(app.Listen(address))
}
