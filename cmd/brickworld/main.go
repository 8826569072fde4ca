// Command brickworld runs a brick world server with a console on standard
// input. The configuration is read from config.toml, which is created with
// default values if it does not exist, and may be overridden by BRICK_*
// environment variables or a .env file.
package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/brickgame/brickworld/server"
	"github.com/brickgame/brickworld/server/console"
	"github.com/joho/godotenv"
)

func main() {
	configPath := flag.String("config", "config.toml", "path of the TOML configuration file")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Error("load .env: " + err.Error())
		os.Exit(1)
	}
	uc, err := server.LoadUserConfig(*configPath)
	if err != nil {
		log.Error(err.Error())
		os.Exit(1)
	}
	if err := uc.ApplyEnv(); err != nil {
		log.Error(err.Error())
		os.Exit(1)
	}
	conf, err := uc.Config(log)
	if err != nil {
		log.Error(err.Error())
		os.Exit(1)
	}
	srv, err := conf.New()
	if err != nil {
		log.Error(err.Error())
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		if console.New(srv, log).Run(ctx) {
			stop()
		}
	}()
	if err := srv.Run(ctx); err != nil {
		log.Error("close server: " + err.Error())
		os.Exit(1)
	}
}
