package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dhowlett/go-login-server/internal/config"
	"github.com/dhowlett/go-login-server/provider"
	"github.com/dhowlett/go-login-server/server"
	"github.com/dhowlett/go-login-server/sessions"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
	log.Info().Msg("server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	displayAppname(cfg.AppName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := provider.New(ctx, provider.Credentials{
		Name:         cfg.Provider,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		CallbackURL:  cfg.CallbackURL,
		Scopes:       cfg.Scopes,
		Issuer:       cfg.Issuer,
		AuthURL:      cfg.AuthURL,
		TokenURL:     cfg.TokenURL,
		ProfileURL:   cfg.ProfileURL,
	})
	if err != nil {
		return err
	}

	repo := sessions.NewInMemoryRepo(cfg.AnonSessionTTL, cfg.SessionTTL, cfg.StateTTL)
	srv, err := server.New(cfg, client, repo)
	if err != nil {
		return err
	}
	srv.StartSweeper(ctx, time.Minute)

	httpServer := &http.Server{Addr: cfg.Addr(), Handler: srv}
	go listenAndServe(httpServer)
	waitForStopSignal()
	return shutdown(httpServer)
}

func listenAndServe(server *http.Server) {
	log.Info().Str("addr", server.Addr).Msg("server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("server.ListenAndServe")
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
