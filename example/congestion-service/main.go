package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

func init() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).With().Logger()
}

func main() {
	cfg, err := loadConfig(configPath())
	if err != nil {
		log.Fatal().Msgf("failed to load config: %v", err)
	}
	setLogLevel(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	router := httprouter.New()

	module, err := enableCongestion(ctx, router, cfg)
	if err != nil {
		log.Fatal().Msgf("failed to enable congestion module: %v", err)
	}
	defer module.Close()

	eg, ctx := errgroup.WithContext(ctx)

	server := http.Server{
		Addr:        cfg.HTTP.Address,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// streams are long lived; no write timeout
		WriteTimeout: 0,
		// open streams end once the app is stopping
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	eg.Go(func() error {
		return module.poller.Run(ctx)
	})

	eg.Go(func() error {
		log.Info().Msgf("Serving at %v..", cfg.HTTP.Address)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	eg.Go(func() error {
		<-ctx.Done()

		sctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		log.Info().Msgf("Shutting down HTTP server..")
		if err := server.Shutdown(sctx); err != nil {
			log.Err(err).Msgf("HTTP server Shutdown")
			return err
		}
		log.Info().Msgf("Stopped serving new connections.")
		return nil
	})

	if err := eg.Wait(); err != nil {
		log.Err(err).Msgf("congestion service stopped with error")
	}

	log.Info().Msgf("Bye bye")
}
