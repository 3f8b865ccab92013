package api

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
)

const shutdownTimeout = 20 * time.Second

// ListenAndServe runs server until SIGINT or SIGTERM and then waits up to
// shutdownTimeout for open connections. onShutdown, when set, runs once the
// server stops accepting requests.
func ListenAndServe(service string, server *http.Server, onShutdown func()) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	done := make(chan struct{})
	server.RegisterOnShutdown(func() {
		log.Warn().Str("service", service).Msg("received signal to terminate the server")
		if onShutdown != nil {
			onShutdown()
		}
		close(done)
	})

	go func() {
		<-ctx.Done()
		log.Warn().Str("service", service).Msg("the server is going shutting down")

		waitIdleConnCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		server.SetKeepAlivesEnabled(false)
		if err := server.Shutdown(waitIdleConnCtx); err != nil {
			log.Fatal().Err(err).Str("service", service).Msg("can't gracefully shutdown the server")
		}
	}()

	log.Info().Str("service", service).Str("address", server.Addr).Msg("server started")

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	<-done
	log.Info().Str("service", service).Msg("server stopped")

	return nil
}
