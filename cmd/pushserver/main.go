// Command pushserver runs a standalone push server configured from the
// environment. See internal/config for the variables it reads.
package main

import (
	"context"
	"errors"
	"expvar"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/mroth/pushserver"
	"github.com/mroth/pushserver/admin"
	"github.com/mroth/pushserver/internal/config"
	"github.com/mroth/pushserver/internal/logger"
)

func main() {
	if err := run(); err != nil {
		slog.Error("pushserver exited", slog.Any("err", err))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logger.New(os.Stderr, cfg.Debug)
	slog.SetDefault(log)

	p, err := pushserver.New(append(cfg.Options(), pushserver.WithLogger(log))...)
	if err != nil {
		return err
	}
	defer p.Shutdown()
	pushserver.SetDefault(p)

	keys, err := cfg.TopicKeys()
	if err != nil {
		return err
	}
	for _, key := range keys {
		p.TopicsContext().GetOrCreateTopic(key)
		log.Info("topic ready", slog.String("topic", key.String()))
	}

	s, err := pushserver.NewServer(p, cfg.ServerOptions()...)
	if err != nil {
		return err
	}

	r := mux.NewRouter()
	if cfg.Admin {
		r.PathPrefix("/admin/").Handler(admin.AdminHandler(s))
	}
	// status is also exposed via the standard expvar package at /debug/vars
	expvar.Publish("pushserver", expvar.Func(func() any {
		return s.Status()
	}))
	r.Handle("/debug/vars", expvar.Handler())
	r.PathPrefix("/").Handler(s)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		log.Info("listening", slog.String("addr", cfg.Addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	// SSE streams never finish on their own, so close them before draining
	// the listener.
	s.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
