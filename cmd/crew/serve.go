package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/nstogner/crew/pkg/config"
	"github.com/nstogner/crew/pkg/model"
	"github.com/nstogner/crew/pkg/server"
)

// serve exposes the transcripts of past and running runs until ctx ends.
func serve(ctx context.Context, cfg *config.Config, registry *model.Registry) error {
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	srv := server.New(st, st, registry, cfg.Provider)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(cfg.Server.Address)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		slog.Info("Shutting down transcript server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
