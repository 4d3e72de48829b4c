package main

import (
	"context"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"riakdt/common"
	"riakdt/internal/fakestore"
)

func newDevServerCmd(a *app) *cobra.Command {
	var (
		addr  string
		types []string
	)

	cmd := &cobra.Command{
		Use:   "devserver",
		Short: "Serve an in-memory store speaking the data type HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store := fakestore.New()
			for _, def := range types {
				name, tag, ok := strings.Cut(def, "=")
				kind, valid := common.ParseKind(tag)
				if !ok || !valid || name == "" {
					return errors.Errorf("invalid --type %q, want NAME=KIND", def)
				}
				store.DefineType(name, kind)
			}
			return serve(cmd.Context(), a.logger, addr, store)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8098", "listen address")
	cmd.Flags().StringSliceVar(&types, "type", nil, "extra bucket type as NAME=KIND")
	return cmd
}

func serve(ctx context.Context, logger *zap.Logger, addr string, handler http.Handler) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("devserver listening", zap.String("addr", addr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down devserver")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
