package main

import (
	"context"
	"errors"
	stdlog "log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/spf13/cobra"

	"github.com/kvantos/patchbay/internal/api"
	"github.com/kvantos/patchbay/internal/app"
	"github.com/kvantos/patchbay/internal/infra/config"
	"github.com/kvantos/patchbay/internal/infra/logger"
	"github.com/kvantos/patchbay/internal/store"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the patcher backend daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDaemon()
	},
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}

func runDaemon() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Log.Debug {
		logger.Init(true)
	}
	log := logger.New("daemon")

	appCtx := app.NewContext(configPath, cfg, log)

	// History is a convenience; the daemon still serves updates without it.
	st, err := store.Open(cfg.Store.SQLitePath)
	if err != nil {
		log.Warn().Err(err).Msg("run history unavailable")
	} else {
		appCtx.Store = st
		defer st.Close()
	}

	e := echo.New()
	api.RegisterRoutes(e, appCtx)

	srv := &http.Server{
		Addr:              net.JoinHostPort("localhost", cfg.Port),
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          stdlog.New(logger.Writer{Log: log}, "", 0),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("patcher backend listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
