package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tbourn/go-mod-assistant/internal/bot"
	"github.com/tbourn/go-mod-assistant/internal/config"
	httpapi "github.com/tbourn/go-mod-assistant/internal/http"
	"github.com/tbourn/go-mod-assistant/internal/observability"
)

const (
	shutdownTimeout = 10 * time.Second
	purgeInterval   = time.Hour
)

func serveCmd() *cobra.Command {
	var (
		events  string
		callLog string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the assistant: event feed, mute sweeper and admin API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			out, closeOut, err := openCallLog(callLog, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer closeOut()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, events, cmd.InOrStdin(), out)
		},
	}
	cmd.Flags().StringVar(&events, "events", "", `JSON-lines event feed to consume ("-" for stdin, empty for none)`)
	cmd.Flags().StringVar(&callLog, "call-log", "", "file receiving outbound platform calls (default stdout)")
	return cmd
}

func openCallLog(path string, def io.Writer) (io.Writer, func(), error) {
	if path == "" {
		return def, func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open call log: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

func serve(ctx context.Context, cfg config.Config, events string, stdin io.Reader, out io.Writer) error {
	shutdown, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		return err
	}
	defer observability.ShutdownWithin(shutdown, shutdownTimeout)

	a, err := newApp(cfg, out, nil)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	goRun := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	goRun(func() { a.sweeper.Run(ctx) })
	goRun(func() { a.board.Run(ctx) })
	goRun(func() { a.purgeIdempotency(ctx, purgeInterval) })

	feed := make(chan bot.Event, 64)
	goRun(func() {
		if err := a.dispatcher.Run(ctx, feed); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("dispatcher stopped")
		}
	})
	if events != "" {
		goRun(func() {
			defer close(feed)
			if err := readEvents(ctx, events, stdin, feed); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("event feed stopped")
			}
		})
	}

	var srv *http.Server
	srvErr := make(chan error, 1)
	if cfg.HTTPEnabled {
		gin.SetMode(cfg.GinMode)
		r := gin.New()
		httpapi.RegisterRoutes(r, a.handlers(), cfg)
		srv = &http.Server{
			Addr:              net.JoinHostPort("", cfg.Port),
			Handler:           r,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       cfg.IdleTimeout,
			MaxHeaderBytes:    cfg.MaxHeaderBytes,
		}
		go func() {
			log.Info().Str("addr", srv.Addr).Str("base", cfg.APIBasePath).Msg("admin api listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				srvErr <- err
			}
			close(srvErr)
		}()
	}

	select {
	case <-ctx.Done():
	case err = <-srvErr:
	}
	log.Info().Msg("shutting down")

	if srv != nil {
		sctx, scancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		if serr := srv.Shutdown(sctx); serr != nil {
			log.Warn().Err(serr).Msg("http shutdown")
		}
		scancel()
	}
	cancel()
	wg.Wait()
	return err
}

func readEvents(ctx context.Context, src string, stdin io.Reader, out chan<- bot.Event) error {
	r := stdin
	if src != "-" {
		f, err := os.Open(src)
		if err != nil {
			return fmt.Errorf("open event feed: %w", err)
		}
		defer f.Close()
		r = f
	}
	return bot.ReadFeed(ctx, r, out, func(line int, err error) {
		log.Warn().Err(err).Int("line", line).Msg("skipping bad event")
	})
}
