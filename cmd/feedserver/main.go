// Command feedserver serves the feed pages and the procedure API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/goliatone/go-querysync/internal/config"
	"github.com/goliatone/go-querysync/internal/feed"
	"github.com/goliatone/go-querysync/internal/identity"
	"github.com/goliatone/go-querysync/internal/storage"
	"github.com/goliatone/go-querysync/internal/web"
	"github.com/goliatone/go-querysync/pkg/di"
	"github.com/goliatone/go-querysync/querysync"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger); err != nil {
		logger.Fatal().Err(err).Msg("feedserver stopped")
	}
}

func run(ctx context.Context, logger zerolog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	level, err := cfg.Level()
	if err != nil {
		return err
	}
	logger = logger.Level(level)

	db, err := storage.Open(ctx, cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	store := storage.NewStore(db)
	if cfg.Seed {
		if err := store.Seed(ctx); err != nil {
			return err
		}
	}

	router := querysync.NewRouter()
	feed.Register(router, store, feed.WithLogger(logger))

	container, err := di.NewContainer(cfg.Cache(), di.WithRouter(router), di.WithLogger(logger))
	if err != nil {
		return err
	}

	sessions := identity.NewSessions(
		identity.NewSessionManager(cfg.SessionLifetime),
		identity.DirectoryFunc(func(ctx context.Context, username string) (identity.User, error) {
			u, err := store.EnsureUser(ctx, username, "")
			if err != nil {
				return identity.User{}, err
			}
			return identity.User{ID: u.ID, Username: u.Username}, nil
		}),
	)

	srv, err := web.NewServer(web.ServerOptions{
		Container:   container,
		Sessions:    sessions,
		Logger:      logger,
		PageTTL:     cfg.PageCacheTTL,
		StaticPaths: web.ProfilePaths(),
	})
	if err != nil {
		return err
	}
	if err := srv.Prerender(ctx); err != nil {
		return err
	}

	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown")
		}
	}()

	logger.Info().Str("addr", cfg.Addr).Msg("feedserver listening")
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
