package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/answerdeskai/teamsbridge/internal/answer"
	"github.com/answerdeskai/teamsbridge/internal/auth"
	"github.com/answerdeskai/teamsbridge/internal/config"
	"github.com/answerdeskai/teamsbridge/internal/directory"
	"github.com/answerdeskai/teamsbridge/internal/handlers"
	"github.com/answerdeskai/teamsbridge/internal/keys"
	"github.com/answerdeskai/teamsbridge/internal/logger"
	"github.com/answerdeskai/teamsbridge/internal/msauth"
	"github.com/answerdeskai/teamsbridge/internal/server"
	"github.com/answerdeskai/teamsbridge/internal/teams"
	"github.com/answerdeskai/teamsbridge/internal/version"
)

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideKeyCache,
			provideDirectoryClient,
			provideVerifier,
			provideMinter,
			provideAnswerClient,
			provideConnector,
			provideRelay,
			provideServerHandler(handlers.NewPingHandler),
			provideServerHandler(provideTeamsHandler),
			provideServer,
		),
		fx.Invoke(
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideConfig() (config.Config, error) {
	cfgPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideKeyCache(log *slog.Logger, cfg config.Config) *keys.Cache {
	return keys.NewCache(log, cfg.Platform.OpenIDMetadataURL)
}

func provideDirectoryClient(log *slog.Logger, cfg config.Config) *directory.Client {
	return directory.NewClient(log, cfg.Directory.LookupURL, cfg.Directory.APIKey, cfg.Directory.InternalToken)
}

func provideVerifier(log *slog.Logger, cache *keys.Cache, dir *directory.Client, cfg config.Config) *auth.Verifier {
	return auth.NewVerifier(log, cache, dir, cfg.Platform.TokenIssuer)
}

func provideMinter(log *slog.Logger, cfg config.Config) *msauth.Minter {
	return msauth.NewMinter(log, cfg.Platform.LoginHost, "")
}

func provideAnswerClient(log *slog.Logger, cfg config.Config) *answer.Client {
	return answer.NewClient(log, cfg.Answer.URL, cfg.Answer.FeedbackURL, cfg.Answer.Source)
}

func provideConnector(log *slog.Logger) *teams.Connector {
	return teams.NewConnector(log)
}

func provideRelay(log *slog.Logger, connector *teams.Connector) *teams.Relay {
	return teams.NewRelay(log, connector)
}

func provideTeamsHandler(log *slog.Logger, cfg config.Config, verifier *auth.Verifier, dir *directory.Client, answers *answer.Client, minter *msauth.Minter, relay *teams.Relay) *handlers.TeamsHandler {
	return handlers.NewTeamsHandler(log, verifier, dir, answers, minter, relay, handlers.Options{
		GlobalAppID:        cfg.Bot.AppID,
		GlobalAppPassword:  cfg.Bot.AppPassword,
		Authority:          cfg.Bot.Authority,
		NotifyUnconfigured: cfg.Bot.NotifyUnconfigured,
	})
}

type serverParams struct {
	fx.In
	Logger   *slog.Logger
	Config   config.Config
	Handlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.New(params.Logger, params.Config.Server.Addr, params.Handlers)
}

func startServer(lc fx.Lifecycle, log *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	fmt.Printf("Starting Teams Bridge %s\n", version.GetInfo())
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			log.Info("listening", slog.String("addr", srv.Addr()))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
