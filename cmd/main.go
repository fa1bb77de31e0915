package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"teams_bridge/internal/config"
	"teams_bridge/internal/infrastructure"
	"teams_bridge/internal/interfaces"
	httpapi "teams_bridge/internal/interfaces/http"
	"teams_bridge/internal/logging"
	"teams_bridge/internal/monitoring"
	"teams_bridge/internal/repository"
	"teams_bridge/internal/usecases"
)

var version = "dev"

func main() {
	logger := logging.NewLogger(os.Getenv("LOG_LEVEL"))

	cfg, err := config.Load(logger)
	if err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}
	logger.SetLevel(logging.ParseLevel(cfg.Server.LogLevel))
	logger.WithFields(cfg.Diagnostics()).Info("Environment check")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Background refreshers outlive the signal so draining turns keep them.
	appCtx, cancelApp := context.WithCancel(context.Background())
	defer cancelApp()

	metrics := monitoring.NewMetrics(version)
	backendOpts := []infrastructure.ClientOption{
		infrastructure.WithTimeout(cfg.Backend.Timeout),
		infrastructure.WithMaxRetries(cfg.Backend.MaxRetries),
		infrastructure.WithLogger(logger),
		infrastructure.WithMetrics(metrics),
	}

	// Teams connector
	teamsOpts := []infrastructure.TeamsOption{infrastructure.WithTeamsLogger(logger)}
	if cfg.Teams.APIBase != "" {
		teamsOpts = append(teamsOpts, infrastructure.WithAPIBase(cfg.Teams.APIBase))
	}
	if cfg.Teams.SendRate > 0 {
		limiter := infrastructure.NewConversationLimiter(appCtx, cfg.Teams.SendRate, cfg.Teams.SendBurst)
		teamsOpts = append(teamsOpts, infrastructure.WithConversationLimiter(limiter))
	}
	messenger := infrastructure.NewTeamsClient(infrastructure.TeamsCredentials{
		AppID:       cfg.Teams.AppID,
		AppPassword: cfg.Teams.AppPassword,
		TokenURL:    cfg.Teams.TokenURL(),
	}, teamsOpts...)

	var verifier httpapi.TokenVerifier
	if cfg.Teams.AuthEnabled() {
		verifier = infrastructure.NewBotTokenVerifier(appCtx, cfg.Teams.AppID, cfg.Teams.OpenIDConfigURL, nil)
	} else {
		logger.Warn("MicrosoftAppId is not set: inbound activities are not authenticated")
	}

	// Backend clients stay nil when unconfigured; each feature degrades on its own.
	var lookup interfaces.TenantLookup
	if cfg.Backend.TenantLookupConfigured() {
		lookup = infrastructure.NewTenantLookupClient(cfg.Backend.TenantLookupURL, cfg.Backend.APIKey, cfg.Backend.InternalToken, backendOpts...)
	}

	var minter interfaces.ClaimMinter
	if cfg.Backend.ClaimConfigured() {
		minter = infrastructure.NewClaimClient(cfg.Backend.ClaimMintURL(), cfg.Backend.InternalToken, backendOpts...)
	}

	var (
		kb   interfaces.KnowledgeBase
		sink interfaces.FeedbackSink
	)
	knowledge := infrastructure.NewKnowledgeClient(infrastructure.KnowledgeConfig{
		QueryURL:      cfg.Backend.RAGQueryURL,
		FeedbackURL:   cfg.Backend.FeedbackURL(),
		APIKey:        cfg.Backend.APIKey,
		InternalToken: cfg.Backend.InternalToken,
		Source:        cfg.Backend.Source,
	}, backendOpts...)
	if cfg.Backend.QueryConfigured() {
		kb = knowledge
	}
	if cfg.Backend.FeedbackConfigured() {
		sink = knowledge
	}

	// Optional turn log
	var recorder interfaces.TurnRecorder
	if cfg.Storage.DatabaseURL != "" {
		pgClient, err := infrastructure.NewPostgresClient(ctx, cfg.Storage.DatabaseURL)
		if err != nil {
			logger.WithError(err).Error("Turn log disabled: database unavailable")
		} else {
			defer pgClient.Close()
			recorder = repository.NewTurnRepository(pgClient.Pool)
			logger.Info("Turn log enabled")
		}
	}

	dispatcher := usecases.NewTurnDispatcher(usecases.DispatcherConfig{
		Feedback: usecases.NewFeedbackCollector(sink, messenger, logger, metrics),
		Resolver: usecases.NewTenantResolver(lookup, logger),
		Claims: usecases.NewClaimFlow(usecases.ClaimFlowConfig{
			Minter:    minter,
			Messenger: messenger,
			QRCode:    cfg.Render.ClaimQRCode,
			Logger:    logger,
			Metrics:   metrics,
		}),
		Retriever: usecases.NewAnswerRetriever(kb, logger),
		Renderer: usecases.NewResponseRenderer(usecases.RendererConfig{
			AnswerFormat:    cfg.Render.AnswerFormat,
			PlaceholderMode: cfg.Render.PlaceholderMode,
			Messenger:       messenger,
			Logger:          logger,
			Metrics:         metrics,
		}),
		Messenger: messenger,
		Recorder:  recorder,
		Logger:    logger,
		Metrics:   metrics,
	})

	gin.SetMode(cfg.Server.GinMode)
	r := gin.New()
	handler := httpapi.NewHandler(dispatcher, httpapi.HandlerConfig{
		TurnTimeout: cfg.Server.TurnTimeout,
		Diagnostics: cfg.Diagnostics(),
		Logger:      logger,
	})
	httpapi.SetupRoutes(r, handler, httpapi.NewMiddleware(verifier, logger), metrics, httpapi.RouteConfig{
		RateLimit:    rate.Limit(cfg.Server.RateLimit),
		RateBurst:    cfg.Server.RateBurst,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.WithField("port", cfg.Server.Port).Info("Teams bridge listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("HTTP server failed")
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Graceful shutdown failed")
	}
	if err := handler.Drain(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Shutdown timed out with turns still running")
	}
}
