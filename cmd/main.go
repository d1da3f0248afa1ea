package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"chess_companion/internal/adapters"
	"chess_companion/internal/bootstrap"
	accountDelivery "chess_companion/internal/delivery/account"
	analysisDelivery "chess_companion/internal/delivery/analysis"
	gamesDelivery "chess_companion/internal/delivery/games"
	replayDelivery "chess_companion/internal/delivery/replay"
	statsDelivery "chess_companion/internal/delivery/stats"
	ownMiddleware "chess_companion/internal/middleware"
	repo "chess_companion/internal/repository"
	analysisUC "chess_companion/internal/usecase/analysis"
)

type mainDeliveryHandler struct {
	account  *accountDelivery.AccountHandler
	games    *gamesDelivery.GamesHandler
	replay   *replayDelivery.ReplayHandler
	analysis *analysisDelivery.AnalysisHandler
	stats    *statsDelivery.StatsHandler
}

func main() {
	logger := NewLogger()
	cfg, err := bootstrap.Setup(".env")
	if err != nil {
		logger.Error("Failed to setup configuration", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go handleShutdown(cancel, logger)

	redisAdapter := adapters.NewAdapterRedis(cfg)
	if err := redisAdapter.Init(ctx); err != nil {
		logger.Fatal("Failed to initialize Redis", zap.Error(err))
	}
	defer redisAdapter.Close(ctx)

	engine := initEngine(*cfg, logger)
	if engine != nil {
		defer engine.Close()
	}

	r := chi.NewRouter()
	handlers := initializeDeliveryHandlers(*cfg, logger, redisAdapter, engine)
	handlers.Router(r, cfg.IsLocalCors)

	port := ":" + cfg.ServerPort
	logger.Infof("Server is running on port %s", port)
	if err := http.ListenAndServe(port, r); err != nil {
		logger.Fatal("Failed to start server", zap.Error(err))
	}
}

func NewLogger() *zap.SugaredLogger {
	logger, err := zap.NewProduction()
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	return logger.Sugar()
}

// initEngine starts the evaluation subprocess. Failure is not fatal:
// analysis degrades to "no evaluation" and everything else keeps working.
func initEngine(cfg bootstrap.Config, log *zap.SugaredLogger) *repo.EngineClient {
	if cfg.EnginePath == "" {
		log.Warn("ENGINE_PATH not set, evaluation disabled")
		return nil
	}

	proc, err := repo.StartStdioProcess(cfg.EnginePath)
	if err != nil {
		log.Warnf("engine process failed to start, evaluation disabled: %v", err)
		return nil
	}

	engine, err := repo.NewEngineClient(proc, log)
	if err != nil {
		log.Warnf("engine handshake failed, evaluation disabled: %v", err)
		_ = proc.Terminate()
		return nil
	}

	log.Infof("evaluation engine started: %s", cfg.EnginePath)
	return engine
}

func (h *mainDeliveryHandler) Router(r *chi.Mux, isLocalCors bool) {
	if isLocalCors {
		r.Use(ownMiddleware.CORS)
	}
	r.Use(middleware.Logger)

	r.Get("/lichess/login", h.account.HandleLichessLogin)
	r.Get("/lichess/callback", h.account.HandleLichessCallback)
	r.Delete("/logout", h.account.HandleLogout)
	r.Post("/linkChesscom", h.account.HandleLinkChesscom)
	r.Get("/preferences", h.account.HandleGetPreferences)
	r.Post("/preferences/theme", h.account.HandleSetTheme)

	r.Get("/games/history", h.games.HandleHistory)
	r.Get("/games/playing", h.games.HandleNowPlaying)
	r.Get("/watchGame", h.games.HandleWatchGame)

	r.Post("/replay/load", h.replay.HandleLoad)
	r.Post("/replay/navigate", h.replay.HandleNavigate)
	r.Get("/replay/state", h.replay.HandleState)
	r.Delete("/replay/close", h.replay.HandleClose)

	r.Post("/evaluate", h.analysis.HandleEvaluate)
	r.Get("/stats", h.stats.HandleStats)
}

func initializeDeliveryHandlers(
	cfg bootstrap.Config,
	log *zap.SugaredLogger,
	redisAdapter *adapters.AdapterRedis,
	engine *repo.EngineClient,
) *mainDeliveryHandler {
	lichessClient := repo.NewLichessClient(cfg, log)
	chesscomClient := repo.NewChesscomClient(cfg, log)
	prefsRepository := repo.NewPreferencesRepository(redisAdapter.GetClient(), log)

	// A typed nil must not leak into the interface: the coordinator
	// treats a nil Evaluator as "engine unavailable".
	var evaluator analysisUC.Evaluator
	if engine != nil {
		evaluator = engine
	}

	accountHandler := accountDelivery.NewAccountHandler(cfg, log, lichessClient, chesscomClient, prefsRepository)
	gamesHandler := gamesDelivery.NewGamesHandler(cfg, log, lichessClient, chesscomClient, prefsRepository, accountHandler)
	replayHandler := replayDelivery.NewReplayHandler(cfg, log, lichessClient, chesscomClient, prefsRepository, evaluator)
	analysisHandler := analysisDelivery.NewAnalysisHandler(cfg, log, evaluator)
	statsHandler := statsDelivery.NewStatsHandler(cfg, log, lichessClient, chesscomClient, prefsRepository, accountHandler)

	return &mainDeliveryHandler{
		account:  accountHandler,
		games:    gamesHandler,
		replay:   replayHandler,
		analysis: analysisHandler,
		stats:    statsHandler,
	}
}

func handleShutdown(cancelFunc context.CancelFunc, log *zap.SugaredLogger) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	log.Info("Received shutdown signal")
	cancelFunc()
	time.Sleep(1 * time.Second) // give connections time to close
}
