package games

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"chess_companion/internal/bootstrap"
	"chess_companion/internal/delivery/account"
	"chess_companion/internal/domain/game"
	errs "chess_companion/internal/errors"
	"chess_companion/internal/httpresponse"
	repo "chess_companion/internal/repository"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type GamesHandler struct {
	cfg        bootstrap.Config
	log        *zap.SugaredLogger
	lichess    *repo.LichessClient
	chesscom   *repo.ChesscomClient
	prefs      *repo.PreferencesRepository
	accounts   *account.AccountHandler
	watchersMu sync.Mutex
	watchers   map[string]*watchSlot
}

// watchSlot identifies one active stream so a finished relay only
// deregisters itself, not a newer stream for the same session.
type watchSlot struct {
	cancel context.CancelFunc
}

func NewGamesHandler(cfg bootstrap.Config, log *zap.SugaredLogger, lichess *repo.LichessClient,
	chesscom *repo.ChesscomClient, prefs *repo.PreferencesRepository, accounts *account.AccountHandler) *GamesHandler {
	return &GamesHandler{
		cfg:      cfg,
		log:      log,
		lichess:  lichess,
		chesscom: chesscom,
		prefs:    prefs,
		accounts: accounts,
		watchers: make(map[string]*watchSlot),
	}
}

// HandleHistory returns the user's recent games for one platform.
func (g *GamesHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := g.accounts.SessionID(w, r)

	prefs, err := g.prefs.Get(ctx, sessionID)
	if err != nil {
		g.log.Error("History: preferences read failed: ", err)
		httpresponse.WriteResponseWithStatus(w, http.StatusInternalServerError,
			httpresponse.ErrorResponse{ErrorDescription: err.Error()})
		return
	}

	max := g.cfg.HistoryLimit
	if v := r.URL.Query().Get("max"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 && parsed < 500 {
			max = parsed
		}
	}

	switch r.URL.Query().Get("platform") {
	case game.PlatformLichess:
		if prefs.LichessUsername == "" {
			httpresponse.WriteResponseWithStatus(w, http.StatusBadRequest,
				httpresponse.ErrorResponse{ErrorDescription: "no lichess account linked"})
			return
		}
		games, err := g.lichess.ExportGames(ctx, prefs.LichessToken, prefs.LichessUsername, max)
		if err != nil {
			if errors.Is(err, errs.ErrUnauthorized) {
				g.forceLogout(ctx, w, sessionID)
				return
			}
			g.log.Error("History: lichess export failed: ", err)
			httpresponse.WriteResponseWithStatus(w, http.StatusBadGateway,
				httpresponse.ErrorResponse{ErrorDescription: "game history unavailable"})
			return
		}
		httpresponse.WriteResponseWithStatus(w, http.StatusOK, games)

	case game.PlatformChesscom:
		if prefs.ChesscomUsername == "" {
			httpresponse.WriteResponseWithStatus(w, http.StatusBadRequest,
				httpresponse.ErrorResponse{ErrorDescription: "no chess.com account linked"})
			return
		}
		games, err := g.chesscomHistory(ctx, prefs.ChesscomUsername, max)
		if err != nil {
			g.log.Error("History: chess.com archives failed: ", err)
			httpresponse.WriteResponseWithStatus(w, http.StatusBadGateway,
				httpresponse.ErrorResponse{ErrorDescription: "game history unavailable"})
			return
		}
		httpresponse.WriteResponseWithStatus(w, http.StatusOK, games)

	default:
		httpresponse.WriteResponseWithStatus(w, http.StatusBadRequest,
			httpresponse.ErrorResponse{ErrorDescription: "unknown platform"})
	}
}

// Newest archives first until the limit is reached.
func (g *GamesHandler) chesscomHistory(ctx context.Context, username string, max int) ([]game.Summary, error) {
	archives, err := g.chesscom.Archives(ctx, username)
	if err != nil {
		return nil, err
	}

	var games []game.Summary
	for i := len(archives) - 1; i >= 0 && len(games) < max; i-- {
		monthly, err := g.chesscom.ArchiveGames(ctx, archives[i])
		if err != nil {
			g.log.Warnf("skipping archive %s: %v", archives[i], err)
			continue
		}
		for j := len(monthly) - 1; j >= 0 && len(games) < max; j-- {
			games = append(games, monthly[j])
		}
	}
	return games, nil
}

// HandleNowPlaying lists in-progress games on the requested platform.
func (g *GamesHandler) HandleNowPlaying(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := g.accounts.SessionID(w, r)

	prefs, err := g.prefs.Get(ctx, sessionID)
	if err != nil {
		httpresponse.WriteResponseWithStatus(w, http.StatusInternalServerError,
			httpresponse.ErrorResponse{ErrorDescription: err.Error()})
		return
	}

	switch r.URL.Query().Get("platform") {
	case game.PlatformLichess:
		if prefs.LichessToken == "" {
			g.forceLogout(ctx, w, sessionID)
			return
		}
		live, err := g.lichess.NowPlaying(ctx, prefs.LichessToken)
		if err != nil {
			if errors.Is(err, errs.ErrUnauthorized) {
				g.forceLogout(ctx, w, sessionID)
				return
			}
			g.log.Error("NowPlaying: ", err)
			httpresponse.WriteResponseWithStatus(w, http.StatusBadGateway,
				httpresponse.ErrorResponse{ErrorDescription: "live games unavailable"})
			return
		}
		httpresponse.WriteResponseWithStatus(w, http.StatusOK, live)

	case game.PlatformChesscom:
		if prefs.ChesscomUsername == "" {
			httpresponse.WriteResponseWithStatus(w, http.StatusBadRequest,
				httpresponse.ErrorResponse{ErrorDescription: "no chess.com account linked"})
			return
		}
		live, err := g.chesscom.CurrentGames(ctx, prefs.ChesscomUsername)
		if err != nil {
			g.log.Error("NowPlaying: ", err)
			httpresponse.WriteResponseWithStatus(w, http.StatusBadGateway,
				httpresponse.ErrorResponse{ErrorDescription: "live games unavailable"})
			return
		}
		httpresponse.WriteResponseWithStatus(w, http.StatusOK, live)

	default:
		httpresponse.WriteResponseWithStatus(w, http.StatusBadRequest,
			httpresponse.ErrorResponse{ErrorDescription: "unknown platform"})
	}
}

// HandleWatchGame relays the live move stream of one game over a
// websocket. Watching a different game from the same session cancels the
// previous stream first; a buffered event may still arrive after
// cancellation and is dropped with the closed connection.
func (g *GamesHandler) HandleWatchGame(w http.ResponseWriter, r *http.Request) {
	gameID := r.URL.Query().Get("game_id")
	if gameID == "" {
		httpresponse.WriteResponseWithStatus(w, http.StatusBadRequest,
			httpresponse.ErrorResponse{ErrorDescription: "game_id is required"})
		return
	}

	sessionID := g.accounts.SessionID(w, r)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Error("WatchGame: upgrade error: ", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	slot := &watchSlot{cancel: cancel}
	g.watchersMu.Lock()
	if prev, ok := g.watchers[sessionID]; ok {
		prev.cancel()
	}
	g.watchers[sessionID] = slot
	g.watchersMu.Unlock()

	defer func() {
		g.watchersMu.Lock()
		if g.watchers[sessionID] == slot {
			delete(g.watchers, sessionID)
		}
		g.watchersMu.Unlock()
	}()

	events, err := g.lichess.StreamGame(ctx, gameID)
	if err != nil {
		g.log.Errorf("WatchGame: stream open for %s failed: %v", gameID, err)
		_ = conn.WriteJSON(map[string]string{"error": "stream unavailable"})
		return
	}

	// Reads only detect the client going away.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	for ev := range events {
		if ctx.Err() != nil {
			return
		}
		if err := conn.WriteJSON(ev); err != nil {
			g.log.Warnf("WatchGame: write for %s failed: %v", gameID, err)
			return
		}
	}
}

// forceLogout clears the cached credential and answers 401; the client
// must re-link the account.
func (g *GamesHandler) forceLogout(ctx context.Context, w http.ResponseWriter, sessionID string) {
	if err := g.prefs.ClearCredential(ctx, sessionID); err != nil {
		g.log.Errorf("failed to clear credential for session %s: %v", sessionID, err)
	}
	httpresponse.WriteResponseWithStatus(w, http.StatusUnauthorized,
		httpresponse.ErrorResponse{ErrorDescription: "credential expired, login again"})
}
