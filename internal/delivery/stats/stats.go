package stats

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"chess_companion/internal/bootstrap"
	"chess_companion/internal/delivery/account"
	"chess_companion/internal/domain/game"
	errs "chess_companion/internal/errors"
	"chess_companion/internal/httpresponse"
	repo "chess_companion/internal/repository"
	statsuc "chess_companion/internal/usecase/stats"
)

type StatsHandler struct {
	cfg      bootstrap.Config
	log      *zap.SugaredLogger
	lichess  *repo.LichessClient
	chesscom *repo.ChesscomClient
	prefs    *repo.PreferencesRepository
	accounts *account.AccountHandler
}

type StatsResponse struct {
	Username string         `json:"username"`
	Platform string         `json:"platform"`
	Ratings  map[string]int `json:"ratings,omitempty"`
	Report   statsuc.Report `json:"report"`
}

func NewStatsHandler(cfg bootstrap.Config, log *zap.SugaredLogger, lichess *repo.LichessClient,
	chesscom *repo.ChesscomClient, prefs *repo.PreferencesRepository, accounts *account.AccountHandler) *StatsHandler {
	return &StatsHandler{
		cfg:      cfg,
		log:      log,
		lichess:  lichess,
		chesscom: chesscom,
		prefs:    prefs,
		accounts: accounts,
	}
}

// HandleStats combines platform-reported ratings with aggregates derived
// from recent game history.
func (s *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := s.accounts.SessionID(w, r)

	prefs, err := s.prefs.Get(ctx, sessionID)
	if err != nil {
		httpresponse.WriteResponseWithStatus(w, http.StatusInternalServerError,
			httpresponse.ErrorResponse{ErrorDescription: err.Error()})
		return
	}

	switch r.URL.Query().Get("platform") {
	case game.PlatformLichess:
		if prefs.LichessUsername == "" {
			httpresponse.WriteResponseWithStatus(w, http.StatusBadRequest,
				httpresponse.ErrorResponse{ErrorDescription: "no lichess account linked"})
			return
		}

		profile, err := s.lichess.Account(ctx, prefs.LichessToken)
		if err != nil {
			if errors.Is(err, errs.ErrUnauthorized) {
				if err := s.prefs.ClearCredential(ctx, sessionID); err != nil {
					s.log.Errorf("failed to clear credential for session %s: %v", sessionID, err)
				}
				httpresponse.WriteResponseWithStatus(w, http.StatusUnauthorized,
					httpresponse.ErrorResponse{ErrorDescription: "credential expired, login again"})
				return
			}
			s.log.Error("Stats: profile fetch failed: ", err)
			httpresponse.WriteResponseWithStatus(w, http.StatusBadGateway,
				httpresponse.ErrorResponse{ErrorDescription: "stats unavailable"})
			return
		}

		games, err := s.lichess.ExportGames(ctx, prefs.LichessToken, prefs.LichessUsername, s.cfg.HistoryLimit)
		if err != nil {
			s.log.Warnf("Stats: history fetch failed, reporting ratings only: %v", err)
		}

		httpresponse.WriteResponseWithStatus(w, http.StatusOK, StatsResponse{
			Username: prefs.LichessUsername,
			Platform: game.PlatformLichess,
			Ratings:  profile.Ratings,
			Report:   statsuc.Aggregate(prefs.LichessUsername, games),
		})

	case game.PlatformChesscom:
		if prefs.ChesscomUsername == "" {
			httpresponse.WriteResponseWithStatus(w, http.StatusBadRequest,
				httpresponse.ErrorResponse{ErrorDescription: "no chess.com account linked"})
			return
		}

		platformStats, err := s.chesscom.Stats(ctx, prefs.ChesscomUsername)
		if err != nil {
			s.log.Error("Stats: chess.com stats failed: ", err)
			httpresponse.WriteResponseWithStatus(w, http.StatusBadGateway,
				httpresponse.ErrorResponse{ErrorDescription: "stats unavailable"})
			return
		}

		var games []game.Summary
		if archives, err := s.chesscom.Archives(ctx, prefs.ChesscomUsername); err == nil && len(archives) > 0 {
			if monthly, err := s.chesscom.ArchiveGames(ctx, archives[len(archives)-1]); err == nil {
				games = monthly
			} else {
				s.log.Warnf("Stats: latest archive fetch failed: %v", err)
			}
		}

		httpresponse.WriteResponseWithStatus(w, http.StatusOK, StatsResponse{
			Username: prefs.ChesscomUsername,
			Platform: game.PlatformChesscom,
			Ratings:  platformStats.Ratings(),
			Report:   statsuc.Aggregate(prefs.ChesscomUsername, games),
		})

	default:
		httpresponse.WriteResponseWithStatus(w, http.StatusBadRequest,
			httpresponse.ErrorResponse{ErrorDescription: "unknown platform"})
	}
}
