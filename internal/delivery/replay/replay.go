package replay

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chess_companion/internal/bootstrap"
	"chess_companion/internal/domain/eval"
	"chess_companion/internal/domain/game"
	errs "chess_companion/internal/errors"
	"chess_companion/internal/httpresponse"
	repo "chess_companion/internal/repository"
	analysisuc "chess_companion/internal/usecase/analysis"
	replayuc "chess_companion/internal/usecase/replay"
	"chess_companion/internal/utils"
)

type ReplayHandler struct {
	cfg      bootstrap.Config
	log      *zap.SugaredLogger
	lichess  *repo.LichessClient
	chesscom *repo.ChesscomClient
	prefs    *repo.PreferencesRepository
	engine   analysisuc.Evaluator // nil when the engine failed to start
	builder  *replayuc.Builder

	mu       sync.RWMutex
	sessions map[string]*replaySession
}

type replaySession struct {
	nav     *replayuc.Navigator
	coord   *analysisuc.Coordinator
	summary game.Summary
}

type LoadRequest struct {
	Platform   string   `json:"platform,omitempty"`
	GameID     string   `json:"game_id,omitempty"`
	PGN        string   `json:"pgn,omitempty"`
	Moves      []string `json:"moves,omitempty"`
	InitialFEN string   `json:"initial_fen,omitempty"`
}

type LoadResponse struct {
	SessionID string         `json:"session_id"`
	Summary   game.Summary   `json:"summary"`
	State     replayuc.State `json:"state"`
}

type NavigateRequest struct {
	SessionID string `json:"session_id"`
	Action    string `json:"action"`
	Index     *int   `json:"index,omitempty"`
	Move      string `json:"move,omitempty"`
}

type StateResponse struct {
	State      replayuc.State   `json:"state"`
	Evaluation *eval.Evaluation `json:"evaluation,omitempty"`
	Rejected   string           `json:"rejected,omitempty"`
}

func NewReplayHandler(cfg bootstrap.Config, log *zap.SugaredLogger, lichess *repo.LichessClient,
	chesscom *repo.ChesscomClient, prefs *repo.PreferencesRepository, engine analysisuc.Evaluator) *ReplayHandler {
	return &ReplayHandler{
		cfg:      cfg,
		log:      log,
		lichess:  lichess,
		chesscom: chesscom,
		prefs:    prefs,
		engine:   engine,
		builder:  replayuc.NewBuilder(log),
		sessions: make(map[string]*replaySession),
	}
}

// HandleLoad builds a timeline for the selected game and opens a replay
// session. A previous session's state is never reused: each load starts
// at the initial position, following, overlay empty.
func (h *ReplayHandler) HandleLoad(w http.ResponseWriter, r *http.Request) {
	var req LoadRequest
	if err := utils.DecodeJSONRequest(r, &req); err != nil {
		h.log.Error("Load: malformed JSON: ", err)
		httpresponse.WriteResponseWithStatus(w, http.StatusBadRequest,
			httpresponse.ErrorResponse{ErrorDescription: httpresponse.MALFORMEDJSON_errorDesc})
		return
	}

	summary, err := h.resolveSummary(r, req)
	if err != nil {
		if errors.Is(err, errs.ErrGameNotFound) {
			httpresponse.WriteResponseWithStatus(w, http.StatusNotFound,
				httpresponse.ErrorResponse{ErrorDescription: "game not found"})
			return
		}
		h.log.Error("Load: ", err)
		httpresponse.WriteResponseWithStatus(w, http.StatusBadRequest,
			httpresponse.ErrorResponse{ErrorDescription: err.Error()})
		return
	}

	timeline, err := h.builder.BuildFromSummary(summary)
	if err != nil {
		h.log.Error("Load: timeline build failed: ", err)
		httpresponse.WriteResponseWithStatus(w, http.StatusBadRequest,
			httpresponse.ErrorResponse{ErrorDescription: err.Error()})
		return
	}

	coord := analysisuc.NewCoordinator(h.engine, h.cfg.EngineReplayDepth,
		time.Duration(h.cfg.EvalDebounceMs)*time.Millisecond, h.log)
	session := &replaySession{
		nav:     replayuc.NewNavigator(timeline, coord),
		coord:   coord,
		summary: summary,
	}

	sessionID := uuid.New().String()
	h.mu.Lock()
	h.sessions[sessionID] = session
	h.mu.Unlock()

	h.log.Infof("replay session %s opened for game %s (%d plies)",
		sessionID, summary.ID, timeline.Plies())

	httpresponse.WriteResponseWithStatus(w, http.StatusOK, LoadResponse{
		SessionID: sessionID,
		Summary:   summary,
		State:     session.nav.State(),
	})
}

// HandleNavigate applies one navigation action and returns the resulting
// position with the latest matching evaluation, if any. Rejected moves
// leave the session state untouched and are reported, not failed.
func (h *ReplayHandler) HandleNavigate(w http.ResponseWriter, r *http.Request) {
	var req NavigateRequest
	if err := utils.DecodeJSONRequest(r, &req); err != nil {
		h.log.Error("Navigate: malformed JSON: ", err)
		httpresponse.WriteResponseWithStatus(w, http.StatusBadRequest,
			httpresponse.ErrorResponse{ErrorDescription: httpresponse.MALFORMEDJSON_errorDesc})
		return
	}

	session, ok := h.session(req.SessionID)
	if !ok {
		httpresponse.WriteResponseWithStatus(w, http.StatusNotFound,
			httpresponse.ErrorResponse{ErrorDescription: errs.ErrSessionNotFound.Error()})
		return
	}

	var rejected string
	switch req.Action {
	case "first":
		session.nav.First()
	case "last":
		session.nav.Last()
	case "prev":
		session.nav.Prev()
	case "next":
		if err := session.nav.Next(); err != nil {
			rejected = err.Error()
		}
	case "jump":
		if req.Index == nil {
			httpresponse.WriteResponseWithStatus(w, http.StatusBadRequest,
				httpresponse.ErrorResponse{ErrorDescription: "jump requires an index"})
			return
		}
		session.nav.JumpTo(*req.Index)
	case "follow_best":
		if err := session.nav.FollowBest(); err != nil {
			rejected = err.Error()
		}
	case "explore":
		if req.Move == "" {
			httpresponse.WriteResponseWithStatus(w, http.StatusBadRequest,
				httpresponse.ErrorResponse{ErrorDescription: "explore requires a move"})
			return
		}
		if err := session.nav.Explore(req.Move); err != nil {
			rejected = err.Error()
		}
	case "exit_variation":
		session.nav.ExitVariation()
	default:
		httpresponse.WriteResponseWithStatus(w, http.StatusBadRequest,
			httpresponse.ErrorResponse{ErrorDescription: "unknown action"})
		return
	}

	httpresponse.WriteResponseWithStatus(w, http.StatusOK, h.stateResponse(session, rejected))
}

// HandleState returns the current position of a session without changing
// it.
func (h *ReplayHandler) HandleState(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(r.URL.Query().Get("session_id"))
	if !ok {
		httpresponse.WriteResponseWithStatus(w, http.StatusNotFound,
			httpresponse.ErrorResponse{ErrorDescription: errs.ErrSessionNotFound.Error()})
		return
	}
	httpresponse.WriteResponseWithStatus(w, http.StatusOK, h.stateResponse(session, ""))
}

// HandleClose tears the session down and cancels its pending evaluation.
func (h *ReplayHandler) HandleClose(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")

	h.mu.Lock()
	session, ok := h.sessions[sessionID]
	if ok {
		delete(h.sessions, sessionID)
	}
	h.mu.Unlock()

	if !ok {
		httpresponse.WriteResponseWithStatus(w, http.StatusNotFound,
			httpresponse.ErrorResponse{ErrorDescription: errs.ErrSessionNotFound.Error()})
		return
	}

	session.coord.Close()
	httpresponse.WriteResponseWithStatus(w, http.StatusOK, nil)
}

func (h *ReplayHandler) session(sessionID string) (*replaySession, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	session, ok := h.sessions[sessionID]
	return session, ok
}

func (h *ReplayHandler) stateResponse(session *replaySession, rejected string) StateResponse {
	st := session.nav.State()
	session.coord.PositionChanged(st.FEN, st.Annotated)

	resp := StateResponse{State: st, Rejected: rejected}
	if ev, ok := session.coord.Latest(st.FEN); ok {
		resp.Evaluation = &ev
	}
	return resp
}

func (h *ReplayHandler) resolveSummary(r *http.Request, req LoadRequest) (game.Summary, error) {
	ctx := r.Context()

	switch {
	case req.Platform == game.PlatformLichess && req.GameID != "":
		token := ""
		if cookie, err := r.Cookie("sessionID"); err == nil {
			if prefs, err := h.prefs.Get(ctx, cookie.Value); err == nil {
				token = prefs.LichessToken
			}
		}
		return h.lichess.ExportGame(ctx, token, req.GameID)

	case req.PGN != "":
		return game.Summary{
			ID:         req.GameID,
			Platform:   req.Platform,
			Moves:      repo.ExtractMoves(req.PGN),
			InitialFEN: req.InitialFEN,
		}, nil

	case len(req.Moves) > 0:
		return game.Summary{
			ID:         req.GameID,
			Platform:   req.Platform,
			Moves:      req.Moves,
			InitialFEN: req.InitialFEN,
		}, nil

	default:
		return game.Summary{}, errors.New("request must name a lichess game or carry moves/pgn")
	}
}
