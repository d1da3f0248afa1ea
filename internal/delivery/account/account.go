package account

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chess_companion/internal/bootstrap"
	errs "chess_companion/internal/errors"
	"chess_companion/internal/httpresponse"
	"chess_companion/internal/random"
	repo "chess_companion/internal/repository"
	"chess_companion/internal/utils"
)

const sessionCookieName = "sessionID"

type AccountHandler struct {
	cfg      bootstrap.Config
	log      *zap.SugaredLogger
	lichess  *repo.LichessClient
	chesscom *repo.ChesscomClient
	prefs    *repo.PreferencesRepository
}

type LinkChesscomRequest struct {
	Username string `json:"username"`
}

type SetThemeRequest struct {
	Theme string `json:"theme"`
}

func NewAccountHandler(cfg bootstrap.Config, log *zap.SugaredLogger, lichess *repo.LichessClient,
	chesscom *repo.ChesscomClient, prefs *repo.PreferencesRepository) *AccountHandler {
	return &AccountHandler{
		cfg:      cfg,
		log:      log,
		lichess:  lichess,
		chesscom: chesscom,
		prefs:    prefs,
	}
}

// SessionID returns the browser's session identifier, minting a new one
// when the cookie is missing. Preferences are keyed by it.
func (a *AccountHandler) SessionID(w http.ResponseWriter, r *http.Request) string {
	if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	sessionID := uuid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sessionID,
		Expires:  time.Now().Add(30 * 24 * time.Hour),
		Secure:   true,
		HttpOnly: true,
	})
	return sessionID
}

// HandleLichessLogin starts the authorization-code-with-PKCE flow and
// redirects to the platform's consent page.
func (a *AccountHandler) HandleLichessLogin(w http.ResponseWriter, r *http.Request) {
	verifier, err := repo.GenerateCodeVerifier()
	if err != nil {
		a.log.Error("LichessLogin: failed to generate verifier: ", err)
		httpresponse.WriteResponseWithStatus(w, http.StatusInternalServerError,
			httpresponse.ErrorResponse{ErrorDescription: "failed to start authorization"})
		return
	}

	state := random.RandString(32)
	if err := a.prefs.StoreOAuthState(r.Context(), state, verifier); err != nil {
		a.log.Error("LichessLogin: failed to store oauth state: ", err)
		httpresponse.WriteResponseWithStatus(w, http.StatusInternalServerError,
			httpresponse.ErrorResponse{ErrorDescription: "failed to start authorization"})
		return
	}

	a.SessionID(w, r)
	http.Redirect(w, r, a.lichess.AuthURL(state, repo.CodeChallenge(verifier)), http.StatusFound)
}

// HandleLichessCallback exchanges the authorization code for a token and
// caches it with the linked account name.
func (a *AccountHandler) HandleLichessCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" || state == "" {
		a.log.Error("LichessCallback: missing code or state")
		httpresponse.WriteResponseWithStatus(w, http.StatusBadRequest,
			httpresponse.ErrorResponse{ErrorDescription: "missing code or state"})
		return
	}

	ctx := r.Context()

	verifier, err := a.prefs.TakeOAuthState(ctx, state)
	if err != nil {
		if errors.Is(err, errs.ErrStateNotFound) {
			a.log.Errorf("LichessCallback: unknown state %s", state)
			httpresponse.WriteResponseWithStatus(w, http.StatusBadRequest,
				httpresponse.ErrorResponse{ErrorDescription: "authorization state expired, retry login"})
			return
		}
		a.log.Error("LichessCallback: state lookup failed: ", err)
		httpresponse.WriteResponseWithStatus(w, http.StatusInternalServerError,
			httpresponse.ErrorResponse{ErrorDescription: err.Error()})
		return
	}

	token, err := a.lichess.ExchangeCode(ctx, code, verifier)
	if err != nil {
		a.log.Error("LichessCallback: code exchange failed: ", err)
		httpresponse.WriteResponseWithStatus(w, http.StatusBadGateway,
			httpresponse.ErrorResponse{ErrorDescription: "token exchange failed"})
		return
	}

	profile, err := a.lichess.Account(ctx, token)
	if err != nil {
		a.log.Error("LichessCallback: account fetch failed: ", err)
		httpresponse.WriteResponseWithStatus(w, http.StatusBadGateway,
			httpresponse.ErrorResponse{ErrorDescription: "profile fetch failed"})
		return
	}

	sessionID := a.SessionID(w, r)
	prefs, err := a.prefs.Get(ctx, sessionID)
	if err != nil {
		a.log.Error("LichessCallback: preferences read failed: ", err)
		httpresponse.WriteResponseWithStatus(w, http.StatusInternalServerError,
			httpresponse.ErrorResponse{ErrorDescription: err.Error()})
		return
	}
	prefs.LichessUsername = profile.Username
	prefs.LichessToken = token
	if err := a.prefs.Save(ctx, sessionID, prefs); err != nil {
		a.log.Error("LichessCallback: preferences save failed: ", err)
		httpresponse.WriteResponseWithStatus(w, http.StatusInternalServerError,
			httpresponse.ErrorResponse{ErrorDescription: err.Error()})
		return
	}

	a.log.Infof("linked lichess account %s", profile.Username)
	httpresponse.WriteResponseWithStatus(w, http.StatusOK, profile)
}

// HandleLogout drops the cached credential.
func (a *AccountHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	sessionID := a.SessionID(w, r)
	if err := a.prefs.ClearCredential(r.Context(), sessionID); err != nil {
		a.log.Errorf("Logout: failed to clear credential for session %s: %v", sessionID, err)
		httpresponse.WriteResponseWithStatus(w, http.StatusInternalServerError,
			httpresponse.ErrorResponse{ErrorDescription: err.Error()})
		return
	}
	httpresponse.WriteResponseWithStatus(w, http.StatusOK, nil)
}

// HandleLinkChesscom records the chess.com username after checking it
// exists.
func (a *AccountHandler) HandleLinkChesscom(w http.ResponseWriter, r *http.Request) {
	var req LinkChesscomRequest
	if err := utils.DecodeJSONRequest(r, &req); err != nil {
		a.log.Error("LinkChesscom: malformed JSON: ", err)
		httpresponse.WriteResponseWithStatus(w, http.StatusBadRequest,
			httpresponse.ErrorResponse{ErrorDescription: httpresponse.MALFORMEDJSON_errorDesc})
		return
	}
	if req.Username == "" {
		httpresponse.WriteResponseWithStatus(w, http.StatusBadRequest,
			httpresponse.ErrorResponse{ErrorDescription: "username is required"})
		return
	}

	ctx := r.Context()

	profile, err := a.chesscom.Profile(ctx, req.Username)
	if err != nil {
		a.log.Errorf("LinkChesscom: profile fetch for %s failed: %v", req.Username, err)
		httpresponse.WriteResponseWithStatus(w, http.StatusBadRequest,
			httpresponse.ErrorResponse{ErrorDescription: "player not found"})
		return
	}

	sessionID := a.SessionID(w, r)
	prefs, err := a.prefs.Get(ctx, sessionID)
	if err != nil {
		httpresponse.WriteResponseWithStatus(w, http.StatusInternalServerError,
			httpresponse.ErrorResponse{ErrorDescription: err.Error()})
		return
	}
	prefs.ChesscomUsername = profile.Username
	if err := a.prefs.Save(ctx, sessionID, prefs); err != nil {
		httpresponse.WriteResponseWithStatus(w, http.StatusInternalServerError,
			httpresponse.ErrorResponse{ErrorDescription: err.Error()})
		return
	}

	httpresponse.WriteResponseWithStatus(w, http.StatusOK, profile)
}

// HandleGetPreferences returns the stored preferences without the cached
// credential.
func (a *AccountHandler) HandleGetPreferences(w http.ResponseWriter, r *http.Request) {
	sessionID := a.SessionID(w, r)
	prefs, err := a.prefs.Get(r.Context(), sessionID)
	if err != nil {
		a.log.Error("GetPreferences: ", err)
		httpresponse.WriteResponseWithStatus(w, http.StatusInternalServerError,
			httpresponse.ErrorResponse{ErrorDescription: err.Error()})
		return
	}
	prefs.LichessToken = ""
	httpresponse.WriteResponseWithStatus(w, http.StatusOK, prefs)
}

// HandleSetTheme stores the board color theme.
func (a *AccountHandler) HandleSetTheme(w http.ResponseWriter, r *http.Request) {
	var req SetThemeRequest
	if err := utils.DecodeJSONRequest(r, &req); err != nil {
		a.log.Error("SetTheme: malformed JSON: ", err)
		httpresponse.WriteResponseWithStatus(w, http.StatusBadRequest,
			httpresponse.ErrorResponse{ErrorDescription: httpresponse.MALFORMEDJSON_errorDesc})
		return
	}

	ctx := r.Context()
	sessionID := a.SessionID(w, r)
	prefs, err := a.prefs.Get(ctx, sessionID)
	if err != nil {
		httpresponse.WriteResponseWithStatus(w, http.StatusInternalServerError,
			httpresponse.ErrorResponse{ErrorDescription: err.Error()})
		return
	}
	prefs.BoardTheme = req.Theme
	if err := a.prefs.Save(ctx, sessionID, prefs); err != nil {
		httpresponse.WriteResponseWithStatus(w, http.StatusInternalServerError,
			httpresponse.ErrorResponse{ErrorDescription: err.Error()})
		return
	}
	httpresponse.WriteResponseWithStatus(w, http.StatusOK, nil)
}
