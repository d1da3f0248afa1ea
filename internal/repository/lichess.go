package repo

import (
	"bufio"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"chess_companion/internal/bootstrap"
	"chess_companion/internal/domain/game"
	"chess_companion/internal/domain/user"
	errs "chess_companion/internal/errors"
)

// LichessClient talks to the OAuth-protected platform: profile, games
// currently being played, the per-game move stream and bulk game export.
type LichessClient struct {
	cfg    bootstrap.Config
	log    *zap.SugaredLogger
	client *http.Client
}

func NewLichessClient(cfg bootstrap.Config, log *zap.SugaredLogger) *LichessClient {
	return &LichessClient{
		cfg:    cfg,
		log:    log,
		client: &http.Client{},
	}
}

// GenerateCodeVerifier produces the PKCE verifier for one authorization
// attempt.
func GenerateCodeVerifier() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// CodeChallenge derives the S256 challenge from a verifier.
func CodeChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// AuthURL builds the authorization redirect for the code+PKCE flow.
func (l *LichessClient) AuthURL(state, challenge string) string {
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", l.cfg.LichessClientID)
	q.Set("redirect_uri", l.cfg.LichessRedirectUrl)
	q.Set("scope", "preference:read")
	q.Set("code_challenge_method", "S256")
	q.Set("code_challenge", challenge)
	q.Set("state", state)
	return l.cfg.LichessUrl + "/oauth?" + q.Encode()
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// ExchangeCode trades the authorization code plus verifier for an access
// token.
func (l *LichessClient) ExchangeCode(ctx context.Context, code, verifier string) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("code_verifier", verifier)
	form.Set("redirect_uri", l.cfg.LichessRedirectUrl)
	form.Set("client_id", l.cfg.LichessClientID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.cfg.LichessUrl+"/api/token",
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := l.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token exchange rejected with status %d", resp.StatusCode)
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", err
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("token exchange returned an empty token")
	}
	return tok.AccessToken, nil
}

type lichessAccount struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Title    string `json:"title"`
	Perfs    map[string]struct {
		Rating int `json:"rating"`
	} `json:"perfs"`
}

// Account fetches the profile of the token's owner.
func (l *LichessClient) Account(ctx context.Context, token string) (user.Profile, error) {
	var acc lichessAccount
	if err := l.getJSON(ctx, token, "/api/account", &acc); err != nil {
		return user.Profile{}, err
	}

	ratings := make(map[string]int, len(acc.Perfs))
	for perf, v := range acc.Perfs {
		ratings[perf] = v.Rating
	}

	return user.Profile{
		Username: acc.Username,
		Title:    acc.Title,
		Ratings:  ratings,
	}, nil
}

type nowPlayingResponse struct {
	NowPlaying []struct {
		GameID   string `json:"gameId"`
		FEN      string `json:"fen"`
		Color    string `json:"color"`
		LastMove string `json:"lastMove"`
		Speed    string `json:"speed"`
		IsMyTurn bool   `json:"isMyTurn"`
		Opponent struct {
			Username string `json:"username"`
			Rating   int    `json:"rating"`
		} `json:"opponent"`
	} `json:"nowPlaying"`
}

// NowPlaying lists the games the token's owner is currently playing.
func (l *LichessClient) NowPlaying(ctx context.Context, token string) ([]game.LiveGame, error) {
	var body nowPlayingResponse
	if err := l.getJSON(ctx, token, "/api/account/playing", &body); err != nil {
		return nil, err
	}

	live := make([]game.LiveGame, 0, len(body.NowPlaying))
	for _, g := range body.NowPlaying {
		live = append(live, game.LiveGame{
			ID:       g.GameID,
			Platform: game.PlatformLichess,
			FEN:      g.FEN,
			Color:    g.Color,
			LastMove: g.LastMove,
			Speed:    g.Speed,
			IsMyTurn: g.IsMyTurn,
			Opponent: game.Player{Username: g.Opponent.Username, Rating: g.Opponent.Rating},
		})
	}
	return live, nil
}

type lichessJudgment struct {
	Name    string `json:"name"`
	Comment string `json:"comment"`
}

type lichessAnalysis struct {
	Eval      *int             `json:"eval,omitempty"`
	Mate      *int             `json:"mate,omitempty"`
	Best      string           `json:"best,omitempty"`
	Variation string           `json:"variation,omitempty"`
	Judgment  *lichessJudgment `json:"judgment,omitempty"`
}

type lichessGame struct {
	ID         string `json:"id"`
	Speed      string `json:"speed"`
	Status     string `json:"status"`
	Winner     string `json:"winner"`
	Moves      string `json:"moves"`
	InitialFen string `json:"initialFen"`
	CreatedAt  int64  `json:"createdAt"`
	LastMoveAt int64  `json:"lastMoveAt"`
	Opening    *struct {
		Name string `json:"name"`
	} `json:"opening,omitempty"`
	Players struct {
		White lichessGamePlayer `json:"white"`
		Black lichessGamePlayer `json:"black"`
	} `json:"players"`
	Clocks   []int             `json:"clocks,omitempty"`
	Analysis []lichessAnalysis `json:"analysis,omitempty"`
}

type lichessGamePlayer struct {
	User *struct {
		Name string `json:"name"`
	} `json:"user,omitempty"`
	Rating int `json:"rating"`
}

// ExportGames fetches the most recent games of a user as one JSON object
// per line, with clock, evaluation and opening annotations when the
// platform has them. Malformed lines are skipped.
func (l *LichessClient) ExportGames(ctx context.Context, token, username string, max int) ([]game.Summary, error) {
	q := url.Values{}
	q.Set("max", strconv.Itoa(max))
	q.Set("moves", "true")
	q.Set("evals", "true")
	q.Set("clocks", "true")
	q.Set("opening", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		l.cfg.LichessUrl+"/api/games/user/"+url.PathEscape(username)+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/x-ndjson")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, errs.ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("game export rejected with status %d", resp.StatusCode)
	}

	var games []game.Summary
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var lg lichessGame
		if err := json.Unmarshal([]byte(line), &lg); err != nil {
			l.log.Warnf("skipping malformed game line: %v", err)
			continue
		}
		games = append(games, convertLichessGame(lg))
	}
	if err := scanner.Err(); err != nil {
		return games, err
	}
	return games, nil
}

// ExportGame fetches a single game by id.
func (l *LichessClient) ExportGame(ctx context.Context, token, gameID string) (game.Summary, error) {
	q := url.Values{}
	q.Set("moves", "true")
	q.Set("evals", "true")
	q.Set("clocks", "true")
	q.Set("opening", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		l.cfg.LichessUrl+"/game/export/"+url.PathEscape(gameID)+"?"+q.Encode(), nil)
	if err != nil {
		return game.Summary{}, err
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return game.Summary{}, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return game.Summary{}, errs.ErrUnauthorized
	case http.StatusNotFound:
		return game.Summary{}, errs.ErrGameNotFound
	default:
		return game.Summary{}, fmt.Errorf("game export rejected with status %d", resp.StatusCode)
	}

	var lg lichessGame
	if err := json.NewDecoder(resp.Body).Decode(&lg); err != nil {
		return game.Summary{}, err
	}
	return convertLichessGame(lg), nil
}

// StreamGame opens the newline-delimited JSON stream of a live game.
// The returned channel closes when the stream ends or the context is
// cancelled; a buffered event may still arrive right after cancellation
// and must be ignored by the consumer.
func (l *LichessClient) StreamGame(ctx context.Context, gameID string) (<-chan game.StreamEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		l.cfg.LichessUrl+"/api/stream/game/"+url.PathEscape(gameID), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/x-ndjson")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound {
			return nil, errs.ErrGameNotFound
		}
		return nil, fmt.Errorf("game stream rejected with status %d", resp.StatusCode)
	}

	events := make(chan game.StreamEvent, 8)
	go func() {
		defer close(events)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			var ev game.StreamEvent
			if err := json.Unmarshal([]byte(line), &ev); err != nil {
				l.log.Warnf("skipping malformed stream line for game %s: %v", gameID, err)
				continue
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			l.log.Warnf("game stream %s ended with error: %v", gameID, err)
		}
	}()

	return events, nil
}

func (l *LichessClient) getJSON(ctx context.Context, token, path string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.cfg.LichessUrl+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return errs.ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("request %s rejected with status %d", path, resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(dst)
}

func convertLichessGame(lg lichessGame) game.Summary {
	moves := strings.Fields(lg.Moves)

	s := game.Summary{
		ID:         lg.ID,
		Platform:   game.PlatformLichess,
		Speed:      lg.Speed,
		Winner:     lg.Winner,
		Status:     lg.Status,
		InitialFEN: lg.InitialFen,
		Moves:      moves,
		White:      convertLichessPlayer(lg.Players.White),
		Black:      convertLichessPlayer(lg.Players.Black),
		PlayedAt:   time.UnixMilli(lg.CreatedAt),
	}
	if lg.Opening != nil {
		s.OpeningName = lg.Opening.Name
	}

	// Clock readings arrive in centiseconds, one per ply.
	if len(lg.Clocks) > 0 {
		s.Clocks = make([]time.Duration, len(lg.Clocks))
		for i, c := range lg.Clocks {
			s.Clocks[i] = time.Duration(c) * 10 * time.Millisecond
		}
	}

	// Analysis entry i judges move i+1: its score describes the position
	// after that move, while "best" is the alternative from the position
	// before it. Spread the two onto the matching timeline indices.
	if len(lg.Analysis) > 0 {
		s.Annotations = make([]*game.Annotation, len(moves)+1)
		at := func(i int) *game.Annotation {
			if s.Annotations[i] == nil {
				s.Annotations[i] = &game.Annotation{}
			}
			return s.Annotations[i]
		}
		for i, a := range lg.Analysis {
			if i+1 < len(s.Annotations) {
				ann := at(i + 1)
				ann.Eval = a.Eval
				ann.Mate = a.Mate
				if a.Judgment != nil {
					ann.Judgment = a.Judgment.Name
					ann.Comment = a.Judgment.Comment
				}
			}
			if a.Best != "" && i < len(s.Annotations) {
				ann := at(i)
				ann.Best = a.Best
				ann.Variation = a.Variation
			}
		}
	}

	return s
}

func convertLichessPlayer(p lichessGamePlayer) game.Player {
	out := game.Player{Rating: p.Rating}
	if p.User != nil {
		out.Username = p.User.Name
	}
	return out
}
