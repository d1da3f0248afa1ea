package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"chess_companion/internal/bootstrap"
	"chess_companion/internal/domain/game"
	"chess_companion/internal/domain/user"
	errs "chess_companion/internal/errors"
)

// ChesscomClient talks to the public, unauthenticated platform API:
// profile, stats, monthly archives with embedded PGN and current daily
// games.
type ChesscomClient struct {
	cfg    bootstrap.Config
	log    *zap.SugaredLogger
	client *http.Client
}

func NewChesscomClient(cfg bootstrap.Config, log *zap.SugaredLogger) *ChesscomClient {
	return &ChesscomClient{
		cfg:    cfg,
		log:    log,
		client: &http.Client{},
	}
}

type chesscomProfile struct {
	Username string `json:"username"`
	Title    string `json:"title"`
}

// Profile fetches the player's public profile.
func (c *ChesscomClient) Profile(ctx context.Context, username string) (user.Profile, error) {
	var p chesscomProfile
	if err := c.getJSON(ctx, "/pub/player/"+url.PathEscape(strings.ToLower(username)), &p); err != nil {
		return user.Profile{}, err
	}
	return user.Profile{Username: p.Username, Title: p.Title}, nil
}

type chesscomStatsRecord struct {
	Last struct {
		Rating int `json:"rating"`
	} `json:"last"`
	Record struct {
		Win  int `json:"win"`
		Loss int `json:"loss"`
		Draw int `json:"draw"`
	} `json:"record"`
}

type ChesscomStats struct {
	Blitz  *chesscomStatsRecord `json:"chess_blitz,omitempty"`
	Bullet *chesscomStatsRecord `json:"chess_bullet,omitempty"`
	Rapid  *chesscomStatsRecord `json:"chess_rapid,omitempty"`
	Daily  *chesscomStatsRecord `json:"chess_daily,omitempty"`
}

// Ratings flattens the per-category ratings the platform reports.
func (s ChesscomStats) Ratings() map[string]int {
	out := make(map[string]int)
	for name, rec := range map[string]*chesscomStatsRecord{
		"blitz":  s.Blitz,
		"bullet": s.Bullet,
		"rapid":  s.Rapid,
		"daily":  s.Daily,
	} {
		if rec != nil {
			out[name] = rec.Last.Rating
		}
	}
	return out
}

// Stats fetches the player's rating and record per game category.
func (c *ChesscomClient) Stats(ctx context.Context, username string) (ChesscomStats, error) {
	var s ChesscomStats
	err := c.getJSON(ctx, "/pub/player/"+url.PathEscape(strings.ToLower(username))+"/stats", &s)
	return s, err
}

type archivesResponse struct {
	Archives []string `json:"archives"`
}

// Archives lists the URLs of the player's monthly game archives, oldest
// first.
func (c *ChesscomClient) Archives(ctx context.Context, username string) ([]string, error) {
	var a archivesResponse
	err := c.getJSON(ctx, "/pub/player/"+url.PathEscape(strings.ToLower(username))+"/games/archives", &a)
	return a.Archives, err
}

type chesscomGamePlayer struct {
	Username string `json:"username"`
	Rating   int    `json:"rating"`
	Result   string `json:"result"`
}

type chesscomGame struct {
	URL          string             `json:"url"`
	PGN          string             `json:"pgn"`
	FEN          string             `json:"fen"`
	TimeClass    string             `json:"time_class"`
	EndTime      int64              `json:"end_time"`
	InitialSetup string             `json:"initial_setup"`
	White        chesscomGamePlayer `json:"white"`
	Black        chesscomGamePlayer `json:"black"`
}

type archiveGamesResponse struct {
	Games []chesscomGame `json:"games"`
}

// ArchiveGames fetches one monthly archive. The archive URL comes from
// Archives verbatim.
func (c *ChesscomClient) ArchiveGames(ctx context.Context, archiveURL string) ([]game.Summary, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, archiveURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("archive request rejected with status %d", resp.StatusCode)
	}

	var body archiveGamesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}

	games := make([]game.Summary, 0, len(body.Games))
	for _, g := range body.Games {
		games = append(games, convertChesscomGame(g))
	}
	return games, nil
}

type currentGamesResponse struct {
	Games []struct {
		URL   string `json:"url"`
		FEN   string `json:"fen"`
		Turn  string `json:"turn"`
		White string `json:"white"`
		Black string `json:"black"`
	} `json:"games"`
}

// CurrentGames lists the player's in-progress daily games. There is no
// move stream for these; callers poll.
func (c *ChesscomClient) CurrentGames(ctx context.Context, username string) ([]game.LiveGame, error) {
	var body currentGamesResponse
	if err := c.getJSON(ctx, "/pub/player/"+url.PathEscape(strings.ToLower(username))+"/games", &body); err != nil {
		return nil, err
	}

	live := make([]game.LiveGame, 0, len(body.Games))
	for _, g := range body.Games {
		lg := game.LiveGame{
			ID:       gameIDFromURL(g.URL),
			Platform: game.PlatformChesscom,
			FEN:      g.FEN,
			Speed:    "daily",
		}
		if strings.HasSuffix(strings.ToLower(g.White), "/"+strings.ToLower(username)) {
			lg.Color = "white"
		} else {
			lg.Color = "black"
		}
		lg.IsMyTurn = g.Turn == lg.Color
		live = append(live, lg)
	}
	return live, nil
}

func (c *ChesscomClient) getJSON(ctx context.Context, path string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.ChesscomUrl+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errs.ErrGameNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("request %s rejected with status %d", path, resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(dst)
}

func convertChesscomGame(g chesscomGame) game.Summary {
	winner := ""
	switch {
	case g.White.Result == "win":
		winner = "white"
	case g.Black.Result == "win":
		winner = "black"
	}

	return game.Summary{
		ID:         gameIDFromURL(g.URL),
		Platform:   game.PlatformChesscom,
		Speed:      g.TimeClass,
		White:      game.Player{Username: g.White.Username, Rating: g.White.Rating},
		Black:      game.Player{Username: g.Black.Username, Rating: g.Black.Rating},
		Winner:     winner,
		Status:     g.White.Result + "/" + g.Black.Result,
		InitialFEN: g.InitialSetup,
		Moves:      ExtractMoves(g.PGN),
		PlayedAt:   time.Unix(g.EndTime, 0),
	}
}

func gameIDFromURL(gameURL string) string {
	trimmed := strings.TrimRight(gameURL, "/")
	idx := strings.LastIndexByte(trimmed, '/')
	if idx < 0 || idx == len(trimmed)-1 {
		return gameURL
	}
	return trimmed[idx+1:]
}

var (
	pgnCommentRe   = regexp.MustCompile(`\{[^}]*\}`)
	pgnVariationRe = regexp.MustCompile(`\([^()]*\)`)
	pgnNagRe       = regexp.MustCompile(`\$\d+`)
	pgnMoveNumRe   = regexp.MustCompile(`\b\d+\.{1,3}`)
)

// ExtractMoves recovers the bare move tokens from embedded PGN text by
// stripping header lines, comments, variations, numeric annotation
// glyphs, move numbers and result markers.
func ExtractMoves(pgn string) []string {
	var body []string
	for _, line := range strings.Split(pgn, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "[") {
			continue
		}
		body = append(body, line)
	}

	text := strings.Join(body, " ")
	text = pgnCommentRe.ReplaceAllString(text, " ")
	for strings.ContainsRune(text, '(') {
		stripped := pgnVariationRe.ReplaceAllString(text, " ")
		if stripped == text {
			break
		}
		text = stripped
	}
	text = pgnNagRe.ReplaceAllString(text, " ")
	text = pgnMoveNumRe.ReplaceAllString(text, " ")

	var moves []string
	for _, tok := range strings.Fields(text) {
		switch tok {
		case "1-0", "0-1", "1/2-1/2", "*", "...", "..":
			continue
		}
		moves = append(moves, tok)
	}
	return moves
}
