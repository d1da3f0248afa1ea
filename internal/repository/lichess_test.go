package repo

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"chess_companion/internal/bootstrap"
	errs "chess_companion/internal/errors"
)

func newLichessTestClient(handler http.Handler) (*LichessClient, *httptest.Server) {
	srv := httptest.NewServer(handler)
	cfg := bootstrap.Config{
		LichessUrl:         srv.URL,
		LichessClientID:    "companion-test",
		LichessRedirectUrl: "http://localhost:8080/lichess/callback",
	}
	return NewLichessClient(cfg, zap.NewNop().Sugar()), srv
}

func TestCodeChallengeIsDeterministicS256(t *testing.T) {
	// RFC 7636 appendix B test vector.
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	want := "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
	if got := CodeChallenge(verifier); got != want {
		t.Errorf("challenge = %s, want %s", got, want)
	}
}

func TestGenerateCodeVerifierIsUnique(t *testing.T) {
	a, err := GenerateCodeVerifier()
	if err != nil {
		t.Fatal(err)
	}
	b, err := GenerateCodeVerifier()
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Error("two verifiers came out identical")
	}
	if len(a) < 43 {
		t.Errorf("verifier too short for PKCE: %d chars", len(a))
	}
}

func TestAuthURLCarriesPKCEParams(t *testing.T) {
	client, srv := newLichessTestClient(http.NotFoundHandler())
	defer srv.Close()

	raw := client.AuthURL("state-token", "challenge-value")
	parsed, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("AuthURL produced an unparseable URL: %v", err)
	}
	q := parsed.Query()

	for param, want := range map[string]string{
		"response_type":         "code",
		"client_id":             "companion-test",
		"code_challenge_method": "S256",
		"code_challenge":        "challenge-value",
		"state":                 "state-token",
	} {
		if got := q.Get(param); got != want {
			t.Errorf("%s = %q, want %q", param, got, want)
		}
	}
	if !strings.HasSuffix(parsed.Path, "/oauth") {
		t.Errorf("path = %s, want /oauth", parsed.Path)
	}
}

func TestExchangeCodePostsForm(t *testing.T) {
	client, srv := newLichessTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/token" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("form parse: %v", err)
		}
		if got := r.PostForm.Get("grant_type"); got != "authorization_code" {
			t.Errorf("grant_type = %q", got)
		}
		if got := r.PostForm.Get("code"); got != "auth-code" {
			t.Errorf("code = %q", got)
		}
		if got := r.PostForm.Get("code_verifier"); got != "the-verifier" {
			t.Errorf("code_verifier = %q", got)
		}
		w.Write([]byte(`{"access_token": "tok123", "token_type": "Bearer"}`))
	}))
	defer srv.Close()

	token, err := client.ExchangeCode(context.Background(), "auth-code", "the-verifier")
	if err != nil {
		t.Fatalf("ExchangeCode returned error: %v", err)
	}
	if token != "tok123" {
		t.Errorf("token = %s", token)
	}
}

func TestExchangeCodeRejectsEmptyToken(t *testing.T) {
	client, srv := newLichessTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"token_type": "Bearer"}`))
	}))
	defer srv.Close()

	if _, err := client.ExchangeCode(context.Background(), "c", "v"); err == nil {
		t.Fatal("expected an error for a response without a token")
	}
}

func TestAccountExpiredToken(t *testing.T) {
	client, srv := newLichessTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	if _, err := client.Account(context.Background(), "stale"); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestAccountFlattensRatings(t *testing.T) {
	client, srv := newLichessTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("authorization = %q", got)
		}
		w.Write([]byte(`{
			"id": "alice",
			"username": "Alice",
			"title": "FM",
			"perfs": {"blitz": {"rating": 2100}, "rapid": {"rating": 2050}}
		}`))
	}))
	defer srv.Close()

	profile, err := client.Account(context.Background(), "tok")
	if err != nil {
		t.Fatalf("Account returned error: %v", err)
	}
	if profile.Username != "Alice" || profile.Title != "FM" {
		t.Errorf("profile = %+v", profile)
	}
	if profile.Ratings["blitz"] != 2100 || profile.Ratings["rapid"] != 2050 {
		t.Errorf("ratings = %v", profile.Ratings)
	}
}

func TestExportGamesSkipsMalformedLines(t *testing.T) {
	client, srv := newLichessTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/api/games/user/alice") {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("max"); got != "5" {
			t.Errorf("max = %q", got)
		}
		w.Write([]byte(`{"id":"g1","speed":"blitz","status":"mate","winner":"white","moves":"e4 e5","createdAt":1756000000000,"players":{"white":{"user":{"name":"alice"},"rating":1500},"black":{"user":{"name":"bob"},"rating":1490}}}
this line is not json
{"id":"g2","speed":"rapid","status":"draw","moves":"d4 d5","createdAt":1756000100000,"players":{"white":{"user":{"name":"bob"},"rating":1490},"black":{"user":{"name":"alice"},"rating":1500}}}
`))
	}))
	defer srv.Close()

	games, err := client.ExportGames(context.Background(), "tok", "alice", 5)
	if err != nil {
		t.Fatalf("ExportGames returned error: %v", err)
	}
	if len(games) != 2 {
		t.Fatalf("games = %d, want the malformed line skipped", len(games))
	}
	if games[0].ID != "g1" || games[1].ID != "g2" {
		t.Errorf("ids = %s, %s", games[0].ID, games[1].ID)
	}
	if games[0].Winner != "white" || games[1].Winner != "" {
		t.Errorf("winners = %q, %q", games[0].Winner, games[1].Winner)
	}
}

func TestExportGameConvertsClocksAndAnalysis(t *testing.T) {
	client, srv := newLichessTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/game/export/abc123" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`{
			"id": "abc123",
			"speed": "blitz",
			"status": "resign",
			"winner": "black",
			"moves": "e4 e5 Nf3",
			"createdAt": 1756000000000,
			"opening": {"name": "King's Pawn Game"},
			"players": {
				"white": {"user": {"name": "alice"}, "rating": 1500},
				"black": {"user": {"name": "bob"}, "rating": 1490}
			},
			"clocks": [18000, 17950, 17890],
			"analysis": [
				{"eval": 30},
				{"eval": 25, "best": "g1f3", "variation": "Nf3 Nc6",
				 "judgment": {"name": "Inaccuracy", "comment": "Better was Nf3"}},
				{"eval": 28}
			]
		}`))
	}))
	defer srv.Close()

	summary, err := client.ExportGame(context.Background(), "tok", "abc123")
	if err != nil {
		t.Fatalf("ExportGame returned error: %v", err)
	}

	if summary.OpeningName != "King's Pawn Game" {
		t.Errorf("opening = %q", summary.OpeningName)
	}
	if len(summary.Moves) != 3 {
		t.Fatalf("moves = %v", summary.Moves)
	}

	// 18000 centiseconds is three minutes.
	if len(summary.Clocks) != 3 || summary.Clocks[0] != 3*time.Minute {
		t.Errorf("clocks = %v", summary.Clocks)
	}

	// One annotation slot per position: moves+1.
	if len(summary.Annotations) != 4 {
		t.Fatalf("annotation slots = %d, want 4", len(summary.Annotations))
	}

	// Analysis entry 0 scores the position after move 1.
	if a := summary.Annotations[1]; a == nil || a.Eval == nil || *a.Eval != 30 {
		t.Errorf("annotation after move 1 = %+v", a)
	}
	// Analysis entry 1 scores the position after move 2 and suggests a
	// better second move, which belongs to the position before it.
	if a := summary.Annotations[2]; a == nil || a.Eval == nil || *a.Eval != 25 || a.Judgment != "Inaccuracy" {
		t.Errorf("annotation after move 2 = %+v", a)
	}
	if a := summary.Annotations[1]; a.Best != "g1f3" || a.Variation != "Nf3 Nc6" {
		t.Errorf("best-move spread wrong: %+v", a)
	}
}

func TestExportGameNotFound(t *testing.T) {
	client, srv := newLichessTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	if _, err := client.ExportGame(context.Background(), "", "nope"); !errors.Is(err, errs.ErrGameNotFound) {
		t.Fatalf("expected ErrGameNotFound, got %v", err)
	}
}

func TestStreamGameDeliversEventsAndCloses(t *testing.T) {
	client, srv := newLichessTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/stream/game/live1" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`{"id":"live1","fen":"startpos-fen","wc":180,"bc":180}
not json at all
{"id":"live1","fen":"next-fen","lm":"e2e4","wc":178,"bc":180,"status":"started"}
`))
	}))
	defer srv.Close()

	events, err := client.StreamGame(context.Background(), "live1")
	if err != nil {
		t.Fatalf("StreamGame returned error: %v", err)
	}

	var got []string
	for ev := range events {
		got = append(got, ev.FEN)
	}
	if len(got) != 2 || got[0] != "startpos-fen" || got[1] != "next-fen" {
		t.Errorf("streamed fens = %v", got)
	}
}

func TestStreamGameRejectedGame(t *testing.T) {
	client, srv := newLichessTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	if _, err := client.StreamGame(context.Background(), "gone"); !errors.Is(err, errs.ErrGameNotFound) {
		t.Fatalf("expected ErrGameNotFound, got %v", err)
	}
}
