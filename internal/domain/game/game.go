package game

import "time"

const (
	PlatformLichess  = "lichess"
	PlatformChesscom = "chesscom"
)

// MoveRecord is a single ply. Immutable once produced.
type MoveRecord struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
	SAN       string `json:"san"`
	UCI       string `json:"uci"`
}

// Annotation is platform-supplied analysis attached to a timeline entry.
// Eval and Mate are from White's perspective. Best is the recommended
// continuation from this entry's position, in coordinate notation.
type Annotation struct {
	Eval      *int   `json:"eval,omitempty"`
	Mate      *int   `json:"mate,omitempty"`
	Best      string `json:"best,omitempty"`
	Variation string `json:"variation,omitempty"`
	Judgment  string `json:"judgment,omitempty"`
	Comment   string `json:"comment,omitempty"`
}

// Evaluated reports whether the platform supplied a score for this position.
func (a *Annotation) Evaluated() bool {
	return a != nil && (a.Eval != nil || a.Mate != nil)
}

// TimelineEntry is the board state after N plies plus the move that
// produced it. Entry 0 is the start position and carries no move.
type TimelineEntry struct {
	Position   string         `json:"position"`
	Move       *MoveRecord    `json:"move,omitempty"`
	Clock      *time.Duration `json:"clock,omitempty"`
	Annotation *Annotation    `json:"annotation,omitempty"`
}

// Timeline is the ordered replay of a game, one entry per ply plus the
// start position at index 0.
type Timeline struct {
	Entries []TimelineEntry `json:"entries"`
}

// Plies returns the number of successfully replayed moves.
func (t *Timeline) Plies() int {
	return len(t.Entries) - 1
}

type Player struct {
	Username string `json:"username"`
	Rating   int    `json:"rating"`
}

// Summary is one finished (or aborted) game as reported by a platform.
// Annotations, when present, are aligned with timeline entry indices:
// Annotations[i] describes the position after ply i.
type Summary struct {
	ID          string          `json:"id"`
	Platform    string          `json:"platform"`
	Speed       string          `json:"speed"`
	White       Player          `json:"white"`
	Black       Player          `json:"black"`
	Winner      string          `json:"winner,omitempty"`
	Status      string          `json:"status,omitempty"`
	OpeningName string          `json:"opening_name,omitempty"`
	InitialFEN  string          `json:"initial_fen,omitempty"`
	Moves       []string        `json:"moves"`
	Clocks      []time.Duration `json:"clocks,omitempty"`
	Annotations []*Annotation   `json:"annotations,omitempty"`
	PlayedAt    time.Time       `json:"played_at"`
}

// LiveGame is a game currently in progress on a platform.
type LiveGame struct {
	ID       string `json:"id"`
	Platform string `json:"platform"`
	FEN      string `json:"fen"`
	Color    string `json:"color,omitempty"`
	LastMove string `json:"last_move,omitempty"`
	Speed    string `json:"speed,omitempty"`
	IsMyTurn bool   `json:"is_my_turn,omitempty"`
	Opponent Player `json:"opponent,omitempty"`
}

// StreamEvent is one line of a live-game move stream. The first event of
// a stream describes the full game; subsequent events carry one move each.
type StreamEvent struct {
	ID         string `json:"id,omitempty"`
	FEN        string `json:"fen,omitempty"`
	LastMove   string `json:"lm,omitempty"`
	WhiteClock int    `json:"wc,omitempty"`
	BlackClock int    `json:"bc,omitempty"`
	Status     string `json:"status,omitempty"`
	Winner     string `json:"winner,omitempty"`
}
