package replay

import (
	"fmt"
	"regexp"

	"github.com/notnil/chess"
	"go.uber.org/zap"

	"chess_companion/internal/domain/game"
)

// Tokens of two square references plus an optional promotion letter are
// treated as coordinate notation; everything else as algebraic. Sources
// that tag their notation explicitly can bypass the heuristic via
// decodeUCI/decodeSAN.
var coordinatePattern = regexp.MustCompile(`^[a-h][1-8][a-h][1-8][qrbnQRBN]?$`)

// Builder replays flat move lists into timelines. Replay is deliberately
// lenient: platform data is not always clean and a partial timeline is
// more useful than none.
type Builder struct {
	log *zap.SugaredLogger
}

func NewBuilder(log *zap.SugaredLogger) *Builder {
	return &Builder{log: log}
}

// Build replays the tokens against the start position (standard start
// when startFEN is empty). The first token that fails to apply stops
// consumption; every ply replayed so far stays in the result.
func (b *Builder) Build(tokens []string, startFEN string) (*game.Timeline, error) {
	g, err := newGame(startFEN)
	if err != nil {
		return nil, err
	}

	timeline := &game.Timeline{
		Entries: make([]game.TimelineEntry, 0, len(tokens)+1),
	}
	timeline.Entries = append(timeline.Entries, game.TimelineEntry{
		Position: g.Position().String(),
	})

	for i, tok := range tokens {
		before := g.Position()

		mv, err := decodeToken(before, tok)
		if err == nil {
			err = g.Move(mv)
		}
		if err != nil {
			b.log.Warnf("ply %d: move %q does not apply, keeping %d replayed plies: %v",
				i+1, tok, i, err)
			break
		}

		timeline.Entries = append(timeline.Entries, game.TimelineEntry{
			Position: g.Position().String(),
			Move:     recordMove(before, mv),
		})
	}

	return timeline, nil
}

// BuildFromSummary builds the timeline of a platform game and attaches
// its clock readings and analysis annotations per ply.
func (b *Builder) BuildFromSummary(s game.Summary) (*game.Timeline, error) {
	timeline, err := b.Build(s.Moves, s.InitialFEN)
	if err != nil {
		return nil, err
	}

	for i := range timeline.Entries {
		if i > 0 && i-1 < len(s.Clocks) {
			clock := s.Clocks[i-1]
			timeline.Entries[i].Clock = &clock
		}
		if i < len(s.Annotations) {
			timeline.Entries[i].Annotation = s.Annotations[i]
		}
	}

	return timeline, nil
}

func newGame(startFEN string) (*chess.Game, error) {
	if startFEN == "" {
		return chess.NewGame(), nil
	}
	opt, err := chess.FEN(startFEN)
	if err != nil {
		return nil, fmt.Errorf("bad start position %q: %w", startFEN, err)
	}
	return chess.NewGame(opt), nil
}

func decodeToken(pos *chess.Position, tok string) (*chess.Move, error) {
	if coordinatePattern.MatchString(tok) {
		return decodeUCI(pos, tok)
	}
	return decodeSAN(pos, tok)
}

func decodeUCI(pos *chess.Position, tok string) (*chess.Move, error) {
	mv, err := chess.UCINotation{}.Decode(pos, tok)
	if err != nil {
		return nil, err
	}
	if !isLegal(pos, mv) {
		return nil, fmt.Errorf("move %s is not legal in this position", tok)
	}
	return mv, nil
}

func decodeSAN(pos *chess.Position, tok string) (*chess.Move, error) {
	return chess.AlgebraicNotation{}.Decode(pos, tok)
}

func isLegal(pos *chess.Position, mv *chess.Move) bool {
	for _, valid := range pos.ValidMoves() {
		if valid.String() == mv.String() {
			return true
		}
	}
	return false
}

func recordMove(before *chess.Position, mv *chess.Move) *game.MoveRecord {
	uci := chess.UCINotation{}.Encode(before, mv)
	rec := &game.MoveRecord{
		From: mv.S1().String(),
		To:   mv.S2().String(),
		SAN:  chess.AlgebraicNotation{}.Encode(before, mv),
		UCI:  uci,
	}
	if len(uci) == 5 {
		rec.Promotion = uci[4:]
	}
	return rec
}
