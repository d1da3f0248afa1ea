package replay

import (
	"testing"
	"time"

	"github.com/notnil/chess"
	"go.uber.org/zap"

	"chess_companion/internal/domain/game"
)

const startFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

func testBuilder() *Builder {
	return NewBuilder(zap.NewNop().Sugar())
}

func TestBuildFourPlyGame(t *testing.T) {
	timeline, err := testBuilder().Build([]string{"e4", "e5", "Nf3", "Nc6"}, "")
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}

	if got := len(timeline.Entries); got != 5 {
		t.Fatalf("expected 5 entries (indices 0-4), got %d", got)
	}
	if timeline.Entries[0].Position != startFEN {
		t.Errorf("entry 0 is not the standard start: %s", timeline.Entries[0].Position)
	}
	if timeline.Entries[0].Move != nil {
		t.Errorf("entry 0 must carry no move")
	}

	want := "r1bqkbnr/pppp1ppp/2n5/4p3/4P3/5N2/PPPP1PPP/RNBQKB1R w KQkq - 2 3"
	if got := timeline.Entries[4].Position; got != want {
		t.Errorf("final position = %s, want %s", got, want)
	}
}

func TestBuildCoordinateTokens(t *testing.T) {
	san, err := testBuilder().Build([]string{"e4", "e5", "Nf3", "Nc6"}, "")
	if err != nil {
		t.Fatalf("Build(san) returned error: %v", err)
	}
	uci, err := testBuilder().Build([]string{"e2e4", "e7e5", "g1f3", "b8c6"}, "")
	if err != nil {
		t.Fatalf("Build(uci) returned error: %v", err)
	}

	if len(san.Entries) != len(uci.Entries) {
		t.Fatalf("entry counts differ: %d vs %d", len(san.Entries), len(uci.Entries))
	}
	for i := range san.Entries {
		if san.Entries[i].Position != uci.Entries[i].Position {
			t.Errorf("entry %d: %s != %s", i, san.Entries[i].Position, uci.Entries[i].Position)
		}
	}
}

func TestBuildIsReproducible(t *testing.T) {
	timeline, err := testBuilder().Build([]string{"d4", "d5", "c4", "e6", "Nc3", "Nf6"}, "")
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}

	for i := 1; i < len(timeline.Entries); i++ {
		opt, err := chess.FEN(timeline.Entries[i-1].Position)
		if err != nil {
			t.Fatalf("entry %d: bad position: %v", i-1, err)
		}
		pos := chess.NewGame(opt).Position()
		mv, err := chess.UCINotation{}.Decode(pos, timeline.Entries[i].Move.UCI)
		if err != nil {
			t.Fatalf("entry %d: move %s does not decode: %v", i, timeline.Entries[i].Move.UCI, err)
		}
		if got := pos.Update(mv).String(); got != timeline.Entries[i].Position {
			t.Errorf("entry %d not reproducible: got %s, want %s", i, got, timeline.Entries[i].Position)
		}
	}
}

func TestBuildStopsAtIllegalToken(t *testing.T) {
	// Qxf7 is illegal at ply 3 (k=2): exactly k+1 entries survive.
	timeline, err := testBuilder().Build([]string{"e4", "e5", "Qxf7", "Nc6"}, "")
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if got := len(timeline.Entries); got != 3 {
		t.Fatalf("expected 3 entries after illegal ply 3, got %d", got)
	}
}

func TestBuildStopsAtUnparseableToken(t *testing.T) {
	timeline, err := testBuilder().Build([]string{"zz9", "e5"}, "")
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if got := len(timeline.Entries); got != 1 {
		t.Fatalf("expected only the start entry, got %d entries", got)
	}
}

func TestBuildCustomStartPosition(t *testing.T) {
	afterE4 := "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1"
	timeline, err := testBuilder().Build([]string{"c5"}, afterE4)
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if got := len(timeline.Entries); got != 2 {
		t.Fatalf("expected 2 entries, got %d", got)
	}
	if timeline.Entries[1].Move.SAN != "c5" {
		t.Errorf("move record SAN = %s, want c5", timeline.Entries[1].Move.SAN)
	}
}

func TestBuildBadStartPosition(t *testing.T) {
	if _, err := testBuilder().Build([]string{"e4"}, "not a position"); err == nil {
		t.Fatal("expected an error for an unparseable start position")
	}
}

func TestBuildRecordsMoveDetails(t *testing.T) {
	timeline, err := testBuilder().Build([]string{"e2e4"}, "")
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	mv := timeline.Entries[1].Move
	if mv.From != "e2" || mv.To != "e4" {
		t.Errorf("squares = %s-%s, want e2-e4", mv.From, mv.To)
	}
	if mv.SAN != "e4" {
		t.Errorf("SAN = %s, want e4", mv.SAN)
	}
	if mv.UCI != "e2e4" {
		t.Errorf("UCI = %s, want e2e4", mv.UCI)
	}
	if mv.Promotion != "" {
		t.Errorf("unexpected promotion %q", mv.Promotion)
	}
}

func TestBuildFromSummaryAttachesAnnotations(t *testing.T) {
	cp := 30
	clock := 3 * time.Minute
	summary := game.Summary{
		Moves:  []string{"e4", "e5"},
		Clocks: []time.Duration{clock, clock},
		Annotations: []*game.Annotation{
			nil,
			{Eval: &cp, Best: "g1f3"},
			nil,
		},
	}

	timeline, err := testBuilder().BuildFromSummary(summary)
	if err != nil {
		t.Fatalf("BuildFromSummary returned error: %v", err)
	}

	if timeline.Entries[1].Annotation == nil || timeline.Entries[1].Annotation.Best != "g1f3" {
		t.Errorf("entry 1 annotation not attached: %+v", timeline.Entries[1].Annotation)
	}
	if timeline.Entries[1].Clock == nil || *timeline.Entries[1].Clock != clock {
		t.Errorf("entry 1 clock not attached")
	}
	if timeline.Entries[0].Clock != nil {
		t.Errorf("start entry must not carry a clock")
	}
}
