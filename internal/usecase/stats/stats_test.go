package stats

import (
	"math"
	"testing"

	"chess_companion/internal/domain/game"
)

func summary(white, black, winner, speed string) game.Summary {
	return game.Summary{
		White:  game.Player{Username: white},
		Black:  game.Player{Username: black},
		Winner: winner,
		Speed:  speed,
	}
}

func TestAggregateCountsOutcomes(t *testing.T) {
	games := []game.Summary{
		summary("alice", "bob", "white", "blitz"),   // win as white
		summary("carol", "alice", "black", "blitz"), // win as black
		summary("alice", "dave", "black", "rapid"),  // loss as white
		summary("alice", "erin", "", "rapid"),       // draw as white
	}

	report := Aggregate("alice", games)

	if report.Total != 4 {
		t.Fatalf("total = %d, want 4", report.Total)
	}
	if report.Wins != 2 || report.Losses != 1 || report.Draws != 1 {
		t.Errorf("record = %+v, want 2/1/1", report.Record)
	}
	if math.Abs(report.WinRate-0.5) > 1e-9 {
		t.Errorf("win rate = %f, want 0.5", report.WinRate)
	}
}

func TestAggregateSplitsByColorAndSpeed(t *testing.T) {
	games := []game.Summary{
		summary("alice", "bob", "white", "blitz"),
		summary("carol", "alice", "black", "blitz"),
		summary("alice", "dave", "black", "rapid"),
	}

	report := Aggregate("alice", games)

	white := report.ByColor["white"]
	if white.Total != 2 || white.Wins != 1 || white.Losses != 1 {
		t.Errorf("white record = %+v", white)
	}
	black := report.ByColor["black"]
	if black.Total != 1 || black.Wins != 1 {
		t.Errorf("black record = %+v", black)
	}

	blitz := report.BySpeed["blitz"]
	if blitz.Total != 2 || blitz.Wins != 2 {
		t.Errorf("blitz record = %+v", blitz)
	}
	rapid := report.BySpeed["rapid"]
	if rapid.Total != 1 || rapid.Losses != 1 {
		t.Errorf("rapid record = %+v", rapid)
	}
}

func TestAggregateSkipsForeignGames(t *testing.T) {
	games := []game.Summary{
		summary("bob", "carol", "white", "blitz"),
		summary("alice", "bob", "white", "blitz"),
	}

	report := Aggregate("alice", games)
	if report.Total != 1 {
		t.Fatalf("total = %d, want games without alice skipped", report.Total)
	}
}

func TestAggregateUsernameCaseInsensitive(t *testing.T) {
	games := []game.Summary{
		summary("Alice", "bob", "white", "bullet"),
	}

	report := Aggregate("alice", games)
	if report.Wins != 1 {
		t.Errorf("case-insensitive match failed: %+v", report.Record)
	}
}

func TestAggregateEmptyHistory(t *testing.T) {
	report := Aggregate("alice", nil)
	if report.Total != 0 || report.WinRate != 0 {
		t.Errorf("empty history report = %+v", report)
	}
	if report.ByColor == nil || report.BySpeed == nil {
		t.Error("maps must be allocated even for an empty history")
	}
}

func TestAggregateSkipsMissingSpeed(t *testing.T) {
	report := Aggregate("alice", []game.Summary{
		summary("alice", "bob", "white", ""),
	})
	if len(report.BySpeed) != 0 {
		t.Errorf("games without a speed must not appear in BySpeed: %+v", report.BySpeed)
	}
	if report.Total != 1 {
		t.Errorf("game without a speed still counts overall: %+v", report.Record)
	}
}
