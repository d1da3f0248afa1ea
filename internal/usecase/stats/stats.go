package stats

import (
	"strings"

	"chess_companion/internal/domain/game"
)

type Record struct {
	Total  int `json:"total"`
	Wins   int `json:"wins"`
	Losses int `json:"losses"`
	Draws  int `json:"draws"`
}

// Report is the aggregate view of a user's game history.
type Report struct {
	Record
	WinRate float64           `json:"win_rate"`
	ByColor map[string]Record `json:"by_color"`
	BySpeed map[string]Record `json:"by_speed"`
}

// Aggregate derives a report from game summaries for the given username.
// Games the user did not play in are skipped.
func Aggregate(username string, games []game.Summary) Report {
	report := Report{
		ByColor: make(map[string]Record),
		BySpeed: make(map[string]Record),
	}

	for _, g := range games {
		color := playerColor(username, g)
		if color == "" {
			continue
		}

		outcome := outcomeFor(color, g.Winner)
		bump(&report.Record, outcome)

		byColor := report.ByColor[color]
		bump(&byColor, outcome)
		report.ByColor[color] = byColor

		if g.Speed != "" {
			bySpeed := report.BySpeed[g.Speed]
			bump(&bySpeed, outcome)
			report.BySpeed[g.Speed] = bySpeed
		}
	}

	if report.Total > 0 {
		report.WinRate = float64(report.Wins) / float64(report.Total)
	}
	return report
}

func playerColor(username string, g game.Summary) string {
	switch {
	case strings.EqualFold(g.White.Username, username):
		return "white"
	case strings.EqualFold(g.Black.Username, username):
		return "black"
	default:
		return ""
	}
}

func outcomeFor(color, winner string) string {
	switch winner {
	case "":
		return "draw"
	case color:
		return "win"
	default:
		return "loss"
	}
}

func bump(r *Record, outcome string) {
	r.Total++
	switch outcome {
	case "win":
		r.Wins++
	case "loss":
		r.Losses++
	default:
		r.Draws++
	}
}
