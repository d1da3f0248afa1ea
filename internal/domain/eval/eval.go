package eval

import (
	"fmt"
	"strconv"
)

// Evaluation is one engine result for exactly one requested position.
// Centipawns and Mate are normalized to White's perspective; at most one
// of them is set.
type Evaluation struct {
	FEN        string   `json:"fen"`
	Depth      int      `json:"depth"`
	Centipawns *int     `json:"centipawns,omitempty"`
	Mate       *int     `json:"mate,omitempty"`
	BestMove   string   `json:"best_move,omitempty"`
	PV         []string `json:"pv,omitempty"`
}

// IsMate reports whether the position is a forced mate.
func (e Evaluation) IsMate() bool {
	return e.Mate != nil
}

// Score renders the evaluation the way analysis boards display it,
// e.g. "+1.25", "-0.50", "#3", "#-5".
func (e Evaluation) Score() string {
	if e.Mate != nil {
		return "#" + strconv.Itoa(*e.Mate)
	}
	if e.Centipawns != nil {
		return fmt.Sprintf("%+.2f", float64(*e.Centipawns)/100)
	}
	return "?"
}
