package replay

import (
	"fmt"
	"sync"

	"github.com/notnil/chess"

	"chess_companion/internal/domain/eval"
	"chess_companion/internal/domain/game"
	errs "chess_companion/internal/errors"
)

// The navigator is in exactly one of two modes. A non-empty overlay
// implies modeExploring; every transition below maintains that.
type mode int

const (
	modeFollowing mode = iota
	modeExploring
)

type overlayMove struct {
	record   game.MoveRecord
	position string
}

// EvalSource answers "what is the most recent evaluation for exactly
// this position", if any.
type EvalSource interface {
	Latest(fen string) (eval.Evaluation, bool)
}

// State is the navigator's externally visible position.
type State struct {
	FEN       string            `json:"fen"`
	Cursor    int               `json:"cursor"`
	Plies     int               `json:"plies"`
	Exploring bool              `json:"exploring"`
	Overlay   []game.MoveRecord `json:"overlay,omitempty"`
	LastMove  *game.MoveRecord  `json:"last_move,omitempty"`
	Annotated bool              `json:"annotated"`
}

// Navigator walks a timeline with an optional speculative variation
// overlaid on the cursor position. All transitions are synchronous and
// atomic; the zero cursor value -1 denotes the start position.
type Navigator struct {
	mu       sync.Mutex
	timeline *game.Timeline
	evals    EvalSource // may be nil
	cursor   int
	mode     mode
	overlay  []overlayMove
}

func NewNavigator(timeline *game.Timeline, evals EvalSource) *Navigator {
	return &Navigator{
		timeline: timeline,
		evals:    evals,
		cursor:   -1,
		mode:     modeFollowing,
	}
}

// First jumps to the start position, leaving any variation.
func (n *Navigator) First() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.jumpLocked(-1)
}

// Last jumps to the final recorded position, leaving any variation.
func (n *Navigator) Last() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.jumpLocked(n.lastIndex())
}

// JumpTo moves the cursor to an explicit ply index (clamped to the valid
// range), leaving any variation.
func (n *Navigator) JumpTo(index int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if index < -1 {
		index = -1
	}
	if last := n.lastIndex(); index > last {
		index = last
	}
	n.jumpLocked(index)
}

// Next advances one step: the cursor while following, the best-known
// move while exploring. Stepping past the last recorded move is a no-op.
func (n *Navigator) Next() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.mode == modeFollowing {
		if n.cursor < n.lastIndex() {
			n.cursor++
		}
		return nil
	}
	return n.appendBestLocked()
}

// Prev steps back: pops the last overlay move while exploring (dropping
// back to following when the overlay empties), otherwise moves the
// cursor, clamped to the start position.
func (n *Navigator) Prev() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.mode == modeExploring {
		n.overlay = n.overlay[:len(n.overlay)-1]
		if len(n.overlay) == 0 {
			n.mode = modeFollowing
			n.overlay = nil
		}
		return
	}
	if n.cursor > -1 {
		n.cursor--
	}
}

// FollowBest appends the best-known move for the current position,
// entering a variation when still following. With no best move known the
// call is a no-op and reports it.
func (n *Navigator) FollowBest() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.mode == modeFollowing {
		n.mode = modeExploring
		if err := n.appendBestLocked(); err != nil {
			n.mode = modeFollowing
			n.overlay = nil
			return err
		}
		return nil
	}
	return n.appendBestLocked()
}

// Explore appends an arbitrary move token to the variation, entering one
// when still following. Illegal moves are rejected and the state is left
// unchanged.
func (n *Navigator) Explore(token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	wasFollowing := n.mode == modeFollowing
	n.mode = modeExploring
	if err := n.appendLocked(token); err != nil {
		if wasFollowing {
			n.mode = modeFollowing
			n.overlay = nil
		}
		return err
	}
	return nil
}

// ExitVariation clears the overlay and returns to following. No-op when
// already following.
func (n *Navigator) ExitVariation() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.mode = modeFollowing
	n.overlay = nil
}

// State recomputes and returns the current position. The overlay tip
// wins while exploring; any overlay mutation invalidated the previous
// value, so nothing is cached.
func (n *Navigator) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()

	st := State{
		Cursor:    n.cursor,
		Plies:     n.timeline.Plies(),
		Exploring: n.mode == modeExploring,
		FEN:       n.currentFENLocked(),
		Annotated: n.annotatedLocked(),
	}
	if len(n.overlay) > 0 {
		st.Overlay = make([]game.MoveRecord, len(n.overlay))
		for i, om := range n.overlay {
			st.Overlay[i] = om.record
		}
		st.LastMove = &st.Overlay[len(st.Overlay)-1]
	} else if entry := n.timeline.Entries[n.cursor+1]; entry.Move != nil {
		st.LastMove = entry.Move
	}
	return st
}

func (n *Navigator) lastIndex() int {
	return n.timeline.Plies() - 1
}

func (n *Navigator) jumpLocked(index int) {
	n.cursor = index
	n.mode = modeFollowing
	n.overlay = nil
}

func (n *Navigator) currentFENLocked() string {
	if len(n.overlay) > 0 {
		return n.overlay[len(n.overlay)-1].position
	}
	return n.timeline.Entries[n.cursor+1].Position
}

// A position counts as annotated only when it is a recorded timeline
// entry carrying a platform score; overlay positions never are.
func (n *Navigator) annotatedLocked() bool {
	if len(n.overlay) > 0 {
		return false
	}
	return n.timeline.Entries[n.cursor+1].Annotation.Evaluated()
}

// Best-known move: the platform annotation at the cursor when the
// overlay is empty, else the latest engine result for the exact current
// position.
func (n *Navigator) bestKnownLocked() string {
	if len(n.overlay) == 0 {
		if ann := n.timeline.Entries[n.cursor+1].Annotation; ann != nil && ann.Best != "" {
			return ann.Best
		}
	}
	if n.evals != nil {
		if ev, ok := n.evals.Latest(n.currentFENLocked()); ok {
			return ev.BestMove
		}
	}
	return ""
}

func (n *Navigator) appendBestLocked() error {
	best := n.bestKnownLocked()
	if best == "" {
		return errs.ErrNoBestMove
	}
	return n.appendLocked(best)
}

func (n *Navigator) appendLocked(token string) error {
	fen := n.currentFENLocked()
	opt, err := chess.FEN(fen)
	if err != nil {
		return fmt.Errorf("current position is not replayable: %w", err)
	}
	pos := chess.NewGame(opt).Position()

	mv, err := decodeToken(pos, token)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrIllegalMove, err)
	}
	if !isLegal(pos, mv) {
		return fmt.Errorf("%w: %s", errs.ErrIllegalMove, token)
	}

	n.overlay = append(n.overlay, overlayMove{
		record:   *recordMove(pos, mv),
		position: pos.Update(mv).String(),
	})
	return nil
}
