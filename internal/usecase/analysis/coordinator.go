package analysis

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"chess_companion/internal/domain/eval"
)

// Evaluator is the engine capability the coordinator drives.
type Evaluator interface {
	Analyze(ctx context.Context, fen string, depth int) (eval.Evaluation, error)
}

// Coordinator turns rapid position changes into at most one engine
// request: each change restarts a short delay, and only the position
// still current when the delay elapses is sent to the engine. Results
// arriving for a position that is no longer current are discarded.
//
// A nil evaluator is a valid degraded state: every request becomes a
// no-op and navigation keeps working without evaluations.
type Coordinator struct {
	log       *zap.SugaredLogger
	evaluator Evaluator
	debounce  time.Duration
	depth     int

	mu        sync.Mutex
	timer     *time.Timer
	current   string
	gen       uint64
	pending   bool
	latest    eval.Evaluation
	hasLatest bool
	closed    bool
}

func NewCoordinator(evaluator Evaluator, depth int, debounce time.Duration, log *zap.SugaredLogger) *Coordinator {
	return &Coordinator{
		log:       log,
		evaluator: evaluator,
		debounce:  debounce,
		depth:     depth,
	}
}

// PositionChanged restarts the debounce delay when the current position
// actually changes. Reporting the same position again leaves any pending
// delay or in-flight search running, so polling faster than the debounce
// interval cannot starve the evaluation. Positions already carrying a
// platform evaluation never trigger an engine request, and neither does
// a position whose result is already held.
func (c *Coordinator) PositionChanged(fen string, annotated bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	if fen == c.current {
		if c.timer != nil || c.pending {
			return
		}
	} else {
		c.current = fen
		c.gen++
		if c.timer != nil {
			c.timer.Stop()
			c.timer = nil
		}
	}

	if c.evaluator == nil || annotated {
		return
	}
	if c.hasLatest && c.latest.FEN == fen {
		return
	}

	gen := c.gen
	c.timer = time.AfterFunc(c.debounce, func() {
		c.request(fen, gen)
	})
}

// Latest returns the held evaluation if it belongs to exactly the given
// position.
func (c *Coordinator) Latest(fen string) (eval.Evaluation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hasLatest || c.latest.FEN != fen {
		return eval.Evaluation{}, false
	}
	return c.latest, true
}

// Close cancels any pending request. Late engine results are dropped.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Coordinator) request(fen string, gen uint64) {
	c.mu.Lock()
	if c.closed || gen != c.gen || c.current != fen {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.pending = true
	depth := c.depth
	c.mu.Unlock()

	result, err := c.evaluator.Analyze(context.Background(), fen, depth)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = false
	if err != nil {
		c.log.Warnf("evaluation of %q failed: %v", fen, err)
		return
	}
	// The position moved on while the engine was searching; a stale
	// result must never be shown.
	if c.closed || gen != c.gen || c.current != fen {
		return
	}
	c.latest = result
	c.hasLatest = true
}
