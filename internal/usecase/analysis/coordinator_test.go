package analysis

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"chess_companion/internal/domain/eval"
)

type fakeEvaluator struct {
	mu      sync.Mutex
	calls   []string
	started chan string
	release chan struct{}
}

func (f *fakeEvaluator) Analyze(ctx context.Context, fen string, depth int) (eval.Evaluation, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fen)
	f.mu.Unlock()

	if f.started != nil {
		f.started <- fen
	}
	if f.release != nil {
		<-f.release
	}
	return eval.Evaluation{FEN: fen, Depth: depth}, nil
}

func (f *fakeEvaluator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeEvaluator) lastCall() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return ""
	}
	return f.calls[len(f.calls)-1]
}

func testLog() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

func TestRapidChangesCollapseToOneRequest(t *testing.T) {
	evaluator := &fakeEvaluator{}
	coord := NewCoordinator(evaluator, 10, 30*time.Millisecond, testLog())
	defer coord.Close()

	coord.PositionChanged("fen-one w", false)
	coord.PositionChanged("fen-two w", false)
	coord.PositionChanged("fen-three w", false)

	time.Sleep(150 * time.Millisecond)

	if got := evaluator.callCount(); got != 1 {
		t.Fatalf("expected exactly one engine request, got %d", got)
	}
	if got := evaluator.lastCall(); got != "fen-three w" {
		t.Errorf("request was for %q, want the final position", got)
	}
	if _, ok := coord.Latest("fen-three w"); !ok {
		t.Error("result for the final position was not held")
	}
}

func TestRepeatedSamePositionDoesNotRestartDelay(t *testing.T) {
	evaluator := &fakeEvaluator{}
	coord := NewCoordinator(evaluator, 10, 30*time.Millisecond, testLog())
	defer coord.Close()

	// Reporting the unchanged position faster than the debounce interval
	// must not push the evaluation back indefinitely.
	deadline := time.Now().Add(150 * time.Millisecond)
	for time.Now().Before(deadline) {
		coord.PositionChanged("polled-fen w", false)
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(60 * time.Millisecond)

	if got := evaluator.callCount(); got != 1 {
		t.Fatalf("expected exactly one engine request despite polling, got %d", got)
	}
	if _, ok := coord.Latest("polled-fen w"); !ok {
		t.Error("no evaluation was held for the polled position")
	}
}

func TestAnnotatedPositionNeverHitsEngine(t *testing.T) {
	evaluator := &fakeEvaluator{}
	coord := NewCoordinator(evaluator, 10, 10*time.Millisecond, testLog())
	defer coord.Close()

	coord.PositionChanged("annotated-fen w", true)
	time.Sleep(60 * time.Millisecond)

	if got := evaluator.callCount(); got != 0 {
		t.Fatalf("annotated position triggered %d engine requests", got)
	}
}

func TestStaleResultDiscarded(t *testing.T) {
	evaluator := &fakeEvaluator{
		started: make(chan string, 2),
		release: make(chan struct{}),
	}
	coord := NewCoordinator(evaluator, 10, 10*time.Millisecond, testLog())
	defer coord.Close()

	coord.PositionChanged("old-fen w", false)
	<-evaluator.started // engine is now searching old-fen

	// The position moved on while the search was in flight.
	coord.PositionChanged("new-fen w", false)
	close(evaluator.release)

	<-evaluator.started // the request for new-fen
	time.Sleep(50 * time.Millisecond)

	if _, ok := coord.Latest("old-fen w"); ok {
		t.Error("stale result for a superseded position was kept")
	}
	if _, ok := coord.Latest("new-fen w"); !ok {
		t.Error("result for the current position was dropped")
	}
}

func TestHeldResultSuppressesReRequest(t *testing.T) {
	evaluator := &fakeEvaluator{}
	coord := NewCoordinator(evaluator, 10, 10*time.Millisecond, testLog())
	defer coord.Close()

	coord.PositionChanged("same-fen w", false)
	time.Sleep(60 * time.Millisecond)
	coord.PositionChanged("same-fen w", false)
	time.Sleep(60 * time.Millisecond)

	if got := evaluator.callCount(); got != 1 {
		t.Fatalf("held result did not suppress the re-request: %d calls", got)
	}
}

func TestNilEvaluatorDegradesQuietly(t *testing.T) {
	coord := NewCoordinator(nil, 10, 10*time.Millisecond, testLog())
	defer coord.Close()

	coord.PositionChanged("any-fen w", false)
	time.Sleep(40 * time.Millisecond)

	if _, ok := coord.Latest("any-fen w"); ok {
		t.Error("nil evaluator produced a result")
	}
}

func TestCloseCancelsPendingRequest(t *testing.T) {
	evaluator := &fakeEvaluator{}
	coord := NewCoordinator(evaluator, 10, 30*time.Millisecond, testLog())

	coord.PositionChanged("fen w", false)
	coord.Close()
	time.Sleep(80 * time.Millisecond)

	if got := evaluator.callCount(); got != 0 {
		t.Fatalf("closed coordinator still issued %d requests", got)
	}
}
