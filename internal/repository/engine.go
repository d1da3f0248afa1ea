package repo

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"chess_companion/internal/domain/eval"
	errs "chess_companion/internal/errors"
)

// LineProcess is the capability the engine client needs from the
// evaluation process: a plain-text line protocol. An in-process engine
// binding can substitute the subprocess without touching any caller.
type LineProcess interface {
	Send(line string) error
	Lines() <-chan string
	Terminate() error
}

// StdioProcess runs an external binary and exposes its stdin/stdout as a
// line protocol.
type StdioProcess struct {
	cmd   *exec.Cmd
	stdin *bufio.Writer
	lines chan string
	mu    sync.Mutex
}

func StartStdioProcess(path string, args ...string) (*StdioProcess, error) {
	cmd := exec.Command(path, args...)

	stdinPipe, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	p := &StdioProcess{
		cmd:   cmd,
		stdin: bufio.NewWriter(stdinPipe),
		lines: make(chan string, 64),
	}

	go func() {
		scanner := bufio.NewScanner(stdoutPipe)
		for scanner.Scan() {
			p.lines <- scanner.Text()
		}
		close(p.lines)
	}()

	return p, nil
}

func (p *StdioProcess) Send(line string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := p.stdin.WriteString(line + "\n"); err != nil {
		return err
	}
	return p.stdin.Flush()
}

func (p *StdioProcess) Lines() <-chan string {
	return p.lines
}

func (p *StdioProcess) Terminate() error {
	_ = p.Send("quit")
	return p.cmd.Wait()
}

// Engine output has no binary framing; tokens are recovered by pattern
// matching on each line.
var (
	depthRe     = regexp.MustCompile(`\bdepth (\d+)`)
	scoreCpRe   = regexp.MustCompile(`\bscore cp (-?\d+)`)
	scoreMateRe = regexp.MustCompile(`\bscore mate (-?\d+)`)
	pvRe        = regexp.MustCompile(`\bpv (.+)$`)
	bestMoveRe  = regexp.MustCompile(`^bestmove (\S+)`)
)

const handshakeTimeout = 10 * time.Second

// EngineClient drives a UCI engine over a LineProcess. One search is in
// flight at a time; concurrent callers queue on the mutex.
type EngineClient struct {
	proc LineProcess
	log  *zap.SugaredLogger
	mu   sync.Mutex
}

// NewEngineClient performs the UCI handshake and returns a ready client.
func NewEngineClient(proc LineProcess, log *zap.SugaredLogger) (*EngineClient, error) {
	c := &EngineClient{
		proc: proc,
		log:  log,
	}

	if err := c.proc.Send("uci"); err != nil {
		return nil, err
	}
	if err := c.waitFor("uciok"); err != nil {
		return nil, err
	}
	if err := c.proc.Send("isready"); err != nil {
		return nil, err
	}
	if err := c.waitFor("readyok"); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *EngineClient) waitFor(token string) error {
	deadline := time.NewTimer(handshakeTimeout)
	defer deadline.Stop()

	for {
		select {
		case line, ok := <-c.proc.Lines():
			if !ok {
				return errs.ErrEngineUnavailable
			}
			if strings.Contains(line, token) {
				return nil
			}
		case <-deadline.C:
			return fmt.Errorf("engine did not answer %q within %s", token, handshakeTimeout)
		}
	}
}

// Analyze searches the given position to the given depth and returns the
// final evaluation, normalized to White's perspective. Cancelling the
// context sends "stop"; the engine's answer is still drained so the next
// search starts on a clean stream.
func (c *EngineClient) Analyze(ctx context.Context, fen string, depth int) (eval.Evaluation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.proc.Send("position fen " + fen); err != nil {
		return eval.Evaluation{}, err
	}
	if err := c.proc.Send(fmt.Sprintf("go depth %d", depth)); err != nil {
		return eval.Evaluation{}, err
	}

	result := eval.Evaluation{FEN: fen}
	done := ctx.Done()

	for {
		select {
		case <-done:
			if err := c.proc.Send("stop"); err != nil {
				return eval.Evaluation{}, err
			}
			done = nil // keep draining until bestmove
		case line, ok := <-c.proc.Lines():
			if !ok {
				return eval.Evaluation{}, errs.ErrEngineUnavailable
			}
			if m := bestMoveRe.FindStringSubmatch(line); m != nil {
				if ctx.Err() != nil {
					return eval.Evaluation{}, ctx.Err()
				}
				// Mate and stalemate positions answer "bestmove (none)".
				if m[1] != "(none)" {
					result.BestMove = m[1]
				}
				normalizeScore(&result, fen)
				return result, nil
			}
			if !strings.HasPrefix(line, "info") {
				continue
			}
			c.parseInfoLine(line, &result)
		}
	}
}

func (c *EngineClient) Close() error {
	return c.proc.Terminate()
}

func (c *EngineClient) parseInfoLine(line string, result *eval.Evaluation) {
	if m := depthRe.FindStringSubmatch(line); m != nil {
		d, err := strconv.Atoi(m[1])
		if err != nil {
			c.log.Warnf("malformed depth token in %q: %v", line, err)
			return
		}
		result.Depth = d
	}
	if m := scoreCpRe.FindStringSubmatch(line); m != nil {
		cp, err := strconv.Atoi(m[1])
		if err != nil {
			c.log.Warnf("malformed score token in %q: %v", line, err)
			return
		}
		result.Centipawns = &cp
		result.Mate = nil
	} else if m := scoreMateRe.FindStringSubmatch(line); m != nil {
		mate, err := strconv.Atoi(m[1])
		if err != nil {
			c.log.Warnf("malformed mate token in %q: %v", line, err)
			return
		}
		result.Mate = &mate
		result.Centipawns = nil
	}
	if m := pvRe.FindStringSubmatch(line); m != nil {
		result.PV = strings.Fields(m[1])
	}
}

// Engines report scores from the side to move; when Black is to move the
// numbers are negated so callers always see White's perspective.
func normalizeScore(result *eval.Evaluation, fen string) {
	if !blackToMove(fen) {
		return
	}
	if result.Centipawns != nil {
		neg := -*result.Centipawns
		result.Centipawns = &neg
	}
	if result.Mate != nil {
		neg := -*result.Mate
		result.Mate = &neg
	}
}

func blackToMove(fen string) bool {
	fields := strings.Fields(fen)
	return len(fields) > 1 && fields[1] == "b"
}
