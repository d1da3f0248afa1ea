package errors

import "errors"

var (
	ErrUnauthorized      = errors.New("credential is missing, invalid or expired")
	ErrSessionNotFound   = errors.New("replay session was not found")
	ErrGameNotFound      = errors.New("game not found")
	ErrStateNotFound     = errors.New("oauth state was not found or already used")
	ErrEngineUnavailable = errors.New("evaluation engine is not available")
	ErrIllegalMove       = errors.New("illegal move")
	ErrNoBestMove        = errors.New("no best move known for the current position")
)
