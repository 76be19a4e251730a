package round

import "errors"

// Round failure taxonomy. Validation failures happen before any balance or
// session mutation; the API layer maps each to its HTTP status verbatim.
var (
	ErrInvalidBet          = errors.New("invalid bet amount")
	ErrInvalidParams       = errors.New("invalid game parameters")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrGameNotFound        = errors.New("game not configured")
	ErrGameDisabled        = errors.New("game is disabled")
	ErrRateLimited         = errors.New("rate limit exceeded")
	ErrSessionNotFound     = errors.New("game session not found")
	ErrAlreadySettled      = errors.New("game session already settled")
	ErrTileOutOfRange      = errors.New("tile index out of range")
	ErrTileAlreadyRevealed = errors.New("tile already revealed")
	ErrNoTilesRevealed     = errors.New("cannot cash out before revealing a tile")
	ErrSessionConflict     = errors.New("session was modified concurrently")
)
