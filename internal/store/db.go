package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Game session status values. Single-shot games settle on creation; Mines
// moves from in_progress to exactly one of the terminal states.
const (
	StatusInProgress = "in_progress"
	StatusBusted     = "busted"
	StatusCashedOut  = "cashed_out"
	StatusSettled    = "settled"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when an optimistic version check fails.
	ErrConflict = errors.New("version conflict")
)

// GameSession is one row per round. Once status leaves in_progress the record
// and its seeds are immutable and publicly verifiable.
type GameSession struct {
	ID             string          `json:"id"`
	UserID         string          `json:"userId"`
	GameType       string          `json:"gameType"`
	BetAmount      decimal.Decimal `json:"betAmount"`
	BetFee         decimal.Decimal `json:"betFee"`
	ServerSeed     string          `json:"serverSeed,omitempty"`
	ServerSeedHash string          `json:"serverSeedHash"`
	ClientSeed     string          `json:"clientSeed"`
	Nonce          uint64          `json:"nonce"`
	Outcome        json.RawMessage `json:"outcome"`
	Payout         decimal.Decimal `json:"payout"`
	Status         string          `json:"status"`
	Version        int64           `json:"-"`
	CreatedAt      time.Time       `json:"createdAt"`
	SettledAt      *time.Time      `json:"settledAt,omitempty"`
}

// Terminal reports whether the session has left in_progress.
func (s *GameSession) Terminal() bool {
	return s.Status != StatusInProgress
}

// GameConfig is the per-game house configuration. Read-only to the engine;
// mutated only by an administrative path outside this core.
type GameConfig struct {
	Slug      string  `json:"slug"`
	HouseEdge float64 `json:"houseEdge"`
	IsActive  bool    `json:"isActive"`
}

// DB is the backing store contract. All money movement for a round happens
// inside a single WithTx scope so a debit never commits without its session
// record.
type DB interface {
	Close() error
	Migrate() error

	// WithTx runs fn inside a write transaction. The transaction takes the
	// database write lock up front, which serializes nonce allocation and
	// balance movement across concurrent rounds.
	WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error

	// NextNonce allocates the next nonce for (user, gameType), starting at 1.
	NextNonce(ctx context.Context, tx *sql.Tx, userID, gameType string) (uint64, error)

	// BalanceForUpdate reads a user's balance inside the transaction. A user
	// with no balance row has a zero balance.
	BalanceForUpdate(ctx context.Context, tx *sql.Tx, userID string) (decimal.Decimal, error)
	UpdateBalance(ctx context.Context, tx *sql.Tx, userID string, amount decimal.Decimal) error

	// SetBalance is the administrative deposit path. Not called by the engine.
	SetBalance(ctx context.Context, userID string, amount decimal.Decimal) error
	GetBalance(ctx context.Context, userID string) (decimal.Decimal, error)

	CreateSession(ctx context.Context, tx *sql.Tx, session *GameSession) error
	SessionForUpdate(ctx context.Context, tx *sql.Tx, id string) (*GameSession, error)
	// UpdateSession writes outcome/payout/status guarded by the version the
	// session was read at; returns ErrConflict on a lost race.
	UpdateSession(ctx context.Context, tx *sql.Tx, session *GameSession) error
	GetSession(ctx context.Context, id string) (*GameSession, error)

	// CountSessionsSince counts rounds the user started in the trailing
	// window, for rate limiting.
	CountSessionsSince(ctx context.Context, userID string, since time.Time) (int, error)

	GetGameConfig(ctx context.Context, slug string) (*GameConfig, error)
}
