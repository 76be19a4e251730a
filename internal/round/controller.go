package round

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fairhouse/engine/internal/engine"
	"github.com/fairhouse/engine/internal/games"
	"github.com/fairhouse/engine/internal/store"
)

// Game slugs as persisted in sessions and configs.
const (
	GameDice   = "dice"
	GameCrash  = "crash"
	GameMines  = "mines"
	GamePlinko = "plinko"
)

const defaultClientSeed = "fairhouse"

// payoutPlaces is the precision payouts are rounded to before crediting.
const payoutPlaces = 8

// Options bound bets and round frequency. Zero values fall back to defaults.
type Options struct {
	MinBet     decimal.Decimal
	MaxBet     decimal.Decimal
	RateWindow time.Duration
	RateMax    int
}

// Controller orchestrates one round per request: config lookup, rate limit,
// bet validation, then a single store transaction covering nonce allocation,
// balance movement and the session record. Any failure before commit leaves
// no state behind.
type Controller struct {
	db         store.DB
	logger     *zap.Logger
	minBet     decimal.Decimal
	maxBet     decimal.Decimal
	rateWindow time.Duration
	rateMax    int
}

// NewController wires a controller with the given bounds.
func NewController(db store.DB, logger *zap.Logger, opts Options) *Controller {
	if opts.MinBet.IsZero() {
		opts.MinBet = decimal.RequireFromString("0.1")
	}
	if opts.MaxBet.IsZero() {
		opts.MaxBet = decimal.NewFromInt(10000)
	}
	if opts.RateWindow == 0 {
		opts.RateWindow = time.Minute
	}
	if opts.RateMax == 0 {
		opts.RateMax = 10
	}
	return &Controller{
		db:         db,
		logger:     logger,
		minBet:     opts.MinBet,
		maxBet:     opts.MaxBet,
		rateWindow: opts.RateWindow,
		rateMax:    opts.RateMax,
	}
}

// gameConfig resolves and gates on the per-game house configuration.
func (c *Controller) gameConfig(ctx context.Context, slug string) (*store.GameConfig, error) {
	cfg, err := c.db.GetGameConfig(ctx, slug)
	if errors.Is(err, store.ErrNotFound) {
		c.logger.Warn("game not configured", zap.String("game", slug))
		return nil, fmt.Errorf("%w: %s", ErrGameNotFound, slug)
	}
	if err != nil {
		return nil, err
	}
	if !cfg.IsActive {
		return nil, fmt.Errorf("%w: %s", ErrGameDisabled, slug)
	}
	return cfg, nil
}

// checkRate bounds rounds per user per trailing window. A limiter read
// failure degrades to allowed; availability beats strict limiting here.
func (c *Controller) checkRate(ctx context.Context, userID string) error {
	count, err := c.db.CountSessionsSince(ctx, userID, time.Now().UTC().Add(-c.rateWindow))
	if err != nil {
		c.logger.Error("rate limit check failed, allowing round",
			zap.String("userId", userID), zap.Error(err))
		return nil
	}
	if count >= c.rateMax {
		return fmt.Errorf("%w: %d rounds in %s", ErrRateLimited, count, c.rateWindow)
	}
	return nil
}

func (c *Controller) validateBet(bet decimal.Decimal) error {
	if bet.LessThan(c.minBet) || bet.GreaterThan(c.maxBet) {
		return fmt.Errorf("%w: must be between %s and %s", ErrInvalidBet, c.minBet, c.maxBet)
	}
	return nil
}

func clientSeedOrDefault(seed string) string {
	if seed == "" {
		return defaultClientSeed
	}
	return seed
}

func payoutFrom(bet decimal.Decimal, multiplier float64) decimal.Decimal {
	return bet.Mul(decimal.NewFromFloat(multiplier)).Round(payoutPlaces)
}

func feeFrom(bet decimal.Decimal, houseEdge float64) decimal.Decimal {
	return bet.Mul(decimal.NewFromFloat(houseEdge)).Round(payoutPlaces)
}

func (c *Controller) logSettled(sess *store.GameSession, win bool) {
	c.logger.Info("round settled",
		zap.String("sessionId", sess.ID),
		zap.String("userId", sess.UserID),
		zap.String("game", sess.GameType),
		zap.Uint64("nonce", sess.Nonce),
		zap.String("status", sess.Status),
		zap.Bool("win", win),
		zap.String("bet", sess.BetAmount.String()),
		zap.String("payout", sess.Payout.String()),
		zap.String("serverSeedHash", sess.ServerSeedHash),
	)
}

// DiceRequest is one dice round.
type DiceRequest struct {
	UserID     string
	BetAmount  decimal.Decimal
	Target     int
	RollUnder  bool
	ClientSeed string
}

// DiceOutcome is the settled dice round.
type DiceOutcome struct {
	SessionID      string
	Roll           int
	Win            bool
	Multiplier     float64
	Payout         decimal.Decimal
	Balance        decimal.Decimal
	ServerSeed     string
	ServerSeedHash string
	ClientSeed     string
	Nonce          uint64
}

// PlayDice resolves a single-shot dice round.
func (c *Controller) PlayDice(ctx context.Context, req DiceRequest) (*DiceOutcome, error) {
	cfg, err := c.gameConfig(ctx, GameDice)
	if err != nil {
		return nil, err
	}
	if err := c.checkRate(ctx, req.UserID); err != nil {
		return nil, err
	}
	if err := c.validateBet(req.BetAmount); err != nil {
		return nil, err
	}

	game := games.Dice{Target: req.Target, RollUnder: req.RollUnder}
	if err := game.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}

	serverSeed, err := engine.GenerateServerSeed()
	if err != nil {
		return nil, err
	}
	clientSeed := clientSeedOrDefault(req.ClientSeed)

	var out DiceOutcome
	err = c.db.WithTx(ctx, func(tx *sql.Tx) error {
		nonce, err := c.db.NextNonce(ctx, tx, req.UserID, GameDice)
		if err != nil {
			return err
		}
		balance, err := c.db.BalanceForUpdate(ctx, tx, req.UserID)
		if err != nil {
			return err
		}
		if req.BetAmount.GreaterThan(balance) {
			return ErrInsufficientBalance
		}

		result := game.Play(serverSeed, clientSeed, nonce, cfg.HouseEdge)
		payout := decimal.Zero
		if result.Win {
			payout = payoutFrom(req.BetAmount, result.Multiplier)
		}

		newBalance := balance.Sub(req.BetAmount).Add(payout)
		if err := c.db.UpdateBalance(ctx, tx, req.UserID, newBalance); err != nil {
			return err
		}

		outcome, err := json.Marshal(result)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		sess := &store.GameSession{
			ID:             uuid.New().String(),
			UserID:         req.UserID,
			GameType:       GameDice,
			BetAmount:      req.BetAmount,
			BetFee:         feeFrom(req.BetAmount, cfg.HouseEdge),
			ServerSeed:     serverSeed,
			ServerSeedHash: engine.HashServerSeed(serverSeed),
			ClientSeed:     clientSeed,
			Nonce:          nonce,
			Outcome:        outcome,
			Payout:         payout,
			Status:         store.StatusSettled,
			SettledAt:      &now,
		}
		if err := c.db.CreateSession(ctx, tx, sess); err != nil {
			return err
		}

		out = DiceOutcome{
			SessionID:      sess.ID,
			Roll:           result.Roll,
			Win:            result.Win,
			Multiplier:     result.Multiplier,
			Payout:         payout,
			Balance:        newBalance,
			ServerSeed:     serverSeed,
			ServerSeedHash: sess.ServerSeedHash,
			ClientSeed:     clientSeed,
			Nonce:          nonce,
		}
		c.logSettled(sess, result.Win)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// CrashRequest is one crash round. AutoCashOut of zero means none was given.
type CrashRequest struct {
	UserID      string
	BetAmount   decimal.Decimal
	AutoCashOut float64
	ClientSeed  string
}

// CrashOutcome is the settled crash round.
type CrashOutcome struct {
	SessionID      string
	CrashPoint     float64
	CashOutAt      float64
	Win            bool
	Multiplier     float64
	Payout         decimal.Decimal
	Balance        decimal.Decimal
	ServerSeed     string
	ServerSeedHash string
	ClientSeed     string
	Nonce          uint64
}

// PlayCrash resolves a single-shot crash round.
func (c *Controller) PlayCrash(ctx context.Context, req CrashRequest) (*CrashOutcome, error) {
	cfg, err := c.gameConfig(ctx, GameCrash)
	if err != nil {
		return nil, err
	}
	if err := c.checkRate(ctx, req.UserID); err != nil {
		return nil, err
	}
	if err := c.validateBet(req.BetAmount); err != nil {
		return nil, err
	}

	game := games.Crash{AutoCashOut: req.AutoCashOut}
	if err := game.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}

	serverSeed, err := engine.GenerateServerSeed()
	if err != nil {
		return nil, err
	}
	clientSeed := clientSeedOrDefault(req.ClientSeed)

	var out CrashOutcome
	err = c.db.WithTx(ctx, func(tx *sql.Tx) error {
		nonce, err := c.db.NextNonce(ctx, tx, req.UserID, GameCrash)
		if err != nil {
			return err
		}
		balance, err := c.db.BalanceForUpdate(ctx, tx, req.UserID)
		if err != nil {
			return err
		}
		if req.BetAmount.GreaterThan(balance) {
			return ErrInsufficientBalance
		}

		result := game.Play(serverSeed, clientSeed, nonce, cfg.HouseEdge)
		payout := decimal.Zero
		if result.Win {
			payout = payoutFrom(req.BetAmount, result.Multiplier)
		}

		newBalance := balance.Sub(req.BetAmount).Add(payout)
		if err := c.db.UpdateBalance(ctx, tx, req.UserID, newBalance); err != nil {
			return err
		}

		outcome, err := json.Marshal(result)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		sess := &store.GameSession{
			ID:             uuid.New().String(),
			UserID:         req.UserID,
			GameType:       GameCrash,
			BetAmount:      req.BetAmount,
			BetFee:         feeFrom(req.BetAmount, cfg.HouseEdge),
			ServerSeed:     serverSeed,
			ServerSeedHash: engine.HashServerSeed(serverSeed),
			ClientSeed:     clientSeed,
			Nonce:          nonce,
			Outcome:        outcome,
			Payout:         payout,
			Status:         store.StatusSettled,
			SettledAt:      &now,
		}
		if err := c.db.CreateSession(ctx, tx, sess); err != nil {
			return err
		}

		out = CrashOutcome{
			SessionID:      sess.ID,
			CrashPoint:     result.CrashPoint,
			CashOutAt:      result.CashOutAt,
			Win:            result.Win,
			Multiplier:     result.Multiplier,
			Payout:         payout,
			Balance:        newBalance,
			ServerSeed:     serverSeed,
			ServerSeedHash: sess.ServerSeedHash,
			ClientSeed:     clientSeed,
			Nonce:          nonce,
		}
		c.logSettled(sess, result.Win)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// PlinkoRequest is one plinko round.
type PlinkoRequest struct {
	UserID     string
	BetAmount  decimal.Decimal
	Rows       int
	Risk       string
	ClientSeed string
}

// PlinkoOutcome is the settled plinko round. Every bucket pays, so there is
// no win flag.
type PlinkoOutcome struct {
	SessionID      string
	Path           []int
	Bucket         int
	Multiplier     float64
	Payout         decimal.Decimal
	Balance        decimal.Decimal
	ServerSeed     string
	ServerSeedHash string
	ClientSeed     string
	Nonce          uint64
}

// PlayPlinko resolves a single-shot plinko round.
func (c *Controller) PlayPlinko(ctx context.Context, req PlinkoRequest) (*PlinkoOutcome, error) {
	cfg, err := c.gameConfig(ctx, GamePlinko)
	if err != nil {
		return nil, err
	}
	if err := c.checkRate(ctx, req.UserID); err != nil {
		return nil, err
	}
	if err := c.validateBet(req.BetAmount); err != nil {
		return nil, err
	}

	game := games.Plinko{Rows: req.Rows, Risk: req.Risk}
	if err := game.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}

	serverSeed, err := engine.GenerateServerSeed()
	if err != nil {
		return nil, err
	}
	clientSeed := clientSeedOrDefault(req.ClientSeed)

	var out PlinkoOutcome
	err = c.db.WithTx(ctx, func(tx *sql.Tx) error {
		nonce, err := c.db.NextNonce(ctx, tx, req.UserID, GamePlinko)
		if err != nil {
			return err
		}
		balance, err := c.db.BalanceForUpdate(ctx, tx, req.UserID)
		if err != nil {
			return err
		}
		if req.BetAmount.GreaterThan(balance) {
			return ErrInsufficientBalance
		}

		result, err := game.Play(serverSeed, clientSeed, nonce, cfg.HouseEdge)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidParams, err)
		}
		payout := payoutFrom(req.BetAmount, result.Multiplier)

		newBalance := balance.Sub(req.BetAmount).Add(payout)
		if err := c.db.UpdateBalance(ctx, tx, req.UserID, newBalance); err != nil {
			return err
		}

		outcome, err := json.Marshal(result)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		sess := &store.GameSession{
			ID:             uuid.New().String(),
			UserID:         req.UserID,
			GameType:       GamePlinko,
			BetAmount:      req.BetAmount,
			BetFee:         feeFrom(req.BetAmount, cfg.HouseEdge),
			ServerSeed:     serverSeed,
			ServerSeedHash: engine.HashServerSeed(serverSeed),
			ClientSeed:     clientSeed,
			Nonce:          nonce,
			Outcome:        outcome,
			Payout:         payout,
			Status:         store.StatusSettled,
			SettledAt:      &now,
		}
		if err := c.db.CreateSession(ctx, tx, sess); err != nil {
			return err
		}

		out = PlinkoOutcome{
			SessionID:      sess.ID,
			Path:           result.Path,
			Bucket:         result.Bucket,
			Multiplier:     result.Multiplier,
			Payout:         payout,
			Balance:        newBalance,
			ServerSeed:     serverSeed,
			ServerSeedHash: sess.ServerSeedHash,
			ClientSeed:     clientSeed,
			Nonce:          nonce,
		}
		c.logSettled(sess, !payout.IsZero())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetSession returns a round record owned by the caller. Seeds of in-progress
// rounds stay hidden; only the commitment hash is exposed until settlement.
func (c *Controller) GetSession(ctx context.Context, userID, sessionID string) (*store.GameSession, error) {
	sess, err := c.db.GetSession(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	if sess.UserID != userID {
		return nil, ErrSessionNotFound
	}
	if !sess.Terminal() {
		sess.ServerSeed = ""
		if sess.GameType == GameMines {
			if err := redactMinesOutcome(sess); err != nil {
				return nil, err
			}
		}
	}
	return sess, nil
}
