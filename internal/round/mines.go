package round

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fairhouse/engine/internal/engine"
	"github.com/fairhouse/engine/internal/games"
	"github.com/fairhouse/engine/internal/store"
)

// minesState is the evolving outcome payload of a mines session. The house
// edge is pinned at start so the multiplier ladder cannot shift mid-round if
// the game config changes.
type minesState struct {
	MineCount     int     `json:"mineCount"`
	MinePositions []int   `json:"minePositions"`
	RevealedTiles []int   `json:"revealedTiles"`
	HouseEdge     float64 `json:"houseEdge"`
}

func (st *minesState) safeTiles() int {
	return games.MinesGridSize - st.MineCount
}

func loadMinesState(sess *store.GameSession) (*minesState, error) {
	var st minesState
	if err := json.Unmarshal(sess.Outcome, &st); err != nil {
		return nil, fmt.Errorf("corrupt mines state for session %s: %w", sess.ID, err)
	}
	return &st, nil
}

// ownedMinesSession loads the session under the transaction and verifies
// ownership and game type. Sessions of other users are reported as missing.
func (c *Controller) ownedMinesSession(ctx context.Context, tx *sql.Tx, userID, sessionID string) (*store.GameSession, error) {
	sess, err := c.db.SessionForUpdate(ctx, tx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	if sess.UserID != userID || sess.GameType != GameMines {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

func (c *Controller) updateMinesSession(ctx context.Context, tx *sql.Tx, sess *store.GameSession) error {
	err := c.db.UpdateSession(ctx, tx, sess)
	if errors.Is(err, store.ErrConflict) {
		return ErrSessionConflict
	}
	return err
}

// MinesStartRequest opens a mines session.
type MinesStartRequest struct {
	UserID     string
	BetAmount  decimal.Decimal
	MineCount  int
	ClientSeed string
}

// MinesStartOutcome reports the opened session. NextMultiplier is the payout
// multiplier the first safe reveal would reach.
type MinesStartOutcome struct {
	SessionID      string
	MineCount      int
	Balance        decimal.Decimal
	NextMultiplier float64
	ServerSeedHash string
	ClientSeed     string
	Nonce          uint64
}

// StartMines debits the bet, places the mines and persists the session as
// in_progress. Mine positions never leave the store until the round ends.
func (c *Controller) StartMines(ctx context.Context, req MinesStartRequest) (*MinesStartOutcome, error) {
	cfg, err := c.gameConfig(ctx, GameMines)
	if err != nil {
		return nil, err
	}
	if err := c.checkRate(ctx, req.UserID); err != nil {
		return nil, err
	}
	if err := c.validateBet(req.BetAmount); err != nil {
		return nil, err
	}
	if err := games.ValidateMineCount(req.MineCount); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}

	serverSeed, err := engine.GenerateServerSeed()
	if err != nil {
		return nil, err
	}
	clientSeed := clientSeedOrDefault(req.ClientSeed)

	var out MinesStartOutcome
	err = c.db.WithTx(ctx, func(tx *sql.Tx) error {
		nonce, err := c.db.NextNonce(ctx, tx, req.UserID, GameMines)
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

		newBalance := balance.Sub(req.BetAmount)
		if err := c.db.UpdateBalance(ctx, tx, req.UserID, newBalance); err != nil {
			return err
		}

		st := minesState{
			MineCount:     req.MineCount,
			MinePositions: games.PlaceMines(serverSeed, clientSeed, nonce, req.MineCount),
			RevealedTiles: []int{},
			HouseEdge:     cfg.HouseEdge,
		}
		outcome, err := json.Marshal(st)
		if err != nil {
			return err
		}

		sess := &store.GameSession{
			ID:             uuid.New().String(),
			UserID:         req.UserID,
			GameType:       GameMines,
			BetAmount:      req.BetAmount,
			BetFee:         feeFrom(req.BetAmount, cfg.HouseEdge),
			ServerSeed:     serverSeed,
			ServerSeedHash: engine.HashServerSeed(serverSeed),
			ClientSeed:     clientSeed,
			Nonce:          nonce,
			Outcome:        outcome,
			Payout:         decimal.Zero,
			Status:         store.StatusInProgress,
		}
		if err := c.db.CreateSession(ctx, tx, sess); err != nil {
			return err
		}

		out = MinesStartOutcome{
			SessionID:      sess.ID,
			MineCount:      req.MineCount,
			Balance:        newBalance,
			NextMultiplier: games.MinesMultiplier(1, req.MineCount, cfg.HouseEdge),
			ServerSeedHash: sess.ServerSeedHash,
			ClientSeed:     clientSeed,
			Nonce:          nonce,
		}
		c.logger.Info("mines session started",
			zap.String("sessionId", sess.ID),
			zap.String("userId", req.UserID),
			zap.Uint64("nonce", nonce),
			zap.Int("mineCount", req.MineCount),
			zap.String("bet", req.BetAmount.String()),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// MinesRevealRequest uncovers one tile of an in-progress session.
type MinesRevealRequest struct {
	UserID    string
	SessionID string
	TileIndex int
}

// MinesRevealOutcome reports one reveal. On a bust the mine positions and the
// server seed are disclosed; otherwise the multiplier ladder advances.
// NextMultiplier is nil once every safe tile is uncovered.
type MinesRevealOutcome struct {
	HitMine           bool
	RevealedTiles     []int
	MinePositions     []int
	CurrentMultiplier float64
	NextMultiplier    *float64
	PotentialPayout   decimal.Decimal
	Payout            decimal.Decimal
	Balance           decimal.Decimal
	Status            string
	ServerSeed        string
}

// RevealMines applies one reveal inside a version-guarded transaction, so two
// racing reveals on the same session cannot both commit.
func (c *Controller) RevealMines(ctx context.Context, req MinesRevealRequest) (*MinesRevealOutcome, error) {
	if req.TileIndex < 0 || req.TileIndex >= games.MinesGridSize {
		return nil, fmt.Errorf("%w: tile %d", ErrTileOutOfRange, req.TileIndex)
	}

	var out MinesRevealOutcome
	err := c.db.WithTx(ctx, func(tx *sql.Tx) error {
		sess, err := c.ownedMinesSession(ctx, tx, req.UserID, req.SessionID)
		if err != nil {
			return err
		}
		if sess.Terminal() {
			return ErrAlreadySettled
		}
		st, err := loadMinesState(sess)
		if err != nil {
			return err
		}
		if slices.Contains(st.RevealedTiles, req.TileIndex) {
			return fmt.Errorf("%w: tile %d", ErrTileAlreadyRevealed, req.TileIndex)
		}

		balance, err := c.db.BalanceForUpdate(ctx, tx, req.UserID)
		if err != nil {
			return err
		}

		if slices.Contains(st.MinePositions, req.TileIndex) {
			now := time.Now().UTC()
			sess.Status = store.StatusBusted
			sess.Payout = decimal.Zero
			sess.SettledAt = &now
			if err := c.updateMinesSession(ctx, tx, sess); err != nil {
				return err
			}

			out = MinesRevealOutcome{
				HitMine:       true,
				RevealedTiles: st.RevealedTiles,
				MinePositions: st.MinePositions,
				Payout:        decimal.Zero,
				Balance:       balance,
				Status:        store.StatusBusted,
				ServerSeed:    sess.ServerSeed,
			}
			c.logSettled(sess, false)
			return nil
		}

		st.RevealedTiles = append(st.RevealedTiles, req.TileIndex)
		outcome, err := json.Marshal(st)
		if err != nil {
			return err
		}
		sess.Outcome = outcome
		if err := c.updateMinesSession(ctx, tx, sess); err != nil {
			return err
		}

		revealed := len(st.RevealedTiles)
		current := games.MinesMultiplier(revealed, st.MineCount, st.HouseEdge)
		out = MinesRevealOutcome{
			RevealedTiles:     st.RevealedTiles,
			CurrentMultiplier: current,
			PotentialPayout:   payoutFrom(sess.BetAmount, current),
			Payout:            decimal.Zero,
			Balance:           balance,
			Status:            store.StatusInProgress,
		}
		if revealed < st.safeTiles() {
			next := games.MinesMultiplier(revealed+1, st.MineCount, st.HouseEdge)
			out.NextMultiplier = &next
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// MinesCashoutRequest settles an in-progress session at the current ladder.
type MinesCashoutRequest struct {
	UserID    string
	SessionID string
}

// MinesCashoutOutcome is the settled session.
type MinesCashoutOutcome struct {
	Multiplier float64
	Payout     decimal.Decimal
	Balance    decimal.Decimal
	ServerSeed string
}

// CashoutMines credits the current multiplier and freezes the session.
func (c *Controller) CashoutMines(ctx context.Context, req MinesCashoutRequest) (*MinesCashoutOutcome, error) {
	var out MinesCashoutOutcome
	err := c.db.WithTx(ctx, func(tx *sql.Tx) error {
		sess, err := c.ownedMinesSession(ctx, tx, req.UserID, req.SessionID)
		if err != nil {
			return err
		}
		if sess.Terminal() {
			return ErrAlreadySettled
		}
		st, err := loadMinesState(sess)
		if err != nil {
			return err
		}
		if len(st.RevealedTiles) == 0 {
			return ErrNoTilesRevealed
		}

		multiplier := games.MinesMultiplier(len(st.RevealedTiles), st.MineCount, st.HouseEdge)
		payout := payoutFrom(sess.BetAmount, multiplier)

		balance, err := c.db.BalanceForUpdate(ctx, tx, req.UserID)
		if err != nil {
			return err
		}
		newBalance := balance.Add(payout)
		if err := c.db.UpdateBalance(ctx, tx, req.UserID, newBalance); err != nil {
			return err
		}

		now := time.Now().UTC()
		sess.Status = store.StatusCashedOut
		sess.Payout = payout
		sess.SettledAt = &now
		if err := c.updateMinesSession(ctx, tx, sess); err != nil {
			return err
		}

		out = MinesCashoutOutcome{
			Multiplier: multiplier,
			Payout:     payout,
			Balance:    newBalance,
			ServerSeed: sess.ServerSeed,
		}
		c.logSettled(sess, true)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// redactMinesOutcome strips mine positions from an in-progress session's
// outcome before it leaves the engine.
func redactMinesOutcome(sess *store.GameSession) error {
	st, err := loadMinesState(sess)
	if err != nil {
		return err
	}
	public := struct {
		MineCount     int   `json:"mineCount"`
		RevealedTiles []int `json:"revealedTiles"`
	}{st.MineCount, st.RevealedTiles}
	out, err := json.Marshal(public)
	if err != nil {
		return err
	}
	sess.Outcome = out
	return nil
}
