package games

import (
	"fmt"
	"math"

	"github.com/fairhouse/engine/internal/engine"
)

const (
	crashMinPoint   = 1.00
	crashMaxPoint   = 1000.0
	crashMinCashOut = 1.01
)

// Crash resolves a round of the multiplier-curve game. AutoCashOut of zero
// means the caller gave no target; the round is then settled as a single-shot
// simulation with the cash-out point drawn from an independent sub-draw, so
// the whole outcome remains reproducible from one seed triple. A live,
// wall-clock cash-out tick is a separate surface this engine does not carry.
type Crash struct {
	AutoCashOut float64
}

// CrashResult is the settled outcome of one crash round.
type CrashResult struct {
	CrashPoint float64 `json:"crashPoint"`
	CashOutAt  float64 `json:"cashOutAt"`
	Win        bool    `json:"win"`
	Multiplier float64 `json:"multiplier"`
}

// Validate checks the player-controlled parameters.
func (c Crash) Validate() error {
	if c.AutoCashOut == 0 {
		return nil
	}
	if c.AutoCashOut < crashMinCashOut || c.AutoCashOut > crashMaxPoint {
		return fmt.Errorf("crash autoCashOut must be between %.2f and %.0f, got %v", crashMinCashOut, crashMaxPoint, c.AutoCashOut)
	}
	return nil
}

// CrashPoint computes the curve's bust point for a single draw. The edge sits
// in the numerator, biasing the exponential tail low; the result is floored
// to cents and clamped to [1.00, 1000].
func CrashPoint(r, houseEdge float64) float64 {
	point := math.Floor(((1-houseEdge)/r)*100) / 100
	if point < crashMinPoint || math.IsNaN(point) {
		return crashMinPoint
	}
	if point > crashMaxPoint {
		return crashMaxPoint
	}
	return point
}

// Play resolves the round from the seed triple.
func (c Crash) Play(serverSeed, clientSeed string, nonce uint64, houseEdge float64) CrashResult {
	r := engine.Derive(serverSeed, clientSeed, nonce)
	crashPoint := CrashPoint(r, houseEdge)

	if c.AutoCashOut > 0 {
		win := c.AutoCashOut <= crashPoint
		res := CrashResult{CrashPoint: crashPoint, Win: win}
		if win {
			res.CashOutAt = c.AutoCashOut
			res.Multiplier = c.AutoCashOut
		}
		return res
	}

	// No target given: settle instantly. A winning round cashes out at a
	// uniformly drawn point between 1.01 and the crash point.
	if crashPoint < crashMinCashOut {
		return CrashResult{CrashPoint: crashPoint}
	}

	r2 := engine.DeriveAt(serverSeed, clientSeed, nonce, 1)
	cashOut := crashMinCashOut + r2*(crashPoint-crashMinCashOut)
	cashOut = math.Floor(cashOut*100) / 100

	return CrashResult{
		CrashPoint: crashPoint,
		CashOutAt:  cashOut,
		Win:        true,
		Multiplier: cashOut,
	}
}
