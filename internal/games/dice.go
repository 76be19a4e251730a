package games

import (
	"fmt"
	"math"

	"github.com/fairhouse/engine/internal/engine"
)

const (
	diceMinTarget = 1
	diceMaxTarget = 99
)

// Dice is the classic roll-under/roll-over game. The roll is a single draw
// mapped onto 1..100; the target splits the range into win and lose zones.
type Dice struct {
	Target    int
	RollUnder bool
}

// DiceResult is the settled outcome of one dice round.
type DiceResult struct {
	Roll       int     `json:"roll"`
	Win        bool    `json:"win"`
	WinChance  float64 `json:"winChance"`
	Multiplier float64 `json:"multiplier"`
}

// Validate checks the player-controlled parameters.
func (d Dice) Validate() error {
	if d.Target < diceMinTarget || d.Target > diceMaxTarget {
		return fmt.Errorf("dice target must be between %d and %d, got %d", diceMinTarget, diceMaxTarget, d.Target)
	}
	return nil
}

// Play resolves the round from the seed triple.
func (d Dice) Play(serverSeed, clientSeed string, nonce uint64, houseEdge float64) DiceResult {
	r := engine.Derive(serverSeed, clientSeed, nonce)
	roll := int(math.Floor(r*100)) + 1
	if roll > 100 {
		roll = 100
	}

	win := roll > d.Target
	winChance := float64(100 - d.Target)
	if d.RollUnder {
		win = roll < d.Target
		winChance = float64(d.Target)
	}

	return DiceResult{
		Roll:       roll,
		Win:        win,
		WinChance:  winChance,
		Multiplier: (100 / winChance) * (1 - houseEdge),
	}
}
