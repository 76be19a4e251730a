package games

import (
	"fmt"
	"math"

	"github.com/fairhouse/engine/internal/engine"
)

const (
	// MinesGridSize is the number of tiles on the 5x5 board.
	MinesGridSize = 25

	MinesMinCount = 1
	MinesMaxCount = 24
)

// ValidateMineCount checks the requested number of mines.
func ValidateMineCount(mineCount int) error {
	if mineCount < MinesMinCount || mineCount > MinesMaxCount {
		return fmt.Errorf("mine count must be between %d and %d, got %d", MinesMinCount, MinesMaxCount, mineCount)
	}
	return nil
}

// PlaceMines places mineCount mines on the board via a Fisher-Yates selection
// over the 25 positions. Each swap decision is its own sub-draw of the round's
// seed triple, so the full layout is reproducible once the server seed is
// revealed.
func PlaceMines(serverSeed, clientSeed string, nonce uint64, mineCount int) []int {
	pool := make([]int, MinesGridSize)
	for i := range pool {
		pool[i] = i
	}

	mines := make([]int, 0, mineCount)
	for i := 0; i < mineCount; i++ {
		r := engine.DeriveAt(serverSeed, clientSeed, nonce, i)
		index := int(math.Floor(r * float64(len(pool))))
		if index >= len(pool) {
			index = len(pool) - 1
		}
		mines = append(mines, pool[index])
		pool = append(pool[:index], pool[index+1:]...)
	}

	return mines
}

// MinesMultiplier returns the edge-adjusted payout multiplier after revealed
// safe tiles. With m mines there are 25-m safe tiles; surviving k picks pays
// the product of inverse survival odds for each pick.
func MinesMultiplier(revealed, mineCount int, houseEdge float64) float64 {
	multiplier := 1.0
	safe := float64(MinesGridSize - mineCount)
	for i := 0; i < revealed; i++ {
		multiplier *= (float64(MinesGridSize) - float64(i)) / (safe - float64(i))
	}
	return multiplier * (1 - houseEdge)
}
