package games

import (
	"fmt"
	"strings"

	"github.com/fairhouse/engine/internal/engine"
)

// PlinkoRows is the only supported board height.
const PlinkoRows = 8

// Plinko drops a ball through PlinkoRows rows of pegs. Each row is an
// independent coin flip drawn from the round's seed triple; the terminal
// bucket is the count of rightward bounces. Every bucket pays, so there is no
// binary win/loss.
type Plinko struct {
	Rows int
	Risk string
}

// PlinkoResult is the settled outcome of one plinko round.
type PlinkoResult struct {
	Path       []int   `json:"path"`
	Bucket     int     `json:"bucket"`
	Multiplier float64 `json:"multiplier"`
}

// Validate checks the player-controlled parameters.
func (p Plinko) Validate() error {
	if p.Rows != PlinkoRows {
		return fmt.Errorf("plinko rows must be %d, got %d", PlinkoRows, p.Rows)
	}
	risk := strings.ToLower(strings.TrimSpace(p.Risk))
	switch risk {
	case "low", "medium", "high":
		return nil
	default:
		return fmt.Errorf("invalid plinko risk: %q", p.Risk)
	}
}

// Play resolves the round from the seed triple.
func (p Plinko) Play(serverSeed, clientSeed string, nonce uint64, houseEdge float64) (PlinkoResult, error) {
	risk := strings.ToLower(strings.TrimSpace(p.Risk))
	table, err := plinkoTable(risk)
	if err != nil {
		return PlinkoResult{}, err
	}

	path := make([]int, PlinkoRows)
	bucket := 0
	for i := 0; i < PlinkoRows; i++ {
		if engine.DeriveAt(serverSeed, clientSeed, nonce, i) >= 0.5 {
			path[i] = 1
			bucket++
		}
	}

	return PlinkoResult{
		Path:       path,
		Bucket:     bucket,
		Multiplier: table[bucket] * (1 - houseEdge),
	}, nil
}
